package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

// Message is the rendered run summary handed to a transport
type Message struct {
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	BodyHTML   string   `json:"bodyHtml"`
	BodyText   string   `json:"bodyText"`
}

// Sender delivers a rendered message
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Multi sends through every sender and joins their errors
type Multi []Sender

func (m Multi) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dispatcher renders a finished run and sends it
type Dispatcher struct {
	renderer   *Renderer
	sender     Sender
	recipients []string
}

// NewDispatcher wires a renderer to a sender for a fixed recipient list
func NewDispatcher(renderer *Renderer, sender Sender, recipients []string) *Dispatcher {
	return &Dispatcher{renderer: renderer, sender: sender, recipients: recipients}
}

// Notify renders the run summary and sends it once
func (d *Dispatcher) Notify(ctx context.Context, run probe.TestRun) error {
	msg, err := d.renderer.Render(run, d.recipients)
	if err != nil {
		return fmt.Errorf("render summary: %w", err)
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send summary: %w", err)
	}
	return nil
}
