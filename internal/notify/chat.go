package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
)

// ChatSender posts the text body to shoutrrr service URLs (slack://, discord://, ...)
type ChatSender struct {
	urls []string
}

// NewChatSender returns a sender for the given shoutrrr URLs
func NewChatSender(urls ...string) *ChatSender {
	return &ChatSender{urls: urls}
}

func (c *ChatSender) Send(ctx context.Context, msg Message) error {
	if len(c.urls) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	sender, err := shoutrrr.CreateSender(c.urls...)
	if err != nil {
		return fmt.Errorf("creating chat sender: %w", err)
	}
	params := types.Params{"title": msg.Subject}
	var errs []error
	for _, e := range sender.Send(msg.BodyText, &params) {
		if e != nil {
			errs = append(errs, e)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("sending chat notification: %w", errors.Join(errs...))
	}
	return nil
}
