package notify

import (
	"context"

	"github.com/trevnoctilla/toolprobe/pkg/logger"
)

// LogSender writes the subject to the log; used when no transport is configured
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) error {
	logger.New().With("component", "notify").Info("Summary for %v: %s", msg.Recipients, msg.Subject)
	return nil
}
