package notify

import (
	"context"
)

// Notifier defines the interface for sending notifications.
type Notifier interface {
	Send(ctx context.Context, title, body string) error
}

// NoOpNotifier does nothing. Used when no notification backend is configured
// so the notify task still resolves and records a failure instead of a fault.
type NoOpNotifier struct{}

func (NoOpNotifier) Send(ctx context.Context, title, body string) error {
	return nil
}
