// Package notify delivers short operator notifications (failed agent
// runs, flagged results) to chat integrations.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var ErrNotConfigured = errors.New("notifier not configured")

type Notification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Level   string `json:"level"`  // info, success, warning, error
	Source  string `json:"source"` // agent or schedule name
}

type Notifier interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Multi fans a notification out to every notifier. Delivery continues past
// individual failures; the joined error lists them all.
type Multi []Notifier

func (m Multi) Name() string { return "multi" }

func (m Multi) Send(ctx context.Context, n Notification) error {
	var errs []error
	for _, target := range m {
		if err := target.Send(ctx, n); err != nil {
			slog.Warn("notification failed", "notifier", target.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", target.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func levelTag(level string) string {
	switch level {
	case "success":
		return "[OK]"
	case "error":
		return "[ERROR]"
	case "warning":
		return "[WARN]"
	default:
		return "[INFO]"
	}
}

// Text renders n as a plain-text message for chat transports.
func Text(n Notification) string {
	s := levelTag(n.Level) + " " + n.Title
	if n.Message != "" {
		s += "\n" + n.Message
	}
	if n.Source != "" {
		s += "\nsource: " + n.Source
	}
	return s
}
