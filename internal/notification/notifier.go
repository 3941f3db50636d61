package notification

import (
	"context"
	"log/slog"
)

// Notifier delivers a rendered notification to the platform.
type Notifier interface {
	Notify(ctx context.Context, r *Rendered) error
}

// LogNotifier delivers notifications to a structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs the notification's visible fields.
func (l LogNotifier) Notify(_ context.Context, r *Rendered) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	buttons := make([]string, len(r.Buttons))
	for i, b := range r.Buttons {
		buttons[i] = b.Title
	}
	logger.Info("notification",
		"message_id", r.MessageID,
		"title", r.Title,
		"body", r.Body,
		"tag", r.Tag,
		"silent", r.Silent,
		"renotify", r.Renotify,
		"has_badge", r.BadgeImage != nil,
		"has_icon", r.IconImage != nil,
		"has_image", r.BigImage != nil,
		"buttons", buttons,
	)
	return nil
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, r *Rendered) error

func (f NotifierFunc) Notify(ctx context.Context, r *Rendered) error {
	return f(ctx, r)
}
