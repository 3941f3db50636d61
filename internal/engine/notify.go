package engine

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/personyze/tracker-go/internal/apierr"
	"github.com/personyze/tracker-go/internal/metrics"
	"github.com/personyze/tracker-go/internal/model"
	"github.com/personyze/tracker-go/internal/notification"
	"github.com/personyze/tracker-go/internal/store"
	"github.com/personyze/tracker-go/internal/wire"
)

// immediateCheckInterval rate-limits checks the host asks for explicitly.
const immediateCheckInterval = time.Second

const notificationPath = "current_notification/where/"

// CheckNotification fetches the pending notification for the current
// session, renders it, removes it from the gateway and hands it to the
// notifier. It returns nil when notifications are disabled, there is no
// session yet, the check is rate-limited or nothing is pending.
//
// A periodic check runs at most once per notification interval; an
// immediate check at most once per second.
func (e *Engine) CheckNotification(ctx context.Context, immediate bool) (*notification.Rendered, error) {
	logger := e.logger.With("flow", e.flowGen.Generate())

	if !e.notiEnabled {
		e.metrics.RecordNotification(metrics.NotificationSkipped)
		return nil, nil
	}

	e.mu.Lock()
	if err := e.ensureLoadedLocked(ctx); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	interval := e.notiInterval
	if immediate {
		interval = immediateCheckInterval
	}
	now := e.clock.Now()
	if e.sessionID == "" || !e.notiLastCheck.Add(interval).Before(now) {
		e.mu.Unlock()
		e.metrics.RecordNotification(metrics.NotificationSkipped)
		logger.Debug("notification check skipped")
		return nil, nil
	}
	e.notiLastCheck = now
	err := e.kv.Edit(ctx, func(tx *store.Tx) error {
		tx.PutInt(model.KeyNotiLastCheck, now.UnixMilli())
		return nil
	})
	where := fmt.Sprintf("user_id=%d&session_id=%s", e.userID, restEncode(e.sessionID))
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	r, err := e.deliverNotification(ctx, where)
	switch {
	case err != nil:
		e.metrics.RecordNotification(metrics.NotificationError)
		e.metrics.RecordError(string(apierr.CodeOf(err)))
		logger.Warn("notification check failed", "error", err)
	case r == nil:
		e.metrics.RecordNotification(metrics.NotificationNone)
	default:
		e.metrics.RecordNotification(metrics.NotificationDelivered)
		logger.Info("notification delivered", "message_id", r.MessageID)
	}
	return r, err
}

func (e *Engine) deliverNotification(ctx context.Context, where string) (*notification.Rendered, error) {
	text, err := e.transport.Get(ctx, notificationPath+where)
	if err != nil {
		return nil, err
	}
	payload, err := wire.DecodeNotification([]byte(text))
	if err != nil || payload == nil {
		return nil, err
	}
	n, err := notification.Parse(payload)
	if err != nil {
		return nil, err
	}

	r := notification.Render(ctx, n, e.transport, e.logger)

	reply, err := e.transport.Delete(ctx, fmt.Sprintf("%s%s&message_id=%d", notificationPath, where, n.MessageID))
	if err != nil {
		return nil, err
	}
	if affected := strings.TrimSpace(reply); affected != "0" && affected != "1" {
		return nil, apierr.New(apierr.CodeOther, "Couldn't deliver the notification")
	}

	if err := e.notifier.Notify(ctx, r); err != nil {
		return nil, fmt.Errorf("notifier: %w", err)
	}
	return r, nil
}

// RunNotificationPoller checks for notifications once per notification
// interval until ctx ends. Failed checks are logged and retried on the next
// tick.
func (e *Engine) RunNotificationPoller(ctx context.Context) error {
	if !e.notiEnabled {
		return nil
	}
	e.logger.Info("notification poller starting", "interval", e.notiInterval)

	ticker := time.NewTicker(e.notiInterval)
	defer ticker.Stop()

	for {
		// Errors are logged by CheckNotification.
		_, _ = e.CheckNotification(ctx, false)

		select {
		case <-ctx.Done():
			e.logger.Info("notification poller stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// restEncode escapes a value for a REST where-clause: commas separate
// values there, so they are encoded before query escaping.
func restEncode(s string) string {
	return url.QueryEscape(strings.ReplaceAll(s, ",", "%2C"))
}
