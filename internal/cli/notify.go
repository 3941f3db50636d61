package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/personyze/tracker-go/internal/notification"
)

// notificationView is the printable part of a delivered notification.
type notificationView struct {
	Pending   bool     `json:"pending"`
	MessageID int64    `json:"message_id,omitempty"`
	Title     string   `json:"title,omitempty"`
	Body      string   `json:"body,omitempty"`
	Tag       string   `json:"tag,omitempty"`
	Buttons   []string `json:"buttons,omitempty"`
	HasIcon   bool     `json:"has_icon,omitempty"`
	HasImage  bool     `json:"has_image,omitempty"`
}

func newNotificationView(r *notification.Rendered) notificationView {
	if r == nil {
		return notificationView{}
	}
	v := notificationView{
		Pending:   true,
		MessageID: r.MessageID,
		Title:     r.Title,
		Body:      r.Body,
		Tag:       r.Tag,
		HasIcon:   r.IconImage != nil,
		HasImage:  r.BigImage != nil,
	}
	for _, b := range r.Buttons {
		v.Buttons = append(v.Buttons, b.Title)
	}
	return v
}

func (v notificationView) RenderText(w io.Writer) error {
	if !v.Pending {
		_, err := fmt.Fprintln(w, "No notification pending")
		return err
	}
	fmt.Fprintf(w, "Notification %d: %s\n", v.MessageID, v.Title)
	fmt.Fprintf(w, "  %s\n", v.Body)
	if v.Tag != "" {
		fmt.Fprintf(w, "  opens %s\n", v.Tag)
	}
	for _, b := range v.Buttons {
		fmt.Fprintf(w, "  [%s]\n", b)
	}
	return nil
}

// NewNotifyCommand creates the notify command.
func NewNotifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "notify",
		Short: "Fetch the pending notification, if any",
		Long: `Check the gateway for a notification addressed to the current
session. A delivered notification is removed from the gateway. Checks are
limited to one per second.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, true, func(s *session) error {
				r, err := s.engine.CheckNotification(cmd.Context(), true)
				if err != nil {
					return s.formatter.Fail("failed to check notifications", err)
				}
				return s.formatter.Success(newNotificationView(r))
			})
		},
	}
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Poll for notifications until interrupted",
		Long: `Check for notifications once per notifications.interval and log each
one delivered. Runs until Ctrl-C.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, true, func(s *session) error {
				return runWatch(cmd, s)
			})
		},
	}
}

func runWatch(cmd *cobra.Command, s *session) error {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			s.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintln(cmd.OutOrStdout(), "Watching for notifications. Press Ctrl-C to stop.")

	err := s.engine.RunNotificationPoller(ctx)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return s.formatter.Fail("notification poller failed", err)
	}
	s.logger.Info("stopped watching")
	return nil
}
