package cli

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/personyze/tracker-go/internal/command"
	"github.com/personyze/tracker-go/internal/engine"
)

var actionStatuses = []string{
	command.StatusExecuted,
	command.StatusTarget,
	command.StatusClose,
	command.StatusProduct,
	command.StatusArticle,
	command.StatusError,
}

// NewActionStatusCommand creates the action-status command.
func NewActionStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "action-status <action-id> <status> [arg]",
		Short: "Report what happened to a delivered action",
		Long: `Report an action's status to the gateway.

Statuses: ` + strings.Join(actionStatuses, ", ") + `

A "close" with a session count as arg also hides the action for that many
sessions.

Example:
  personyze action-status 42 executed
  personyze action-status 42 close 3`,
		Args:          cobra.RangeArgs(2, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runActionStatus(cmd, rootOpts, args)
		},
	}
}

func runActionStatus(cmd *cobra.Command, opts *RootOptions, args []string) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	id, err := strconv.Atoi(args[0])
	if err != nil || id <= 0 {
		return formatter.Fail("invalid action id", NewExitError(ExitCommandError, fmt.Sprintf("invalid action id %q", args[0])))
	}
	status := args[1]
	if !slices.Contains(actionStatuses, status) {
		return formatter.Fail("invalid status", NewExitError(ExitCommandError, fmt.Sprintf("unknown status %q", status)))
	}
	var arg string
	if len(args) == 3 {
		arg = args[2]
	}

	return withSession(cmd, opts, false, func(s *session) error {
		if err := s.engine.ReportActionStatus(cmd.Context(), id, status, arg); err != nil {
			return s.formatter.Fail("failed to report action status", err)
		}
		s.engine.Wait()
		return s.formatter.Success(fmt.Sprintf("Reported %s for action %d", status, id))
	})
}

// NewNewSessionCommand creates the new-session command.
func NewNewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "new-session",
		Short:         "Start a new visit on the next request",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, false, func(s *session) error {
				if err := s.engine.StartNewSession(cmd.Context()); err != nil {
					return s.formatter.Fail("failed to start a new session", err)
				}
				return s.formatter.Success("New session requested")
			})
		},
	}
}

// NewClearCacheCommand creates the clear-cache command.
func NewClearCacheCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Drop cached condition, action and placeholder metadata",
		Long: `Drop the cached metadata. Identity, session, ledgers and the ids of
the current result are kept; metadata is fetched again when next delivered.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, false, func(s *session) error {
				if err := s.engine.ClearCache(cmd.Context()); err != nil {
					return s.formatter.Fail("failed to clear cache", err)
				}
				return s.formatter.Success("Cache cleared")
			})
		},
	}
}

// statusView prints session state as aligned key/value lines.
type statusView struct {
	engine.SessionInfo
}

func (v statusView) RenderText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	row := func(k string, val any) { fmt.Fprintf(tw, "%s:\t%v\n", k, val) }

	row("User ID", v.UserID)
	row("Session", orNone(v.SessionID))
	if !v.SessionStart.IsZero() {
		row("Session start", v.SessionStart.UTC().Format(time.RFC3339))
	}
	row("Session expired", v.SessionExpired)
	row("New session pending", v.NewSessionPending)
	row("Cache version", v.CacheVersion)
	row("Blocked actions", formatBlocked(v.Blocked))
	row("Past sessions", len(v.PastSessions))
	row("Queued commands", v.QueuedCommands)
	if !v.NotiLastCheck.IsZero() {
		row("Last notification check", v.NotiLastCheck.UTC().Format(time.RFC3339))
	}
	if v.Result != nil {
		row("Result", fmt.Sprintf("%d condition(s), %d action(s)", len(v.Result.Conditions), len(v.Result.Actions)))
	} else {
		row("Result", "none")
	}
	return tw.Flush()
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func formatBlocked(b map[int]int) string {
	if len(b) == 0 {
		return "none"
	}
	ids := make([]int, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d (%d sessions)", id, b[id])
	}
	return strings.Join(parts, ", ")
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show the stored session state",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, false, func(s *session) error {
				info, err := s.engine.SessionInfo(cmd.Context())
				if err != nil {
					return s.formatter.Fail("failed to load session", err)
				}
				return s.formatter.Success(statusView{info})
			})
		},
	}
}
