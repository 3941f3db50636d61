package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/personyze/tracker-go/internal/engine"
	"github.com/personyze/tracker-go/internal/model"
)

// resultView prints a result as two tables followed by each action's
// content.
type resultView struct {
	*model.Result
}

func (v resultView) RenderText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "CONDITIONS (%d)\n", len(v.Conditions))
	for _, c := range v.Conditions {
		fmt.Fprintf(tw, "  %d\t%s\n", c.ID, c.Name)
	}
	fmt.Fprintf(tw, "ACTIONS (%d)\n", len(v.Actions))
	for _, a := range v.Actions {
		holders := make([]string, len(a.Placeholders))
		for i, p := range a.Placeholders {
			holders[i] = p.HTMLID
		}
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\n", a.ID, a.Name, a.ContentType, strings.Join(holders, ","))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, a := range v.Actions {
		if content := a.Content(); content != "" {
			fmt.Fprintf(w, "\n[%d] %s\n", a.ID, content)
		}
	}
	return nil
}

// NewResultCommand creates the result command.
func NewResultCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "result",
		Short: "Show the current conditions and actions",
		Long: `Send anything pending and show the conditions and actions currently
matching the visitor. A cached result is shown without contacting the
gateway.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, false, func(s *session) error {
				return s.showResult(cmd)
			})
		},
	}
}

// NewNavigateCommand creates the navigate command.
func NewNavigateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "navigate <document>",
		Short: "Report a page view and show the new result",
		Long: `Report that the visitor opened a document. The result delivered for
the navigation replaces the previous one.

Example:
  personyze navigate Home
  personyze navigate "Product page" --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, false, func(s *session) error {
				s.engine.Navigate(args[0])
				return s.showResult(cmd)
			})
		},
	}
}

// eventKind queues one kind of visitor event.
type eventKind struct {
	args  int
	queue func(e *engine.Engine, args []string)
}

func withID(f func(*engine.Engine, string)) eventKind {
	return eventKind{args: 1, queue: func(e *engine.Engine, args []string) { f(e, args[0]) }}
}

func noID(f func(*engine.Engine)) eventKind {
	return eventKind{queue: func(e *engine.Engine, _ []string) { f(e) }}
}

var eventKinds = map[string]eventKind{
	"product-viewed":             withID((*engine.Engine).ProductViewed),
	"product-added-to-cart":      withID((*engine.Engine).ProductAddedToCart),
	"product-liked":              withID((*engine.Engine).ProductLiked),
	"product-purchased":          withID((*engine.Engine).ProductPurchased),
	"product-unliked":            withID((*engine.Engine).ProductUnliked),
	"product-removed-from-cart":  withID((*engine.Engine).ProductRemovedFromCart),
	"products-purchased":         noID((*engine.Engine).ProductsPurchased),
	"products-unliked":           noID((*engine.Engine).ProductsUnliked),
	"products-removed-from-cart": noID((*engine.Engine).ProductsRemovedFromCart),
	"article-viewed":             withID((*engine.Engine).ArticleViewed),
	"article-liked":              withID((*engine.Engine).ArticleLiked),
	"article-commented":          withID((*engine.Engine).ArticleCommented),
	"article-unliked":            withID((*engine.Engine).ArticleUnliked),
	"article-goal":               withID((*engine.Engine).ArticleGoal),
	"user-data": {args: 2, queue: func(e *engine.Engine, args []string) {
		e.LogUserData(args[0], args[1])
	}},
}

func eventKindNames() []string {
	names := make([]string, 0, len(eventKinds))
	for name := range eventKinds {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NewEventCommand creates the event command.
func NewEventCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "event <kind> [id | field value]",
		Short: "Report a product, article or profile event",
		Long: `Report a visitor event, send it and show the updated result.

Kinds: ` + strings.Join(eventKindNames(), ", ") + `

Example:
  personyze event product-viewed SKU-1001
  personyze event products-purchased
  personyze event user-data email visitor@example.com`,
		Args:          cobra.RangeArgs(1, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvent(cmd, rootOpts, args[0], args[1:])
		},
	}
}

func runEvent(cmd *cobra.Command, opts *RootOptions, kind string, args []string) error {
	ev, ok := eventKinds[kind]
	if !ok || len(args) != ev.args {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		msg := fmt.Sprintf("unknown event kind %q", kind)
		if ok {
			msg = fmt.Sprintf("event %s takes %d argument(s), got %d", kind, ev.args, len(args))
		}
		return formatter.Fail("invalid event", NewExitError(ExitCommandError, msg))
	}

	return withSession(cmd, opts, false, func(s *session) error {
		ev.queue(s.engine, args)
		return s.showResult(cmd)
	})
}

func (s *session) showResult(cmd *cobra.Command) error {
	r, err := s.engine.GetResult(cmd.Context())
	if err != nil {
		return s.formatter.Fail("failed to get result", err)
	}
	return s.formatter.Success(resultView{r})
}
