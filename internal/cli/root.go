package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/personyze/tracker-go/internal/engine"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Database   string
	Metrics    bool

	// Transport, Clock and FlowGenerator override the engine's
	// collaborators (for testing). Nil selects the HTTPS client, the system
	// clock and UUIDv7 flow tokens.
	Transport     engine.Transport
	Clock         engine.Clock
	FlowGenerator engine.FlowTokenGenerator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the personyze CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "personyze",
		Short: "Personyze tracker",
		Long: `Report visitor activity to Personyze and show the personalized
conditions and actions delivered in return.

Session state, the metadata cache and the last result persist in the
database between runs, so consecutive commands continue one visit.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default ~/.config/personyze/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "SQLite database path (overrides db_path)")
	cmd.PersistentFlags().BoolVar(&opts.Metrics, "metrics", false, "print metrics to stderr on exit")

	cmd.AddCommand(NewResultCommand(opts))
	cmd.AddCommand(NewNavigateCommand(opts))
	cmd.AddCommand(NewEventCommand(opts))
	cmd.AddCommand(NewActionStatusCommand(opts))
	cmd.AddCommand(NewNewSessionCommand(opts))
	cmd.AddCommand(NewClearCacheCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewNotifyCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))

	return cmd
}
