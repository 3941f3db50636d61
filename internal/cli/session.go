package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/personyze/tracker-go/internal/config"
	"github.com/personyze/tracker-go/internal/engine"
	"github.com/personyze/tracker-go/internal/metrics"
	"github.com/personyze/tracker-go/internal/notification"
	"github.com/personyze/tracker-go/internal/store"
	"github.com/personyze/tracker-go/internal/transport"
)

// session is one command's view of the tracker: an engine over the
// configured store and gateway.
type session struct {
	engine    *engine.Engine
	metrics   *metrics.Metrics
	logger    *slog.Logger
	formatter *OutputFormatter
	opts      *RootOptions
	errOut    io.Writer
}

// openSession loads the configuration and builds the engine. Notifications
// are enabled when the config enables them or forceNotifications is set.
func openSession(cmd *cobra.Command, opts *RootOptions, forceNotifications bool) (*session, error) {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	path := opts.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), path)
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	formatter.VerboseLog("Loaded config from %s", path)

	logLevel := slog.LevelWarn
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	dbPath := cfg.DBPath
	if opts.Database != "" {
		dbPath = opts.Database
	}
	kv, persistent := store.New(dbPath)
	if !persistent {
		formatter.VerboseLog("Using in-memory store; state is lost on exit")
	}

	var t engine.Transport = opts.Transport
	if t == nil {
		t = transport.New(cfg.APIKey,
			transport.WithBaseURL(cfg.GatewayURL),
			transport.WithTimeout(cfg.HTTPTimeout),
		)
	}

	m := metrics.New()
	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithMetrics(m),
		engine.WithDevice(engine.Device{
			Platform:   cfg.Device.Platform,
			TimeZone:   cfg.Device.TimeZone,
			Language:   cfg.Device.Language,
			Screen:     cfg.Device.Screen,
			OS:         cfg.Device.OS,
			DeviceType: cfg.Device.DeviceType,
		}),
	}
	if opts.Clock != nil {
		engineOpts = append(engineOpts, engine.WithClock(opts.Clock))
	}
	if opts.FlowGenerator != nil {
		engineOpts = append(engineOpts, engine.WithFlowGenerator(opts.FlowGenerator))
	}
	if cfg.Notifications.Enabled || forceNotifications {
		engineOpts = append(engineOpts, engine.WithNotifications(
			notification.LogNotifier{Logger: logger},
			cfg.Notifications.Interval,
		))
	}

	return &session{
		engine:    engine.New(t, kv, cfg.APIKey, engineOpts...),
		metrics:   m,
		logger:    logger,
		formatter: formatter,
		opts:      opts,
		errOut:    cmd.ErrOrStderr(),
	}, nil
}

// close waits for background flushes, closes the store and dumps metrics
// when asked to.
func (s *session) close() {
	if err := s.engine.Close(); err != nil {
		s.logger.Error("error closing store", "error", err)
	}
	if s.opts.Metrics {
		if err := s.metrics.WriteText(s.errOut); err != nil {
			s.logger.Error("error writing metrics", "error", err)
		}
	}
}

// withSession runs fn against a fresh session and closes it afterwards.
func withSession(cmd *cobra.Command, opts *RootOptions, forceNotifications bool, fn func(s *session) error) error {
	s, err := openSession(cmd, opts, forceNotifications)
	if err != nil {
		return err
	}
	defer s.close()
	return fn(s)
}
