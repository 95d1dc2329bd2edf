package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"hybrid-filesystem/internal/catalog"
	"hybrid-filesystem/internal/config"
	"hybrid-filesystem/internal/service"
	"hybrid-filesystem/internal/transport"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hybrid-filesystem",
		Short: "Line-oriented file editing and search tools for AI agents",
		Long: `hybrid-filesystem serves a catalog of file tools (line edits, search,
directory management, guarded shell commands) over MCP on stdio or over HTTP.
Every path is confined to the allowed directories.`,
		SilenceUsage: true,
	}
	serveCmd, _ := newServeCmd()
	rootCmd.AddCommand(serveCmd, newToolsCmd(), newVersionCmd())
	return rootCmd
}

type serveOptions struct {
	configPath string
	allow      []string
	transport  string
	host       string
	port       int
	logLevel   string
	lockEdits  bool
}

func newServeCmd() (*cobra.Command, *serveOptions) {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve [allowed-dir...]",
		Short: "Start the tool server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, args, opts)
			if err != nil {
				return err
			}
			return runServe(cmd, cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "Config file (default "+config.Path()+")")
	f.StringArrayVar(&opts.allow, "allow", nil, "Allowed directory (repeatable)")
	f.StringVar(&opts.transport, "transport", "", "Transport: stdio or http")
	f.StringVar(&opts.host, "host", "", "HTTP listen host")
	f.IntVar(&opts.port, "port", 0, "HTTP listen port")
	f.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.BoolVar(&opts.lockEdits, "lock-edits", false, "Take a cross-process lock around each edit")
	return cmd, opts
}

// loadConfig reads the config file and applies the flags the user set.
// Positional arguments add allowed directories after any --allow values.
func loadConfig(cmd *cobra.Command, args []string, opts *serveOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if dirs := append(append([]string{}, opts.allow...), args...); len(dirs) > 0 {
		cfg.AllowedDirectories = dirs
	}
	if flags.Changed("transport") {
		cfg.Transport = opts.transport
	}
	if flags.Changed("host") {
		cfg.Host = opts.host
	}
	if flags.Changed("port") {
		cfg.Port = opts.port
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("lock-edits") {
		cfg.LockEdits = opts.lockEdits
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, cfg *config.Config) error {
	logOut := cmd.OutOrStdout()
	if cfg.Transport == "stdio" {
		// stdout carries protocol frames.
		logOut = cmd.ErrOrStderr()
	}
	logger := initializeLogger(logOut, cfg.LogLevel)
	logEffectiveConfig(logger, cfg)

	d, err := service.New(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize tool dispatcher")
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	switch cfg.Transport {
	case "http":
		h := transport.NewHTTPHandler(d, cfg.Addr(),
			transport.WithHTTPLogger(logger.With().Str("component", "http").Logger()),
			transport.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
			transport.WithTimeouts(0, cfg.OperationTimeout()+cfg.CommandTimeout()),
		)
		g.Go(h.ListenAndServe)
		g.Go(func() error {
			<-gctx.Done()
			logger.Info().Msg("Shutting down HTTP server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.OperationTimeout())
			defer cancel()
			return h.Shutdown(shutdownCtx)
		})
	default:
		h, err := transport.NewStdioHandler(d, version, logger)
		if err != nil {
			return err
		}
		g.Go(func() error { return h.Start(gctx, cmd.InOrStdin(), cmd.OutOrStdout()) })
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("Server stopped with error")
		return err
	}
	logger.Info().Msg("Application shutting down")
	return nil
}

func initializeLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("service", "hybrid-filesystem").Logger()
}

func logEffectiveConfig(logger zerolog.Logger, cfg *config.Config) {
	ev := logger.Info().
		Strs("allowed_directories", cfg.AllowedDirectories).
		Str("transport", cfg.Transport).
		Int("max_file_size_mb", cfg.MaxFileSizeMB).
		Int("operation_timeout_sec", cfg.OperationTimeoutSec).
		Int("command_timeout_sec", cfg.CommandTimeoutSec).
		Int("max_concurrent_calls", cfg.MaxConcurrentCalls).
		Bool("lock_edits", cfg.LockEdits)
	if cfg.Transport == "http" {
		ev = ev.Str("addr", cfg.Addr()).Float64("rate_limit", cfg.RateLimit).Int("rate_burst", cfg.RateBurst)
	}
	ev.Msg("Effective configuration")
}

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tool catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := catalog.Load()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TOOL\tCATEGORY\tDESCRIPTION")
			for _, t := range cat.Tools {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name, t.Category, t.Description)
			}
			return tw.Flush()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hybrid-filesystem %s\n", version)
		},
	}
}
