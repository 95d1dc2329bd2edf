package service

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"hybrid-filesystem/internal/catalog"
	"hybrid-filesystem/internal/command"
	"hybrid-filesystem/internal/config"
	"hybrid-filesystem/internal/fileops"
	"hybrid-filesystem/internal/lineedit"
	"hybrid-filesystem/internal/lock"
	"hybrid-filesystem/internal/metrics"
	"hybrid-filesystem/internal/pathguard"
	"hybrid-filesystem/internal/search"
	"hybrid-filesystem/internal/textenc"
)

// New wires every component from cfg and returns a dispatcher serving the
// whole catalog.
func New(cfg *config.Config, logger zerolog.Logger) (*Dispatcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}

	cat, err := catalog.Load()
	if err != nil {
		return nil, err
	}

	foldCase := pathguard.DefaultFoldCase()
	if cfg.CaseInsensitivePaths != nil {
		foldCase = *cfg.CaseInsensitivePaths
	}
	allowed, err := pathguard.NewAllowedDirectorySet(cfg.AllowedDirectories, foldCase)
	if err != nil {
		return nil, fmt.Errorf("invalid allowed directories: %w", err)
	}
	resolver := pathguard.NewResolver(allowed)
	detector := textenc.NewDetector()

	recorder, err := metrics.NewRecorder()
	if err != nil {
		return nil, err
	}

	editOpts := []lineedit.Option{lineedit.WithLogger(logger.With().Str("component", "lineedit").Logger())}
	if cfg.LockEdits {
		lm, err := lock.NewLockManager(cfg.LockDir)
		if err != nil {
			return nil, err
		}
		editOpts = append(editOpts, lineedit.WithLocker(lm, cfg.LockTimeout()))
	}

	tools := &Toolset{
		Edit: lineedit.NewEngine(resolver, detector, editOpts...),
		Search: search.NewEngine(resolver,
			search.WithMaxFileSize(cfg.MaxFileSize()),
			search.WithScanObserver(recorder.FilesScanned),
			search.WithLogger(logger.With().Str("component", "search").Logger()),
		),
		Files: fileops.NewService(resolver, detector,
			fileops.WithMaxFileSize(cfg.MaxFileSize()),
			fileops.WithWalkLimit(cfg.WalkMaxEntries),
		),
		Commands: command.NewRunner(resolver,
			command.WithMaxTimeout(cfg.CommandTimeout()),
			command.WithLogger(logger.With().Str("component", "command").Logger()),
		),
		SearchMaxFiles: cfg.SearchMaxFiles,
	}

	d := NewDispatcher(cat,
		WithLogger(logger),
		WithMetrics(recorder),
		WithMaxConcurrent(cfg.MaxConcurrentCalls),
		WithOperationTimeout(cfg.OperationTimeout()),
		// The runner enforces its own deadline, capped by command_timeout_sec.
		WithToolTimeout("execute_command", 0),
	)
	if err := tools.Register(d); err != nil {
		return nil, err
	}
	if missing := d.Unregistered(); len(missing) > 0 {
		return nil, fmt.Errorf("tools without handlers: %s", strings.Join(missing, ", "))
	}

	logger.Info().Strs("allowed_directories", allowed.Roots()).Bool("lock_edits", cfg.LockEdits).
		Int("tools", len(cat.Tools)).Msg("tool dispatcher ready")
	return d, nil
}
