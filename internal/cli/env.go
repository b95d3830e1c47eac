package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/fogtimer/internal/archive"
	"github.com/roach88/fogtimer/internal/config"
	"github.com/roach88/fogtimer/internal/fog"
	"github.com/roach88/fogtimer/internal/logging"
	"github.com/roach88/fogtimer/internal/protocol"
	"github.com/roach88/fogtimer/internal/store"
)

// env is everything a command needs to work on the archive.
type env struct {
	cfg     *config.Config
	loader  *config.Loader
	log     *zap.Logger
	store   *store.Store
	archive *archive.Archive

	// now stamps export filenames. Overridden in tests.
	now func() time.Time

	mu     sync.Mutex
	export config.ExportConfig
}

// envOptions tunes openEnv for the calling command.
type envOptions struct {
	// quietConsole keeps log output off the terminal, e.g. while the TUI
	// owns it.
	quietConsole bool
}

// loadConfig reads configuration and applies global flag overrides.
func loadConfig(opts *RootOptions) (*config.Loader, *config.Config, error) {
	loader := config.NewLoader(opts.ConfigPath)
	if opts.Database != "" {
		loader.Set("database", opts.Database)
	}
	if opts.Verbose {
		loader.Set("logging.level", "debug")
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	return loader, cfg, nil
}

// newLogger builds the command logger. Console logging is on only with
// --verbose so normal output stays clean.
func newLogger(cfg *config.Config, opts *RootOptions, stderr io.Writer, eo envOptions) (*zap.Logger, error) {
	log, err := logging.New(logging.Options{
		Level:         cfg.Logging.Level,
		Directory:     cfg.Logging.Directory,
		MaxSizeMB:     cfg.Logging.MaxSize,
		MaxBackups:    cfg.Logging.MaxBackups,
		MaxAgeDays:    cfg.Logging.MaxAge,
		Compress:      cfg.Logging.Compress,
		Console:       cfg.Logging.Console && opts.Verbose && !eo.quietConsole,
		ConsoleWriter: stderr,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to initialize logger", err)
	}
	return log, nil
}

// openEnv loads config, builds the logger, and opens the store and archive.
// Callers must Close the env.
func openEnv(cmd *cobra.Command, opts *RootOptions, eo envOptions) (*env, error) {
	loader, cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg, opts, cmd.ErrOrStderr(), eo)
	if err != nil {
		return nil, err
	}
	if file := loader.ConfigFile(); file != "" {
		log.Debug("configuration loaded", zap.String("file", file))
	}

	log.Debug("opening database", zap.String("path", cfg.Database))
	st, err := store.Open(cfg.Database)
	if err != nil {
		_ = log.Sync()
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	a, err := archive.Open(commandContext(cmd), st,
		archive.WithKey(cfg.ArchiveKey),
		archive.WithLogger(log.Named("archive")),
	)
	if err != nil {
		_ = st.Close()
		_ = log.Sync()
		return nil, WrapExitError(ExitCommandError, "failed to load archive", err)
	}

	return &env{
		cfg:     cfg,
		loader:  loader,
		log:     log,
		store:   st,
		archive: a,
		now:     time.Now,
		export:  cfg.Export,
	}, nil
}

// Close releases the store and flushes the logger.
func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		e.log.Error("error closing database", zap.Error(err))
	}
	_ = e.log.Sync()
}

// watchConfig hot-reloads export settings for long-running commands.
func (e *env) watchConfig() {
	e.loader.Watch(e.log, func(cfg *config.Config) {
		e.mu.Lock()
		e.export = cfg.Export
		e.mu.Unlock()
		e.log.Info("export settings reloaded",
			zap.String("dir", cfg.Export.Directory),
			zap.String("timezone", cfg.Export.Timezone))
	})
}

func (e *env) exportConfig() config.ExportConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.export
}

// protocol returns the configured protocol or the built-in one.
func (e *env) protocol() (*protocol.Protocol, error) {
	if e.cfg.ProtocolFile == "" {
		return protocol.Default(), nil
	}
	p, err := protocol.Load(e.cfg.ProtocolFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load protocol", err)
	}
	return p, nil
}

// exportResult describes a written export.
type exportResult struct {
	Path string `json:"path"`
	Rows int    `json:"rows"`
}

// exportCSV writes the selected trials. out may be a file path, "-" for w,
// or "" for a generated name in the export directory.
func (e *env) exportCSV(filter archive.Filter, out string, w io.Writer) (exportResult, error) {
	ec := e.exportConfig()
	loc, err := ec.Location()
	if err != nil {
		return exportResult{}, err
	}
	rows := e.archive.Rows(filter)

	if out == "-" {
		if err := archive.WriteCSV(w, rows, loc); err != nil {
			return exportResult{}, err
		}
		return exportResult{Path: "-", Rows: len(rows)}, nil
	}

	if out == "" {
		out = filepath.Join(ec.Directory, archive.ExportFilename(filter.PatientID, e.now()))
	}
	if dir := filepath.Dir(out); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return exportResult{}, fmt.Errorf("create export directory: %w", err)
		}
	}
	f, err := os.Create(out)
	if err != nil {
		return exportResult{}, fmt.Errorf("create export file: %w", err)
	}
	if err := archive.WriteCSV(f, rows, loc); err != nil {
		_ = f.Close()
		return exportResult{}, err
	}
	if err := f.Close(); err != nil {
		return exportResult{}, fmt.Errorf("close export file: %w", err)
	}
	e.log.Info("archive exported",
		zap.String("path", out),
		zap.String("patient", filter.PatientID),
		zap.Int("rows", len(rows)))
	return exportResult{Path: out, Rows: len(rows)}, nil
}

// commandContext returns the command's context, or Background when the
// command runs outside ExecuteContext.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// printReport renders a report in the selected output format.
func (e *env) printReport(opts *RootOptions, cmd *cobra.Command, r fog.Report) error {
	if opts.Format == "json" {
		return opts.formatter(cmd).Success(r)
	}
	loc, err := e.exportConfig().Location()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid export timezone", err)
	}
	writeReport(cmd.OutOrStdout(), r, loc)
	return nil
}
