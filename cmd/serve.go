package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mammothweb/mammoth/internal/config"
	merrors "github.com/mammothweb/mammoth/internal/errors"
	"github.com/mammothweb/mammoth/internal/hosts"
	"github.com/mammothweb/mammoth/internal/loader"
	"github.com/mammothweb/mammoth/internal/logging"
	"github.com/mammothweb/mammoth/internal/registry"
	"github.com/mammothweb/mammoth/internal/server"
	"github.com/mammothweb/mammoth/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load modules and serve all configured hosts",
	Long: `Load every declared module, bind the configured hosts, and serve them
until interrupted.

Modules load exactly once, before the first listener opens. A module that
fails to load is reported and skipped; hosts referencing it keep serving
with whatever modules remain, or fall back to their static directory.

Changes to module libraries or the configuration file after startup are
reported in the log but take effect only on restart.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Bool("no-watch", false, "Don't report file changes after startup")
	viper.BindPFlag("no-watch", serveCmd.Flags().Lookup("no-watch"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	logger, closeLogs, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLogs()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// File-level findings are reported but do not stop startup: a missing
	// library fails that one module at load time, which is the shape of
	// degradation the rest of the system already handles.
	reportFileFindings(ctx, cfg, logger)

	reg := loadModules(ctx, cfg, logger)

	binder := hosts.NewBinder(reg, logger)
	bound := binder.BindAll(ctx, cfg.Hosts)
	resolver, err := hosts.NewResolver(bound)
	if err != nil {
		return fmt.Errorf("host table: %w", err)
	}

	srv := server.New(cfg, resolver, logger)

	if !viper.GetBool("no-watch") {
		startWatcher(ctx, cfg, logger)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info(ctx, "signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	fmt.Printf("Serving %d host(s) on port(s) %v with %d module(s)\n",
		len(bound), cfg.Ports(), reg.Len())

	serveErr := srv.Start(ctx)

	// Listeners are down; give modules their shutdown hooks.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := reg.Shutdown(shutdownCtx, logger); err != nil {
		logger.Error(shutdownCtx, err, "module shutdown reported errors")
	}

	if serveErr != nil {
		return fmt.Errorf("server error: %w", serveErr)
	}
	return nil
}

// buildLogger assembles the host logger from the configuration: a console
// logger always, plus the configured log file when one is set. The returned
// cleanup closes the file.
func buildLogger(cfg *config.Config) (logging.Logger, func(), error) {
	severity := cfg.Mammoth.LogSeverity
	if flagLevel := viper.GetString("log-level"); flagLevel != "" {
		parsed, err := merrors.ParseSeverity(flagLevel)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", flagLevel, err)
		}
		severity = parsed
	}

	consoleCfg := logging.DefaultConfig()
	consoleCfg.Level = logging.LevelFromSeverity(severity)

	var logger logging.Logger = logging.NewLogger(consoleCfg)
	cleanup := func() {}

	if cfg.Mammoth.LogFile != "" {
		fileLogger, err := logging.NewFileLogger(cfg.Mammoth.LogFile, consoleCfg.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("log file: %w", err)
		}
		logger = logging.NewMultiLogger(logger, fileLogger)
		cleanup = func() { fileLogger.Close() }
	}

	return logger, cleanup, nil
}

// reportFileFindings runs the filesystem checks and logs each finding at
// its own severity.
func reportFileFindings(ctx context.Context, cfg *config.Config, logger logging.Logger) {
	collector := merrors.NewCollector()
	cfg.ValidateFiles(collector)

	for _, event := range collector.Events() {
		switch {
		case event.Severity >= merrors.SeverityError:
			logger.Error(ctx, event.Err, event.Message, "scope", event.Scope)
		case event.Severity == merrors.SeverityWarning:
			logger.Warn(ctx, event.Err, event.Message, "scope", event.Scope)
		default:
			logger.Info(ctx, event.Message, "scope", event.Scope)
		}
	}
}

// loadModules loads every declared module and registers the survivors.
func loadModules(ctx context.Context, cfg *config.Config, logger logging.Logger) *registry.Registry {
	perf := logging.StartOperation(logger, "load_modules")

	ld := loader.New(cfg.Mammoth.ModsDir, logger, logger.Slog())
	loaded, failures := ld.LoadAll(ctx, cfg.Modules)

	reg := registry.New()
	for _, lm := range loaded {
		if err := reg.Register(lm); err != nil {
			logger.Error(ctx, err, "module not registered", "module", lm.Name())
		}
	}

	if len(failures) > 0 {
		perf.EndWithError(ctx, fmt.Errorf("%d of %d modules failed to load",
			len(failures), len(cfg.Modules)))
	} else {
		perf.End(ctx)
	}
	return reg
}

// startWatcher begins reporting post-startup drift between disk and the
// running process. Failures here degrade to serving without notices.
func startWatcher(ctx context.Context, cfg *config.Config, logger logging.Logger) {
	fw, err := watcher.New(500*time.Millisecond, logger)
	if err != nil {
		logger.Warn(ctx, err, "file change notices disabled")
		return
	}

	watching := 0
	configFile := viper.ConfigFileUsed()
	if configFile != "" {
		if err := fw.AddPath(configFile); err != nil {
			logger.Warn(ctx, err, "cannot watch configuration file")
			configFile = ""
		} else {
			watching++
		}
	}
	if cfg.Mammoth.ModsDir != "" {
		if err := fw.AddPath(cfg.Mammoth.ModsDir); err != nil {
			logger.Warn(ctx, err, "cannot watch module directory")
		} else {
			watching++
		}
	}
	if watching == 0 {
		fw.Stop()
		return
	}

	isConfig := func(string) bool { return false }
	if configFile != "" {
		isConfig = watcher.ExactFilter(configFile)
	}
	fw.AddFilter(func(path string) bool {
		return watcher.LibraryFilter(path) || isConfig(path)
	})
	fw.AddHandler(watcher.RestartNotices(logger))

	fw.Start(ctx)
	go func() {
		<-ctx.Done()
		fw.Stop()
	}()
}
