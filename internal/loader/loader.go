// Package loader turns declared module configurations into live module
// instances. Loading happens once, sequentially, during startup; a failure
// is fatal to the failing module only and never takes the process down.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mammothweb/mammoth/internal/config"
	merrors "github.com/mammothweb/mammoth/internal/errors"
	"github.com/mammothweb/mammoth/internal/logging"
	"github.com/mammothweb/mammoth/module"
)

// LoadedModule pairs a constructed instance with where it came from. It is
// never partially populated: either every load step succeeded or the module
// does not exist as far as the rest of the system is concerned.
type LoadedModule struct {
	Config   config.ModuleConfig
	Path     string
	Version  module.InterfaceVersion
	Instance module.Interface
}

// Name returns the registry key of the module.
func (lm *LoadedModule) Name() string {
	return lm.Config.Name
}

// Loader drives the load pipeline. Library handles are cached by resolved
// path, so two module declarations pointing at the same file share one
// handle while still constructing separate instances.
type Loader struct {
	modsDir string
	host    module.InterfaceVersion
	logger  logging.Logger
	modLog  *slog.Logger
	open    openFunc
	cache   map[string]library
}

// New creates a loader rooted at modsDir. moduleLog is handed to instances
// implementing the LogSink capability; nil disables injection.
func New(modsDir string, logger logging.Logger, moduleLog *slog.Logger) *Loader {
	return &Loader{
		modsDir: modsDir,
		host:    module.Current(),
		logger:  logger.WithComponent("loader"),
		modLog:  moduleLog,
		open:    openPlugin,
		cache:   make(map[string]library),
	}
}

// Load runs the full pipeline for one declared module: resolve the path,
// open the library, resolve both entry points, check the interface version,
// construct, and validate. Globally disabled modules load like any other;
// the enabled flag only decides which hosts pick the module up by default.
func (l *Loader) Load(ctx context.Context, cfg config.ModuleConfig) (*LoadedModule, error) {
	name := cfg.Name
	path := filepath.Clean(cfg.Path(l.modsDir))

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, merrors.NotFound(name, path)
		}
		return nil, merrors.LoadFailed(name, path, err)
	}

	lib, err := l.handle(path)
	if err != nil {
		return nil, merrors.LoadFailed(name, path, err)
	}

	versionSym, err := lib.Lookup(module.VersionSymbol)
	if err != nil {
		return nil, merrors.MissingEntryPoint(name, path, module.VersionSymbol)
	}
	versionFn, ok := versionSym.(func() string)
	if !ok {
		return nil, merrors.LoadFailed(name, path,
			fmt.Errorf("symbol %s has type %T, want func() string", module.VersionSymbol, versionSym))
	}

	constructSym, err := lib.Lookup(module.ConstructSymbol)
	if err != nil {
		return nil, merrors.MissingEntryPoint(name, path, module.ConstructSymbol)
	}
	constructFn, ok := constructSym.(func(map[string]any) (module.Interface, error))
	if !ok {
		return nil, merrors.LoadFailed(name, path,
			fmt.Errorf("symbol %s has type %T, want func(map[string]any) (module.Interface, error)", module.ConstructSymbol, constructSym))
	}

	found, err := module.ParseVersion(versionFn())
	if err != nil {
		return nil, merrors.LoadFailed(name, path, err)
	}
	if !l.host.Accepts(found) {
		return nil, merrors.VersionMismatch(name, l.host, found)
	}

	instance, err := construct(constructFn, cfg.Config)
	if err != nil {
		return nil, merrors.ConstructionFailed(name, err)
	}

	if sink, ok := instance.(module.LogSink); ok && l.modLog != nil {
		sink.SetLogger(l.modLog.With("module", name))
	}

	if validator, ok := instance.(module.Validator); ok {
		if err := validator.Validate(ctx); err != nil {
			return nil, merrors.ConstructionFailed(name, fmt.Errorf("validation: %w", err))
		}
	}

	l.logger.Info(ctx, "module loaded",
		"module", name,
		"version", found.String(),
		"path", path,
	)

	return &LoadedModule{
		Config:   cfg,
		Path:     path,
		Version:  found,
		Instance: instance,
	}, nil
}

// LoadAll loads every declared module in order. Failures are logged and
// collected; the returned slice holds the modules that made it through.
func (l *Loader) LoadAll(ctx context.Context, cfgs []config.ModuleConfig) ([]*LoadedModule, []error) {
	var loaded []*LoadedModule
	var failures []error

	for _, cfg := range cfgs {
		lm, err := l.Load(ctx, cfg)
		if err != nil {
			l.logger.Error(ctx, err, "module failed to load", "module", cfg.Name)
			failures = append(failures, err)
			continue
		}
		loaded = append(loaded, lm)
	}

	return loaded, failures
}

// handle returns the cached library for path, opening it on first use.
func (l *Loader) handle(path string) (library, error) {
	if lib, ok := l.cache[path]; ok {
		return lib, nil
	}
	lib, err := l.open(path)
	if err != nil {
		return nil, err
	}
	l.cache[path] = lib
	return lib, nil
}

// construct invokes the module constructor, converting panics into plain
// errors so one broken module cannot abort startup.
func construct(fn func(map[string]any) (module.Interface, error), cfg map[string]any) (instance module.Interface, err error) {
	defer func() {
		if r := recover(); r != nil {
			instance = nil
			err = fmt.Errorf("constructor panic: %v", r)
		}
	}()

	instance, err = fn(cfg)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, errors.New("constructor returned nil instance")
	}
	return instance, nil
}
