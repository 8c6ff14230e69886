// Package registry holds the loaded modules by name. All writes happen
// during single-threaded startup, before any listener accepts traffic;
// afterwards the registry is read-only. That contract is what lets lookups
// run lock-free on the request path.
package registry

import (
	"context"
	"errors"
	"fmt"

	merrors "github.com/mammothweb/mammoth/internal/errors"
	"github.com/mammothweb/mammoth/internal/loader"
	"github.com/mammothweb/mammoth/internal/logging"
	"github.com/mammothweb/mammoth/module"
)

// Registry maps module names to loaded modules, remembering registration
// order for diagnostics output.
type Registry struct {
	byName map[string]*loader.LoadedModule
	order  []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byName: make(map[string]*loader.LoadedModule),
	}
}

// Register adds a loaded module under its name. A name can be registered at
// most once; on conflict the registry is left unchanged and the first
// registration stays visible.
func (r *Registry) Register(lm *loader.LoadedModule) error {
	name := lm.Name()
	if _, exists := r.byName[name]; exists {
		return merrors.DuplicateName(name)
	}
	r.byName[name] = lm
	r.order = append(r.order, name)
	return nil
}

// Lookup returns the module registered under name.
func (r *Registry) Lookup(name string) (*loader.LoadedModule, bool) {
	lm, ok := r.byName[name]
	return lm, ok
}

// All returns the modules in registration order.
func (r *Registry) All() []*loader.LoadedModule {
	out := make([]*loader.LoadedModule, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	return len(r.order)
}

// Shutdown walks the modules in reverse registration order and gives each
// one implementing the Shutdowner capability a chance to clean up. Failures
// are logged and collected; every module gets its turn.
func (r *Registry) Shutdown(ctx context.Context, logger logging.Logger) error {
	var errs []error

	for i := len(r.order) - 1; i >= 0; i-- {
		lm := r.byName[r.order[i]]
		down, ok := lm.Instance.(module.Shutdowner)
		if !ok {
			continue
		}
		if err := down.Shutdown(ctx); err != nil {
			logger.Error(ctx, err, "module shutdown failed", "module", lm.Name())
			errs = append(errs, fmt.Errorf("module %q: shutdown: %w", lm.Name(), err))
		}
	}

	return errors.Join(errs...)
}
