// Package hosts binds loaded modules to virtual hosts and resolves incoming
// requests to the right host. Binding happens once at startup; the bound
// hosts and the resolver are immutable afterwards.
package hosts

import (
	"context"
	"errors"
	"fmt"

	"github.com/mammothweb/mammoth/internal/config"
	merrors "github.com/mammothweb/mammoth/internal/errors"
	"github.com/mammothweb/mammoth/internal/loader"
	"github.com/mammothweb/mammoth/internal/logging"
	"github.com/mammothweb/mammoth/internal/registry"
)

// BoundHost is a virtual host with its effective, ordered module list
// resolved against the registry.
type BoundHost struct {
	Config   config.HostConfig
	Hostname string // normalized; empty for the catch-all
	Modules  []*loader.LoadedModule
}

// Identity returns the host's log key.
func (bh *BoundHost) Identity() string {
	return bh.Config.Identity()
}

// ModuleNames returns the effective module names in dispatch order.
func (bh *BoundHost) ModuleNames() []string {
	names := make([]string, len(bh.Modules))
	for i, lm := range bh.Modules {
		names[i] = lm.Name()
	}
	return names
}

// Binder computes effective module sets for hosts.
type Binder struct {
	registry *registry.Registry
	logger   logging.Logger
}

// NewBinder creates a binder over the populated registry.
func NewBinder(reg *registry.Registry, logger logging.Logger) *Binder {
	return &Binder{
		registry: reg,
		logger:   logger.WithComponent("hosts"),
	}
}

// Bind resolves one host: the default set is every globally enabled module
// in registration order, then the host's overrides apply in their written
// order. Disabling removes a module from the set; enabling appends one that
// is absent, which is how globally disabled modules are opted in per host.
// Redundant overrides are no-ops and keep positions stable.
//
// An override naming an unknown module yields an error, but the host is
// still returned with every resolvable override applied, so callers may
// choose between failing hard and serving degraded.
func (b *Binder) Bind(hostCfg config.HostConfig) (*BoundHost, error) {
	normalized, err := config.NormalizeHostname(hostCfg.Hostname)
	if err != nil {
		return nil, fmt.Errorf("host %s: %w", hostCfg.Identity(), err)
	}

	var effective []*loader.LoadedModule
	for _, lm := range b.registry.All() {
		if lm.Config.IsEnabled() {
			effective = append(effective, lm)
		}
	}

	var unknown []error
	for _, ref := range hostCfg.Modules {
		lm, ok := b.registry.Lookup(ref.Name)
		if !ok {
			unknown = append(unknown, merrors.UnknownModule(hostCfg.Identity(), ref.Name))
			continue
		}

		if ref.IsEnabled() {
			if indexOf(effective, ref.Name) < 0 {
				effective = append(effective, lm)
			}
		} else {
			if i := indexOf(effective, ref.Name); i >= 0 {
				effective = append(effective[:i], effective[i+1:]...)
			}
		}
	}

	bound := &BoundHost{
		Config:   hostCfg,
		Hostname: normalized,
		Modules:  effective,
	}
	return bound, errors.Join(unknown...)
}

// BindAll binds every host, logging failures and keeping the partial
// results. A host whose overrides could not fully resolve still serves
// with what it has; an empty module set degrades the host to static
// serving and 404s rather than taking it down.
func (b *Binder) BindAll(ctx context.Context, hostCfgs []config.HostConfig) []*BoundHost {
	bound := make([]*BoundHost, 0, len(hostCfgs))

	for _, hostCfg := range hostCfgs {
		bh, err := b.Bind(hostCfg)
		if err != nil {
			if bh == nil {
				b.logger.Error(ctx, err, "host cannot be bound, skipping",
					"host", hostCfg.Identity())
				continue
			}
			b.logger.Error(ctx, err, "host bound with missing modules",
				"host", hostCfg.Identity(),
				"modules", bh.ModuleNames())
		}
		if len(bh.Modules) == 0 {
			b.logger.Warn(ctx, nil, "host has no modules, serving static only",
				"host", hostCfg.Identity())
		}
		bound = append(bound, bh)
	}

	return bound
}

// indexOf finds a module by name in the effective slice.
func indexOf(modules []*loader.LoadedModule, name string) int {
	for i, lm := range modules {
		if lm.Name() == name {
			return i
		}
	}
	return -1
}
