package hosts

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mammothweb/mammoth/internal/config"
	merrors "github.com/mammothweb/mammoth/internal/errors"
	"github.com/mammothweb/mammoth/internal/loader"
	"github.com/mammothweb/mammoth/internal/logging"
	"github.com/mammothweb/mammoth/internal/registry"
	"github.com/mammothweb/mammoth/module"
)

type inertModule struct{}

func (inertModule) Handle(ctx context.Context, req *module.Request) (*module.Response, error) {
	return nil, nil
}

func loaded(name string, enabled bool) *loader.LoadedModule {
	cfg := config.ModuleConfig{Name: name}
	if !enabled {
		off := false
		cfg.Enabled = &off
	}
	return &loader.LoadedModule{
		Config:   cfg,
		Path:     "/mods/" + name + ".so",
		Version:  module.Current(),
		Instance: inertModule{},
	}
}

func quietLogger() logging.Logger {
	cfg := logging.DefaultConfig()
	cfg.Output = io.Discard
	return logging.NewLogger(cfg)
}

// testBinder registers the given modules in order and returns a binder over
// them. Names prefixed with "-" register as globally disabled.
func testBinder(t *testing.T, names ...string) *Binder {
	t.Helper()

	reg := registry.New()
	for _, name := range names {
		enabled := true
		if name[0] == '-' {
			enabled = false
			name = name[1:]
		}
		require.NoError(t, reg.Register(loaded(name, enabled)))
	}
	return NewBinder(reg, quietLogger())
}

func ref(name string, enabled bool) config.ModuleRef {
	r := config.ModuleRef{Name: name}
	if !enabled {
		off := false
		r.Enabled = &off
	}
	return r
}

func TestBindDefaultSet(t *testing.T) {
	b := testBinder(t, "auth", "-metrics", "cache")

	bh, err := b.Bind(config.HostConfig{Hostname: "example.com", Listen: config.Binding{Port: 8080}})
	require.NoError(t, err)

	assert.Equal(t, "example.com", bh.Hostname)
	assert.Equal(t, []string{"auth", "cache"}, bh.ModuleNames(),
		"globally disabled modules stay out of the default set")
}

func TestBindHostDisableRemoves(t *testing.T) {
	b := testBinder(t, "auth", "cache")

	bh, err := b.Bind(config.HostConfig{
		Listen:  config.Binding{Port: 8080},
		Modules: []config.ModuleRef{ref("auth", false)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"cache"}, bh.ModuleNames())
}

func TestBindHostEnableAppendsDisabled(t *testing.T) {
	b := testBinder(t, "auth", "-metrics")

	bh, err := b.Bind(config.HostConfig{
		Listen:  config.Binding{Port: 8080},
		Modules: []config.ModuleRef{ref("metrics", true)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"auth", "metrics"}, bh.ModuleNames(),
		"host enable opts a globally disabled module in, after the defaults")
}

func TestBindRedundantOverridesAreNoOps(t *testing.T) {
	b := testBinder(t, "auth", "cache")

	t.Run("enable already enabled keeps position", func(t *testing.T) {
		bh, err := b.Bind(config.HostConfig{
			Listen:  config.Binding{Port: 8080},
			Modules: []config.ModuleRef{ref("auth", true)},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"auth", "cache"}, bh.ModuleNames())
	})

	t.Run("disable absent module", func(t *testing.T) {
		b := testBinder(t, "auth", "-metrics")
		bh, err := b.Bind(config.HostConfig{
			Listen:  config.Binding{Port: 8080},
			Modules: []config.ModuleRef{ref("metrics", false)},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"auth"}, bh.ModuleNames())
	})
}

func TestBindOverridesApplyInOrder(t *testing.T) {
	b := testBinder(t, "auth", "cache")

	bh, err := b.Bind(config.HostConfig{
		Listen: config.Binding{Port: 8080},
		Modules: []config.ModuleRef{
			ref("auth", false),
			ref("auth", true), // re-enabled after removal: appended at the end
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"cache", "auth"}, bh.ModuleNames())
}

func TestBindUnknownModule(t *testing.T) {
	b := testBinder(t, "auth")

	bh, err := b.Bind(config.HostConfig{
		Hostname: "example.com",
		Listen:   config.Binding{Port: 8080},
		Modules: []config.ModuleRef{
			ref("ghost", true),
			ref("auth", false),
		},
	})

	require.Error(t, err)
	assert.True(t, merrors.IsKind(err, merrors.KindUnknownModule))
	assert.Contains(t, err.Error(), "ghost")

	// The partial host still applied every resolvable override.
	require.NotNil(t, bh)
	assert.Empty(t, bh.ModuleNames())
}

func TestBindAllDegradesAndContinues(t *testing.T) {
	b := testBinder(t, "auth")

	bound := b.BindAll(context.Background(), []config.HostConfig{
		{Hostname: "good.example", Listen: config.Binding{Port: 8080}},
		{
			Hostname: "partial.example",
			Listen:   config.Binding{Port: 8080},
			Modules:  []config.ModuleRef{ref("ghost", true)},
		},
	})

	require.Len(t, bound, 2, "a failing override never drops the host")
	assert.Equal(t, []string{"auth"}, bound[0].ModuleNames())
	assert.Equal(t, []string{"auth"}, bound[1].ModuleNames())
}

func TestBindEmptyEffectiveSetSurvives(t *testing.T) {
	b := testBinder(t, "-metrics")

	bound := b.BindAll(context.Background(), []config.HostConfig{
		{Listen: config.Binding{Port: 8080}, StaticDir: "/srv/www"},
	})

	require.Len(t, bound, 1)
	assert.Empty(t, bound[0].Modules)
}

func TestBindNormalizesHostname(t *testing.T) {
	b := testBinder(t, "auth")

	bh, err := b.Bind(config.HostConfig{Hostname: "Example.COM", Listen: config.Binding{Port: 8080}})
	require.NoError(t, err)
	assert.Equal(t, "example.com", bh.Hostname)
}
