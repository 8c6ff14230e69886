package registry

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mammothweb/mammoth/internal/config"
	merrors "github.com/mammothweb/mammoth/internal/errors"
	"github.com/mammothweb/mammoth/internal/loader"
	"github.com/mammothweb/mammoth/internal/logging"
	"github.com/mammothweb/mammoth/module"
)

type stubModule struct {
	shutdowns   *[]string
	name        string
	shutdownErr error
}

func (s *stubModule) Handle(ctx context.Context, req *module.Request) (*module.Response, error) {
	return nil, nil
}

func (s *stubModule) Shutdown(ctx context.Context) error {
	if s.shutdowns != nil {
		*s.shutdowns = append(*s.shutdowns, s.name)
	}
	return s.shutdownErr
}

type inertModule struct{}

func (inertModule) Handle(ctx context.Context, req *module.Request) (*module.Response, error) {
	return nil, nil
}

func entry(name string, instance module.Interface) *loader.LoadedModule {
	return &loader.LoadedModule{
		Config:   config.ModuleConfig{Name: name},
		Path:     "/mods/" + name + ".so",
		Version:  module.Current(),
		Instance: instance,
	}
}

func quietLogger() logging.Logger {
	cfg := logging.DefaultConfig()
	cfg.Output = io.Discard
	return logging.NewLogger(cfg)
}

func TestRegisterAndLookup(t *testing.T) {
	r := New()

	require.NoError(t, r.Register(entry("auth", inertModule{})))
	require.NoError(t, r.Register(entry("metrics", inertModule{})))

	lm, ok := r.Lookup("auth")
	require.True(t, ok)
	assert.Equal(t, "auth", lm.Name())

	_, ok = r.Lookup("ghost")
	assert.False(t, ok)

	assert.Equal(t, 2, r.Len())
}

func TestRegisterDuplicateLeavesRegistryUnchanged(t *testing.T) {
	r := New()

	first := entry("auth", inertModule{})
	second := entry("auth", inertModule{})

	require.NoError(t, r.Register(first))

	err := r.Register(second)
	require.Error(t, err)
	assert.True(t, merrors.IsKind(err, merrors.KindDuplicateName))

	// The first registration stays visible and the order is untouched.
	got, ok := r.Lookup("auth")
	require.True(t, ok)
	assert.Same(t, first, got)
	assert.Equal(t, []string{"auth"}, r.Names())
	assert.Equal(t, 1, r.Len())
}

func TestAllPreservesRegistrationOrder(t *testing.T) {
	r := New()

	names := []string{"zeta", "alpha", "mid"}
	for _, name := range names {
		require.NoError(t, r.Register(entry(name, inertModule{})))
	}

	var got []string
	for _, lm := range r.All() {
		got = append(got, lm.Name())
	}
	assert.Equal(t, names, got)
	assert.Equal(t, names, r.Names())
}

func TestShutdownReverseOrder(t *testing.T) {
	r := New()
	var order []string

	require.NoError(t, r.Register(entry("first", &stubModule{name: "first", shutdowns: &order})))
	require.NoError(t, r.Register(entry("plain", inertModule{})))
	require.NoError(t, r.Register(entry("last", &stubModule{name: "last", shutdowns: &order})))

	require.NoError(t, r.Shutdown(context.Background(), quietLogger()))
	assert.Equal(t, []string{"last", "first"}, order)
}

func TestShutdownCollectsFailuresButVisitsAll(t *testing.T) {
	r := New()
	var order []string

	require.NoError(t, r.Register(entry("ok", &stubModule{name: "ok", shutdowns: &order})))
	require.NoError(t, r.Register(entry("bad", &stubModule{
		name:        "bad",
		shutdowns:   &order,
		shutdownErr: fmt.Errorf("flush failed"),
	})))

	err := r.Shutdown(context.Background(), quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush failed")
	assert.Equal(t, []string{"bad", "ok"}, order, "a failure must not skip the rest")
}
