package hosts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mammothweb/mammoth/internal/config"
)

func boundHost(hostname string, port int) *BoundHost {
	normalized, _ := config.NormalizeHostname(hostname)
	return &BoundHost{
		Config:   config.HostConfig{Hostname: hostname, Listen: config.Binding{Port: port}},
		Hostname: normalized,
	}
}

func TestResolveExactBeforeCatchAll(t *testing.T) {
	local := boundHost("localhost", 8080)
	anyHost := boundHost("", 8080)

	r, err := NewResolver([]*BoundHost{local, anyHost})
	require.NoError(t, err)

	got, ok := r.Resolve("localhost", 8080)
	require.True(t, ok)
	assert.Same(t, local, got)

	got, ok = r.Resolve("example.com", 8080)
	require.True(t, ok)
	assert.Same(t, anyHost, got, "unmatched names fall to the catch-all")
}

func TestResolveNoCatchAll(t *testing.T) {
	r, err := NewResolver([]*BoundHost{boundHost("localhost", 8080)})
	require.NoError(t, err)

	_, ok := r.Resolve("example.com", 8080)
	assert.False(t, ok, "localhost must not match example.com")

	got, ok := r.Resolve("LOCALHOST", 8080)
	require.True(t, ok, "matching ignores case")
	assert.Equal(t, "localhost", got.Hostname)
}

func TestResolvePortsAreIsolated(t *testing.T) {
	on8080 := boundHost("example.com", 8080)
	on9090 := boundHost("example.com", 9090)
	catchAll9090 := boundHost("", 9090)

	r, err := NewResolver([]*BoundHost{on8080, on9090, catchAll9090})
	require.NoError(t, err)

	got, ok := r.Resolve("example.com", 8080)
	require.True(t, ok)
	assert.Same(t, on8080, got)

	got, ok = r.Resolve("example.com", 9090)
	require.True(t, ok)
	assert.Same(t, on9090, got)

	_, ok = r.Resolve("other.example", 8080)
	assert.False(t, ok, "no catch-all on 8080")

	got, ok = r.Resolve("other.example", 9090)
	require.True(t, ok)
	assert.Same(t, catchAll9090, got)
}

func TestResolveIDNAForms(t *testing.T) {
	punycoded := boundHost("bücher.example", 8080)

	r, err := NewResolver([]*BoundHost{punycoded})
	require.NoError(t, err)

	got, ok := r.Resolve("xn--bcher-kva.example", 8080)
	require.True(t, ok, "the encoded form names the same host")
	assert.Same(t, punycoded, got)

	got, ok = r.Resolve("BÜCHER.example", 8080)
	require.True(t, ok)
	assert.Same(t, punycoded, got)
}

func TestResolveGarbageHostname(t *testing.T) {
	anyHost := boundHost("", 8080)
	r, err := NewResolver([]*BoundHost{anyHost, boundHost("localhost", 8080)})
	require.NoError(t, err)

	got, ok := r.Resolve("bad_host\x00name", 8080)
	require.True(t, ok, "unparseable names still reach the catch-all")
	assert.Same(t, anyHost, got)
}

func TestNewResolverRejectsDuplicates(t *testing.T) {
	t.Run("duplicate exact", func(t *testing.T) {
		_, err := NewResolver([]*BoundHost{
			boundHost("localhost", 8080),
			boundHost("localhost", 8080),
		})
		assert.Error(t, err)
	})

	t.Run("duplicate catch-all", func(t *testing.T) {
		_, err := NewResolver([]*BoundHost{
			boundHost("", 8080),
			boundHost("", 8080),
		})
		assert.Error(t, err)
	})

	t.Run("same name different ports is fine", func(t *testing.T) {
		_, err := NewResolver([]*BoundHost{
			boundHost("localhost", 8080),
			boundHost("localhost", 9090),
		})
		assert.NoError(t, err)
	})
}
