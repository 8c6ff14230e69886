package module

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    InterfaceVersion
		wantErr bool
	}{
		{name: "plain", input: "1.2.3", want: InterfaceVersion{1, 2, 3}},
		{name: "v prefix", input: "v1.0.0", want: InterfaceVersion{1, 0, 0}},
		{name: "surrounding space", input: " 2.10.0 ", want: InterfaceVersion{2, 10, 0}},
		{name: "zero", input: "0.0.0", want: InterfaceVersion{0, 0, 0}},
		{name: "missing patch", input: "1.2", wantErr: true},
		{name: "extra component", input: "1.2.3.4", wantErr: true},
		{name: "non numeric", input: "1.two.3", wantErr: true},
		{name: "negative", input: "1.-2.3", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "prerelease suffix", input: "1.2.3-beta", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVersion(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInterfaceVersionString(t *testing.T) {
	assert.Equal(t, "1.0.0", InterfaceVersion{1, 0, 0}.String())
	assert.Equal(t, "0.12.4", InterfaceVersion{0, 12, 4}.String())
}

func TestAcceptsBoundaries(t *testing.T) {
	host := InterfaceVersion{Major: 2, Minor: 3, Patch: 1}

	tests := []struct {
		name string
		mod  InterfaceVersion
		want bool
	}{
		{name: "identical", mod: InterfaceVersion{2, 3, 1}, want: true},
		{name: "equal minor different patch", mod: InterfaceVersion{2, 3, 9}, want: true},
		{name: "older minor", mod: InterfaceVersion{2, 0, 0}, want: true},
		{name: "minor one below", mod: InterfaceVersion{2, 2, 0}, want: true},
		{name: "minor one above", mod: InterfaceVersion{2, 4, 0}, want: false},
		{name: "major above", mod: InterfaceVersion{3, 0, 0}, want: false},
		{name: "major below", mod: InterfaceVersion{1, 3, 0}, want: false},
		{name: "major below high minor", mod: InterfaceVersion{1, 99, 0}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, host.Accepts(tt.mod))
		})
	}
}

// The patch component must never influence the decision, in either direction.
func TestAcceptsIgnoresPatch(t *testing.T) {
	host := InterfaceVersion{Major: 1, Minor: 1, Patch: 0}

	assert.True(t, host.Accepts(InterfaceVersion{1, 1, 42}))
	assert.True(t, host.Accepts(InterfaceVersion{1, 0, 999}))
	assert.False(t, host.Accepts(InterfaceVersion{1, 2, 0}))
}

func TestCurrentRoundTrips(t *testing.T) {
	parsed, err := ParseVersion(Current().String())
	require.NoError(t, err)
	assert.Equal(t, Current(), parsed)
	assert.True(t, Current().Accepts(Current()))
}
