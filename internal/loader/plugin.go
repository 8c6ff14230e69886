package loader

import (
	"plugin"
)

// library is the narrow slice of the platform loader the pipeline needs.
// Tests substitute their own implementation; production code goes through
// the plugin package below.
type library interface {
	Lookup(symbol string) (any, error)
}

// openFunc opens a dynamic library at path. The default is openPlugin;
// tests swap in fakes so loading logic is exercised without compiled
// artifacts.
type openFunc func(path string) (library, error)

type pluginLibrary struct {
	plugin *plugin.Plugin
}

func (pl pluginLibrary) Lookup(symbol string) (any, error) {
	return pl.plugin.Lookup(symbol)
}

// openPlugin loads a compiled module through the runtime's plugin support.
// On platforms without plugin support the open itself reports it.
func openPlugin(path string) (library, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	return pluginLibrary{plugin: p}, nil
}
