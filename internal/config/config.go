// Package config provides configuration management for the mammoth host
// using Viper for flexible configuration loading from files, environment
// variables, and command-line flags.
//
// The configuration system reads TOML files, supports environment variable
// overrides with the MAMMOTH_ prefix, and validates the result before any
// module is touched. It describes three things: the [mammoth] section
// (module directory, log sink), the [[mod]] list of loadable modules, and
// the [[host]] list of virtual hosts with their listen bindings and
// per-host module overrides.
package config

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	merrors "github.com/mammothweb/mammoth/internal/errors"
)

type Config struct {
	Mammoth     MammothConfig  `mapstructure:"mammoth"`
	Hosts       []HostConfig   `mapstructure:"host"`
	Modules     []ModuleConfig `mapstructure:"mod"`
	Environment map[string]any `mapstructure:"environment"`
}

// MammothConfig is the [mammoth] section: process-wide settings.
type MammothConfig struct {
	ModsDir     string           `mapstructure:"mods_dir"`
	LogFile     string           `mapstructure:"log_file"`
	LogSeverity merrors.Severity `mapstructure:"log_severity"`
}

// ModuleConfig declares one loadable module. Name is the registry key;
// Location overrides the default path under mods_dir; Config is handed to
// the module constructor verbatim.
type ModuleConfig struct {
	Name     string         `mapstructure:"name"`
	Location string         `mapstructure:"location"`
	Enabled  *bool          `mapstructure:"enabled"`
	Config   map[string]any `mapstructure:"config"`
}

// IsEnabled reports the effective enabled flag; absent means true.
func (m ModuleConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// HostConfig declares one virtual host. An empty Hostname makes the host
// the catch-all for its port.
type HostConfig struct {
	Hostname  string      `mapstructure:"hostname"`
	Listen    Binding     `mapstructure:"listen"`
	StaticDir string      `mapstructure:"static_dir"`
	Modules   []ModuleRef `mapstructure:"mod"`
}

// IsCatchAll reports whether the host accepts any hostname on its port.
func (h HostConfig) IsCatchAll() bool {
	return h.Hostname == ""
}

// Identity returns the host's log and duplicate-detection key.
func (h HostConfig) Identity() string {
	name := h.Hostname
	if name == "" {
		name = "*"
	}
	return fmt.Sprintf("%s:%d", name, h.Listen.Port)
}

// ModuleRef is a per-host override entry referencing a declared module by
// name. Absent Enabled means true, so listing a module under a host is
// enough to opt it in.
type ModuleRef struct {
	Name    string `mapstructure:"name"`
	Enabled *bool  `mapstructure:"enabled"`
}

// IsEnabled reports the effective enabled flag; absent means true.
func (r ModuleRef) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// Binding describes a listen socket. In TOML it is written either as a bare
// port number or as a table:
//
//	listen = 8080
//	listen = { port = 8443, cert = "tls/cert.pem", key = "tls/key.pem" }
type Binding struct {
	Port     int    `mapstructure:"port"`
	Secure   *bool  `mapstructure:"secure"`
	Cert     string `mapstructure:"cert"`
	Key      string `mapstructure:"key"`
	MaxConns int    `mapstructure:"max_conns"`
}

// IsSecure reports whether the binding should terminate TLS. An explicit
// secure flag wins; otherwise the presence of both cert and key decides.
func (b Binding) IsSecure() bool {
	if b.Secure != nil {
		return *b.Secure
	}
	return b.Cert != "" && b.Key != ""
}

// Addr returns the listen address for net.Listen.
func (b Binding) Addr() string {
	return fmt.Sprintf(":%d", b.Port)
}

// Load reads the configuration through the package-global viper instance,
// which the CLI has already pointed at a config file and the environment.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom unmarshals and validates the configuration held by v. Tests use
// this with a private viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	config, err := Parse(v)
	if err != nil {
		return nil, err
	}

	// Validate configuration values
	collector := merrors.NewCollector()
	if err := validateConfig(config, collector); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Parse unmarshals without validating. The validate command uses this to
// run its own collectors over the result and report every finding instead
// of stopping at the first.
func Parse(v *viper.Viper) (*Config, error) {
	v.SetDefault("mammoth.log_severity", "information")

	var config Config
	if err := v.Unmarshal(&config, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return &config, nil
}

// decodeHooks returns the decode hooks bridging TOML shapes onto the typed
// configuration: bare-integer listen bindings and severity names.
func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		bindingDecodeHook(),
		severityDecodeHook(),
	)
}

// Module returns the declared module with the given name.
func (c *Config) Module(name string) (ModuleConfig, bool) {
	for _, mod := range c.Modules {
		if mod.Name == name {
			return mod, true
		}
	}
	return ModuleConfig{}, false
}

// Ports returns the distinct listen ports across all hosts, in first-seen
// order.
func (c *Config) Ports() []int {
	seen := make(map[int]bool)
	var ports []int
	for _, host := range c.Hosts {
		if !seen[host.Listen.Port] {
			seen[host.Listen.Port] = true
			ports = append(ports, host.Listen.Port)
		}
	}
	return ports
}
