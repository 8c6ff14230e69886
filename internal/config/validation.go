package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"golang.org/x/net/idna"

	merrors "github.com/mammothweb/mammoth/internal/errors"
)

var (
	// ErrNoHosts: a configuration without hosts has nothing to serve.
	ErrNoHosts = errors.New("no host declared")

	// ErrNoModsDir: modules rely on mods_dir unless every one of them has an
	// explicit location.
	ErrNoModsDir = errors.New("modules declared but mammoth.mods_dir is not set")
)

// NormalizeHostname brings a hostname into its comparable form: IP literals
// are canonicalized, names are case-folded and IDNA-encoded. The empty
// string passes through, standing for the catch-all host.
func NormalizeHostname(hostname string) (string, error) {
	trimmed := strings.TrimSpace(hostname)
	if trimmed == "" {
		return "", nil
	}

	if ip := net.ParseIP(trimmed); ip != nil {
		return ip.String(), nil
	}

	ascii, err := idna.Lookup.ToASCII(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid hostname %q: %w", hostname, err)
	}
	return ascii, nil
}

// validateConfig runs the structural checks and condenses the findings into
// a single error for Load. Callers that want the full report use Validate
// with their own collector.
func validateConfig(config *Config, collector *merrors.Collector) error {
	config.Validate(collector)

	if !collector.HasErrors() {
		return nil
	}

	for _, ev := range collector.Events() {
		if ev.Severity >= merrors.SeverityError {
			return fmt.Errorf("%s", ev.String())
		}
	}
	return nil
}

// Validate records every structural problem with the configuration into the
// collector. It never touches the filesystem; see ValidateFiles.
func (c *Config) Validate(collector *merrors.Collector) {
	if len(c.Hosts) == 0 {
		collector.AddError("config", ErrNoHosts)
	}

	declared := c.validateModules(collector)
	c.validateHosts(collector, declared)
}

// validateModules checks the [[mod]] list and returns the set of declared
// names for the host override checks.
func (c *Config) validateModules(collector *merrors.Collector) map[string]bool {
	declared := make(map[string]bool, len(c.Modules))
	needsModsDir := false

	for i, mod := range c.Modules {
		scope := fmt.Sprintf("mod %q", mod.Name)

		if mod.Name == "" {
			collector.Addf(merrors.SeverityError, "config",
				"mod entry %d has no name", i)
			continue
		}
		if declared[mod.Name] {
			collector.AddError(scope, merrors.DuplicateName(mod.Name))
			continue
		}
		declared[mod.Name] = true

		if mod.Location == "" {
			needsModsDir = true
		}
	}

	if needsModsDir && c.Mammoth.ModsDir == "" {
		collector.AddError("config", ErrNoModsDir)
	}

	return declared
}

// validateHosts checks each [[host]] entry, duplicate host identities, and
// agreement between hosts sharing a listener.
func (c *Config) validateHosts(collector *merrors.Collector, declared map[string]bool) {
	identities := make(map[string]bool, len(c.Hosts))
	portSecure := make(map[int]bool, len(c.Hosts))

	for _, host := range c.Hosts {
		scope := fmt.Sprintf("host %s", host.Identity())

		normalized, err := NormalizeHostname(host.Hostname)
		if err != nil {
			collector.AddError(scope, err)
			normalized = host.Hostname
		}

		identity := fmt.Sprintf("%s:%d", normalized, host.Listen.Port)
		if identities[identity] {
			collector.Addf(merrors.SeverityError, scope,
				"duplicate host for %s", host.Identity())
		}
		identities[identity] = true

		// Hosts sharing a port share one listener, so they must agree on
		// whether it speaks TLS.
		port := host.Listen.Port
		if secure, seen := portSecure[port]; seen && secure != host.Listen.IsSecure() {
			collector.Addf(merrors.SeverityError, scope,
				"hosts on port %d mix plain and TLS listeners", port)
		} else if !seen {
			portSecure[port] = host.Listen.IsSecure()
		}

		validateBinding(collector, scope, host.Listen)
		validateOverrides(collector, host, declared)
	}
}

// validateBinding checks a listen table in isolation.
func validateBinding(collector *merrors.Collector, scope string, binding Binding) {
	if binding.Port < 1 || binding.Port > 65535 {
		collector.Addf(merrors.SeverityError, scope,
			"port %d is not in valid range 1-65535", binding.Port)
	}

	hasCert := binding.Cert != ""
	hasKey := binding.Key != ""
	if hasCert != hasKey {
		collector.Addf(merrors.SeverityError, scope,
			"cert and key must be configured together")
	}
	if binding.IsSecure() && (!hasCert || !hasKey) {
		collector.Addf(merrors.SeverityError, scope,
			"secure binding without cert and key")
	}
	if !binding.IsSecure() && hasCert && hasKey {
		collector.Addf(merrors.SeverityWarning, scope,
			"cert and key configured but secure = false; material is unused")
	}

	if binding.MaxConns < 0 {
		collector.Addf(merrors.SeverityError, scope,
			"max_conns must not be negative")
	}
}

// validateOverrides checks the host's [[host.mod]] references against the
// declared module names.
func validateOverrides(collector *merrors.Collector, host HostConfig, declared map[string]bool) {
	scope := fmt.Sprintf("host %s", host.Identity())
	seen := make(map[string]bool, len(host.Modules))

	for _, ref := range host.Modules {
		if ref.Name == "" {
			collector.Addf(merrors.SeverityError, scope, "mod override has no name")
			continue
		}
		if !declared[ref.Name] {
			collector.AddError(scope, merrors.UnknownModule(host.Identity(), ref.Name))
			continue
		}
		if seen[ref.Name] {
			collector.Addf(merrors.SeverityWarning, scope,
				"module %q overridden more than once; later entries win", ref.Name)
		}
		seen[ref.Name] = true
	}
}

// ValidateFiles records problems with the paths the configuration points
// at: the module directory, module libraries, static directories, and TLS
// material. Split from Validate so unit tests and dry parsing stay off the
// filesystem.
func (c *Config) ValidateFiles(collector *merrors.Collector) {
	if c.Mammoth.ModsDir != "" {
		requireDir(collector, "config", "mods_dir", c.Mammoth.ModsDir)
	}

	for _, mod := range c.Modules {
		if mod.Name == "" {
			continue
		}
		scope := fmt.Sprintf("mod %q", mod.Name)
		path := mod.Path(c.Mammoth.ModsDir)
		if info, err := os.Stat(path); err != nil {
			collector.AddError(scope, merrors.NotFound(mod.Name, path))
		} else if info.IsDir() {
			collector.Addf(merrors.SeverityError, scope, "%s is a directory", path)
		}
	}

	for _, host := range c.Hosts {
		scope := fmt.Sprintf("host %s", host.Identity())

		if host.StaticDir != "" {
			requireDir(collector, scope, "static_dir", host.StaticDir)
		}

		binding := host.Listen
		if binding.Cert != "" && binding.Key != "" {
			if _, err := tls.LoadX509KeyPair(binding.Cert, binding.Key); err != nil {
				collector.Addf(merrors.SeverityError, scope,
					"cannot load TLS key pair: %v", err)
			}
		}
	}
}

// requireDir records an error unless path names an existing directory.
func requireDir(collector *merrors.Collector, scope, field, path string) {
	info, err := os.Stat(path)
	if err != nil {
		collector.Addf(merrors.SeverityError, scope, "%s %q: %v", field, path, err)
		return
	}
	if !info.IsDir() {
		collector.Addf(merrors.SeverityError, scope, "%s %q is not a directory", field, path)
	}
}
