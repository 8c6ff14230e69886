package hosts

import (
	"fmt"

	"github.com/mammothweb/mammoth/internal/config"
)

// Resolver maps (hostname, port) to a bound host. Exact hostname matches
// win; a host declared without a hostname is the catch-all for its port.
// The tables are built once and never written again.
type Resolver struct {
	exact    map[hostKey]*BoundHost
	catchAll map[int]*BoundHost
}

type hostKey struct {
	hostname string
	port     int
}

// NewResolver indexes the bound hosts. Two hosts with the same identity is
// a configuration bug that validation already rejects; seeing one here is
// an error rather than a silent overwrite.
func NewResolver(bound []*BoundHost) (*Resolver, error) {
	r := &Resolver{
		exact:    make(map[hostKey]*BoundHost),
		catchAll: make(map[int]*BoundHost),
	}

	for _, bh := range bound {
		port := bh.Config.Listen.Port
		if bh.Hostname == "" {
			if _, dup := r.catchAll[port]; dup {
				return nil, fmt.Errorf("duplicate catch-all host on port %d", port)
			}
			r.catchAll[port] = bh
			continue
		}

		key := hostKey{hostname: bh.Hostname, port: port}
		if _, dup := r.exact[key]; dup {
			return nil, fmt.Errorf("duplicate host %s", bh.Identity())
		}
		r.exact[key] = bh
	}

	return r, nil
}

// Resolve finds the host serving hostname on port. The incoming name is
// normalized the same way declared hostnames were, so case and IDNA form
// never affect matching. A miss falls back to the port's catch-all host;
// with no catch-all the request has no host and the caller answers 404.
func (r *Resolver) Resolve(hostname string, port int) (*BoundHost, bool) {
	normalized, err := config.NormalizeHostname(hostname)
	if err != nil {
		// Unparseable names can still reach the catch-all.
		normalized = ""
	}

	if normalized != "" {
		if bh, ok := r.exact[hostKey{hostname: normalized, port: port}]; ok {
			return bh, true
		}
	}

	bh, ok := r.catchAll[port]
	return bh, ok
}

// Hosts returns every bound host known to the resolver, exact entries
// first. Order within each class is unspecified; this is for diagnostics.
func (r *Resolver) Hosts() []*BoundHost {
	out := make([]*BoundHost, 0, len(r.exact)+len(r.catchAll))
	for _, bh := range r.exact {
		out = append(out, bh)
	}
	for _, bh := range r.catchAll {
		out = append(out, bh)
	}
	return out
}
