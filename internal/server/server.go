// Package server owns the HTTP listeners. One listener is opened per
// configured port; hosts that declare the same port share it and are told
// apart by the Host header. The server never touches module state after
// startup, so dispatch runs without locks.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"github.com/mammothweb/mammoth/internal/config"
	"github.com/mammothweb/mammoth/internal/hosts"
	"github.com/mammothweb/mammoth/internal/logging"
)

// shutdownGrace bounds how long a cancelled Start waits for in-flight
// requests before giving up on them.
const shutdownGrace = 10 * time.Second

// Server serves every configured host. Start blocks until the context is
// cancelled or a listener fails; Shutdown drains in-flight requests.
type Server struct {
	cfg      *config.Config
	resolver *hosts.Resolver
	logger   logging.Logger

	// static holds one file handler per host that declared a static_dir,
	// built up front so dispatch never allocates per request.
	static map[*hosts.BoundHost]http.Handler

	mu      sync.Mutex
	servers map[int]*http.Server
	addrs   map[int]string

	shutdownOnce sync.Once
}

// New builds a server over already-bound hosts. The resolver decides which
// host answers a request; cfg supplies the listener settings per port.
func New(cfg *config.Config, resolver *hosts.Resolver, logger logging.Logger) *Server {
	static := make(map[*hosts.BoundHost]http.Handler)
	for _, bh := range resolver.Hosts() {
		if dir := bh.Config.StaticDir; dir != "" {
			static[bh] = http.FileServer(http.Dir(dir))
		}
	}

	return &Server{
		cfg:      cfg,
		resolver: resolver,
		logger:   logger.WithComponent("server"),
		static:   static,
		servers:  make(map[int]*http.Server),
		addrs:    make(map[int]string),
	}
}

// Start opens all listeners and serves until ctx is cancelled or any
// listener fails. Cancellation shuts the server down gracefully and
// returns nil; a listener failure shuts the rest down and returns the
// failure.
func (s *Server) Start(ctx context.Context) error {
	ports := s.cfg.Ports()
	if len(ports) == 0 {
		return errors.New("no ports to listen on")
	}

	type listenerGroup struct {
		port int
		ln   net.Listener
		srv  *http.Server
	}

	var group []listenerGroup
	for _, port := range ports {
		ln, secure, err := s.listen(port)
		if err != nil {
			for _, g := range group {
				g.ln.Close()
			}
			return err
		}

		srv := &http.Server{Handler: s.dispatch(port)}
		s.mu.Lock()
		s.servers[port] = srv
		s.addrs[port] = ln.Addr().String()
		s.mu.Unlock()

		s.logger.Info(ctx, "listening",
			"addr", ln.Addr().String(),
			"port", port,
			"secure", secure,
			"hosts", s.hostCount(port))
		group = append(group, listenerGroup{port: port, ln: ln, srv: srv})
	}

	// Serve goroutines report only real failures; a Shutdown-induced close
	// exits silently.
	errCh := make(chan error, len(group))
	for _, g := range group {
		go func(g listenerGroup) {
			if err := g.srv.Serve(g.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("port %d: %w", g.port, err)
			}
		}(g)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errCh:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
		return err
	}
}

// Shutdown stops every listener and waits for in-flight requests to finish
// or for ctx to expire. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "shutting down")

		s.mu.Lock()
		servers := make(map[int]*http.Server, len(s.servers))
		for port, srv := range s.servers {
			servers[port] = srv
		}
		s.mu.Unlock()

		var errs []error
		for port, srv := range servers {
			if err := srv.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("port %d: %w", port, err))
			}
		}
		shutdownErr = errors.Join(errs...)
	})

	return shutdownErr
}

// Addr reports the address a configured port is actually bound to, or ""
// before Start reaches that port. With port 0 in the configuration the
// kernel picks the port, so tests read the real one from here.
func (s *Server) Addr(port int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addrs[port]
}

// listen opens the listener for one port, applying the most restrictive
// connection cap and the TLS material of the hosts sharing it.
func (s *Server) listen(port int) (net.Listener, bool, error) {
	bindings := s.portBindings(port)
	if len(bindings) == 0 {
		return nil, false, fmt.Errorf("port %d has no hosts", port)
	}

	secure := bindings[0].IsSecure()
	maxConns := 0
	for _, b := range bindings {
		if b.IsSecure() != secure {
			return nil, false, fmt.Errorf("hosts on port %d mix plain and TLS listeners", port)
		}
		if b.MaxConns > 0 && (maxConns == 0 || b.MaxConns < maxConns) {
			maxConns = b.MaxConns
		}
	}

	var tlsCfg *tls.Config
	if secure {
		cfg, err := tlsConfigFor(port, bindings)
		if err != nil {
			return nil, false, err
		}
		tlsCfg = cfg
	}

	ln, err := net.Listen("tcp", bindings[0].Addr())
	if err != nil {
		return nil, false, fmt.Errorf("listen on port %d: %w", port, err)
	}
	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}
	return ln, secure, nil
}

// portBindings collects the listen settings of every host on a port, in
// configuration order.
func (s *Server) portBindings(port int) []config.Binding {
	var bindings []config.Binding
	for _, h := range s.cfg.Hosts {
		if h.Listen.Port == port {
			bindings = append(bindings, h.Listen)
		}
	}
	return bindings
}

// tlsConfigFor loads every distinct certificate pair declared for a port.
// With more than one, crypto/tls picks per connection by SNI, which is how
// two secure hosts share a listener.
func tlsConfigFor(port int, bindings []config.Binding) (*tls.Config, error) {
	var certs []tls.Certificate
	seen := make(map[[2]string]bool)
	for _, b := range bindings {
		if b.Cert == "" || b.Key == "" {
			continue
		}
		pair := [2]string{b.Cert, b.Key}
		if seen[pair] {
			continue
		}
		seen[pair] = true

		cert, err := tls.LoadX509KeyPair(b.Cert, b.Key)
		if err != nil {
			return nil, fmt.Errorf("port %d: load certificate %s: %w", port, b.Cert, err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("port %d is secure but no host declares a certificate", port)
	}

	return &tls.Config{
		Certificates: certs,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func (s *Server) hostCount(port int) int {
	n := 0
	for _, h := range s.cfg.Hosts {
		if h.Listen.Port == port {
			n++
		}
	}
	return n
}
