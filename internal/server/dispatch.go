package server

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/mammothweb/mammoth/internal/config"
	merrors "github.com/mammothweb/mammoth/internal/errors"
	"github.com/mammothweb/mammoth/module"
)

// dispatch builds the handler for one listening port. A request is matched
// to a bound host by hostname, offered to that host's modules in effective
// order, and falls back to the host's static directory. The port used for
// resolution is the listener's configured port, never the one a client
// writes into the Host header.
func (s *Server) dispatch(port int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hostname := requestHostname(r.Host)

		bh, ok := s.resolver.Resolve(hostname, port)
		if !ok {
			s.logger.Debug(r.Context(), "no host for request",
				"host", r.Host,
				"port", port,
				"path", r.URL.Path)
			http.NotFound(w, r)
			return
		}

		if len(bh.Modules) > 0 {
			req, err := moduleRequest(r, hostname)
			if err != nil {
				s.logger.Warn(r.Context(), err, "rejecting unreadable request",
					"host", bh.Identity())
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}

			for _, lm := range bh.Modules {
				resp, err := lm.Instance.Handle(r.Context(), req)
				if err != nil {
					// One bad request never degrades the module or the host.
					s.logger.Error(r.Context(), merrors.Handling(lm.Name(), err),
						"module failed to handle request",
						"host", bh.Identity(),
						"path", r.URL.Path)
					http.Error(w, "internal server error", http.StatusInternalServerError)
					return
				}
				if resp != nil {
					writeResponse(w, resp)
					return
				}
			}
		}

		if h, ok := s.static[bh]; ok {
			h.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}

// requestHostname strips an optional port from a Host header value. The
// raw name is returned even when it is garbage; resolution decides what to
// do with it.
func requestHostname(hostHeader string) string {
	if host, _, err := net.SplitHostPort(hostHeader); err == nil {
		return host
	}
	return strings.Trim(hostHeader, "[]")
}

// moduleRequest converts an incoming request into the boundary form handed
// to modules. The body is read here, once, so every module in the chain
// sees the same bytes.
func moduleRequest(r *http.Request, hostname string) (*module.Request, error) {
	canonical, err := config.NormalizeHostname(hostname)
	if err != nil {
		canonical = strings.ToLower(hostname)
	}

	var body []byte
	if r.Body != nil {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		if len(b) > 0 {
			body = b
		}
	}

	return &module.Request{
		Method:     r.Method,
		Host:       canonical,
		Path:       r.URL.Path,
		Query:      r.URL.Query(),
		Header:     r.Header,
		Body:       body,
		RemoteAddr: r.RemoteAddr,
	}, nil
}

// writeResponse copies a module response onto the wire. A zero status
// means the module did not care, which is a 200.
func writeResponse(w http.ResponseWriter, resp *module.Response) {
	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	if len(resp.Body) > 0 {
		w.Write(resp.Body)
	}
}
