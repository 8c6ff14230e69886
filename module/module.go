// Package module defines the contract between the mammoth host and
// externally compiled modules. Module authors import this package, implement
// Interface, and export the two entry points named by ConstructSymbol and
// VersionSymbol from a library built with -buildmode=plugin. The host never
// imports module code directly; everything crosses the boundary through the
// types declared here.
package module

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
)

// Symbol names the host resolves in every module library. Both must be
// package-level functions with the exact signatures of ConstructFunc and
// VersionFunc.
const (
	// ConstructSymbol is the exported constructor, looked up once per module.
	ConstructSymbol = "MammothConstruct"

	// VersionSymbol reports the contract version the module was built against.
	// It must be side-effect free; it is called before the module is trusted.
	VersionSymbol = "MammothVersion"
)

// ConstructFunc is the required signature of the ConstructSymbol export.
// The cfg map is the module's `config` table from the host configuration,
// passed verbatim and possibly nil. Returning an error aborts the load of
// this module only.
type ConstructFunc func(cfg map[string]any) (Interface, error)

// VersionFunc is the required signature of the VersionSymbol export. The
// returned string must parse as MAJOR.MINOR.PATCH.
type VersionFunc func() string

// Interface is implemented by every module instance. Handle is called once
// per dispatched request and must be safe for concurrent use; the host may
// serve many requests against one instance at a time.
//
// A module declines a request by returning (nil, nil), which passes the
// request to the next module bound to the host. A non-nil Response ends the
// chain. A non-nil error is logged and converted to a 500 for that request
// only.
type Interface interface {
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// Validator is an optional capability. When a freshly constructed instance
// implements it, the host calls Validate during startup and discards the
// module if it fails.
type Validator interface {
	Validate(ctx context.Context) error
}

// Shutdowner is an optional capability. When implemented, the host calls
// Shutdown during process teardown, after all listeners have stopped.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// LogSink is an optional capability. When implemented, the host hands the
// instance a named logger immediately after construction, before Validate.
type LogSink interface {
	SetLogger(logger *slog.Logger)
}

// Request carries one HTTP request across the host/module boundary. The
// body has already been read; modules never touch the underlying connection.
type Request struct {
	// Method is the HTTP method, e.g. "GET".
	Method string

	// Host is the hostname the request was routed by, lowercased, without
	// the port.
	Host string

	// Path is the unescaped request path.
	Path string

	// Query holds the parsed query parameters.
	Query url.Values

	// Header holds the request headers.
	Header http.Header

	// Body is the full request body; nil when the request had none.
	Body []byte

	// RemoteAddr is the client address as reported by the listener.
	RemoteAddr string
}

// Response is what a module produces for a handled request.
type Response struct {
	// StatusCode is the HTTP status; zero is treated as 200.
	StatusCode int

	// Header entries are copied onto the response verbatim.
	Header http.Header

	// Body is written after headers; may be nil.
	Body []byte
}
