// Package errors defines the module subsystem's error taxonomy along with
// the severity vocabulary and event collector used by configuration and
// startup validation.
package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/mammothweb/mammoth/module"
)

// Kind classifies a ModuleError. Every failure the subsystem can produce
// falls into exactly one kind.
type Kind int

const (
	// KindNotFound: the library file does not exist at the resolved path.
	KindNotFound Kind = iota

	// KindLoadFailed: the file exists but the platform loader rejected it,
	// or an entry point had the wrong type.
	KindLoadFailed

	// KindMissingEntryPoint: the library lacks a required exported symbol.
	KindMissingEntryPoint

	// KindVersionMismatch: the module's interface version is incompatible
	// with the host's.
	KindVersionMismatch

	// KindConstructionFailed: the constructor or post-construction
	// validation returned an error.
	KindConstructionFailed

	// KindDuplicateName: a second module with an already registered name.
	KindDuplicateName

	// KindUnknownModule: a host override references a name that was never
	// declared or never survived loading.
	KindUnknownModule

	// KindHandling: a module instance failed while serving a request.
	KindHandling
)

// String returns a stable token for log fields.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindLoadFailed:
		return "load_failed"
	case KindMissingEntryPoint:
		return "missing_entry_point"
	case KindVersionMismatch:
		return "version_mismatch"
	case KindConstructionFailed:
		return "construction_failed"
	case KindDuplicateName:
		return "duplicate_name"
	case KindUnknownModule:
		return "unknown_module"
	case KindHandling:
		return "handling"
	default:
		return "unknown"
	}
}

// ModuleError is the error type crossing package boundaries in the module
// subsystem. Fields beyond Kind and Module are populated per kind.
type ModuleError struct {
	Kind   Kind
	Module string
	Host   string
	Path   string
	Symbol string

	// Required and Found carry the host and module interface versions for
	// KindVersionMismatch.
	Required module.InterfaceVersion
	Found    module.InterfaceVersion

	Err error
}

// Error implements the error interface.
func (e *ModuleError) Error() string {
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("module %q: library not found at %s", e.Module, e.Path)
	case KindLoadFailed:
		return fmt.Sprintf("module %q: load %s: %v", e.Module, e.Path, e.Err)
	case KindMissingEntryPoint:
		return fmt.Sprintf("module %q: %s does not export %s", e.Module, e.Path, e.Symbol)
	case KindVersionMismatch:
		return fmt.Sprintf("module %q: interface version %s incompatible with host %s",
			e.Module, e.Found, e.Required)
	case KindConstructionFailed:
		return fmt.Sprintf("module %q: construction failed: %v", e.Module, e.Err)
	case KindDuplicateName:
		return fmt.Sprintf("module %q: name already registered", e.Module)
	case KindUnknownModule:
		if e.Host != "" {
			return fmt.Sprintf("host %q: override references unknown module %q", e.Host, e.Module)
		}
		return fmt.Sprintf("unknown module %q", e.Module)
	case KindHandling:
		return fmt.Sprintf("module %q: request handling failed: %v", e.Module, e.Err)
	default:
		return fmt.Sprintf("module %q: %v", e.Module, e.Err)
	}
}

// Unwrap exposes the wrapped cause, if any.
func (e *ModuleError) Unwrap() error {
	return e.Err
}

// NotFound reports a missing library file.
func NotFound(name, path string) *ModuleError {
	return &ModuleError{Kind: KindNotFound, Module: name, Path: path}
}

// LoadFailed reports a platform loader failure or a mistyped entry point.
func LoadFailed(name, path string, err error) *ModuleError {
	return &ModuleError{Kind: KindLoadFailed, Module: name, Path: path, Err: err}
}

// MissingEntryPoint reports an absent export; symbol names which one.
func MissingEntryPoint(name, path, symbol string) *ModuleError {
	return &ModuleError{Kind: KindMissingEntryPoint, Module: name, Path: path, Symbol: symbol}
}

// VersionMismatch reports an incompatible module, carrying both versions so
// callers can render exactly what was required and what was found.
func VersionMismatch(name string, required, found module.InterfaceVersion) *ModuleError {
	return &ModuleError{Kind: KindVersionMismatch, Module: name, Required: required, Found: found}
}

// ConstructionFailed wraps an error returned by the module's constructor or
// by its post-construction validation.
func ConstructionFailed(name string, err error) *ModuleError {
	return &ModuleError{Kind: KindConstructionFailed, Module: name, Err: err}
}

// DuplicateName reports a second registration under an existing name.
func DuplicateName(name string) *ModuleError {
	return &ModuleError{Kind: KindDuplicateName, Module: name}
}

// UnknownModule reports a host override naming a module that is not in the
// registry. host may be empty when the reference is not host-scoped.
func UnknownModule(host, name string) *ModuleError {
	return &ModuleError{Kind: KindUnknownModule, Host: host, Module: name}
}

// Handling wraps a request-time failure from a module instance.
func Handling(name string, err error) *ModuleError {
	return &ModuleError{Kind: KindHandling, Module: name, Err: err}
}

// IsKind reports whether err is, or wraps, a ModuleError of kind k.
func IsKind(err error, k Kind) bool {
	var me *ModuleError
	return stderrors.As(err, &me) && me.Kind == k
}

// KindOf returns the kind of err when it is a ModuleError, and ok=false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var me *ModuleError
	if stderrors.As(err, &me) {
		return me.Kind, true
	}
	return 0, false
}
