package errors

import (
	"fmt"
	"log/slog"
	"strings"
)

// Severity grades validation findings and log output. The ordering is
// significant: higher values are more severe.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInformation
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the fixed-width tag used in log lines.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "DBG "
	case SeverityInformation:
		return "INFO"
	case SeverityWarning:
		return "WARN"
	case SeverityError:
		return "ERR "
	case SeverityCritical:
		return "CRIT"
	default:
		return "????"
	}
}

// Name returns the configuration spelling of the severity.
func (s Severity) Name() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInformation:
		return "information"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Level maps the severity onto the slog scale. Critical lands above
// slog.LevelError so a file sink thresholded at critical stays quiet for
// ordinary errors.
func (s Severity) Level() slog.Level {
	switch s {
	case SeverityDebug:
		return slog.LevelDebug
	case SeverityInformation:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	case SeverityCritical:
		return slog.LevelError + 4
	default:
		return slog.LevelError
	}
}

// ParseSeverity reads a configuration value, case-insensitively. "info" and
// "warn" are accepted as shorthand.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return SeverityDebug, nil
	case "information", "info":
		return SeverityInformation, nil
	case "warning", "warn":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return 0, fmt.Errorf("unknown severity %q", s)
	}
}
