package meter

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPayload is returned when manufacturer or service data is
	// missing or too short to decode. No reading is produced.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrUnexpectedSource marks a payload whose vendor code or device type
	// does not match this sensor family. Decoding still succeeds.
	ErrUnexpectedSource = errors.New("unexpected source")
)

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Diagnostic describes something noteworthy about a decoded payload.
type Diagnostic struct {
	Severity Severity
	Err      error // ErrInvalidPayload or ErrUnexpectedSource
	Message  string
}

// Recoverable is always true: a bad packet never stops the decoder or the
// tracker, it is only reported.
func (d Diagnostic) Recoverable() bool { return true }

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s", d.Severity, d.Message)
}

func (d Diagnostic) Unwrap() error { return d.Err }

func invalidPayload(msg string) Diagnostic {
	return Diagnostic{Severity: SeverityWarning, Err: ErrInvalidPayload, Message: msg}
}

func unexpectedSource(format string, args ...any) Diagnostic {
	return Diagnostic{Severity: SeverityInfo, Err: ErrUnexpectedSource, Message: fmt.Sprintf(format, args...)}
}
