package codes

import "fmt"

// ProtocolError binds a Code to an optional human-readable description and
// an optional partial-result payload (used by 0:* intermediary codes, which
// carry whatever bytes were processed before the stream stalled).
//
// Handlers in internal/dispatch return *ProtocolError for every client- or
// server-class outcome; success/intermediary outcomes are carried back as
// plain values plus a nil error, mirroring the teacher's HandlerResult split
// between payload and status.
type ProtocolError struct {
	Code        Code
	Description string
	Partial     []byte
}

func (e *ProtocolError) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Unwrap lets errors.Is/As match against the underlying Code.
func (e *ProtocolError) Unwrap() error {
	return e.Code
}

// New builds a ProtocolError with no partial payload.
func New(code Code, description string) *ProtocolError {
	return &ProtocolError{Code: code, Description: description}
}

// NewPartial builds a ProtocolError carrying a partial-result payload,
// intended for 0:* intermediary codes returned mid-stream.
func NewPartial(code Code, description string, partial []byte) *ProtocolError {
	return &ProtocolError{Code: code, Description: description, Partial: partial}
}
