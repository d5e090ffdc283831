package wire

import "fmt"

// DecodeError is a protocol decode failure: the bytes do not match the
// expected type. It is never turned into a default value.
type DecodeError struct {
	Path   string // e.g. "$.todos[2].due"
	Reason string
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode %s: %s", e.Path, e.Reason) }

// EncodeError reports a Value that does not fit the type it is encoded as.
type EncodeError struct {
	Path   string
	Reason string
}

func (e *EncodeError) Error() string { return fmt.Sprintf("encode %s: %s", e.Path, e.Reason) }

// ApplicationError is a well-formed failure envelope sent by the server.
// It is an expected outcome, not a protocol error.
type ApplicationError struct {
	Message string
	Status  int64
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("application error (status %d): %s", e.Status, e.Message)
}

func decodeErr(path, format string, args ...any) error {
	return &DecodeError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

func encodeErr(path, format string, args ...any) error {
	return &EncodeError{Path: path, Reason: fmt.Sprintf(format, args...)}
}
