package cli

import "errors"

// ErrUsage matches every error caused by how fen was invoked: flags,
// config file contents, or an output directory it may not replace.
// cmd/fen exits with status 2 for these.
var ErrUsage = errors.New("invalid fen invocation")

type usageError struct {
	msg   string
	hint  string
	cause error
}

func newUsageError(msg string) error {
	return usageError{msg: msg}
}

// withHint wraps cause as a usage error and suggests a fix.
func withHint(cause error, hint string) error {
	return usageError{msg: cause.Error(), hint: hint, cause: cause}
}

func (e usageError) Error() string {
	if e.hint == "" {
		return e.msg
	}
	return e.msg + "\nHint: " + e.hint
}

func (e usageError) Is(target error) bool {
	return target == ErrUsage
}

func (e usageError) Unwrap() error { return e.cause }
