package resolver

import (
	"fmt"
	"strings"
)

// Kind is the category of a schema error.
type Kind string

const (
	DuplicateType         Kind = "DuplicateType"
	DuplicateField        Kind = "DuplicateField"
	DuplicateVariant      Kind = "DuplicateVariant"
	DuplicateEndpoint     Kind = "DuplicateEndpoint"
	DuplicateEndpointName Kind = "DuplicateEndpointName"
	DanglingReference     Kind = "DanglingReference"
	NestedOptional        Kind = "NestedOptional"
	GetWithInput          Kind = "GetWithInput"
	UnknownGeneric        Kind = "UnknownGeneric"
	ReservedName          Kind = "ReservedName"
	MissingOutput         Kind = "MissingOutput"
	InvalidIdentifier     Kind = "InvalidIdentifier"
	InvalidPath           Kind = "InvalidPath"
	UnsupportedMethod     Kind = "UnsupportedMethod"
)

// SchemaError is one problem found in a document. Path names the offending
// element, e.g. "Todo.due" or "GetTodos.output".
type SchemaError struct {
	Kind    Kind
	Path    string
	Message string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Path, e.Message, e.Kind)
}

// SchemaErrors is the non-empty list of every problem found in a document.
type SchemaErrors []*SchemaError

func (es SchemaErrors) Error() string {
	if len(es) == 1 {
		return es[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d schema errors:", len(es))
	for _, e := range es {
		b.WriteString("\n  - ")
		b.WriteString(e.Error())
	}
	return b.String()
}

func (es SchemaErrors) Unwrap() []error {
	out := make([]error, len(es))
	for i, e := range es {
		out[i] = e
	}
	return out
}

// Kinds returns the kind of every error, in report order.
func (es SchemaErrors) Kinds() []Kind {
	out := make([]Kind, len(es))
	for i, e := range es {
		out[i] = e.Kind
	}
	return out
}
