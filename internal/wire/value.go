// Package wire is the reference Go implementation of the Fen wire
// protocol. Generated clients in every target language reproduce exactly
// the bytes this codec produces and accept exactly what it accepts.
package wire

import (
	"time"

	"github.com/google/uuid"
)

// Value is a dynamically typed protocol value. Optional values use Null for
// absence and the bare value otherwise.
type Value interface{ isValue() }

type (
	Null   struct{}
	Int    int64
	Float  float64
	Bool   bool
	String string
	UUID   uuid.UUID
	// Array holds the elements of an array value in order.
	Array []Value
	// Object holds struct field values keyed by schema field name, not by
	// wire key.
	Object map[string]Value
)

// Date is a timestamp with whole-second precision in UTC.
type Date struct {
	Time time.Time
}

// NewDate normalizes t to UTC and truncates it to whole seconds.
func NewDate(t time.Time) Date {
	return Date{Time: t.UTC().Truncate(time.Second)}
}

// Equal reports whether both dates denote the same instant.
func (d Date) Equal(o Date) bool { return d.Time.Equal(o.Time) }

// Variant is an enum value. Tag is the schema tag; Payload is nil for unit
// variants.
type Variant struct {
	Tag     string
	Payload Value
}

// Response is a decoded envelope.
type Response struct {
	Value   Value             // set on success
	Failure *ApplicationError // set on failure
}

// OK reports whether the envelope was a success.
func (r *Response) OK() bool { return r.Failure == nil }

// Err returns the application failure carried by the envelope, or nil.
func (r *Response) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}

func (Null) isValue()      {}
func (Int) isValue()       {}
func (Float) isValue()     {}
func (Bool) isValue()      {}
func (String) isValue()    {}
func (UUID) isValue()      {}
func (Date) isValue()      {}
func (Array) isValue()     {}
func (Object) isValue()    {}
func (Variant) isValue()   {}
func (*Response) isValue() {}
