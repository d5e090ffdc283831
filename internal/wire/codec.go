package wire

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/fenlang/fen/internal/resolver"
	"github.com/fenlang/fen/internal/schema"
)

const (
	// DefaultPayloadKey carries envelope and variant payloads.
	DefaultPayloadKey = "value"
	// LegacyPayloadKey is the payload key of older generator versions. It is
	// only used when selected explicitly.
	LegacyPayloadKey = "data"
)

// DateLayout is the only timestamp layout ever encoded.
const DateLayout = "2006-01-02T15:04:05Z"

// Protocol holds the configurable parts of the wire format.
type Protocol struct {
	PayloadKey string
}

// DefaultProtocol returns the canonical protocol.
func DefaultProtocol() Protocol { return Protocol{PayloadKey: DefaultPayloadKey} }

// ValidatePayloadKey accepts the canonical and the legacy payload key.
func ValidatePayloadKey(key string) error {
	switch key {
	case DefaultPayloadKey, LegacyPayloadKey:
		return nil
	default:
		return fmt.Errorf("payload key must be %q or %q, got %q", DefaultPayloadKey, LegacyPayloadKey, key)
	}
}

// Codec encodes and decodes values of one resolved schema.
type Codec struct {
	schema *resolver.ResolvedSchema
	key    string
	tables map[string]*VariantTable
}

// NewCodec builds the variant tables of every enum in rs.
func NewCodec(rs *resolver.ResolvedSchema, p Protocol) *Codec {
	key := p.PayloadKey
	if key == "" {
		key = DefaultPayloadKey
	}
	c := &Codec{schema: rs, key: key, tables: map[string]*VariantTable{}}
	for _, td := range rs.Types {
		if e, ok := td.(*schema.Enum); ok {
			c.tables[e.Name] = NewVariantTable(e)
		}
	}
	return c
}

// PayloadKey returns the key carrying envelope and variant payloads.
func (c *Codec) PayloadKey() string { return c.key }

// Table returns the variant table of the named enum.
func (c *Codec) Table(enum string) (*VariantTable, bool) {
	t, ok := c.tables[enum]
	return t, ok
}

// Encode returns the canonical wire bytes of v as a value of type ref.
func (c *Codec) Encode(ref schema.TypeRef, v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.encode(&buf, "$", ref, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses data as a value of type ref.
func (c *Codec) Decode(ref schema.TypeRef, data []byte) (Value, error) {
	if !json.Valid(data) {
		return nil, decodeErr("$", "invalid JSON")
	}
	return c.decode("$", ref, bytes.TrimSpace(data))
}

// DecodeResponse parses an endpoint response envelope whose success
// payload has type output. A failure envelope is returned as a Response
// with Failure set and a nil error; the error is reserved for protocol
// decode failures.
func (c *Codec) DecodeResponse(output schema.TypeRef, data []byte) (*Response, error) {
	if !json.Valid(data) {
		return nil, decodeErr("$", "invalid JSON")
	}
	return c.decodeEnvelope("$", output, bytes.TrimSpace(data))
}

// EncodeResponse returns the envelope bytes of r.
func (c *Codec) EncodeResponse(output schema.TypeRef, r *Response) ([]byte, error) {
	return c.Encode(schema.NewResponse(output), r)
}
