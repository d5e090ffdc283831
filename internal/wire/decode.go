package wire

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/fenlang/fen/internal/schema"
)

var null = []byte("null")

func isNull(raw []byte) bool { return bytes.Equal(raw, null) }

// kind returns a short description of a raw JSON value for error messages.
func kind(raw []byte) string {
	if len(raw) == 0 {
		return "nothing"
	}
	switch raw[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}

func (c *Codec) decode(path string, ref schema.TypeRef, raw []byte) (Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, decodeErr(path, "expected %s, got nothing", ref)
	}
	if t, ok := ref.(schema.Optional); ok {
		if isNull(raw) {
			return Null{}, nil
		}
		return c.decode(path, t.Elem, raw)
	}
	if isNull(raw) {
		return nil, decodeErr(path, "expected %s, got null", ref)
	}
	switch t := ref.(type) {
	case schema.Primitive:
		return decodePrimitive(path, t, raw)
	case schema.Array:
		if raw[0] != '[' {
			return nil, decodeErr(path, "expected array, got %s", kind(raw))
		}
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return nil, decodeErr(path, "%v", err)
		}
		out := make(Array, 0, len(elems))
		for i, e := range elems {
			v, err := c.decode(path+"["+strconv.Itoa(i)+"]", t.Elem, e)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case schema.Named:
		td, ok := c.schema.Type(t.Name)
		if !ok {
			return nil, decodeErr(path, "unknown type %q", t.Name)
		}
		switch def := td.(type) {
		case *schema.Struct:
			return c.decodeStruct(path, def, raw)
		case *schema.Enum:
			return c.decodeTagged(path, c.tables[def.Name], raw)
		}
		return nil, decodeErr(path, "unsupported definition %T", td)
	case schema.Generic:
		elem, ok := schema.IsResponse(t)
		if !ok {
			return nil, decodeErr(path, "unsupported generic %s", t)
		}
		r, err := c.decodeEnvelope(path, elem, raw)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	return nil, decodeErr(path, "unsupported type %v", ref)
}

func decodePrimitive(path string, p schema.Primitive, raw []byte) (Value, error) {
	switch p {
	case schema.Int:
		n, err := decodeInt(path, raw)
		if err != nil {
			return nil, err
		}
		return Int(n), nil
	case schema.Float:
		if kind(raw) != "number" {
			return nil, decodeErr(path, "expected Float, got %s", kind(raw))
		}
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return nil, decodeErr(path, "Float %s out of range", raw)
		}
		return Float(f), nil
	case schema.Bool:
		switch string(raw) {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		}
		return nil, decodeErr(path, "expected Bool, got %s", kind(raw))
	case schema.String:
		s, err := decodeString(path, "String", raw)
		if err != nil {
			return nil, err
		}
		return String(s), nil
	case schema.Uuid:
		s, err := decodeString(path, "Uuid", raw)
		if err != nil {
			return nil, err
		}
		if len(s) != 36 {
			return nil, decodeErr(path, "%q is not a hyphenated UUID", s)
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, decodeErr(path, "%q is not a UUID: %v", s, err)
		}
		return UUID(id), nil
	case schema.Date:
		s, err := decodeString(path, "Date", raw)
		if err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, decodeErr(path, "%q is not an RFC 3339 timestamp", s)
		}
		return NewDate(t), nil
	}
	return nil, decodeErr(path, "unknown primitive %q", p)
}

// decodeInt accepts integer literals and integral-valued numbers such as
// 3.0; fractional values are rejected.
func decodeInt(path string, raw []byte) (int64, error) {
	if kind(raw) != "number" {
		return 0, decodeErr(path, "expected Int, got %s", kind(raw))
	}
	s := string(raw)
	if !strings.ContainsAny(s, ".eE") {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, decodeErr(path, "Int %s out of range", s)
		}
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, decodeErr(path, "expected Int, got non-integral number %s", s)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, decodeErr(path, "Int %s out of range", s)
	}
	return int64(f), nil
}

func decodeString(path, what string, raw []byte) (string, error) {
	if raw[0] != '"' {
		return "", decodeErr(path, "expected %s, got %s", what, kind(raw))
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", decodeErr(path, "%v", err)
	}
	return s, nil
}

func decodeObject(path, what string, raw []byte) (map[string]json.RawMessage, error) {
	if raw[0] != '{' {
		return nil, decodeErr(path, "expected %s object, got %s", what, kind(raw))
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, decodeErr(path, "%v", err)
	}
	return obj, nil
}

// decodeStruct treats a missing optional field like null. Unknown keys are
// ignored.
func (c *Codec) decodeStruct(path string, def *schema.Struct, raw []byte) (Value, error) {
	obj, err := decodeObject(path, def.Name, raw)
	if err != nil {
		return nil, err
	}
	out := make(Object, len(def.Fields))
	for _, f := range def.Fields {
		key := schema.WireName(f.Name)
		fpath := path + "." + key
		ref := f.Ref()
		fraw, present := obj[key]
		if !present {
			if _, optional := ref.(schema.Optional); !optional {
				return nil, decodeErr(fpath, "missing required field")
			}
			out[f.Name] = Null{}
			continue
		}
		v, err := c.decode(fpath, ref, fraw)
		if err != nil {
			return nil, err
		}
		out[f.Name] = v
	}
	return out, nil
}

// readDiscriminant is the first decoding pass of tagged values: only the
// exact key "type" is read.
func readDiscriminant(path, what string, raw []byte) (string, error) {
	obj, err := decodeObject(path, what, raw)
	if err != nil {
		return "", err
	}
	traw, ok := obj["type"]
	if !ok {
		return "", decodeErr(path+".type", "missing discriminant")
	}
	if len(traw) == 0 || traw[0] != '"' {
		return "", decodeErr(path+".type", "discriminant must be a string")
	}
	var tag string
	if err := json.Unmarshal(traw, &tag); err != nil {
		return "", decodeErr(path+".type", "discriminant must be a string")
	}
	return tag, nil
}

func (c *Codec) decodeTagged(path string, table *VariantTable, raw []byte) (Value, error) {
	tag, err := readDiscriminant(path, table.Enum, raw)
	if err != nil {
		return nil, err
	}
	spec, ok := table.ByWire(tag)
	if !ok {
		return nil, decodeErr(path+".type", "unknown %s variant %q", table.Enum, tag)
	}
	if spec.Payload == nil {
		return Variant{Tag: spec.Tag}, nil
	}
	obj, err := decodeObject(path, table.Enum, raw)
	if err != nil {
		return nil, err
	}
	ppath := path + "." + c.key
	praw, present := obj[c.key]
	if !present {
		if _, optional := spec.Payload.(schema.Optional); optional {
			return Variant{Tag: spec.Tag, Payload: Null{}}, nil
		}
		return nil, decodeErr(ppath, "missing payload of variant %q", tag)
	}
	payload, err := c.decode(ppath, spec.Payload, praw)
	if err != nil {
		return nil, err
	}
	return Variant{Tag: spec.Tag, Payload: payload}, nil
}

func (c *Codec) decodeEnvelope(path string, output schema.TypeRef, raw []byte) (*Response, error) {
	tag, err := readDiscriminant(path, "response", raw)
	if err != nil {
		return nil, err
	}
	switch tag {
	case "success":
		obj, err := decodeObject(path, "response", raw)
		if err != nil {
			return nil, err
		}
		vpath := path + "." + c.key
		vraw, present := obj[c.key]
		if !present {
			return nil, decodeErr(vpath, "success envelope carries no %q", c.key)
		}
		v, err := c.decode(vpath, output, vraw)
		if err != nil {
			return nil, err
		}
		return &Response{Value: v}, nil
	case "failure":
		obj, err := decodeObject(path, "response", raw)
		if err != nil {
			return nil, err
		}
		mraw, ok := obj["message"]
		if !ok {
			return nil, decodeErr(path+".message", "missing required field")
		}
		if isNull(mraw) {
			return nil, decodeErr(path+".message", "expected String, got null")
		}
		msg, err := decodeString(path+".message", "String", mraw)
		if err != nil {
			return nil, err
		}
		sraw, ok := obj["status"]
		if !ok {
			return nil, decodeErr(path+".status", "missing required field")
		}
		status, err := decodeInt(path+".status", sraw)
		if err != nil {
			return nil, err
		}
		return &Response{Failure: &ApplicationError{Message: msg, Status: status}}, nil
	default:
		return nil, decodeErr(path+".type", "unknown response type %q", tag)
	}
}
