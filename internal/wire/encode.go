package wire

import (
	"bytes"
	"math"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/fenlang/fen/internal/schema"
)

func (c *Codec) encode(buf *bytes.Buffer, path string, ref schema.TypeRef, v Value) error {
	if t, ok := ref.(schema.Optional); ok {
		if _, isNull := v.(Null); isNull || v == nil {
			buf.WriteString("null")
			return nil
		}
		return c.encode(buf, path, t.Elem, v)
	}
	if v == nil {
		return encodeErr(path, "no value for %s", ref)
	}
	switch t := ref.(type) {
	case schema.Array:
		arr, ok := v.(Array)
		if !ok {
			return encodeErr(path, "expected array, got %T", v)
		}
		buf.WriteByte('[')
		for i, elem := range arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := c.encode(buf, path+"["+strconv.Itoa(i)+"]", t.Elem, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case schema.Named:
		td, ok := c.schema.Type(t.Name)
		if !ok {
			return encodeErr(path, "unknown type %q", t.Name)
		}
		switch def := td.(type) {
		case *schema.Struct:
			return c.encodeStruct(buf, path, def, v)
		case *schema.Enum:
			return c.encodeTagged(buf, path, c.tables[def.Name], v)
		}
		return encodeErr(path, "unsupported definition %T", td)
	case schema.Generic:
		elem, ok := schema.IsResponse(t)
		if !ok {
			return encodeErr(path, "unsupported generic %s", t)
		}
		return c.encodeEnvelope(buf, path, elem, v)
	case schema.Primitive:
		return encodePrimitive(buf, path, t, v)
	}
	return encodeErr(path, "unsupported type %v", ref)
}

func encodePrimitive(buf *bytes.Buffer, path string, p schema.Primitive, v Value) error {
	switch p {
	case schema.Int:
		n, ok := v.(Int)
		if !ok {
			return encodeErr(path, "expected Int, got %T", v)
		}
		buf.WriteString(strconv.FormatInt(int64(n), 10))
	case schema.Float:
		f, ok := v.(Float)
		if !ok {
			return encodeErr(path, "expected Float, got %T", v)
		}
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return encodeErr(path, "%v has no JSON representation", float64(f))
		}
		b, err := json.Marshal(float64(f))
		if err != nil {
			return encodeErr(path, "%v", err)
		}
		buf.Write(b)
	case schema.Bool:
		b, ok := v.(Bool)
		if !ok {
			return encodeErr(path, "expected Bool, got %T", v)
		}
		buf.WriteString(strconv.FormatBool(bool(b)))
	case schema.String:
		s, ok := v.(String)
		if !ok {
			return encodeErr(path, "expected String, got %T", v)
		}
		return writeString(buf, path, string(s))
	case schema.Uuid:
		id, ok := v.(UUID)
		if !ok {
			return encodeErr(path, "expected UUID, got %T", v)
		}
		buf.WriteByte('"')
		buf.WriteString(uuid.UUID(id).String())
		buf.WriteByte('"')
	case schema.Date:
		d, ok := v.(Date)
		if !ok {
			return encodeErr(path, "expected Date, got %T", v)
		}
		buf.WriteByte('"')
		buf.WriteString(d.Time.UTC().Format(DateLayout))
		buf.WriteByte('"')
	default:
		return encodeErr(path, "unknown primitive %q", p)
	}
	return nil
}

func writeString(buf *bytes.Buffer, path, s string) error {
	b, err := json.MarshalNoEscape(s)
	if err != nil {
		return encodeErr(path, "%v", err)
	}
	buf.Write(b)
	return nil
}

// encodeStruct writes fields in declaration order. Absent optional fields
// are written as an explicit null.
func (c *Codec) encodeStruct(buf *bytes.Buffer, path string, def *schema.Struct, v Value) error {
	obj, ok := v.(Object)
	if !ok {
		return encodeErr(path, "expected %s object, got %T", def.Name, v)
	}
	known := make(map[string]bool, len(def.Fields))
	buf.WriteByte('{')
	for i, f := range def.Fields {
		known[f.Name] = true
		key := schema.WireName(f.Name)
		fpath := path + "." + key
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(buf, fpath, key); err != nil {
			return err
		}
		buf.WriteByte(':')
		fv, present := obj[f.Name]
		ref := f.Ref()
		if !present {
			if _, optional := ref.(schema.Optional); !optional {
				return encodeErr(fpath, "missing required field %q", f.Name)
			}
			fv = Null{}
		}
		if err := c.encode(buf, fpath, ref, fv); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	for name := range obj {
		if !known[name] {
			return encodeErr(path, "%s has no field %q", def.Name, name)
		}
	}
	return nil
}

func (c *Codec) encodeTagged(buf *bytes.Buffer, path string, table *VariantTable, v Value) error {
	vv, ok := v.(Variant)
	if !ok {
		return encodeErr(path, "expected %s variant, got %T", table.Enum, v)
	}
	spec, ok := table.ByTag(vv.Tag)
	if !ok {
		return encodeErr(path, "%s has no variant %q", table.Enum, vv.Tag)
	}
	buf.WriteString(`{"type":`)
	if err := writeString(buf, path+".type", spec.Wire); err != nil {
		return err
	}
	if spec.Payload != nil {
		payload := vv.Payload
		if payload == nil {
			if _, optional := spec.Payload.(schema.Optional); !optional {
				return encodeErr(path, "variant %q requires a payload", vv.Tag)
			}
			payload = Null{}
		}
		buf.WriteByte(',')
		if err := writeString(buf, path, c.key); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := c.encode(buf, path+"."+c.key, spec.Payload, payload); err != nil {
			return err
		}
	} else if vv.Payload != nil {
		return encodeErr(path, "variant %q carries no payload", vv.Tag)
	}
	buf.WriteByte('}')
	return nil
}

func (c *Codec) encodeEnvelope(buf *bytes.Buffer, path string, elem schema.TypeRef, v Value) error {
	r, ok := v.(*Response)
	if !ok || r == nil {
		return encodeErr(path, "expected response envelope, got %T", v)
	}
	if r.Failure != nil {
		buf.WriteString(`{"type":"failure","message":`)
		if err := writeString(buf, path+".message", r.Failure.Message); err != nil {
			return err
		}
		buf.WriteString(`,"status":`)
		buf.WriteString(strconv.FormatInt(r.Failure.Status, 10))
		buf.WriteByte('}')
		return nil
	}
	buf.WriteString(`{"type":"success",`)
	if err := writeString(buf, path, c.key); err != nil {
		return err
	}
	buf.WriteByte(':')
	if err := c.encode(buf, path+"."+c.key, elem, r.Value); err != nil {
		return err
	}
	buf.WriteByte('}')
	return nil
}
