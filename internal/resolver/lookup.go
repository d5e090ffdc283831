package resolver

import "github.com/fenlang/fen/internal/schema"

// Type returns the definition named name.
func (rs *ResolvedSchema) Type(name string) (schema.TypeDef, bool) {
	td, ok := rs.symbols[name]
	return td, ok
}

// Struct returns the struct named name.
func (rs *ResolvedSchema) Struct(name string) (*schema.Struct, bool) {
	s, ok := rs.symbols[name].(*schema.Struct)
	return s, ok
}

// Enum returns the enum named name.
func (rs *ResolvedSchema) Enum(name string) (*schema.Enum, bool) {
	e, ok := rs.symbols[name].(*schema.Enum)
	return e, ok
}

// InputStruct returns the struct an endpoint's input names directly. Client
// methods of such endpoints take the struct's fields as parameters.
func (rs *ResolvedSchema) InputStruct(ep schema.EndpointDef) (*schema.Struct, bool) {
	n, ok := ep.Input.(schema.Named)
	if !ok {
		return nil, false
	}
	return rs.Struct(n.Name)
}

// Uses lists every type reference in declaration order: struct fields
// (with the optional flag folded in), variant payloads, endpoint inputs
// and outputs.
func (rs *ResolvedSchema) Uses() []Use {
	var out []Use
	for _, td := range rs.Types {
		switch t := td.(type) {
		case *schema.Struct:
			for _, f := range t.Fields {
				out = append(out, Use{Path: t.Name + "." + f.Name, Ref: f.Ref()})
			}
		case *schema.Enum:
			for _, v := range t.Variants {
				if v.Payload != nil {
					out = append(out, Use{Path: t.Name + "." + v.Tag, Ref: v.Payload})
				}
			}
		}
	}
	for _, ep := range rs.Endpoints {
		if ep.Input != nil {
			out = append(out, Use{Path: ep.Name + ".input", Ref: ep.Input})
		}
		out = append(out, Use{Path: ep.Name + ".output", Ref: ep.Output})
	}
	return out
}

// UsesPrimitive reports whether p appears anywhere in the schema.
func (rs *ResolvedSchema) UsesPrimitive(p schema.Primitive) bool {
	found := false
	for _, u := range rs.Uses() {
		schema.Walk(u.Ref, func(r schema.TypeRef) bool {
			if q, ok := r.(schema.Primitive); ok && q == p {
				found = true
			}
			return !found
		})
		if found {
			return true
		}
	}
	return false
}

// ExplicitResponses lists every place where the schema itself spells out
// Response<T>. The implicit envelope around each endpoint output is not
// included.
func (rs *ResolvedSchema) ExplicitResponses() []Use {
	var out []Use
	for _, u := range rs.Uses() {
		schema.Walk(u.Ref, func(r schema.TypeRef) bool {
			if _, ok := schema.IsResponse(r); ok {
				out = append(out, Use{Path: u.Path, Ref: r})
				return false
			}
			return true
		})
	}
	return out
}
