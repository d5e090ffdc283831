// Package resolver validates a schema document and builds the symbol table
// every target emitter works from.
package resolver

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/fenlang/fen/internal/schema"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ResolvedSchema is a validated document. It is never mutated after
// Resolve returns and may be shared by concurrent emitters.
type ResolvedSchema struct {
	Name        string
	Version     string
	Description string
	Types       []schema.TypeDef
	Endpoints   []schema.EndpointDef

	symbols map[string]schema.TypeDef
}

// Use is one type reference of the schema together with its location.
type Use struct {
	Path string
	Ref  schema.TypeRef
}

// Resolve checks doc and returns the resolved schema, or a SchemaErrors
// value listing every problem found. It never returns both.
func Resolve(doc *schema.Document) (*ResolvedSchema, error) {
	if doc == nil {
		return nil, errors.New("resolver: nil document")
	}
	r := &resolution{symbols: map[string]schema.TypeDef{}}
	r.collectTypes(doc.Types)
	for _, td := range doc.Types {
		switch t := td.(type) {
		case *schema.Struct:
			r.checkStruct(t)
		case *schema.Enum:
			r.checkEnum(t)
		}
	}
	r.checkEndpoints(doc.Endpoints)
	if len(r.errs) > 0 {
		return nil, r.errs
	}
	types := cloneTypes(doc.Types)
	symbols := make(map[string]schema.TypeDef, len(types))
	for _, td := range types {
		symbols[td.TypeName()] = td
	}
	return &ResolvedSchema{
		Name:        doc.Name,
		Version:     doc.Version,
		Description: doc.Description,
		Types:       types,
		Endpoints:   append([]schema.EndpointDef(nil), doc.Endpoints...),
		symbols:     symbols,
	}, nil
}

type resolution struct {
	symbols map[string]schema.TypeDef
	errs    SchemaErrors
}

func (r *resolution) report(kind Kind, path, format string, args ...any) {
	r.errs = append(r.errs, &SchemaError{Kind: kind, Path: path, Message: fmt.Sprintf(format, args...)})
}

func (r *resolution) checkIdent(path, what, name string) {
	if !identRe.MatchString(name) {
		r.report(InvalidIdentifier, path, "%s %q is not a valid identifier", what, name)
	}
}

func (r *resolution) collectTypes(types []schema.TypeDef) {
	for _, td := range types {
		name := td.TypeName()
		r.checkIdent(name, "type name", name)
		if isReserved(name) {
			r.report(ReservedName, name, "type name %q is reserved", name)
			continue
		}
		if _, dup := r.symbols[name]; dup {
			r.report(DuplicateType, name, "type %q is declared more than once", name)
			continue
		}
		r.symbols[name] = td
	}
}

func isReserved(name string) bool {
	if name == schema.ResponseGeneric || name == "UUID" {
		return true
	}
	for _, p := range schema.Primitives {
		if string(p) == name {
			return true
		}
	}
	return false
}

func (r *resolution) checkStruct(s *schema.Struct) {
	seen := map[string]string{}
	for _, f := range s.Fields {
		path := s.Name + "." + f.Name
		r.checkIdent(path, "field name", f.Name)
		wire := schema.WireName(f.Name)
		if prev, dup := seen[wire]; dup {
			if prev == f.Name {
				r.report(DuplicateField, path, "field %q is declared more than once", f.Name)
			} else {
				r.report(DuplicateField, path, "field %q collides with %q on the wire key %q", f.Name, prev, wire)
			}
		} else {
			seen[wire] = f.Name
		}
		if f.Type == nil {
			r.report(DanglingReference, path, "field %q has no type", f.Name)
			continue
		}
		if _, isOpt := f.Type.(schema.Optional); f.Optional && isOpt {
			r.report(NestedOptional, path, "field %q is marked optional and already has optional type %s", f.Name, f.Type)
		}
		r.checkRef(path, f.Type)
	}
}

func (r *resolution) checkEnum(e *schema.Enum) {
	seen := map[string]string{}
	for _, v := range e.Variants {
		path := e.Name + "." + v.Tag
		r.checkIdent(path, "variant tag", v.Tag)
		wire := schema.WireName(v.Tag)
		if prev, dup := seen[wire]; dup {
			if prev == v.Tag {
				r.report(DuplicateVariant, path, "variant %q is declared more than once", v.Tag)
			} else {
				r.report(DuplicateVariant, path, "variant %q collides with %q on the wire tag %q", v.Tag, prev, wire)
			}
		} else {
			seen[wire] = v.Tag
		}
		if v.Payload != nil {
			r.checkRef(path, v.Payload)
		}
	}
}

func (r *resolution) checkEndpoints(endpoints []schema.EndpointDef) {
	routes := map[string]string{}
	names := map[string]string{}
	for _, ep := range endpoints {
		path := ep.Name
		r.checkIdent(path, "endpoint name", ep.Name)
		key := strings.ToLower(schema.WireName(ep.Name))
		if prev, dup := names[key]; dup {
			r.report(DuplicateEndpointName, path, "endpoint %q produces the same client method as %q", ep.Name, prev)
		} else {
			names[key] = ep.Name
		}

		switch ep.Method {
		case schema.GET, schema.POST:
		default:
			r.report(UnsupportedMethod, path, "method %q is not supported (use GET or POST)", ep.Method)
		}
		if !strings.HasPrefix(ep.Path, "/") || strings.ContainsAny(ep.Path, " \t?#") {
			r.report(InvalidPath, path, "path %q must start with / and contain no spaces, query or fragment", ep.Path)
		}
		route := string(ep.Method) + " " + ep.Path
		if prev, dup := routes[route]; dup {
			r.report(DuplicateEndpoint, path, "%s is already served by %q", route, prev)
		} else {
			routes[route] = ep.Name
		}

		if ep.Input != nil {
			if ep.Method == schema.GET {
				r.report(GetWithInput, path+".input", "GET endpoint %q cannot take an input", ep.Name)
			}
			r.checkRef(path+".input", ep.Input)
		}
		if ep.Output == nil {
			r.report(MissingOutput, path+".output", "endpoint %q declares no output type", ep.Name)
		} else {
			r.checkRef(path+".output", ep.Output)
		}
	}
}

// checkRef reports dangling names, optional-of-optional and unsupported
// generics anywhere inside ref.
func (r *resolution) checkRef(path string, ref schema.TypeRef) {
	schema.Walk(ref, func(t schema.TypeRef) bool {
		switch t := t.(type) {
		case schema.Optional:
			if _, nested := t.Elem.(schema.Optional); nested {
				r.report(NestedOptional, path, "optional of optional %s", t)
			}
		case schema.Named:
			if _, ok := r.symbols[t.Name]; !ok && !isReserved(t.Name) {
				r.report(DanglingReference, path, "unknown type %q", t.Name)
			} else if !ok {
				r.report(ReservedName, path, "%q is not a type", t.Name)
			}
		case schema.Generic:
			if t.Name != schema.ResponseGeneric || len(t.Args) != 1 {
				r.report(UnknownGeneric, path, "unsupported generic %s (only Response<T> exists)", t)
			}
		}
		return true
	})
}

func cloneTypes(types []schema.TypeDef) []schema.TypeDef {
	out := make([]schema.TypeDef, len(types))
	for i, td := range types {
		switch t := td.(type) {
		case *schema.Struct:
			c := *t
			c.Fields = append([]schema.FieldDef(nil), t.Fields...)
			out[i] = &c
		case *schema.Enum:
			c := *t
			c.Variants = append([]schema.VariantDef(nil), t.Variants...)
			out[i] = &c
		}
	}
	return out
}
