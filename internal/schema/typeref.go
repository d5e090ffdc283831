package schema

import (
	"fmt"
	"strings"
)

// TypeRef is a reference to a type: a Primitive, Named, Optional, Array or
// Generic. The zero TypeRef (nil) means "no type".
type TypeRef interface {
	String() string
	isTypeRef()
}

// Primitive is one of the built-in scalar types.
type Primitive string

const (
	Int    Primitive = "Int"
	Float  Primitive = "Float"
	Bool   Primitive = "Bool"
	String Primitive = "String"
	Uuid   Primitive = "Uuid"
	Date   Primitive = "Date"
)

// Primitives lists the built-in scalars in declaration order.
var Primitives = []Primitive{Int, Float, Bool, String, Uuid, Date}

// Named refers to a TypeDef of the same document by name.
type Named struct {
	Name string
}

// Optional marks a value that may be absent.
type Optional struct {
	Elem TypeRef
}

// Array is an ordered list of Elem.
type Array struct {
	Elem TypeRef
}

// Generic is a parametrized reference. Response with one argument is the
// only generic the resolver accepts.
type Generic struct {
	Name string
	Args []TypeRef
}

// ResponseGeneric is the name of the built-in envelope generic.
const ResponseGeneric = "Response"

func (p Primitive) String() string { return string(p) }
func (n Named) String() string     { return n.Name }
func (o Optional) String() string  { return refString(o.Elem) + "?" }
func (a Array) String() string     { return "[" + refString(a.Elem) + "]" }

func (g Generic) String() string {
	args := make([]string, len(g.Args))
	for i, a := range g.Args {
		args[i] = refString(a)
	}
	return g.Name + "<" + strings.Join(args, ", ") + ">"
}

func (Primitive) isTypeRef() {}
func (Named) isTypeRef()     {}
func (Optional) isTypeRef()  {}
func (Array) isTypeRef()     {}
func (Generic) isTypeRef()   {}

func refString(r TypeRef) string {
	if r == nil {
		return "<nil>"
	}
	return r.String()
}

// NewResponse builds Response<elem>.
func NewResponse(elem TypeRef) Generic {
	return Generic{Name: ResponseGeneric, Args: []TypeRef{elem}}
}

// IsResponse reports whether r is a well-formed Response<T> and returns T.
func IsResponse(r TypeRef) (TypeRef, bool) {
	g, ok := r.(Generic)
	if !ok || g.Name != ResponseGeneric || len(g.Args) != 1 {
		return nil, false
	}
	return g.Args[0], true
}

// Walk calls fn for r and every reference nested in it, outermost first.
// Returning false from fn skips the children of that reference.
func Walk(r TypeRef, fn func(TypeRef) bool) {
	if r == nil || !fn(r) {
		return
	}
	switch t := r.(type) {
	case Optional:
		Walk(t.Elem, fn)
	case Array:
		Walk(t.Elem, fn)
	case Generic:
		for _, a := range t.Args {
			Walk(a, fn)
		}
	}
}

// ParseTypeRef parses the type-expression notation used by structural
// schema documents:
//
//	Int  Todo  [T]  T?  Response<T>
//
// and any composition of them, e.g. "[[Int]?]" or "Response<[Todo]>".
// Identifiers naming a primitive are returned as Primitive, all others as
// Named. "UUID" is accepted as an alias of Uuid.
func ParseTypeRef(expr string) (TypeRef, error) {
	p := &refParser{src: expr}
	p.skipSpace()
	if p.eof() {
		return nil, &TypeExprError{Expr: expr, Offset: 0, Reason: "empty type expression"}
	}
	ref, err := p.parseType()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, p.errorf("unexpected %q", p.src[p.pos])
	}
	return ref, nil
}

// MustParseTypeRef is ParseTypeRef for literals known to be valid.
func MustParseTypeRef(expr string) TypeRef {
	r, err := ParseTypeRef(expr)
	if err != nil {
		panic(err)
	}
	return r
}

// TypeExprError reports a malformed type expression.
type TypeExprError struct {
	Expr   string
	Offset int
	Reason string
}

func (e *TypeExprError) Error() string {
	return fmt.Sprintf("type expression %q at offset %d: %s", e.Expr, e.Offset, e.Reason)
}

type refParser struct {
	src string
	pos int
}

func (p *refParser) eof() bool { return p.pos >= len(p.src) }

func (p *refParser) skipSpace() {
	for !p.eof() && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *refParser) errorf(format string, args ...any) error {
	return &TypeExprError{Expr: p.src, Offset: p.pos, Reason: fmt.Sprintf(format, args...)}
}

func (p *refParser) expect(c byte) error {
	p.skipSpace()
	if p.eof() {
		return p.errorf("expected %q, got end of input", c)
	}
	if p.src[p.pos] != c {
		return p.errorf("expected %q, got %q", c, p.src[p.pos])
	}
	p.pos++
	return nil
}

// parseType handles the postfix '?' suffixes after a base type.
func (p *refParser) parseType() (TypeRef, error) {
	base, err := p.parseBase()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		if p.eof() || p.src[p.pos] != '?' {
			return base, nil
		}
		p.pos++
		base = Optional{Elem: base}
	}
}

func (p *refParser) parseBase() (TypeRef, error) {
	p.skipSpace()
	if p.eof() {
		return nil, p.errorf("expected a type, got end of input")
	}
	if p.src[p.pos] == '[' {
		p.pos++
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if err := p.expect(']'); err != nil {
			return nil, err
		}
		return Array{Elem: elem}, nil
	}
	name := p.ident()
	if name == "" {
		return nil, p.errorf("unexpected %q", p.src[p.pos])
	}
	p.skipSpace()
	if !p.eof() && p.src[p.pos] == '<' {
		p.pos++
		var args []TypeRef
		for {
			arg, err := p.parseType()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			p.skipSpace()
			if !p.eof() && p.src[p.pos] == ',' {
				p.pos++
				continue
			}
			break
		}
		if err := p.expect('>'); err != nil {
			return nil, err
		}
		return Generic{Name: name, Args: args}, nil
	}
	if prim, ok := primitiveByName(name); ok {
		return prim, nil
	}
	return Named{Name: name}, nil
}

func (p *refParser) ident() string {
	start := p.pos
	for !p.eof() {
		c := p.src[p.pos]
		if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (p.pos > start && c >= '0' && c <= '9') {
			p.pos++
			continue
		}
		break
	}
	return p.src[start:p.pos]
}

func primitiveByName(name string) (Primitive, bool) {
	if name == "UUID" {
		return Uuid, true
	}
	for _, p := range Primitives {
		if string(p) == name {
			return p, true
		}
	}
	return "", false
}
