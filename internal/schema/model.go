package schema

// The schema model is the in-memory intermediate representation every
// target emitter consumes. It is built once per run by the loader and is
// not mutated after it has been handed to the resolver.

// Method is the HTTP method of an endpoint. Only GET and POST exist.
type Method string

const (
	GET  Method = "GET"
	POST Method = "POST"
)

// Document is a complete schema: ordered type definitions and endpoints.
// Type order only affects emission order.
type Document struct {
	Name        string
	Version     string
	Description string
	Types       []TypeDef
	Endpoints   []EndpointDef
}

// TypeDef is either a *Struct or an *Enum.
type TypeDef interface {
	TypeName() string
	Doc() string
	isTypeDef()
}

// Struct is a named record type.
type Struct struct {
	Name        string
	Description string
	Fields      []FieldDef
}

// Enum is a named tagged union. Each variant carries at most one payload.
type Enum struct {
	Name        string
	Description string
	Variants    []VariantDef
}

func (s *Struct) TypeName() string { return s.Name }
func (s *Struct) Doc() string      { return s.Description }
func (*Struct) isTypeDef()         {}

func (e *Enum) TypeName() string { return e.Name }
func (e *Enum) Doc() string      { return e.Description }
func (*Enum) isTypeDef()         {}

// FieldDef is one struct field. Optional is shorthand for wrapping Type in
// Optional; combining the flag with an Optional type is rejected by the
// resolver.
type FieldDef struct {
	Name        string
	Description string
	Type        TypeRef
	Optional    bool
}

// Ref returns the effective type of the field, with the Optional flag
// folded into the reference.
func (f FieldDef) Ref() TypeRef {
	if f.Optional {
		return Optional{Elem: f.Type}
	}
	return f.Type
}

// VariantDef is one enum variant. Payload is nil for a unit variant.
type VariantDef struct {
	Tag         string
	Description string
	Payload     TypeRef
}

// HasPayload reports whether the variant carries a value.
func (v VariantDef) HasPayload() bool { return v.Payload != nil }

// EndpointDef is a single request/response operation.
type EndpointDef struct {
	Name         string
	Description  string
	Method       Method
	Path         string
	Input        TypeRef // nil when the endpoint takes no input
	Output       TypeRef
	RequiresAuth bool
}

// HasInput reports whether the endpoint sends a request body.
func (e EndpointDef) HasInput() bool { return e.Input != nil }
