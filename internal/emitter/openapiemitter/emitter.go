// Package openapiemitter describes the generated API as an OpenAPI 3
// document, so that tools outside the Fen toolchain can call it.
package openapiemitter

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/goccy/go-json"

	"github.com/fenlang/fen/internal/emitter"
	"github.com/fenlang/fen/internal/resolver"
	"github.com/fenlang/fen/internal/schema"
)

const TargetName = "openapi"

// DocumentFile is the single unit this target emits.
const DocumentFile = "openapi.json"

const (
	failureSchema = "FenFailure"
	bearerScheme  = "bearerAuth"
	uuidPattern   = `^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`
)

type Emitter struct{}

func New() *Emitter { return &Emitter{} }

func (*Emitter) Name() string { return TargetName }

// Emit builds the document, validates it with kin-openapi and renders it as
// indented JSON. Every construct is expressible; a document that fails
// validation is reported as a TargetError.
func (e *Emitter) Emit(ctx context.Context, rs *resolver.ResolvedSchema, opts emitter.Options) (*emitter.Tree, error) {
	if rs == nil {
		return nil, fmt.Errorf("openapiemitter: nil schema")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkNames(rs); err != nil {
		return nil, err
	}
	doc := Build(rs, opts)
	if err := doc.Validate(ctx); err != nil {
		return nil, &emitter.TargetError{Target: TargetName, Construct: "document", Reason: err.Error()}
	}
	raw, err := doc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("openapiemitter: marshal: %w", err)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("openapiemitter: indent: %w", err)
	}
	out.WriteByte('\n')
	tree := emitter.NewTree(TargetName)
	if err := tree.Add(DocumentFile, out.Bytes()); err != nil {
		return nil, err
	}
	return tree, nil
}

// checkNames fails when a variant schema would take the name of a type.
func checkNames(rs *resolver.ResolvedSchema) error {
	names := map[string]string{"runtime " + failureSchema: failureSchema}
	for _, td := range rs.Types {
		names[td.TypeName()] = td.TypeName()
		if en, ok := td.(*schema.Enum); ok {
			for _, v := range en.Variants {
				names[en.Name+"."+v.Tag] = variantSchema(en.Name, v.Tag)
			}
		}
	}
	return emitter.CheckTypeNames(TargetName, names)
}

func variantSchema(enum, tag string) string { return enum + schema.SnakeToPascal(schema.WireName(tag)) }

// builder holds the component schemas so that references can point at
// their values; kin-openapi validates only resolved references.
type builder struct {
	key        string
	components openapi3.Schemas
}

// Build returns the unvalidated document for rs.
func Build(rs *resolver.ResolvedSchema, opts emitter.Options) *openapi3.T {
	b := &builder{key: opts.Key(), components: openapi3.Schemas{}}
	title := rs.Name
	if title == "" {
		title = "Fen API"
	}
	version := rs.Version
	if version == "" {
		version = "0.0.0"
	}
	lines := emitter.DocLines(rs.Description)
	lines = append(lines, opts.Stamp.Lines()...)
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       title,
			Version:     version,
			Description: strings.Join(lines, "\n"),
		},
		Paths: openapi3.Paths{},
		Components: &openapi3.Components{
			Schemas:         b.components,
			SecuritySchemes: openapi3.SecuritySchemes{},
		},
	}
	if opts.Endpoint != "" {
		doc.Servers = append(doc.Servers, &openapi3.Server{URL: opts.Endpoint, Description: "development"})
	}
	if opts.EndpointProd != "" {
		doc.Servers = append(doc.Servers, &openapi3.Server{URL: opts.EndpointProd, Description: "production"})
	}

	// Declare every component before filling any, so references resolve
	// regardless of declaration order.
	for _, td := range rs.Types {
		b.components[td.TypeName()] = &openapi3.SchemaRef{Value: &openapi3.Schema{}}
		if en, ok := td.(*schema.Enum); ok {
			for _, v := range en.Variants {
				b.components[variantSchema(en.Name, v.Tag)] = &openapi3.SchemaRef{Value: &openapi3.Schema{}}
			}
		}
	}
	b.components[failureSchema] = &openapi3.SchemaRef{Value: failure()}
	for _, td := range rs.Types {
		switch t := td.(type) {
		case *schema.Struct:
			*b.components[t.Name].Value = *b.structSchema(t)
		case *schema.Enum:
			*b.components[t.Name].Value = *b.enumSchema(t)
		}
	}

	auth := false
	for _, ep := range rs.Endpoints {
		op := &openapi3.Operation{
			OperationID: schema.PascalToCamel(schema.SnakeToPascal(ep.Name)),
			Description: strings.Join(emitter.DocLines(ep.Description), "\n"),
			Responses: openapi3.Responses{
				"200": &openapi3.ResponseRef{Value: openapi3.NewResponse().
					WithDescription("Response envelope").
					WithJSONSchemaRef(b.envelope(ep.Output))},
			},
		}
		if ep.Input != nil {
			op.RequestBody = &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().
				WithRequired(true).
				WithJSONSchemaRef(b.ref(ep.Input))}
		}
		if ep.RequiresAuth {
			auth = true
			op.Security = &openapi3.SecurityRequirements{openapi3.NewSecurityRequirement().Authenticate(bearerScheme)}
		}
		doc.AddOperation(ep.Path, string(ep.Method), op)
	}
	if auth {
		doc.Components.SecuritySchemes[bearerScheme] = &openapi3.SecuritySchemeRef{Value: openapi3.NewJWTSecurityScheme()}
	}
	return doc
}

func failure() *openapi3.Schema {
	s := openapi3.NewObjectSchema()
	s.Properties = openapi3.Schemas{
		"type":    openapi3.NewSchemaRef("", tagSchema("failure")),
		"message": openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
		"status":  openapi3.NewSchemaRef("", openapi3.NewInt64Schema()),
	}
	s.Required = []string{"type", "message", "status"}
	return s
}

func tagSchema(tag string) *openapi3.Schema {
	return openapi3.NewStringSchema().WithEnum(tag)
}

func componentRef(name string) string { return "#/components/schemas/" + name }

// ref returns the schema of a type reference, pointing at components for
// named types.
func (b *builder) ref(r schema.TypeRef) *openapi3.SchemaRef {
	switch t := r.(type) {
	case schema.Primitive:
		return openapi3.NewSchemaRef("", primitive(t))
	case schema.Named:
		return openapi3.NewSchemaRef(componentRef(t.Name), b.components[t.Name].Value)
	case schema.Optional:
		inner := b.ref(t.Elem)
		if inner.Ref == "" {
			s := *inner.Value
			s.Nullable = true
			return openapi3.NewSchemaRef("", &s)
		}
		return openapi3.NewSchemaRef("", &openapi3.Schema{Nullable: true, AllOf: openapi3.SchemaRefs{inner}})
	case schema.Array:
		s := openapi3.NewArraySchema()
		s.Items = b.ref(t.Elem)
		return openapi3.NewSchemaRef("", s)
	case schema.Generic:
		if elem, ok := schema.IsResponse(t); ok {
			return b.envelope(elem)
		}
	}
	panic(fmt.Sprintf("openapiemitter: unresolved type %v", r))
}

func primitive(p schema.Primitive) *openapi3.Schema {
	switch p {
	case schema.Int:
		return openapi3.NewInt64Schema()
	case schema.Float:
		return openapi3.NewFloat64Schema()
	case schema.Bool:
		return openapi3.NewBoolSchema()
	case schema.Uuid:
		return openapi3.NewStringSchema().WithPattern(uuidPattern)
	case schema.Date:
		return openapi3.NewDateTimeSchema()
	default:
		return openapi3.NewStringSchema()
	}
}

// envelope is the success-or-failure object around a value of type elem.
func (b *builder) envelope(elem schema.TypeRef) *openapi3.SchemaRef {
	success := openapi3.NewObjectSchema()
	success.Properties = openapi3.Schemas{
		"type": openapi3.NewSchemaRef("", tagSchema("success")),
		b.key:  b.ref(elem),
	}
	success.Required = []string{"type", b.key}
	s := &openapi3.Schema{OneOf: openapi3.SchemaRefs{
		openapi3.NewSchemaRef("", success),
		openapi3.NewSchemaRef(componentRef(failureSchema), b.components[failureSchema].Value),
	}}
	return openapi3.NewSchemaRef("", s)
}

func (b *builder) structSchema(st *schema.Struct) *openapi3.Schema {
	s := openapi3.NewObjectSchema()
	s.Description = strings.Join(emitter.DocLines(st.Description), "\n")
	for _, f := range st.Fields {
		prop := b.ref(f.Ref())
		if f.Description != "" && prop.Ref == "" {
			prop.Value.Description = strings.Join(emitter.DocLines(f.Description), "\n")
		}
		s.Properties[schema.WireName(f.Name)] = prop
		if _, optional := f.Ref().(schema.Optional); !optional {
			s.Required = append(s.Required, schema.WireName(f.Name))
		}
	}
	return s
}

// enumSchema is a oneOf over the variant components, discriminated by
// "type".
func (b *builder) enumSchema(en *schema.Enum) *openapi3.Schema {
	s := &openapi3.Schema{Description: strings.Join(emitter.DocLines(en.Description), "\n")}
	if len(en.Variants) == 0 {
		s.Not = openapi3.NewSchemaRef("", &openapi3.Schema{})
		return s
	}
	s.Discriminator = &openapi3.Discriminator{PropertyName: "type", Mapping: map[string]string{}}
	for _, v := range en.Variants {
		name := variantSchema(en.Name, v.Tag)
		tag := schema.WireName(v.Tag)
		vs := openapi3.NewObjectSchema()
		vs.Description = strings.Join(emitter.DocLines(v.Description), "\n")
		vs.Properties["type"] = openapi3.NewSchemaRef("", tagSchema(tag))
		vs.Required = []string{"type"}
		if v.Payload != nil {
			vs.Properties[b.key] = b.ref(v.Payload)
			if _, optional := v.Payload.(schema.Optional); !optional {
				vs.Required = append(vs.Required, b.key)
			}
		}
		*b.components[name].Value = *vs
		s.OneOf = append(s.OneOf, openapi3.NewSchemaRef(componentRef(name), b.components[name].Value))
		s.Discriminator.Mapping[tag] = componentRef(name)
	}
	return s
}
