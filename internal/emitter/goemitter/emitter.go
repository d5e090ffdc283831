// Package goemitter renders a Go client package: one file per type and per
// endpoint plus a shared runtime file.
package goemitter

import (
	"bytes"
	"context"
	"fmt"
	"go/format"
	"strings"
	"text/template"

	"github.com/fenlang/fen/internal/emitter"
	"github.com/fenlang/fen/internal/resolver"
	"github.com/fenlang/fen/internal/schema"
)

// TargetName is the registry name of the Go target.
const TargetName = "go"

// RuntimeFile is the path of the shared runtime unit.
const RuntimeFile = "fen_runtime.go"

const uuidImport = `"github.com/google/uuid"`

var runtimeTmpl = template.Must(template.New("runtime").Parse(runtimeTemplate))

// runtimeNames are the exported identifiers of the runtime file.
var runtimeNames = []string{
	"ApplicationError", "Client", "Config", "Date", "DefaultConfig",
	"DevelopmentEndpoint", "NewClient", "NewDate", "ProductionEndpoint",
	"ProtocolDecodeError", "Ptr", "Response",
}

var keywords = map[string]bool{
	"break": true, "case": true, "chan": true, "const": true, "continue": true,
	"default": true, "defer": true, "else": true, "fallthrough": true, "for": true,
	"func": true, "go": true, "goto": true, "if": true, "import": true,
	"interface": true, "map": true, "package": true, "range": true, "return": true,
	"select": true, "struct": true, "switch": true, "type": true, "var": true,
}

// locals are identifiers endpoint methods declare themselves.
var locals = map[string]bool{"ctx": true, "c": true, "sessionToken": true, "body": true, "err": true}

var initialisms = map[string]bool{
	"api": true, "http": true, "https": true, "id": true, "json": true,
	"url": true, "uri": true, "uuid": true, "ip": true, "sql": true,
}

// Emitter is the Go target.
type Emitter struct{}

// New returns the Go target.
func New() *Emitter { return &Emitter{} }

func (*Emitter) Name() string { return TargetName }

// Emit renders the client package. Struct fields of optional type are
// pointers, so only structs containing each other by value are rejected.
func (e *Emitter) Emit(ctx context.Context, rs *resolver.ResolvedSchema, opts emitter.Options) (*emitter.Tree, error) {
	if rs == nil {
		return nil, fmt.Errorf("goemitter: nil schema")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cycle := emitter.StructValueCycle(rs, true); cycle != nil {
		return nil, &emitter.TargetError{
			Target:    TargetName,
			Construct: strings.Join(cycle, " -> "),
			Reason:    "structs contain each other by value; make one of the fields optional",
		}
	}
	g := &generator{rs: rs, opts: opts, pkg: PackageName(opts.PackageName, rs.Name)}
	if err := g.checkNames(); err != nil {
		return nil, err
	}

	tree := emitter.NewTree(TargetName)
	runtime, err := g.runtime()
	if err != nil {
		return nil, err
	}
	if err := tree.Add(RuntimeFile, runtime); err != nil {
		return nil, err
	}
	for _, td := range rs.Types {
		var buf bytes.Buffer
		switch t := td.(type) {
		case *schema.Struct:
			g.writeStruct(&buf, t)
		case *schema.Enum:
			g.writeEnum(&buf, t)
		}
		src, err := g.format("type "+td.TypeName(), buf.Bytes())
		if err != nil {
			return nil, err
		}
		if err := tree.Add("type_"+schema.ToSnake(td.TypeName())+".go", src); err != nil {
			return nil, err
		}
	}
	for _, ep := range rs.Endpoints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		g.writeEndpoint(&buf, ep)
		src, err := g.format("endpoint "+ep.Name, buf.Bytes())
		if err != nil {
			return nil, err
		}
		if err := tree.Add("endpoint_"+schema.ToSnake(ep.Name)+".go", src); err != nil {
			return nil, err
		}
	}
	return tree, nil
}

// PackageName sanitizes name into a Go package name, falling back to the
// schema name and then to "fenclient".
func PackageName(name, schemaName string) string {
	for _, candidate := range []string{name, schemaName} {
		var b strings.Builder
		for _, r := range strings.ToLower(candidate) {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9' && b.Len() > 0) {
				b.WriteRune(r)
			}
		}
		if s := b.String(); s != "" && !keywords[s] {
			return s
		}
	}
	return "fenclient"
}

type generator struct {
	rs   *resolver.ResolvedSchema
	opts emitter.Options
	pkg  string
}

func (g *generator) checkNames() error {
	names := map[string]string{}
	for _, n := range runtimeNames {
		names["runtime "+n] = n
	}
	for _, td := range g.rs.Types {
		tn := typeName(td.TypeName())
		names[td.TypeName()] = tn
		switch t := td.(type) {
		case *schema.Struct:
			if err := checkFields(t); err != nil {
				return err
			}
		case *schema.Enum:
			names[t.Name+" decoder"] = "Decode" + tn
			for _, v := range t.Variants {
				names[t.Name+"."+v.Tag] = variantName(t.Name, v.Tag)
			}
		}
	}
	return emitter.CheckTypeNames(TargetName, names)
}

func checkFields(s *schema.Struct) error {
	seen := map[string]string{}
	for _, f := range s.Fields {
		n := exportName(f.Name)
		if n == "MarshalJSON" || n == "UnmarshalJSON" {
			return &emitter.TargetError{Target: TargetName, Construct: s.Name + "." + f.Name, Reason: "field name " + n + " collides with a generated method"}
		}
		if prev, dup := seen[n]; dup {
			return &emitter.TargetError{Target: TargetName, Construct: s.Name + "." + f.Name, Reason: "Go field name " + n + " collides with " + prev}
		}
		seen[n] = f.Name
	}
	return nil
}

func (g *generator) runtime() ([]byte, error) {
	var buf bytes.Buffer
	g.header(&buf)
	data := struct {
		Package      string
		Endpoint     string
		EndpointProd string
		PayloadKey   string
	}{g.pkg, g.opts.Endpoint, g.opts.EndpointProd, g.opts.Key()}
	if err := runtimeTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("goemitter: render runtime: %w", err)
	}
	return g.format("runtime", buf.Bytes())
}

func (g *generator) format(unit string, src []byte) ([]byte, error) {
	out, err := format.Source(src)
	if err != nil {
		return nil, fmt.Errorf("goemitter: format %s: %w", unit, err)
	}
	return out, nil
}

func (g *generator) header(buf *bytes.Buffer) {
	fmt.Fprintf(buf, "// Code generated by %s. DO NOT EDIT.\n", g.opts.Stamp.Tool())
	fmt.Fprintf(buf, "// Created at %s.\n\n", g.opts.Stamp.Timestamp())
}

func (g *generator) preamble(buf *bytes.Buffer, imports ...string) {
	g.header(buf)
	fmt.Fprintf(buf, "package %s\n\n", g.pkg)
	switch len(imports) {
	case 0:
	case 1:
		fmt.Fprintf(buf, "import %s\n\n", imports[0])
	default:
		buf.WriteString("import (\n")
		for _, imp := range imports {
			if imp == uuidImport {
				buf.WriteByte('\n')
			}
			fmt.Fprintf(buf, "\t%s\n", imp)
		}
		buf.WriteString(")\n\n")
	}
}

func writeDoc(buf *bytes.Buffer, text, fallback string) {
	lines := emitter.DocLines(text)
	if len(lines) == 0 && fallback != "" {
		lines = []string{fallback}
	}
	for _, l := range lines {
		if l == "" {
			buf.WriteString("//\n")
			continue
		}
		fmt.Fprintf(buf, "// %s\n", l)
	}
}

func usesUUID(refs ...schema.TypeRef) bool {
	found := false
	for _, r := range refs {
		schema.Walk(r, func(t schema.TypeRef) bool {
			if p, ok := t.(schema.Primitive); ok && p == schema.Uuid {
				found = true
			}
			return !found
		})
	}
	return found
}

func (g *generator) writeStruct(buf *bytes.Buffer, s *schema.Struct) {
	refs := emitter.DefRefs(s)
	imports := []string{`"encoding/json"`}
	if usesUUID(refs...) {
		imports = append(imports, uuidImport)
	}
	g.preamble(buf, imports...)
	name := typeName(s.Name)

	writeDoc(buf, s.Description, "")
	fmt.Fprintf(buf, "type %s struct {\n", name)
	for _, f := range s.Fields {
		writeDoc(buf, f.Description, "")
		fmt.Fprintf(buf, "\t%s %s\n", exportName(f.Name), g.goType(f.Ref()))
	}
	buf.WriteString("}\n\n")

	fmt.Fprintf(buf, "func (v %s) MarshalJSON() ([]byte, error) { return encode%s(v) }\n\n", name, name)
	fmt.Fprintf(buf, "func (v *%s) UnmarshalJSON(data []byte) error {\n", name)
	fmt.Fprintf(buf, "\tout, err := decode%s(\"$\", data)\n", name)
	buf.WriteString("\tif err != nil {\n\t\treturn err\n\t}\n\t*v = out\n\treturn nil\n}\n\n")

	fmt.Fprintf(buf, "func encode%s(v %s) (json.RawMessage, error) {\n", name, name)
	buf.WriteString("\to := fenNewObject()\n")
	for _, f := range s.Fields {
		fmt.Fprintf(buf, "\tfenWriteField(o, %q, v.%s, %s)\n", schema.WireName(f.Name), exportName(f.Name), g.encExpr(f.Ref()))
	}
	buf.WriteString("\treturn o.finish()\n}\n\n")

	fmt.Fprintf(buf, "func decode%s(path string, raw json.RawMessage) (%s, error) {\n", name, name)
	fmt.Fprintf(buf, "\tr, err := fenReadObject(path, %q, raw)\n", s.Name)
	fmt.Fprintf(buf, "\tif err != nil {\n\t\treturn %s{}, err\n\t}\n", name)
	fmt.Fprintf(buf, "\tvar v %s\n", name)
	for _, f := range s.Fields {
		ref := f.Ref()
		reader := "fenReadField"
		if _, ok := ref.(schema.Optional); ok {
			reader = "fenReadOptionalField"
		}
		fmt.Fprintf(buf, "\tv.%s = %s(r, %q, %s)\n", exportName(f.Name), reader, schema.WireName(f.Name), g.decExpr(ref))
	}
	buf.WriteString("\treturn v, r.err\n}\n")
}

func (g *generator) writeEnum(buf *bytes.Buffer, e *schema.Enum) {
	refs := emitter.DefRefs(e)
	imports := []string{`"encoding/json"`}
	if usesUUID(refs...) {
		imports = append(imports, uuidImport)
	}
	g.preamble(buf, imports...)
	name := typeName(e.Name)

	variants := make([]string, len(e.Variants))
	for i, v := range e.Variants {
		variants[i] = variantName(e.Name, v.Tag)
	}
	writeDoc(buf, e.Description, "")
	if len(variants) > 0 {
		if e.Description != "" {
			buf.WriteString("//\n")
		}
		fmt.Fprintf(buf, "// A %s is one of %s.\n", name, strings.Join(variants, ", "))
	}
	fmt.Fprintf(buf, "type %s interface {\n\tfenTag() (string, func() (json.RawMessage, error))\n}\n\n", name)

	for i, v := range e.Variants {
		vn := variants[i]
		writeDoc(buf, v.Description, fmt.Sprintf("%s is the %q variant of %s.", vn, schema.WireName(v.Tag), name))
		if v.Payload == nil {
			fmt.Fprintf(buf, "type %s struct{}\n\n", vn)
			fmt.Fprintf(buf, "func (%s) fenTag() (string, func() (json.RawMessage, error)) { return %q, nil }\n\n", vn, schema.WireName(v.Tag))
		} else {
			fmt.Fprintf(buf, "type %s struct {\n\tValue %s\n}\n\n", vn, g.goType(v.Payload))
			fmt.Fprintf(buf, "func (v %s) fenTag() (string, func() (json.RawMessage, error)) {\n", vn)
			fmt.Fprintf(buf, "\treturn %q, func() (json.RawMessage, error) { return %s(v.Value) }\n}\n\n", schema.WireName(v.Tag), g.encExpr(v.Payload))
		}
		fmt.Fprintf(buf, "func (v %s) MarshalJSON() ([]byte, error) { return encode%s(v) }\n\n", vn, name)
	}

	fmt.Fprintf(buf, "// Decode%s decodes a %s from its wire form.\n", name, name)
	fmt.Fprintf(buf, "func Decode%s(data []byte) (%s, error) { return decode%s(\"$\", data) }\n\n", name, name, name)
	fmt.Fprintf(buf, "func encode%s(v %s) (json.RawMessage, error) { return fenEncodeTagged(%q, v) }\n\n", name, name, e.Name)
	table := unexportName(e.Name) + "Variants"
	fmt.Fprintf(buf, "func decode%s(path string, raw json.RawMessage) (%s, error) {\n\treturn fenDecodeTagged(path, raw, %s())\n}\n\n", name, name, table)

	fmt.Fprintf(buf, "func %s() fenVariants[%s] {\n", table, name)
	fmt.Fprintf(buf, "\treturn fenVariants[%s]{name: %q, variants: map[string]fenVariant[%s]{\n", name, e.Name, name)
	for i, v := range e.Variants {
		vn := variants[i]
		wire := schema.WireName(v.Tag)
		if v.Payload == nil {
			fmt.Fprintf(buf, "\t\t%q: {decode: func(string, json.RawMessage) (%s, error) { return %s{}, nil }},\n", wire, name, vn)
			continue
		}
		_, optional := v.Payload.(schema.Optional)
		fmt.Fprintf(buf, "\t\t%q: {payload: true, optional: %t, decode: func(path string, raw json.RawMessage) (%s, error) {\n", wire, optional, name)
		fmt.Fprintf(buf, "\t\t\tp, err := %s(path, raw)\n", g.decExpr(v.Payload))
		buf.WriteString("\t\t\tif err != nil {\n\t\t\t\treturn nil, err\n\t\t\t}\n")
		fmt.Fprintf(buf, "\t\t\treturn %s{Value: p}, nil\n\t\t}},\n", vn)
	}
	buf.WriteString("\t}}\n}\n")
}

type param struct {
	name  string
	typ   string
	field string // struct field the parameter fills, when the input is a struct
}

func (g *generator) params(ep schema.EndpointDef) ([]param, *schema.Struct) {
	if ep.Input == nil {
		return nil, nil
	}
	s, ok := g.rs.InputStruct(ep)
	if !ok {
		return []param{{name: "input", typ: g.goType(ep.Input)}}, nil
	}
	out := make([]param, 0, len(s.Fields))
	used := map[string]bool{}
	for _, f := range s.Fields {
		n := paramName(f.Name)
		for used[n] {
			n += "_"
		}
		used[n] = true
		out = append(out, param{name: n, typ: g.goType(f.Ref()), field: exportName(f.Name)})
	}
	return out, s
}

func (g *generator) writeEndpoint(buf *bytes.Buffer, ep schema.EndpointDef) {
	params, input := g.params(ep)
	var paramTypes []schema.TypeRef
	if input != nil {
		paramTypes = emitter.DefRefs(input)
	} else if ep.Input != nil {
		paramTypes = []schema.TypeRef{ep.Input}
	}
	imports := []string{`"context"`}
	if usesUUID(append(paramTypes, ep.Output)...) {
		imports = append(imports, uuidImport)
	}
	g.preamble(buf, imports...)

	method := exportName(ep.Name)
	result := "Response[" + g.goType(ep.Output) + "]"
	writeDoc(buf, ep.Description, fmt.Sprintf("%s calls %s %s.", method, ep.Method, ep.Path))

	sig := []string{"ctx context.Context"}
	for _, p := range params {
		sig = append(sig, p.name+" "+p.typ)
	}
	token := `""`
	if ep.RequiresAuth {
		sig = append(sig, "sessionToken string")
		token = "sessionToken"
	}
	fmt.Fprintf(buf, "func (c *Client) %s(%s) (%s, error) {\n", method, strings.Join(sig, ", "), result)

	body := "nil"
	if ep.Input != nil {
		body = "body"
		if input != nil {
			fields := make([]string, len(params))
			for i, p := range params {
				fields[i] = p.field + ": " + p.name
			}
			fmt.Fprintf(buf, "\tbody, err := encode%s(%s{%s})\n", typeName(input.Name), typeName(input.Name), strings.Join(fields, ", "))
		} else {
			fmt.Fprintf(buf, "\tbody, err := %s(input)\n", g.encExpr(ep.Input))
		}
		fmt.Fprintf(buf, "\tif err != nil {\n\t\treturn %s{}, err\n\t}\n", result)
	}
	fmt.Fprintf(buf, "\treturn fenCall(ctx, c, %q, %q, %s, %s, %s)\n}\n", string(ep.Method), ep.Path, body, token, g.decExpr(ep.Output))
}

func (g *generator) goType(ref schema.TypeRef) string {
	switch t := ref.(type) {
	case schema.Primitive:
		switch t {
		case schema.Int:
			return "int64"
		case schema.Float:
			return "float64"
		case schema.Bool:
			return "bool"
		case schema.String:
			return "string"
		case schema.Uuid:
			return "uuid.UUID"
		case schema.Date:
			return "Date"
		}
	case schema.Named:
		return typeName(t.Name)
	case schema.Optional:
		if g.isEnum(t.Elem) {
			return g.goType(t.Elem)
		}
		return "*" + g.goType(t.Elem)
	case schema.Array:
		return "[]" + g.goType(t.Elem)
	case schema.Generic:
		if elem, ok := schema.IsResponse(t); ok {
			return "Response[" + g.goType(elem) + "]"
		}
	}
	panic(fmt.Sprintf("goemitter: unresolved type %v", ref))
}

// isEnum reports whether ref names an enum. Enums are interfaces, so an
// optional enum is the nil interface rather than a pointer.
func (g *generator) isEnum(ref schema.TypeRef) bool {
	n, ok := ref.(schema.Named)
	if !ok {
		return false
	}
	_, ok = g.rs.Enum(n.Name)
	return ok
}

var primitiveCodec = map[schema.Primitive]string{
	schema.Int:    "Int",
	schema.Float:  "Float",
	schema.Bool:   "Bool",
	schema.String: "String",
	schema.Uuid:   "UUID",
	schema.Date:   "Date",
}

func (g *generator) encExpr(ref schema.TypeRef) string { return g.codecExpr("Encode", "encode", ref) }
func (g *generator) decExpr(ref schema.TypeRef) string { return g.codecExpr("Decode", "decode", ref) }

// codecExpr spells the encoder or decoder of ref as a composition of
// runtime combinators, e.g. fenDecodeArray(fenDecodeOptional(decodeTodo)).
func (g *generator) codecExpr(runtimeVerb, typeVerb string, ref schema.TypeRef) string {
	switch t := ref.(type) {
	case schema.Primitive:
		return "fen" + runtimeVerb + primitiveCodec[t]
	case schema.Named:
		return typeVerb + typeName(t.Name)
	case schema.Optional:
		if g.isEnum(t.Elem) {
			return "fen" + runtimeVerb + "Nilable(" + g.codecExpr(runtimeVerb, typeVerb, t.Elem) + ")"
		}
		return "fen" + runtimeVerb + "Optional(" + g.codecExpr(runtimeVerb, typeVerb, t.Elem) + ")"
	case schema.Array:
		return "fen" + runtimeVerb + "Array(" + g.codecExpr(runtimeVerb, typeVerb, t.Elem) + ")"
	case schema.Generic:
		if elem, ok := schema.IsResponse(t); ok {
			return "fen" + runtimeVerb + "Response(" + g.codecExpr(runtimeVerb, typeVerb, elem) + ")"
		}
	}
	panic(fmt.Sprintf("goemitter: unresolved type %v", ref))
}

// exportName converts a schema identifier to an exported Go name with the
// usual initialisms: "user_id" and "userId" both become "UserID".
func exportName(ident string) string {
	var b strings.Builder
	for _, w := range schema.Words(ident) {
		b.WriteString(exportWord(w))
	}
	if b.Len() == 0 {
		return "X"
	}
	return b.String()
}

func exportWord(w string) string {
	lw := strings.ToLower(w)
	if initialisms[lw] {
		return strings.ToUpper(lw)
	}
	return strings.ToUpper(w[:1]) + w[1:]
}

func unexportName(ident string) string {
	words := schema.Words(ident)
	if len(words) == 0 {
		return "x"
	}
	var b strings.Builder
	b.WriteString(strings.ToLower(words[0]))
	for _, w := range words[1:] {
		b.WriteString(exportWord(w))
	}
	return b.String()
}

func paramName(field string) string {
	n := unexportName(field)
	if keywords[n] || locals[n] {
		return n + "Arg"
	}
	return n
}

func typeName(name string) string { return exportName(name) }

func variantName(enum, tag string) string { return typeName(enum) + exportName(tag) }
