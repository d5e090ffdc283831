// Package npmemitter renders a TypeScript client as an npm package.
package npmemitter

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/goccy/go-json"

	"github.com/fenlang/fen/internal/emitter"
	"github.com/fenlang/fen/internal/resolver"
	"github.com/fenlang/fen/internal/schema"
)

// TargetName is the registry name of the TypeScript target; "npm" is
// registered as an alias.
const TargetName = "typescript"

var runtimeTmpl = template.Must(template.New("runtime.ts").Parse(runtimeTemplate))

var reserved = map[string]bool{
	"await": true, "break": true, "case": true, "catch": true, "class": true,
	"const": true, "continue": true, "debugger": true, "default": true, "delete": true,
	"do": true, "else": true, "enum": true, "export": true, "extends": true,
	"false": true, "finally": true, "for": true, "function": true, "if": true,
	"implements": true, "import": true, "in": true, "instanceof": true, "interface": true,
	"let": true, "new": true, "null": true, "package": true, "private": true,
	"protected": true, "public": true, "return": true, "static": true, "super": true,
	"switch": true, "this": true, "throw": true, "true": true, "try": true,
	"typeof": true, "var": true, "void": true, "while": true, "with": true, "yield": true,
	// declared by every endpoint function
	"client": true, "sessionToken": true, "fen": true,
}

// runtimeExports are re-exported by index.ts next to the generated names.
var runtimeExports = []string{"ApiClient", "ClientConfig", "ProtocolDecodeError", "Response", "endpoints", "fen"}

// Emitter is the TypeScript target.
type Emitter struct{}

// New returns the TypeScript target.
func New() *Emitter { return &Emitter{} }

func (*Emitter) Name() string { return TargetName }

// Emit renders runtime.ts, one module per type and endpoint, index.ts and
// package.json. Every schema construct has a TypeScript mapping, including
// nested Response<T> values.
func (e *Emitter) Emit(ctx context.Context, rs *resolver.ResolvedSchema, opts emitter.Options) (*emitter.Tree, error) {
	if rs == nil {
		return nil, fmt.Errorf("npmemitter: nil schema")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkNames(rs); err != nil {
		return nil, err
	}
	tree := emitter.NewTree(TargetName)
	header := []byte(emitter.Header("//", opts.Stamp))

	var runtime bytes.Buffer
	runtime.Write(header)
	data := struct{ Endpoint, EndpointProd, PayloadKey string }{opts.Endpoint, opts.EndpointProd, opts.Key()}
	if err := runtimeTmpl.Execute(&runtime, data); err != nil {
		return nil, fmt.Errorf("npmemitter: render runtime: %w", err)
	}
	if err := tree.Add("runtime.ts", runtime.Bytes()); err != nil {
		return nil, err
	}

	var index bytes.Buffer
	index.Write(header)
	index.WriteString("export * as fen from \"./runtime\";\n")
	index.WriteString("export { ApiClient, ProtocolDecodeError, endpoints } from \"./runtime\";\n")
	index.WriteString("export type { ClientConfig, Response } from \"./runtime\";\n")

	for _, td := range rs.Types {
		var buf bytes.Buffer
		buf.Write(header)
		switch t := td.(type) {
		case *schema.Struct:
			writeStruct(&buf, t)
		case *schema.Enum:
			writeEnum(&buf, t)
		}
		if err := tree.Add("types/"+td.TypeName()+".ts", buf.Bytes()); err != nil {
			return nil, err
		}
		fmt.Fprintf(&index, "export * from \"./types/%s\";\n", td.TypeName())
	}
	for _, ep := range rs.Endpoints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		buf.Write(header)
		writeEndpoint(&buf, rs, ep)
		name := functionName(ep.Name)
		if err := tree.Add("endpoints/"+name+".ts", buf.Bytes()); err != nil {
			return nil, err
		}
		fmt.Fprintf(&index, "export { %s } from \"./endpoints/%s\";\n", name, name)
	}
	if err := tree.Add("index.ts", index.Bytes()); err != nil {
		return nil, err
	}

	pkg, err := packageJSON(rs, opts)
	if err != nil {
		return nil, err
	}
	if err := tree.Add("package.json", pkg); err != nil {
		return nil, err
	}
	return tree, nil
}

// checkNames fails when two names exported from index.ts collide.
func checkNames(rs *resolver.ResolvedSchema) error {
	names := map[string]string{}
	for _, n := range runtimeExports {
		names["runtime "+n] = n
	}
	for _, td := range rs.Types {
		names[td.TypeName()] = td.TypeName()
		names[td.TypeName()+" codec"] = codecName(td.TypeName())
	}
	for _, ep := range rs.Endpoints {
		names["endpoint "+ep.Name] = functionName(ep.Name)
	}
	return emitter.CheckTypeNames(TargetName, names)
}

func codecName(typeName string) string { return typeName + "Codec" }

func functionName(endpoint string) string { return schema.PascalToCamel(schema.SnakeToPascal(endpoint)) }

func paramName(field string) string {
	n := schema.WireName(field)
	if reserved[n] {
		return n + "_"
	}
	return n
}

// tsType spells ref as a TypeScript type. Arrays use Array<T> so that
// `T | null` elements need no parentheses.
func tsType(ref schema.TypeRef) string {
	switch t := ref.(type) {
	case schema.Primitive:
		switch t {
		case schema.Int, schema.Float:
			return "number"
		case schema.Bool:
			return "boolean"
		case schema.String, schema.Uuid:
			return "string"
		case schema.Date:
			return "Date"
		}
	case schema.Named:
		return t.Name
	case schema.Optional:
		return tsType(t.Elem) + " | null"
	case schema.Array:
		return "Array<" + tsType(t.Elem) + ">"
	case schema.Generic:
		if elem, ok := schema.IsResponse(t); ok {
			return "fen.Response<" + tsType(elem) + ">"
		}
	}
	panic(fmt.Sprintf("npmemitter: unresolved type %v", ref))
}

var primitiveCodec = map[schema.Primitive]string{
	schema.Int:    "fen.int",
	schema.Float:  "fen.float",
	schema.Bool:   "fen.bool",
	schema.String: "fen.string",
	schema.Uuid:   "fen.uuid",
	schema.Date:   "fen.date",
}

func codecExpr(ref schema.TypeRef) string {
	switch t := ref.(type) {
	case schema.Primitive:
		return primitiveCodec[t]
	case schema.Named:
		return "fen.lazy(() => " + codecName(t.Name) + ")"
	case schema.Optional:
		return "fen.optional(" + codecExpr(t.Elem) + ")"
	case schema.Array:
		return "fen.array(" + codecExpr(t.Elem) + ")"
	case schema.Generic:
		if elem, ok := schema.IsResponse(t); ok {
			return "fen.response(" + codecExpr(elem) + ")"
		}
	}
	panic(fmt.Sprintf("npmemitter: unresolved type %v", ref))
}

func writeDoc(buf *bytes.Buffer, indent, text string) {
	lines := emitter.DocLines(text)
	if len(lines) == 0 {
		return
	}
	if len(lines) == 1 {
		fmt.Fprintf(buf, "%s/** %s */\n", indent, lines[0])
		return
	}
	fmt.Fprintf(buf, "%s/**\n", indent)
	for _, l := range lines {
		fmt.Fprintf(buf, "%s * %s\n", indent, l)
	}
	fmt.Fprintf(buf, "%s */\n", indent)
}

// imports are the names one module needs from its sibling type modules.
type imports struct {
	types  map[string]bool
	codecs map[string]bool
}

func newImports() *imports {
	return &imports{types: map[string]bool{}, codecs: map[string]bool{}}
}

// write emits the import block; typesDir is the path prefix of the type
// modules as seen from the importing module.
func (im *imports) write(buf *bytes.Buffer, typesDir, self string) {
	buf.WriteString("import * as fen from \"../runtime\";\n")
	names := map[string]bool{}
	for n := range im.types {
		names[n] = true
	}
	for n := range im.codecs {
		names[n] = true
	}
	sorted := make([]string, 0, len(names))
	for n := range names {
		if n != self {
			sorted = append(sorted, n)
		}
	}
	sort.Strings(sorted)
	for _, n := range sorted {
		var parts []string
		if im.types[n] {
			parts = append(parts, "type "+n)
		}
		if im.codecs[n] {
			parts = append(parts, codecName(n))
		}
		fmt.Fprintf(buf, "import { %s } from \"%s%s\";\n", strings.Join(parts, ", "), typesDir, n)
	}
	buf.WriteByte('\n')
}

func writeStruct(buf *bytes.Buffer, s *schema.Struct) {
	im := newImports()
	for _, n := range emitter.NamedRefs(emitter.DefRefs(s)...) {
		im.types[n], im.codecs[n] = true, true
	}
	im.write(buf, "./", s.Name)

	writeDoc(buf, "", s.Description)
	fmt.Fprintf(buf, "export interface %s {\n", s.Name)
	for _, f := range s.Fields {
		writeDoc(buf, "  ", f.Description)
		fmt.Fprintf(buf, "  %s: %s;\n", schema.WireName(f.Name), tsType(f.Ref()))
	}
	buf.WriteString("}\n\n")

	fmt.Fprintf(buf, "export const %s: fen.Codec<%s> = fen.struct<%s>(%q, [\n", codecName(s.Name), s.Name, s.Name, s.Name)
	for _, f := range s.Fields {
		_, optional := f.Ref().(schema.Optional)
		fmt.Fprintf(buf, "  [%q, %s, %t],\n", schema.WireName(f.Name), codecExpr(f.Ref()), optional)
	}
	buf.WriteString("]);\n")
}

func writeEnum(buf *bytes.Buffer, e *schema.Enum) {
	im := newImports()
	for _, n := range emitter.NamedRefs(emitter.DefRefs(e)...) {
		im.types[n], im.codecs[n] = true, true
	}
	im.write(buf, "./", e.Name)

	writeDoc(buf, "", e.Description)
	if len(e.Variants) == 0 {
		fmt.Fprintf(buf, "export type %s = never;\n\n", e.Name)
	} else {
		fmt.Fprintf(buf, "export type %s =\n", e.Name)
		for i, v := range e.Variants {
			end := ""
			if i == len(e.Variants)-1 {
				end = ";"
			}
			if v.Payload == nil {
				fmt.Fprintf(buf, "  | { type: %q }%s\n", schema.WireName(v.Tag), end)
			} else {
				fmt.Fprintf(buf, "  | { type: %q; value: %s }%s\n", schema.WireName(v.Tag), tsType(v.Payload), end)
			}
		}
		buf.WriteByte('\n')
	}

	fmt.Fprintf(buf, "export const %s: fen.Codec<%s> = fen.tagged<%s>(%q, {\n", codecName(e.Name), e.Name, e.Name, e.Name)
	for _, v := range e.Variants {
		if v.Payload == nil {
			fmt.Fprintf(buf, "  %s: null,\n", schema.WireName(v.Tag))
			continue
		}
		_, optional := v.Payload.(schema.Optional)
		fmt.Fprintf(buf, "  %s: { codec: %s, optional: %t },\n", schema.WireName(v.Tag), codecExpr(v.Payload), optional)
	}
	buf.WriteString("});\n")
}

func writeEndpoint(buf *bytes.Buffer, rs *resolver.ResolvedSchema, ep schema.EndpointDef) {
	im := newImports()
	input, isStruct := rs.InputStruct(ep)

	type param struct{ name, key, typ string }
	var params []param
	var sigRefs []schema.TypeRef
	switch {
	case isStruct:
		for _, f := range input.Fields {
			params = append(params, param{name: paramName(f.Name), key: schema.WireName(f.Name), typ: tsType(f.Ref())})
			sigRefs = append(sigRefs, f.Ref())
		}
		im.codecs[input.Name] = true
	case ep.Input != nil:
		params = append(params, param{name: "input", typ: tsType(ep.Input)})
		sigRefs = append(sigRefs, ep.Input)
		for _, n := range emitter.NamedRefs(ep.Input) {
			im.codecs[n] = true
		}
	}
	sigRefs = append(sigRefs, ep.Output)
	for _, n := range emitter.NamedRefs(sigRefs...) {
		im.types[n] = true
	}
	for _, n := range emitter.NamedRefs(ep.Output) {
		im.codecs[n] = true
	}
	im.write(buf, "../types/", "")

	name := functionName(ep.Name)
	sig := []string{"client: fen.ApiClient"}
	for _, p := range params {
		sig = append(sig, p.name+": "+p.typ)
	}
	token := ""
	if ep.RequiresAuth {
		sig = append(sig, "sessionToken?: string")
		token = ", sessionToken"
	}
	writeDoc(buf, "", ep.Description)
	fmt.Fprintf(buf, "export async function %s(%s): Promise<fen.Response<%s>> {\n", name, strings.Join(sig, ", "), tsType(ep.Output))
	body := "undefined"
	switch {
	case isStruct:
		props := make([]string, len(params))
		for i, p := range params {
			if p.name == p.key {
				props[i] = p.name
			} else {
				props[i] = p.key + ": " + p.name
			}
		}
		obj := "{}"
		if len(props) > 0 {
			obj = "{ " + strings.Join(props, ", ") + " }"
		}
		fmt.Fprintf(buf, "  const body = %s.encode(%s);\n", codecName(input.Name), obj)
		body = "body"
	case ep.Input != nil:
		fmt.Fprintf(buf, "  const body = %s.encode(input);\n", codecExpr(ep.Input))
		body = "body"
	}
	fmt.Fprintf(buf, "  return client.call(%q, %q, %s, %s%s);\n}\n", string(ep.Method), ep.Path, body, codecExpr(ep.Output), token)
}

type packageManifest struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Description string            `json:"description,omitempty"`
	Private     bool              `json:"private"`
	Type        string            `json:"type"`
	Main        string            `json:"main"`
	Types       string            `json:"types"`
	Scripts     map[string]string `json:"scripts"`
}

func packageJSON(rs *resolver.ResolvedSchema, opts emitter.Options) ([]byte, error) {
	name := sanitizePackageName(opts.PackageName)
	if name == "" {
		name = sanitizePackageName(schema.PascalToKebab(strings.ReplaceAll(rs.Name, " ", "")))
	}
	if name == "" {
		name = "fen-client"
	}
	version := rs.Version
	if version == "" {
		version = "0.0.0"
	}
	m := packageManifest{
		Name:        name,
		Version:     version,
		Description: rs.Description,
		Private:     true,
		Type:        "module",
		Main:        "index.ts",
		Types:       "index.ts",
		Scripts:     map[string]string{"typecheck": "tsc --noEmit"},
	}
	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("npmemitter: marshal package.json: %w", err)
	}
	return append(out, '\n'), nil
}

// sanitizePackageName keeps the characters npm allows, in lowercase. A
// leading "@scope/" is preserved.
func sanitizePackageName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	scope := ""
	if strings.HasPrefix(name, "@") {
		if i := strings.Index(name, "/"); i > 1 {
			scope, name = clean(name[1:i]), name[i+1:]
		}
	}
	name = clean(strings.ReplaceAll(strings.ReplaceAll(name, " ", "-"), "/", "-"))
	if name == "" {
		return ""
	}
	if scope != "" {
		return "@" + scope + "/" + name
	}
	return name
}

func clean(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-.")
}
