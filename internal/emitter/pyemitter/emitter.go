// Package pyemitter renders a Python client package: dataclasses for
// structs, one class per enum variant, and a function per endpoint.
package pyemitter

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/fenlang/fen/internal/emitter"
	"github.com/fenlang/fen/internal/resolver"
	"github.com/fenlang/fen/internal/schema"
)

const TargetName = "python"

// RuntimeModule is the module name of the shared runtime inside the package.
const RuntimeModule = "fen_runtime"

var runtimeTmpl = template.Must(template.New("fen_runtime.py").Parse(runtimeTemplate))

var keywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true, "assert": true,
	"async": true, "await": true, "break": true, "class": true, "continue": true,
	"def": true, "del": true, "elif": true, "else": true, "except": true, "finally": true,
	"for": true, "from": true, "global": true, "if": true, "import": true, "in": true,
	"is": true, "lambda": true, "nonlocal": true, "not": true, "or": true, "pass": true,
	"raise": true, "return": true, "try": true, "while": true, "with": true, "yield": true,
}

// locals are bound in every endpoint function.
var locals = map[string]bool{"client": true, "body": true, "session_token": true, "fen": true}

var runtimeExports = []string{"ApiClient", "Failure", "ProtocolDecodeError", "Response", "Success"}

// Emitter is the Python target.
type Emitter struct{}

func New() *Emitter { return &Emitter{} }

func (*Emitter) Name() string { return TargetName }

// Emit renders the package under <package>/ plus a pyproject.toml. Python
// has no value type for the response envelope, so a Response<T> anywhere
// but an endpoint output is a TargetError.
func (e *Emitter) Emit(ctx context.Context, rs *resolver.ResolvedSchema, opts emitter.Options) (*emitter.Tree, error) {
	if rs == nil {
		return nil, fmt.Errorf("pyemitter: nil schema")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := emitter.RejectExplicitResponses(TargetName, rs); err != nil {
		return nil, err
	}
	if err := checkNames(rs); err != nil {
		return nil, err
	}
	pkg := PackageName(opts.PackageName, rs.Name)
	tree := emitter.NewTree(TargetName)
	header := []byte(emitter.Header("#", opts.Stamp))

	var runtime bytes.Buffer
	runtime.Write(header)
	data := struct{ Endpoint, EndpointProd, PayloadKey string }{opts.Endpoint, opts.EndpointProd, opts.Key()}
	if err := runtimeTmpl.Execute(&runtime, data); err != nil {
		return nil, fmt.Errorf("pyemitter: render runtime: %w", err)
	}
	if err := tree.Add(pkg+"/"+RuntimeModule+".py", runtime.Bytes()); err != nil {
		return nil, err
	}

	var typesInit bytes.Buffer
	typesInit.Write(header)
	var exported []string
	for _, td := range rs.Types {
		var buf bytes.Buffer
		buf.Write(header)
		mod := moduleName(td.TypeName())
		names := []string{td.TypeName()}
		switch t := td.(type) {
		case *schema.Struct:
			writeStruct(&buf, t)
		case *schema.Enum:
			writeEnum(&buf, t)
			for _, v := range t.Variants {
				names = append(names, variantName(t.Name, v.Tag))
			}
		}
		if err := tree.Add(pkg+"/types/"+mod+".py", buf.Bytes()); err != nil {
			return nil, err
		}
		fmt.Fprintf(&typesInit, "from .%s import %s\n", mod, strings.Join(names, ", "))
		exported = append(exported, names...)
	}
	if err := tree.Add(pkg+"/types/__init__.py", typesInit.Bytes()); err != nil {
		return nil, err
	}

	var endpointsInit bytes.Buffer
	endpointsInit.Write(header)
	var functions []string
	for _, ep := range rs.Endpoints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		buf.Write(header)
		writeEndpoint(&buf, rs, ep)
		fn := functionName(ep.Name)
		if err := tree.Add(pkg+"/endpoints/"+moduleName(ep.Name)+".py", buf.Bytes()); err != nil {
			return nil, err
		}
		fmt.Fprintf(&endpointsInit, "from .%s import %s\n", moduleName(ep.Name), fn)
		functions = append(functions, fn)
	}
	if err := tree.Add(pkg+"/endpoints/__init__.py", endpointsInit.Bytes()); err != nil {
		return nil, err
	}

	var init bytes.Buffer
	init.Write(header)
	if doc := emitter.DocLines(rs.Description); len(doc) > 0 {
		fmt.Fprintf(&init, "\"\"\"%s\"\"\"\n\n", strings.Join(doc, "\n"))
	}
	fmt.Fprintf(&init, "from .%s import %s\n", RuntimeModule, strings.Join(runtimeExports, ", "))
	if len(exported) > 0 {
		fmt.Fprintf(&init, "from .types import %s\n", strings.Join(exported, ", "))
	}
	if len(functions) > 0 {
		fmt.Fprintf(&init, "from .endpoints import %s\n", strings.Join(functions, ", "))
	}
	all := append(append(append([]string(nil), runtimeExports...), exported...), functions...)
	sort.Strings(all)
	init.WriteString("\n__all__ = [\n")
	for _, n := range all {
		fmt.Fprintf(&init, "    %q,\n", n)
	}
	init.WriteString("]\n")
	if err := tree.Add(pkg+"/__init__.py", init.Bytes()); err != nil {
		return nil, err
	}

	if err := tree.Add("pyproject.toml", pyproject(header, pkg, rs)); err != nil {
		return nil, err
	}
	return tree, nil
}

// checkNames fails when two names re-exported by the package collide.
func checkNames(rs *resolver.ResolvedSchema) error {
	names := map[string]string{}
	for _, n := range runtimeExports {
		names["runtime "+n] = n
	}
	modules := map[string]string{}
	for _, td := range rs.Types {
		names[td.TypeName()] = td.TypeName()
		modules["type "+td.TypeName()] = moduleName(td.TypeName())
		if en, ok := td.(*schema.Enum); ok {
			for _, v := range en.Variants {
				names[en.Name+"."+v.Tag] = variantName(en.Name, v.Tag)
			}
		}
	}
	for _, ep := range rs.Endpoints {
		names["endpoint "+ep.Name] = functionName(ep.Name)
	}
	if err := emitter.CheckTypeNames(TargetName, names); err != nil {
		return err
	}
	return emitter.CheckTypeNames(TargetName, modules)
}

// PackageName returns the sanitized package name, derived from the schema
// name when none is configured.
func PackageName(configured, schemaName string) string {
	if name := sanitizePackageName(configured); name != "" {
		return name
	}
	if name := sanitizePackageName(schema.ToSnake(strings.ReplaceAll(schemaName, " ", "_"))); name != "" {
		return name
	}
	return "fen_client"
}

// sanitizePackageName keeps lowercase letters, digits and underscores.
// Dashes and spaces become underscores; a leading digit gets a prefix.
func sanitizePackageName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ToLower(name)
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), "_")
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "fen_" + out
	}
	if keywords[out] {
		out += "_"
	}
	return out
}

func escape(name string) string {
	if keywords[name] {
		return name + "_"
	}
	return name
}

func moduleName(name string) string { return escape(schema.ToSnake(name)) }

func functionName(endpoint string) string { return escape(schema.ToSnake(endpoint)) }

func attrName(field string) string { return escape(schema.ToSnake(field)) }

func paramName(field string) string {
	n := attrName(field)
	if locals[n] {
		return n + "_"
	}
	return n
}

func variantName(enum, tag string) string { return enum + schema.SnakeToPascal(schema.WireName(tag)) }

// pyType spells ref as a type annotation. Annotations are never evaluated,
// so named types may be forward references.
func pyType(ref schema.TypeRef) string {
	switch t := ref.(type) {
	case schema.Primitive:
		switch t {
		case schema.Int:
			return "int"
		case schema.Float:
			return "float"
		case schema.Bool:
			return "bool"
		case schema.String:
			return "str"
		case schema.Uuid:
			return "UUID"
		case schema.Date:
			return "datetime"
		}
	case schema.Named:
		return t.Name
	case schema.Optional:
		return "Optional[" + pyType(t.Elem) + "]"
	case schema.Array:
		return "List[" + pyType(t.Elem) + "]"
	}
	panic(fmt.Sprintf("pyemitter: unresolved type %v", ref))
}

var primitiveCodec = map[schema.Primitive]string{
	schema.Int:    "fen.INT",
	schema.Float:  "fen.FLOAT",
	schema.Bool:   "fen.BOOL",
	schema.String: "fen.STRING",
	schema.Uuid:   "fen.UUID_",
	schema.Date:   "fen.DATE",
}

func codecExpr(ref schema.TypeRef) string {
	switch t := ref.(type) {
	case schema.Primitive:
		return primitiveCodec[t]
	case schema.Named:
		return fmt.Sprintf("fen.named(%q)", t.Name)
	case schema.Optional:
		return "fen.optional(" + codecExpr(t.Elem) + ")"
	case schema.Array:
		return "fen.array(" + codecExpr(t.Elem) + ")"
	}
	panic(fmt.Sprintf("pyemitter: no codec for %v", ref))
}

// typingImports collects the standard library names the annotations of refs
// need.
type typingImports struct {
	list, optional, uuid, datetime bool
}

func (ti *typingImports) add(refs ...schema.TypeRef) {
	for _, r := range refs {
		schema.Walk(r, func(t schema.TypeRef) bool {
			switch t := t.(type) {
			case schema.Array:
				ti.list = true
			case schema.Optional:
				ti.optional = true
			case schema.Primitive:
				switch t {
				case schema.Uuid:
					ti.uuid = true
				case schema.Date:
					ti.datetime = true
				}
			}
			return true
		})
	}
}

func (ti *typingImports) write(buf *bytes.Buffer, typeChecking bool) {
	var typing []string
	if typeChecking {
		typing = append(typing, "TYPE_CHECKING")
	}
	if ti.list {
		typing = append(typing, "List")
	}
	if ti.optional {
		typing = append(typing, "Optional")
	}
	if ti.datetime {
		buf.WriteString("from datetime import datetime\n")
	}
	if len(typing) > 0 {
		fmt.Fprintf(buf, "from typing import %s\n", strings.Join(typing, ", "))
	}
	if ti.uuid {
		buf.WriteString("from uuid import UUID\n")
	}
}

// writeModuleHead emits the imports of a type module. Sibling types are
// only needed by annotations and are imported for type checkers alone.
func writeModuleHead(buf *bytes.Buffer, td schema.TypeDef, dataclass bool) {
	buf.WriteString("from __future__ import annotations\n\n")
	if dataclass {
		buf.WriteString("from dataclasses import dataclass\n")
	}
	var ti typingImports
	refs := emitter.DefRefs(td)
	ti.add(refs...)
	var siblings []string
	for _, n := range emitter.NamedRefs(refs...) {
		if n != td.TypeName() {
			siblings = append(siblings, n)
		}
	}
	ti.write(buf, len(siblings) > 0)
	fmt.Fprintf(buf, "\nfrom .. import %s as fen\n", RuntimeModule)
	if len(siblings) > 0 {
		buf.WriteString("\nif TYPE_CHECKING:\n")
		for _, n := range siblings {
			fmt.Fprintf(buf, "    from .%s import %s\n", moduleName(n), n)
		}
	}
	buf.WriteString("\n\n")
}

func writeDocstring(buf *bytes.Buffer, indent, text string) bool {
	lines := emitter.DocLines(text)
	if len(lines) == 0 {
		return false
	}
	if len(lines) == 1 {
		fmt.Fprintf(buf, "%s\"\"\"%s\"\"\"\n", indent, lines[0])
		return true
	}
	fmt.Fprintf(buf, "%s\"\"\"%s\n", indent, lines[0])
	for _, l := range lines[1:] {
		if l == "" {
			buf.WriteByte('\n')
			continue
		}
		fmt.Fprintf(buf, "%s%s\n", indent, l)
	}
	fmt.Fprintf(buf, "%s\"\"\"\n", indent)
	return true
}

func writeComment(buf *bytes.Buffer, indent, text string) {
	for _, l := range emitter.DocLines(text) {
		fmt.Fprintf(buf, "%s# %s\n", indent, l)
	}
}

func writeStruct(buf *bytes.Buffer, s *schema.Struct) {
	writeModuleHead(buf, s, true)
	fmt.Fprintf(buf, "@dataclass\nclass %s:\n", s.Name)
	documented := writeDocstring(buf, "    ", s.Description)
	if len(s.Fields) == 0 && !documented {
		buf.WriteString("    pass\n")
	}
	if len(s.Fields) > 0 && documented {
		buf.WriteByte('\n')
	}
	for _, f := range s.Fields {
		writeComment(buf, "    ", f.Description)
		fmt.Fprintf(buf, "    %s: %s\n", attrName(f.Name), pyType(f.Ref()))
	}

	fmt.Fprintf(buf, "\n\nfen.register(\n    %q,\n    fen.struct(\n        %q,\n        %s,\n        [\n", s.Name, s.Name, s.Name)
	for _, f := range s.Fields {
		_, optional := f.Ref().(schema.Optional)
		fmt.Fprintf(buf, "            (%q, %q, %s, %s),\n", attrName(f.Name), schema.WireName(f.Name), codecExpr(f.Ref()), pyBool(optional))
	}
	buf.WriteString("        ],\n    ),\n)\n")
}

func writeEnum(buf *bytes.Buffer, e *schema.Enum) {
	writeModuleHead(buf, e, true)

	fmt.Fprintf(buf, "class %s:\n", e.Name)
	if !writeDocstring(buf, "    ", e.Description) {
		names := make([]string, len(e.Variants))
		for i, v := range e.Variants {
			names[i] = variantName(e.Name, v.Tag)
		}
		if len(names) > 0 {
			fmt.Fprintf(buf, "    \"\"\"One of %s.\"\"\"\n", strings.Join(names, ", "))
		}
	} else {
		buf.WriteByte('\n')
	}
	buf.WriteString("    __slots__ = ()\n")

	for _, v := range e.Variants {
		fmt.Fprintf(buf, "\n\n@dataclass(frozen=True)\nclass %s(%s):\n", variantName(e.Name, v.Tag), e.Name)
		documented := writeDocstring(buf, "    ", v.Description)
		if v.Payload == nil {
			if !documented {
				buf.WriteString("    pass\n")
			}
			continue
		}
		if documented {
			buf.WriteByte('\n')
		}
		fmt.Fprintf(buf, "    value: %s\n", pyType(v.Payload))
	}

	fmt.Fprintf(buf, "\n\nfen.register(\n    %q,\n    fen.tagged(\n        %q,\n        [\n", e.Name, e.Name)
	for _, v := range e.Variants {
		cls := variantName(e.Name, v.Tag)
		if v.Payload == nil {
			fmt.Fprintf(buf, "            (%q, %s, None, False),\n", schema.WireName(v.Tag), cls)
			continue
		}
		_, optional := v.Payload.(schema.Optional)
		fmt.Fprintf(buf, "            (%q, %s, %s, %s),\n", schema.WireName(v.Tag), cls, codecExpr(v.Payload), pyBool(optional))
	}
	buf.WriteString("        ],\n    ),\n)\n")
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func writeEndpoint(buf *bytes.Buffer, rs *resolver.ResolvedSchema, ep schema.EndpointDef) {
	input, isStruct := rs.InputStruct(ep)
	output := ep.Output

	type param struct{ name, attr, typ string }
	var params []param
	var refs []schema.TypeRef
	switch {
	case isStruct:
		for _, f := range input.Fields {
			params = append(params, param{name: paramName(f.Name), attr: attrName(f.Name), typ: pyType(f.Ref())})
			refs = append(refs, f.Ref())
		}
		refs = append(refs, schema.Named{Name: input.Name})
	case ep.Input != nil:
		params = append(params, param{name: "input", typ: pyType(ep.Input)})
		refs = append(refs, ep.Input)
	}
	refs = append(refs, output)

	var ti typingImports
	ti.add(refs...)
	if ep.RequiresAuth {
		ti.optional = true
	}
	buf.WriteString("from __future__ import annotations\n\n")
	ti.write(buf, false)
	if ti.list || ti.optional || ti.uuid || ti.datetime {
		buf.WriteByte('\n')
	}
	fmt.Fprintf(buf, "from .. import %s as fen\n", RuntimeModule)
	if names := emitter.NamedRefs(refs...); len(names) > 0 {
		fmt.Fprintf(buf, "from ..types import %s\n", strings.Join(names, ", "))
	}
	buf.WriteString("\n\n")

	sig := []string{"client: fen.ApiClient"}
	for _, p := range params {
		sig = append(sig, p.name+": "+p.typ)
	}
	token := ""
	if ep.RequiresAuth {
		sig = append(sig, "session_token: Optional[str] = None")
		token = ", session_token"
	}
	fmt.Fprintf(buf, "def %s(%s) -> fen.Response[%s]:\n", functionName(ep.Name), strings.Join(sig, ", "), pyType(output))
	writeDocstring(buf, "    ", ep.Description)
	body := "fen.NO_BODY"
	switch {
	case isStruct:
		args := make([]string, len(params))
		for i, p := range params {
			args[i] = p.attr + "=" + p.name
		}
		fmt.Fprintf(buf, "    body = %s.encode(%s(%s))\n", codecExpr(schema.Named{Name: input.Name}), input.Name, strings.Join(args, ", "))
		body = "body"
	case ep.Input != nil:
		fmt.Fprintf(buf, "    body = %s.encode(input)\n", codecExpr(ep.Input))
		body = "body"
	}
	fmt.Fprintf(buf, "    return client.call(%q, %q, %s, %s%s)\n", string(ep.Method), ep.Path, body, codecExpr(output), token)
}

func pyproject(header []byte, pkg string, rs *resolver.ResolvedSchema) []byte {
	var buf bytes.Buffer
	buf.Write(header)
	version := rs.Version
	if version == "" {
		version = "0.0.0"
	}
	buf.WriteString("[build-system]\n")
	buf.WriteString("requires = [\"setuptools>=61\"]\n")
	buf.WriteString("build-backend = \"setuptools.build_meta\"\n\n")
	buf.WriteString("[project]\n")
	fmt.Fprintf(&buf, "name = %q\n", strings.ReplaceAll(pkg, "_", "-"))
	fmt.Fprintf(&buf, "version = %q\n", version)
	if doc := emitter.DocLines(rs.Description); len(doc) > 0 {
		fmt.Fprintf(&buf, "description = %q\n", doc[0])
	}
	buf.WriteString("requires-python = \">=3.8\"\n\n")
	buf.WriteString("[tool.setuptools]\n")
	fmt.Fprintf(&buf, "packages = [%q, %q, %q]\n", pkg, pkg+".types", pkg+".endpoints")
	return buf.Bytes()
}
