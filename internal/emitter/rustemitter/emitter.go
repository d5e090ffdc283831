// Package rustemitter renders the server side of the wire contract as a
// Rust module of serde types: every schema type, the response envelope and
// one module per endpoint with its route and its Input and Output types.
package rustemitter

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/fenlang/fen/internal/emitter"
	"github.com/fenlang/fen/internal/resolver"
	"github.com/fenlang/fen/internal/schema"
)

const TargetName = "rust"

// ModFile declares the submodules and holds the shared runtime.
const ModFile = "mod.rs"

const typesModule = "types"

var runtimeTmpl = template.Must(template.New(ModFile).Parse(runtimeTemplate))

// keywords are escaped as raw identifiers; the ones in noRaw cannot be.
var keywords = map[string]bool{
	"as": true, "async": true, "await": true, "break": true, "const": true,
	"continue": true, "crate": true, "dyn": true, "else": true, "enum": true,
	"extern": true, "false": true, "fn": true, "for": true, "if": true,
	"impl": true, "in": true, "let": true, "loop": true, "match": true,
	"mod": true, "move": true, "mut": true, "pub": true, "ref": true,
	"return": true, "self": true, "Self": true, "static": true, "struct": true,
	"super": true, "trait": true, "true": true, "type": true, "unsafe": true,
	"use": true, "where": true, "while": true, "yield": true, "try": true,
}

var noRaw = map[string]bool{"crate": true, "self": true, "Self": true, "super": true}

// runtimeNames are declared or imported by mod.rs.
var runtimeNames = []string{
	"Box", "DateTime", "Deserialize", "Deserializer", "FenDate", "Option",
	"Response", "Serialize", "Serializer", "String", "Timelike", "Utc", "Uuid", "Vec",
}

// Emitter is the Rust server types target.
type Emitter struct{}

func New() *Emitter { return &Emitter{} }

func (*Emitter) Name() string { return TargetName }

// Emit renders mod.rs, types.rs and <endpoint>.rs. Structs holding each
// other by value, even through Option, have no finite size; enum payloads
// naming a type are boxed.
func (e *Emitter) Emit(ctx context.Context, rs *resolver.ResolvedSchema, opts emitter.Options) (*emitter.Tree, error) {
	if rs == nil {
		return nil, fmt.Errorf("rustemitter: nil schema")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cycle := emitter.StructValueCycle(rs, false); cycle != nil {
		return nil, &emitter.TargetError{
			Target:    TargetName,
			Construct: strings.Join(cycle, " -> "),
			Reason:    "structs that contain each other by value have infinite size",
		}
	}
	if err := checkNames(rs); err != nil {
		return nil, err
	}
	header := emitter.Header("//", opts.Stamp)
	tree := emitter.NewTree(TargetName)

	var mod bytes.Buffer
	mod.WriteString(header)
	mod.WriteString("//! Requires the serde (derive), chrono (serde) and uuid (serde) crates.\n\n")
	fmt.Fprintf(&mod, "pub mod %s;\n", typesModule)
	for _, ep := range rs.Endpoints {
		fmt.Fprintf(&mod, "pub mod %s;\n", moduleName(ep.Name))
	}
	fmt.Fprintf(&mod, "\npub use %s::*;\n\n", typesModule)
	if err := runtimeTmpl.Execute(&mod, struct{ PayloadKey string }{opts.Key()}); err != nil {
		return nil, fmt.Errorf("rustemitter: render runtime: %w", err)
	}
	if err := tree.Add(ModFile, mod.Bytes()); err != nil {
		return nil, err
	}

	var types bytes.Buffer
	types.WriteString(header)
	writeTypes(&types, rs, opts.Key())
	if err := tree.Add(typesModule+".rs", types.Bytes()); err != nil {
		return nil, err
	}

	for _, ep := range rs.Endpoints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		buf.WriteString(header)
		writeEndpoint(&buf, ep)
		if err := tree.Add(moduleName(ep.Name)+".rs", buf.Bytes()); err != nil {
			return nil, err
		}
	}
	return tree, nil
}

func checkNames(rs *resolver.ResolvedSchema) error {
	names := map[string]string{}
	for _, n := range runtimeNames {
		names["runtime "+n] = n
	}
	modules := map[string]string{"types module": typesModule, "mod file": "mod"}
	for _, td := range rs.Types {
		names[td.TypeName()] = td.TypeName()
		if err := checkMembers(td); err != nil {
			return err
		}
	}
	for _, ep := range rs.Endpoints {
		modules["endpoint "+ep.Name] = moduleName(ep.Name)
	}
	if err := emitter.CheckTypeNames(TargetName, names); err != nil {
		return err
	}
	return emitter.CheckTypeNames(TargetName, modules)
}

func checkMembers(td schema.TypeDef) error {
	seen := map[string]string{}
	add := func(member, rust string) error {
		if prev, dup := seen[rust]; dup {
			return &emitter.TargetError{Target: TargetName, Construct: td.TypeName() + "." + member, Reason: "Rust name " + rust + " collides with " + prev}
		}
		seen[rust] = member
		return nil
	}
	switch t := td.(type) {
	case *schema.Struct:
		for _, f := range t.Fields {
			if err := add(f.Name, fieldName(f.Name)); err != nil {
				return err
			}
		}
	case *schema.Enum:
		for _, v := range t.Variants {
			if err := add(v.Tag, variantName(v.Tag)); err != nil {
				return err
			}
		}
	}
	return nil
}

// ident escapes a Rust keyword. It reports whether serde sees a name other
// than the identifier's text.
func ident(name string) (string, bool) {
	switch {
	case noRaw[name]:
		return name + "_", true
	case keywords[name]:
		return "r#" + name, false
	}
	return name, false
}

func fieldName(name string) string {
	n, _ := ident(schema.ToSnake(name))
	return n
}

func variantName(tag string) string {
	n, _ := ident(schema.SnakeToPascal(schema.WireName(tag)))
	return n
}

func moduleName(endpoint string) string {
	n, _ := ident(schema.ToSnake(endpoint))
	return n
}

// serdeFieldKey is the key rename_all = "camelCase" derives from a field
// identifier.
func serdeFieldKey(rustName string) string {
	return schema.PascalToCamel(schema.SnakeToPascal(strings.TrimPrefix(rustName, "r#")))
}

// serdeVariantKey is the tag rename_all = "camelCase" derives from a variant
// identifier.
func serdeVariantKey(rustName string) string {
	return schema.PascalToCamel(strings.TrimPrefix(rustName, "r#"))
}

func writeDoc(buf *bytes.Buffer, indent, text string) {
	for _, l := range emitter.DocLines(text) {
		if l == "" {
			fmt.Fprintf(buf, "%s///\n", indent)
			continue
		}
		fmt.Fprintf(buf, "%s/// %s\n", indent, l)
	}
}

func writeTypes(buf *bytes.Buffer, rs *resolver.ResolvedSchema, payloadKey string) {
	buf.WriteString("use serde::{Deserialize, Serialize};\n\n")
	buf.WriteString("#[allow(unused_imports)]\nuse super::{FenDate, Response, Uuid};\n")
	for _, td := range rs.Types {
		buf.WriteByte('\n')
		switch t := td.(type) {
		case *schema.Struct:
			writeStruct(buf, t)
		case *schema.Enum:
			writeEnum(buf, rs, t, payloadKey)
		}
	}
}

func writeStruct(buf *bytes.Buffer, s *schema.Struct) {
	writeDoc(buf, "", s.Description)
	buf.WriteString("#[derive(Serialize, Deserialize, Debug, Clone, PartialEq)]\n")
	buf.WriteString("#[serde(rename_all = \"camelCase\")]\n")
	fmt.Fprintf(buf, "pub struct %s {\n", s.Name)
	for _, f := range s.Fields {
		writeDoc(buf, "    ", f.Description)
		name := fieldName(f.Name)
		_, mangled := ident(schema.ToSnake(f.Name))
		if wire := schema.WireName(f.Name); mangled || serdeFieldKey(name) != wire {
			fmt.Fprintf(buf, "    #[serde(rename = %q)]\n", wire)
		}
		fmt.Fprintf(buf, "    pub %s: %s,\n", name, rustType(f.Ref()))
	}
	buf.WriteString("}\n")
}

func writeEnum(buf *bytes.Buffer, rs *resolver.ResolvedSchema, e *schema.Enum, payloadKey string) {
	writeDoc(buf, "", e.Description)
	buf.WriteString("#[derive(Serialize, Deserialize, Debug, Clone, PartialEq)]\n")
	fmt.Fprintf(buf, "#[serde(tag = \"type\", content = %q, rename_all = \"camelCase\")]\n", payloadKey)
	fmt.Fprintf(buf, "pub enum %s {\n", e.Name)
	for _, v := range e.Variants {
		writeDoc(buf, "    ", v.Description)
		name := variantName(v.Tag)
		if wire := schema.WireName(v.Tag); serdeVariantKey(name) != wire {
			fmt.Fprintf(buf, "    #[serde(rename = %q)]\n", wire)
		}
		if v.Payload == nil {
			fmt.Fprintf(buf, "    %s,\n", name)
			continue
		}
		fmt.Fprintf(buf, "    %s(%s),\n", name, payloadType(rs, v.Payload))
	}
	buf.WriteString("}\n")
}

// payloadType boxes payloads that name a struct or enum so that recursive
// types stay finite.
func payloadType(rs *resolver.ResolvedSchema, ref schema.TypeRef) string {
	inner := ref
	if o, ok := ref.(schema.Optional); ok {
		inner = o.Elem
	}
	n, ok := inner.(schema.Named)
	if !ok {
		return rustType(ref)
	}
	if _, known := rs.Type(n.Name); !known {
		return rustType(ref)
	}
	boxed := "Box<" + n.Name + ">"
	if inner != ref {
		return "Option<" + boxed + ">"
	}
	return boxed
}

func writeEndpoint(buf *bytes.Buffer, ep schema.EndpointDef) {
	buf.WriteString("#[allow(unused_imports)]\nuse super::*;\n\n")
	writeDoc(buf, "", ep.Description)
	fmt.Fprintf(buf, "pub const PATH: &str = %q;\n", ep.Path)
	fmt.Fprintf(buf, "pub const METHOD: &str = %q;\n", string(ep.Method))
	fmt.Fprintf(buf, "pub const REQUIRES_AUTH: bool = %t;\n\n", ep.RequiresAuth)
	if ep.Input != nil {
		fmt.Fprintf(buf, "pub type Input = %s;\n", rustType(ep.Input))
	}
	fmt.Fprintf(buf, "pub type Output = %s;\n", rustType(ep.Output))
}

func rustType(ref schema.TypeRef) string {
	switch t := ref.(type) {
	case schema.Primitive:
		switch t {
		case schema.Int:
			return "i64"
		case schema.Float:
			return "f64"
		case schema.Bool:
			return "bool"
		case schema.String:
			return "String"
		case schema.Uuid:
			return "Uuid"
		case schema.Date:
			return "FenDate"
		}
	case schema.Named:
		return t.Name
	case schema.Optional:
		return "Option<" + rustType(t.Elem) + ">"
	case schema.Array:
		return "Vec<" + rustType(t.Elem) + ">"
	case schema.Generic:
		if elem, ok := schema.IsResponse(t); ok {
			return "Response<" + rustType(elem) + ">"
		}
	}
	panic(fmt.Sprintf("rustemitter: unresolved type %v", ref))
}
