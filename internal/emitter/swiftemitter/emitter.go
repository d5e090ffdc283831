// Package swiftemitter renders a Swift client: Codable structs, enums with
// associated values, and async APIClient methods.
package swiftemitter

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

const TargetName = "swift"

// RuntimeFile holds the configuration, the client and the shared codecs.
const RuntimeFile = "Api.swift"

var runtimeTmpl = template.Must(template.New(RuntimeFile).Parse(runtimeTemplate))

var keywords = map[string]bool{
	"Any": true, "Self": true, "as": true, "associatedtype": true, "break": true,
	"case": true, "catch": true, "class": true, "continue": true, "default": true,
	"defer": true, "deinit": true, "do": true, "else": true, "enum": true,
	"extension": true, "fallthrough": true, "false": true, "fileprivate": true, "for": true,
	"func": true, "guard": true, "if": true, "import": true, "in": true,
	"init": true, "inout": true, "internal": true, "is": true, "let": true,
	"nil": true, "open": true, "operator": true, "private": true, "protocol": true,
	"public": true, "repeat": true, "rethrows": true, "return": true, "self": true,
	"static": true, "struct": true, "subscript": true, "super": true, "switch": true,
	"throw": true, "throws": true, "true": true, "try": true, "typealias": true,
	"var": true, "where": true, "while": true,
}

// runtimeNames are declared by Api.swift or used from Foundation by it.
var runtimeNames = []string{
	"APIClient", "APIConfiguration", "ApplicationError", "FenDate", "FenEnvelope",
	"FenKey", "FenUUID", "FenVariant", "Fetcher", "LiveFetcher", "ProtocolDecodeError", "Response",
	"Bool", "Data", "Date", "Decoder", "Double", "Encoder", "Error", "Int", "String",
	"URL", "URLError", "URLRequest", "URLResponse", "URLSession",
}

// Emitter is the Swift target.
type Emitter struct{}

func New() *Emitter { return &Emitter{} }

func (*Emitter) Name() string { return TargetName }

// Emit renders Api.swift, Types/<Type>.swift and Endpoints/<Endpoint>.swift.
// Swift structs cannot contain themselves, not even through an optional,
// and Response<T> exists only as an endpoint result.
func (e *Emitter) Emit(ctx context.Context, rs *resolver.ResolvedSchema, opts emitter.Options) (*emitter.Tree, error) {
	if rs == nil {
		return nil, fmt.Errorf("swiftemitter: nil schema")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := emitter.RejectExplicitResponses(TargetName, rs); err != nil {
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
	tree := emitter.NewTree(TargetName)
	header := []byte(emitter.Header("//", opts.Stamp))

	var runtime bytes.Buffer
	runtime.Write(header)
	data := struct{ Endpoint, EndpointProd, PayloadKey string }{opts.Endpoint, opts.EndpointProd, opts.Key()}
	if err := runtimeTmpl.Execute(&runtime, data); err != nil {
		return nil, fmt.Errorf("swiftemitter: render runtime: %w", err)
	}
	if err := tree.Add(RuntimeFile, runtime.Bytes()); err != nil {
		return nil, err
	}

	for _, td := range rs.Types {
		var buf bytes.Buffer
		buf.Write(header)
		buf.WriteString("import Foundation\n\n")
		switch t := td.(type) {
		case *schema.Struct:
			writeStruct(&buf, t)
		case *schema.Enum:
			writeEnum(&buf, t)
		}
		if err := tree.Add("Types/"+td.TypeName()+".swift", buf.Bytes()); err != nil {
			return nil, err
		}
	}
	for _, ep := range rs.Endpoints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		buf.Write(header)
		buf.WriteString("import Foundation\n\n")
		writeEndpoint(&buf, rs, ep)
		if err := tree.Add("Endpoints/"+schema.SnakeToPascal(ep.Name)+".swift", buf.Bytes()); err != nil {
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
	files := map[string]string{}
	for _, td := range rs.Types {
		names[td.TypeName()] = td.TypeName()
	}
	for _, ep := range rs.Endpoints {
		files["endpoint "+ep.Name] = schema.SnakeToPascal(ep.Name)
		names["endpoint "+ep.Name+" method"] = "func " + methodName(ep.Name)
	}
	if err := emitter.CheckTypeNames(TargetName, names); err != nil {
		return err
	}
	return emitter.CheckTypeNames(TargetName, files)
}

func ident(name string) string {
	if keywords[name] {
		return "`" + name + "`"
	}
	return name
}

func propertyName(field string) string { return ident(schema.WireName(field)) }

func caseName(tag string) string { return ident(schema.WireName(tag)) }

func methodName(endpoint string) string { return schema.PascalToCamel(schema.SnakeToPascal(endpoint)) }

// paramName avoids the locals every endpoint method declares.
func paramName(field string) string {
	n := schema.WireName(field)
	switch n {
	case "body", "sessionToken":
		return n + "_"
	}
	return ident(n)
}

func swiftType(ref schema.TypeRef) string {
	switch t := ref.(type) {
	case schema.Primitive:
		switch t {
		case schema.Int:
			return "Int"
		case schema.Float:
			return "Double"
		case schema.Bool:
			return "Bool"
		case schema.String:
			return "String"
		case schema.Uuid:
			return "FenUUID"
		case schema.Date:
			return "Date"
		}
	case schema.Named:
		return t.Name
	case schema.Optional:
		return swiftType(t.Elem) + "?"
	case schema.Array:
		return "[" + swiftType(t.Elem) + "]"
	}
	panic(fmt.Sprintf("swiftemitter: no Swift type for %v", ref))
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

func writeStruct(buf *bytes.Buffer, s *schema.Struct) {
	writeDoc(buf, "", s.Description)
	fmt.Fprintf(buf, "public struct %s: Codable, Equatable, Sendable {\n", s.Name)
	for _, f := range s.Fields {
		writeDoc(buf, "    ", f.Description)
		fmt.Fprintf(buf, "    public var %s: %s\n", propertyName(f.Name), swiftType(f.Ref()))
	}
	if len(s.Fields) > 0 {
		buf.WriteByte('\n')
	}

	params := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		params[i] = propertyName(f.Name) + ": " + swiftType(f.Ref())
	}
	fmt.Fprintf(buf, "    public init(%s) {\n", strings.Join(params, ", "))
	for _, f := range s.Fields {
		p := propertyName(f.Name)
		fmt.Fprintf(buf, "        self.%s = %s\n", p, p)
	}
	buf.WriteString("    }\n")
	if len(s.Fields) == 0 {
		buf.WriteString("\n    public init(from decoder: Decoder) throws {\n        _ = try decoder.container(keyedBy: FenKey.self)\n    }\n")
		buf.WriteString("\n    public func encode(to encoder: Encoder) throws {\n        _ = encoder.container(keyedBy: FenKey.self)\n    }\n}\n")
		return
	}

	buf.WriteString("\n    private enum CodingKeys: String, CodingKey {\n")
	for _, f := range s.Fields {
		fmt.Fprintf(buf, "        case %s\n", propertyName(f.Name))
	}
	buf.WriteString("    }\n\n")

	buf.WriteString("    public init(from decoder: Decoder) throws {\n")
	buf.WriteString("        let container = try decoder.container(keyedBy: CodingKeys.self)\n")
	for _, f := range s.Fields {
		p := propertyName(f.Name)
		if o, ok := f.Ref().(schema.Optional); ok {
			fmt.Fprintf(buf, "        %s = try container.decodeIfPresent(%s.self, forKey: .%s)\n", p, swiftType(o.Elem), p)
			continue
		}
		fmt.Fprintf(buf, "        %s = try container.decode(%s.self, forKey: .%s)\n", p, swiftType(f.Ref()), p)
	}
	buf.WriteString("    }\n\n")

	// Optional properties are encoded with encode, not encodeIfPresent, so
	// absent values are sent as null.
	buf.WriteString("    public func encode(to encoder: Encoder) throws {\n")
	buf.WriteString("        var container = encoder.container(keyedBy: CodingKeys.self)\n")
	for _, f := range s.Fields {
		p := propertyName(f.Name)
		fmt.Fprintf(buf, "        try container.encode(%s, forKey: .%s)\n", p, p)
	}
	buf.WriteString("    }\n}\n")
}

func writeEnum(buf *bytes.Buffer, e *schema.Enum) {
	indirect := false
	for _, v := range e.Variants {
		if v.Payload != nil && len(emitter.NamedRefs(v.Payload)) > 0 {
			indirect = true
		}
	}
	writeDoc(buf, "", e.Description)
	kw := "enum"
	if indirect {
		kw = "indirect enum"
	}
	fmt.Fprintf(buf, "public %s %s: Codable, Equatable, Sendable {\n", kw, e.Name)
	for _, v := range e.Variants {
		writeDoc(buf, "    ", v.Description)
		if v.Payload == nil {
			fmt.Fprintf(buf, "    case %s\n", caseName(v.Tag))
			continue
		}
		fmt.Fprintf(buf, "    case %s(%s)\n", caseName(v.Tag), swiftType(v.Payload))
	}
	if len(e.Variants) > 0 {
		buf.WriteByte('\n')
	}

	fmt.Fprintf(buf, "    static var fenVariants: [String: FenVariant<%s>] {\n", e.Name)
	if len(e.Variants) == 0 {
		buf.WriteString("        [:]\n")
	} else {
		buf.WriteString("        [\n")
		for _, v := range e.Variants {
			tag := schema.WireName(v.Tag)
			switch p := v.Payload.(type) {
			case nil:
				fmt.Fprintf(buf, "            %q: .unit(.%s),\n", tag, caseName(v.Tag))
			case schema.Optional:
				fmt.Fprintf(buf, "            %q: .optionalPayload(%s.self) { .%s($0) },\n", tag, swiftType(p.Elem), caseName(v.Tag))
			default:
				fmt.Fprintf(buf, "            %q: .payload(%s.self) { .%s($0) },\n", tag, swiftType(p), caseName(v.Tag))
			}
		}
		buf.WriteString("        ]\n")
	}
	buf.WriteString("    }\n\n")

	buf.WriteString("    public init(from decoder: Decoder) throws {\n")
	fmt.Fprintf(buf, "        self = try fenDecodeTagged(decoder, name: %q, variants: Self.fenVariants)\n", e.Name)
	buf.WriteString("    }\n\n")

	buf.WriteString("    public func encode(to encoder: Encoder) throws {\n")
	if len(e.Variants) == 0 {
		buf.WriteString("        switch self {}\n")
	} else {
		buf.WriteString("        switch self {\n")
		for _, v := range e.Variants {
			tag := schema.WireName(v.Tag)
			if v.Payload == nil {
				fmt.Fprintf(buf, "        case .%s:\n            try fenEncodeTagged(encoder, tag: %q)\n", caseName(v.Tag), tag)
				continue
			}
			fmt.Fprintf(buf, "        case let .%s(value):\n            try fenEncodeTagged(encoder, tag: %q, payload: value)\n", caseName(v.Tag), tag)
		}
		buf.WriteString("        }\n")
	}
	buf.WriteString("    }\n}\n")
}

func writeEndpoint(buf *bytes.Buffer, rs *resolver.ResolvedSchema, ep schema.EndpointDef) {
	input, isStruct := rs.InputStruct(ep)
	var sig []string
	body := "nil"
	var setup string
	switch {
	case isStruct:
		args := make([]string, len(input.Fields))
		for i, f := range input.Fields {
			p := paramName(f.Name)
			sig = append(sig, p+": "+swiftType(f.Ref()))
			args[i] = schema.WireName(f.Name) + ": " + p
		}
		setup = fmt.Sprintf("        let body = try fenEncode(%s(%s))\n", input.Name, strings.Join(args, ", "))
		body = "body"
	case ep.Input != nil:
		sig = append(sig, "_ input: "+swiftType(ep.Input))
		setup = "        let body = try fenEncode(input)\n"
		body = "body"
	}
	token := ""
	if ep.RequiresAuth {
		sig = append(sig, "sessionToken: String? = nil")
		token = ", sessionToken: sessionToken"
	}

	buf.WriteString("extension APIClient {\n")
	writeDoc(buf, "    ", ep.Description)
	out := swiftType(ep.Output)
	fmt.Fprintf(buf, "    public func %s(%s) async throws -> Response<%s> {\n", methodName(ep.Name), strings.Join(sig, ", "), out)
	buf.WriteString(setup)
	ret := "try await"
	if setup != "" {
		ret = "return try await"
	}
	fmt.Fprintf(buf, "        %s call(%q, %q, body: %s, output: %s.self%s)\n", ret, string(ep.Method), ep.Path, body, out, token)
	buf.WriteString("    }\n}\n")
}
