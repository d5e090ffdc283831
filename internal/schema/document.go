package schema

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// The structural document shape accepted by Parse:
//
//	name: Todos
//	types:
//	  - struct: Todo
//	    fields:
//	      - { name: id, type: Uuid }
//	      - { name: due, type: Date, optional: true }
//	  - enum: Job
//	    variants:
//	      - developer
//	      - { tag: other, payload: "String?" }
//	endpoints:
//	  - { name: GetTodos, method: GET, output: "[Todo]", auth: true }

type rawDocument struct {
	Name        string        `yaml:"name"`
	Version     string        `yaml:"version"`
	Description string        `yaml:"description"`
	Types       []rawType     `yaml:"types"`
	Endpoints   []rawEndpoint `yaml:"endpoints"`
}

type rawType struct {
	Struct      string       `yaml:"struct"`
	Enum        string       `yaml:"enum"`
	Description string       `yaml:"description"`
	Fields      []rawField   `yaml:"fields"`
	Variants    []rawVariant `yaml:"variants"`
}

type rawField struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Optional    bool   `yaml:"optional"`
	Description string `yaml:"description"`
}

type rawVariant struct {
	Tag         string
	Payload     string
	Description string
}

type rawEndpoint struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Method      string `yaml:"method"`
	Path        string `yaml:"path"`
	Input       string `yaml:"input"`
	Output      string `yaml:"output"`
	Auth        bool   `yaml:"auth"`
}

// UnmarshalYAML accepts either a bare tag ("developer") or a mapping with
// tag, payload and description keys.
func (v *rawVariant) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		v.Tag = node.Value
		return nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i], node.Content[i+1]
			if val.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: variant key %q must be a scalar", val.Line, key.Value)
			}
			switch key.Value {
			case "tag":
				v.Tag = val.Value
			case "payload":
				v.Payload = val.Value
			case "description":
				v.Description = val.Value
			default:
				return fmt.Errorf("line %d: field %s not found in variant", key.Line, key.Value)
			}
		}
		return nil
	default:
		return fmt.Errorf("line %d: variant must be a tag or a mapping", node.Line)
	}
}

// elementError locates a failure inside the document, e.g.
// "types[1].fields[0].type".
type elementError struct {
	path  string
	cause error
}

func (e *elementError) Error() string { return e.path + ": " + e.cause.Error() }
func (e *elementError) Unwrap() error { return e.cause }

func atPath(path string, err error) error {
	return &elementError{path: path, cause: err}
}

func (d *rawDocument) build() (*Document, error) {
	doc := &Document{
		Name:        strings.TrimSpace(d.Name),
		Version:     strings.TrimSpace(d.Version),
		Description: strings.TrimSpace(d.Description),
	}
	for i, rt := range d.Types {
		td, err := rt.build(fmt.Sprintf("types[%d]", i))
		if err != nil {
			return nil, err
		}
		doc.Types = append(doc.Types, td)
	}
	for i, re := range d.Endpoints {
		ep, err := re.build(fmt.Sprintf("endpoints[%d]", i))
		if err != nil {
			return nil, err
		}
		doc.Endpoints = append(doc.Endpoints, ep)
	}
	return doc, nil
}

func (t *rawType) build(path string) (TypeDef, error) {
	switch {
	case t.Struct != "" && t.Enum != "":
		return nil, atPath(path, errors.New("a type is either a struct or an enum, not both"))
	case t.Struct != "":
		if len(t.Variants) > 0 {
			return nil, atPath(path, fmt.Errorf("struct %s cannot declare variants", t.Struct))
		}
		s := &Struct{Name: t.Struct, Description: strings.TrimSpace(t.Description)}
		for i, f := range t.Fields {
			fpath := fmt.Sprintf("%s.fields[%d]", path, i)
			if f.Type == "" {
				return nil, atPath(fpath+".type", errors.New("missing type"))
			}
			ref, err := ParseTypeRef(f.Type)
			if err != nil {
				return nil, atPath(fpath+".type", err)
			}
			s.Fields = append(s.Fields, FieldDef{
				Name:        f.Name,
				Description: strings.TrimSpace(f.Description),
				Type:        ref,
				Optional:    f.Optional,
			})
		}
		return s, nil
	case t.Enum != "":
		if len(t.Fields) > 0 {
			return nil, atPath(path, fmt.Errorf("enum %s cannot declare fields", t.Enum))
		}
		e := &Enum{Name: t.Enum, Description: strings.TrimSpace(t.Description)}
		for i, v := range t.Variants {
			vd := VariantDef{Tag: v.Tag, Description: strings.TrimSpace(v.Description)}
			if v.Payload != "" {
				ref, err := ParseTypeRef(v.Payload)
				if err != nil {
					return nil, atPath(fmt.Sprintf("%s.variants[%d].payload", path, i), err)
				}
				vd.Payload = ref
			}
			e.Variants = append(e.Variants, vd)
		}
		return e, nil
	default:
		return nil, atPath(path, errors.New("a type needs a struct or enum name"))
	}
}

func (r *rawEndpoint) build(path string) (EndpointDef, error) {
	ep := EndpointDef{
		Name:         r.Name,
		Description:  strings.TrimSpace(r.Description),
		Method:       Method(strings.ToUpper(strings.TrimSpace(r.Method))),
		Path:         strings.TrimSpace(r.Path),
		RequiresAuth: r.Auth,
	}
	if r.Input != "" {
		ref, err := ParseTypeRef(r.Input)
		if err != nil {
			return EndpointDef{}, atPath(path+".input", err)
		}
		ep.Input = ref
	}
	if r.Output != "" {
		ref, err := ParseTypeRef(r.Output)
		if err != nil {
			return EndpointDef{}, atPath(path+".output", err)
		}
		ep.Output = ref
	}
	if ep.Method == "" {
		ep.Method = GET
		if ep.Input != nil {
			ep.Method = POST
		}
	}
	if ep.Path == "" {
		ep.Path = DefaultPath(ep.Name)
	}
	return ep, nil
}

// DefaultPath is the route used for an endpoint that declares no path.
func DefaultPath(endpointName string) string {
	return "/_fen_/" + PascalToKebab(endpointName)
}
