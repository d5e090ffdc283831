package emitter

import (
	"sort"
	"strings"

	"github.com/fenlang/fen/internal/resolver"
	"github.com/fenlang/fen/internal/schema"
)

// DefaultPayloadKey is used when Options.PayloadKey is empty.
const DefaultPayloadKey = "value"

// Key returns the payload key to emit.
func (o Options) Key() string {
	if o.PayloadKey == "" {
		return DefaultPayloadKey
	}
	return o.PayloadKey
}

// NamedRefs returns the sorted, de-duplicated type names referenced by refs.
func NamedRefs(refs ...schema.TypeRef) []string {
	seen := map[string]bool{}
	for _, r := range refs {
		schema.Walk(r, func(t schema.TypeRef) bool {
			if n, ok := t.(schema.Named); ok {
				seen[n.Name] = true
			}
			return true
		})
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DefRefs returns every type reference a definition holds.
func DefRefs(td schema.TypeDef) []schema.TypeRef {
	var refs []schema.TypeRef
	switch t := td.(type) {
	case *schema.Struct:
		for _, f := range t.Fields {
			refs = append(refs, f.Ref())
		}
	case *schema.Enum:
		for _, v := range t.Variants {
			if v.Payload != nil {
				refs = append(refs, v.Payload)
			}
		}
	}
	return refs
}

// EndpointRefs returns the input (when present) and output of ep.
func EndpointRefs(ep schema.EndpointDef) []schema.TypeRef {
	if ep.Input != nil {
		return []schema.TypeRef{ep.Input, ep.Output}
	}
	return []schema.TypeRef{ep.Output}
}

// RejectExplicitResponses fails targets that can only decode the envelope
// around an endpoint output and cannot hold one as a value.
func RejectExplicitResponses(target string, rs *resolver.ResolvedSchema) error {
	uses := rs.ExplicitResponses()
	if len(uses) == 0 {
		return nil
	}
	u := uses[0]
	return &TargetError{
		Target:    target,
		Construct: u.Path + ": " + u.Ref.String(),
		Reason:    "the response envelope is not a value type in this target",
	}
}

// FindCycle returns a cycle of nodes reachable through edges, or nil.
// Nodes are visited in the given order so the result is deterministic.
func FindCycle(nodes []string, edges func(string) []string) []string {
	const (
		unvisited = iota
		active
		done
	)
	state := map[string]int{}
	var stack []string
	var cycle []string
	var visit func(string) bool
	visit = func(n string) bool {
		state[n] = active
		stack = append(stack, n)
		for _, next := range edges(n) {
			switch state[next] {
			case active:
				for i, s := range stack {
					if s == next {
						cycle = append(append([]string(nil), stack[i:]...), next)
						return true
					}
				}
			case unvisited:
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[n] = done
		return false
	}
	for _, n := range nodes {
		if state[n] == unvisited && visit(n) {
			return cycle
		}
	}
	return nil
}

// StructValueCycle finds structs that contain each other by value, which
// targets without implicit indirection cannot declare. A field counts as
// containment when it names a struct directly, or through Optional unless
// optionalIsIndirect is set. Arrays and enums break the chain.
func StructValueCycle(rs *resolver.ResolvedSchema, optionalIsIndirect bool) []string {
	var names []string
	for _, td := range rs.Types {
		if _, ok := td.(*schema.Struct); ok {
			names = append(names, td.TypeName())
		}
	}
	edges := func(name string) []string {
		s, _ := rs.Struct(name)
		var out []string
		for _, f := range s.Fields {
			ref := f.Ref()
			if o, ok := ref.(schema.Optional); ok {
				if optionalIsIndirect {
					continue
				}
				ref = o.Elem
			}
			if n, ok := ref.(schema.Named); ok {
				if _, isStruct := rs.Struct(n.Name); isStruct {
					out = append(out, n.Name)
				}
			}
		}
		return out
	}
	return FindCycle(names, edges)
}

// CheckTypeNames fails when two generated type names collide, e.g. an enum
// variant type "JobOther" and a struct declared as "JobOther".
func CheckTypeNames(target string, names map[string]string) error {
	owners := map[string]string{}
	keys := make([]string, 0, len(names))
	for k := range names {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, construct := range keys {
		name := names[construct]
		if prev, dup := owners[name]; dup {
			return &TargetError{Target: target, Construct: construct, Reason: "generated name " + name + " collides with " + prev}
		}
		owners[name] = construct
	}
	return nil
}

// DocLines splits a description into trimmed lines, dropping leading and
// trailing blank ones.
func DocLines(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}
	return lines
}
