// Package emitter defines the contract between the driver and the target
// language emitters, and the helpers they share.
package emitter

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/fenlang/fen/internal/resolver"
)

// Options controls how a target renders a client.
type Options struct {
	PackageName  string // Go package, npm package or Python package name; targets derive one when empty
	Endpoint     string // base URL used by default
	EndpointProd string // optional production base URL
	PayloadKey   string // envelope and variant payload key; "value" when empty
	Stamp        Stamp
}

// Target renders a resolved schema into an in-memory source tree. Emit
// must not retain or mutate the schema; targets run concurrently.
type Target interface {
	Name() string
	Emit(ctx context.Context, rs *resolver.ResolvedSchema, opts Options) (*Tree, error)
}

// Unit is one emitted source file. Path is slash-separated and relative to
// the output directory.
type Unit struct {
	Path    string
	Content []byte
}

// Tree is the complete output of one target.
type Tree struct {
	Target string
	Units  []Unit
	paths  map[string]bool
}

// NewTree returns an empty tree for target.
func NewTree(target string) *Tree {
	return &Tree{Target: target, paths: map[string]bool{}}
}

// Add appends a unit. Paths must be relative, clean and unique.
func (t *Tree) Add(p string, content []byte) error {
	if p == "" || path.IsAbs(p) || path.Clean(p) != p || strings.HasPrefix(p, "../") || p == ".." {
		return fmt.Errorf("%s: invalid unit path %q", t.Target, p)
	}
	if t.paths == nil {
		t.paths = map[string]bool{}
	}
	if t.paths[p] {
		return fmt.Errorf("%s: unit %q emitted twice", t.Target, p)
	}
	t.paths[p] = true
	t.Units = append(t.Units, Unit{Path: p, Content: content})
	return nil
}

// Sorted returns the units ordered by path.
func (t *Tree) Sorted() []Unit {
	out := append([]Unit(nil), t.Units...)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Lookup returns the content of the unit at p.
func (t *Tree) Lookup(p string) ([]byte, bool) {
	for _, u := range t.Units {
		if u.Path == p {
			return u.Content, true
		}
	}
	return nil, false
}

// TargetError reports a schema construct that has no mapping in a target.
// The whole target is abandoned.
type TargetError struct {
	Target    string
	Construct string // e.g. "Batch.items: Response<Int>"
	Reason    string
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Target, e.Construct, e.Reason)
}

// Registry maps target names and aliases to targets.
type Registry struct {
	targets map[string]Target
	aliases map[string]string
}

// NewRegistry registers targets under their own names.
func NewRegistry(targets ...Target) *Registry {
	r := &Registry{targets: map[string]Target{}, aliases: map[string]string{}}
	for _, t := range targets {
		r.Register(t)
	}
	return r
}

// Register adds t, replacing any target of the same name.
func (r *Registry) Register(t Target) {
	r.targets[t.Name()] = t
}

// Alias makes alias resolve to the target named name.
func (r *Registry) Alias(alias, name string) {
	r.aliases[alias] = name
}

// Lookup finds a target by name or alias, case-insensitively.
func (r *Registry) Lookup(name string) (Target, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := r.aliases[key]; ok {
		key = canonical
	}
	t, ok := r.targets[key]
	return t, ok
}

// Names returns the registered target names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.targets))
	for name := range r.targets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
