package wire

import "github.com/fenlang/fen/internal/schema"

// VariantSpec describes one enum variant on the wire.
type VariantSpec struct {
	Tag     string         // schema tag
	Wire    string         // value of the "type" discriminant
	Payload schema.TypeRef // nil for unit variants
}

// VariantTable is the declarative description of one enum. A single shared
// routine encodes and decodes every enum from its table.
type VariantTable struct {
	Enum     string
	Variants []VariantSpec
	byTag    map[string]int
	byWire   map[string]int
}

// NewVariantTable builds the table of e.
func NewVariantTable(e *schema.Enum) *VariantTable {
	t := &VariantTable{
		Enum:   e.Name,
		byTag:  make(map[string]int, len(e.Variants)),
		byWire: make(map[string]int, len(e.Variants)),
	}
	for i, v := range e.Variants {
		spec := VariantSpec{Tag: v.Tag, Wire: schema.WireName(v.Tag), Payload: v.Payload}
		t.Variants = append(t.Variants, spec)
		t.byTag[spec.Tag] = i
		t.byWire[spec.Wire] = i
	}
	return t
}

// ByTag looks a variant up by schema tag.
func (t *VariantTable) ByTag(tag string) (VariantSpec, bool) {
	i, ok := t.byTag[tag]
	if !ok {
		return VariantSpec{}, false
	}
	return t.Variants[i], true
}

// ByWire looks a variant up by its discriminant.
func (t *VariantTable) ByWire(wire string) (VariantSpec, bool) {
	i, ok := t.byWire[wire]
	if !ok {
		return VariantSpec{}, false
	}
	return t.Variants[i], true
}
