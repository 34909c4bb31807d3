package eval

import (
	"fmt"
	"sort"

	"github.com/minnowtool/minnow"
	"github.com/minnowtool/minnow/ast"
)

// Route-record attribute names. The attribute set of a record is fixed at
// construction; evaluation may narrow values but never add attributes.
const (
	AttrPrefix       = "prefix"
	AttrNextHop      = "nextHop"
	AttrCommunities  = "communities"
	AttrLocalPref    = "localPref"
	AttrMetric       = "metric"
	AttrASPathLength = "asPathLength"
	AttrTag          = "tag"
)

// StandardAttributes lists the attributes every service-exported policy may
// reference, in stable order.
func StandardAttributes() []string {
	return []string{
		AttrASPathLength,
		AttrCommunities,
		AttrLocalPref,
		AttrMetric,
		AttrNextHop,
		AttrPrefix,
		AttrTag,
	}
}

// Record is the interpreter's evaluation context: a fixed mapping from
// attribute name to a concrete or symbolic value. Records are never mutated
// in place; With returns a new record.
type Record struct {
	attrs map[string]Value
}

// NewRecord builds a record over exactly the given attributes.
func NewRecord(attrs map[string]Value) Record {
	copied := make(map[string]Value, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}

	return Record{attrs: copied}
}

// SymbolicRecord builds a record over the standard attributes with every
// value unconstrained.
func SymbolicRecord() Record {
	attrs := make(map[string]Value)
	for _, name := range StandardAttributes() {
		attrs[name] = SymbolicValue(&ast.Field{Name: name})
	}

	return Record{attrs: attrs}
}

// Get returns the value of the named attribute. Referencing an attribute
// outside the record's fixed set is an interpreter error, never a silent
// default.
func (r Record) Get(name string) (Value, error) {
	v, ok := r.attrs[name]
	if !ok {
		return Value{}, fmt.Errorf("%w: %q", minnow.ErrUndefinedAttribute, name)
	}

	return v, nil
}

// With returns a new record with the named attribute set to v.
func (r Record) With(name string, v Value) (Record, error) {
	if _, ok := r.attrs[name]; !ok {
		return Record{}, fmt.Errorf("%w: %q", minnow.ErrUndefinedAttribute, name)
	}

	attrs := make(map[string]Value, len(r.attrs))
	for k, val := range r.attrs {
		attrs[k] = val
	}

	attrs[name] = v

	return Record{attrs: attrs}, nil
}

// Names returns the record's attribute names in sorted order.
func (r Record) Names() []string {
	names := make([]string, 0, len(r.attrs))
	for k := range r.attrs {
		names = append(names, k)
	}

	sort.Strings(names)

	return names
}

// merge reconciles the records produced by the two arms of a symbolic fork:
// attributes the arms agree on keep their value, the rest go symbolic
// (values are only ever narrowed, never invented).
func merge(a, b Record) Record {
	attrs := make(map[string]Value, len(a.attrs))

	for k, av := range a.attrs {
		if bv, ok := b.attrs[k]; ok && av.equal(bv) {
			attrs[k] = av
			continue
		}

		attrs[k] = SymbolicValue(&ast.Field{Name: k})
	}

	return Record{attrs: attrs}
}
