// Package eval symbolically evaluates routing policies against route
// records. A record maps route attributes to values that are either
// concrete or symbolic; evaluation either decides a policy's disposition
// outright or produces a residual predicate over the attributes that were
// left symbolic.
package eval

import (
	"net/netip"
	"sort"

	"github.com/minnowtool/minnow/ast"
)

// ValueKind discriminates the shapes a route-attribute value can take.
type ValueKind int

const (
	// Symbolic values stand for any value of the attribute's type,
	// optionally constrained by the expression they carry.
	Symbolic ValueKind = iota
	BoolKind
	IntKind
	StringKind
	SetKind
	PrefixKind
)

// Value is a concrete or symbolic route-attribute value. Values are
// immutable; operations produce new ones.
type Value struct {
	kind   ValueKind
	b      bool
	i      int64
	s      string
	set    map[string]struct{}
	prefix netip.Prefix
	sym    ast.Expr
}

// BoolValue returns a concrete boolean value.
func BoolValue(v bool) Value { return Value{kind: BoolKind, b: v} }

// IntValue returns a concrete integer value.
func IntValue(v int64) Value { return Value{kind: IntKind, i: v} }

// StringValue returns a concrete string value.
func StringValue(v string) Value { return Value{kind: StringKind, s: v} }

// PrefixValue returns a concrete prefix value.
func PrefixValue(p netip.Prefix) Value { return Value{kind: PrefixKind, prefix: p} }

// SetValue returns a concrete community-set value.
func SetValue(elems ...string) Value {
	set := make(map[string]struct{}, len(elems))
	for _, e := range elems {
		set[e] = struct{}{}
	}

	return Value{kind: SetKind, set: set}
}

// SymbolicValue returns a symbolic value constrained by expr.
func SymbolicValue(expr ast.Expr) Value { return Value{kind: Symbolic, sym: expr} }

// Kind returns the value's shape.
func (v Value) Kind() ValueKind { return v.kind }

// IsSymbolic reports whether the value is unresolved.
func (v Value) IsSymbolic() bool { return v.kind == Symbolic }

// Bool returns the concrete boolean; valid only when Kind is BoolKind.
func (v Value) Bool() bool { return v.b }

// Int returns the concrete integer; valid only when Kind is IntKind.
func (v Value) Int() int64 { return v.i }

// Str returns the concrete string; valid only when Kind is StringKind.
func (v Value) Str() string { return v.s }

// Prefix returns the concrete prefix; valid only when Kind is PrefixKind.
func (v Value) Prefix() netip.Prefix { return v.prefix }

// SetElems returns the sorted elements of a concrete set.
func (v Value) SetElems() []string {
	elems := make([]string, 0, len(v.set))
	for e := range v.set {
		elems = append(elems, e)
	}

	sort.Strings(elems)

	return elems
}

func (v Value) setHas(elem string) bool {
	_, ok := v.set[elem]
	return ok
}

// AsExpr renders the value as an AST expression, used when a partially
// resolved expression must be rebuilt around it.
func (v Value) AsExpr() ast.Expr {
	switch v.kind {
	case BoolKind:
		return ast.Bool(v.b)
	case IntKind:
		return &ast.IntLit{Value: v.i}
	case StringKind:
		return &ast.StringLit{Value: v.s}
	case PrefixKind:
		return &ast.PrefixLit{Net: v.prefix}
	case SetKind:
		elems := v.SetElems()
		exprs := make([]ast.Expr, len(elems))

		for i, e := range elems {
			exprs[i] = &ast.StringLit{Value: e}
		}

		return &ast.SetLit{Elems: exprs}
	default:
		return v.sym
	}
}

// equal reports whether two values are the same concrete value or the same
// symbolic constraint.
func (v Value) equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}

	switch v.kind {
	case BoolKind:
		return v.b == o.b
	case IntKind:
		return v.i == o.i
	case StringKind:
		return v.s == o.s
	case PrefixKind:
		return v.prefix == o.prefix
	case SetKind:
		if len(v.set) != len(o.set) {
			return false
		}

		for e := range v.set {
			if !o.setHas(e) {
				return false
			}
		}

		return true
	default:
		return ast.Equal(v.sym, o.sym)
	}
}
