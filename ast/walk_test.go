package ast

import (
	"net/netip"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestSizeCountsEveryNode(t *testing.T) {
	e := &And{Exprs: []Expr{
		&Not{Expr: &Field{Name: "x"}},
		Bool(true),
	}}

	assert.Equal(t, 4, Size(e))
}

func TestWalkIsPreOrder(t *testing.T) {
	e := &And{Exprs: []Expr{
		&Not{Expr: &Field{Name: "x"}},
		&Field{Name: "y"},
	}}

	var kinds []ExprKind

	Walk(e, func(n Expr) { kinds = append(kinds, n.Kind()) })

	assert.Equal(t, []ExprKind{KindAnd, KindNot, KindField, KindField}, kinds)
}

func TestEqualDistinguishesStructure(t *testing.T) {
	a := &Cmp{Op: KindLessThan, Left: &Field{Name: "metric"}, Right: &IntLit{Value: 10}}
	b := &Cmp{Op: KindLessThan, Left: &Field{Name: "metric"}, Right: &IntLit{Value: 10}}
	c := &Cmp{Op: KindLessThanEq, Left: &Field{Name: "metric"}, Right: &IntLit{Value: 10}}

	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
	assert.False(t, Equal(a, &Field{Name: "metric"}))
}

func TestEqualStmtsComparesBranches(t *testing.T) {
	mk := func(disp Disposition) []Stmt {
		return []Stmt{
			&IfStmt{
				Guard: &Field{Name: "x"},
				Then:  []Stmt{&ReturnStmt{Disposition: disp}},
				Else:  []Stmt{&ReturnStmt{Disposition: Reject}},
			},
		}
	}

	assert.True(t, EqualStmts(mk(Accept), mk(Accept)))
	assert.False(t, EqualStmts(mk(Accept), mk(Pass)))
}

func TestStringRendering(t *testing.T) {
	tests := []struct {
		expr Expr
		want string
	}{
		{&Field{Name: "communities"}, ".communities"},
		{&Var{Name: "CUSTOMERS"}, "$CUSTOMERS"},
		{&Not{Expr: Bool(false)}, "!false"},
		{
			&SetContains{Elem: &StringLit{Value: "65000:1"}, Set: &Field{Name: "communities"}},
			`contains("65000:1", .communities)`,
		},
		{
			&And{Exprs: []Expr{&Field{Name: "a"}, &Field{Name: "b"}}},
			"and(.a, .b)",
		},
		{
			&PrefixSet{Prefixes: []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}},
			"prefixes(10.0.0.0/8)",
		},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, String(tt.expr))
	}
}

func TestSubstVarsReplacesReferences(t *testing.T) {
	env := map[string]Expr{
		"CUSTOMERS": &SetLit{Elems: []Expr{&StringLit{Value: "65000:1"}}},
	}

	e := &SetContains{
		Elem: &StringLit{Value: "65000:1"},
		Set:  &Var{Name: "CUSTOMERS"},
	}

	got := SubstVars(e, env)

	contains, ok := got.(*SetContains)
	assert.True(t, ok)
	assert.Equal(t, KindLiteralSet, contains.Set.Kind())

	// unbound references stay for the interpreter to report
	dangling := SubstVars(&Var{Name: "UNKNOWN"}, env)
	assert.Equal(t, KindVar, dangling.Kind())
}
