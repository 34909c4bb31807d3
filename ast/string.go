package ast

import (
	"fmt"
	"strings"
)

// String renders an expression compactly for error messages and traces.
// It is not part of the wire format.
func String(e Expr) string {
	switch n := e.(type) {
	case *BoolLit:
		return fmt.Sprintf("%t", n.Value)
	case *IntLit:
		return fmt.Sprintf("%d", n.Value)
	case *StringLit:
		return fmt.Sprintf("%q", n.Value)
	case *Havoc:
		return "havoc"
	case *Field:
		return "." + n.Name
	case *Var:
		return "$" + n.Name
	case *Call:
		return "call(" + n.Policy + ")"
	case *Not:
		return "!" + String(n.Expr)
	case *And:
		return nary("and", n.Exprs)
	case *Or:
		return nary("or", n.Exprs)
	case *Cmp:
		return fmt.Sprintf("%s(%s, %s)", n.Op, String(n.Left), String(n.Right))
	case *Arith:
		return fmt.Sprintf("%s(%s, %s)", n.Op, String(n.Left), String(n.Right))
	case *SetLit:
		return nary("set", n.Elems)
	case *SetAdd:
		return fmt.Sprintf("add(%s, %s)", String(n.Elem), String(n.Set))
	case *SetRemove:
		return fmt.Sprintf("remove(%s, %s)", String(n.Elem), String(n.Set))
	case *SetUnion:
		return nary("union", n.Sets)
	case *SetContains:
		return fmt.Sprintf("contains(%s, %s)", String(n.Elem), String(n.Set))
	case *PrefixLit:
		return n.Net.String()
	case *PrefixContains:
		return fmt.Sprintf("in(%s, %s)", String(n.Addr), String(n.Set))
	case *PrefixSet:
		parts := make([]string, len(n.Prefixes))
		for i, p := range n.Prefixes {
			parts[i] = p.String()
		}

		return "prefixes(" + strings.Join(parts, ", ") + ")"
	case *MatchSet:
		return fmt.Sprintf("match(permit=%s, deny=%s)", String(n.Permit), String(n.Deny))
	}

	return string(e.Kind())
}

func nary(op string, exprs []Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = String(e)
	}

	return op + "(" + strings.Join(parts, ", ") + ")"
}
