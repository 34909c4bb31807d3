package ast

// Walk visits e and every descendant in depth-first pre-order.
func Walk(e Expr, visit func(Expr)) {
	visit(e)

	for _, child := range e.Children() {
		Walk(child, visit)
	}
}

// Size returns the node count of the tree rooted at e.
func Size(e Expr) int {
	n := 0
	Walk(e, func(Expr) { n++ })

	return n
}

// Equal reports structural equality of two expression trees.
func Equal(a, b Expr) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if a.Kind() != b.Kind() {
		return false
	}

	switch an := a.(type) {
	case *BoolLit:
		return an.Value == b.(*BoolLit).Value
	case *IntLit:
		return an.Value == b.(*IntLit).Value
	case *StringLit:
		return an.Value == b.(*StringLit).Value
	case *Field:
		return an.Name == b.(*Field).Name
	case *Var:
		return an.Name == b.(*Var).Name
	case *Call:
		return an.Policy == b.(*Call).Policy
	case *PrefixLit:
		return an.Net == b.(*PrefixLit).Net
	case *PrefixSet:
		bn := b.(*PrefixSet)
		if len(an.Prefixes) != len(bn.Prefixes) {
			return false
		}

		for i := range an.Prefixes {
			if an.Prefixes[i] != bn.Prefixes[i] {
				return false
			}
		}

		return true
	default:
		ac, bc := a.Children(), b.Children()
		if len(ac) != len(bc) {
			return false
		}

		for i := range ac {
			if !Equal(ac[i], bc[i]) {
				return false
			}
		}

		return true
	}
}

// EqualStmt reports structural equality of two statements.
func EqualStmt(a, b Stmt) bool {
	if a.StmtKind() != b.StmtKind() {
		return false
	}

	switch an := a.(type) {
	case *AssignStmt:
		bn := b.(*AssignStmt)
		return an.Field == bn.Field && Equal(an.Expr, bn.Expr)
	case *IfStmt:
		bn := b.(*IfStmt)
		return Equal(an.Guard, bn.Guard) && EqualStmts(an.Then, bn.Then) && EqualStmts(an.Else, bn.Else)
	case *ReturnStmt:
		return an.Disposition == b.(*ReturnStmt).Disposition
	}

	return false
}

// EqualStmts reports element-wise equality of two statement lists.
func EqualStmts(a, b []Stmt) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if !EqualStmt(a[i], b[i]) {
			return false
		}
	}

	return true
}
