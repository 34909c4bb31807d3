package ast

// Simplify rewrites e into a semantically equivalent expression that is
// never larger (by node count). It runs to a fixed point, so
// Simplify(Simplify(e)) equals Simplify(e). The input tree is not modified.
//
// Rules, in precedence order:
//  1. constant folding: Not(Not(x)) -> x, Not(true) -> false, folding of
//     comparisons and set membership over literals
//  2. short-circuit pruning: a deciding constant operand of And/Or drops
//     every sibling subtree
//  3. flattening of nested same-operator And/Or chains into one n-ary node
func Simplify(e Expr) Expr {
	for {
		next := simplifyOnce(e)
		if Equal(next, e) {
			return next
		}

		e = next
	}
}

func simplifyOnce(e Expr) Expr {
	switch n := e.(type) {
	case *Not:
		inner := simplifyOnce(n.Expr)

		switch in := inner.(type) {
		case *BoolLit:
			return Bool(!in.Value)
		case *Not:
			return in.Expr
		}

		return &Not{Expr: inner}
	case *And:
		return simplifyNary(n.Exprs, true)
	case *Or:
		return simplifyNary(n.Exprs, false)
	case *Cmp:
		left := simplifyOnce(n.Left)
		right := simplifyOnce(n.Right)

		if l, ok := left.(*IntLit); ok {
			if r, ok := right.(*IntLit); ok {
				return Bool(foldCmp(n.Op, l.Value, r.Value))
			}
		}

		return &Cmp{Op: n.Op, Left: left, Right: right}
	case *SetContains:
		elem := simplifyOnce(n.Elem)
		set := simplifyOnce(n.Set)

		if s, ok := elem.(*StringLit); ok {
			if lit, ok := set.(*SetLit); ok {
				if folded, decided := foldContains(s.Value, lit); decided {
					return Bool(folded)
				}
			}
		}

		return &SetContains{Elem: elem, Set: set}
	case *MatchSet:
		return &MatchSet{Permit: simplifyOnce(n.Permit), Deny: simplifyOnce(n.Deny)}
	case *Arith:
		return &Arith{Op: n.Op, Left: simplifyOnce(n.Left), Right: simplifyOnce(n.Right)}
	case *SetAdd:
		return &SetAdd{Elem: simplifyOnce(n.Elem), Set: simplifyOnce(n.Set)}
	case *SetRemove:
		return &SetRemove{Elem: simplifyOnce(n.Elem), Set: simplifyOnce(n.Set)}
	case *SetUnion:
		sets := make([]Expr, len(n.Sets))
		for i, s := range n.Sets {
			sets[i] = simplifyOnce(s)
		}

		return &SetUnion{Sets: sets}
	case *SetLit:
		elems := make([]Expr, len(n.Elems))
		for i, el := range n.Elems {
			elems[i] = simplifyOnce(el)
		}

		return &SetLit{Elems: elems}
	case *PrefixContains:
		return &PrefixContains{Addr: simplifyOnce(n.Addr), Set: simplifyOnce(n.Set)}
	default:
		// leaves: literals, fields, vars, calls, havoc, prefix sets
		return e
	}
}

// simplifyNary folds, prunes and flattens one And (conj=true) or Or
// (conj=false) node.
func simplifyNary(operands []Expr, conj bool) Expr {
	kept := make([]Expr, 0, len(operands))

	for _, op := range operands {
		s := simplifyOnce(op)

		// flatten nested same-operator chains
		if conj {
			if inner, ok := s.(*And); ok {
				kept = append(kept, inner.Exprs...)
				continue
			}
		} else {
			if inner, ok := s.(*Or); ok {
				kept = append(kept, inner.Exprs...)
				continue
			}
		}

		if lit, ok := s.(*BoolLit); ok {
			if lit.Value == conj {
				// identity element, drop it
				continue
			}
			// deciding constant, the whole chain collapses
			return Bool(!conj)
		}

		kept = append(kept, s)
	}

	switch len(kept) {
	case 0:
		return Bool(conj)
	case 1:
		return kept[0]
	}

	if conj {
		return &And{Exprs: kept}
	}

	return &Or{Exprs: kept}
}

func foldCmp(op ExprKind, l, r int64) bool {
	switch op {
	case KindEqual:
		return l == r
	case KindNotEqual:
		return l != r
	case KindLessThan:
		return l < r
	case KindLessThanEq:
		return l <= r
	case KindGreaterThan:
		return l > r
	case KindGreaterThanEq:
		return l >= r
	}

	return false
}

// foldContains decides membership of value in a literal set when every
// element is itself a literal. A set with non-literal elements stays
// undecided unless one literal element already matches.
func foldContains(value string, set *SetLit) (result, decided bool) {
	allLiteral := true

	for _, el := range set.Elems {
		s, ok := el.(*StringLit)
		if !ok {
			allLiteral = false
			continue
		}

		if s.Value == value {
			return true, true
		}
	}

	return false, allLiteral
}

// SimplifyPolicy returns a copy of p with every reachable expression
// simplified and trivially dead statements removed: If branches on constant
// guards are replaced by the taken branch, identical branches collapse, and
// statements after an unconditional Return are dropped.
func SimplifyPolicy(p *Policy) *Policy {
	return &Policy{Name: p.Name, Statements: SimplifyStmts(p.Statements)}
}

// SimplifyStmts simplifies a statement sequence. See SimplifyPolicy.
func SimplifyStmts(stmts []Stmt) []Stmt {
	out := make([]Stmt, 0, len(stmts))

	for _, s := range stmts {
		switch n := s.(type) {
		case *AssignStmt:
			out = append(out, &AssignStmt{Field: n.Field, Expr: Simplify(n.Expr)})
		case *ReturnStmt:
			out = append(out, n)
			// everything after an unconditional return is unreachable
			return out
		case *IfStmt:
			guard := Simplify(n.Guard)
			then := SimplifyStmts(n.Then)
			els := SimplifyStmts(n.Else)

			if lit, ok := guard.(*BoolLit); ok {
				branch := then
				if !lit.Value {
					branch = els
				}

				out = append(out, branch...)

				if endsWithReturn(branch) {
					return out
				}

				continue
			}

			if EqualStmts(then, els) {
				out = append(out, then...)

				if endsWithReturn(then) {
					return out
				}

				continue
			}

			out = append(out, &IfStmt{Guard: guard, Then: then, Else: els, Comment: n.Comment})
		}
	}

	return out
}

func endsWithReturn(stmts []Stmt) bool {
	if len(stmts) == 0 {
		return false
	}

	_, ok := stmts[len(stmts)-1].(*ReturnStmt)

	return ok
}
