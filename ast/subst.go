package ast

// SubstVars replaces every Var reference found in env with the bound
// expression, returning a new tree. Unbound Vars are left in place so that
// the interpreter can report them with context.
func SubstVars(e Expr, env map[string]Expr) Expr {
	switch n := e.(type) {
	case *Var:
		if bound, ok := env[n.Name]; ok {
			return bound
		}

		return n
	case *And:
		return &And{Exprs: substList(n.Exprs, env)}
	case *Or:
		return &Or{Exprs: substList(n.Exprs, env)}
	case *Not:
		return &Not{Expr: SubstVars(n.Expr, env)}
	case *Cmp:
		return &Cmp{Op: n.Op, Left: SubstVars(n.Left, env), Right: SubstVars(n.Right, env)}
	case *Arith:
		return &Arith{Op: n.Op, Left: SubstVars(n.Left, env), Right: SubstVars(n.Right, env)}
	case *SetLit:
		return &SetLit{Elems: substList(n.Elems, env)}
	case *SetAdd:
		return &SetAdd{Elem: SubstVars(n.Elem, env), Set: SubstVars(n.Set, env)}
	case *SetRemove:
		return &SetRemove{Elem: SubstVars(n.Elem, env), Set: SubstVars(n.Set, env)}
	case *SetUnion:
		return &SetUnion{Sets: substList(n.Sets, env)}
	case *SetContains:
		return &SetContains{Elem: SubstVars(n.Elem, env), Set: SubstVars(n.Set, env)}
	case *PrefixContains:
		return &PrefixContains{Addr: SubstVars(n.Addr, env), Set: SubstVars(n.Set, env)}
	case *MatchSet:
		return &MatchSet{Permit: SubstVars(n.Permit, env), Deny: SubstVars(n.Deny, env)}
	default:
		return e
	}
}

func substList(exprs []Expr, env map[string]Expr) []Expr {
	out := make([]Expr, len(exprs))
	for i, e := range exprs {
		out[i] = SubstVars(e, env)
	}

	return out
}

// SubstStmts applies SubstVars to every expression reachable from the
// statement list.
func SubstStmts(stmts []Stmt, env map[string]Expr) []Stmt {
	out := make([]Stmt, len(stmts))

	for i, s := range stmts {
		switch n := s.(type) {
		case *AssignStmt:
			out[i] = &AssignStmt{Field: n.Field, Expr: SubstVars(n.Expr, env)}
		case *IfStmt:
			out[i] = &IfStmt{
				Guard:   SubstVars(n.Guard, env),
				Then:    SubstStmts(n.Then, env),
				Else:    SubstStmts(n.Else, env),
				Comment: n.Comment,
			}
		default:
			out[i] = s
		}
	}

	return out
}
