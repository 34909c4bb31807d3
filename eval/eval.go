package eval

import (
	"fmt"
	"net/netip"
	"slices"

	"go.uber.org/zap"

	"github.com/minnowtool/minnow"
	"github.com/minnowtool/minnow/ast"
)

// DispSymbolic marks results whose disposition depends on the residual
// predicate: the policy accepts exactly the routes satisfying AcceptWhen.
const DispSymbolic ast.Disposition = "symbolic"

// Step is one entry of an evaluation trace.
type Step struct {
	Index  int    `json:"index"`
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

// Result is the outcome of evaluating one policy against one route record.
type Result struct {
	// Disposition is concrete when evaluation fully resolved, DispSymbolic
	// otherwise.
	Disposition ast.Disposition
	// AcceptWhen is the residual predicate under which the policy accepts:
	// a true literal for Accept, false for Reject and Pass, an attribute
	// predicate when symbolic.
	AcceptWhen ast.Expr
	// Record reflects the assignments made on the way to the result.
	Record Record
	// Trace holds per-statement steps when tracing was requested.
	Trace []Step
}

// Options configures one evaluation.
type Options struct {
	Trace  bool
	Logger *zap.Logger
}

type evaluator struct {
	policy string
	trace  bool
	steps  []Step
}

// Evaluate runs the policy's statements in order against rec.
//
// Concrete guards choose one branch; symbolic guards fork both branches and
// fold the guard (or its negation) into the residual. A policy whose
// statements never reach a Return is rejected: the default is fail-closed,
// matching conservative verification semantics.
func Evaluate(p *ast.Policy, rec Record, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	ev := &evaluator{policy: p.Name, trace: opts.Trace}

	out, err := ev.seq(p.Statements, rec)
	if err != nil {
		return nil, fmt.Errorf("policy %q: %w", p.Name, err)
	}

	log.Debug("policy evaluated",
		zap.String("policy", p.Name),
		zap.String("disposition", string(out.disp)),
		zap.String("acceptWhen", ast.String(out.accept)))

	return &Result{
		Disposition: out.disp,
		AcceptWhen:  out.accept,
		Record:      out.rec,
		Trace:       ev.steps,
	}, nil
}

type outcome struct {
	accept ast.Expr
	disp   ast.Disposition
	rec    Record
}

func (ev *evaluator) step(index int, kind, detail string) {
	if ev.trace {
		ev.steps = append(ev.steps, Step{Index: index, Kind: kind, Detail: detail})
	}
}

func (ev *evaluator) seq(stmts []ast.Stmt, rec Record) (outcome, error) {
	for i := 0; i < len(stmts); i++ {
		switch st := stmts[i].(type) {
		case *ast.AssignStmt:
			v, err := ev.expr(st.Expr, rec)
			if err != nil {
				return outcome{}, fmt.Errorf("statement %d: %w", i, err)
			}

			rec, err = rec.With(st.Field, v)
			if err != nil {
				return outcome{}, fmt.Errorf("statement %d: %w", i, err)
			}

			ev.step(i, "assign", st.Field)
		case *ast.ReturnStmt:
			ev.step(i, "return", string(st.Disposition))

			return outcome{
				accept: ast.Bool(st.Disposition == ast.Accept),
				disp:   st.Disposition,
				rec:    rec,
			}, nil
		case *ast.IfStmt:
			gv, err := ev.expr(st.Guard, rec)
			if err != nil {
				return outcome{}, fmt.Errorf("statement %d: %w", i, err)
			}

			rest := stmts[i+1:]

			if !gv.IsSymbolic() {
				if gv.Kind() != BoolKind {
					return outcome{}, fmt.Errorf("%w: statement %d: guard %s is not boolean",
						minnow.ErrNotEvaluable, i, ast.String(st.Guard))
				}

				branch := st.Then
				if !gv.Bool() {
					branch = st.Else
				}

				ev.step(i, "branch", fmt.Sprintf("guard=%t", gv.Bool()))

				return ev.seq(append(slices.Clone(branch), rest...), rec)
			}

			return ev.fork(i, gv.AsExpr(), st, rest, rec)
		default:
			return outcome{}, fmt.Errorf("%w: statement %d", minnow.ErrUnsupportedStmt, i)
		}
	}

	// fell off the end without a Return: fail-closed
	return outcome{accept: ast.Bool(false), disp: ast.Reject, rec: rec}, nil
}

// fork evaluates both arms of an If whose guard stayed symbolic and folds
// the guard into the residual of each.
func (ev *evaluator) fork(index int, guard ast.Expr, st *ast.IfStmt, rest []ast.Stmt, rec Record) (outcome, error) {
	mark := len(ev.steps)

	thenOut, err := ev.seq(append(slices.Clone(st.Then), rest...), rec)
	if err != nil {
		return outcome{}, err
	}

	ev.steps = ev.steps[:mark]

	elseOut, err := ev.seq(append(slices.Clone(st.Else), rest...), rec)
	if err != nil {
		return outcome{}, err
	}

	ev.steps = ev.steps[:mark]
	ev.step(index, "fork", fmt.Sprintf("guard=%s then=%s else=%s",
		ast.String(guard), thenOut.disp, elseOut.disp))

	var accept ast.Expr
	if ast.Equal(thenOut.accept, elseOut.accept) {
		// guard is irrelevant to acceptance
		accept = thenOut.accept
	} else {
		accept = ast.Simplify(&ast.Or{Exprs: []ast.Expr{
			&ast.And{Exprs: []ast.Expr{guard, thenOut.accept}},
			&ast.And{Exprs: []ast.Expr{&ast.Not{Expr: guard}, elseOut.accept}},
		}})
	}

	return outcome{
		accept: accept,
		disp:   forkDisposition(accept, thenOut.disp, elseOut.disp),
		rec:    merge(thenOut.rec, elseOut.rec),
	}, nil
}

func forkDisposition(accept ast.Expr, a, b ast.Disposition) ast.Disposition {
	if lit, ok := accept.(*ast.BoolLit); ok {
		if lit.Value {
			return ast.Accept
		}

		if a == b {
			return a
		}

		return ast.Reject
	}

	return DispSymbolic
}

func (ev *evaluator) expr(e ast.Expr, rec Record) (Value, error) {
	switch n := e.(type) {
	case *ast.BoolLit:
		return BoolValue(n.Value), nil
	case *ast.IntLit:
		return IntValue(n.Value), nil
	case *ast.StringLit:
		return StringValue(n.Value), nil
	case *ast.PrefixLit:
		return PrefixValue(n.Net), nil
	case *ast.Havoc:
		return SymbolicValue(&ast.Havoc{}), nil
	case *ast.Field:
		return rec.Get(n.Name)
	case *ast.Var:
		return Value{}, fmt.Errorf("%w: unresolved reference %q", minnow.ErrNotEvaluable, n.Name)
	case *ast.Call:
		return Value{}, fmt.Errorf("%w: nested policy call %q", minnow.ErrNotEvaluable, n.Policy)
	case *ast.Not:
		v, err := ev.expr(n.Expr, rec)
		if err != nil {
			return Value{}, err
		}

		if v.IsSymbolic() {
			return SymbolicValue(ast.Simplify(&ast.Not{Expr: v.AsExpr()})), nil
		}

		if v.Kind() != BoolKind {
			return Value{}, fmt.Errorf("%w: negation of non-boolean %s", minnow.ErrNotEvaluable, ast.String(n.Expr))
		}

		return BoolValue(!v.Bool()), nil
	case *ast.And:
		return ev.connective(n.Exprs, rec, true)
	case *ast.Or:
		return ev.connective(n.Exprs, rec, false)
	case *ast.Cmp:
		return ev.compare(n, rec)
	case *ast.Arith:
		return ev.arith(n, rec)
	case *ast.SetLit:
		return ev.setLit(n, rec)
	case *ast.SetAdd:
		return ev.setOp(n.Elem, n.Set, rec, func(elem string, set Value) Value {
			return SetValue(append(set.SetElems(), elem)...)
		}, func(elem, set ast.Expr) ast.Expr { return &ast.SetAdd{Elem: elem, Set: set} })
	case *ast.SetRemove:
		return ev.setOp(n.Elem, n.Set, rec, func(elem string, set Value) Value {
			kept := make([]string, 0, len(set.set))

			for _, e := range set.SetElems() {
				if e != elem {
					kept = append(kept, e)
				}
			}

			return SetValue(kept...)
		}, func(elem, set ast.Expr) ast.Expr { return &ast.SetRemove{Elem: elem, Set: set} })
	case *ast.SetContains:
		return ev.setContains(n, rec)
	case *ast.SetUnion:
		return ev.setUnion(n, rec)
	case *ast.PrefixContains:
		return ev.prefixContains(n, rec)
	case *ast.PrefixSet:
		return SymbolicValue(n), nil
	case *ast.MatchSet:
		// permit and deny are disjoint by construction; requiring both
		// keeps a malformed list fail-closed
		return ev.expr(&ast.And{Exprs: []ast.Expr{n.Permit, &ast.Not{Expr: n.Deny}}}, rec)
	default:
		return Value{}, fmt.Errorf("%w: %s", minnow.ErrNotEvaluable, ast.String(e))
	}
}

// connective evaluates And (conj=true) or Or (conj=false) with
// three-valued logic: a deciding constant wins even when siblings are
// symbolic.
func (ev *evaluator) connective(exprs []ast.Expr, rec Record, conj bool) (Value, error) {
	residual := make([]ast.Expr, 0, len(exprs))

	for _, e := range exprs {
		v, err := ev.expr(e, rec)
		if err != nil {
			return Value{}, err
		}

		if v.IsSymbolic() {
			residual = append(residual, v.AsExpr())
			continue
		}

		if v.Kind() != BoolKind {
			return Value{}, fmt.Errorf("%w: non-boolean operand %s", minnow.ErrNotEvaluable, ast.String(e))
		}

		if v.Bool() != conj {
			// deciding constant
			return BoolValue(!conj), nil
		}
	}

	if len(residual) == 0 {
		return BoolValue(conj), nil
	}

	if len(residual) == 1 {
		return SymbolicValue(residual[0]), nil
	}

	if conj {
		return SymbolicValue(ast.Simplify(&ast.And{Exprs: residual})), nil
	}

	return SymbolicValue(ast.Simplify(&ast.Or{Exprs: residual})), nil
}

func (ev *evaluator) compare(n *ast.Cmp, rec Record) (Value, error) {
	left, err := ev.expr(n.Left, rec)
	if err != nil {
		return Value{}, err
	}

	right, err := ev.expr(n.Right, rec)
	if err != nil {
		return Value{}, err
	}

	if left.IsSymbolic() || right.IsSymbolic() {
		return SymbolicValue(ast.Simplify(&ast.Cmp{Op: n.Op, Left: left.AsExpr(), Right: right.AsExpr()})), nil
	}

	if left.Kind() == IntKind && right.Kind() == IntKind {
		return BoolValue(compareInt(n.Op, left.Int(), right.Int())), nil
	}

	if left.Kind() == StringKind && right.Kind() == StringKind {
		switch n.Op {
		case ast.KindEqual:
			return BoolValue(left.Str() == right.Str()), nil
		case ast.KindNotEqual:
			return BoolValue(left.Str() != right.Str()), nil
		}
	}

	return Value{}, fmt.Errorf("%w: comparison %s over mismatched operands", minnow.ErrNotEvaluable, n.Op)
}

func compareInt(op ast.ExprKind, l, r int64) bool {
	switch op {
	case ast.KindEqual:
		return l == r
	case ast.KindNotEqual:
		return l != r
	case ast.KindLessThan:
		return l < r
	case ast.KindLessThanEq:
		return l <= r
	case ast.KindGreaterThan:
		return l > r
	case ast.KindGreaterThanEq:
		return l >= r
	}

	return false
}

func (ev *evaluator) arith(n *ast.Arith, rec Record) (Value, error) {
	left, err := ev.expr(n.Left, rec)
	if err != nil {
		return Value{}, err
	}

	right, err := ev.expr(n.Right, rec)
	if err != nil {
		return Value{}, err
	}

	if left.IsSymbolic() || right.IsSymbolic() {
		return SymbolicValue(&ast.Arith{Op: n.Op, Left: left.AsExpr(), Right: right.AsExpr()}), nil
	}

	if left.Kind() != IntKind || right.Kind() != IntKind {
		return Value{}, fmt.Errorf("%w: arithmetic %s over non-integer operands", minnow.ErrNotEvaluable, n.Op)
	}

	if n.Op == ast.KindAdd {
		return IntValue(left.Int() + right.Int()), nil
	}

	return IntValue(left.Int() - right.Int()), nil
}

func (ev *evaluator) setLit(n *ast.SetLit, rec Record) (Value, error) {
	elems := make([]string, 0, len(n.Elems))

	for _, e := range n.Elems {
		v, err := ev.expr(e, rec)
		if err != nil {
			return Value{}, err
		}

		if v.IsSymbolic() {
			return SymbolicValue(n), nil
		}

		if v.Kind() != StringKind {
			return Value{}, fmt.Errorf("%w: non-string set element %s", minnow.ErrNotEvaluable, ast.String(e))
		}

		elems = append(elems, v.Str())
	}

	return SetValue(elems...), nil
}

func (ev *evaluator) setOp(elemExpr, setExpr ast.Expr, rec Record,
	apply func(string, Value) Value, rebuild func(elem, set ast.Expr) ast.Expr,
) (Value, error) {
	elem, err := ev.expr(elemExpr, rec)
	if err != nil {
		return Value{}, err
	}

	set, err := ev.expr(setExpr, rec)
	if err != nil {
		return Value{}, err
	}

	if elem.Kind() == StringKind && set.Kind() == SetKind {
		return apply(elem.Str(), set), nil
	}

	return SymbolicValue(rebuild(elem.AsExpr(), set.AsExpr())), nil
}

func (ev *evaluator) setContains(n *ast.SetContains, rec Record) (Value, error) {
	elem, err := ev.expr(n.Elem, rec)
	if err != nil {
		return Value{}, err
	}

	set, err := ev.expr(n.Set, rec)
	if err != nil {
		return Value{}, err
	}

	if elem.Kind() == StringKind && set.Kind() == SetKind {
		return BoolValue(set.setHas(elem.Str())), nil
	}

	return SymbolicValue(ast.Simplify(&ast.SetContains{Elem: elem.AsExpr(), Set: set.AsExpr()})), nil
}

func (ev *evaluator) setUnion(n *ast.SetUnion, rec Record) (Value, error) {
	all := make([]string, 0)
	residual := make([]ast.Expr, 0, len(n.Sets))

	for _, e := range n.Sets {
		v, err := ev.expr(e, rec)
		if err != nil {
			return Value{}, err
		}

		if v.Kind() == SetKind {
			all = append(all, v.SetElems()...)
			continue
		}

		residual = append(residual, v.AsExpr())
	}

	if len(residual) == 0 {
		return SetValue(all...), nil
	}

	return SymbolicValue(n), nil
}

func (ev *evaluator) prefixContains(n *ast.PrefixContains, rec Record) (Value, error) {
	addr, err := ev.expr(n.Addr, rec)
	if err != nil {
		return Value{}, err
	}

	set, ok := n.Set.(*ast.PrefixSet)
	if !ok || addr.IsSymbolic() {
		return SymbolicValue(&ast.PrefixContains{Addr: addr.AsExpr(), Set: n.Set}), nil
	}

	if addr.Kind() != PrefixKind {
		return Value{}, fmt.Errorf("%w: prefix match over non-prefix %s", minnow.ErrNotEvaluable, ast.String(n.Addr))
	}

	return BoolValue(prefixInSpace(addr.Prefix(), set.Prefixes)), nil
}

// prefixInSpace reports whether route lies inside any prefix of the space:
// the space prefix covers the route's address and is no longer than the
// route.
func prefixInSpace(route netip.Prefix, space []netip.Prefix) bool {
	for _, p := range space {
		if p.Contains(route.Addr()) && route.Bits() >= p.Bits() {
			return true
		}
	}

	return false
}
