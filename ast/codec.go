package ast

import (
	"encoding/json"
	"fmt"
	"net/netip"

	"github.com/minnowtool/minnow"
)

// TypeField is the tag key the service uses on every expression and
// statement node.
const TypeField = "$type"

type envelope map[string]json.RawMessage

func (env envelope) tag() (string, error) {
	raw, ok := env[TypeField]
	if !ok {
		return "", fmt.Errorf("%w: %q", minnow.ErrMissingField, TypeField)
	}

	var tag string
	if err := json.Unmarshal(raw, &tag); err != nil {
		return "", fmt.Errorf("%w: %q is not a string", minnow.ErrMissingField, TypeField)
	}

	return tag, nil
}

func (env envelope) field(name string, out any) error {
	raw, ok := env[name]
	if !ok {
		return fmt.Errorf("%w: %q", minnow.ErrMissingField, name)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %q: %v", minnow.ErrMissingField, name, err)
	}

	return nil
}

func (env envelope) expr(name string) (Expr, error) {
	raw, ok := env[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", minnow.ErrMissingField, name)
	}

	return DecodeExpr(raw)
}

func (env envelope) exprList(name string) ([]Expr, error) {
	var raws []json.RawMessage
	if err := env.field(name, &raws); err != nil {
		return nil, err
	}

	exprs := make([]Expr, len(raws))

	for i, raw := range raws {
		e, err := DecodeExpr(raw)
		if err != nil {
			return nil, err
		}

		exprs[i] = e
	}

	return exprs, nil
}

func (env envelope) stmtList(name string) ([]Stmt, error) {
	raw, ok := env[name]
	if !ok {
		// branch bodies may be omitted entirely
		return nil, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(raw, &raws); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", minnow.ErrMissingField, name, err)
	}

	stmts := make([]Stmt, len(raws))

	for i, r := range raws {
		s, err := DecodeStmt(r)
		if err != nil {
			return nil, err
		}

		stmts[i] = s
	}

	return stmts, nil
}

// DecodeExpr parses one tagged expression node and its subtree. Unrecognized
// tags fail with ErrUnsupportedExpr: the service's tag vocabulary is open
// and versioned, so this is an expected, reportable condition rather than a
// crash.
func DecodeExpr(data []byte) (Expr, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: expression is not an object: %v", minnow.ErrMalformedDocument, err)
	}

	tag, err := env.tag()
	if err != nil {
		return nil, err
	}

	switch ExprKind(tag) {
	case KindBool:
		var v bool
		if err := env.field("value", &v); err != nil {
			return nil, err
		}

		return &BoolLit{Value: v}, nil
	case KindInt:
		var v int64
		if err := env.field("value", &v); err != nil {
			return nil, err
		}

		return &IntLit{Value: v}, nil
	case KindString:
		var v string
		if err := env.field("value", &v); err != nil {
			return nil, err
		}

		return &StringLit{Value: v}, nil
	case KindHavoc:
		return &Havoc{}, nil
	case KindAnd:
		exprs, err := env.exprList("exprs")
		if err != nil {
			return nil, err
		}

		return &And{Exprs: exprs}, nil
	case KindOr:
		exprs, err := env.exprList("exprs")
		if err != nil {
			return nil, err
		}

		return &Or{Exprs: exprs}, nil
	case KindNot:
		inner, err := env.expr("expr")
		if err != nil {
			return nil, err
		}

		return &Not{Expr: inner}, nil
	case KindField:
		var name string
		if err := env.field("name", &name); err != nil {
			return nil, err
		}

		return &Field{Name: name}, nil
	case KindVar:
		var name string
		if err := env.field("name", &name); err != nil {
			return nil, err
		}

		return &Var{Name: name}, nil
	case KindCall:
		var policy string
		if err := env.field("policy", &policy); err != nil {
			return nil, err
		}

		return &Call{Policy: policy}, nil
	case KindEqual, KindNotEqual, KindLessThan, KindLessThanEq, KindGreaterThan, KindGreaterThanEq:
		left, err := env.expr("left")
		if err != nil {
			return nil, err
		}

		right, err := env.expr("right")
		if err != nil {
			return nil, err
		}

		return &Cmp{Op: ExprKind(tag), Left: left, Right: right}, nil
	case KindAdd, KindSub:
		left, err := env.expr("left")
		if err != nil {
			return nil, err
		}

		right, err := env.expr("right")
		if err != nil {
			return nil, err
		}

		return &Arith{Op: ExprKind(tag), Left: left, Right: right}, nil
	case KindLiteralSet:
		elems, err := env.exprList("elements")
		if err != nil {
			return nil, err
		}

		return &SetLit{Elems: elems}, nil
	case KindSetAdd:
		return decodeElemSet(env, func(elem, set Expr) Expr { return &SetAdd{Elem: elem, Set: set} })
	case KindSetRemove:
		return decodeElemSet(env, func(elem, set Expr) Expr { return &SetRemove{Elem: elem, Set: set} })
	case KindSetContains:
		return decodeElemSet(env, func(elem, set Expr) Expr { return &SetContains{Elem: elem, Set: set} })
	case KindSetUnion:
		sets, err := env.exprList("sets")
		if err != nil {
			return nil, err
		}

		return &SetUnion{Sets: sets}, nil
	case KindPrefix:
		var v string
		if err := env.field("value", &v); err != nil {
			return nil, err
		}

		net, err := netip.ParsePrefix(v)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid prefix %q: %v", minnow.ErrMalformedDocument, v, err)
		}

		return &PrefixLit{Net: net}, nil
	case KindPrefixContains:
		addr, err := env.expr("address")
		if err != nil {
			return nil, err
		}

		set, err := env.expr("set")
		if err != nil {
			return nil, err
		}

		return &PrefixContains{Addr: addr, Set: set}, nil
	case KindPrefixSet:
		var raw []string
		if err := env.field("prefixes", &raw); err != nil {
			return nil, err
		}

		prefixes := make([]netip.Prefix, len(raw))

		for i, s := range raw {
			p, err := netip.ParsePrefix(s)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid prefix %q: %v", minnow.ErrMalformedDocument, s, err)
			}

			prefixes[i] = p
		}

		return &PrefixSet{Prefixes: prefixes}, nil
	case KindMatchSet:
		permit, err := env.expr("permit")
		if err != nil {
			return nil, err
		}

		deny, err := env.expr("deny")
		if err != nil {
			return nil, err
		}

		return &MatchSet{Permit: permit, Deny: deny}, nil
	default:
		return nil, fmt.Errorf("%w: %q", minnow.ErrUnsupportedExpr, tag)
	}
}

func decodeElemSet(env envelope, build func(elem, set Expr) Expr) (Expr, error) {
	elem, err := env.expr("element")
	if err != nil {
		return nil, err
	}

	set, err := env.expr("set")
	if err != nil {
		return nil, err
	}

	return build(elem, set), nil
}

// DecodeStmt parses one tagged statement node and its subtree.
func DecodeStmt(data []byte) (Stmt, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: statement is not an object: %v", minnow.ErrMalformedDocument, err)
	}

	tag, err := env.tag()
	if err != nil {
		return nil, err
	}

	switch StmtKind(tag) {
	case KindAssign:
		var field string
		if err := env.field("field", &field); err != nil {
			return nil, err
		}

		expr, err := env.expr("expr")
		if err != nil {
			return nil, err
		}

		return &AssignStmt{Field: field, Expr: expr}, nil
	case KindIf:
		guard, err := env.expr("guard")
		if err != nil {
			return nil, err
		}

		then, err := env.stmtList("then")
		if err != nil {
			return nil, err
		}

		els, err := env.stmtList("else")
		if err != nil {
			return nil, err
		}

		var comment string
		if _, ok := env["comment"]; ok {
			if err := env.field("comment", &comment); err != nil {
				return nil, err
			}
		}

		return &IfStmt{Guard: guard, Then: then, Else: els, Comment: comment}, nil
	case KindReturn:
		var disp string
		if err := env.field("disposition", &disp); err != nil {
			return nil, err
		}

		switch Disposition(disp) {
		case Accept, Reject, Pass:
			return &ReturnStmt{Disposition: Disposition(disp)}, nil
		default:
			return nil, fmt.Errorf("%w: %q", minnow.ErrUnknownDisposition, disp)
		}
	default:
		return nil, fmt.Errorf("%w: %q", minnow.ErrUnsupportedStmt, tag)
	}
}

// DecodeStmts parses a statement list.
func DecodeStmts(data []byte) ([]Stmt, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("%w: statement list: %v", minnow.ErrMalformedDocument, err)
	}

	stmts := make([]Stmt, len(raws))

	for i, raw := range raws {
		s, err := DecodeStmt(raw)
		if err != nil {
			return nil, err
		}

		stmts[i] = s
	}

	return stmts, nil
}

// EncodeExpr renders an expression back into its tagged JSON form. It is the
// structural inverse of DecodeExpr: decoding what it produces yields an
// equal tree, and encoding an undecorated decode result reproduces the
// input document up to key ordering.
func EncodeExpr(e Expr) map[string]any {
	out := map[string]any{TypeField: string(e.Kind())}

	switch n := e.(type) {
	case *BoolLit:
		out["value"] = n.Value
	case *IntLit:
		out["value"] = n.Value
	case *StringLit:
		out["value"] = n.Value
	case *Havoc:
	case *And:
		out["exprs"] = encodeList(n.Exprs)
	case *Or:
		out["exprs"] = encodeList(n.Exprs)
	case *Not:
		out["expr"] = EncodeExpr(n.Expr)
	case *Field:
		out["name"] = n.Name
	case *Var:
		out["name"] = n.Name
	case *Call:
		out["policy"] = n.Policy
	case *Cmp:
		out["left"] = EncodeExpr(n.Left)
		out["right"] = EncodeExpr(n.Right)
	case *Arith:
		out["left"] = EncodeExpr(n.Left)
		out["right"] = EncodeExpr(n.Right)
	case *SetLit:
		out["elements"] = encodeList(n.Elems)
	case *SetAdd:
		out["element"] = EncodeExpr(n.Elem)
		out["set"] = EncodeExpr(n.Set)
	case *SetRemove:
		out["element"] = EncodeExpr(n.Elem)
		out["set"] = EncodeExpr(n.Set)
	case *SetContains:
		out["element"] = EncodeExpr(n.Elem)
		out["set"] = EncodeExpr(n.Set)
	case *SetUnion:
		out["sets"] = encodeList(n.Sets)
	case *PrefixLit:
		out["value"] = n.Net.String()
	case *PrefixContains:
		out["address"] = EncodeExpr(n.Addr)
		out["set"] = EncodeExpr(n.Set)
	case *PrefixSet:
		prefixes := make([]string, len(n.Prefixes))
		for i, p := range n.Prefixes {
			prefixes[i] = p.String()
		}

		out["prefixes"] = prefixes
	case *MatchSet:
		out["permit"] = EncodeExpr(n.Permit)
		out["deny"] = EncodeExpr(n.Deny)
	}

	return out
}

func encodeList(exprs []Expr) []any {
	out := make([]any, len(exprs))
	for i, e := range exprs {
		out[i] = EncodeExpr(e)
	}

	return out
}

// EncodeStmt renders a statement back into its tagged JSON form.
func EncodeStmt(s Stmt) map[string]any {
	out := map[string]any{TypeField: string(s.StmtKind())}

	switch n := s.(type) {
	case *AssignStmt:
		out["field"] = n.Field
		out["expr"] = EncodeExpr(n.Expr)
	case *IfStmt:
		out["guard"] = EncodeExpr(n.Guard)

		// a nil branch was absent from the decoded document; omitting its
		// key keeps encoding the exact inverse of decoding
		if n.Then != nil {
			out["then"] = EncodeStmts(n.Then)
		}

		if n.Else != nil {
			out["else"] = EncodeStmts(n.Else)
		}

		if n.Comment != "" {
			out["comment"] = n.Comment
		}
	case *ReturnStmt:
		out["disposition"] = string(n.Disposition)
	}

	return out
}

// EncodeStmts renders a statement list.
func EncodeStmts(stmts []Stmt) []any {
	out := make([]any, len(stmts))
	for i, s := range stmts {
		out[i] = EncodeStmt(s)
	}

	return out
}
