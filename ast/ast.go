// Package ast models routing-policy expressions and statements as a closed
// set of tagged variants. Nodes are decoded from the analysis service's
// tagged JSON encoding, are immutable once built, and expose a uniform
// Kind/Children dispatch contract so that passes (simplification,
// interpretation, serialization) can walk any tree without type-specific
// entry points.
package ast

import "net/netip"

// ExprKind identifies the variant of an expression node. The values double
// as the "$type" tags used on the wire.
type ExprKind string

const (
	KindBool           ExprKind = "Bool"
	KindInt            ExprKind = "Int"
	KindString         ExprKind = "String"
	KindHavoc          ExprKind = "Havoc"
	KindAnd            ExprKind = "And"
	KindOr             ExprKind = "Or"
	KindNot            ExprKind = "Not"
	KindField          ExprKind = "Field"
	KindVar            ExprKind = "Var"
	KindCall           ExprKind = "Call"
	KindEqual          ExprKind = "Equal"
	KindNotEqual       ExprKind = "NotEqual"
	KindLessThan       ExprKind = "LessThan"
	KindLessThanEq     ExprKind = "LessThanOrEqual"
	KindGreaterThan    ExprKind = "GreaterThan"
	KindGreaterThanEq  ExprKind = "GreaterThanOrEqual"
	KindAdd            ExprKind = "Add"
	KindSub            ExprKind = "Sub"
	KindLiteralSet     ExprKind = "LiteralSet"
	KindSetAdd         ExprKind = "SetAdd"
	KindSetRemove      ExprKind = "SetRemove"
	KindSetUnion       ExprKind = "SetUnion"
	KindSetContains    ExprKind = "SetContains"
	KindPrefix         ExprKind = "Prefix"
	KindPrefixContains ExprKind = "PrefixContains"
	KindPrefixSet      ExprKind = "PrefixSet"
	KindMatchSet       ExprKind = "MatchSet"
)

// StmtKind identifies the variant of a statement node.
type StmtKind string

const (
	KindAssign StmtKind = "Assign"
	KindIf     StmtKind = "If"
	KindReturn StmtKind = "Return"
)

// Disposition is the outcome a Return statement terminates a policy with.
type Disposition string

const (
	Accept Disposition = "accept"
	Reject Disposition = "reject"
	// Pass defers the decision to the next policy in the chain.
	Pass Disposition = "pass"
)

// Expr is a routing-policy expression node.
type Expr interface {
	Kind() ExprKind
	// Children returns the node's sub-expressions in a fixed order
	// determined by its kind.
	Children() []Expr
}

// Stmt is an ordered step in a policy body.
type Stmt interface {
	StmtKind() StmtKind
}

// Policy is an ordered statement sequence. Order defines evaluation order;
// the first applicable Return wins.
type Policy struct {
	Name       string
	Statements []Stmt
}

// BoolLit is a boolean literal.
type BoolLit struct {
	Value bool
}

// IntLit is an integer literal.
type IntLit struct {
	Value int64
}

// StringLit is a string literal (communities, AS names).
type StringLit struct {
	Value string
}

// Havoc is an unconstrained boolean: the service exports it for constructs
// it cannot model precisely.
type Havoc struct{}

// And is an n-ary conjunction.
type And struct {
	Exprs []Expr
}

// Or is an n-ary disjunction.
type Or struct {
	Exprs []Expr
}

// Not negates a boolean expression.
type Not struct {
	Expr Expr
}

// Field references a route-record attribute by name.
type Field struct {
	Name string
}

// Var references a named declaration (prefix list, community set). Vars are
// substituted away during topology construction; one reaching the
// interpreter is an error.
type Var struct {
	Name string
}

// Call references another policy by name.
type Call struct {
	Policy string
}

// Cmp is a binary comparison. Op is one of the six comparison kinds.
type Cmp struct {
	Op    ExprKind
	Left  Expr
	Right Expr
}

// Arith is binary integer arithmetic. Op is KindAdd or KindSub.
type Arith struct {
	Op    ExprKind
	Left  Expr
	Right Expr
}

// SetLit is a literal community set.
type SetLit struct {
	Elems []Expr
}

// SetAdd adds Elem to Set.
type SetAdd struct {
	Elem Expr
	Set  Expr
}

// SetRemove removes Elem from Set.
type SetRemove struct {
	Elem Expr
	Set  Expr
}

// SetUnion unions its operand sets.
type SetUnion struct {
	Sets []Expr
}

// SetContains tests Elem's membership in Set.
type SetContains struct {
	Elem Expr
	Set  Expr
}

// PrefixLit is an IP prefix literal.
type PrefixLit struct {
	Net netip.Prefix
}

// PrefixContains tests whether Addr falls inside Set.
type PrefixContains struct {
	Addr Expr
	Set  Expr
}

// PrefixSet is an explicit prefix space.
type PrefixSet struct {
	Prefixes []netip.Prefix
}

// MatchSet is a compiled route-filter list: Permit holds under exactly the
// lines that permit, Deny under exactly the lines that deny. First-match
// semantics are already baked into the two predicates at compile time.
type MatchSet struct {
	Permit Expr
	Deny   Expr
}

// AssignStmt updates a route-record attribute.
type AssignStmt struct {
	Field string
	Expr  Expr
}

// IfStmt branches on a boolean guard. Either branch may be empty.
type IfStmt struct {
	Guard   Expr
	Then    []Stmt
	Else    []Stmt
	Comment string
}

// ReturnStmt terminates the policy with a disposition.
type ReturnStmt struct {
	Disposition Disposition
}

func (e *BoolLit) Kind() ExprKind        { return KindBool }
func (e *IntLit) Kind() ExprKind         { return KindInt }
func (e *StringLit) Kind() ExprKind      { return KindString }
func (e *Havoc) Kind() ExprKind          { return KindHavoc }
func (e *And) Kind() ExprKind            { return KindAnd }
func (e *Or) Kind() ExprKind             { return KindOr }
func (e *Not) Kind() ExprKind            { return KindNot }
func (e *Field) Kind() ExprKind          { return KindField }
func (e *Var) Kind() ExprKind            { return KindVar }
func (e *Call) Kind() ExprKind           { return KindCall }
func (e *Cmp) Kind() ExprKind            { return e.Op }
func (e *Arith) Kind() ExprKind          { return e.Op }
func (e *SetLit) Kind() ExprKind         { return KindLiteralSet }
func (e *SetAdd) Kind() ExprKind         { return KindSetAdd }
func (e *SetRemove) Kind() ExprKind      { return KindSetRemove }
func (e *SetUnion) Kind() ExprKind       { return KindSetUnion }
func (e *SetContains) Kind() ExprKind    { return KindSetContains }
func (e *PrefixLit) Kind() ExprKind      { return KindPrefix }
func (e *PrefixContains) Kind() ExprKind { return KindPrefixContains }
func (e *PrefixSet) Kind() ExprKind      { return KindPrefixSet }
func (e *MatchSet) Kind() ExprKind       { return KindMatchSet }

func (e *BoolLit) Children() []Expr        { return nil }
func (e *IntLit) Children() []Expr         { return nil }
func (e *StringLit) Children() []Expr      { return nil }
func (e *Havoc) Children() []Expr          { return nil }
func (e *And) Children() []Expr            { return e.Exprs }
func (e *Or) Children() []Expr             { return e.Exprs }
func (e *Not) Children() []Expr            { return []Expr{e.Expr} }
func (e *Field) Children() []Expr          { return nil }
func (e *Var) Children() []Expr            { return nil }
func (e *Call) Children() []Expr           { return nil }
func (e *Cmp) Children() []Expr            { return []Expr{e.Left, e.Right} }
func (e *Arith) Children() []Expr          { return []Expr{e.Left, e.Right} }
func (e *SetLit) Children() []Expr         { return e.Elems }
func (e *SetAdd) Children() []Expr         { return []Expr{e.Elem, e.Set} }
func (e *SetRemove) Children() []Expr      { return []Expr{e.Elem, e.Set} }
func (e *SetUnion) Children() []Expr       { return e.Sets }
func (e *SetContains) Children() []Expr    { return []Expr{e.Elem, e.Set} }
func (e *PrefixLit) Children() []Expr      { return nil }
func (e *PrefixContains) Children() []Expr { return []Expr{e.Addr, e.Set} }
func (e *PrefixSet) Children() []Expr      { return nil }
func (e *MatchSet) Children() []Expr       { return []Expr{e.Permit, e.Deny} }

func (s *AssignStmt) StmtKind() StmtKind { return KindAssign }
func (s *IfStmt) StmtKind() StmtKind     { return KindIf }
func (s *ReturnStmt) StmtKind() StmtKind { return KindReturn }

// Bool returns a fresh boolean literal. Nodes are never shared between
// trees, so every caller gets its own leaf.
func Bool(v bool) *BoolLit {
	return &BoolLit{Value: v}
}
