package ast

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minnowtool/minnow"
)

const policyDocument = `[
  {
    "$type": "If",
    "guard": {
      "$type": "SetContains",
      "element": {"$type": "String", "value": "65000:1"},
      "set": {"$type": "Field", "name": "communities"}
    },
    "then": [
      {"$type": "Assign", "field": "localPref", "expr": {"$type": "Int", "value": 200}},
      {"$type": "Return", "disposition": "accept"}
    ],
    "else": [
      {"$type": "Return", "disposition": "reject"}
    ],
    "comment": "prefer customer routes"
  }
]`

func TestDecodeStmtsPolicyDocument(t *testing.T) {
	stmts, err := DecodeStmts([]byte(policyDocument))
	require.NoError(t, err)
	require.Len(t, stmts, 1)

	ifStmt, ok := stmts[0].(*IfStmt)
	require.True(t, ok)

	assert.Equal(t, "prefer customer routes", ifStmt.Comment)
	assert.Equal(t, KindSetContains, ifStmt.Guard.Kind())
	require.Len(t, ifStmt.Then, 2)
	require.Len(t, ifStmt.Else, 1)

	assign, ok := ifStmt.Then[0].(*AssignStmt)
	require.True(t, ok)
	assert.Equal(t, "localPref", assign.Field)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	stmts, err := DecodeStmts([]byte(policyDocument))
	require.NoError(t, err)

	encoded, err := json.Marshal(EncodeStmts(stmts))
	require.NoError(t, err)

	again, err := DecodeStmts(encoded)
	require.NoError(t, err)

	assert.True(t, EqualStmts(stmts, again))
}

func TestDecodeExprAllVariants(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		kind ExprKind
	}{
		{"bool", `{"$type": "Bool", "value": true}`, KindBool},
		{"int", `{"$type": "Int", "value": 42}`, KindInt},
		{"string", `{"$type": "String", "value": "65000:1"}`, KindString},
		{"havoc", `{"$type": "Havoc"}`, KindHavoc},
		{"field", `{"$type": "Field", "name": "metric"}`, KindField},
		{"var", `{"$type": "Var", "name": "CUSTOMERS"}`, KindVar},
		{"call", `{"$type": "Call", "policy": "EXPORT"}`, KindCall},
		{"not", `{"$type": "Not", "expr": {"$type": "Bool", "value": false}}`, KindNot},
		{
			"and",
			`{"$type": "And", "exprs": [{"$type": "Bool", "value": true}]}`,
			KindAnd,
		},
		{
			"compare",
			`{"$type": "LessThanOrEqual", "left": {"$type": "Int", "value": 1}, "right": {"$type": "Int", "value": 2}}`,
			KindLessThanEq,
		},
		{
			"arith",
			`{"$type": "Add", "left": {"$type": "Int", "value": 1}, "right": {"$type": "Int", "value": 2}}`,
			KindAdd,
		},
		{
			"set literal",
			`{"$type": "LiteralSet", "elements": [{"$type": "String", "value": "65000:1"}]}`,
			KindLiteralSet,
		},
		{
			"set contains",
			`{"$type": "SetContains", "element": {"$type": "String", "value": "x"}, "set": {"$type": "Field", "name": "communities"}}`,
			KindSetContains,
		},
		{
			"set union",
			`{"$type": "SetUnion", "sets": [{"$type": "Field", "name": "communities"}]}`,
			KindSetUnion,
		},
		{"prefix", `{"$type": "Prefix", "value": "10.0.0.0/8"}`, KindPrefix},
		{
			"prefix set",
			`{"$type": "PrefixSet", "prefixes": ["10.0.0.0/8", "192.168.0.0/16"]}`,
			KindPrefixSet,
		},
		{
			"prefix contains",
			`{"$type": "PrefixContains", "address": {"$type": "Field", "name": "prefix"}, "set": {"$type": "PrefixSet", "prefixes": ["10.0.0.0/8"]}}`,
			KindPrefixContains,
		},
		{
			"match set",
			`{"$type": "MatchSet", "permit": {"$type": "Bool", "value": true}, "deny": {"$type": "Bool", "value": false}}`,
			KindMatchSet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := DecodeExpr([]byte(tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, e.Kind())

			// every variant survives its own round trip
			encoded, err := json.Marshal(EncodeExpr(e))
			require.NoError(t, err)

			again, err := DecodeExpr(encoded)
			require.NoError(t, err)
			assert.True(t, Equal(e, again))
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"unknown expression tag", `{"$type": "RegexMatch", "value": "x"}`, minnow.ErrUnsupportedExpr},
		{"missing tag", `{"value": true}`, minnow.ErrMissingField},
		{"missing field", `{"$type": "Field"}`, minnow.ErrMissingField},
		{"not an object", `[1, 2]`, minnow.ErrMalformedDocument},
		{"bad prefix", `{"$type": "Prefix", "value": "not-a-prefix"}`, minnow.ErrMalformedDocument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeExpr([]byte(tt.doc))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeStmtErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"unknown statement tag", `{"$type": "While", "guard": {"$type": "Bool", "value": true}}`, minnow.ErrUnsupportedStmt},
		{"unknown disposition", `{"$type": "Return", "disposition": "drop"}`, minnow.ErrUnknownDisposition},
		{"missing disposition", `{"$type": "Return"}`, minnow.ErrMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeStmt([]byte(tt.doc))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeIfWithoutBranches(t *testing.T) {
	doc := `{"$type": "If", "guard": {"$type": "Bool", "value": true}}`

	s, err := DecodeStmt([]byte(doc))
	require.NoError(t, err)

	ifStmt, ok := s.(*IfStmt)
	require.True(t, ok)
	assert.Empty(t, ifStmt.Then)
	assert.Empty(t, ifStmt.Else)
}

// reEncode pushes a statement document through decode and encode and returns
// both sides decoded as plain JSON values, so tests can compare documents
// key for key instead of tree for tree.
func reEncode(t *testing.T, doc string) (input, output any) {
	t.Helper()

	s, err := DecodeStmt([]byte(doc))
	require.NoError(t, err)

	encoded, err := json.Marshal(EncodeStmt(s))
	require.NoError(t, err)

	require.NoError(t, json.Unmarshal([]byte(doc), &input))
	require.NoError(t, json.Unmarshal(encoded, &output))

	return input, output
}

func TestEncodeReproducesInputDocument(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "if with both branches",
			doc: `{"$type": "If", "guard": {"$type": "Bool", "value": true},
				"then": [{"$type": "Return", "disposition": "accept"}],
				"else": [{"$type": "Return", "disposition": "reject"}]}`,
		},
		{
			name: "if without else",
			doc: `{"$type": "If", "guard": {"$type": "Bool", "value": true},
				"then": [{"$type": "Return", "disposition": "accept"}]}`,
		},
		{
			name: "if without branches",
			doc:  `{"$type": "If", "guard": {"$type": "Bool", "value": true}}`,
		},
		{
			name: "if with explicitly empty else",
			doc: `{"$type": "If", "guard": {"$type": "Bool", "value": true},
				"then": [{"$type": "Return", "disposition": "accept"}], "else": []}`,
		},
		{
			name: "assign",
			doc:  `{"$type": "Assign", "field": "localPref", "expr": {"$type": "Int", "value": 200}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, output := reEncode(t, tt.doc)
			assert.Equal(t, input, output)
		})
	}
}

func TestEncodeOmitsAbsentBranchKeys(t *testing.T) {
	doc := `{"$type": "If", "guard": {"$type": "Bool", "value": true},
		"then": [{"$type": "Return", "disposition": "accept"}]}`

	s, err := DecodeStmt([]byte(doc))
	require.NoError(t, err)

	encoded := EncodeStmt(s)
	assert.Contains(t, encoded, "then")
	assert.NotContains(t, encoded, "else")
}
