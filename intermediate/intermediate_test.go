package intermediate

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minnowtool/minnow"
	"github.com/minnowtool/minnow/ast"
	"github.com/minnowtool/minnow/topology"
)

func sampleTopology() *topology.Topology {
	// the import policy carries redundancy the simplifier can remove
	importPolicy := &ast.Policy{
		Name: "IMPORT",
		Statements: []ast.Stmt{
			&ast.IfStmt{
				Guard: &ast.And{Exprs: []ast.Expr{
					ast.Bool(true),
					&ast.Not{Expr: &ast.Not{Expr: &ast.SetContains{
						Elem: &ast.StringLit{Value: "65000:1"},
						Set:  &ast.Field{Name: "communities"},
					}}},
				}},
				Then: []ast.Stmt{&ast.ReturnStmt{Disposition: ast.Accept}},
				Else: []ast.Stmt{&ast.ReturnStmt{Disposition: ast.Reject}},
			},
		},
	}

	return &topology.Topology{
		Nodes: map[string]*topology.Node{
			"core1": {
				Name:     "core1",
				ASN:      65000,
				Prefixes: []netip.Prefix{netip.MustParsePrefix("10.0.0.0/16")},
				Interfaces: map[string]*topology.Interface{
					"eth0": {Name: "eth0", Inbound: "IMPORT"},
				},
				Policies: map[string]*ast.Policy{"IMPORT": importPolicy},
			},
			"isp": {
				Name:       "isp",
				External:   true,
				Interfaces: map[string]*topology.Interface{"eth0": {Name: "eth0"}},
				Policies:   map[string]*ast.Policy{},
			},
		},
		Edges: []topology.Edge{
			{Node: "core1", Interface: "eth0", RemoteNode: "isp", RemoteInterface: "eth0"},
		},
	}
}

func TestGenerateAndLoadRoundTrip(t *testing.T) {
	topo := sampleTopology()

	doc, err := Generate(topo, false)
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, doc.FormatVersion)

	data, err := doc.Marshal()
	require.NoError(t, err)

	loaded, err := Load(data)
	require.NoError(t, err)

	// the reconstruction carries the same identity as the original
	assert.Equal(t, topo.Digest(), loaded.Digest())

	core1, err := loaded.Node("core1")
	require.NoError(t, err)
	assert.Equal(t, 65000, core1.ASN)
	require.Contains(t, core1.Policies, "IMPORT")
	assert.True(t, ast.EqualStmts(
		topo.Nodes["core1"].Policies["IMPORT"].Statements,
		core1.Policies["IMPORT"].Statements))

	isp, err := loaded.Node("isp")
	require.NoError(t, err)
	assert.True(t, isp.External)
}

func TestGenerateSimplifiedIsSmaller(t *testing.T) {
	topo := sampleTopology()

	plain, err := Generate(topo, false)
	require.NoError(t, err)

	simplified, err := Generate(topo, true)
	require.NoError(t, err)

	plainData, err := plain.Marshal()
	require.NoError(t, err)

	simplifiedData, err := simplified.Marshal()
	require.NoError(t, err)

	assert.Less(t, len(simplifiedData), len(plainData))
}

func TestGenerateSimplifiedStillLoads(t *testing.T) {
	doc, err := Generate(sampleTopology(), true)
	require.NoError(t, err)

	data, err := doc.Marshal()
	require.NoError(t, err)

	loaded, err := Load(data)
	require.NoError(t, err)

	core1, err := loaded.Node("core1")
	require.NoError(t, err)

	policy := core1.Policies["IMPORT"]
	require.Len(t, policy.Statements, 1)

	ifStmt, ok := policy.Statements[0].(*ast.IfStmt)
	require.True(t, ok)

	// the redundant wrappers are gone, only the community test remains
	assert.Equal(t, ast.KindSetContains, ifStmt.Guard.Kind())
}

func TestGenerateEdgelessTopologySerializesEmptyList(t *testing.T) {
	topo := &topology.Topology{
		Nodes: map[string]*topology.Node{
			"lonely": {
				Name:       "lonely",
				Interfaces: map[string]*topology.Interface{},
				Policies:   map[string]*ast.Policy{},
			},
		},
	}

	doc, err := Generate(topo, false)
	require.NoError(t, err)
	require.NotNil(t, doc.Edges)

	data, err := doc.Marshal()
	require.NoError(t, err)

	assert.Contains(t, string(data), `"edges": []`)
	assert.NotContains(t, string(data), `"edges": null`)
}

func TestLoadRejectsUnknownVersion(t *testing.T) {
	_, err := Load([]byte(`{"formatVersion": "99", "nodes": {}, "edges": []}`))
	assert.ErrorIs(t, err, minnow.ErrMalformedDocument)
}

func TestLoadRejectsGarbage(t *testing.T) {
	_, err := Load([]byte(`[]`))
	assert.ErrorIs(t, err, minnow.ErrMalformedDocument)
}
