package topology

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/netip"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/minnowtool/minnow"
	"github.com/minnowtool/minnow/ast"
)

// Node is a router with its per-interface policy bindings. External nodes
// are synthesized for edge endpoints the service exported no properties
// for (peers outside the configured network).
type Node struct {
	Name       string
	ASN        int
	External   bool
	Prefixes   []netip.Prefix
	Interfaces map[string]*Interface
	Policies   map[string]*ast.Policy
}

// Interface binds inbound/outbound policy names to one interface.
type Interface struct {
	Name     string
	Inbound  string
	Outbound string
}

// Edge is a directed connection between two (node, interface) pairs.
type Edge struct {
	Node            string
	Interface       string
	RemoteNode      string
	RemoteInterface string
}

// Topology is the network model. It is built once per run and read-only
// afterwards; queries share it without locking.
type Topology struct {
	Nodes map[string]*Node
	Edges []Edge
}

// Issue records a policy that failed to parse when construction runs in
// skip-and-report mode.
type Issue struct {
	Node   string
	Policy string
	Err    error
}

// Options controls construction.
type Options struct {
	// SkipUnsupported reports policies with unsupported constructs as
	// Issues instead of failing the build. Queries must not run against a
	// topology built this way.
	SkipUnsupported bool
	Logger          *zap.Logger
}

// Build constructs the network model from a raw service document: it
// decodes every routing policy, compiles route-filter lists into match
// expressions, inlines named declarations into the policies that reference
// them, and synthesizes external nodes for unowned edge endpoints.
func Build(doc *RawDocument, opts Options) (*Topology, []Issue, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	topo := &Topology{Nodes: make(map[string]*Node)}

	for _, raw := range doc.Policy {
		node := &Node{
			Name:       raw.Node,
			ASN:        raw.ASN,
			Interfaces: make(map[string]*Interface),
			Policies:   make(map[string]*ast.Policy),
		}

		for _, p := range raw.Prefixes {
			prefix, err := netip.ParsePrefix(p)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: node %q: invalid prefix %q", minnow.ErrMalformedDocument, raw.Node, p)
			}

			node.Prefixes = append(node.Prefixes, prefix)
		}

		sortPrefixes(node.Prefixes)

		for name, binding := range raw.Interfaces {
			node.Interfaces[name] = &Interface{Name: name, Inbound: binding.Inbound, Outbound: binding.Outbound}
		}

		topo.Nodes[raw.Node] = node
	}

	// named declarations first, so policies can inline them
	env, rawPolicies, err := splitDeclarations(doc.Declarations)
	if err != nil {
		return nil, nil, err
	}

	var issues []Issue

	for _, decl := range rawPolicies {
		node, ok := topo.Nodes[decl.Node]
		if !ok {
			return nil, nil, fmt.Errorf("%w: declaration %q names unknown node %q",
				minnow.ErrMalformedDocument, decl.Name, decl.Node)
		}

		policy, err := decodePolicy(decl, env[decl.Node])
		if err != nil {
			if !opts.SkipUnsupported {
				return nil, nil, fmt.Errorf("node %q policy %q: %w", decl.Node, decl.Name, err)
			}

			log.Warn("skipping policy",
				zap.String("node", decl.Node),
				zap.String("policy", decl.Name),
				zap.Error(err))
			issues = append(issues, Issue{Node: decl.Node, Policy: decl.Name, Err: err})

			continue
		}

		node.Policies[decl.Name] = policy
	}

	if err := addEdges(topo, doc.Topology); err != nil {
		return nil, nil, err
	}

	if err := checkBindings(topo, issues); err != nil {
		return nil, nil, err
	}

	log.Info("topology built",
		zap.Int("nodes", len(topo.Nodes)),
		zap.Int("edges", len(topo.Edges)),
		zap.Int("skippedPolicies", len(issues)))

	return topo, issues, nil
}

func splitDeclarations(decls []RawDeclaration) (map[string]map[string]ast.Expr, []RawDeclaration, error) {
	env := make(map[string]map[string]ast.Expr)
	var policies []RawDeclaration

	bind := func(node, name string, e ast.Expr) {
		if env[node] == nil {
			env[node] = make(map[string]ast.Expr)
		}

		env[node][name] = e
	}

	for _, decl := range decls {
		switch decl.Type {
		case DeclRoutingPolicy:
			policies = append(policies, decl)
		case DeclRouteFilterList:
			var def RawFilterDef
			if err := json.Unmarshal(decl.Definition, &def); err != nil {
				return nil, nil, fmt.Errorf("%w: route filter %q: %v", minnow.ErrMalformedDocument, decl.Name, err)
			}

			compiled, err := compileRouteFilter(def.Lines)
			if err != nil {
				return nil, nil, fmt.Errorf("route filter %q: %w", decl.Name, err)
			}

			bind(decl.Node, decl.Name, compiled)
		case DeclCommunitySet:
			var def RawCommunitySetDef
			if err := json.Unmarshal(decl.Definition, &def); err != nil {
				return nil, nil, fmt.Errorf("%w: community set %q: %v", minnow.ErrMalformedDocument, decl.Name, err)
			}

			elems := make([]ast.Expr, len(def.Communities))
			for i, c := range def.Communities {
				elems[i] = &ast.StringLit{Value: c}
			}

			bind(decl.Node, decl.Name, &ast.SetLit{Elems: elems})
		default:
			return nil, nil, fmt.Errorf("%w: declaration type %q", minnow.ErrUnsupportedExpr, decl.Type)
		}
	}

	return env, policies, nil
}

func decodePolicy(decl RawDeclaration, env map[string]ast.Expr) (*ast.Policy, error) {
	var def RawPolicyDef
	if err := json.Unmarshal(decl.Definition, &def); err != nil {
		return nil, fmt.Errorf("%w: %v", minnow.ErrMalformedDocument, err)
	}

	stmts, err := ast.DecodeStmts(def.Statements)
	if err != nil {
		return nil, err
	}

	if len(env) > 0 {
		stmts = ast.SubstStmts(stmts, env)
	}

	return &ast.Policy{Name: decl.Name, Statements: stmts}, nil
}

// compileRouteFilter turns first-match-wins filter lines into a MatchSet:
// each line matches only when no earlier line did, so permit and deny come
// out disjoint.
func compileRouteFilter(lines []RawFilterLine) (ast.Expr, error) {
	var permits, denies, prev []ast.Expr

	for _, line := range lines {
		prefix, err := netip.ParsePrefix(line.Prefix)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid prefix %q", minnow.ErrMalformedDocument, line.Prefix)
		}

		cond := ast.Expr(&ast.PrefixContains{
			Addr: &ast.Field{Name: "prefix"},
			Set:  &ast.PrefixSet{Prefixes: []netip.Prefix{prefix}},
		})

		matches := cond

		if len(prev) > 0 {
			guards := make([]ast.Expr, 0, len(prev)+1)
			for _, p := range prev {
				guards = append(guards, &ast.Not{Expr: p})
			}

			matches = &ast.And{Exprs: append(guards, cond)}
		}

		switch strings.ToLower(line.Action) {
		case "permit":
			permits = append(permits, matches)
		case "deny":
			denies = append(denies, matches)
		default:
			return nil, fmt.Errorf("%w: filter action %q", minnow.ErrMalformedDocument, line.Action)
		}

		prev = append(prev, cond)
	}

	return &ast.MatchSet{Permit: disjunction(permits), Deny: disjunction(denies)}, nil
}

func disjunction(exprs []ast.Expr) ast.Expr {
	if len(exprs) == 0 {
		return ast.Bool(false)
	}

	if len(exprs) == 1 {
		return exprs[0]
	}

	return &ast.Or{Exprs: exprs}
}

func addEdges(topo *Topology, raws []RawEdge) error {
	for _, raw := range raws {
		for _, ref := range []RawInterfaceRef{raw.Interface, raw.RemoteInterface} {
			if ref.Hostname == "" || ref.Interface == "" {
				return fmt.Errorf("%w: edge endpoint missing hostname or interface", minnow.ErrMalformedDocument)
			}

			if _, ok := topo.Nodes[ref.Hostname]; !ok {
				// peer outside the configured network
				topo.Nodes[ref.Hostname] = &Node{
					Name:       ref.Hostname,
					External:   true,
					Interfaces: map[string]*Interface{ref.Interface: {Name: ref.Interface}},
					Policies:   make(map[string]*ast.Policy),
				}
			} else if _, ok := topo.Nodes[ref.Hostname].Interfaces[ref.Interface]; !ok {
				topo.Nodes[ref.Hostname].Interfaces[ref.Interface] = &Interface{Name: ref.Interface}
			}
		}

		topo.Edges = append(topo.Edges, Edge{
			Node:            raw.Interface.Hostname,
			Interface:       raw.Interface.Interface,
			RemoteNode:      raw.RemoteInterface.Hostname,
			RemoteInterface: raw.RemoteInterface.Interface,
		})
	}

	sort.Slice(topo.Edges, func(i, j int) bool {
		a, b := topo.Edges[i], topo.Edges[j]
		if a.Node != b.Node {
			return a.Node < b.Node
		}

		if a.Interface != b.Interface {
			return a.Interface < b.Interface
		}

		if a.RemoteNode != b.RemoteNode {
			return a.RemoteNode < b.RemoteNode
		}

		return a.RemoteInterface < b.RemoteInterface
	})

	return nil
}

// checkBindings verifies every interface's policy reference resolves,
// tolerating references to policies that were skipped with an Issue.
func checkBindings(topo *Topology, issues []Issue) error {
	skipped := make(map[string]bool, len(issues))
	for _, issue := range issues {
		skipped[issue.Node+"|"+issue.Policy] = true
	}

	for _, node := range topo.Nodes {
		for _, iface := range node.Interfaces {
			for _, name := range []string{iface.Inbound, iface.Outbound} {
				if name == "" || skipped[node.Name+"|"+name] {
					continue
				}

				if _, ok := node.Policies[name]; !ok {
					return fmt.Errorf("%w: node %q interface %q references %q",
						minnow.ErrPolicyNotFound, node.Name, iface.Name, name)
				}
			}
		}
	}

	return nil
}

// Node returns the named node.
func (t *Topology) Node(name string) (*Node, error) {
	n, ok := t.Nodes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", minnow.ErrNodeNotFound, name)
	}

	return n, nil
}

// EdgesFrom returns the directed edges leaving a node, in stable order.
func (t *Topology) EdgesFrom(name string) []Edge {
	var out []Edge

	for _, e := range t.Edges {
		if e.Node == name {
			out = append(out, e)
		}
	}

	return out
}

// Owns reports whether the node advertises a prefix containing addr.
func (n *Node) Owns(addr netip.Addr) bool {
	for _, p := range n.Prefixes {
		if p.Contains(addr) {
			return true
		}
	}

	return false
}

// Digest returns a stable identity for the topology, used as the cache key
// component that invalidates cached query results when the network changes.
func (t *Topology) Digest() string {
	h := sha256.New()

	names := make([]string, 0, len(t.Nodes))
	for name := range t.Nodes {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		node := t.Nodes[name]
		fmt.Fprintf(h, "node %s asn=%d external=%t\n", node.Name, node.ASN, node.External)

		for _, p := range node.Prefixes {
			fmt.Fprintf(h, "prefix %s\n", p)
		}

		ifaces := make([]string, 0, len(node.Interfaces))
		for iname := range node.Interfaces {
			ifaces = append(ifaces, iname)
		}

		sort.Strings(ifaces)

		for _, iname := range ifaces {
			iface := node.Interfaces[iname]
			fmt.Fprintf(h, "iface %s in=%s out=%s\n", iface.Name, iface.Inbound, iface.Outbound)
		}

		pnames := make([]string, 0, len(node.Policies))
		for pname := range node.Policies {
			pnames = append(pnames, pname)
		}

		sort.Strings(pnames)

		for _, pname := range pnames {
			encoded, _ := json.Marshal(ast.EncodeStmts(node.Policies[pname].Statements))
			fmt.Fprintf(h, "policy %s %s\n", pname, encoded)
		}
	}

	for _, e := range t.Edges {
		fmt.Fprintf(h, "edge %s/%s -> %s/%s\n", e.Node, e.Interface, e.RemoteNode, e.RemoteInterface)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func sortPrefixes(prefixes []netip.Prefix) {
	sort.Slice(prefixes, func(i, j int) bool {
		return prefixes[i].String() < prefixes[j].String()
	})
}
