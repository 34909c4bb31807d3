// Package query answers reachability questions over a built topology by
// chaining symbolic policy evaluations along edges.
package query

import (
	"context"
	"fmt"
	"net/netip"
	"sort"

	"go.uber.org/zap"

	"github.com/minnowtool/minnow"
	"github.com/minnowtool/minnow/ast"
	"github.com/minnowtool/minnow/eval"
	"github.com/minnowtool/minnow/topology"
)

// Kind discriminates query kinds.
type Kind string

// KindReachable asks whether an advertisement for Dest can propagate from
// Source to a node that owns Dest.
const KindReachable Kind = "reachable"

// Query is one question to answer.
type Query struct {
	Kind   Kind       `json:"kind"`
	Source string     `json:"source"`
	Dest   netip.Addr `json:"dest"`
	Trace  bool       `json:"trace,omitempty"`
}

// Key returns a stable identity for the query, combined with the topology
// digest to key cached results.
func (q Query) Key() string {
	return fmt.Sprintf("%s|%s|%s", q.Kind, q.Source, q.Dest)
}

// Hop is one step of a reachability trace.
type Hop struct {
	Node            string          `json:"node"`
	Interface       string          `json:"interface"`
	RemoteNode      string          `json:"remoteNode"`
	RemoteInterface string          `json:"remoteInterface"`
	Disposition     ast.Disposition `json:"disposition"`
	Residual        string          `json:"residual,omitempty"`
}

// Result is a query answer. Disposition is Accept when some path delivers
// the route, Reject when every path drops it, and the residual records the
// condition under which the winning path accepts when the answer depends on
// attributes left symbolic.
type Result struct {
	Disposition  ast.Disposition `json:"disposition"`
	Residual     string          `json:"residual,omitempty"`
	Inconclusive bool            `json:"inconclusive,omitempty"`
	Hops         []Hop           `json:"hops,omitempty"`
}

// Engine runs queries against one topology.
type Engine struct {
	Topo    *topology.Topology
	MaxHops int
	Cache   *Cache
	Logger  *zap.Logger
}

// NewEngine builds an engine with the configured hop bound.
func NewEngine(topo *topology.Topology, maxHops int, logger *zap.Logger) *Engine {
	if maxHops <= 0 {
		maxHops = 64
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{Topo: topo, MaxHops: maxHops, Logger: logger}
}

// Run answers the query, consulting the cache when one is attached.
func (e *Engine) Run(ctx context.Context, q Query) (*Result, error) {
	if q.Kind != KindReachable {
		return nil, fmt.Errorf("%w: %q", minnow.ErrUnsupportedQueryKind, q.Kind)
	}

	if _, err := e.Topo.Node(q.Source); err != nil {
		return nil, err
	}

	digest := e.Topo.Digest()

	if e.Cache != nil && !q.Trace {
		if res, ok, err := e.Cache.Get(ctx, digest, q.Key()); err != nil {
			e.Logger.Warn("query cache read failed", zap.Error(err))
		} else if ok {
			e.Logger.Debug("query cache hit", zap.String("query", q.Key()))
			return res, nil
		}
	}

	res, err := e.reachable(ctx, q)
	if err != nil {
		// an inconclusive result still comes back alongside ErrCycleBound
		return res, err
	}

	if e.Cache != nil && !q.Trace {
		if err := e.Cache.Put(ctx, digest, q.Key(), res); err != nil {
			e.Logger.Warn("query cache write failed", zap.Error(err))
		}
	}

	return res, nil
}

// frontier is one in-flight propagation state: an advertisement sitting at
// a node, with the conjunction of residuals collected along the way.
type frontier struct {
	node     string
	record   eval.Record
	residual ast.Expr
	hops     []Hop
	depth    int
}

func (e *Engine) reachable(ctx context.Context, q Query) (*Result, error) {
	start := eval.SymbolicRecord()

	start, err := start.With(eval.AttrPrefix,
		eval.PrefixValue(netip.PrefixFrom(q.Dest, q.Dest.BitLen())))
	if err != nil {
		return nil, err
	}

	result := &Result{Disposition: ast.Reject}

	// (edge, residual) pairs already expanded; revisiting one cannot
	// produce a new outcome, which is what terminates policy-driven loops.
	visited := make(map[string]bool)

	queue := []frontier{{node: q.Source, record: start, residual: ast.Bool(true)}}
	bounded := false

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cur := queue[0]
		queue = queue[1:]

		node, err := e.Topo.Node(cur.node)
		if err != nil {
			return nil, err
		}

		if node.Owns(q.Dest) {
			e.Logger.Debug("destination reached",
				zap.String("node", cur.node),
				zap.Int("depth", cur.depth))

			return e.accepted(q, cur), nil
		}

		if cur.depth >= e.MaxHops {
			bounded = true
			continue
		}

		for _, edge := range e.Topo.EdgesFrom(cur.node) {
			key := edgeKey(edge, cur.residual)
			if visited[key] {
				continue
			}

			visited[key] = true

			next, hop, err := e.propagate(edge, cur)
			if err != nil {
				return nil, err
			}

			if q.Trace && hop.Disposition == ast.Reject {
				// rejected hops still show up in the trace
				result.Hops = append(result.Hops, appendPath(cur.hops, hop)...)
			}

			if next == nil {
				continue
			}

			queue = append(queue, *next)
		}
	}

	if bounded {
		result.Inconclusive = true

		e.Logger.Warn("hop bound reached before exhausting paths",
			zap.String("query", q.Key()),
			zap.Int("maxHops", e.MaxHops))

		return result, fmt.Errorf("%w: %d hops", minnow.ErrCycleBound, e.MaxHops)
	}

	return result, nil
}

func (e *Engine) accepted(q Query, cur frontier) *Result {
	res := &Result{Residual: ast.String(cur.residual)}
	if q.Trace {
		res.Hops = cur.hops
	}

	if lit, ok := cur.residual.(*ast.BoolLit); ok && lit.Value {
		res.Disposition = ast.Accept
	} else {
		res.Disposition = eval.DispSymbolic
	}

	return res
}

// propagate pushes the advertisement across one edge: the local node's
// outbound policy first, then the remote node's inbound policy. A nil
// frontier means the edge drops the route outright.
func (e *Engine) propagate(edge topology.Edge, cur frontier) (*frontier, *Hop, error) {
	hop := &Hop{
		Node:            edge.Node,
		Interface:       edge.Interface,
		RemoteNode:      edge.RemoteNode,
		RemoteInterface: edge.RemoteInterface,
	}

	record := cur.record
	residual := cur.residual

	local, err := e.Topo.Node(edge.Node)
	if err != nil {
		return nil, nil, err
	}

	remote, err := e.Topo.Node(edge.RemoteNode)
	if err != nil {
		return nil, nil, err
	}

	legs := []struct {
		node   *topology.Node
		policy string
	}{
		{local, interfacePolicy(local, edge.Interface, false)},
		{remote, interfacePolicy(remote, edge.RemoteInterface, true)},
	}

	for _, leg := range legs {
		if leg.policy == "" {
			continue
		}

		policy, ok := leg.node.Policies[leg.policy]
		if !ok {
			return nil, nil, fmt.Errorf("%w: node %q policy %q",
				minnow.ErrPolicyNotFound, leg.node.Name, leg.policy)
		}

		out, err := eval.Evaluate(policy, record, eval.Options{Logger: e.Logger})
		if err != nil {
			return nil, nil, err
		}

		if out.Disposition == ast.Reject {
			hop.Disposition = ast.Reject
			hop.Residual = ast.String(out.AcceptWhen)

			return nil, hop, nil
		}

		record = out.Record
		residual = ast.Simplify(&ast.And{Exprs: []ast.Expr{residual, out.AcceptWhen}})

		if lit, isLit := residual.(*ast.BoolLit); isLit && !lit.Value {
			hop.Disposition = ast.Reject
			hop.Residual = ast.String(residual)

			return nil, hop, nil
		}
	}

	hop.Disposition = ast.Accept
	hop.Residual = ast.String(residual)

	return &frontier{
		node:     edge.RemoteNode,
		record:   record,
		residual: residual,
		hops:     appendPath(cur.hops, hop),
		depth:    cur.depth + 1,
	}, hop, nil
}

func interfacePolicy(node *topology.Node, ifaceName string, inbound bool) string {
	iface, ok := node.Interfaces[ifaceName]
	if !ok {
		return ""
	}

	if inbound {
		return iface.Inbound
	}

	return iface.Outbound
}

func edgeKey(e topology.Edge, residual ast.Expr) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s",
		e.Node, e.Interface, e.RemoteNode, e.RemoteInterface, ast.String(residual))
}

func appendPath(hops []Hop, hop *Hop) []Hop {
	out := make([]Hop, len(hops), len(hops)+1)
	copy(out, hops)
	out = append(out, *hop)

	return out
}

// Sources returns every non-external node name, sorted, for callers that
// fan a query out across the whole network.
func Sources(topo *topology.Topology) []string {
	var names []string

	for name, node := range topo.Nodes {
		if !node.External {
			names = append(names, name)
		}
	}

	sort.Strings(names)

	return names
}
