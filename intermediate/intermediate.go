// Package intermediate defines the condensed network document consumed by
// downstream verification tools, and the conversion between it and the
// in-memory topology.
package intermediate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/netip"
	"sort"

	"github.com/minnowtool/minnow"
	"github.com/minnowtool/minnow/ast"
	"github.com/minnowtool/minnow/topology"
)

// FormatVersion identifies the document schema. Consumers reject documents
// with a version they do not know.
const FormatVersion = "1"

// Document is the condensed intermediate representation of one network.
type Document struct {
	FormatVersion string            `json:"formatVersion"`
	Nodes         map[string]NodeIR `json:"nodes"`
	Edges         []EdgeIR          `json:"edges"`
}

// NodeIR is one node's condensed form. Policies hold the encoded statement
// lists keyed by policy name.
type NodeIR struct {
	ASN        int                    `json:"asn,omitempty"`
	External   bool                   `json:"external,omitempty"`
	Prefixes   []string               `json:"prefixes,omitempty"`
	Interfaces map[string]InterfaceIR `json:"interfaces,omitempty"`
	Policies   map[string]any         `json:"policies,omitempty"`
}

// InterfaceIR binds one interface to its policy names.
type InterfaceIR struct {
	Inbound  string `json:"inbound,omitempty"`
	Outbound string `json:"outbound,omitempty"`
}

// EndpointIR names one (node, interface) endpoint of an edge.
type EndpointIR struct {
	Node      string `json:"node"`
	Interface string `json:"interface"`
}

// EdgeIR is one directed edge, local endpoint first.
type EdgeIR [2]EndpointIR

// Generate renders the topology as a condensed document. With simplify set,
// every policy body passes through the boolean and statement simplifiers
// first; the resulting document is never larger than the unsimplified one.
func Generate(topo *topology.Topology, simplify bool) (*Document, error) {
	doc := &Document{
		FormatVersion: FormatVersion,
		Nodes:         make(map[string]NodeIR, len(topo.Nodes)),
		Edges:         make([]EdgeIR, 0, len(topo.Edges)),
	}

	for name, node := range topo.Nodes {
		ir := NodeIR{
			ASN:      node.ASN,
			External: node.External,
		}

		for _, p := range node.Prefixes {
			ir.Prefixes = append(ir.Prefixes, p.String())
		}

		sort.Strings(ir.Prefixes)

		if len(node.Interfaces) > 0 {
			ir.Interfaces = make(map[string]InterfaceIR, len(node.Interfaces))
			for iname, iface := range node.Interfaces {
				ir.Interfaces[iname] = InterfaceIR{Inbound: iface.Inbound, Outbound: iface.Outbound}
			}
		}

		if len(node.Policies) > 0 {
			ir.Policies = make(map[string]any, len(node.Policies))

			for pname, policy := range node.Policies {
				stmts := policy.Statements
				if simplify {
					stmts = ast.SimplifyStmts(stmts)
				}

				ir.Policies[pname] = ast.EncodeStmts(stmts)
			}
		}

		doc.Nodes[name] = ir
	}

	for _, e := range topo.Edges {
		doc.Edges = append(doc.Edges, EdgeIR{
			{Node: e.Node, Interface: e.Interface},
			{Node: e.RemoteNode, Interface: e.RemoteInterface},
		})
	}

	return doc, nil
}

// Marshal renders the document as indented JSON with stable key order.
func (d *Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")

	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	return buf.Bytes(), nil
}

// Load parses a condensed document and reconstructs the topology it
// describes, so queries can run against a previously generated file without
// contacting the analysis service.
func Load(data []byte) (*topology.Topology, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", minnow.ErrMalformedDocument, err)
	}

	if doc.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %q",
			minnow.ErrMalformedDocument, doc.FormatVersion)
	}

	topo := &topology.Topology{Nodes: make(map[string]*topology.Node, len(doc.Nodes))}

	for name, ir := range doc.Nodes {
		node := &topology.Node{
			Name:       name,
			ASN:        ir.ASN,
			External:   ir.External,
			Interfaces: make(map[string]*topology.Interface, len(ir.Interfaces)),
			Policies:   make(map[string]*ast.Policy, len(ir.Policies)),
		}

		for _, p := range ir.Prefixes {
			prefix, err := netip.ParsePrefix(p)
			if err != nil {
				return nil, fmt.Errorf("%w: node %q: invalid prefix %q",
					minnow.ErrMalformedDocument, name, p)
			}

			node.Prefixes = append(node.Prefixes, prefix)
		}

		for iname, iface := range ir.Interfaces {
			node.Interfaces[iname] = &topology.Interface{
				Name:     iname,
				Inbound:  iface.Inbound,
				Outbound: iface.Outbound,
			}
		}

		for pname, encoded := range ir.Policies {
			raw, err := json.Marshal(encoded)
			if err != nil {
				return nil, fmt.Errorf("node %q policy %q: %w", name, pname, err)
			}

			stmts, err := ast.DecodeStmts(raw)
			if err != nil {
				return nil, fmt.Errorf("node %q policy %q: %w", name, pname, err)
			}

			node.Policies[pname] = &ast.Policy{Name: pname, Statements: stmts}
		}

		topo.Nodes[name] = node
	}

	for _, e := range doc.Edges {
		topo.Edges = append(topo.Edges, topology.Edge{
			Node:            e[0].Node,
			Interface:       e[0].Interface,
			RemoteNode:      e[1].Node,
			RemoteInterface: e[1].Interface,
		})
	}

	return topo, nil
}
