// Package topology builds the read-only network model (nodes, interfaces,
// edges, per-interface policies) from the analysis service's raw export
// document.
package topology

import (
	"encoding/json"
	"fmt"

	"github.com/minnowtool/minnow"
)

// RawDocument is the analysis service's export: three row sets, exactly as
// the service answers the topology, policy and declarations queries.
type RawDocument struct {
	Topology     []RawEdge        `json:"topology"`
	Policy       []RawNode        `json:"policy"`
	Declarations []RawDeclaration `json:"declarations"`
}

// RawEdge is one directed layer-3 edge row.
type RawEdge struct {
	Interface       RawInterfaceRef `json:"interface"`
	RemoteInterface RawInterfaceRef `json:"remoteInterface"`
	IPs             []string        `json:"ips,omitempty"`
	RemoteIPs       []string        `json:"remoteIps,omitempty"`
}

// RawInterfaceRef names one (node, interface) endpoint.
type RawInterfaceRef struct {
	Hostname  string `json:"hostname"`
	Interface string `json:"interface"`
}

// RawNode is one node-properties row.
type RawNode struct {
	Node       string                          `json:"node"`
	ASN        int                             `json:"asn,omitempty"`
	Prefixes   []string                        `json:"prefixes,omitempty"`
	Interfaces map[string]RawInterfacePolicies `json:"interfaces"`
}

// RawInterfacePolicies binds an interface to its policy names.
type RawInterfacePolicies struct {
	Inbound  string `json:"inbound,omitempty"`
	Outbound string `json:"outbound,omitempty"`
}

// Declaration types the service exports.
const (
	DeclRoutingPolicy   = "RoutingPolicy"
	DeclRouteFilterList = "RouteFilterList"
	DeclCommunitySet    = "CommunitySet"
)

// RawDeclaration is one named-structure row. Definition stays raw until the
// declaration type selects a decoder.
type RawDeclaration struct {
	Node       string          `json:"node"`
	Type       string          `json:"type"`
	Name       string          `json:"name"`
	Definition json.RawMessage `json:"definition"`
}

// RawPolicyDef is the definition payload of a RoutingPolicy declaration.
type RawPolicyDef struct {
	Statements json.RawMessage `json:"statements"`
}

// RawFilterDef is the definition payload of a RouteFilterList declaration.
type RawFilterDef struct {
	Lines []RawFilterLine `json:"lines"`
}

// RawFilterLine is one route-filter line; lines apply first-match-wins.
type RawFilterLine struct {
	Action string `json:"action"`
	Prefix string `json:"prefix"`
}

// RawCommunitySetDef is the definition payload of a CommunitySet
// declaration.
type RawCommunitySetDef struct {
	Communities []string `json:"communities"`
}

// DecodeDocument parses the raw service document.
func DecodeDocument(data []byte) (*RawDocument, error) {
	var doc RawDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", minnow.ErrMalformedDocument, err)
	}

	return &doc, nil
}
