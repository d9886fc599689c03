package codedb

import (
	"encoding/json"
	"fmt"
)

// CallNode holds the callees and callers of one function name. Both lists are
// insertion ordered and never contain duplicates.
type CallNode struct {
	Callees []string `json:"callees"`
	Callers []string `json:"callers"`

	calleeSet map[string]struct{}
	callerSet map[string]struct{}
}

func newCallNode() *CallNode {
	return &CallNode{
		Callees:   []string{},
		Callers:   []string{},
		calleeSet: make(map[string]struct{}),
		callerSet: make(map[string]struct{}),
	}
}

func (n *CallNode) addCallee(name string) bool {
	if _, ok := n.calleeSet[name]; ok {
		return false
	}
	n.calleeSet[name] = struct{}{}
	n.Callees = append(n.Callees, name)
	return true
}

func (n *CallNode) addCaller(name string) bool {
	if _, ok := n.callerSet[name]; ok {
		return false
	}
	n.callerSet[name] = struct{}{}
	n.Callers = append(n.Callers, name)
	return true
}

// CallPartial is one extractor's call graph output.
type CallPartial map[string]struct {
	Callees []string `json:"callees"`
	Callers []string `json:"callers"`
}

// CallGraph is the cumulative name-keyed call graph. Functions that share a
// name across files collapse into one node.
// It is not safe for concurrent use; Database serializes access.
type CallGraph map[string]*CallNode

// Merge unions a partial call graph into the graph and returns the number of
// new edges recorded.
func (g CallGraph) Merge(partial CallPartial) int {
	added := 0
	for fn, edges := range partial {
		node := g.node(fn)
		for _, callee := range edges.Callees {
			if node.addCallee(callee) {
				added++
			}
		}
		for _, caller := range edges.Callers {
			if node.addCaller(caller) {
				added++
			}
		}
	}
	return added
}

func (g CallGraph) node(fn string) *CallNode {
	node, ok := g[fn]
	if !ok {
		node = newCallNode()
		g[fn] = node
	}
	return node
}

// Edges returns the number of distinct (function, callee) pairs.
func (g CallGraph) Edges() int {
	n := 0
	for _, node := range g {
		n += len(node.Callees)
	}
	return n
}

// UnmarshalJSON rebuilds the graph from a persisted artifact, restoring the set indexes.
func (g *CallGraph) UnmarshalJSON(data []byte) error {
	var partial CallPartial
	if err := json.Unmarshal(data, &partial); err != nil {
		return err
	}
	*g = CallGraph{}
	g.Merge(partial)
	return nil
}

// DecodeCallPartial parses an extractor document. A JSON null yields an empty partial.
func DecodeCallPartial(data []byte) (CallPartial, error) {
	var partial CallPartial
	if err := json.Unmarshal(data, &partial); err != nil {
		return nil, fmt.Errorf("failed to decode call graph output: %w", err)
	}
	if partial == nil {
		partial = CallPartial{}
	}
	return partial, nil
}
