// Package pipeline builds and runs a declarative DAG of stages per job.
// A Graph is parsed once from a NodeConfig/EdgeConfig list (topological
// ordering + cycle detection); a Runner then walks it, evaluating each
// inbound edge's condition to decide whether to run or skip a node.
package pipeline

import (
	"fmt"
)

// NodeConfig describes one DAG node: its id, the registered stage type name
// that implements it, and stage-specific parameters.
type NodeConfig struct {
	ID     string
	Type   string
	Params map[string]any
}

// EdgeConfig describes a directed edge, optionally gated by a condition
// expression evaluated against the context's namespace.
type EdgeConfig struct {
	Source    string
	Target    string
	Condition string // empty means unconditional
}

// GraphConfig is the declarative description a Graph is built from.
type GraphConfig struct {
	Nodes      []NodeConfig
	Edges      []EdgeConfig
	Entrypoint string // optional explicit entry node
}

// CyclicDependencyError reports a detected cycle, including the path.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("pipeline: cyclic dependency detected: %v", e.Cycle)
}

// InvalidGraphError reports a structurally invalid graph configuration.
type InvalidGraphError struct {
	Reason string
}

func (e *InvalidGraphError) Error() string {
	return "pipeline: invalid graph: " + e.Reason
}

type edge struct {
	target    string
	condition string
}

// Graph is an immutable, validated DAG built from a GraphConfig.
type Graph struct {
	config GraphConfig

	nodeConfigs map[string]NodeConfig
	adjacency   map[string][]edge
	reverse     map[string][]edge
	inDegree    map[string]int

	Entrypoint string
}

// NewGraph parses cfg into a Graph, detecting missing endpoints and cycles.
func NewGraph(cfg GraphConfig) (*Graph, error) {
	g := &Graph{
		config:      cfg,
		nodeConfigs: make(map[string]NodeConfig, len(cfg.Nodes)),
		adjacency:   make(map[string][]edge),
		reverse:     make(map[string][]edge),
		inDegree:    make(map[string]int, len(cfg.Nodes)),
	}

	for _, n := range cfg.Nodes {
		g.nodeConfigs[n.ID] = n
		g.inDegree[n.ID] = 0
	}

	for _, e := range cfg.Edges {
		if _, ok := g.nodeConfigs[e.Source]; !ok {
			return nil, &InvalidGraphError{Reason: fmt.Sprintf("edge source node does not exist: %s", e.Source)}
		}
		if _, ok := g.nodeConfigs[e.Target]; !ok {
			return nil, &InvalidGraphError{Reason: fmt.Sprintf("edge target node does not exist: %s", e.Target)}
		}
		g.adjacency[e.Source] = append(g.adjacency[e.Source], edge{target: e.Target, condition: e.Condition})
		g.reverse[e.Target] = append(g.reverse[e.Target], edge{target: e.Source, condition: e.Condition})
		g.inDegree[e.Target]++
	}

	if err := g.detectCycle(); err != nil {
		return nil, err
	}

	entry, err := g.resolveEntrypoint(cfg.Entrypoint)
	if err != nil {
		return nil, err
	}
	g.Entrypoint = entry

	return g, nil
}

const (
	colorWhite = 0
	colorGray  = 1
	colorBlack = 2
)

func (g *Graph) detectCycle() error {
	state := make(map[string]int, len(g.nodeConfigs))
	var path []string
	pathIndex := make(map[string]int)

	var dfs func(node string) error
	dfs = func(node string) error {
		switch state[node] {
		case colorGray:
			start := pathIndex[node]
			cycle := append(append([]string{}, path[start:]...), node)
			return &CyclicDependencyError{Cycle: cycle}
		case colorBlack:
			return nil
		}

		state[node] = colorGray
		pathIndex[node] = len(path)
		path = append(path, node)

		for _, e := range g.adjacency[node] {
			if err := dfs(e.target); err != nil {
				return err
			}
		}

		path = path[:len(path)-1]
		state[node] = colorBlack
		return nil
	}

	// Deterministic order over the declared node list, not map iteration.
	for _, n := range g.config.Nodes {
		if state[n.ID] == colorWhite {
			if err := dfs(n.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Graph) resolveEntrypoint(explicit string) (string, error) {
	if explicit != "" {
		if _, ok := g.nodeConfigs[explicit]; !ok {
			return "", &InvalidGraphError{Reason: "entrypoint node does not exist: " + explicit}
		}
		return explicit, nil
	}

	for _, n := range g.config.Nodes {
		if g.inDegree[n.ID] == 0 {
			return n.ID, nil
		}
	}
	return "", &InvalidGraphError{Reason: "no entrypoint node (every node has a predecessor)"}
}

// TopologicalSort returns node IDs in a valid execution order (Kahn's
// algorithm), deterministic for a given node declaration order.
func (g *Graph) TopologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(g.inDegree))
	for k, v := range g.inDegree {
		inDegree[k] = v
	}

	var queue []string
	for _, n := range g.config.Nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	var result []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, e := range g.adjacency[node] {
			inDegree[e.target]--
			if inDegree[e.target] == 0 {
				queue = append(queue, e.target)
			}
		}
	}

	if len(result) != len(g.nodeConfigs) {
		return nil, &CyclicDependencyError{Cycle: nil}
	}
	return result, nil
}

// Predecessors returns (predecessor_id, edge_condition) pairs for a node.
func (g *Graph) Predecessors(nodeID string) []Predecessor {
	edges := g.reverse[nodeID]
	out := make([]Predecessor, len(edges))
	for i, e := range edges {
		out[i] = Predecessor{NodeID: e.target, Condition: e.condition}
	}
	return out
}

// Predecessor pairs a predecessor node ID with the condition gating its edge.
type Predecessor struct {
	NodeID    string
	Condition string
}

// NodeConfig returns the declared configuration for a node ID.
func (g *Graph) NodeConfig(nodeID string) (NodeConfig, bool) {
	n, ok := g.nodeConfigs[nodeID]
	return n, ok
}

// NodeIDs returns every node ID in the graph, in declaration order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.config.Nodes))
	for _, n := range g.config.Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}
