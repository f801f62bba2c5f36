package pipeline

import (
	"fmt"
	"log/slog"
	"time"
)

// PipelineExecutionError wraps the failure of a single node during Run,
// identifying which node failed.
type PipelineExecutionError struct {
	NodeID string
	Err    error
}

func (e *PipelineExecutionError) Error() string {
	return fmt.Sprintf("pipeline: node %s failed: %v", e.NodeID, e.Err)
}

func (e *PipelineExecutionError) Unwrap() error {
	return e.Err
}

const (
	nodeStatusCompleted = "completed"
	nodeStatusSkipped   = "skipped"
	nodeStatusFailed    = "failed"
)

// Runner executes a Graph's nodes in topological order, building each
// node's Stage from a shared Registry and gating execution on predecessor
// outcomes and edge conditions.
type Runner struct {
	graph    *Graph
	registry *Registry
	logger   *slog.Logger
}

// NewRunner builds a Runner for graph using registry to resolve stages.
func NewRunner(graph *Graph, registry *Registry, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{graph: graph, registry: registry, logger: logger}
}

// Run visits every node of the graph in topological order, recording a TraceEvent per node on ctx. A node is
// skipped (not failed) when every predecessor was skipped, or when none of
// its inbound edge conditions are satisfied by already-executed
// predecessors. Run stops and returns a *PipelineExecutionError on the
// first stage failure.
func (r *Runner) Run(ctx *Context) error {
	order, err := r.graph.TopologicalSort()
	if err != nil {
		return err
	}

	executed := make(map[string]bool, len(order))
	skipped := make(map[string]bool, len(order))

	for _, nodeID := range order {
		run, reason := r.shouldRunNode(ctx, nodeID, executed, skipped)
		if !run {
			skipped[nodeID] = true
			r.logger.Debug("pipeline: skipping node", "node_id", nodeID, "reason", reason)
			ctx.AddTrace(TraceEvent{NodeID: nodeID, Status: nodeStatusSkipped, Error: reason})
			continue
		}

		node, ok := r.graph.NodeConfig(nodeID)
		if !ok {
			return &PipelineExecutionError{NodeID: nodeID, Err: fmt.Errorf("node config missing")}
		}

		stage, err := r.registry.Build(node)
		if err != nil {
			ctx.AddTrace(TraceEvent{NodeID: nodeID, Status: nodeStatusFailed, Error: err.Error()})
			return &PipelineExecutionError{NodeID: nodeID, Err: err}
		}

		start := time.Now()
		err = stage.Run(ctx, node.Params)
		elapsed := time.Since(start).Milliseconds()

		if err != nil {
			ctx.AddTrace(TraceEvent{NodeID: nodeID, Status: nodeStatusFailed, ElapsedMS: elapsed, Error: err.Error()})
			r.logger.Error("pipeline: node failed", "node_id", nodeID, "error", err)
			return &PipelineExecutionError{NodeID: nodeID, Err: err}
		}

		executed[nodeID] = true
		ctx.AddTrace(TraceEvent{NodeID: nodeID, Status: nodeStatusCompleted, ElapsedMS: elapsed})
		r.logger.Debug("pipeline: node completed", "node_id", nodeID, "elapsed_ms", elapsed)
	}

	return nil
}

// shouldRunNode decides whether nodeID should run given which predecessors
// have already executed or been skipped. Mirrors three rules: a node with
// no predecessors always runs; a node whose predecessors were all skipped is
// itself skipped; otherwise the node runs if any edge from an *executed*
// predecessor has no condition or a condition that evaluates true.
func (r *Runner) shouldRunNode(ctx *Context, nodeID string, executed, skipped map[string]bool) (bool, string) {
	predecessors := r.graph.Predecessors(nodeID)
	if len(predecessors) == 0 {
		return true, ""
	}

	allSkipped := true
	for _, p := range predecessors {
		if !skipped[p.NodeID] {
			allSkipped = false
			break
		}
	}
	if allSkipped {
		return false, "all predecessors skipped"
	}

	namespace := ctx.ToEvalNamespace()
	for _, p := range predecessors {
		if !executed[p.NodeID] {
			continue
		}
		if p.Condition == "" {
			return true, ""
		}
		ok, err := EvaluateCondition(p.Condition, namespace)
		if err != nil {
			return false, fmt.Sprintf("condition error on edge from %s: %v", p.NodeID, err)
		}
		if ok {
			return true, ""
		}
	}

	return false, "no satisfied predecessor condition"
}
