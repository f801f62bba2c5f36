package pipeline

import "fmt"

// Stage is one executable pipeline node. Implementations live under
// internal/pipeline/stage.
type Stage interface {
	// Run executes the stage against the shared job context. Params are the
	// node's declared configuration, resolved from NodeConfig.Params.
	Run(ctx *Context, params map[string]any) error
}

// StageFactory builds a Stage instance for one node.
type StageFactory func(params map[string]any) (Stage, error)

// UnknownStageTypeError reports a NodeConfig.Type with no registered factory.
type UnknownStageTypeError struct {
	Type string
}

func (e *UnknownStageTypeError) Error() string {
	return "pipeline: unknown stage type: " + e.Type
}

// Registry maps stage type names (as declared in NodeConfig.Type) to the
// factories that build them. One Registry is normally shared process-wide;
// building a Graph does not require a Registry, only running one does.
type Registry struct {
	factories map[string]StageFactory
}

// NewRegistry returns an empty stage registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]StageFactory)}
}

// Register adds a factory under a stage type name, overwriting any existing
// registration for that name.
func (r *Registry) Register(stageType string, factory StageFactory) {
	r.factories[stageType] = factory
}

// Build instantiates the stage declared for a node.
func (r *Registry) Build(node NodeConfig) (Stage, error) {
	factory, ok := r.factories[node.Type]
	if !ok {
		return nil, &UnknownStageTypeError{Type: node.Type}
	}
	stage, err := factory(node.Params)
	if err != nil {
		return nil, fmt.Errorf("pipeline: building stage %q (type %s): %w", node.ID, node.Type, err)
	}
	return stage, nil
}
