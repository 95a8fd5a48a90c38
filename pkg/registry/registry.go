// Package registry maps step types onto block handler factories. The set of
// handlers is closed at startup; there is no runtime plugin loading.
package registry

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/rustkas/beamline-worker/pkg/core"
	"github.com/rustkas/beamline-worker/pkg/protocol"
)

type Registry struct {
	logger         *slog.Logger
	blockFactories map[string]protocol.BlockFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:         log,
		blockFactories: make(map[string]protocol.BlockFactory),
	}
}

func (r *Registry) RegisterBlock(factory protocol.BlockFactory) {
	r.blockFactories[factory.ID()] = factory
}

// CreateBlock builds a fresh handler for the given step type.
func (r *Registry) CreateBlock(blockType string) (protocol.Block, error) {
	factory, ok := r.blockFactories[blockType]
	if !ok {
		return nil, fmt.Errorf("block type '%s' not registered", blockType)
	}

	return factory.Create()
}

// IsRegistered reports whether the worker recognizes the step type.
func (r *Registry) IsRegistered(blockType string) bool {
	_, ok := r.blockFactories[blockType]

	return ok
}

// ResourceClassFor returns the declared resource class of a step type.
func (r *Registry) ResourceClassFor(blockType string) (core.ResourceClass, bool) {
	factory, ok := r.blockFactories[blockType]
	if !ok {
		return core.ResourceCPU, false
	}

	return factory.ResourceClass(), true
}

// BlockTypes lists the registered step types in stable order.
func (r *Registry) BlockTypes() []string {
	types := make([]string, 0, len(r.blockFactories))
	for blockType := range r.blockFactories {
		types = append(types, blockType)
	}

	sort.Strings(types)

	return types
}
