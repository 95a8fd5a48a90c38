package humanapproval

import (
	"github.com/rustkas/beamline-worker/pkg/core"
	"github.com/rustkas/beamline-worker/pkg/protocol"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Create() (protocol.Block, error) {
	return NewBlock(), nil
}

func (f *Factory) ID() string {
	return BlockType
}

func (f *Factory) ResourceClass() core.ResourceClass {
	return core.ResourceCPU
}
