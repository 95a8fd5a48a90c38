// Package cmd provides common initialization functions for the worker
// binary.
package cmd

import (
	"log/slog"

	"github.com/rustkas/beamline-worker/pkg/blocks/fsblobget"
	"github.com/rustkas/beamline-worker/pkg/blocks/fsblobput"
	"github.com/rustkas/beamline-worker/pkg/blocks/httprequest"
	"github.com/rustkas/beamline-worker/pkg/blocks/humanapproval"
	"github.com/rustkas/beamline-worker/pkg/blocks/sqlquery"
	"github.com/rustkas/beamline-worker/pkg/registry"
)

// NewRegistry builds the block registry with every native handler
// registered.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.RegisterBlock(httprequest.NewFactory())
	reg.RegisterBlock(fsblobput.NewFactory())
	reg.RegisterBlock(fsblobget.NewFactory())
	reg.RegisterBlock(sqlquery.NewFactory())
	reg.RegisterBlock(humanapproval.NewFactory())

	return reg
}
