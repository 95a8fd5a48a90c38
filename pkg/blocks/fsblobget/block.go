// Package fsblobget implements the fs.blob_get block: read a whole blob from
// one of the allow-listed roots.
package fsblobget

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/rustkas/beamline-worker/pkg/blocks/fspath"
	"github.com/rustkas/beamline-worker/pkg/core"
	"github.com/rustkas/beamline-worker/pkg/policy"
)

const BlockType = "fs.blob_get"

// Block reads the file named by the path input into the content output, along
// with its size and modification time.
type Block struct{}

func NewBlock() *Block {
	return &Block{}
}

func (b *Block) BlockType() string {
	return BlockType
}

func (b *Block) ResourceClass() core.ResourceClass {
	return core.ResourceIO
}

func (b *Block) Init(_ context.Context, _ core.BlockContext) error {
	return nil
}

type readOutcome struct {
	content []byte
	modTime time.Time
	err     error
}

// Execute reads the blob. Paths outside the allow-list are refused with
// permission_denied; a missing file maps to resource_unavailable. With the
// complete-timeout gate on, the read is bounded by the per-operation timeout
// and an overrun yields a timeout result.
func (b *Block) Execute(_ context.Context, req core.StepRequest, bctx core.BlockContext) core.StepResult {
	start := time.Now()
	meta := core.MetadataFromContext(bctx)

	if !req.HasInputs("path") {
		return core.ErrorResult(
			core.ErrMissingRequiredField,
			"missing required input: path",
			meta,
			elapsedMS(start),
		)
	}

	path := req.Inputs["path"]

	if !fspath.Allowed(path) {
		return core.ErrorResult(
			core.ErrPermissionDenied,
			"path not allowed: "+path,
			meta,
			elapsedMS(start),
		)
	}

	var outcome readOutcome

	if timeoutMS := policy.FSTimeoutMS(policy.FSOpRead); timeoutMS > 0 {
		done := make(chan readOutcome, 1)

		go func() {
			done <- readBlob(path)
		}()

		select {
		case outcome = <-done:
		case <-time.After(time.Duration(timeoutMS) * time.Millisecond):
			return core.TimeoutResult(meta, elapsedMS(start))
		}
	} else {
		outcome = readBlob(path)
	}

	if outcome.err != nil {
		code := core.ErrExecutionFailed
		if errors.Is(outcome.err, os.ErrNotExist) {
			code = core.ErrResourceUnavailable
		} else if errors.Is(outcome.err, os.ErrPermission) {
			code = core.ErrPermissionDenied
		}

		return core.ErrorResult(code, "file read error: "+outcome.err.Error(), meta, elapsedMS(start))
	}

	outputs := map[string]string{
		"content":  string(outcome.content),
		"size":     strconv.Itoa(len(outcome.content)),
		"modified": outcome.modTime.UTC().Format(time.RFC3339Nano),
	}

	return core.Success(meta, outputs, elapsedMS(start))
}

func readBlob(path string) readOutcome {
	info, err := os.Stat(path)
	if err != nil {
		return readOutcome{err: err}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return readOutcome{err: err}
	}

	return readOutcome{content: content, modTime: info.ModTime()}
}

func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
