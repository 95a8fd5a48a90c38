// Package fsblobput implements the fs.blob_put block: write a blob under one
// of the allow-listed roots, creating parent directories as needed.
package fsblobput

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rustkas/beamline-worker/pkg/blocks/fspath"
	"github.com/rustkas/beamline-worker/pkg/core"
	"github.com/rustkas/beamline-worker/pkg/policy"
)

const BlockType = "fs.blob_put"

// Block writes the step's content input to the path input. Required inputs:
// path, content. Optional: overwrite ("true" to replace an existing file).
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

// Execute writes the blob. Paths outside the allow-list are refused with
// permission_denied. With the complete-timeout gate on, the write runs on a
// separate goroutine and the caller waits at most the per-operation timeout;
// overrunning it yields a timeout result.
func (b *Block) Execute(_ context.Context, req core.StepRequest, bctx core.BlockContext) core.StepResult {
	start := time.Now()
	meta := core.MetadataFromContext(bctx)

	if !req.HasInputs("path", "content") {
		return core.ErrorResult(
			core.ErrMissingRequiredField,
			"missing required inputs: path, content",
			meta,
			elapsedMS(start),
		)
	}

	path := req.Inputs["path"]
	content := req.Inputs["content"]
	overwrite := req.Input("overwrite", "false") == "true"

	if !fspath.Allowed(path) {
		return core.ErrorResult(
			core.ErrPermissionDenied,
			"path not allowed: "+path,
			meta,
			elapsedMS(start),
		)
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return core.ErrorResult(
				core.ErrExecutionFailed,
				"file already exists and overwrite is false: "+path,
				meta,
				elapsedMS(start),
			)
		}
	}

	if timeoutMS := policy.FSTimeoutMS(policy.FSOpWrite); timeoutMS > 0 {
		done := make(chan error, 1)

		go func() {
			done <- writeBlob(path, content)
		}()

		select {
		case err := <-done:
			if err != nil {
				return writeError(err, meta, elapsedMS(start))
			}
		case <-time.After(time.Duration(timeoutMS) * time.Millisecond):
			return core.TimeoutResult(meta, elapsedMS(start))
		}
	} else {
		if err := writeBlob(path, content); err != nil {
			return writeError(err, meta, elapsedMS(start))
		}
	}

	outputs := map[string]string{
		"path":    path,
		"size":    strconv.Itoa(len(content)),
		"created": time.Now().UTC().Format(time.RFC3339Nano),
	}

	return core.Success(meta, outputs, elapsedMS(start))
}

func writeBlob(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

func writeError(err error, meta core.ResultMetadata, latencyMS int64) core.StepResult {
	code := core.ErrExecutionFailed
	if errors.Is(err, os.ErrPermission) {
		code = core.ErrPermissionDenied
	}

	return core.ErrorResult(code, "file write error: "+err.Error(), meta, latencyMS)
}

func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
