// Package httprequest implements the http.request block: one outbound HTTP
// call per step, with split connect/total timeouts when the complete-timeout
// gate is on.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rustkas/beamline-worker/pkg/core"
	"github.com/rustkas/beamline-worker/pkg/policy"
)

const BlockType = "http.request"

// Block performs a single HTTP request described by the step inputs: required
// url and method, optional body and headers (a JSON object of string pairs).
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

// Execute performs the request. 2xx responses map to success; other statuses
// to http_error with the response still attached to the outputs. Transport
// failures map to network_error, or connection_timeout when the failure is a
// timeout.
func (b *Block) Execute(ctx context.Context, req core.StepRequest, bctx core.BlockContext) core.StepResult {
	start := time.Now()
	meta := core.MetadataFromContext(bctx)

	if !req.HasInputs("url", "method") {
		return core.ErrorResult(
			core.ErrMissingRequiredField,
			"missing required inputs: url, method",
			meta,
			elapsedMS(start),
		)
	}

	url := req.Inputs["url"]
	method := strings.ToUpper(req.Inputs["method"])
	body := req.Input("body", "")
	headersJSON := req.Input("headers", "{}")

	headers := make(map[string]string)
	if err := json.Unmarshal([]byte(headersJSON), &headers); err != nil {
		return core.ErrorResult(
			core.ErrInvalidFormat,
			fmt.Sprintf("invalid headers JSON: %v", err),
			meta,
			elapsedMS(start),
		)
	}

	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return core.ErrorResult(
			core.ErrInvalidInput,
			fmt.Sprintf("failed to build request: %v", err),
			meta,
			elapsedMS(start),
		)
	}

	for key, value := range headers {
		httpReq.Header.Set(key, value)
	}

	if body != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := newClient(req.TimeoutMS).Do(httpReq)
	if err != nil {
		code := core.ErrNetworkError
		if isTimeoutError(err) {
			code = core.ErrConnectionTimeout
		}

		return core.ErrorResult(
			code,
			fmt.Sprintf("http request failed: %v", err),
			meta,
			elapsedMS(start),
		)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.ErrorResult(
			core.ErrNetworkError,
			fmt.Sprintf("failed to read response body: %v", err),
			meta,
			elapsedMS(start),
		)
	}

	outputs := map[string]string{
		"status_code": fmt.Sprintf("%d", resp.StatusCode),
		"body":        string(respBody),
		"headers":     encodeHeaders(resp.Header),
	}

	latency := elapsedMS(start)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return core.Success(meta, outputs, latency)
	}

	res := core.ErrorResult(
		core.ErrHTTPError,
		fmt.Sprintf("HTTP request failed with status: %d", resp.StatusCode),
		meta,
		latency,
	)
	// The response is kept on the error result so the retry classifier can
	// read the status code.
	res.Outputs = outputs

	return res
}

// newClient builds the per-call client. With the complete-timeout gate on, the
// dialer enforces the connect timeout separately and the client deadline is
// connect plus request; off, the single request deadline applies.
func newClient(requestTimeoutMS int64) *http.Client {
	client := &http.Client{
		Timeout: time.Duration(policy.HTTPTotalTimeoutMS(requestTimeoutMS)) * time.Millisecond,
	}

	if connectMS := policy.HTTPConnectTimeoutMS(); connectMS > 0 {
		dialer := &net.Dialer{Timeout: time.Duration(connectMS) * time.Millisecond}
		client.Transport = &http.Transport{DialContext: dialer.DialContext}
	}

	return client
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded")
}

func encodeHeaders(h http.Header) string {
	flat := make(map[string]string, len(h))
	for key := range h {
		flat[key] = h.Get(key)
	}

	encoded, err := json.Marshal(flat)
	if err != nil {
		return "{}"
	}

	return string(encoded)
}

func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
