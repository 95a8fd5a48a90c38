package worker_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/rustkas/beamline-worker/pkg/blocks/fsblobget"
	"github.com/rustkas/beamline-worker/pkg/blocks/fsblobput"
	"github.com/rustkas/beamline-worker/pkg/blocks/httprequest"
	"github.com/rustkas/beamline-worker/pkg/blocks/humanapproval"
	"github.com/rustkas/beamline-worker/pkg/blocks/sqlquery"
	"github.com/rustkas/beamline-worker/pkg/channels/gochannel"
	"github.com/rustkas/beamline-worker/pkg/core"
	"github.com/rustkas/beamline-worker/pkg/eventbus"
	"github.com/rustkas/beamline-worker/pkg/obs"
	"github.com/rustkas/beamline-worker/pkg/registry"
	"github.com/rustkas/beamline-worker/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeBasePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	return port
}

type busHarness struct {
	bus     *eventbus.WatermillEventBus
	pub     message.Publisher
	acks    <-chan *message.Message
	results <-chan *message.Message
}

func newBusHarness(t *testing.T, ctx context.Context) *busHarness {
	t.Helper()

	logger := watermill.NopLogger{}
	pub, sub, err := gochannel.CreateChannel(logger)
	require.NoError(t, err)

	acks, err := sub.Subscribe(ctx, eventbus.AckSubject)
	require.NoError(t, err)

	results, err := sub.Subscribe(ctx, eventbus.ResultSubject)
	require.NoError(t, err)

	return &busHarness{
		bus:     eventbus.NewWatermillEventBus(pub, sub),
		pub:     pub,
		acks:    acks,
		results: results,
	}
}

func (h *busHarness) publishAssignment(t *testing.T, assignment map[string]any) {
	t.Helper()

	payload, err := json.Marshal(assignment)
	require.NoError(t, err)

	require.NoError(t, h.pub.Publish(eventbus.AssignmentSubject, message.NewMessage(watermill.NewUUID(), payload)))
}

func receiveJSON(t *testing.T, ch <-chan *message.Message) map[string]any {
	t.Helper()

	select {
	case msg := <-ch:
		msg.Ack()

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(msg.Payload, &decoded))

		return decoded
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for bus message")

		return nil
	}
}

func startWorker(t *testing.T, ctx context.Context, h *busHarness) *worker.Worker {
	t.Helper()

	reg := registry.NewRegistry(slog.Default())
	reg.RegisterBlock(httprequest.NewFactory())
	reg.RegisterBlock(fsblobput.NewFactory())
	reg.RegisterBlock(fsblobget.NewFactory())
	reg.RegisterBlock(sqlquery.NewFactory())
	reg.RegisterBlock(humanapproval.NewFactory())

	cfg := core.DefaultWorkerConfig()
	cfg.PrometheusEndpoint = net.JoinHostPort("127.0.0.1", strconv.Itoa(freeBasePort(t)))

	w := worker.New("worker-test", cfg, h.bus, reg, obs.New("worker-test"), slog.Default())
	require.NoError(t, w.Start(ctx))

	t.Cleanup(func() {
		w.Stop(context.Background())
	})

	return w
}

func baseAssignment(jobType string, inputs map[string]string) map[string]any {
	return map[string]any{
		"version":       "1",
		"assignment_id": "as-1",
		"request_id":    "req-1",
		"tenant_id":     "ten-1",
		"trace_id":      "tr-1",
		"run_id":        "run-1",
		"step_id":       "step-1",
		"executor":      map[string]any{"provider_id": "prov-1"},
		"job":           map[string]any{"type": jobType, "inputs": inputs},
		"timeout_ms":    5000,
		"retry_count":   3,
	}
}

func TestWorkerExecutesHTTPAssignmentEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))
	defer server.Close()

	h := newBusHarness(t, ctx)
	startWorker(t, ctx, h)

	h.publishAssignment(t, baseAssignment("http.request", map[string]string{
		"url":    server.URL,
		"method": "GET",
	}))

	ack := receiveJSON(t, h.acks)
	assert.Equal(t, "accepted", ack["status"])
	assert.Equal(t, "as-1", ack["assignment_id"])

	result := receiveJSON(t, h.results)
	assert.Equal(t, "1", result["version"])
	assert.Equal(t, "success", result["status"])
	assert.Equal(t, "as-1", result["assignment_id"])
	assert.Equal(t, "req-1", result["request_id"])
	assert.Equal(t, "prov-1", result["provider_id"])
	assert.Equal(t, `{"type":"http.request"}`, result["job"])
	assert.Equal(t, "tr-1", result["trace_id"])
	assert.Equal(t, "run-1", result["run_id"])
	assert.Equal(t, "ten-1", result["tenant_id"])
	assert.Equal(t, "0.0", result["cost"])
}

func TestWorkerRejectsInvalidAssignment(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newBusHarness(t, ctx)
	startWorker(t, ctx, h)

	assignment := baseAssignment("http.request", nil)
	assignment["tenant_id"] = ""

	h.publishAssignment(t, assignment)

	ack := receiveJSON(t, h.acks)
	assert.Equal(t, "rejected", ack["status"])
	assert.Equal(t, "missing_field:tenant_id", ack["reason"])

	select {
	case msg := <-h.results:
		t.Fatalf("no result expected for a rejected assignment, got %s", msg.Payload)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWorkerRejectsUnsupportedJobType(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newBusHarness(t, ctx)
	startWorker(t, ctx, h)

	h.publishAssignment(t, baseAssignment("tele.portation", nil))

	ack := receiveJSON(t, h.acks)
	assert.Equal(t, "rejected", ack["status"])
	assert.Equal(t, "unsupported_job_type", ack["reason"])
}

func TestWorkerPublishesErrorResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	h := newBusHarness(t, ctx)
	startWorker(t, ctx, h)

	h.publishAssignment(t, baseAssignment("http.request", map[string]string{
		"url":    server.URL,
		"method": "GET",
	}))

	ack := receiveJSON(t, h.acks)
	assert.Equal(t, "accepted", ack["status"])

	result := receiveJSON(t, h.results)
	assert.Equal(t, "error", result["status"])
	assert.Equal(t, "HTTP_ERROR", result["error_code"])
	assert.NotEmpty(t, result["error_message"])
}

func TestWorkerServesHealthEndpoint(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newBusHarness(t, ctx)
	w := startWorker(t, ctx, h)

	resp, err := http.Get(fmt.Sprintf("http://%s/_health", w.HealthAddr()))
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWorkerRunsSandboxApproval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newBusHarness(t, ctx)

	reg := registry.NewRegistry(slog.Default())
	reg.RegisterBlock(humanapproval.NewFactory())

	cfg := core.DefaultWorkerConfig()
	cfg.SandboxMode = true
	cfg.PrometheusEndpoint = net.JoinHostPort("127.0.0.1", strconv.Itoa(freeBasePort(t)))

	w := worker.New("worker-test", cfg, h.bus, reg, obs.New("worker-test"), slog.Default())
	require.NoError(t, w.Start(ctx))

	t.Cleanup(func() { w.Stop(context.Background()) })

	h.publishAssignment(t, baseAssignment("human.approval", map[string]string{
		"approval_type": "deploy",
		"description":   "ship it",
	}))

	ack := receiveJSON(t, h.acks)
	assert.Equal(t, "accepted", ack["status"])

	result := receiveJSON(t, h.results)
	assert.Equal(t, "success", result["status"])
}
