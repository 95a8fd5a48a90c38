package obs

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rustkas/beamline-worker/pkg/flags"
)

// endpoint is one of the two standalone HTTP servers (health, metrics). The
// listener is opened eagerly so a bind failure surfaces at startup, which is
// fatal; serving happens on its own goroutine.
type endpoint struct {
	server   *http.Server
	listener net.Listener
}

func startEndpoint(addr string, handler http.Handler) (*endpoint, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", addr, err)
	}

	ep := &endpoint{
		server:   &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second},
		listener: listener,
	}

	go func() {
		_ = ep.server.Serve(listener)
	}()

	return ep, nil
}

func (e *endpoint) stop(ctx context.Context) {
	if e == nil {
		return
	}

	_ = e.server.Shutdown(ctx)
}

// addr returns the bound address, useful when the configured port was 0.
func (e *endpoint) addr() string {
	return e.listener.Addr().String()
}

// StartHealthEndpoint serves GET /_health on the given address. Any other
// path is a 404.
func (o *Observability) StartHealthEndpoint(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/_health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		body := fmt.Sprintf(`{"status":"healthy","timestamp":"%s"}`,
			time.Now().UTC().Format(timestampLayout))
		_, _ = w.Write([]byte(body))
	})

	ep, err := startEndpoint(addr, mux)
	if err != nil {
		return err
	}

	o.health = ep
	o.SetHealthStatus("health_endpoint", true)

	return nil
}

// StartMetricsEndpoint serves GET /metrics on the given address with the
// Prometheus text exposition. The observability-metrics gate is consulted per
// request; with the gate off the path is a 404.
func (o *Observability) StartMetricsEndpoint(addr string) error {
	exposition := promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !flags.ObservabilityMetricsEnabled() {
			http.NotFound(w, r)

			return
		}

		exposition.ServeHTTP(w, r)
	})

	ep, err := startEndpoint(addr, mux)
	if err != nil {
		return err
	}

	o.metrics = ep

	return nil
}

// HealthAddr returns the bound health address.
func (o *Observability) HealthAddr() string {
	if o.health == nil {
		return ""
	}

	return o.health.addr()
}

// MetricsAddr returns the bound metrics address.
func (o *Observability) MetricsAddr() string {
	if o.metrics == nil {
		return ""
	}

	return o.metrics.addr()
}

// Stop shuts both endpoint servers down; closing the listeners unblocks the
// accept loops.
func (o *Observability) Stop(ctx context.Context) {
	o.health.stop(ctx)
	o.metrics.stop(ctx)
}
