package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/semihalev/zlog/v2"
)

// MetricsServer exposes a bare Prometheus /metrics endpoint. Optional: only
// started when a bind address is configured.
type MetricsServer struct {
	addr string
	srv  *http.Server
}

func NewMetricsServer(addr string) *MetricsServer {
	return &MetricsServer{addr: addr}
}

// Run starts the metrics listener and stops it when ctx is done. It returns
// immediately if no bind address was configured.
func (m *MetricsServer) Run(ctx context.Context) {
	if m.addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	m.srv = &http.Server{Addr: m.addr, Handler: mux}

	go func() {
		if err := m.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Error("Metrics server failed", "addr", m.addr, "error", err.Error())
		}
	}()

	zlog.Info("Metrics server listening", "addr", m.addr)

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := m.srv.Shutdown(shutdownCtx); err != nil {
			zlog.Error("Metrics server shutdown failed", "error", err.Error())
		}
	}()
}
