package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Path is where NewServer exposes the metrics.
const Path = "/metrics"

// NewRegistry creates an isolated registry with the dramascope metrics
// registered on it. Commands and tests use their own registry rather than
// the global default.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	return reg, NewMetrics(reg)
}

// HandlerFor serves the metrics gathered from reg
func HandlerFor(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// NewServer returns an unstarted HTTP server exposing reg on Path.
func NewServer(addr string, reg prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(Path, HandlerFor(reg))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
