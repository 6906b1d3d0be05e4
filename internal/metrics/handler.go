package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the Prometheus metrics HTTP handler. The API server
// mounts it under gin via gin.WrapH.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RegisterHandlers registers the metrics endpoint on an HTTP mux
func RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", Handler())
}
