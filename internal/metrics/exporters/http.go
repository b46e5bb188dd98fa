// Package exporters exposes recorder metrics over HTTP and the event bus.
package exporters

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPHandler returns the Prometheus metrics HTTP handler.
// Everything registered through promauto is included.
func HTTPHandler() http.Handler {
	return promhttp.Handler()
}
