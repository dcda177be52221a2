package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var requestCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "reactor_http_requests_total",
		Help: "HTTP requests by status code and method.",
	},
	[]string{"code", "method"},
)

func instrument(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(requestCounter, next)
}
