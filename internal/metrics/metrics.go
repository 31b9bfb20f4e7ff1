// Package metrics define las métricas Prometheus de authd. Paquete aparte
// para que handlers y servicios las compartan sin ciclos de import.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authd_http_requests_total",
		Help: "Requests HTTP por familia de endpoint y status.",
	}, []string{"endpoint", "status"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "authd_http_request_duration_seconds",
		Help:    "Latencia HTTP por familia de endpoint.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	SignIns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authd_sign_ins_total",
		Help: "Sign-ins por proveedor y resultado (ok|fail).",
	}, []string{"provider", "result"})

	ActiveRefreshTokens = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "authd_active_refresh_tokens",
		Help: "Refresh tokens vivos emitidos por este proceso.",
	})

	BlobBytesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authd_blob_bytes_written_total",
		Help: "Bytes subidos al blob store.",
	})
)

// Register registra todo en reg (default si es nil). Tolera doble registro
// para poder llamarse desde tests.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		HTTPRequests, HTTPDuration, SignIns, ActiveRefreshTokens, BlobBytesWritten,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
