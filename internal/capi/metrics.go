package capi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capi_deliveries_total",
		Help: "Total CAPI delivery outcomes by event and result",
	}, []string{"event", "outcome"})
	attemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capi_attempts_total",
		Help: "Total HTTP attempts against the events endpoint",
	})
	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capi_retries_total",
		Help: "Total retries after transport failures or 5xx responses",
	})
	deliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "capi_delivery_duration_seconds",
		Help:    "Duration of full delivery cycles including retries",
		Buckets: prometheus.DefBuckets,
	})
)
