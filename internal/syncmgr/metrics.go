package syncmgr

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	envelopesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reactor_sync_envelopes_sent_total",
		Help: "Envelopes delivered to remotes",
	}, []string{"remote"})

	operationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reactor_sync_operations_sent_total",
		Help: "Operations delivered to remotes",
	}, []string{"remote"})

	envelopesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reactor_sync_envelopes_received_total",
		Help: "Envelopes received from remotes, by outcome",
	}, []string{"remote", "status"})

	activeRemotes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reactor_sync_active_remotes",
		Help: "Remotes with an open channel",
	})
)
