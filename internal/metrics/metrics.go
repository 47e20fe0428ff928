package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var InboundTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "relay_inbound_total",
	Help: "Inbound source messages by ingest outcome",
}, []string{"outcome"})

var TransformTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "relay_transform_total",
	Help: "Content transforms by mode and result",
}, []string{"mode", "result"})

var DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "relay_deliveries_total",
	Help: "Delivery attempts to the target chat by content kind and result",
}, []string{"kind", "result"})

var SchedulerPassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "relay_scheduler_passes_total",
	Help: "Scheduler passes by state",
}, []string{"state"})

var QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "relay_queue_depth",
	Help: "Number of items waiting in the publish queue",
})

var WorkerPoolQueued = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "relay_worker_pool_queued",
	Help: "Inbound updates waiting for a worker",
})
