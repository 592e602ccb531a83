//go:build prometheus

package quicrecovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus exposition for a Recovery facade's stats, following the
// same //go:build prometheus gating the teacher uses for its buffer
// pool metrics: zero footprint unless the build tag is set.
var (
	smoothedRTTGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quicrecovery",
		Name:      "smoothed_rtt_ms",
		Help:      "Current smoothed RTT estimate in milliseconds.",
	})

	outstandingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quicrecovery",
		Name:      "outstanding_packets",
		Help:      "In-flight, ack-eliciting packets awaiting acknowledgment or loss.",
	})

	ptoCountGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quicrecovery",
		Name:      "pto_count",
		Help:      "Consecutive PTO firings since the last successful ACK.",
	})

	packetsLostTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quicrecovery",
		Name:      "packets_lost_total",
		Help:      "Cumulative count of packets marked lost.",
	})

	retransmissionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quicrecovery",
		Name:      "retransmissions_total",
		Help:      "Cumulative count of registered retransmission attempts.",
	})

	lastPacketsLost     uint64
	lastRetransmissions uint64
)

// ObserveMetrics reads a Stats snapshot into the package's Prometheus
// collectors. Counters only ever move forward, so the delta since the
// last observation is added rather than the absolute value re-set.
func ObserveMetrics(s Stats) {
	smoothedRTTGauge.Set(durationMillis(s.RTT.Smoothed))
	outstandingGauge.Set(float64(s.PacketTracker.Outstanding))
	ptoCountGauge.Set(float64(s.LossDetection.PTOCount))

	if s.LossDetection.PacketsLost > lastPacketsLost {
		packetsLostTotal.Add(float64(s.LossDetection.PacketsLost - lastPacketsLost))
		lastPacketsLost = s.LossDetection.PacketsLost
	}
	if s.Retransmission.TotalRetransmissions > lastRetransmissions {
		retransmissionsTotal.Add(float64(s.Retransmission.TotalRetransmissions - lastRetransmissions))
		lastRetransmissions = s.Retransmission.TotalRetransmissions
	}
}
