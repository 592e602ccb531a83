//go:build prometheus

package quicrecovery

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveMetricsMonotonicCounters(t *testing.T) {
	var s Stats
	s.RTT.Smoothed = 100 * time.Millisecond
	s.PacketTracker.Outstanding = 3
	s.LossDetection.PTOCount = 1
	s.LossDetection.PacketsLost = 4
	s.Retransmission.TotalRetransmissions = 2

	ObserveMetrics(s)

	if got := testutil.ToFloat64(packetsLostTotal); got != 4 {
		t.Errorf("packetsLostTotal = %v, want 4", got)
	}
	if got := testutil.ToFloat64(retransmissionsTotal); got != 2 {
		t.Errorf("retransmissionsTotal = %v, want 2", got)
	}

	// A second observation with the same cumulative counts must not add
	// again — counters track the delta since the last observation.
	ObserveMetrics(s)
	if got := testutil.ToFloat64(packetsLostTotal); got != 4 {
		t.Errorf("packetsLostTotal after repeat observation = %v, want 4 (no double count)", got)
	}
}
