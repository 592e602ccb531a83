package quicrecovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRetransmitStack() (*RTTEstimator, *PacketTracker, *LossDetector, *AckManager, *RetransmissionManager) {
	rtt := NewRTTEstimator(0)
	tracker := NewPacketTracker()
	loss := NewLossDetector(rtt, tracker)
	ackMgr := NewAckManager()
	mgr := NewRetransmissionManager(rtt, tracker, loss, ackMgr)
	return rtt, tracker, loss, ackMgr, mgr
}

func TestRetransmissionManagerOnAckReceivedUpdatesRTT(t *testing.T) {
	rtt, tracker, _, _, mgr := newTestRetransmitStack()

	require.NoError(t, tracker.OnPacketSent(1, nil, 1000, true))

	frame := &AckFrame{LargestAcked: 1, Ranges: []AckRange{{Start: 1, End: 1}}}
	outcome := mgr.OnAckReceived(frame, 1100)

	require.Len(t, outcome.NewlyAcked, 1)
	assert.Equal(t, uint64(1), outcome.NewlyAcked[0])
	assert.Equal(t, uint64(1), rtt.SampleCount())
	assert.InDelta(t, 100, rtt.LatestRTT().Milliseconds(), 1)
}

func TestRetransmissionManagerRegistersAttemptsOnLoss(t *testing.T) {
	_, tracker, _, _, mgr := newTestRetransmitStack()

	for i := uint64(1); i <= 10; i++ {
		require.NoError(t, tracker.OnPacketSent(int64(i), nil, Millis(1000+i), true))
	}

	frame := &AckFrame{LargestAcked: 10, Ranges: []AckRange{{Start: 10, End: 10}}}
	mgr.OnAckReceived(frame, 1011)

	records := mgr.GetPacketsForRetransmission()
	assert.NotEmpty(t, records)
	for _, rec := range records {
		assert.Equal(t, 1, rec.RetransmissionCount)
		assert.Equal(t, float64(2), rec.BackoffMultiplier)
	}
}

func TestRetransmissionManagerAttemptCapStopsScheduling(t *testing.T) {
	_, tracker, loss, _, mgr := newTestRetransmitStack()

	require.NoError(t, tracker.OnPacketSent(1, nil, 0, true))
	tracker.OnPacketLost(1)

	for i := 0; i < MaxRetransmissions+2; i++ {
		mgr.registerAttempt(1, Millis(i))
	}
	_ = loss

	records := mgr.GetPacketsForRetransmission()
	assert.Empty(t, records, "packet should no longer be scheduled once MaxRetransmissions is reached")
}

func TestRetransmissionManagerCalculateRetransmissionDelay(t *testing.T) {
	rtt, _, _, _, mgr := newTestRetransmitStack()
	require.NoError(t, rtt.UpdateRTT(100*time.Millisecond, 0))

	delay0 := mgr.CalculateRetransmissionDelay(0)
	delay1 := mgr.CalculateRetransmissionDelay(1)
	delayNeg := mgr.CalculateRetransmissionDelay(-3)

	assert.Equal(t, delay0, delayNeg, "negative attempt counts should clamp to zero")
	assert.Equal(t, delay0*2, delay1, "backoff should double per attempt")
}

func TestRetransmissionManagerStormDetection(t *testing.T) {
	_, tracker, _, _, mgr := newTestRetransmitStack()

	require.NoError(t, tracker.OnPacketSent(1, nil, 0, true))

	for i := 0; i < 10; i++ {
		mgr.registerAttempt(1, Millis(i))
	}

	assert.True(t, mgr.IsInRetransmissionStorm())
}

func TestRetransmissionManagerPurgeOldAttempts(t *testing.T) {
	_, tracker, _, _, mgr := newTestRetransmitStack()
	require.NoError(t, tracker.OnPacketSent(1, nil, 0, true))

	mgr.registerAttempt(1, 100)
	mgr.PurgeOldAttempts(200)

	assert.Empty(t, mgr.attempts)
}
