package quicrecovery

import (
	"math"
	"time"
)

// Retransmission Manager constants (spec §4.5).
const (
	// MaxRetransmissions caps the per-packet retransmission attempt
	// counter. Once reached, the packet is dropped from scheduling.
	MaxRetransmissions = 5

	// BackoffBase is the exponential backoff multiplier applied per
	// attempt.
	BackoffBase = 2.0
)

// RetxRecord pairs a lost/probe packet with its retransmission
// bookkeeping, returned by GetPacketsForRetransmission and OnPTOTimeout.
type RetxRecord struct {
	PacketNumber        uint64
	OriginalPayload     Payload
	RetransmissionCount int
	BackoffMultiplier   float64
}

// retxState is the per-packet retransmission bookkeeping kept by the
// Retransmission Manager (spec §3 "Retransmission state").
type retxState struct {
	attempts    int
	lastAttempt Millis
}

// RetransmissionManager maps lost and probe packets to retransmission
// records, applies exponential backoff, and tracks rate statistics. It
// depends on the RTT Estimator, Packet Tracker, Loss Detector, and ACK
// Manager (spec §2).
type RetransmissionManager struct {
	rtt     *RTTEstimator
	tracker *PacketTracker
	loss    *LossDetector
	ackMgr  *AckManager

	attempts map[uint64]*retxState

	totalRetransmissions uint64

	logger logEntry
}

// logEntry is the minimal subset of *logrus.Entry the manager needs,
// kept as an interface so tests can substitute a no-op.
type logEntry interface {
	Warnf(format string, args ...any)
}

// NewRetransmissionManager constructs a Retransmission Manager over the
// given components.
func NewRetransmissionManager(rtt *RTTEstimator, tracker *PacketTracker, loss *LossDetector, ackMgr *AckManager) *RetransmissionManager {
	return &RetransmissionManager{
		rtt:      rtt,
		tracker:  tracker,
		loss:     loss,
		ackMgr:   ackMgr,
		attempts: make(map[uint64]*retxState),
		logger:   defaultLogger,
	}
}

// SetLogger overrides the manager's logger (used by the Recovery
// Facade's WithLogger option).
func (m *RetransmissionManager) SetLogger(l logEntry) {
	if l != nil {
		m.logger = l
	}
}

// OnAckReceived folds an ACK frame into the tracker, updates the RTT
// estimator from frame.LargestAcked when that packet is newly acked
// (no sample is taken otherwise), resets the loss
// detector's PTO count on any progress, and registers a retransmission
// attempt for every packet the loss pass finds (spec §4.5
// "on_ack_received").
func (m *RetransmissionManager) OnAckReceived(frame *AckFrame, ackTime Millis) AckOutcome {
	// The largest-acked packet's record is looked up before folding the
	// ACK in; OnAckReceived only transitions its status and leaves the
	// record (and its SentTime) in place until an explicit cleanup.
	largestAckedSent, haveLargestAckedSent := m.tracker.GetSentPacket(frame.LargestAcked)

	outcome := m.tracker.OnAckReceived(frame.Ranges, ackTime)
	if len(outcome.NewlyAcked) == 0 {
		return outcome
	}

	if haveLargestAckedSent {
		for _, n := range outcome.NewlyAcked {
			if n == frame.LargestAcked {
				sample := ackTime.Sub(largestAckedSent.SentTime)
				ackDelay := time.Duration(frame.AckDelayMicros) * time.Microsecond
				_ = m.rtt.UpdateRTT(sample, ackDelay)
				break
			}
		}
	}

	m.loss.OnAckReceived()
	lost, _ := m.loss.DetectLostPackets(ackTime)
	for _, n := range lost {
		m.registerAttempt(n, ackTime)
	}

	return outcome
}

// registerAttempt increments the retransmission attempt counter for a
// packet, capped at MaxRetransmissions; once the cap is reached the
// packet is dropped from scheduling (no further attempts are recorded).
func (m *RetransmissionManager) registerAttempt(n uint64, now Millis) {
	st, ok := m.attempts[n]
	if !ok {
		st = &retxState{}
		m.attempts[n] = st
	}
	if st.attempts >= MaxRetransmissions {
		m.logger.Warnf("packet %d dropped from retransmission scheduling: attempt cap reached", n)
		return
	}
	st.attempts++
	st.lastAttempt = now
	m.totalRetransmissions++
}

// OnPTOTimeout delegates to the Loss Detector's OnLossDetectionTimeout
// and, when the result is a PTO probe, records a retransmission attempt
// for each probe packet (spec §4.5 "on_pto_timeout").
func (m *RetransmissionManager) OnPTOTimeout(now Millis) (LossAction, []RetxRecord) {
	action := m.loss.OnLossDetectionTimeout(now)
	if action.Kind != LossActionPTOProbe {
		return action, nil
	}

	records := make([]RetxRecord, 0, len(action.Probes))
	for _, probe := range action.Probes {
		m.registerAttempt(probe.Number, now)
		st := m.attempts[probe.Number]
		records = append(records, RetxRecord{
			PacketNumber:        probe.Number,
			OriginalPayload:     probe.Payload,
			RetransmissionCount: st.attempts,
		})
	}
	return action, records
}

// GetPacketsForRetransmission returns every lost packet whose attempt
// counter has not yet reached MaxRetransmissions, with the backoff
// multiplier for its next attempt attached (spec §4.5
// "get_packets_for_retransmission").
func (m *RetransmissionManager) GetPacketsForRetransmission() []RetxRecord {
	var out []RetxRecord
	for _, rec := range m.tracker.GetPacketsForRetransmission() {
		st, ok := m.attempts[rec.Number]
		attempts := 0
		if ok {
			attempts = st.attempts
		}
		if attempts >= MaxRetransmissions {
			continue
		}
		out = append(out, RetxRecord{
			PacketNumber:        rec.Number,
			OriginalPayload:     rec.Payload,
			RetransmissionCount: attempts,
			BackoffMultiplier:   math.Pow(BackoffBase, float64(attempts)),
		})
	}
	return out
}

// CalculateRetransmissionDelay returns smoothed_rtt * BackoffBase^attempt
// (spec §4.5 "calculate_retransmission_delay"). Negative attempt counts
// are clamped to zero so the result is always positive, resolving the
// ambiguity noted in spec §9 explicitly rather than relying on implicit
// float semantics.
func (m *RetransmissionManager) CalculateRetransmissionDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	multiplier := math.Pow(BackoffBase, float64(attempt))
	return time.Duration(float64(m.rtt.SmoothedRTT()) * multiplier)
}

// IsInRetransmissionStorm reports whether the ratio of total
// retransmissions to packets sent exceeds 0.5 (spec §4.5
// "is_in_retransmission_storm").
func (m *RetransmissionManager) IsInRetransmissionStorm() bool {
	sent := m.tracker.LargestSent() + 1
	if sent <= 0 {
		return false
	}
	return float64(m.totalRetransmissions)/float64(sent) > 0.5
}

// TotalRetransmissions returns the running count of registered
// retransmission attempts across all packets.
func (m *RetransmissionManager) TotalRetransmissions() uint64 {
	return m.totalRetransmissions
}

// PurgeOldAttempts removes retransmission bookkeeping for packets whose
// last attempt predates cutoff, mirroring the ACK Manager's
// CleanupOldRecords boundary (strictly-less-than).
func (m *RetransmissionManager) PurgeOldAttempts(cutoff Millis) {
	for n, st := range m.attempts {
		if st.lastAttempt < cutoff {
			delete(m.attempts, n)
		}
	}
}
