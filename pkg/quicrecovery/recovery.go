package quicrecovery

import "time"

// ActionKind discriminates an Action returned by OnTimeout.
type ActionKind int

const (
	ActionRetransmitLost ActionKind = iota
	ActionPTOProbe
	ActionSendAck
)

// Action is one item of the list OnTimeout returns, re-architected as a
// tagged union (spec §9) rather than the source's heterogeneous
// dictionary.
type Action struct {
	Kind    ActionKind
	Packets []uint64     // ActionRetransmitLost
	Probes  []RetxRecord // ActionPTOProbe
	Frame   *AckFrame    // ActionSendAck
}

// CongestionAdvice is the coarse health signal exposed by the facade.
type CongestionAdvice string

const (
	AdviceNormal               CongestionAdvice = "normal"
	AdviceHighLossRate         CongestionAdvice = "high_loss_rate"
	AdviceRetransmissionStorm  CongestionAdvice = "retransmission_storm"
	AdvicePersistentCongestion CongestionAdvice = "persistent_congestion"
)

// Stats is the nested statistics snapshot returned by Recovery.Stats.
type Stats struct {
	RTT struct {
		Smoothed    time.Duration
		Latest      time.Duration
		Min         time.Duration
		Variation   time.Duration
		SampleCount uint64
	}
	PacketTracker struct {
		LargestSent    int64
		LargestAcked   int64
		Outstanding    uint64
		HasUnacked     bool
		TrackedRecords int
	}
	LossDetection struct {
		PTOCount             int
		PersistentCongestion bool
		PacketsLost          uint64
	}
	AckManager struct {
		LargestReceived int64
		AckPending      bool
	}
	Retransmission struct {
		TotalRetransmissions uint64
		Storm                bool
	}
	NextTimeout Millis
}

// Recovery is the single entry point sequencing the RTT Estimator,
// Packet Tracker, Loss Detector, ACK Manager, and Retransmission
// Manager (spec §4.6). It is the only component every caller needs to
// hold a reference to; A-D and F are assembled internally in the
// dependency order of spec §2.
type Recovery struct {
	cfg recoveryConfig

	rtt        *RTTEstimator
	tracker    *PacketTracker
	loss       *LossDetector
	ackMgr     *AckManager
	retransmit *RetransmissionManager

	nextTimeout Millis
}

// New constructs a Recovery facade. With no options, initial_rtt
// defaults to DefaultInitialRTT (333ms) per spec §6.
func New(opts ...Option) *Recovery {
	cfg := defaultRecoveryConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	rtt := NewRTTEstimator(cfg.initialRTT)
	tracker := NewPacketTracker()
	loss := NewLossDetector(rtt, tracker)
	ackMgr := NewAckManager()
	retransmit := NewRetransmissionManager(rtt, tracker, loss, ackMgr)
	retransmit.SetLogger(cfg.logger)

	return &Recovery{
		cfg:        cfg,
		rtt:        rtt,
		tracker:    tracker,
		loss:       loss,
		ackMgr:     ackMgr,
		retransmit: retransmit,
	}
}

// OnPacketSent records a newly transmitted packet and recomputes the
// next loss-detection deadline.
func (r *Recovery) OnPacketSent(number int64, payload Payload, sentTime Millis, ackEliciting bool) error {
	if err := r.tracker.OnPacketSent(number, payload, sentTime, ackEliciting); err != nil {
		return err
	}
	r.nextTimeout = r.loss.CalculateLossDetectionTimeout(sentTime)
	return nil
}

// OnPacketReceived records receipt of an inbound data packet.
func (r *Recovery) OnPacketReceived(number int64, recvTime Millis, ackEliciting bool) error {
	return r.ackMgr.OnPacketReceived(number, recvTime, ackEliciting)
}

// OnAckReceived folds an inbound ACK frame through the Retransmission
// Manager (which in turn drives the Packet Tracker, RTT Estimator, and
// Loss Detector) and recomputes the next loss-detection deadline.
func (r *Recovery) OnAckReceived(frame *AckFrame, ackTime Millis) AckOutcome {
	outcome := r.retransmit.OnAckReceived(frame, ackTime)
	r.nextTimeout = r.loss.CalculateLossDetectionTimeout(ackTime)
	if r.loss.IsInPersistentCongestion() {
		r.cfg.logger.Warnf("connection entered persistent congestion after ack at %.0fms", float64(ackTime))
	}
	return outcome
}

// ShouldSendAckImmediately reports whether the ACK Manager has reached
// its frequency or delay threshold.
func (r *Recovery) ShouldSendAckImmediately(now Millis) bool {
	return r.ackMgr.ShouldSendAckImmediately(now)
}

// GenerateAckFrame builds and returns the pending ACK frame, or nil if
// nothing is owed.
func (r *Recovery) GenerateAckFrame(now Millis) *AckFrame {
	return r.ackMgr.GenerateAckFrame(now)
}

// OnTimeout drives the timer-fire path of spec §4.6: loss/PTO detection
// first, then a pending ACK check, in that order.
func (r *Recovery) OnTimeout(now Millis) []Action {
	var actions []Action

	if r.nextTimeout > 0 && now >= r.nextTimeout {
		lossAction, probes := r.retransmit.OnPTOTimeout(now)
		switch lossAction.Kind {
		case LossActionDetection:
			actions = append(actions, Action{Kind: ActionRetransmitLost, Packets: lossAction.Lost})
		case LossActionPTOProbe:
			actions = append(actions, Action{Kind: ActionPTOProbe, Probes: probes})
			if r.loss.IsInPersistentCongestion() {
				r.cfg.logger.Warnf("pto_count reached %d: persistent congestion", r.loss.PTOCount())
			}
		}
		r.nextTimeout = r.loss.CalculateLossDetectionTimeout(now)
	}

	if r.ackMgr.AckPending() && r.ackMgr.AckTimeout() > 0 && now >= r.ackMgr.AckTimeout() {
		actions = append(actions, Action{Kind: ActionSendAck, Frame: r.ackMgr.GenerateAckFrame(now)})
	}

	return actions
}

// GetPacketsForRetransmission returns every lost packet still eligible
// for retransmission, with its backoff multiplier attached.
func (r *Recovery) GetPacketsForRetransmission() []RetxRecord {
	return r.retransmit.GetPacketsForRetransmission()
}

// NextTimeout returns the currently armed loss-detection deadline (0 if
// disarmed).
func (r *Recovery) NextTimeout() Millis { return r.nextTimeout }

// Cleanup purges acknowledged sent-packet records, received-packet
// records older than the configured cleanup horizon, and stale
// retransmission timestamps (spec §4.6 "cleanup").
func (r *Recovery) Cleanup(now Millis) {
	r.tracker.CleanupAckedPackets()
	cutoff := now - Millis(r.cfg.cleanupMaxAge.Seconds()*1000)
	r.ackMgr.CleanupOldRecords(cutoff)
	r.retransmit.PurgeOldAttempts(cutoff)
}

// Reset returns every component to its construction defaults.
func (r *Recovery) Reset() {
	r.rtt.Reset()
	r.tracker = NewPacketTracker()
	r.loss = NewLossDetector(r.rtt, r.tracker)
	r.ackMgr = NewAckManager()
	r.retransmit = NewRetransmissionManager(r.rtt, r.tracker, r.loss, r.ackMgr)
	r.retransmit.SetLogger(r.cfg.logger)
	r.nextTimeout = 0
}

// CongestionAdvice summarizes connection health as a coarse signal
// (spec §4.6 "congestion_advice"), checked in priority order:
// persistent congestion, then retransmission storm, then a raw
// high-loss-rate ratio, else normal.
func (r *Recovery) CongestionAdvice() CongestionAdvice {
	switch {
	case r.loss.IsInPersistentCongestion():
		return AdvicePersistentCongestion
	case r.retransmit.IsInRetransmissionStorm():
		return AdviceRetransmissionStorm
	case r.retransmissionRate() > 0.1:
		return AdviceHighLossRate
	default:
		return AdviceNormal
	}
}

func (r *Recovery) retransmissionRate() float64 {
	sent := r.tracker.LargestSent() + 1
	if sent <= 0 {
		return 0
	}
	return float64(r.retransmit.TotalRetransmissions()) / float64(sent)
}

// IsConnectionHealthy reports whether the connection is in the normal
// advice state.
func (r *Recovery) IsConnectionHealthy() bool {
	return r.CongestionAdvice() == AdviceNormal
}

// Stats returns a snapshot of every component's counters.
func (r *Recovery) Stats() Stats {
	var s Stats
	s.RTT.Smoothed = r.rtt.SmoothedRTT()
	s.RTT.Latest = r.rtt.LatestRTT()
	s.RTT.Min = r.rtt.MinRTT()
	s.RTT.Variation = r.rtt.RTTVariation()
	s.RTT.SampleCount = r.rtt.SampleCount()

	s.PacketTracker.LargestSent = r.tracker.LargestSent()
	s.PacketTracker.LargestAcked = r.tracker.LargestAcked()
	s.PacketTracker.Outstanding = r.tracker.Outstanding()
	s.PacketTracker.HasUnacked = r.tracker.HasUnacked()
	s.PacketTracker.TrackedRecords = len(r.tracker.GetSentPackets())

	s.LossDetection.PTOCount = r.loss.PTOCount()
	s.LossDetection.PersistentCongestion = r.loss.IsInPersistentCongestion()
	s.LossDetection.PacketsLost = r.loss.PacketsLost()

	s.AckManager.LargestReceived = r.ackMgr.LargestReceived()
	s.AckManager.AckPending = r.ackMgr.AckPending()

	s.Retransmission.TotalRetransmissions = r.retransmit.TotalRetransmissions()
	s.Retransmission.Storm = r.retransmit.IsInRetransmissionStorm()

	s.NextTimeout = r.nextTimeout
	return s
}
