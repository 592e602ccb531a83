package quicrecovery

import "time"

// RFC 9002 loss-detection constants (spec §4.3).
const (
	// TimeThreshold multiplies max(latest_rtt, smoothed_rtt) to derive
	// the loss delay (9/8, RFC 9002 §6.1.2).
	TimeThreshold = 9.0 / 8.0

	// MinTimeThreshold floors the computed loss delay.
	MinTimeThreshold = 1 * time.Millisecond

	// PersistentCongestionPTOCount is the pto_count at or above which
	// the connection is considered to be in persistent congestion.
	PersistentCongestionPTOCount = 3
)

// LossAction is the tagged result of a loss-detection timer firing
// (spec §4.3 "on_loss_detection_timeout"), re-architected as a sum type
// rather than the source's ad hoc dictionary-with-a-string-tag.
type LossAction struct {
	Kind   LossActionKind
	Lost   []uint64      // populated when Kind == LossActionDetection
	Probes []*SentPacket // populated when Kind == LossActionPTOProbe
}

// LossActionKind discriminates a LossAction.
type LossActionKind int

const (
	LossActionNone LossActionKind = iota
	LossActionDetection
	LossActionPTOProbe
)

// LossDetector decides which outstanding packets are lost using
// packet-number and time thresholds, and schedules the PTO timer. It
// depends on the RTT Estimator and Packet Tracker (spec §2).
type LossDetector struct {
	rtt     *RTTEstimator
	tracker *PacketTracker

	ptoCount    int
	lossTime    Millis // 0 means "no pending time-based loss"
	packetsLost uint64
}

// NewLossDetector constructs a Loss Detector over the given RTT
// Estimator and Packet Tracker.
func NewLossDetector(rtt *RTTEstimator, tracker *PacketTracker) *LossDetector {
	return &LossDetector{rtt: rtt, tracker: tracker}
}

// lossDelay is TIME_THRESHOLD * max(latest_rtt, smoothed_rtt), floored
// at MinTimeThreshold.
func (d *LossDetector) lossDelay() time.Duration {
	rtt := d.rtt.LatestRTT()
	if d.rtt.SmoothedRTT() > rtt {
		rtt = d.rtt.SmoothedRTT()
	}
	delay := time.Duration(float64(rtt) * TimeThreshold)
	if delay < MinTimeThreshold {
		delay = MinTimeThreshold
	}
	return delay
}

// DetectLostPackets applies the packet- and time-threshold tests (spec
// §4.3 "detect_lost_packets") and returns the packets just marked lost
// along with the next time-based loss deadline (0 if none is pending).
func (d *LossDetector) DetectLostPackets(now Millis) (lost []uint64, nextLossTime Millis) {
	if d.tracker.LargestAcked() < 0 {
		d.lossTime = 0
		return nil, 0
	}

	lossDelay := d.lossDelay()
	largestAcked := uint64(d.tracker.LargestAcked())

	var earliest Millis
	for _, rec := range d.tracker.GetUnackedPackets() {
		if rec.Status != StatusInFlight {
			continue
		}
		if rec.Number <= largestAcked && (largestAcked-rec.Number) >= PacketThreshold {
			lost = append(lost, rec.Number)
			continue
		}
		if now.Sub(rec.SentTime) >= lossDelay {
			lost = append(lost, rec.Number)
			continue
		}
		expected := rec.SentTime.Add(lossDelay)
		if earliest == 0 || expected < earliest {
			earliest = expected
		}
	}

	sortUint64s(lost)
	for _, n := range lost {
		d.tracker.OnPacketLost(n)
	}
	d.packetsLost += uint64(len(lost))

	d.lossTime = earliest
	return lost, earliest
}

// PacketsLost returns the cumulative count of packets this detector has
// marked lost.
func (d *LossDetector) PacketsLost() uint64 { return d.packetsLost }

// CalculateLossDetectionTimeout computes the next loss-detection
// deadline (spec §4.3 "calculate_loss_detection_timeout"). Returns 0 if
// no timer should be armed.
func (d *LossDetector) CalculateLossDetectionTimeout(now Millis) Millis {
	if d.lossTime > 0 && d.lossTime > now {
		return d.lossTime
	}
	if d.tracker.Outstanding() == 0 {
		return 0
	}
	basePTO, _ := d.rtt.CalculatePTO(d.ptoCount)
	lastSent := d.tracker.TimeOfLastSentAckEliciting()
	if lastSent == 0 {
		return now.Add(basePTO)
	}
	return lastSent.Add(basePTO)
}

// OnLossDetectionTimeout handles the loss-detection timer firing (spec
// §4.3 "on_loss_detection_timeout"). If a time-based loss is due,
// returns a LossActionDetection with the packets just marked lost.
// Otherwise advances into the PTO path: increments pto_count and
// selects up to two oldest in-flight ack-eliciting packets as probes.
func (d *LossDetector) OnLossDetectionTimeout(now Millis) LossAction {
	if d.lossTime > 0 && now >= d.lossTime {
		lost, _ := d.DetectLostPackets(now)
		return LossAction{Kind: LossActionDetection, Lost: lost}
	}

	d.ptoCount++

	probes := d.probeCandidates()
	return LossAction{Kind: LossActionPTOProbe, Probes: probes}
}

// probeCandidates selects up to two oldest in-flight ack-eliciting
// records, sorted by sent_time ascending.
func (d *LossDetector) probeCandidates() []*SentPacket {
	var candidates []*SentPacket
	for _, rec := range d.tracker.GetUnackedPackets() {
		if rec.Status == StatusInFlight && rec.AckEliciting {
			candidates = append(candidates, rec)
		}
	}
	for i := 1; i < len(candidates); i++ {
		v := candidates[i]
		j := i - 1
		for j >= 0 && candidates[j].SentTime > v.SentTime {
			candidates[j+1] = candidates[j]
			j--
		}
		candidates[j+1] = v
	}
	if len(candidates) > 2 {
		candidates = candidates[:2]
	}
	return candidates
}

// OnAckReceived resets pto_count to zero, the progress signal required
// by RFC 9002 after any successful ACK (spec §4.3 "on_ack_received"
// hook).
func (d *LossDetector) OnAckReceived() {
	d.ptoCount = 0
}

// IsInPersistentCongestion reports whether pto_count has reached
// PersistentCongestionPTOCount.
func (d *LossDetector) IsInPersistentCongestion() bool {
	return d.ptoCount >= PersistentCongestionPTOCount
}

// PTOCount returns the current PTO counter.
func (d *LossDetector) PTOCount() int { return d.ptoCount }

// LossTime returns the pending time-based loss deadline (0 if none).
func (d *LossDetector) LossTime() Millis { return d.lossTime }

// Reset returns the detector to its construction defaults.
func (d *LossDetector) Reset() {
	d.ptoCount = 0
	d.lossTime = 0
	d.packetsLost = 0
}
