package quicrecovery

import "time"

// RFC 9002 RTT estimation constants (spec §4.1).
const (
	// DefaultInitialRTT seeds smoothed_rtt, rtt_variation, min_rtt and
	// latest_rtt before any sample has been observed.
	DefaultInitialRTT = 333 * time.Millisecond

	// MinRTTFloor is the lower bound every exposed reader of min_rtt
	// clamps to. The internal field may fall below it transiently.
	MinRTTFloor = 1 * time.Millisecond

	// MaxAckDelay bounds how much peer-reported ack delay is subtracted
	// from a raw RTT sample; delays above this are ignored entirely.
	MaxAckDelay = 25 * time.Millisecond

	// TimerGranularity is the assumed system timer granularity used as a
	// floor for 4*rtt_variation in the PTO calculation.
	TimerGranularity = 1 * time.Millisecond
)

// RTTEstimator maintains smoothed RTT, RTT variance, and minimum RTT per
// RFC 9002 §5, and computes the PTO base used by the Loss Detector. It
// holds no reference to any other component (§2 dependency table: A
// depends on nothing).
type RTTEstimator struct {
	smoothedRTT  time.Duration
	rttVariation time.Duration
	minRTT       time.Duration
	latestRTT    time.Duration
	sampleCount  uint64

	initialRTT time.Duration
}

// NewRTTEstimator constructs an RTTEstimator seeded with initialRTT. A
// zero or negative initialRTT falls back to DefaultInitialRTT.
func NewRTTEstimator(initialRTT time.Duration) *RTTEstimator {
	if initialRTT <= 0 {
		initialRTT = DefaultInitialRTT
	}
	e := &RTTEstimator{initialRTT: initialRTT}
	e.reset()
	return e
}

func (e *RTTEstimator) reset() {
	e.smoothedRTT = e.initialRTT
	e.rttVariation = e.initialRTT / 2
	e.minRTT = e.initialRTT
	e.latestRTT = e.initialRTT
	e.sampleCount = 0
}

// Reset returns every field to its construction default (spec §4.1
// "reset").
func (e *RTTEstimator) Reset() {
	e.reset()
}

// UpdateRTT folds a new RTT sample into the estimator (spec §4.1
// "update_rtt"). sample must be strictly positive. ackDelay is the
// peer-reported ack delay; values outside (0, MaxAckDelay] are ignored
// per RFC 9002 — not clamped, ignored entirely, matching the source's
// documented behavior.
func (e *RTTEstimator) UpdateRTT(sample time.Duration, ackDelay time.Duration) error {
	if sample <= 0 {
		return wrapErr("RTTEstimator", "UpdateRTT", -1, ErrInvalidRttSample)
	}

	e.latestRTT = sample
	if sample < e.minRTT {
		e.minRTT = sample
	}

	adjusted := sample
	if ackDelay > 0 && ackDelay <= MaxAckDelay {
		adjusted = sample - ackDelay
		if adjusted < e.minRTT {
			adjusted = e.minRTT
		}
	}

	if e.sampleCount == 0 {
		e.smoothedRTT = adjusted
		e.rttVariation = adjusted / 2
	} else {
		diff := e.smoothedRTT - adjusted
		if diff < 0 {
			diff = -diff
		}
		e.rttVariation = (3*e.rttVariation + diff) / 4
		e.smoothedRTT = (7*e.smoothedRTT + adjusted) / 8
	}
	e.sampleCount++
	return nil
}

// CalculatePTO computes the probe timeout for the given pto_count (spec
// §4.1 "calculate_pto"). ptoCount must be >= 0.
func (e *RTTEstimator) CalculatePTO(ptoCount int) (time.Duration, error) {
	if ptoCount < 0 {
		return 0, wrapErr("RTTEstimator", "CalculatePTO", -1, ErrInvalidPtoCount)
	}
	variationFloor := 4 * e.rttVariation
	if variationFloor < TimerGranularity {
		variationFloor = TimerGranularity
	}
	base := e.smoothedRTT + variationFloor + MaxAckDelay
	return base << uint(ptoCount), nil
}

// SmoothedRTT returns the current smoothed RTT estimate.
func (e *RTTEstimator) SmoothedRTT() time.Duration { return e.smoothedRTT }

// LatestRTT returns the most recent raw RTT sample folded in.
func (e *RTTEstimator) LatestRTT() time.Duration { return e.latestRTT }

// RTTVariation returns the current RTT variance estimate.
func (e *RTTEstimator) RTTVariation() time.Duration { return e.rttVariation }

// MinRTT returns the observed minimum RTT, clamped to MinRTTFloor. The
// internal field may be below the floor; every exposed reader clamps
// (spec §4.1).
func (e *RTTEstimator) MinRTT() time.Duration {
	if e.minRTT < MinRTTFloor {
		return MinRTTFloor
	}
	return e.minRTT
}

// SampleCount returns the number of samples folded into the estimator.
func (e *RTTEstimator) SampleCount() uint64 { return e.sampleCount }
