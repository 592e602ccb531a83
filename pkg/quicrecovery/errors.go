package quicrecovery

import (
	"errors"
	"fmt"
)

// Sentinel errors for the three fail-fast conditions named by RFC 9002:
// a caller passing a non-positive RTT sample, a negative PTO count, or a
// negative packet number. All other unexpected input (duplicate ACKs,
// unknown packet numbers, repeated loss marking) is a documented no-op,
// not an error.
var (
	// ErrInvalidRttSample is returned by (*RTTEstimator).UpdateRTT when
	// sample <= 0.
	ErrInvalidRttSample = errors.New("quicrecovery: rtt sample must be > 0")

	// ErrInvalidPtoCount is returned by (*RTTEstimator).CalculatePTO when
	// ptoCount < 0.
	ErrInvalidPtoCount = errors.New("quicrecovery: pto count must be >= 0")

	// ErrInvalidPacketNumber is returned by OnPacketSent / OnPacketReceived
	// when the packet number is negative.
	ErrInvalidPacketNumber = errors.New("quicrecovery: packet number must be >= 0")
)

// RecoveryError wraps a sentinel error with the component and operation
// that produced it, following the context-wrapping shape of a CacheError
// in a multi-layer cache: component name, operation name, the packet
// number involved (-1 if not applicable), and the underlying sentinel.
type RecoveryError struct {
	Component string
	Op        string
	PacketNum int64
	Err       error
}

func (e *RecoveryError) Error() string {
	if e.PacketNum >= 0 {
		return fmt.Sprintf("quicrecovery: %s.%s(packet=%d): %v", e.Component, e.Op, e.PacketNum, e.Err)
	}
	return fmt.Sprintf("quicrecovery: %s.%s: %v", e.Component, e.Op, e.Err)
}

func (e *RecoveryError) Unwrap() error {
	return e.Err
}

func wrapErr(component, op string, packetNum int64, err error) error {
	if err == nil {
		return nil
	}
	return &RecoveryError{Component: component, Op: op, PacketNum: packetNum, Err: err}
}
