package quicrecovery

import (
	"time"

	"github.com/sirupsen/logrus"
)

// recoveryConfig holds the resolved construction options for a Recovery
// facade. It is unexported; callers build it through New(...Option).
type recoveryConfig struct {
	initialRTT    time.Duration
	logger        *logrus.Entry
	cleanupMaxAge time.Duration
}

func defaultRecoveryConfig() recoveryConfig {
	return recoveryConfig{
		initialRTT:    DefaultInitialRTT,
		logger:        defaultLogger,
		cleanupMaxAge: 300 * time.Second,
	}
}

// Option configures a Recovery facade at construction time. The shape
// follows the functional-options idiom: a single required default
// (initial RTT) plus optional ambient knobs (logger, cleanup horizon),
// rather than a full builder — the facade only ever takes one mandatory
// argument in the spec it implements.
type Option func(*recoveryConfig)

// WithInitialRTT overrides the default initial RTT estimate
// (DefaultInitialRTT, 333ms per RFC 9002) used to seed the RTT Estimator.
func WithInitialRTT(d time.Duration) Option {
	return func(c *recoveryConfig) {
		if d > 0 {
			c.initialRTT = d
		}
	}
}

// WithLogger attaches a caller-supplied logrus entry for the small set of
// operationally interesting events the core logs (see log.go). A nil
// entry is ignored and the default silent logger is kept.
func WithLogger(entry *logrus.Entry) Option {
	return func(c *recoveryConfig) {
		if entry != nil {
			c.logger = entry
		}
	}
}

// WithCleanupHorizon overrides the 300-second default age used by
// Cleanup to purge acknowledged-received records and stale
// retransmission timestamps.
func WithCleanupHorizon(d time.Duration) Option {
	return func(c *recoveryConfig) {
		if d > 0 {
			c.cleanupMaxAge = d
		}
	}
}
