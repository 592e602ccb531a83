package quicrecovery

import (
	"io"

	"github.com/sirupsen/logrus"
)

// defaultLogger is shared by every Recovery instance that does not supply
// its own logger via WithLogger. Its output is discarded, so the core is
// silent unless the caller passes its own entry, mirroring how the
// registry context embeds a *logrus.Entry that defaults to a no-op-ish
// base logger.
var defaultLogger = newDefaultLogger()

func newDefaultLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l.WithField("component", "quicrecovery")
}

// log events are restricted to a few warnings: persistent congestion
// (checked after each ACK and on each PTO firing) and a packet dropped
// from retransmission scheduling once its attempt cap is reached. Other
// per-packet and per-ACK events are not logged here — that volume
// belongs on the metrics path (see metrics.go), not the log path.
