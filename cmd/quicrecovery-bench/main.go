// Command quicrecovery-bench drives a Recovery facade through a
// scripted YAML trace of send/receive/ack/timeout events and prints the
// resulting statistics. It exists to give the facade's deterministic,
// caller-supplied-clock design (spec §9 "Time injection") a runnable,
// replayable artifact.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/watt-toolkit/quicrecovery/pkg/quicrecovery"
)

// traceEvent is one line of a YAML trace file. Only the fields that the
// event's Type uses are read; the rest are ignored.
type traceEvent struct {
	Type         string                  `yaml:"type"`
	Time         float64                 `yaml:"time"`
	PacketNumber int64                   `yaml:"packet_number,omitempty"`
	Size         int                     `yaml:"size,omitempty"`
	AckEliciting bool                    `yaml:"ack_eliciting,omitempty"`
	LargestAcked uint64                  `yaml:"largest_acked,omitempty"`
	AckDelayUs   uint64                  `yaml:"ack_delay_us,omitempty"`
	Ranges       []quicrecovery.AckRange `yaml:"ranges,omitempty"`
}

type trace struct {
	Events []traceEvent `yaml:"events"`
}

var (
	traceFile  string
	initialRTT int
	verbose    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// rootCmd is the main command for the quicrecovery-bench binary.
var rootCmd = &cobra.Command{
	Use:   "quicrecovery-bench",
	Short: "replay a synthetic QUIC event trace against a Recovery facade",
	Long:  "quicrecovery-bench replays a YAML trace of packet send/receive/ack/timeout events against a quicrecovery.Recovery instance and prints its final statistics.",
	RunE:  runBench,
}

func init() {
	rootCmd.Flags().StringVarP(&traceFile, "trace", "t", "", "path to the YAML trace file (required)")
	rootCmd.Flags().IntVar(&initialRTT, "initial-rtt-ms", 0, "override the initial RTT estimate, in milliseconds (0 keeps the default)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log every action OnTimeout returns")
	_ = rootCmd.MarkFlagRequired("trace")
}

func runBench(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(traceFile)
	if err != nil {
		return fmt.Errorf("reading trace file: %w", err)
	}

	var tr trace
	if err := yaml.Unmarshal(data, &tr); err != nil {
		return fmt.Errorf("parsing trace file: %w", err)
	}

	logger := logrus.NewEntry(logrus.StandardLogger()).WithField("component", "quicrecovery-bench")
	if verbose {
		logger.Logger.SetLevel(logrus.DebugLevel)
	}

	opts := []quicrecovery.Option{quicrecovery.WithLogger(logger)}
	if initialRTT > 0 {
		opts = append(opts, quicrecovery.WithInitialRTT(time.Duration(initialRTT)*time.Millisecond))
	}
	r := quicrecovery.New(opts...)

	for _, ev := range tr.Events {
		now := quicrecovery.Millis(ev.Time)
		if err := applyEvent(r, ev, now, logger); err != nil {
			return fmt.Errorf("applying event %+v: %w", ev, err)
		}
	}

	stats := r.Stats()
	fmt.Printf("events replayed:        %d\n", len(tr.Events))
	fmt.Printf("smoothed_rtt:           %v\n", stats.RTT.Smoothed)
	fmt.Printf("min_rtt:                %v\n", stats.RTT.Min)
	fmt.Printf("rtt_variation:          %v\n", stats.RTT.Variation)
	fmt.Printf("rtt_samples:            %d\n", stats.RTT.SampleCount)
	fmt.Printf("largest_sent:           %d\n", stats.PacketTracker.LargestSent)
	fmt.Printf("largest_acked:          %d\n", stats.PacketTracker.LargestAcked)
	fmt.Printf("outstanding:            %d\n", stats.PacketTracker.Outstanding)
	fmt.Printf("has_unacked:            %t\n", stats.PacketTracker.HasUnacked)
	fmt.Printf("tracked_records:        %d\n", stats.PacketTracker.TrackedRecords)
	fmt.Printf("pto_count:              %d\n", stats.LossDetection.PTOCount)
	fmt.Printf("packets_lost:           %d\n", stats.LossDetection.PacketsLost)
	fmt.Printf("persistent_congestion:  %t\n", stats.LossDetection.PersistentCongestion)
	fmt.Printf("total_retransmissions:  %d\n", stats.Retransmission.TotalRetransmissions)
	fmt.Printf("retransmission_storm:   %t\n", stats.Retransmission.Storm)
	fmt.Printf("congestion_advice:      %s\n", r.CongestionAdvice())
	fmt.Printf("connection_healthy:     %t\n", r.IsConnectionHealthy())
	return nil
}

func applyEvent(r *quicrecovery.Recovery, ev traceEvent, now quicrecovery.Millis, logger *logrus.Entry) error {
	switch ev.Type {
	case "send":
		payload := quicrecovery.BytesPayload(make([]byte, ev.Size))
		return r.OnPacketSent(ev.PacketNumber, payload, now, ev.AckEliciting)
	case "receive":
		return r.OnPacketReceived(ev.PacketNumber, now, ev.AckEliciting)
	case "ack":
		frame := &quicrecovery.AckFrame{
			LargestAcked:   ev.LargestAcked,
			AckDelayMicros: ev.AckDelayUs,
			Ranges:         ev.Ranges,
		}
		r.OnAckReceived(frame, now)
		return nil
	case "timeout":
		for _, action := range r.OnTimeout(now) {
			if verbose {
				logger.WithField("kind", action.Kind).Debug("timeout action")
			}
		}
		return nil
	case "cleanup":
		r.Cleanup(now)
		return nil
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
}

