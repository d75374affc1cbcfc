package pipeline

import (
	"log/slog"

	"firestige.xyz/sahara/internal/core"
)

// Metrics contains per-run counters. The pipeline is single-threaded, so
// plain integers suffice.
type Metrics struct {
	Received       uint64 // capture records read
	Filtered       uint64 // transfers of other devices
	Skipped        uint64 // zero-length transfers
	ToHost         uint64
	FromHost       uint64
	Ignored        uint64 // transfers that did not affect the session
	Reads          uint64
	DataTransfers  uint64
	DecodeErrors   uint64
	ProtocolErrors uint64
	BytesWritten   uint64
	BytesZeroed    uint64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Reset resets all counters to zero.
func (m *Metrics) Reset() {
	*m = Metrics{}
}

func (m *Metrics) countDirection(d core.Direction) {
	if d == core.ToHost {
		m.ToHost++
	} else {
		m.FromHost++
	}
}

// LogValue implements slog.LogValuer.
func (m *Metrics) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("packets", m.Received),
		slog.Uint64("filtered", m.Filtered),
		slog.Uint64("skipped", m.Skipped),
		slog.Uint64("to_host", m.ToHost),
		slog.Uint64("from_host", m.FromHost),
		slog.Uint64("reads", m.Reads),
		slog.Uint64("bytes_written", m.BytesWritten),
		slog.Uint64("bytes_zeroed", m.BytesZeroed),
	)
}
