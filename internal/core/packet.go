// Package core defines core data structures with zero external dependencies.
package core

import "time"

// CaptureRecord is one packet read from the capture container.
type CaptureRecord struct {
	Number     uint64    // 1-based position in the capture
	Timestamp  time.Time // Not used by the protocol logic
	CaptureLen uint32    // Bytes actually captured
	OrigLen    uint32    // Frame length on the wire
	Data       []byte    // Raw frame, valid until the next read
}

// Direction is the transfer direction as seen from the host.
type Direction uint8

const (
	FromHost Direction = iota // host -> device
	ToHost                    // device -> host
)

func (d Direction) String() string {
	switch d {
	case ToHost:
		return "to-host"
	case FromHost:
		return "from-host"
	default:
		return "unknown"
	}
}

// Transaction is the decoded bus transfer carried by a CaptureRecord.
type Transaction struct {
	Direction Direction
	Bus       uint16
	Device    uint16
	Endpoint  uint8
	Payload   []byte // Exactly the declared transfer length
}
