package sahara

import (
	"fmt"

	"firestige.xyz/sahara/internal/core"
)

// State is the session state.
type State uint8

const (
	Scanning State = iota
	Idle
	AwaitingData
	Ended
)

func (s State) String() string {
	switch s {
	case Scanning:
		return "scanning"
	case Idle:
		return "idle"
	case AwaitingData:
		return "awaiting-data"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// Sink receives the writes a session produces.
type Sink interface {
	// ZeroFillTo writes zeros from the fill cursor up to offset.
	ZeroFillTo(offset uint32) error
	// Seek positions the next Write at offset.
	Seek(offset uint32) error
	// Write writes p at the current position.
	Write(p []byte) error
}

// EventKind classifies what a step did.
type EventKind uint8

const (
	EventIgnored EventKind = iota
	EventHello
	EventHelloResponse
	EventRead
	EventData
	EventEnd
)

func (k EventKind) String() string {
	switch k {
	case EventHello:
		return "hello"
	case EventHelloResponse:
		return "hello-response"
	case EventRead:
		return "read"
	case EventData:
		return "data"
	case EventEnd:
		return "end"
	default:
		return "ignored"
	}
}

// Event describes the outcome of one step. Offset and Length are set for
// EventRead and EventData.
type Event struct {
	Kind   EventKind
	Offset uint32
	Length uint32
}

// Machine follows one Sahara session. At most one read request is
// outstanding at a time. Not safe for concurrent use.
type Machine struct {
	state  State
	offset uint32
	length uint32
	sink   Sink
}

// NewMachine creates a machine in the Scanning state writing to sink.
func NewMachine(sink Sink) *Machine {
	return &Machine{state: Scanning, sink: sink}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Done reports whether the session reached end of image.
func (m *Machine) Done() bool { return m.state == Ended }

// Pending returns the outstanding read request, if any.
func (m *Machine) Pending() (offset, length uint32, ok bool) {
	if m.state != AwaitingData {
		return 0, 0, false
	}
	return m.offset, m.length, true
}

// Step consumes one transaction. Transactions without payload are ignored.
// On error the state is left unchanged.
func (m *Machine) Step(tx core.Transaction) (Event, error) {
	if len(tx.Payload) == 0 {
		return Event{}, nil
	}

	switch m.state {
	case Scanning:
		return m.scan(tx)
	case Idle:
		return m.idle(tx)
	case AwaitingData:
		return m.awaitData(tx)
	default:
		return Event{}, nil
	}
}

func (m *Machine) scan(tx core.Transaction) (Event, error) {
	if tx.Direction != core.ToHost {
		return Event{}, nil
	}
	if _, ok := MatchHello(tx.Payload); !ok {
		return Event{}, nil
	}
	m.state = Idle
	return Event{Kind: EventHello}, nil
}

func (m *Machine) idle(tx core.Transaction) (Event, error) {
	if tx.Direction != core.ToHost {
		return Event{}, nil
	}

	cmd, err := DecodeCommand(tx.Payload)
	if err != nil {
		return Event{}, err
	}

	switch cmd.Kind {
	case HelloResponse:
		return Event{Kind: EventHelloResponse}, nil
	case EndOfImage:
		m.state = Ended
		return Event{Kind: EventEnd}, nil
	case ReadRequest:
		if err := m.sink.ZeroFillTo(cmd.Offset); err != nil {
			return Event{}, fmt.Errorf("zero fill to %#x: %w", cmd.Offset, err)
		}
		if err := m.sink.Seek(cmd.Offset); err != nil {
			return Event{}, fmt.Errorf("seek to %#x: %w", cmd.Offset, err)
		}
		m.state = AwaitingData
		m.offset = cmd.Offset
		m.length = cmd.Length
		return Event{Kind: EventRead, Offset: cmd.Offset, Length: cmd.Length}, nil
	default:
		return Event{}, fmt.Errorf("%w: code %#x", core.ErrUnexpectedCommand, cmd.Code)
	}
}

func (m *Machine) awaitData(tx core.Transaction) (Event, error) {
	if tx.Direction != core.FromHost {
		return Event{}, nil
	}
	if uint64(len(tx.Payload)) != uint64(m.length) {
		return Event{}, fmt.Errorf("%w: got %d bytes, want %d", core.ErrDataLength, len(tx.Payload), m.length)
	}
	if err := m.sink.Write(tx.Payload); err != nil {
		return Event{}, fmt.Errorf("write %d bytes at %#x: %w", m.length, m.offset, err)
	}
	ev := Event{Kind: EventData, Offset: m.offset, Length: m.length}
	m.state = Idle
	return ev, nil
}
