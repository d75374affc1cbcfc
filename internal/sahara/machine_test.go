package sahara

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/sahara/internal/core"
)

func run(t *testing.T, m *Machine, txs ...core.Transaction) []Event {
	t.Helper()
	var events []Event
	for _, tx := range txs {
		ev, err := m.Step(tx)
		require.NoError(t, err)
		events = append(events, ev)
	}
	return events
}

func TestMachineStaysScanningUntilHello(t *testing.T) {
	sink := &recordingSink{}
	m := NewMachine(sink)

	noise := []core.Transaction{
		toHost([]byte{0x12, 0x01, 0x00, 0x02}),
		toHost(read32(0, 0x10)),
		toHost(block(CmdEndImage, 0x10, 0, 0)),
		toHost(block(CmdHelloRequest, 0x2c, make([]uint32, 10)...)),
		toHost(helloPayload()[:0x2f]),
		fromHost(helloPayload()),
		toHost(nil),
	}
	for _, tx := range noise {
		ev, err := m.Step(tx)
		require.NoError(t, err)
		assert.Equal(t, EventIgnored, ev.Kind)
		assert.Equal(t, Scanning, m.State())
	}
	assert.Empty(t, sink.ops)

	ev, err := m.Step(toHost(helloPayload()))
	require.NoError(t, err)
	assert.Equal(t, EventHello, ev.Kind)
	assert.Equal(t, Idle, m.State())
}

func TestMachineFullSession(t *testing.T) {
	sink := &recordingSink{}
	m := NewMachine(sink)

	data := bytes.Repeat([]byte{0x5a}, 0x200)
	events := run(t, m,
		toHost([]byte{0xde, 0xad}),
		toHost(helloPayload()),
		fromHost(block(CmdHelloResponse, 0x30, 2, 1, 0, 0)),
		toHost(read32(0x1000, 0x200)),
		toHost([]byte{0x01, 0x02, 0x03, 0x04}),
		fromHost(data),
		toHost(read64(0x1200, 4)),
		fromHost([]byte{1, 2, 3, 4}),
		toHost(block(CmdEndImage, 0x10, 0x0d, 0)),
	)

	want := []Event{
		{Kind: EventIgnored},
		{Kind: EventHello},
		{Kind: EventIgnored},
		{Kind: EventRead, Offset: 0x1000, Length: 0x200},
		{Kind: EventIgnored},
		{Kind: EventData, Offset: 0x1000, Length: 0x200},
		{Kind: EventRead, Offset: 0x1200, Length: 4},
		{Kind: EventData, Offset: 0x1200, Length: 4},
		{Kind: EventEnd},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	wantOps := []string{"fill 0x1000", "seek 0x1000", "write 512", "fill 0x1200", "seek 0x1200", "write 4"}
	if diff := cmp.Diff(wantOps, sink.ops); diff != "" {
		t.Errorf("sink ops mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, m.Done())
}

func TestMachineHelloResponseFromDevice(t *testing.T) {
	m := NewMachine(&recordingSink{})
	events := run(t, m, toHost(helloPayload()), toHost(block(CmdHelloResponse, 0x30)))

	assert.Equal(t, EventHelloResponse, events[1].Kind)
	assert.Equal(t, Idle, m.State())
}

func TestMachineIgnoresFromHostWhileIdle(t *testing.T) {
	m := NewMachine(&recordingSink{})
	events := run(t, m, toHost(helloPayload()), fromHost([]byte{0xff, 0xff, 0xff, 0xff}))

	assert.Equal(t, EventIgnored, events[1].Kind)
	assert.Equal(t, Idle, m.State())
}

func TestMachineUnexpectedCommand(t *testing.T) {
	m := NewMachine(&recordingSink{})
	run(t, m, toHost(helloPayload()))

	_, err := m.Step(toHost(block(0x07, 8)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnexpectedCommand))
	assert.True(t, errors.Is(err, core.ErrProtocolViolation))
	assert.Equal(t, Idle, m.State())
}

func TestMachineDataLengthMismatch(t *testing.T) {
	sink := &recordingSink{}
	m := NewMachine(sink)
	run(t, m, toHost(helloPayload()), toHost(read32(0, 0x10)))

	_, err := m.Step(fromHost(make([]byte, 0x0f)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrDataLength))
	assert.True(t, errors.Is(err, core.ErrProtocolViolation))
	assert.Equal(t, []string{"fill 0x0", "seek 0x0"}, sink.ops)

	off, length, ok := m.Pending()
	assert.True(t, ok)
	assert.Equal(t, uint32(0), off)
	assert.Equal(t, uint32(0x10), length)
}

func TestMachineAwaitingIgnoresToHost(t *testing.T) {
	m := NewMachine(&recordingSink{})
	events := run(t, m,
		toHost(helloPayload()),
		toHost(read32(0x40, 2)),
		toHost(read32(0x80, 2)),
		toHost(block(CmdEndImage, 0x10)),
	)

	assert.Equal(t, EventIgnored, events[2].Kind)
	assert.Equal(t, EventIgnored, events[3].Kind)
	off, _, ok := m.Pending()
	require.True(t, ok)
	assert.Equal(t, uint32(0x40), off)
}

func TestMachineEndedIgnoresEverything(t *testing.T) {
	sink := &recordingSink{}
	m := NewMachine(sink)
	run(t, m, toHost(helloPayload()), toHost(block(CmdEndImage, 0x10)))
	require.True(t, m.Done())

	events := run(t, m,
		toHost(read32(0, 4)),
		fromHost([]byte{1, 2, 3, 4}),
		toHost(block(0x99, 8)),
		toHost(helloPayload()),
	)
	for _, ev := range events {
		assert.Equal(t, EventIgnored, ev.Kind)
	}
	assert.Empty(t, sink.ops)
	assert.Equal(t, Ended, m.State())
}

func TestMachineSinkFailure(t *testing.T) {
	sink := &recordingSink{fail: errSinkBroken}
	m := NewMachine(sink)
	run(t, m, toHost(helloPayload()))

	_, err := m.Step(toHost(read32(0x100, 4)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errSinkBroken))
	assert.Equal(t, Idle, m.State())
}

func TestMachineOverflowingRead64(t *testing.T) {
	m := NewMachine(&recordingSink{})
	run(t, m, toHost(helloPayload()))

	_, err := m.Step(toHost(block(CmdReadData64, 32, 0x0d, 0, 0, 2, 0x10, 0)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrAddressOverflow))
	_, _, ok := m.Pending()
	assert.False(t, ok)
}
