package sahara

import (
	"encoding/binary"
	"errors"
	"fmt"

	"firestige.xyz/sahara/internal/core"
)

// block builds a little-endian command block: code, declared length, slots.
func block(code, blockLen uint32, slots ...uint32) []byte {
	p := make([]byte, headerLen+len(slots)*slotSize)
	binary.LittleEndian.PutUint32(p[0:4], code)
	binary.LittleEndian.PutUint32(p[4:8], blockLen)
	for i, s := range slots {
		binary.LittleEndian.PutUint32(p[headerLen+i*slotSize:], s)
	}
	return p
}

func helloPayload() []byte {
	return block(CmdHelloRequest, helloLen, make([]uint32, (helloLen-headerLen)/slotSize)...)
}

func read32(offset, length uint32) []byte {
	return block(CmdReadData, 20, 0x0d, offset, length)
}

func read64(offset, length uint32) []byte {
	return block(CmdReadData64, 32, 0x0d, 0, offset, 0, length, 0)
}

func toHost(p []byte) core.Transaction   { return core.Transaction{Direction: core.ToHost, Payload: p} }
func fromHost(p []byte) core.Transaction { return core.Transaction{Direction: core.FromHost, Payload: p} }

// recordingSink logs every call as a string and can fail on demand.
type recordingSink struct {
	ops  []string
	fail error
}

func (s *recordingSink) ZeroFillTo(offset uint32) error {
	if s.fail != nil {
		return s.fail
	}
	s.ops = append(s.ops, fmt.Sprintf("fill %#x", offset))
	return nil
}

func (s *recordingSink) Seek(offset uint32) error {
	s.ops = append(s.ops, fmt.Sprintf("seek %#x", offset))
	return nil
}

func (s *recordingSink) Write(p []byte) error {
	if s.fail != nil {
		return s.fail
	}
	s.ops = append(s.ops, fmt.Sprintf("write %d", len(p)))
	return nil
}

var errSinkBroken = errors.New("disk on fire")
