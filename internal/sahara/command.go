// Package sahara decodes Sahara download protocol commands and follows a
// host/device session through its request and response exchange.
package sahara

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/sahara/internal/core"
)

// Command codes.
const (
	CmdHelloRequest  uint32 = 0x01
	CmdHelloResponse uint32 = 0x02
	CmdReadData      uint32 = 0x03
	CmdEndImage      uint32 = 0x04
	CmdReadData64    uint32 = 0x12
)

const (
	// Command block header: code + declared length.
	headerLen = 8
	slotSize  = 4

	// A hello request is only accepted with this exact transfer and block length.
	helloLen = 0x30
)

// CommandKind tags the decoded command variant.
type CommandKind uint8

const (
	Unrecognized CommandKind = iota
	Hello
	HelloResponse
	ReadRequest
	EndOfImage
)

func (k CommandKind) String() string {
	switch k {
	case Hello:
		return "hello"
	case HelloResponse:
		return "hello-response"
	case ReadRequest:
		return "read"
	case EndOfImage:
		return "end-of-image"
	default:
		return "unrecognized"
	}
}

// Command is a decoded command block. Offset and Length are only set for
// ReadRequest; BlockLen is the length the block declares for itself.
type Command struct {
	Kind     CommandKind
	Code     uint32
	BlockLen uint32
	Offset   uint32
	Length   uint32
}

// readLayout decodes one binary layout of a read request into the
// normalized ReadRequest shape.
type readLayout struct {
	slots  int
	decode func(p []byte) (offset, length uint32, err error)
}

var readLayouts = map[uint32]readLayout{
	CmdReadData:   {slots: 3, decode: decodeRead32},
	CmdReadData64: {slots: 6, decode: decodeRead64},
}

// slot returns parameter slot i, counted from the end of the block header.
func slot(p []byte, i int) uint32 {
	at := headerLen + i*slotSize
	return binary.LittleEndian.Uint32(p[at : at+slotSize])
}

// decodeRead32: slot 0 image id, slot 1 offset, slot 2 length.
func decodeRead32(p []byte) (uint32, uint32, error) {
	return slot(p, 1), slot(p, 2), nil
}

// decodeRead64: 64-bit image id, offset and length, each spanning two slots.
// Only 32-bit offsets and lengths can be reconstructed; a non-zero high word
// is reported rather than dropped.
func decodeRead64(p []byte) (uint32, uint32, error) {
	offset, offsetHi := slot(p, 2), slot(p, 3)
	length, lengthHi := slot(p, 4), slot(p, 5)
	if offsetHi != 0 || lengthHi != 0 {
		return 0, 0, fmt.Errorf("%w: offset=%#x%08x length=%#x%08x",
			core.ErrAddressOverflow, offsetHi, offset, lengthHi, length)
	}
	return offset, length, nil
}

// MatchHello reports whether payload is a handshake hello request. The
// match is exact: code, transfer length and declared block length.
func MatchHello(payload []byte) (Command, bool) {
	if len(payload) != helloLen {
		return Command{}, false
	}
	code := binary.LittleEndian.Uint32(payload[0:4])
	blockLen := binary.LittleEndian.Uint32(payload[4:8])
	if code != CmdHelloRequest || blockLen != helloLen {
		return Command{}, false
	}
	return Command{Kind: Hello, Code: code, BlockLen: blockLen}, true
}

// DecodeCommand decodes a command sent by the device once the session is
// established. Unknown codes decode as Unrecognized without error; a read
// request too short for its layout is an error.
func DecodeCommand(payload []byte) (Command, error) {
	if len(payload) < slotSize {
		return Command{Kind: Unrecognized}, nil
	}
	cmd := Command{Code: binary.LittleEndian.Uint32(payload[0:4])}
	if len(payload) >= headerLen {
		cmd.BlockLen = binary.LittleEndian.Uint32(payload[4:8])
	}

	switch cmd.Code {
	case CmdHelloResponse:
		cmd.Kind = HelloResponse
	case CmdEndImage:
		cmd.Kind = EndOfImage
	case CmdReadData, CmdReadData64:
		layout := readLayouts[cmd.Code]
		if need := headerLen + layout.slots*slotSize; len(payload) < need {
			return cmd, fmt.Errorf("%w: command %#x has %d bytes, need %d",
				core.ErrShortCommand, cmd.Code, len(payload), need)
		}
		offset, length, err := layout.decode(payload)
		if err != nil {
			return cmd, err
		}
		cmd.Kind = ReadRequest
		cmd.Offset = offset
		cmd.Length = length
	default:
		cmd.Kind = Unrecognized
	}
	return cmd, nil
}
