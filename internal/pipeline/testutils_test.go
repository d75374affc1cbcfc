package pipeline

import (
	"bytes"
	"encoding/binary"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"firestige.xyz/sahara/internal/core"
	"firestige.xyz/sahara/internal/core/decoder"
	"firestige.xyz/sahara/internal/sahara"
)

// captureBuilder assembles a USBPcap capture in memory.
type captureBuilder struct {
	t      *testing.T
	device uint16
	frames [][]byte
}

func newCapture(t *testing.T) *captureBuilder {
	return &captureBuilder{t: t, device: 4}
}

// as sets the device address used for subsequent frames.
func (c *captureBuilder) as(device uint16) *captureBuilder {
	c.device = device
	return c
}

func (c *captureBuilder) add(dir core.Direction, payload []byte) *captureBuilder {
	c.t.Helper()
	hdr := &decoder.USBPcap{Bus: 1, Device: c.device, Transfer: 3, Endpoint: 0x01}
	if dir == core.ToHost {
		hdr.Info = 0x01
		hdr.Endpoint = 0x81
	}
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, hdr, gopacket.Payload(payload))
	require.NoError(c.t, err)
	c.frames = append(c.frames, append([]byte(nil), buf.Bytes()...))
	return c
}

func (c *captureBuilder) toHost(payload []byte) *captureBuilder {
	return c.add(core.ToHost, payload)
}

func (c *captureBuilder) fromHost(payload []byte) *captureBuilder {
	return c.add(core.FromHost, payload)
}

func (c *captureBuilder) raw(frame []byte) *captureBuilder {
	c.frames = append(c.frames, frame)
	return c
}

func (c *captureBuilder) bytes() []byte {
	c.t.Helper()
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.NoError(c.t, w.WriteFileHeader(262144, decoder.LinkTypeUSBPcap))
	for i, f := range c.frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     time.Unix(1700000000, int64(i)*1000),
			CaptureLength: len(f),
			Length:        len(f),
		}
		require.NoError(c.t, w.WritePacket(ci, f))
	}
	return buf.Bytes()
}

// writeTo stores the capture at path on a fresh in-memory filesystem.
func (c *captureBuilder) writeTo(path string) afero.Fs {
	c.t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(c.t, afero.WriteFile(fs, path, c.bytes(), 0o644))
	return fs
}

func command(code, blockLen uint32, slots ...uint32) []byte {
	p := make([]byte, 8+4*len(slots))
	binary.LittleEndian.PutUint32(p[0:4], code)
	binary.LittleEndian.PutUint32(p[4:8], blockLen)
	for i, s := range slots {
		binary.LittleEndian.PutUint32(p[8+4*i:], s)
	}
	return p
}

func hello() []byte {
	return command(sahara.CmdHelloRequest, 0x30, 2, 1, 0x1000, 0, 0, 0, 0, 0, 0, 0)
}

func helloResponse() []byte {
	return command(sahara.CmdHelloResponse, 0x30, 2, 1, 0, 0, 0, 0, 0, 0, 0, 0)
}

func readData(offset, length uint32) []byte {
	return command(sahara.CmdReadData, 0x14, 0x0d, offset, length)
}

func readData64(offset, length uint32) []byte {
	return command(sahara.CmdReadData64, 0x20, 0x0d, 0, offset, 0, length, 0)
}

func endImage() []byte {
	return command(sahara.CmdEndImage, 0x10, 0x0d, 0)
}

func pattern(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i*7 + 3)
	}
	return p
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
