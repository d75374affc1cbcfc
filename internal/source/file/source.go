// Package file reads capture records from a pcap or pcapng file.
package file

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/spf13/afero"

	"firestige.xyz/sahara/internal/core"
)

const Name = "file"

// Container formats.
const (
	FormatPcap   = "pcap"
	FormatPcapNG = "pcapng"
)

var (
	// Classic pcap, micro- and nanosecond resolution, both byte orders.
	pcapMagics = [][]byte{
		{0xd4, 0xc3, 0xb2, 0xa1},
		{0xa1, 0xb2, 0xc3, 0xd4},
		{0x4d, 0x3c, 0xb2, 0xa1},
		{0xa1, 0xb2, 0x3c, 0x4d},
	}
	// pcapng section header block type.
	pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}
)

// packetReader is implemented by both pcapgo readers.
type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// FileSource iterates the records of a capture file in file order.
type FileSource struct {
	path   string
	file   afero.File
	handle packetReader
	format string
	count  uint64
}

// NewSource opens path on fs and reads the container header. Only the
// container magic is validated.
func NewSource(fs afero.Fs, path string) (*FileSource, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: capture path is required", core.ErrIO)
	}
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open capture %s: %v", core.ErrIO, path, err)
	}

	handle, format, err := openReader(bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("capture %s: %w", path, err)
	}

	return &FileSource{
		path:   path,
		file:   f,
		handle: handle,
		format: format,
	}, nil
}

func openReader(br *bufio.Reader) (packetReader, string, error) {
	magic, err := br.Peek(4)
	if err != nil {
		return nil, "", fmt.Errorf("%w: header: %v", core.ErrMalformedCapture, err)
	}

	switch {
	case bytes.Equal(magic, pcapngMagic):
		r, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", core.ErrMalformedCapture, err)
		}
		return r, FormatPcapNG, nil
	case isPcapMagic(magic):
		r, err := pcapgo.NewReader(br)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", core.ErrMalformedCapture, err)
		}
		return r, FormatPcap, nil
	default:
		return nil, "", fmt.Errorf("%w: % x", core.ErrBadMagic, magic)
	}
}

func isPcapMagic(magic []byte) bool {
	for _, m := range pcapMagics {
		if bytes.Equal(magic, m) {
			return true
		}
	}
	return false
}

// Next returns the next record, or io.EOF once the capture is exhausted.
func (fs *FileSource) Next() (core.CaptureRecord, error) {
	if fs.handle == nil {
		return core.CaptureRecord{}, fmt.Errorf("%w: file source closed", core.ErrIO)
	}

	data, ci, err := fs.handle.ReadPacketData()
	if err != nil {
		if err == io.EOF {
			return core.CaptureRecord{}, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return core.CaptureRecord{}, fmt.Errorf("%w: record %d truncated", core.ErrMalformedCapture, fs.count+1)
		}
		return core.CaptureRecord{}, fmt.Errorf("%w: record %d: %v", core.ErrMalformedCapture, fs.count+1, err)
	}

	fs.count++
	return core.CaptureRecord{
		Number:     fs.count,
		Timestamp:  ci.Timestamp,
		CaptureLen: uint32(ci.CaptureLength),
		OrigLen:    uint32(ci.Length),
		Data:       data,
	}, nil
}

// LinkType returns the link-layer type declared by the capture.
func (fs *FileSource) LinkType() layers.LinkType {
	if fs.handle == nil {
		return layers.LinkTypeNull
	}
	return fs.handle.LinkType()
}

// Format returns FormatPcap or FormatPcapNG.
func (fs *FileSource) Format() string { return fs.format }

// Path returns the capture path.
func (fs *FileSource) Path() string { return fs.path }

// Close releases the capture file.
func (fs *FileSource) Close() error {
	fs.handle = nil
	if fs.file == nil {
		return nil
	}
	err := fs.file.Close()
	fs.file = nil
	return err
}
