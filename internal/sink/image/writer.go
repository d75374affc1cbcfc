// Package image writes the reconstructed image to a random-access file.
package image

import (
	"fmt"
	"os"

	"github.com/spf13/afero"

	"firestige.xyz/sahara/internal/core"
)

// DefaultFillChunk is the size of each zero-fill write.
const DefaultFillChunk = 4096

// Writer applies session writes to an image file. It keeps two cursors:
// fill, the zero-fill high-water mark that never moves backwards, and pos,
// where the next Write lands.
//
// The file is opened without truncation; pre-existing content beyond what
// the session writes is left in place.
type Writer struct {
	path string
	file afero.File
	zero []byte

	fill uint64
	pos  uint64

	written uint64
	zeroed  uint64
}

// Open opens or creates the image file at path on fs.
func Open(fs afero.Fs, path string, fillChunk int) (*Writer, error) {
	if fillChunk <= 0 {
		fillChunk = DefaultFillChunk
	}
	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open image %s: %v", core.ErrIO, path, err)
	}
	return &Writer{
		path: path,
		file: f,
		zero: make([]byte, fillChunk),
	}, nil
}

// ZeroFillTo writes zeros from the fill cursor up to, not including,
// offset. It is a no-op when the cursor is already at or past offset.
func (w *Writer) ZeroFillTo(offset uint32) error {
	end := uint64(offset)
	for w.fill < end {
		n := uint64(len(w.zero))
		if rem := end - w.fill; rem < n {
			n = rem
		}
		if _, err := w.file.WriteAt(w.zero[:n], int64(w.fill)); err != nil {
			return fmt.Errorf("%w: zero fill %s at %#x: %v", core.ErrIO, w.path, w.fill, err)
		}
		w.fill += n
		w.zeroed += n
	}
	return nil
}

// Seek positions the next Write at offset without writing.
func (w *Writer) Seek(offset uint32) error {
	w.pos = uint64(offset)
	return nil
}

// Write writes p at the current position and advances it.
func (w *Writer) Write(p []byte) error {
	if _, err := w.file.WriteAt(p, int64(w.pos)); err != nil {
		return fmt.Errorf("%w: write %s at %#x: %v", core.ErrIO, w.path, w.pos, err)
	}
	w.pos += uint64(len(p))
	w.written += uint64(len(p))
	if w.pos > w.fill {
		w.fill = w.pos
	}
	return nil
}

// Cursor returns the zero-fill high-water mark.
func (w *Writer) Cursor() uint64 { return w.fill }

// Written returns the number of payload bytes written.
func (w *Writer) Written() uint64 { return w.written }

// Zeroed returns the number of zero bytes written as padding.
func (w *Writer) Zeroed() uint64 { return w.zeroed }

// Close syncs and closes the file.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	syncErr := w.file.Sync()
	closeErr := w.file.Close()
	w.file = nil
	if syncErr != nil {
		return fmt.Errorf("%w: sync %s: %v", core.ErrIO, w.path, syncErr)
	}
	if closeErr != nil {
		return fmt.Errorf("%w: close %s: %v", core.ErrIO, w.path, closeErr)
	}
	return nil
}
