// Package pipeline replays a capture through the Sahara session machine
// and writes the reconstructed image.
package pipeline

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/afero"

	"firestige.xyz/sahara/internal/core"
	"firestige.xyz/sahara/internal/core/decoder"
	"firestige.xyz/sahara/internal/filter"
	"firestige.xyz/sahara/internal/report"
	"firestige.xyz/sahara/internal/sahara"
	"firestige.xyz/sahara/internal/sink/image"
	"firestige.xyz/sahara/internal/source/file"
)

// Pipeline is a single-threaded, single-pass replay of one capture.
type Pipeline struct {
	fs            afero.Fs
	capturePath   string
	imagePath     string
	zeroFillChunk int
	logger        *slog.Logger
	filters       *filter.Chain

	metrics *Metrics
	report  *report.Report
}

// Config contains pipeline configuration.
type Config struct {
	Fs            afero.Fs // Defaults to the OS filesystem
	CapturePath   string
	ImagePath     string
	ZeroFillChunk int          // Defaults to image.DefaultFillChunk
	Logger        *slog.Logger // Defaults to slog.Default()
	Filters       []filter.Filter
}

// New creates a new pipeline.
func New(cfg Config) *Pipeline {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.ZeroFillChunk <= 0 {
		cfg.ZeroFillChunk = image.DefaultFillChunk
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Pipeline{
		fs:            cfg.Fs,
		capturePath:   cfg.CapturePath,
		imagePath:     cfg.ImagePath,
		zeroFillChunk: cfg.ZeroFillChunk,
		logger:        cfg.Logger,
		filters:       filter.NewChain(cfg.Filters...),
		metrics:       NewMetrics(),
		report: &report.Report{
			Capture: cfg.CapturePath,
			Image:   cfg.ImagePath,
			State:   sahara.Scanning.String(),
		},
	}
}

// Metrics returns the counters of the last run.
func (p *Pipeline) Metrics() *Metrics { return p.metrics }

// Report returns the session report of the last run.
func (p *Pipeline) Report() *report.Report { return p.report }

// Run replays the capture until the session ends. The capture is opened and
// its container header validated before the image file is touched. Both
// files are closed on every return path.
func (p *Pipeline) Run() (err error) {
	defer func() {
		if err != nil {
			p.report.Error = err.Error()
		}
	}()

	src, err := file.NewSource(p.fs, p.capturePath)
	if err != nil {
		return err
	}
	defer src.Close()

	p.report.Format = src.Format()
	p.report.LinkType = src.LinkType().String()
	if src.LinkType() != decoder.LinkTypeUSBPcap {
		p.logger.Warn("capture link type is not USBPcap, decoding as USBPcap anyway",
			"link_type", src.LinkType().String())
	}
	p.logger.Debug("capture opened", "path", p.capturePath, "format", src.Format())

	img, err := image.Open(p.fs, p.imagePath, p.zeroFillChunk)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := img.Close()
		p.metrics.BytesWritten = img.Written()
		p.metrics.BytesZeroed = img.Zeroed()
		p.report.BytesWritten = img.Written()
		p.report.BytesZeroed = img.Zeroed()
		p.report.ImageSize = img.Cursor()
		if err == nil && closeErr != nil {
			err = closeErr
		}
	}()

	machine := sahara.NewMachine(img)
	defer func() { p.report.State = machine.State().String() }()

	return p.replay(src, decoder.NewUSBPcapDecoder(), machine)
}

// recordSource is the part of file.FileSource the replay loop needs.
type recordSource interface {
	Next() (core.CaptureRecord, error)
}

func (p *Pipeline) replay(src recordSource, dec decoder.Decoder, machine *sahara.Machine) error {
	for !machine.Done() {
		rec, err := src.Next()
		if err == io.EOF {
			return fmt.Errorf("%w (state %s after %d packets)", core.ErrIncompleteSession, machine.State(), p.metrics.Received)
		}
		if err != nil {
			return err
		}
		p.metrics.Received++
		p.report.Packets = rec.Number

		tx, err := dec.Decode(rec)
		if err != nil {
			p.metrics.DecodeErrors++
			return err
		}
		if !p.filters.Accept(tx) {
			p.metrics.Filtered++
			continue
		}
		if len(tx.Payload) == 0 {
			p.metrics.Skipped++
			continue
		}
		p.metrics.countDirection(tx.Direction)

		ev, err := machine.Step(tx)
		if err != nil {
			p.metrics.ProtocolErrors++
			return fmt.Errorf("packet %d: %w", rec.Number, err)
		}
		p.handleEvent(rec.Number, ev)
	}
	return nil
}

func (p *Pipeline) handleEvent(pkt uint64, ev sahara.Event) {
	switch ev.Kind {
	case sahara.EventHello:
		p.report.HelloPacket = pkt
		p.logger.Info("hello", "packet", pkt)
	case sahara.EventHelloResponse:
		p.logger.Debug("hello response", "packet", pkt)
	case sahara.EventRead:
		p.metrics.Reads++
		p.report.AddRead(pkt, ev.Offset, ev.Length)
		p.logger.Info("read", "packet", pkt,
			"offset", fmt.Sprintf("%08x", ev.Offset), "length", fmt.Sprintf("%08x", ev.Length))
	case sahara.EventData:
		p.metrics.DataTransfers++
		p.report.SatisfyLast()
		p.logger.Debug("data", "packet", pkt, "offset", fmt.Sprintf("%08x", ev.Offset), "length", ev.Length)
	case sahara.EventEnd:
		p.report.EndPacket = pkt
		p.logger.Info("end", "packet", pkt)
	default:
		p.metrics.Ignored++
	}
}
