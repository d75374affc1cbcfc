// Package pipeline implements pipeline construction.
package pipeline

import (
	"log/slog"

	"github.com/spf13/afero"

	"firestige.xyz/sahara/internal/config"
	"firestige.xyz/sahara/internal/filter"
)

// Builder provides a fluent interface for building pipelines.
// This is an alternative to using Config directly.
type Builder struct {
	config Config
}

// NewBuilder creates a new pipeline builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithFs sets the filesystem both files are opened on.
func (b *Builder) WithFs(fs afero.Fs) *Builder {
	b.config.Fs = fs
	return b
}

// WithCapture sets the input capture path.
func (b *Builder) WithCapture(path string) *Builder {
	b.config.CapturePath = path
	return b
}

// WithImage sets the output image path.
func (b *Builder) WithImage(path string) *Builder {
	b.config.ImagePath = path
	return b
}

// WithReplayConfig applies replay settings.
func (b *Builder) WithReplayConfig(rc config.ReplayConfig) *Builder {
	b.config.ZeroFillChunk = rc.ZeroFillChunk
	return b
}

// WithFilter adds a transaction filter.
func (b *Builder) WithFilter(f filter.Filter) *Builder {
	b.config.Filters = append(b.config.Filters, f)
	return b
}

// WithLogger sets the logger for session progress.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.config.Logger = l
	return b
}

// Build creates the pipeline.
func (b *Builder) Build() *Pipeline {
	return New(b.config)
}
