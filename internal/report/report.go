// Package report records what a replay session did and saves it as YAML.
package report

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"firestige.xyz/sahara/internal/core"
)

// Read is one read request and whether its data arrived.
type Read struct {
	Packet    uint64 `yaml:"packet"`
	Offset    string `yaml:"offset"`
	Length    uint32 `yaml:"length"`
	Satisfied bool   `yaml:"satisfied"`
}

// Report summarises a replay session.
type Report struct {
	Capture      string `yaml:"capture"`
	Image        string `yaml:"image"`
	Format       string `yaml:"format"`
	LinkType     string `yaml:"link_type"`
	Packets      uint64 `yaml:"packets"`
	HelloPacket  uint64 `yaml:"hello_packet,omitempty"`
	EndPacket    uint64 `yaml:"end_packet,omitempty"`
	Reads        []Read `yaml:"reads"`
	BytesWritten uint64 `yaml:"bytes_written"`
	BytesZeroed  uint64 `yaml:"bytes_zeroed"`
	ImageSize    uint64 `yaml:"image_size"`
	State        string `yaml:"state"`
	Error        string `yaml:"error,omitempty"`
}

// AddRead appends an unsatisfied read request.
func (r *Report) AddRead(packet uint64, offset, length uint32) {
	r.Reads = append(r.Reads, Read{
		Packet: packet,
		Offset: fmt.Sprintf("%#08x", offset),
		Length: length,
	})
}

// SatisfyLast marks the most recent read request as satisfied.
func (r *Report) SatisfyLast() {
	if n := len(r.Reads); n > 0 {
		r.Reads[n-1].Satisfied = true
	}
}

// Save writes the report to path on fs, replacing any previous report.
func Save(fs afero.Fs, path string, r *Report) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("%w: write report %s: %v", core.ErrIO, path, err)
	}
	return nil
}

// Load reads a report previously written by Save.
func Load(fs afero.Fs, path string) (*Report, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: report %s does not exist", core.ErrIO, path)
		}
		return nil, fmt.Errorf("%w: read report %s: %v", core.ErrIO, path, err)
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &r, nil
}
