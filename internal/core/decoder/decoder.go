// Package decoder strips the bus transfer envelope from captured frames.
package decoder

import "firestige.xyz/sahara/internal/core"

// Decoder decodes raw capture records into bus transactions.
type Decoder interface {
	Decode(rec core.CaptureRecord) (core.Transaction, error)
}
