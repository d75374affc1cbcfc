// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors, one per failure kind. Callers match with errors.Is;
// specific conditions wrap one of the four kinds below.
var (
	ErrUsage             = errors.New("sahara: usage error")
	ErrIO                = errors.New("sahara: i/o error")
	ErrMalformedCapture  = errors.New("sahara: malformed capture")
	ErrProtocolViolation = errors.New("sahara: protocol violation")
)

// Capture errors
var (
	ErrBadMagic          = wrap(ErrMalformedCapture, "unrecognized container magic")
	ErrPacketTooShort    = wrap(ErrMalformedCapture, "frame shorter than transfer header")
	ErrPayloadTruncated  = wrap(ErrMalformedCapture, "frame shorter than declared transfer length")
	ErrIncompleteSession = wrap(ErrMalformedCapture, "capture ended before end of image")
)

// Protocol errors
var (
	ErrUnexpectedCommand = wrap(ErrProtocolViolation, "unexpected command")
	ErrShortCommand      = wrap(ErrProtocolViolation, "command shorter than its layout")
	ErrDataLength        = wrap(ErrProtocolViolation, "unexpected data packet length")
	ErrAddressOverflow   = wrap(ErrProtocolViolation, "read request exceeds 32-bit address range")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.kind.Error() + ": " + e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func wrap(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}
