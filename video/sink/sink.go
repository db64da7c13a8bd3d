// Package sink writes motion events to their output destination: nowhere
// (scan only), the native encoder, or an external encoder process.
package sink

import (
	"errors"

	"dvrscan/timecode"
	"dvrscan/video/process"
	"dvrscan/video/source"
)

var (
	// ErrEncoderUnavailable is returned when the selected encoder cannot
	// be used (missing binary, failed writer open).
	ErrEncoderUnavailable = errors.New("sink: encoder unavailable")
	// ErrEncoderFailed is returned when the encoder fails while writing
	// an event.
	ErrEncoderFailed = errors.New("sink: encoder failed")
)

// Sink receives the frames belonging to motion events. Calls arrive from
// a single goroutine in stream order: StartEvent, zero or more Writes,
// EndEvent, repeated per event, then one Finish.
type Sink interface {
	// StartEvent opens output for the num-th event (1-based), which
	// starts at the given time.
	StartEvent(num int, start timecode.Timecode) error

	// Write delivers one frame inside the current event. The frame
	// remains owned by the caller.
	Write(frame *source.Frame, det process.Result) error

	// EndEvent closes the current event with its final extent.
	EndEvent(ev process.MotionEvent) error

	// Finish releases resources and returns the paths written. When
	// interrupted, partially written per-event output is discarded.
	Finish(interrupted bool) ([]string, error)
}

// Discard accepts and drops everything; used for scan-only runs.
type Discard struct{}

func (Discard) StartEvent(int, timecode.Timecode) error   { return nil }
func (Discard) Write(*source.Frame, process.Result) error { return nil }
func (Discard) EndEvent(process.MotionEvent) error        { return nil }
func (Discard) Finish(bool) ([]string, error)             { return nil, nil }
