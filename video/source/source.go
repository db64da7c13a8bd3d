// Package source reads frames from one or more video files and presents
// them as a single virtual stream with contiguous frame indices.
package source

import (
	"errors"

	"gocv.io/x/gocv"

	"dvrscan/timecode"
)

var (
	// ErrInputNotFound is returned when an input file cannot be opened.
	ErrInputNotFound = errors.New("source: input video not found or unreadable")
	// ErrResolutionMismatch is returned when an appended input's resolution
	// differs from the first input.
	ErrResolutionMismatch = errors.New("source: input resolution does not match first input")
	// ErrFramerateMismatch is returned when an appended input's framerate
	// differs from the first input.
	ErrFramerateMismatch = errors.New("source: input framerate does not match first input")
	// ErrDecodeFailure is returned after too many consecutive frames fail
	// to decode.
	ErrDecodeFailure = errors.New("source: too many consecutive decode failures")
)

// Frame is a single decoded video frame. The Mat is a three-channel 8-bit
// image at source resolution, owned by the receiver: every Frame handed out
// by a Source must be released with Close exactly once.
type Frame struct {
	Index int64
	Mat   gocv.Mat
	PTS   timecode.Timecode
}

// Close releases the pixel buffer.
func (f *Frame) Close() {
	f.Mat.Close()
}

// Clone returns a deep copy with its own pixel buffer.
func (f *Frame) Clone() Frame {
	n := Frame{Index: f.Index, PTS: f.PTS, Mat: gocv.NewMat()}
	f.Mat.CopyTo(&n.Mat)
	return n
}

// Metadata describes the virtual stream established by the first input.
type Metadata struct {
	Width  int
	Height int
	FPS    float64
	// TotalFrames is the estimated length of the virtual stream. May be
	// inaccurate for some containers.
	TotalFrames int64
}

// Source is a stream of decoded frames.
type Source interface {
	// Metadata returns the stream parameters. Valid after open.
	Metadata() Metadata

	// Read decodes the next frame. Returns (nil, nil) at end of stream.
	Read() (*Frame, error)

	// Seek positions the stream so the next Read returns the frame at
	// target. Only seeking forward of the current position is supported.
	Seek(target int64) error

	// Close releases all decoder resources.
	Close() error
}
