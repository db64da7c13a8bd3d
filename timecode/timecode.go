// Package timecode converts between frame indices, seconds, and
// HH:MM:SS[.fff] strings for a fixed-framerate video stream.
package timecode

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMixedFramerate is returned when two timecodes with different
// framerates are compared or combined.
var ErrMixedFramerate = errors.New("timecode: framerates do not match")

// Timecode is a non-negative frame index paired with the framerate of the
// stream it belongs to. All arithmetic is integer arithmetic on the frame
// index; seconds are derived.
type Timecode struct {
	frame int64
	fps   float64
}

// FromFrames returns a Timecode at the given frame index.
func FromFrames(frame int64, fps float64) Timecode {
	if frame < 0 {
		frame = 0
	}
	return Timecode{frame: frame, fps: fps}
}

// FromSeconds returns the Timecode for a position in seconds, rounded
// half away from zero to the nearest frame.
func FromSeconds(seconds float64, fps float64) Timecode {
	return Timecode{frame: roundToFrame(seconds * fps), fps: fps}
}

// Parse interprets a user-supplied time value. Accepted forms:
//
//	HH:MM:SS or HH:MM:SS.fff
//	<seconds>s, e.g. "5s" or "1.234s"
//	a bare non-negative integer frame count
func Parse(value string, fps float64) (Timecode, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Timecode{}, fmt.Errorf("timecode: empty value")
	}
	if strings.Contains(value, ":") {
		return parseHMS(value, fps)
	}
	if strings.HasSuffix(value, "s") {
		secs, err := strconv.ParseFloat(strings.TrimSuffix(value, "s"), 64)
		if err != nil || secs < 0 {
			return Timecode{}, fmt.Errorf("timecode: invalid seconds value %q", value)
		}
		return FromSeconds(secs, fps), nil
	}
	frame, err := strconv.ParseInt(value, 10, 64)
	if err != nil || frame < 0 {
		return Timecode{}, fmt.Errorf("timecode: invalid frame count %q", value)
	}
	return FromFrames(frame, fps), nil
}

func parseHMS(value string, fps float64) (Timecode, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return Timecode{}, fmt.Errorf("timecode: invalid timecode %q", value)
	}
	hrs, err1 := strconv.Atoi(parts[0])
	mins, err2 := strconv.Atoi(parts[1])
	secs, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return Timecode{}, fmt.Errorf("timecode: invalid timecode %q", value)
	}
	if hrs < 0 || mins < 0 || mins >= 60 || secs < 0 || secs >= 60 {
		return Timecode{}, fmt.Errorf("timecode: component out of range in %q", value)
	}
	total := secs + float64(mins)*60 + float64(hrs)*3600
	return FromSeconds(total, fps), nil
}

func roundToFrame(v float64) int64 {
	if v <= 0 {
		return 0
	}
	// Round half away from zero.
	return int64(math.Floor(v + 0.5))
}

// Frame returns the frame index.
func (t Timecode) Frame() int64 { return t.frame }

// FPS returns the framerate the timecode was constructed with.
func (t Timecode) FPS() float64 { return t.fps }

// Seconds returns the position in seconds.
func (t Timecode) Seconds() float64 {
	if t.fps == 0 {
		return 0
	}
	return float64(t.frame) / t.fps
}

// AddFrames returns the timecode advanced by n frames (n may be negative;
// the result is clamped to frame zero).
func (t Timecode) AddFrames(n int64) Timecode {
	f := t.frame + n
	if f < 0 {
		f = 0
	}
	return Timecode{frame: f, fps: t.fps}
}

// Sub returns the number of frames between t and other.
func (t Timecode) Sub(other Timecode) (int64, error) {
	if t.fps != other.fps {
		return 0, ErrMixedFramerate
	}
	return t.frame - other.frame, nil
}

// Cmp compares two timecodes by frame index. Returns -1, 0, or 1.
func (t Timecode) Cmp(other Timecode) (int, error) {
	if t.fps != other.fps {
		return 0, ErrMixedFramerate
	}
	switch {
	case t.frame < other.frame:
		return -1, nil
	case t.frame > other.frame:
		return 1, nil
	}
	return 0, nil
}

// String formats the timecode as HH:MM:SS.fff.
func (t Timecode) String() string {
	return t.Format(3)
}

// Format returns the timecode as HH:MM:SS with the given number of decimal
// places on the seconds component. Precision 0 omits the decimal point.
func (t Timecode) Format(precision int) string {
	secs := t.Seconds()
	hrs := int(secs / 3600)
	secs -= float64(hrs) * 3600
	mins := int(secs / 60)
	secs -= float64(mins) * 60
	if precision <= 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hrs, mins, int(math.Floor(secs+0.5)))
	}
	formatted := strconv.FormatFloat(secs, 'f', precision, 64)
	// Pad the integer part to two digits ("3.500" -> "03.500").
	if strings.Index(formatted, ".") == 1 {
		formatted = "0" + formatted
	}
	// Rounding may carry 59.9995 up to 60.
	if strings.HasPrefix(formatted, "60") {
		formatted = "0" + formatted[1:]
		mins++
		if mins == 60 {
			mins = 0
			hrs++
		}
	}
	return fmt.Sprintf("%02d:%02d:%s", hrs, mins, formatted)
}
