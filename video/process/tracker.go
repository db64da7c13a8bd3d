package process

import (
	"dvrscan/timecode"
)

// MotionEvent is a half-open frame interval [Start, End) containing motion.
type MotionEvent struct {
	Start     timecode.Timecode
	End       timecode.Timecode
	PeakScore float32
	PeakFrame int64
}

// TrackerConfig holds event timing parameters, in decoded frames.
type TrackerConfig struct {
	// MinEventLength is the number of consecutive motion frames required
	// to open an event.
	MinEventLength int64
	// TimeBeforeEvent is the pre-roll reaching back before the first
	// motion frame.
	TimeBeforeEvent int64
	// TimePostEvent is the number of no-motion frames tolerated before an
	// event closes; the same frames become the post-roll.
	TimePostEvent int64
	// FrameSkip scales MinEventLength and TimePostEvent into processed
	// frames; TimeBeforeEvent stays in decoded frames because pre-roll
	// frames are decoded, not processed.
	FrameSkip int
}

type trackerState int

const (
	stateIdle trackerState = iota
	stateInEvent
)

// Tracker turns the per-frame motion stream into motion events. It holds
// at most one open event and must only be used from one goroutine.
type Tracker struct {
	fps  float64
	step int64 // decoded frames per processed frame (frame skip + 1)

	minLength int64 // processed frames
	preRoll   int64 // decoded frames
	postRoll  int64 // processed frames

	state       trackerState
	prevEnd     int64 // exclusive end of the last emitted event
	start       int64 // start of the open candidate or event
	streak      int64 // consecutive motion frames (processed)
	sinceMotion int64 // no-motion frames since last motion (processed)
	lastSeen    int64
	peakScore   float32
	peakFrame   int64
}

// NewTracker converts the config into processed-frame counts and returns
// an idle tracker.
func NewTracker(cfg TrackerConfig, fps float64) *Tracker {
	step := int64(cfg.FrameSkip) + 1
	return &Tracker{
		fps:       fps,
		step:      step,
		minLength: ceilDiv(cfg.MinEventLength, step),
		preRoll:   cfg.TimeBeforeEvent,
		postRoll:  ceilDiv(cfg.TimePostEvent, step),
	}
}

func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Update consumes one processed frame. It returns a closed event when the
// post-event window elapses, and reports whether an event opened on this
// frame (the open event's pre-roll start is available via OpenStart).
func (t *Tracker) Update(index int64, hasMotion bool, score float32) (closed *MotionEvent, opened bool) {
	t.lastSeen = index
	switch t.state {
	case stateIdle:
		if !hasMotion {
			t.streak = 0
			return nil, false
		}
		if t.streak == 0 {
			t.start = index - t.preRoll
			if t.start < t.prevEnd {
				t.start = t.prevEnd
			}
			t.peakScore = score
			t.peakFrame = index
		}
		t.streak++
		if score > t.peakScore {
			t.peakScore = score
			t.peakFrame = index
		}
		if t.streak >= t.minLength {
			t.state = stateInEvent
			t.sinceMotion = 0
			return nil, true
		}
		return nil, false

	case stateInEvent:
		if hasMotion {
			t.sinceMotion = 0
			if score > t.peakScore {
				t.peakScore = score
				t.peakFrame = index
			}
			return nil, false
		}
		t.sinceMotion++
		if t.sinceMotion >= t.postRoll {
			return t.closeEvent(index), false
		}
		return nil, false
	}
	return nil, false
}

// OpenStart returns the start frame of the open candidate or event.
func (t *Tracker) OpenStart() int64 {
	return t.start
}

// Finish closes any open event at end of stream. The end reaches forward
// by the post-roll but never past streamLength (the exclusive end of the
// virtual stream).
func (t *Tracker) Finish(streamLength int64) *MotionEvent {
	if t.state != stateInEvent {
		return nil
	}
	end := t.lastSeen + 1 + (t.postRoll-t.sinceMotion)*t.step
	if end > streamLength {
		end = streamLength
	}
	return t.emit(end)
}

func (t *Tracker) closeEvent(index int64) *MotionEvent {
	// The frame at which the no-motion run reached the post-event window
	// is the exclusive end: the post-roll is already included.
	return t.emit(index)
}

func (t *Tracker) emit(end int64) *MotionEvent {
	ev := &MotionEvent{
		Start:     timecode.FromFrames(t.start, t.fps),
		End:       timecode.FromFrames(end, t.fps),
		PeakScore: t.peakScore,
		PeakFrame: t.peakFrame,
	}
	t.prevEnd = end
	t.state = stateIdle
	t.streak = 0
	t.sinceMotion = 0
	return ev
}
