package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runTracker feeds a motion pattern into a fresh tracker and collects the
// emitted events. motion maps decoded frame index -> has motion; frames
// are processed at the given step (frameSkip+1).
func runTracker(t *testing.T, cfg TrackerConfig, length int64, motion func(int64) bool) []MotionEvent {
	t.Helper()
	tracker := NewTracker(cfg, 30)
	var events []MotionEvent
	step := int64(cfg.FrameSkip) + 1
	for i := int64(0); i < length; i += step {
		closed, _ := tracker.Update(i, motion(i), 100)
		if closed != nil {
			events = append(events, *closed)
		}
	}
	if final := tracker.Finish(length); final != nil {
		events = append(events, *final)
	}
	return events
}

func burst(from, to int64) func(int64) bool {
	return func(i int64) bool { return i >= from && i <= to }
}

func TestSingleEventWithPrePostRoll(t *testing.T) {
	// 30 fps, 300 frames, motion on 100-149, L=2 B=15 P=15.
	cfg := TrackerConfig{MinEventLength: 2, TimeBeforeEvent: 15, TimePostEvent: 15}
	events := runTracker(t, cfg, 300, burst(100, 149))
	require.Len(t, events, 1)
	assert.Equal(t, int64(85), events[0].Start.Frame())
	assert.Equal(t, int64(164), events[0].End.Frame())
	assert.GreaterOrEqual(t, events[0].PeakFrame, int64(100))
	assert.LessOrEqual(t, events[0].PeakFrame, int64(149))
}

func TestSingleSpikeBelowMinLength(t *testing.T) {
	cfg := TrackerConfig{MinEventLength: 2, TimeBeforeEvent: 15, TimePostEvent: 15}
	events := runTracker(t, cfg, 300, burst(100, 100))
	assert.Empty(t, events)
}

func TestDisjointBurstsSeparateEvents(t *testing.T) {
	// Bursts 100-120 and 135-160 with P=10: separated by 14 > 10 no-motion
	// frames, so two events.
	cfg := TrackerConfig{MinEventLength: 2, TimeBeforeEvent: 0, TimePostEvent: 10}
	motion := func(i int64) bool {
		return (i >= 100 && i <= 120) || (i >= 135 && i <= 160)
	}
	events := runTracker(t, cfg, 300, motion)
	require.Len(t, events, 2)
	assert.Equal(t, int64(100), events[0].Start.Frame())
	assert.Equal(t, int64(130), events[0].End.Frame())
	assert.Equal(t, int64(135), events[1].Start.Frame())
	assert.Equal(t, int64(170), events[1].End.Frame())
}

func TestCloseBurstsMerge(t *testing.T) {
	// Bursts 100-120 and 130-150 with P=15: the gap of 9 no-motion frames
	// never reaches the post-event window, so one merged event.
	cfg := TrackerConfig{MinEventLength: 2, TimeBeforeEvent: 15, TimePostEvent: 15}
	motion := func(i int64) bool {
		return (i >= 100 && i <= 120) || (i >= 130 && i <= 150)
	}
	events := runTracker(t, cfg, 300, motion)
	require.Len(t, events, 1)
	assert.Equal(t, int64(85), events[0].Start.Frame())
	assert.Equal(t, int64(165), events[0].End.Frame())
}

func TestFrameSkipScalesParameters(t *testing.T) {
	// With frame_skip=1 only every other frame is processed. Motion on
	// every processed frame from 100-150 opens an event with L=2, and the
	// post-event window is scaled from 15 to 8 processed frames.
	cfg := TrackerConfig{MinEventLength: 2, TimeBeforeEvent: 0, TimePostEvent: 15, FrameSkip: 1}
	events := runTracker(t, cfg, 300, burst(100, 150))
	require.Len(t, events, 1)
	assert.Equal(t, int64(100), events[0].Start.Frame())
}

func TestAllMotionSpansWholeStream(t *testing.T) {
	cfg := TrackerConfig{MinEventLength: 2, TimeBeforeEvent: 5, TimePostEvent: 15}
	events := runTracker(t, cfg, 120, func(int64) bool { return true })
	require.Len(t, events, 1)
	assert.Equal(t, int64(0), events[0].Start.Frame())
	assert.Equal(t, int64(120), events[0].End.Frame())
}

func TestEndOfStreamClampsPostRoll(t *testing.T) {
	// Motion runs to the end of the stream; the post-roll cannot reach
	// past the stream length.
	cfg := TrackerConfig{MinEventLength: 2, TimeBeforeEvent: 0, TimePostEvent: 30}
	events := runTracker(t, cfg, 200, burst(180, 199))
	require.Len(t, events, 1)
	assert.Equal(t, int64(200), events[0].End.Frame())
}

func TestPreRollClampedToPreviousEvent(t *testing.T) {
	// The second event starts 30 frames after the first ends, with a
	// pre-roll of 50 frames that must not reach into the first event.
	cfg := TrackerConfig{MinEventLength: 2, TimeBeforeEvent: 50, TimePostEvent: 5}
	motion := func(i int64) bool {
		return (i >= 50 && i <= 70) || (i >= 105 && i <= 130)
	}
	events := runTracker(t, cfg, 300, motion)
	require.Len(t, events, 2)
	assert.Equal(t, events[0].End.Frame(), events[1].Start.Frame())
}

func TestEventsAreOrderedAndNonOverlapping(t *testing.T) {
	cfg := TrackerConfig{MinEventLength: 3, TimeBeforeEvent: 10, TimePostEvent: 8}
	motion := func(i int64) bool {
		switch {
		case i >= 40 && i <= 60, i >= 100 && i <= 140, i >= 200 && i <= 230:
			return true
		}
		return false
	}
	events := runTracker(t, cfg, 400, motion)
	require.Len(t, events, 3)
	for i := range events {
		start, end := events[i].Start.Frame(), events[i].End.Frame()
		assert.Less(t, start, end)
		assert.GreaterOrEqual(t, events[i].PeakFrame, start)
		assert.Less(t, events[i].PeakFrame, end)
		if i > 0 {
			assert.GreaterOrEqual(t, start, events[i-1].End.Frame())
		}
	}
}

func TestPeakTracksHighestScore(t *testing.T) {
	tracker := NewTracker(TrackerConfig{MinEventLength: 2, TimePostEvent: 3}, 30)
	scores := map[int64]float32{10: 20, 11: 90, 12: 45, 13: 30}
	var events []MotionEvent
	for i := int64(0); i < 40; i++ {
		score, motion := scores[i]
		closed, _ := tracker.Update(i, motion, score)
		if closed != nil {
			events = append(events, *closed)
		}
	}
	require.Len(t, events, 1)
	assert.Equal(t, int64(11), events[0].PeakFrame)
	assert.Equal(t, float32(90), events[0].PeakScore)
}
