package process

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"dvrscan/timecode"
	"dvrscan/video/source"
)

func overlayTestConfig() OverlayConfig {
	return OverlayConfig{
		TimeCode:          true,
		FrameMetrics:      true,
		BoundingBox:       true,
		TextMargin:        4,
		TextBorder:        4,
		TextFontScale:     1.0,
		TextFontThickness: 2,
		TextColor:         color.RGBA{R: 255, G: 255, B: 255, A: 255},
		TextBGColor:       color.RGBA{A: 255},
		BoxColor:          color.RGBA{R: 255, A: 255},
		BoxThicknessRatio: 0.0032,
		BoxMinSizeRatio:   0.032,
		BoxSmoothTime:     0.1,
	}
}

func blankFrame(index int64) *source.Frame {
	return &source.Frame{
		Index: index,
		Mat:   gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3),
		PTS:   timecode.FromFrames(index, 30),
	}
}

func TestRendererDrawsOverlays(t *testing.T) {
	r := NewRenderer(overlayTestConfig(), 30, 0)
	frame := blankFrame(42)
	defer frame.Close()

	det := Result{
		Index:     42,
		Score:     12.34,
		HasMotion: true,
		HasBox:    true,
		Box:       image.Rect(100, 100, 200, 200),
	}
	r.Draw(frame, det)
	// Something was drawn onto the black frame.
	red := channelOf(frame.Mat, 2)
	defer red.Close()
	assert.Greater(t, gocv.CountNonZero(red), 0)
}

func TestBoxSmoothingConvergesAndDecays(t *testing.T) {
	cfg := overlayTestConfig()
	cfg.TimeCode = false
	cfg.FrameMetrics = false
	r := NewRenderer(cfg, 30, 0)

	box := image.Rect(100, 100, 200, 200)
	det := Result{HasBox: true, Box: box}
	for i := 0; i < 60; i++ {
		frame := blankFrame(int64(i))
		r.Draw(frame, det)
		frame.Close()
	}
	// After 2 seconds at T=0.1s the smoothed box has converged: its area
	// is within 2x of the raw box area.
	area := r.w * r.h
	raw := float64(box.Dx() * box.Dy())
	require.Greater(t, area, 0.0)
	assert.Less(t, math.Abs(area-raw)/raw, 1.0)
	assert.InDelta(t, 150.0, r.cx, 2.0)
	assert.InDelta(t, 150.0, r.cy, 2.0)

	// With no current box, the smoothed box decays and eventually
	// disappears.
	for i := 0; i < 600 && r.hasBox; i++ {
		frame := blankFrame(int64(60 + i))
		r.Draw(frame, Result{})
		frame.Close()
	}
	assert.False(t, r.hasBox)
}

func TestRendererResetClearsState(t *testing.T) {
	cfg := overlayTestConfig()
	r := NewRenderer(cfg, 30, 0)
	frame := blankFrame(0)
	defer frame.Close()
	r.Draw(frame, Result{HasBox: true, Box: image.Rect(0, 0, 50, 50)})
	require.True(t, r.hasBox)
	r.Reset()
	assert.False(t, r.hasBox)
}

func channelOf(m gocv.Mat, c int) gocv.Mat {
	chans := gocv.Split(m)
	for i, ch := range chans {
		if i != c {
			ch.Close()
		}
	}
	return chans[c]
}
