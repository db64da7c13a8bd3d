package process

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"dvrscan/video/source"
)

// OverlayConfig controls which overlays are drawn and how.
type OverlayConfig struct {
	TimeCode     bool
	FrameMetrics bool
	BoundingBox  bool

	TextMargin        int
	TextBorder        int
	TextFontScale     float64
	TextFontThickness int
	TextColor         color.RGBA
	TextBGColor       color.RGBA

	BoxColor          color.RGBA
	BoxThicknessRatio float64 // relative to longest frame edge
	BoxMinSizeRatio   float64 // minimum box side relative to longest frame edge
	BoxSmoothTime     float64 // seconds; 0 disables smoothing
}

// Renderer draws timecode, frame metrics, and a temporally smoothed
// bounding box onto output frames.
type Renderer struct {
	cfg  OverlayConfig
	fps  float64
	step int // frame skip + 1

	// Smoothed box state, in source coordinates.
	cx, cy, w, h float64
	hasBox       bool
}

// NewRenderer creates a renderer for a stream at the given framerate.
// step is frameSkip+1 and scales the smoothing time constant.
func NewRenderer(cfg OverlayConfig, fps float64, frameSkip int) *Renderer {
	return &Renderer{cfg: cfg, fps: fps, step: frameSkip + 1}
}

// Draw annotates the frame in place based on the detection result.
func (r *Renderer) Draw(frame *source.Frame, det Result) {
	if r.cfg.BoundingBox {
		r.drawBox(frame, det)
	}
	if r.cfg.TimeCode {
		r.drawText(frame, frame.PTS.String(), false)
	}
	if r.cfg.FrameMetrics {
		r.drawText(frame, fmt.Sprintf("frame=%d  score=%.2f", det.Index, det.Score), true)
	}
}

const overlayFont = gocv.FontHersheySimplex

// drawText renders one line of text with a filled background, anchored to
// the top-left or top-right corner.
func (r *Renderer) drawText(frame *source.Frame, text string, right bool) {
	size := gocv.GetTextSize(text, overlayFont, r.cfg.TextFontScale, r.cfg.TextFontThickness)
	margin := r.cfg.TextMargin
	border := r.cfg.TextBorder
	x := margin
	if right {
		x = frame.Mat.Cols() - margin - size.X - 2*border
		if x < 0 {
			x = 0
		}
	}
	bg := image.Rect(x, margin, x+size.X+2*border, margin+size.Y+2*border)
	gocv.Rectangle(&frame.Mat, bg, r.cfg.TextBGColor, -1)
	org := image.Point{X: x + border, Y: margin + border + size.Y}
	gocv.PutText(&frame.Mat, text, org, overlayFont, r.cfg.TextFontScale, r.cfg.TextColor, r.cfg.TextFontThickness)
}

// drawBox updates the exponentially smoothed bounding box and draws it.
// When the current frame has no box, the smoothed box decays in size
// toward its last location and disappears once empty.
func (r *Renderer) drawBox(frame *source.Frame, det Result) {
	var raw [4]float64 // cx, cy, w, h
	if det.HasBox {
		raw[0] = float64(det.Box.Min.X+det.Box.Max.X) / 2
		raw[1] = float64(det.Box.Min.Y+det.Box.Max.Y) / 2
		raw[2] = float64(det.Box.Dx())
		raw[3] = float64(det.Box.Dy())
	} else if r.hasBox {
		raw[0], raw[1] = r.cx, r.cy
	} else {
		return
	}

	alpha := 1.0
	if r.cfg.BoxSmoothTime > 0 && r.fps > 0 {
		dt := float64(r.step) / r.fps
		alpha = 1 - math.Exp(-dt/r.cfg.BoxSmoothTime)
	}
	if !r.hasBox {
		r.cx, r.cy, r.w, r.h = raw[0], raw[1], raw[2], raw[3]
		r.hasBox = true
	} else {
		r.cx = alpha*raw[0] + (1-alpha)*r.cx
		r.cy = alpha*raw[1] + (1-alpha)*r.cy
		r.w = alpha*raw[2] + (1-alpha)*r.w
		r.h = alpha*raw[3] + (1-alpha)*r.h
	}
	if !det.HasBox && r.w < 1 && r.h < 1 {
		r.hasBox = false
		return
	}

	maxSide := frame.Mat.Cols()
	if frame.Mat.Rows() > maxSide {
		maxSide = frame.Mat.Rows()
	}
	w, h := r.w, r.h
	if minSide := r.cfg.BoxMinSizeRatio * float64(maxSide); minSide >= 1 {
		if w < minSide {
			w = minSide
		}
		if h < minSide {
			h = minSide
		}
	}
	box := image.Rect(
		int(math.Round(r.cx-w/2)), int(math.Round(r.cy-h/2)),
		int(math.Round(r.cx+w/2)), int(math.Round(r.cy+h/2)),
	)
	if box.Min.X < 0 {
		box.Min.X = 0
	}
	if box.Min.Y < 0 {
		box.Min.Y = 0
	}
	thickness := int(math.Round(r.cfg.BoxThicknessRatio * float64(maxSide) / 2))
	thickness *= 2
	if thickness < 2 {
		thickness = 2
	}
	gocv.Rectangle(&frame.Mat, box, r.cfg.BoxColor, thickness)
}

// Reset clears the smoothing state, for use between events.
func (r *Renderer) Reset() {
	r.hasBox = false
	r.cx, r.cy, r.w, r.h = 0, 0, 0, 0
}
