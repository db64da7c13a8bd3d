// Package process contains the per-frame motion detection pipeline, the
// event state machine, and the frame overlays.
package process

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Kind selects the background subtraction algorithm.
type Kind string

const (
	KindMOG2    Kind = "MOG2"
	KindCNT     Kind = "CNT"
	KindMOG2GPU Kind = "MOG2_GPU"
)

// ParseKind maps a user-supplied subtractor name to a Kind.
func ParseKind(name string) (Kind, error) {
	switch Kind(name) {
	case KindMOG2, KindCNT, KindMOG2GPU:
		return Kind(name), nil
	}
	return "", fmt.Errorf("unknown background subtractor %q", name)
}

// Subtractor maps successive grayscale frames to binary foreground masks.
// Implementations are stateful and must only be used from one goroutine.
type Subtractor interface {
	// Apply updates the background model with frame and writes the
	// foreground mask (0/255, single channel) to dst.
	Apply(frame gocv.Mat, dst *gocv.Mat)
	Close()
}

// NewSubtractor constructs the subtractor for the given kind. The GPU
// variant is not available in this build and is rejected during
// configuration validation before this is reached.
func NewSubtractor(kind Kind, varianceThreshold float64, learningRate float64) (Subtractor, error) {
	switch kind {
	case KindMOG2:
		if learningRate != -1 {
			log.Warnf("learning-rate %v not supported by the MOG2 binding, using automatic.", learningRate)
		}
		return newMOG2(varianceThreshold), nil
	case KindCNT:
		return newCNT(learningRate == 0), nil
	}
	return nil, fmt.Errorf("background subtractor %s is not available in this build", kind)
}

type mog2 struct {
	s gocv.BackgroundSubtractorMOG2
}

const mog2History = 500

func newMOG2(varianceThreshold float64) *mog2 {
	return &mog2{
		s: gocv.NewBackgroundSubtractorMOG2WithParams(mog2History, varianceThreshold, false),
	}
}

func (m *mog2) Apply(frame gocv.Mat, dst *gocv.Mat) {
	m.s.Apply(frame, dst)
}

func (m *mog2) Close() {
	m.s.Close()
}

// cnt is a counting-based subtractor: each pixel keeps a model value and a
// stability counter. A pixel close to its model grows more stable; once
// stable for minStability frames it is considered background. The gocv
// bindings do not cover the opencv-contrib bgsegm module, so the counting
// scheme is implemented here with the same defaults.
type cnt struct {
	minStability int32
	maxStability int32
	frozen       bool

	rows, cols int
	model      []uint8
	stability  []int32
}

const (
	cntMinStability = 15
	cntMaxStability = 15 * 60
	cntPixelDelta   = 30
)

func newCNT(frozen bool) *cnt {
	return &cnt{
		minStability: cntMinStability,
		maxStability: cntMaxStability,
		frozen:       frozen,
	}
}

func (c *cnt) Apply(frame gocv.Mat, dst *gocv.Mat) {
	rows, cols := frame.Rows(), frame.Cols()
	if c.model == nil || rows != c.rows || cols != c.cols {
		c.rows, c.cols = rows, cols
		c.model = make([]uint8, rows*cols)
		c.stability = make([]int32, rows*cols)
		src, _ := frame.DataPtrUint8()
		copy(c.model, src)
		// Seed the model as stable so a static scene is background from
		// the first frame.
		for i := range c.stability {
			c.stability[i] = c.minStability
		}
	}
	if dst.Empty() || dst.Rows() != rows || dst.Cols() != cols || dst.Type() != gocv.MatTypeCV8UC1 {
		dst.Close()
		*dst = gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC1)
	}
	src, _ := frame.DataPtrUint8()
	out, _ := dst.DataPtrUint8()
	for i, pix := range src {
		diff := int(pix) - int(c.model[i])
		if diff < 0 {
			diff = -diff
		}
		if diff > cntPixelDelta {
			out[i] = 255
			if !c.frozen {
				c.stability[i] = 0
				c.model[i] = pix
			}
			continue
		}
		if !c.frozen && c.stability[i] < c.maxStability {
			c.stability[i]++
		}
		if c.stability[i] >= c.minStability {
			out[i] = 0
		} else {
			out[i] = 255
		}
	}
}

func (c *cnt) Close() {
	c.model = nil
	c.stability = nil
}
