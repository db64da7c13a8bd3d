package video

import (
	"github.com/bmharper/ringbuffer"
	"gocv.io/x/gocv"

	"dvrscan/video/process"
	"dvrscan/video/source"
)

// buffered is one processed frame held for pre-roll, together with its
// detection result (mask previews are not retained).
type buffered struct {
	frame *source.Frame
	det   process.Result
}

// prerollBuffer keeps the most recent processed frames so that an opening
// event can reach back time-before-event frames without re-seeking the
// source. Evicted frames are released.
type prerollBuffer struct {
	ring ringbuffer.RingP[buffered]
	size int
}

func newPrerollBuffer(capacity int) *prerollBuffer {
	size := nextPowerOf2(capacity)
	return &prerollBuffer{
		ring: ringbuffer.NewRingP[buffered](size),
		size: size,
	}
}

// add takes ownership of the frame.
func (b *prerollBuffer) add(frame *source.Frame, det process.Result) {
	if b.ring.Len() == b.size {
		b.ring.Peek(0).frame.Close()
	}
	det.Mask, det.HasMask = gocv.Mat{}, false
	b.ring.Add(buffered{frame: frame, det: det})
}

// from visits the buffered frames with index >= start, oldest first.
func (b *prerollBuffer) from(start int64, visit func(*source.Frame, process.Result) error) error {
	for i := 0; i < b.ring.Len(); i++ {
		item := b.ring.Peek(i)
		if item.frame.Index < start {
			continue
		}
		if err := visit(item.frame, item.det); err != nil {
			return err
		}
	}
	return nil
}

// drain releases every buffered frame.
func (b *prerollBuffer) drain() {
	for i := 0; i < b.ring.Len(); i++ {
		b.ring.Peek(i).frame.Close()
	}
	b.ring = ringbuffer.NewRingP[buffered](b.size)
}

func nextPowerOf2(v int) int {
	n := 1
	for n < v {
		n *= 2
	}
	return n
}
