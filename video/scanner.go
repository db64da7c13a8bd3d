// Package video runs the scan pipeline: a decode, a detect, and an encode
// worker joined by bounded queues, plus the pre-roll frame history.
package video

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"dvrscan/timecode"
	"dvrscan/video/process"
	"dvrscan/video/sink"
	"dvrscan/video/source"
)

// Capacity of the queues between the pipeline stages.
const queueDepth = 4

// Processor is the per-frame detection stage. Implemented by
// *process.Detector; scanner tests substitute a fake.
type Processor interface {
	Process(frame *source.Frame) process.Result
	Close()
}

// ScannerOptions compose a scan over an opened source.
type ScannerOptions struct {
	Source    source.Source
	Processor Processor
	Tracker   *process.Tracker
	Sink      sink.Sink

	// FrameSkip drops this many frames per processed frame at the decode
	// stage.
	FrameSkip int
	// PreRoll is time-before-event in decoded frames, sizing the frame
	// history available when an event opens.
	PreRoll int64
	// MinEventLength in decoded frames, also sizing the frame history.
	MinEventLength int64

	// StartFrame and EndFrame bound the scan; EndFrame 0 means the end
	// of the stream (exclusive otherwise).
	StartFrame int64
	EndFrame   int64

	// MaskWriter, when set, receives every processed frame's foreground
	// mask.
	MaskWriter *sink.MaskWriter
	// ThumbnailDir, when set, receives one JPEG per event of the frame
	// with the highest score.
	ThumbnailDir string

	Observers []ProgressFunc
}

// ScanResult is what a completed (or canceled) scan produced.
type ScanResult struct {
	Events     []process.MotionEvent
	Outputs    []string
	FramesRead int64
}

// Scanner owns one scan. It is not safe for concurrent use, but a
// completed Scanner may be discarded and a new one built for the next run.
type Scanner struct {
	opts ScannerOptions

	events  atomic.Int64
	read    atomic.Int64
	errOnce sync.Once
	err     error
	cancel  context.CancelFunc
}

// NewScanner validates the options.
func NewScanner(opts ScannerOptions) (*Scanner, error) {
	if opts.Source == nil || opts.Processor == nil || opts.Tracker == nil || opts.Sink == nil {
		return nil, fmt.Errorf("scanner: source, processor, tracker and sink are required")
	}
	return &Scanner{opts: opts}, nil
}

// detected is the unit flowing from the detect stage to the encode stage.
// A nil frame carries only an event boundary (the end-of-stream flush).
type detected struct {
	frame     *source.Frame
	det       process.Result
	opened    bool
	openStart int64
	closed    *process.MotionEvent
}

func (s *Scanner) fail(err error) {
	s.errOnce.Do(func() {
		s.err = err
		log.Errorf("Scan failed: %v", err)
	})
	s.cancel()
}

// Scan runs the pipeline to completion or cancellation. Cancellation via
// ctx is not an error: the events emitted so far are returned.
func (s *Scanner) Scan(ctx context.Context) (*ScanResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	if s.opts.StartFrame > 0 {
		if err := s.opts.Source.Seek(s.opts.StartFrame); err != nil {
			return nil, err
		}
	}

	decodeCh := make(chan *source.Frame, queueDepth)
	encodeCh := make(chan detected, queueDepth)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer close(decodeCh)
		s.decodeLoop(ctx, decodeCh)
	}()
	go func() {
		defer wg.Done()
		defer close(encodeCh)
		s.detectLoop(ctx, decodeCh, encodeCh)
	}()

	result := s.encodeLoop(ctx, encodeCh)
	wg.Wait()

	result.FramesRead = s.read.Load()
	if s.err != nil {
		return result, s.err
	}
	return result, nil
}

// decodeLoop reads frames, applies the frame skip, and reports progress.
func (s *Scanner) decodeLoop(ctx context.Context, out chan<- *source.Frame) {
	meta := s.opts.Source.Metadata()
	step := int64(s.opts.FrameSkip) + 1
	for {
		if ctx.Err() != nil {
			return
		}
		frame, err := s.opts.Source.Read()
		if err != nil {
			s.fail(err)
			return
		}
		if frame == nil {
			return
		}
		if s.opts.EndFrame > 0 && frame.Index >= s.opts.EndFrame {
			frame.Close()
			return
		}
		read := s.read.Add(1)
		for _, observe := range s.opts.Observers {
			observe(Progress{
				FramesProcessed: read,
				TotalEstimate:   meta.TotalFrames,
				Events:          int(s.events.Load()),
			})
		}
		if (frame.Index-s.opts.StartFrame)%step != 0 {
			frame.Close()
			continue
		}
		select {
		case out <- frame:
		case <-ctx.Done():
			frame.Close()
			return
		}
	}
}

// detectLoop owns the subtractor and tracker state. Frames must be
// processed strictly in order; the subtractor is stateful.
func (s *Scanner) detectLoop(ctx context.Context, in <-chan *source.Frame, out chan<- detected) {
	defer s.opts.Processor.Close()
	canceled := false
	lastIndex := int64(-1)
	for frame := range in {
		if canceled || ctx.Err() != nil {
			canceled = true
			frame.Close()
			continue
		}
		det := s.opts.Processor.Process(frame)
		closed, opened := s.opts.Tracker.Update(frame.Index, det.HasMotion, det.Score)
		if closed != nil {
			s.events.Add(1)
		}
		lastIndex = frame.Index
		item := detected{
			frame:     frame,
			det:       det,
			opened:    opened,
			openStart: s.opts.Tracker.OpenStart(),
			closed:    closed,
		}
		select {
		case out <- item:
		case <-ctx.Done():
			canceled = true
			item.release()
		}
	}
	// Close any open event at end of stream.
	if lastIndex >= 0 {
		if final := s.opts.Tracker.Finish(lastIndex + 1); final != nil {
			s.events.Add(1)
			select {
			case out <- detected{closed: final}:
			case <-ctx.Done():
			}
		}
	}
}

func (d *detected) release() {
	if d.frame != nil {
		d.frame.Close()
	}
	if d.det.HasMask {
		d.det.Mask.Close()
		d.det.HasMask = false
	}
}

// encodeLoop owns the sink, the pre-roll history, and the thumbnail
// state. It drains its input even after cancellation so that the other
// workers never block on a full queue.
func (s *Scanner) encodeLoop(ctx context.Context, in <-chan detected) *ScanResult {
	meta := s.opts.Source.Metadata()
	step := int64(s.opts.FrameSkip) + 1
	capacity := int((s.opts.PreRoll+s.opts.MinEventLength*step)/step) + 2
	preroll := newPrerollBuffer(capacity)
	defer preroll.drain()

	result := &ScanResult{}
	recording := false
	interrupted := false
	eventNum := 0

	var thumb *source.Frame
	var thumbScore float32
	closeThumb := func() {
		if thumb != nil {
			thumb.Close()
			thumb = nil
		}
	}
	defer closeThumb()

	noteThumb := func(frame *source.Frame, score float32) {
		if s.opts.ThumbnailDir == "" {
			return
		}
		if thumb == nil || score > thumbScore {
			closeThumb()
			clone := frame.Clone()
			thumb = &clone
			thumbScore = score
		}
	}

	writeThumb := func() {
		if s.opts.ThumbnailDir == "" || thumb == nil {
			return
		}
		path := filepath.Join(s.opts.ThumbnailDir, fmt.Sprintf("thumbnail_%04d.jpg", eventNum))
		if err := process.WriteThumb(path, thumb); err != nil {
			log.Warnf("Failed to write thumbnail for event %d: %v", eventNum, err)
		} else {
			result.Outputs = append(result.Outputs, path)
		}
		closeThumb()
	}

	for item := range in {
		if ctx.Err() != nil && s.err != nil {
			// Fatal error elsewhere: just drain.
			item.release()
			continue
		}
		if item.closed != nil {
			// The current frame, if any, is past the event's exclusive
			// end and is not written.
			result.Events = append(result.Events, *item.closed)
			if recording {
				if err := s.opts.Sink.EndEvent(*item.closed); err != nil {
					s.fail(err)
				}
				writeThumb()
				recording = false
			}
		}
		if item.frame == nil {
			continue
		}
		if s.opts.MaskWriter != nil {
			if err := s.opts.MaskWriter.Write(item.det); err != nil {
				s.fail(err)
			}
		}
		if item.opened && s.err == nil {
			eventNum++
			start := timecode.FromFrames(item.openStart, meta.FPS)
			if err := s.opts.Sink.StartEvent(eventNum, start); err != nil {
				s.fail(err)
			} else {
				recording = true
				err := preroll.from(item.openStart, func(f *source.Frame, d process.Result) error {
					noteThumb(f, d.Score)
					return s.opts.Sink.Write(f, d)
				})
				if err != nil {
					s.fail(err)
					recording = false
				}
			}
		}
		if recording && s.err == nil {
			noteThumb(item.frame, item.det.Score)
			if err := s.opts.Sink.Write(item.frame, item.det); err != nil {
				s.fail(err)
				recording = false
			}
		}
		if item.det.HasMask {
			item.det.Mask.Close()
			item.det.HasMask = false
		}
		preroll.add(item.frame, item.det)
	}

	if ctx.Err() != nil && recording {
		interrupted = true
	}
	outputs, err := s.opts.Sink.Finish(interrupted)
	if err != nil {
		s.fail(err)
	}
	result.Outputs = append(result.Outputs, outputs...)
	if s.opts.MaskWriter != nil {
		if err := s.opts.MaskWriter.Close(); err != nil {
			s.fail(err)
		} else {
			result.Outputs = append(result.Outputs, s.opts.MaskWriter.Path())
		}
	}
	return result
}
