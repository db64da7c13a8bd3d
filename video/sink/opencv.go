package sink

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"dvrscan/timecode"
	"dvrscan/video/process"
	"dvrscan/video/source"
)

// OpenCVOptions configures the native encoder sink.
type OpenCVOptions struct {
	// OutputDir receives per-event files. Ignored in single-file mode.
	OutputDir string
	// InputStem is the first input's filename without extension, used to
	// derive per-event output names.
	InputStem string
	// SinglePath, when set, writes all events into one file instead of
	// one file per event. Only valid when there is a single input.
	SinglePath string
	// Codec is the four-character code handed to the writer.
	Codec  string
	FPS    float64
	Width  int
	Height int
	// Overlay annotates frames before they are encoded. Optional.
	Overlay *process.Renderer
}

// OpenCV writes event frames with the gocv VideoWriter, either one file
// per event or a single concatenated file.
type OpenCV struct {
	opts OpenCVOptions

	writer  *gocv.VideoWriter
	current string
	outputs []string
}

// NewOpenCV validates the options and returns the sink. Writers open
// lazily: a run with zero events creates no files.
func NewOpenCV(opts OpenCVOptions) (*OpenCV, error) {
	if len(opts.Codec) != 4 {
		return nil, fmt.Errorf("%w: codec must be a four-character code (got %q)", ErrEncoderUnavailable, opts.Codec)
	}
	return &OpenCV{opts: opts}, nil
}

func (s *OpenCV) single() bool {
	return s.opts.SinglePath != ""
}

func (s *OpenCV) eventPath(num int) string {
	name := fmt.Sprintf("%s.DSME_%04d.avi", s.opts.InputStem, num)
	return filepath.Join(s.opts.OutputDir, name)
}

// StartEvent implements Sink.
func (s *OpenCV) StartEvent(num int, start timecode.Timecode) error {
	path := s.opts.SinglePath
	if !s.single() {
		path = s.eventPath(num)
	}
	if s.writer == nil {
		w, err := gocv.VideoWriterFile(path, s.opts.Codec, s.opts.FPS, s.opts.Width, s.opts.Height, true)
		if err != nil {
			return fmt.Errorf("%w: opening %s: %v", ErrEncoderUnavailable, path, err)
		}
		if !w.IsOpened() {
			w.Close()
			return fmt.Errorf("%w: opening %s with codec %s", ErrEncoderUnavailable, path, s.opts.Codec)
		}
		s.writer = w
		s.current = path
		log.Debugf("Writing event %d to %s", num, path)
	}
	if s.opts.Overlay != nil {
		s.opts.Overlay.Reset()
	}
	return nil
}

// Write implements Sink.
func (s *OpenCV) Write(frame *source.Frame, det process.Result) error {
	if s.writer == nil {
		return fmt.Errorf("%w: write outside of event", ErrEncoderFailed)
	}
	if s.opts.Overlay != nil {
		s.opts.Overlay.Draw(frame, det)
	}
	if err := s.writer.Write(frame.Mat); err != nil {
		return fmt.Errorf("%w: %v", ErrEncoderFailed, err)
	}
	return nil
}

// EndEvent implements Sink. In single-file mode the writer stays open
// across events.
func (s *OpenCV) EndEvent(ev process.MotionEvent) error {
	if s.writer == nil || s.single() {
		return nil
	}
	s.outputs = append(s.outputs, s.current)
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %v", ErrEncoderFailed, s.current, err)
	}
	s.writer = nil
	s.current = ""
	return nil
}

// Finish implements Sink. A partially written per-event file from an
// interrupted event is deleted; in single-file mode whatever was written
// is kept.
func (s *OpenCV) Finish(interrupted bool) ([]string, error) {
	if s.writer != nil {
		s.writer.Close()
		s.writer = nil
		if s.single() {
			s.outputs = append(s.outputs, s.current)
		} else if interrupted {
			log.Debugf("Removing partial event output %s", s.current)
			os.Remove(s.current)
		}
	}
	return s.outputs, nil
}
