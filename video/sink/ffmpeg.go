package sink

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"dvrscan/timecode"
	"dvrscan/util"
	"dvrscan/video/process"
	"dvrscan/video/source"
)

// Default argument strings handed to ffmpeg when the user supplies none.
const (
	DefaultFFmpegInputArgs  = "-v error"
	DefaultFFmpegOutputArgs = "-map 0 -c:v libx264 -preset fast -crf 21 -c:a aac -sn"
	// Stream-copy arguments used by copy mode instead of OutputArgs.
	copyOutputArgs = "-map 0 -c:v copy -c:a copy -sn"
)

// FFmpegOptions configures the external encoder sink.
type FFmpegOptions struct {
	// Input is the single original input file events are cut from.
	Input     string
	OutputDir string
	// Copy selects stream copy instead of re-encoding.
	Copy bool
	// InputArgs are inserted before -i, OutputArgs before the output
	// path. Both are whitespace-separated argument strings.
	InputArgs  string
	OutputArgs string
	// Timeout bounds each encoder invocation. Zero means unbounded.
	Timeout time.Duration
}

// FFmpeg extracts each finished event by invoking the external encoder
// with cut timestamps over the original input; frames flowing through the
// pipeline are not re-encoded here.
type FFmpeg struct {
	opts    FFmpegOptions
	binary  string
	stem    string
	num     int
	outputs []string
}

// NewFFmpeg locates the encoder binary up front so a missing binary fails
// the run before scanning starts.
func NewFFmpeg(opts FFmpegOptions) (*FFmpeg, error) {
	binary, err := util.LocateFFmpeg()
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not found on PATH (set FFMPEG to override)", ErrEncoderUnavailable)
	}
	base := filepath.Base(opts.Input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if opts.InputArgs == "" {
		opts.InputArgs = DefaultFFmpegInputArgs
	}
	if opts.OutputArgs == "" {
		opts.OutputArgs = DefaultFFmpegOutputArgs
	}
	return &FFmpeg{opts: opts, binary: binary, stem: stem}, nil
}

// StartEvent implements Sink.
func (s *FFmpeg) StartEvent(num int, start timecode.Timecode) error {
	s.num = num
	return nil
}

// Write implements Sink. The external encoder reads the original file, so
// decoded frames are dropped here.
func (s *FFmpeg) Write(frame *source.Frame, det process.Result) error {
	return nil
}

// eventPath derives the output file name for the current event.
func (s *FFmpeg) eventPath() string {
	ext := filepath.Ext(s.opts.Input)
	if ext == "" {
		ext = ".mp4"
	}
	return filepath.Join(s.opts.OutputDir, fmt.Sprintf("%s.DSME_%04d%s", s.stem, s.num, ext))
}

// buildArgs assembles the encoder command line for one event.
func (s *FFmpeg) buildArgs(ev process.MotionEvent, out string) ([]string, error) {
	duration, err := ev.End.Sub(ev.Start)
	if err != nil {
		return nil, err
	}
	outputArgs := s.opts.OutputArgs
	if s.opts.Copy {
		outputArgs = copyOutputArgs
	}
	args := []string{"-y", "-nostdin"}
	args = append(args, strings.Fields(s.opts.InputArgs)...)
	args = append(args,
		"-ss", ev.Start.String(),
		"-i", s.opts.Input,
		"-t", timecode.FromFrames(duration, ev.Start.FPS()).String(),
	)
	args = append(args, strings.Fields(outputArgs)...)
	return append(args, out), nil
}

// EndEvent implements Sink: cut the finished event out of the input.
func (s *FFmpeg) EndEvent(ev process.MotionEvent) error {
	out := s.eventPath()
	args, err := s.buildArgs(ev, out)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	log.Debugf("Running %s %s", s.binary, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, s.binary, args...)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: event %d: %v", ErrEncoderFailed, s.num, err)
	}
	s.outputs = append(s.outputs, out)
	return nil
}

// Finish implements Sink.
func (s *FFmpeg) Finish(bool) ([]string, error) {
	return s.outputs, nil
}
