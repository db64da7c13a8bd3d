package sink

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dvrscan/timecode"
	"dvrscan/video/process"
)

func testEvent() process.MotionEvent {
	return process.MotionEvent{
		Start: timecode.FromFrames(300, 30), // 10s
		End:   timecode.FromFrames(450, 30), // 15s
	}
}

func TestFFmpegBuildArgsReencode(t *testing.T) {
	s := &FFmpeg{
		opts: FFmpegOptions{
			Input:      "/videos/cam1.mp4",
			OutputDir:  "/out",
			InputArgs:  DefaultFFmpegInputArgs,
			OutputArgs: DefaultFFmpegOutputArgs,
		},
		stem: "cam1",
		num:  1,
	}
	out := s.eventPath()
	assert.Equal(t, "/out/cam1.DSME_0001.mp4", out)

	args, err := s.buildArgs(testEvent(), out)
	require.NoError(t, err)
	joined := strings.Join(args, " ")
	assert.True(t, strings.HasPrefix(joined, "-y -nostdin -v error "))
	assert.Contains(t, joined, "-ss 00:00:10.000 -i /videos/cam1.mp4 -t 00:00:05.000")
	assert.Contains(t, joined, "-c:v libx264")
	assert.True(t, strings.HasSuffix(joined, out))
}

func TestFFmpegBuildArgsCopyModeOverridesOutputArgs(t *testing.T) {
	s := &FFmpeg{
		opts: FFmpegOptions{
			Input:      "event.avi",
			Copy:       true,
			InputArgs:  DefaultFFmpegInputArgs,
			OutputArgs: DefaultFFmpegOutputArgs,
		},
		stem: "event",
		num:  12,
	}
	out := s.eventPath()
	assert.Equal(t, "event.DSME_0012.avi", out)

	args, err := s.buildArgs(testEvent(), out)
	require.NoError(t, err)
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-c:v copy")
	assert.NotContains(t, joined, "libx264")
}

func TestFFmpegBuildArgsMixedFramerate(t *testing.T) {
	s := &FFmpeg{opts: FFmpegOptions{Input: "a.mp4"}, stem: "a", num: 1}
	ev := process.MotionEvent{
		Start: timecode.FromFrames(10, 30),
		End:   timecode.FromFrames(20, 25),
	}
	_, err := s.buildArgs(ev, "x.mp4")
	assert.ErrorIs(t, err, timecode.ErrMixedFramerate)
}

func TestOpenCVEventNaming(t *testing.T) {
	s, err := NewOpenCV(OpenCVOptions{
		OutputDir: "/out",
		InputStem: "driveway",
		Codec:     "XVID",
		FPS:       30,
		Width:     640,
		Height:    480,
	})
	require.NoError(t, err)
	assert.Equal(t, "/out/driveway.DSME_0001.avi", s.eventPath(1))
	assert.Equal(t, "/out/driveway.DSME_0023.avi", s.eventPath(23))
}

func TestOpenCVRejectsBadCodec(t *testing.T) {
	_, err := NewOpenCV(OpenCVOptions{Codec: "X"})
	assert.ErrorIs(t, err, ErrEncoderUnavailable)
}

func TestOpenCVNoEventsNoFiles(t *testing.T) {
	s, err := NewOpenCV(OpenCVOptions{
		InputStem: "empty", Codec: "XVID", FPS: 30, Width: 64, Height: 48,
	})
	require.NoError(t, err)
	outputs, err := s.Finish(false)
	require.NoError(t, err)
	assert.Empty(t, outputs)
}
