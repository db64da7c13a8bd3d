package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dvrscan/config"
)

func TestValidateRejectsGPUSubtractor(t *testing.T) {
	cfg := config.Default()
	cfg.BGSubtractor = "MOG2_GPU"
	err := validate(cfg, config.ModeScanOnly, Settings{}, []string{"a.mp4"})
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestValidateRejectsMultiInputExternalEncoder(t *testing.T) {
	cfg := config.Default()
	inputs := []string{"a.mp4", "b.mp4"}
	for _, mode := range []config.OutputMode{config.ModeFFmpeg, config.ModeCopy} {
		err := validate(cfg, mode, Settings{}, inputs)
		assert.ErrorIs(t, err, config.ErrInvalid, "mode %s", mode)
	}
	// The native encoder accepts multiple inputs per-event.
	assert.NoError(t, validate(cfg, config.ModeOpenCV, Settings{}, inputs))
}

func TestValidateRejectsSingleOutputWithMultipleInputs(t *testing.T) {
	cfg := config.Default()
	err := validate(cfg, config.ModeOpenCV, Settings{SingleOutput: "out.avi"}, []string{"a.mp4", "b.mp4"})
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestMapKernelSize(t *testing.T) {
	assert.Equal(t, 0, mapKernelSize(-1)) // auto
	assert.Equal(t, -1, mapKernelSize(0)) // off
	assert.Equal(t, 7, mapKernelSize(7))
}

func TestResolveFrames(t *testing.T) {
	frames, err := resolveFrames("0.5s", 30)
	require.NoError(t, err)
	assert.Equal(t, int64(15), frames)

	frames, err = resolveFrames("45", 30)
	require.NoError(t, err)
	assert.Equal(t, int64(45), frames)

	_, err = resolveFrames("bogus", 30)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestExpandInputsKeepsOrder(t *testing.T) {
	inputs, err := expandInputs([]string{"b.mp4", "a.mp4"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b.mp4", "a.mp4"}, inputs)
}
