package sink

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"dvrscan/video/process"
)

// MaskWriter emits the post-filter foreground mask of every processed
// frame to a side video file, upscaled back to source resolution.
type MaskWriter struct {
	writer *gocv.VideoWriter
	path   string
	width  int
	height int
	bgr    gocv.Mat
	big    gocv.Mat
}

// NewMaskWriter opens the side output file.
func NewMaskWriter(path string, codec string, fps float64, width, height int) (*MaskWriter, error) {
	w, err := gocv.VideoWriterFile(path, codec, fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("%w: opening mask output %s: %v", ErrEncoderUnavailable, path, err)
	}
	if !w.IsOpened() {
		w.Close()
		return nil, fmt.Errorf("%w: opening mask output %s", ErrEncoderUnavailable, path)
	}
	return &MaskWriter{
		writer: w,
		path:   path,
		width:  width,
		height: height,
		bgr:    gocv.NewMat(),
		big:    gocv.NewMat(),
	}, nil
}

// Write appends one frame's mask. Results without a mask are skipped.
func (m *MaskWriter) Write(det process.Result) error {
	if !det.HasMask {
		return nil
	}
	gocv.Resize(det.Mask, &m.big, image.Point{X: m.width, Y: m.height}, 0, 0, gocv.InterpolationNearestNeighbor)
	gocv.CvtColor(m.big, &m.bgr, gocv.ColorGrayToBGR)
	if err := m.writer.Write(m.bgr); err != nil {
		return fmt.Errorf("%w: %v", ErrEncoderFailed, err)
	}
	return nil
}

// Path returns the side output path.
func (m *MaskWriter) Path() string {
	return m.path
}

// Close finalizes the side output file.
func (m *MaskWriter) Close() error {
	m.bgr.Close()
	m.big.Close()
	return m.writer.Close()
}
