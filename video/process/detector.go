package process

import (
	"fmt"
	"image"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"dvrscan/region"
	"dvrscan/video/source"
)

// DetectorConfig holds the per-frame pipeline parameters. Zero values of
// KernelSize and DownscaleFactor select resolution-based defaults; a
// KernelSize of -1 disables morphological filtering.
type DetectorConfig struct {
	Kind              Kind
	Threshold         float32
	MaxThreshold      float32
	VarianceThreshold float64
	LearningRate      float64
	KernelSize        int // 0 = auto, -1 = off, otherwise odd >= 3
	DownscaleFactor   int // 0 = auto
	FrameSkip         int
	MaxArea           float32 // fraction of frame area, 1.0 disables
	MaxWidth          float32 // fraction of frame width, 1.0 disables
	MaxHeight         float32 // fraction of frame height, 1.0 disables

	// KeepMask attaches a clone of the post-filter foreground mask to
	// every result, for mask output mode.
	KeepMask bool
}

// Result is the outcome of processing one frame.
type Result struct {
	Index     int64
	Score     float32
	HasMotion bool
	// Box is the enclosing box of the foreground in source coordinates.
	// Only valid when HasBox is set.
	Box    image.Rectangle
	HasBox bool
	// Mask is the post-filter foreground mask at working resolution,
	// owned by the receiver. Only valid when HasMask is set.
	Mask    gocv.Mat
	HasMask bool
}

// Detector runs the downscale -> mask -> subtract -> open -> score chain.
// It owns the subtractor state and must only be used from one goroutine.
type Detector struct {
	cfg        DetectorConfig
	sub        Subtractor
	downscale  int
	frameSize  image.Point // source resolution
	mask       gocv.Mat    // working-resolution region mask, empty if all-in
	hasMask    bool
	inRegion   int // pixel count of the working-resolution region
	kernel     gocv.Mat
	hasKernel  bool
	gray       gocv.Mat
	work       gocv.Mat
	masked     gocv.Mat
	foreground gocv.Mat
	opened     gocv.Mat
}

// NewDetector builds a detector for the given stream parameters. The
// region may be empty, in which case the whole frame is measured.
func NewDetector(cfg DetectorConfig, meta source.Metadata, reg region.Region) (*Detector, error) {
	sub, err := NewSubtractor(cfg.Kind, cfg.VarianceThreshold, cfg.LearningRate)
	if err != nil {
		return nil, err
	}
	d := &Detector{
		cfg:        cfg,
		sub:        sub,
		frameSize:  image.Point{X: meta.Width, Y: meta.Height},
		downscale:  cfg.DownscaleFactor,
		gray:       gocv.NewMat(),
		work:       gocv.NewMat(),
		masked:     gocv.NewMat(),
		foreground: gocv.NewMat(),
		opened:     gocv.NewMat(),
	}
	if d.downscale <= 0 {
		d.downscale = autoDownscale(meta.Height)
		log.Debugf("Downscale factor: %d (auto)", d.downscale)
	}
	workW := (meta.Width + d.downscale - 1) / d.downscale
	workH := (meta.Height + d.downscale - 1) / d.downscale
	d.inRegion = workW * workH
	if len(reg) > 0 {
		full := reg.Mask(meta.Width, meta.Height)
		d.mask = region.Downscale(full, d.downscale)
		full.Close()
		d.hasMask = true
		d.inRegion = gocv.CountNonZero(d.mask)
		log.Debugf("Region mask: %d of %d working pixels in region.", d.inRegion, workW*workH)
	}
	kernelSize, err := kernelSizeFor(cfg.KernelSize, meta.Height, d.downscale)
	if err != nil {
		d.close()
		return nil, err
	}
	if kernelSize > 0 {
		d.kernel = gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: kernelSize, Y: kernelSize})
		d.hasKernel = true
		log.Debugf("Morphological kernel size: %d", kernelSize)
	}
	return d, nil
}

// autoDownscale picks a subsampling factor from the source height.
func autoDownscale(height int) int {
	switch {
	case height <= 480:
		return 1
	case height <= 720:
		return 2
	case height <= 1080:
		return 3
	}
	return 4
}

// kernelSizeFor resolves the morphological kernel side length. Auto sizing
// follows the source resolution, then shrinks with the downscale factor to
// keep the absolute scale constant.
func kernelSizeFor(configured, height, downscale int) (int, error) {
	if configured < 0 {
		return 0, nil
	}
	if configured > 0 {
		if configured%2 == 0 || configured < 3 {
			return 0, fmt.Errorf("kernel size must be an odd integer >= 3 (got %d)", configured)
		}
		return configured, nil
	}
	var size int
	switch {
	case height <= 480:
		size = 3
	case height <= 720:
		size = 5
	default:
		size = 7
	}
	if downscale > 1 {
		size = (size + downscale/2) / downscale
		if size%2 == 0 {
			size++
		}
		if size < 3 {
			size = 3
		}
	}
	return size, nil
}

// Process runs the detection chain on one frame. The frame is not
// modified or retained.
func (d *Detector) Process(frame *source.Frame) Result {
	res := Result{Index: frame.Index}

	gocv.CvtColor(frame.Mat, &d.gray, gocv.ColorBGRToGray)
	subsample(d.gray, &d.work, d.downscale)

	in := d.work
	if d.hasMask {
		region.Apply(d.mask, d.work, &d.masked)
		in = d.masked
	}

	d.sub.Apply(in, &d.foreground)

	post := d.foreground
	if d.hasKernel {
		gocv.MorphologyEx(d.foreground, &d.opened, gocv.MorphOpen, d.kernel)
		post = d.opened
	}
	if d.hasMask {
		// Subtractor noise at the region boundary must not contribute.
		region.Apply(d.mask, post, &post)
	}

	if d.inRegion > 0 {
		res.Score = 255 * float32(gocv.CountNonZero(post)) / float32(d.inRegion)
	}
	if d.cfg.KeepMask {
		res.Mask = post.Clone()
		res.HasMask = true
	}
	if res.Score < d.cfg.Threshold || res.Score > d.cfg.MaxThreshold {
		return res
	}

	box, ok := maskBounds(post)
	if !ok {
		return res
	}
	// Map from working resolution back to source coordinates.
	box = image.Rect(
		box.Min.X*d.downscale, box.Min.Y*d.downscale,
		box.Max.X*d.downscale, box.Max.Y*d.downscale,
	)
	if d.rejectBox(box) {
		return res
	}
	res.HasMotion = true
	res.Box = box
	res.HasBox = true
	return res
}

// rejectBox applies the max-area and max-size gates, all expressed as
// fractions of the source frame.
func (d *Detector) rejectBox(box image.Rectangle) bool {
	frameArea := float32(d.frameSize.X) * float32(d.frameSize.Y)
	boxArea := float32(box.Dx()) * float32(box.Dy())
	if boxArea/frameArea > d.cfg.MaxArea {
		return true
	}
	if float32(box.Dx())/float32(d.frameSize.X) > d.cfg.MaxWidth {
		return true
	}
	if float32(box.Dy())/float32(d.frameSize.Y) > d.cfg.MaxHeight {
		return true
	}
	return false
}

// Close releases the subtractor state and scratch buffers.
func (d *Detector) Close() {
	d.sub.Close()
	d.close()
}

func (d *Detector) close() {
	for _, m := range []*gocv.Mat{&d.gray, &d.work, &d.masked, &d.foreground, &d.opened} {
		if !m.Empty() {
			m.Close()
		}
	}
	if d.hasMask {
		d.mask.Close()
	}
	if d.hasKernel {
		d.kernel.Close()
	}
}

// subsample keeps every factor-th row and column of a single-channel
// image, with no filtering.
func subsample(src gocv.Mat, dst *gocv.Mat, factor int) {
	if factor <= 1 {
		src.CopyTo(dst)
		return
	}
	rows, cols := src.Rows(), src.Cols()
	outRows := (rows + factor - 1) / factor
	outCols := (cols + factor - 1) / factor
	if dst.Empty() || dst.Rows() != outRows || dst.Cols() != outCols || dst.Type() != gocv.MatTypeCV8UC1 {
		dst.Close()
		*dst = gocv.NewMatWithSize(outRows, outCols, gocv.MatTypeCV8UC1)
	}
	in, _ := src.DataPtrUint8()
	out, _ := dst.DataPtrUint8()
	for y := 0; y < outRows; y++ {
		srcRow := in[y*factor*cols:]
		dstRow := out[y*outCols:]
		for x := 0; x < outCols; x++ {
			dstRow[x] = srcRow[x*factor]
		}
	}
}

// maskBounds returns the smallest axis-aligned rectangle covering all
// non-zero pixels. The Max point is exclusive.
func maskBounds(m gocv.Mat) (image.Rectangle, bool) {
	data, _ := m.DataPtrUint8()
	rows, cols := m.Rows(), m.Cols()
	minX, minY := cols, rows
	maxX, maxY := -1, -1
	for y := 0; y < rows; y++ {
		row := data[y*cols : (y+1)*cols]
		for x, v := range row {
			if v == 0 {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			maxY = y
		}
	}
	if maxX < 0 {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}
