package region

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Mask rasterizes the region into a single-channel 0/255 image of the given
// size. Each polygon is filled individually and OR-ed into the result;
// vertices outside the frame are clipped by the rasterizer. An empty region
// produces an all-255 mask.
func (r Region) Mask(width, height int) gocv.Mat {
	mask := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC1)
	if len(r) == 0 {
		mask.SetTo(gocv.NewScalar(255, 0, 0, 0))
		return mask
	}
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	for _, poly := range r {
		pts := gocv.NewPointsVectorFromPoints([][]image.Point{poly})
		gocv.FillPoly(&mask, pts, white)
		pts.Close()
	}
	return mask
}

// Downscale samples the mask at the given stride so that it matches a
// frame subsampled by the same factor. The input must be a single-channel
// continuous Mat. Factor <= 1 returns a clone.
func Downscale(mask gocv.Mat, factor int) gocv.Mat {
	if factor <= 1 {
		return mask.Clone()
	}
	rows, cols := mask.Rows(), mask.Cols()
	outRows := (rows + factor - 1) / factor
	outCols := (cols + factor - 1) / factor
	out := gocv.NewMatWithSize(outRows, outCols, gocv.MatTypeCV8UC1)
	src, _ := mask.DataPtrUint8()
	dst, _ := out.DataPtrUint8()
	for y := 0; y < outRows; y++ {
		srcRow := src[y*factor*cols:]
		dstRow := dst[y*outCols:]
		for x := 0; x < outCols; x++ {
			dstRow[x] = srcRow[x*factor]
		}
	}
	return out
}

// Apply zeroes the pixels of a single-channel image that fall outside the
// region mask. Image and mask dimensions must match.
func Apply(mask gocv.Mat, img gocv.Mat, dst *gocv.Mat) {
	gocv.BitwiseAnd(img, mask, dst)
}
