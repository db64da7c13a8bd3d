package region

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestParsePolygon(t *testing.T) {
	poly, err := ParsePolygon("0 0 10 0 10 10 0 10")
	require.NoError(t, err)
	assert.Len(t, poly, 4)
	assert.Equal(t, image.Point{X: 10, Y: 10}, poly[2])
}

func TestParsePolygonInvalid(t *testing.T) {
	for _, line := range []string{
		"0 0 10 0",      // only 2 points
		"0 0 10 0 10",   // odd coordinate count
		"0 0 a 0 10 10", // non-numeric
	} {
		_, err := ParsePolygon(line)
		assert.ErrorIs(t, err, ErrInvalid, "line %q", line)
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region.txt")
	content := "# camera 3 driveway\n\n10 10 50 10 50 50 10 50\n0 0 5 0 5 5\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	region, err := Load(path)
	require.NoError(t, err)
	require.Len(t, region, 2)
	assert.Len(t, region[0], 4)
	assert.Len(t, region[1], 3)

	out := filepath.Join(t.TempDir(), "saved.txt")
	require.NoError(t, Save(out, region))
	reloaded, err := Load(out)
	require.NoError(t, err)
	assert.Equal(t, region, reloaded)
}

func TestMaskEmptyRegionIsAllIn(t *testing.T) {
	var r Region
	mask := r.Mask(16, 8)
	defer mask.Close()
	assert.Equal(t, 8, mask.Rows())
	assert.Equal(t, 16, mask.Cols())
	assert.Equal(t, 16*8, gocv.CountNonZero(mask))
}

func TestMaskCoversPolygonInterior(t *testing.T) {
	r := Region{{{X: 2, Y: 2}, {X: 12, Y: 2}, {X: 12, Y: 12}, {X: 2, Y: 12}}}
	mask := r.Mask(16, 16)
	defer mask.Close()
	assert.Equal(t, uint8(255), mask.GetUCharAt(7, 7))
	assert.Equal(t, uint8(0), mask.GetUCharAt(0, 0))
	assert.Equal(t, uint8(0), mask.GetUCharAt(15, 15))
}

func TestMaskCyclicRotationInvariant(t *testing.T) {
	poly := Polygon{{X: 1, Y: 1}, {X: 30, Y: 2}, {X: 28, Y: 25}, {X: 3, Y: 20}}
	base := Region{poly}.Mask(32, 32)
	defer base.Close()
	for shift := 1; shift < len(poly); shift++ {
		rotated := append(append(Polygon{}, poly[shift:]...), poly[:shift]...)
		mask := Region{rotated}.Mask(32, 32)
		diff := gocv.NewMat()
		gocv.AbsDiff(base, mask, &diff)
		assert.Equal(t, 0, gocv.CountNonZero(diff), "rotation by %d changed the mask", shift)
		diff.Close()
		mask.Close()
	}
}

func TestMaskClipsOutOfBoundsPolygon(t *testing.T) {
	r := Region{{{X: -10, Y: -10}, {X: 100, Y: -10}, {X: 100, Y: 100}, {X: -10, Y: 100}}}
	mask := r.Mask(8, 8)
	defer mask.Close()
	assert.Equal(t, 8*8, gocv.CountNonZero(mask))
}

func TestDownscale(t *testing.T) {
	r := Region{{{X: 0, Y: 0}, {X: 7, Y: 0}, {X: 7, Y: 7}, {X: 0, Y: 7}}}
	mask := r.Mask(16, 16)
	defer mask.Close()
	small := Downscale(mask, 2)
	defer small.Close()
	assert.Equal(t, 8, small.Rows())
	assert.Equal(t, 8, small.Cols())
	// Top-left quadrant of the original is in-region; sampled pixels at
	// stride 2 keep that shape.
	assert.Equal(t, uint8(255), small.GetUCharAt(0, 0))
	assert.Equal(t, uint8(255), small.GetUCharAt(3, 3))
	assert.Equal(t, uint8(0), small.GetUCharAt(5, 5))
}
