package source

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"dvrscan/timecode"
)

// Framerates within this delta of the first input are considered equal.
// VideoCapture FPS reporting is not exact across containers.
const framerateTolerance = 0.1

// Frames that fail to decode are skipped, up to this many in a row.
const maxDecodeFailures = 5

// Joiner concatenates multiple video files into one virtual stream. All
// inputs must share the resolution and framerate of the first; the global
// frame index increments continuously across file boundaries.
type Joiner struct {
	paths []string
	meta  Metadata

	// Per-file frame count estimates, used for seeking.
	frameCounts []int64

	cap       *gocv.VideoCapture
	pathIndex int
	next      int64 // global index of the next frame Read returns
	fileStart int64 // global index of the current file's first frame
	failures  int   // consecutive decode failures

	// UsePTS takes presentation time from the container instead of
	// deriving it from the frame index.
	UsePTS bool
}

// NewJoiner opens every input up front and validates that they can be
// concatenated. Returns the source positioned at global frame zero.
func NewJoiner(paths []string) (*Joiner, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no inputs", ErrInputNotFound)
	}
	j := &Joiner{paths: paths}
	for i, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		cap, err := gocv.VideoCaptureFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInputNotFound, path, err)
		}
		width := int(cap.Get(gocv.VideoCaptureFrameWidth))
		height := int(cap.Get(gocv.VideoCaptureFrameHeight))
		fps := cap.Get(gocv.VideoCaptureFPS)
		frames := int64(cap.Get(gocv.VideoCaptureFrameCount))
		name := filepath.Base(path)
		if i == 0 {
			j.meta = Metadata{Width: width, Height: height, FPS: fps}
			j.cap = cap
			log.Infof("Opened video %s (%d x %d at %.3f FPS).", name, width, height, fps)
		} else {
			if width != j.meta.Width || height != j.meta.Height {
				cap.Close()
				j.cap.Close()
				return nil, fmt.Errorf("%w: %s is %dx%d, expected %dx%d",
					ErrResolutionMismatch, name, width, height, j.meta.Width, j.meta.Height)
			}
			if math.Abs(fps-j.meta.FPS) > framerateTolerance {
				cap.Close()
				j.cap.Close()
				return nil, fmt.Errorf("%w: %s is %.3f FPS, expected %.3f",
					ErrFramerateMismatch, name, fps, j.meta.FPS)
			}
			log.Infof("Appended video %s.", name)
			cap.Close()
		}
		j.frameCounts = append(j.frameCounts, frames)
		j.meta.TotalFrames += frames
	}
	return j, nil
}

// Metadata implements Source.
func (j *Joiner) Metadata() Metadata {
	return j.meta
}

// Read implements Source. Frames that fail to decode mid-file are skipped
// while still advancing the index counter; after maxDecodeFailures in a
// row the stream fails with ErrDecodeFailure.
func (j *Joiner) Read() (*Frame, error) {
	for {
		if j.cap == nil {
			return nil, nil
		}
		mat := gocv.NewMat()
		if ok := j.cap.Read(&mat); !ok {
			mat.Close()
			if j.midFile() {
				// Decode failure inside the file: skip this index.
				j.failures++
				j.next++
				log.Warnf("Failed to decode frame %d, skipping.", j.next-1)
				if j.failures > maxDecodeFailures {
					return nil, fmt.Errorf("%w (at frame %d)", ErrDecodeFailure, j.next-1)
				}
				// Step the decoder past the bad frame.
				j.cap.Set(gocv.VideoCapturePosFrames, float64(j.next-j.fileStart))
				continue
			}
			if err := j.nextFile(); err != nil {
				return nil, err
			}
			continue
		}
		j.failures = 0
		frame := &Frame{Index: j.next, Mat: mat, PTS: j.pts()}
		j.next++
		return frame, nil
	}
}

// pts computes the presentation time of the frame about to be returned.
func (j *Joiner) pts() timecode.Timecode {
	if j.UsePTS {
		// Position reported by the container is for the frame just read,
		// relative to the start of the current file.
		ms := j.cap.Get(gocv.VideoCapturePosMsec)
		base := timecode.FromFrames(j.fileStart, j.meta.FPS)
		off := timecode.FromSeconds(ms/1000.0, j.meta.FPS)
		return base.AddFrames(off.Frame())
	}
	return timecode.FromFrames(j.next, j.meta.FPS)
}

// midFile reports whether the decoder still has frames left in the current
// file according to the container's frame count, meaning a failed read is
// a decode error rather than end of file.
func (j *Joiner) midFile() bool {
	count := j.frameCounts[j.pathIndex]
	if count <= 0 {
		return false
	}
	return j.next-j.fileStart < count-1
}

func (j *Joiner) nextFile() error {
	j.cap.Close()
	j.cap = nil
	j.fileStart = j.next
	j.pathIndex++
	if j.pathIndex >= len(j.paths) {
		return nil
	}
	cap, err := gocv.VideoCaptureFile(j.paths[j.pathIndex])
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInputNotFound, j.paths[j.pathIndex], err)
	}
	j.cap = cap
	log.Infof("Processing next input: %s", filepath.Base(j.paths[j.pathIndex]))
	return nil
}

// Seek implements Source. Containers that cannot seek exactly fall back to
// sequential decode from the nearest keyframe inside VideoCapture.
func (j *Joiner) Seek(target int64) error {
	if target < j.next {
		return fmt.Errorf("source: cannot seek backwards (at %d, target %d)", j.next, target)
	}
	// Find the file containing the target index.
	var start int64
	for i, count := range j.frameCounts {
		if i >= j.pathIndex && target < start+count {
			if i != j.pathIndex {
				j.cap.Close()
				cap, err := gocv.VideoCaptureFile(j.paths[i])
				if err != nil {
					return fmt.Errorf("%w: %s: %v", ErrInputNotFound, j.paths[i], err)
				}
				j.cap = cap
				j.pathIndex = i
				j.fileStart = start
			}
			j.cap.Set(gocv.VideoCapturePosFrames, float64(target-start))
			j.next = target
			return nil
		}
		start += count
	}
	// Past the end of all inputs: subsequent reads return end of stream.
	if j.cap != nil {
		j.cap.Close()
		j.cap = nil
	}
	j.next = target
	return nil
}

// Close implements Source.
func (j *Joiner) Close() error {
	if j.cap != nil {
		j.cap.Close()
		j.cap = nil
	}
	return nil
}
