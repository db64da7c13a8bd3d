package process

import (
	"fmt"

	"gocv.io/x/gocv"

	"dvrscan/video/source"
)

// WriteThumb writes a frame to disk as a JPEG image.
func WriteThumb(path string, frame *source.Frame) error {
	if ok := gocv.IMWrite(path, frame.Mat); !ok {
		return fmt.Errorf("failed to write thumbnail %s", path)
	}
	return nil
}
