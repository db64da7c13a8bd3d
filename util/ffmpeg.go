// Package util holds small helpers shared across the tool.
package util

import (
	"os"
	"os/exec"
)

// LocateFFmpeg finds the ffmpeg binary, preferring the FFMPEG environment
// variable over $PATH.
func LocateFFmpeg() (string, error) {
	if env := os.Getenv("FFMPEG"); env != "" {
		if _, err := os.Stat(env); err == nil {
			return env, nil
		}
	}
	return exec.LookPath("ffmpeg")
}
