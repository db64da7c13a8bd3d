// Package config defines the scan configuration record and loads it from
// line-oriented `key = value` configuration files.
package config

import (
	"errors"
	"image/color"
)

// ErrInvalid is returned for an unknown key or a value that fails
// validation.
var ErrInvalid = errors.New("config: invalid configuration")

// OutputMode selects how motion events are written to disk.
type OutputMode string

const (
	ModeScanOnly OutputMode = "scan_only"
	ModeOpenCV   OutputMode = "opencv"
	ModeFFmpeg   OutputMode = "ffmpeg"
	ModeCopy     OutputMode = "copy"
)

// Config is the complete scan configuration. It is assembled from the
// defaults, an optional config file, and command-line overrides, then
// frozen for the run.
type Config struct {
	// General
	QuietMode   bool
	Verbosity   string
	SaveLog     bool
	MaxLogFiles int

	// Input / output
	OutputDir        string
	OutputMode       OutputMode
	OpenCVCodec      string
	FFmpegInputArgs  string
	FFmpegOutputArgs string

	// Motion events. Time values keep their textual form until the
	// stream framerate is known.
	MinEventLength  string
	TimeBeforeEvent string
	TimePostEvent   string
	UsePTS          bool

	// Detection
	BGSubtractor      string
	Threshold         float64
	MaxThreshold      float64
	MaxArea           float64
	MaxWidth          float64
	MaxHeight         float64
	VarianceThreshold float64
	KernelSize        int // -1 = auto, 0 = off, otherwise odd >= 3
	DownscaleFactor   int // 0 = auto
	LearningRate      float64
	FrameSkip         int
	LoadRegion        string

	// Text overlays
	TimeCode          bool
	FrameMetrics      bool
	TextBorder        int
	TextMargin        int
	TextFontScale     float64
	TextFontThickness int
	TextFontColor     color.RGBA
	TextBGColor       color.RGBA

	// Bounding box overlay
	BoundingBox           bool
	BoundingBoxSmoothTime string
	BoundingBoxColor      color.RGBA
	BoundingBoxThickness  float64
	BoundingBoxMinSize    float64

	// Thumbnails: empty or "highscore".
	Thumbnails string
}

// Default returns the configuration used when nothing is specified.
func Default() Config {
	return Config{
		Verbosity:   "info",
		SaveLog:     false,
		MaxLogFiles: 15,

		OutputMode:       ModeScanOnly,
		OpenCVCodec:      "XVID",
		FFmpegInputArgs:  "",
		FFmpegOutputArgs: "",

		MinEventLength:  "0.1s",
		TimeBeforeEvent: "1.5s",
		TimePostEvent:   "2.0s",

		BGSubtractor:      "MOG2",
		Threshold:         0.15,
		MaxThreshold:      255.0,
		MaxArea:           1.0,
		MaxWidth:          1.0,
		MaxHeight:         1.0,
		VarianceThreshold: 16.0,
		KernelSize:        -1,
		DownscaleFactor:   0,
		LearningRate:      -1,

		TextBorder:        4,
		TextMargin:        4,
		TextFontScale:     1.0,
		TextFontThickness: 2,
		TextFontColor:     color.RGBA{R: 255, G: 255, B: 255, A: 255},
		TextBGColor:       color.RGBA{A: 255},

		BoundingBoxSmoothTime: "0.1s",
		BoundingBoxColor:      color.RGBA{R: 255, A: 255},
		BoundingBoxThickness:  0.0032,
		BoundingBoxMinSize:    0.032,
	}
}
