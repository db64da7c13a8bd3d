package config

import (
	"bufio"
	"fmt"
	"image/color"
	"os"
	"strconv"
	"strings"

	"dvrscan/timecode"
)

// Load applies the settings from a `key = value` file on top of cfg.
// Lines starting with `#` and blank lines are ignored.
func Load(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			return fmt.Errorf("%w: line %d is not `key = value`: %q", ErrInvalid, lineNum, line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if err := Set(cfg, key, value); err != nil {
			return fmt.Errorf("%w (line %d)", err, lineNum)
		}
	}
	return scanner.Err()
}

// Set applies a single option by its config-file key name.
func Set(cfg *Config, key, value string) error {
	var err error
	switch key {
	case "quiet-mode":
		cfg.QuietMode, err = parseBool(key, value)
	case "verbosity":
		err = oneOf(key, value, "debug", "info", "warn", "error")
		cfg.Verbosity = value
	case "save-log":
		cfg.SaveLog, err = parseBool(key, value)
	case "max-log-files":
		cfg.MaxLogFiles, err = parseInt(key, value, 1, 1000)

	case "output-dir":
		cfg.OutputDir = value
	case "output-mode":
		err = oneOf(key, value, string(ModeScanOnly), string(ModeOpenCV), string(ModeFFmpeg), string(ModeCopy))
		cfg.OutputMode = OutputMode(value)
	case "opencv-codec":
		if len(value) != 4 {
			err = fmt.Errorf("%w: %s must be a four-character code", ErrInvalid, key)
		}
		cfg.OpenCVCodec = value
	case "ffmpeg-input-args":
		cfg.FFmpegInputArgs = value
	case "ffmpeg-output-args":
		cfg.FFmpegOutputArgs = value

	case "min-event-length":
		cfg.MinEventLength, err = parseTimecode(key, value)
	case "time-before-event":
		cfg.TimeBeforeEvent, err = parseTimecode(key, value)
	case "time-post-event":
		cfg.TimePostEvent, err = parseTimecode(key, value)
	case "use-pts":
		cfg.UsePTS, err = parseBool(key, value)

	case "bg-subtractor":
		upper := strings.ToUpper(value)
		err = oneOf(key, upper, "MOG2", "CNT", "MOG2_GPU")
		cfg.BGSubtractor = upper
	case "threshold":
		cfg.Threshold, err = parseFloat(key, value, 0, 1e9)
	case "max-threshold":
		cfg.MaxThreshold, err = parseFloat(key, value, 0, 1e9)
	case "max-area":
		cfg.MaxArea, err = parseFloat(key, value, 0, 1)
	case "max-width":
		cfg.MaxWidth, err = parseFloat(key, value, 0, 1)
	case "max-height":
		cfg.MaxHeight, err = parseFloat(key, value, 0, 1)
	case "variance-threshold":
		cfg.VarianceThreshold, err = parseFloat(key, value, 0, 1e9)
	case "kernel-size":
		cfg.KernelSize, err = parseKernelSize(value)
	case "downscale-factor":
		cfg.DownscaleFactor, err = parseInt(key, value, 0, 1<<20)
	case "learning-rate":
		cfg.LearningRate, err = parseFloat(key, value, -1, 1)
	case "frame-skip":
		cfg.FrameSkip, err = parseInt(key, value, 0, 1<<20)
	case "load-region":
		cfg.LoadRegion = value

	case "time-code":
		cfg.TimeCode, err = parseBool(key, value)
	case "frame-metrics":
		cfg.FrameMetrics, err = parseBool(key, value)
	case "text-border":
		cfg.TextBorder, err = parseInt(key, value, 0, 1<<10)
	case "text-margin":
		cfg.TextMargin, err = parseInt(key, value, 0, 1<<10)
	case "text-font-scale":
		cfg.TextFontScale, err = parseFloat(key, value, 0, 100)
	case "text-font-thickness":
		cfg.TextFontThickness, err = parseInt(key, value, 1, 100)
	case "text-font-color":
		cfg.TextFontColor, err = ParseColor(value)
	case "text-bg-color":
		cfg.TextBGColor, err = ParseColor(value)

	case "bounding-box":
		cfg.BoundingBox, err = parseBool(key, value)
	case "bounding-box-smooth-time":
		cfg.BoundingBoxSmoothTime, err = parseTimecode(key, value)
	case "bounding-box-color":
		cfg.BoundingBoxColor, err = ParseColor(value)
	case "bounding-box-thickness":
		cfg.BoundingBoxThickness, err = parseFloat(key, value, 0, 1)
	case "bounding-box-min-size":
		cfg.BoundingBoxMinSize, err = parseFloat(key, value, 0, 1)

	case "thumbnails":
		err = oneOf(key, value, "highscore")
		cfg.Thumbnails = value

	default:
		return fmt.Errorf("%w: unknown option %q", ErrInvalid, key)
	}
	return err
}

func parseBool(key, value string) (bool, error) {
	switch strings.ToLower(value) {
	case "yes", "true", "on", "1":
		return true, nil
	case "no", "false", "off", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: %s must be yes/no (got %q)", ErrInvalid, key, value)
}

func parseInt(key, value string, min, max int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil || v < min || v > max {
		return 0, fmt.Errorf("%w: %s must be an integer in [%d, %d] (got %q)", ErrInvalid, key, min, max, value)
	}
	return v, nil
}

func parseFloat(key, value string, min, max float64) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil || v < min || v > max {
		return 0, fmt.Errorf("%w: %s must be a number in [%v, %v] (got %q)", ErrInvalid, key, min, max, value)
	}
	return v, nil
}

func oneOf(key, value string, choices ...string) error {
	for _, c := range choices {
		if value == c {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be one of %s (got %q)", ErrInvalid, key, strings.Join(choices, "/"), value)
}

// parseTimecode validates a time value (timecode, seconds, or frames)
// without resolving it: resolution needs the stream framerate.
func parseTimecode(key, value string) (string, error) {
	if _, err := timecode.Parse(value, 100); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	return value, nil
}

// parseKernelSize accepts -1 (auto), 0 (off), or an odd integer >= 3.
func parseKernelSize(value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil || v < -1 || v == 1 || v == 2 || (v > 2 && v%2 == 0) {
		return 0, fmt.Errorf("%w: kernel-size must be -1 (auto), 0 (off), or an odd integer >= 3 (got %q)", ErrInvalid, value)
	}
	return v, nil
}

// ParseColor reads `(R,G,B)` triples or `0xRRGGBB` hex values.
func ParseColor(value string) (color.RGBA, error) {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		v, err := strconv.ParseUint(value[2:], 16, 32)
		if err != nil || v > 0xFFFFFF {
			return color.RGBA{}, fmt.Errorf("%w: invalid color %q", ErrInvalid, value)
		}
		return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
	}
	trimmed := strings.TrimSuffix(strings.TrimPrefix(value, "("), ")")
	parts := strings.Split(trimmed, ",")
	if len(parts) != 3 {
		return color.RGBA{}, fmt.Errorf("%w: invalid color %q", ErrInvalid, value)
	}
	var rgb [3]uint8
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || v < 0 || v > 255 {
			return color.RGBA{}, fmt.Errorf("%w: invalid color %q", ErrInvalid, value)
		}
		rgb[i] = uint8(v)
	}
	return color.RGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255}, nil
}
