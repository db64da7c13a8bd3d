// Package controller composes a scan from validated settings, runs it,
// and reports the results.
package controller

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"dvrscan/config"
	"dvrscan/region"
	"dvrscan/timecode"
	"dvrscan/video"
	"dvrscan/video/process"
	"dvrscan/video/sink"
	"dvrscan/video/source"
)

// Settings is the complete user input for one scan: the configuration
// record plus the values that only arrive on the command line.
type Settings struct {
	Config config.Config
	Inputs []string

	// SingleOutput writes all events into one file (single input only).
	SingleOutput string
	// MaskOutput writes the post-filter motion mask to a side file.
	MaskOutput string
	// ScanOnly forces scan-only mode regardless of Config.OutputMode.
	ScanOnly bool

	// Optional scan bounds; any of the timecode forms.
	StartTime string
	EndTime   string
	Duration  string

	// Regions added on the command line, merged with Config.LoadRegion.
	Regions region.Region
	// SaveRegion writes the merged region to this path before scanning.
	SaveRegion string
}

// Run expands the inputs, builds the pipeline, and scans. The returned
// result carries the events emitted before any failure or cancellation.
func Run(ctx context.Context, settings Settings) (*video.ScanResult, error) {
	cfg := settings.Config

	inputs, err := expandInputs(settings.Inputs)
	if err != nil {
		return nil, err
	}

	mode := cfg.OutputMode
	if settings.ScanOnly {
		mode = config.ModeScanOnly
	}
	if settings.SingleOutput != "" && mode == config.ModeScanOnly {
		mode = config.ModeOpenCV
	}
	if err := validate(cfg, mode, settings, inputs); err != nil {
		return nil, err
	}

	src, err := source.NewJoiner(inputs)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	src.UsePTS = cfg.UsePTS
	meta := src.Metadata()

	reg, err := loadRegion(cfg, settings)
	if err != nil {
		return nil, err
	}

	scanner, err := buildScanner(cfg, mode, settings, src, reg, inputs)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	result, err := scanner.Scan(ctx)
	if err != nil {
		return result, err
	}
	elapsed := time.Since(started).Seconds()
	if elapsed > 0 {
		log.Infof("Processed %d frames read in %3.1f secs (avg %3.1f FPS).",
			result.FramesRead, elapsed, float64(result.FramesRead)/elapsed)
	}

	report(cfg, mode, meta, result)
	return result, nil
}

func expandInputs(patterns []string) ([]string, error) {
	var inputs []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil || len(matches) == 0 {
			// Not a glob or nothing matched: require the literal path.
			matches = []string{pattern}
		}
		sort.Strings(matches)
		inputs = append(inputs, matches...)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no input files", source.ErrInputNotFound)
	}
	return inputs, nil
}

func validate(cfg config.Config, mode config.OutputMode, settings Settings, inputs []string) error {
	if cfg.BGSubtractor == "MOG2_GPU" {
		return fmt.Errorf("%w: bg-subtractor MOG2_GPU is not available in this build", config.ErrInvalid)
	}
	if len(inputs) > 1 {
		if mode == config.ModeFFmpeg || mode == config.ModeCopy {
			return fmt.Errorf("%w: output-mode %s supports a single input file", config.ErrInvalid, mode)
		}
		if settings.SingleOutput != "" {
			return fmt.Errorf("%w: a single output file requires a single input file", config.ErrInvalid)
		}
	}
	return nil
}

func loadRegion(cfg config.Config, settings Settings) (region.Region, error) {
	reg := append(region.Region{}, settings.Regions...)
	if cfg.LoadRegion != "" {
		loaded, err := region.Load(cfg.LoadRegion)
		if err != nil {
			return nil, err
		}
		reg = append(reg, loaded...)
	}
	if settings.SaveRegion != "" {
		if err := region.Save(settings.SaveRegion, reg); err != nil {
			return nil, err
		}
		log.Infof("Saved region to %s", settings.SaveRegion)
	}
	return reg, nil
}

func buildScanner(cfg config.Config, mode config.OutputMode, settings Settings,
	src *source.Joiner, reg region.Region, inputs []string) (*video.Scanner, error) {

	meta := src.Metadata()
	fps := meta.FPS

	minEvent, err := resolveFrames(cfg.MinEventLength, fps)
	if err != nil {
		return nil, err
	}
	preRoll, err := resolveFrames(cfg.TimeBeforeEvent, fps)
	if err != nil {
		return nil, err
	}
	postRoll, err := resolveFrames(cfg.TimePostEvent, fps)
	if err != nil {
		return nil, err
	}
	smooth, err := timecode.Parse(cfg.BoundingBoxSmoothTime, fps)
	if err != nil {
		return nil, err
	}

	var startFrame, endFrame int64
	if settings.StartTime != "" {
		tc, err := timecode.Parse(settings.StartTime, fps)
		if err != nil {
			return nil, fmt.Errorf("%w: start time: %v", config.ErrInvalid, err)
		}
		startFrame = tc.Frame()
	}
	switch {
	case settings.EndTime != "":
		tc, err := timecode.Parse(settings.EndTime, fps)
		if err != nil {
			return nil, fmt.Errorf("%w: end time: %v", config.ErrInvalid, err)
		}
		endFrame = tc.Frame()
	case settings.Duration != "":
		tc, err := timecode.Parse(settings.Duration, fps)
		if err != nil {
			return nil, fmt.Errorf("%w: duration: %v", config.ErrInvalid, err)
		}
		endFrame = startFrame + tc.Frame()
	}

	kind, err := process.ParseKind(cfg.BGSubtractor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	detectorCfg := process.DetectorConfig{
		Kind:              kind,
		Threshold:         float32(cfg.Threshold),
		MaxThreshold:      float32(cfg.MaxThreshold),
		VarianceThreshold: cfg.VarianceThreshold,
		LearningRate:      cfg.LearningRate,
		KernelSize:        mapKernelSize(cfg.KernelSize),
		DownscaleFactor:   cfg.DownscaleFactor,
		FrameSkip:         cfg.FrameSkip,
		MaxArea:           float32(cfg.MaxArea),
		MaxWidth:          float32(cfg.MaxWidth),
		MaxHeight:         float32(cfg.MaxHeight),
		KeepMask:          settings.MaskOutput != "",
	}
	detector, err := process.NewDetector(detectorCfg, meta, reg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	tracker := process.NewTracker(process.TrackerConfig{
		MinEventLength:  minEvent,
		TimeBeforeEvent: preRoll,
		TimePostEvent:   postRoll,
		FrameSkip:       cfg.FrameSkip,
	}, fps)

	outSink, err := buildSink(cfg, mode, settings, meta, smooth.Seconds(), inputs)
	if err != nil {
		detector.Close()
		return nil, err
	}

	var maskWriter *sink.MaskWriter
	if settings.MaskOutput != "" {
		maskWriter, err = sink.NewMaskWriter(settings.MaskOutput, cfg.OpenCVCodec, fps, meta.Width, meta.Height)
		if err != nil {
			detector.Close()
			return nil, err
		}
	}

	thumbnailDir := ""
	if cfg.Thumbnails == "highscore" {
		thumbnailDir = cfg.OutputDir
		if thumbnailDir == "" {
			thumbnailDir = "."
		}
	}

	scanner, err := video.NewScanner(video.ScannerOptions{
		Source:         src,
		Processor:      detector,
		Tracker:        tracker,
		Sink:           outSink,
		FrameSkip:      cfg.FrameSkip,
		PreRoll:        preRoll,
		MinEventLength: minEvent,
		StartFrame:     startFrame,
		EndFrame:       endFrame,
		MaskWriter:     maskWriter,
		ThumbnailDir:   thumbnailDir,
		Observers:      []video.ProgressFunc{logProgress(meta)},
	})
	if err != nil {
		detector.Close()
		return nil, err
	}
	return scanner, nil
}

// mapKernelSize translates the config encoding (-1 auto, 0 off) into the
// detector encoding (0 auto, -1 off).
func mapKernelSize(v int) int {
	switch v {
	case -1:
		return 0
	case 0:
		return -1
	}
	return v
}

func resolveFrames(value string, fps float64) (int64, error) {
	tc, err := timecode.Parse(value, fps)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	return tc.Frame(), nil
}

func buildSink(cfg config.Config, mode config.OutputMode, settings Settings,
	meta source.Metadata, smoothTime float64, inputs []string) (sink.Sink, error) {

	switch mode {
	case config.ModeScanOnly:
		return sink.Discard{}, nil

	case config.ModeOpenCV:
		var overlay *process.Renderer
		if cfg.TimeCode || cfg.FrameMetrics || cfg.BoundingBox {
			overlay = process.NewRenderer(process.OverlayConfig{
				TimeCode:          cfg.TimeCode,
				FrameMetrics:      cfg.FrameMetrics,
				BoundingBox:       cfg.BoundingBox,
				TextMargin:        cfg.TextMargin,
				TextBorder:        cfg.TextBorder,
				TextFontScale:     cfg.TextFontScale,
				TextFontThickness: cfg.TextFontThickness,
				TextColor:         cfg.TextFontColor,
				TextBGColor:       cfg.TextBGColor,
				BoxColor:          cfg.BoundingBoxColor,
				BoxThicknessRatio: cfg.BoundingBoxThickness,
				BoxMinSizeRatio:   cfg.BoundingBoxMinSize,
				BoxSmoothTime:     smoothTime,
			}, meta.FPS, cfg.FrameSkip)
		}
		stem := strings.TrimSuffix(filepath.Base(inputs[0]), filepath.Ext(inputs[0]))
		return sink.NewOpenCV(sink.OpenCVOptions{
			OutputDir:  cfg.OutputDir,
			InputStem:  stem,
			SinglePath: settings.SingleOutput,
			Codec:      cfg.OpenCVCodec,
			FPS:        meta.FPS,
			Width:      meta.Width,
			Height:     meta.Height,
			Overlay:    overlay,
		})

	case config.ModeFFmpeg, config.ModeCopy:
		return sink.NewFFmpeg(sink.FFmpegOptions{
			Input:      inputs[0],
			OutputDir:  cfg.OutputDir,
			Copy:       mode == config.ModeCopy,
			InputArgs:  cfg.FFmpegInputArgs,
			OutputArgs: cfg.FFmpegOutputArgs,
		})
	}
	return nil, fmt.Errorf("%w: unknown output mode %q", config.ErrInvalid, mode)
}

func logProgress(meta source.Metadata) video.ProgressFunc {
	// Log roughly once per 5 seconds of video.
	interval := int64(meta.FPS * 5)
	if interval < 1 {
		interval = 100
	}
	return func(p video.Progress) {
		if p.FramesProcessed%interval != 0 {
			return
		}
		if p.TotalEstimate > 0 {
			log.Debugf("Scanned %d/%d frames, %d events.", p.FramesProcessed, p.TotalEstimate, p.Events)
		} else {
			log.Debugf("Scanned %d frames, %d events.", p.FramesProcessed, p.Events)
		}
	}
}

// report prints the event table (or only the comma-separated timecode
// list in quiet mode).
func report(cfg config.Config, mode config.OutputMode, meta source.Metadata, result *video.ScanResult) {
	if len(result.Events) == 0 {
		log.Info("No motion events detected in input.")
		return
	}
	log.Infof("Detected %d motion events in input.", len(result.Events))
	if !cfg.QuietMode {
		rows := []string{
			"-------------------------------------------------------------",
			"|   Event #    |  Start Time  |   Duration   |   End Time   |",
			"-------------------------------------------------------------",
		}
		for i, ev := range result.Events {
			duration, _ := ev.End.Sub(ev.Start)
			rows = append(rows, fmt.Sprintf("|  Event %4d  |  %s  |  %s  |  %s  |",
				i+1,
				ev.Start.Format(1),
				timecode.FromFrames(duration, meta.FPS).Format(1),
				ev.End.Format(1)))
		}
		rows = append(rows, "-------------------------------------------------------------")
		log.Infof("List of motion events:\n%s", strings.Join(rows, "\n"))
		log.Info("Comma-separated timecode values:")
	}
	var codes []string
	for _, ev := range result.Events {
		codes = append(codes, ev.Start.String(), ev.End.String())
	}
	// Printed regardless of quiet mode.
	fmt.Println(strings.Join(codes, ","))

	if mode != config.ModeScanOnly && len(result.Outputs) > 0 {
		log.Info("Motion events written to disk.")
	}
}
