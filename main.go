package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/akamensky/argparse"
	"github.com/davecgh/go-spew/spew"
	log "github.com/sirupsen/logrus"

	"dvrscan/config"
	"dvrscan/controller"
	"dvrscan/region"
)

func main() {
	parser := argparse.NewParser("dvrscan", "Find and extract motion events in video files")

	inputs := parser.StringList("i", "input", &argparse.Options{Help: "Input video file(s); wildcards are expanded", Required: true})
	configPath := parser.String("c", "config", &argparse.Options{Help: "Path to config file"})
	outputDir := parser.String("d", "output-dir", &argparse.Options{Help: "Directory for output files"})
	outputMode := parser.String("m", "output-mode", &argparse.Options{Help: "Output mode: scan_only, opencv, ffmpeg, or copy"})
	singleOutput := parser.String("o", "output", &argparse.Options{Help: "Write all events to a single output file (one input only)"})
	maskOutput := parser.String("", "mask-output", &argparse.Options{Help: "Write the motion mask to a side video file"})
	scanOnly := parser.Flag("", "scan-only", &argparse.Options{Help: "Only list events, do not write any files"})

	startTime := parser.String("", "start-time", &argparse.Options{Help: "Start scanning at this time"})
	endTime := parser.String("", "end-time", &argparse.Options{Help: "Stop scanning at this time"})
	duration := parser.String("", "duration", &argparse.Options{Help: "Scan at most this much video"})

	minEventLength := parser.String("l", "min-event-length", &argparse.Options{Help: "Shortest motion run considered an event"})
	timeBefore := parser.String("", "time-before-event", &argparse.Options{Help: "Video included before each event"})
	timePost := parser.String("", "time-post-event", &argparse.Options{Help: "Video included after each event"})

	threshold := parser.String("t", "threshold", &argparse.Options{Help: "Motion score required to trigger an event"})
	subtractor := parser.String("b", "bg-subtractor", &argparse.Options{Help: "Background subtraction: MOG2 or CNT"})
	kernelSize := parser.String("k", "kernel-size", &argparse.Options{Help: "Noise filter kernel size: -1 auto, 0 off, odd >= 3"})
	downscale := parser.String("", "downscale-factor", &argparse.Options{Help: "Integer frame downscale factor (0 = auto)"})
	frameSkip := parser.String("", "frame-skip", &argparse.Options{Help: "Frames skipped per processed frame"})

	addRegions := parser.StringList("a", "add-region", &argparse.Options{Help: "Add a polygon region: \"x0 y0 x1 y1 x2 y2 ...\""})
	loadRegionPath := parser.String("R", "load-region", &argparse.Options{Help: "Load regions from a file"})
	saveRegionPath := parser.String("s", "save-region", &argparse.Options{Help: "Save the active regions to a file"})

	boundingBox := parser.Flag("", "bounding-box", &argparse.Options{Help: "Draw a bounding box around detected motion"})
	timeCode := parser.Flag("", "time-code", &argparse.Options{Help: "Draw the timecode on each output frame"})
	frameMetrics := parser.Flag("", "frame-metrics", &argparse.Options{Help: "Draw frame index and score on each output frame"})
	usePTS := parser.Flag("", "use-pts", &argparse.Options{Help: "Use presentation timestamps from the container"})
	thumbnails := parser.String("", "thumbnails", &argparse.Options{Help: "Thumbnail mode: highscore"})

	quiet := parser.Flag("q", "quiet", &argparse.Options{Help: "Suppress all output except fatal errors and timecodes"})
	verbosity := parser.String("v", "verbosity", &argparse.Options{Help: "Log level: debug, info, warn, error"})
	logfile := parser.Flag("", "logfile", &argparse.Options{Help: "Also write the log to a file in the output directory"})

	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	cfg := config.Default()
	if *configPath != "" {
		if err := config.Load(*configPath, &cfg); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	// Command-line values override the config file, reusing the same
	// validation.
	overrides := map[string]string{
		"output-dir":        *outputDir,
		"output-mode":       *outputMode,
		"min-event-length":  *minEventLength,
		"time-before-event": *timeBefore,
		"time-post-event":   *timePost,
		"threshold":         *threshold,
		"bg-subtractor":     *subtractor,
		"kernel-size":       *kernelSize,
		"downscale-factor":  *downscale,
		"frame-skip":        *frameSkip,
		"verbosity":         *verbosity,
		"thumbnails":        *thumbnails,
	}
	// Apply in a stable order so validation errors are deterministic.
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if overrides[key] == "" {
			continue
		}
		if err := config.Set(&cfg, key, overrides[key]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if *boundingBox {
		cfg.BoundingBox = true
	}
	if *timeCode {
		cfg.TimeCode = true
	}
	if *frameMetrics {
		cfg.FrameMetrics = true
	}
	if *usePTS {
		cfg.UsePTS = true
	}
	if *quiet {
		cfg.QuietMode = true
	}
	if *loadRegionPath != "" {
		cfg.LoadRegion = *loadRegionPath
	}
	if *logfile {
		cfg.SaveLog = true
	}

	if err := setupLogging(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log.Debugf("Configuration:\n%s", spew.Sdump(cfg))

	var regions region.Region
	for _, line := range *addRegions {
		poly, err := region.ParsePolygon(line)
		if err != nil {
			log.Error(err)
			os.Exit(1)
		}
		regions = append(regions, poly)
	}

	settings := controller.Settings{
		Config:       cfg,
		Inputs:       *inputs,
		SingleOutput: *singleOutput,
		MaskOutput:   *maskOutput,
		ScanOnly:     *scanOnly,
		StartTime:    *startTime,
		EndTime:      *endTime,
		Duration:     *duration,
		Regions:      regions,
		SaveRegion:   *saveRegionPath,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := controller.Run(ctx, settings); err != nil {
		log.Error(err)
		os.Exit(1)
	}
	if ctx.Err() != nil {
		log.Info("Scan canceled; events detected so far were reported.")
	}
}

// setupLogging configures logrus from the verbosity settings and, when
// requested, tees output to a rotating log file in the output directory.
func setupLogging(cfg config.Config) error {
	switch cfg.Verbosity {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
	if cfg.QuietMode {
		log.SetLevel(log.ErrorLevel)
	}
	if !cfg.SaveLog {
		return nil
	}
	dir := cfg.OutputDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := pruneLogs(dir, cfg.MaxLogFiles); err != nil {
		log.Warnf("Failed to prune old log files: %v", err)
	}
	name := fmt.Sprintf("dvr-scan-%s.log", time.Now().Format("20060102-150405"))
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return nil
}

// pruneLogs deletes the oldest dvr-scan logs so that at most maxFiles-1
// remain before the new one is created.
func pruneLogs(dir string, maxFiles int) error {
	matches, err := filepath.Glob(filepath.Join(dir, "dvr-scan-*.log"))
	if err != nil {
		return err
	}
	sort.Strings(matches)
	for len(matches) >= maxFiles && len(matches) > 0 {
		if err := os.Remove(matches[0]); err != nil {
			return err
		}
		matches = matches[1:]
	}
	return nil
}
