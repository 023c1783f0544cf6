// Command mtsrender renders a procedural test pattern with the tile-parallel
// sample accumulator and writes the developed film as a 16-bit TIFF.
//
// Usage:
//
//	mtsrender [-config scene.json] [-width 640] [-height 480] [-spp 4] ...
//
// Values from the JSON file are overridden by flags given explicitly.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/Acontardi-014/mitsuba2/render"
	"github.com/Acontardi-014/mitsuba2/rfilter"
)

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func run(ctx context.Context, cfg *Config, stdout, stderr io.Writer) error {
	logger := newLogger(stderr, cfg.Verbose)
	render.SetLogger(logger)
	defer render.SetLogger(nil)

	f, err := rfilter.ByName(cfg.Filter)
	if err != nil {
		return err
	}
	table, err := rfilter.NewTable(f)
	if err != nil {
		return err
	}

	cropSize, cropOffset := cfg.cropWindow()
	film, err := render.NewFilm(image.Pt(cfg.Width, cfg.Height), cropSize, cropOffset, channels)
	if err != nil {
		return err
	}

	opts := []render.RenderOption{
		render.WithSamplesPerPixel(cfg.Spp),
		render.WithPasses(cfg.Passes),
		render.WithWorkers(cfg.Workers),
		render.WithVectorize(cfg.Vectorize),
		render.WithSeed(cfg.Seed),
		render.WithTimeout(time.Duration(cfg.Timeout)),
		render.WithBlockOptions(render.WithNormalize(cfg.Normalize)),
		render.WithProgress(progressLogger(logger)),
	}
	if cfg.BlockSize > 0 {
		opts = append(opts, render.WithBlockSize(cfg.BlockSize))
	}

	integrator := newPatternIntegrator(cfg.Pattern, cfg.Width, cfg.Height)
	stats, err := render.Render(ctx, film, table, integrator, opts...)
	partial := errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
	if err != nil && !partial {
		return err
	}
	if partial {
		logger.Warn("render interrupted, writing partial film", "err", err)
	}

	printStats(stdout, cfg.Language, stats, film)

	w, h := cropSize.X, cropSize.Y
	developed := film.Develop(weightChannel)
	if err := writeTIFF(cfg.Output, toRGBA64(developed, w, h, channels)); err != nil {
		return err
	}
	logger.Info("wrote image", "path", cfg.Output, "size", cropSize)

	if cfg.Snapshot != "" {
		if err := writeSnapshot(cfg.Snapshot, developed, w, h, channels); err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		logger.Info("wrote snapshot", "path", cfg.Snapshot)
	}

	if cfg.Preview > 1 {
		small, pw, ph, err := downsample(developed, w, h, channels, cfg.Preview, f)
		if err != nil {
			return fmt.Errorf("preview: %w", err)
		}
		path := previewPath(cfg.Output)
		if err := writeTIFF(path, toRGBA64(small, pw, ph, channels)); err != nil {
			return err
		}
		logger.Info("wrote preview", "path", path, "size", image.Pt(pw, ph))
	}
	return nil
}

// progressLogger logs at most one progress record per second and the
// final block.
func progressLogger(logger *slog.Logger) func(render.Progress) {
	var last time.Duration
	return func(p render.Progress) {
		if p.Elapsed-last < time.Second && p.BlocksDone < p.BlocksTotal {
			return
		}
		last = p.Elapsed
		logger.Info("progress",
			"done", p.BlocksDone, "total", p.BlocksTotal,
			"percent", fmt.Sprintf("%.1f", 100*p.Fraction()))
	}
}

// printStats writes a human readable summary formatted for lang.
func printStats(w io.Writer, lang string, stats render.Stats, film *render.Film) {
	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.English
	}
	p := message.NewPrinter(tag)

	crop := film.CropSize()
	secs := stats.Elapsed.Seconds()
	rate := 0.0
	if secs > 0 {
		rate = float64(stats.Samples) / secs
	}

	p.Fprintf(w, "film:     %d x %d pixels, %d channels\n", crop.X, crop.Y, film.Channels())
	p.Fprintf(w, "blocks:   %d (%d passes)\n", stats.Blocks, stats.Passes)
	p.Fprintf(w, "samples:  %d (%d rejected)\n", stats.Samples, stats.Rejected)
	p.Fprintf(w, "elapsed:  %.3f s (%.0f samples/s)\n", secs, rate)
}
