// Copyright 2026 The mitsuba2 Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import "time"

// RenderOption configures a Render call.
//
// Example:
//
//	stats, err := render.Render(ctx, film, table, integrator,
//	    render.WithPasses(4),
//	    render.WithSamplesPerPixel(16),
//	    render.WithVectorize(true))
type RenderOption func(*renderOptions)

type renderOptions struct {
	blockSize       int
	passes          int
	workers         int
	samplesPerPixel int
	vectorize       bool
	timeout         time.Duration
	progress        func(Progress)
	seed            uint64
	blockOpts       []BlockOption
}

func defaultRenderOptions() renderOptions {
	return renderOptions{
		blockSize:       DefaultBlockSize,
		passes:          1,
		samplesPerPixel: 1,
	}
}

// WithBlockSize sets the edge length of the square blocks handed to
// workers. Default: DefaultBlockSize.
func WithBlockSize(n int) RenderOption {
	return func(o *renderOptions) { o.blockSize = n }
}

// WithPasses sets the number of full passes over the image. Every pass
// adds WithSamplesPerPixel samples to each pixel. Default: 1.
func WithPasses(n int) RenderOption {
	return func(o *renderOptions) { o.passes = n }
}

// WithWorkers sets the number of worker goroutines. Zero or negative
// selects GOMAXPROCS.
func WithWorkers(n int) RenderOption {
	return func(o *renderOptions) { o.workers = n }
}

// WithSamplesPerPixel sets the number of samples per pixel and pass.
// Default: 1.
func WithSamplesPerPixel(n int) RenderOption {
	return func(o *renderOptions) { o.samplesPerPixel = n }
}

// WithVectorize selects ImageBlock.PutBatch instead of ImageBlock.Put for
// splatting. Default: false.
func WithVectorize(enabled bool) RenderOption {
	return func(o *renderOptions) { o.vectorize = enabled }
}

// WithTimeout stops the render after d. Blocks in flight are finished and
// merged. Zero disables the timeout.
func WithTimeout(d time.Duration) RenderOption {
	return func(o *renderOptions) { o.timeout = d }
}

// WithProgress registers a callback invoked after each merged block.
// Calls are serialized.
func WithProgress(fn func(Progress)) RenderOption {
	return func(o *renderOptions) { o.progress = fn }
}

// WithSeed sets the seed of the per-block random generators.
// Every block draws from a generator seeded by the seed, its pass and its
// offset, so single-pass renders with the same configuration produce the
// same film regardless of the worker count.
func WithSeed(seed uint64) RenderOption {
	return func(o *renderOptions) { o.seed = seed }
}

// WithBlockOptions passes options to every ImageBlock the render creates.
func WithBlockOptions(opts ...BlockOption) RenderOption {
	return func(o *renderOptions) { o.blockOpts = append(o.blockOpts, opts...) }
}
