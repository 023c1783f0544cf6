// Copyright 2026 The mitsuba2 Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Acontardi-014/mitsuba2/internal/parallel"
	"github.com/Acontardi-014/mitsuba2/rfilter"
	"seehuhn.de/go/geom/vec"
)

// Integrator computes sample values for film positions.
//
// Eval writes the film's channel count of values for the continuous film
// position pos into dst. rng is owned by the calling worker for the
// duration of one block. Eval is called concurrently from several workers.
type Integrator interface {
	Eval(pos vec.Vec2, rng *rand.Rand, dst []float64)
}

// IntegratorFunc adapts a function to the Integrator interface.
type IntegratorFunc func(pos vec.Vec2, rng *rand.Rand, dst []float64)

// Eval calls f(pos, rng, dst).
func (f IntegratorFunc) Eval(pos vec.Vec2, rng *rand.Rand, dst []float64) { f(pos, rng, dst) }

// Progress describes the state of a render after a block was merged.
type Progress struct {
	Block       Block
	BlocksDone  int
	BlocksTotal int
	Elapsed     time.Duration
}

// Fraction returns the completed fraction in [0, 1].
func (p Progress) Fraction() float64 {
	if p.BlocksTotal == 0 {
		return 1
	}
	return float64(p.BlocksDone) / float64(p.BlocksTotal)
}

// Stats summarizes a render.
type Stats struct {
	Blocks   int
	Samples  int64
	Rejected int64
	Passes   int
	Elapsed  time.Duration
}

func (s Stats) String() string {
	return fmt.Sprintf("Stats[blocks=%d, samples=%d, rejected=%d, passes=%d, elapsed=%v]",
		s.Blocks, s.Samples, s.Rejected, s.Passes, s.Elapsed)
}

// Render renders the crop window of film with integrator.
//
// Worker goroutines repeatedly take the next block from a Spiral, splat
// samples into a pooled ImageBlock, and merge it into the film. Workers
// check ctx between blocks; on cancellation or timeout Render returns the
// statistics gathered so far together with the context's error.
//
// Invalid sample values never abort a block. Only configuration errors and
// merge failures are returned.
func Render(ctx context.Context, film Target, filter rfilter.Discretized, integrator Integrator, opts ...RenderOption) (Stats, error) {
	o := defaultRenderOptions()
	for _, opt := range opts {
		opt(&o)
	}

	switch {
	case film == nil:
		return Stats{}, ErrNilFilm
	case filter == nil:
		return Stats{}, ErrNilFilter
	case integrator == nil:
		return Stats{}, ErrNilIntegrator
	case o.samplesPerPixel < 1:
		return Stats{}, fmt.Errorf("render: samples per pixel must be at least 1: %d", o.samplesPerPixel)
	}

	spiral, err := NewFilmSpiral(film, o.blockSize, o.passes)
	if err != nil {
		return Stats{}, err
	}

	// Building one block up front reports option and channel errors before
	// any worker starts.
	probe, err := NewImageBlock(image.Pt(o.blockSize, o.blockSize), film.Channels(), filter, o.blockOpts...)
	if err != nil {
		return Stats{}, fmt.Errorf("render: image block: %w", err)
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	r := &blockRenderer{
		film:       film,
		filter:     filter,
		integrator: integrator,
		spiral:     spiral,
		opts:       o,
		start:      time.Now(),
		total:      spiral.BlockCount() * o.passes,
	}
	r.blocks = parallel.NewSizedPool(r.newBlock, (*ImageBlock).Clear)
	r.blocks.Put(o.blockSize, o.blockSize, probe)

	pool := parallel.NewWorkerPool(o.workers)
	defer pool.Close()

	Logger().Info("render: started",
		"size", film.CropSize(), "offset", film.CropOffset(),
		"blocks", spiral.BlockCount(), "passes", o.passes,
		"spp", o.samplesPerPixel, "workers", pool.Workers(), "vectorize", o.vectorize)

	err = pool.Broadcast(func(int) error { return r.work(ctx) })

	stats := r.stats()
	if err != nil && stats.Blocks < r.total {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			err = ctxErr
		}
		Logger().Info("render: stopped", "err", err, "blocks", stats.Blocks, "elapsed", stats.Elapsed)
		return stats, err
	}
	Logger().Info("render: finished", "blocks", stats.Blocks, "samples", stats.Samples,
		"rejected", stats.Rejected, "elapsed", stats.Elapsed)
	return stats, nil
}

// blockRenderer holds the state shared by the workers of one Render call.
type blockRenderer struct {
	film       Target
	filter     rfilter.Discretized
	integrator Integrator
	spiral     *Spiral
	opts       renderOptions
	blocks     *parallel.SizedPool[*ImageBlock]
	start      time.Time
	total      int

	done     atomic.Int64
	samples  atomic.Int64
	rejected atomic.Int64

	progressMu sync.Mutex
}

func (r *blockRenderer) newBlock(w, h int) *ImageBlock {
	b, err := NewImageBlock(image.Pt(w, h), r.film.Channels(), r.filter, r.opts.blockOpts...)
	if err != nil {
		// Unreachable: the same configuration was validated by Render.
		panic(err)
	}
	return b
}

func (r *blockRenderer) stats() Stats {
	blocks := int(r.done.Load())
	passes := r.opts.passes
	if n := r.spiral.BlockCount(); n > 0 {
		passes = blocks / n
	}
	return Stats{
		Blocks:   blocks,
		Samples:  r.samples.Load(),
		Rejected: r.rejected.Load(),
		Passes:   passes,
		Elapsed:  time.Since(r.start),
	}
}

// work is one worker's loop: take a block, render it, merge it.
func (r *blockRenderer) work(ctx context.Context) error {
	sample := make([]float64, r.film.Channels())
	var batch sampleBatch
	if r.opts.vectorize {
		batch.init(r.film.Channels())
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		blk := r.spiral.NextBlock()
		if blk.Empty() {
			return nil
		}

		ib, _ := r.blocks.Get(blk.Size.X, blk.Size.Y)
		ib.SetOffset(blk.Offset)

		n, rejected := r.renderBlock(blk, ib, sample, &batch)
		if err := r.film.Put(ib); err != nil {
			r.blocks.Put(blk.Size.X, blk.Size.Y, ib)
			return fmt.Errorf("render: merge %v: %w", blk, err)
		}
		r.blocks.Put(blk.Size.X, blk.Size.Y, ib)

		r.samples.Add(n)
		r.rejected.Add(rejected)
		done := int(r.done.Add(1))

		Logger().Debug("render: block merged", "offset", blk.Offset, "size", blk.Size,
			"pass", blk.Pass, "samples", n, "rejected", rejected)
		r.report(blk, done)
	}
}

func (r *blockRenderer) report(blk Block, done int) {
	if r.opts.progress == nil {
		return
	}
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	r.opts.progress(Progress{
		Block:       blk,
		BlocksDone:  done,
		BlocksTotal: r.total,
		Elapsed:     time.Since(r.start),
	})
}

// blockRNG returns the generator for a block. It depends only on the seed,
// the pass and the block offset.
func (r *blockRenderer) blockRNG(blk Block) *rand.Rand {
	key := uint64(uint32(blk.Offset.X))<<32 | uint64(uint32(blk.Offset.Y)) //nolint:gosec // bit packing
	return rand.New(rand.NewPCG(r.opts.seed^uint64(blk.Pass)*0x9E3779B97F4A7C15, key))
}

// renderBlock generates samplesPerPixel jittered samples for every pixel of
// blk and splats them into ib. It returns the number of samples generated
// and the number rejected by the block.
func (r *blockRenderer) renderBlock(blk Block, ib *ImageBlock, sample []float64, batch *sampleBatch) (n, rejected int64) {
	rng := r.blockRNG(blk)
	spp := r.opts.samplesPerPixel

	for y := range blk.Size.Y {
		for x := range blk.Size.X {
			px := float64(blk.Offset.X + x)
			py := float64(blk.Offset.Y + y)
			for range spp {
				pos := vec.Vec2{X: px + rng.Float64(), Y: py + rng.Float64()}
				if r.opts.vectorize {
					r.integrator.Eval(pos, rng, batch.next(pos))
					if batch.full() {
						rejected += batch.flush(ib)
					}
				} else {
					r.integrator.Eval(pos, rng, sample)
					if !ib.Put(pos, sample) {
						rejected++
					}
				}
				n++
			}
		}
	}
	if r.opts.vectorize {
		rejected += batch.flush(ib)
	}
	return n, rejected
}

// sampleBatch collects samples for ImageBlock.PutBatch.
type sampleBatch struct {
	channels int
	pos      []vec.Vec2
	values   []float64
}

func (b *sampleBatch) init(channels int) {
	b.channels = channels
	b.pos = make([]vec.Vec2, 0, PacketSize)
	b.values = make([]float64, 0, PacketSize*channels)
}

// next appends pos and returns the slot for its values.
func (b *sampleBatch) next(pos vec.Vec2) []float64 {
	b.pos = append(b.pos, pos)
	n := len(b.values)
	b.values = b.values[:n+b.channels]
	clear(b.values[n:])
	return b.values[n:]
}

func (b *sampleBatch) full() bool { return len(b.pos) == PacketSize }

// flush splats the pending samples and returns how many were not accepted.
func (b *sampleBatch) flush(ib *ImageBlock) int64 {
	if len(b.pos) == 0 {
		return 0
	}
	var rejected int64
	for _, ok := range ib.PutBatch(b.pos, b.values, nil) {
		if !ok {
			rejected++
		}
	}
	b.pos = b.pos[:0]
	b.values = b.values[:0]
	return rejected
}
