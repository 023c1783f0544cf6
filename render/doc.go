// Copyright 2026 The mitsuba2 Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render implements tile-parallel sample accumulation for an
// offline renderer.
//
// Work is partitioned into square blocks by a [Spiral], which hands them
// out to any number of goroutines in an outward spiral from the image
// center. Each worker owns an [ImageBlock]: a local raster with a border
// wide enough for the reconstruction filter's support. Samples at
// continuous film positions are splatted into the block through a
// discretized filter from package rfilter. A finished block is merged into
// a [Target] such as [Film], which drops the border so that neighboring
// blocks never double count.
//
// # Core Types
//
//   - Spiral: deterministic, thread-safe block scheduler with multi-pass support
//   - ImageBlock: per-block accumulation buffer with scalar Put and batched PutBatch
//   - Film: in-memory Target with striped row locks and a developed view
//   - Render: the worker loop tying the above together
//
// # Batched Splatting
//
// PutBatch splats up to [PacketSize] samples per step. Samples of one
// packet can land on the same pixel; their contributions are grouped by
// destination and summed before a single store, so the result equals
// calling Put for each sample in order.
//
// # Usage
//
//	table, _ := rfilter.NewTable(rfilter.Tent())
//	film, _ := render.NewFullFilm(image.Pt(640, 480), 3)
//
//	stats, err := render.Render(ctx, film, table,
//	    render.IntegratorFunc(func(p vec.Vec2, rng *rand.Rand, dst []float64) {
//	        dst[0], dst[1], dst[2] = p.X/640, p.Y/480, 0.5
//	    }),
//	    render.WithSamplesPerPixel(4))
//
// # Logging
//
// The package is silent by default. Use [SetLogger] to receive lifecycle,
// per-block and invalid-sample records through log/slog.
package render
