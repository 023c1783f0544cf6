// Copyright 2026 The mitsuba2 Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"seehuhn.de/go/geom/vec"
)

// packet is the scratch state of one PutBatch packet. Per-lane weights are
// stored lane-major: weightsX[lane*taps+i].
type packet struct {
	taps int

	x0, y0   [PacketSize]int
	nx, ny   [PacketSize]int
	weightsX []float64
	weightsY []float64

	enabled [PacketSize]bool
	base    [PacketSize]int
	weight  [PacketSize]float64
	idx     [PacketSize]int
	val     [PacketSize]float64
}

func (p *packet) init(taps int) {
	p.taps = taps
	p.weightsX = make([]float64, PacketSize*taps)
	p.weightsY = make([]float64, PacketSize*taps)
}

// PutBatch splats len(pos) samples. values is item-major and holds
// ChannelCount values per sample: values[i*ChannelCount()+k]. active, if
// non-nil, selects the samples to splat; nil enables every sample.
//
// Unlike Put, an invalid sample only excludes itself: the remaining samples
// are still accumulated. Samples whose filter footprints overlap are summed
// correctly even when they land on the same pixel within one packet.
//
// PutBatch returns the mask of samples that were accumulated.
func (b *ImageBlock) PutBatch(pos []vec.Vec2, values []float64, active []bool) []bool {
	n := len(pos)
	c := b.channels
	if len(values) < n*c {
		n = len(values) / c
	}
	accepted := make([]bool, len(pos))

	invalid := 0
	for i := range n {
		if active != nil && (i >= len(active) || !active[i]) {
			continue
		}
		if b.opts.warn && !validSample(values[i*c:i*c+c]) {
			invalid++
			continue
		}
		accepted[i] = true
	}
	if invalid > 0 {
		Logger().Warn("render: invalid sample values in batch", "rejected", invalid, "batch", n)
	}

	for start := 0; start < n; start += PacketSize {
		end := min(start+PacketSize, n)
		b.putPacket(pos[start:end], values[start*c:end*c], accepted[start:end])
	}
	return accepted
}

// putPacket splats up to PacketSize samples. Lanes whose footprint is empty
// are cleared from mask.
func (b *ImageBlock) putPacket(pos []vec.Vec2, values []float64, mask []bool) {
	p := &b.packet
	w, h := b.bufferWidth(), b.bufferHeight()
	c := b.channels

	maxX, maxY := -1, -1
	for lane := range pos {
		p.enabled[lane] = false
		if !mask[lane] {
			continue
		}
		local := b.localize(pos[lane])
		x0, x1, okX := footprint(local.X, b.radius, w)
		y0, y1, okY := footprint(local.Y, b.radius, h)
		if !okX || !okY {
			mask[lane] = false
			continue
		}

		p.x0[lane], p.nx[lane] = x0, x1-x0+1
		p.y0[lane], p.ny[lane] = y0, y1-y0+1
		wx := p.weightsX[lane*p.taps : lane*p.taps+p.nx[lane]]
		wy := p.weightsY[lane*p.taps : lane*p.taps+p.ny[lane]]
		for i := range wx {
			wx[i] = b.filter.EvalDiscretized(float64(x0+i) - local.X)
		}
		for i := range wy {
			wy[i] = b.filter.EvalDiscretized(float64(y0+i) - local.Y)
		}
		if b.opts.normalize {
			normalizeWeights(wx, wy)
		}

		maxX = max(maxX, p.nx[lane]-1)
		maxY = max(maxY, p.ny[lane]-1)
	}

	lanes := len(pos)
	for yr := 0; yr <= maxY; yr++ {
		for xr := 0; xr <= maxX; xr++ {
			hit := false
			for lane := range lanes {
				on := mask[lane] && yr < p.ny[lane] && xr < p.nx[lane]
				p.enabled[lane] = on
				if on {
					p.base[lane] = ((p.y0[lane]+yr)*w + p.x0[lane] + xr) * c
					p.weight[lane] = p.weightsX[lane*p.taps+xr] * p.weightsY[lane*p.taps+yr]
					hit = true
				}
			}
			if !hit {
				continue
			}

			// Two lanes may resolve to the same pixel at this tap offset;
			// the adder sums them before a single store.
			for k := range c {
				for lane := range lanes {
					if p.enabled[lane] {
						p.idx[lane] = p.base[lane] + k
						p.val[lane] = p.weight[lane] * values[lane*c+k]
					}
				}
				b.adder.Add(b.data, p.idx[:lanes], p.val[:lanes], p.enabled[:lanes])
			}
		}
	}
}
