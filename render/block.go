// Copyright 2026 The mitsuba2 Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"fmt"
	"image"
	"math"

	"github.com/Acontardi-014/mitsuba2/internal/scatter"
	"github.com/Acontardi-014/mitsuba2/rfilter"
	"seehuhn.de/go/geom/vec"
)

// PacketSize is the number of samples PutBatch splats together.
// Larger batches are processed as consecutive packets.
const PacketSize = 16

// BlockOption configures an ImageBlock during creation.
type BlockOption func(*blockOptions)

type blockOptions struct {
	border    bool
	warn      bool
	normalize bool
}

func defaultBlockOptions() blockOptions {
	return blockOptions{
		border: true,
		warn:   true,
	}
}

// WithBorder controls whether the block allocates a border of
// filter.BorderSize() pixels around its nominal size. Default: true.
func WithBorder(enabled bool) BlockOption {
	return func(o *blockOptions) { o.border = enabled }
}

// WithWarn controls validation of sample values. When enabled, samples
// with a non-finite or negative channel are rejected and logged.
// Default: true.
func WithWarn(enabled bool) BlockOption {
	return func(o *blockOptions) { o.warn = enabled }
}

// WithNormalize rescales each sample's filter weights so that its
// footprint sums to one. Default: false.
func WithNormalize(enabled bool) BlockOption {
	return func(o *blockOptions) { o.normalize = enabled }
}

// ImageBlock accumulates filtered samples for one rectangular region of a
// film. The region is surrounded by a border wide enough to hold the full
// filter footprint of samples near its edges; the border overlaps the
// neighboring blocks and is discarded when the block is merged.
//
// Storage is a flat, channel-interleaved buffer of
// (size+2*border).X * (size+2*border).Y * channels values.
//
// Thread safety: an ImageBlock is owned by one goroutine at a time. Put and
// PutBatch must not be called concurrently on the same block.
type ImageBlock struct {
	offset   image.Point
	size     image.Point
	border   int
	channels int
	filter   rfilter.Discretized
	radius   float64
	opts     blockOptions

	data []float64

	// Scalar Put scratch, sized to the maximum taps per axis.
	weightsX []float64
	weightsY []float64
	sample   []float64

	// PutBatch scratch.
	packet packet
	adder  scatter.Adder
}

// NewImageBlock creates a zeroed block of the given interior size.
func NewImageBlock(size image.Point, channels int, filter rfilter.Discretized, opts ...BlockOption) (*ImageBlock, error) {
	if filter == nil {
		return nil, ErrNilFilter
	}
	if channels < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannels, channels)
	}
	if size.X < 0 || size.Y < 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSize, size)
	}

	o := defaultBlockOptions()
	for _, opt := range opts {
		opt(&o)
	}

	b := &ImageBlock{
		channels: channels,
		filter:   filter,
		radius:   filter.Radius(),
		opts:     o,
	}
	if o.border {
		b.border = filter.BorderSize()
	}

	taps := int(math.Ceil(2*b.radius)) + 1
	b.weightsX = make([]float64, taps)
	b.weightsY = make([]float64, taps)
	b.sample = make([]float64, channels)
	b.packet.init(taps)

	b.Resize(size)
	return b, nil
}

// Resize changes the interior size and zeroes the buffer, reusing its
// memory when the capacity allows.
func (b *ImageBlock) Resize(size image.Point) {
	if size.X < 0 || size.Y < 0 {
		size = image.Point{}
	}
	b.size = size
	n := b.bufferWidth() * b.bufferHeight() * b.channels
	if cap(b.data) < n {
		b.data = make([]float64, n)
		return
	}
	b.data = b.data[:n]
	clear(b.data)
}

// Clear zeroes every stored value, border included.
func (b *ImageBlock) Clear() {
	clear(b.data)
}

// SetOffset positions the block's interior on the film.
func (b *ImageBlock) SetOffset(offset image.Point) { b.offset = offset }

// Offset returns the film position of the block's interior.
func (b *ImageBlock) Offset() image.Point { return b.offset }

// Size returns the interior size.
func (b *ImageBlock) Size() image.Point { return b.size }

// BufferSize returns the allocated size, border included.
func (b *ImageBlock) BufferSize() image.Point {
	return image.Pt(b.bufferWidth(), b.bufferHeight())
}

// BorderSize returns the border width in pixels.
func (b *ImageBlock) BorderSize() int { return b.border }

// ChannelCount returns the number of values stored per pixel.
func (b *ImageBlock) ChannelCount() int { return b.channels }

// Filter returns the reconstruction filter used for splatting.
func (b *ImageBlock) Filter() rfilter.Discretized { return b.filter }

// Data returns the underlying buffer. Pixel (x, y) in buffer coordinates
// (border included) starts at (y*BufferSize().X + x) * ChannelCount().
func (b *ImageBlock) Data() []float64 { return b.data }

func (b *ImageBlock) bufferWidth() int  { return b.size.X + 2*b.border }
func (b *ImageBlock) bufferHeight() int { return b.size.Y + 2*b.border }

// Index returns the offset of channel k of buffer pixel (x, y).
// It panics if the coordinates are outside the buffer.
func (b *ImageBlock) Index(x, y, k int) int {
	w, h := b.bufferWidth(), b.bufferHeight()
	if x < 0 || x >= w || y < 0 || y >= h || k < 0 || k >= b.channels {
		panic(fmt.Sprintf("render: ImageBlock.Index(%d, %d, %d) outside %dx%dx%d buffer", x, y, k, w, h, b.channels))
	}
	return (y*w+x)*b.channels + k
}

// At returns channel k of buffer pixel (x, y).
func (b *ImageBlock) At(x, y, k int) float64 {
	return b.data[b.Index(x, y, k)]
}

// localize converts a film position to buffer-local continuous coordinates
// in which integer values are pixel centers.
func (b *ImageBlock) localize(pos vec.Vec2) vec.Vec2 {
	return pos.Sub(vec.Vec2{
		X: float64(b.offset.X-b.border) + 0.5,
		Y: float64(b.offset.Y-b.border) + 0.5,
	})
}

// footprint returns the inclusive tap range of a local coordinate along
// an axis of n pixels. ok is false if the range is empty.
func footprint(p, radius float64, n int) (lo, hi int, ok bool) {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, -1, false
	}
	flo := math.Max(math.Ceil(p-radius), 0)
	fhi := math.Min(math.Floor(p+radius), float64(n-1))
	if fhi < flo {
		return 0, -1, false
	}
	return int(flo), int(fhi), true
}

// validSample reports whether every channel is finite and non-negative.
func validSample(v []float64) bool {
	for _, x := range v {
		if !(x >= 0) || math.IsInf(x, 1) {
			return false
		}
	}
	return true
}

// Put splats one sample at a continuous film position. value must hold
// ChannelCount values.
//
// Put returns false when the sample contributes nothing: it was rejected as
// invalid (see WithWarn) or its footprint lies entirely outside the buffer.
func (b *ImageBlock) Put(pos vec.Vec2, value []float64) bool {
	value = value[:b.channels]

	if b.opts.warn && !validSample(value) {
		Logger().Warn("render: invalid sample value", "pos", pos, "value", value)
		return false
	}

	p := b.localize(pos)
	x0, x1, okX := footprint(p.X, b.radius, b.bufferWidth())
	y0, y1, okY := footprint(p.Y, b.radius, b.bufferHeight())
	if !okX || !okY {
		return false
	}

	wx := b.weightsX[:x1-x0+1]
	wy := b.weightsY[:y1-y0+1]
	for i := range wx {
		wx[i] = b.filter.EvalDiscretized(float64(x0+i) - p.X)
	}
	for i := range wy {
		wy[i] = b.filter.EvalDiscretized(float64(y0+i) - p.Y)
	}
	if b.opts.normalize {
		normalizeWeights(wx, wy)
	}

	w := b.bufferWidth()
	c := b.channels
	for yr, weightY := range wy {
		dst := b.data[((y0+yr)*w+x0)*c:]
		for xr, weightX := range wx {
			weight := weightX * weightY
			px := dst[xr*c : xr*c+c]
			for k, v := range value {
				px[k] += weight * v
			}
		}
	}
	return true
}

// PutSpectrum splats a spectrum followed by an alpha value and a unit
// weight, so that a film can later divide by the accumulated weight.
// The block must have len(spectrum)+2 channels; PutSpectrum panics
// otherwise.
func (b *ImageBlock) PutSpectrum(pos vec.Vec2, spectrum []float64, alpha float64) bool {
	if len(spectrum)+2 != b.channels {
		panic(fmt.Sprintf("render: PutSpectrum with %d values on a %d channel block", len(spectrum), b.channels))
	}
	copy(b.sample, spectrum)
	b.sample[len(spectrum)] = alpha
	b.sample[len(spectrum)+1] = 1
	return b.Put(pos, b.sample)
}

// normalizeWeights rescales wx so that sum(wx)*sum(wy) == 1.
// Footprints with a non-positive total are left unchanged.
func normalizeWeights(wx, wy []float64) {
	var sx, sy float64
	for _, w := range wx {
		sx += w
	}
	for _, w := range wy {
		sy += w
	}
	total := sx * sy
	if !(total > 0) {
		return
	}
	inv := 1 / total
	for i := range wx {
		wx[i] *= inv
	}
}

func (b *ImageBlock) String() string {
	return fmt.Sprintf("ImageBlock[offset=%v, size=%v, border=%d, channels=%d, filter=%v]",
		b.offset, b.size, b.border, b.channels, b.filter)
}
