// Copyright 2026 The mitsuba2 Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"fmt"
	"image"
	"sync"

	"github.com/Acontardi-014/mitsuba2/internal/parallel"
)

// Target is where finished ImageBlocks are merged.
//
// Size is the full film resolution; the crop window given by CropOffset and
// CropSize is the region actually rendered. Put must be safe for concurrent
// use and must discard the block's border.
type Target interface {
	Size() image.Point
	CropSize() image.Point
	CropOffset() image.Point
	Channels() int
	Put(b *ImageBlock) error
}

// numRowLocks is the number of striped row locks of a Film. Power of two.
const numRowLocks = 64

type rowLocks struct{ mu [numRowLocks]sync.Mutex }

func (l *rowLocks) lock(row int)   { l.mu[row&(numRowLocks-1)].Lock() }
func (l *rowLocks) unlock(row int) { l.mu[row&(numRowLocks-1)].Unlock() }

// Film is an in-memory Target storing the crop window as a flat,
// channel-interleaved float64 buffer.
//
// Blocks of one pass never overlap, but blocks of consecutive passes cover
// the same pixels and may be merged concurrently, so each row is guarded by
// one of a fixed set of striped locks.
type Film struct {
	size       image.Point
	cropSize   image.Point
	cropOffset image.Point
	channels   int

	data  []float64
	locks rowLocks

	// updated tracks merged regions since the last TakeUpdated call.
	updated *parallel.DirtyRegion
}

// NewFilm creates a zeroed film. The crop window must lie inside size.
func NewFilm(size, cropSize, cropOffset image.Point, channels int) (*Film, error) {
	if size.X < 0 || size.Y < 0 || cropSize.X < 0 || cropSize.Y < 0 {
		return nil, fmt.Errorf("%w: size %v crop %v", ErrInvalidSize, size, cropSize)
	}
	if channels < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannels, channels)
	}
	crop := image.Rectangle{Min: cropOffset, Max: cropOffset.Add(cropSize)}
	if !crop.In(image.Rectangle{Max: size}) && !crop.Empty() {
		return nil, fmt.Errorf("%w: %v in %v", ErrInvalidCrop, crop, size)
	}
	if cropOffset.X < 0 || cropOffset.Y < 0 {
		return nil, fmt.Errorf("%w: offset %v", ErrInvalidCrop, cropOffset)
	}

	return &Film{
		size:       size,
		cropSize:   cropSize,
		cropOffset: cropOffset,
		channels:   channels,
		data:       make([]float64, cropSize.X*cropSize.Y*channels),
		updated:    parallel.NewDirtyRegion(cropSize.X, cropSize.Y, DefaultBlockSize),
	}, nil
}

// NewFullFilm creates a film whose crop window is the whole image.
func NewFullFilm(size image.Point, channels int) (*Film, error) {
	return NewFilm(size, size, image.Point{}, channels)
}

// Size returns the full film resolution.
func (f *Film) Size() image.Point { return f.size }

// CropSize returns the size of the rendered window.
func (f *Film) CropSize() image.Point { return f.cropSize }

// CropOffset returns the position of the rendered window.
func (f *Film) CropOffset() image.Point { return f.cropOffset }

// Channels returns the number of values stored per pixel.
func (f *Film) Channels() int { return f.channels }

// Put adds the interior of b to the film. The border is dropped.
func (f *Film) Put(b *ImageBlock) error {
	if b.ChannelCount() != f.channels {
		return fmt.Errorf("%w: block %d, film %d", ErrChannelMismatch, b.ChannelCount(), f.channels)
	}

	dst := image.Rectangle{Min: b.Offset(), Max: b.Offset().Add(b.Size())}.Sub(f.cropOffset)
	if dst.Empty() {
		return nil
	}
	if !dst.In(image.Rectangle{Max: f.cropSize}) {
		return fmt.Errorf("%w: %v in %v", ErrBlockOutOfBounds, dst, f.cropSize)
	}

	c := f.channels
	border := b.BorderSize()
	srcStride := b.BufferSize().X * c
	dstStride := f.cropSize.X * c
	rowLen := dst.Dx() * c
	src := b.Data()

	for y := range dst.Dy() {
		row := dst.Min.Y + y
		s := src[(y+border)*srcStride+border*c:][:rowLen]
		d := f.data[row*dstStride+dst.Min.X*c:][:rowLen]

		f.locks.lock(row)
		for i, v := range s {
			d[i] += v
		}
		f.locks.unlock(row)
	}

	if f.updated != nil {
		f.updated.MarkRect(dst)
	}
	return nil
}

// At returns channel k of crop-window pixel (x, y).
func (f *Film) At(x, y, k int) float64 {
	return f.data[(y*f.cropSize.X+x)*f.channels+k]
}

// Data returns the underlying buffer. It must not be read while blocks are
// being merged.
func (f *Film) Data() []float64 { return f.data }

// Clear zeroes the film.
func (f *Film) Clear() {
	clear(f.data)
	if f.updated != nil {
		f.updated.Clear()
	}
}

// TakeUpdated returns the crop-window rectangles merged since the previous
// call, at DefaultBlockSize granularity, clipped to the crop window.
func (f *Film) TakeUpdated() []image.Rectangle {
	if f.updated == nil {
		return nil
	}
	bounds := image.Rectangle{Max: f.cropSize}
	rects := f.updated.GetAndClear()
	for i := range rects {
		rects[i] = rects[i].Intersect(bounds)
	}
	return rects
}

// Develop returns a copy of the film in which every channel except
// weightChannel is divided by the value of weightChannel. Pixels with zero
// weight become zero. A negative weightChannel returns the raw values.
func (f *Film) Develop(weightChannel int) []float64 {
	out := make([]float64, len(f.data))
	copy(out, f.data)
	if weightChannel < 0 || weightChannel >= f.channels {
		return out
	}

	c := f.channels
	for i := 0; i < len(out); i += c {
		px := out[i : i+c]
		w := px[weightChannel]
		for k := range px {
			switch {
			case k == weightChannel:
			case w != 0:
				px[k] /= w
			default:
				px[k] = 0
			}
		}
	}
	return out
}

func (f *Film) String() string {
	return fmt.Sprintf("Film[size=%v, crop_size=%v, crop_offset=%v, channels=%d]",
		f.size, f.cropSize, f.cropOffset, f.channels)
}
