// Copyright 2026 The mitsuba2 Authors
// SPDX-License-Identifier: BSD-3-Clause

package rfilter

import (
	"errors"
	"fmt"
	"math"
)

// BoundaryCondition selects how a Resampler reads samples outside the source.
type BoundaryCondition int

const (
	// Clamp repeats the nearest edge sample.
	Clamp BoundaryCondition = iota
	// Repeat wraps around periodically.
	Repeat
	// Mirror reflects at the edges.
	Mirror
	// Zero reads zero outside the source.
	Zero
	// One reads one outside the source.
	One
)

// String returns the boundary condition's name.
func (bc BoundaryCondition) String() string {
	switch bc {
	case Clamp:
		return "clamp"
	case Repeat:
		return "repeat"
	case Mirror:
		return "mirror"
	case Zero:
		return "zero"
	case One:
		return "one"
	default:
		return "invalid"
	}
}

// Errors returned by the Resampler.
var (
	// ErrInvalidResolution is returned for a zero or negative resolution.
	ErrInvalidResolution = errors.New("rfilter: resolution must be positive")

	// ErrFootprintTooSmall is returned when some output sample receives no
	// input weight at all.
	ErrFootprintTooSmall = errors.New("rfilter: filter footprint is too small")

	// ErrBufferSize is returned when Resample buffers are too short.
	ErrBufferSize = errors.New("rfilter: buffer too small")
)

// Resampler resamples one-dimensional signals between resolutions.
//
// When downsampling, the filter is widened by the resampling ratio so that it
// acts as a low-pass filter. When source and target resolution agree, the
// resampler degenerates to a plain discrete convolution with an odd tap count.
//
// A Resampler is safe for concurrent Resample calls once configured.
type Resampler struct {
	sourceRes int
	targetRes int
	taps      int
	start     []int     // first source index per target sample (resampling mode)
	weights   []float64 // taps per target sample, or taps total (filtering mode)
	bc        BoundaryCondition
	clampLo   float64
	clampHi   float64
}

// NewResampler precomputes the weights for resampling sourceRes samples to
// targetRes samples with f.
func NewResampler(f Filter, sourceRes, targetRes int) (*Resampler, error) {
	if f == nil {
		return nil, ErrNilFilter
	}
	if sourceRes <= 0 || targetRes <= 0 {
		return nil, fmt.Errorf("%w: %d -> %d", ErrInvalidResolution, sourceRes, targetRes)
	}
	radius := f.Radius()
	if !(radius > 0) || math.IsInf(radius, 0) {
		return nil, fmt.Errorf("%w: %s filter has radius %v", ErrInvalidRadius, f.Name(), radius)
	}

	scale, invScale := 1.0, 1.0
	if targetRes < sourceRes {
		scale = float64(sourceRes) / float64(targetRes)
		invScale = 1 / scale
		radius *= scale
	}

	r := &Resampler{
		sourceRes: sourceRes,
		targetRes: targetRes,
		taps:      max(1, int(math.Ceil(radius*2))),
		bc:        Clamp,
		clampLo:   math.Inf(-1),
		clampHi:   math.Inf(1),
	}

	if sourceRes == targetRes {
		if r.taps%2 != 1 {
			r.taps--
		}
		r.taps = max(1, r.taps)
		half := r.taps / 2
		r.weights = make([]float64, r.taps)
		for i := range r.weights {
			r.weights[i] = f.Eval(float64(i - half))
		}
		if err := normalize(r.weights); err != nil {
			return nil, err
		}
		return r, nil
	}

	r.start = make([]int, targetRes)
	r.weights = make([]float64, r.taps*targetRes)
	for i := range targetRes {
		// Fractional position of target sample i in source coordinates.
		center := (float64(i) + 0.5) / float64(targetRes) * float64(sourceRes)
		r.start[i] = int(math.Floor(center - radius + 0.5))

		w := r.weights[i*r.taps : (i+1)*r.taps]
		for j := range w {
			pos := float64(r.start[i]+j) + 0.5 - center
			w[j] = eval(f, pos*invScale)
		}
		if err := normalize(w); err != nil {
			return nil, fmt.Errorf("target sample %d: %w", i, err)
		}
	}
	return r, nil
}

// eval evaluates f, returning zero outside its support.
func eval(f Filter, x float64) float64 {
	if math.Abs(x) > f.Radius() {
		return 0
	}
	return f.Eval(x)
}

// normalize rescales w to sum to one.
func normalize(w []float64) error {
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	if sum == 0 {
		return ErrFootprintTooSmall
	}
	inv := 1 / sum
	for i := range w {
		w[i] *= inv
	}
	return nil
}

// SourceResolution returns the source sample count.
func (r *Resampler) SourceResolution() int { return r.sourceRes }

// TargetResolution returns the target sample count.
func (r *Resampler) TargetResolution() int { return r.targetRes }

// Taps returns the number of source samples combined per target sample.
func (r *Resampler) Taps() int { return r.taps }

// BoundaryCondition returns the current boundary condition.
func (r *Resampler) BoundaryCondition() BoundaryCondition { return r.bc }

// SetBoundaryCondition sets how out-of-range source samples are read.
func (r *Resampler) SetBoundaryCondition(bc BoundaryCondition) { r.bc = bc }

// Clamp returns the output clamping range.
func (r *Resampler) Clamp() (lo, hi float64) { return r.clampLo, r.clampHi }

// SetClamp clamps every output sample to [lo, hi].
// Negative-lobed filters such as Lanczos can otherwise overshoot.
func (r *Resampler) SetClamp(lo, hi float64) {
	r.clampLo, r.clampHi = lo, hi
}

// Resample filters channels interleaved channels from source into target.
// Strides are measured in float64 elements between consecutive samples.
func (r *Resampler) Resample(source []float64, sourceStride int, target []float64, targetStride int, channels int) error {
	if channels <= 0 || sourceStride < channels || targetStride < channels {
		return fmt.Errorf("%w: channels=%d strides=%d/%d", ErrBufferSize, channels, sourceStride, targetStride)
	}
	if len(source) < (r.sourceRes-1)*sourceStride+channels {
		return fmt.Errorf("%w: source has %d values", ErrBufferSize, len(source))
	}
	if len(target) < (r.targetRes-1)*targetStride+channels {
		return fmt.Errorf("%w: target has %d values", ErrBufferSize, len(target))
	}

	half := r.taps / 2
	for i := range r.targetRes {
		var start int
		var w []float64
		if r.start == nil {
			start = i - half
			w = r.weights
		} else {
			start = r.start[i]
			w = r.weights[i*r.taps : (i+1)*r.taps]
		}
		for ch := range channels {
			sum := 0.0
			for j, wj := range w {
				sum += wj * r.lookup(source, start+j, sourceStride, ch)
			}
			target[i*targetStride+ch] = min(max(sum, r.clampLo), r.clampHi)
		}
	}
	return nil
}

// lookup reads source sample pos of channel ch, applying the boundary condition.
func (r *Resampler) lookup(source []float64, pos, stride, ch int) float64 {
	res := r.sourceRes
	if pos < 0 || pos >= res {
		switch r.bc {
		case Clamp:
			pos = min(max(pos, 0), res-1)
		case Repeat:
			pos = modulo(pos, res)
		case Mirror:
			if res == 1 {
				pos = 0
				break
			}
			pos = modulo(pos, 2*res-2)
			if pos >= res-1 {
				pos = 2*res - 2 - pos
			}
		case One:
			return 1
		default:
			return 0
		}
	}
	return source[pos*stride+ch]
}

// modulo returns a non-negative remainder.
func modulo(a, b int) int {
	r := a % b
	if r < 0 {
		r += b
	}
	return r
}
