// Copyright 2026 The mitsuba2 Authors
// SPDX-License-Identifier: BSD-3-Clause

package rfilter

import (
	"fmt"
	"math"
)

const (
	// Resolution is the number of intervals the kernel support [0, radius]
	// is divided into. Tables hold Resolution+1 entries.
	Resolution = 31

	// Epsilon guards the border computation against radii that land exactly
	// on a half-integer.
	Epsilon = 1e-4
)

// Table is a discretized reconstruction filter.
//
// A Table is immutable after NewTable returns and is safe for concurrent use.
type Table struct {
	filter      Filter
	radius      float64
	scaleFactor float64
	borderSize  int
	values      [Resolution + 1]float64
}

// NewTable samples f at Resolution+1 equally spaced points of [0, radius].
// The last entry is forced to zero so that lookups at the support boundary
// vanish regardless of rounding.
func NewTable(f Filter) (*Table, error) {
	if f == nil {
		return nil, ErrNilFilter
	}
	radius := f.Radius()
	if !(radius > 0) || math.IsInf(radius, 0) {
		return nil, fmt.Errorf("%w: %s filter has radius %v", ErrInvalidRadius, f.Name(), radius)
	}

	t := &Table{
		filter:      f,
		radius:      radius,
		scaleFactor: Resolution / radius,
		borderSize:  max(0, int(math.Ceil(radius-0.5-2*Epsilon))),
	}
	for i := 0; i < Resolution; i++ {
		t.values[i] = f.Eval(radius * float64(i) / Resolution)
	}
	t.values[Resolution] = 0
	return t, nil
}

// Filter returns the continuous kernel the table was built from.
func (t *Table) Filter() Filter { return t.filter }

// Radius returns the kernel's support radius.
func (t *Table) Radius() float64 { return t.radius }

// BorderSize returns the number of extra pixels an image block needs on
// each side so that samples near the block edge keep their full footprint.
func (t *Table) BorderSize() int { return t.borderSize }

// ScaleFactor returns Resolution / Radius.
func (t *Table) ScaleFactor() float64 { return t.scaleFactor }

// Values returns a copy of the table entries.
func (t *Table) Values() []float64 {
	out := make([]float64, len(t.values))
	copy(out, t.values[:])
	return out
}

// Eval evaluates the continuous kernel at x.
func (t *Table) Eval(x float64) float64 {
	if math.Abs(x) > t.radius {
		return 0
	}
	return t.filter.Eval(x)
}

// EvalDiscretized returns the table entry nearest to |x|, clamped to the
// last (zero) entry outside the support.
func (t *Table) EvalDiscretized(x float64) float64 {
	pos := math.Abs(x) * t.scaleFactor
	if !(pos < Resolution) {
		// Also catches NaN.
		return t.values[Resolution]
	}
	return t.values[int(math.Round(pos))]
}

// String returns a short description of the table.
func (t *Table) String() string {
	return fmt.Sprintf("Table[filter=%s, radius=%g, border=%d]", t.filter.Name(), t.radius, t.borderSize)
}
