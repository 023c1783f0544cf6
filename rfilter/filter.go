// Copyright 2026 The mitsuba2 Authors
// SPDX-License-Identifier: BSD-3-Clause

package rfilter

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"golang.org/x/image/draw"
)

// Errors returned by filter construction.
var (
	// ErrInvalidRadius is returned when a filter radius is not a positive finite number.
	ErrInvalidRadius = errors.New("rfilter: radius must be positive and finite")

	// ErrNilFilter is returned when a nil filter or kernel is supplied.
	ErrNilFilter = errors.New("rfilter: nil filter")

	// ErrUnknownFilter is returned by ByName for an unregistered name.
	ErrUnknownFilter = errors.New("rfilter: unknown filter")
)

// Filter is a continuous reconstruction kernel.
//
// Eval is only called with |x| <= Radius() by this package, and must be
// even: Eval(-x) == Eval(x).
type Filter interface {
	// Name returns the kernel's short name (e.g. "gaussian").
	Name() string

	// Radius returns the half-width of the kernel's support.
	Radius() float64

	// Eval evaluates the kernel at x.
	Eval(x float64) float64
}

// Discretized is the narrow capability consumed by sample accumulation:
// a support radius, a border size in pixels, and a table lookup.
// [*Table] implements it.
type Discretized interface {
	Radius() float64
	BorderSize() int
	EvalDiscretized(x float64) float64
}

// box is a constant kernel over [-0.5, 0.5].
type box struct{}

// Box returns the box filter with radius 0.5.
func Box() Filter { return box{} }

func (box) Name() string    { return "box" }
func (box) Radius() float64 { return 0.5 }

func (box) Eval(x float64) float64 {
	if math.Abs(x) <= 0.5 {
		return 1
	}
	return 0
}

// kernelFilter adapts an x/image/draw kernel, whose At function is defined
// on [0, Support).
type kernelFilter struct {
	name   string
	kernel *draw.Kernel
}

// FromKernel adapts k to a Filter with radius k.Support.
func FromKernel(name string, k *draw.Kernel) (Filter, error) {
	if k == nil || k.At == nil {
		return nil, ErrNilFilter
	}
	if !(k.Support > 0) || math.IsInf(k.Support, 0) {
		return nil, fmt.Errorf("%w: kernel %q has support %v", ErrInvalidRadius, name, k.Support)
	}
	return kernelFilter{name: name, kernel: k}, nil
}

func (f kernelFilter) Name() string    { return f.name }
func (f kernelFilter) Radius() float64 { return f.kernel.Support }

func (f kernelFilter) Eval(x float64) float64 {
	x = math.Abs(x)
	if x >= f.kernel.Support {
		return 0
	}
	return f.kernel.At(x)
}

// Tent returns the linear tent filter with radius 1.
func Tent() Filter {
	return kernelFilter{name: "tent", kernel: draw.BiLinear}
}

// CatmullRom returns the Catmull-Rom cubic filter with radius 2.
func CatmullRom() Filter {
	return kernelFilter{name: "catmullrom", kernel: draw.CatmullRom}
}

// gaussian is a truncated Gaussian, shifted down so that it is exactly zero
// at the truncation radius.
type gaussian struct {
	stddev float64
	radius float64
	alpha  float64
	bias   float64
}

// DefaultGaussianStddev is the standard deviation used by ByName("gaussian").
const DefaultGaussianStddev = 0.5

// Gaussian returns a Gaussian filter truncated at 4 standard deviations.
func Gaussian(stddev float64) (Filter, error) {
	if !(stddev > 0) || math.IsInf(stddev, 0) {
		return nil, fmt.Errorf("%w: gaussian stddev %v", ErrInvalidRadius, stddev)
	}
	radius := 4 * stddev
	alpha := -1 / (2 * stddev * stddev)
	return gaussian{
		stddev: stddev,
		radius: radius,
		alpha:  alpha,
		bias:   math.Exp(alpha * radius * radius),
	}, nil
}

func (g gaussian) Name() string    { return "gaussian" }
func (g gaussian) Radius() float64 { return g.radius }

func (g gaussian) Eval(x float64) float64 {
	return max(0, math.Exp(g.alpha*x*x)-g.bias)
}

// mitchell is the Mitchell-Netravali family of cubics with radius 2.
type mitchell struct {
	b, c float64
}

// Mitchell returns the Mitchell-Netravali filter with parameters b and c.
// B = C = 1/3 is the classic recommendation.
func Mitchell(b, c float64) Filter {
	return mitchell{b: b, c: c}
}

func (mitchell) Name() string    { return "mitchell" }
func (mitchell) Radius() float64 { return 2 }

func (f mitchell) Eval(x float64) float64 {
	x = math.Abs(x)
	b, c := f.b, f.c
	x2 := x * x
	x3 := x2 * x
	switch {
	case x < 1:
		return ((12-9*b-6*c)*x3 + (-18+12*b+6*c)*x2 + (6 - 2*b)) / 6
	case x < 2:
		return ((-b-6*c)*x3 + (6*b+30*c)*x2 + (-12*b-48*c)*x + (8*b + 24*c)) / 6
	}
	return 0
}

// lanczos is a sinc windowed by a wider sinc.
type lanczos struct {
	lobes int
}

// DefaultLanczosLobes is the lobe count used by ByName("lanczos").
const DefaultLanczosLobes = 3

// Lanczos returns a windowed sinc filter with the given number of lobes.
func Lanczos(lobes int) (Filter, error) {
	if lobes <= 0 {
		return nil, fmt.Errorf("%w: lanczos lobes %d", ErrInvalidRadius, lobes)
	}
	return lanczos{lobes: lobes}, nil
}

func (f lanczos) Name() string    { return "lanczos" }
func (f lanczos) Radius() float64 { return float64(f.lobes) }

func (f lanczos) Eval(x float64) float64 {
	x = math.Abs(x)
	radius := float64(f.lobes)
	if x < 1e-4 {
		return 1
	}
	if x > radius {
		return 0
	}
	x1 := math.Pi * x
	x2 := x1 / radius
	return math.Sin(x1) * math.Sin(x2) / (x1 * x2)
}

// registry maps plugin names to default-parameter constructors.
var registry = map[string]func() (Filter, error){
	"box":        func() (Filter, error) { return Box(), nil },
	"tent":       func() (Filter, error) { return Tent(), nil },
	"gaussian":   func() (Filter, error) { return Gaussian(DefaultGaussianStddev) },
	"mitchell":   func() (Filter, error) { return Mitchell(1.0/3, 1.0/3), nil },
	"catmullrom": func() (Filter, error) { return CatmullRom(), nil },
	"lanczos":    func() (Filter, error) { return Lanczos(DefaultLanczosLobes) },
}

// ByName constructs a filter with default parameters from its name.
func ByName(name string) (Filter, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFilter, name)
	}
	return ctor()
}

// Names returns the registered filter names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
