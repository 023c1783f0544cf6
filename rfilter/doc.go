// Copyright 2026 The mitsuba2 Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package rfilter provides reconstruction filters for film sample splatting.
//
// A reconstruction filter is a continuous, even convolution kernel with
// compact support. Renderers never evaluate it analytically in the hot path:
// a filter is discretized once into a [Table] that answers lookups in O(1)
// and is then shared read-only between all worker goroutines.
//
// # Kernels
//
//   - Box: radius 0.5, constant
//   - Tent: radius 1, linear falloff (golang.org/x/image/draw.BiLinear)
//   - Gaussian: radius 4σ, shifted to reach zero at the support boundary
//   - Mitchell: Mitchell-Netravali cubic with B = C = 1/3
//   - CatmullRom: cubic with B = 0, C = 1/2 (golang.org/x/image/draw.CatmullRom)
//   - Lanczos: windowed sinc with a configurable number of lobes
//
// Any [golang.org/x/image/draw.Kernel] can be adapted with [FromKernel].
//
// # Discretization
//
//	f, _ := rfilter.ByName("gaussian")
//	table, err := rfilter.NewTable(f)
//	if err != nil {
//	    return err
//	}
//	w := table.EvalDiscretized(0.3)
//
// [Resampler] uses the continuous kernel to resample scanlines between
// resolutions with configurable boundary conditions.
package rfilter
