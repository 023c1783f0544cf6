// Copyright 2026 The mitsuba2 Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import "errors"

// Configuration errors. They are returned by constructors and by Render
// before any sample is generated.
var (
	// ErrInvalidBlockSize is returned when a block size is not positive.
	ErrInvalidBlockSize = errors.New("render: block size must be positive")

	// ErrInvalidPasses is returned when the pass count is less than one.
	ErrInvalidPasses = errors.New("render: pass count must be at least 1")

	// ErrInvalidSize is returned for negative image or block dimensions.
	ErrInvalidSize = errors.New("render: size must not be negative")

	// ErrInvalidChannels is returned when a channel count is less than one.
	ErrInvalidChannels = errors.New("render: channel count must be at least 1")

	// ErrNilFilter is returned when a required reconstruction filter is nil.
	ErrNilFilter = errors.New("render: reconstruction filter is nil")

	// ErrNilFilm is returned by Render when no film is given.
	ErrNilFilm = errors.New("render: film is nil")

	// ErrNilIntegrator is returned by Render when no integrator is given.
	ErrNilIntegrator = errors.New("render: integrator is nil")

	// ErrInvalidCrop is returned when a crop window does not fit the film.
	ErrInvalidCrop = errors.New("render: crop window outside film")
)

// Merge errors.
var (
	// ErrBlockOutOfBounds is returned when a block's interior does not lie
	// inside the film's crop window.
	ErrBlockOutOfBounds = errors.New("render: block outside crop window")

	// ErrChannelMismatch is returned when a block and a film disagree on
	// the number of channels.
	ErrChannelMismatch = errors.New("render: channel count mismatch")
)
