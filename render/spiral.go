// Copyright 2026 The mitsuba2 Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"fmt"
	"image"
	"sync"
)

// DefaultBlockSize is the edge length of a square block in pixels.
const DefaultBlockSize = 32

// Block is a rectangular work unit handed out by a Spiral.
// Offset is in full-film pixel coordinates, crop offset included.
// Pass is the zero-based pass the block belongs to.
type Block struct {
	Offset image.Point
	Size   image.Point
	Pass   int
}

// Empty reports whether b is the terminal block returned once a Spiral is
// exhausted.
func (b Block) Empty() bool {
	return b.Size.X <= 0 || b.Size.Y <= 0
}

// Rect returns the block's pixel rectangle.
func (b Block) Rect() image.Rectangle {
	return image.Rectangle{Min: b.Offset, Max: b.Offset.Add(b.Size)}
}

func (b Block) String() string {
	return fmt.Sprintf("Block[offset=%v, size=%v, pass=%d]", b.Offset, b.Size, b.Pass)
}

type direction uint8

const (
	dirRight direction = iota
	dirDown
	dirLeft
	dirUp
)

// Spiral partitions an image into square blocks and hands them out in an
// outward spiral starting near the image center. Rendering the center
// first gives a useful preview early.
//
// The sequence of blocks depends only on the configuration and the number
// of NextBlock calls; which goroutine receives which block is unordered.
//
// Thread safety: Spiral is safe for concurrent use. Its lock is held only
// for the bookkeeping inside NextBlock and Reset.
type Spiral struct {
	// Configuration, immutable after construction.
	size       image.Point
	offset     image.Point
	blockSize  int
	blocks     image.Point
	blockCount int

	mu              sync.Mutex
	remainingPasses int
	pass            int
	blockCounter    int
	dir             direction
	position        image.Point
	stepsLeft       int
	steps           int
}

// NewSpiral creates a scheduler for a size.X x size.Y image whose blocks
// are reported relative to offset. A zero-area image is valid and yields
// no blocks.
func NewSpiral(size, offset image.Point, blockSize, passes int) (*Spiral, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBlockSize, blockSize)
	}
	if passes < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPasses, passes)
	}
	if size.X < 0 || size.Y < 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSize, size)
	}

	blocks := image.Pt(ceilDiv(size.X, blockSize), ceilDiv(size.Y, blockSize))
	s := &Spiral{
		size:            size,
		offset:          offset,
		blockSize:       blockSize,
		blocks:          blocks,
		blockCount:      blocks.X * blocks.Y,
		remainingPasses: passes,
	}
	s.reset()
	return s, nil
}

// NewFilmSpiral creates a scheduler covering the crop window of a target.
func NewFilmSpiral(t Target, blockSize, passes int) (*Spiral, error) {
	return NewSpiral(t.CropSize(), t.CropOffset(), blockSize, passes)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// Reset restarts the traversal of the current pass at the grid center.
// The remaining pass count is unchanged.
func (s *Spiral) Reset() {
	s.mu.Lock()
	s.reset()
	s.mu.Unlock()
}

func (s *Spiral) reset() {
	s.blockCounter = 0
	s.dir = dirRight
	s.position = image.Pt(s.blocks.X/2, s.blocks.Y/2)
	s.stepsLeft = 1
	s.steps = 1
}

// NextBlock returns the next block of the spiral. After the last block of
// the last pass it returns a Block whose Empty method reports true, and
// keeps doing so on every further call.
func (s *Spiral) NextBlock() Block {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blockCounter == s.blockCount {
		if s.remainingPasses <= 1 || s.blockCount == 0 {
			return Block{}
		}
		s.remainingPasses--
		s.pass++
		s.reset()
	}

	offset := s.position.Mul(s.blockSize)
	size := image.Pt(
		min(s.blockSize, s.size.X-offset.X),
		min(s.blockSize, s.size.Y-offset.Y),
	)
	b := Block{Offset: offset.Add(s.offset), Size: size, Pass: s.pass}

	s.blockCounter++
	if s.blockCounter != s.blockCount {
		s.advance()
	}
	return b
}

// advance moves position to the next cell of the spiral that lies inside
// the block grid. Cells outside the grid are skipped without consuming a
// counter step.
func (s *Spiral) advance() {
	for {
		switch s.dir {
		case dirRight:
			s.position.X++
		case dirDown:
			s.position.Y++
		case dirLeft:
			s.position.X--
		case dirUp:
			s.position.Y--
		}

		s.stepsLeft--
		if s.stepsLeft == 0 {
			s.dir = (s.dir + 1) % 4
			if s.dir == dirLeft || s.dir == dirRight {
				s.steps++
			}
			s.stepsLeft = s.steps
		}

		if s.position.In(image.Rectangle{Max: s.blocks}) {
			return
		}
	}
}

// BlockCount returns the number of blocks in one pass.
func (s *Spiral) BlockCount() int { return s.blockCount }

// Blocks returns the dimensions of the block grid.
func (s *Spiral) Blocks() image.Point { return s.blocks }

// MaxBlockSize returns the edge length of a full block.
func (s *Spiral) MaxBlockSize() int { return s.blockSize }

// Size returns the image size being partitioned.
func (s *Spiral) Size() image.Point { return s.size }

// Offset returns the offset added to every block.
func (s *Spiral) Offset() image.Point { return s.offset }

// RemainingPasses returns the number of passes left, the current one
// included.
func (s *Spiral) RemainingPasses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remainingPasses
}

func (s *Spiral) String() string {
	return fmt.Sprintf("Spiral[size=%v, offset=%v, block_size=%d, blocks=%v]",
		s.size, s.offset, s.blockSize, s.blocks)
}
