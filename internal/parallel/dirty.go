package parallel

import (
	"image"
	"math/bits"
	"sync/atomic"
)

// DirtyRegion records which blocks of a film have received new samples since
// the last time a consumer collected them, using an atomic bitmap.
//
// The bitmap uses one bit per block, packed into uint64 words (64 blocks per
// word). Bit index = by * blocksX + bx. All methods are safe for concurrent
// use without external synchronization: render workers Mark blocks as they
// merge them while a progress consumer drains them with GetAndClear.
type DirtyRegion struct {
	words     []atomic.Uint64
	blocksX   int
	blocksY   int
	blockSize int
}

// NewDirtyRegion creates a tracker for a width x height pixel area split
// into square blocks of blockSize pixels. All blocks start clean.
// Returns nil if any dimension is zero or negative.
func NewDirtyRegion(width, height, blockSize int) *DirtyRegion {
	if width <= 0 || height <= 0 || blockSize <= 0 {
		return nil
	}

	blocksX := (width + blockSize - 1) / blockSize
	blocksY := (height + blockSize - 1) / blockSize
	numWords := (blocksX*blocksY + 63) / 64

	return &DirtyRegion{
		words:     make([]atomic.Uint64, numWords),
		blocksX:   blocksX,
		blocksY:   blocksY,
		blockSize: blockSize,
	}
}

// bit returns the word index and bit mask of block (bx, by), or ok=false if
// the block is outside the grid.
func (d *DirtyRegion) bit(bx, by int) (word int, mask uint64, ok bool) {
	if bx < 0 || bx >= d.blocksX || by < 0 || by >= d.blocksY {
		return 0, 0, false
	}
	idx := by*d.blocksX + bx
	return idx / 64, 1 << (idx & 63), true
}

// Mark marks block (bx, by) dirty and reports whether it was clean before.
// Out-of-range blocks are ignored and report false.
func (d *DirtyRegion) Mark(bx, by int) bool {
	w, m, ok := d.bit(bx, by)
	if !ok {
		return false
	}
	return d.words[w].Or(m)&m == 0
}

// MarkRect marks every block intersecting r, given in pixel coordinates
// relative to the tracked area's origin.
func (d *DirtyRegion) MarkRect(r image.Rectangle) {
	r = r.Intersect(image.Rect(0, 0, d.blocksX*d.blockSize, d.blocksY*d.blockSize))
	if r.Empty() {
		return
	}
	bx1 := r.Min.X / d.blockSize
	by1 := r.Min.Y / d.blockSize
	bx2 := (r.Max.X - 1) / d.blockSize
	by2 := (r.Max.Y - 1) / d.blockSize
	for by := by1; by <= by2; by++ {
		for bx := bx1; bx <= bx2; bx++ {
			d.Mark(bx, by)
		}
	}
}

// IsDirty reports whether block (bx, by) is dirty.
func (d *DirtyRegion) IsDirty(bx, by int) bool {
	w, m, ok := d.bit(bx, by)
	return ok && d.words[w].Load()&m != 0
}

// Clear marks every block clean.
func (d *DirtyRegion) Clear() {
	for i := range d.words {
		d.words[i].Store(0)
	}
}

// Count returns the number of dirty blocks.
func (d *DirtyRegion) Count() int {
	count := 0
	for i := range d.words {
		count += bits.OnesCount64(d.words[i].Load())
	}
	return count
}

// GetAndClear atomically collects the pixel rectangles of all dirty blocks
// and marks them clean. Rectangles are clipped to the block grid, not to the
// region's pixel width and height.
func (d *DirtyRegion) GetAndClear() []image.Rectangle {
	var dirty []image.Rectangle
	total := d.blocksX * d.blocksY

	for wordIdx := range d.words {
		word := d.words[wordIdx].Swap(0)
		for word != 0 {
			bitIdx := bits.TrailingZeros64(word)
			word &^= 1 << bitIdx

			idx := wordIdx*64 + bitIdx
			if idx >= total {
				break
			}
			bx, by := idx%d.blocksX, idx/d.blocksX
			min := image.Pt(bx*d.blockSize, by*d.blockSize)
			dirty = append(dirty, image.Rectangle{Min: min, Max: min.Add(image.Pt(d.blockSize, d.blockSize))})
		}
	}
	return dirty
}

// BlocksX returns the number of blocks horizontally.
func (d *DirtyRegion) BlocksX() int { return d.blocksX }

// BlocksY returns the number of blocks vertically.
func (d *DirtyRegion) BlocksY() int { return d.blocksY }

// BlockSize returns the block edge length in pixels.
func (d *DirtyRegion) BlockSize() int { return d.blockSize }

// TotalBlocks returns the number of blocks tracked.
func (d *DirtyRegion) TotalBlocks() int { return d.blocksX * d.blocksY }
