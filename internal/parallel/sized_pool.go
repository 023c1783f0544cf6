package parallel

import "sync"

// SizedPool reuses values whose allocation depends on a 2-D size, such as
// per-worker image blocks. Values of different sizes live in separate
// sync.Pools so a Get never returns a value allocated for another size.
//
// Thread safety: SizedPool is safe for concurrent use.
type SizedPool[T any] struct {
	// pools holds one *sync.Pool per size. Key format: (width << 16) | height
	pools sync.Map

	alloc func(width, height int) T
	reset func(T)
}

// NewSizedPool creates a pool. alloc builds a fresh value for a size; reset,
// if non-nil, is applied to every value returned by Get.
func NewSizedPool[T any](alloc func(width, height int) T, reset func(T)) *SizedPool[T] {
	return &SizedPool[T]{alloc: alloc, reset: reset}
}

// Get retrieves a value of the given size, allocating one if none is cached.
// ok is false if the size is not positive.
func (p *SizedPool[T]) Get(width, height int) (v T, ok bool) {
	if width <= 0 || height <= 0 {
		return v, false
	}
	v = p.pool(width, height).Get().(T)
	if p.reset != nil {
		p.reset(v)
	}
	return v, true
}

// Put returns a value of the given size to the pool.
// Values of sizes that were never requested are dropped.
func (p *SizedPool[T]) Put(width, height int, v T) {
	if width <= 0 || height <= 0 {
		return
	}
	if pool, ok := p.pools.Load(poolKey(width, height)); ok {
		pool.(*sync.Pool).Put(v)
	}
}

func (p *SizedPool[T]) pool(width, height int) *sync.Pool {
	key := poolKey(width, height)
	if pool, ok := p.pools.Load(key); ok {
		return pool.(*sync.Pool)
	}
	newPool := &sync.Pool{
		New: func() any { return p.alloc(width, height) },
	}
	actual, _ := p.pools.LoadOrStore(key, newPool)
	return actual.(*sync.Pool)
}

// poolKey creates a unique key for a size.
// Width and height are clamped to 16-bit values to prevent overflow.
func poolKey(width, height int) uint32 {
	w := min(width, 0xFFFF)
	h := min(height, 0xFFFF)
	return uint32(w)<<16 | uint32(h) //nolint:gosec // values are clamped above
}
