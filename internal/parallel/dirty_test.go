package parallel

import (
	"image"
	"sync"
	"testing"
)

// =============================================================================
// DirtyRegion Basic Tests
// =============================================================================

func TestDirtyRegion_Create(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		blockSize     int
		wantX, wantY  int
		wantOK        bool
	}{
		{"exact", 64, 64, 32, 2, 2, true},
		{"partial edge", 318, 322, 32, 10, 11, true},
		{"smaller than block", 15, 12, 32, 1, 1, true},
		{"single pixel blocks", 3, 2, 1, 3, 2, true},
		{"invalid zero width", 0, 10, 32, 0, 0, false},
		{"invalid zero height", 10, 0, 32, 0, 0, false},
		{"invalid negative width", -1, 10, 32, 0, 0, false},
		{"invalid zero block", 10, 10, 0, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dr := NewDirtyRegion(tt.width, tt.height, tt.blockSize)
			gotOK := dr != nil

			if gotOK != tt.wantOK {
				t.Fatalf("NewDirtyRegion(%d, %d, %d) non-nil = %v, want %v",
					tt.width, tt.height, tt.blockSize, gotOK, tt.wantOK)
			}
			if dr == nil {
				return
			}

			if dr.BlocksX() != tt.wantX {
				t.Errorf("BlocksX() = %d, want %d", dr.BlocksX(), tt.wantX)
			}
			if dr.BlocksY() != tt.wantY {
				t.Errorf("BlocksY() = %d, want %d", dr.BlocksY(), tt.wantY)
			}
			if dr.TotalBlocks() != tt.wantX*tt.wantY {
				t.Errorf("TotalBlocks() = %d, want %d", dr.TotalBlocks(), tt.wantX*tt.wantY)
			}
			if dr.BlockSize() != tt.blockSize {
				t.Errorf("BlockSize() = %d, want %d", dr.BlockSize(), tt.blockSize)
			}
			if dr.Count() != 0 {
				t.Error("New DirtyRegion should be clean")
			}
		})
	}
}

func TestDirtyRegion_Mark(t *testing.T) {
	dr := NewDirtyRegion(128, 128, 32)

	if !dr.Mark(1, 2) {
		t.Error("first Mark(1, 2) should report a clean block")
	}
	if dr.Mark(1, 2) {
		t.Error("second Mark(1, 2) should report an already dirty block")
	}

	if !dr.IsDirty(1, 2) {
		t.Error("Mark(1, 2) did not set dirty flag")
	}
	if dr.IsDirty(0, 0) || dr.IsDirty(3, 3) {
		t.Error("unmarked blocks should not be dirty")
	}
	if dr.Count() != 1 {
		t.Errorf("Count() = %d, want 1", dr.Count())
	}
}

func TestDirtyRegion_MarkOutOfBounds(t *testing.T) {
	dr := NewDirtyRegion(128, 128, 32)

	for _, p := range []image.Point{{-1, 0}, {0, -1}, {4, 0}, {0, 4}, {100, 100}} {
		if dr.Mark(p.X, p.Y) {
			t.Errorf("Mark(%d, %d) = true, want false", p.X, p.Y)
		}
	}
	if dr.Count() != 0 {
		t.Error("Out of bounds marks should not set any dirty flags")
	}
}

func TestDirtyRegion_MarkRect(t *testing.T) {
	tests := []struct {
		name      string
		rect      image.Rectangle
		wantCount int
	}{
		{"single block", image.Rect(0, 0, 32, 32), 1},
		{"one pixel", image.Rect(40, 40, 41, 41), 1},
		{"straddling four", image.Rect(31, 31, 33, 33), 4},
		{"full row", image.Rect(0, 0, 128, 1), 4},
		{"everything", image.Rect(0, 0, 128, 128), 16},
		{"clipped", image.Rect(-100, -100, 10, 10), 1},
		{"outside", image.Rect(200, 200, 300, 300), 0},
		{"empty", image.Rect(10, 10, 10, 20), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dr := NewDirtyRegion(128, 128, 32)
			dr.MarkRect(tt.rect)
			if got := dr.Count(); got != tt.wantCount {
				t.Errorf("MarkRect(%v) Count() = %d, want %d", tt.rect, got, tt.wantCount)
			}
		})
	}
}

func TestDirtyRegion_Clear(t *testing.T) {
	dr := NewDirtyRegion(128, 128, 32)
	dr.MarkRect(image.Rect(0, 0, 128, 128))
	dr.Clear()

	if dr.Count() != 0 {
		t.Errorf("Count() after Clear = %d, want 0", dr.Count())
	}
}

func TestDirtyRegion_GetAndClear(t *testing.T) {
	dr := NewDirtyRegion(100, 70, 32)
	dr.Mark(0, 0)
	dr.Mark(3, 2)

	rects := dr.GetAndClear()

	want := []image.Rectangle{
		image.Rect(0, 0, 32, 32),
		image.Rect(96, 64, 128, 96),
	}
	if len(rects) != len(want) {
		t.Fatalf("GetAndClear() returned %d rects, want %d", len(rects), len(want))
	}
	for i := range want {
		if rects[i] != want[i] {
			t.Errorf("rects[%d] = %v, want %v", i, rects[i], want[i])
		}
	}
	if dr.Count() != 0 {
		t.Error("GetAndClear should leave the region clean")
	}
	if len(dr.GetAndClear()) != 0 {
		t.Error("second GetAndClear should return nothing")
	}
}

func TestDirtyRegion_LargeGrid(t *testing.T) {
	// More than one bitmap word.
	dr := NewDirtyRegion(32*20, 32*20, 32)
	for by := range 20 {
		for bx := range 20 {
			dr.Mark(bx, by)
		}
	}
	if dr.Count() != 400 {
		t.Errorf("Count() = %d, want 400", dr.Count())
	}
	if got := len(dr.GetAndClear()); got != 400 {
		t.Errorf("len(GetAndClear()) = %d, want 400", got)
	}
}

// =============================================================================
// Concurrency Tests
// =============================================================================

func TestDirtyRegion_ConcurrentMark(t *testing.T) {
	dr := NewDirtyRegion(32*16, 32*16, 32)

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for by := g * 2; by < g*2+2; by++ {
				for bx := range 16 {
					dr.Mark(bx, by)
				}
			}
		}()
	}
	wg.Wait()

	if dr.Count() != 256 {
		t.Errorf("Count() = %d, want 256", dr.Count())
	}
}

func TestDirtyRegion_ConcurrentGetAndClear(t *testing.T) {
	dr := NewDirtyRegion(32*8, 32*8, 32)

	// Every mark must be collected exactly once across all drains.
	var (
		mu        sync.Mutex
		collected int
		wg        sync.WaitGroup
		done      = make(chan struct{})
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				n := len(dr.GetAndClear())
				mu.Lock()
				collected += n
				mu.Unlock()
			}
		}
	}()

	marked := 0
	for by := range 8 {
		for bx := range 8 {
			if dr.Mark(bx, by) {
				marked++
			}
		}
	}
	close(done)
	wg.Wait()
	collected += len(dr.GetAndClear())

	if collected != marked {
		t.Errorf("collected %d blocks, marked %d", collected, marked)
	}
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkDirtyRegion_Mark(b *testing.B) {
	dr := NewDirtyRegion(1920, 1080, 32)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		dr.Mark(i%dr.BlocksX(), (i/dr.BlocksX())%dr.BlocksY())
	}
}

func BenchmarkDirtyRegion_MarkParallel(b *testing.B) {
	dr := NewDirtyRegion(1920, 1080, 32)

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			dr.Mark(i%dr.BlocksX(), (i/dr.BlocksX())%dr.BlocksY())
			i++
		}
	})
}

func BenchmarkDirtyRegion_GetAndClear(b *testing.B) {
	dr := NewDirtyRegion(1920, 1080, 32)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		dr.Mark(i%dr.BlocksX(), 0)
		_ = dr.GetAndClear()
	}
}
