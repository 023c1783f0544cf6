// Copyright 2026 The mitsuba2 Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"github.com/Acontardi-014/mitsuba2/rfilter"
	"seehuhn.de/go/geom/vec"
)

// constant writes v followed by a unit weight.
func constant(v float64) Integrator {
	return IntegratorFunc(func(_ vec.Vec2, _ *rand.Rand, dst []float64) {
		dst[0], dst[1] = v, 1
	})
}

// noisy depends on position and random state, so it exercises the
// per-block generators.
var noisy = IntegratorFunc(func(p vec.Vec2, rng *rand.Rand, dst []float64) {
	dst[0] = p.X*0.01 + rng.Float64()
	dst[1] = 1
})

func mustRender(t *testing.T, film Target, f rfilter.Discretized, in Integrator, opts ...RenderOption) Stats {
	t.Helper()
	stats, err := Render(context.Background(), film, f, in, opts...)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	return stats
}

// =============================================================================
// Argument Tests
// =============================================================================

func TestRender_Errors(t *testing.T) {
	film := mustFilm(t, image.Pt(16, 16), image.Pt(16, 16), image.Point{}, 2)
	table := gaussianTable(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		film       Target
		filter     rfilter.Discretized
		integrator Integrator
		opts       []RenderOption
		want       error
	}{
		{"nil film", nil, table, constant(1), nil, ErrNilFilm},
		{"nil filter", film, nil, constant(1), nil, ErrNilFilter},
		{"nil integrator", film, table, nil, nil, ErrNilIntegrator},
		{"zero block size", film, table, constant(1), []RenderOption{WithBlockSize(0)}, ErrInvalidBlockSize},
		{"zero passes", film, table, constant(1), []RenderOption{WithPasses(0)}, ErrInvalidPasses},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Render(ctx, tt.film, tt.filter, tt.integrator, tt.opts...)
			if !errors.Is(err, tt.want) {
				t.Errorf("Render() error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := Render(ctx, film, table, constant(1), WithSamplesPerPixel(0)); err == nil {
		t.Error("Render(spp=0) error = nil, want error")
	}
}

// =============================================================================
// Accumulation Tests
// =============================================================================

func TestRender_ConstantDevelops(t *testing.T) {
	tests := []struct {
		name string
		opts []RenderOption
	}{
		{"scalar", nil},
		{"vectorized", []RenderOption{WithVectorize(true)}},
		{"small blocks", []RenderOption{WithBlockSize(7), WithWorkers(3)}},
		{"multi pass", []RenderOption{WithPasses(3), WithWorkers(4)}},
		{"normalized", []RenderOption{WithBlockOptions(WithNormalize(true))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			film := mustFilm(t, image.Pt(70, 45), image.Pt(70, 45), image.Point{}, 2)
			opts := append([]RenderOption{WithSamplesPerPixel(4)}, tt.opts...)
			mustRender(t, film, gaussianTable(t), constant(0.25), opts...)

			dev := film.Develop(1)
			for i := 0; i < len(dev); i += 2 {
				if math.Abs(dev[i]-0.25) > 1e-12 {
					t.Fatalf("pixel %d = %v, want 0.25", i/2, dev[i])
				}
			}
		})
	}
}

func TestRender_Stats(t *testing.T) {
	film := mustFilm(t, image.Pt(100, 80), image.Pt(65, 40), image.Pt(20, 30), 2)

	stats := mustRender(t, film, gaussianTable(t), constant(1),
		WithSamplesPerPixel(3), WithPasses(2), WithWorkers(2))

	// ceil(65/32) * ceil(40/32) blocks per pass.
	if stats.Blocks != 3*2*2 {
		t.Errorf("Blocks = %d, want 12", stats.Blocks)
	}
	if stats.Samples != 65*40*3*2 {
		t.Errorf("Samples = %d, want %d", stats.Samples, 65*40*3*2)
	}
	if stats.Passes != 2 {
		t.Errorf("Passes = %d, want 2", stats.Passes)
	}
	if stats.Rejected != 0 {
		t.Errorf("Rejected = %d, want 0", stats.Rejected)
	}
	if !strings.HasPrefix(stats.String(), "Stats[blocks=12,") {
		t.Errorf("String() = %q", stats.String())
	}
}

func TestRender_ZeroArea(t *testing.T) {
	film := mustFilm(t, image.Pt(10, 10), image.Pt(0, 10), image.Point{}, 2)
	stats := mustRender(t, film, gaussianTable(t), constant(1), WithPasses(2))
	if stats.Blocks != 0 || stats.Samples != 0 {
		t.Errorf("stats = %v, want no blocks", stats)
	}
}

func TestRender_Rejected(t *testing.T) {
	// Samples left of x = 10 carry NaN.
	in := IntegratorFunc(func(p vec.Vec2, _ *rand.Rand, dst []float64) {
		dst[0], dst[1] = 1, 1
		if p.X < 10 {
			dst[0] = math.NaN()
		}
	})

	for _, vectorize := range []bool{false, true} {
		film := mustFilm(t, image.Pt(40, 20), image.Pt(40, 20), image.Point{}, 2)
		stats := mustRender(t, film, gaussianTable(t), in,
			WithSamplesPerPixel(2), WithVectorize(vectorize))

		if want := int64(10 * 20 * 2); stats.Rejected != want {
			t.Errorf("vectorize=%v: Rejected = %d, want %d", vectorize, stats.Rejected, want)
		}
		for _, v := range film.Data() {
			if math.IsNaN(v) {
				t.Fatalf("vectorize=%v: NaN reached the film", vectorize)
			}
		}
	}
}

// =============================================================================
// Determinism Tests
// =============================================================================

func TestRender_WorkerCountIndependent(t *testing.T) {
	var ref []float64
	for _, workers := range []int{1, 2, 5} {
		film := mustFilm(t, image.Pt(90, 70), image.Pt(90, 70), image.Point{}, 2)
		mustRender(t, film, gaussianTable(t), noisy,
			WithSamplesPerPixel(2), WithWorkers(workers), WithBlockSize(16), WithSeed(7))

		if ref == nil {
			ref = film.Develop(-1)
			continue
		}
		for i, v := range film.Data() {
			if v != ref[i] {
				t.Fatalf("workers=%d: Data()[%d] = %v, want %v", workers, i, v, ref[i])
			}
		}
	}
}

func TestRender_SeedChangesResult(t *testing.T) {
	a := mustFilm(t, image.Pt(20, 20), image.Pt(20, 20), image.Point{}, 2)
	b := mustFilm(t, image.Pt(20, 20), image.Pt(20, 20), image.Point{}, 2)
	mustRender(t, a, gaussianTable(t), noisy, WithSeed(1))
	mustRender(t, b, gaussianTable(t), noisy, WithSeed(2))

	if bufferDiff(a.Data(), b.Data()) == 0 {
		t.Error("different seeds produced identical films")
	}
}

func TestRender_VectorizedMatchesScalar(t *testing.T) {
	for _, name := range []string{"box", "tent", "gaussian", "mitchell"} {
		t.Run(name, func(t *testing.T) {
			f, err := rfilter.ByName(name)
			if err != nil {
				t.Fatalf("ByName(%q) error = %v", name, err)
			}
			table := mustTable(t, f)

			scalar := mustFilm(t, image.Pt(50, 37), image.Pt(50, 37), image.Point{}, 2)
			batched := mustFilm(t, image.Pt(50, 37), image.Pt(50, 37), image.Point{}, 2)
			opts := []RenderOption{WithSamplesPerPixel(3), WithBlockSize(16), WithSeed(3)}

			mustRender(t, scalar, table, noisy, opts...)
			mustRender(t, batched, table, noisy, append(opts, WithVectorize(true))...)

			if d := bufferDiff(scalar.Data(), batched.Data()); d > 1e-9 {
				t.Errorf("max difference = %g, want <= 1e-9", d)
			}
		})
	}
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestRender_Progress(t *testing.T) {
	film := mustFilm(t, image.Pt(100, 100), image.Pt(100, 100), image.Point{}, 2)

	var calls []Progress
	stats := mustRender(t, film, gaussianTable(t), constant(1),
		WithPasses(2), WithWorkers(4),
		WithProgress(func(p Progress) { calls = append(calls, p) }))

	if len(calls) != stats.Blocks || len(calls) != 4*4*2 {
		t.Fatalf("progress calls = %d, want %d", len(calls), 4*4*2)
	}
	maxFraction := 0.0
	for i, p := range calls {
		if p.BlocksTotal != 32 {
			t.Errorf("call %d BlocksTotal = %d, want 32", i, p.BlocksTotal)
		}
		if p.Block.Empty() {
			t.Errorf("call %d reported an empty block", i)
		}
		maxFraction = math.Max(maxFraction, p.Fraction())
	}
	// Workers may report out of order, but one call sees the last block.
	if maxFraction != 1 {
		t.Errorf("max Fraction() = %v, want 1", maxFraction)
	}
	if f := (Progress{}).Fraction(); f != 1 {
		t.Errorf("empty Fraction() = %v, want 1", f)
	}
}

func TestRender_Canceled(t *testing.T) {
	film := mustFilm(t, image.Pt(64, 64), image.Pt(64, 64), image.Point{}, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := Render(ctx, film, gaussianTable(t), constant(1))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Render() error = %v, want context.Canceled", err)
	}
	if stats.Blocks != 0 {
		t.Errorf("Blocks = %d, want 0", stats.Blocks)
	}
}

func TestRender_CanceledMidway(t *testing.T) {
	film := mustFilm(t, image.Pt(128, 128), image.Pt(128, 128), image.Point{}, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stats, err := Render(ctx, film, gaussianTable(t), constant(1),
		WithWorkers(1),
		WithProgress(func(p Progress) {
			if p.BlocksDone == 3 {
				cancel()
			}
		}))

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Render() error = %v, want context.Canceled", err)
	}
	if stats.Blocks != 3 {
		t.Errorf("Blocks = %d, want 3", stats.Blocks)
	}
}

func TestRender_Timeout(t *testing.T) {
	film := mustFilm(t, image.Pt(256, 256), image.Pt(256, 256), image.Point{}, 2)

	stats, err := Render(context.Background(), film, gaussianTable(t), constant(1),
		WithBlockSize(16), WithWorkers(2), WithTimeout(1))

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Render() error = %v, want context.DeadlineExceeded", err)
	}
	if stats.Blocks >= 256 {
		t.Errorf("Blocks = %d, want fewer than 256", stats.Blocks)
	}
}

// lockedBuffer is an io.Writer safe for concurrent use.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRender_Logging(t *testing.T) {
	var out lockedBuffer
	SetLogger(slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { SetLogger(nil) })

	in := IntegratorFunc(func(p vec.Vec2, _ *rand.Rand, dst []float64) {
		dst[0], dst[1] = -1, 1
	})
	film := mustFilm(t, image.Pt(4, 4), image.Pt(4, 4), image.Point{}, 2)
	mustRender(t, film, gaussianTable(t), in)

	log := out.String()
	for _, want := range []string{
		"render: started",
		"render: block merged",
		"render: invalid sample value",
		"render: finished",
	} {
		if !strings.Contains(log, want) {
			t.Errorf("log does not contain %q", want)
		}
	}
}

func TestSetLogger_Nil(t *testing.T) {
	SetLogger(nil)
	if Logger() == nil {
		t.Fatal("Logger() = nil after SetLogger(nil)")
	}
	if Logger().Enabled(context.Background(), slog.LevelError) {
		t.Error("default logger is enabled, want silent")
	}
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkRender(b *testing.B) {
	table := gaussianTable(b)
	film, _ := NewFullFilm(image.Pt(128, 128), 2)

	for _, vectorize := range []bool{false, true} {
		name := "scalar"
		if vectorize {
			name = "vectorized"
		}
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, _ = Render(context.Background(), film, table, noisy, WithVectorize(vectorize))
			}
		})
	}
}
