package main

import (
	"math"
	"math/rand/v2"

	"github.com/Acontardi-014/mitsuba2/render"
	"seehuhn.de/go/geom/vec"
)

// Film channel layout: RGB, alpha, weight.
const (
	channels      = 5
	alphaChannel  = 3
	weightChannel = 4
)

// shader returns the RGB color of a test pattern at film position p of a
// film of the given size.
type shader func(p, size vec.Vec2) (r, g, b float64)

var patterns = map[string]shader{
	"zoneplate": zonePlate,
	"checker":   checker,
	"gradient":  gradient,
}

// zonePlate is a radial chirp. Its frequency grows with the distance from
// the center, which exposes aliasing of the reconstruction filter.
func zonePlate(p, size vec.Vec2) (r, g, b float64) {
	d := p.Sub(size.Mul(0.5))
	k := math.Pi / size.X
	v := 0.5 + 0.5*math.Cos(k*d.Dot(d))
	return v, v, v
}

func checker(p, _ vec.Vec2) (r, g, b float64) {
	const cell = 16
	if (int(math.Floor(p.X/cell))+int(math.Floor(p.Y/cell)))%2 == 0 {
		return 0.9, 0.9, 0.9
	}
	return 0.1, 0.1, 0.1
}

func gradient(p, size vec.Vec2) (r, g, b float64) {
	return p.X / size.X, p.Y / size.Y, 0.5
}

// patternIntegrator evaluates a shader and appends alpha and weight.
type patternIntegrator struct {
	shade shader
	size  vec.Vec2
}

func newPatternIntegrator(name string, width, height int) render.Integrator {
	return &patternIntegrator{
		shade: patterns[name],
		size:  vec.Vec2{X: float64(width), Y: float64(height)},
	}
}

func (in *patternIntegrator) Eval(p vec.Vec2, _ *rand.Rand, dst []float64) {
	dst[0], dst[1], dst[2] = in.shade(p, in.size)
	dst[alphaChannel] = 1
	dst[weightChannel] = 1
}
