package main

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"

	"github.com/Acontardi-014/mitsuba2/internal/snapshot"
	"github.com/Acontardi-014/mitsuba2/rfilter"
)

// toRGBA64 quantizes a developed film with the channel layout of this
// command into a 16-bit image. Values are clamped to [0, 1].
func toRGBA64(data []float64, w, h, c int) *image.RGBA64 {
	img := image.NewRGBA64(image.Rect(0, 0, w, h))
	q := func(v float64) uint16 {
		if !(v > 0) {
			return 0
		}
		return uint16(math.Round(math.Min(v, 1) * 0xFFFF))
	}
	for y := range h {
		for x := range w {
			px := data[(y*w+x)*c:][:c]
			a := q(px[alphaChannel])
			// RGBA64 is premultiplied.
			img.SetRGBA64(x, y, color.RGBA64{
				R: min(q(px[0]*px[alphaChannel]), a),
				G: min(q(px[1]*px[alphaChannel]), a),
				B: min(q(px[2]*px[alphaChannel]), a),
				A: a,
			})
		}
	}
	return img
}

func writeTIFF(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w := bufio.NewWriter(f)
	if err := tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true}); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return w.Flush()
}

func writeSnapshot(path string, data []float64, w, h, c int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriter(f)
	s := &snapshot.Snapshot{Width: w, Height: h, Channels: c, Data: data}
	if err := snapshot.Encode(bw, s); err != nil {
		return err
	}
	return bw.Flush()
}

// downsample resizes a channel-interleaved image by factor with separable
// passes of filter. Negative lobes are clamped to zero.
func downsample(data []float64, w, h, c, factor int, filter rfilter.Filter) ([]float64, int, int, error) {
	pw, ph := max(1, w/factor), max(1, h/factor)

	rx, err := rfilter.NewResampler(filter, w, pw)
	if err != nil {
		return nil, 0, 0, err
	}
	ry, err := rfilter.NewResampler(filter, h, ph)
	if err != nil {
		return nil, 0, 0, err
	}
	rx.SetClamp(0, math.Inf(1))
	ry.SetClamp(0, math.Inf(1))

	tmp := make([]float64, pw*h*c)
	for y := range h {
		if err := rx.Resample(data[y*w*c:(y+1)*w*c], c, tmp[y*pw*c:(y+1)*pw*c], c, c); err != nil {
			return nil, 0, 0, err
		}
	}
	out := make([]float64, pw*ph*c)
	for x := range pw {
		if err := ry.Resample(tmp[x*c:], pw*c, out[x*c:], pw*c, c); err != nil {
			return nil, 0, 0, err
		}
	}
	return out, pw, ph, nil
}

// previewPath derives the preview file name from the output path.
func previewPath(output string) string {
	ext := filepath.Ext(output)
	return strings.TrimSuffix(output, ext) + ".preview" + ext
}
