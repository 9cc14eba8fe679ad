package export

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"

	"golang.org/x/image/vector"
)

// Render rasterises sk onto a white w by h image.
func Render(sk Sketch, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if sk.Empty() {
		return img
	}
	f := fit(sk, float64(w), float64(h), float64(min(w, h))/20)
	r := vector.NewRasterizer(w, h)
	for _, s := range sk.Shapes {
		src := image.NewUniform(s.Color)
		r.Reset(w, h)
		for i := 0; i+2 < len(s.Triangles); i += 3 {
			var xs, ys [3]float32
			for j := range 3 {
				x, y := f.point(s.Triangles[i+j])
				xs[j], ys[j] = float32(x), float32(y)
			}
			// Coverage is signed; wind every triangle the same way so
			// overlapping segments do not cancel out.
			if (xs[1]-xs[0])*(ys[2]-ys[0])-(ys[1]-ys[0])*(xs[2]-xs[0]) < 0 {
				xs[1], xs[2] = xs[2], xs[1]
				ys[1], ys[2] = ys[2], ys[1]
			}
			r.MoveTo(xs[0], ys[0])
			r.LineTo(xs[1], ys[1])
			r.LineTo(xs[2], ys[2])
			r.ClosePath()
		}
		r.Draw(img, img.Bounds(), src, image.Point{})
	}
	return img
}

// WritePNG encodes a w by h rendering of sk.
func WritePNG(out io.Writer, sk Sketch, w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("export: png size %dx%d", w, h)
	}
	if err := png.Encode(out, Render(sk, w, h)); err != nil {
		return fmt.Errorf("export: png: %w", err)
	}
	return nil
}

// SavePNG writes a w by h rendering of sk to path.
func SavePNG(path string, sk Sketch, w, h int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: png %s: %w", path, err)
	}
	if err := WritePNG(f, sk, w, h); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
