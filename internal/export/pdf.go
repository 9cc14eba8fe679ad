package export

import (
	"fmt"
	"io"

	"SharedSketch/internal/state"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageW  = 210.0
	pageH  = 297.0
	margin = 15.0
)

func newPDF(sk Sketch) *gofpdf.Fpdf {
	p := gofpdf.New("P", "mm", "A4", "")
	p.SetTitle("SharedSketch", true)
	p.AddPage()
	if sk.Empty() {
		return p
	}
	f := fit(sk, pageW, pageH, margin)
	for _, s := range sk.Shapes {
		r, g, b := rgb255(s.Color)
		p.SetFillColor(r, g, b)
		p.SetAlpha(float64(s.Color.A), "Normal")
		pts := make([]gofpdf.PointType, 3)
		for i := 0; i+2 < len(s.Triangles); i += 3 {
			for j := range pts {
				pts[j].X, pts[j].Y = f.point(s.Triangles[i+j])
			}
			p.Polygon(pts, "F")
		}
	}
	p.SetAlpha(1, "Normal")
	return p
}

// WritePDF renders sk onto one A4 page.
func WritePDF(w io.Writer, sk Sketch) error {
	if err := newPDF(sk).Output(w); err != nil {
		return fmt.Errorf("export: pdf: %w", err)
	}
	return nil
}

// SavePDF writes sk to path.
func SavePDF(path string, sk Sketch) error {
	if err := newPDF(sk).OutputFileAndClose(path); err != nil {
		return fmt.Errorf("export: pdf %s: %w", path, err)
	}
	return nil
}

func rgb255(c state.Color) (r, g, b int) {
	to := func(f float32) int {
		switch {
		case f <= 0 || f != f:
			return 0
		case f >= 1:
			return 255
		}
		return int(f*255 + 0.5)
	}
	return to(c.R), to(c.G), to(c.B)
}
