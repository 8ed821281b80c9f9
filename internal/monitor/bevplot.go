package monitor

import (
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/obstacle.report/internal/vision/l2fusion"
)

// RenderBEV writes a bird's-eye-view PNG of the current objects: lateral
// offset on X, forward range on Y, coloured by risk level. The camera sits
// at the origin looking up the Y axis.
func RenderBEV(objects []l2fusion.FusedObject, maxRange float64, w io.Writer) error {
	p := plot.New()
	p.Title.Text = "Bird's-eye view"
	p.X.Label.Text = "lateral (m)"
	p.Y.Label.Text = "forward (m)"
	p.X.Min, p.X.Max = -maxRange/2, maxRange/2
	p.Y.Min, p.Y.Max = 0, maxRange
	p.Add(plotter.NewGrid())

	byLevel := map[l2fusion.RiskLevel]plotter.XYs{}
	for _, obj := range objects {
		byLevel[obj.RiskLevel] = append(byLevel[obj.RiskLevel],
			plotter.XY{X: obj.Position.X, Y: obj.Depth})
	}

	levels := []struct {
		level l2fusion.RiskLevel
		color color.RGBA
	}{
		{l2fusion.RiskSafe, color.RGBA{G: 160, A: 255}},
		{l2fusion.RiskWarning, color.RGBA{R: 230, G: 160, A: 255}},
		{l2fusion.RiskDanger, color.RGBA{R: 220, A: 255}},
	}
	for _, lv := range levels {
		pts := byLevel[lv.level]
		if len(pts) == 0 {
			continue
		}
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		scatter.GlyphStyle.Color = lv.color
		scatter.GlyphStyle.Radius = vg.Points(4)
		scatter.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(scatter)
		p.Legend.Add(string(lv.level), scatter)
	}

	wt, err := p.WriterTo(5*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
