package report

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/congestion.report/internal/hotspot"
)

// Default PNG dimensions.
var (
	PlotWidth  = 8 * vg.Inch
	PlotHeight = 8 * vg.Inch
)

// ClusterPlot builds a longitude/latitude scatter with one glyph colour per
// cluster and grey noise.
func ClusterPlot(samples []hotspot.Sample, labels hotspot.ClusterAssignment) (*plot.Plot, error) {
	if len(labels) != len(samples) {
		return nil, fmt.Errorf("got %d labels for %d samples", len(labels), len(samples))
	}

	p := plot.New()
	p.Title.Text = "Congestion hot spots"
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"
	p.Add(plotter.NewGrid())

	for _, g := range groupByLabel(labels) {
		pts := make(plotter.XYs, len(g.members))
		for j, i := range g.members {
			pts[j] = plotter.XY{X: samples[i].Longitude, Y: samples[i].Latitude}
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to build scatter for %s: %w", groupName(g.id), err)
		}
		sc.GlyphStyle.Color = clusterColor(g.id)
		sc.GlyphStyle.Radius = vg.Points(2)
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(sc)
		p.Legend.Add(groupName(g.id), sc)
	}

	return p, nil
}

// WriteClusterPlotPNG renders the cluster plot as PNG.
func WriteClusterPlotPNG(w io.Writer, samples []hotspot.Sample, labels hotspot.ClusterAssignment) error {
	p, err := ClusterPlot(samples, labels)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(PlotWidth, PlotHeight, "png")
	if err != nil {
		return fmt.Errorf("failed to create png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write png: %w", err)
	}
	return nil
}
