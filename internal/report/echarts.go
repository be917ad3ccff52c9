package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/congestion.report/internal/hotspot"
)

// EchartsAssetsHost is where rendered pages load the echarts script from.
var EchartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

func newMapScatter(title, subtitle string, samples []hotspot.Sample) *charts.Scatter {
	minLon, maxLon, minLat, maxLat := bounds(samples)
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "720px", AssetsHost: EchartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10"}),
		charts.WithXAxisOpts(opts.XAxis{Min: minLon, Max: maxLon, Name: "Longitude", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: minLat, Max: maxLat, Name: "Latitude", NameLocation: "middle", NameGap: 40}),
	)
	return scatter
}

func scatterPoints(samples []hotspot.Sample, members []int, label func(i int) string) []opts.ScatterData {
	data := make([]opts.ScatterData, 0, len(members))
	for _, i := range members {
		s := samples[i]
		data = append(data, opts.ScatterData{
			Name:  label(i),
			Value: []interface{}{s.Longitude, s.Latitude, s.Speed},
		})
	}
	return data
}

// MicroStopChart builds a scatter of samples split into micro-stops and
// moving samples.
func MicroStopChart(samples []hotspot.Sample, flags []bool) (*charts.Scatter, error) {
	if len(flags) != len(samples) {
		return nil, fmt.Errorf("got %d flags for %d samples", len(flags), len(samples))
	}
	var stopped, moving []int
	for i, f := range flags {
		if f {
			stopped = append(stopped, i)
		} else {
			moving = append(moving, i)
		}
	}
	label := func(i int) string {
		return "speed " + strconv.FormatFloat(samples[i].Speed, 'f', 1, 64) + " km/h"
	}

	scatter := newMapScatter("Micro-stops", fmt.Sprintf("%d of %d samples below threshold", len(stopped), len(samples)), samples)
	scatter.AddSeries("micro-stop", scatterPoints(samples, stopped, label),
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: hexColor(microStopColor)}))
	scatter.AddSeries("moving", scatterPoints(samples, moving, label),
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: hexColor(movingColor)}))
	return scatter, nil
}

// ClusterChart builds a scatter with one series per cluster and a grey
// noise series.
func ClusterChart(samples []hotspot.Sample, labels hotspot.ClusterAssignment) (*charts.Scatter, error) {
	if len(labels) != len(samples) {
		return nil, fmt.Errorf("got %d labels for %d samples", len(labels), len(samples))
	}
	groups := groupByLabel(labels)
	clusters := 0
	for _, g := range groups {
		if g.id != hotspot.Noise {
			clusters++
		}
	}

	scatter := newMapScatter("Congestion hot spots", fmt.Sprintf("clusters=%d samples=%d", clusters, len(samples)), samples)
	for _, g := range groups {
		id := g.id
		label := func(i int) string {
			return fmt.Sprintf("cluster %d | speed %.1f km/h", id, samples[i].Speed)
		}
		scatter.AddSeries(groupName(id), scatterPoints(samples, g.members, label),
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: hexColor(clusterColor(id))}))
	}
	return scatter, nil
}

// SummaryChart is a bar chart of cluster sizes in summary order.
func SummaryChart(summaries []hotspot.ClusterSummary) *charts.Bar {
	names := make([]string, len(summaries))
	sizes := make([]opts.BarData, len(summaries))
	speeds := make([]opts.BarData, len(summaries))
	for i, s := range summaries {
		names[i] = groupName(s.ClusterID)
		sizes[i] = opts.BarData{Value: s.Size}
		speeds[i] = opts.BarData{Value: strconv.FormatFloat(s.MeanSpeed, 'f', 1, 64)}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "480px", AssetsHost: EchartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Cluster summary", Subtitle: "points and mean speed (km/h)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(names).
		AddSeries("points", sizes).
		AddSeries("mean speed", speeds)
	return bar
}

// WriteMicroStopMap renders the micro-stop scatter as a standalone HTML page.
func WriteMicroStopMap(w io.Writer, samples []hotspot.Sample, flags []bool) error {
	scatter, err := MicroStopChart(samples, flags)
	if err != nil {
		return err
	}
	return scatter.Render(w)
}

// WriteClusterMap renders the cluster scatter as a standalone HTML page.
func WriteClusterMap(w io.Writer, samples []hotspot.Sample, labels hotspot.ClusterAssignment) error {
	scatter, err := ClusterChart(samples, labels)
	if err != nil {
		return err
	}
	return scatter.Render(w)
}

// WriteSummaryPage renders micro-stops, clusters and the summary bar chart
// on one page.
func WriteSummaryPage(w io.Writer, samples []hotspot.Sample, res *hotspot.Result) error {
	stops, err := MicroStopChart(samples, res.MicroStops)
	if err != nil {
		return err
	}
	clusters, err := ClusterChart(samples, res.Labels)
	if err != nil {
		return err
	}

	page := components.NewPage()
	page.SetAssetsHost(EchartsAssetsHost)
	page.AddCharts(stops, clusters, SummaryChart(res.Summaries))
	return page.Render(w)
}
