// Package report renders hot spot results for people: HTML scatter maps and
// charts via go-echarts, and static PNG plots via gonum/plot. Colours and
// display strings live here only; the core emits ids and flags.
package report

import (
	"fmt"
	"image/color"
	"sort"

	"github.com/banshee-data/congestion.report/internal/hotspot"
)

// tab10 is the categorical palette used for clusters.
var tab10 = []color.RGBA{
	{0x1f, 0x77, 0xb4, 0xff},
	{0xff, 0x7f, 0x0e, 0xff},
	{0x2c, 0xa0, 0x2c, 0xff},
	{0xd6, 0x27, 0x28, 0xff},
	{0x94, 0x67, 0xbd, 0xff},
	{0x8c, 0x56, 0x4b, 0xff},
	{0xe3, 0x77, 0xc2, 0xff},
	{0x7f, 0x7f, 0x7f, 0xff},
	{0xbc, 0xbd, 0x22, 0xff},
	{0x17, 0xbe, 0xcf, 0xff},
}

var (
	noiseColor     = color.RGBA{0xa0, 0xa0, 0xa0, 0xff}
	microStopColor = color.RGBA{0xd6, 0x27, 0x28, 0xff}
	movingColor    = color.RGBA{0x2c, 0xa0, 0x2c, 0xff}
)

// clusterColor returns the palette colour for a cluster id, grey for noise.
func clusterColor(id int) color.RGBA {
	if id == hotspot.Noise {
		return noiseColor
	}
	return tab10[id%len(tab10)]
}

func hexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// group is the set of sample indices sharing one label.
type group struct {
	id      int
	members []int
}

// groupByLabel splits indices by cluster id. Clusters come first in id
// order, noise last.
func groupByLabel(labels hotspot.ClusterAssignment) []group {
	byID := make(map[int][]int)
	for i, label := range labels {
		byID[label] = append(byID[label], i)
	}
	ids := make([]int, 0, len(byID))
	for id := range byID {
		if id != hotspot.Noise {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	if _, ok := byID[hotspot.Noise]; ok {
		ids = append(ids, hotspot.Noise)
	}

	groups := make([]group, len(ids))
	for i, id := range ids {
		groups[i] = group{id: id, members: byID[id]}
	}
	return groups
}

func groupName(id int) string {
	if id == hotspot.Noise {
		return "noise"
	}
	return fmt.Sprintf("cluster %d", id)
}

// bounds returns the lon/lat extent of the samples with a small margin.
func bounds(samples []hotspot.Sample) (minLon, maxLon, minLat, maxLat float64) {
	if len(samples) == 0 {
		return -180, 180, -90, 90
	}
	minLon, maxLon = samples[0].Longitude, samples[0].Longitude
	minLat, maxLat = samples[0].Latitude, samples[0].Latitude
	for _, s := range samples[1:] {
		minLon = min(minLon, s.Longitude)
		maxLon = max(maxLon, s.Longitude)
		minLat = min(minLat, s.Latitude)
		maxLat = max(maxLat, s.Latitude)
	}
	padLon := max((maxLon-minLon)*0.05, 0.001)
	padLat := max((maxLat-minLat)*0.05, 0.001)
	return minLon - padLon, maxLon + padLon, minLat - padLat, maxLat + padLat
}
