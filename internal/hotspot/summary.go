package hotspot

import (
	"fmt"
	"sort"
)

type clusterAccumulator struct {
	size                   int
	sumLat, sumLon, sumSpd float64
}

// Summarize aggregates each non-noise cluster into size, centroid and mean
// speed. The result is sorted by size descending, then cluster id ascending.
// Noise samples never appear in the output.
func Summarize(samples []Sample, labels ClusterAssignment) ([]ClusterSummary, error) {
	if len(samples) != len(labels) {
		return nil, fmt.Errorf("summarize: %d samples but %d assignments", len(samples), len(labels))
	}

	acc := make(map[int]*clusterAccumulator)
	for i, label := range labels {
		if label == Noise {
			continue
		}
		a, ok := acc[label]
		if !ok {
			a = &clusterAccumulator{}
			acc[label] = a
		}
		s := samples[i]
		a.size++
		a.sumLat += s.Latitude
		a.sumLon += s.Longitude
		a.sumSpd += s.Speed
	}

	summaries := make([]ClusterSummary, 0, len(acc))
	for id, a := range acc {
		n := float64(a.size)
		summaries = append(summaries, ClusterSummary{
			ClusterID:   id,
			Size:        a.size,
			CentroidLat: a.sumLat / n,
			CentroidLon: a.sumLon / n,
			MeanSpeed:   a.sumSpd / n,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Size != summaries[j].Size {
			return summaries[i].Size > summaries[j].Size
		}
		return summaries[i].ClusterID < summaries[j].ClusterID
	})

	return summaries, nil
}

// NoiseCount returns how many samples are labelled Noise.
func NoiseCount(labels ClusterAssignment) int {
	count := 0
	for _, label := range labels {
		if label == Noise {
			count++
		}
	}
	return count
}
