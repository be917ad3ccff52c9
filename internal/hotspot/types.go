package hotspot

// Noise is the cluster id assigned to samples not density-reachable from
// any core point.
const Noise = -1

// Sample is a single validated GPS reading. Speed is in km/h.
type Sample struct {
	Row       int     `json:"row"` // source row identity, carried for traceability
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     float64 `json:"speed"`
}

// FeatureVector is the standardized (lat, lon, speed) triple of a Sample.
type FeatureVector [3]float64

// ClusterAssignment maps sample index to cluster id (or Noise). It is always
// the same length as the batch it was computed from.
type ClusterAssignment []int

// ClusterSummary aggregates the members of one non-noise cluster.
// Centroids are flat arithmetic means of coordinates, which is an adequate
// approximation for spatially tight clusters.
type ClusterSummary struct {
	ClusterID   int     `json:"cluster_id"`
	Size        int     `json:"size"`
	CentroidLat float64 `json:"centroid_lat"`
	CentroidLon float64 `json:"centroid_lon"`
	MeanSpeed   float64 `json:"mean_speed"`
}

// Record is the combined per-sample output row handed to exporters.
type Record struct {
	Sample
	MicroStop bool `json:"micro_stop"`
	ClusterID int  `json:"cluster_id"`
}
