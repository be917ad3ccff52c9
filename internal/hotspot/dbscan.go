package hotspot

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Defaults for clustering configuration, in standardized feature units.
const (
	DefaultDBSCANEps    = 0.5
	DefaultDBSCANMinPts = 5
)

// unvisited marks a label slot not yet reached by the scan.
const unvisited = -2

// DBSCANParams contains parameters for the DBSCAN clustering algorithm.
type DBSCANParams struct {
	Eps    float64 // Neighbourhood radius in standardized feature space
	MinPts int     // Minimum neighbourhood size, including the point itself
}

// DefaultDBSCANParams returns the default DBSCAN parameters.
func DefaultDBSCANParams() DBSCANParams {
	return DBSCANParams{
		Eps:    DefaultDBSCANEps,
		MinPts: DefaultDBSCANMinPts,
	}
}

// Validate checks eps > 0 and minPts >= 1.
func (p DBSCANParams) Validate() error {
	if !(p.Eps > 0) {
		return &ConfigurationError{Field: "eps", Value: p.Eps, Reason: "must be greater than 0"}
	}
	if p.MinPts < 1 {
		return &ConfigurationError{Field: "min_pts", Value: p.MinPts, Reason: "must be at least 1"}
	}
	return nil
}

// DBSCANClusterer assigns standardized feature vectors to density-connected
// clusters. It holds no per-batch state and may be shared between goroutines.
type DBSCANClusterer struct {
	params  DBSCANParams
	workers int
}

// NewDBSCANClusterer creates a clusterer with the given eps and minPts.
func NewDBSCANClusterer(eps float64, minPts int) (*DBSCANClusterer, error) {
	params := DBSCANParams{Eps: eps, MinPts: minPts}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &DBSCANClusterer{params: params, workers: 1}, nil
}

// WithParallelism sets the number of goroutines used to precompute
// neighbourhoods. Values below 1 select runtime.NumCPU(). The resulting
// partition is identical to the sequential one.
func (c *DBSCANClusterer) WithParallelism(workers int) *DBSCANClusterer {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	c.workers = workers
	return c
}

// Params returns the clustering parameters.
func (c *DBSCANClusterer) Params() DBSCANParams {
	return c.params
}

// Cluster labels every vector with a cluster id or Noise. Cluster ids are
// dense, start at 0 and follow the order in which each cluster's first core
// point is met when scanning the batch in input order. The input is not
// modified.
func (c *DBSCANClusterer) Cluster(vectors []FeatureVector) (ClusterAssignment, error) {
	n := len(vectors)
	if n == 0 {
		return nil, &InsufficientDataError{Stage: "cluster", Got: 0, Need: 1}
	}

	labels := make(ClusterAssignment, n)
	for i := range labels {
		labels[i] = unvisited
	}

	index := NewSpatialIndex(c.params.Eps)
	index.Build(vectors)

	neighbours := c.neighbourhoods(index, vectors)

	clusterID := 0
	for i := 0; i < n; i++ {
		if labels[i] != unvisited {
			continue
		}

		seeds := neighbours(i)
		if len(seeds) < c.params.MinPts {
			labels[i] = Noise
			continue
		}

		c.expandCluster(labels, neighbours, i, seeds, clusterID)
		clusterID++
	}

	return labels, nil
}

// expandCluster absorbs everything density-reachable from a core point,
// breadth first. Noise reached here becomes a border point.
func (c *DBSCANClusterer) expandCluster(labels ClusterAssignment, neighbours func(int) []int,
	seedIdx int, seeds []int, clusterID int) {

	labels[seedIdx] = clusterID
	queue := append([]int(nil), seeds...)

	for j := 0; j < len(queue); j++ {
		idx := queue[j]

		if labels[idx] == Noise {
			labels[idx] = clusterID
		}
		if labels[idx] != unvisited {
			continue
		}

		labels[idx] = clusterID
		next := neighbours(idx)
		if len(next) >= c.params.MinPts {
			queue = append(queue, next...)
		}
	}
}

// neighbourhoods returns a lookup of eps-neighbourhoods. With more than one
// worker all neighbourhoods are computed up front, each goroutine filling a
// disjoint range of the result.
func (c *DBSCANClusterer) neighbourhoods(index *SpatialIndex, vectors []FeatureVector) func(int) []int {
	eps := c.params.Eps
	if c.workers <= 1 || len(vectors) < 2*c.workers {
		return func(i int) []int {
			return index.RegionQuery(vectors, i, eps)
		}
	}

	n := len(vectors)
	all := make([][]int, n)
	chunk := (n + c.workers - 1) / c.workers

	var g errgroup.Group
	g.SetLimit(c.workers)
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		g.Go(func() error {
			for i := start; i < end; i++ {
				all[i] = index.RegionQuery(vectors, i, eps)
			}
			return nil
		})
	}
	_ = g.Wait()

	return func(i int) []int {
		return all[i]
	}
}

// Partition groups sample indices by cluster, ignoring numeric ids. Clusters
// are ordered by their smallest member index; noise indices are returned
// separately. Two assignments describe the same clustering exactly when
// their partitions are equal.
func Partition(labels ClusterAssignment) (clusters [][]int, noise []int) {
	byID := make(map[int]int)
	for i, label := range labels {
		if label == Noise {
			noise = append(noise, i)
			continue
		}
		pos, ok := byID[label]
		if !ok {
			pos = len(clusters)
			byID[label] = pos
			clusters = append(clusters, nil)
		}
		clusters[pos] = append(clusters[pos], i)
	}
	return clusters, noise
}
