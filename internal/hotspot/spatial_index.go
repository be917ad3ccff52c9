package hotspot

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// maxGridCoord bounds cell coordinates; beyond it the grid degenerates and
// neighbourhood queries fall back to a linear scan.
const maxGridCoord = 1 << 40

// estimatedPointsPerCell is used for initial spatial index capacity.
const estimatedPointsPerCell = 4

type cellKey struct {
	X, Y, Z int64
}

// SpatialIndex provides eps-neighbourhood queries over feature vectors using
// a regular 3D grid. Cell size should match the DBSCAN eps parameter so a
// query only has to inspect the 27 cells around the query point.
type SpatialIndex struct {
	CellSize float64
	Grid     map[cellKey][]int // cell → point indices, ascending
	linear   bool
	n        int
}

// NewSpatialIndex creates a spatial index with the specified cell size.
func NewSpatialIndex(cellSize float64) *SpatialIndex {
	return &SpatialIndex{
		CellSize: cellSize,
		Grid:     make(map[cellKey][]int),
	}
}

// Build populates the index from a set of feature vectors.
func (si *SpatialIndex) Build(vectors []FeatureVector) {
	si.n = len(vectors)
	si.linear = false
	si.Grid = make(map[cellKey][]int, len(vectors)/estimatedPointsPerCell+1)

	for _, v := range vectors {
		for _, x := range v {
			if math.Abs(x/si.CellSize) > maxGridCoord {
				si.linear = true
				si.Grid = nil
				return
			}
		}
	}

	for i, v := range vectors {
		key := si.cellOf(v)
		si.Grid[key] = append(si.Grid[key], i)
	}
}

func (si *SpatialIndex) cellOf(v FeatureVector) cellKey {
	return cellKey{
		X: int64(math.Floor(v[0] / si.CellSize)),
		Y: int64(math.Floor(v[1] / si.CellSize)),
		Z: int64(math.Floor(v[2] / si.CellSize)),
	}
}

// RegionQuery returns the indices of all vectors within eps (Euclidean,
// inclusive) of vectors[idx], including idx itself.
func (si *SpatialIndex) RegionQuery(vectors []FeatureVector, idx int, eps float64) []int {
	if si.linear {
		return linearRegionQuery(vectors, idx, eps)
	}

	p := vectors[idx]
	eps2 := eps * eps
	base := si.cellOf(p)
	neighbors := []int{}

	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for dz := int64(-1); dz <= 1; dz++ {
				key := cellKey{X: base.X + dx, Y: base.Y + dy, Z: base.Z + dz}
				for _, candidateIdx := range si.Grid[key] {
					if squaredDistance(vectors[candidateIdx], p) <= eps2 {
						neighbors = append(neighbors, candidateIdx)
					}
				}
			}
		}
	}

	return neighbors
}

func linearRegionQuery(vectors []FeatureVector, idx int, eps float64) []int {
	p := vectors[idx]
	neighbors := []int{}
	for i := range vectors {
		if floats.Distance(vectors[i][:], p[:], 2) <= eps {
			neighbors = append(neighbors, i)
		}
	}
	return neighbors
}

func squaredDistance(a, b FeatureVector) float64 {
	var sum float64
	for d := range a {
		diff := a[d] - b[d]
		sum += diff * diff
	}
	return sum
}
