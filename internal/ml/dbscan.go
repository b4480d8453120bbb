package ml

import (
	"context"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// pixelPoint is a table row that remembers its index once the tree reorders it.
type pixelPoint struct {
	index  int
	coords []float64
}

func (p pixelPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.coords[d] - c.(pixelPoint).coords[d]
}

func (p pixelPoint) Dims() int { return len(p.coords) }

func (p pixelPoint) Distance(c kdtree.Comparable) float64 {
	return sqDist(p.coords, c.(pixelPoint).coords)
}

type pixelPoints []pixelPoint

func (p pixelPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p pixelPoints) Len() int                              { return len(p) }
func (p pixelPoints) Pivot(d kdtree.Dim) int                { return pixelPlane{pixelPoints: p, Dim: d}.Pivot() }
func (p pixelPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// pixelPlane pivots pixelPoints along one dimension.
type pixelPlane struct {
	kdtree.Dim
	pixelPoints
}

func (p pixelPlane) Less(i, j int) bool {
	return p.pixelPoints[i].coords[p.Dim] < p.pixelPoints[j].coords[p.Dim]
}
func (p pixelPlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p pixelPlane) Slice(start, end int) kdtree.SortSlicer {
	p.pixelPoints = p.pixelPoints[start:end]
	return p
}
func (p pixelPlane) Swap(i, j int) {
	p.pixelPoints[i], p.pixelPoints[j] = p.pixelPoints[j], p.pixelPoints[i]
}

const noise = -1

// dbscan labels density-connected rows. A row is a core row when at least
// p.MinSamples rows, itself included, lie within p.Eps. Clusters are numbered
// from 0 in order of their first core row; rows reached by no cluster are noise.
func dbscan(ctx context.Context, x *mat.Dense, p Params) (Result, error) {
	n, _ := x.Dims()
	points := make(pixelPoints, n)
	for i := range points {
		points[i] = pixelPoint{index: i, coords: x.RawRowView(i)}
	}
	tree := kdtree.New(append(pixelPoints(nil), points...), false)

	radius := p.Eps * p.Eps
	neighbours := make([][]int, n)
	for i, pt := range points {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
		}
		keeper := kdtree.NewDistKeeper(radius)
		tree.NearestSet(keeper, pt)
		ids := make([]int, 0, keeper.Len())
		for _, found := range keeper.Heap {
			if found.Comparable == nil {
				continue
			}
			ids = append(ids, found.Comparable.(pixelPoint).index)
		}
		neighbours[i] = ids
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = noise
	}
	isCore := func(i int) bool { return len(neighbours[i]) >= p.MinSamples }

	cluster := 0
	for i := range points {
		if labels[i] != noise || !isCore(i) {
			continue
		}
		labels[i] = cluster
		queue := []int{i}
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]
			if !isCore(j) {
				continue
			}
			for _, nb := range neighbours[j] {
				if labels[nb] == noise {
					labels[nb] = cluster
					queue = append(queue, nb)
				}
			}
		}
		cluster++
	}
	return Result{Labels: labels}, nil
}
