package ponca

import (
	"fmt"
	"runtime"
	"sync"
)

// KnnGraph is a precomputed k-nearest-neighbor adjacency over a point
// cloud. Each point stores exactly k neighbor indices sorted by
// ascending distance, excluding the point itself. The graph is
// immutable after construction and safe for concurrent queries.
//
// Range queries expand breadth-style through the adjacency instead of
// descending a tree, which is faster when many neighborhoods are
// collected over the same cloud with comparable radii.
type KnnGraph struct {
	points    Cloud
	k         int
	neighbors []int32 // flat: neighbors[i*k : (i+1)*k]
}

// NewKnnGraph builds the graph by running a k-nearest-neighbor query
// for every point of the tree. The per-point queries are independent
// and run on up to runtime.NumCPU() goroutines.
func NewKnnGraph(tree *KdTree, k int) (*KnnGraph, error) {
	n := tree.SampleCount()
	if n == 0 {
		return nil, ErrEmptyIndex
	}
	if k < 1 || k > n-1 {
		return nil, fmt.Errorf("ponca: graph k must be in [1, %d], got %d", n-1, k)
	}

	g := &KnnGraph{
		points:    tree.Points(),
		k:         k,
		neighbors: make([]int32, n*k),
	}

	// Contiguous point ranges per worker; the output slices do not
	// overlap so no synchronization is needed for writes.
	numWorkers := runtime.NumCPU()
	if numWorkers > n {
		numWorkers = n
	}
	rowsPerWorker := (n + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	errs := make([]error, numWorkers)
	for w := 0; w < numWorkers; w++ {
		start := w * rowsPerWorker
		end := start + rowsPerWorker
		if end > n {
			end = n
		}
		if start >= n {
			break
		}

		wg.Add(1)
		go func(worker, start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				nn, err := tree.KNearestNeighborsOf(i, k)
				if err != nil {
					errs[worker] = err
					return
				}
				row := g.neighbors[i*k : (i+1)*k]
				for j, idx := range nn {
					row[j] = int32(idx)
				}
			}
		}(w, start, end)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	logger().Debug("ponca: knn graph built", "points", n, "k", k)
	return g, nil
}

// Size returns the number of points in the graph.
func (g *KnnGraph) Size() int { return len(g.points) }

// K returns the number of neighbors stored per point.
func (g *KnnGraph) K() int { return g.k }

// KNearestNeighbors returns the k neighbor indices of point i, sorted
// by ascending distance. The slice aliases internal storage and must
// not be modified.
func (g *KnnGraph) KNearestNeighbors(i int) []int32 {
	return g.neighbors[i*g.k : (i+1)*g.k]
}

// Points returns the cloud the graph was built over.
func (g *KnnGraph) Points() Cloud { return g.points }

// RangeNeighborsOf returns the indices of the points reachable from seed
// through the adjacency while staying within radius of the seed's
// position. The seed itself is excluded. Points inside the radius that
// are not connected to the seed through in-radius hops are not found;
// that is the accepted trade-off of graph-based range search.
func (g *KnnGraph) RangeNeighborsOf(seed int, radius float64) ([]int, error) {
	if len(g.points) == 0 {
		return nil, ErrEmptyIndex
	}

	pos := g.points[seed].Pos
	r2 := radius * radius

	visited := make(map[int32]struct{})
	visited[int32(seed)] = struct{}{}
	stack := []int32{int32(seed)}

	var out []int
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if int(current) != seed {
			out = append(out, int(current))
		}
		for _, nb := range g.KNearestNeighbors(int(current)) {
			if _, seen := visited[nb]; seen {
				continue
			}
			if pos.Sub(g.points[nb].Pos).Norm2() < r2 {
				visited[nb] = struct{}{}
				stack = append(stack, nb)
			}
		}
	}
	return out, nil
}
