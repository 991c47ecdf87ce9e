package ponca

import (
	"container/heap"
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

const (
	// kdMaxDepth bounds the tree depth so traversal stacks can live in
	// a fixed-size array. 2^32 leaves is far beyond any in-memory cloud.
	kdMaxDepth = 32

	// DefaultLeafSize is the default maximum number of samples per leaf.
	DefaultLeafSize = 32
)

// ErrEmptyIndex is returned by queries against an index with no samples.
var ErrEmptyIndex = errors.New("ponca: query on empty index")

// kdNode is one node of the tree, stored in a depth-first array.
// Leaves reference a contiguous range of the sample permutation;
// inner nodes store the split plane and the index of their first
// child (the second child is at firstChild+1).
type kdNode struct {
	leaf       bool
	splitDim   int
	splitValue float64
	firstChild int32
	leafStart  int32
	leafCount  int32
}

// KdTree is a k-d tree over a point cloud supporting k-nearest-neighbor,
// radius and nearest-point queries. The cloud is referenced, not copied,
// and must not be mutated after construction. The tree itself is
// immutable and safe for concurrent queries.
type KdTree struct {
	points   Cloud
	nodes    []kdNode
	samples  []int32 // permutation: sample order → point index
	leafSize int
	depth    int
}

// NewKdTree builds a KdTree over the cloud with the default leaf size.
func NewKdTree(points Cloud) (*KdTree, error) {
	return NewKdTreeLeafSize(points, DefaultLeafSize)
}

// NewKdTreeLeafSize builds a KdTree with the given maximum leaf size.
// The split dimension of each node is the longest extent of its
// bounding box and the split position is the median, so the tree is
// balanced and its depth stays within the traversal stack bound.
func NewKdTreeLeafSize(points Cloud, leafSize int) (*KdTree, error) {
	if leafSize < 1 {
		return nil, fmt.Errorf("ponca: leaf size must be >= 1, got %d", leafSize)
	}

	n := len(points)
	t := &KdTree{
		points:   points,
		samples:  make([]int32, n),
		leafSize: leafSize,
	}
	for i := range t.samples {
		t.samples[i] = int32(i)
	}
	if n > 0 {
		t.nodes = make([]kdNode, 1, 2*(n/leafSize+1))
		t.buildNode(0, 0, int32(n), 0)
	}

	logger().Debug("ponca: kdtree built",
		"points", n, "nodes", len(t.nodes), "depth", t.depth, "leafSize", leafSize)
	return t, nil
}

// buildNode fills the already-allocated slot nodeID with the node
// covering samples[start:end) and recurses. Child slots are reserved
// as an adjacent pair before descending, so the second child is always
// at firstChild+1.
func (t *KdTree) buildNode(nodeID, start, end int32, depth int) {
	if depth > t.depth {
		t.depth = depth
	}

	count := end - start

	// The depth guard keeps leaves within the stack bound even for
	// pathological duplicate-heavy clouds.
	if count <= int32(t.leafSize) || depth >= kdMaxDepth-1 {
		t.nodes[nodeID] = kdNode{leaf: true, leafStart: start, leafCount: count}
		return
	}

	dim := t.widestDimension(start, end)
	mid := start + count/2
	t.selectMedian(start, end, mid, dim)
	splitValue := coord(t.points[t.samples[mid]].Pos, dim)

	first := int32(len(t.nodes))
	t.nodes = append(t.nodes, kdNode{}, kdNode{})
	t.nodes[nodeID] = kdNode{splitDim: dim, splitValue: splitValue, firstChild: first}

	t.buildNode(first, start, mid, depth+1)
	t.buildNode(first+1, mid, end, depth+1)
}

// widestDimension returns the dimension with the greatest spread over
// samples[start:end).
func (t *KdTree) widestDimension(start, end int32) int {
	min := r3.Vector{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	max := r3.Vector{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for i := start; i < end; i++ {
		p := t.points[t.samples[i]].Pos
		min.X = math.Min(min.X, p.X)
		min.Y = math.Min(min.Y, p.Y)
		min.Z = math.Min(min.Z, p.Z)
		max.X = math.Max(max.X, p.X)
		max.Y = math.Max(max.Y, p.Y)
		max.Z = math.Max(max.Z, p.Z)
	}
	spread := max.Sub(min)
	dim := 0
	best := spread.X
	if spread.Y > best {
		dim, best = 1, spread.Y
	}
	if spread.Z > best {
		dim = 2
	}
	return dim
}

// selectMedian partially orders samples[start:end) along dim so that
// samples[mid] holds the element of rank mid, everything before it is
// <= and everything after is >=. Classic quickselect with a
// middle-element pivot.
func (t *KdTree) selectMedian(start, end, mid int32, dim int) {
	for end-start > 1 {
		p := t.partition(start, end, (start+end)/2, dim)
		switch {
		case p == mid:
			return
		case mid < p:
			end = p
		default:
			start = p + 1
		}
	}
}

// partition moves the pivot element to its sorted rank along dim and
// returns that rank. Elements less than the pivot value end up before
// it, all others after.
func (t *KdTree) partition(start, end, pivot int32, dim int) int32 {
	s := t.samples
	last := end - 1
	pv := coord(t.points[s[pivot]].Pos, dim)
	s[pivot], s[last] = s[last], s[pivot]

	store := start
	for i := start; i < last; i++ {
		if coord(t.points[s[i]].Pos, dim) < pv {
			s[i], s[store] = s[store], s[i]
			store++
		}
	}
	s[last], s[store] = s[store], s[last]
	return store
}

// coord returns the dim-th coordinate of v.
func coord(v r3.Vector, dim int) float64 {
	switch dim {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// --- accessors ---

// SampleCount returns the number of indexed samples.
func (t *KdTree) SampleCount() int { return len(t.samples) }

// Points returns the cloud the tree was built over.
func (t *KdTree) Points() Cloud { return t.points }

// NumNodes returns the number of tree nodes (leaves and inner).
func (t *KdTree) NumNodes() int { return len(t.nodes) }

// Depth returns the maximum node depth of the tree.
func (t *KdTree) Depth() int { return t.depth }

// PointFromSample resolves a position in the internal sample
// permutation to the index of the point it references.
func (t *KdTree) PointFromSample(i int) int { return int(t.samples[i]) }

// --- traversal core ---

// search runs the shared best-first traversal. For every sample whose
// squared distance to point is below descentThreshold() and for which
// skip returns false, process is invoked with the point index, the
// sample position and the squared distance; process returning true
// aborts the traversal early.
//
// The loop replaces the top frame with the farther child (carrying the
// squared offset to the split plane) and pushes the nearer child
// carrying the parent's bound, so subtrees are visited closest-first
// and pruned against the caller's current threshold.
func (t *KdTree) search(point r3.Vector,
	descentThreshold func() float64,
	skip func(idx int) bool,
	process func(idx, sampleIdx int, d2 float64) bool,
) error {
	if len(t.nodes) == 0 || len(t.samples) == 0 {
		return ErrEmptyIndex
	}

	var stack queryStack
	stack.pushFrame(queryFrame{node: 0, sqDist: 0})

	for !stack.empty() {
		qnode := stack.top()
		node := &t.nodes[qnode.node]

		if qnode.sqDist >= descentThreshold() {
			stack.pop()
			continue
		}

		if node.leaf {
			stack.pop()
			end := node.leafStart + node.leafCount
			for i := node.leafStart; i < end; i++ {
				idx := int(t.samples[i])
				if skip(idx) {
					continue
				}
				d2 := point.Sub(t.points[idx].Pos).Norm2()
				if d2 < descentThreshold() {
					if process(idx, int(i), d2) {
						return nil
					}
				}
			}
			continue
		}

		off := coord(point, node.splitDim) - node.splitValue
		stack.push()
		if off < 0 {
			stack.top().node = node.firstChild
			qnode.node = node.firstChild + 1
		} else {
			stack.top().node = node.firstChild + 1
			qnode.node = node.firstChild
		}
		stack.top().sqDist = qnode.sqDist
		qnode.sqDist = off * off
	}
	return nil
}

// --- public queries ---

// KNearestNeighbors returns the indices of the k points closest to q,
// ordered by ascending distance. When k exceeds the sample count, all
// samples are returned.
func (t *KdTree) KNearestNeighbors(q r3.Vector, k int) ([]int, error) {
	h := make(knnHeap, 0, k)
	if err := t.kNearestInto(q, k, noSkip, &h); err != nil {
		return nil, err
	}
	return h.ascendingIndices(), nil
}

// KNearestNeighborsOf returns the indices of the k points closest to
// the point at index i, excluding i itself, ordered by ascending
// distance.
func (t *KdTree) KNearestNeighborsOf(i, k int) ([]int, error) {
	h := make(knnHeap, 0, k)
	if err := t.kNearestInto(t.points[i].Pos, k, skipIndex(i), &h); err != nil {
		return nil, err
	}
	return h.ascendingIndices(), nil
}

// kNearestInto fills h with the k nearest admissible samples to q.
func (t *KdTree) kNearestInto(q r3.Vector, k int, skip func(int) bool, h *knnHeap) error {
	if k < 1 {
		return fmt.Errorf("ponca: k must be >= 1, got %d", k)
	}
	threshold := func() float64 {
		if h.Len() < k {
			return math.Inf(1)
		}
		return (*h)[0].dist
	}
	return t.search(q, threshold, skip, func(idx, _ int, d2 float64) bool {
		if h.Len() < k {
			heap.Push(h, knnItem{index: idx, dist: d2})
		} else {
			(*h)[0] = knnItem{index: idx, dist: d2}
			heap.Fix(h, 0)
		}
		return false
	})
}

// RangeNeighbors returns the indices of all points within radius of q.
// The order of the result follows the traversal and is not sorted.
func (t *KdTree) RangeNeighbors(q r3.Vector, radius float64) ([]int, error) {
	var out []int
	r2 := radius * radius
	err := t.search(q, func() float64 { return r2 }, noSkip,
		func(idx, _ int, _ float64) bool {
			out = append(out, idx)
			return false
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RangeNeighborsOf returns the indices of all points within radius of
// the point at index i, excluding i itself.
func (t *KdTree) RangeNeighborsOf(i int, radius float64) ([]int, error) {
	var out []int
	r2 := radius * radius
	err := t.search(t.points[i].Pos, func() float64 { return r2 }, skipIndex(i),
		func(idx, _ int, _ float64) bool {
			out = append(out, idx)
			return false
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// NearestNeighbor returns the index of the point closest to q.
func (t *KdTree) NearestNeighbor(q r3.Vector) (int, error) {
	best := -1
	bestD2 := math.Inf(1)
	err := t.search(q, func() float64 { return bestD2 }, noSkip,
		func(idx, _ int, d2 float64) bool {
			best, bestD2 = idx, d2
			return false
		})
	if err != nil {
		return -1, err
	}
	return best, nil
}

// NearestNeighborOf returns the index of the point closest to the
// point at index i, excluding i itself.
func (t *KdTree) NearestNeighborOf(i int) (int, error) {
	best := -1
	bestD2 := math.Inf(1)
	skip := skipIndex(i)
	err := t.search(t.points[i].Pos, func() float64 { return bestD2 }, skip,
		func(idx, _ int, d2 float64) bool {
			best, bestD2 = idx, d2
			return false
		})
	if err != nil {
		return -1, err
	}
	return best, nil
}

func noSkip(int) bool { return false }

func skipIndex(i int) func(int) bool {
	return func(idx int) bool { return idx == i }
}

// --- bounded max-heap for k-NN queries ---

type knnItem struct {
	index int
	dist  float64 // squared distance
}

// knnHeap is a max-heap of knnItem (largest distance on top) used as a
// bounded priority queue for k-NN queries.
type knnHeap []knnItem

func (h knnHeap) Len() int           { return len(h) }
func (h knnHeap) Less(i, j int) bool { return h[i].dist > h[j].dist } // max-heap
func (h knnHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *knnHeap) Push(x any)        { *h = append(*h, x.(knnItem)) }
func (h *knnHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// ascendingIndices drains the heap and returns the indices ordered by
// ascending distance. The heap is consumed.
func (h *knnHeap) ascendingIndices() []int {
	n := h.Len()
	out := make([]int, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(knnItem).index
	}
	return out
}
