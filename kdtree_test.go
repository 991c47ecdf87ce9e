package ponca

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/golang/geo/r3"
)

func randomCloud(rng *rand.Rand, n int) Cloud {
	cloud := make(Cloud, n)
	for i := range cloud {
		cloud[i] = NewPoint(
			rng.Float64()*2-1,
			rng.Float64()*2-1,
			rng.Float64()*2-1,
		)
	}
	return cloud
}

// bruteForceKNN returns the k nearest point indices to q, ascending by
// distance, optionally excluding one index.
func bruteForceKNN(cloud Cloud, q r3.Vector, k, exclude int) []int {
	type pair struct {
		idx int
		d2  float64
	}
	pairs := make([]pair, 0, len(cloud))
	for i, p := range cloud {
		if i == exclude {
			continue
		}
		pairs = append(pairs, pair{i, q.Sub(p.Pos).Norm2()})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].d2 < pairs[j].d2 })
	if k > len(pairs) {
		k = len(pairs)
	}
	out := make([]int, k)
	for i := 0; i < k; i++ {
		out[i] = pairs[i].idx
	}
	return out
}

// --- Construction tests ---

func TestKdTree_Construction_BasicProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cloud := randomCloud(rng, 100)
	tree, err := NewKdTreeLeafSize(cloud, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tree.SampleCount() != 100 {
		t.Errorf("SampleCount() = %d, want 100", tree.SampleCount())
	}
	if tree.NumNodes() < 1 {
		t.Errorf("NumNodes() = %d, want >= 1", tree.NumNodes())
	}
	if tree.Depth() >= kdMaxDepth {
		t.Errorf("Depth() = %d, want < %d", tree.Depth(), kdMaxDepth)
	}

	// The sample permutation must be a bijection over [0, n).
	seen := make(map[int]bool)
	for i := 0; i < tree.SampleCount(); i++ {
		v := tree.PointFromSample(i)
		if v < 0 || v >= 100 {
			t.Errorf("PointFromSample(%d) = %d, out of range", i, v)
		}
		if seen[v] {
			t.Errorf("PointFromSample contains duplicate index %d", v)
		}
		seen[v] = true
	}
}

func TestKdTree_Construction_LeafCoverage(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	cloud := randomCloud(rng, 257)
	tree, err := NewKdTreeLeafSize(cloud, 16)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	covered := make([]bool, len(cloud))
	total := int32(0)
	for _, node := range tree.nodes {
		if !node.leaf {
			continue
		}
		if node.leafCount > 16 {
			t.Errorf("leaf holds %d samples, want <= 16", node.leafCount)
		}
		total += node.leafCount
		for i := node.leafStart; i < node.leafStart+node.leafCount; i++ {
			idx := tree.PointFromSample(int(i))
			if covered[idx] {
				t.Errorf("point %d appears in more than one leaf", idx)
			}
			covered[idx] = true
		}
	}
	if total != int32(len(cloud)) {
		t.Errorf("leaves cover %d samples, want %d", total, len(cloud))
	}
}

// TestKdTree_Construction_LeafCells verifies that every sample lies in
// the geometric cell implied by its ancestors' split planes.
func TestKdTree_Construction_LeafCells(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	cloud := randomCloud(rng, 300)
	tree, err := NewKdTreeLeafSize(cloud, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	type constraint struct {
		dim   int
		value float64
		left  bool
	}
	var walk func(node int32, cs []constraint)
	walk = func(node int32, cs []constraint) {
		nd := tree.nodes[node]
		if nd.leaf {
			for i := nd.leafStart; i < nd.leafStart+nd.leafCount; i++ {
				pos := cloud[tree.PointFromSample(int(i))].Pos
				for _, c := range cs {
					v := coord(pos, c.dim)
					if c.left && v > c.value {
						t.Errorf("sample %d violates left constraint dim %d: %v > %v", i, c.dim, v, c.value)
					}
					if !c.left && v < c.value {
						t.Errorf("sample %d violates right constraint dim %d: %v < %v", i, c.dim, v, c.value)
					}
				}
			}
			return
		}
		walk(nd.firstChild, append(cs[:len(cs):len(cs)], constraint{nd.splitDim, nd.splitValue, true}))
		walk(nd.firstChild+1, append(cs[:len(cs):len(cs)], constraint{nd.splitDim, nd.splitValue, false}))
	}
	walk(0, nil)
}

func TestKdTree_Construction_InvalidLeafSize(t *testing.T) {
	if _, err := NewKdTreeLeafSize(Cloud{NewPoint(0, 0, 0)}, 0); err == nil {
		t.Fatal("expected error for leaf size 0")
	}
}

// --- Query tests ---

func TestKdTree_KNearestNeighbors_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	cloud := randomCloud(rng, 100)
	tree, err := NewKdTree(cloud)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for trial := 0; trial < 50; trial++ {
		q := r3.Vector{X: rng.Float64()*2 - 1, Y: rng.Float64()*2 - 1, Z: rng.Float64()*2 - 1}
		got, err := tree.KNearestNeighbors(q, 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := bruteForceKNN(cloud, q, 5, -1)
		if len(got) != len(want) {
			t.Fatalf("got %d neighbors, want %d", len(got), len(want))
		}
		for i := range got {
			if got[i] != want[i] {
				t.Errorf("trial %d: neighbor %d = %d, want %d", trial, i, got[i], want[i])
			}
		}
	}
}

func TestKdTree_KNearestNeighborsOf_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	cloud := randomCloud(rng, 100)
	tree, err := NewKdTree(cloud)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range cloud {
		got, err := tree.KNearestNeighborsOf(i, 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 5 {
			t.Fatalf("point %d: got %d neighbors, want 5", i, len(got))
		}
		for _, idx := range got {
			if idx == i {
				t.Errorf("point %d: result contains the query index", i)
			}
		}
		want := bruteForceKNN(cloud, cloud[i].Pos, 5, i)
		for j := range got {
			if got[j] != want[j] {
				t.Errorf("point %d: neighbor %d = %d, want %d", i, j, got[j], want[j])
			}
		}
	}
}

func TestKdTree_KNearestNeighbors_Large(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping large brute-force comparison in short mode")
	}
	rng := rand.New(rand.NewSource(6))
	cloud := randomCloud(rng, 10000)
	tree, err := NewKdTree(cloud)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Spot-check a sample of indices against brute force.
	for i := 0; i < 10000; i += 97 {
		got, err := tree.KNearestNeighborsOf(i, 15)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := bruteForceKNN(cloud, cloud[i].Pos, 15, i)
		for j := range got {
			if got[j] != want[j] {
				t.Fatalf("point %d: neighbor %d = %d, want %d", i, j, got[j], want[j])
			}
		}
	}
}

func TestKdTree_KNearestNeighbors_KExceedsSamples(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	cloud := randomCloud(rng, 10)
	tree, _ := NewKdTree(cloud)

	got, err := tree.KNearestNeighbors(r3.Vector{}, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 10 {
		t.Errorf("got %d neighbors, want all 10", len(got))
	}

	got, err = tree.KNearestNeighborsOf(3, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 9 {
		t.Errorf("got %d neighbors, want 9 (all but the query)", len(got))
	}
}

func TestKdTree_RangeNeighbors_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	cloud := randomCloud(rng, 200)
	tree, _ := NewKdTree(cloud)

	for trial := 0; trial < 20; trial++ {
		q := r3.Vector{X: rng.Float64()*2 - 1, Y: rng.Float64()*2 - 1, Z: rng.Float64()*2 - 1}
		radius := rng.Float64()

		got, err := tree.RangeNeighbors(q, radius)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		sort.Ints(got)

		var want []int
		for i, p := range cloud {
			if q.Sub(p.Pos).Norm2() < radius*radius {
				want = append(want, i)
			}
		}
		if len(got) != len(want) {
			t.Fatalf("trial %d: got %d in-range points, want %d", trial, len(got), len(want))
		}
		for i := range got {
			if got[i] != want[i] {
				t.Errorf("trial %d: index %d = %d, want %d", trial, i, got[i], want[i])
			}
		}
	}
}

func TestKdTree_RangeNeighbors_ZeroRadius(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	cloud := randomCloud(rng, 50)
	tree, _ := NewKdTree(cloud)

	got, err := tree.RangeNeighbors(cloud[7].Pos, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("zero radius returned %d points, want 0", len(got))
	}
}

func TestKdTree_RangeNeighborsOf_FullRadius(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	cloud := randomCloud(rng, 50)
	tree, _ := NewKdTree(cloud)

	got, err := tree.RangeNeighborsOf(7, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 49 {
		t.Errorf("full radius returned %d points, want 49", len(got))
	}
	for _, idx := range got {
		if idx == 7 {
			t.Error("result contains the query index")
		}
	}
}

func TestKdTree_NearestNeighbor(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	cloud := randomCloud(rng, 120)
	tree, _ := NewKdTree(cloud)

	for trial := 0; trial < 30; trial++ {
		q := r3.Vector{X: rng.Float64()*2 - 1, Y: rng.Float64()*2 - 1, Z: rng.Float64()*2 - 1}
		got, err := tree.NearestNeighbor(q)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := bruteForceKNN(cloud, q, 1, -1)[0]
		if got != want {
			t.Errorf("trial %d: nearest = %d, want %d", trial, got, want)
		}
	}

	for i := 0; i < 30; i++ {
		got, err := tree.NearestNeighborOf(i)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := bruteForceKNN(cloud, cloud[i].Pos, 1, i)[0]
		if got != want {
			t.Errorf("point %d: nearest = %d, want %d", i, got, want)
		}
	}
}

func TestKdTree_EmptyIndex(t *testing.T) {
	tree, err := NewKdTree(Cloud{})
	if err != nil {
		t.Fatalf("building over an empty cloud should succeed, got %v", err)
	}
	if _, err := tree.KNearestNeighbors(r3.Vector{}, 3); err != ErrEmptyIndex {
		t.Errorf("KNearestNeighbors error = %v, want ErrEmptyIndex", err)
	}
	if _, err := tree.RangeNeighbors(r3.Vector{}, 1); err != ErrEmptyIndex {
		t.Errorf("RangeNeighbors error = %v, want ErrEmptyIndex", err)
	}
	if _, err := tree.NearestNeighbor(r3.Vector{}); err != ErrEmptyIndex {
		t.Errorf("NearestNeighbor error = %v, want ErrEmptyIndex", err)
	}
}

func TestKdTree_ResultsAscendByDistance(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	cloud := randomCloud(rng, 150)
	tree, _ := NewKdTree(cloud)

	q := r3.Vector{X: 0.1, Y: -0.2, Z: 0.3}
	got, err := tree.KNearestNeighbors(q, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prev := math.Inf(-1)
	for _, idx := range got {
		d := q.Sub(cloud[idx].Pos).Norm2()
		if d < prev {
			t.Fatalf("result not sorted ascending: %v after %v", d, prev)
		}
		prev = d
	}
}
