package ponca

import (
	"math/rand"
	"testing"
)

func TestKnnGraph_MatchesTreeQueries(t *testing.T) {
	rng := rand.New(rand.NewSource(20))
	cloud := randomCloud(rng, 100)
	tree, err := NewKdTree(cloud)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	graph, err := NewKnnGraph(tree, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if graph.Size() != 100 {
		t.Errorf("Size() = %d, want 100", graph.Size())
	}
	if graph.K() != 5 {
		t.Errorf("K() = %d, want 5", graph.K())
	}

	for i := range cloud {
		got := graph.KNearestNeighbors(i)
		if len(got) != 5 {
			t.Fatalf("point %d: %d neighbors, want 5", i, len(got))
		}
		want, err := tree.KNearestNeighborsOf(i, 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for j := range got {
			if int(got[j]) != want[j] {
				t.Errorf("point %d: neighbor %d = %d, want %d", i, j, got[j], want[j])
			}
		}
	}
}

func TestKnnGraph_NeighborsSortedAndExcludeSelf(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	cloud := randomCloud(rng, 80)
	tree, _ := NewKdTree(cloud)
	graph, err := NewKnnGraph(tree, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range cloud {
		prev := -1.0
		for _, nb := range graph.KNearestNeighbors(i) {
			if int(nb) == i {
				t.Fatalf("point %d: neighbor list contains the point itself", i)
			}
			d := cloud[i].Pos.Sub(cloud[nb].Pos).Norm2()
			if d < prev {
				t.Fatalf("point %d: neighbors not ascending", i)
			}
			prev = d
		}
	}
}

func TestKnnGraph_RangeNeighborsOf(t *testing.T) {
	rng := rand.New(rand.NewSource(22))
	cloud := randomCloud(rng, 150)
	tree, _ := NewKdTree(cloud)
	graph, err := NewKnnGraph(tree, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seed := 42
	radius := 0.6
	got, err := graph.RangeNeighborsOf(seed, radius)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := make(map[int]bool)
	pos := cloud[seed].Pos
	for _, idx := range got {
		if idx == seed {
			t.Error("result contains the seed")
		}
		if seen[idx] {
			t.Errorf("duplicate index %d", idx)
		}
		seen[idx] = true
		if pos.Sub(cloud[idx].Pos).Norm2() >= radius*radius {
			t.Errorf("index %d outside radius", idx)
		}
	}

	// Every direct neighbor of the seed inside the radius is reachable
	// in one hop and must be present.
	for _, nb := range graph.KNearestNeighbors(seed) {
		if pos.Sub(cloud[nb].Pos).Norm2() < radius*radius && !seen[int(nb)] {
			t.Errorf("direct in-radius neighbor %d missing from result", nb)
		}
	}
}

func TestKnnGraph_RangeNeighborsOf_ZeroRadius(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	cloud := randomCloud(rng, 40)
	tree, _ := NewKdTree(cloud)
	graph, _ := NewKnnGraph(tree, 5)

	got, err := graph.RangeNeighborsOf(0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("zero radius returned %d points, want 0", len(got))
	}
}

func TestKnnGraph_InvalidK(t *testing.T) {
	rng := rand.New(rand.NewSource(24))
	cloud := randomCloud(rng, 10)
	tree, _ := NewKdTree(cloud)

	if _, err := NewKnnGraph(tree, 0); err == nil {
		t.Error("expected error for k = 0")
	}
	if _, err := NewKnnGraph(tree, 10); err == nil {
		t.Error("expected error for k = n")
	}
}

func TestKnnGraph_EmptyTree(t *testing.T) {
	tree, _ := NewKdTree(Cloud{})
	if _, err := NewKnnGraph(tree, 3); err != ErrEmptyIndex {
		t.Errorf("error = %v, want ErrEmptyIndex", err)
	}
}
