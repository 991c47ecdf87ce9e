package ponca

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// Fitter is the common surface of all fits: reset at an evaluation
// position, stream neighbors, finalize. Implemented by
// CovariancePlaneFit, MeanPlaneFit, MongePatchFit and
// ParabolicCylinderFit.
type Fitter interface {
	// Init resets the fit for an evaluation at evalPos.
	Init(evalPos r3.Vector)

	// AddNeighbor weighs and accumulates one sample, reporting
	// whether it was admitted.
	AddNeighbor(p Point) bool

	// Finalize resolves the current pass.
	Finalize() FitResult

	// State returns the state set by the last Finalize.
	State() FitResult

	// SetKernel replaces the fit's weight kernel before neighbors are
	// streamed.
	SetKernel(k WeightFunc)
}

// NeighborSource is the read interface shared by the spatial
// structures that can enumerate in-radius neighborhoods around an
// indexed point: KdTree (exact, by tree descent) and KnnGraph
// (approximate, by adjacency expansion).
type NeighborSource interface {
	// Points returns the cloud the structure was built over.
	Points() Cloud

	// RangeNeighborsOf returns the indices of points within radius of
	// point i, excluding i itself.
	RangeNeighborsOf(i int, radius float64) ([]int, error)
}

// FitAt runs the full fitting loop for an evaluation at an arbitrary
// position: Init, stream every point within radius of eval, Finalize,
// repeating the stream while the fit requests another pass.
func FitAt(f Fitter, tree *KdTree, eval r3.Vector, radius float64) (FitResult, error) {
	f.Init(eval)
	for pass := 0; pass < maxFitPasses; pass++ {
		nn, err := tree.RangeNeighbors(eval, radius)
		if err != nil {
			return Undefined, err
		}
		points := tree.Points()
		for _, idx := range nn {
			f.AddNeighbor(points[idx])
		}
		res := f.Finalize()
		if res != NeedOtherPass {
			return res, nil
		}
	}
	return f.State(), fmt.Errorf("ponca: fit still requested another pass after %d passes", maxFitPasses)
}

// FitAtIndex runs the fitting loop for an evaluation at an indexed
// point of the source's cloud. The point itself is excluded from its
// neighborhood, matching the index-based queries.
func FitAtIndex(f Fitter, source NeighborSource, i int, radius float64) (FitResult, error) {
	points := source.Points()
	f.Init(points[i].Pos)
	for pass := 0; pass < maxFitPasses; pass++ {
		nn, err := source.RangeNeighborsOf(i, radius)
		if err != nil {
			return Undefined, err
		}
		for _, idx := range nn {
			f.AddNeighbor(points[idx])
		}
		res := f.Finalize()
		if res != NeedOtherPass {
			return res, nil
		}
	}
	return f.State(), fmt.Errorf("ponca: fit still requested another pass after %d passes", maxFitPasses)
}

// kNearestRadiusScale inflates the k-th neighbor distance when a
// k-neighborhood sets the kernel support, so the farthest selected
// neighbor keeps a nonzero weight.
const kNearestRadiusScale = 1.1

// FitKNearest runs the fitting loop over the k nearest neighbors of
// point i. The kernel support is derived from the neighborhood itself
// (the inflated k-th neighbor distance), so the fit's kernel is built
// by the given constructor once that radius is known and installed
// with SetKernel.
func FitKNearest(f Fitter, tree *KdTree, i, k int, kernel func(radius float64) WeightFunc) (FitResult, error) {
	return fitKNearest(f, tree, i, k, kNearestRadiusScale, kernel)
}

func fitKNearest(f Fitter, tree *KdTree, i, k int, radiusScale float64, kernel func(radius float64) WeightFunc) (FitResult, error) {
	nn, err := tree.KNearestNeighborsOf(i, k)
	if err != nil {
		return Undefined, err
	}
	points := tree.Points()
	eval := points[i].Pos

	// Neighbors come back ascending, so the last one sets the support
	// radius. Without one (single-point cloud, coincident points)
	// there is no admissible neighborhood.
	var radius float64
	if len(nn) > 0 {
		radius = radiusScale * eval.Sub(points[nn[len(nn)-1]].Pos).Norm()
	}
	if radius == 0 {
		f.Init(eval)
		return f.Finalize(), nil
	}

	f.SetKernel(kernel(radius))
	return FitNeighborhood(f, points, eval, nn)
}

// FitNeighborhood runs the fitting loop over an explicit neighbor
// index list, for callers that already selected a neighborhood.
func FitNeighborhood(f Fitter, points Cloud, eval r3.Vector, neighbors []int) (FitResult, error) {
	f.Init(eval)
	for pass := 0; pass < maxFitPasses; pass++ {
		for _, idx := range neighbors {
			f.AddNeighbor(points[idx])
		}
		res := f.Finalize()
		if res != NeedOtherPass {
			return res, nil
		}
	}
	return f.State(), fmt.Errorf("ponca: fit still requested another pass after %d passes", maxFitPasses)
}
