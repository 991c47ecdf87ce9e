// Package ponca implements local differential-geometric analysis of
// unstructured 3-D point clouds.
//
// Given a point cloud (positions with optional per-point normals), the
// package fits local primitives at chosen evaluation points by weighted
// aggregation of nearby samples and derives geometric quantities from
// them: surface normals, tangent frames, principal curvatures and their
// directions, mean and Gaussian curvature, and anisotropic curvature
// tensors. It also provides the spatial acceleration structures needed
// to select neighborhoods efficiently.
//
// Basic usage:
//
//	tree, err := ponca.NewKdTree(cloud)
//	fit := ponca.NewMongePatchFit(ponca.SmoothKernel{R: radius})
//	res, err := ponca.FitAt(fit, tree, evalPos, radius)
//	if res == ponca.Stable {
//		kmin, kmax := fit.Kmin(), fit.Kmax()
//	}
//
// # Fitting pipeline
//
// A fit is a stateful object: Init sets the evaluation point and resets
// all accumulators, AddNeighbor streams weighted samples, and Finalize
// resolves the primitive. Finalize returns a [FitResult]: Stable when
// the primitive is ready, Unstable on a degenerate neighborhood,
// NeedOtherPass when the fit requires the neighborhood to be streamed
// again (the Monge patch needs two passes: one for its base plane, one
// for the quadric). [FitAt] and [FitKNearest] run this loop for you.
//
// # Spatial indices
//
// [KdTree] answers k-nearest-neighbor, radius, and nearest-point
// queries over an immutable cloud via a bounded explicit-stack
// traversal. [KnnGraph] precomputes a k-NN adjacency from a KdTree and
// answers range queries by breadth-style expansion, which is faster
// when many neighborhoods are collected over the same cloud.
//
// Both structures are immutable after construction and safe for
// concurrent queries. Fits own all their mutable state, so the intended
// parallelism is across evaluation points: run one fit per goroutine.
// [EstimateCurvatures] does exactly that over a whole cloud.
package ponca
