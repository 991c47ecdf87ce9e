package ponca

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// MongePatchFit fits a quadratic height field h(u,v) over a base plane:
// a two-pass procedure. The first pass fits the covariance plane; the
// second accumulates the normal equations of
//
//	h(u,v) ≈ c_uu·u² + c_vv·v² + c_uv·uv + c_u·u + c_v·v + c_0
//
// in the plane's tangent frame and solves them by thin SVD, which
// tolerates rank-deficient neighborhoods. Principal curvatures and
// directions are derived from the patch coefficients at the origin.
type MongePatchFit struct {
	CovariancePlaneFit
	a          [36]float64 // row-major 6x6 normal matrix
	b          [6]float64
	x          [6]float64 // c_uu, c_vv, c_uv, c_u, c_v, c_0
	planeReady bool
}

// NewMongePatchFit returns a Monge patch fit using the given weight
// kernel.
func NewMongePatchFit(kernel WeightFunc) *MongePatchFit {
	f := &MongePatchFit{}
	f.kernel = kernel
	return f
}

// Init resets the fit for an evaluation at evalPos.
func (f *MongePatchFit) Init(evalPos r3.Vector) {
	f.CovariancePlaneFit.Init(evalPos)
	f.a = [36]float64{}
	f.b = [6]float64{}
	f.x = [6]float64{}
	f.planeReady = false
}

// AddNeighbor weighs p against the evaluation position and accumulates
// it. Reports whether the sample was admitted.
func (f *MongePatchFit) AddNeighbor(p Point) bool {
	w, localQ, ok := f.weight(p)
	if !ok {
		return false
	}
	return f.AddLocalNeighbor(w, localQ, p)
}

// AddLocalNeighbor accumulates a pre-weighted sample. During the first
// pass samples feed the base plane; once the plane is ready they feed
// the quadric normal equations.
func (f *MongePatchFit) AddLocalNeighbor(w float64, localQ r3.Vector, p Point) bool {
	if !f.planeReady {
		return f.CovariancePlaneFit.AddLocalNeighbor(w, localQ, p)
	}

	local := f.WorldToLocal(p.Pos)
	h, u, v := local.X, local.Y, local.Z
	q := [6]float64{u * u, v * v, u * v, u, v, 1}

	for i := 0; i < 6; i++ {
		wi := w * q[i]
		for j := 0; j < 6; j++ {
			f.a[i*6+j] += wi * q[j]
		}
		f.b[i] += w * h * q[i]
	}
	return true
}

// Finalize resolves the current pass. The first stable pass fits the
// base plane and returns NeedOtherPass; the caller must stream the
// neighborhood again. The second pass solves the quadric.
func (f *MongePatchFit) Finalize() FitResult {
	if !f.planeReady {
		res := f.CovariancePlaneFit.Finalize()
		if res == Stable {
			f.planeReady = true
			f.a = [36]float64{}
			f.b = [6]float64{}
			f.state = NeedOtherPass
		}
		return f.state
	}

	f.passes++
	var svd mat.SVD
	if ok := svd.Factorize(mat.NewDense(6, 6, f.a[:]), mat.SVDThin); !ok {
		f.state = Unstable
		return f.state
	}

	vals := svd.Values(nil)
	rank := 0
	tol := 1e-12 * vals[0]
	for _, s := range vals {
		if s > tol {
			rank++
		}
	}
	if rank == 0 {
		f.state = Unstable
		return f.state
	}

	var sol mat.Dense
	svd.SolveTo(&sol, mat.NewDense(6, 1, f.b[:]), rank)
	for i := 0; i < 6; i++ {
		f.x[i] = sol.At(i, 0)
	}
	f.state = Stable
	return f.state
}

// Coefficients returns the fitted patch coefficients
// (c_uu, c_vv, c_uv, c_u, c_v, c_0).
func (f *MongePatchFit) Coefficients() [6]float64 { return f.x }

// Height-field derivatives at the patch origin.
func (f *MongePatchFit) dhU() float64  { return f.x[3] }
func (f *MongePatchFit) dhV() float64  { return f.x[4] }
func (f *MongePatchFit) dhUU() float64 { return 2 * f.x[0] }
func (f *MongePatchFit) dhVV() float64 { return 2 * f.x[1] }
func (f *MongePatchFit) dhUV() float64 { return f.x[2] }

// evalH evaluates the height field at in-plane coordinates (u, v).
func (f *MongePatchFit) evalH(u, v float64) float64 {
	return f.x[0]*u*u + f.x[1]*v*v + f.x[2]*u*v + f.x[3]*u + f.x[4]*v + f.x[5]
}

// evalDH evaluates the height-field gradient at (u, v).
func (f *MongePatchFit) evalDH(u, v float64) (du, dv float64) {
	du = 2*f.x[0]*u + f.x[2]*v + f.x[3]
	dv = 2*f.x[1]*v + f.x[2]*u + f.x[4]
	return du, dv
}

// Kmean returns the mean curvature of the patch at its origin.
func (f *MongePatchFit) Kmean() float64 {
	du, dv := f.dhU(), f.dhV()
	num := f.dhUU()*(1+dv*dv) + f.dhVV()*(1+du*du) - 2*f.dhUV()*du*dv
	return num / (2 * math.Pow(1+du*du+dv*dv, 1.5))
}

// GaussianCurvature returns the Gaussian curvature of the patch at its
// origin.
func (f *MongePatchFit) GaussianCurvature() float64 {
	du, dv := f.dhU(), f.dhV()
	den := 1 + du*du + dv*dv
	return (f.dhUU()*f.dhVV() - f.dhUV()*f.dhUV()) / (den * den)
}

// Kmin returns the smaller principal curvature. H²-K is clamped at 0
// so numerical noise near umbilical points cannot produce NaN.
func (f *MongePatchFit) Kmin() float64 {
	h, k := f.Kmean(), f.GaussianCurvature()
	return h - math.Sqrt(math.Max(h*h-k, 0))
}

// Kmax returns the larger principal curvature.
func (f *MongePatchFit) Kmax() float64 {
	h, k := f.Kmean(), f.GaussianCurvature()
	return h + math.Sqrt(math.Max(h*h-k, 0))
}

// KminDirection returns the world-space principal direction of Kmin.
func (f *MongePatchFit) KminDirection() r3.Vector { return f.principalDirection(0) }

// KmaxDirection returns the world-space principal direction of Kmax.
func (f *MongePatchFit) KmaxDirection() r3.Vector { return f.principalDirection(1) }

// principalDirection solves the 2x2 shape operator W = I⁻¹·II at the
// patch origin and lifts the requested eigenvector (ascending
// eigenvalue order) into world space through the tangent frame.
// Returns the zero vector when the operator is degenerate.
func (f *MongePatchFit) principalDirection(col int) r3.Vector {
	du, dv := f.dhU(), f.dhV()
	den := math.Sqrt(1 + du*du + dv*dv)

	// First and second fundamental forms of the height field.
	e, ff, g := 1+du*du, du*dv, 1+dv*dv
	l, m, n := f.dhUU()/den, f.dhUV()/den, f.dhVV()/den

	det := e*g - ff*ff
	if det == 0 {
		return r3.Vector{}
	}

	// W = I⁻¹·II, symmetrized before the self-adjoint solve.
	w00 := (g*l - ff*m) / det
	w01 := (g*m - ff*n) / det
	w10 := (e*m - ff*l) / det
	w11 := (e*n - ff*m) / det
	sym := mat.NewSymDense(2, []float64{w00, (w01 + w10) / 2, (w01 + w10) / 2, w11})

	var eigen mat.EigenSym
	if ok := eigen.Factorize(sym, true); !ok {
		return r3.Vector{}
	}
	var vecs mat.Dense
	eigen.VectorsTo(&vecs)

	dir := r3.Vector{X: 0, Y: vecs.At(0, col), Z: vecs.At(1, col)}
	return f.LocalToWorldDir(dir)
}

// Potential returns the height of the patch above q's in-plane
// position minus q's own height: zero on the fitted surface.
// Shadows the base plane's potential.
func (f *MongePatchFit) Potential(q r3.Vector) float64 {
	local := f.WorldToLocal(q)
	return f.evalH(local.Y, local.Z) - local.X
}

// Project moves q along the frame height axis onto the fitted
// surface. Shadows the base plane's projection.
func (f *MongePatchFit) Project(q r3.Vector) r3.Vector {
	local := f.WorldToLocal(q)
	local.X = f.evalH(local.Y, local.Z)
	return f.LocalToWorld(local)
}

// PrimitiveGradient returns the (unnormalized) surface normal
// direction of the patch at q.
func (f *MongePatchFit) PrimitiveGradient(q r3.Vector) r3.Vector {
	local := f.WorldToLocal(q)
	du, dv := f.evalDH(local.Y, local.Z)
	return f.LocalToWorldDir(r3.Vector{X: 1, Y: -du, Z: -dv})
}
