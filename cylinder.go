package ponca

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// ParabolicCylinderFit fits a parabolic cylinder: a quadratic height
// field curved along a single direction,
//
//	h(u,v) = a·((u,v)·q)² + l·(u,v) + c
//
// where q is a unit in-plane direction (so the quadratic part has the
// rank-1 shape a·qqᵀ). The fit runs the Monge patch procedure and then
// projects the recovered quadric onto its dominant principal
// direction; on a true parabolic cylinder the discarded principal
// value is zero and the reduction is exact.
type ParabolicCylinderFit struct {
	MongePatchFit
	alpha       float64    // quadratic coefficient a (half the curvature across q)
	uq          [3]float64 // rank-1 shape qqᵀ, packed q00, q01, q11
	ul          [2]float64 // linear part
	c0          float64
	orientation float64 // ±1, aligns the gradient with the base plane normal
}

// NewParabolicCylinderFit returns a parabolic cylinder fit using the
// given weight kernel.
func NewParabolicCylinderFit(kernel WeightFunc) *ParabolicCylinderFit {
	f := &ParabolicCylinderFit{}
	f.kernel = kernel
	return f
}

// Init resets the fit for an evaluation at evalPos.
func (f *ParabolicCylinderFit) Init(evalPos r3.Vector) {
	f.MongePatchFit.Init(evalPos)
	f.alpha = 0
	f.uq = [3]float64{}
	f.ul = [2]float64{}
	f.c0 = 0
	f.orientation = 1
}

// Finalize resolves the current pass; on the final pass the fitted
// quadric is reduced to its rank-1 cylinder form and the Monge
// coefficients are replaced by the reduced ones, so the inherited
// curvature accessors report the cylinder's curvatures.
func (f *ParabolicCylinderFit) Finalize() FitResult {
	res := f.MongePatchFit.Finalize()
	if res != Stable || !f.planeReady {
		return res
	}

	// Hessian of the fitted quadric.
	q := mat.NewSymDense(2, []float64{
		2 * f.x[0], f.x[2],
		f.x[2], 2 * f.x[1],
	})
	var eigen mat.EigenSym
	if ok := eigen.Factorize(q, true); !ok {
		f.state = Unstable
		return f.state
	}
	vals := eigen.Values(nil)
	var vecs mat.Dense
	eigen.VectorsTo(&vecs)

	col := 0
	if math.Abs(vals[1]) > math.Abs(vals[0]) {
		col = 1
	}
	lambda := vals[col]
	d0, d1 := vecs.At(0, col), vecs.At(1, col)

	f.alpha = lambda / 2
	f.uq = [3]float64{d0 * d0, d0 * d1, d1 * d1}
	f.ul = [2]float64{f.x[3], f.x[4]}
	f.c0 = f.x[5]

	// The gradient at the origin lifted to world space should agree
	// with the base plane normal.
	grad := f.LocalToWorldDir(r3.Vector{X: 1, Y: f.ul[0], Z: f.ul[1]})
	if grad.Dot(f.Normal()) < 0 {
		f.orientation = -1
	} else {
		f.orientation = 1
	}

	// Overwrite the quadric with its rank-1 reduction so curvature
	// accessors and evaluators agree with the cylinder.
	f.x[0] = f.alpha * f.uq[0]
	f.x[1] = f.alpha * f.uq[2]
	f.x[2] = 2 * f.alpha * f.uq[1]
	return f.state
}

// Alpha returns the coefficient a of the quadratic term a·((u,v)·q)².
// It is half the second derivative of the height field across q, not
// the curvature itself: z = x²/2 gives Alpha 0.5 and curvature 1.
func (f *ParabolicCylinderFit) Alpha() float64 { return f.alpha }

// evalCylinder evaluates the cylinder height field at (u, v).
func (f *ParabolicCylinderFit) evalCylinder(u, v float64) float64 {
	quad := f.uq[0]*u*u + 2*f.uq[1]*u*v + f.uq[2]*v*v
	return f.alpha*quad + f.ul[0]*u + f.ul[1]*v + f.c0
}

// Potential returns the oriented implicit value of the cylinder at q:
// zero on the surface, with sign fixed by the fit orientation.
func (f *ParabolicCylinderFit) Potential(q r3.Vector) float64 {
	local := f.WorldToLocal(q)
	return f.orientation*f.evalCylinder(local.Y, local.Z) - local.X
}

// Project moves q along the frame height axis onto the cylinder.
func (f *ParabolicCylinderFit) Project(q r3.Vector) r3.Vector {
	local := f.WorldToLocal(q)
	local.X = f.evalCylinder(local.Y, local.Z)
	return f.LocalToWorld(local)
}

// PrimitiveGradient returns the unnormalized surface normal of the
// cylinder at q, in world space: (1, -∂h/∂u, -∂h/∂v) in frame
// coordinates, multiplied by the fit orientation.
func (f *ParabolicCylinderFit) PrimitiveGradient(q r3.Vector) r3.Vector {
	local := f.WorldToLocal(q)
	du := f.ul[0] + 2*f.alpha*(f.uq[0]*local.Y+f.uq[1]*local.Z)
	dv := f.ul[1] + 2*f.alpha*(f.uq[1]*local.Y+f.uq[2]*local.Z)
	g := r3.Vector{X: 1, Y: -du, Z: -dv}.Mul(f.orientation)
	return f.LocalToWorldDir(g)
}

// DNormal returns the derivative of the cylinder's normal field at the
// evaluation point, expressed in world space: the anisotropic operator
// whose eigenstructure encodes the principal curvatures.
func (f *ParabolicCylinderFit) DNormal() *mat.Dense {
	u := f.KminDirection()
	v := f.KmaxDirection()
	n := f.PrimitiveGradient(f.evalPos)

	basis := mat.NewDense(3, 3, []float64{
		n.X, u.X, v.X,
		n.Y, u.Y, v.Y,
		n.Z, u.Z, v.Z,
	})

	dn := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 2 * f.alpha * f.uq[0], 2 * f.alpha * f.uq[1],
		0, 2 * f.alpha * f.uq[1], 2 * f.alpha * f.uq[2],
	})

	var out mat.Dense
	out.Product(basis, dn, basis.T())

	scale := f.LocalToWorldDir(r3.Vector{X: 1, Y: f.ul[0], Z: f.ul[1]}).Norm()
	if scale > 0 {
		out.Scale(1/scale, &out)
	}
	return &out
}
