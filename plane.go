package ponca

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// planePrimitive is the implicit plane n·x + d = 0 with unit normal.
type planePrimitive struct {
	n     r3.Vector
	d     float64
	valid bool
}

func (p *planePrimitive) reset() {
	*p = planePrimitive{}
}

// setPlane normalizes n and anchors the plane at the given point.
// A zero normal leaves the plane invalid.
func (p *planePrimitive) setPlane(n, point r3.Vector) bool {
	norm := n.Norm()
	if norm == 0 || math.IsNaN(norm) {
		p.valid = false
		return false
	}
	p.n = n.Mul(1 / norm)
	p.d = -p.n.Dot(point)
	p.valid = true
	return true
}

// IsValid reports whether a plane has been set.
func (p *planePrimitive) IsValid() bool { return p.valid }

// Normal returns the unit plane normal.
func (p *planePrimitive) Normal() r3.Vector { return p.n }

// Offset returns the plane offset d of the implicit form n·x + d = 0.
func (p *planePrimitive) Offset() float64 { return p.d }

// Potential returns the signed distance from q to the plane.
func (p *planePrimitive) Potential(q r3.Vector) float64 {
	return p.n.Dot(q) + p.d
}

// Project returns the orthogonal projection of q onto the plane.
func (p *planePrimitive) Project(q r3.Vector) r3.Vector {
	return q.Sub(p.n.Mul(p.Potential(q)))
}

// planeFrame extends the plane with an orthonormal tangent basis
// (u, v) and a frame origin, giving world/local coordinate transforms.
// Local coordinates are (h, u, v) with h the signed height along the
// plane normal.
type planeFrame struct {
	planePrimitive
	u, v   r3.Vector
	origin r3.Vector
}

func (f *planeFrame) reset() {
	*f = planeFrame{}
}

// setFrame anchors the frame at origin and derives the tangent basis
// from the plane normal: the in-plane helper axis is (-n.y, n.x, 0)
// when |n.x| > |n.z| and (0, -n.z, n.y) otherwise, then the basis is
// completed by cross products.
func (f *planeFrame) setFrame(origin r3.Vector) {
	f.origin = origin
	n := f.n
	var a r3.Vector
	if math.Abs(n.X) > math.Abs(n.Z) {
		a = r3.Vector{X: -n.Y, Y: n.X, Z: 0}
	} else {
		a = r3.Vector{X: 0, Y: -n.Z, Z: n.Y}
	}
	a = a.Normalize()
	f.u = n.Cross(a).Normalize()
	f.v = n.Cross(f.u).Normalize()
}

// U returns the first tangent basis vector.
func (f *planeFrame) U() r3.Vector { return f.u }

// V returns the second tangent basis vector.
func (f *planeFrame) V() r3.Vector { return f.v }

// WorldToLocal expresses a world position in frame coordinates
// (height, u, v).
func (f *planeFrame) WorldToLocal(q r3.Vector) r3.Vector {
	rel := q.Sub(f.origin)
	return r3.Vector{X: f.n.Dot(rel), Y: f.u.Dot(rel), Z: f.v.Dot(rel)}
}

// LocalToWorld maps frame coordinates (height, u, v) back to a world
// position.
func (f *planeFrame) LocalToWorld(l r3.Vector) r3.Vector {
	return f.origin.Add(f.n.Mul(l.X)).Add(f.u.Mul(l.Y)).Add(f.v.Mul(l.Z))
}

// LocalToWorldDir maps a tangent-space direction to world space,
// omitting the frame translation.
func (f *planeFrame) LocalToWorldDir(l r3.Vector) r3.Vector {
	return f.n.Mul(l.X).Add(f.u.Mul(l.Y)).Add(f.v.Mul(l.Z))
}

// WorldToLocalDir expresses a world direction in frame coordinates,
// omitting the frame translation.
func (f *planeFrame) WorldToLocalDir(d r3.Vector) r3.Vector {
	return r3.Vector{X: f.n.Dot(d), Y: f.u.Dot(d), Z: f.v.Dot(d)}
}

// CovariancePlaneFit fits a plane by weighted principal component
// analysis: the plane passes through the neighborhood barycenter and
// its normal is the eigenvector of the smallest covariance eigenvalue.
// One pass; does not require point normals.
type CovariancePlaneFit struct {
	covariance
	planeFrame
	eigenvalues [3]float64
}

// NewCovariancePlaneFit returns a covariance plane fit using the given
// weight kernel.
func NewCovariancePlaneFit(kernel WeightFunc) *CovariancePlaneFit {
	f := &CovariancePlaneFit{}
	f.kernel = kernel
	return f
}

// Init resets the fit for an evaluation at evalPos.
func (f *CovariancePlaneFit) Init(evalPos r3.Vector) {
	f.covariance.init(evalPos)
	f.planeFrame.reset()
	f.eigenvalues = [3]float64{}
}

// AddNeighbor weighs p against the evaluation position and accumulates
// it. Reports whether the sample was admitted.
func (f *CovariancePlaneFit) AddNeighbor(p Point) bool {
	w, localQ, ok := f.weight(p)
	if !ok {
		return false
	}
	return f.AddLocalNeighbor(w, localQ, p)
}

// AddLocalNeighbor accumulates a pre-weighted sample.
func (f *CovariancePlaneFit) AddLocalNeighbor(w float64, localQ r3.Vector, p Point) bool {
	return f.covariance.addLocalNeighbor(w, localQ, p)
}

// Finalize resolves the plane. Unstable when no weight was admitted,
// when the eigendecomposition fails, or when the covariance is rank
// deficient (collinear neighborhoods have no unique plane).
func (f *CovariancePlaneFit) Finalize() FitResult {
	if f.finalizeBase() != Stable {
		return f.state
	}

	cov := f.covarianceMatrix()
	var eigen mat.EigenSym
	if ok := eigen.Factorize(mat.NewSymDense(3, cov[:]), true); !ok {
		f.state = Unstable
		return f.state
	}

	vals := eigen.Values(nil)
	copy(f.eigenvalues[:], vals)
	if vals[2] <= 0 || vals[1] <= 1e-12*vals[2] {
		f.state = Unstable
		return f.state
	}

	var vecs mat.Dense
	eigen.VectorsTo(&vecs)
	normal := r3.Vector{X: vecs.At(0, 0), Y: vecs.At(1, 0), Z: vecs.At(2, 0)}

	f.setPlane(normal, f.Barycenter())
	f.setFrame(f.Barycenter())
	return f.state
}

// SurfaceVariation returns the ratio of the smallest covariance
// eigenvalue to the eigenvalue sum. Near 0 on locally flat
// neighborhoods, larger on curved or noisy ones.
func (f *CovariancePlaneFit) SurfaceVariation() float64 {
	sum := f.eigenvalues[0] + f.eigenvalues[1] + f.eigenvalues[2]
	if sum <= 0 {
		return 0
	}
	return f.eigenvalues[0] / sum
}
