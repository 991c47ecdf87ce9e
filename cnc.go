package ponca

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// cncEpsilon approximates zero in the spherical-triangle degeneracy
// tests.
const cncEpsilon = 1e-8

// CNCTriangle is a triangle with a corrected normal at each vertex,
// the input of the corrected-normal-current curvature measures. The
// measures are distributional: summed over a triangulation they
// integrate area (mu0), mean curvature (mu1), Gaussian curvature (mu2)
// and the anisotropic curvature tensor (muXY) of the underlying
// surface.
type CNCTriangle struct {
	A, B, C    r3.Vector // vertex positions
	UA, UB, UC r3.Vector // corrected normals at the vertices
}

// interpolatedNormal returns the mean corrected normal of the
// triangle, optionally unitized.
func (t CNCTriangle) interpolatedNormal(unit bool) r3.Vector {
	um := t.UA.Add(t.UB).Add(t.UC).Mul(1.0 / 3.0)
	if unit {
		if n := um.Norm(); n != 0 {
			um = um.Mul(1 / n)
		}
	}
	return um
}

// Mu0 returns the area measure of the triangle. unit selects whether
// the interpolated corrected normal is unitized first.
func (t CNCTriangle) Mu0(unit bool) float64 {
	um := t.interpolatedNormal(unit)
	return 0.5 * t.B.Sub(t.A).Cross(t.C.Sub(t.A)).Dot(um)
}

// Mu1 returns the mean-curvature measure of the triangle.
func (t CNCTriangle) Mu1(unit bool) float64 {
	um := t.interpolatedNormal(unit)
	return 0.25 * (um.Cross(t.UC.Sub(t.UB)).Dot(t.A) +
		um.Cross(t.UA.Sub(t.UC)).Dot(t.B) +
		um.Cross(t.UB.Sub(t.UA)).Dot(t.C))
}

// Mu2 returns the Gaussian-curvature measure of the triangle. With
// unit normals this is the signed area of the spherical triangle they
// span; otherwise it is half the determinant of the three normals.
func (t CNCTriangle) Mu2(unit bool) float64 {
	if unit {
		return sphericalAlgebraicArea(t.UA, t.UB, t.UC)
	}
	return 0.5 * t.UA.Cross(t.UB).Dot(t.UC)
}

// MuXY returns the anisotropic curvature measure of the triangle as a
// row-major 3x3 tensor.
func (t CNCTriangle) MuXY(unit bool) [3][3]float64 {
	um := t.interpolatedNormal(unit)
	uac := t.UC.Sub(t.UA)
	uab := t.UB.Sub(t.UA)
	ab := t.B.Sub(t.A)
	ac := t.C.Sub(t.A)

	var out [3][3]float64
	for i := 0; i < 3; i++ {
		var e r3.Vector
		switch i {
		case 0:
			e = r3.Vector{X: 1}
		case 1:
			e = r3.Vector{Y: 1}
		default:
			e = r3.Vector{Z: 1}
		}
		eab := e.Cross(ab)
		eac := e.Cross(ac)
		for j := 0; j < 3; j++ {
			out[i][j] = 0.5 * um.Dot(eab.Mul(coord(uac, j)).Sub(eac.Mul(coord(uab, j))))
		}
	}
	return out
}

// CurvaturesFromTensor extracts principal curvatures and directions
// from an integrated muXY tensor. The tensor is symmetrized, the
// normal direction is suppressed by adding 1000·area·nnᵀ, and the
// remaining eigenpairs are returned with eigenvalues negated to match
// the curvature sign convention: k1 <= k2 with their directions d1,
// d2. On eigendecomposition failure all results are zero.
func CurvaturesFromTensor(tensor [3][3]float64, area float64, n r3.Vector) (k1, k2 float64, d1, d2 r3.Vector) {
	coefN := 1000.0 * area
	nv := [3]float64{n.X, n.Y, n.Z}

	sym := make([]float64, 9)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			sym[i*3+j] = 0.5*(tensor[i][j]+tensor[j][i]) + coefN*nv[i]*nv[j]
		}
	}

	var eigen mat.EigenSym
	if ok := eigen.Factorize(mat.NewSymDense(3, sym), true); !ok {
		return 0, 0, r3.Vector{}, r3.Vector{}
	}
	vals := eigen.Values(nil)
	var vecs mat.Dense
	eigen.VectorsTo(&vecs)

	// Eigenvalues ascend, so columns 0 and 1 are the two non-normal
	// directions (the normal got the large added eigenvalue). Negation
	// reverses their order: column 1 gives the smaller curvature.
	d1 = r3.Vector{X: vecs.At(0, 1), Y: vecs.At(1, 1), Z: vecs.At(2, 1)}
	d2 = r3.Vector{X: vecs.At(0, 0), Y: vecs.At(1, 0), Z: vecs.At(2, 0)}
	return -vals[1], -vals[0], d1, d2
}

// --- spherical triangle ---

// sphericalIsDegenerate reports whether the spherical triangle abc is
// too small or too thin for its area to be meaningful.
func sphericalIsDegenerate(a, b, c r3.Vector) bool {
	d := [3]float64{a.Sub(b).Norm(), a.Sub(c).Norm(), b.Sub(c).Norm()}
	if d[0] < cncEpsilon || d[1] < cncEpsilon || d[2] < cncEpsilon {
		return true
	}
	// Flat: the largest edge equals the sum of the other two.
	m := 0
	if d[1] > d[m] {
		m = 1
	}
	if d[2] > d[m] {
		m = 2
	}
	return math.Abs(d[m]-d[(m+1)%3]-d[(m+2)%3]) < cncEpsilon
}

// polarTriangle returns the polar triangle of abc, reoriented toward
// the original vertices.
func polarTriangle(a, b, c r3.Vector) (ap, bp, cp r3.Vector) {
	ap = b.Cross(c)
	bp = c.Cross(a)
	cp = a.Cross(b)
	if ap.Dot(a) < 0 {
		ap = ap.Mul(-1)
	}
	if bp.Dot(b) < 0 {
		bp = bp.Mul(-1)
	}
	if cp.Dot(c) < 0 {
		cp = cp.Mul(-1)
	}
	return ap, bp, cp
}

// sphericalInteriorAngles returns, for each vertex of the spherical
// triangle abc, the angle between the two polar-triangle vertices that
// bound it. Each value is pi minus the interior angle at that vertex,
// so the spherical excess is 2π minus their sum.
func sphericalInteriorAngles(a, b, c r3.Vector) (alpha, beta, gamma float64) {
	ta, tb, tc := polarTriangle(a, b, c)
	na, nb, nc := ta.Norm(), tb.Norm(), tc.Norm()
	if na == 0 || nb == 0 || nc == 0 {
		return 0, 0, 0
	}
	ta = ta.Mul(1 / na)
	tb = tb.Mul(1 / nb)
	tc = tc.Mul(1 / nc)

	clamp := func(x float64) float64 { return math.Max(-1, math.Min(1, x)) }
	alpha = math.Acos(clamp(tb.Dot(tc)))
	beta = math.Acos(clamp(tc.Dot(ta)))
	gamma = math.Acos(clamp(ta.Dot(tb)))
	return alpha, beta, gamma
}

// sphericalArea returns the unsigned area of the spherical triangle
// abc (below 2π), or 0 when degenerate.
func sphericalArea(a, b, c r3.Vector) float64 {
	if sphericalIsDegenerate(a, b, c) {
		return 0
	}
	alpha, beta, gamma := sphericalInteriorAngles(a, b, c)
	if math.Abs(alpha) < cncEpsilon || math.Abs(beta) < cncEpsilon || math.Abs(gamma) < cncEpsilon {
		return 0
	}
	return 2*math.Pi - alpha - beta - gamma
}

// sphericalAlgebraicArea returns the signed area of the spherical
// triangle abc. The sign follows the orientation of the triangle as
// seen from the origin.
func sphericalAlgebraicArea(a, b, c r3.Vector) float64 {
	s := sphericalArea(a, b, c)
	m := a.Add(b).Add(c)
	x := b.Sub(a).Cross(c.Sub(a))
	l1 := func(v r3.Vector) float64 { return math.Abs(v.X) + math.Abs(v.Y) + math.Abs(v.Z) }
	if l1(m) <= cncEpsilon || l1(x) <= cncEpsilon {
		return 0
	}
	if m.Dot(x) < 0 {
		return -s
	}
	return s
}
