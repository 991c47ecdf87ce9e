package ponca

import "github.com/golang/geo/r3"

// FitResult is the outcome of a fit's Finalize call and the state of
// the fit thereafter.
type FitResult int

const (
	// Undefined is the state of a fit before its first Finalize.
	Undefined FitResult = iota

	// Stable means the primitive is fitted and accessors are valid.
	Stable

	// Unstable means the neighborhood was degenerate (no weight, or a
	// rank-deficient system). Accessors return unspecified values.
	Unstable

	// NeedOtherPass means the fit requires the caller to stream the
	// complete neighborhood again and call Finalize once more.
	NeedOtherPass

	// ConflictErrorFound means two layers tried to provide the same
	// primitive.
	ConflictErrorFound

	// NotSupported means the requested operation cannot be performed
	// by this fit configuration.
	NotSupported
)

func (r FitResult) String() string {
	switch r {
	case Undefined:
		return "undefined"
	case Stable:
		return "stable"
	case Unstable:
		return "unstable"
	case NeedOtherPass:
		return "need_other_pass"
	case ConflictErrorFound:
		return "conflict_error_found"
	case NotSupported:
		return "not_supported"
	default:
		return "unknown"
	}
}

// maxFitPasses bounds the number of Finalize passes any fit may
// request. The Monge patch and the parabolic cylinder built on it need
// two; every other fit needs one.
const maxFitPasses = 2

// sumWeight is the root accumulator layer: it owns the weight kernel,
// the evaluation position, the accumulated weight and the fit state
// machine. Every fit embeds it (directly or through other layers).
type sumWeight struct {
	kernel  WeightFunc
	evalPos r3.Vector
	sumW    float64
	state   FitResult
	passes  int
}

func (f *sumWeight) init(evalPos r3.Vector) {
	f.evalPos = evalPos
	f.sumW = 0
	f.state = Undefined
	f.passes = 0
}

// weight computes the weight and local offset of a candidate neighbor.
// ok is false when the neighbor falls outside the kernel support.
func (f *sumWeight) weight(p Point) (w float64, localQ r3.Vector, ok bool) {
	localQ = p.Pos.Sub(f.evalPos)
	d2 := localQ.Norm2()
	r := f.kernel.Radius()
	if d2 >= r*r {
		return 0, localQ, false
	}
	w = f.kernel.Weight(d2)
	if w <= 0 {
		return 0, localQ, false
	}
	return w, localQ, true
}

func (f *sumWeight) addLocalNeighbor(w float64, _ r3.Vector, _ Point) bool {
	f.sumW += w
	return true
}

// finalizeBase advances the pass counter and resolves the base state:
// Unstable without any admitted weight, Stable otherwise.
func (f *sumWeight) finalizeBase() FitResult {
	f.passes++
	if f.sumW <= 0 {
		f.state = Unstable
	} else {
		f.state = Stable
	}
	return f.state
}

// SetKernel replaces the fit's weight kernel. Call before streaming
// neighbors; drivers that derive the kernel support from the
// neighborhood itself (see [FitKNearest]) use this once the support
// radius is known.
func (f *sumWeight) SetKernel(k WeightFunc) { f.kernel = k }

// EvalPos returns the evaluation position set by Init.
func (f *sumWeight) EvalPos() r3.Vector { return f.evalPos }

// SumWeight returns the accumulated neighbor weight.
func (f *sumWeight) SumWeight() float64 { return f.sumW }

// State returns the current fit state.
func (f *sumWeight) State() FitResult { return f.state }

// meanPosition accumulates the weighted mean of neighbor positions.
// Offsets are accumulated relative to the evaluation position to limit
// cancellation on far-from-origin clouds.
type meanPosition struct {
	sumWeight
	sumP r3.Vector
}

func (f *meanPosition) init(evalPos r3.Vector) {
	f.sumWeight.init(evalPos)
	f.sumP = r3.Vector{}
}

func (f *meanPosition) addLocalNeighbor(w float64, localQ r3.Vector, p Point) bool {
	if !f.sumWeight.addLocalNeighbor(w, localQ, p) {
		return false
	}
	f.sumP = f.sumP.Add(localQ.Mul(w))
	return true
}

// Barycenter returns the weighted average of the admitted neighbor
// positions, in world coordinates. Only meaningful when sumW > 0.
func (f *meanPosition) Barycenter() r3.Vector {
	return f.evalPos.Add(f.sumP.Mul(1 / f.sumW))
}

// meanNormal additionally accumulates the weighted mean of neighbor
// normals. Requires oriented points.
type meanNormal struct {
	meanPosition
	sumN r3.Vector
}

func (f *meanNormal) init(evalPos r3.Vector) {
	f.meanPosition.init(evalPos)
	f.sumN = r3.Vector{}
}

func (f *meanNormal) addLocalNeighbor(w float64, localQ r3.Vector, p Point) bool {
	if !f.meanPosition.addLocalNeighbor(w, localQ, p) {
		return false
	}
	f.sumN = f.sumN.Add(p.Normal.Mul(w))
	return true
}

// covariance accumulates the weighted second moment of neighbor
// offsets. The centered covariance about the barycenter is derived at
// finalize time as E[qqᵀ] - mmᵀ.
type covariance struct {
	meanPosition
	// moments is the symmetric second-moment matrix in packed order
	// xx, xy, xz, yy, yz, zz.
	moments [6]float64
}

func (f *covariance) init(evalPos r3.Vector) {
	f.meanPosition.init(evalPos)
	f.moments = [6]float64{}
}

func (f *covariance) addLocalNeighbor(w float64, localQ r3.Vector, p Point) bool {
	if !f.meanPosition.addLocalNeighbor(w, localQ, p) {
		return false
	}
	f.moments[0] += w * localQ.X * localQ.X
	f.moments[1] += w * localQ.X * localQ.Y
	f.moments[2] += w * localQ.X * localQ.Z
	f.moments[3] += w * localQ.Y * localQ.Y
	f.moments[4] += w * localQ.Y * localQ.Z
	f.moments[5] += w * localQ.Z * localQ.Z
	return true
}

// covarianceMatrix returns the centered covariance as a dense
// row-major 3x3. Only meaningful when sumW > 0.
func (f *covariance) covarianceMatrix() [9]float64 {
	m := f.sumP.Mul(1 / f.sumW)
	cxx := f.moments[0]/f.sumW - m.X*m.X
	cxy := f.moments[1]/f.sumW - m.X*m.Y
	cxz := f.moments[2]/f.sumW - m.X*m.Z
	cyy := f.moments[3]/f.sumW - m.Y*m.Y
	cyz := f.moments[4]/f.sumW - m.Y*m.Z
	czz := f.moments[5]/f.sumW - m.Z*m.Z
	return [9]float64{
		cxx, cxy, cxz,
		cxy, cyy, cyz,
		cxz, cyz, czz,
	}
}
