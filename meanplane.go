package ponca

import "github.com/golang/geo/r3"

// MeanPlaneFit fits a plane from oriented points: the normal is the
// weighted mean of the neighbor normals and the plane passes through
// the neighborhood barycenter. One pass; requires point normals.
type MeanPlaneFit struct {
	meanNormal
	planeFrame
}

// NewMeanPlaneFit returns a mean plane fit using the given weight
// kernel.
func NewMeanPlaneFit(kernel WeightFunc) *MeanPlaneFit {
	f := &MeanPlaneFit{}
	f.kernel = kernel
	return f
}

// Init resets the fit for an evaluation at evalPos.
func (f *MeanPlaneFit) Init(evalPos r3.Vector) {
	f.meanNormal.init(evalPos)
	f.planeFrame.reset()
}

// AddNeighbor weighs p against the evaluation position and accumulates
// it. Reports whether the sample was admitted.
func (f *MeanPlaneFit) AddNeighbor(p Point) bool {
	w, localQ, ok := f.weight(p)
	if !ok {
		return false
	}
	return f.AddLocalNeighbor(w, localQ, p)
}

// AddLocalNeighbor accumulates a pre-weighted sample.
func (f *MeanPlaneFit) AddLocalNeighbor(w float64, localQ r3.Vector, p Point) bool {
	return f.meanNormal.addLocalNeighbor(w, localQ, p)
}

// Finalize resolves the plane and its tangent frame.
//
// If a plane was already set when Finalize runs (a second Finalize
// without Init), the state becomes ConflictErrorFound; the plane is
// still overwritten with the freshly computed one. This mirrors the
// historical behavior of the algorithm this fit derives from.
func (f *MeanPlaneFit) Finalize() FitResult {
	if f.finalizeBase() == Stable {
		if f.planePrimitive.IsValid() {
			f.state = ConflictErrorFound
		}
		if f.setPlane(f.sumN.Mul(1/f.sumW), f.Barycenter()) {
			f.setFrame(f.Barycenter())
		} else {
			// Degenerate normals (for example unoriented input) leave
			// no plane to report.
			f.state = Unstable
		}
	}
	return f.state
}
