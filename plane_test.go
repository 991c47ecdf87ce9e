package ponca

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
)

func TestCovariancePlaneFit_CoplanarPoints(t *testing.T) {
	rng := rand.New(rand.NewSource(40))
	cloud := planeCloud(rng, 500)

	fit := NewCovariancePlaneFit(SmoothKernel{R: 3})
	res, err := FitNeighborhood(fit, cloud, r3.Vector{}, allIndices(len(cloud)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != Stable {
		t.Fatalf("Finalize = %v, want Stable", res)
	}

	n := fit.Normal()
	if math.Abs(math.Abs(n.Z)-1) > 1e-6 {
		t.Errorf("normal = %v, want ±(0,0,1)", n)
	}

	u, v := fit.U(), fit.V()
	if math.Abs(u.Dot(v)) > 1e-6 {
		t.Errorf("u·v = %v, want 0", u.Dot(v))
	}
	if math.Abs(u.Dot(n)) > 1e-6 || math.Abs(v.Dot(n)) > 1e-6 {
		t.Error("tangent frame not orthogonal to the normal")
	}
	if math.Abs(u.Norm()-1) > 1e-9 || math.Abs(v.Norm()-1) > 1e-9 {
		t.Error("tangent frame not unit length")
	}

	if sv := fit.SurfaceVariation(); sv > 1e-9 {
		t.Errorf("SurfaceVariation on a plane = %v, want ~0", sv)
	}
}

func TestCovariancePlaneFit_PotentialAndProject(t *testing.T) {
	rng := rand.New(rand.NewSource(41))
	cloud := planeCloud(rng, 300)

	fit := NewCovariancePlaneFit(SmoothKernel{R: 3})
	res, err := FitNeighborhood(fit, cloud, r3.Vector{}, allIndices(len(cloud)))
	if err != nil || res != Stable {
		t.Fatalf("fit failed: res=%v err=%v", res, err)
	}

	q := r3.Vector{X: 0.3, Y: -0.1, Z: 0.7}
	if d := math.Abs(math.Abs(fit.planePrimitive.Potential(q)) - 0.7); d > 1e-6 {
		t.Errorf("|Potential| off plane distance by %v", d)
	}
	proj := fit.planePrimitive.Project(q)
	if math.Abs(proj.Z) > 1e-6 {
		t.Errorf("Project landed at z = %v, want 0", proj.Z)
	}
	if onPlane := fit.planePrimitive.Potential(proj); math.Abs(onPlane) > 1e-9 {
		t.Errorf("projected point potential = %v, want 0", onPlane)
	}
}

func TestCovariancePlaneFit_CollinearIsUnstable(t *testing.T) {
	cloud := make(Cloud, 20)
	for i := range cloud {
		cloud[i] = NewPoint(float64(i)*0.05, 0, 0)
	}

	fit := NewCovariancePlaneFit(ConstantKernel{R: 10})
	res, err := FitNeighborhood(fit, cloud, r3.Vector{}, allIndices(len(cloud)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != Unstable {
		t.Errorf("fit on collinear points = %v, want Unstable", res)
	}
}

func TestPlaneFrame_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	cloud := planeCloud(rng, 300)

	fit := NewCovariancePlaneFit(SmoothKernel{R: 3})
	if res, err := FitNeighborhood(fit, cloud, r3.Vector{}, allIndices(len(cloud))); err != nil || res != Stable {
		t.Fatalf("fit failed: res=%v err=%v", res, err)
	}

	for trial := 0; trial < 20; trial++ {
		q := r3.Vector{X: rng.Float64(), Y: rng.Float64(), Z: rng.Float64()}
		back := fit.LocalToWorld(fit.WorldToLocal(q))
		if back.Sub(q).Norm() > 1e-9 {
			t.Fatalf("world/local round trip moved %v to %v", q, back)
		}

		dir := r3.Vector{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
		backDir := fit.LocalToWorldDir(fit.WorldToLocalDir(dir))
		if backDir.Sub(dir).Norm() > 1e-9 {
			t.Fatalf("direction round trip moved %v to %v", dir, backDir)
		}
	}
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
