package ponca

import (
	"math"
	"testing"
)

// channelNear reports whether two channel values agree within the
// rounding slack of the Luv round trip.
func channelNear(a, b uint8) bool {
	d := int(a) - int(b)
	return d >= -2 && d <= 2
}

func TestColorizeScalar_Endpoints(t *testing.T) {
	vals := []float64{0, 0.25, 0.5, 0.75, 1}
	cols := ColorizeScalar(vals)
	if len(cols) != len(vals) {
		t.Fatalf("got %d colors, want %d", len(cols), len(vals))
	}

	lr, lg, lb := rampLow.RGB255()
	hr, hg, hb := rampHigh.RGB255()
	if c := cols[0]; !channelNear(c.R, lr) || !channelNear(c.G, lg) || !channelNear(c.B, lb) {
		t.Errorf("minimum value color = %v, want ramp low %v,%v,%v", c, lr, lg, lb)
	}
	if c := cols[len(cols)-1]; !channelNear(c.R, hr) || !channelNear(c.G, hg) || !channelNear(c.B, hb) {
		t.Errorf("maximum value color = %v, want ramp high %v,%v,%v", c, hr, hg, hb)
	}
	for _, c := range cols {
		if c.A != 255 {
			t.Errorf("alpha = %d, want 255", c.A)
		}
	}
}

func TestColorizeScalar_ConstantAndNonFinite(t *testing.T) {
	cols := ColorizeScalar([]float64{3, 3, 3})
	for i := 1; i < len(cols); i++ {
		if cols[i] != cols[0] {
			t.Fatal("constant field produced differing colors")
		}
	}

	cols = ColorizeScalar([]float64{0, math.NaN(), 1, math.Inf(1)})
	if cols[1] != cols[0] {
		t.Errorf("NaN color = %v, want the low-end color %v", cols[1], cols[0])
	}
	if cols[3] != cols[0] {
		t.Errorf("Inf color = %v, want the low-end color %v", cols[3], cols[0])
	}
}

func TestColorizeCloud(t *testing.T) {
	cloud := Cloud{NewPoint(0, 0, 0), NewPoint(1, 0, 0), NewPoint(2, 0, 0)}
	colored := ColorizeCloud(cloud, []float64{0, 0.5, 1})

	if len(colored) != len(cloud) {
		t.Fatalf("got %d points, want %d", len(colored), len(cloud))
	}
	for i := range colored {
		if colored[i].Pos != cloud[i].Pos {
			t.Errorf("point %d position changed", i)
		}
	}
	// The original cloud is untouched.
	if cloud[1].Color.A != 0 {
		t.Error("ColorizeCloud mutated its input")
	}
	if colored[0].Color == colored[2].Color {
		t.Error("distinct field values mapped to the same color")
	}
}
