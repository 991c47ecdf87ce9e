package ponca

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// colorize ramp endpoints: cool for low field values, warm for high.
var (
	rampLow, _  = colorful.Hex("#2c7bb6")
	rampHigh, _ = colorful.Hex("#d7191c")
)

// ColorizeScalar maps a scalar field over a cloud to vertex colors on
// a perceptually blended cool-to-warm ramp, for visual debugging of
// curvature fields. Non-finite values get the low-end color. When the
// field is constant all points get the low-end color.
func ColorizeScalar(vals []float64) []color.NRGBA {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	out := make([]color.NRGBA, len(vals))
	span := hi - lo
	for i, v := range vals {
		t := 0.0
		if span > 0 && !math.IsNaN(v) && !math.IsInf(v, 0) {
			t = (v - lo) / span
		}
		c := rampLow.BlendLuv(rampHigh, t).Clamped()
		r, g, b := c.RGB255()
		out[i] = color.NRGBA{R: r, G: g, B: b, A: 255}
	}
	return out
}

// ColorizeCloud returns a copy of the cloud with vertex colors from
// ColorizeScalar applied. vals must have one entry per point.
func ColorizeCloud(cloud Cloud, vals []float64) Cloud {
	cols := ColorizeScalar(vals)
	out := make(Cloud, len(cloud))
	for i, p := range cloud {
		p.Color = cols[i]
		out[i] = p
	}
	return out
}
