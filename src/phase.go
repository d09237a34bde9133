package rotaryclub

import "math"

// wrapPi wraps an angle into (-pi, pi].
func wrapPi(x float64) float64 {
	x = math.Mod(x, 2*math.Pi)
	if x > math.Pi {
		x -= 2 * math.Pi
	} else if x <= -math.Pi {
		x += 2 * math.Pi
	}
	return x
}

// wrapTwoPi wraps an angle into [0, 2*pi).
func wrapTwoPi(x float64) float64 {
	x = math.Mod(x, 2*math.Pi)
	if x < 0 {
		x += 2 * math.Pi
	}
	return x
}

// wrapDeg wraps a bearing into [0, 360).
func wrapDeg(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

// CircularMeanDeg returns the circular mean of bearings in degrees, in
// [0, 360).  ok is false when the inputs cancel out (or the slice is empty)
// and no direction is defined.
func CircularMeanDeg(degs []float64) (mean float64, ok bool) {
	var sumSin, sumCos float64
	for _, d := range degs {
		r := d * math.Pi / 180
		sumSin += math.Sin(r)
		sumCos += math.Cos(r)
	}
	if math.Hypot(sumSin, sumCos) < 1e-12 {
		return 0, false
	}
	return wrapDeg(math.Atan2(sumSin, sumCos) * 180 / math.Pi), true
}

// AngleErrorDeg returns the signed shortest angular distance a-b in
// (-180, 180].
func AngleErrorDeg(a, b float64) float64 {
	e := math.Mod(a-b, 360)
	if e > 180 {
		e -= 360
	} else if e <= -180 {
		e += 360
	}
	return e
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
