package rotaryclub

import "math"

const (
	// coherenceSubWindows is how many pieces the window is cut into for
	// the phase-stability metric.
	coherenceSubWindows = 4

	// strengthRefTauS is the release time constant of the peak-hold
	// reference the signal-strength ratio is measured against.
	strengthRefTauS = 2.0
)

// Correlator estimates the Doppler phase by mixing the window against
// quadrature references at the tracker frequency.  More noise-robust than
// zero-crossing timing at slightly higher cost.
type Correlator struct {
	sampleRate float64
	refPower   float64 // peak-hold signal power reference
}

// NewCorrelator builds the default phase estimator.
func NewCorrelator(sampleRate float64) *Correlator {
	return &Correlator{sampleRate: sampleRate}
}

// iqPhase correlates buf against quadrature references whose phase is
// theta0 + omega*n and returns the recovered bearing angle plus the raw
// sums.  For a tone sin(theta - beta):  I = -W/2*sin(beta), Q = W/2*cos(beta),
// so beta = atan2(-I, Q).
func iqPhase(buf []float64, theta0, omega float64) (beta, i, q float64) {
	sinT, cosT := math.Sincos(theta0)
	sinD, cosD := math.Sincos(omega)
	for _, x := range buf {
		i += x * cosT
		q += x * sinT
		// Advance the reference by one sample with a complex rotation.
		cosT, sinT = cosT*cosD-sinT*sinD, sinT*cosD+cosT*sinD
	}
	return wrapTwoPi(math.Atan2(-i, q)), i, q
}

// Estimate implements PhaseEstimator.
func (c *Correlator) Estimate(window []float64, start float64, ref NorthTracker, correction float64) (PhaseEstimate, bool) {
	w := len(window)
	if w < coherenceSubWindows || !ref.Ready() {
		return PhaseEstimate{}, false
	}

	omega := ref.Omega()
	theta0 := ref.PhaseAt(start)
	if !isFinite(omega) || omega <= 0 || !isFinite(theta0) {
		return PhaseEstimate{}, false
	}

	beta, i, q := iqPhase(window, theta0, omega)

	n := float64(w)
	signalPower := (i*i + q*q) / (n * n)
	if !isFinite(signalPower) || signalPower < powerEpsilon {
		return PhaseEstimate{}, false
	}

	// Residual after subtracting the reconstructed tone.
	var residual float64
	sinT, cosT := math.Sincos(theta0)
	sinD, cosD := math.Sincos(omega)
	for _, x := range window {
		r := (i*cosT + q*sinT) * 2 / n
		d := x - r
		residual += d * d
		cosT, sinT = cosT*cosD-sinT*sinD, sinT*cosD+cosT*sinD
	}
	residual /= n
	snrDB := 10 * math.Log10(signalPower/math.Max(residual, powerEpsilon))

	coherence := c.coherence(window, theta0, omega)

	// Strength against a slowly-released peak hold of the signal power.
	decay := math.Exp(-n / (c.sampleRate * strengthRefTauS))
	c.refPower *= decay
	if signalPower > c.refPower {
		c.refPower = signalPower
	}
	strength := clamp01(signalPower / math.Max(c.refPower, powerEpsilon))

	return PhaseEstimate{
		Phase:     wrapTwoPi(beta + correction),
		SNRdB:     snrDB,
		Coherence: coherence,
		Strength:  strength,
	}, true
}

// coherence splits the window into sub-windows, measures the phase of each
// and returns the resultant length of the unit vectors: 1 for a perfectly
// stable tone, near 0 for noise.
func (c *Correlator) coherence(window []float64, theta0, omega float64) float64 {
	size := len(window) / coherenceSubWindows
	if size == 0 {
		return 0
	}

	var sumSin, sumCos float64
	for s := 0; s < coherenceSubWindows; s++ {
		sub := window[s*size : (s+1)*size]
		phi, _, _ := iqPhase(sub, theta0+omega*float64(s*size), omega)
		sumSin += math.Sin(phi)
		sumCos += math.Cos(phi)
	}
	return clamp01(math.Hypot(sumSin, sumCos) / coherenceSubWindows)
}

// Reset clears the strength reference.
func (c *Correlator) Reset() { c.refPower = 0 }
