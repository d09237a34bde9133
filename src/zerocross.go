package rotaryclub

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// zcCoherenceScale converts the relative period spread into the coherence
// metric: coherence = 1 - scale * std(T)/mean(T).
const zcCoherenceScale = 4.0

// singleCrossingCoherence is reported when only one crossing exists and no
// spread can be measured.
const singleCrossingCoherence = 0.5

// ZeroCrossDetector finds hysteresis-gated positive-going zero crossings.
// The detector arms below -hysteresis and fires above +hysteresis, so noise
// wandering around zero cannot trigger it.
type ZeroCrossDetector struct {
	hysteresis float64
	armed      bool
}

// NewZeroCrossDetector builds a detector with the given gate threshold.
func NewZeroCrossDetector(hysteresis float64) *ZeroCrossDetector {
	return &ZeroCrossDetector{hysteresis: hysteresis}
}

// Crossings returns the interpolated positions of all rising crossings in
// buf, as fractional indices into buf.
func (z *ZeroCrossDetector) Crossings(buf []float64) []float64 {
	var out []float64
	for i := 1; i < len(buf); i++ {
		s := buf[i]
		if s < -z.hysteresis {
			z.armed = true
		}
		if z.armed && s > z.hysteresis {
			z.armed = false
			prev := buf[i-1]
			den := s - prev
			if math.Abs(den) > 1e-12 {
				out = append(out, float64(i)-s/den)
			} else {
				out = append(out, float64(i))
			}
		}
	}
	return out
}

// Reset disarms the detector.
func (z *ZeroCrossDetector) Reset() { z.armed = false }

// ZeroCrossEstimator measures the Doppler phase from the timing of zero
// crossings relative to the tracked north phase.  Cheaper than the
// correlator and about as accurate on clean signals, less robust in noise.
type ZeroCrossEstimator struct {
	det *ZeroCrossDetector
}

// NewZeroCrossEstimator builds the zero-crossing phase estimator.
func NewZeroCrossEstimator(hysteresis float64) *ZeroCrossEstimator {
	return &ZeroCrossEstimator{det: NewZeroCrossDetector(hysteresis)}
}

// Estimate implements PhaseEstimator.
func (z *ZeroCrossEstimator) Estimate(window []float64, start float64, ref NorthTracker, correction float64) (PhaseEstimate, bool) {
	if len(window) == 0 || !ref.Ready() {
		return PhaseEstimate{}, false
	}

	omega := ref.Omega()
	if !isFinite(omega) || omega <= 0 {
		return PhaseEstimate{}, false
	}
	period := 2 * math.Pi / omega

	z.det.Reset()
	crossings := z.det.Crossings(window)
	if len(crossings) == 0 {
		return PhaseEstimate{}, false
	}

	// A rising crossing of sin(theta - beta) happens at theta = beta, so
	// the tracked phase at each crossing is a direct bearing measurement.
	// Vector-average them to stay sane across the wrap.
	var sumSin, sumCos float64
	for _, c := range crossings {
		angle := ref.PhaseAt(start + c)
		sumSin += math.Sin(angle)
		sumCos += math.Cos(angle)
	}
	beta := wrapTwoPi(math.Atan2(sumSin, sumCos))

	coherence := singleCrossingCoherence
	if len(crossings) >= 2 {
		periods := make([]float64, len(crossings)-1)
		for i := 1; i < len(crossings); i++ {
			periods[i-1] = crossings[i] - crossings[i-1]
		}
		mean := stat.Mean(periods, nil)
		sd := 0.0
		if len(periods) >= 2 {
			sd = stat.StdDev(periods, nil)
		}
		if mean > 1e-9 {
			coherence = clamp01(1 - zcCoherenceScale*sd/mean)
		} else {
			coherence = 0
		}
	}

	expected := float64(len(window)) / period
	strength := 0.0
	if expected > 0 {
		strength = clamp01(float64(len(crossings)) / expected)
	}

	snrDB := z.fitSNR(window, start, ref, beta)

	return PhaseEstimate{
		Phase:     wrapTwoPi(beta + correction),
		SNRdB:     snrDB,
		Coherence: coherence,
		Strength:  strength,
	}, true
}

// fitSNR projects the window onto the ideal sinusoid at the estimated phase
// and period; the regression residual approximates the noise power.
func (z *ZeroCrossEstimator) fitSNR(window []float64, start float64, ref NorthTracker, beta float64) float64 {
	omega := ref.Omega()
	theta := ref.PhaseAt(start)

	var projection, power float64
	sinT, cosT := math.Sincos(theta - beta)
	sinD, cosD := math.Sincos(omega)
	for _, x := range window {
		projection += x * sinT
		power += x * x
		cosT, sinT = cosT*cosD-sinT*sinD, sinT*cosD+cosT*sinD
	}

	n := float64(len(window))
	projection /= n
	power /= n

	// projection is A/2 for a tone A*sin(theta-beta); 2*projection^2
	// reconstructs the full correlated power.
	correlated := math.Min(math.Max(2*projection*projection, 0), power)
	noise := math.Max(power-correlated, powerEpsilon)
	return 10 * math.Log10(math.Max(correlated, powerEpsilon)/noise)
}

// Reset disarms the crossing detector.
func (z *ZeroCrossEstimator) Reset() { z.det.Reset() }
