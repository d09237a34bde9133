package rotaryclub

import "math"

// agcEpsilon is the envelope floor; below this the input is treated as
// silent and the gain pins at the clamp rather than dividing by zero.
const agcEpsilon = 1e-6

// AGC levels the Doppler channel to a target RMS with an attack/release
// envelope follower.  The correlator only needs ratios, but the bandpass
// arithmetic and the zero-crossing hysteresis both want a known level.
type AGC struct {
	target  float64
	attack  float64 // envelope coefficient when |x| rises
	release float64 // envelope coefficient when |x| falls
	gainMin float64
	gainMax float64

	env  float64
	gain float64
}

// NewAGC builds an AGC for the given sample rate.  Attack and release time
// constants come from the config in milliseconds.
func NewAGC(cfg AGCConfig, sampleRate float64) *AGC {
	coeff := func(ms float64) float64 {
		return 1 - math.Exp(-1/(sampleRate*ms/1000))
	}
	return &AGC{
		target:  cfg.TargetRMS,
		attack:  coeff(cfg.AttackMs),
		release: coeff(cfg.ReleaseMs),
		gainMin: cfg.GainMin,
		gainMax: cfg.GainMax,
		gain:    1,
	}
}

// Process levels a buffer in place.
func (a *AGC) Process(buf []float64) {
	for i, x := range buf {
		mag := math.Abs(x)
		if mag > a.env {
			a.env += a.attack * (mag - a.env)
		} else {
			a.env += a.release * (mag - a.env)
		}

		g := a.target / math.Max(a.env, agcEpsilon)
		if g < a.gainMin {
			g = a.gainMin
		} else if g > a.gainMax {
			g = a.gainMax
		}
		a.gain = g
		buf[i] = x * g
	}
}

// Gain reports the current gain factor.
func (a *AGC) Gain() float64 { return a.gain }

// Reset clears the envelope state, as at stream start.
func (a *AGC) Reset() {
	a.env = 0
	a.gain = 1
}
