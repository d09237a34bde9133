package rotaryclub

import (
	"math"
	"math/rand"
)

// Synthetic north pulse shape: the commutator reference pulse is modelled
// as a rectangular pulse covering the first 0.2 rad of each rotation at
// amplitude 0.8.
const (
	genTickWidthRad  = 0.2
	genTickAmplitude = 0.8
)

// SignalOptions shape the synthetic stereo test signal.
type SignalOptions struct {
	// SNRdB adds white Gaussian noise to the Doppler channel at the given
	// signal-to-noise ratio.  Zero (or NoNoise) keeps the channel clean.
	SNRdB float64
	// NoiseSeed makes noisy signals reproducible.
	NoiseSeed int64
	// TickDropout silences north pulses in [DropStartS, DropEndS).
	DropStartS float64
	DropEndS   float64
}

// NoNoise disables the noise mixer in SignalOptions.
const NoNoise = 0

// GenerateSignal synthesizes an interleaved stereo RDF test signal: the
// Doppler tone on the left, north ticks on the right.  bearingFn maps time
// in seconds to the true bearing in degrees.
func GenerateSignal(durationS float64, sampleRate, rotationHz float64, bearingFn func(t float64) float64, opts SignalOptions) []float32 {
	frames := int(durationS * sampleRate)
	out := make([]float32, 0, frames*2)

	samplesPerRotation := sampleRate / rotationHz

	var rng *rand.Rand
	var noiseAmp float64
	if opts.SNRdB != NoNoise {
		rng = rand.New(rand.NewSource(opts.NoiseSeed))
		// Tone power is 1/2; scale noise for the requested ratio.
		noiseAmp = math.Sqrt(0.5 / math.Pow(10, opts.SNRdB/10))
	}

	for i := 0; i < frames; i++ {
		t := float64(i) / sampleRate
		rotPhase := 2 * math.Pi * math.Mod(float64(i), samplesPerRotation) / samplesPerRotation

		beta := bearingFn(t) * math.Pi / 180
		doppler := math.Sin(rotPhase - beta)
		if rng != nil {
			doppler += noiseAmp * rng.NormFloat64()
		}

		tick := 0.0
		if rotPhase < genTickWidthRad {
			dropped := opts.DropEndS > opts.DropStartS &&
				t >= opts.DropStartS && t < opts.DropEndS
			if !dropped {
				tick = genTickAmplitude
			}
		}

		out = append(out, float32(doppler), float32(tick))
	}
	return out
}

// GenerateFixedBearing is GenerateSignal for a constant bearing.
func GenerateFixedBearing(durationS float64, sampleRate, rotationHz, bearingDeg float64, opts SignalOptions) []float32 {
	return GenerateSignal(durationS, sampleRate, rotationHz,
		func(float64) float64 { return bearingDeg }, opts)
}
