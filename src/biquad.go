package rotaryclub

import (
	"math"
	"math/cmplx"
)

// BiquadSection is one second-order IIR section in transposed direct-form
// II.  TDF-II keeps the accumulated rounding error of a cascade bounded,
// which matters for the narrow Doppler bandpass.
type BiquadSection struct {
	B0, B1, B2 float64
	A1, A2     float64

	s1, s2 float64
}

// Process runs a single sample through the section.
func (s *BiquadSection) Process(x float64) float64 {
	y := s.B0*x + s.s1
	s.s1 = s.B1*x - s.A1*y + s.s2
	s.s2 = s.B2*x - s.A2*y
	return y
}

// Reset zeroes the delay line.
func (s *BiquadSection) Reset() {
	s.s1, s.s2 = 0, 0
}

// response evaluates the section transfer function at z = e^{jw}.
func (s *BiquadSection) response(w float64) complex128 {
	z1 := cmplx.Exp(complex(0, -w))
	z2 := z1 * z1
	num := complex(s.B0, 0) + complex(s.B1, 0)*z1 + complex(s.B2, 0)*z2
	den := complex(1, 0) + complex(s.A1, 0)*z1 + complex(s.A2, 0)*z2
	return num / den
}

// BiquadCascade is a chain of second-order sections.
type BiquadCascade struct {
	Sections []BiquadSection
}

// Process runs a single sample through all sections.
func (c *BiquadCascade) Process(x float64) float64 {
	for i := range c.Sections {
		x = c.Sections[i].Process(x)
	}
	return x
}

// ProcessBuffer filters a buffer in place.
func (c *BiquadCascade) ProcessBuffer(buf []float64) {
	for i, x := range buf {
		for j := range c.Sections {
			x = c.Sections[j].Process(x)
		}
		buf[i] = x
	}
}

// Reset zeroes all delay lines, as at stream start.
func (c *BiquadCascade) Reset() {
	for i := range c.Sections {
		c.Sections[i].Reset()
	}
}

// Response evaluates the cascade at freq Hz for the given sample rate.
func (c *BiquadCascade) Response(freq, sampleRate float64) complex128 {
	w := 2 * math.Pi * freq / sampleRate
	h := complex(1, 0)
	for i := range c.Sections {
		h *= c.Sections[i].response(w)
	}
	return h
}

// GainDB is the cascade magnitude response in dB at freq Hz.
func (c *BiquadCascade) GainDB(freq, sampleRate float64) float64 {
	return 20 * math.Log10(cmplx.Abs(c.Response(freq, sampleRate)))
}

// PhaseAt is the cascade phase response in radians at freq Hz.
func (c *BiquadCascade) PhaseAt(freq, sampleRate float64) float64 {
	return cmplx.Phase(c.Response(freq, sampleRate))
}

// ImpulsePeakDelay measures where the cascade impulse response peaks, with
// parabolic refinement.  Used to back out the north-pulse timing shift.
func (c *BiquadCascade) ImpulsePeakDelay(maxSamples int) float64 {
	probe := BiquadCascade{Sections: append([]BiquadSection(nil), c.Sections...)}
	probe.Reset()

	h := make([]float64, maxSamples)
	for i := range h {
		x := 0.0
		if i == 0 {
			x = 1
		}
		h[i] = probe.Process(x)
	}

	peak := 0
	for i, v := range h {
		if v > h[peak] {
			peak = i
		}
	}
	if peak == len(h)-1 {
		return float64(peak)
	}
	// The filter is causal, so the sample before an immediate peak is 0.
	prev := 0.0
	if peak > 0 {
		prev = h[peak-1]
	}
	return float64(peak) + parabolicOffset(prev, h[peak], h[peak+1])
}

// butterworthQ returns the Q of cascade section i for an order-n Butterworth
// (n even, i in [0, n/2)).
func butterworthQ(n, i int) float64 {
	psi := math.Pi * float64(2*i+1) / float64(2*n)
	return 1 / (2 * math.Sin(psi))
}

// NewButterworthLowpass designs an even-order Butterworth lowpass as a
// bilinear-transform biquad cascade.
func NewButterworthLowpass(order int, cutoff, sampleRate float64) (*BiquadCascade, error) {
	if order < 2 || order%2 != 0 {
		return nil, configErrorf("lowpass order %d must be even and positive", order)
	}
	if cutoff <= 0 || cutoff >= sampleRate/2 {
		return nil, configErrorf("lowpass cutoff %.0f Hz outside (0, Fs/2)", cutoff)
	}

	c := &BiquadCascade{}
	w0 := 2 * math.Pi * cutoff / sampleRate
	cosw, sinw := math.Cos(w0), math.Sin(w0)
	for i := 0; i < order/2; i++ {
		alpha := sinw / (2 * butterworthQ(order, i))
		a0 := 1 + alpha
		c.Sections = append(c.Sections, BiquadSection{
			B0: (1 - cosw) / 2 / a0,
			B1: (1 - cosw) / a0,
			B2: (1 - cosw) / 2 / a0,
			A1: -2 * cosw / a0,
			A2: (1 - alpha) / a0,
		})
	}
	return c, nil
}

// NewButterworthHighpass designs an even-order Butterworth highpass as a
// bilinear-transform biquad cascade.
func NewButterworthHighpass(order int, cutoff, sampleRate float64) (*BiquadCascade, error) {
	if order < 2 || order%2 != 0 {
		return nil, configErrorf("highpass order %d must be even and positive", order)
	}
	if cutoff <= 0 || cutoff >= sampleRate/2 {
		return nil, configErrorf("highpass cutoff %.0f Hz outside (0, Fs/2)", cutoff)
	}

	c := &BiquadCascade{}
	w0 := 2 * math.Pi * cutoff / sampleRate
	cosw, sinw := math.Cos(w0), math.Sin(w0)
	for i := 0; i < order/2; i++ {
		alpha := sinw / (2 * butterworthQ(order, i))
		a0 := 1 + alpha
		c.Sections = append(c.Sections, BiquadSection{
			B0: (1 + cosw) / 2 / a0,
			B1: -(1 + cosw) / a0,
			B2: (1 + cosw) / 2 / a0,
			A1: -2 * cosw / a0,
			A2: (1 - alpha) / a0,
		})
	}
	return c, nil
}

// NewButterworthBandpass designs an even-order Butterworth bandpass with
// -3 dB points at low and high Hz.  The analog lowpass prototype is mapped
// through the standard lowpass-to-bandpass substitution and each resulting
// conjugate pole pair bilinear-transformed into one biquad with zeros at
// z = +1 and z = -1, then gain-normalized at the geometric center.
func NewButterworthBandpass(order int, low, high, sampleRate float64) (*BiquadCascade, error) {
	if order < 2 || order%2 != 0 {
		return nil, configErrorf("bandpass order %d must be even and positive", order)
	}
	if low <= 0 || high <= low || high >= sampleRate/2 {
		return nil, configErrorf("bandpass [%.0f, %.0f] Hz is not a valid band", low, high)
	}

	n := order / 2 // analog prototype order

	// Prewarped analog band edges.
	wl := 2 * sampleRate * math.Tan(math.Pi*low/sampleRate)
	wh := 2 * sampleRate * math.Tan(math.Pi*high/sampleRate)
	w0 := math.Sqrt(wl * wh)
	bw := wh - wl

	// Prototype poles on the unit circle, left half plane.
	var poles []complex128
	for k := 0; k < n; k++ {
		theta := math.Pi * float64(2*k+n+1) / float64(2*n)
		p := cmplx.Exp(complex(0, theta))

		// s^2 - p*bw*s + w0^2 = 0
		pb := p * complex(bw, 0)
		disc := cmplx.Sqrt(pb*pb - complex(4*w0*w0, 0))
		poles = append(poles, (pb+disc)/2, (pb-disc)/2)
	}

	var upper []complex128
	for _, s := range poles {
		if imag(s) > 1e-9 {
			upper = append(upper, s)
		}
	}
	if len(upper) != n {
		return nil, configErrorf("bandpass design degenerate for [%.0f, %.0f] Hz", low, high)
	}

	c := &BiquadCascade{}
	for _, s := range upper {
		// Bilinear transform of the pole pair (s, conj(s)).
		zp := (complex(2*sampleRate, 0) + s) / (complex(2*sampleRate, 0) - s)
		sec := BiquadSection{
			B0: 1, B1: 0, B2: -1,
			A1: -2 * real(zp),
			A2: real(zp)*real(zp) + imag(zp)*imag(zp),
		}
		// Normalize this section to unity at the center frequency.
		center := 2 * math.Atan(w0/(2*sampleRate)) * sampleRate / (2 * math.Pi)
		g := cmplx.Abs(sec.response(2 * math.Pi * center / sampleRate))
		if g < 1e-12 {
			return nil, configErrorf("bandpass design degenerate for [%.0f, %.0f] Hz", low, high)
		}
		sec.B0 /= g
		sec.B2 /= g
		c.Sections = append(c.Sections, sec)
	}
	return c, nil
}

// WarmupSamples is how long the filter transient is discarded before
// bearings are emitted: 4*order/bandwidth seconds worth of samples.
func WarmupSamples(order int, bandwidthHz, sampleRate float64) int {
	return int(4 * float64(order) * sampleRate / bandwidthHz)
}

// parabolicOffset fits a parabola to three points around a maximum and
// returns the sub-sample offset of the vertex in (-0.5, 0.5].
func parabolicOffset(ym1, y0, yp1 float64) float64 {
	den := ym1 - 2*y0 + yp1
	if math.Abs(den) < 1e-12 {
		return 0
	}
	d := 0.5 * (ym1 - yp1) / den
	if d <= -0.5 {
		d = -0.5 + 1e-9
	} else if d > 0.5 {
		d = 0.5
	}
	return d
}
