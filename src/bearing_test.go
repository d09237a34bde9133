package rotaryclub

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func goodEstimate(betaDeg float64) PhaseEstimate {
	return PhaseEstimate{
		Phase:     wrapTwoPi(betaDeg * math.Pi / 180),
		SNRdB:     30,
		Coherence: 0.9,
		Strength:  0.8,
	}
}

func lockedMetrics() LockMetrics {
	return LockMetrics{PhaseScore: 0.95, FreqScore: 0.95, LockQuality: 0.95, Valid: true}
}

func TestBearingCalculatorEmitsAtOutputRate(t *testing.T) {
	cfg := DefaultConfig().Bearing
	b := NewBearingCalculator(cfg, 48000)

	emitted := 0
	// One estimate every 1024 samples for one second of stream time.
	for at := uint64(1024); at <= 48000; at += 1024 {
		if _, ok := b.Update(goodEstimate(90), at, lockedMetrics(), true); ok {
			emitted++
		}
	}
	// 10 Hz output from ~47 estimates: decimated to about ten.
	assert.InDelta(t, 10, emitted, 2)
}

func TestBearingCalculatorConfidence(t *testing.T) {
	cfg := DefaultConfig().Bearing
	b := NewBearingCalculator(cfg, 48000)

	s, ok := b.Update(goodEstimate(90), 48000, lockedMetrics(), true)
	require.True(t, ok)

	want := 0.34*0.8 + 0.33*0.9 + 0.33*1.0 // snr 30 dB saturates its term
	assert.InDelta(t, want, s.Confidence, 1e-6)
	assert.InDelta(t, 90, s.RawDeg, 1e-6)
	assert.Equal(t, uint64(48000), s.Timestamp)
	assert.InDelta(t, 1.0, s.TimeS, 1e-9)
}

func TestBearingCalculatorZeroConfidenceUntilLocked(t *testing.T) {
	b := NewBearingCalculator(DefaultConfig().Bearing, 48000)

	s, ok := b.Update(goodEstimate(90), 48000, LockMetrics{}, false)
	require.True(t, ok)
	assert.Equal(t, 0.0, s.Confidence)
	assert.InDelta(t, 90, s.RawDeg, 1e-6)
}

func TestBearingCalculatorDegradedCarriesForward(t *testing.T) {
	b := NewBearingCalculator(DefaultConfig().Bearing, 48000)

	s, ok := b.Update(goodEstimate(123), 48000, lockedMetrics(), true)
	require.True(t, ok)
	require.InDelta(t, 123, s.RawDeg, 1e-6)

	// A NaN phase must not emit garbage: previous bearing, zero confidence.
	s, ok = b.Update(PhaseEstimate{Phase: math.NaN()}, 96000, lockedMetrics(), true)
	require.True(t, ok)
	assert.Equal(t, 0.0, s.Confidence)
	assert.InDelta(t, 123, s.RawDeg, 1e-6)
	assert.True(t, isFinite(s.SmoothedDeg))
}

func TestBearingCalculatorDegradedBeforeAnyBearing(t *testing.T) {
	b := NewBearingCalculator(DefaultConfig().Bearing, 48000)

	_, ok := b.Update(PhaseEstimate{Phase: math.Inf(1)}, 48000, LockMetrics{}, false)
	assert.False(t, ok, "nothing to carry forward yet")
}

func TestBearingCalculatorNorthOffsetExact(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		offset := rapid.Float64Range(-720, 720).Draw(t, "offset")
		beta := rapid.Float64Range(0, 360).Draw(t, "beta")

		base := DefaultConfig().Bearing
		shifted := base
		shifted.NorthOffsetDeg = offset

		b0 := NewBearingCalculator(base, 48000)
		b1 := NewBearingCalculator(shifted, 48000)

		s0, ok0 := b0.Update(goodEstimate(beta), 48000, lockedMetrics(), true)
		s1, ok1 := b1.Update(goodEstimate(beta), 48000, lockedMetrics(), true)
		if !ok0 || !ok1 {
			t.Fatal("expected both to emit")
		}

		diff := AngleErrorDeg(s1.RawDeg, s0.RawDeg)
		if math.Abs(AngleErrorDeg(diff, offset)) > 1e-6 {
			t.Fatalf("offset %v shifted bearing by %v", offset, diff)
		}
	})
}

func TestBearingCalculatorRangeInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := NewBearingCalculator(DefaultConfig().Bearing, 48000)

		at := uint64(0)
		n := rapid.IntRange(1, 40).Draw(t, "n")
		for i := 0; i < n; i++ {
			at += uint64(rapid.IntRange(100, 10000).Draw(t, "step"))
			est := PhaseEstimate{
				Phase:     rapid.Float64Range(-10, 10).Draw(t, "phase"),
				SNRdB:     rapid.Float64Range(-100, 100).Draw(t, "snr"),
				Coherence: rapid.Float64Range(-1, 2).Draw(t, "coh"),
				Strength:  rapid.Float64Range(-1, 2).Draw(t, "str"),
			}
			locked := rapid.Bool().Draw(t, "locked")
			s, ok := b.Update(est, at, LockMetrics{}, locked)
			if !ok {
				continue
			}
			if s.RawDeg < 0 || s.RawDeg >= 360 || !isFinite(s.RawDeg) {
				t.Fatalf("raw bearing out of range: %v", s.RawDeg)
			}
			if s.SmoothedDeg < 0 || s.SmoothedDeg >= 360 || !isFinite(s.SmoothedDeg) {
				t.Fatalf("smoothed bearing out of range: %v", s.SmoothedDeg)
			}
			if s.Confidence < 0 || s.Confidence > 1 {
				t.Fatalf("confidence out of range: %v", s.Confidence)
			}
			if s.Coherence < 0 || s.Coherence > 1 || s.Strength < 0 || s.Strength > 1 {
				t.Fatalf("metrics out of range: %+v", s)
			}
		}
	})
}

func TestCircularSmootherWrap(t *testing.T) {
	s := newCircularSmoother(5)

	// Values straddling north must average near north, not near 180.
	var out float64
	for _, d := range []float64{358, 359, 0, 1, 2} {
		out = s.Add(d)
	}
	assert.Less(t, math.Abs(AngleErrorDeg(out, 0)), 1.0)
}

func TestCircularSmootherMonotonic(t *testing.T) {
	s := newCircularSmoother(5)

	// A steadily rotating bearing smooths to a steadily rotating output.
	prev := s.Add(0)
	for deg := 4.0; deg < 1080; deg += 4 {
		out := s.Add(wrapDeg(deg))
		delta := AngleErrorDeg(out, prev)
		assert.Greater(t, delta, 0.0, "smoothed bearing went backwards at %v", deg)
		assert.Less(t, delta, 45.0)
		prev = out
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, 0.0, sanitize(math.NaN()))
	assert.Equal(t, 0.0, sanitize(math.Inf(-1)))
	assert.Equal(t, 1.5, sanitize(1.5))
}
