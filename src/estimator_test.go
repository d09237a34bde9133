package rotaryclub

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedTracker is a test double with an exactly known rotation.
type fixedTracker struct {
	omega float64
	t0    float64 // sample index of a north crossing
}

func (f *fixedTracker) OnTick(NorthTick)      {}
func (f *fixedTracker) Ready() bool           { return true }
func (f *fixedTracker) Locked() bool          { return true }
func (f *fixedTracker) Omega() float64        { return f.omega }
func (f *fixedTracker) RotationHz() float64   { return f.omega * testFs / (2 * math.Pi) }
func (f *fixedTracker) PhaseAt(s float64) float64 {
	return wrapTwoPi(f.omega * (s - f.t0))
}
func (f *fixedTracker) NextNorth(s float64) float64 {
	return s + (2*math.Pi-f.PhaseAt(s))/f.omega
}
func (f *fixedTracker) Metrics(float64) LockMetrics { return LockMetrics{} }
func (f *fixedTracker) Reset()                      {}

// dopplerWindow synthesizes sin(theta - beta) for the tracker's rotation.
func dopplerWindow(tr *fixedTracker, start float64, n int, betaDeg, noise float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	beta := betaDeg * math.Pi / 180
	buf := make([]float64, n)
	for i := range buf {
		theta := tr.omega * (start + float64(i) - tr.t0)
		buf[i] = math.Sin(theta - beta)
		if noise > 0 {
			buf[i] += noise * rng.NormFloat64()
		}
	}
	return buf
}

func testWindowLen() int {
	return int(testFs/1602+0.5) * 5
}

func TestCorrelatorRecoversBearing(t *testing.T) {
	tr := &fixedTracker{omega: 2 * math.Pi * 1602 / testFs, t0: 0}
	corr := NewCorrelator(testFs)

	for _, beta := range []float64{0, 45, 90, 135, 180, 225, 270, 315} {
		window := dopplerWindow(tr, 1000, testWindowLen(), beta, 0, 1)
		est, ok := corr.Estimate(window, 1000, tr, 0)
		require.True(t, ok, "bearing %v", beta)

		got := est.Phase * 180 / math.Pi
		assert.InDelta(t, 0, AngleErrorDeg(got, beta), 2.5, "bearing %v got %v", beta, got)
	}
}

func TestCorrelatorCleanMetrics(t *testing.T) {
	tr := &fixedTracker{omega: 2 * math.Pi * 1602 / testFs}
	corr := NewCorrelator(testFs)

	window := dopplerWindow(tr, 0, testWindowLen(), 120, 0, 1)
	est, ok := corr.Estimate(window, 0, tr, 0)
	require.True(t, ok)

	assert.Greater(t, est.SNRdB, 20.0, "clean tone should measure high SNR")
	assert.Greater(t, est.Coherence, 0.95)
	assert.Greater(t, est.Strength, 0.95)
	assert.True(t, est.Coherence <= 1 && est.Strength <= 1)
}

func TestCorrelatorNoiseDegradesMetrics(t *testing.T) {
	tr := &fixedTracker{omega: 2 * math.Pi * 1602 / testFs}
	clean := NewCorrelator(testFs)
	noisy := NewCorrelator(testFs)

	cleanEst, ok := clean.Estimate(dopplerWindow(tr, 0, testWindowLen(), 90, 0, 1), 0, tr, 0)
	require.True(t, ok)
	noisyEst, ok := noisy.Estimate(dopplerWindow(tr, 0, testWindowLen(), 90, 1.0, 1), 0, tr, 0)
	require.True(t, ok)

	assert.Less(t, noisyEst.SNRdB, cleanEst.SNRdB)
	assert.Less(t, noisyEst.Coherence, cleanEst.Coherence)
}

func TestCorrelatorRejectsDegenerateWindows(t *testing.T) {
	tr := &fixedTracker{omega: 2 * math.Pi * 1602 / testFs}
	corr := NewCorrelator(testFs)

	_, ok := corr.Estimate(nil, 0, tr, 0)
	assert.False(t, ok, "empty window")

	_, ok = corr.Estimate(make([]float64, testWindowLen()), 0, tr, 0)
	assert.False(t, ok, "all-zero window")

	bad := &fixedTracker{omega: math.NaN()}
	_, ok = corr.Estimate(dopplerWindow(tr, 0, testWindowLen(), 90, 0, 1), 0, bad, 0)
	assert.False(t, ok, "non-finite tracker frequency")
}

func TestCorrelatorPhaseCorrection(t *testing.T) {
	tr := &fixedTracker{omega: 2 * math.Pi * 1602 / testFs}
	corr := NewCorrelator(testFs)

	// A filter lag of -0.3 rad shows up as a bearing shift; the supplied
	// correction must cancel it.
	lag := -0.3
	beta := 200.0
	window := make([]float64, testWindowLen())
	for i := range window {
		theta := tr.omega * float64(i)
		window[i] = math.Sin(theta - beta*math.Pi/180 + lag)
	}

	est, ok := corr.Estimate(window, 0, tr, lag)
	require.True(t, ok)
	got := est.Phase * 180 / math.Pi
	assert.InDelta(t, 0, AngleErrorDeg(got, beta), 2.5)
}

func TestZeroCrossDetectorInterpolation(t *testing.T) {
	d := NewZeroCrossDetector(0.01)

	crossings := d.Crossings([]float64{-0.3, -0.1, 0.2, 0.4})
	require.Len(t, crossings, 1)
	expected := 2.0 - 0.2/(0.2-(-0.1))
	assert.InDelta(t, expected, crossings[0], 1e-9)
}

func TestZeroCrossDetectorHysteresis(t *testing.T) {
	d := NewZeroCrossDetector(0.1)

	// Chatter inside the gate must not fire; the real crossing must.
	crossings := d.Crossings([]float64{-0.05, 0.05, -0.05, 0.05, -0.5, 0.5})
	require.Len(t, crossings, 1)
	expected := 5.0 - 0.5/(0.5-(-0.5))
	assert.InDelta(t, expected, crossings[0], 1e-9)
}

func TestZeroCrossEstimatorRecoversBearing(t *testing.T) {
	tr := &fixedTracker{omega: 2 * math.Pi * 1602 / testFs, t0: 0}
	zc := NewZeroCrossEstimator(0.01)

	for _, beta := range []float64{10, 80, 170, 260, 350} {
		window := dopplerWindow(tr, 500, testWindowLen(), beta, 0, 1)
		est, ok := zc.Estimate(window, 500, tr, 0)
		require.True(t, ok, "bearing %v", beta)

		got := est.Phase * 180 / math.Pi
		assert.InDelta(t, 0, AngleErrorDeg(got, beta), 2.0, "bearing %v got %v", beta, got)
	}
}

func TestZeroCrossEstimatorMetrics(t *testing.T) {
	tr := &fixedTracker{omega: 2 * math.Pi * 1602 / testFs}
	zc := NewZeroCrossEstimator(0.01)

	window := dopplerWindow(tr, 0, testWindowLen(), 45, 0, 1)
	est, ok := zc.Estimate(window, 0, tr, 0)
	require.True(t, ok)

	assert.Greater(t, est.Coherence, 0.8, "stable periods on a clean tone")
	assert.Greater(t, est.Strength, 0.7, "most expected crossings present")
	assert.Greater(t, est.SNRdB, 10.0)
	assert.True(t, est.Coherence <= 1 && est.Strength <= 1)
}

func TestZeroCrossEstimatorSilence(t *testing.T) {
	tr := &fixedTracker{omega: 2 * math.Pi * 1602 / testFs}
	zc := NewZeroCrossEstimator(0.01)

	_, ok := zc.Estimate(make([]float64, testWindowLen()), 0, tr, 0)
	assert.False(t, ok, "silence has no crossings")
}

func TestEstimatorSelection(t *testing.T) {
	cfg := DefaultConfig()
	_, isCorr := NewPhaseEstimator(&cfg).(*Correlator)
	assert.True(t, isCorr)

	cfg.Bearing.Method = MethodZeroCrossing
	_, isZC := NewPhaseEstimator(&cfg).(*ZeroCrossEstimator)
	assert.True(t, isZC)
}
