package rotaryclub

import "math"

// BearingSample is one output record.
type BearingSample struct {
	Timestamp   uint64  // sample index at the end of the estimate window
	TimeS       float64 // Timestamp in seconds of stream time
	RawDeg      float64 // [0, 360)
	SmoothedDeg float64 // [0, 360)
	Confidence  float64 // [0, 1]
	SNRdB       float64
	Coherence   float64 // [0, 1]
	Strength    float64 // [0, 1]
	Lock        LockMetrics
}

// circularSmoother is a moving average over bearings that accumulates unit
// vectors, so it never averages naively across the 0/360 wrap.
type circularSmoother struct {
	sins, coss []float64
	idx, n     int
}

func newCircularSmoother(window int) *circularSmoother {
	return &circularSmoother{
		sins: make([]float64, window),
		coss: make([]float64, window),
	}
}

// Add pushes a bearing in degrees and returns the smoothed bearing.
func (s *circularSmoother) Add(deg float64) float64 {
	r := deg * math.Pi / 180
	s.sins[s.idx] = math.Sin(r)
	s.coss[s.idx] = math.Cos(r)
	s.idx = (s.idx + 1) % len(s.sins)
	if s.n < len(s.sins) {
		s.n++
	}

	var sumSin, sumCos float64
	for i := 0; i < s.n; i++ {
		sumSin += s.sins[i]
		sumCos += s.coss[i]
	}
	if math.Hypot(sumSin, sumCos) < 1e-12 {
		return deg
	}
	return wrapDeg(math.Atan2(sumSin, sumCos) * 180 / math.Pi)
}

func (s *circularSmoother) Reset() { s.idx, s.n = 0, 0 }

// BearingCalculator merges phase estimates with the north tracker state
// into output records, applying the north offset, confidence weighting,
// smoothing and output-rate decimation.  Estimates arriving between output
// slots are combined by circular mean rather than dropped.
type BearingCalculator struct {
	cfg        BearingConfig
	sampleRate float64
	smoother   *circularSmoother

	interval float64 // samples between emissions
	nextEmit float64

	accSin, accCos         float64
	accSNR, accCoh, accStr float64
	accN                   int

	lastRaw float64
	haveRaw bool
}

// NewBearingCalculator builds the output stage.
func NewBearingCalculator(cfg BearingConfig, sampleRate float64) *BearingCalculator {
	return &BearingCalculator{
		cfg:        cfg,
		sampleRate: sampleRate,
		smoother:   newCircularSmoother(cfg.SmoothingWindow),
		interval:   sampleRate / cfg.OutputRateHz,
	}
}

// Update feeds one phase estimate taken at sample index at.  A sample is
// returned at most once per output interval.  The calculator is defensive:
// it never lets a NaN or infinity through.
func (b *BearingCalculator) Update(est PhaseEstimate, at uint64, lock LockMetrics, locked bool) (BearingSample, bool) {
	if !isFinite(est.Phase) {
		// Degenerate estimate: hold the previous bearing at zero
		// confidence rather than propagate garbage.
		return b.degraded(at, lock)
	}

	raw := wrapDeg(est.Phase*180/math.Pi + b.cfg.NorthOffsetDeg)
	b.lastRaw = raw
	b.haveRaw = true

	r := raw * math.Pi / 180
	b.accSin += math.Sin(r)
	b.accCos += math.Cos(r)
	b.accSNR += sanitize(est.SNRdB)
	b.accCoh += clamp01(sanitize(est.Coherence))
	b.accStr += clamp01(sanitize(est.Strength))
	b.accN++

	if float64(at) < b.nextEmit {
		return BearingSample{}, false
	}

	n := float64(b.accN)
	meanRaw := raw
	if math.Hypot(b.accSin, b.accCos) >= 1e-12 {
		meanRaw = wrapDeg(math.Atan2(b.accSin/n, b.accCos/n) * 180 / math.Pi)
	}
	snr := b.accSNR / n
	coh := b.accCoh / n
	str := b.accStr / n

	confidence := 0.0
	if locked {
		confidence = b.cfg.StrengthWeight*str +
			b.cfg.CoherenceWeight*coh +
			b.cfg.SNRWeight*clamp01(snr/b.cfg.SNRNormDB)
		confidence = clamp01(confidence)
	}

	sample := BearingSample{
		Timestamp:   at,
		TimeS:       float64(at) / b.sampleRate,
		RawDeg:      meanRaw,
		SmoothedDeg: b.smoother.Add(meanRaw),
		Confidence:  confidence,
		SNRdB:       snr,
		Coherence:   coh,
		Strength:    str,
		Lock:        lock,
	}
	b.resetAccumulator(at)
	return sample, true
}

// degraded emits a zero-confidence record carrying the last known bearing
// forward, respecting the output cadence.
func (b *BearingCalculator) degraded(at uint64, lock LockMetrics) (BearingSample, bool) {
	if !b.haveRaw || float64(at) < b.nextEmit {
		return BearingSample{}, false
	}
	sample := BearingSample{
		Timestamp:   at,
		TimeS:       float64(at) / b.sampleRate,
		RawDeg:      b.lastRaw,
		SmoothedDeg: b.lastRaw,
		Confidence:  0,
		Lock:        lock,
	}
	b.resetAccumulator(at)
	return sample, true
}

func (b *BearingCalculator) resetAccumulator(at uint64) {
	b.accSin, b.accCos = 0, 0
	b.accSNR, b.accCoh, b.accStr = 0, 0, 0
	b.accN = 0
	b.nextEmit = float64(at) + b.interval
}

// Reset clears smoothing and decimation state.
func (b *BearingCalculator) Reset() {
	b.smoother.Reset()
	b.resetAccumulator(0)
	b.nextEmit = 0
	b.haveRaw = false
}

// sanitize maps NaN/Inf metric values to zero so a single bad window can
// only ever lower confidence.
func sanitize(x float64) float64 {
	if !isFinite(x) {
		return 0
	}
	return x
}
