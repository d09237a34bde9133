package rotaryclub

// TickDetected tags ticks found by the peak detector.
const TickDetected = "peak"

// TickPhaseTrim corrects pulse sampling quantization: the first sample of a
// narrow pulse lands, on average, half a sample after the true crossing of
// the commutator reference.
const TickPhaseTrim = 0.5

// NorthTick marks one pass of the commutator over the reference element.
type NorthTick struct {
	Index     uint64  // integer sample index of the peak
	Frac      float64 // sub-sample offset in (-0.5, 0.5]
	Amplitude float64
	Method    string
}

// Time is the fractional sample index of the tick.
func (t NorthTick) Time() float64 { return float64(t.Index) + t.Frac }

// TickDetector finds north pulses on the highpassed reference channel: a
// sample that is the local maximum of a 3-sample window, exceeds the
// threshold, and arrives at least minInterval samples after the previous
// tick.  The peak position is refined by parabolic interpolation.
//
// The threshold is fixed; the north pulse amplitude is externally
// controlled and assumed stable.
type TickDetector struct {
	threshold   float64
	minInterval uint64
	delayComp   float64 // highpass peak delay, subtracted from tick times

	y1, y2   float64 // previous two samples
	primed   int
	lastTick uint64
	haveTick bool
}

// NewTickDetector builds a detector.  delayComp is the filter peak delay in
// samples (measured from the highpass impulse response) that detected tick
// times are corrected by.
func NewTickDetector(threshold float64, minInterval int, delayComp float64) *TickDetector {
	if minInterval < 1 {
		minInterval = 1
	}
	return &TickDetector{
		threshold:   threshold,
		minInterval: uint64(minInterval),
		delayComp:   delayComp,
	}
}

// Process scans one buffer of filtered north samples whose first sample has
// global index start, and returns any ticks found.  Detector history spans
// buffer boundaries.
func (d *TickDetector) Process(buf []float64, start uint64) []NorthTick {
	var ticks []NorthTick

	for i, y0 := range buf {
		// y1 is the candidate peak once y0 (its right neighbor) is in.
		if d.primed >= 2 {
			k := start + uint64(i) - 1 // global index of y1
			if d.y1 > d.threshold && d.y1 >= d.y2 && d.y1 >= y0 &&
				(!d.haveTick || k-d.lastTick >= d.minInterval) {

				frac := parabolicOffset(d.y2, d.y1, y0) - d.delayComp
				idx := k
				for frac <= -0.5 && idx > 0 {
					idx--
					frac++
				}
				for frac > 0.5 {
					idx++
					frac--
				}

				ticks = append(ticks, NorthTick{
					Index:     idx,
					Frac:      frac,
					Amplitude: d.y1,
					Method:    TickDetected,
				})
				d.lastTick = k
				d.haveTick = true
			}
		} else {
			d.primed++
		}
		d.y2, d.y1 = d.y1, y0
	}
	return ticks
}

// Reset clears detector state at stream start.
func (d *TickDetector) Reset() {
	d.y1, d.y2 = 0, 0
	d.primed = 0
	d.haveTick = false
}
