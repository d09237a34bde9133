package rotaryclub

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// LockMetrics summarizes how well the north tracker is following the
// commutator.  Valid is false when the tracker does not produce them
// (simple mode, or not enough ticks yet).
type LockMetrics struct {
	PhaseScore    float64
	FreqScore     float64
	LockQuality   float64
	PhaseErrorVar float64 // rad^2
	Valid         bool
}

// NorthTracker is the single authority on rotation frequency and north
// phase.  The bearing side only ever reads snapshots through this interface.
type NorthTracker interface {
	// OnTick feeds one detected north tick.
	OnTick(t NorthTick)
	// Ready reports whether a rotation period estimate exists at all.
	Ready() bool
	// Locked reports whether the estimate is trustworthy enough to put
	// confidence behind bearings.
	Locked() bool
	// Omega is the rotation frequency in rad/sample.
	Omega() float64
	// RotationHz is the rotation frequency in Hz.
	RotationHz() float64
	// PhaseAt predicts the rotation phase (0 at north) at a fractional
	// sample index, in [0, 2*pi).
	PhaseAt(s float64) float64
	// NextNorth predicts the next north crossing at or after s.
	NextNorth(s float64) float64
	// Metrics returns the current lock-quality snapshot, evaluated as of
	// sample index s (staleness counts against quality).
	Metrics(s float64) LockMetrics
	// Reset returns the tracker to its acquire state.
	Reset()
}

// ringStat is a fixed-size ring of recent float64 observations.
type ringStat struct {
	buf  []float64
	n    int
	next int
}

func newRingStat(size int) *ringStat {
	return &ringStat{buf: make([]float64, size)}
}

func (r *ringStat) Push(v float64) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
}

func (r *ringStat) Count() int { return r.n }

func (r *ringStat) values() []float64 { return r.buf[:r.n] }

func (r *ringStat) Mean() float64 { return stat.Mean(r.values(), nil) }

func (r *ringStat) StdDev() float64 {
	if r.n < 2 {
		return 0
	}
	return stat.StdDev(r.values(), nil)
}

func (r *ringStat) Variance() float64 {
	if r.n < 2 {
		return 0
	}
	return stat.Variance(r.values(), nil)
}

func (r *ringStat) Reset() { r.n, r.next = 0, 0 }

/*------------------------------------------------------------------
 *
 * DPLL
 *
 * Purpose:	Track the commutator rotation across jittered, missing or
 *		spurious north ticks.
 *
 * Description:	Second-order loop, first order in frequency.  The phase
 *		accumulator advances at omega rad/sample; each detected tick
 *		is a measurement of phase zero.  The wrapped prediction error
 *		drives the proportional (alpha) and integral (beta) updates.
 *
 *		Rolling windows of phase errors and period estimates feed the
 *		lock-quality metrics.
 *
 *------------------------------------------------------------------*/

// DPLL implements NorthTracker with a digital phase-locked loop.
type DPLL struct {
	alpha, beta float64

	theta    float64 // phase estimate, (-pi, pi]
	omega    float64 // rad/sample, kept inside (0, pi)
	lastTick float64 // fractional sample index of the last update
	ticks    int

	omegaNominal       float64
	omegaMin, omegaMax float64

	lockTicks   int
	phaseWeight float64
	freqWeight  float64
	sampleRate  float64

	phaseErrs *ringStat
	periods   *ringStat // seconds
}

// NewDPLL builds a tracker seeded at the nominal rotation frequency.
func NewDPLL(cfg DPLLConfig, rotationHz, sampleRate float64) *DPLL {
	omega := 2 * math.Pi * rotationHz / sampleRate
	d := &DPLL{
		alpha:        cfg.Alpha,
		beta:         cfg.Beta,
		omega:        omega,
		omegaNominal: omega,
		omegaMin:     omega * 0.5,
		omegaMax:     omega * 2,
		lockTicks:    cfg.LockTicks,
		phaseWeight:  cfg.PhaseWeight,
		freqWeight:   cfg.FreqWeight,
		sampleRate:   sampleRate,
		phaseErrs:    newRingStat(cfg.StatsWindow),
		periods:      newRingStat(cfg.StatsWindow),
	}
	if d.omegaMax > math.Pi-1e-6 {
		d.omegaMax = math.Pi - 1e-6
	}
	return d
}

// OnTick advances the loop to the tick time and corrects phase and
// frequency from the wrapped prediction error.
func (d *DPLL) OnTick(t NorthTick) {
	at := t.Time()
	if d.ticks == 0 {
		d.theta = 0
		d.lastTick = at
		d.ticks = 1
		return
	}

	dt := at - d.lastTick
	if dt <= 0 {
		return
	}

	pred := wrapPi(d.theta + d.omega*dt)
	e := wrapPi(-pred) // ticks define phase zero

	d.omega += d.beta * e
	if d.omega < d.omegaMin {
		d.omega = d.omegaMin
	} else if d.omega > d.omegaMax {
		d.omega = d.omegaMax
	}
	d.theta = wrapPi(pred + d.alpha*e)
	d.lastTick = at
	d.ticks++

	d.phaseErrs.Push(e)
	d.periods.Push(2 * math.Pi / d.omega / d.sampleRate)
}

func (d *DPLL) Ready() bool  { return d.ticks >= 2 }
func (d *DPLL) Locked() bool { return d.ticks >= d.lockTicks }

func (d *DPLL) Omega() float64 { return d.omega }

func (d *DPLL) RotationHz() float64 {
	return d.omega * d.sampleRate / (2 * math.Pi)
}

// PhaseAt extrapolates the rotation phase to sample index s.
func (d *DPLL) PhaseAt(s float64) float64 {
	return wrapTwoPi(d.theta + d.omega*(s-d.lastTick))
}

// NextNorth predicts the next zero-phase crossing at or after s.
func (d *DPLL) NextNorth(s float64) float64 {
	phase := d.PhaseAt(s)
	return s + (2*math.Pi-phase)/d.omega
}

// Metrics computes the lock-quality snapshot.  Quality decays when ticks
// stop arriving: a tracker coasting through a pulse dropout is still
// predicting but should not claim a solid lock.
func (d *DPLL) Metrics(s float64) LockMetrics {
	if d.phaseErrs.Count() < 2 || d.periods.Count() < 2 {
		return LockMetrics{}
	}

	phaseScore := clamp01(1 - d.phaseErrs.StdDev()/math.Pi)

	meanPeriod := d.periods.Mean()
	freqScore := 0.0
	if meanPeriod > 1e-12 {
		freqScore = clamp01(1 - 100*d.periods.StdDev()/meanPeriod)
	}

	quality := d.phaseWeight*phaseScore + d.freqWeight*freqScore

	if s > d.lastTick {
		missed := (s - d.lastTick) * d.omega / (2 * math.Pi)
		if missed > 1 {
			quality *= clamp01(1 - (missed-1)/4)
		}
	}

	return LockMetrics{
		PhaseScore:    phaseScore,
		FreqScore:     freqScore,
		LockQuality:   quality,
		PhaseErrorVar: d.phaseErrs.Variance(),
		Valid:         true,
	}
}

// Reset drops back to the acquire state at the nominal frequency.
func (d *DPLL) Reset() {
	d.omega = d.omegaNominal
	d.theta = 0
	d.ticks = 0
	d.phaseErrs.Reset()
	d.periods.Reset()
}
