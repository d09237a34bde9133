package rotaryclub

import "math"

// periodSmoothing is the EMA weight for new instantaneous periods.
const periodSmoothing = 0.1

// SimpleTracker is the no-DPLL north reference: the two most recent ticks
// define an instantaneous period which is exponentially smoothed.  North
// timestamps are the detected ticks themselves; no lock-quality metrics are
// produced.
type SimpleTracker struct {
	nominalPeriod float64 // samples
	period        float64
	havePeriod    bool
	lastTick      float64
	haveTick      bool
	sampleRate    float64
}

// NewSimpleTracker builds a tracker seeded with the nominal rotation rate.
func NewSimpleTracker(rotationHz, sampleRate float64) *SimpleTracker {
	return &SimpleTracker{
		nominalPeriod: sampleRate / rotationHz,
		sampleRate:    sampleRate,
	}
}

func (s *SimpleTracker) OnTick(t NorthTick) {
	at := t.Time()
	if s.haveTick {
		delta := at - s.lastTick
		// Reject a second detection inside the same rotation.
		if delta < 0.75*s.periodOrNominal() {
			return
		}
		if s.havePeriod {
			s.period = (1-periodSmoothing)*s.period + periodSmoothing*delta
		} else {
			s.period = delta
			s.havePeriod = true
		}
	}
	s.lastTick = at
	s.haveTick = true
}

func (s *SimpleTracker) periodOrNominal() float64 {
	if s.havePeriod {
		return s.period
	}
	return s.nominalPeriod
}

func (s *SimpleTracker) Ready() bool  { return s.havePeriod }
func (s *SimpleTracker) Locked() bool { return s.havePeriod }

func (s *SimpleTracker) Omega() float64 {
	return 2 * math.Pi / s.periodOrNominal()
}

func (s *SimpleTracker) RotationHz() float64 {
	return s.sampleRate / s.periodOrNominal()
}

func (s *SimpleTracker) PhaseAt(at float64) float64 {
	if !s.haveTick {
		return 0
	}
	return wrapTwoPi(2 * math.Pi * (at - s.lastTick) / s.periodOrNominal())
}

func (s *SimpleTracker) NextNorth(at float64) float64 {
	if !s.haveTick {
		return at
	}
	period := s.periodOrNominal()
	elapsed := at - s.lastTick
	rotations := math.Ceil(elapsed / period)
	return s.lastTick + rotations*period
}

func (s *SimpleTracker) Metrics(float64) LockMetrics { return LockMetrics{} }

func (s *SimpleTracker) Reset() {
	s.havePeriod = false
	s.haveTick = false
}
