package rotaryclub

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

/*------------------------------------------------------------------
 *
 * Processor
 *
 * Purpose:	The DSP worker.  Consumes sample blocks from the capture
 *		queue in order, runs the Doppler and north paths, and
 *		produces bearing records.
 *
 * Description:	All filter, AGC, tracker and estimator state is owned by
 *		this worker; nothing here is shared, so no locks.  The
 *		worker suspends only on "input empty" and "output full",
 *		both with a bounded wait so the stop flag is observed.
 *
 *		A NaN appearing at a stage output resets that stage and
 *		degrades the current record to zero confidence.  Two resets
 *		inside one second abort the stream.
 *
 *------------------------------------------------------------------*/

const (
	popWaitTimeout  = 50 * time.Millisecond
	emitWaitTimeout = 100 * time.Millisecond

	// nanEscalationWindow is how close together two stage resets must be
	// to abort the stream.
	nanEscalationWindow = time.Second

	overrunLogInterval = 5 * time.Second
)

// Processor is the DSP worker.
type Processor struct {
	cfg Config
	in  *BlockQueue
	out chan BearingSample
	log *log.Logger

	stopFlag atomic.Bool

	front     *frontEnd
	agc       *AGC
	bandpass  *BiquadCascade
	highpass  *BiquadCascade
	detector  *TickDetector
	tracker   NorthTracker
	estimator PhaseEstimator
	bearing   *BearingCalculator

	window      []float64
	windowSize  int
	windowStart float64
	warmup      float64

	nextFrame     uint64
	haveNextFrame bool

	lastReset    time.Time
	droppedOut   uint64
	lastOverruns uint64
	lastOverrLog time.Time
}

// NewProcessor wires the pipeline for a validated configuration.
func NewProcessor(cfg Config, in *BlockQueue, logger *log.Logger) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}

	fs := cfg.Audio.SampleRate

	bandpass, err := NewButterworthBandpass(cfg.Doppler.FilterOrder,
		cfg.Doppler.BandpassLow, cfg.Doppler.BandpassHigh, fs)
	if err != nil {
		return nil, err
	}
	highpass, err := NewButterworthHighpass(cfg.North.FilterOrder,
		cfg.North.HighpassCutoff, fs)
	if err != nil {
		return nil, err
	}

	minInterval := int(cfg.North.MinIntervalMs / 1000 * fs)
	detector := NewTickDetector(cfg.North.Threshold, minInterval,
		highpass.ImpulsePeakDelay(64)+TickPhaseTrim)

	var tracker NorthTracker
	if cfg.North.Mode == NorthSimple {
		tracker = NewSimpleTracker(cfg.Doppler.RotationHz, fs)
	} else {
		tracker = NewDPLL(cfg.DPLL, cfg.Doppler.RotationHz, fs)
	}

	dopplerWarmup := WarmupSamples(cfg.Doppler.FilterOrder,
		cfg.Doppler.BandpassHigh-cfg.Doppler.BandpassLow, fs)
	northWarmup := WarmupSamples(cfg.North.FilterOrder, cfg.North.HighpassCutoff, fs)
	warmup := dopplerWarmup
	if northWarmup > warmup {
		warmup = northWarmup
	}

	p := &Processor{
		cfg:        cfg,
		in:         in,
		out:        make(chan BearingSample, 64),
		log:        logger,
		front:      newFrontEnd(cfg.Audio),
		agc:        NewAGC(cfg.AGC, fs),
		bandpass:   bandpass,
		highpass:   highpass,
		detector:   detector,
		tracker:    tracker,
		estimator:  NewPhaseEstimator(&cfg),
		bearing:    NewBearingCalculator(cfg.Bearing, fs),
		window:     make([]float64, 0, cfg.WindowSamples()),
		windowSize: cfg.WindowSamples(),
		warmup:     float64(warmup),
	}
	return p, nil
}

// Output is the bearing record stream.  It closes when Run returns.
func (p *Processor) Output() <-chan BearingSample { return p.out }

// Tracker exposes the north tracker snapshot interface (read-only use).
func (p *Processor) Tracker() NorthTracker { return p.tracker }

// Stop asks the worker to drain and exit.
func (p *Processor) Stop() { p.stopFlag.Store(true) }

// Run consumes blocks until stopped, then drains the input queue, flushes
// and closes the output.  It returns nil on a clean stop and a wrapped
// ErrInternal if NaN resets escalate.
func (p *Processor) Run() error {
	defer close(p.out)

	for !p.stopFlag.Load() {
		block, ok := p.in.PopWait(popWaitTimeout)
		if !ok {
			continue
		}
		if err := p.ProcessBlock(block); err != nil {
			return err
		}
		p.reportOverruns()
	}

	// Drain whatever the capture side managed to queue before stop.
	for {
		block, ok := p.in.Pop()
		if !ok {
			break
		}
		if err := p.ProcessBlock(block); err != nil {
			return err
		}
	}
	return nil
}

// ProcessBlock runs one sample block through both paths.  Exposed so file
// processing and tests can drive the pipeline without the queue loop.
func (p *Processor) ProcessBlock(block *SampleBlock) error {
	if block.Frames() == 0 {
		return nil
	}
	if p.haveNextFrame && block.StartIndex < p.nextFrame {
		p.log.Warn("out-of-order block dropped",
			"start", block.StartIndex, "expected", p.nextFrame)
		return nil
	}
	p.nextFrame = block.StartIndex + uint64(block.Frames())
	p.haveNextFrame = true

	doppler, north := p.front.Split(block.Samples)

	// North path: highpass, tick detect, track.
	p.highpass.ProcessBuffer(north)
	if !finiteBuffer(north) {
		return p.stageReset("north", block)
	}
	for _, tick := range p.detector.Process(north, block.StartIndex) {
		p.tracker.OnTick(tick)
	}

	// Doppler path: AGC, bandpass, sliding estimate window.
	p.agc.Process(doppler)
	p.bandpass.ProcessBuffer(doppler)
	if !finiteBuffer(doppler) {
		return p.stageReset("doppler", block)
	}

	if len(p.window) == 0 {
		p.windowStart = float64(block.StartIndex)
	}
	p.window = append(p.window, doppler...)
	if n := len(p.window); n > p.windowSize {
		cut := n - p.windowSize
		copy(p.window, p.window[cut:])
		p.window = p.window[:p.windowSize]
		p.windowStart += float64(cut)
	}

	if len(p.window) == p.windowSize && p.windowStart >= p.warmup {
		p.estimate()
	}
	return nil
}

// estimate runs the configured phase estimator over the current window and
// pushes any resulting record to the output.
func (p *Processor) estimate() {
	if !p.tracker.Ready() {
		return
	}

	at := uint64(p.windowStart) + uint64(len(p.window))
	correction := p.bandpass.PhaseAt(p.tracker.RotationHz(), p.cfg.Audio.SampleRate)

	est, ok := p.estimator.Estimate(p.window, p.windowStart, p.tracker, correction)
	if !ok {
		// Degenerate window (silence, all-zero): nothing to report.
		return
	}

	lock := p.tracker.Metrics(float64(at))
	sample, emit := p.bearing.Update(est, at, lock, p.tracker.Locked())
	if !emit {
		return
	}
	p.emit(sample)
}

// emit pushes a record with a bounded wait; a stuffed sink loses the
// record rather than stalling the capture side.
func (p *Processor) emit(s BearingSample) {
	select {
	case p.out <- s:
	default:
		timer := time.NewTimer(emitWaitTimeout)
		defer timer.Stop()
		select {
		case p.out <- s:
		case <-timer.C:
			p.droppedOut++
			p.log.Warn("output queue full, record dropped", "total", p.droppedOut)
		}
	}
}

// stageReset handles a NaN at a stage output: log, reset the offending
// stage, degrade the current record.  A second reset within the escalation
// window aborts the stream.
func (p *Processor) stageReset(stage string, block *SampleBlock) error {
	now := time.Now()
	p.log.Error("non-finite samples at stage output, resetting", "stage", stage)

	if !p.lastReset.IsZero() && now.Sub(p.lastReset) < nanEscalationWindow {
		return fmt.Errorf("%w: repeated NaN resets in %s path", ErrInternal, stage)
	}
	p.lastReset = now

	switch stage {
	case "north":
		p.highpass.Reset()
		p.detector.Reset()
	default:
		p.agc.Reset()
		p.bandpass.Reset()
		p.estimator.Reset()
		p.window = p.window[:0]
	}

	at := block.StartIndex + uint64(block.Frames())
	if sample, emit := p.bearing.Update(PhaseEstimate{Phase: math.NaN()},
		at, p.tracker.Metrics(float64(at)), false); emit {
		p.emit(sample)
	}
	return nil
}

// DroppedOutputs counts records lost to a full output queue.
func (p *Processor) DroppedOutputs() uint64 { return p.droppedOut }

func (p *Processor) reportOverruns() {
	total := p.in.Overruns()
	if total == p.lastOverruns {
		return
	}
	if time.Since(p.lastOverrLog) < overrunLogInterval {
		return
	}
	p.log.Warn("capture queue overrun, oldest blocks dropped",
		"dropped", total-p.lastOverruns, "total", total)
	p.lastOverruns = total
	p.lastOverrLog = time.Now()
}

func finiteBuffer(buf []float64) bool {
	for _, v := range buf {
		if !isFinite(v) {
			return false
		}
	}
	return true
}
