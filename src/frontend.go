package rotaryclub

import "math"

// dcRemover is a one-pole highpass used to strip DC/subsonic drift before
// the per-path filters.
type dcRemover struct {
	estimate float64
	alpha    float64
}

func newDCRemover(sampleRate, cutoffHz float64) *dcRemover {
	alpha := 2 * math.Pi * cutoffHz / sampleRate
	if alpha > 1 {
		alpha = 1
	}
	return &dcRemover{alpha: alpha}
}

func (d *dcRemover) Process(buf []float64) {
	for i, x := range buf {
		d.estimate += d.alpha * (x - d.estimate)
		buf[i] = x - d.estimate
	}
}

func (d *dcRemover) Reset() { d.estimate = 0 }

// frontEnd splits interleaved stereo blocks into the Doppler and north mono
// streams, applying the configured channel roles, optional DC removal and
// the north-tick gain.
type frontEnd struct {
	dopplerIdx int // 0 = left, 1 = right
	northIdx   int
	removeDC   bool
	dcDoppler  *dcRemover
	dcNorth    *dcRemover
	northGain  float64

	doppler []float64 // reused between blocks
	north   []float64
}

func newFrontEnd(cfg AudioConfig) *frontEnd {
	f := &frontEnd{
		removeDC:  cfg.RemoveDC,
		dcDoppler: newDCRemover(cfg.SampleRate, 1.0),
		dcNorth:   newDCRemover(cfg.SampleRate, 1.0),
		northGain: math.Pow(10, cfg.NorthGainDB/20),
	}
	if cfg.DopplerChannel == ChannelRight {
		f.dopplerIdx = 1
	}
	if cfg.NorthChannel == ChannelRight {
		f.northIdx = 1
	}
	return f
}

// Split deinterleaves one block.  The returned slices are owned by the front
// end and valid until the next call.
func (f *frontEnd) Split(samples []float32) (doppler, north []float64) {
	frames := len(samples) / 2
	if cap(f.doppler) < frames {
		f.doppler = make([]float64, frames)
		f.north = make([]float64, frames)
	}
	f.doppler = f.doppler[:frames]
	f.north = f.north[:frames]

	for i := 0; i < frames; i++ {
		f.doppler[i] = float64(samples[2*i+f.dopplerIdx])
		f.north[i] = float64(samples[2*i+f.northIdx]) * f.northGain
	}

	if f.removeDC {
		f.dcDoppler.Process(f.doppler)
		f.dcNorth.Process(f.north)
	}
	return f.doppler, f.north
}

func (f *frontEnd) Reset() {
	f.dcDoppler.Reset()
	f.dcNorth.Reset()
}
