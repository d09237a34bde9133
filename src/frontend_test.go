package rotaryclub

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrontEndSplit(t *testing.T) {
	cfg := DefaultConfig().Audio
	f := newFrontEnd(cfg)

	doppler, north := f.Split([]float32{0.1, 0.5, 0.2, 0.6, 0.3, 0.7})
	require.Len(t, doppler, 3)
	require.Len(t, north, 3)

	assert.InDelta(t, 0.1, doppler[0], 1e-6)
	assert.InDelta(t, 0.5, north[0], 1e-6)
	assert.InDelta(t, 0.3, doppler[2], 1e-6)
}

func TestFrontEndSwappedRoles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SwapChannels()
	f := newFrontEnd(cfg.Audio)

	doppler, north := f.Split([]float32{0.1, 0.5, 0.2, 0.6})
	assert.InDelta(t, 0.5, doppler[0], 1e-6)
	assert.InDelta(t, 0.1, north[0], 1e-6)
}

func TestFrontEndNorthGain(t *testing.T) {
	cfg := DefaultConfig().Audio
	cfg.NorthGainDB = 20 // 10x

	f := newFrontEnd(cfg)
	doppler, north := f.Split([]float32{0.1, 0.05, 0.1, 0.05})
	assert.InDelta(t, 0.1, doppler[0], 1e-6, "doppler path unaffected")
	assert.InDelta(t, 0.5, north[0], 1e-6)
}

func TestFrontEndDCRemoval(t *testing.T) {
	cfg := DefaultConfig().Audio
	cfg.RemoveDC = true
	f := newFrontEnd(cfg)

	// One second of tone riding on a big DC offset.
	n := 48000
	in := make([]float32, 2*n)
	for i := 0; i < n; i++ {
		in[2*i] = float32(0.5 + 0.1*math.Sin(2*math.Pi*1602*float64(i)/48000))
		in[2*i+1] = 0.5
	}
	doppler, north := f.Split(in)

	var meanD, meanN float64
	tail := n / 2
	for i := tail; i < n; i++ {
		meanD += doppler[i]
		meanN += north[i]
	}
	meanD /= float64(n - tail)
	meanN /= float64(n - tail)

	assert.InDelta(t, 0, meanD, 0.05, "DC should be stripped from the doppler path")
	assert.InDelta(t, 0, meanN, 0.05, "DC should be stripped from the north path")
}

func TestDCRemoverPreservesTone(t *testing.T) {
	d := newDCRemover(48000, 1.0)

	buf := make([]float64, 48000)
	for i := range buf {
		buf[i] = 2.0 + math.Sin(2*math.Pi*1000*float64(i)/48000)
	}
	d.Process(buf)

	settled := buf[24000:]
	maxV, minV := settled[0], settled[0]
	for _, v := range settled {
		maxV = math.Max(maxV, v)
		minV = math.Min(minV, v)
	}
	assert.InDelta(t, 1.0, (maxV-minV)/2, 0.1, "tone amplitude should survive")
	assert.InDelta(t, 0, (maxV+minV)/2, 0.1, "offset should be gone")
}
