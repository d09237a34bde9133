package rotaryclub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickDetectorFindsPeaks(t *testing.T) {
	d := NewTickDetector(0.15, 29, 0)

	buf := make([]float64, 500)
	buf[50] = 0.8
	buf[146] = 0.8
	buf[242] = 0.8

	ticks := d.Process(buf, 0)
	require.Len(t, ticks, 3)
	assert.Equal(t, uint64(50), ticks[0].Index)
	assert.Equal(t, uint64(146), ticks[1].Index)
	assert.Equal(t, uint64(242), ticks[2].Index)
	for _, tick := range ticks {
		assert.InDelta(t, 0.8, tick.Amplitude, 1e-9)
		assert.Equal(t, TickDetected, tick.Method)
	}
}

func TestTickDetectorThreshold(t *testing.T) {
	d := NewTickDetector(0.15, 10, 0)

	buf := make([]float64, 100)
	buf[20] = 0.1 // below threshold
	buf[60] = 0.5

	ticks := d.Process(buf, 0)
	require.Len(t, ticks, 1)
	assert.Equal(t, uint64(60), ticks[0].Index)
}

func TestTickDetectorMinInterval(t *testing.T) {
	d := NewTickDetector(0.15, 29, 0)

	buf := make([]float64, 200)
	buf[50] = 0.8
	buf[60] = 0.9 // inside the same commutator slot: rejected
	buf[120] = 0.7

	ticks := d.Process(buf, 0)
	require.Len(t, ticks, 2)
	assert.Equal(t, uint64(50), ticks[0].Index)
	assert.Equal(t, uint64(120), ticks[1].Index)
}

func TestTickDetectorParabolicRefinement(t *testing.T) {
	d := NewTickDetector(0.15, 10, 0)

	// Asymmetric triangle: true peak slightly right of the sample.
	buf := make([]float64, 50)
	buf[19] = 0.4
	buf[20] = 1.0
	buf[21] = 0.6

	ticks := d.Process(buf, 0)
	require.Len(t, ticks, 1)
	assert.Equal(t, uint64(20), ticks[0].Index)
	assert.Greater(t, ticks[0].Frac, 0.0)
	assert.LessOrEqual(t, ticks[0].Frac, 0.5)
}

func TestTickDetectorAcrossBuffers(t *testing.T) {
	d := NewTickDetector(0.15, 10, 0)

	// A peak on the final sample of the first buffer is confirmed by the
	// first sample of the second.
	first := make([]float64, 100)
	first[99] = 0.8
	second := make([]float64, 100)

	ticks := d.Process(first, 0)
	assert.Empty(t, ticks)

	ticks = d.Process(second, 100)
	require.Len(t, ticks, 1)
	assert.Equal(t, uint64(99), ticks[0].Index)
}

func TestTickDetectorDelayCompensation(t *testing.T) {
	d := NewTickDetector(0.15, 10, 2.0)

	buf := make([]float64, 100)
	buf[50] = 0.8

	ticks := d.Process(buf, 0)
	require.Len(t, ticks, 1)
	assert.InDelta(t, 48.0, ticks[0].Time(), 0.51)
}

func TestTickDetectorStrictlyIncreasing(t *testing.T) {
	d := NewTickDetector(0.1, 5, 0)

	buf := make([]float64, 1000)
	for i := 10; i < 1000; i += 30 {
		buf[i] = 0.5
	}
	ticks := d.Process(buf, 0)
	require.NotEmpty(t, ticks)
	for i := 1; i < len(ticks); i++ {
		assert.Greater(t, ticks[i].Index, ticks[i-1].Index)
	}
}
