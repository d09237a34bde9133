package rotaryclub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 150, cfg.WindowSamples()) // round(48000/1602) * 5
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"same channel", func(c *Config) { c.Audio.NorthChannel = c.Audio.DopplerChannel }},
		{"zero output rate", func(c *Config) { c.Bearing.OutputRateHz = 0 }},
		{"negative output rate", func(c *Config) { c.Bearing.OutputRateHz = -5 }},
		{"threshold too high", func(c *Config) { c.North.Threshold = 1.0 }},
		{"threshold zero", func(c *Config) { c.North.Threshold = 0 }},
		{"inverted band", func(c *Config) { c.Doppler.BandpassLow = 1800 }},
		{"odd filter order", func(c *Config) { c.Doppler.FilterOrder = 3 }},
		{"alpha below beta", func(c *Config) { c.DPLL.Alpha = 0.0001 }},
		{"beta zero", func(c *Config) { c.DPLL.Beta = 0 }},
		{"confidence weights", func(c *Config) { c.Bearing.SNRWeight = 0.9 }},
		{"smoothing zero", func(c *Config) { c.Bearing.SmoothingWindow = 0 }},
		{"tiny queue", func(c *Config) { c.Audio.QueueBlocks = 4 }},
		{"rotation above nyquist", func(c *Config) { c.Doppler.RotationHz = 30000 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, ExitConfig, ExitCode(err))
		})
	}
}

func TestSwapChannelsIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ChannelLeft, cfg.Audio.DopplerChannel)

	cfg.SwapChannels()
	assert.Equal(t, ChannelRight, cfg.Audio.DopplerChannel)
	assert.Equal(t, ChannelLeft, cfg.Audio.NorthChannel)
	require.NoError(t, cfg.Validate())

	cfg.SwapChannels()
	assert.Equal(t, DefaultConfig().Audio.DopplerChannel, cfg.Audio.DopplerChannel)
}

func TestParseRotation(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want float64
	}{
		{"1602", 1602},
		{"1602hz", 1602},
		{"1602Hz", 1602},
		{" 1602 ", 1602},
		{"624us", 1e6 / 624},
		{"0.624ms", 1e3 / 0.624},
		{"0.000624s", 1 / 0.000624},
	} {
		got, err := ParseRotation(tc.in)
		require.NoError(t, err, "input %q", tc.in)
		assert.InDelta(t, tc.want, got, 0.01, "input %q", tc.in)
	}

	for _, bad := range []string{"", "fast", "-100", "0", "hz"} {
		_, err := ParseRotation(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestParseSelectors(t *testing.T) {
	m, err := ParseMethod("zero-crossing")
	require.NoError(t, err)
	assert.Equal(t, MethodZeroCrossing, m)
	_, err = ParseMethod("fourier")
	assert.Error(t, err)

	n, err := ParseNorthMode("simple")
	require.NoError(t, err)
	assert.Equal(t, NorthSimple, n)
	_, err = ParseNorthMode("phase")
	assert.Error(t, err)
}
