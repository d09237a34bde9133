package rotaryclub

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChannelRole says which side of the stereo pair a signal lives on.
type ChannelRole int

const (
	ChannelLeft ChannelRole = iota
	ChannelRight
)

func (r ChannelRole) String() string {
	if r == ChannelRight {
		return "right"
	}
	return "left"
}

// Method selects the phase estimator.
type Method int

const (
	MethodCorrelation Method = iota
	MethodZeroCrossing
)

func (m Method) String() string {
	if m == MethodZeroCrossing {
		return "zero-crossing"
	}
	return "correlation"
}

// ParseMethod accepts the CLI spellings of the phase estimator names.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(s) {
	case "correlation":
		return MethodCorrelation, nil
	case "zero-crossing", "zerocrossing", "zc":
		return MethodZeroCrossing, nil
	}
	return 0, configErrorf("unknown method %q (want correlation or zero-crossing)", s)
}

// NorthMode selects the north-reference tracker.
type NorthMode int

const (
	NorthDPLL NorthMode = iota
	NorthSimple
)

func (m NorthMode) String() string {
	if m == NorthSimple {
		return "simple"
	}
	return "dpll"
}

// ParseNorthMode accepts the CLI spellings of the tracker names.
func ParseNorthMode(s string) (NorthMode, error) {
	switch strings.ToLower(s) {
	case "dpll":
		return NorthDPLL, nil
	case "simple":
		return NorthSimple, nil
	}
	return 0, configErrorf("unknown north mode %q (want dpll or simple)", s)
}

// AudioConfig describes the input stream and channel assignment.
type AudioConfig struct {
	SampleRate     float64     `yaml:"sample_rate"`
	BlockSize      int         `yaml:"block_size"`   // frames per SampleBlock
	QueueBlocks    int         `yaml:"queue_blocks"` // capture-to-DSP queue depth
	DopplerChannel ChannelRole `yaml:"-"`
	NorthChannel   ChannelRole `yaml:"-"`
	RemoveDC       bool        `yaml:"remove_dc"`
	NorthGainDB    float64     `yaml:"north_tick_gain_db"`
	Device         string      `yaml:"device"` // substring match, empty = default
}

// DopplerConfig describes the tone path.
type DopplerConfig struct {
	RotationHz           float64 `yaml:"rotation_hz"`
	BandpassLow          float64 `yaml:"bandpass_low"`
	BandpassHigh         float64 `yaml:"bandpass_high"`
	FilterOrder          int     `yaml:"filter_order"`
	Hysteresis           float64 `yaml:"zero_cross_hysteresis"`
	RotationsPerEstimate int     `yaml:"rotations_per_estimate"`
}

// NorthConfig describes the reference-pulse path.
type NorthConfig struct {
	Mode           NorthMode `yaml:"-"`
	HighpassCutoff float64   `yaml:"highpass_cutoff"`
	FilterOrder    int       `yaml:"filter_order"`
	Threshold      float64   `yaml:"threshold"`
	MinIntervalMs  float64   `yaml:"min_interval_ms"`
}

// DPLLConfig holds the loop gains and lock bookkeeping.
type DPLLConfig struct {
	Alpha       float64 `yaml:"alpha"`
	Beta        float64 `yaml:"beta"`
	StatsWindow int     `yaml:"stats_window"`
	LockTicks   int     `yaml:"lock_ticks"`
	PhaseWeight float64 `yaml:"phase_weight"`
	FreqWeight  float64 `yaml:"freq_weight"`
}

// AGCConfig levels the Doppler channel before filtering.
type AGCConfig struct {
	TargetRMS float64 `yaml:"target_rms"`
	AttackMs  float64 `yaml:"attack_ms"`
	ReleaseMs float64 `yaml:"release_ms"`
	GainMin   float64 `yaml:"gain_min"`
	GainMax   float64 `yaml:"gain_max"`
}

// BearingConfig controls confidence weighting, smoothing and output pacing.
type BearingConfig struct {
	Method          Method  `yaml:"-"`
	SmoothingWindow int     `yaml:"smoothing_window"`
	OutputRateHz    float64 `yaml:"output_rate_hz"`
	NorthOffsetDeg  float64 `yaml:"north_offset_deg"`
	StrengthWeight  float64 `yaml:"strength_weight"`
	CoherenceWeight float64 `yaml:"coherence_weight"`
	SNRWeight       float64 `yaml:"snr_weight"`
	SNRNormDB       float64 `yaml:"snr_norm_db"`
}

// Config is the whole system configuration.  It is read-only once the DSP
// worker starts; changing anything mid-stream requires a restart.
type Config struct {
	Audio   AudioConfig   `yaml:"audio"`
	Doppler DopplerConfig `yaml:"doppler"`
	North   NorthConfig   `yaml:"north"`
	DPLL    DPLLConfig    `yaml:"dpll"`
	AGC     AGCConfig     `yaml:"agc"`
	Bearing BearingConfig `yaml:"bearing"`
}

// DefaultConfig returns the stock 48 kHz / 1602 Hz configuration.
func DefaultConfig() Config {
	return Config{
		Audio: AudioConfig{
			SampleRate:     48000,
			BlockSize:      1024,
			QueueBlocks:    32,
			DopplerChannel: ChannelLeft,
			NorthChannel:   ChannelRight,
		},
		Doppler: DopplerConfig{
			RotationHz:           1602,
			BandpassLow:          1500,
			BandpassHigh:         1700,
			FilterOrder:          4,
			Hysteresis:           0.01,
			RotationsPerEstimate: 5,
		},
		North: NorthConfig{
			Mode:           NorthDPLL,
			HighpassCutoff: 5000,
			FilterOrder:    4,
			Threshold:      0.15,
			MinIntervalMs:  0.6,
		},
		// Beta sits below the critically-damped alpha^2/4: tick times are
		// quantized to the sample grid, and a faster integrator surfs that
		// quantization ripple instead of averaging it out.
		DPLL: DPLLConfig{
			Alpha:       0.1,
			Beta:        0.1 * 0.1 / 20,
			StatsWindow: 128,
			LockTicks:   16,
			PhaseWeight: 0.5,
			FreqWeight:  0.5,
		},
		AGC: AGCConfig{
			TargetRMS: 0.5,
			AttackMs:  10,
			ReleaseMs: 100,
			GainMin:   0.01,
			GainMax:   100,
		},
		Bearing: BearingConfig{
			Method:          MethodCorrelation,
			SmoothingWindow: 5,
			OutputRateHz:    10,
			NorthOffsetDeg:  0,
			StrengthWeight:  0.34,
			CoherenceWeight: 0.33,
			SNRWeight:       0.33,
			SNRNormDB:       30,
		},
	}
}

// SwapChannels exchanges the Doppler and north-tick channel roles.
func (c *Config) SwapChannels() {
	c.Audio.DopplerChannel, c.Audio.NorthChannel =
		c.Audio.NorthChannel, c.Audio.DopplerChannel
}

// Validate fails fast on flag combinations the DSP cannot run with.
func (c *Config) Validate() error {
	a := &c.Audio
	if a.SampleRate <= 0 {
		return configErrorf("sample rate %.0f must be positive", a.SampleRate)
	}
	if a.BlockSize <= 0 {
		return configErrorf("block size %d must be positive", a.BlockSize)
	}
	if a.QueueBlocks < 32 {
		return configErrorf("queue depth %d below minimum of 32 blocks", a.QueueBlocks)
	}
	if a.DopplerChannel == a.NorthChannel {
		return configErrorf("doppler and north tick cannot share the %s channel", a.DopplerChannel)
	}

	d := &c.Doppler
	if d.RotationHz <= 0 || d.RotationHz >= a.SampleRate/2 {
		return configErrorf("rotation frequency %.1f Hz outside (0, Fs/2)", d.RotationHz)
	}
	if d.BandpassLow <= 0 || d.BandpassHigh <= d.BandpassLow || d.BandpassHigh >= a.SampleRate/2 {
		return configErrorf("bandpass [%.0f, %.0f] Hz is not a valid band below Nyquist",
			d.BandpassLow, d.BandpassHigh)
	}
	if d.FilterOrder < 2 || d.FilterOrder%2 != 0 {
		return configErrorf("doppler filter order %d must be a positive even number", d.FilterOrder)
	}
	if d.RotationsPerEstimate < 1 {
		return configErrorf("rotations per estimate %d must be at least 1", d.RotationsPerEstimate)
	}

	n := &c.North
	if n.Threshold <= 0 || n.Threshold >= 1 {
		return configErrorf("north threshold %.3f outside (0, 1)", n.Threshold)
	}
	if n.HighpassCutoff <= 0 || n.HighpassCutoff >= a.SampleRate/2 {
		return configErrorf("north highpass cutoff %.0f Hz outside (0, Fs/2)", n.HighpassCutoff)
	}
	if n.FilterOrder < 2 || n.FilterOrder%2 != 0 {
		return configErrorf("north filter order %d must be a positive even number", n.FilterOrder)
	}
	if n.MinIntervalMs <= 0 {
		return configErrorf("north minimum interval %.2f ms must be positive", n.MinIntervalMs)
	}

	p := &c.DPLL
	if !(0 < p.Beta && p.Beta < p.Alpha && p.Alpha < 1) {
		return configErrorf("dpll gains must satisfy 0 < beta < alpha < 1 (alpha=%.3f beta=%.4f)",
			p.Alpha, p.Beta)
	}
	if p.StatsWindow < 2 {
		return configErrorf("dpll stats window %d too small", p.StatsWindow)
	}
	if p.LockTicks < 1 {
		return configErrorf("dpll lock ticks %d must be positive", p.LockTicks)
	}
	if w := p.PhaseWeight + p.FreqWeight; w < 0.999 || w > 1.001 {
		return configErrorf("dpll score weights sum to %.3f, want 1", w)
	}

	g := &c.AGC
	if g.TargetRMS <= 0 || g.AttackMs <= 0 || g.ReleaseMs <= 0 {
		return configErrorf("agc target/attack/release must all be positive")
	}
	if g.GainMin <= 0 || g.GainMax <= g.GainMin {
		return configErrorf("agc gain range [%.3f, %.1f] invalid", g.GainMin, g.GainMax)
	}

	b := &c.Bearing
	if b.SmoothingWindow < 1 {
		return configErrorf("smoothing window must be at least 1")
	}
	if b.OutputRateHz <= 0 {
		return configErrorf("output rate %.2f Hz must be positive", b.OutputRateHz)
	}
	if w := b.StrengthWeight + b.CoherenceWeight + b.SNRWeight; w < 0.999 || w > 1.001 {
		return configErrorf("confidence weights sum to %.3f, want 1", w)
	}
	if b.SNRNormDB <= 0 {
		return configErrorf("snr normalization %.1f dB must be positive", b.SNRNormDB)
	}
	return nil
}

// ParseRotation parses a commutator rate argument.  Accepted forms are a bare
// frequency ("1602"), an explicit frequency ("1602hz"), or a period
// ("624us", "0.624ms").
func ParseRotation(s string) (float64, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	if t == "" {
		return 0, configErrorf("empty rotation argument")
	}

	var unit string
	for _, u := range []string{"hz", "us", "ms", "s"} {
		if strings.HasSuffix(t, u) {
			unit = u
			t = strings.TrimSuffix(t, u)
			break
		}
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
	if err != nil || v <= 0 {
		return 0, configErrorf("cannot parse rotation %q", s)
	}

	switch unit {
	case "", "hz":
		return v, nil
	case "us":
		return 1e6 / v, nil
	case "ms":
		return 1e3 / v, nil
	default:
		return 1 / v, nil
	}
}

// LoadConfigFile overlays values from a YAML file onto c.  Flags parsed after
// the load still win.
func LoadConfigFile(path string, c *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return configErrorf("config file: %v", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return configErrorf("config file %s: %v", path, err)
	}
	return nil
}

// WindowSamples is the phase-estimator window length in samples.
func (c *Config) WindowSamples() int {
	perRotation := int(c.Audio.SampleRate/c.Doppler.RotationHz + 0.5)
	return perRotation * c.Doppler.RotationsPerEstimate
}

func (c *Config) String() string {
	return fmt.Sprintf("Fs=%.0f rot=%.1fHz band=[%.0f,%.0f] method=%s north=%s out=%.1fHz",
		c.Audio.SampleRate, c.Doppler.RotationHz, c.Doppler.BandpassLow, c.Doppler.BandpassHigh,
		c.Bearing.Method, c.North.Mode, c.Bearing.OutputRateHz)
}
