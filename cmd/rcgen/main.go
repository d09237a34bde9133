// rcgen writes synthetic pseudo-Doppler test WAVs: Doppler tone on the
// left channel, north ticks on the right.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	rotaryclub "github.com/charlieh0tel/rotaryclub/src"
)

func main() {
	var (
		out      = pflag.StringP("out", "O", "test_signal.wav", "Output WAV path.")
		duration = pflag.Float64P("duration", "t", 5, "Signal length in seconds.")
		bearing  = pflag.Float64P("bearing", "b", 90, "True bearing in degrees.")
		sweepTo  = pflag.Float64("sweep-to", -1, "Sweep linearly to this bearing over the duration.")
		rotation = pflag.String("rotation", "1602", "Commutator rate (1602, 1602hz, 624us).")
		rate     = pflag.Float64("sample-rate", 48000, "Sample rate in Hz.")
		snr      = pflag.Float64("snr", 0, "Add noise at this SNR in dB (0 = clean).")
		seed     = pflag.Int64("seed", 1, "Noise generator seed.")
	)
	pflag.Parse()

	rotationHz, err := rotaryclub.ParseRotation(*rotation)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(rotaryclub.ExitConfig)
	}

	bearingFn := func(float64) float64 { return *bearing }
	if *sweepTo >= 0 {
		from, to, span := *bearing, *sweepTo, *duration
		bearingFn = func(t float64) float64 {
			return from + (to-from)*t/span
		}
	}

	samples := rotaryclub.GenerateSignal(*duration, *rate, rotationHz, bearingFn,
		rotaryclub.SignalOptions{SNRdB: *snr, NoiseSeed: *seed})

	w, err := rotaryclub.NewWavWriter(*out, int(*rate), 2)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(rotaryclub.ExitFile)
	}
	if err := w.Write(samples); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(rotaryclub.ExitFile)
	}
	if err := w.Close(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(rotaryclub.ExitFile)
	}

	fmt.Printf("%s: %.1f s at %.0f Hz, rotation %.1f Hz\n",
		*out, *duration, *rate, rotationHz)
}
