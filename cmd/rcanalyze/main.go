// rcanalyze inspects a stereo RDF recording offline: per-channel level
// statistics, the dominant frequency of the Doppler channel, and the pulse
// rate on the north channel.  Useful for checking cabling and levels before
// going mobile.
package main

import (
	"fmt"
	"io"
	"math"
	"math/cmplx"
	"os"

	"github.com/mjibson/go-dsp/fft"
	"github.com/spf13/pflag"

	rotaryclub "github.com/charlieh0tel/rotaryclub/src"
)

const fftSize = 8192

func main() {
	var (
		swap      = pflag.BoolP("swap-channels", "s", false, "Swap channel roles.")
		threshold = pflag.Float64("threshold", 0.15, "Pulse threshold for the tick-rate estimate.")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] FILE.wav\n\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if pflag.NArg() != 1 {
		pflag.Usage()
		os.Exit(rotaryclub.ExitConfig)
	}

	r, err := rotaryclub.OpenWav(pflag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(rotaryclub.ExitFile)
	}
	defer r.Close()

	if r.Channels != 2 {
		fmt.Fprintf(os.Stderr, "%s: want stereo, got %d channels\n", pflag.Arg(0), r.Channels)
		os.Exit(rotaryclub.ExitFile)
	}

	var left, right []float64
	for {
		block, err := r.ReadBlock(4096)
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(rotaryclub.ExitFile)
		}
		for i := 0; i+1 < len(block); i += 2 {
			left = append(left, float64(block[i]))
			right = append(right, float64(block[i+1]))
		}
	}

	doppler, north := left, right
	if *swap {
		doppler, north = right, left
	}

	fs := float64(r.SampleRate)
	fmt.Printf("%s: %d frames, %.0f Hz, %.2f s\n",
		pflag.Arg(0), len(left), fs, float64(len(left))/fs)

	reportChannel("doppler", doppler)
	reportChannel("north  ", north)

	if freq, mag := dominantFrequency(doppler, fs, 100, 5000); freq > 0 {
		fmt.Printf("doppler dominant: %.1f Hz (magnitude %.3g)\n", freq, mag)
	}
	fmt.Printf("north pulse rate: %.1f Hz (threshold %.2f)\n",
		pulseRate(north, fs, *threshold), *threshold)
}

func reportChannel(name string, buf []float64) {
	var sum, peak float64
	for _, v := range buf {
		sum += v * v
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	rms := 0.0
	if len(buf) > 0 {
		rms = math.Sqrt(sum / float64(len(buf)))
	}
	fmt.Printf("%s  rms %.4f  peak %.4f\n", name, rms, peak)
}

// dominantFrequency windows one FFT frame and finds the strongest bin in
// [minHz, maxHz], refined by parabolic interpolation.
func dominantFrequency(buf []float64, fs, minHz, maxHz float64) (float64, float64) {
	if len(buf) < fftSize {
		return 0, 0
	}

	frame := make([]float64, fftSize)
	for i := range frame {
		// Hann window.
		w := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(fftSize-1)))
		frame[i] = buf[i] * w
	}

	spectrum := fft.FFTReal(frame)
	binWidth := fs / fftSize

	lo := int(minHz / binWidth)
	hi := int(maxHz / binWidth)
	if hi > len(spectrum)/2 {
		hi = len(spectrum) / 2
	}

	mags := make([]float64, len(spectrum)/2+1)
	best := lo
	for i := lo; i < hi; i++ {
		mags[i] = cmplx.Abs(spectrum[i])
		if mags[i] > mags[best] {
			best = i
		}
	}
	if best <= 0 || best >= len(mags)-1 || mags[best] == 0 {
		return 0, 0
	}

	alpha, beta, gamma := mags[best-1], mags[best], mags[best+1]
	den := alpha - 2*beta + gamma
	offset := 0.0
	if den != 0 {
		offset = 0.5 * (alpha - gamma) / den
	}
	return (float64(best) + offset) * binWidth, beta
}

// pulseRate counts rising threshold crossings.
func pulseRate(buf []float64, fs, threshold float64) float64 {
	if len(buf) == 0 {
		return 0
	}
	count := 0
	above := false
	for _, v := range buf {
		if !above && v > threshold {
			count++
		}
		above = v > threshold
	}
	return float64(count) * fs / float64(len(buf))
}
