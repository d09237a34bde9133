package rotaryclub

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
	"github.com/spf13/pflag"
)

/*------------------------------------------------------------------
 *
 * Name:	Main
 *
 * Purpose:	Entry point for the rotaryclub binary: parse flags, build
 *		the pipeline, pump records to stdout.
 *
 * Returns:	Process exit code.  0 clean shutdown, 2 bad configuration,
 *		3 audio device trouble, 4 input file trouble.
 *
 *------------------------------------------------------------------*/

// Main runs the direction finder.  args is os.Args[1:].
func Main(args []string) int {
	flags := pflag.NewFlagSet("rotaryclub", pflag.ContinueOnError)

	var (
		methodArg     = flags.StringP("method", "m", "correlation", "Phase method: correlation or zero-crossing.")
		northModeArg  = flags.StringP("north-mode", "n", "dpll", "North tracking: dpll or simple.")
		swapChannels  = flags.BoolP("swap-channels", "s", false, "Swap the Doppler and north tick channels.")
		outputRate    = flags.Float64P("output-rate", "r", 10, "Bearing output rate in Hz.")
		northOffset   = flags.Float64P("north-offset", "o", 0, "Offset added to all bearings, degrees.")
		formatArg     = flags.StringP("format", "f", "text", "Output format: text, kn5r, json or csv.")
		inputPath     = flags.StringP("input", "i", "", "Stereo WAV input; omit for live capture.")
		rotationArg   = flags.String("rotation", "", "Commutator rate, e.g. 1602, 1602hz or 624us.")
		removeDC      = flags.Bool("remove-dc", false, "Remove DC offset from both channels.")
		dumpAudio     = flags.String("dump-audio", "", "Tee raw stereo input to a WAV file (strftime patterns OK).")
		northTickGain = flags.Float64("north-tick-gain", 0, "Gain applied to the north tick channel, dB.")
		device        = flags.StringP("device", "d", "", "Capture device name substring.")
		listDevices   = flags.Bool("list-devices", false, "List capture devices and exit.")
		configPath    = flags.StringP("config", "c", "", "YAML configuration file.")
		verbosity     = flags.CountP("verbose", "v", "Increase log verbosity (repeatable).")
	)

	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - pseudo-Doppler radio direction finder\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ExitOK
		}
		fmt.Fprintln(os.Stderr, err)
		return ExitConfig
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "rotaryclub",
	})
	switch *verbosity {
	case 0:
		logger.SetLevel(log.WarnLevel)
	case 1:
		logger.SetLevel(log.InfoLevel)
	default:
		logger.SetLevel(log.DebugLevel)
		if *verbosity > 2 {
			logger.SetReportCaller(true)
		}
	}

	if *listDevices {
		if err := ListDevices(os.Stdout); err != nil {
			return fail(logger, err)
		}
		return ExitOK
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		if err := LoadConfigFile(*configPath, &cfg); err != nil {
			return fail(logger, err)
		}
	}

	if err := applyFlags(&cfg, flags, *methodArg, *northModeArg, *rotationArg,
		*swapChannels, *outputRate, *northOffset, *removeDC, *northTickGain, *device); err != nil {
		return fail(logger, err)
	}

	format, err := ParseOutputFormat(*formatArg)
	if err != nil {
		return fail(logger, err)
	}

	if err := cfg.Validate(); err != nil {
		return fail(logger, err)
	}

	logger.Info("starting", "version", Version, "config", cfg.String())

	var dump *WavWriter
	if *dumpAudio != "" {
		path := expandDumpPath(*dumpAudio)
		dump, err = NewWavWriter(path, int(cfg.Audio.SampleRate), 2)
		if err != nil {
			return fail(logger, err)
		}
		defer dump.Close()
		logger.Info("dumping raw audio", "path", path)
	}

	queue := NewBlockQueue(cfg.Audio.QueueBlocks)
	proc, err := NewProcessor(cfg, queue, logger)
	if err != nil {
		return fail(logger, err)
	}

	runErr := make(chan error, 1)
	if *inputPath != "" {
		reader, err := OpenWav(*inputPath)
		if err != nil {
			return fail(logger, err)
		}
		defer reader.Close()
		if reader.Channels != 2 {
			return fail(logger, fileErrorf("%s: want stereo, got %d channels", *inputPath, reader.Channels))
		}
		if got := float64(reader.SampleRate); got != cfg.Audio.SampleRate {
			return fail(logger, fileErrorf("%s: sample rate %.0f != configured %.0f (no resampling)",
				*inputPath, got, cfg.Audio.SampleRate))
		}
		go func() { runErr <- proc.RunFile(reader, dump) }()
	} else {
		capture, err := NewCapture(cfg.Audio, queue, dump)
		if err != nil {
			return fail(logger, err)
		}
		defer capture.Close()
		if err := capture.Start(); err != nil {
			return fail(logger, err)
		}
		go func() { runErr <- proc.Run() }()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Info("interrupted, draining")
		proc.Stop()
	}()

	formatter := NewFormatter(format, *verbosity >= 1)
	if hdr := formatter.Header(); hdr != "" {
		fmt.Println(hdr)
	}
	for sample := range proc.Output() {
		fmt.Println(formatter.Format(sample))
	}

	if err := <-runErr; err != nil {
		return fail(logger, err)
	}
	return ExitOK
}

// applyFlags folds parsed flag values into the configuration.  Only flags
// the user actually set override config-file values.
func applyFlags(cfg *Config, flags *pflag.FlagSet, method, northMode, rotation string,
	swap bool, outputRate, northOffset float64, removeDC bool, northGain float64, device string) error {

	if flags.Changed("method") {
		m, err := ParseMethod(method)
		if err != nil {
			return err
		}
		cfg.Bearing.Method = m
	}
	if flags.Changed("north-mode") {
		m, err := ParseNorthMode(northMode)
		if err != nil {
			return err
		}
		cfg.North.Mode = m
	}
	if rotation != "" {
		hz, err := ParseRotation(rotation)
		if err != nil {
			return err
		}
		cfg.Doppler.RotationHz = hz
		// Recenter the bandpass on the new rate, keeping its width.
		half := (cfg.Doppler.BandpassHigh - cfg.Doppler.BandpassLow) / 2
		cfg.Doppler.BandpassLow = hz - half
		cfg.Doppler.BandpassHigh = hz + half
	}
	if swap {
		cfg.SwapChannels()
	}
	if flags.Changed("output-rate") {
		cfg.Bearing.OutputRateHz = outputRate
	}
	if flags.Changed("north-offset") {
		cfg.Bearing.NorthOffsetDeg = northOffset
	}
	if removeDC {
		cfg.Audio.RemoveDC = true
	}
	if flags.Changed("north-tick-gain") {
		cfg.Audio.NorthGainDB = northGain
	}
	if device != "" {
		cfg.Audio.Device = device
	}
	return nil
}

// expandDumpPath runs strftime expansion on dump file names so repeated
// sessions do not clobber each other.
func expandDumpPath(pattern string) string {
	if !strings.Contains(pattern, "%") {
		return pattern
	}
	out, err := strftime.Format(pattern, time.Now())
	if err != nil {
		return pattern
	}
	return out
}

// fail prints the single-line error classification and maps the exit code.
func fail(logger *log.Logger, err error) int {
	logger.Error(err.Error())
	return ExitCode(err)
}

// RunFile drives the processor from a WAV reader instead of the capture
// queue.  Blocks are processed synchronously, so nothing is ever dropped.
func (p *Processor) RunFile(r *WavReader, dump *WavWriter) error {
	defer close(p.out)

	var index uint64
	for !p.stopFlag.Load() {
		samples, err := r.ReadBlock(p.cfg.Audio.BlockSize)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if dump != nil {
			if err := dump.Write(samples); err != nil {
				p.log.Warn("audio dump write failed", "err", err)
				dump = nil
			}
		}
		block := &SampleBlock{StartIndex: index, Samples: samples}
		index += uint64(len(samples) / 2)
		if err := p.ProcessBlock(block); err != nil {
			return err
		}
	}
	return nil
}
