package rotaryclub

import (
	"errors"
	"fmt"
)

// Error classes.  Everything that crosses a component boundary is wrapped in
// exactly one of these so the top level can map it to an exit status.
var (
	ErrConfig    = errors.New("invalid configuration")
	ErrAudio     = errors.New("audio device error")
	ErrInputFile = errors.New("input file error")

	// ErrInternal covers NaN escalation and other conditions that force the
	// DSP worker down.
	ErrInternal = errors.New("internal processing error")
)

// Process exit codes.
const (
	ExitOK     = 0
	ExitConfig = 2
	ExitAudio  = 3
	ExitFile   = 4
)

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrConfig):
		return ExitConfig
	case errors.Is(err, ErrAudio):
		return ExitAudio
	case errors.Is(err, ErrInputFile):
		return ExitFile
	default:
		return 1
	}
}

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

func audioErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAudio, fmt.Sprintf(format, args...))
}

func fileErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInputFile, fmt.Sprintf(format, args...))
}
