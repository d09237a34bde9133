// Package rotaryclub implements a pseudo-Doppler radio direction finder.
//
// A 4-element commutated antenna array induces a tone at the rotation
// frequency (nominally 1602 Hz) in the receiver audio.  The phase of that
// tone, measured against a once-per-rotation "north" reference pulse on the
// second channel of a stereo stream, is the bearing of the transmitter.
//
// The processing chain:
//
//	capture -> SPSC block queue -> channel split (+swap/gain/DC removal)
//	    Doppler path: AGC -> bandpass -> phase estimator
//	    North path:   highpass -> tick detector -> DPLL
//	-> bearing calculator -> smoother / rate limiter -> output records
package rotaryclub

// Version is reported in the startup log line.
const Version = "0.3.0"
