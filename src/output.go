package rotaryclub

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// OutputFormat selects the record formatter.
type OutputFormat int

const (
	FormatText OutputFormat = iota
	FormatKN5R
	FormatJSON
	FormatCSV
)

func (f OutputFormat) String() string {
	switch f {
	case FormatKN5R:
		return "kn5r"
	case FormatJSON:
		return "json"
	case FormatCSV:
		return "csv"
	}
	return "text"
}

// ParseOutputFormat accepts the CLI spellings of the format names.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(s) {
	case "text":
		return FormatText, nil
	case "kn5r":
		return FormatKN5R, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	}
	return 0, configErrorf("unknown output format %q", s)
}

// Formatter renders bearing records as output lines.
type Formatter interface {
	// Header returns a line to print before the first record, or "".
	Header() string
	Format(s BearingSample) string
}

// NewFormatter builds the formatter for a format selector.  verbose extends
// the text format with the quality metrics.
func NewFormatter(f OutputFormat, verbose bool) Formatter {
	switch f {
	case FormatKN5R:
		return kn5rFormatter{now: time.Now}
	case FormatJSON:
		return jsonFormatter{}
	case FormatCSV:
		return csvFormatter{}
	}
	return textFormatter{verbose: verbose}
}

type textFormatter struct {
	verbose bool
}

func (textFormatter) Header() string { return "" }

func (t textFormatter) Format(s BearingSample) string {
	if !t.verbose {
		return fmt.Sprintf("Bearing: %6.1f° (raw: %6.1f°) confidence: %.2f",
			s.SmoothedDeg, s.RawDeg, s.Confidence)
	}
	lock := "-"
	pev := "-"
	if s.Lock.Valid {
		lock = fmt.Sprintf("%.2f", s.Lock.LockQuality)
		pev = fmt.Sprintf("%.4f", s.Lock.PhaseErrorVar)
	}
	return fmt.Sprintf(
		"Bearing: %6.1f° (raw: %6.1f°) conf: %.2f [SNR: %5.1f dB, coh: %.2f, str: %.2f, lock: %s, pev: %s]",
		s.SmoothedDeg, s.RawDeg, s.Confidence, s.SNRdB, s.Coherence, s.Strength, lock, pev)
}

// kn5rFormatter emits the fixed-width 26-character "C" record used by the
// KN5R-RDF plotting tools:
//
//	C  bearing*10 (4)  magnitude (3)  tone peak (3)  unix millis (15)
//
// Magnitude carries signal strength, tone peak carries coherence, both
// scaled to 0-999.
type kn5rFormatter struct {
	now func() time.Time
}

func (kn5rFormatter) Header() string { return "" }

func (k kn5rFormatter) Format(s BearingSample) string {
	angle := int(s.SmoothedDeg*10+0.5) % 3600
	magnitude := int(clamp01(s.Strength)*999 + 0.5)
	tonePeak := int(clamp01(s.Coherence)*999 + 0.5)
	return fmt.Sprintf("C%04d%03d%03d%015d",
		angle, magnitude, tonePeak, k.now().UnixMilli())
}

// bearingRecord is the JSON wire shape.  DPLL-only fields are omitted in
// simple mode.
type bearingRecord struct {
	TimestampS     float64  `json:"timestamp_s"`
	BearingDeg     float64  `json:"bearing_deg"`
	RawDeg         float64  `json:"raw_deg"`
	Confidence     float64  `json:"confidence"`
	SNRdB          float64  `json:"snr_db"`
	Coherence      float64  `json:"coherence"`
	SignalStrength float64  `json:"signal_strength"`
	LockQuality    *float64 `json:"lock_quality,omitempty"`
	PhaseScore     *float64 `json:"phase_score,omitempty"`
	FreqScore      *float64 `json:"freq_score,omitempty"`
	PhaseErrorVar  *float64 `json:"phase_error_variance,omitempty"`
}

func makeRecord(s BearingSample) bearingRecord {
	r := bearingRecord{
		TimestampS:     s.TimeS,
		BearingDeg:     s.SmoothedDeg,
		RawDeg:         s.RawDeg,
		Confidence:     s.Confidence,
		SNRdB:          s.SNRdB,
		Coherence:      s.Coherence,
		SignalStrength: s.Strength,
	}
	if s.Lock.Valid {
		lq, ps, fs, pev := s.Lock.LockQuality, s.Lock.PhaseScore, s.Lock.FreqScore, s.Lock.PhaseErrorVar
		r.LockQuality, r.PhaseScore, r.FreqScore, r.PhaseErrorVar = &lq, &ps, &fs, &pev
	}
	return r
}

type jsonFormatter struct{}

func (jsonFormatter) Header() string { return "" }

func (jsonFormatter) Format(s BearingSample) string {
	data, err := json.Marshal(makeRecord(s))
	if err != nil {
		return "{}"
	}
	return string(data)
}

type csvFormatter struct{}

func (csvFormatter) Header() string {
	return "timestamp_s,bearing_deg,raw_deg,confidence,snr_db,coherence,signal_strength," +
		"lock_quality,phase_score,freq_score,phase_error_variance"
}

func (csvFormatter) Format(s BearingSample) string {
	base := fmt.Sprintf("%.3f,%.1f,%.1f,%.2f,%.1f,%.2f,%.2f",
		s.TimeS, s.SmoothedDeg, s.RawDeg, s.Confidence, s.SNRdB, s.Coherence, s.Strength)
	if !s.Lock.Valid {
		return base + ",,,,"
	}
	return base + fmt.Sprintf(",%.2f,%.2f,%.2f,%.4f",
		s.Lock.LockQuality, s.Lock.PhaseScore, s.Lock.FreqScore, s.Lock.PhaseErrorVar)
}
