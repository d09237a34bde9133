package rotaryclub

import (
	"encoding/binary"
	"io"
	"math"
	"os"
)

// WAV format tags we accept.
const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// WavReader streams interleaved samples out of a RIFF/WAVE file.
// 16-bit PCM and 32-bit float are supported.
type WavReader struct {
	f          *os.File
	SampleRate int
	Channels   int
	Bits       int
	format     uint16
	remaining  uint32 // bytes left in the data chunk
}

// OpenWav opens a WAV file and parses its header up to the data chunk.
func OpenWav(path string) (*WavReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fileErrorf("%v", err)
	}

	r := &WavReader{f: f}
	if err := r.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func (r *WavReader) readHeader() error {
	var riff [12]byte
	if _, err := io.ReadFull(r.f, riff[:]); err != nil {
		return fileErrorf("short WAV header: %v", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return fileErrorf("not a RIFF/WAVE file")
	}

	var haveFmt bool
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r.f, chunk[:]); err != nil {
			return fileErrorf("missing data chunk: %v", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r.f, body); err != nil {
				return fileErrorf("truncated fmt chunk: %v", err)
			}
			r.format = binary.LittleEndian.Uint16(body[0:2])
			r.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			r.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			r.Bits = int(binary.LittleEndian.Uint16(body[14:16]))
			haveFmt = true

		case "data":
			if !haveFmt {
				return fileErrorf("data chunk before fmt chunk")
			}
			switch {
			case r.format == wavFormatPCM && r.Bits == 16:
			case r.format == wavFormatFloat && r.Bits == 32:
			default:
				return fileErrorf("unsupported WAV encoding (format %d, %d bits); want 16-bit PCM or 32-bit float",
					r.format, r.Bits)
			}
			r.remaining = size
			return nil

		default:
			// Skip LIST, fact, cue and friends.
			if _, err := r.f.Seek(int64(size+size%2), io.SeekCurrent); err != nil {
				return fileErrorf("seeking past %q chunk: %v", id, err)
			}
		}
	}
}

// ReadBlock reads up to frames interleaved frames, scaled to [-1, 1].
// io.EOF is returned at the end of the data chunk.
func (r *WavReader) ReadBlock(frames int) ([]float32, error) {
	bytesPerSample := r.Bits / 8
	frameBytes := bytesPerSample * r.Channels
	want := uint32(frames * frameBytes)
	if want > r.remaining {
		want = r.remaining - r.remaining%uint32(frameBytes)
	}
	if want == 0 {
		return nil, io.EOF
	}

	raw := make([]byte, want)
	n, err := io.ReadFull(r.f, raw)
	if err != nil && n == 0 {
		return nil, io.EOF
	}
	n -= n % frameBytes
	r.remaining -= uint32(n)

	count := n / bytesPerSample
	out := make([]float32, count)
	if r.format == wavFormatPCM {
		for i := 0; i < count; i++ {
			v := int16(binary.LittleEndian.Uint16(raw[2*i:]))
			out[i] = float32(v) / 32768
		}
	} else {
		for i := 0; i < count; i++ {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
		}
	}
	return out, nil
}

// Close releases the file.
func (r *WavReader) Close() error { return r.f.Close() }

// WavWriter writes an interleaved 32-bit float WAV file.  The header is
// finalized on Close.
type WavWriter struct {
	f          *os.File
	channels   int
	sampleRate int
	dataBytes  uint32
}

// NewWavWriter creates (or truncates) a float32 WAV file.
func NewWavWriter(path string, sampleRate, channels int) (*WavWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fileErrorf("%v", err)
	}
	w := &WavWriter{f: f, channels: channels, sampleRate: sampleRate}
	if err := w.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (w *WavWriter) writeHeader() error {
	var hdr [44]byte
	copy(hdr[0:4], "RIFF")
	// Sizes at offsets 4 and 40 are patched on Close.
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], wavFormatFloat)
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(w.channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(w.sampleRate))
	byteRate := w.sampleRate * w.channels * 4
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(w.channels*4))
	binary.LittleEndian.PutUint16(hdr[34:36], 32)
	copy(hdr[36:40], "data")
	_, err := w.f.Write(hdr[:])
	if err != nil {
		return fileErrorf("%v", err)
	}
	return nil
}

// Write appends interleaved samples.
func (w *WavWriter) Write(samples []float32) error {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(s))
	}
	n, err := w.f.Write(buf)
	w.dataBytes += uint32(n)
	if err != nil {
		return fileErrorf("%v", err)
	}
	return nil
}

// Close patches the header sizes and closes the file.
func (w *WavWriter) Close() error {
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], 36+w.dataBytes)
	if _, err := w.f.WriteAt(size[:], 4); err != nil {
		w.f.Close()
		return fileErrorf("%v", err)
	}
	binary.LittleEndian.PutUint32(size[:], w.dataBytes)
	if _, err := w.f.WriteAt(size[:], 40); err != nil {
		w.f.Close()
		return fileErrorf("%v", err)
	}
	return w.f.Close()
}
