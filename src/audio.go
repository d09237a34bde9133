package rotaryclub

import (
	"fmt"
	"io"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// Capture owns the portaudio input stream and feeds the block queue.  The
// callback copies and pushes, and writes the block to the dump file when one
// is set; the queue's drop-oldest policy keeps the push from ever blocking.
type Capture struct {
	stream *portaudio.Stream
	queue  *BlockQueue
	dump   *WavWriter // optional raw stream tee
	index  uint64
}

// NewCapture opens the capture device.  An empty device name selects the
// system default; otherwise the first input device with at least two input
// channels whose name contains the string (case-insensitive) wins.
func NewCapture(cfg AudioConfig, queue *BlockQueue, dump *WavWriter) (*Capture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, audioErrorf("portaudio init: %v", err)
	}

	dev, err := findInputDevice(cfg.Device)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	c := &Capture{queue: queue, dump: dump}

	params := portaudio.HighLatencyParameters(dev, nil)
	params.Input.Channels = 2
	params.SampleRate = cfg.SampleRate
	params.FramesPerBuffer = cfg.BlockSize

	stream, err := portaudio.OpenStream(params, c.onInput)
	if err != nil {
		portaudio.Terminate()
		return nil, audioErrorf("open stream on %q: %v", dev.Name, err)
	}
	c.stream = stream
	return c, nil
}

func (c *Capture) onInput(in []float32) {
	block := &SampleBlock{
		StartIndex: c.index,
		Samples:    append([]float32(nil), in...),
	}
	c.index += uint64(len(in) / 2)
	c.queue.Push(block)

	if c.dump != nil {
		// Best effort; a failing dump must not stall capture.
		_ = c.dump.Write(in)
	}
}

// Start begins delivering blocks.
func (c *Capture) Start() error {
	if err := c.stream.Start(); err != nil {
		return audioErrorf("start stream: %v", err)
	}
	return nil
}

// Close stops the stream and releases portaudio.
func (c *Capture) Close() error {
	err := c.stream.Stop()
	c.stream.Close()
	portaudio.Terminate()
	if err != nil {
		return audioErrorf("stop stream: %v", err)
	}
	return nil
}

func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, audioErrorf("no default input device: %v", err)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, audioErrorf("enumerating devices: %v", err)
	}
	needle := strings.ToLower(name)
	for _, dev := range devices {
		if dev.MaxInputChannels >= 2 &&
			strings.Contains(strings.ToLower(dev.Name), needle) {
			return dev, nil
		}
	}
	return nil, audioErrorf("no stereo input device matching %q", name)
}

// ListDevices prints the capture devices visible to portaudio.
func ListDevices(w io.Writer) error {
	if err := portaudio.Initialize(); err != nil {
		return audioErrorf("portaudio init: %v", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return audioErrorf("enumerating devices: %v", err)
	}

	for _, dev := range devices {
		if dev.MaxInputChannels == 0 {
			continue
		}
		fmt.Fprintf(w, "%-40s  %d ch  %6.0f Hz  [%s]\n",
			dev.Name, dev.MaxInputChannels, dev.DefaultSampleRate, dev.HostApi.Name)
	}
	return nil
}
