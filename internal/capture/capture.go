// Package capture opens a local audio input device and delivers fixed-size
// raw PCM blocks through a callback invoked on PortAudio's own driver
// thread, never on a goroutine the caller controls.
package capture

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

// Config is the capture configuration. It is immutable once passed to New.
type Config struct {
	Device     int
	BlockSize  int
	Channels   int
	SampleRate int
	Format     string // "i16", "i24", "i32"
}

// CaptureOpenError reports a device-open or format-negotiation failure.
// It is returned from Start and is fatal for that Source.
type CaptureOpenError struct {
	Cause error
}

func (e *CaptureOpenError) Error() string { return fmt.Sprintf("capture: open failed: %v", e.Cause) }
func (e *CaptureOpenError) Unwrap() error { return e.Cause }

// BytesPerBlock returns the size in bytes of one captured block for this
// configuration, or 0 if the format has no native byte width (i24).
func (c Config) BytesPerBlock() int {
	bps := bytesPerSample(c.Format)
	return c.BlockSize * c.Channels * bps
}

func bytesPerSample(format string) int {
	switch format {
	case "i16":
		return 2
	case "i32":
		return 4
	default:
		return 0
	}
}

// Source is a single audio capture device. It is not safe to call Start
// concurrently with itself, but the callback it drives is inherently
// concurrent with everything else — it runs on PortAudio's thread.
type Source struct {
	cfg      Config
	onBlock  func([]byte)
	stream   *portaudio.Stream
	started  atomic.Bool
}

// New constructs a Source. onBlock is invoked once per captured block on
// PortAudio's driver thread; it must not block. Each call receives a
// freshly allocated slice that the Source never reuses, so onBlock may
// retain it.
func New(cfg Config, onBlock func([]byte)) *Source {
	return &Source{cfg: cfg, onBlock: onBlock}
}

// Start opens the device and begins delivering blocks. It returns once the
// stream is running; callbacks continue to arrive until Stop is called.
func (s *Source) Start() error {
	if s.cfg.Format == "i24" {
		// gordonklaus/portaudio exposes no native 24-bit sample slice type;
		// the data model keeps i24 in the enumeration but it can never be
		// opened by this driver binding.
		return &CaptureOpenError{Cause: fmt.Errorf("sample format i24 is not supported by this audio backend")}
	}

	if err := portaudio.Initialize(); err != nil {
		return &CaptureOpenError{Cause: err}
	}

	params, err := s.streamParameters()
	if err != nil {
		portaudio.Terminate()
		return &CaptureOpenError{Cause: err}
	}

	var (
		stream *portaudio.Stream
		openErr error
	)
	switch s.cfg.Format {
	case "i16":
		stream, openErr = portaudio.OpenStream(params, s.callbackI16)
	case "i32":
		stream, openErr = portaudio.OpenStream(params, s.callbackI32)
	default:
		openErr = fmt.Errorf("unreachable: unknown sample format %q", s.cfg.Format)
	}
	if openErr != nil {
		portaudio.Terminate()
		return &CaptureOpenError{Cause: openErr}
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return &CaptureOpenError{Cause: err}
	}

	s.stream = stream
	s.started.Store(true)
	slog.Info("capture started", "component", "capture", "device", s.cfg.Device,
		"sample_rate", s.cfg.SampleRate, "channels", s.cfg.Channels, "block_size", s.cfg.BlockSize)
	return nil
}

func (s *Source) streamParameters() (portaudio.StreamParameters, error) {
	if s.cfg.Device < 0 {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return portaudio.StreamParameters{}, err
		}
		return portaudio.StreamParameters{
			Input: portaudio.StreamDeviceParameters{
				Device:   dev,
				Channels: s.cfg.Channels,
				Latency:  dev.DefaultLowInputLatency,
			},
			SampleRate:      float64(s.cfg.SampleRate),
			FramesPerBuffer: s.cfg.BlockSize,
		}, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return portaudio.StreamParameters{}, err
	}
	if s.cfg.Device >= len(devices) {
		return portaudio.StreamParameters{}, fmt.Errorf("device index %d out of range (%d devices present)", s.cfg.Device, len(devices))
	}
	dev := devices[s.cfg.Device]
	return portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: s.cfg.Channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(s.cfg.SampleRate),
		FramesPerBuffer: s.cfg.BlockSize,
	}, nil
}

// callbackI16 runs on PortAudio's driver thread. It receives only the
// input samples, not PortAudio's overflow/underrun status flags, so those
// conditions are not logged; every block the driver hands over is
// delivered.
func (s *Source) callbackI16(in []int16) {
	buf := make([]byte, len(in)*2)
	for i, sample := range in {
		buf[2*i] = byte(sample)
		buf[2*i+1] = byte(sample >> 8)
	}
	s.onBlock(buf)
}

func (s *Source) callbackI32(in []int32) {
	buf := make([]byte, len(in)*4)
	for i, sample := range in {
		buf[4*i] = byte(sample)
		buf[4*i+1] = byte(sample >> 8)
		buf[4*i+2] = byte(sample >> 16)
		buf[4*i+3] = byte(sample >> 24)
	}
	s.onBlock(buf)
}

// Stop halts the stream. Once Stop returns, no further callbacks occur.
func (s *Source) Stop() error {
	if !s.started.CompareAndSwap(true, false) {
		return nil
	}
	var err error
	if s.stream != nil {
		if stopErr := s.stream.Stop(); stopErr != nil {
			err = stopErr
		}
		if closeErr := s.stream.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		s.stream = nil
	}
	portaudio.Terminate()
	slog.Info("capture stopped", "component", "capture")
	return err
}
