// Package config holds the process-wide configuration surface and the
// validation that turns a bad flag value into a fatal startup error.
package config

import (
	"flag"
	"fmt"
	"time"
)

// ConfigError reports an invalid enumerated value or a missing TLS
// credential discovered at startup. It is always fatal.
type ConfigError struct {
	Field string
	Value any
	Msg   string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("config: %s=%v: %s", e.Field, e.Value, e.Msg)
}

func newConfigError(field string, value any, msg string) *ConfigError {
	return &ConfigError{Field: field, Value: value, Msg: msg}
}

// Config is the full set of knobs the broadcaster needs at startup. It is
// immutable once Load returns.
type Config struct {
	// Network
	Addr       string // QUIC/WebTransport listen address, e.g. ":8908"
	HTTPAddr   string // side-channel health/status listen address
	IdleTimeout time.Duration

	// TLS
	CertFile string
	KeyFile  string

	// Capture
	Device      int
	BlockSize   int
	Channels    int
	SampleRate  int
	SampleFmt   string
	QueueCap    int

	// Route served by the one shipped handler
	BroadcastPath string
}

// Load parses os.Args-style flags into a Config and validates it. A flag
// parse failure is returned as the flag package's own error (flag.ErrHelp
// for -h); a validation failure is a *ConfigError, which callers should
// treat as fatal.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("broadcastd", flag.ContinueOnError)

	cfg := &Config{}
	fs.StringVar(&cfg.Addr, "addr", ":8908", "QUIC/WebTransport listen address")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", ":8909", "health/status HTTP listen address")
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", 30*time.Second, "QUIC connection idle timeout")
	fs.StringVar(&cfg.CertFile, "cert", "", "PEM certificate chain (dev self-signed cert used if empty)")
	fs.StringVar(&cfg.KeyFile, "key", "", "PEM private key (dev self-signed cert used if empty)")
	fs.IntVar(&cfg.Device, "device", -1, "capture device index (-1 = default input device)")
	fs.IntVar(&cfg.BlockSize, "block-size", 1024, "samples per channel per captured block")
	fs.IntVar(&cfg.Channels, "channels", 1, "capture channel count")
	fs.IntVar(&cfg.SampleRate, "sample-rate", 48000, "capture sample rate in Hz")
	fs.StringVar(&cfg.SampleFmt, "sample-format", "i16", "capture sample format: i16, i24, i32")
	fs.IntVar(&cfg.QueueCap, "queue-capacity", 256, "fanout hub bounded queue capacity")
	fs.StringVar(&cfg.BroadcastPath, "broadcast-path", "/broadcast", "WebTransport CONNECT path the broadcast handler is registered on")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validBlockSizes = map[int]bool{1024: true, 2048: true, 4096: true, 8192: true}
var validChannels = map[int]bool{1: true, 2: true}
var validSampleRates = map[int]bool{
	16000: true, 22050: true, 44100: true, 48000: true,
	88200: true, 96000: true, 176400: true, 192000: true,
}
var validSampleFmts = map[string]bool{"i16": true, "i24": true, "i32": true}

// Validate rejects any enumerated value outside the sets fixed by the data
// model. A zero-value queue capacity falls back to the documented default
// of 256 rather than being rejected, matching the data model's "default
// 256" phrasing.
func (c *Config) Validate() error {
	if !validBlockSizes[c.BlockSize] {
		return newConfigError("block-size", c.BlockSize, "must be one of 1024, 2048, 4096, 8192")
	}
	if !validChannels[c.Channels] {
		return newConfigError("channels", c.Channels, "must be 1 or 2")
	}
	if !validSampleRates[c.SampleRate] {
		return newConfigError("sample-rate", c.SampleRate, "unsupported sample rate")
	}
	if !validSampleFmts[c.SampleFmt] {
		return newConfigError("sample-format", c.SampleFmt, "must be one of i16, i24, i32")
	}
	if c.QueueCap <= 0 {
		c.QueueCap = 256
	}
	if c.Addr == "" {
		return newConfigError("addr", c.Addr, "must not be empty")
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return newConfigError("cert/key", "", "cert and key must both be set or both be empty")
	}
	return nil
}
