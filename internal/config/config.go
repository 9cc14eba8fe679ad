// Package config loads the sketch settings: built-in defaults, then an
// optional TOML or YAML file, then SKETCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"SharedSketch/internal/geom"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Scheme prefixes share links handed to the joining device.
const Scheme = "sharedsketch://"

const DefaultPort = 8888

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Duration is a time.Duration read from strings like "5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	// DeviceName is shown to the peer and advertised over mDNS.
	DeviceName string `toml:"device_name" yaml:"device_name"`
	Port       int    `toml:"port" yaml:"port"`
	// Peer is a share link; when set this device joins instead of hosting.
	Peer string `toml:"peer" yaml:"peer"`
	// Discovery advertises the host, or browses for one when Peer is empty
	// and the device joins.
	Discovery bool `toml:"discovery" yaml:"discovery"`

	MetricsAddr string `toml:"metrics_addr" yaml:"metrics_addr"`
	LogLevel    string `toml:"log_level" yaml:"log_level"`
	Development bool   `toml:"development" yaml:"development"`

	Drawing Drawing `toml:"drawing" yaml:"drawing"`

	WriteTimeout    Duration `toml:"write_timeout" yaml:"write_timeout"`
	MaxMessageBytes int64    `toml:"max_message_bytes" yaml:"max_message_bytes"`
}

// Drawing holds the camera and stroke sampling parameters.
type Drawing struct {
	// Distance in metres in front of the camera at which points are placed.
	Distance float32 `toml:"distance" yaml:"distance"`
	// MinSegmentLength below which a new point is not committed.
	MinSegmentLength float32 `toml:"min_segment_length" yaml:"min_segment_length"`
	// FieldOfView is vertical, in degrees.
	FieldOfView float32 `toml:"field_of_view" yaml:"field_of_view"`
	Aspect      float32 `toml:"aspect" yaml:"aspect"`
}

// Lens converts the drawing settings for the geometry package.
func (d Drawing) Lens() geom.Lens {
	return geom.Lens{
		FieldOfView: d.FieldOfView * math.Pi / 180,
		Aspect:      d.Aspect,
	}
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "sketch"
	}
	return Config{
		DeviceName: name,
		Port:       DefaultPort,
		Discovery:  true,
		LogLevel:   "info",
		Drawing: Drawing{
			Distance:         geom.DefaultDistance,
			MinSegmentLength: 0.002,
			FieldOfView:      60,
			Aspect:           0.75,
		},
		WriteTimeout:    Duration{5 * time.Second},
		MaxMessageBytes: 32 << 20,
	}
}

// Load builds the configuration. path may be empty, in which case only
// the defaults and the environment apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := readFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// readFile decodes path over cfg, picking the format by extension. Keys
// that match no setting are an error.
func readFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
		}
		return nil
	default:
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return fmt.Errorf("config: read %s: %w", path, err)
		}
		if keys := md.Undecoded(); len(keys) > 0 {
			return fmt.Errorf("%w: unknown keys %v in %s", ErrInvalid, keys, path)
		}
		return nil
	}
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	str("SKETCH_DEVICE_NAME", &cfg.DeviceName)
	str("SKETCH_PEER", &cfg.Peer)
	str("SKETCH_METRICS_ADDR", &cfg.MetricsAddr)
	str("SKETCH_LOG_LEVEL", &cfg.LogLevel)

	if v, ok := lookup("SKETCH_PORT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: SKETCH_PORT=%q", ErrInvalid, v)
		}
		cfg.Port = n
	}
	for key, dst := range map[string]*bool{
		"SKETCH_DISCOVERY":   &cfg.Discovery,
		"SKETCH_DEVELOPMENT": &cfg.Development,
	} {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%w: %s=%q", ErrInvalid, key, v)
			}
			*dst = b
		}
	}
	if v, ok := lookup("SKETCH_DISTANCE"); ok {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return fmt.Errorf("%w: SKETCH_DISTANCE=%q", ErrInvalid, v)
		}
		cfg.Drawing.Distance = float32(f)
	}
	if v, ok := lookup("SKETCH_WRITE_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: SKETCH_WRITE_TIMEOUT=%q", ErrInvalid, v)
		}
		cfg.WriteTimeout = Duration{d}
	}
	return nil
}

// Validate rejects settings the rest of the program cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("%w: port %d", ErrInvalid, c.Port)
	case c.Drawing.Distance <= 0:
		return fmt.Errorf("%w: drawing distance %v", ErrInvalid, c.Drawing.Distance)
	case c.Drawing.MinSegmentLength < 0:
		return fmt.Errorf("%w: min segment length %v", ErrInvalid, c.Drawing.MinSegmentLength)
	case c.Drawing.FieldOfView <= 0 || c.Drawing.FieldOfView >= 180:
		return fmt.Errorf("%w: field of view %v", ErrInvalid, c.Drawing.FieldOfView)
	case c.Drawing.Aspect <= 0:
		return fmt.Errorf("%w: aspect %v", ErrInvalid, c.Drawing.Aspect)
	case c.WriteTimeout.Duration <= 0:
		return fmt.Errorf("%w: write timeout %v", ErrInvalid, c.WriteTimeout)
	case c.MaxMessageBytes <= 0:
		return fmt.Errorf("%w: max message bytes %d", ErrInvalid, c.MaxMessageBytes)
	}
	if c.Peer != "" {
		if _, err := ParseLink(c.Peer); err != nil {
			return err
		}
	}
	return nil
}

// ShareLink formats the link a joining device is started with.
func ShareLink(host string, port int) string {
	return Scheme + net.JoinHostPort(host, strconv.Itoa(port))
}

// ParseLink extracts host:port from a share link. A bare host:port is
// accepted too.
func ParseLink(link string) (string, error) {
	addr := strings.TrimSuffix(strings.TrimPrefix(link, Scheme), "/")
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("%w: link %q: %v", ErrInvalid, link, err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 || n > 65535 || host == "" {
		return "", fmt.Errorf("%w: link %q", ErrInvalid, link)
	}
	return addr, nil
}

// IsLink reports whether arg looks like a share link.
func IsLink(arg string) bool { return strings.HasPrefix(arg, Scheme) }
