// Package config holds the client configuration and its boundary form.
//
// Optional fields are pointers: nil means the option was not given, and that
// absence travels to the engine as a null marker. An empty string that was
// given stays an empty, non-null value. The two never collapse.
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	moqerrors "github.com/suhasHere/moqbridge/errors"
)

// DefaultShutdownTimeout bounds the wait for a disconnect acknowledgement
// when ShutdownTimeout is not set.
const DefaultShutdownTimeout = 5 * time.Second

// Config is the client configuration.
type Config struct {
	RelayURL string `yaml:"relayUrl"`

	ClientName *string `yaml:"clientName,omitempty"`

	ConnectTimeout  *time.Duration `yaml:"connectTimeout,omitempty"`
	IdleTimeout     *time.Duration `yaml:"idleTimeout,omitempty"`
	ShutdownTimeout *time.Duration `yaml:"shutdownTimeout,omitempty"`

	MaxSendBuffer *uint32 `yaml:"maxSendBuffer,omitempty"`

	EnableDatagrams    *bool `yaml:"enableDatagrams,omitempty"`
	InsecureSkipVerify *bool `yaml:"insecureSkipVerify,omitempty"`

	TLSCertPath *string `yaml:"tlsCertPath,omitempty"`
	TLSKeyPath  *string `yaml:"tlsKeyPath,omitempty"`
	TLSCAPath   *string `yaml:"tlsCaPath,omitempty"`
	QlogDir     *string `yaml:"qlogDir,omitempty"`
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, moqerrors.Wrap(moqerrors.PhaseConfig, moqerrors.KindConfiguration, err, fmt.Sprintf("read %s", path))
	}
	return Parse(data)
}

// Parse decodes and validates YAML. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, moqerrors.Wrap(moqerrors.PhaseConfig, moqerrors.KindConfiguration, err, "decode yaml")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges. Marshal performs the boundary checks.
func (c *Config) Validate() error {
	if c.RelayURL == "" {
		return moqerrors.Configuration("relayUrl", "required")
	}
	u, err := url.Parse(c.RelayURL)
	if err != nil {
		return moqerrors.New(moqerrors.PhaseConfig, moqerrors.KindConfiguration).
			Field("relayUrl").Cause(err).Detail("invalid url").Build()
	}
	if u.Scheme == "" || u.Host == "" {
		return moqerrors.Configuration("relayUrl", "scheme and host are required")
	}

	for _, d := range []struct {
		name     string
		v        *time.Duration
		boundary bool
	}{
		{"connectTimeout", c.ConnectTimeout, true},
		{"idleTimeout", c.IdleTimeout, true},
		{"shutdownTimeout", c.ShutdownTimeout, false},
	} {
		if d.v == nil {
			continue
		}
		if *d.v < 0 {
			return moqerrors.Configuration(d.name, "must not be negative")
		}
		// Engines take whole milliseconds.
		if d.boundary && *d.v > 0 && *d.v < time.Millisecond {
			return moqerrors.Configuration(d.name, "must be 0 or at least 1ms")
		}
	}

	if c.MaxSendBuffer != nil && *c.MaxSendBuffer == 0 {
		return moqerrors.Configuration("maxSendBuffer", "must be positive when set")
	}
	if (c.TLSCertPath == nil) != (c.TLSKeyPath == nil) {
		return moqerrors.Configuration("tlsKeyPath", "tlsCertPath and tlsKeyPath must be given together")
	}
	return nil
}

// ShutdownWait returns the configured shutdown bound or the default.
func (c *Config) ShutdownWait() time.Duration {
	if c.ShutdownTimeout != nil {
		return *c.ShutdownTimeout
	}
	return DefaultShutdownTimeout
}

// String returns a pointer to s.
func String(s string) *string { return &s }

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Duration returns a pointer to d.
func Duration(d time.Duration) *time.Duration { return &d }

// Uint32 returns a pointer to v.
func Uint32(v uint32) *uint32 { return &v }
