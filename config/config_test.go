package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	moqerrors "github.com/suhasHere/moqbridge/errors"
)

const fullYAML = `
relayUrl: https://relay.example.net/moq
clientName: bridge-1
connectTimeout: 10s
idleTimeout: 30s
shutdownTimeout: 2s
maxSendBuffer: 1048576
enableDatagrams: true
insecureSkipVerify: false
tlsCertPath: /etc/moq/cert.pem
tlsKeyPath: /etc/moq/key.pem
tlsCaPath: ""
`

func TestParse_Full(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := &Config{
		RelayURL:           "https://relay.example.net/moq",
		ClientName:         String("bridge-1"),
		ConnectTimeout:     Duration(10 * time.Second),
		IdleTimeout:        Duration(30 * time.Second),
		ShutdownTimeout:    Duration(2 * time.Second),
		MaxSendBuffer:      Uint32(1 << 20),
		EnableDatagrams:    Bool(true),
		InsecureSkipVerify: Bool(false),
		TLSCertPath:        String("/etc/moq/cert.pem"),
		TLSKeyPath:         String("/etc/moq/key.pem"),
		TLSCAPath:          String(""),
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	if cfg.QlogDir != nil {
		t.Errorf("absent qlogDir decoded as %q", *cfg.QlogDir)
	}
	if cfg.ShutdownWait() != 2*time.Second {
		t.Errorf("ShutdownWait() = %v", cfg.ShutdownWait())
	}
}

func TestParse_NullIsAbsent(t *testing.T) {
	cfg, err := Parse([]byte("relayUrl: https://r.example\nqlogDir: null\nclientName: \"\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.QlogDir != nil {
		t.Error("explicit null should decode as absent")
	}
	if cfg.ClientName == nil || *cfg.ClientName != "" {
		t.Error("empty string should decode as present and empty")
	}
	if cfg.ShutdownWait() != DefaultShutdownTimeout {
		t.Errorf("ShutdownWait() = %v", cfg.ShutdownWait())
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "relayUrl: https://r.example\nbogus: 1\n"},
		{"missing relay", "clientName: x\n"},
		{"relay without host", "relayUrl: relay\n"},
		{"negative timeout", "relayUrl: https://r.example\nidleTimeout: -1s\n"},
		{"sub-millisecond connect timeout", "relayUrl: https://r.example\nconnectTimeout: 500us\n"},
		{"sub-millisecond idle timeout", "relayUrl: https://r.example\nidleTimeout: 1ns\n"},
		{"zero buffer", "relayUrl: https://r.example\nmaxSendBuffer: 0\n"},
		{"cert without key", "relayUrl: https://r.example\ntlsCertPath: /c.pem\n"},
		{"not yaml", "relayUrl: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if !errors.Is(err, moqerrors.ErrConfiguration) {
				t.Fatalf("Parse error = %v, want configuration error", err)
			}
		})
	}
}

func TestParse_MillisecondTimeouts(t *testing.T) {
	cfg, err := Parse([]byte("relayUrl: https://r.example\nconnectTimeout: 0s\nidleTimeout: 1ms\nshutdownTimeout: 500us\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rec, err := cfg.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if f, _ := rec.Lookup("idleTimeout"); !f.Present || f.Uint != 1 {
		t.Errorf("idleTimeout = %v, want present 1ms", f)
	}
	if f, _ := rec.Lookup("connectTimeout"); !f.Present || f.Uint != 0 {
		t.Errorf("connectTimeout = %v, want present 0", f)
	}
	if cfg.ShutdownWait() != 500*time.Microsecond {
		t.Errorf("ShutdownWait() = %v", cfg.ShutdownWait())
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "moq.yaml")
	if err := os.WriteFile(path, []byte(fullYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RelayURL != "https://relay.example.net/moq" {
		t.Errorf("RelayURL = %q", cfg.RelayURL)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); !errors.Is(err, moqerrors.ErrConfiguration) {
		t.Errorf("Load(missing) = %v", err)
	}
}
