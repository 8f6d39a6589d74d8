// pkg/logger/logger_test.go
// Unit tests for logger construction

package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNew_LevelFiltering(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantDebug bool
		wantWarn  bool
	}{
		{name: "default is warn", level: "", wantDebug: false, wantWarn: true},
		{name: "debug", level: "debug", wantDebug: true, wantWarn: true},
		{name: "error", level: "error", wantDebug: false, wantWarn: false},
		{name: "garbage falls back to warn", level: "loud", wantDebug: false, wantWarn: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l, err := New(Config{Level: tt.level, Output: &buf})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			l.Debug("debug line")
			l.Warn("warn line")

			out := buf.String()
			if got := strings.Contains(out, "debug line"); got != tt.wantDebug {
				t.Errorf("debug logged = %v, want %v", got, tt.wantDebug)
			}
			if got := strings.Contains(out, "warn line"); got != tt.wantWarn {
				t.Errorf("warn logged = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	l.Info("port answered", Int("port", 443), String("protocol", "tcp"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "port answered" {
		t.Errorf("msg = %v, want port answered", entry["msg"])
	}
	if entry["port"] != float64(443) || entry["protocol"] != "tcp" {
		t.Errorf("fields = %v, want port 443 over tcp", entry)
	}
}

func TestL_NopBeforeInit(t *testing.T) {
	if log != nil {
		t.Skip("global logger already initialised")
	}
	// must not panic
	Warn("nothing happens", Err(errors.New("boom")))
	if err := Sync(); err != nil {
		t.Errorf("Sync() error = %v", err)
	}
}
