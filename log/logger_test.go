package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestLogger_SessionFields(t *testing.T) {
	var buf bytes.Buffer
	meta := &SessionMeta{SessionID: "sess-1", Endpoint: "http://localhost:8080"}
	logger := NewLogger(meta).WithOutput(&buf)

	logger.Info("connected", map[string]any{"bucket": "default"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if entry["session_id"] != "sess-1" {
		t.Errorf("session_id = %v, want sess-1", entry["session_id"])
	}
	if entry["endpoint"] != "http://localhost:8080" {
		t.Errorf("endpoint = %v", entry["endpoint"])
	}
	if entry["message"] != "connected" {
		t.Errorf("message = %v", entry["message"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["bucket"] != "default" {
		t.Errorf("fields = %v", entry["fields"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&SessionMeta{SessionID: "s"}).WithOutput(&buf)

	logger.Debug("hidden", nil)
	if buf.Len() != 0 {
		t.Fatalf("debug entry written at info level: %s", buf.String())
	}

	logger.SetLevel(zapcore.DebugLevel)
	logger.Debug("shown", nil)
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("debug entry missing after SetLevel: %q", buf.String())
	}
	if !logger.Enabled(zapcore.DebugLevel) {
		t.Error("Enabled(debug) should be true")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{"", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"trace", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewSessionMeta_UniqueIDs(t *testing.T) {
	a := NewSessionMeta("x")
	b := NewSessionMeta("x")
	if a.SessionID == "" || a.SessionID == b.SessionID {
		t.Errorf("session ids should be unique and non-empty: %q %q", a.SessionID, b.SessionID)
	}
}

func TestNop_Discards(_ *testing.T) {
	l := Nop()
	l.Debug("x", nil)
	l.Sugar().Infof("y %d", 1)
}
