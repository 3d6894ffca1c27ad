package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestSetupTagsServiceAndRespectsLevel(t *testing.T) {
	Setup("warn", "openlews-detect")
	if !slog.Default().Enabled(nil, slog.LevelWarn) {
		t.Error("expected warn level to be enabled")
	}
	if slog.Default().Enabled(nil, slog.LevelDebug) {
		t.Error("expected debug level to be disabled at warn threshold")
	}
}

func TestJSONHandlerEmitsServiceField(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil)).With("service", "openlews-ingest")
	logger.Info("started")

	var parsed map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &parsed); err != nil {
		t.Fatalf("log line is not valid JSON: %v (%s)", err, buf.String())
	}
	if parsed["service"] != "openlews-ingest" {
		t.Errorf("service field = %v, want openlews-ingest", parsed["service"])
	}
	if !strings.Contains(buf.String(), "\"msg\":\"started\"") {
		t.Errorf("expected msg field in log line, got %s", buf.String())
	}
}
