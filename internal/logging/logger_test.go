package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"rinkreel/internal/logging"
	"rinkreel/internal/services"
)

func TestConsoleFormatIncludesComponentPrefix(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "debug", Format: "console", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logging.NewComponentLogger(logger, "orchestrator").Info("job picked up", logging.String("job_id", "abc"))

	line := buf.String()
	if !strings.Contains(line, "orchestrator: job picked up") {
		t.Fatalf("expected component prefix in %q", line)
	}
	if !strings.Contains(line, "job_id=abc") {
		t.Fatalf("expected attr in %q", line)
	}
}

func TestJSONFormatUsesLowercaseLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Warn("feed lookup slow")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if record["level"] != "warn" {
		t.Fatalf("expected level warn, got %v", record["level"])
	}
	if record["msg"] != "feed lookup slow" {
		t.Fatalf("expected msg field, got %v", record["msg"])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "warn", Format: "console", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	if strings.Contains(buf.String(), "dropped") {
		t.Fatalf("info record should have been filtered: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("warn record missing: %q", buf.String())
	}
}

func TestWithContextAddsPipelineFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "debug", Format: "console", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := services.WithJobID(context.Background(), "job-1")
	ctx = services.WithStep(ctx, "fetch")
	logging.WithContext(ctx, logger).Info("segment downloaded")

	line := buf.String()
	if !strings.Contains(line, "job_id=job-1") || !strings.Contains(line, "step=fetch") {
		t.Fatalf("expected context fields in %q", line)
	}
}
