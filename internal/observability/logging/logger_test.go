package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/kirillkom/brand-soul/internal/core/domain"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return line
}

func TestJSONLoggerWritesDurationsAsMilliseconds(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, "brand-soul-worker", "info")
	logger.Info("job completed", slog.Duration("duration", 1500*time.Microsecond))

	line := decodeLine(t, &buf)
	if line["service"] != "brand-soul-worker" {
		t.Fatalf("service = %v", line["service"])
	}
	if line["duration_ms"] != 1.5 {
		t.Fatalf("duration_ms = %v", line["duration_ms"])
	}
	if _, ok := line["duration"]; ok {
		t.Fatalf("raw duration key should be replaced")
	}
}

func TestJSONLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, "api", "WARNING")
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level: %s", buf.String())
	}
	logger.Warn("kept")
	if decodeLine(t, &buf)["msg"] != "kept" {
		t.Fatalf("warn line missing")
	}
}

func TestWithJobScopesFields(t *testing.T) {
	var buf bytes.Buffer
	base := newJSONLogger(&buf, "worker", "debug")
	WithJob(base, &domain.Job{
		ID:         "job-1",
		Type:       domain.JobExtractInsights,
		BrandID:    "acme",
		ArtifactID: "art-1",
		RetryCount: 2,
	}).Info("job failed")

	line := decodeLine(t, &buf)
	want := map[string]any{
		"job_id":      "job-1",
		"job_type":    string(domain.JobExtractInsights),
		"brand_id":    "acme",
		"artifact_id": "art-1",
		"retry_count": float64(2),
	}
	for key, value := range want {
		if line[key] != value {
			t.Fatalf("%s = %v, want %v", key, line[key], value)
		}
	}

	buf.Reset()
	WithJob(base, &domain.Job{ID: "job-2", Type: domain.JobSynthesize, BrandID: "acme"}).Info("synth")
	line = decodeLine(t, &buf)
	if _, ok := line["artifact_id"]; ok {
		t.Fatalf("synthesis jobs carry no artifact id")
	}
	if WithJob(base, nil) != base {
		t.Fatalf("nil job should return the logger unchanged")
	}
}
