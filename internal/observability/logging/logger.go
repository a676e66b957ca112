package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kirillkom/brand-soul/internal/core/domain"
)

func NewJSONLogger(service, level string) *slog.Logger {
	return newJSONLogger(os.Stdout, service, level)
}

func newJSONLogger(w io.Writer, service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       parseLevel(level),
		ReplaceAttr: replaceAttr,
	})
	return slog.New(handler).With(slog.String("service", service))
}

// WithJob scopes a logger to one queued job so every line it writes can be
// joined with the job's status history.
func WithJob(logger *slog.Logger, job *domain.Job) *slog.Logger {
	if job == nil {
		return logger
	}
	attrs := []any{
		slog.String("job_id", job.ID),
		slog.String("job_type", string(job.Type)),
		slog.String("brand_id", job.BrandID),
	}
	if job.ArtifactID != "" {
		attrs = append(attrs, slog.String("artifact_id", job.ArtifactID))
	}
	if job.RetryCount > 0 {
		attrs = append(attrs, slog.Int("retry_count", job.RetryCount))
	}
	return logger.With(attrs...)
}

// replaceAttr writes durations as fractional milliseconds under a _ms key.
func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindDuration {
		return a
	}
	ms := float64(a.Value.Duration()) / float64(time.Millisecond)
	return slog.Float64(a.Key+"_ms", ms)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
