package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/core/ports"
)

// hangingExtractor blocks until the caller's context ends.
type hangingExtractor struct{}

func (hangingExtractor) Extract(ctx context.Context, _ ports.ExtractionInput) (*domain.ExtractedInsight, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestExtractionTimeoutLeavesArtifactRetryable(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	slow := NewExtractInsightsUseCase(env.registry, env.content, rawReader{}, hangingExtractor{}, env.queue, false, discardLogger())
	res := env.submit(t, "Slow model")

	job, err := env.queue.Start(ctx, res.JobID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	jobCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	execErr := slow.Execute(jobCtx, job, nil)
	if !errors.Is(execErr, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", execErr)
	}

	artifact, err := env.registry.Get(ctx, testBrand, res.ArtifactID)
	if err != nil {
		t.Fatalf("get artifact: %v", err)
	}
	if artifact.Status != domain.ArtifactFailed || artifact.RetryCount != 1 {
		t.Fatalf("expected failed artifact with one retry, got %s retry=%d", artifact.Status, artifact.RetryCount)
	}

	requeued, err := env.queue.Fail(ctx, job.ID, execErr)
	if err != nil {
		t.Fatalf("fail job: %v", err)
	}
	if requeued.Status != domain.JobPending {
		t.Fatalf("timeout must requeue the job, got %s", requeued.Status)
	}

	env.extractor.on("Slow model", insightWithFact("company", "Eventually answered"))
	if _, err := env.runJob(t, res.JobID); err != nil {
		t.Fatalf("retry after timeout: %v", err)
	}
	artifact, _ = env.registry.Get(ctx, testBrand, res.ArtifactID)
	if artifact.Status != domain.ArtifactExtracted {
		t.Fatalf("expected extracted after retry, got %s", artifact.Status)
	}
}

// strandArtifact leaves the artifact in extracting with its job terminally
// failed, as a crashed worker would.
func strandArtifact(t *testing.T, env *testEnv, res ports.SubmitResult) {
	t.Helper()
	ctx := context.Background()
	if _, err := env.queue.Start(ctx, res.JobID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := env.registry.BeginExtraction(ctx, testBrand, res.ArtifactID); err != nil {
		t.Fatalf("begin extraction: %v", err)
	}
	if _, err := env.registry.MarkExtracting(ctx, testBrand, res.ArtifactID); err != nil {
		t.Fatalf("mark extracting: %v", err)
	}
	if _, err := env.queue.Fail(ctx, res.JobID, domain.ErrUnsupportedJobType); err != nil {
		t.Fatalf("fail job: %v", err)
	}
}

func TestJobAdminRetryRecoversInterruptedArtifact(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	res := env.submit(t, "Crashed mid flight")
	strandArtifact(t, env, res)

	admin := NewJobAdminUseCase(env.gate, env.queue, env.registry, nil)
	job, err := admin.Retry(ctx, testUser, res.JobID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if job.Status != domain.JobPending {
		t.Fatalf("expected pending job, got %s", job.Status)
	}
	artifact, _ := env.registry.Get(ctx, testBrand, res.ArtifactID)
	if artifact.Status != domain.ArtifactPending || artifact.RetryCount != 0 || artifact.LastError == "" {
		t.Fatalf("expected recovered artifact, got %s retry=%d err=%q", artifact.Status, artifact.RetryCount, artifact.LastError)
	}

	env.extractor.on("Crashed mid flight", insightWithFact("company", "Recovered"))
	if _, err := env.runJob(t, res.JobID); err != nil {
		t.Fatalf("run recovered job: %v", err)
	}
}

func TestJobAdminRetryRefusesWhileExtractionRuns(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	res := env.submit(t, "Busy")
	strandArtifact(t, env, res)

	other, err := env.queue.Enqueue(ctx, EnqueueRequest{Type: domain.JobExtractInsights, BrandID: testBrand, ArtifactID: res.ArtifactID})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := env.queue.Start(ctx, other.ID); err != nil {
		t.Fatalf("start other: %v", err)
	}

	admin := NewJobAdminUseCase(env.gate, env.queue, env.registry, nil)
	if _, err := admin.Retry(ctx, testUser, res.JobID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	artifact, _ := env.registry.Get(ctx, testBrand, res.ArtifactID)
	if artifact.Status != domain.ArtifactExtracting {
		t.Fatalf("artifact must be left to the running job, got %s", artifact.Status)
	}
}

func TestPermanentExtractorFailureIsNotRequeued(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	env.extractor.failOn("Rejected prompt", domain.WrapError(domain.ErrPermanent, "ollama generate", errors.New("400 Bad Request")))
	res := env.submit(t, "Rejected prompt")

	if _, err := env.runJob(t, res.JobID); !errors.Is(err, domain.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	job, err := env.queue.Get(ctx, res.JobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != domain.JobFailed || job.RetryCount != 1 {
		t.Fatalf("expected job failed after one attempt, got %s retry=%d", job.Status, job.RetryCount)
	}
	if pending := env.pending(t); len(pending) != 0 {
		t.Fatalf("expected no requeued jobs, got %d", len(pending))
	}
	artifact, _ := env.registry.Get(ctx, testBrand, res.ArtifactID)
	if artifact.Status != domain.ArtifactFailed {
		t.Fatalf("expected failed artifact, got %s", artifact.Status)
	}
}
