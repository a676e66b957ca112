package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/core/ports"
)

func TestSubmitRegistersPendingArtifactAndJob(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	res := env.submit(t, "Acme makes rockets")
	if res.ArtifactID == "" || res.JobID == "" || res.Duplicate {
		t.Fatalf("unexpected submit result: %+v", res)
	}

	artifact, err := env.registry.Get(ctx, testBrand, res.ArtifactID)
	if err != nil {
		t.Fatalf("get artifact: %v", err)
	}
	if artifact.Status != domain.ArtifactPending || artifact.Visibility != domain.VisibilityPrivate {
		t.Fatalf("unexpected artifact state %s/%s", artifact.Status, artifact.Visibility)
	}
	if artifact.Checksum != Checksum([]byte("Acme makes rockets")) || artifact.CreatedBy != testUser {
		t.Fatalf("unexpected artifact metadata: %+v", artifact)
	}
	if artifact.Priority != domain.DefaultPriority {
		t.Fatalf("expected default priority, got %d", artifact.Priority)
	}

	job, err := env.queue.Get(ctx, res.JobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Type != domain.JobExtractInsights || job.ArtifactID != res.ArtifactID || job.Status != domain.JobPending {
		t.Fatalf("unexpected job: %+v", job)
	}
	if len(env.notifier.ids) != 1 || env.notifier.ids[0] != res.JobID {
		t.Fatalf("expected one notification for %s, got %v", res.JobID, env.notifier.ids)
	}

	raw, err := env.content.Get(ctx, artifact.Content.Path)
	if err != nil || string(raw) != "Acme makes rockets" {
		t.Fatalf("stored content mismatch: %q err=%v", raw, err)
	}
}

func TestSubmitDeduplicatesIdenticalContent(t *testing.T) {
	env := newTestEnv(t, false)

	first := env.submit(t, "Same bytes")
	second := env.submit(t, "Same bytes")
	if !second.Duplicate || second.ArtifactID != first.ArtifactID || second.JobID != "" {
		t.Fatalf("expected duplicate of %s, got %+v", first.ArtifactID, second)
	}
	if jobs := env.pending(t); len(jobs) != 1 {
		t.Fatalf("expected exactly one extraction job, got %d", len(jobs))
	}

	page, err := env.registry.List(context.Background(), testBrand, domain.ArtifactFilter{})
	if err != nil {
		t.Fatalf("list artifacts: %v", err)
	}
	if len(page.Artifacts) != 1 {
		t.Fatalf("expected one artifact, got %d", len(page.Artifacts))
	}
}

func TestConcurrentIdenticalSubmissionsCreateOneArtifact(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	const submitters = 8
	results := make([]ports.SubmitResult, submitters)
	errs := make([]error, submitters)
	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.ingest.Submit(ctx, ports.SubmitArtifactInput{
				BrandID: testBrand,
				UserID:  testUser,
				Type:    domain.ArtifactText,
				Content: []byte("Racing bytes"),
			})
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i, res := range results {
		if errs[i] != nil {
			t.Fatalf("submit %d: %v", i, errs[i])
		}
		if res.ArtifactID != results[0].ArtifactID {
			t.Fatalf("submit %d got artifact %s, want %s", i, res.ArtifactID, results[0].ArtifactID)
		}
		if !res.Duplicate {
			fresh++
		}
	}
	if fresh != 1 {
		t.Fatalf("expected one non-duplicate submission, got %d", fresh)
	}
	page, err := env.registry.List(ctx, testBrand, domain.ArtifactFilter{})
	if err != nil {
		t.Fatalf("list artifacts: %v", err)
	}
	if len(page.Artifacts) != 1 {
		t.Fatalf("expected one artifact for identical content, got %d", len(page.Artifacts))
	}
	if jobs := env.pending(t); len(jobs) != 1 {
		t.Fatalf("expected one extraction job, got %d", len(jobs))
	}
}

func TestResubmitAfterDeleteCreatesNewArtifact(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	first := env.submit(t, "Comeback")
	if err := env.artifacts.Delete(ctx, testUser, testBrand, first.ArtifactID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	second := env.submit(t, "Comeback")
	if second.Duplicate || second.ArtifactID == first.ArtifactID {
		t.Fatalf("expected a fresh artifact after delete, got %+v", second)
	}
}

func TestSubmitRejectsNonMembersBeforeWriting(t *testing.T) {
	env := newTestEnv(t, false)
	_, err := env.ingest.Submit(context.Background(), ports.SubmitArtifactInput{
		BrandID: testBrand,
		UserID:  "stranger",
		Type:    domain.ArtifactText,
		Content: []byte("intrusion"),
	})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if jobs := env.pending(t); len(jobs) != 0 {
		t.Fatalf("expected no jobs after rejected submission, got %d", len(jobs))
	}
	existing, err := env.registry.FindByChecksum(context.Background(), testBrand, Checksum([]byte("intrusion")))
	if err != nil || existing != nil {
		t.Fatalf("expected no artifact, got %+v err=%v", existing, err)
	}
}

func TestSubmitValidatesInput(t *testing.T) {
	env := newTestEnv(t, false)
	cases := []ports.SubmitArtifactInput{
		{BrandID: "", UserID: testUser, Type: domain.ArtifactText, Content: []byte("x")},
		{BrandID: testBrand, UserID: testUser, Type: "hologram", Content: []byte("x")},
		{BrandID: testBrand, UserID: testUser, Type: domain.ArtifactText},
	}
	for i, input := range cases {
		if _, err := env.ingest.Submit(context.Background(), input); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
}

func TestSubmitMissingUserIsUnauthorized(t *testing.T) {
	env := newTestEnv(t, false)
	_, err := env.ingest.Submit(context.Background(), ports.SubmitArtifactInput{
		BrandID: testBrand,
		Type:    domain.ArtifactText,
		Content: []byte("anonymous"),
	})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
