package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/brand-soul/internal/core/domain"
)

func steppingClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func TestClaimPendingOrdersByPriorityThenAge(t *testing.T) {
	env := newTestEnv(t, false)
	env.queue.now = steppingClock(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	enqueue := func(priority int) string {
		job, err := env.queue.Enqueue(ctx, EnqueueRequest{Type: domain.JobExtractInsights, BrandID: testBrand, Priority: priority})
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		return job.ID
	}
	oldLow := enqueue(2)
	oldHigh := enqueue(9)
	newHigh := enqueue(9)
	mid := enqueue(0)

	jobs, err := env.queue.ClaimPending(ctx, 3)
	if err != nil {
		t.Fatalf("claim pending: %v", err)
	}
	want := []string{oldHigh, newHigh, mid}
	if len(jobs) != len(want) {
		t.Fatalf("expected %d jobs, got %d", len(want), len(jobs))
	}
	for i, id := range want {
		if jobs[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, jobs[i].ID)
		}
	}
	for _, j := range jobs {
		if j.ID == oldLow {
			t.Fatalf("lowest priority job must not be claimed first")
		}
		if j.Status != domain.JobPending {
			t.Fatalf("claim must not change state, got %s", j.Status)
		}
	}

	if jobs, _ := env.queue.ClaimPending(ctx, 0); len(jobs) != 0 {
		t.Fatalf("expected empty claim for limit 0")
	}
}

func TestStartRefusesNonPendingJob(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	job, err := env.queue.Enqueue(ctx, EnqueueRequest{Type: domain.JobSynthesize, BrandID: testBrand})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	started, err := env.queue.Start(ctx, job.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != domain.JobProcessing || started.StartedAt == nil {
		t.Fatalf("unexpected started job: %+v", started)
	}
	if _, err := env.queue.Start(ctx, job.ID); !errors.Is(err, domain.ErrJobNotPending) {
		t.Fatalf("expected ErrJobNotPending, got %v", err)
	}
}

func TestFailRequeuesUntilRetryCap(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	job, err := env.queue.Enqueue(ctx, EnqueueRequest{Type: domain.JobExtractInsights, BrandID: testBrand})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	cause := domain.WrapError(domain.ErrTemporary, "extract", errors.New("model timeout"))
	var last *domain.Job
	for attempt := 1; attempt <= 3; attempt++ {
		if _, err := env.queue.Start(ctx, job.ID); err != nil {
			t.Fatalf("attempt %d: start: %v", attempt, err)
		}
		last, err = env.queue.Fail(ctx, job.ID, cause)
		if err != nil {
			t.Fatalf("attempt %d: fail: %v", attempt, err)
		}
		if last.RetryCount != attempt {
			t.Fatalf("attempt %d: expected retry count %d, got %d", attempt, attempt, last.RetryCount)
		}
		if attempt < 3 && last.Status != domain.JobPending {
			t.Fatalf("attempt %d: expected requeue, got %s", attempt, last.Status)
		}
	}
	if last.Status != domain.JobFailed || last.CompletedAt == nil || last.LastError == "" {
		t.Fatalf("expected terminal failure, got %+v", last)
	}
	if _, err := env.queue.Fail(ctx, job.ID, cause); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("failing a failed job must be refused, got %v", err)
	}
}

func TestFailWithPolicyErrorIsTerminal(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	job, _ := env.queue.Enqueue(ctx, EnqueueRequest{Type: domain.JobSynthesize, BrandID: testBrand})
	if _, err := env.queue.Start(ctx, job.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	failed, err := env.queue.Fail(ctx, job.ID, domain.WrapError(domain.ErrNoSources, "synthesize", errors.New("empty")))
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if failed.Status != domain.JobFailed || failed.RetryCount != 1 {
		t.Fatalf("expected immediate failure, got %s retry=%d", failed.Status, failed.RetryCount)
	}
}

func TestRetryResetsFailedJob(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	job, _ := env.queue.Enqueue(ctx, EnqueueRequest{Type: domain.JobSynthesize, BrandID: testBrand})
	if _, err := env.queue.Retry(ctx, job.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("retrying a pending job must be refused, got %v", err)
	}
	_, _ = env.queue.Start(ctx, job.ID)
	_, _ = env.queue.Fail(ctx, job.ID, domain.ErrUnsupportedJobType)

	retried, err := env.queue.Retry(ctx, job.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.Status != domain.JobPending || retried.RetryCount != 0 || retried.CompletedAt != nil {
		t.Fatalf("unexpected retried job: %+v", retried)
	}
}

func TestEnqueueSynthesisCoalescesPendingJobs(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	first, created, err := env.queue.EnqueueSynthesis(ctx, testBrand, testUser, false)
	if err != nil || !created {
		t.Fatalf("first enqueue: created=%v err=%v", created, err)
	}
	second, created, err := env.queue.EnqueueSynthesis(ctx, testBrand, testUser, true)
	if err != nil || created {
		t.Fatalf("second enqueue: created=%v err=%v", created, err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected coalesced job %s, got %s", first.ID, second.ID)
	}
	var opts domain.SynthesisOptions
	if err := second.DecodePayload(&opts); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if !opts.Force || opts.UserID != testUser {
		t.Fatalf("expected upgraded forced payload, got %+v", opts)
	}
	if jobs := env.pending(t); len(jobs) != 1 {
		t.Fatalf("expected one pending synthesis job, got %d", len(jobs))
	}
}

func TestUpdateProgressClampsAndRequiresProcessing(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	job, _ := env.queue.Enqueue(ctx, EnqueueRequest{Type: domain.JobSynthesize, BrandID: testBrand})
	if err := env.queue.UpdateProgress(ctx, job.ID, 10, "early"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("progress on pending job must be refused, got %v", err)
	}
	_, _ = env.queue.Start(ctx, job.ID)
	if err := env.queue.UpdateProgress(ctx, job.ID, 140, "almost"); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	got, _ := env.queue.Get(ctx, job.ID)
	if got.Progress != 100 || got.CurrentStep != "almost" {
		t.Fatalf("unexpected progress %d step %q", got.Progress, got.CurrentStep)
	}
}
