package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/core/ports"
	"github.com/kirillkom/brand-soul/internal/infrastructure/cache/memcache"
	"github.com/kirillkom/brand-soul/internal/infrastructure/docstore/badgerstore"
	"github.com/kirillkom/brand-soul/internal/infrastructure/repository/docrepo"
	"github.com/kirillkom/brand-soul/internal/infrastructure/storage/localfs"
)

const (
	testBrand = "acme"
	testUser  = "user-1"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// rawReader returns the stored bytes unchanged.
type rawReader struct{}

func (rawReader) Read(_ context.Context, _ *domain.Artifact, raw []byte) (string, error) {
	return string(raw), nil
}

// scriptedExtractor returns the insight registered for the exact source text.
type scriptedExtractor struct {
	mu       sync.Mutex
	byText   map[string]domain.ExtractedInsight
	failures map[string]error
	calls    int
}

func newScriptedExtractor() *scriptedExtractor {
	return &scriptedExtractor{
		byText:   make(map[string]domain.ExtractedInsight),
		failures: make(map[string]error),
	}
}

func (e *scriptedExtractor) on(text string, insight domain.ExtractedInsight) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byText[text] = insight
}

func (e *scriptedExtractor) failOn(text string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[text] = err
}

func (e *scriptedExtractor) Extract(_ context.Context, input ports.ExtractionInput) (*domain.ExtractedInsight, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if err, ok := e.failures[input.Text]; ok {
		return nil, err
	}
	insight, ok := e.byText[input.Text]
	if !ok {
		return nil, errors.New("no scripted insight for " + input.Text)
	}
	insight.Model = "scripted"
	return &insight, nil
}

type recordingNotifier struct {
	mu  sync.Mutex
	ids []string
}

func (n *recordingNotifier) NotifyEnqueued(_ context.Context, job *domain.Job) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, job.ID)
	return nil
}

type countingRecorder struct {
	mu      sync.Mutex
	results map[string]int
}

func (r *countingRecorder) RecordCacheResult(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results == nil {
		r.results = make(map[string]int)
	}
	r.results[result]++
}

func (r *countingRecorder) count(result string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[result]
}

type testEnv struct {
	docs      *badgerstore.Store
	blobs     *localfs.Storage
	content   *ContentStore
	gate      *docrepo.MembershipGate
	registry  *ArtifactRegistry
	souls     *docrepo.BrandSoulRepository
	queue     *JobQueue
	notifier  *recordingNotifier
	cache     *memcache.Cache
	recorder  *countingRecorder
	extractor *scriptedExtractor

	ingest    *IngestArtifactUseCase
	extract   *ExtractInsightsUseCase
	synthesis *SynthesisEngine
	assembler *ContextAssembler
	artifacts *ArtifactAdminUseCase
	brandSoul *BrandSoulUseCase
}

func newTestEnv(t *testing.T, autoSynthesize bool) *testEnv {
	t.Helper()
	logger := discardLogger()
	docs, err := badgerstore.Open("", logger)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = docs.Close() })

	blobs, err := localfs.New(t.TempDir(), []byte("test-key"), "http://blobs.local")
	if err != nil {
		t.Fatalf("init blob storage: %v", err)
	}

	env := &testEnv{
		docs:      docs,
		blobs:     blobs,
		content:   NewContentStore(docs, blobs, 64, logger),
		gate:      docrepo.NewMembershipGate(docs),
		souls:     docrepo.NewBrandSoulRepository(docs),
		notifier:  &recordingNotifier{},
		cache:     memcache.New(128, time.Minute),
		recorder:  &countingRecorder{},
		extractor: newScriptedExtractor(),
	}
	env.registry = NewArtifactRegistry(docrepo.NewArtifactRepository(docs), 3)
	env.queue = NewJobQueue(docrepo.NewJobRepository(docs), env.notifier, 3, logger)
	env.ingest = NewIngestArtifactUseCase(env.gate, env.registry, env.content, env.queue, logger)
	env.extract = NewExtractInsightsUseCase(env.registry, env.content, rawReader{}, env.extractor, env.queue, autoSynthesize, logger)
	env.synthesis = NewSynthesisEngine(env.registry, env.content, env.souls, env.cache, DefaultFreshnessWindow, logger)
	env.assembler = NewContextAssembler(env.gate, env.souls, env.registry, env.content, env.cache, time.Minute, 10, env.recorder, logger)
	env.artifacts = NewArtifactAdminUseCase(env.gate, env.registry, env.content, env.queue, autoSynthesize, logger)
	env.brandSoul = NewBrandSoulUseCase(env.gate, env.souls, env.registry, env.queue, env.cache, logger)

	if err := env.gate.AddMember(context.Background(), testBrand, testUser, docrepo.RoleOwner); err != nil {
		t.Fatalf("add member: %v", err)
	}
	return env
}

func (env *testEnv) submit(t *testing.T, text string) ports.SubmitResult {
	t.Helper()
	res, err := env.ingest.Submit(context.Background(), ports.SubmitArtifactInput{
		BrandID:  testBrand,
		UserID:   testUser,
		Type:     domain.ArtifactText,
		Title:    strings.SplitN(text, " ", 2)[0],
		MimeType: "text/plain",
		Content:  []byte(text),
	})
	if err != nil {
		t.Fatalf("submit %q: %v", text, err)
	}
	return res
}

// runJob drives one job through the same start/execute/complete path the
// worker uses.
func (env *testEnv) runJob(t *testing.T, jobID string) (*domain.Job, error) {
	t.Helper()
	ctx := context.Background()
	job, err := env.queue.Start(ctx, jobID)
	if err != nil {
		t.Fatalf("start job %s: %v", jobID, err)
	}
	progress := func(ctx context.Context, percent int, step string) {
		_ = env.queue.UpdateProgress(ctx, jobID, percent, step)
	}
	var execErr error
	switch job.Type {
	case domain.JobExtractInsights:
		execErr = env.extract.Execute(ctx, job, progress)
	case domain.JobSynthesize:
		execErr = env.synthesis.Execute(ctx, job, progress)
	default:
		execErr = domain.ErrUnsupportedJobType
	}
	if execErr != nil {
		if _, err := env.queue.Fail(ctx, jobID, execErr); err != nil {
			t.Fatalf("fail job %s: %v", jobID, err)
		}
		return nil, execErr
	}
	done, err := env.queue.Complete(ctx, jobID)
	if err != nil {
		t.Fatalf("complete job %s: %v", jobID, err)
	}
	return done, nil
}

func (env *testEnv) pending(t *testing.T) []domain.Job {
	t.Helper()
	jobs, err := env.queue.ClaimPending(context.Background(), 100)
	if err != nil {
		t.Fatalf("claim pending: %v", err)
	}
	return jobs
}

func insightWithFact(category, fact string) domain.ExtractedInsight {
	return domain.ExtractedInsight{
		Facts:      []domain.FactElement{{Category: category, Fact: fact, Confidence: 0.9}},
		Confidence: 0.8,
	}
}
