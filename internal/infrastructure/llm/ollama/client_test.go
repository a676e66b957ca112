package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/core/ports"
	"github.com/kirillkom/brand-soul/internal/infrastructure/resilience"
)

func TestExtractorSendsPromptAndParsesInsight(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		resp, _ := json.Marshal(map[string]string{
			"response": `{"voice_elements":[{"aspect":"tone","value":"playful"}],"facts":[],"key_messages":[],"visual_elements":[],"confidence":0.9}`,
		})
		_, _ = w.Write(resp)
	}))
	defer server.Close()

	extractor := NewInsightExtractor(New(server.URL, "llama3"), 0)
	insight, err := extractor.Extract(context.Background(), ports.ExtractionInput{
		ArtifactID:   "a1",
		ArtifactType: domain.ArtifactText,
		Title:        "About us",
		Text:         "We make joyful toys.",
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	prompt, _ := captured["prompt"].(string)
	if !strings.Contains(prompt, "We make joyful toys.") || !strings.Contains(prompt, "Title: About us") {
		t.Fatalf("unexpected prompt: %s", prompt)
	}
	if captured["format"] != "json" || captured["model"] != "llama3" {
		t.Fatalf("unexpected request body: %+v", captured)
	}
	if len(insight.Voice) != 1 || insight.Voice[0].Value != "playful" || insight.Confidence != 0.9 || insight.Model != "llama3" {
		t.Fatalf("unexpected insight: %+v", insight)
	}
}

func TestExtractorIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	extractor := NewInsightExtractor(New(server.URL, "gen"), 0)
	_, err := extractor.Extract(context.Background(), ports.ExtractionInput{Text: "hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("bad gateway should be temporary, got %v", err)
	}
}

func TestExtractorRetriesThroughExecutor(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"response":"{\"facts\":[{\"category\":\"company\",\"fact\":\"Family owned\"}]}"}`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		BreakerEnabled:      false,
	}, nil)
	client := NewWithOptions(server.URL, "gen", Options{ResilienceExecutor: exec})
	insight, err := NewInsightExtractor(client, 0).Extract(context.Background(), ports.ExtractionInput{Text: "hello"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if calls.Load() != 2 || len(insight.Facts) != 1 {
		t.Fatalf("calls=%d facts=%+v", calls.Load(), insight.Facts)
	}
}

func TestExtractorRejectsEmptyText(t *testing.T) {
	_, err := NewInsightExtractor(New("http://unused", "gen"), 0).Extract(context.Background(), ports.ExtractionInput{Text: "  "})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestClassifyOllamaError(t *testing.T) {
	if class := classifyOllamaError(&HTTPStatusError{StatusCode: http.StatusTooManyRequests}); !class.Retryable {
		t.Fatalf("429 should be retryable")
	}
	if class := classifyOllamaError(&HTTPStatusError{StatusCode: http.StatusBadRequest}); class.Retryable || class.RecordFailure || !class.Permanent {
		t.Fatalf("400 should be permanent and not trip the breaker: %+v", class)
	}
	if class := classifyOllamaError(&HTTPStatusError{StatusCode: http.StatusNotImplemented}); class.Permanent || class.Retryable {
		t.Fatalf("501 should be left to the job queue: %+v", class)
	}
}

func TestRejectedPromptFailsWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
	}, nil)
	client := NewWithOptions(server.URL, "missing", Options{ResilienceExecutor: exec})
	_, err := NewInsightExtractor(client, 0).Extract(context.Background(), ports.ExtractionInput{Text: "hello"})
	if !errors.Is(err, domain.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if domain.IsRetriable(err) {
		t.Fatalf("a rejected prompt must not be requeued")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}
