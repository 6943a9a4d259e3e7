package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Pydart-Intelli-Corp/ai-assist/internal/batch"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/feedback"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/index"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/log"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/query"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/synth"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/testutil"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/tier"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/training"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// instantStrategy completes every training step immediately.
type instantStrategy struct{}

func (instantStrategy) RunStep(ctx context.Context, _ training.Job, _ training.Step) error {
	return ctx.Err()
}

// noopItems processes batch items without side effects.
type noopItems struct{}

func (noopItems) ProcessItem(context.Context, int64) error { return nil }

// memFeedbackStore is an in-memory feedback.Store.
type memFeedbackStore struct {
	knownQueries map[int64]bool
	nextID       int64
}

func (s *memFeedbackStore) QueryExists(_ context.Context, queryID int64) (bool, error) {
	return s.knownQueries[queryID], nil
}

func (s *memFeedbackStore) Insert(_ context.Context, e feedback.Entry) (feedback.Entry, error) {
	s.nextID++
	e.ID = s.nextID
	e.CreatedAt = time.Now()
	return e, nil
}

type fixture struct {
	server       *httptest.Server
	orchestrator *training.Orchestrator
	processor    *batch.Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := log.NewNop()

	idx := &testutil.MemoryIndex{}
	idx.Add(index.Document{ID: 1, Title: "Pump manual", Content: "impeller clearance spec", Tier: tier.Customer})
	idx.Add(index.Document{ID: 2, Title: "Service runbook", Content: "teardown procedure", Tier: tier.Master})

	pipeline, err := query.New(query.Config{
		Embedder: testutil.StubEmbedder{},
		Searcher: idx,
		Synthesizer: testutil.StubSynthesizer{Resp: synth.Response{
			Text:       "Check the impeller clearance.",
			Confidence: synth.ConfidenceGrounded,
			ModelUsed:  "stub",
		}},
		Suggester: feedback.NewKeywordSuggester(),
		Recorder:  query.NopRecorder{},
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("building pipeline: %v", err)
	}

	orchestrator := training.NewOrchestrator(
		training.NewMemoryStore(), idx, logger, training.WithStrategy(instantStrategy{}))
	t.Cleanup(orchestrator.Close)

	processor := batch.New(noopItems{}, idx, logger, batch.WithItemDelay(0))
	t.Cleanup(processor.Close)

	collector := feedback.NewCollector(
		&memFeedbackStore{knownQueries: map[int64]bool{10: true}},
		feedback.NewKeywordSentimentClassifier(), logger)

	srv, err := NewServer(ServerConfig{
		Logger:   logger,
		Pipeline: pipeline,
		Training: orchestrator,
		Batch:    processor,
		Feedback: collector,
	})
	if err != nil {
		t.Fatalf("building server: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{server: ts, orchestrator: orchestrator, processor: processor}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decoding %s %s response: %v", method, path, err)
	}
	return resp, payload
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t)

	resp, payload := f.do(t, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /health status = %d", resp.StatusCode)
	}
	if payload["status"] != "ok" {
		t.Errorf("health payload = %v", payload)
	}

	resp, payload = f.do(t, http.MethodGet, "/ready", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /ready status = %d", resp.StatusCode)
	}
	if payload["database"] != "offline" {
		t.Errorf("readiness payload = %v", payload)
	}
}

func TestQueryEndpoint(t *testing.T) {
	f := newFixture(t)

	resp, payload := f.do(t, http.MethodPost, "/api/v1/query",
		`{"query": "how do I fix the pump?", "user_role": "customer"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/v1/query status = %d: %v", resp.StatusCode, payload)
	}
	if payload["response"] != "Check the impeller clearance." {
		t.Errorf("response = %v", payload["response"])
	}
	if payload["confidence"] != synth.ConfidenceGrounded {
		t.Errorf("confidence = %v", payload["confidence"])
	}
	if payload["knowledge_base_tier"] != float64(1) {
		t.Errorf("knowledge_base_tier = %v, want 1", payload["knowledge_base_tier"])
	}

	// The tier 3 document must not surface for a customer.
	sources, ok := payload["sources"].([]any)
	if !ok {
		t.Fatalf("sources missing: %v", payload)
	}
	for _, s := range sources {
		doc := s.(map[string]any)
		if doc["document_id"] == float64(2) {
			t.Error("customer query surfaced a master-tier document")
		}
	}
}

func TestQueryValidation(t *testing.T) {
	f := newFixture(t)

	resp, payload := f.do(t, http.MethodPost, "/api/v1/query",
		`{"query": "   ", "user_role": "customer"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank query status = %d", resp.StatusCode)
	}
	if payload["error"] != "validation_error" {
		t.Errorf("error code = %v", payload["error"])
	}

	resp, _ = f.do(t, http.MethodPost, "/api/v1/query", `{"query": "x", "tier": 9}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid tier status = %d", resp.StatusCode)
	}

	resp, _ = f.do(t, http.MethodPost, "/api/v1/query", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d", resp.StatusCode)
	}
}

func TestTrainingLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)

	resp, created := f.do(t, http.MethodPost, "/api/v1/training/jobs", `{
		"name": "Customer KB Update",
		"training_type": "incremental",
		"model_type": "embedding",
		"tier": 1,
		"document_ids": [1]
	}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d: %v", resp.StatusCode, created)
	}
	if created["status"] != "pending" {
		t.Errorf("created status = %v", created["status"])
	}
	if created["estimated_duration_minutes"] != float64(32) {
		t.Errorf("estimate = %v, want 32", created["estimated_duration_minutes"])
	}
	id := int64(created["id"].(float64))
	idPath := "/api/v1/training/jobs/" + jsonNumber(id)

	resp, started := f.do(t, http.MethodPost, idPath+"/start", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d: %v", resp.StatusCode, started)
	}

	// Double start conflicts.
	resp, _ = f.do(t, http.MethodPost, idPath+"/start", "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("double start status = %d, want 409", resp.StatusCode)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		resp, job := f.do(t, http.MethodGet, idPath, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("get status = %d", resp.StatusCode)
		}
		if job["status"] == "completed" {
			if job["progress_percentage"] != float64(100) {
				t.Errorf("final progress = %v", job["progress_percentage"])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never completed: %v", job)
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, models := f.do(t, http.MethodGet, "/api/v1/training/models?tier=1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("models status = %d", resp.StatusCode)
	}
	if models["total"] != float64(1) {
		t.Fatalf("model versions total = %v, want 1", models["total"])
	}

	// Fresh versions are not deployed yet.
	resp, models = f.do(t, http.MethodGet, "/api/v1/training/models?deployed_only=true", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deployed models status = %d", resp.StatusCode)
	}
	if models["total"] != float64(0) {
		t.Fatalf("deployed model versions total = %v, want 0", models["total"])
	}

	resp, metrics := f.do(t, http.MethodGet, "/api/v1/training/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
	if metrics["completed_jobs"] != float64(1) {
		t.Errorf("completed_jobs = %v, want 1", metrics["completed_jobs"])
	}
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestTrainingNotFoundAndValidation(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/api/v1/training/jobs/999", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown job status = %d, want 404", resp.StatusCode)
	}

	resp, _ = f.do(t, http.MethodPost, "/api/v1/training/jobs/abc/start", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("non-numeric id status = %d, want 400", resp.StatusCode)
	}

	resp, payload := f.do(t, http.MethodPost, "/api/v1/training/jobs", `{
		"name": "Bad",
		"training_type": "turbo",
		"model_type": "embedding",
		"tier": 1,
		"document_ids": [1]
	}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad type status = %d: %v", resp.StatusCode, payload)
	}

	resp, _ = f.do(t, http.MethodGet, "/api/v1/training/jobs?status=bogus", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad status filter = %d, want 400", resp.StatusCode)
	}
}

func TestBatchOverHTTP(t *testing.T) {
	f := newFixture(t)

	body := `{"document_ids": [1, 2], "processing_type": "embedding", "knowledge_base_tier": 3}`
	resp, run := f.do(t, http.MethodPost, "/api/v1/batch", body)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit status = %d: %v", resp.StatusCode, run)
	}
	batchID, _ := run["batch_id"].(string)
	if !strings.HasPrefix(batchID, "batch_") {
		t.Fatalf("batch_id = %q", batchID)
	}
	if run["estimated_completion"] == "" {
		t.Error("submit response missing estimated_completion")
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		resp, snap := f.do(t, http.MethodGet, "/api/v1/batch/"+batchID, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status endpoint = %d", resp.StatusCode)
		}
		if snap["status"] == "completed" {
			if snap["processed"] != float64(2) {
				t.Errorf("processed = %v, want 2", snap["processed"])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("batch never completed: %v", snap)
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, _ = f.do(t, http.MethodGet, "/api/v1/batch/batch_20260101_000000_deadbeef", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown batch status = %d, want 404", resp.StatusCode)
	}

	resp, _ = f.do(t, http.MethodPost, "/api/v1/batch",
		`{"document_ids": [], "processing_type": "embedding", "knowledge_base_tier": 1}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty batch status = %d, want 400", resp.StatusCode)
	}

	// Document 2 sits at the master tier, invisible to a customer batch.
	resp, _ = f.do(t, http.MethodPost, "/api/v1/batch",
		`{"document_ids": [1, 2], "processing_type": "embedding", "knowledge_base_tier": 1}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("tier-restricted batch status = %d, want 400", resp.StatusCode)
	}
}

func TestFeedbackOverHTTP(t *testing.T) {
	f := newFixture(t)

	resp, payload := f.do(t, http.MethodPost, "/api/v1/feedback",
		`{"query_id": 10, "feedback_type": "rating", "rating": 5, "feedback_text": "great, very helpful"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("feedback status = %d: %v", resp.StatusCode, payload)
	}
	if payload["sentiment"] != "positive" {
		t.Errorf("sentiment = %v, want positive", payload["sentiment"])
	}

	resp, _ = f.do(t, http.MethodPost, "/api/v1/feedback",
		`{"query_id": 999, "feedback_type": "rating", "rating": 3}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown query feedback status = %d, want 404", resp.StatusCode)
	}

	resp, _ = f.do(t, http.MethodPost, "/api/v1/feedback",
		`{"query_id": 10, "feedback_type": "rating", "rating": 11}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("out-of-range rating status = %d, want 400", resp.StatusCode)
	}
}

func TestRateLimitExceeded(t *testing.T) {
	logger := log.NewNop()
	pipeline, err := query.New(query.Config{
		Embedder:    testutil.StubEmbedder{},
		Searcher:    &testutil.MemoryIndex{},
		Synthesizer: testutil.StubSynthesizer{Resp: synth.Response{Text: "ok", Confidence: 0.8}},
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("building pipeline: %v", err)
	}
	orchestrator := training.NewOrchestrator(training.NewMemoryStore(), &testutil.MemoryIndex{}, logger)
	t.Cleanup(orchestrator.Close)
	processor := batch.New(noopItems{}, &testutil.MemoryIndex{}, logger)
	t.Cleanup(processor.Close)

	srv, err := NewServer(ServerConfig{
		Logger:    logger,
		Pipeline:  pipeline,
		Training:  orchestrator,
		Batch:     processor,
		RateBurst: 2,
	})
	if err != nil {
		t.Fatalf("building server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	var lastStatus int
	for i := 0; i < 5; i++ {
		resp, err := ts.Client().Post(ts.URL+"/api/v1/query", "application/json",
			strings.NewReader(`{"query": "q", "user_role": "customer"}`))
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		resp.Body.Close()
		lastStatus = resp.StatusCode
	}
	if lastStatus != http.StatusTooManyRequests {
		t.Fatalf("status after burst = %d, want 429", lastStatus)
	}

	// Health probes stay outside the rate limit.
	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health after burst: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status after burst = %d, want 200", resp.StatusCode)
	}
}

func TestRateLimitRefillConfigurable(t *testing.T) {
	logger := log.NewNop()
	pipeline, err := query.New(query.Config{
		Embedder:    testutil.StubEmbedder{},
		Searcher:    &testutil.MemoryIndex{},
		Synthesizer: testutil.StubSynthesizer{Resp: synth.Response{Text: "ok", Confidence: 0.8}},
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("building pipeline: %v", err)
	}
	orchestrator := training.NewOrchestrator(training.NewMemoryStore(), &testutil.MemoryIndex{}, logger)
	t.Cleanup(orchestrator.Close)
	processor := batch.New(noopItems{}, &testutil.MemoryIndex{}, logger)
	t.Cleanup(processor.Close)

	srv, err := NewServer(ServerConfig{
		Logger:     logger,
		Pipeline:   pipeline,
		Training:   orchestrator,
		Batch:      processor,
		RatePerSec: 200,
		RateBurst:  1,
	})
	if err != nil {
		t.Fatalf("building server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	get := func() int {
		resp, err := ts.Client().Get(ts.URL + "/api/v1/training/metrics")
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if status := get(); status != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", status)
	}
	// Burst 1 is spent; at 200 req/s the bucket refills within 50ms.
	// A fixed 1 req/s refill would still reject here.
	time.Sleep(50 * time.Millisecond)
	if status := get(); status != http.StatusOK {
		t.Fatalf("request after refill window = %d, want 200", status)
	}
}

func TestPanicRecovery(t *testing.T) {
	handler := recoveryMiddleware(log.NewNop())(http.HandlerFunc(
		func(http.ResponseWriter, *http.Request) {
			panic("handler exploded")
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/query", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status after panic = %d, want 500", rec.Code)
	}
	var payload errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decoding error envelope: %v", err)
	}
	if payload.Error != "internal_error" {
		t.Errorf("error code = %q, want internal_error", payload.Error)
	}
}
