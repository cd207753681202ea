package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"feedcorpus/internal/config"
	"feedcorpus/internal/domain"
	"feedcorpus/internal/ports"
)

type fakeSleeper struct {
	slept []time.Duration
}

func (s *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	return ctx.Err()
}

type fakeFetcher struct {
	text string
	err  error
}

func (f fakeFetcher) Excerpt(ctx context.Context, url string) (string, error) {
	return f.text, f.err
}

func newTestClient(endpoint string, fetcher ports.ContentFetcher, sleeper ports.Sleeper) *Client {
	return NewClient(
		config.GeminiConfig{
			Endpoint:           endpoint,
			Model:              "test-model",
			APIKey:             "test-key",
			Attempts:           3,
			BackoffBaseSeconds: 10,
		},
		config.KeywordConfig{
			FocusTopic: "haptic/tactile feedback",
			Excluded:   domain.DefaultExcludedKeywords,
		},
		fetcher,
		sleeper,
		nil,
	)
}

func modelReply(text string) string {
	payload, _ := json.Marshal(map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]string{{"text": text}}}},
		},
	})
	return string(payload)
}

func TestEnrichParsesLabeledFields(t *testing.T) {
	t.Parallel()

	var prompt atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		prompt.Store(string(body))
		_, _ = w.Write([]byte(modelReply("SUMMARY: New LRA actuators cut latency in half.\nKEYWORDS: LRA, Actuator, Haptics, latency, extra")))
	}))
	defer server.Close()

	client := newTestClient(server.URL, fakeFetcher{text: "page excerpt here"}, &fakeSleeper{})

	got, err := client.Enrich(context.Background(), ports.EnrichRequest{
		Title:             "Actuator news",
		Description:       "desc",
		URL:               "https://a.example/1",
		PreferredKeywords: []string{"waveform"},
	})
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}

	if got.Summary != "New LRA actuators cut latency in half." {
		t.Fatalf("unexpected summary: %q", got.Summary)
	}
	want := []string{"lra", "actuator", "latency", "extra"}
	if len(got.Keywords) != len(want) {
		t.Fatalf("keywords = %v, want %v", got.Keywords, want)
	}
	for i := range want {
		if got.Keywords[i] != want[i] {
			t.Fatalf("keywords = %v, want %v", got.Keywords, want)
		}
	}

	sent, _ := prompt.Load().(string)
	if !strings.Contains(sent, "page excerpt here") {
		t.Fatal("page excerpt missing from prompt")
	}
	if !strings.Contains(sent, "waveform") {
		t.Fatal("preferred keywords missing from prompt")
	}
}

func TestEnrichFallsBackToTruncatedText(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("free-form answer without labels ", 30)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(modelReply(long)))
	}))
	defer server.Close()

	client := newTestClient(server.URL, nil, &fakeSleeper{})

	got, err := client.Enrich(context.Background(), ports.EnrichRequest{Title: "t", URL: "https://a.example/1"})
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}

	if got.Summary == "" {
		t.Fatal("fallback summary must not be empty")
	}
	if len(got.Summary) > summaryFallbackCap {
		t.Fatalf("fallback summary too long: %d chars", len(got.Summary))
	}
	if !strings.HasSuffix(got.Summary, "...") {
		t.Fatalf("fallback summary not marked truncated: %q", got.Summary[len(got.Summary)-10:])
	}
	if len(got.Keywords) != 0 {
		t.Fatalf("unexpected keywords from unlabeled answer: %v", got.Keywords)
	}
}

func TestEnrichFetchFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(modelReply("SUMMARY: ok\nKEYWORDS: waveform")))
	}))
	defer server.Close()

	client := newTestClient(server.URL, fakeFetcher{err: errors.New("timeout")}, &fakeSleeper{})

	got, err := client.Enrich(context.Background(), ports.EnrichRequest{Title: "t", URL: "https://a.example/1"})
	if err != nil {
		t.Fatalf("fetch failure must not fail enrichment: %v", err)
	}
	if got.Summary != "ok" {
		t.Fatalf("unexpected summary: %q", got.Summary)
	}
}

func TestGenerateRetriesQuotaWithBackoff(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"code":429,"status":"RESOURCE_EXHAUSTED","message":"Quota exceeded"}}`))
			return
		}
		_, _ = w.Write([]byte(modelReply("SUMMARY: recovered\nKEYWORDS: lra")))
	}))
	defer server.Close()

	sleeper := &fakeSleeper{}
	client := newTestClient(server.URL, nil, sleeper)

	got, err := client.Enrich(context.Background(), ports.EnrichRequest{Title: "t", URL: "https://a.example/1"})
	if err != nil {
		t.Fatalf("Enrich after quota recovery: %v", err)
	}
	if got.Summary != "recovered" {
		t.Fatalf("unexpected summary: %q", got.Summary)
	}

	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
	if len(sleeper.slept) != 2 || sleeper.slept[0] != 10*time.Second || sleeper.slept[1] != 20*time.Second {
		t.Fatalf("backoff schedule wrong: %v", sleeper.slept)
	}
}

func TestGenerateDoesNotRetryNonQuotaErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"status":"INVALID_ARGUMENT","message":"bad prompt"}}`))
	}))
	defer server.Close()

	sleeper := &fakeSleeper{}
	client := newTestClient(server.URL, nil, sleeper)

	if _, err := client.Enrich(context.Background(), ports.EnrichRequest{Title: "t", URL: "https://a.example/1"}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("non-quota error retried: %d calls", calls.Load())
	}
	if len(sleeper.slept) != 0 {
		t.Fatalf("unexpected backoff sleeps: %v", sleeper.slept)
	}
}

func TestGenerateQuotaExhaustionIsTerminal(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"status":"RESOURCE_EXHAUSTED","message":"Quota exceeded"}}`))
	}))
	defer server.Close()

	sleeper := &fakeSleeper{}
	client := newTestClient(server.URL, nil, sleeper)

	_, err := client.Enrich(context.Background(), ports.EnrichRequest{Title: "t", URL: "https://a.example/1"})
	if err == nil {
		t.Fatal("expected terminal failure")
	}
	if !strings.Contains(err.Error(), "retries exhausted") {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
	if len(sleeper.slept) != 2 {
		t.Fatalf("expected 2 backoff sleeps, got %v", sleeper.slept)
	}
}

func TestScoreRelevance(t *testing.T) {
	t.Parallel()

	for answer, want := range map[string]domain.RelevanceTier{
		"HIGH":           domain.RelevanceHigh,
		"mid":            domain.RelevanceMid,
		"LOW":            domain.RelevanceLow,
		"I am not sure.": domain.RelevanceLow,
	} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(modelReply(answer)))
		}))

		client := newTestClient(server.URL, nil, &fakeSleeper{})
		got, err := client.ScoreRelevance(context.Background(), domain.Item{
			Title:   "t",
			Summary: "a real summary",
		})
		server.Close()

		if err != nil {
			t.Fatalf("answer %q: %v", answer, err)
		}
		if got != want {
			t.Fatalf("answer %q: got %q, want %q", answer, got, want)
		}
	}
}

func TestScoreRelevanceEmptyItemIsLow(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	client := newTestClient(server.URL, nil, &fakeSleeper{})

	got, err := client.ScoreRelevance(context.Background(), domain.Item{Title: "t"})
	if err != nil {
		t.Fatalf("ScoreRelevance: %v", err)
	}
	if got != domain.RelevanceLow {
		t.Fatalf("expected low for empty item, got %q", got)
	}
	if calls.Load() != 0 {
		t.Fatal("empty item should not reach the API")
	}
}

func TestTruncateSummaryKeepsValidUTF8(t *testing.T) {
	t.Parallel()

	// Offset by one byte so the cap lands mid-rune.
	got := truncateSummary("a" + strings.Repeat("日", 300))

	if len(got) > summaryFallbackCap {
		t.Fatalf("summary too long: %d chars", len(got))
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncation produced invalid UTF-8: %q", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("truncation not marked: %q", got)
	}
}

func TestParseEnrichmentRejectsEmptyText(t *testing.T) {
	t.Parallel()

	if _, err := parseEnrichment("   ", nil); err == nil {
		t.Fatal("expected error for blank response")
	}
}

func TestIsQuotaErr(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want bool
	}{
		{&apiError{status: 429}, true},
		{&apiError{status: 500, kind: "RESOURCE_EXHAUSTED"}, true},
		{&apiError{status: 403, message: "Quota exceeded for requests"}, true},
		{&apiError{status: 503, message: "rate limit hit"}, true},
		{&apiError{status: 400, kind: "INVALID_ARGUMENT", message: "bad"}, false},
		{fmt.Errorf("plain network error"), false},
	}

	for _, tc := range cases {
		if got := isQuotaErr(tc.err); got != tc.want {
			t.Fatalf("isQuotaErr(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
