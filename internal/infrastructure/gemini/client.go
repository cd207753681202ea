package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"feedcorpus/internal/config"
	"feedcorpus/internal/domain"
	"feedcorpus/internal/ports"
)

const (
	defaultAttempts    = 3
	defaultBackoffBase = 10 * time.Second
	summaryFallbackCap = 500
)

// Client implements ports.Generator backed by the Gemini generateContent API.
// Quota errors are retried with exponential backoff; anything else fails the
// attempt immediately, since a non-quota error is not known to be safe to
// repeat.
type Client struct {
	endpoint    string
	model       string
	apiKey      string
	attempts    int
	backoffBase time.Duration
	focusTopic  string
	excluded    map[string]struct{}
	fetcher     ports.ContentFetcher
	sleeper     ports.Sleeper
	httpClient  *http.Client
	logger      *slog.Logger
}

var _ ports.Generator = (*Client)(nil)

// NewClient builds a generator from configuration. The fetcher is optional;
// without it prompts carry only title and description.
func NewClient(cfg config.GeminiConfig, keywords config.KeywordConfig, fetcher ports.ContentFetcher, sleeper ports.Sleeper, logger *slog.Logger) *Client {
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	backoff := cfg.BackoffBase()
	if backoff <= 0 {
		backoff = defaultBackoffBase
	}

	return &Client{
		endpoint:    strings.TrimSuffix(cfg.Endpoint, "/"),
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		attempts:    attempts,
		backoffBase: backoff,
		focusTopic:  keywords.FocusTopic,
		excluded:    domain.ExclusionSet(keywords.Excluded),
		fetcher:     fetcher,
		sleeper:     sleeper,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
	}
}

// Enrich produces a summary and keyword set for one item.
func (c *Client) Enrich(ctx context.Context, req ports.EnrichRequest) (domain.Enrichment, error) {
	var excerpt string
	if c.fetcher != nil {
		text, err := c.fetcher.Excerpt(ctx, req.URL)
		if err != nil {
			c.debug("content fetch skipped", "url", req.URL, "error", err)
		} else {
			excerpt = text
		}
	}

	prompt := buildEnrichPrompt(req, excerpt, c.focusTopic)

	text, err := c.generate(ctx, prompt)
	if err != nil {
		return domain.Enrichment{}, err
	}

	enrichment, err := parseEnrichment(text, c.excluded)
	if err != nil {
		return domain.Enrichment{}, err
	}
	return enrichment, nil
}

// ScoreRelevance asks the model to tier one item as low, mid or high.
func (c *Client) ScoreRelevance(ctx context.Context, item domain.Item) (domain.RelevanceTier, error) {
	summary := item.Summary
	if !item.Enriched() {
		summary = item.Description
	}
	if summary == "" {
		return domain.RelevanceLow, nil
	}

	text, err := c.generate(ctx, buildRelevancePrompt(item.Title, summary, c.focusTopic))
	if err != nil {
		return "", err
	}

	tier, ok := domain.ParseRelevanceTier(text)
	if !ok {
		c.debug("unclear relevance answer, defaulting to low", "answer", text)
		return domain.RelevanceLow, nil
	}
	return tier, nil
}

// generate runs the retry loop around one generateContent call.
func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	backoff := c.backoffBase

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		text, err := c.call(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if !isQuotaErr(err) {
			return "", err
		}
		if attempt == c.attempts {
			break
		}

		c.debug("quota hit, backing off", "attempt", attempt, "wait", backoff)
		if sleepErr := c.sleeper.Sleep(ctx, backoff); sleepErr != nil {
			return "", sleepErr
		}
		backoff *= 2
	}

	return "", fmt.Errorf("quota retries exhausted after %d attempts: %w", c.attempts, lastErr)
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// apiError carries enough of the upstream failure for quota classification.
type apiError struct {
	status  int
	kind    string
	message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("gemini error %d %s: %s", e.status, e.kind, e.message)
}

func isQuotaErr(err error) bool {
	api, ok := err.(*apiError)
	if !ok {
		return false
	}
	if api.status == http.StatusTooManyRequests || api.kind == "RESOURCE_EXHAUSTED" {
		return true
	}
	msg := strings.ToLower(api.message)
	return strings.Contains(msg, "quota") || strings.Contains(msg, "rate limit")
}

func (c *Client) call(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("gemini client misconfigured")
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal gemini payload: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", &apiError{status: resp.StatusCode, message: strings.TrimSpace(string(raw))}
		}
		return "", fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || decoded.Error != nil {
		api := &apiError{status: resp.StatusCode}
		if decoded.Error != nil {
			api.kind = decoded.Error.Status
			api.message = decoded.Error.Message
		}
		return "", api
	}

	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty gemini response")
	}

	var sb strings.Builder
	for _, p := range decoded.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("empty gemini response")
	}
	return text, nil
}

func (c *Client) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
