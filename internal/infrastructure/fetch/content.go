package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"feedcorpus/internal/ports"
)

const (
	defaultMaxBytes     = 10000
	defaultExcerptChars = 3000
	defaultTimeout      = 10 * time.Second
)

// PageFetcher retrieves a bounded text excerpt of an article page to ground
// generation prompts. It reads at most maxBytes of the body and extracts
// visible text, so a huge or hostile page cannot blow up a prompt.
type PageFetcher struct {
	client       *http.Client
	maxBytes     int
	excerptChars int
}

var _ ports.ContentFetcher = (*PageFetcher)(nil)

// NewPageFetcher wires an HTTP client; zero limits fall back to defaults.
func NewPageFetcher(client *http.Client, maxBytes, excerptChars int) *PageFetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	if excerptChars <= 0 {
		excerptChars = defaultExcerptChars
	}
	return &PageFetcher{client: client, maxBytes: maxBytes, excerptChars: excerptChars}
}

// Excerpt fetches the page and returns its visible text, truncated to the
// configured excerpt length. Callers treat any error as missing context,
// never as a pipeline fault.
func (f *PageFetcher) Excerpt(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, int64(f.maxBytes)))
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}

	doc.Find("script, style, noscript").Remove()
	text := strings.Join(strings.Fields(doc.Text()), " ")
	if len(text) > f.excerptChars {
		cut := f.excerptChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	return text, nil
}
