package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"feedcorpus/internal/domain"
)

const descriptionLimit = 300

// ReadRecords decodes raw item records produced by a feed fetcher (a JSON
// array using the corpus field names) and normalizes them: records without a
// link are dropped, missing dates fall back to now, missing sources are
// derived from the link, and descriptions are truncated for preview.
func ReadRecords(r io.Reader) ([]domain.RawItem, error) {
	var records []domain.RawItem
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode raw items: %w", err)
	}

	items := make([]domain.RawItem, 0, len(records))
	for _, rec := range records {
		if rec.Link == "" {
			continue
		}
		if rec.Title == "" {
			rec.Title = domain.UntitledTitle
		}
		if rec.Date.IsZero() {
			rec.Date = domain.NewTimestamp(time.Now().UTC())
		}
		if rec.Source == "" {
			rec.Source = SourceDomain(rec.Link)
		}
		rec.Description = TruncateDescription(rec.Description)
		items = append(items, rec)
	}

	return items, nil
}

// SourceDomain extracts a clean domain name from a URL: Google Alerts
// redirect wrappers are unwrapped to their destination, the www prefix and
// the TLD suffix are stripped. Anything unparsable yields "unknown".
func SourceDomain(rawURL string) string {
	if strings.Contains(rawURL, "google.com/url") {
		if parsed, err := url.Parse(rawURL); err == nil {
			if dest := parsed.Query().Get("url"); dest != "" {
				rawURL = dest
			}
		}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "unknown"
	}

	host := parsed.Host
	if host == "" {
		host = parsed.Path
	}
	host = strings.TrimPrefix(host, "www.")

	if parts := strings.Split(host, "."); len(parts) > 1 {
		host = parts[0]
	}

	if host == "" {
		return "unknown"
	}
	return host
}

// TruncateDescription caps a description at the preview limit, cutting on a
// word boundary and appending an ellipsis. The limit lands on a rune
// boundary so multibyte text never persists as invalid UTF-8.
func TruncateDescription(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= descriptionLimit {
		return s
	}

	limit := descriptionLimit
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	cut := s[:limit]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}
