package gemini

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"feedcorpus/internal/domain"
	"feedcorpus/internal/ports"
)

const (
	summaryPrefix  = "SUMMARY:"
	keywordsPrefix = "KEYWORDS:"
)

func buildEnrichPrompt(req ports.EnrichRequest, excerpt, focusTopic string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Analyze this article and create a concise summary (2-3 sentences) focused ONLY on %s content.\n\n", focusTopic)
	fmt.Fprintf(&sb, "Title: %s\n", req.Title)
	fmt.Fprintf(&sb, "Description: %s\n\n", req.Description)

	if excerpt != "" {
		fmt.Fprintf(&sb, "Article Content (excerpt): %s\n\n", excerpt)
	}

	if len(req.PreferredKeywords) > 0 {
		fmt.Fprintf(&sb, "Prefer reusing these existing keywords when they fit: %s\n\n", strings.Join(req.PreferredKeywords, ", "))
	}

	fmt.Fprintf(&sb, `Instructions:
- Focus exclusively on %s related content
- Be specific about technologies, techniques, devices, or findings mentioned
- Keep the summary under 150 words
- Do not use phrases like "this article discusses" - just provide the facts
- Respond in exactly this format, nothing else:
SUMMARY: <the summary>
KEYWORDS: <up to 4 comma-separated keywords, lowercase, 1-2 words each>`, focusTopic)

	return sb.String()
}

func buildRelevancePrompt(title, summary, focusTopic string) string {
	return fmt.Sprintf(`Analyze this %[1]s related post and rate its relevance level as LOW, MID, or HIGH based on these criteria:

HIGH relevance if it mentions:
- Design tools or authoring software for %[1]s
- Developer APIs or SDKs
- Companies creating %[1]s experiences or content
- New devices with %[1]s playback capabilities

MID relevance if it:
- Discusses the technology or research
- Mentions %[1]s in products
- Contains useful industry information

LOW relevance if it:
- Only briefly mentions the topic
- Is not directly relevant to development or design

Title: %[2]s

Summary: %[3]s

Respond with ONLY one word: LOW, MID, or HIGH`, focusTopic, title, summary)
}

// parseEnrichment scans the model answer for the two labeled fields. A
// missing SUMMARY line falls back to the truncated raw text, so a nominal
// success never yields an empty summary; missing keywords stay empty and
// are caught later by the repair pass.
func parseEnrichment(text string, excluded map[string]struct{}) (domain.Enrichment, error) {
	var summary string
	var rawKeywords []string

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, summaryPrefix); ok && summary == "" {
			summary = strings.TrimSpace(rest)
			continue
		}
		if rest, ok := strings.CutPrefix(line, keywordsPrefix); ok && rawKeywords == nil {
			rawKeywords = strings.Split(rest, ",")
		}
	}

	if summary == "" {
		summary = truncateSummary(text)
	}
	if summary == "" {
		return domain.Enrichment{}, fmt.Errorf("no usable text in response")
	}

	return domain.Enrichment{
		Summary:  summary,
		Keywords: domain.NormalizeKeywords(rawKeywords, excluded),
	}, nil
}

func truncateSummary(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= summaryFallbackCap {
		return s
	}

	// Back off to a rune boundary so the cut never leaves invalid UTF-8.
	cut := summaryFallbackCap - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
