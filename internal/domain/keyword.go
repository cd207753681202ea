package domain

import "strings"

// MaxKeywords bounds the keyword set stored per item.
const MaxKeywords = 4

// DefaultExcludedKeywords are topic terms too generic to discriminate
// between items; keyword extraction filters them out.
var DefaultExcludedKeywords = []string{"haptic", "haptics", "vibration", "vibrations", "tactile"}

// ExclusionSet builds a lookup set from a configured exclusion list.
func ExclusionSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}

// NormalizeKeywords lowercases and trims raw keyword candidates, drops
// empties, duplicates and excluded terms, and truncates to MaxKeywords.
func NormalizeKeywords(raw []string, excluded map[string]struct{}) []string {
	var keywords []string
	seen := map[string]struct{}{}
	for _, kw := range raw {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, ok := excluded[kw]; ok {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		keywords = append(keywords, kw)
		if len(keywords) == MaxKeywords {
			break
		}
	}
	return keywords
}
