package reply

import "strings"

// matchKeyword reports whether any configured trigger keyword occurs in the
// inbound text. Both sides are normalized (trimmed, lowercased) and matching
// is plain substring containment.
func matchKeyword(keywords []string, text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return false
	}
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(normalized, kw) {
			return true
		}
	}
	return false
}
