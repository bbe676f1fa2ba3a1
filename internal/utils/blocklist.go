package utils

import "strings"

// Blocklist holds blocked keywords for filtering incoming titles. Events whose
// title or original title contains any keyword never reach resolution.
type Blocklist struct {
	keywords []string
}

// NewBlocklist builds a blocklist from configured keywords.
func NewBlocklist(keywords []string) *Blocklist {
	return &Blocklist{keywords: keywords}
}

// IsBlocked checks whether a title matches any blocked keyword
// (case-insensitive substring). Returns (isBlocked, matchedKeyword).
func (b *Blocklist) IsBlocked(titles ...string) (bool, string) {
	for _, title := range titles {
		if title == "" {
			continue
		}
		titleLower := strings.ToLower(title)
		for _, keyword := range b.keywords {
			if strings.Contains(titleLower, strings.ToLower(keyword)) {
				return true, keyword
			}
		}
	}
	return false, ""
}
