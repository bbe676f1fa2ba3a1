package dataset

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/width"
)

// Match ranks: exact normalized equality beats substring containment beats
// fuzzy similarity.
const (
	rankNone = iota
	rankFuzzy
	rankSubstring
	rankExact
)

// fuzzyThreshold is the minimum levenshtein similarity for a fuzzy hit.
const fuzzyThreshold = 0.75

// Normalize folds a title for comparison: full-width characters become
// half-width, ASCII is lowercased, and punctuation/whitespace is stripped so
// that "我推的孩子" and "【我推的孩子】" compare equal.
func Normalize(title string) string {
	folded := width.Fold.String(title)
	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Similarity computes a levenshtein ratio in [0,1] over normalized titles.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	dist := levenshtein.ComputeDistance(na, nb)
	maxLen := len([]rune(na))
	if l := len([]rune(nb)); l > maxLen {
		maxLen = l
	}
	return 1 - float64(dist)/float64(maxLen)
}

var (
	cjkSeasonRe   = regexp.MustCompile(`第\s*([0-9一二三四五六七八九十]+)\s*[季期部]`)
	asciiSeasonRe = regexp.MustCompile(`(?i)\bseason\s*([0-9]+)`)
	shortSeasonRe = regexp.MustCompile(`(?i)\bS([0-9]+)\b`)
	romanSeasonRe = regexp.MustCompile(`\s(I{2,3}|IV|V)$`)
)

var cjkNumbers = map[string]int{
	"一": 1, "二": 2, "三": 3, "四": 4, "五": 5,
	"六": 6, "七": 7, "八": 8, "九": 9, "十": 10,
}

var romanNumbers = map[string]int{"II": 2, "III": 3, "IV": 4, "V": 5}

// parseSeason extracts a season index from any title variant. Variants
// without a marker imply season 1.
func parseSeason(titles []string) int {
	for _, title := range titles {
		if m := cjkSeasonRe.FindStringSubmatch(title); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n
			}
			if n, ok := cjkNumbers[m[1]]; ok {
				return n
			}
		}
		if m := asciiSeasonRe.FindStringSubmatch(title); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n
			}
		}
		if m := shortSeasonRe.FindStringSubmatch(title); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				return n
			}
		}
		if m := romanSeasonRe.FindStringSubmatch(title); m != nil {
			return romanNumbers[m[1]]
		}
	}
	return 1
}

type candidate struct {
	entry *Entry
	rank  int
	score float64
}

// Match finds the dataset entry for a title and season. Candidates are
// gathered across all title variants; entries carrying the requested season
// index win, otherwise the entry whose air date is closest to the event's
// wins. Within a season group the rank order is exact > substring > fuzzy.
func (s *Snapshot) Match(title, oriTitle string, season int, airDate string) (*Entry, bool) {
	queries := []string{title}
	if oriTitle != "" && oriTitle != title {
		queries = append(queries, oriTitle)
	}

	var candidates []candidate
	for i := range s.Entries {
		entry := &s.Entries[i]
		rank, score := matchEntry(entry, queries)
		if rank > rankNone {
			candidates = append(candidates, candidate{entry: entry, rank: rank, score: score})
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}

	// Prefer candidates of the requested season when any exist.
	seasonMatched := candidates[:0:0]
	for _, c := range candidates {
		if c.entry.Season == season {
			seasonMatched = append(seasonMatched, c)
		}
	}
	pool := candidates
	if len(seasonMatched) > 0 {
		pool = seasonMatched
	}

	best := pool[0]
	for _, c := range pool[1:] {
		if c.rank != best.rank {
			if c.rank > best.rank {
				best = c
			}
			continue
		}
		if len(seasonMatched) == 0 && airDate != "" {
			// No season information distinguishes them; fall back to air-date
			// proximity.
			if dateDiff(c.entry.Begin, airDate) < dateDiff(best.entry.Begin, airDate) {
				best = c
			}
			continue
		}
		if c.score > best.score {
			best = c
		}
	}

	if best.rank == rankFuzzy && best.score < fuzzyThreshold {
		return nil, false
	}
	return best.entry, true
}

// matchEntry scores an entry against the query titles, returning the best
// rank and similarity across all variants.
func matchEntry(entry *Entry, queries []string) (int, float64) {
	bestRank := rankNone
	bestScore := 0.0

	for _, q := range queries {
		nq := Normalize(q)
		if nq == "" {
			continue
		}
		for _, variant := range entry.AltTitles {
			nv := Normalize(variant)
			if nv == "" {
				continue
			}
			switch {
			case nq == nv:
				return rankExact, 1
			case strings.Contains(nv, nq) || strings.Contains(nq, nv):
				if bestRank < rankSubstring {
					bestRank = rankSubstring
				}
			}
			if score := Similarity(q, variant); score > bestScore {
				bestScore = score
				if bestRank < rankFuzzy && score >= fuzzyThreshold {
					bestRank = rankFuzzy
				}
			}
		}
	}
	return bestRank, bestScore
}

// SeasonEpisodeCount returns the known episode count of a given season of the
// show the entry belongs to, matched by title family. 0 means unknown.
func (s *Snapshot) SeasonEpisodeCount(title string, season int) int {
	base := Normalize(stripSeasonMarkers(title))
	if base == "" {
		return 0
	}
	for i := range s.Entries {
		entry := &s.Entries[i]
		if entry.Season != season || entry.EpisodeCount == 0 {
			continue
		}
		for _, variant := range entry.AltTitles {
			if strings.Contains(Normalize(stripSeasonMarkers(variant)), base) {
				return entry.EpisodeCount
			}
		}
	}
	return 0
}

// stripSeasonMarkers removes trailing season decorations so different seasons
// of one show normalize to the same base title.
func stripSeasonMarkers(title string) string {
	title = cjkSeasonRe.ReplaceAllString(title, "")
	title = asciiSeasonRe.ReplaceAllString(title, "")
	title = shortSeasonRe.ReplaceAllString(title, "")
	title = romanSeasonRe.ReplaceAllString(title, "")
	return strings.TrimSpace(title)
}

func dateDiff(begin time.Time, airDate string) int {
	if begin.IsZero() {
		return 1 << 30
	}
	target, err := time.Parse("2006-01-02", airDate)
	if err != nil {
		return 1 << 30
	}
	diff := int(begin.Sub(target).Hours() / 24)
	if diff < 0 {
		diff = -diff
	}
	return diff
}
