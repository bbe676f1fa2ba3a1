package dataset

import (
	"testing"
	"time"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"【我推的孩子】", "我推的孩子"},
		{"我推的孩子", "我推的孩子"},
		{"ＡＢＣ", "abc"},
		{"Bocchi the Rock!", "bocchitherock"},
		{"  Sousou no Frieren  ", "sousounofrieren"},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	if s := Similarity("【我推的孩子】", "我推的孩子"); s != 1 {
		t.Errorf("bracket variants should normalize equal, got %f", s)
	}
	if s := Similarity("", "anything"); s != 0 {
		t.Errorf("empty input should score 0, got %f", s)
	}
	if s := Similarity("abcd", "abce"); s != 0.75 {
		t.Errorf("one edit over four runes should score 0.75, got %f", s)
	}
}

func TestParseSeason(t *testing.T) {
	cases := []struct {
		titles []string
		want   int
	}{
		{[]string{"无职转生 第二季"}, 2},
		{[]string{"关于我转生变成史莱姆这档事 第3期"}, 3},
		{[]string{"Mushoku Tensei Season 2"}, 2},
		{[]string{"SPY x FAMILY S2"}, 2},
		{[]string{"Overlord II"}, 2},
		{[]string{"Overlord IV"}, 4},
		{[]string{"葬送的芙莉莲"}, 1},
		{[]string{"no markers", "第十季"}, 10},
	}
	for _, c := range cases {
		if got := parseSeason(c.titles); got != c.want {
			t.Errorf("parseSeason(%v) = %d, want %d", c.titles, got, c.want)
		}
	}
}

func TestStripSeasonMarkers(t *testing.T) {
	if got := stripSeasonMarkers("无职转生 第二季"); got != "无职转生" {
		t.Errorf("stripSeasonMarkers = %q", got)
	}
	if got := stripSeasonMarkers("Mushoku Tensei Season 2"); got != "Mushoku Tensei" {
		t.Errorf("stripSeasonMarkers = %q", got)
	}
}

func TestMatchExactHit(t *testing.T) {
	snap := &Snapshot{Entries: []Entry{
		{Title: "葬送的芙莉莲", AltTitles: []string{"葬送的芙莉莲", "葬送のフリーレン"}, Season: 1, SubjectID: 425909},
		{Title: "别的番", AltTitles: []string{"别的番"}, Season: 1, SubjectID: 1},
	}}

	entry, ok := snap.Match("葬送的芙莉莲", "", 1, "")
	if !ok || entry.SubjectID != 425909 {
		t.Fatalf("expected subject 425909, got %+v ok=%v", entry, ok)
	}
}

func TestMatchOriTitleVariant(t *testing.T) {
	snap := &Snapshot{Entries: []Entry{
		{Title: "葬送的芙莉莲", AltTitles: []string{"葬送的芙莉莲", "葬送のフリーレン"}, Season: 1, SubjectID: 425909},
	}}

	entry, ok := snap.Match("Frieren Beyond Journeys End", "葬送のフリーレン", 1, "")
	if !ok || entry.SubjectID != 425909 {
		t.Fatalf("original title should match a variant, got ok=%v", ok)
	}
}

func TestMatchSeasonPreference(t *testing.T) {
	snap := &Snapshot{Entries: []Entry{
		{Title: "无职转生", AltTitles: []string{"无职转生"}, Season: 1, SubjectID: 286000},
		{Title: "无职转生 第二季", AltTitles: []string{"无职转生 第二季"}, Season: 2, SubjectID: 373247},
	}}

	entry, ok := snap.Match("无职转生", "", 2, "")
	if !ok || entry.SubjectID != 373247 {
		t.Fatalf("entry of the requested season should win, got %+v ok=%v", entry, ok)
	}
}

func TestMatchAirDateTieBreak(t *testing.T) {
	begin2023, _ := time.Parse("2006-01-02", "2023-04-05")
	begin2024, _ := time.Parse("2006-01-02", "2024-04-05")
	snap := &Snapshot{Entries: []Entry{
		{Title: "某长寿番", AltTitles: []string{"某长寿番"}, Season: 1, SubjectID: 100, Begin: begin2023},
		{Title: "某长寿番", AltTitles: []string{"某长寿番"}, Season: 1, SubjectID: 200, Begin: begin2024},
	}}

	// Neither entry carries the requested season, so air-date proximity decides.
	entry, ok := snap.Match("某长寿番", "", 2, "2024-04-01")
	if !ok || entry.SubjectID != 200 {
		t.Fatalf("expected air-date proximity to pick subject 200, got %+v ok=%v", entry, ok)
	}
}

func TestMatchFuzzyBelowThresholdRejected(t *testing.T) {
	snap := &Snapshot{Entries: []Entry{
		{Title: "进击的巨人", AltTitles: []string{"进击的巨人"}, Season: 1, SubjectID: 51928},
	}}

	if _, ok := snap.Match("completely different", "", 1, ""); ok {
		t.Fatalf("unrelated title should not match")
	}
}

func TestSeasonEpisodeCount(t *testing.T) {
	snap := &Snapshot{Entries: []Entry{
		{Title: "无职转生", AltTitles: []string{"无职转生"}, Season: 1, SubjectID: 286000, EpisodeCount: 11},
		{Title: "无职转生 第二季", AltTitles: []string{"无职转生 第二季"}, Season: 2, SubjectID: 373247, EpisodeCount: 12},
	}}

	if got := snap.SeasonEpisodeCount("无职转生", 1); got != 11 {
		t.Errorf("season 1 count = %d, want 11", got)
	}
	if got := snap.SeasonEpisodeCount("无职转生", 2); got != 12 {
		t.Errorf("season 2 count = %d, want 12", got)
	}
	if got := snap.SeasonEpisodeCount("无职转生", 3); got != 0 {
		t.Errorf("unknown season should report 0, got %d", got)
	}
}
