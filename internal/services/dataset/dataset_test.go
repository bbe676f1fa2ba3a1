package dataset

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

const sampleDocument = `{
  "items": [
    {
      "title": "葬送のフリーレン",
      "type": "tv",
      "begin": "2023-09-29T16:00:00.000Z",
      "titleTranslate": {"zh-Hans": ["葬送的芙莉莲"]},
      "sites": [{"site": "bangumi", "id": "425909"}]
    },
    {
      "title": "Some Movie",
      "type": "movie",
      "begin": "2023-01-01T00:00:00.000Z",
      "titleTranslate": {},
      "sites": [{"site": "bangumi", "id": "111"}]
    },
    {
      "title": "No Catalog Entry",
      "type": "tv",
      "begin": "",
      "titleTranslate": {},
      "sites": [{"site": "mikan", "id": "999"}]
    }
  ]
}`

func testStore(t *testing.T, srv *httptest.Server) *Store {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store, err := NewStore(srv.URL, filepath.Join(t.TempDir(), "data.json"), "", 7, logger)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store
}

func TestLoadParsesEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, sampleDocument)
	}))
	defer srv.Close()

	store := testStore(t, srv)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	snap := store.Current()
	if len(snap.Entries) != 1 {
		t.Fatalf("movies and siteless items must be dropped, got %d entries", len(snap.Entries))
	}

	entry := snap.Entries[0]
	if entry.Title != "葬送的芙莉莲" {
		t.Errorf("preferred title should be zh-Hans, got %q", entry.Title)
	}
	if entry.SubjectID != 425909 {
		t.Errorf("subject = %d, want 425909", entry.SubjectID)
	}
	if entry.Season != 1 {
		t.Errorf("season = %d, want 1", entry.Season)
	}
	if entry.Begin.Format("2006-01-02") != "2023-09-29" {
		t.Errorf("begin = %v", entry.Begin)
	}
	if len(entry.AltTitles) != 2 {
		t.Errorf("alt titles should hold both variants, got %v", entry.AltTitles)
	}
}

func TestLoadReusesFreshCache(t *testing.T) {
	downloads := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		downloads++
		io.WriteString(w, sampleDocument)
	}))
	defer srv.Close()

	store := testStore(t, srv)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("first Load failed: %v", err)
	}
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if downloads != 1 {
		t.Errorf("a fresh cache must not be re-downloaded, got %d downloads", downloads)
	}
}

func TestRefreshIgnoresTTL(t *testing.T) {
	downloads := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		downloads++
		io.WriteString(w, sampleDocument)
	}))
	defer srv.Close()

	store := testStore(t, srv)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if downloads != 2 {
		t.Errorf("Refresh must force a download, got %d", downloads)
	}
}

func TestLoadStaleCacheSurvivesDownloadFailure(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			http.Error(w, "gone", http.StatusBadGateway)
			return
		}
		io.WriteString(w, sampleDocument)
	}))
	defer srv.Close()

	store := testStore(t, srv)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Age the cache out and break the upstream.
	store.ttl = 0
	healthy = false

	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("stale cache should still serve: %v", err)
	}
	if len(store.Current().Entries) != 1 {
		t.Errorf("snapshot should survive the failed refresh")
	}
}

func TestCurrentBeforeLoad(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	store := testStore(t, srv)
	snap := store.Current()
	if snap == nil || len(snap.Entries) != 0 {
		t.Errorf("pre-load snapshot should be empty, got %+v", snap)
	}
}
