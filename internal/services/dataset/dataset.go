package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Entry is one show-season of the title dataset. Entries are immutable; the
// whole snapshot is rebuilt and swapped on refresh.
type Entry struct {
	Title        string   // canonical (preferred zh-Hans) title
	AltTitles    []string // every known variant, original title included
	Season       int      // parsed from title markers, 1 when none found
	SubjectID    int
	Begin        time.Time // first-episode air date, zero when unknown
	EpisodeCount int       // 0 when the dataset does not know
}

// Snapshot is an immutable view of the parsed dataset.
type Snapshot struct {
	Entries  []Entry
	LoadedAt time.Time
}

// Store downloads and caches the bangumi-data document, exposing an
// atomically swapped snapshot. Readers never block on refresh.
type Store struct {
	dataURL    string
	cachePath  string
	ttl        time.Duration
	httpClient *http.Client
	logger     *logrus.Logger
	snapshot   atomic.Pointer[Snapshot]
}

// NewStore creates a dataset store. proxyURL may be empty.
func NewStore(dataURL, cachePath, proxyURL string, ttlDays int, logger *logrus.Logger) (*Store, error) {
	transport := &http.Transport{}
	if proxyURL != "" {
		proxy, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid dataset proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	return &Store{
		dataURL:   dataURL,
		cachePath: cachePath,
		ttl:       time.Duration(ttlDays) * 24 * time.Hour,
		httpClient: &http.Client{
			Timeout:   2 * time.Minute,
			Transport: transport,
		},
		logger: logger,
	}, nil
}

// Current returns the active snapshot, or an empty one before the first load.
func (s *Store) Current() *Snapshot {
	if snap := s.snapshot.Load(); snap != nil {
		return snap
	}
	return &Snapshot{}
}

// Load makes sure a fresh dataset is available and parsed into memory. The
// cache file is reused while younger than the TTL; otherwise it is
// re-downloaded. A stale cache is still used when the download fails.
func (s *Store) Load(ctx context.Context) error {
	if !s.cacheValid() {
		if err := s.download(ctx); err != nil {
			if _, statErr := os.Stat(s.cachePath); statErr != nil {
				return fmt.Errorf("dataset download failed and no cache exists: %w", err)
			}
			s.logger.WithError(err).Warn("Dataset download failed, using stale cache")
		}
	}
	return s.reload()
}

// Refresh forces a download and snapshot rebuild, ignoring the TTL.
func (s *Store) Refresh(ctx context.Context) error {
	if err := s.download(ctx); err != nil {
		return err
	}
	return s.reload()
}

func (s *Store) cacheValid() bool {
	info, err := os.Stat(s.cachePath)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < s.ttl
}

func (s *Store) download(ctx context.Context) error {
	s.logger.WithField("url", s.dataURL).Debug("Downloading title dataset")

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, "GET", s.dataURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("dataset download failed with status %d", resp.StatusCode)
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return err
			}
			return backoff.Permanent(err)
		}

		tmpPath := s.cachePath + ".tmp"
		file, err := os.Create(tmpPath)
		if err != nil {
			return backoff.Permanent(err)
		}
		if _, err := io.Copy(file, resp.Body); err != nil {
			file.Close()
			os.Remove(tmpPath)
			return err
		}
		if err := file.Close(); err != nil {
			return err
		}
		return os.Rename(tmpPath, s.cachePath)
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return fmt.Errorf("failed to download dataset: %w", err)
	}

	s.logger.WithField("path", s.cachePath).Info("Title dataset downloaded")
	return nil
}

// rawItem mirrors one element of the bangumi-data items array.
type rawItem struct {
	Title          string              `json:"title"`
	Type           string              `json:"type"`
	Begin          string              `json:"begin"`
	TitleTranslate map[string][]string `json:"titleTranslate"`
	Sites          []struct {
		Site string `json:"site"`
		ID   string `json:"id"`
	} `json:"sites"`
}

type rawDocument struct {
	Items []rawItem `json:"items"`
}

// reload parses the cache file into a fresh snapshot and swaps it in.
func (s *Store) reload() error {
	data, err := os.ReadFile(s.cachePath)
	if err != nil {
		return fmt.Errorf("failed to read dataset cache: %w", err)
	}

	var doc rawDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse dataset cache: %w", err)
	}

	entries := buildEntries(doc.Items)
	s.snapshot.Store(&Snapshot{
		Entries:  entries,
		LoadedAt: time.Now(),
	})

	s.logger.WithField("entries", len(entries)).Info("Title dataset loaded")
	return nil
}

// buildEntries converts raw dataset items into matchable entries. Movies are
// dropped; matching is episodic only.
func buildEntries(items []rawItem) []Entry {
	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		if item.Type == "movie" {
			continue
		}

		subjectID := 0
		for _, site := range item.Sites {
			if site.Site == "bangumi" {
				if id, err := strconv.Atoi(site.ID); err == nil {
					subjectID = id
				}
				break
			}
		}
		if subjectID == 0 {
			continue
		}

		zhHans := item.TitleTranslate["zh-Hans"]
		title := item.Title
		if len(zhHans) > 0 {
			title = zhHans[0]
		}

		alts := make([]string, 0, len(zhHans)+1)
		alts = append(alts, zhHans...)
		if item.Title != "" {
			alts = append(alts, item.Title)
		}

		var begin time.Time
		if len(item.Begin) >= 10 {
			begin, _ = time.Parse("2006-01-02", item.Begin[:10])
		}

		entries = append(entries, Entry{
			Title:     title,
			AltTitles: alts,
			Season:    parseSeason(alts),
			SubjectID: subjectID,
			Begin:     begin,
		})
	}
	return entries
}
