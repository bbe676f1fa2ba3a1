package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sorabane/bangusync/internal/models"
	"github.com/sorabane/bangusync/internal/services/bangumi"
	"github.com/sorabane/bangusync/internal/services/dataset"
)

// ErrNotFound is the first-class "no catalog match" result. It is never
// retried: resolution is deterministic over its inputs.
var ErrNotFound = errors.New("no match found")

// searchThreshold is the minimum similarity for accepting a remote search
// candidate.
const searchThreshold = 0.5

// ResolvedSubject is the outcome of title resolution: a catalog subject plus
// the absolute episode number within it.
type ResolvedSubject struct {
	SubjectID int
	Episode   int
}

// MappingLookup resolves custom overrides (highest precedence).
type MappingLookup interface {
	Lookup(title, oriTitle string) (int, bool)
}

// SnapshotProvider hands out the current dataset snapshot.
type SnapshotProvider interface {
	Current() *dataset.Snapshot
}

// SubjectSearcher is the remote-search fallback.
type SubjectSearcher interface {
	SearchSubjects(ctx context.Context, title, airDate string) ([]bangumi.SubjectCandidate, error)
}

// Resolver converts a sync event's free-text title into a catalog subject.
// Precedence: custom mapping, then dataset match, then remote search. Given a
// fixed mapping set and dataset snapshot the result is deterministic.
type Resolver struct {
	mappings         MappingLookup
	snapshots        SnapshotProvider
	searcher         SubjectSearcher
	defaultSeasonLen int
	logger           *logrus.Logger
}

// New creates a resolver.
func New(mappings MappingLookup, snapshots SnapshotProvider, searcher SubjectSearcher, defaultSeasonLen int, logger *logrus.Logger) *Resolver {
	if defaultSeasonLen <= 0 {
		defaultSeasonLen = 13
	}
	return &Resolver{
		mappings:         mappings,
		snapshots:        snapshots,
		searcher:         searcher,
		defaultSeasonLen: defaultSeasonLen,
		logger:           logger,
	}
}

// Resolve maps (title, original title, season, episode, air date) to a
// subject and absolute episode number. ErrNotFound is a result, not a
// failure; any other error is a remote-search transport problem.
func (r *Resolver) Resolve(ctx context.Context, event models.SyncEvent) (ResolvedSubject, error) {
	snapshot := r.snapshots.Current()

	// 1. Custom mapping: season-1 subject, episodes offset past prior seasons.
	if subjectID, ok := r.mappings.Lookup(event.Title, event.OriTitle); ok {
		episode := r.seasonOffset(snapshot, event.Title, 1, event.Season) + event.Episode
		r.logger.WithFields(logrus.Fields{
			"title":      event.Title,
			"subject_id": subjectID,
			"episode":    episode,
		}).Debug("Resolved via custom mapping")
		return ResolvedSubject{SubjectID: subjectID, Episode: episode}, nil
	}

	// 2. Dataset match.
	if entry, ok := snapshot.Match(event.Title, event.OriTitle, event.Season, event.ReleaseDate); ok {
		if resolved, ok := r.fromDatasetEntry(snapshot, entry, event); ok {
			r.logger.WithFields(logrus.Fields{
				"title":      event.Title,
				"matched":    entry.Title,
				"subject_id": resolved.SubjectID,
				"episode":    resolved.Episode,
			}).Debug("Resolved via dataset")
			return resolved, nil
		}
	}

	// 3. Remote search fallback.
	return r.search(ctx, event)
}

// fromDatasetEntry turns a dataset hit into a resolution. An entry of the
// requested season is the season's own subject; an earlier-season entry is
// used with an episode offset, a later-season entry is useless.
func (r *Resolver) fromDatasetEntry(snapshot *dataset.Snapshot, entry *dataset.Entry, event models.SyncEvent) (ResolvedSubject, bool) {
	switch {
	case entry.Season == event.Season:
		return ResolvedSubject{SubjectID: entry.SubjectID, Episode: event.Episode}, true
	case entry.Season < event.Season:
		episode := r.seasonOffset(snapshot, event.Title, entry.Season, event.Season) + event.Episode
		return ResolvedSubject{SubjectID: entry.SubjectID, Episode: episode}, true
	default:
		return ResolvedSubject{}, false
	}
}

// seasonOffset sums episode counts of seasons [from, to). Seasons the dataset
// does not know fall back to the configured default season length.
func (r *Resolver) seasonOffset(snapshot *dataset.Snapshot, title string, from, to int) int {
	offset := 0
	for season := from; season < to; season++ {
		count := snapshot.SeasonEpisodeCount(title, season)
		if count == 0 {
			count = r.defaultSeasonLen
		}
		offset += count
	}
	return offset
}

// search queries the catalog's own search endpoint and accepts the best
// candidate above the similarity threshold.
func (r *Resolver) search(ctx context.Context, event models.SyncEvent) (ResolvedSubject, error) {
	candidates, err := r.searcher.SearchSubjects(ctx, event.Title, event.ReleaseDate)
	if err != nil {
		return ResolvedSubject{}, fmt.Errorf("remote search failed: %w", err)
	}

	best := -1
	bestScore := 0.0
	for i, c := range candidates {
		score := candidateScore(c, event)
		if score > bestScore {
			bestScore = score
			best = i
		}
	}

	if best < 0 || bestScore < searchThreshold {
		r.logger.WithFields(logrus.Fields{
			"title":      event.Title,
			"candidates": len(candidates),
			"best_score": bestScore,
		}).Debug("Remote search produced no acceptable candidate")
		return ResolvedSubject{}, ErrNotFound
	}

	// The air-date window makes a search hit season-specific, so the event's
	// own episode number is already absolute within it.
	return ResolvedSubject{SubjectID: candidates[best].ID, Episode: event.Episode}, nil
}

func candidateScore(c bangumi.SubjectCandidate, event models.SyncEvent) float64 {
	score := dataset.Similarity(c.NameCN, event.Title)
	if s := dataset.Similarity(c.Name, event.Title); s > score {
		score = s
	}
	if event.OriTitle != "" {
		if s := dataset.Similarity(c.Name, event.OriTitle); s > score {
			score = s
		}
	}
	return score
}
