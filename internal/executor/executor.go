package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sorabane/bangusync/internal/config"
	"github.com/sorabane/bangusync/internal/models"
	"github.com/sorabane/bangusync/internal/resolver"
	"github.com/sorabane/bangusync/internal/services/bangumi"
)

// TitleResolver converts an event's title into a catalog subject.
type TitleResolver interface {
	Resolve(ctx context.Context, event models.SyncEvent) (resolver.ResolvedSubject, error)
}

// Catalog is the slice of the Bangumi client the executor needs.
type Catalog interface {
	FindEpisodeID(ctx context.Context, subjectID, absoluteEpisode int) (int, error)
	GetSubjectCollection(ctx context.Context, token, username string, subjectID int) (*bangumi.SubjectCollection, bool, error)
	SetSubjectCollection(ctx context.Context, token string, subjectID, state int, private bool) error
	IsEpisodeWatched(ctx context.Context, token string, episodeID int) (bool, error)
	MarkEpisodeWatched(ctx context.Context, token string, episodeID int) error
}

// Executor runs the resolve -> read -> write pipeline for one event and
// appends exactly one SyncRecord per attempt. Writes for the same
// (account, subject, episode) triple serialize behind a keyed lock, and the
// catalog is consulted before every write, so replayed webhooks and
// overlapping pull batches never double-post.
type Executor struct {
	resolver TitleResolver
	catalog  Catalog
	db       *models.Database
	locks    *lockTable
	logger   *logrus.Logger
}

// New creates a sync executor.
func New(titleResolver TitleResolver, catalog Catalog, db *models.Database, logger *logrus.Logger) *Executor {
	return &Executor{
		resolver: titleResolver,
		catalog:  catalog,
		db:       db,
		locks:    newLockTable(),
		logger:   logger,
	}
}

// Execute processes one canonical event for the bound account. Every outcome,
// success or not, becomes a SyncRecord; errors are local to the event.
func (e *Executor) Execute(ctx context.Context, event models.SyncEvent, binding config.AccountBinding) *models.SyncRecord {
	resolved, err := e.resolver.Resolve(ctx, event)
	if err != nil {
		if errors.Is(err, resolver.ErrNotFound) {
			return e.record(event, nil, models.StatusError, "no match found")
		}
		return e.record(event, nil, models.StatusError, fmt.Sprintf("resolution failed: %v", err))
	}

	// Replayed events that already succeeded skip the catalog entirely. A
	// failed lookup just falls through to the authoritative catalog read.
	seen, err := e.db.HasSuccessRecord(event.UserName, resolved.SubjectID, event.Season, event.Episode)
	if err != nil {
		e.logger.WithError(err).Warn("Success-record pre-check failed")
	} else if seen {
		return e.record(event, &resolved, models.StatusIgnored, "already synced")
	}

	episodeID, err := e.catalog.FindEpisodeID(ctx, resolved.SubjectID, resolved.Episode)
	if err != nil {
		if errors.Is(err, bangumi.ErrNotFound) {
			return e.record(event, &resolved, models.StatusError,
				fmt.Sprintf("episode %d not found in subject %d", resolved.Episode, resolved.SubjectID))
		}
		return e.record(event, &resolved, models.StatusError, fmt.Sprintf("episode lookup failed: %v", err))
	}

	key := fmt.Sprintf("%s/%d/%d", binding.BangumiUser, resolved.SubjectID, resolved.Episode)
	release := e.locks.acquire(key)
	defer release()

	message, status, err := e.markWatched(ctx, binding, resolved, episodeID)
	if err != nil {
		if errors.Is(err, bangumi.ErrUnauthorized) {
			return e.record(event, &resolved, models.StatusError, "catalog rejected the access token")
		}
		return e.record(event, &resolved, models.StatusError, fmt.Sprintf("mark watched failed: %v", err))
	}

	return e.record(event, &resolved, status, message)
}

// markWatched performs the idempotent write: read the current collection
// state, short-circuit when already seen, otherwise collect and mark. The
// read happens under the triple lock, so a concurrent duplicate observes the
// first write and short-circuits.
func (e *Executor) markWatched(ctx context.Context, binding config.AccountBinding, resolved resolver.ResolvedSubject, episodeID int) (string, models.Status, error) {
	coll, collected, err := e.catalog.GetSubjectCollection(ctx, binding.AccessToken, binding.BangumiUser, resolved.SubjectID)
	if err != nil {
		return "", "", err
	}

	if !collected {
		// Not in the collection yet: add as watching, then mark the episode.
		if err := e.catalog.SetSubjectCollection(ctx, binding.AccessToken, resolved.SubjectID, bangumi.CollectionWatching, binding.Private); err != nil {
			return "", "", err
		}
		if err := e.catalog.MarkEpisodeWatched(ctx, binding.AccessToken, episodeID); err != nil {
			return "", "", err
		}
		return "added to collection and marked watched", models.StatusSuccess, nil
	}

	if coll.Type == bangumi.CollectionDone {
		return "already synced", models.StatusIgnored, nil
	}
	if coll.Type == bangumi.CollectionWish || coll.Type == bangumi.CollectionOnHold {
		if err := e.catalog.SetSubjectCollection(ctx, binding.AccessToken, resolved.SubjectID, bangumi.CollectionWatching, binding.Private); err != nil {
			return "", "", err
		}
	}

	watched, err := e.catalog.IsEpisodeWatched(ctx, binding.AccessToken, episodeID)
	if err != nil {
		return "", "", err
	}
	if watched {
		return "already synced", models.StatusIgnored, nil
	}

	if err := e.catalog.MarkEpisodeWatched(ctx, binding.AccessToken, episodeID); err != nil {
		return "", "", err
	}
	return "marked watched", models.StatusSuccess, nil
}

func (e *Executor) record(event models.SyncEvent, resolved *resolver.ResolvedSubject, status models.Status, message string) *models.SyncRecord {
	record := &models.SyncRecord{
		Timestamp: event.ReceivedAt,
		UserName:  event.UserName,
		Title:     event.Title,
		OriTitle:  event.OriTitle,
		Season:    event.Season,
		Episode:   event.Episode,
		Status:    status,
		Source:    event.Source,
		Message:   message,
	}
	if resolved != nil {
		subjectID := resolved.SubjectID
		record.SubjectID = &subjectID
	}

	if err := e.db.AppendRecord(record); err != nil {
		e.logger.WithError(err).Error("Failed to append sync record")
	}

	entry := e.logger.WithFields(logrus.Fields{
		"user":    event.UserName,
		"title":   event.Title,
		"season":  event.Season,
		"episode": event.Episode,
		"source":  event.Source,
		"status":  status,
	})
	if status == models.StatusError {
		entry.WithField("message", message).Error("Sync attempt failed")
	} else {
		entry.Info(message)
	}

	return record
}
