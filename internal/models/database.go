package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// Database wraps the bolthold store holding sync records, custom mappings and
// Trakt account documents. bbolt serializes writes internally, so concurrent
// appends from the webhook path and the puller are safe without extra locking.
type Database struct {
	store *bolthold.Store
}

// NewDatabase creates a new database connection
func NewDatabase(path string) (*Database, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Database{store: store}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.store.Close()
}

// Sync record operations

// AppendRecord inserts a new record into the append-only sync log.
func (db *Database) AppendRecord(record *SyncRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	return db.store.Insert(bolthold.NextSequence(), record)
}

// GetRecords lists sync records newest-first, applying the filter's optional
// status/user/source constraints and limit/offset pagination. The second
// return value is the total match count before pagination.
func (db *Database) GetRecords(filter RecordFilter) ([]*SyncRecord, int, error) {
	var records []*SyncRecord

	var query *bolthold.Query
	where := func(field string, value interface{}) {
		if query == nil {
			query = bolthold.Where(field).Eq(value)
		} else {
			query = query.And(field).Eq(value)
		}
	}
	if filter.Status != "" {
		where("Status", filter.Status)
	}
	if filter.UserName != "" {
		where("UserName", filter.UserName)
	}
	if filter.Source != "" {
		where("Source", filter.Source)
	}

	if err := db.store.Find(&records, query); err != nil {
		return nil, 0, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})

	total := len(records)
	if filter.Offset > 0 {
		if filter.Offset >= total {
			return []*SyncRecord{}, total, nil
		}
		records = records[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(records) {
		records = records[:filter.Limit]
	}

	return records, total, nil
}

// GetRecordStats aggregates the full sync log. PerDay covers the last `days`
// calendar days keyed as YYYY-MM-DD. Records carry timestamps from mixed
// zones (Trakt watched_at is UTC, webhooks are stamped locally), so all day
// bucketing happens in UTC.
func (db *Database) GetRecordStats(days int) (*RecordStats, error) {
	var records []*SyncRecord
	if err := db.store.Find(&records, nil); err != nil {
		return nil, err
	}

	stats := &RecordStats{
		PerDay:  make(map[string]int),
		PerUser: make(map[string]int),
	}

	now := time.Now().UTC()
	today := now.Format("2006-01-02")
	cutoff := now.AddDate(0, 0, -days)

	for _, r := range records {
		stats.Total++
		day := r.Timestamp.UTC().Format("2006-01-02")
		if day == today {
			stats.Today++
		}
		switch r.Status {
		case StatusSuccess:
			stats.Success++
		case StatusError:
			stats.Errors++
		case StatusIgnored:
			stats.Ignored++
		}
		if r.Timestamp.After(cutoff) {
			stats.PerDay[day]++
		}
		stats.PerUser[r.UserName]++
	}

	attempted := stats.Success + stats.Errors
	if attempted > 0 {
		stats.SuccessRate = float64(stats.Success) / float64(attempted)
	}

	return stats, nil
}

// HasSuccessRecord reports whether a success record already exists for the
// user's (subject, season, episode) triple. Used as a cheap pre-check by the
// executor to skip catalog round trips for replayed events; the authoritative
// idempotency check is still the catalog read.
func (db *Database) HasSuccessRecord(userName string, subjectID, season, episode int) (bool, error) {
	var records []*SyncRecord
	err := db.store.Find(&records,
		bolthold.Where("UserName").Eq(userName).Index("UserName").
			And("Status").Eq(StatusSuccess))
	if err != nil {
		return false, err
	}
	for _, r := range records {
		if r.SubjectID != nil && *r.SubjectID == subjectID && r.Season == season && r.Episode == episode {
			return true, nil
		}
	}
	return false, nil
}

// Custom mapping operations

// MappingKey case-folds a title into its lookup key.
func MappingKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// UpsertMapping inserts or replaces a custom mapping entry.
func (db *Database) UpsertMapping(entry *MappingEntry) error {
	entry.Key = MappingKey(entry.Title)
	entry.UpdatedAt = time.Now()
	return db.store.Upsert(entry.Key, entry)
}

// GetMapping retrieves a mapping by title, or bolthold.ErrNotFound.
func (db *Database) GetMapping(title string) (*MappingEntry, error) {
	var entry MappingEntry
	if err := db.store.Get(MappingKey(title), &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetAllMappings retrieves every mapping entry, sorted by display title.
func (db *Database) GetAllMappings() ([]*MappingEntry, error) {
	var entries []*MappingEntry
	if err := db.store.Find(&entries, nil); err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Title < entries[j].Title
	})
	return entries, nil
}

// DeleteMapping removes a mapping by title.
func (db *Database) DeleteMapping(title string) error {
	return db.store.Delete(MappingKey(title), &MappingEntry{})
}

// Trakt account documents

// GetTraktToken retrieves the stored OAuth token for an account.
func (db *Database) GetTraktToken(account string) (*TraktToken, error) {
	var token TraktToken
	if err := db.store.Get(account, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// SaveTraktToken stores an account's OAuth token.
func (db *Database) SaveTraktToken(token *TraktToken) error {
	return db.store.Upsert(token.Account, token)
}

// DeleteTraktToken removes an account's OAuth token.
func (db *Database) DeleteTraktToken(account string) error {
	return db.store.Delete(account, &TraktToken{})
}

// GetTraktCursor retrieves an account's sync cursor. A missing cursor is
// returned as the zero cursor, not an error: first sync starts from scratch.
func (db *Database) GetTraktCursor(account string) (*TraktCursor, error) {
	var cursor TraktCursor
	err := db.store.Get(account, &cursor)
	if err == bolthold.ErrNotFound {
		return &TraktCursor{Account: account}, nil
	}
	if err != nil {
		return nil, err
	}
	return &cursor, nil
}

// SaveTraktCursor stores an account's sync cursor.
func (db *Database) SaveTraktCursor(cursor *TraktCursor) error {
	return db.store.Upsert(cursor.Account, cursor)
}

// ResetTraktCursor rewinds an account's cursor to zero for a full resync.
func (db *Database) ResetTraktCursor(account string) error {
	return db.store.Upsert(account, &TraktCursor{Account: account})
}
