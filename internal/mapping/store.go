package mapping

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/timshannon/bolthold"

	"github.com/sorabane/bangusync/internal/models"
)

// Store manages user-supplied exact title -> subject overrides. Overrides
// have the highest resolution precedence; the stored subject ID is always the
// show's season-1 subject.
type Store struct {
	db     *models.Database
	logger *logrus.Logger
}

// NewStore creates a mapping store backed by the shared database.
func NewStore(db *models.Database, logger *logrus.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Lookup finds an override for either the title or the original title.
// Lookups are case-normalized exact matches.
func (s *Store) Lookup(title, oriTitle string) (int, bool) {
	for _, t := range []string{title, oriTitle} {
		if t == "" {
			continue
		}
		entry, err := s.db.GetMapping(t)
		if err == nil {
			return entry.SubjectID, true
		}
		if !errors.Is(err, bolthold.ErrNotFound) {
			s.logger.WithError(err).WithField("title", t).Error("Mapping lookup failed")
		}
	}
	return 0, false
}

// Add inserts or replaces one override.
func (s *Store) Add(title string, subjectID int) error {
	if title == "" {
		return fmt.Errorf("mapping title must not be empty")
	}
	if subjectID <= 0 {
		return fmt.Errorf("mapping subject ID must be positive")
	}
	err := s.db.UpsertMapping(&models.MappingEntry{
		Title:     title,
		SubjectID: subjectID,
	})
	if err != nil {
		return fmt.Errorf("failed to save mapping: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"title":      title,
		"subject_id": subjectID,
	}).Info("Custom mapping saved")
	return nil
}

// Delete removes one override by title.
func (s *Store) Delete(title string) error {
	if err := s.db.DeleteMapping(title); err != nil {
		if errors.Is(err, bolthold.ErrNotFound) {
			return fmt.Errorf("mapping %q not found", title)
		}
		return fmt.Errorf("failed to delete mapping: %w", err)
	}
	return nil
}

// List returns every override sorted by title.
func (s *Store) List() ([]*models.MappingEntry, error) {
	return s.db.GetAllMappings()
}

// Export dumps the overrides as a title -> subject-ID map.
func (s *Store) Export() (map[string]int, error) {
	entries, err := s.db.GetAllMappings()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(entries))
	for _, e := range entries {
		out[e.Title] = e.SubjectID
	}
	return out, nil
}

// Import merges a title -> subject-ID map into the store, replacing
// duplicates. Returns the number of entries written.
func (s *Store) Import(mappings map[string]int) (int, error) {
	count := 0
	for title, subjectID := range mappings {
		if err := s.Add(title, subjectID); err != nil {
			return count, fmt.Errorf("import failed at %q: %w", title, err)
		}
		count++
	}
	return count, nil
}
