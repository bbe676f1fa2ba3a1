package normalizer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sorabane/bangusync/internal/config"
	"github.com/sorabane/bangusync/internal/models"
	"github.com/sorabane/bangusync/internal/utils"
)

// ValidationError marks a payload that is structurally unusable; it maps to a
// client error at the HTTP edge.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// FilteredError marks an event that was understood but deliberately dropped
// (wrong event type, unbound user, blocked keyword). Filtered events produce
// no sync record and no catalog traffic.
type FilteredError struct {
	Reason string
}

func (e *FilteredError) Error() string { return e.Reason }

// IsFiltered reports whether err is a deliberate drop.
func IsFiltered(err error) bool {
	var fe *FilteredError
	return errors.As(err, &fe)
}

// IsValidation reports whether err is a malformed-payload rejection.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Normalizer turns source-specific payloads into canonical SyncEvents and
// applies the shared gate: payload validation, account binding, and the
// blocked-keyword list.
type Normalizer struct {
	cfg       *config.Config
	blocklist *utils.Blocklist
	logger    *logrus.Logger
}

// New creates a normalizer over the loaded configuration.
func New(cfg *config.Config, logger *logrus.Logger) *Normalizer {
	return &Normalizer{
		cfg:       cfg,
		blocklist: utils.NewBlocklist(cfg.BlockedKeywords),
		logger:    logger,
	}
}

// Normalize validates and filters one canonical payload. On success it returns
// the event plus the account binding it should run under. A *FilteredError
// means the event is dropped silently; a *ValidationError means the payload is
// bad.
func (n *Normalizer) Normalize(p CanonicalPayload, source models.Source) (models.SyncEvent, config.AccountBinding, error) {
	var zero models.SyncEvent

	if strings.ToLower(strings.TrimSpace(p.MediaType)) != "episode" {
		return zero, config.AccountBinding{}, &FilteredError{Reason: fmt.Sprintf("media type %q does not need syncing", p.MediaType)}
	}

	title := strings.TrimSpace(p.Title)
	if title == "" {
		return zero, config.AccountBinding{}, &ValidationError{msg: "title must not be empty"}
	}
	if p.Season < 1 {
		return zero, config.AccountBinding{}, &ValidationError{msg: fmt.Sprintf("season %d is not syncable (specials are skipped)", p.Season)}
	}
	if p.Episode < 1 {
		return zero, config.AccountBinding{}, &ValidationError{msg: fmt.Sprintf("episode %d is not syncable", p.Episode)}
	}

	userName := strings.TrimSpace(p.UserName)
	binding, ok := n.cfg.BindingFor(userName)
	if !ok {
		n.logger.WithFields(logrus.Fields{
			"user":   userName,
			"source": source,
		}).Debug("Dropping event from unbound user")
		return zero, config.AccountBinding{}, &FilteredError{Reason: fmt.Sprintf("user %q is not bound to a catalog account", userName)}
	}

	oriTitle := strings.TrimSpace(p.OriTitle)
	if blocked, keyword := n.blocklist.IsBlocked(title, oriTitle); blocked {
		n.logger.WithFields(logrus.Fields{
			"title":   title,
			"keyword": keyword,
		}).Debug("Dropping event matching blocked keyword")
		return zero, config.AccountBinding{}, &FilteredError{Reason: fmt.Sprintf("title matches blocked keyword %q", keyword)}
	}

	if s := models.Source(p.Source); s.Valid() {
		source = s
	}

	event := models.SyncEvent{
		Source:      source,
		UserName:    userName,
		Title:       title,
		OriTitle:    oriTitle,
		Season:      p.Season,
		Episode:     p.Episode,
		ReleaseDate: normalizeDate(p.ReleaseDate),
		ReceivedAt:  time.Now(),
	}
	return event, binding, nil
}

// normalizeDate trims datetimes down to YYYY-MM-DD and discards anything too
// short to be a date.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 10 {
		s = s[:10]
	}
	if len(s) < 8 {
		return ""
	}
	return s
}
