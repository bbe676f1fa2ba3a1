package models

import "time"

// Source identifies which integration produced a sync event.
type Source string

const (
	SourceCustom   Source = "custom"
	SourcePlex     Source = "plex"
	SourceEmby     Source = "emby"
	SourceJellyfin Source = "jellyfin"
	SourceTrakt    Source = "trakt"
)

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	switch s {
	case SourceCustom, SourcePlex, SourceEmby, SourceJellyfin, SourceTrakt:
		return true
	}
	return false
}

// Status represents the outcome of a sync attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusIgnored Status = "ignored"
)

// SyncEvent is the canonical "episode watched" event every source converges
// on. Values are immutable once created.
type SyncEvent struct {
	Source      Source
	UserName    string
	Title       string
	OriTitle    string // optional, usually the Japanese title
	Season      int    // >= 1, season 0 (specials) is rejected upstream
	Episode     int    // per-season episode number, >= 1
	ReleaseDate string // YYYY-MM-DD, empty when unknown
	ReceivedAt  time.Time
}

// MappingEntry is a user-supplied exact title -> subject override. The stored
// subject ID always refers to season 1; later seasons are reached by
// episode-offset arithmetic in the resolver.
type MappingEntry struct {
	Key       string `boltholdKey:"Key"` // case-folded title
	Title     string // title as entered by the user
	SubjectID int
	UpdatedAt time.Time
}

// TraktToken holds one account's OAuth credential pair.
type TraktToken struct {
	Account      string `boltholdKey:"Account"`
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// TraktCursor marks how much of an account's watch history has been fully
// committed. LastSyncTime only moves forward, and only after every entry of a
// history page has produced its SyncRecord.
type TraktCursor struct {
	Account      string `boltholdKey:"Account"`
	LastSyncTime time.Time
	Disconnected bool // set on an irrecoverable 401, cleared on re-auth
}
