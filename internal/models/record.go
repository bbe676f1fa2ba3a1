package models

import "time"

// SyncRecord is one row of the append-only sync log. Records are created once
// per sync attempt and never mutated; the dashboard statistics are derived
// from them.
type SyncRecord struct {
	ID        uint64 `boltholdKey:"ID"`
	Timestamp time.Time
	UserName  string `boltholdIndex:"UserName"`
	Title     string
	OriTitle  string
	Season    int
	Episode   int
	Status    Status `boltholdIndex:"Status"`
	Source    Source `boltholdIndex:"Source"`
	Message   string
	SubjectID *int // nil when resolution failed
}

// RecordFilter narrows record listings. Zero values mean "no filter".
type RecordFilter struct {
	Status   Status
	UserName string
	Source   Source
	Limit    int
	Offset   int
}

// RecordStats aggregates the sync log for the dashboard.
type RecordStats struct {
	Total       int            `json:"total"`
	Today       int            `json:"today"`
	Success     int            `json:"success"`
	Errors      int            `json:"errors"`
	Ignored     int            `json:"ignored"`
	SuccessRate float64        `json:"success_rate"`
	PerDay      map[string]int `json:"per_day"`
	PerUser     map[string]int `json:"per_user"`
}
