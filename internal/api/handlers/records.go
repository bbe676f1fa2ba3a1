package handlers

import (
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/sorabane/bangusync/internal/models"
)

// RecordsHandler serves the append-only sync history.
type RecordsHandler struct {
	db     *models.Database
	logger *logrus.Logger
}

// NewRecordsHandler creates a records handler.
func NewRecordsHandler(db *models.Database, logger *logrus.Logger) *RecordsHandler {
	return &RecordsHandler{db: db, logger: logger}
}

// List returns records newest first, with optional status/user/source filters
// and limit/offset paging.
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := models.RecordFilter{
		Status:   models.Status(query.Get("status")),
		UserName: query.Get("user"),
		Source:   models.Source(query.Get("source")),
		Limit:    intParam(query.Get("limit"), 50),
		Offset:   intParam(query.Get("offset"), 0),
	}

	records, total, err := h.db.GetRecords(filter)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list sync records")
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"total":   total,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

// Stats returns aggregate counters over the last N days (default 30).
func (h *RecordsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	days := intParam(r.URL.Query().Get("days"), 30)
	if days < 1 {
		days = 30
	}

	stats, err := h.db.GetRecordStats(days)
	if err != nil {
		h.logger.WithError(err).Error("Failed to compute record stats")
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
