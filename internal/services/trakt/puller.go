package trakt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/timshannon/bolthold"

	"github.com/sorabane/bangusync/internal/config"
	"github.com/sorabane/bangusync/internal/models"
	"github.com/sorabane/bangusync/internal/normalizer"
)

// ErrSyncActive means a pull for the account is already running. Callers
// surface it as a conflict rather than queueing a second pull.
var ErrSyncActive = errors.New("trakt: sync already running for this account")

// ErrNotConnected means the account has no stored token.
var ErrNotConnected = errors.New("trakt: account is not connected")

// ErrDisconnected means the stored token was rejected; pulls stay paused until
// the user re-authorizes.
var ErrDisconnected = errors.New("trakt: token was rejected, account needs re-authorization")

// cursorBuffer is subtracted from the committed cursor when building the next
// incremental window. The overlap re-fetches entries near the boundary; the
// idempotent executor absorbs the duplicates.
const cursorBuffer = 24 * time.Hour

// refreshMargin is how close to expiry a token gets refreshed.
const refreshMargin = 24 * time.Hour

// Runner executes one canonical event end to end.
type Runner interface {
	Execute(ctx context.Context, event models.SyncEvent, binding config.AccountBinding) *models.SyncRecord
}

// Summary reports what one pull did.
type Summary struct {
	Account   string        `json:"account"`
	Full      bool          `json:"full"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Pages     int           `json:"pages"`
	Episodes  int           `json:"episodes"`
	Skipped   int           `json:"skipped"` // movies and filtered entries
	Success   int           `json:"success"`
	Ignored   int           `json:"ignored"`
	Errors    int           `json:"errors"`
}

// AccountStatus is the connection view exposed over the API.
type AccountStatus struct {
	Account      string    `json:"account"`
	Connected    bool      `json:"connected"`
	Disconnected bool      `json:"disconnected"` // token present but rejected
	Running      bool      `json:"running"`
	LastSyncTime time.Time `json:"last_sync_time"`
}

// Puller drives cursor-based history pulls. Each account is a tiny state
// machine: idle or running, with at most one pull in flight. The cursor only
// advances after every entry of a page has produced its record, so an
// interrupted pull resumes from the last fully committed page.
type Puller struct {
	client  *Client
	db      *models.Database
	norm    *normalizer.Normalizer
	runner  Runner
	logger  *logrus.Logger
	running sync.Map // account name -> struct{}
}

// NewPuller creates a puller.
func NewPuller(client *Client, db *models.Database, norm *normalizer.Normalizer, runner Runner, logger *logrus.Logger) *Puller {
	return &Puller{
		client: client,
		db:     db,
		norm:   norm,
		runner: runner,
		logger: logger,
	}
}

// Sync runs one pull for the account. full ignores the cursor and walks the
// whole history; otherwise the window starts at the cursor minus the overlap
// buffer.
func (p *Puller) Sync(ctx context.Context, binding config.AccountBinding, full bool) (*Summary, error) {
	account := binding.UserName
	if _, loaded := p.running.LoadOrStore(account, struct{}{}); loaded {
		return nil, ErrSyncActive
	}
	defer p.running.Delete(account)

	return p.run(ctx, binding, full)
}

// Trigger reserves the account and runs the pull in the background. The
// reservation happens synchronously so a second trigger gets ErrSyncActive
// immediately.
func (p *Puller) Trigger(ctx context.Context, binding config.AccountBinding, full bool) error {
	account := binding.UserName
	if _, loaded := p.running.LoadOrStore(account, struct{}{}); loaded {
		return ErrSyncActive
	}

	go func() {
		defer p.running.Delete(account)
		if _, err := p.run(ctx, binding, full); err != nil {
			p.logger.WithError(err).WithField("account", account).Error("Triggered Trakt pull failed")
		}
	}()
	return nil
}

func (p *Puller) run(ctx context.Context, binding config.AccountBinding, full bool) (*Summary, error) {
	account := binding.UserName

	token, err := p.ensureToken(ctx, account)
	if err != nil {
		return nil, err
	}

	cursor, err := p.db.GetTraktCursor(account)
	if err != nil {
		return nil, fmt.Errorf("failed to load cursor: %w", err)
	}
	if cursor.Disconnected {
		return nil, ErrDisconnected
	}
	if full {
		// A full resync is the one place the cursor rolls back. Resetting
		// before the walk means an interrupted full pull restarts from
		// scratch instead of resuming a half-stale incremental window.
		if err := p.db.ResetTraktCursor(account); err != nil {
			return nil, fmt.Errorf("failed to reset cursor: %w", err)
		}
		cursor = &models.TraktCursor{Account: account}
	}

	var startAt time.Time
	if !full && !cursor.LastSyncTime.IsZero() {
		startAt = cursor.LastSyncTime.Add(-cursorBuffer)
	}

	summary := &Summary{Account: account, Full: full, StartedAt: time.Now()}
	p.logger.WithFields(logrus.Fields{
		"account":  account,
		"full":     full,
		"start_at": startAt,
	}).Info("Starting Trakt history pull")

	if err := p.walkHistory(ctx, binding, token, cursor, startAt, summary); err != nil {
		summary.Duration = time.Since(summary.StartedAt)
		return summary, err
	}

	summary.Duration = time.Since(summary.StartedAt)
	p.logger.WithFields(logrus.Fields{
		"account":  account,
		"pages":    summary.Pages,
		"episodes": summary.Episodes,
		"skipped":  summary.Skipped,
		"errors":   summary.Errors,
	}).Info("Trakt history pull finished")
	return summary, nil
}

// walkHistory processes pages oldest first so the cursor can advance after
// each fully committed page without skipping anything on interruption. Trakt
// serves pages newest first, so iteration runs from the last page back to the
// first, reversing each page's entries.
func (p *Puller) walkHistory(ctx context.Context, binding config.AccountBinding, token *models.TraktToken, cursor *models.TraktCursor, startAt time.Time, summary *Summary) error {
	first, err := p.fetchPage(ctx, binding.UserName, token, startAt, 1)
	if err != nil {
		return err
	}

	for page := first.PageCount; page >= 1; page-- {
		if err := ctx.Err(); err != nil {
			return err
		}

		current := first
		if page != 1 {
			current, err = p.fetchPage(ctx, binding.UserName, token, startAt, page)
			if err != nil {
				return err
			}
		}

		newest := p.processPage(ctx, binding, current.Items, summary)
		summary.Pages++

		if newest.After(cursor.LastSyncTime) {
			cursor.LastSyncTime = newest
			cursor.Disconnected = false
			if err := p.db.SaveTraktCursor(cursor); err != nil {
				return fmt.Errorf("failed to commit cursor: %w", err)
			}
		}
	}
	return nil
}

// processPage runs every entry of one page, newest first on the wire so
// iterated in reverse, and returns the newest watched_at it saw.
func (p *Puller) processPage(ctx context.Context, binding config.AccountBinding, items []HistoryItem, summary *Summary) time.Time {
	var newest time.Time
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		if item.WatchedAt.After(newest) {
			newest = item.WatchedAt
		}

		if item.Type != "episode" {
			summary.Skipped++
			continue
		}

		event, eventBinding, err := p.norm.Normalize(normalizer.CanonicalPayload{
			MediaType:   "episode",
			Title:       item.Show.Title,
			Season:      item.Episode.Season,
			Episode:     item.Episode.Number,
			ReleaseDate: item.Episode.FirstAired,
			UserName:    binding.UserName,
		}, models.SourceTrakt)
		if err != nil {
			// Blocked titles and specials are quietly dropped, same as webhooks.
			summary.Skipped++
			continue
		}

		summary.Episodes++
		record := p.runner.Execute(ctx, event, eventBinding)
		switch record.Status {
		case models.StatusSuccess:
			summary.Success++
		case models.StatusIgnored:
			summary.Ignored++
		default:
			summary.Errors++
		}
	}
	return newest
}

func (p *Puller) fetchPage(ctx context.Context, account string, token *models.TraktToken, startAt time.Time, page int) (*HistoryPage, error) {
	result, err := p.client.History(ctx, token.AccessToken, startAt, page)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			p.markDisconnected(account)
		}
		return nil, fmt.Errorf("failed to fetch history page %d: %w", page, err)
	}
	return result, nil
}

// ensureToken loads the account's token and refreshes it when it expires
// within the margin. A rejected refresh flags the account disconnected.
func (p *Puller) ensureToken(ctx context.Context, account string) (*models.TraktToken, error) {
	token, err := p.db.GetTraktToken(account)
	if err != nil {
		return nil, ErrNotConnected
	}

	if time.Until(token.ExpiresAt) >= refreshMargin {
		return token, nil
	}

	refreshed, err := p.client.Refresh(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			p.markDisconnected(account)
		}
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	if err := p.db.SaveTraktToken(refreshed); err != nil {
		return nil, fmt.Errorf("failed to save refreshed token: %w", err)
	}
	return refreshed, nil
}

func (p *Puller) markDisconnected(account string) {
	cursor, err := p.db.GetTraktCursor(account)
	if err != nil {
		p.logger.WithError(err).WithField("account", account).Error("Failed to load cursor for disconnect flag")
		return
	}
	cursor.Disconnected = true
	if err := p.db.SaveTraktCursor(cursor); err != nil {
		p.logger.WithError(err).WithField("account", account).Error("Failed to flag account disconnected")
	}
	p.logger.WithField("account", account).Warn("Trakt rejected the token, account needs re-authorization")
}

// Connect finishes the authorization-code flow: exchange, persist, and clear
// any disconnect flag.
func (p *Puller) Connect(ctx context.Context, account, code string) error {
	token, err := p.client.ExchangeCode(ctx, account, code)
	if err != nil {
		return err
	}
	return p.storeToken(token)
}

// SetToken stores a token pair supplied directly over the API.
func (p *Puller) SetToken(token *models.TraktToken) error {
	if token.Account == "" || token.AccessToken == "" || token.RefreshToken == "" {
		return fmt.Errorf("account, access token and refresh token are all required")
	}
	return p.storeToken(token)
}

func (p *Puller) storeToken(token *models.TraktToken) error {
	if err := p.db.SaveTraktToken(token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	cursor, err := p.db.GetTraktCursor(token.Account)
	if err == nil && cursor.Disconnected {
		cursor.Disconnected = false
		if err := p.db.SaveTraktCursor(cursor); err != nil {
			return fmt.Errorf("failed to clear disconnect flag: %w", err)
		}
	}
	p.logger.WithField("account", token.Account).Info("Trakt account connected")
	return nil
}

// Disconnect removes the account's stored token and rewinds its cursor, so a
// later re-authorization starts with a clean full pull.
func (p *Puller) Disconnect(account string) error {
	if err := p.db.DeleteTraktToken(account); err != nil && !errors.Is(err, bolthold.ErrNotFound) {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	if err := p.db.ResetTraktCursor(account); err != nil {
		return fmt.Errorf("failed to reset cursor: %w", err)
	}
	p.logger.WithField("account", account).Info("Trakt account disconnected")
	return nil
}

// Status reports the account's connection and pull state.
func (p *Puller) Status(account string) (*AccountStatus, error) {
	status := &AccountStatus{Account: account}

	if _, err := p.db.GetTraktToken(account); err == nil {
		status.Connected = true
	}
	cursor, err := p.db.GetTraktCursor(account)
	if err != nil {
		return nil, fmt.Errorf("failed to load cursor: %w", err)
	}
	status.Disconnected = cursor.Disconnected
	status.LastSyncTime = cursor.LastSyncTime

	_, status.Running = p.running.Load(account)
	return status, nil
}

// AuthorizeURL proxies the client's authorization URL builder.
func (p *Puller) AuthorizeURL(account string) string {
	return p.client.AuthorizeURL(account)
}
