package bangumi

import (
	"context"
	"errors"
	"fmt"
)

// Bangumi collection states.
const (
	CollectionWish     = 1
	CollectionDone     = 2
	CollectionWatching = 3
	CollectionOnHold   = 4
	CollectionDropped  = 5
)

// EpisodeWatched is the episode collection state meaning "seen".
const EpisodeWatched = 2

// Episode is one entry of a subject's main episode list. Sort is the
// continuous (absolute) index within the subject; Ep is the per-broadcast
// number, which can restart at 1 for split-cour subjects.
type Episode struct {
	ID   int     `json:"id"`
	Sort float64 `json:"sort"`
	Ep   float64 `json:"ep"`
}

type episodesResponse struct {
	Data  []Episode `json:"data"`
	Total int       `json:"total"`
}

// Episodes retrieves the main episode list of a subject. Results are cached.
func (c *Client) Episodes(ctx context.Context, subjectID int) ([]Episode, error) {
	cacheKey := fmt.Sprintf("episodes:%d", subjectID)
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.([]Episode), nil
	}

	var resp episodesResponse
	path := fmt.Sprintf("/episodes?subject_id=%d&type=0", subjectID)
	if err := c.doRequestWithRetry(ctx, "GET", path, "", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get episodes for subject %d: %w", subjectID, err)
	}

	c.cache.SetDefault(cacheKey, resp.Data)
	return resp.Data, nil
}

// FindEpisodeID locates the episode whose absolute number matches within a
// subject. It first matches the sort field exactly; when seasons share a
// subject with restarted numbering it falls back to the ep field.
func (c *Client) FindEpisodeID(ctx context.Context, subjectID, absoluteEpisode int) (int, error) {
	episodes, err := c.Episodes(ctx, subjectID)
	if err != nil {
		return 0, err
	}

	target := float64(absoluteEpisode)
	for _, ep := range episodes {
		if ep.Sort == target {
			return ep.ID, nil
		}
	}
	for _, ep := range episodes {
		if ep.Ep == target && ep.Ep <= ep.Sort {
			return ep.ID, nil
		}
	}
	return 0, fmt.Errorf("episode %d not found in subject %d: %w", absoluteEpisode, subjectID, ErrNotFound)
}

// SubjectCollection describes the account's collection state for a subject.
type SubjectCollection struct {
	Type    int  `json:"type"`
	Private bool `json:"private"`
}

// GetSubjectCollection looks up the account's collection entry for a subject.
// The second return value is false when the subject is not collected at all.
func (c *Client) GetSubjectCollection(ctx context.Context, token, username string, subjectID int) (*SubjectCollection, bool, error) {
	var coll SubjectCollection
	path := fmt.Sprintf("/users/%s/collections/%d", username, subjectID)
	err := c.doRequestWithRetry(ctx, "GET", path, token, nil, &coll)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &coll, true, nil
}

// SetSubjectCollection creates or updates the account's collection entry.
func (c *Client) SetSubjectCollection(ctx context.Context, token string, subjectID, state int, private bool) error {
	path := fmt.Sprintf("/users/-/collections/%d", subjectID)
	body := map[string]interface{}{
		"type":    state,
		"private": private,
	}
	return c.doRequestWithRetry(ctx, "POST", path, token, body, nil)
}

// IsEpisodeWatched reports whether the account has already marked an episode
// as seen. A missing episode collection entry means unwatched.
func (c *Client) IsEpisodeWatched(ctx context.Context, token string, episodeID int) (bool, error) {
	var resp struct {
		Type int `json:"type"`
	}
	path := fmt.Sprintf("/users/-/collections/-/episodes/%d", episodeID)
	err := c.doRequestWithRetry(ctx, "GET", path, token, nil, &resp)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return resp.Type == EpisodeWatched, nil
}

// MarkEpisodeWatched sets an episode's collection state to seen.
func (c *Client) MarkEpisodeWatched(ctx context.Context, token string, episodeID int) error {
	path := fmt.Sprintf("/users/-/collections/-/episodes/%d", episodeID)
	body := map[string]interface{}{"type": EpisodeWatched}
	return c.doRequestWithRetry(ctx, "PUT", path, token, body, nil)
}
