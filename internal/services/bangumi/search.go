package bangumi

import (
	"context"
	"fmt"
	"time"
)

// SubjectCandidate is one result of a catalog title search.
type SubjectCandidate struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	NameCN string `json:"name_cn"`
	Date   string `json:"date"` // YYYY-MM-DD
}

type searchResponse struct {
	Data []SubjectCandidate `json:"data"`
}

// SearchSubjects queries the catalog's search endpoint for anime subjects.
// When airDate is set the search window is narrowed to ±2 days around it,
// which keeps remakes and later seasons of the same franchise out of the
// candidate list. Results are cached.
func (c *Client) SearchSubjects(ctx context.Context, title, airDate string) ([]SubjectCandidate, error) {
	cacheKey := "search:" + title + ":" + airDate
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.([]SubjectCandidate), nil
	}

	filter := map[string]interface{}{
		"type": []int{2}, // anime
		"nsfw": true,
	}
	if airDate != "" {
		if date, err := time.Parse("2006-01-02", airDate); err == nil {
			filter["air_date"] = []string{
				fmt.Sprintf(">=%s", date.AddDate(0, 0, -2).Format("2006-01-02")),
				fmt.Sprintf("<%s", date.AddDate(0, 0, 2).Format("2006-01-02")),
			}
		}
	}

	body := map[string]interface{}{
		"keyword": title,
		"filter":  filter,
	}

	var resp searchResponse
	if err := c.doRequestWithRetry(ctx, "POST", "/search/subjects?limit=5", "", body, &resp); err != nil {
		return nil, fmt.Errorf("subject search failed: %w", err)
	}

	c.cache.SetDefault(cacheKey, resp.Data)
	return resp.Data, nil
}
