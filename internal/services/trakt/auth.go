package trakt

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sorabane/bangusync/internal/models"
)

// TokenResponse is the OAuth token endpoint's reply.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	CreatedAt    int64  `json:"created_at"`
}

// AuthorizeURL builds the authorization-code URL the user visits to grant
// access. state round-trips the account name through the callback.
func (c *Client) AuthorizeURL(state string) string {
	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("client_id", c.clientID)
	query.Set("redirect_uri", c.redirectURL)
	query.Set("state", state)
	return "https://trakt.tv/oauth/authorize?" + query.Encode()
}

// ExchangeCode trades an authorization code for a token pair.
func (c *Client) ExchangeCode(ctx context.Context, account, code string) (*models.TraktToken, error) {
	body := map[string]string{
		"code":          code,
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"redirect_uri":  c.redirectURL,
		"grant_type":    "authorization_code",
	}

	var resp TokenResponse
	if _, err := c.doRequestWithRetry(ctx, http.MethodPost, "/oauth/token", "", body, &resp); err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	return tokenFromResponse(account, &resp), nil
}

// Refresh trades a refresh token for a fresh token pair. An ErrUnauthorized
// here means the grant itself was revoked and the account must re-authorize.
func (c *Client) Refresh(ctx context.Context, token *models.TraktToken) (*models.TraktToken, error) {
	body := map[string]string{
		"refresh_token": token.RefreshToken,
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"redirect_uri":  c.redirectURL,
		"grant_type":    "refresh_token",
	}

	var resp TokenResponse
	if _, err := c.doRequestWithRetry(ctx, http.MethodPost, "/oauth/token", "", body, &resp); err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	c.logger.WithField("account", token.Account).Info("Trakt token refreshed")
	return tokenFromResponse(token.Account, &resp), nil
}

func tokenFromResponse(account string, resp *TokenResponse) *models.TraktToken {
	return &models.TraktToken{
		Account:      account,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
}
