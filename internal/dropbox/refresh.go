package dropbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// TokenURL is the Dropbox OAuth2 token endpoint.
const TokenURL = "https://api.dropbox.com/oauth2/token"

// App identifies the Dropbox app whose short-lived access token is renewed
// from a long-lived refresh token.
type App struct {
	Key          string
	Secret       string
	RefreshToken string
}

// RefreshAccessToken exchanges app's refresh token for a new access token.
func RefreshAccessToken(ctx context.Context, hc *http.Client, tokenURL string, app App) (string, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {app.RefreshToken},
		"client_id":     {app.Key},
		"client_secret": {app.Secret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := hc.Do(req)
	if err != nil {
		return "", &Error{Kind: KindAPI, Op: "refresh token", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
		return "", &Error{Kind: KindAuth, Op: "refresh token", Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &Error{Kind: KindAPI, Op: "refresh token", Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &Error{Kind: KindAPI, Op: "refresh token", Err: err}
	}
	if out.AccessToken == "" {
		return "", &Error{Kind: KindAuth, Op: "refresh token", Err: errEmptyToken}
	}
	return out.AccessToken, nil
}
