package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/esimrouter/internal/dropbox"
	"github.com/dmitrijs2005/esimrouter/internal/logging"
)

// ParamStore reads and writes named secrets.
type ParamStore interface {
	Get(ctx context.Context, name string) (string, error)
	Put(ctx context.Context, name, value string) error
}

// TokenRefresher exchanges a Dropbox app's refresh token for an access token.
type TokenRefresher func(ctx context.Context, app dropbox.App) (string, error)

// RefreshParams names the parameters the refresh job reads and writes.
type RefreshParams struct {
	AppKey       string
	AppSecret    string
	RefreshToken string
	AccessToken  string
}

// RefreshDropbox renews the Dropbox access token used by the router and
// stores it where the router reads it from.
type RefreshDropbox struct {
	params  ParamStore
	refresh TokenRefresher
	names   RefreshParams
	log     logging.Logger
}

func NewRefreshDropbox(ps ParamStore, refresh TokenRefresher, names RefreshParams, log logging.Logger) *RefreshDropbox {
	return &RefreshDropbox{params: ps, refresh: refresh, names: names, log: log}
}

var errRefreshParams = errors.New("dropbox refresh: parameter names are not configured")

func (j *RefreshDropbox) Run(ctx context.Context) error {
	n := j.names
	if n.AppKey == "" || n.AppSecret == "" || n.RefreshToken == "" || n.AccessToken == "" {
		return errRefreshParams
	}

	var app dropbox.App
	for _, p := range []struct {
		name   string
		target *string
	}{
		{n.AppKey, &app.Key},
		{n.AppSecret, &app.Secret},
		{n.RefreshToken, &app.RefreshToken},
	} {
		v, err := j.params.Get(ctx, p.name)
		if err != nil {
			return fmt.Errorf("read %s: %w", p.name, err)
		}
		*p.target = v
	}

	tok, err := j.refresh(ctx, app)
	if err != nil {
		return err
	}
	if err := j.params.Put(ctx, n.AccessToken, tok); err != nil {
		return fmt.Errorf("store access token: %w", err)
	}
	j.log.Info(ctx, "dropbox: access token refreshed", "param", n.AccessToken)
	return nil
}
