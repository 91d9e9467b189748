package datacrazy

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/felipezacker/zcrm/config"

	"golang.org/x/oauth2"
)

// NewClient returns an APIClient configured from cfg. The API key must be present.
func NewClient(cfg config.DataCrazyConfig, logger *slog.Logger) (*APIClient, error) {
	if cfg.APIKey == "" {
		return nil, config.ErrMissingAPIKey
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return NewAPIClient(
		cfg.BaseURL,
		cfg.APIKey,
		httpClient,
		logger,
		WithPageSize(cfg.PageSize),
		WithRequestDelay(cfg.RequestDelay),
		WithMaxBackoff(cfg.MaxBackoff),
	), nil
}

// bearerClient wraps base so every request carries the api key as a bearer token.
// DataCrazy keys do not expire, so the token source is static.
func bearerClient(base *http.Client, apiKey string) *http.Client {
	if apiKey == "" {
		return base
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: apiKey,
		TokenType:   "Bearer",
	})
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := oauth2.NewClient(ctx, ts)
	client.Timeout = base.Timeout
	return client
}
