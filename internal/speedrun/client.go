// Package speedrun is a client for the speedrun.com REST API.
package speedrun

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/speedrun-record/internal/config"
	"github.com/speedrun-record/internal/domain"
	"github.com/speedrun-record/internal/metrics"
)

const (
	endpointLeaderboard = "leaderboard"
	endpointProfile     = "profile"

	// Bodies larger than this are rejected as malformed
	maxBodySize = 8 << 20
)

// Client issues read-only requests to the leaderboard API
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	logger    *slog.Logger
}

// NewClient creates a new leaderboard API client. A nil httpClient gets one
// with the configured timeout.
func NewClient(cfg *config.SpeedrunConfig, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		http:      httpClient,
		logger:    logger,
	}
}

// envelope is the {"data": ...} wrapper around every API response
type envelope[T any] struct {
	Data T `json:"data"`
}

type profileData struct {
	ID    string `json:"id"`
	Names *struct {
		International string `json:"international"`
	} `json:"names"`
	// Guests have a bare name instead of a names object
	Name string `json:"name"`
}

// GetLeaderboard fetches the full leaderboard for a game category
func (c *Client) GetLeaderboard(ctx context.Context, gameID, categoryID string) (*domain.LeaderboardSnapshot, error) {
	u := fmt.Sprintf("%s/leaderboards/%s/category/%s",
		c.baseURL, url.PathEscape(gameID), url.PathEscape(categoryID))

	var env envelope[domain.LeaderboardSnapshot]
	if err := c.get(ctx, endpointLeaderboard, u, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

// GetProfile resolves a player's public display name from a profile URI
func (c *Client) GetProfile(ctx context.Context, uri string) (*domain.UserProfile, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: empty profile uri", domain.ErrInvalidRequest)
	}

	var env envelope[profileData]
	if err := c.get(ctx, endpointProfile, uri, &env); err != nil {
		return nil, err
	}

	profile := &domain.UserProfile{ID: env.Data.ID}
	switch {
	case env.Data.Names != nil && env.Data.Names.International != "":
		profile.InternationalName = env.Data.Names.International
	case env.Data.Name != "":
		profile.InternationalName = env.Data.Name
	default:
		return nil, fmt.Errorf("%w: profile %s has no display name", domain.ErrMalformedResponse, uri)
	}
	return profile, nil
}

func (c *Client) get(ctx context.Context, endpoint, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.UpstreamDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("%w: %s request: %w", domain.ErrUpstream, endpoint, err)
	}
	defer resp.Body.Close()

	metrics.UpstreamRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	c.logger.Debug("leaderboard api response",
		"endpoint", endpoint,
		"url", rawURL,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %s", domain.ErrUpstream, rawURL, resp.Status)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %w", domain.ErrMalformedResponse, endpoint, err)
	}
	return nil
}
