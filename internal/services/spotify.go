// Spotify Web API [Poller] implementation
//
// Polls show episodes for new releases since the lookback window.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/desertthunder/subsync/internal/models"
	"github.com/desertthunder/subsync/internal/shared"
)

const defaultSpotifyBaseURL string = "https://api.spotify.com/v1"

// spotifyEpisodePage is the subset of the show episodes response we read.
type spotifyEpisodePage struct {
	Items []struct {
		ID          string `json:"id"`
		ReleaseDate string `json:"release_date"`
	} `json:"items"`
}

// SpotifyPoller implements [Poller] against the Spotify Web API.
type SpotifyPoller struct {
	baseURL    string
	lookback   time.Duration
	httpClient *http.Client
}

// NewSpotifyPoller creates a Spotify poller. An empty baseURL uses the
// public API endpoint; client defaults to [http.DefaultClient].
func NewSpotifyPoller(baseURL string, client *http.Client) *SpotifyPoller {
	if baseURL == "" {
		baseURL = defaultSpotifyBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &SpotifyPoller{
		baseURL:    baseURL,
		lookback:   24 * time.Hour,
		httpClient: client,
	}
}

// Provider returns [models.ProviderSpotify].
func (s *SpotifyPoller) Provider() models.Provider {
	return models.ProviderSpotify
}

// PollSubscription checks one show for episodes inside the lookback window.
//
// Calls GET /shows/{id}/episodes.
func (s *SpotifyPoller) PollSubscription(ctx context.Context, conn *models.ProviderConnection, sub *models.Subscription) (*PollResult, error) {
	count, err := s.countEpisodes(ctx, conn, sub.ProviderChannelID)
	if err != nil {
		return nil, err
	}
	return &PollResult{NewItems: count}, nil
}

// PollSubscriptions checks several shows. Per-show request failures are
// reported in the result's Errors rather than failing the batch.
func (s *SpotifyPoller) PollSubscriptions(ctx context.Context, conn *models.ProviderConnection, subs []*models.Subscription) (*BatchPollResult, error) {
	result := &BatchPollResult{}
	for _, sub := range subs {
		count, err := s.countEpisodes(ctx, conn, sub.ProviderChannelID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.Errors = append(result.Errors, SubscriptionError{
				SubscriptionID: sub.ID,
				Error:          err.Error(),
			})
			continue
		}
		result.Processed++
		result.NewItems += count
	}
	return result, nil
}

func (s *SpotifyPoller) countEpisodes(ctx context.Context, conn *models.ProviderConnection, showID string) (int, error) {
	params := url.Values{}
	params.Set("limit", "50")

	apiURL := fmt.Sprintf("%s/shows/%s/episodes?%s", s.baseURL, url.PathEscape(showID), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if conn != nil && conn.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+conn.AccessToken)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error.Message != "" {
			return 0, fmt.Errorf("%w: spotify status %d: %s", shared.ErrAPIRequest, resp.StatusCode, errResp.Error.Message)
		}
		return 0, fmt.Errorf("%w: spotify status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	var page spotifyEpisodePage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}

	cutoff := time.Now().Add(-s.lookback)
	count := 0
	for _, ep := range page.Items {
		released, err := time.Parse("2006-01-02", ep.ReleaseDate)
		if err != nil {
			continue
		}
		if !released.Before(cutoff.Truncate(24 * time.Hour)) {
			count++
		}
	}
	return count, nil
}
