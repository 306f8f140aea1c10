// YouTube Data API [Poller] implementation
//
// Polls channel activity for new uploads since the lookback window.
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

const defaultYouTubeBaseURL string = "https://www.googleapis.com/youtube/v3"

// youtubeActivityList is the subset of the activities.list response we read.
type youtubeActivityList struct {
	Items []struct {
		ID string `json:"id"`
	} `json:"items"`
	PageInfo struct {
		TotalResults int `json:"totalResults"`
	} `json:"pageInfo"`
}

// YouTubePoller implements [Poller] against the YouTube Data API.
type YouTubePoller struct {
	baseURL    string
	lookback   time.Duration
	httpClient *http.Client
}

// NewYouTubePoller creates a YouTube poller. An empty baseURL uses the
// public API endpoint; client defaults to [http.DefaultClient].
func NewYouTubePoller(baseURL string, client *http.Client) *YouTubePoller {
	if baseURL == "" {
		baseURL = defaultYouTubeBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &YouTubePoller{
		baseURL:    baseURL,
		lookback:   24 * time.Hour,
		httpClient: client,
	}
}

// Provider returns [models.ProviderYouTube].
func (y *YouTubePoller) Provider() models.Provider {
	return models.ProviderYouTube
}

// PollSubscription checks one channel for uploads inside the lookback window.
//
// Calls GET /activities with publishedAfter.
func (y *YouTubePoller) PollSubscription(ctx context.Context, conn *models.ProviderConnection, sub *models.Subscription) (*PollResult, error) {
	count, err := y.countUploads(ctx, conn, sub.ProviderChannelID)
	if err != nil {
		return nil, err
	}
	return &PollResult{NewItems: count}, nil
}

// PollSubscriptions checks several channels. Per-channel request failures
// are reported in the result's Errors rather than failing the batch.
func (y *YouTubePoller) PollSubscriptions(ctx context.Context, conn *models.ProviderConnection, subs []*models.Subscription) (*BatchPollResult, error) {
	result := &BatchPollResult{}
	for _, sub := range subs {
		count, err := y.countUploads(ctx, conn, sub.ProviderChannelID)
		if err != nil {
			// a cancelled context fails the whole batch, not one channel
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

func (y *YouTubePoller) countUploads(ctx context.Context, conn *models.ProviderConnection, channelID string) (int, error) {
	since := time.Now().Add(-y.lookback).UTC().Format(time.RFC3339)

	params := url.Values{}
	params.Set("part", "id")
	params.Set("channelId", channelID)
	params.Set("publishedAfter", since)
	params.Set("maxResults", "50")

	apiURL := fmt.Sprintf("%s/activities?%s", y.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if conn != nil && conn.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+conn.AccessToken)
	}

	resp, err := y.httpClient.Do(req)
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
			return 0, fmt.Errorf("%w: youtube status %d: %s", shared.ErrAPIRequest, resp.StatusCode, errResp.Error.Message)
		}
		return 0, fmt.Errorf("%w: youtube status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	var list youtubeActivityList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}

	if list.PageInfo.TotalResults > 0 {
		return list.PageInfo.TotalResults, nil
	}
	return len(list.Items), nil
}
