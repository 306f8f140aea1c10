package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/desertthunder/subsync/internal/models"
	"github.com/desertthunder/subsync/internal/shared"
	tu "github.com/desertthunder/subsync/internal/testing"
)

func ytConn() *models.ProviderConnection {
	return &models.ProviderConnection{
		ID:          "conn1",
		UserID:      "u1",
		Provider:    models.ProviderYouTube,
		AccessToken: "token123",
		Active:      true,
	}
}

func ytSub(id, channelID string) *models.Subscription {
	return &models.Subscription{
		ID:                id,
		UserID:            "u1",
		Provider:          models.ProviderYouTube,
		ProviderChannelID: channelID,
		Active:            true,
	}
}

func TestYouTubePoller(t *testing.T) {
	t.Run("NewYouTubePoller", func(t *testing.T) {
		if p := NewYouTubePoller("", nil); p.baseURL != defaultYouTubeBaseURL {
			t.Errorf("expected baseURL to be %s, got %s", defaultYouTubeBaseURL, p.baseURL)
		}
		customURL := "http://localhost:9000"
		if p := NewYouTubePoller(customURL, nil); p.baseURL != customURL {
			t.Errorf("expected baseURL to be %s, got %s", customURL, p.baseURL)
		}
	})

	t.Run("Provider", func(t *testing.T) {
		if p := NewYouTubePoller("", nil); p.Provider() != models.ProviderYouTube {
			t.Errorf("Provider() = %s, want YOUTUBE", p.Provider())
		}
	})

	t.Run("PollSubscription", func(t *testing.T) {
		t.Run("counts uploads from totalResults", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get("Authorization"); got != "Bearer token123" {
					t.Errorf("Authorization = %q, want Bearer token123", got)
				}
				if got := r.URL.Query().Get("channelId"); got != "UC123" {
					t.Errorf("channelId = %q, want UC123", got)
				}
				if r.URL.Query().Get("publishedAfter") == "" {
					t.Error("publishedAfter query param missing")
				}
				fmt.Fprint(w, `{"items":[{"id":"a"},{"id":"b"}],"pageInfo":{"totalResults":2}}`)
			}))
			defer server.Close()

			p := NewYouTubePoller(server.URL, server.Client())
			res, err := p.PollSubscription(context.Background(), ytConn(), ytSub("s1", "UC123"))
			if err != nil {
				t.Fatalf("PollSubscription() error = %v", err)
			}
			if res.NewItems != 2 {
				t.Errorf("NewItems = %d, want 2", res.NewItems)
			}
		})

		t.Run("falls back to item count", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"items":[{"id":"a"}],"pageInfo":{"totalResults":0}}`)
			}))
			defer server.Close()

			p := NewYouTubePoller(server.URL, server.Client())
			res, err := p.PollSubscription(context.Background(), ytConn(), ytSub("s1", "UC123"))
			if err != nil {
				t.Fatalf("PollSubscription() error = %v", err)
			}
			if res.NewItems != 1 {
				t.Errorf("NewItems = %d, want 1", res.NewItems)
			}
		})

		t.Run("surfaces API error message", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
				fmt.Fprint(w, `{"error":{"message":"quota exceeded"}}`)
			}))
			defer server.Close()

			p := NewYouTubePoller(server.URL, server.Client())
			_, err := p.PollSubscription(context.Background(), ytConn(), ytSub("s1", "UC123"))
			if !errors.Is(err, shared.ErrAPIRequest) {
				t.Fatalf("PollSubscription() error = %v, want ErrAPIRequest", err)
			}
		})

		t.Run("propagates transport errors", func(t *testing.T) {
			client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection reset"))}

			p := NewYouTubePoller("http://youtube.test", client)
			_, err := p.PollSubscription(context.Background(), ytConn(), ytSub("s1", "UC123"))
			if err == nil {
				t.Fatal("expected error for failed transport")
			}
		})
	})

	t.Run("PollSubscriptions", func(t *testing.T) {
		t.Run("isolates per-channel failures", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("channelId") == "bad" {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
				fmt.Fprint(w, `{"items":[],"pageInfo":{"totalResults":3}}`)
			}))
			defer server.Close()

			p := NewYouTubePoller(server.URL, server.Client())
			subs := []*models.Subscription{ytSub("s1", "UC1"), ytSub("s2", "bad"), ytSub("s3", "UC3")}

			res, err := p.PollSubscriptions(context.Background(), ytConn(), subs)
			if err != nil {
				t.Fatalf("PollSubscriptions() error = %v", err)
			}
			if res.Processed != 2 {
				t.Errorf("Processed = %d, want 2", res.Processed)
			}
			if res.NewItems != 6 {
				t.Errorf("NewItems = %d, want 6", res.NewItems)
			}
			if len(res.Errors) != 1 || res.Errors[0].SubscriptionID != "s2" {
				t.Errorf("Errors = %+v, want one error for s2", res.Errors)
			}
		})

		t.Run("cancelled context fails the batch", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(50 * time.Millisecond)
				fmt.Fprint(w, `{}`)
			}))
			defer server.Close()

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			p := NewYouTubePoller(server.URL, server.Client())
			_, err := p.PollSubscriptions(ctx, ytConn(), []*models.Subscription{ytSub("s1", "UC1")})
			if err == nil {
				t.Fatal("expected error for cancelled context")
			}
		})
	})
}
