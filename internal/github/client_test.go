package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	gh "github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/models"
)

// testClient points a Client at an httptest server standing in for the API.
func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	api := gh.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	api.BaseURL = base
	return &Client{
		api:   api,
		owner: "acme",
		repo:  "widgets",
		retry: &RetryConfig{MaxRetries: 0, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	}
}

func TestListComments_MergesReviewBodiesIntoThread(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues/5/comments", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"user":{"login":"alice"},"body":"please take a look","created_at":"2026-08-01T10:00:00Z"},
			{"user":{"login":"alice"},"body":"addressed the feedback","created_at":"2026-08-03T09:00:00Z"}
		]`))
	})
	mux.HandleFunc("/repos/acme/widgets/pulls/5/reviews", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"user":{"login":"warden"},"body":"` + models.FeedbackSignature + `\n\nplease add tests","state":"CHANGES_REQUESTED","submitted_at":"2026-08-02T12:00:00Z"},
			{"user":{"login":"bob"},"body":"","state":"APPROVED","submitted_at":"2026-08-04T08:00:00Z"}
		]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	comments, err := testClient(t, srv).ListComments(context.Background(), 5)
	require.NoError(t, err)

	// Review bodies interleave chronologically; bodiless reviews are dropped.
	require.Len(t, comments, 3)
	assert.Equal(t, "please take a look", comments[0].Body)
	assert.Contains(t, comments[1].Body, models.FeedbackSignature)
	assert.Equal(t, "warden", comments[1].Author)
	assert.Equal(t, "addressed the feedback", comments[2].Body)
}

func TestListComments_NoReviews(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues/5/comments", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"user":{"login":"alice"},"body":"hi","created_at":"2026-08-01T10:00:00Z"}]`))
	})
	mux.HandleFunc("/repos/acme/widgets/pulls/5/reviews", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	comments, err := testClient(t, srv).ListComments(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "hi", comments[0].Body)
}
