package apiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/source"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Options{
		Provider: model.ProviderGithub,
		BaseURL:  srv.URL,
		Token:    "secret",
	})
}

func TestClientSendsBearerTokenAndDecodes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		w.Write([]byte(`{"name":"octocat"}`))
	})

	var out struct {
		Name string `json:"name"`
	}
	err := c.Get(context.Background(), "/user", url.Values{"page": {"2"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, "octocat", out.Name)
}

func TestClientMapsStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				assert.True(t, source.IsAuthError(err))
			},
		},
		{
			name:   "not found",
			status: http.StatusNotFound,
			check: func(t *testing.T, err error) {
				assert.True(t, source.IsNotFound(err))
				assert.NoError(t, source.IgnoreNotFound(err))
			},
		},
		{
			name:   "bad request",
			status: http.StatusBadRequest,
			check: func(t *testing.T, err error) {
				var statusErr *StatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
				assert.False(t, source.IsNotFound(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			err := c.Delete(context.Background(), "/thing", nil)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestClientRetriesRateLimitedRequests(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	err := c.Post(context.Background(), "/mark", map[string]string{"a": "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}
