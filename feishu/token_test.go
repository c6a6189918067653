package feishu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenServer(t *testing.T, fetches *atomic.Int32, token string, expire int, code int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/open-apis/auth/v3/tenant_access_token/internal", r.URL.Path)
		fetches.Add(1)

		var body struct {
			AppID     string `json:"app_id"`
			AppSecret string `json:"app_secret"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "app", body.AppID)

		json.NewEncoder(w).Encode(map[string]any{
			"code":                code,
			"msg":                 "ok",
			"tenant_access_token": token,
			"expire":              expire,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTokenReuseWithinValidityWindow(t *testing.T) {
	var fetches atomic.Int32
	srv := newTokenServer(t, &fetches, "t-123", 7200, 0)

	tc := newTokenCache("app", "secret", srv.URL, srv.Client())

	tok1, err := tc.Get(context.Background())
	require.NoError(t, err)
	tok2, err := tc.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "t-123", tok1)
	assert.Equal(t, tok1, tok2)
	assert.Equal(t, int32(1), fetches.Load(), "second call within the window must not fetch")
}

func TestTokenRefreshedNearExpiry(t *testing.T) {
	var fetches atomic.Int32
	srv := newTokenServer(t, &fetches, "t-123", 7200, 0)

	tc := newTokenCache("app", "secret", srv.URL, srv.Client())
	_, err := tc.Get(context.Background())
	require.NoError(t, err)

	// Step the clock to inside the safety margin.
	tc.now = func() time.Time { return time.Now().Add(7200*time.Second - 30*time.Second) }
	_, err = tc.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), fetches.Load())
}

func TestTokenVendorError(t *testing.T) {
	var fetches atomic.Int32
	srv := newTokenServer(t, &fetches, "", 0, 99991663)

	tc := newTokenCache("app", "secret", srv.URL, srv.Client())
	_, err := tc.Get(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "99991663")
}

func TestTokenServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>Bad Gateway</html>"))
	}))
	t.Cleanup(srv.Close)

	tc := newTokenCache("app", "secret", srv.URL, srv.Client())
	_, err := tc.Get(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestTokenMissingCredentials(t *testing.T) {
	tc := newTokenCache("", "", "http://unused", http.DefaultClient)
	_, err := tc.Get(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestTokenMissingInResponse(t *testing.T) {
	var fetches atomic.Int32
	srv := newTokenServer(t, &fetches, "", 7200, 0)

	tc := newTokenCache("app", "secret", srv.URL, srv.Client())
	_, err := tc.Get(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}
