package feishu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newResourceServer serves the token endpoint plus message resources keyed
// by resource key.
func newResourceServer(t *testing.T, resources map[string]struct {
	contentType string
	body        []byte
	status      int
}) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/open-apis/auth/v3/tenant_access_token/internal", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"code": 0, "msg": "ok", "tenant_access_token": "t-1", "expire": 7200,
		})
	})
	mux.HandleFunc("/open-apis/im/v1/messages/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer t-1", r.Header.Get("Authorization"))
		key := filepath.Base(r.URL.Path)
		res, ok := resources[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if res.status != 0 && res.status != http.StatusOK {
			w.WriteHeader(res.status)
			return
		}
		if res.contentType != "" {
			w.Header().Set("Content-Type", res.contentType)
		}
		w.Write(res.body)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDownloadResource(t *testing.T) {
	srv := newResourceServer(t, map[string]struct {
		contentType string
		body        []byte
		status      int
	}{
		"img_a": {contentType: "image/png", body: []byte("png-bytes")},
		"img_b": {contentType: "image/jpeg; charset=binary", body: []byte("jpg-bytes")},
	})

	dir := t.TempDir()
	c := NewClient("app", "secret", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()), WithMediaDir(dir))

	pathA, err := c.DownloadResource(context.Background(), "om_1", "img_a")
	require.NoError(t, err)
	pathB, err := c.DownloadResource(context.Background(), "om_1", "img_b")
	require.NoError(t, err)

	// Two resources of the same event land in two distinct files.
	assert.NotEqual(t, pathA, pathB)
	assert.Equal(t, filepath.Join(dir, "om_1_img_a.png"), pathA)
	assert.Equal(t, filepath.Join(dir, "om_1_img_b.jpg"), pathB)

	data, err := os.ReadFile(pathA)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
}

func TestDownloadResourceUnknownContentType(t *testing.T) {
	srv := newResourceServer(t, map[string]struct {
		contentType string
		body        []byte
		status      int
	}{
		"img_x": {contentType: "application/x-mystery", body: []byte("bytes")},
		"img_y": {body: []byte("bytes")},
	})

	dir := t.TempDir()
	c := NewClient("app", "secret", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()), WithMediaDir(dir))

	pathX, err := c.DownloadResource(context.Background(), "om_2", "img_x")
	require.NoError(t, err)
	assert.Equal(t, ".jpg", filepath.Ext(pathX))

	pathY, err := c.DownloadResource(context.Background(), "om_2", "img_y")
	require.NoError(t, err)
	assert.Equal(t, ".jpg", filepath.Ext(pathY))
}

func TestDownloadResourceFailureLeavesNoFile(t *testing.T) {
	srv := newResourceServer(t, map[string]struct {
		contentType string
		body        []byte
		status      int
	}{
		"img_bad": {status: http.StatusForbidden},
	})

	dir := t.TempDir()
	c := NewClient("app", "secret", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()), WithMediaDir(dir))

	_, err := c.DownloadResource(context.Background(), "om_3", "img_bad")
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"img_v2_abc-123.png", "img_v2_abc-123.png"},
		{"../../etc/passwd", "......etcpasswd"},
		{"key with spaces", "keywithspaces"},
		{"????", "file"},
		{"", "file"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, sanitizeFileName(tt.input), "input %q", tt.input)
	}
}
