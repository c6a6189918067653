package feishu

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// fallbackExtension is used when the response carries no recognizable
// Content-Type.
const fallbackExtension = ".jpg"

var extensionByContentType = map[string]string{
	"image/jpeg":               ".jpg",
	"image/png":                ".png",
	"image/gif":                ".gif",
	"image/webp":               ".webp",
	"image/bmp":                ".bmp",
	"audio/ogg":                ".ogg",
	"video/mp4":                ".mp4",
	"application/pdf":          ".pdf",
	"application/octet-stream": ".bin",
}

// DownloadResource fetches a binary resource attached to an inbound event
// and persists it under the media directory. The file name is derived from
// the event id and the sanitized resource key so resources from different
// events never collide. On any failure no partial file is left behind.
func (c *Client) DownloadResource(ctx context.Context, eventID, resourceKey string) (string, error) {
	token, err := c.tokens.Get(ctx)
	if err != nil {
		return "", err
	}

	u := fmt.Sprintf("%s/open-apis/im/v1/messages/%s/resources/%s?type=image",
		c.baseURL, url.PathEscape(eventID), url.PathEscape(resourceKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("create resource request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("download resource %s: %w", resourceKey, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download resource %s: status %d", resourceKey, resp.StatusCode)
	}

	// Read the whole body before touching the filesystem so a broken
	// transfer never leaves a truncated file.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read resource %s: %w", resourceKey, err)
	}

	ext := extensionForContentType(resp.Header.Get("Content-Type"))
	if err := os.MkdirAll(c.mediaDir, 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}

	path := filepath.Join(c.mediaDir, eventID+"_"+sanitizeFileName(resourceKey)+ext)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write resource %s: %w", resourceKey, err)
	}
	return path, nil
}

func extensionForContentType(contentType string) string {
	mediaType := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	if ext, ok := extensionByContentType[strings.ToLower(mediaType)]; ok {
		return ext
	}
	return fallbackExtension
}

// sanitizeFileName strips every rune other than alphanumerics, '-', '_'
// and '.'. An empty result becomes "file".
func sanitizeFileName(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-', r == '_', r == '.':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}
