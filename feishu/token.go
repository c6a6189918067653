package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// tokenSafetyMargin is how long before the server-reported expiry a cached
// token stops being reused.
const tokenSafetyMargin = 60 * time.Second

// tokenCache caches the tenant access token required by the raw HTTP
// endpoints. Refresh is serialized: concurrent callers that observe an
// expired token block on the mutex and re-check after acquiring it, so at
// most one fetch is in flight at a time.
type tokenCache struct {
	appID     string
	appSecret string
	baseURL   string
	httpc     *http.Client

	mu       sync.Mutex
	token    string
	expireAt time.Time

	now func() time.Time
}

func newTokenCache(appID, appSecret, baseURL string, httpc *http.Client) *tokenCache {
	return &tokenCache{
		appID:     appID,
		appSecret: appSecret,
		baseURL:   baseURL,
		httpc:     httpc,
		now:       time.Now,
	}
}

// Get returns a tenant access token, fetching a fresh one when the cached
// token is absent or within the safety margin of its expiry.
func (t *tokenCache) Get(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && t.now().Before(t.expireAt.Add(-tokenSafetyMargin)) {
		return t.token, nil
	}

	if t.appID == "" || t.appSecret == "" {
		return "", fmt.Errorf("feishu app_id/app_secret not configured")
	}

	payload, err := json.Marshal(map[string]string{
		"app_id":     t.appID,
		"app_secret": t.appSecret,
	})
	if err != nil {
		return "", fmt.Errorf("marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.baseURL+"/open-apis/auth/v3/tenant_access_token/internal",
		strings.NewReader(string(payload)))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch tenant token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch tenant token: status %d", resp.StatusCode)
	}

	var result struct {
		Code              int    `json:"code"`
		Msg               string `json:"msg"`
		TenantAccessToken string `json:"tenant_access_token"`
		Expire            int    `json:"expire"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if result.Code != 0 {
		return "", fmt.Errorf("feishu token error: code=%d msg=%s", result.Code, result.Msg)
	}
	if result.TenantAccessToken == "" {
		return "", fmt.Errorf("feishu token missing in response")
	}

	expire := result.Expire
	if expire <= 0 {
		expire = 3600
	}
	t.token = result.TenantAccessToken
	t.expireAt = t.now().Add(time.Duration(expire) * time.Second)
	return t.token, nil
}
