package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FEISHU_APP_ID", "cli_test")
	t.Setenv("FEISHU_APP_SECRET", "secret")
	t.Setenv("FEISHU_MEDIA_DIR", "/tmp/media")
	t.Setenv("MEDIA_MAX_AGE_HOURS", "24")
	t.Setenv("DEBUG", "true")

	cfg := LoadFromEnv()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "cli_test", cfg.Feishu.AppID)
	assert.Equal(t, "/tmp/media", cfg.Feishu.MediaDir)
	assert.Equal(t, 24, cfg.Cleanup.MaxAgeHours)
	assert.Equal(t, "@hourly", cfg.Cleanup.Schedule)
	assert.True(t, cfg.Debug)
}

func TestDefaults(t *testing.T) {
	t.Setenv("FEISHU_APP_ID", "cli_test")
	t.Setenv("FEISHU_APP_SECRET", "secret")
	t.Setenv("FEISHU_MEDIA_DIR", "")
	t.Setenv("MEDIA_MAX_AGE_HOURS", "")

	cfg := LoadFromEnv()
	assert.NotEmpty(t, cfg.Feishu.MediaDir)
	assert.NotEmpty(t, cfg.Session.Dir)
	assert.NotEmpty(t, cfg.Archive.DBPath)
	assert.Equal(t, 72, cfg.Cleanup.MaxAgeHours)
	assert.Equal(t, "Agent: ", cfg.Feishu.MessageTitle)
}

func TestValidateMissingCredentials(t *testing.T) {
	t.Setenv("FEISHU_APP_ID", "")
	t.Setenv("FEISHU_APP_SECRET", "")

	cfg := LoadFromEnv()
	err := cfg.Validate()
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "FEISHU_APP_ID")
}
