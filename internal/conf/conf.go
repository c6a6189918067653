// Package conf loads application configuration from environment variables.
package conf

import (
	"os"
	"path/filepath"
	"strconv"
)

// Config represents application configuration
type Config struct {
	// Feishu channel configuration
	Feishu FeishuConfig

	// Agent responder configuration (optional)
	Agent AgentConfig

	// Session store configuration
	Session SessionConfig

	// Message archive configuration
	Archive ArchiveConfig

	// Media directory cleanup
	Cleanup CleanupConfig

	// Debug mode
	Debug bool
}

// FeishuConfig contains Feishu app credentials and adapter settings
type FeishuConfig struct {
	AppID     string
	AppSecret string
	MediaDir  string
	// Title prefix used on outbound rich messages
	MessageTitle string
}

// AgentConfig contains the OpenAI-compatible responder configuration
type AgentConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
}

// SessionConfig contains session store configuration
type SessionConfig struct {
	Dir string
}

// ArchiveConfig contains message archive configuration
type ArchiveConfig struct {
	DBPath string
}

// CleanupConfig controls the media directory purge job
type CleanupConfig struct {
	// Schedule is a cron expression; empty disables the job
	Schedule string
	// MaxAgeHours is how long downloaded media is kept
	MaxAgeHours int
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	homeDir, _ := os.UserHomeDir()
	stateDir := filepath.Join(homeDir, ".feishu-agent")

	mediaDir := os.Getenv("FEISHU_MEDIA_DIR")
	if mediaDir == "" {
		mediaDir = filepath.Join(stateDir, "media")
	}

	sessionDir := os.Getenv("SESSION_DIR")
	if sessionDir == "" {
		sessionDir = filepath.Join(stateDir, "sessions")
	}

	archivePath := os.Getenv("ARCHIVE_DB_PATH")
	if archivePath == "" {
		archivePath = filepath.Join(stateDir, "archive.db")
	}

	title := os.Getenv("MESSAGE_TITLE")
	if title == "" {
		title = "Agent: "
	}

	cleanupSchedule := os.Getenv("MEDIA_CLEANUP_SCHEDULE")
	if cleanupSchedule == "" {
		cleanupSchedule = "@hourly"
	}

	cleanupMaxAge := 72
	if val := os.Getenv("MEDIA_MAX_AGE_HOURS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			cleanupMaxAge = parsed
		}
	}

	return &Config{
		Feishu: FeishuConfig{
			AppID:        os.Getenv("FEISHU_APP_ID"),
			AppSecret:    os.Getenv("FEISHU_APP_SECRET"),
			MediaDir:     mediaDir,
			MessageTitle: title,
		},
		Agent: AgentConfig{
			APIKey:       os.Getenv("AGENT_API_KEY"),
			BaseURL:      os.Getenv("AGENT_BASE_URL"),
			Model:        os.Getenv("AGENT_MODEL"),
			SystemPrompt: os.Getenv("AGENT_SYSTEM_PROMPT"),
		},
		Session: SessionConfig{
			Dir: sessionDir,
		},
		Archive: ArchiveConfig{
			DBPath: archivePath,
		},
		Cleanup: CleanupConfig{
			Schedule:    cleanupSchedule,
			MaxAgeHours: cleanupMaxAge,
		},
		Debug: os.Getenv("DEBUG") == "true",
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
		return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "required"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
