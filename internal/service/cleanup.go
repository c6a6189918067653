// Package service hosts background maintenance jobs.
package service

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// MediaCleanup periodically removes downloaded media files older than the
// retention window.
type MediaCleanup struct {
	dir      string
	maxAge   time.Duration
	schedule string
	cron     *cron.Cron
}

// NewMediaCleanup creates the job. schedule uses cron syntax (descriptors
// like "@hourly" work too).
func NewMediaCleanup(dir string, maxAge time.Duration, schedule string) *MediaCleanup {
	return &MediaCleanup{
		dir:      dir,
		maxAge:   maxAge,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start registers the schedule and begins running purges.
func (m *MediaCleanup) Start() error {
	_, err := m.cron.AddFunc(m.schedule, func() {
		removed, err := m.Purge()
		if err != nil {
			log.Warn().Err(err).Msg("media cleanup failed")
			return
		}
		if removed > 0 {
			log.Info().Int("removed", removed).Msg("media cleanup done")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", m.schedule, err)
	}
	m.cron.Start()
	return nil
}

// Stop halts the scheduler. A purge already running completes.
func (m *MediaCleanup) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
}

// Purge removes files in the media directory older than the retention
// window and returns how many were removed. A missing directory is not an
// error.
func (m *MediaCleanup) Purge() (int, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read media directory: %w", err)
	}

	cutoff := time.Now().Add(-m.maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(m.dir, e.Name())
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("failed to remove media file")
			continue
		}
		removed++
	}
	return removed, nil
}
