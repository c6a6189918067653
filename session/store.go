// Package session persists conversation history as JSON Lines files, one
// file per session. The first line of each file is a metadata record; every
// following line is a message.
package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const titleMaxLen = 60

// Message is a single turn of a conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session holds an ordered conversation.
type Session struct {
	Key       string         `json:"key"`
	Messages  []Message      `json:"-"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AddMessage appends a turn and bumps the update time.
func (s *Session) AddMessage(role, content string) {
	now := time.Now()
	s.Messages = append(s.Messages, Message{Role: role, Content: content, Timestamp: now})
	s.UpdatedAt = now
}

// History returns up to the last n messages. n <= 0 returns everything.
func (s *Session) History(n int) []Message {
	if n <= 0 || n >= len(s.Messages) {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}

// Clear drops all messages but keeps the session record.
func (s *Session) Clear() {
	s.Messages = nil
	s.UpdatedAt = time.Now()
}

// Title derives a human-readable label from the first user message.
func (s *Session) Title() string {
	for _, m := range s.Messages {
		if m.Role != "user" || m.Content == "" {
			continue
		}
		title := strings.ReplaceAll(m.Content, "\n", " ")
		if len(title) > titleMaxLen {
			title = title[:titleMaxLen] + "..."
		}
		return title
	}
	return "(empty)"
}

// SessionInfo is a summary entry used for listings.
type SessionInfo struct {
	Key       string    `json:"key"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// metadataLine is the first record of every session file.
type metadataLine struct {
	Type      string         `json:"_type"`
	Key       string         `json:"key"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Store keeps sessions on disk with an in-memory cache of loaded ones.
type Store struct {
	dir string

	mu     sync.Mutex
	cache  map[string]*Session
	active map[string]string // "channel:chatID" -> session key
}

// NewStore creates the store directory if needed and loads the active-key
// map from disk.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	s := &Store{
		dir:    dir,
		cache:  make(map[string]*Session),
		active: make(map[string]string),
	}
	if err := s.loadActive(); err != nil {
		return nil, err
	}
	return s, nil
}

// GetOrCreate returns the session for key, loading it from disk on first
// access and creating a fresh one if no file exists.
func (s *Store) GetOrCreate(key string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.cache[key]; ok {
		return sess, nil
	}

	sess, err := s.load(key)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		now := time.Now()
		sess = &Session{Key: key, CreatedAt: now, UpdatedAt: now}
	}
	s.cache[key] = sess
	return sess, nil
}

// Save writes the session file atomically (temp file and rename).
func (s *Store) Save(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(sess.Key)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	meta := metadataLine{
		Type:      "metadata",
		Key:       sess.Key,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
		Metadata:  sess.Metadata,
	}
	if err := enc.Encode(meta); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write session metadata: %w", err)
	}
	for _, m := range sess.Messages {
		if err := enc.Encode(m); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("failed to write session message: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to flush session file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close session file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	s.cache[sess.Key] = sess
	return nil
}

// Delete removes a session from disk and cache.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cache, key)
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ListSessions scans the store directory and returns summaries sorted by
// update time, newest first. Files that fail to parse are skipped.
func (s *Store) ListSessions() ([]SessionInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read session directory: %w", err)
	}

	var infos []SessionInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		key := strings.TrimSuffix(e.Name(), ".jsonl")
		sess, err := s.load(key)
		if err != nil || sess == nil {
			continue
		}
		infos = append(infos, SessionInfo{
			Key:       sess.Key,
			Title:     sess.Title(),
			CreatedAt: sess.CreatedAt,
			UpdatedAt: sess.UpdatedAt,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
	})
	return infos, nil
}

// GetTitle returns the listing title for a session, or "" if absent.
func (s *Store) GetTitle(key string) string {
	sess, err := s.GetOrCreate(key)
	if err != nil || len(sess.Messages) == 0 {
		return ""
	}
	return sess.Title()
}

// SetActiveKey binds a chat to a session key and persists the map.
func (s *Store) SetActiveKey(channel, chatID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[channel+":"+chatID] = key
	return s.saveActive()
}

// GetActiveKey returns the bound session key for a chat, or "".
func (s *Store) GetActiveKey(channel, chatID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[channel+":"+chatID]
}

// ClearActiveKey unbinds a chat.
func (s *Store) ClearActiveKey(channel, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, channel+":"+chatID)
	return s.saveActive()
}

func (s *Store) path(key string) string {
	// Session keys embed a colon; keep filenames portable.
	name := strings.ReplaceAll(key, ":", "_")
	return filepath.Join(s.dir, name+".jsonl")
}

func (s *Store) activePath() string {
	return filepath.Join(s.dir, "_active.json")
}

// load reads a session file. Returns (nil, nil) when the file does not
// exist. Lines that fail to parse are skipped rather than failing the load.
func (s *Store) load(key string) (*Session, error) {
	f, err := os.Open(s.path(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}
	defer f.Close()

	sess := &Session{Key: key}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	first := true
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if first {
			first = false
			var meta metadataLine
			if err := json.Unmarshal(line, &meta); err == nil && meta.Type == "metadata" {
				if meta.Key != "" {
					sess.Key = meta.Key
				}
				sess.CreatedAt = meta.CreatedAt
				sess.UpdatedAt = meta.UpdatedAt
				sess.Metadata = meta.Metadata
				continue
			}
			// No metadata line; fall through and treat it as a message.
		}
		var m Message
		if err := json.Unmarshal(line, &m); err != nil {
			continue
		}
		sess.Messages = append(sess.Messages, m)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	return sess, nil
}

func (s *Store) loadActive() error {
	raw, err := os.ReadFile(s.activePath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read active map: %w", err)
	}
	if err := json.Unmarshal(raw, &s.active); err != nil {
		return fmt.Errorf("failed to parse active map: %w", err)
	}
	return nil
}

func (s *Store) saveActive() error {
	raw, err := json.MarshalIndent(s.active, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode active map: %w", err)
	}
	if err := os.WriteFile(s.activePath(), raw, 0644); err != nil {
		return fmt.Errorf("failed to write active map: %w", err)
	}
	return nil
}
