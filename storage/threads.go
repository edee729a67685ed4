package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"anvil/chat"

	"github.com/google/uuid"
	"github.com/sahilm/fuzzy"
)

// ThreadMetadata is a lightweight view of a thread for listing.
type ThreadMetadata struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// ThreadStorage persists threads as JSON files, one per thread, under
// <data>/threads/. Files are 0600: they hold conversation history.
type ThreadStorage struct {
	threadsDir string
}

func NewThreadStorage(dataDir string) (*ThreadStorage, error) {
	threadsDir := filepath.Join(dataDir, "threads")

	if err := os.MkdirAll(threadsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create threads directory: %w", err)
	}

	return &ThreadStorage{
		threadsDir: threadsDir,
	}, nil
}

// Save writes a thread to disk, assigning an ID if it has none. The
// in-memory stream state is transient and never serialized.
func (ts *ThreadStorage) Save(thread *chat.Thread) error {
	if thread.ID == "" {
		thread.ID = uuid.New().String()
	}

	thread.UpdatedAt = time.Now()
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = thread.UpdatedAt
	}

	data, err := json.MarshalIndent(thread, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal thread: %w", err)
	}

	path := filepath.Join(ts.threadsDir, thread.ID+".json")
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write thread file: %w", err)
	}

	return nil
}

// Load reads a thread from disk. Loaded threads always start idle.
func (ts *ThreadStorage) Load(id string) (*chat.Thread, error) {
	path := filepath.Join(ts.threadsDir, id+".json")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read thread file: %w", err)
	}

	var thread chat.Thread
	if err := json.Unmarshal(data, &thread); err != nil {
		return nil, fmt.Errorf("failed to unmarshal thread: %w", err)
	}

	thread.Stream = chat.StreamState{}
	return &thread, nil
}

// List returns metadata for all threads, newest first. Corrupted files
// are skipped, not fatal.
func (ts *ThreadStorage) List() ([]ThreadMetadata, error) {
	entries, err := os.ReadDir(ts.threadsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read threads directory: %w", err)
	}

	var threads []ThreadMetadata

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(ts.threadsDir, entry.Name()))
		if err != nil {
			continue
		}

		var thread chat.Thread
		if err := json.Unmarshal(data, &thread); err != nil {
			continue
		}

		threads = append(threads, ThreadMetadata{
			ID:           thread.ID,
			Name:         thread.Name,
			Provider:     thread.Provider,
			Model:        thread.Model,
			CreatedAt:    thread.CreatedAt,
			UpdatedAt:    thread.UpdatedAt,
			MessageCount: len(thread.Messages),
		})
	}

	sort.Slice(threads, func(i, j int) bool {
		return threads[i].UpdatedAt.After(threads[j].UpdatedAt)
	})

	return threads, nil
}

// Delete removes a thread file.
func (ts *ThreadStorage) Delete(id string) error {
	if err := os.Remove(filepath.Join(ts.threadsDir, id+".json")); err != nil {
		return fmt.Errorf("failed to delete thread file: %w", err)
	}
	return nil
}

// Rename updates a thread's name.
func (ts *ThreadStorage) Rename(id, newName string) error {
	thread, err := ts.Load(id)
	if err != nil {
		return fmt.Errorf("failed to load thread: %w", err)
	}

	thread.Name = newName

	if err := ts.Save(thread); err != nil {
		return fmt.Errorf("failed to save renamed thread: %w", err)
	}
	return nil
}

// SaveCurrentThreadID records the last active thread.
func (ts *ThreadStorage) SaveCurrentThreadID(id string) error {
	path := filepath.Join(filepath.Dir(ts.threadsDir), "current_thread.id")
	return os.WriteFile(path, []byte(id), 0600)
}

// LoadCurrentThreadID returns the last active thread ID.
func (ts *ThreadStorage) LoadCurrentThreadID() (string, error) {
	path := filepath.Join(filepath.Dir(ts.threadsDir), "current_thread.id")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// FindByTitle fuzzy-matches thread names and returns matching metadata,
// best match first.
func (ts *ThreadStorage) FindByTitle(query string) ([]ThreadMetadata, error) {
	threads, err := ts.List()
	if err != nil {
		return nil, err
	}
	if query == "" {
		return threads, nil
	}

	names := make([]string, len(threads))
	for i, t := range threads {
		names[i] = t.Name
	}

	var matched []ThreadMetadata
	for _, match := range fuzzy.Find(query, names) {
		matched = append(matched, threads[match.Index])
	}
	return matched, nil
}

// GenerateThreadName derives a thread name from the first user message.
func GenerateThreadName(firstMessage string) string {
	name := strings.TrimSpace(firstMessage)
	name = strings.ReplaceAll(name, "\n", " ")
	name = strings.ReplaceAll(name, "\r", " ")

	if len(name) > 30 {
		name = truncateBytes(name, 30) + "..."
	}
	if name == "" {
		return fmt.Sprintf("Thread %s", time.Now().Format("Jan 2, 3:04 PM"))
	}
	return name
}

// truncateBytes shortens s to at most max bytes without splitting a
// multi-byte rune.
func truncateBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// LockThread marks a thread as in use by this process. The lock file
// holds the PID so stale locks from dead processes can be detected.
func (ts *ThreadStorage) LockThread(threadID string) error {
	lockPath := filepath.Join(ts.threadsDir, threadID+".lock")
	return os.WriteFile(lockPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0600)
}

// UnlockThread removes a thread's lock file. A missing lock is not an
// error.
func (ts *ThreadStorage) UnlockThread(threadID string) error {
	err := os.Remove(filepath.Join(ts.threadsDir, threadID+".lock"))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// CheckThreadLock reports whether another process holds the thread.
// Stale or malformed lock files are cleaned up and treated as unlocked.
func (ts *ThreadStorage) CheckThreadLock(threadID string) (bool, error) {
	lockPath := filepath.Join(ts.threadsDir, threadID+".lock")

	data, err := os.ReadFile(lockPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read lock file: %w", err)
	}

	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		_ = os.Remove(lockPath)
		return false, nil
	}

	// FindProcess always succeeds on Unix; this is a best-effort check
	// that stays cross-platform.
	if _, err := os.FindProcess(pid); err != nil {
		_ = os.Remove(lockPath)
		return false, nil
	}

	return true, nil
}
