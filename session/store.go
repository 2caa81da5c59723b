package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/hestia-agent/hestia/errors"
)

// Store keeps conversations in memory, keyed by conversation id, optionally
// mirroring them to disk. The in-memory copy is authoritative; the disk write
// is best effort so a failed save never breaks request handling.
type Store struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	dir           string // empty disables persistence
}

// NewStore creates an in-memory store. If dir is non-empty, conversations are
// also written there as JSON and rehydrated on first access.
func NewStore(dir string) *Store {
	return &Store{
		conversations: make(map[string]*Conversation),
		dir:           dir,
	}
}

// Get returns the conversation for id, rehydrating it from disk when
// persistence is enabled, or creating a fresh one. A generated id is assigned
// when id is empty.
func (s *Store) Get(id string) *Conversation {
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.conversations[id]; ok {
		return conv
	}

	if s.dir != "" {
		if conv, err := s.loadFromDisk(id); err == nil {
			s.conversations[id] = conv
			return conv
		}
	}

	conv := NewConversation(id)
	s.conversations[id] = conv
	return conv
}

// Put stores the conversation back, persisting it when enabled.
func (s *Store) Put(conv *Conversation) error {
	s.mu.Lock()
	s.conversations[conv.ID] = conv
	s.mu.Unlock()

	if s.dir == "" {
		return nil
	}
	return s.saveToDisk(conv)
}

// Forget drops a conversation from memory (disk copy, if any, is kept).
func (s *Store) Forget(id string) {
	s.mu.Lock()
	delete(s.conversations, id)
	s.mu.Unlock()
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.json", id))
}

func (s *Store) loadFromDisk(id string) (*Conversation, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, err
	}
	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, errors.Wrapf(err, "could not parse conversation file for %s", id)
	}
	return &conv, nil
}

func (s *Store) saveToDisk(conv *Conversation) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrapf(err, "could not create conversation directory")
	}
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to serialize conversation %s", conv.ID)
	}
	return os.WriteFile(s.path(conv.ID), data, 0o644)
}
