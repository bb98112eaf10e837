package sessions

import (
	"context"
	"log/slog"
	"sync"

	"github.com/chatrelay/chatrelay/pkg/models"
)

// MemoryStore keeps conversation history in process memory. Suitable for
// tests and single-instance deployments without a database.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string][]models.Message
	logger *slog.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		users:  make(map[string][]models.Message),
		logger: logger,
	}
}

func (s *MemoryStore) GetMessages(_ context.Context, userID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.users[userID]
	if !ok {
		return []models.Message{}, nil
	}
	out := make([]models.Message, len(stored))
	copy(out, stored)
	return out, nil
}

func (s *MemoryStore) SetMessages(_ context.Context, userID string, messages []models.Message) error {
	if messages == nil {
		s.logger.Warn("refusing to store nil history", "user_id", userID)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]models.Message, len(messages))
	copy(stored, messages)
	s.users[userID] = stored
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, userID string) error {
	return s.SetMessages(ctx, userID, []models.Message{})
}

func (s *MemoryStore) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.users, userID)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
