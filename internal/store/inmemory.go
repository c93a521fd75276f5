package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"meeting-minutes-service/internal/models"
)

// InMemoryStore keeps chats in process memory for local and test use.
type InMemoryStore struct {
	mu    sync.RWMutex
	chats map[string][]models.RecordedMessage
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{chats: make(map[string][]models.RecordedMessage)}
}

func (s *InMemoryStore) CreateChatIfNotExist(_ context.Context, chatID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chatID == "" {
		chatID = uuid.NewString()
	}
	if _, ok := s.chats[chatID]; !ok {
		s.chats[chatID] = nil
	}
	return chatID, nil
}

func (s *InMemoryStore) CreateMessages(_ context.Context, chatID string, msgs []models.RecordedMessage) ([]models.RecordedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.chats[chatID]
	if !ok {
		return nil, ErrChatNotFound
	}

	out := make([]models.RecordedMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, stamp(chatID, m))
	}
	s.chats[chatID] = append(existing, out...)
	return out, nil
}

func (s *InMemoryStore) ListMessages(_ context.Context, chatID string) ([]models.RecordedMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs, ok := s.chats[chatID]
	if !ok {
		return nil, ErrChatNotFound
	}
	out := make([]models.RecordedMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }

func stamp(chatID string, m models.RecordedMessage) models.RecordedMessage {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.ChatID = chatID
	return m
}
