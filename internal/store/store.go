// Package store persists agent chat exchanges.
package store

import (
	"context"
	"errors"
	"strings"

	"meeting-minutes-service/internal/models"
)

// ErrChatNotFound is returned when messages are added to an unknown chat.
var ErrChatNotFound = errors.New("chat not found")

// ChatStore persists chats and their messages.
type ChatStore interface {
	// CreateChatIfNotExist returns chatID when the chat exists, creating it
	// first if needed. A blank chatID creates a chat with a new id.
	CreateChatIfNotExist(ctx context.Context, chatID string) (string, error)
	// CreateMessages appends messages to the chat and returns them with ids,
	// chat id and creation time filled in.
	CreateMessages(ctx context.Context, chatID string, msgs []models.RecordedMessage) ([]models.RecordedMessage, error)
	// ListMessages returns the messages of a chat in insertion order.
	ListMessages(ctx context.Context, chatID string) ([]models.RecordedMessage, error)
	Close() error
}

// NewStore creates a postgres-backed store when databaseURL is set, otherwise
// an in-memory store.
func NewStore(ctx context.Context, databaseURL string) (ChatStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
