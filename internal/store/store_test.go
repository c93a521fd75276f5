package store

import (
	"context"
	"errors"
	"testing"

	"meeting-minutes-service/internal/models"
)

func TestNewStore_EmptyURLUsesMemory(t *testing.T) {
	s, err := NewStore(context.Background(), "  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	if _, ok := s.(*InMemoryStore); !ok {
		t.Errorf("expected in-memory store, got %T", s)
	}
}

func TestInMemoryStore_CreateChatIfNotExist(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	id, err := s.CreateChatIfNotExist(ctx, "")
	if err != nil || id == "" {
		t.Fatalf("expected generated chat id, got %q %v", id, err)
	}

	again, err := s.CreateChatIfNotExist(ctx, id)
	if err != nil || again != id {
		t.Errorf("expected existing chat %q, got %q %v", id, again, err)
	}

	if _, err := s.CreateMessages(ctx, id, []models.RecordedMessage{{Role: models.RoleUser, Content: "hi"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.CreateChatIfNotExist(ctx, id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msgs, _ := s.ListMessages(ctx, id)
	if len(msgs) != 1 {
		t.Errorf("expected existing messages kept, got %d", len(msgs))
	}
}

func TestInMemoryStore_CreateMessages(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	id, _ := s.CreateChatIfNotExist(ctx, "chat-1")

	saved, err := s.CreateMessages(ctx, id, []models.RecordedMessage{
		{Role: models.RoleUser, Content: "What was decided?"},
		{Role: models.RoleAssistant, Content: "Ship on Friday.", Trace: "trace", Usage: &models.Usage{InputTokens: 5, OutputTokens: 3, TotalTokens: 8}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, m := range saved {
		if m.ID == "" || m.ChatID != "chat-1" || m.CreatedAt.IsZero() {
			t.Errorf("message %d not stamped: %+v", i, m)
		}
	}

	listed, err := s.ListMessages(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(listed) != 2 || listed[0].Role != models.RoleUser || listed[1].Usage.TotalTokens != 8 {
		t.Errorf("unexpected messages %+v", listed)
	}

	listed[0].Content = "mutated"
	again, _ := s.ListMessages(ctx, id)
	if again[0].Content != "What was decided?" {
		t.Error("expected list to return a copy")
	}
}

func TestInMemoryStore_UnknownChat(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if _, err := s.CreateMessages(ctx, "missing", nil); !errors.Is(err, ErrChatNotFound) {
		t.Errorf("expected ErrChatNotFound, got %v", err)
	}
	if _, err := s.ListMessages(ctx, "missing"); !errors.Is(err, ErrChatNotFound) {
		t.Errorf("expected ErrChatNotFound, got %v", err)
	}
}

func TestJSONColumn(t *testing.T) {
	b, err := jsonColumn(nil, true)
	if err != nil || b != nil {
		t.Errorf("expected NULL column, got %q %v", b, err)
	}

	b, err = jsonColumn(&models.Usage{InputTokens: 1}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(b) != `{"inputTokens":1,"outputTokens":0,"totalTokens":0}` {
		t.Errorf("unexpected encoding %s", b)
	}
}
