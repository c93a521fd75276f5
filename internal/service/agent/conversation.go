package agent

import (
	"strings"
	"sync"

	"meeting-minutes-service/internal/models"
)

// Conversation is the client-visible message list of one chat.
// Thread-safe for concurrent access.
type Conversation struct {
	mu       sync.Mutex
	chatID   string
	messages []models.RecordedMessage
}

// NewConversation creates a conversation for chatID. A blank chatID is
// assigned by the store on the first persisted exchange.
func NewConversation(chatID string) *Conversation {
	return &Conversation{chatID: chatID}
}

// ChatID returns the persisted chat id, or "" before the first exchange is stored.
func (c *Conversation) ChatID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chatID
}

// Messages returns a copy of the messages.
func (c *Conversation) Messages() []models.RecordedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.RecordedMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// History returns the messages as chat messages, for building the next request.
func (c *Conversation) History() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.ChatMessage, 0, len(c.messages))
	for _, m := range c.messages {
		out = append(out, models.ChatMessage{Role: m.Role, Content: m.Content, ExtraData: m.ExtraData})
	}
	return out
}

func (c *Conversation) push(role models.Role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, models.RecordedMessage{Role: role, Content: content})
}

// replaceLast swaps the last message for an empty message of role.
func (c *Conversation) replaceLast(role models.Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := len(c.messages); n > 0 {
		c.messages[n-1] = models.RecordedMessage{Role: role}
	}
}

func (c *Conversation) updateLast(fn func(*models.RecordedMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := len(c.messages); n > 0 {
		fn(&c.messages[n-1])
	}
}

// unrecorded returns the messages not yet persisted, from index from on.
func (c *Conversation) unrecorded(from int) []models.RecordedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if from >= len(c.messages) {
		return nil
	}
	out := make([]models.RecordedMessage, len(c.messages)-from)
	copy(out, c.messages[from:])
	return out
}

func (c *Conversation) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// recorded replaces the messages from index from on with their stored form.
func (c *Conversation) recorded(chatID string, from int, stored []models.RecordedMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chatID = chatID
	if from > len(c.messages) {
		return
	}
	c.messages = append(c.messages[:from], stored...)
}

// LastReply returns the trimmed text of the last assistant message.
func (c *Conversation) LastReply() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for j := len(c.messages) - 1; j >= 0; j-- {
		if c.messages[j].Role == models.RoleAssistant {
			return strings.TrimSpace(c.messages[j].Content)
		}
	}
	return ""
}
