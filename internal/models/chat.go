package models

import "time"

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// AttachmentType distinguishes image attachments from other files.
type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentFile  AttachmentType = "file"
)

// AttachmentSource carries base64 encoded attachment bytes.
type AttachmentSource struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// Attachment is a file attached to a chat message.
type Attachment struct {
	Type   AttachmentType   `json:"type"`
	Name   string           `json:"name"`
	Source AttachmentSource `json:"source"`
}

// ChatMessage is the internal chat message representation.
type ChatMessage struct {
	Role      Role         `json:"role"`
	Content   string       `json:"content"`
	ExtraData []Attachment `json:"extraData,omitempty"`
}

// Usage is token accounting reported by the model.
type Usage struct {
	InputTokens           int  `json:"inputTokens"`
	OutputTokens          int  `json:"outputTokens"`
	TotalTokens           int  `json:"totalTokens"`
	CacheReadInputTokens  *int `json:"cacheReadInputTokens,omitempty"`
	CacheWriteInputTokens *int `json:"cacheWriteInputTokens,omitempty"`
}

// RecordedMessage is a chat message as stored by the persistence layer.
type RecordedMessage struct {
	ID        string       `json:"id"`
	ChatID    string       `json:"chatId"`
	Role      Role         `json:"role"`
	Content   string       `json:"content"`
	Trace     string       `json:"trace,omitempty"`
	ModelID   string       `json:"modelId,omitempty"`
	Usage     *Usage       `json:"usage,omitempty"`
	ExtraData []Attachment `json:"extraData,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}
