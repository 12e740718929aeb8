package chat

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PendingKind names the work a placeholder stands in for.
type PendingKind string

const (
	Typing    PendingKind = "typing"
	Uploading PendingKind = "uploading"
)

// Message is one finalized transcript entry. Pending is only set on the
// rendered placeholder returned by Conversation.Messages.
type Message struct {
	ID        string      `json:"id"`
	Role      Role        `json:"role"`
	Content   string      `json:"content"`
	ImageURL  string      `json:"imageUrl,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	Pending   PendingKind `json:"pending,omitempty"`
}

// Placeholder is the transient entry shown while a turn is in flight.
type Placeholder struct {
	Kind      PendingKind
	Content   string
	CreatedAt time.Time
}

// NewMessage builds a finalized message with a fresh id.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// placeholderContent is the fixed status text for each pending kind.
func placeholderContent(kind PendingKind) string {
	switch kind {
	case Uploading:
		return "Uploading image..."
	default:
		return "..."
	}
}

func (p Placeholder) message() Message {
	return Message{
		ID:        string(p.Kind),
		Role:      RoleAssistant,
		Content:   p.Content,
		CreatedAt: p.CreatedAt,
		Pending:   p.Kind,
	}
}
