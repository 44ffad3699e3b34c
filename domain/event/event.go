// Package event defines the events fanned out to connected clients. Event
// names are the wire-level event identifiers the client listens on.
package event

import (
	"chatline/domain"

	"github.com/google/uuid"
)

type DomainEvent interface {
	EventName() string
}

// MessageEvent carries a freshly persisted message to room subscribers.
type MessageEvent struct {
	Message domain.Message
}

func (MessageEvent) EventName() string { return "message" }

// TypingEvent is transient and never persisted.
type TypingEvent struct {
	SenderID string
	IsTyping bool
}

func (TypingEvent) EventName() string { return "typing" }

// MessageReadEvent notifies both parties' devices of a read transition.
type MessageReadEvent struct {
	MessageID uuid.UUID
}

func (MessageReadEvent) EventName() string { return "message-read" }

// GroupDeletedEvent is the last event a group room sees before eviction.
type GroupDeletedEvent struct {
	GroupID string
}

func (GroupDeletedEvent) EventName() string { return "group-deleted" }
