// Package domain contains the core concepts of the messaging system.
// No runtime, network, or storage logic should be added here.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is a persisted chat event. Exactly one of ReceiverID and GroupID is
// set: a message targets either a user (direct) or a group, never both.
type Message struct {
	ID         uuid.UUID
	SenderID   string
	ReceiverID string
	GroupID    string
	Content    string
	Read       bool
	CreatedAt  time.Time
}

// NewDirectMessage builds an unread message addressed to a single user.
func NewDirectMessage(senderID, receiverID, content string) Message {
	return Message{
		ID:         uuid.New(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
}

// NewGroupMessage builds an unread message addressed to a group.
func NewGroupMessage(senderID, groupID, content string) Message {
	return Message{
		ID:        uuid.New(),
		SenderID:  senderID,
		GroupID:   groupID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// IsDirect reports whether the message targets a user rather than a group.
func (m Message) IsDirect() bool {
	return m.GroupID == ""
}

// Room returns the fan-out target the message is broadcast to.
func (m Message) Room() RoomKey {
	if m.IsDirect() {
		return PersonalRoom(m.ReceiverID)
	}
	return GroupRoom(m.GroupID)
}
