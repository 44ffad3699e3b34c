package services

import (
	"chatline/apperrors"
	"chatline/contract"
	"chatline/domain"
	"chatline/domain/event"
	"chatline/moderation"
	"chatline/repositories"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

type IMessageService interface {
	SendDirect(ctx context.Context, senderID, receiverID, content string) (domain.Message, error)
	SendGroup(ctx context.Context, senderID, groupID, content string) (domain.Message, error)
	MarkRead(ctx context.Context, requesterID string, messageID uuid.UUID) error
	Typing(senderID, receiverID string, isTyping bool)
	GroupHistory(ctx context.Context, requesterID, groupID string) ([]domain.Message, error)
	DirectHistory(ctx context.Context, userA, userB string) ([]domain.Message, error)
}

// MessageMetrics is the slice of the metrics collector the dispatcher needs.
type MessageMetrics interface {
	RecordMessageSent(kind string)
}

// MessageService is the dispatch pipeline: censor, persist, then fan out.
// Persistence always completes before the first delivery is enqueued, so a
// recipient can never see an event for a message the store would not return.
type MessageService struct {
	messages  repositories.IMessageRepository
	groups    IGroupService
	router    contract.Router
	moderator *moderation.Moderator
	metrics   MessageMetrics
	log       *slog.Logger
}

func NewMessageService(
	log *slog.Logger,
	messages repositories.IMessageRepository,
	groups IGroupService,
	router contract.Router,
	moderator *moderation.Moderator,
	metrics MessageMetrics,
) *MessageService {
	return &MessageService{
		messages:  messages,
		groups:    groups,
		router:    router,
		moderator: moderator,
		metrics:   metrics,
		log:       log.With("component", "MessageService"),
	}
}

func (s *MessageService) SendDirect(_ context.Context, senderID, receiverID, content string) (domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, fmt.Errorf("%w: message content is required", apperrors.ErrInvalidInput)
	}
	if receiverID == "" {
		return domain.Message{}, fmt.Errorf("%w: receiver is required", apperrors.ErrInvalidInput)
	}
	message := domain.NewDirectMessage(senderID, receiverID, s.censor(content))
	if err := s.messages.Store(message); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
	}
	evt := event.MessageEvent{Message: message}
	s.router.Deliver(domain.PersonalRoom(receiverID), evt)
	// Echo to the sender's own room so their other devices stay in sync.
	s.router.Deliver(domain.PersonalRoom(senderID), evt)
	if s.metrics != nil {
		s.metrics.RecordMessageSent("direct")
	}
	return message, nil
}

func (s *MessageService) SendGroup(ctx context.Context, senderID, groupID, content string) (domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, fmt.Errorf("%w: message content is required", apperrors.ErrInvalidInput)
	}
	if err := s.groups.AuthorizeSend(ctx, groupID, senderID); err != nil {
		return domain.Message{}, err
	}
	message := domain.NewGroupMessage(senderID, groupID, s.censor(content))
	if err := s.messages.Store(message); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
	}
	s.router.Deliver(domain.GroupRoom(groupID), event.MessageEvent{Message: message})
	if s.metrics != nil {
		s.metrics.RecordMessageSent("group")
	}
	return message, nil
}

// MarkRead flips a message's read flag on behalf of requesterID. Only the
// participants of the conversation may do it, and the message-read event goes
// out once per message: repeated calls succeed silently without re-notifying.
func (s *MessageService) MarkRead(ctx context.Context, requesterID string, messageID uuid.UUID) error {
	message, err := s.messages.Get(messageID)
	if err != nil {
		return err
	}
	if err := s.authorizeRead(ctx, requesterID, message); err != nil {
		return err
	}
	updated, transitioned, err := s.messages.MarkRead(messageID)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
	}
	if !transitioned {
		return nil
	}
	evt := event.MessageReadEvent{MessageID: updated.ID}
	s.router.Deliver(domain.PersonalRoom(updated.SenderID), evt)
	if updated.IsDirect() {
		s.router.Deliver(domain.PersonalRoom(updated.ReceiverID), evt)
	} else if requesterID != updated.SenderID {
		s.router.Deliver(domain.PersonalRoom(requesterID), evt)
	}
	return nil
}

func (s *MessageService) authorizeRead(ctx context.Context, requesterID string, message domain.Message) error {
	if message.IsDirect() {
		if requesterID == message.SenderID || requesterID == message.ReceiverID {
			return nil
		}
		return fmt.Errorf("%w: not a participant of this conversation", apperrors.ErrForbidden)
	}
	group, err := s.groups.GetGroup(ctx, message.GroupID)
	if err != nil {
		return err
	}
	if !group.IsMember(requesterID) {
		return fmt.Errorf("%w: not a group member", apperrors.ErrForbidden)
	}
	return nil
}

// Typing relays a transient typing indicator. Nothing is persisted and nothing
// can fail: a lost indicator costs nobody anything.
func (s *MessageService) Typing(senderID, receiverID string, isTyping bool) {
	if receiverID == "" {
		return
	}
	evt := event.TypingEvent{SenderID: senderID, IsTyping: isTyping}
	s.router.Deliver(domain.PersonalRoom(receiverID), evt)
	s.router.Deliver(domain.PersonalRoom(senderID), evt)
}

// GroupHistory returns a group's messages, oldest first. Only members may read.
func (s *MessageService) GroupHistory(ctx context.Context, requesterID, groupID string) ([]domain.Message, error) {
	if err := s.groups.AuthorizeSend(ctx, groupID, requesterID); err != nil {
		return nil, err
	}
	return s.messages.ListGroup(groupID)
}

// DirectHistory returns the conversation between two users, oldest first.
func (s *MessageService) DirectHistory(_ context.Context, userA, userB string) ([]domain.Message, error) {
	return s.messages.ListDirect(userA, userB)
}

func (s *MessageService) censor(content string) string {
	if s.moderator == nil {
		return content
	}
	return s.moderator.Censor(content)
}
