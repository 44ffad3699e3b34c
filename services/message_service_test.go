package services

import (
	"chatline/apperrors"
	"chatline/domain"
	"chatline/domain/event"
	"chatline/mocks"
	"chatline/moderation"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type messageServiceFixture struct {
	repo      *mocks.MockIMessageRepository
	groupRepo *mocks.MockIGroupRepository
	router    *mocks.MockRouter
	svc       *MessageService
}

func newMessageServiceFixture(t *testing.T, moderator *moderation.Moderator) messageServiceFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	repo := mocks.NewMockIMessageRepository(ctrl)
	groupRepo := mocks.NewMockIGroupRepository(ctrl)
	router := mocks.NewMockRouter(ctrl)
	groups := NewGroupService(slog.Default(), groupRepo, router)
	svc := NewMessageService(slog.Default(), repo, groups, router, moderator, nil)
	return messageServiceFixture{repo: repo, groupRepo: groupRepo, router: router, svc: svc}
}

func TestMessageService_SendDirect(t *testing.T) {
	t.Run("persists then delivers to both personal rooms", func(t *testing.T) {
		req := require.New(t)
		f := newMessageServiceFixture(t, nil)

		persisted := false
		f.repo.EXPECT().Store(gomock.Any()).DoAndReturn(func(domain.Message) error {
			persisted = true
			return nil
		})
		f.router.EXPECT().
			Deliver(domain.PersonalRoom("bob"), gomock.Any()).
			Do(func(domain.RoomKey, event.DomainEvent) {
				// Fan-out must never precede the durable write
				req.True(persisted)
			})
		f.router.EXPECT().Deliver(domain.PersonalRoom("alice"), gomock.Any())

		message, err := f.svc.SendDirect(context.Background(), "alice", "bob", "hello")

		req.NoError(err)
		req.Equal("hello", message.Content)
		req.Equal("bob", message.ReceiverID)
		req.False(message.Read)
	})

	t.Run("empty content fails InvalidInput with no side effects", func(t *testing.T) {
		req := require.New(t)
		f := newMessageServiceFixture(t, nil)

		_, err := f.svc.SendDirect(context.Background(), "alice", "bob", "   ")

		req.ErrorIs(err, apperrors.ErrInvalidInput)
	})

	t.Run("persistence failure aborts fan-out", func(t *testing.T) {
		req := require.New(t)
		f := newMessageServiceFixture(t, nil)

		f.repo.EXPECT().Store(gomock.Any()).Return(errors.New("disk on fire"))
		// No Deliver expected

		_, err := f.svc.SendDirect(context.Background(), "alice", "bob", "hello")

		req.ErrorIs(err, apperrors.ErrPersistence)
	})

	t.Run("content is censored before storage", func(t *testing.T) {
		req := require.New(t)
		moderator, err := moderation.NewModerator([]string{"badger"}, '*')
		req.NoError(err)
		f := newMessageServiceFixture(t, moderator)

		f.repo.EXPECT().Store(gomock.Any()).DoAndReturn(func(m domain.Message) error {
			req.Equal("the ****** bites", m.Content)
			return nil
		})
		f.router.EXPECT().Deliver(gomock.Any(), gomock.Any()).Times(2)

		message, err := f.svc.SendDirect(context.Background(), "alice", "bob", "the badger bites")

		req.NoError(err)
		req.Equal("the ****** bites", message.Content)
	})
}

func TestMessageService_SendGroup(t *testing.T) {
	group := domain.Group{ID: "g1", Name: "gophers", Members: []string{"alice", "bob"}, Admins: []string{"alice"}}

	t.Run("member send is persisted then fanned out to the group room", func(t *testing.T) {
		req := require.New(t)
		f := newMessageServiceFixture(t, nil)

		f.groupRepo.EXPECT().Get("g1").Return(group, nil)
		f.repo.EXPECT().Store(gomock.Any()).Return(nil)
		f.router.EXPECT().Deliver(domain.GroupRoom("g1"), gomock.Any())

		message, err := f.svc.SendGroup(context.Background(), "alice", "g1", "hi all")

		req.NoError(err)
		req.Equal("g1", message.GroupID)
		req.False(message.IsDirect())
	})

	t.Run("non-member fails Forbidden before persistence", func(t *testing.T) {
		req := require.New(t)
		f := newMessageServiceFixture(t, nil)

		f.groupRepo.EXPECT().Get("g1").Return(group, nil)

		_, err := f.svc.SendGroup(context.Background(), "mallory", "g1", "let me in")

		req.ErrorIs(err, apperrors.ErrForbidden)
	})

	t.Run("deleted group fails NotFound", func(t *testing.T) {
		req := require.New(t)
		f := newMessageServiceFixture(t, nil)

		f.groupRepo.EXPECT().Get("gone").Return(domain.Group{}, apperrors.ErrNotFound)

		_, err := f.svc.SendGroup(context.Background(), "alice", "gone", "anyone?")

		req.ErrorIs(err, apperrors.ErrNotFound)
	})

	t.Run("empty content fails before authorization", func(t *testing.T) {
		req := require.New(t)
		f := newMessageServiceFixture(t, nil)

		_, err := f.svc.SendGroup(context.Background(), "alice", "g1", "")

		req.ErrorIs(err, apperrors.ErrInvalidInput)
	})
}

func TestMessageService_MarkRead(t *testing.T) {
	t.Run("participant transition notifies both personal rooms", func(t *testing.T) {
		req := require.New(t)
		f := newMessageServiceFixture(t, nil)
		message := domain.NewDirectMessage("alice", "bob", "read me")
		read := message
		read.Read = true

		f.repo.EXPECT().Get(message.ID).Return(message, nil)
		f.repo.EXPECT().MarkRead(message.ID).Return(read, true, nil)
		f.router.EXPECT().Deliver(domain.PersonalRoom("alice"), event.MessageReadEvent{MessageID: message.ID})
		f.router.EXPECT().Deliver(domain.PersonalRoom("bob"), event.MessageReadEvent{MessageID: message.ID})

		req.NoError(f.svc.MarkRead(context.Background(), "bob", message.ID))
	})

	t.Run("repeat call succeeds without re-notifying", func(t *testing.T) {
		req := require.New(t)
		f := newMessageServiceFixture(t, nil)
		message := domain.NewDirectMessage("alice", "bob", "read me")
		read := message
		read.Read = true

		f.repo.EXPECT().Get(message.ID).Return(read, nil)
		f.repo.EXPECT().MarkRead(message.ID).Return(read, false, nil)
		// No Deliver expected

		req.NoError(f.svc.MarkRead(context.Background(), "bob", message.ID))
	})

	t.Run("stranger is Forbidden", func(t *testing.T) {
		req := require.New(t)
		f := newMessageServiceFixture(t, nil)
		message := domain.NewDirectMessage("alice", "bob", "private")

		f.repo.EXPECT().Get(message.ID).Return(message, nil)

		req.ErrorIs(f.svc.MarkRead(context.Background(), "mallory", message.ID), apperrors.ErrForbidden)
	})

	t.Run("unknown message is NotFound", func(t *testing.T) {
		req := require.New(t)
		f := newMessageServiceFixture(t, nil)
		id := uuid.New()

		f.repo.EXPECT().Get(id).Return(domain.Message{}, apperrors.ErrNotFound)

		req.ErrorIs(f.svc.MarkRead(context.Background(), "bob", id), apperrors.ErrNotFound)
	})

	t.Run("group message requires membership", func(t *testing.T) {
		req := require.New(t)
		f := newMessageServiceFixture(t, nil)
		message := domain.NewGroupMessage("alice", "g1", "for members only")
		group := domain.Group{ID: "g1", Members: []string{"alice", "bob"}, Admins: []string{"alice"}}

		f.repo.EXPECT().Get(message.ID).Return(message, nil).Times(2)
		f.groupRepo.EXPECT().Get("g1").Return(group, nil).Times(2)

		// A member transitions the flag
		read := message
		read.Read = true
		f.repo.EXPECT().MarkRead(message.ID).Return(read, true, nil)
		f.router.EXPECT().Deliver(domain.PersonalRoom("alice"), gomock.Any())
		f.router.EXPECT().Deliver(domain.PersonalRoom("bob"), gomock.Any())
		req.NoError(f.svc.MarkRead(context.Background(), "bob", message.ID))

		// A stranger does not
		req.ErrorIs(f.svc.MarkRead(context.Background(), "mallory", message.ID), apperrors.ErrForbidden)
	})
}

func TestMessageService_Typing(t *testing.T) {
	t.Run("indicator reaches both personal rooms", func(t *testing.T) {
		f := newMessageServiceFixture(t, nil)
		evt := event.TypingEvent{SenderID: "alice", IsTyping: true}

		f.router.EXPECT().Deliver(domain.PersonalRoom("bob"), evt)
		f.router.EXPECT().Deliver(domain.PersonalRoom("alice"), evt)

		f.svc.Typing("alice", "bob", true)
	})

	t.Run("missing receiver is a silent no-op", func(t *testing.T) {
		f := newMessageServiceFixture(t, nil)
		// No Deliver expected
		f.svc.Typing("alice", "", true)
	})
}

func TestMessageService_GroupHistory_Requires_Membership(t *testing.T) {
	req := require.New(t)
	f := newMessageServiceFixture(t, nil)
	group := domain.Group{ID: "g1", Members: []string{"alice"}, Admins: []string{"alice"}}

	f.groupRepo.EXPECT().Get("g1").Return(group, nil).Times(2)
	f.repo.EXPECT().ListGroup("g1").Return([]domain.Message{}, nil)

	_, err := f.svc.GroupHistory(context.Background(), "alice", "g1")
	req.NoError(err)

	_, err = f.svc.GroupHistory(context.Background(), "mallory", "g1")
	req.ErrorIs(err, apperrors.ErrForbidden)
}
