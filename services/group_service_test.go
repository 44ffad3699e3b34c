package services

import (
	"chatline/apperrors"
	"chatline/domain"
	"chatline/domain/event"
	"chatline/mocks"
	"chatline/repositories"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func groupFixture(members, admins []string) domain.Group {
	return domain.Group{
		ID:      "g1",
		Name:    "gophers",
		Members: members,
		Admins:  admins,
	}
}

func TestGroupService_CreateGroup(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repo := mocks.NewMockIGroupRepository(ctrl)
	router := mocks.NewMockRouter(ctrl)
	svc := NewGroupService(slog.Default(), repo, router)

	t.Run("creator becomes sole member and admin", func(t *testing.T) {
		req := require.New(t)
		repo.EXPECT().Create(gomock.Any()).Return(nil).Times(1)

		group, err := svc.CreateGroup(context.Background(), "alice", "gophers", "", "")

		req.NoError(err)
		req.Equal([]string{"alice"}, group.Members)
		req.Equal([]string{"alice"}, group.Admins)
	})

	t.Run("empty name is rejected", func(t *testing.T) {
		req := require.New(t)

		_, err := svc.CreateGroup(context.Background(), "alice", "", "", "")

		req.ErrorIs(err, apperrors.ErrInvalidInput)
	})
}

func TestGroupService_JoinGroup(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repo := mocks.NewMockIGroupRepository(ctrl)
	router := mocks.NewMockRouter(ctrl)
	svc := NewGroupService(slog.Default(), repo, router)

	t.Run("new member is appended", func(t *testing.T) {
		req := require.New(t)
		repo.EXPECT().Get("g1").Return(groupFixture([]string{"alice"}, []string{"alice"}), nil)
		repo.EXPECT().Update(gomock.Any()).DoAndReturn(func(g domain.Group) error {
			req.Equal([]string{"alice", "bob"}, g.Members)
			req.Equal([]string{"alice"}, g.Admins)
			return nil
		})

		group, err := svc.JoinGroup(context.Background(), "g1", "bob")

		req.NoError(err)
		req.True(group.IsMember("bob"))
		req.False(group.IsAdmin("bob"))
	})

	t.Run("joining twice fails AlreadyMember", func(t *testing.T) {
		req := require.New(t)
		repo.EXPECT().Get("g1").Return(groupFixture([]string{"alice", "bob"}, []string{"alice"}), nil)

		_, err := svc.JoinGroup(context.Background(), "g1", "bob")

		req.ErrorIs(err, apperrors.ErrAlreadyMember)
	})

	t.Run("unknown group fails NotFound", func(t *testing.T) {
		req := require.New(t)
		repo.EXPECT().Get("ghost").Return(domain.Group{}, apperrors.ErrNotFound)

		_, err := svc.JoinGroup(context.Background(), "ghost", "bob")

		req.ErrorIs(err, apperrors.ErrNotFound)
	})
}

func TestGroupService_LeaveGroup(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repo := mocks.NewMockIGroupRepository(ctrl)
	router := mocks.NewMockRouter(ctrl)
	svc := NewGroupService(slog.Default(), repo, router)

	t.Run("sole admin cannot leave", func(t *testing.T) {
		req := require.New(t)
		repo.EXPECT().Get("g1").Return(groupFixture([]string{"alice", "bob"}, []string{"alice"}), nil)

		// No Update expected: state must stay unchanged
		_, err := svc.LeaveGroup(context.Background(), "g1", "alice")

		req.ErrorIs(err, apperrors.ErrSoleAdminCannotLeave)
	})

	t.Run("admin leaves when another admin remains", func(t *testing.T) {
		req := require.New(t)
		repo.EXPECT().Get("g1").Return(groupFixture([]string{"alice", "bob"}, []string{"alice", "bob"}), nil)
		repo.EXPECT().Update(gomock.Any()).DoAndReturn(func(g domain.Group) error {
			req.Equal([]string{"bob"}, g.Members)
			req.Equal([]string{"bob"}, g.Admins)
			return nil
		})

		_, err := svc.LeaveGroup(context.Background(), "g1", "alice")

		req.NoError(err)
	})

	t.Run("non-member fails NotMember", func(t *testing.T) {
		req := require.New(t)
		repo.EXPECT().Get("g1").Return(groupFixture([]string{"alice"}, []string{"alice"}), nil)

		_, err := svc.LeaveGroup(context.Background(), "g1", "mallory")

		req.ErrorIs(err, apperrors.ErrNotMember)
	})
}

func TestGroupService_AddMember(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repo := mocks.NewMockIGroupRepository(ctrl)
	router := mocks.NewMockRouter(ctrl)
	svc := NewGroupService(slog.Default(), repo, router)

	t.Run("non-admin cannot add", func(t *testing.T) {
		req := require.New(t)
		repo.EXPECT().Get("g1").Return(groupFixture([]string{"alice", "bob"}, []string{"alice"}), nil)

		_, err := svc.AddMember(context.Background(), "g1", "bob", "clara")

		req.ErrorIs(err, apperrors.ErrForbidden)
	})

	t.Run("admin adds a new member", func(t *testing.T) {
		req := require.New(t)
		repo.EXPECT().Get("g1").Return(groupFixture([]string{"alice"}, []string{"alice"}), nil)
		repo.EXPECT().Update(gomock.Any()).Return(nil)

		group, err := svc.AddMember(context.Background(), "g1", "alice", "bob")

		req.NoError(err)
		req.True(group.IsMember("bob"))
	})

	t.Run("existing member fails AlreadyMember", func(t *testing.T) {
		req := require.New(t)
		repo.EXPECT().Get("g1").Return(groupFixture([]string{"alice", "bob"}, []string{"alice"}), nil)

		_, err := svc.AddMember(context.Background(), "g1", "alice", "bob")

		req.ErrorIs(err, apperrors.ErrAlreadyMember)
	})
}

func TestGroupService_RemoveMember_Strips_Admin_Role(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repo := mocks.NewMockIGroupRepository(ctrl)
	router := mocks.NewMockRouter(ctrl)
	svc := NewGroupService(slog.Default(), repo, router)
	req := require.New(t)

	// Given bob is both member and admin
	repo.EXPECT().Get("g1").Return(groupFixture([]string{"alice", "bob"}, []string{"alice", "bob"}), nil)
	repo.EXPECT().Update(gomock.Any()).DoAndReturn(func(g domain.Group) error {
		// Removal keeps admins a subset of members
		req.NotContains(g.Members, "bob")
		req.NotContains(g.Admins, "bob")
		return nil
	})

	_, err := svc.RemoveMember(context.Background(), "g1", "alice", "bob")

	req.NoError(err)
}

func TestGroupService_DeleteGroup(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repo := mocks.NewMockIGroupRepository(ctrl)
	router := mocks.NewMockRouter(ctrl)
	svc := NewGroupService(slog.Default(), repo, router)

	t.Run("admin deletes and the room is evicted", func(t *testing.T) {
		req := require.New(t)
		repo.EXPECT().Get("g1").Return(groupFixture([]string{"alice", "bob"}, []string{"alice"}), nil)
		repo.EXPECT().Delete("g1").Return(nil)
		router.EXPECT().
			EvictRoom(domain.GroupRoom("g1"), event.GroupDeletedEvent{GroupID: "g1"}).
			Times(1)

		req.NoError(svc.DeleteGroup(context.Background(), "g1", "alice"))
	})

	t.Run("non-admin cannot delete", func(t *testing.T) {
		req := require.New(t)
		repo.EXPECT().Get("g1").Return(groupFixture([]string{"alice", "bob"}, []string{"alice"}), nil)

		req.ErrorIs(svc.DeleteGroup(context.Background(), "g1", "bob"), apperrors.ErrForbidden)
	})
}

func TestGroupService_AuthorizeSend(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repo := mocks.NewMockIGroupRepository(ctrl)
	router := mocks.NewMockRouter(ctrl)
	svc := NewGroupService(slog.Default(), repo, router)

	t.Run("member may send", func(t *testing.T) {
		req := require.New(t)
		repo.EXPECT().Get("g1").Return(groupFixture([]string{"alice"}, []string{"alice"}), nil)
		req.NoError(svc.AuthorizeSend(context.Background(), "g1", "alice"))
	})

	t.Run("non-member is Forbidden", func(t *testing.T) {
		req := require.New(t)
		repo.EXPECT().Get("g1").Return(groupFixture([]string{"alice"}, []string{"alice"}), nil)
		req.ErrorIs(svc.AuthorizeSend(context.Background(), "g1", "mallory"), apperrors.ErrForbidden)
	})

	t.Run("deleted group is NotFound", func(t *testing.T) {
		req := require.New(t)
		repo.EXPECT().Get("gone").Return(domain.Group{}, apperrors.ErrNotFound)
		req.ErrorIs(svc.AuthorizeSend(context.Background(), "gone", "alice"), apperrors.ErrNotFound)
	})
}

// Concurrent joins against a real store: the per-group lock must serialize
// read-modify-write cycles so no join is lost.
func TestGroupService_Concurrent_Joins_Are_Serialized(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repo := repositories.NewGroupRepository(db)
	svc := NewGroupService(slog.Default(), repo, mocks.NewMockRouter(ctrl))

	group, err := svc.CreateGroup(context.Background(), "creator", "busy", "", "")
	req.NoError(err)

	const joiners = 20
	var wg sync.WaitGroup
	errs := make(chan error, joiners)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.JoinGroup(context.Background(), group.ID, string(rune('a'+n))+"-user")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	final, err := svc.GetGroup(context.Background(), group.ID)
	req.NoError(err)
	req.Len(final.Members, joiners+1)
	req.Equal([]string{"creator"}, final.Admins)
}
