package services

import (
	"chatline/apperrors"
	"chatline/contract"
	"chatline/domain"
	"chatline/domain/event"
	"chatline/repositories"
	"context"
	"fmt"
	"log/slog"
	"sync"
)

type IGroupService interface {
	CreateGroup(ctx context.Context, creatorID, name, description, avatar string) (domain.Group, error)
	JoinGroup(ctx context.Context, groupID, userID string) (domain.Group, error)
	LeaveGroup(ctx context.Context, groupID, userID string) (domain.Group, error)
	AddMember(ctx context.Context, groupID, actingUserID, targetUserID string) (domain.Group, error)
	RemoveMember(ctx context.Context, groupID, actingUserID, targetUserID string) (domain.Group, error)
	DeleteGroup(ctx context.Context, groupID, actingUserID string) error
	GetGroup(ctx context.Context, groupID string) (domain.Group, error)
	ListGroups(ctx context.Context) ([]domain.Group, error)
	AuthorizeSend(ctx context.Context, groupID, senderID string) error
}

// GroupService is the group membership engine. Every mutation of one group is
// serialized behind a per-group lock so no interleaving can expose a state
// where admins ⊄ members or a live group has zero admins.
type GroupService struct {
	groups repositories.IGroupRepository
	router contract.Router
	log    *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewGroupService(log *slog.Logger, groups repositories.IGroupRepository, router contract.Router) *GroupService {
	return &GroupService{
		groups: groups,
		router: router,
		log:    log.With("component", "GroupService"),
		locks:  make(map[string]*sync.Mutex),
	}
}

// lockGroup returns the mutex serializing mutations of one group.
func (s *GroupService) lockGroup(groupID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[groupID]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[groupID] = l
	return l
}

func (s *GroupService) dropLock(groupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, groupID)
}

func (s *GroupService) CreateGroup(_ context.Context, creatorID, name, description, avatar string) (domain.Group, error) {
	if name == "" {
		return domain.Group{}, fmt.Errorf("%w: group name is required", apperrors.ErrInvalidInput)
	}
	group := domain.NewGroup(creatorID, name, description, avatar)
	if err := s.groups.Create(group); err != nil {
		return domain.Group{}, fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
	}
	s.log.Info("Group created", "groupId", group.ID, "creator", creatorID)
	return group, nil
}

func (s *GroupService) JoinGroup(_ context.Context, groupID, userID string) (domain.Group, error) {
	lock := s.lockGroup(groupID)
	lock.Lock()
	defer lock.Unlock()

	group, err := s.groups.Get(groupID)
	if err != nil {
		return domain.Group{}, err
	}
	if group.IsMember(userID) {
		return domain.Group{}, fmt.Errorf("%w: user %s", apperrors.ErrAlreadyMember, userID)
	}
	group.AddMember(userID)
	if err := s.groups.Update(group); err != nil {
		return domain.Group{}, fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
	}
	return group, nil
}

func (s *GroupService) LeaveGroup(_ context.Context, groupID, userID string) (domain.Group, error) {
	lock := s.lockGroup(groupID)
	lock.Lock()
	defer lock.Unlock()

	group, err := s.groups.Get(groupID)
	if err != nil {
		return domain.Group{}, err
	}
	if !group.IsMember(userID) {
		return domain.Group{}, fmt.Errorf("%w: user %s", apperrors.ErrNotMember, userID)
	}
	// The last admin cannot walk away from a living group.
	if group.SoleAdmin(userID) {
		return domain.Group{}, apperrors.ErrSoleAdminCannotLeave
	}
	group.RemoveMember(userID)
	if err := s.groups.Update(group); err != nil {
		return domain.Group{}, fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
	}
	return group, nil
}

func (s *GroupService) AddMember(_ context.Context, groupID, actingUserID, targetUserID string) (domain.Group, error) {
	lock := s.lockGroup(groupID)
	lock.Lock()
	defer lock.Unlock()

	group, err := s.groups.Get(groupID)
	if err != nil {
		return domain.Group{}, err
	}
	if !group.IsAdmin(actingUserID) {
		return domain.Group{}, fmt.Errorf("%w: only admins can add members", apperrors.ErrForbidden)
	}
	if group.IsMember(targetUserID) {
		return domain.Group{}, fmt.Errorf("%w: user %s", apperrors.ErrAlreadyMember, targetUserID)
	}
	group.AddMember(targetUserID)
	if err := s.groups.Update(group); err != nil {
		return domain.Group{}, fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
	}
	return group, nil
}

func (s *GroupService) RemoveMember(_ context.Context, groupID, actingUserID, targetUserID string) (domain.Group, error) {
	lock := s.lockGroup(groupID)
	lock.Lock()
	defer lock.Unlock()

	group, err := s.groups.Get(groupID)
	if err != nil {
		return domain.Group{}, err
	}
	if !group.IsAdmin(actingUserID) {
		return domain.Group{}, fmt.Errorf("%w: only admins can remove members", apperrors.ErrForbidden)
	}
	if !group.IsMember(targetUserID) {
		return domain.Group{}, fmt.Errorf("%w: user %s", apperrors.ErrNotMember, targetUserID)
	}
	group.RemoveMember(targetUserID)
	if err := s.groups.Update(group); err != nil {
		return domain.Group{}, fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
	}
	return group, nil
}

// DeleteGroup removes the group and evicts its room from every session. The
// router delivers a last group-deleted event before the eviction so
// subscribers learn why their subscription vanished.
func (s *GroupService) DeleteGroup(_ context.Context, groupID, actingUserID string) error {
	lock := s.lockGroup(groupID)
	lock.Lock()
	defer lock.Unlock()

	group, err := s.groups.Get(groupID)
	if err != nil {
		return err
	}
	if !group.IsAdmin(actingUserID) {
		return fmt.Errorf("%w: only admins can delete the group", apperrors.ErrForbidden)
	}
	if err := s.groups.Delete(groupID); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
	}
	s.router.EvictRoom(domain.GroupRoom(groupID), event.GroupDeletedEvent{GroupID: groupID})
	s.dropLock(groupID)
	s.log.Info("Group deleted", "groupId", groupID, "by", actingUserID)
	return nil
}

func (s *GroupService) GetGroup(_ context.Context, groupID string) (domain.Group, error) {
	return s.groups.Get(groupID)
}

func (s *GroupService) ListGroups(_ context.Context) ([]domain.Group, error) {
	return s.groups.List()
}

// AuthorizeSend gates group sends: the sender must be a member of a group that
// still exists.
func (s *GroupService) AuthorizeSend(_ context.Context, groupID, senderID string) error {
	group, err := s.groups.Get(groupID)
	if err != nil {
		return err
	}
	if !group.IsMember(senderID) {
		return fmt.Errorf("%w: not a group member", apperrors.ErrForbidden)
	}
	return nil
}
