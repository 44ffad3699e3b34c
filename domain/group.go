package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Group is a named conversation with explicit membership. Admins are always a
// subset of members, and a group never exists without at least one admin; the
// membership engine enforces both before any mutation is persisted.
type Group struct {
	ID          string
	Name        string
	Description string
	Avatar      string
	Members     []string
	Admins      []string
	CreatedAt   time.Time
}

// NewGroup creates a group whose creator is the sole member and sole admin.
func NewGroup(creatorID, name, description, avatar string) Group {
	return Group{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Avatar:      avatar,
		Members:     []string{creatorID},
		Admins:      []string{creatorID},
		CreatedAt:   time.Now().UTC(),
	}
}

func (g Group) IsMember(userID string) bool {
	return lo.Contains(g.Members, userID)
}

func (g Group) IsAdmin(userID string) bool {
	return lo.Contains(g.Admins, userID)
}

// AddMember appends userID to the member set. Adding an existing member is the
// caller's error to detect; the set itself never duplicates.
func (g *Group) AddMember(userID string) {
	if !g.IsMember(userID) {
		g.Members = append(g.Members, userID)
	}
}

// RemoveMember drops userID from both members and admins, keeping
// admins ⊆ members in a single step.
func (g *Group) RemoveMember(userID string) {
	g.Members = lo.Without(g.Members, userID)
	g.Admins = lo.Without(g.Admins, userID)
}

// SoleAdmin reports whether userID is the only admin left.
func (g Group) SoleAdmin(userID string) bool {
	return len(g.Admins) == 1 && g.Admins[0] == userID
}
