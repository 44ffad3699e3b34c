package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoomKey_Is_Typed_Not_Concatenated(t *testing.T) {
	req := require.New(t)

	// Same id, different kinds: the keys must never collide
	personal := PersonalRoom("42")
	group := GroupRoom("42")
	req.NotEqual(personal, group)

	// Keys are comparable map keys
	rooms := map[RoomKey]bool{personal: true}
	req.True(rooms[PersonalRoom("42")])
	req.False(rooms[group])
}

func TestRoomKey_String(t *testing.T) {
	req := require.New(t)
	req.Equal("user:alice", PersonalRoom("alice").String())
	req.Equal("group:g1", GroupRoom("g1").String())
}

func TestMessage_Room_Targets(t *testing.T) {
	req := require.New(t)

	direct := NewDirectMessage("alice", "bob", "hi")
	req.True(direct.IsDirect())
	req.Equal(PersonalRoom("bob"), direct.Room())

	grouped := NewGroupMessage("alice", "g1", "hi all")
	req.False(grouped.IsDirect())
	req.Equal(GroupRoom("g1"), grouped.Room())
}
