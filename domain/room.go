package domain

import "fmt"

// RoomKind discriminates the two fan-out targets: a user's personal room and a
// group room.
type RoomKind int

const (
	RoomPersonal RoomKind = iota
	RoomGroup
)

// RoomKey identifies a fan-out target. It is a typed key rather than a
// formatted string so a user id can never collide with a group id.
type RoomKey struct {
	Kind RoomKind
	ID   string
}

// PersonalRoom is the room every device of a user subscribes to. Direct
// messages, typing notifications and read receipts are delivered there.
func PersonalRoom(userID string) RoomKey {
	return RoomKey{Kind: RoomPersonal, ID: userID}
}

// GroupRoom is the room shared by the live connections of a group's members.
func GroupRoom(groupID string) RoomKey {
	return RoomKey{Kind: RoomGroup, ID: groupID}
}

// String renders the key for logs and storage prefixes.
func (k RoomKey) String() string {
	if k.Kind == RoomGroup {
		return fmt.Sprintf("group:%s", k.ID)
	}
	return fmt.Sprintf("user:%s", k.ID)
}
