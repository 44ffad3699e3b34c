package domain

// Session is the transient binding between one live connection and an
// authenticated user, plus the rooms that connection has joined. It is owned
// by the registry and never persisted; all of its room subscriptions are
// removed atomically when the connection goes away.
type Session struct {
	ConnID string
	UserID string
	Rooms  map[RoomKey]struct{}
}

func NewSession(connID, userID string) *Session {
	return &Session{
		ConnID: connID,
		UserID: userID,
		Rooms:  make(map[RoomKey]struct{}),
	}
}
