package domain

// RoomStats describes the typing activity of a single room.
type RoomStats struct {
	Count   int      `json:"count"`
	UserIDs []UserID `json:"userIds"`
}

// Stats is a point-in-time diagnostic snapshot of the whole coordinator.
type Stats struct {
	TotalRooms       int                  `json:"totalRooms"`
	TotalTypingUsers int                  `json:"totalTypingUsers"`
	Rooms            map[RoomID]RoomStats `json:"perRoomBreakdown"`
}
