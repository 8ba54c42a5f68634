package event

import (
	"time"

	"github.com/google/uuid"

	"presence-lab/domain"
)

type DomainEvent interface {
	RoomID() domain.RoomID
}

// UserTyping announces a change of one user's typing state to the rest
// of the room. Typing=false is emitted on explicit stop, on expiry and
// on disconnect cleanup; observers cannot tell these apart on purpose.
// The JSON shape is the wire payload delivered to clients.
type UserTyping struct {
	ID       uuid.UUID     `json:"-"`
	Room     domain.RoomID `json:"roomId"`
	User     domain.UserID `json:"userId"`
	UserName string        `json:"userName"`
	Typing   bool          `json:"isTyping"`
	At       time.Time     `json:"timestamp"`
}

func (e UserTyping) RoomID() domain.RoomID {
	return e.Room
}
