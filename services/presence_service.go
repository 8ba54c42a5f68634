package services

import (
	"presence-lab/contract"
	"presence-lab/domain"
)

type IPresenceService interface {
	Connect(userID domain.UserID, roomID domain.RoomID, sink contract.EventSink)
	Disconnect(userID domain.UserID)
	StartTyping(roomID domain.RoomID, userID domain.UserID, displayName string) bool
	StopTyping(roomID domain.RoomID, userID domain.UserID) bool
	IsTyping(roomID domain.RoomID, userID domain.UserID) bool
	TypingUsers(roomID domain.RoomID) []domain.TypingSnapshot
	DropRoom(roomID domain.RoomID)
	Stats() domain.Stats
}

// PresenceService is the facade the session layer talks to. It couples
// the connection directory (registry) with the typing coordinator:
// a disconnect both releases the user's sinks and purges their typing
// entries everywhere.
type PresenceService struct {
	registry    contract.IRegistry
	coordinator contract.ICoordinator
}

func NewPresenceService(registry contract.IRegistry, coordinator contract.ICoordinator) *PresenceService {
	return &PresenceService{registry: registry, coordinator: coordinator}
}

func (s *PresenceService) Connect(userID domain.UserID, roomID domain.RoomID, sink contract.EventSink) {
	s.registry.Subscribe(userID, roomID, sink)
}

// Disconnect is called by the session layer when a connection drops.
func (s *PresenceService) Disconnect(userID domain.UserID) {
	s.registry.UnsubscribeAll(userID)
	s.coordinator.PurgeUser(userID)
}

func (s *PresenceService) StartTyping(roomID domain.RoomID, userID domain.UserID, displayName string) bool {
	return s.coordinator.Begin(roomID, userID, displayName)
}

func (s *PresenceService) StopTyping(roomID domain.RoomID, userID domain.UserID) bool {
	return s.coordinator.End(roomID, userID)
}

func (s *PresenceService) IsTyping(roomID domain.RoomID, userID domain.UserID) bool {
	return s.coordinator.IsTyping(roomID, userID)
}

func (s *PresenceService) TypingUsers(roomID domain.RoomID) []domain.TypingSnapshot {
	return s.coordinator.Query(roomID)
}

// DropRoom force-stops every typing entry of a deleted or archived room.
func (s *PresenceService) DropRoom(roomID domain.RoomID) {
	s.coordinator.PurgeRoom(roomID)
}

func (s *PresenceService) Stats() domain.Stats {
	return s.coordinator.Stats()
}
