package services_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"presence-lab/domain"
	"presence-lab/mocks"
	"presence-lab/services"
)

func TestPresenceService_DisconnectPurgesEverywhere(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	registry := mocks.NewMockIRegistry(ctrl)
	coordinator := mocks.NewMockICoordinator(ctrl)

	// A disconnect must release the sinks AND the typing entries
	registry.EXPECT().
		UnsubscribeAll(domain.UserID("alice")).
		Return([]domain.RoomID{"roomA", "roomB"}).
		Times(1)
	coordinator.EXPECT().
		PurgeUser(domain.UserID("alice")).
		Times(1)

	service := services.NewPresenceService(registry, coordinator)
	service.Disconnect("alice")
}

func TestPresenceService_DelegatesTypingCalls(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	registry := mocks.NewMockIRegistry(ctrl)
	coordinator := mocks.NewMockICoordinator(ctrl)

	coordinator.EXPECT().
		Begin(domain.RoomID("room1"), domain.UserID("alice"), "Alice").
		Return(true).
		Times(1)
	coordinator.EXPECT().
		End(domain.RoomID("room1"), domain.UserID("alice")).
		Return(true).
		Times(1)
	coordinator.EXPECT().
		PurgeRoom(domain.RoomID("room1")).
		Times(1)

	service := services.NewPresenceService(registry, coordinator)

	req.True(service.StartTyping("room1", "alice", "Alice"))
	req.True(service.StopTyping("room1", "alice"))
	service.DropRoom("room1")
}

func TestPresenceService_ConnectRegistersTheSink(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	registry := mocks.NewMockIRegistry(ctrl)
	coordinator := mocks.NewMockICoordinator(ctrl)
	sink := mocks.NewMockEventSink(ctrl)

	registry.EXPECT().
		Subscribe(domain.UserID("alice"), domain.RoomID("room1"), sink).
		Times(1)

	service := services.NewPresenceService(registry, coordinator)
	service.Connect("alice", "room1", sink)
}
