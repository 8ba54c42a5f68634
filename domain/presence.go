// Package domain contains core concepts of the presence system.
// This file defines typing entries and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

type RoomID string

type UserID string

// TypingEntry is the record of one user actively typing in one room.
// Generation is bumped on every refresh so that a timer fire belonging
// to a superseded arming can be detected and discarded.
type TypingEntry struct {
	UserID      UserID
	DisplayName string
	StartedAt   time.Time
	Generation  uint64
}

// TypingSnapshot is a read-only copy of a TypingEntry handed out by queries.
type TypingSnapshot struct {
	UserID      UserID    `json:"userId"`
	DisplayName string    `json:"displayName"`
	StartedAt   time.Time `json:"startedAt"`
}

func (e TypingEntry) Snapshot() TypingSnapshot {
	return TypingSnapshot{
		UserID:      e.UserID,
		DisplayName: e.DisplayName,
		StartedAt:   e.StartedAt,
	}
}
