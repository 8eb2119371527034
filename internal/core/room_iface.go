package core

import (
	"github.com/dkeye/Stage/internal/domain"
)

// RoomService is the core-facing API of a room.
// It owns the membership set and the shared router handle.
type RoomService interface {
	Room() *domain.Room
	Router() Router
	MemberCount() int
	Members() []SessionID
	HasMember(sid SessionID) bool

	AddMember(sid SessionID)
	// RemoveMember returns the remaining member count.
	RemoveMember(sid SessionID) int
}

type RoomInfo struct {
	Name        domain.RoomName `json:"name"`
	RouterID    string          `json:"router_id"`
	MemberCount int             `json:"client_count"`
}
