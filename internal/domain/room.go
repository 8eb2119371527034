package domain

type RoomName string

// MaxRoomNameLen bounds room names accepted from clients.
const MaxRoomNameLen = 64

// Room is the metadata of a room; membership and the router live in core.
type Room struct {
	Name     RoomName
	RouterID string
}
