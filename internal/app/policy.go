package app

import "github.com/dkeye/Stage/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropNotification
	KickMember
)

// Policy decides what happens to a member whose send buffer is full.
type Policy interface {
	OnBackPressure(room core.RoomService, sid core.SessionID) BackpressureAction
}

// SimplePolicy kicks slow members.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(core.RoomService, core.SessionID) BackpressureAction {
	return KickMember
}

// LenientPolicy only drops the notification.
type LenientPolicy struct{}

func (LenientPolicy) OnBackPressure(core.RoomService, core.SessionID) BackpressureAction {
	return DropNotification
}
