// Package domain contains entities without logic, just meta-data.
package domain

import "errors"

const MaxDisplayNameLen = 36

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
)

type PeerID string

// Peer is one connected client participating in a room.
// The slices keep creation order.
type Peer struct {
	ID                     PeerID
	RoomName               RoomName
	DisplayName            string
	CapabilitiesNegotiated bool
	TransportIDs           []TransportID
	ProducerIDs            []ProducerID
	ConsumerIDs            []ConsumerID
}

func ValidateDisplayName(name string) error {
	if len(name) == 0 {
		return ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	return nil
}

// Clone returns a copy that shares no slices with p.
func (p Peer) Clone() Peer {
	p.TransportIDs = append([]TransportID(nil), p.TransportIDs...)
	p.ProducerIDs = append([]ProducerID(nil), p.ProducerIDs...)
	p.ConsumerIDs = append([]ConsumerID(nil), p.ConsumerIDs...)
	return p
}
