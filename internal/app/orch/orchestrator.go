package orch

import (
	"context"

	"github.com/dkeye/Stage/internal/app"
	"github.com/dkeye/Stage/internal/core"
	"github.com/dkeye/Stage/internal/domain"
	"github.com/dkeye/Stage/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Orchestrator binds signaling sessions to the topology store, the room
// manager and the notification fan-out.
type Orchestrator struct {
	Topology *app.Topology
	Rooms    *app.RoomManager
	Policy   app.Policy
	Notifier core.Notifier
}

func (o *Orchestrator) NewSession(parent context.Context, sid core.SessionID) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		sid:    sid,
		o:      o,
		ctx:    ctx,
		cancel: cancel,
		state:  core.StateConnected,
	}
}

// EvictRoom kicks every member of the room. Their sessions close through
// the regular disconnect path.
func (o *Orchestrator) EvictRoom(name domain.RoomName) int {
	room, ok := o.Rooms.GetRoom(name)
	if !ok {
		return 0
	}
	members := room.Members()
	if o.Notifier != nil {
		for _, sid := range members {
			o.Notifier.Kick(sid)
		}
	}
	log.Info().Str("module", "orch").Str("room", string(name)).Int("members", len(members)).Msg("room evicted")
	return len(members)
}

func (o *Orchestrator) Stats() metrics.TopologyStats {
	s := o.Topology.Stats()
	return metrics.TopologyStats{
		Rooms:      o.Rooms.Count(),
		Peers:      s.Peers,
		Transports: s.Transports,
		Producers:  s.Producers,
		Consumers:  s.Consumers,
	}
}
