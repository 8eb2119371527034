package orch

import (
	"github.com/dkeye/Stage/internal/app"
	"github.com/dkeye/Stage/internal/core"
	"github.com/dkeye/Stage/internal/domain"
	"github.com/dkeye/Stage/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

type NewProducerData struct {
	ProducerID domain.ProducerID `json:"producerId"`
	PeerID     core.SessionID    `json:"peerId"`
	Kind       domain.MediaKind  `json:"kind"`
}

type ProducerClosedData struct {
	ProducerID domain.ProducerID `json:"producerId"`
}

// announceProducer tells every other member of the room about p.
func (o *Orchestrator) announceProducer(room core.RoomService, p domain.Producer) {
	to := make([]core.SessionID, 0, room.MemberCount())
	for _, sid := range room.Members() {
		if sid != p.Owner {
			to = append(to, sid)
		}
	}
	o.notify(room, to, core.Notification{
		Method: core.MethodNewProducer,
		Data:   NewProducerData{ProducerID: p.ID, PeerID: p.Owner, Kind: p.Kind},
	})
}

// teardown emits producer-closed for every removed producer to the peers
// that consumed it, then releases the engine handles.
func (o *Orchestrator) teardown(room core.RoomService, origin core.SessionID, r app.Removal) {
	for _, cp := range r.Producers {
		to := make([]core.SessionID, 0, len(cp.ConsumerOwners))
		for _, sid := range cp.ConsumerOwners {
			if sid != origin && sid != cp.Producer.Owner {
				to = append(to, sid)
			}
		}
		o.notify(room, to, core.Notification{
			Method: core.MethodProducerClosed,
			Data:   ProducerClosedData{ProducerID: cp.Producer.ID},
		})
	}
	release(r)
}

func (o *Orchestrator) notify(room core.RoomService, to []core.SessionID, n core.Notification) {
	if o.Notifier == nil || len(to) == 0 {
		return
	}
	res := o.Notifier.Notify(to, n)
	metrics.Notifications.WithLabelValues(n.Method, "sent").Add(float64(res.SendTo))
	metrics.Notifications.WithLabelValues(n.Method, "dropped").Add(float64(len(res.Dropped)))
	log.Debug().Str("module", "orch").Str("method", n.Method).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("fan-out result")
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("sid", string(slow)).Str("method", n.Method).Msg("kicking slow member")
			o.Notifier.Kick(slow)
		case app.DropNotification, app.NoAction:
		}
	}
}

// release closes handles consumers first, then producers, then transports.
// Failures and panics are logged; teardown never fails.
func release(r app.Removal) {
	phase(r.Consumers, func(c core.ConsumerHandle) { closeQuietly("consumer", string(c.ID()), c.Close) })
	phase(r.Producers, func(p app.ClosedProducer) { closeQuietly("producer", string(p.Producer.ID), p.Handle.Close) })
	phase(r.Transports, func(t core.TransportHandle) { closeQuietly("transport", string(t.ID()), t.Close) })
}

func phase[T any](items []T, fn func(T)) {
	var wg conc.WaitGroup
	for _, it := range items {
		wg.Go(func() { fn(it) })
	}
	if rec := wg.WaitAndRecover(); rec != nil {
		log.Error().Err(rec.AsError()).Str("module", "orch").Msg("engine release panicked")
	}
}

func closeQuietly(kind, id string, closeFn func() error) {
	if err := closeFn(); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("kind", kind).Str("id", id).Msg("engine release failed")
	}
}
