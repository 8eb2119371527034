package sfu

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Stage/internal/domain"
	"github.com/dkeye/Stage/internal/metrics"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

type subscribers map[domain.ConsumerID]*OutTrack

// Relay copies packets of one producer to its consumers. The packet path
// reads an immutable subscriber snapshot; writers swap in a new one.
type Relay struct {
	Producer domain.ProducerID
	Src      *webrtc.TrackRemote

	mu     sync.Mutex
	subs   atomic.Pointer[subscribers]
	cancel context.CancelFunc
}

func NewRelay(producer domain.ProducerID, src *webrtc.TrackRemote, cancel context.CancelFunc) *Relay {
	r := &Relay{Producer: producer, Src: src, cancel: cancel}
	r.subs.Store(&subscribers{})
	return r
}

func (r *Relay) snapshot() subscribers { return *r.subs.Load() }

func (r *Relay) update(fn func(next subscribers)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := maps.Clone(r.snapshot())
	fn(next)
	r.subs.Store(&next)
}

// run forwards until ctx ends or the source track stops. Every out track
// is marked deleted on return.
func (r *Relay) run(ctx context.Context, logger *zerolog.Logger) {
	defer r.markAllDelete()
	for ctx.Err() == nil {
		pkt, _, err := r.Src.ReadRTP()
		if err != nil {
			if ctx.Err() == nil {
				logger.Info().Err(err).Msg("relay source ended")
			}
			return
		}
		r.forward(pkt, logger)
	}
	logger.Debug().Msg("relay canceled")
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	var dirty []domain.ConsumerID
	sent, failed := 0, 0
	for id, ot := range r.snapshot() {
		switch ot.GetState() {
		case TrackStateMuted:
			continue
		case TrackStateDelete:
			dirty = append(dirty, id)
			continue
		}
		if err := ot.Track.WriteRTP(pkt); err != nil {
			logger.Warn().Err(err).Str("consumer_id", string(id)).Msg("relay write failed, dropping consumer track")
			ot.MarkDelete()
			dirty = append(dirty, id)
			failed++
			continue
		}
		ot.packets.Add(1)
		sent++
	}
	if sent > 0 {
		metrics.RelayPackets.WithLabelValues("forwarded").Add(float64(sent))
	}
	if failed > 0 {
		metrics.RelayPackets.WithLabelValues("failed").Add(float64(failed))
	}
	if len(dirty) > 0 {
		r.prune(dirty)
	}
}

// prune removes tracks that are still marked deleted.
func (r *Relay) prune(ids []domain.ConsumerID) {
	r.update(func(next subscribers) {
		for _, id := range ids {
			if ot, ok := next[id]; ok && ot.GetState() == TrackStateDelete {
				delete(next, id)
			}
		}
	})
}

func (r *Relay) markAllDelete() {
	for _, ot := range r.snapshot() {
		ot.MarkDelete()
	}
}

func (r *Relay) AddOutTrack(dst domain.ConsumerID, ot *OutTrack) {
	r.update(func(next subscribers) { next[dst] = ot })
}

func (r *Relay) outTrack(dst domain.ConsumerID) (*OutTrack, bool) {
	ot, ok := r.snapshot()[dst]
	return ot, ok
}

func (r *Relay) outTrackCount() int { return len(r.snapshot()) }
