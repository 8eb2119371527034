package sfu

import (
	"context"
	"sync"

	"github.com/dkeye/Stage/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// RelayManager keeps one relay per producer.
type RelayManager struct {
	mu     sync.RWMutex
	relays map[domain.ProducerID]*Relay
}

func NewRelayManager() *RelayManager {
	return &RelayManager{
		relays: make(map[domain.ProducerID]*Relay),
	}
}

// StartRelay creates a new Relay for the given producer and starts its loop.
func (m *RelayManager) StartRelay(ctx context.Context, id domain.ProducerID, track *webrtc.TrackRemote) {
	logger := log.With().
		Str("module", "sfu").
		Str("producer_id", string(id)).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(id, track, cancel)

	m.mu.Lock()
	if old, ok := m.relays[id]; ok {
		logger.Info().Msg("replacing existing relay for producer")
		old.markAllDelete()
		if old.cancel != nil {
			old.cancel()
		}
	}
	m.relays[id] = relay
	m.mu.Unlock()

	logger.Info().Msg("starting relay loop")

	go relay.run(relayCtx, &logger)
}

// AddSubscriber attaches an OutTrack for consumer dst to the relay of src.
func (m *RelayManager) AddSubscriber(src domain.ProducerID, dst domain.ConsumerID, localTrack *webrtc.TrackLocalStaticRTP, paused bool) bool {
	m.mu.RLock()
	relay, ok := m.relays[src]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	relay.AddOutTrack(dst, NewOutTrack(localTrack, paused))
	return true
}

// SetSubscriberPaused mutes or unmutes the OutTrack of dst.
func (m *RelayManager) SetSubscriberPaused(src domain.ProducerID, dst domain.ConsumerID, paused bool) bool {
	ot, ok := m.lookup(src, dst)
	if !ok {
		return false
	}
	if paused {
		ot.MarkMuted()
	} else {
		ot.MarkOk()
	}
	return true
}

// MarkSubscriberDelete marks subscriber's OutTrack as TrackStateDelete.
func (m *RelayManager) MarkSubscriberDelete(src domain.ProducerID, dst domain.ConsumerID) {
	if ot, ok := m.lookup(src, dst); ok {
		ot.MarkDelete()
	}
}

func (m *RelayManager) lookup(src domain.ProducerID, dst domain.ConsumerID) (*OutTrack, bool) {
	m.mu.RLock()
	relay, ok := m.relays[src]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return relay.outTrack(dst)
}

// StopRelay stops a relay and removes it from the manager.
func (m *RelayManager) StopRelay(src domain.ProducerID) {
	m.mu.Lock()
	relay, ok := m.relays[src]
	if ok {
		delete(m.relays, src)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	relay.markAllDelete()
	if relay.cancel != nil {
		relay.cancel()
	}
}

// hasRelay reports whether a relay exists for the producer.
func (m *RelayManager) hasRelay(src domain.ProducerID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.relays[src]
	return ok
}
