package app

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dkeye/Stage/internal/core"
	"github.com/dkeye/Stage/internal/domain"
	"github.com/rs/zerolog/log"
)

type transportEntry struct {
	meta   domain.Transport
	handle core.TransportHandle
}

type producerEntry struct {
	meta      domain.Producer
	handle    core.ProducerHandle
	seq       uint64
	consumers []domain.ConsumerID
}

type consumerEntry struct {
	meta   domain.Consumer
	handle core.ConsumerHandle
}

// ClosedProducer is a producer torn down by a removal, together with the
// peers that held consumers of it.
type ClosedProducer struct {
	Producer       domain.Producer
	Handle         core.ProducerHandle
	ConsumerOwners []core.SessionID
}

// Removal is everything a single atomic removal took out of the store.
// The caller owns releasing the handles.
type Removal struct {
	Peer       *domain.Peer
	Transports []core.TransportHandle
	Producers  []ClosedProducer
	Consumers  []core.ConsumerHandle
}

func (r Removal) Empty() bool {
	return r.Peer == nil && len(r.Transports) == 0 && len(r.Producers) == 0 && len(r.Consumers) == 0
}

type Stats struct {
	Peers      int
	Transports int
	Producers  int
	Consumers  int
}

// Topology is the single source of truth for peers, transports, producers
// and consumers. Every method is atomic with respect to the others.
type Topology struct {
	mu            sync.RWMutex
	seq           uint64
	peers         map[core.SessionID]*domain.Peer
	transports    map[domain.TransportID]*transportEntry
	producers     map[domain.ProducerID]*producerEntry
	consumers     map[domain.ConsumerID]*consumerEntry
	roomProducers map[domain.RoomName]map[domain.ProducerID]*producerEntry
}

func NewTopology() *Topology {
	return &Topology{
		peers:         make(map[core.SessionID]*domain.Peer),
		transports:    make(map[domain.TransportID]*transportEntry),
		producers:     make(map[domain.ProducerID]*producerEntry),
		consumers:     make(map[domain.ConsumerID]*consumerEntry),
		roomProducers: make(map[domain.RoomName]map[domain.ProducerID]*producerEntry),
	}
}

func errPeerGone(sid core.SessionID) error {
	return fmt.Errorf("%w: peer %s is gone", core.ErrInvalidState, sid)
}

func (t *Topology) AddPeer(p domain.Peer) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.peers[p.ID]; ok {
		return fmt.Errorf("%w: peer %s already registered", core.ErrInvalidState, p.ID)
	}
	cp := p.Clone()
	t.peers[p.ID] = &cp
	log.Info().Str("module", "app.topology").Str("sid", string(p.ID)).Str("room", string(p.RoomName)).Msg("peer added")
	return nil
}

func (t *Topology) Peer(sid core.SessionID) (domain.Peer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[sid]
	if !ok {
		return domain.Peer{}, false
	}
	return p.Clone(), true
}

// AddTransport commits a transport created by the engine. It fails if the
// owner is gone, so the caller must then release the handle itself.
func (t *Topology) AddTransport(meta domain.Transport, h core.TransportHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[meta.Owner]
	if !ok {
		return errPeerGone(meta.Owner)
	}
	if p.RoomName != meta.RoomName {
		return fmt.Errorf("%w: transport room %s differs from peer room %s", core.ErrInvalidState, meta.RoomName, p.RoomName)
	}
	if meta.Direction == domain.DirectionSend && t.hasSendTransportLocked(p) {
		return fmt.Errorf("%w: peer already has a send transport", core.ErrInvalidState)
	}
	meta.Connected = false
	t.transports[meta.ID] = &transportEntry{meta: meta, handle: h}
	p.TransportIDs = append(p.TransportIDs, meta.ID)
	log.Info().Str("module", "app.topology").Str("sid", string(meta.Owner)).Str("transport_id", string(meta.ID)).Str("direction", string(meta.Direction)).Msg("transport added")
	return nil
}

func (t *Topology) hasSendTransportLocked(p *domain.Peer) bool {
	for _, id := range p.TransportIDs {
		if e, ok := t.transports[id]; ok && e.meta.Direction == domain.DirectionSend {
			return true
		}
	}
	return false
}

func (t *Topology) HasSendTransport(sid core.SessionID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[sid]
	if !ok {
		return false
	}
	return t.hasSendTransportLocked(p)
}

// Transport returns a transport owned by sid.
func (t *Topology) Transport(sid core.SessionID, id domain.TransportID) (domain.Transport, core.TransportHandle, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.transports[id]
	if !ok {
		return domain.Transport{}, nil, fmt.Errorf("%w: transport %s", core.ErrNotFound, id)
	}
	if e.meta.Owner != sid {
		return domain.Transport{}, nil, fmt.Errorf("%w: transport %s", core.ErrNotAuthorized, id)
	}
	return e.meta, e.handle, nil
}

// MarkConnected flips connected exactly once.
func (t *Topology) MarkConnected(id domain.TransportID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.transports[id]
	if !ok {
		return fmt.Errorf("%w: transport %s", core.ErrNotFound, id)
	}
	if e.meta.Connected {
		return fmt.Errorf("%w: transport %s", core.ErrAlreadyConnected, id)
	}
	e.meta.Connected = true
	log.Info().Str("module", "app.topology").Str("transport_id", string(id)).Msg("transport connected")
	return nil
}

func (t *Topology) TransportsOfPeer(sid core.SessionID) []domain.Transport {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[sid]
	if !ok {
		return nil
	}
	out := make([]domain.Transport, 0, len(p.TransportIDs))
	for _, id := range p.TransportIDs {
		if e, ok := t.transports[id]; ok {
			out = append(out, e.meta)
		}
	}
	return out
}

func (t *Topology) AddProducer(meta domain.Producer, h core.ProducerHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[meta.Owner]
	if !ok {
		return errPeerGone(meta.Owner)
	}
	tr, ok := t.transports[meta.TransportID]
	if !ok || tr.meta.Owner != meta.Owner {
		return fmt.Errorf("%w: transport %s", core.ErrNotFound, meta.TransportID)
	}
	meta.RoomName = p.RoomName
	t.seq++
	e := &producerEntry{meta: meta, handle: h, seq: t.seq}
	t.producers[meta.ID] = e
	byRoom, ok := t.roomProducers[meta.RoomName]
	if !ok {
		byRoom = make(map[domain.ProducerID]*producerEntry)
		t.roomProducers[meta.RoomName] = byRoom
	}
	byRoom[meta.ID] = e
	p.ProducerIDs = append(p.ProducerIDs, meta.ID)
	log.Info().Str("module", "app.topology").Str("sid", string(meta.Owner)).Str("producer_id", string(meta.ID)).Str("kind", string(meta.Kind)).Msg("producer added")
	return nil
}

// Producer looks a producer up regardless of owner.
func (t *Topology) Producer(id domain.ProducerID) (domain.Producer, core.ProducerHandle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.producers[id]
	if !ok {
		return domain.Producer{}, nil, false
	}
	return e.meta, e.handle, true
}

// ProducersInRoomExcludingPeer lists producers of room not owned by sid,
// oldest first.
func (t *Topology) ProducersInRoomExcludingPeer(room domain.RoomName, sid core.SessionID) []domain.ProducerID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entries := make([]*producerEntry, 0, len(t.roomProducers[room]))
	for _, e := range t.roomProducers[room] {
		if e.meta.Owner != sid {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]domain.ProducerID, len(entries))
	for i, e := range entries {
		out[i] = e.meta.ID
	}
	return out
}

func (t *Topology) ProducerCount(room domain.RoomName) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.roomProducers[room])
}

func (t *Topology) AddConsumer(meta domain.Consumer, h core.ConsumerHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[meta.Owner]
	if !ok {
		return errPeerGone(meta.Owner)
	}
	tr, ok := t.transports[meta.TransportID]
	if !ok || tr.meta.Owner != meta.Owner {
		return fmt.Errorf("%w: transport %s", core.ErrNotFound, meta.TransportID)
	}
	src, ok := t.producers[meta.SourceProducerID]
	if !ok {
		return fmt.Errorf("%w: producer %s", core.ErrNotFound, meta.SourceProducerID)
	}
	meta.RoomName = p.RoomName
	t.consumers[meta.ID] = &consumerEntry{meta: meta, handle: h}
	src.consumers = append(src.consumers, meta.ID)
	p.ConsumerIDs = append(p.ConsumerIDs, meta.ID)
	log.Info().Str("module", "app.topology").Str("sid", string(meta.Owner)).Str("consumer_id", string(meta.ID)).Str("producer_id", string(meta.SourceProducerID)).Msg("consumer added")
	return nil
}

func (t *Topology) Consumer(sid core.SessionID, id domain.ConsumerID) (domain.Consumer, core.ConsumerHandle, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.consumers[id]
	if !ok {
		return domain.Consumer{}, nil, fmt.Errorf("%w: consumer %s", core.ErrNotFound, id)
	}
	if e.meta.Owner != sid {
		return domain.Consumer{}, nil, fmt.Errorf("%w: consumer %s", core.ErrNotAuthorized, id)
	}
	return e.meta, e.handle, nil
}

func (t *Topology) SetConsumerPaused(id domain.ConsumerID, paused bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.consumers[id]
	if !ok {
		return fmt.Errorf("%w: consumer %s", core.ErrNotFound, id)
	}
	e.meta.Paused = paused
	return nil
}

// RemovePeer atomically removes sid and everything it owns. Consumers of
// the peer's producers held by other peers are removed as well.
func (t *Topology) RemovePeer(sid core.SessionID) (Removal, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[sid]
	if !ok {
		return Removal{}, false
	}
	var r Removal
	for _, id := range append([]domain.TransportID(nil), p.TransportIDs...) {
		t.removeTransportLocked(id, &r)
	}
	// Entities whose transport was already gone.
	for _, id := range append([]domain.ProducerID(nil), p.ProducerIDs...) {
		t.removeProducerLocked(id, &r)
	}
	for _, id := range append([]domain.ConsumerID(nil), p.ConsumerIDs...) {
		t.removeConsumerLocked(id, &r)
	}
	delete(t.peers, sid)
	removed := p.Clone()
	r.Peer = &removed
	log.Info().
		Str("module", "app.topology").
		Str("sid", string(sid)).
		Int("transports", len(r.Transports)).
		Int("producers", len(r.Producers)).
		Int("consumers", len(r.Consumers)).
		Msg("peer removed")
	return r, true
}

func (t *Topology) RemoveTransport(sid core.SessionID, id domain.TransportID) (Removal, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.transports[id]
	if !ok {
		return Removal{}, fmt.Errorf("%w: transport %s", core.ErrNotFound, id)
	}
	if e.meta.Owner != sid {
		return Removal{}, fmt.Errorf("%w: transport %s", core.ErrNotAuthorized, id)
	}
	var r Removal
	t.removeTransportLocked(id, &r)
	return r, nil
}

func (t *Topology) RemoveProducer(sid core.SessionID, id domain.ProducerID) (Removal, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.producers[id]
	if !ok {
		return Removal{}, fmt.Errorf("%w: producer %s", core.ErrNotFound, id)
	}
	if e.meta.Owner != sid {
		return Removal{}, fmt.Errorf("%w: producer %s", core.ErrNotAuthorized, id)
	}
	var r Removal
	t.removeProducerLocked(id, &r)
	return r, nil
}

func (t *Topology) removeTransportLocked(id domain.TransportID, r *Removal) {
	e, ok := t.transports[id]
	if !ok {
		return
	}
	if p, ok := t.peers[e.meta.Owner]; ok {
		for _, pid := range append([]domain.ProducerID(nil), p.ProducerIDs...) {
			if pe, ok := t.producers[pid]; ok && pe.meta.TransportID == id {
				t.removeProducerLocked(pid, r)
			}
		}
		for _, cid := range append([]domain.ConsumerID(nil), p.ConsumerIDs...) {
			if ce, ok := t.consumers[cid]; ok && ce.meta.TransportID == id {
				t.removeConsumerLocked(cid, r)
			}
		}
		p.TransportIDs = removeID(p.TransportIDs, id)
	}
	delete(t.transports, id)
	r.Transports = append(r.Transports, e.handle)
}

func (t *Topology) removeProducerLocked(id domain.ProducerID, r *Removal) {
	e, ok := t.producers[id]
	if !ok {
		return
	}
	closed := ClosedProducer{Producer: e.meta, Handle: e.handle}
	seen := make(map[core.SessionID]bool)
	for _, cid := range append([]domain.ConsumerID(nil), e.consumers...) {
		ce, ok := t.consumers[cid]
		if !ok {
			continue
		}
		if owner := ce.meta.Owner; !seen[owner] {
			seen[owner] = true
			closed.ConsumerOwners = append(closed.ConsumerOwners, owner)
		}
		t.removeConsumerLocked(cid, r)
	}
	if p, ok := t.peers[e.meta.Owner]; ok {
		p.ProducerIDs = removeID(p.ProducerIDs, id)
	}
	if byRoom, ok := t.roomProducers[e.meta.RoomName]; ok {
		delete(byRoom, id)
		if len(byRoom) == 0 {
			delete(t.roomProducers, e.meta.RoomName)
		}
	}
	delete(t.producers, id)
	r.Producers = append(r.Producers, closed)
}

func (t *Topology) removeConsumerLocked(id domain.ConsumerID, r *Removal) {
	e, ok := t.consumers[id]
	if !ok {
		return
	}
	if p, ok := t.peers[e.meta.Owner]; ok {
		p.ConsumerIDs = removeID(p.ConsumerIDs, id)
	}
	if src, ok := t.producers[e.meta.SourceProducerID]; ok {
		src.consumers = removeID(src.consumers, id)
	}
	delete(t.consumers, id)
	r.Consumers = append(r.Consumers, e.handle)
}

func removeID[T comparable](ids []T, id T) []T {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

func (t *Topology) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Stats{
		Peers:      len(t.peers),
		Transports: len(t.transports),
		Producers:  len(t.producers),
		Consumers:  len(t.consumers),
	}
}

// PeersInRoom returns a snapshot of peers registered in room.
func (t *Topology) PeersInRoom(room domain.RoomName) []domain.Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Peer, 0)
	for _, p := range t.peers {
		if p.RoomName == room {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
