package orch

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/Stage/internal/core"
	"github.com/dkeye/Stage/internal/domain"
	"github.com/rs/zerolog/log"
)

// Session is the protocol state machine of one connection.
//
// Request methods must be called sequentially for one session; Close may be
// called at any time from any goroutine. Work committed by a request that
// races with Close is rolled back by the topology liveness checks.
type Session struct {
	sid    core.SessionID
	o      *Orchestrator
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state core.SessionState
	room  core.RoomService
}

func (s *Session) ID() core.SessionID { return s.sid }

func (s *Session) State() core.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// bind derives a request context that is also canceled when the session closes.
func (s *Session) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Session) requireRoom() (core.RoomService, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case core.StateJoined, core.StateActive:
		return s.room, nil
	default:
		return nil, fmt.Errorf("%w: session is %s", core.ErrInvalidState, s.state)
	}
}

// JoinRoom registers the peer in room name and returns the router capabilities.
func (s *Session) JoinRoom(ctx context.Context, name domain.RoomName, displayName string) (domain.RtpCapabilities, error) {
	if name == "" || len(name) > domain.MaxRoomNameLen {
		return domain.RtpCapabilities{}, fmt.Errorf("%w: invalid room name", core.ErrBadRequest)
	}
	if displayName != "" {
		if err := domain.ValidateDisplayName(displayName); err != nil {
			return domain.RtpCapabilities{}, fmt.Errorf("%w: %v", core.ErrBadRequest, err)
		}
	}

	s.mu.Lock()
	state, room := s.state, s.room
	s.mu.Unlock()
	switch state {
	case core.StateJoined, core.StateActive:
		if room.Room().Name == name {
			return room.Router().RtpCapabilities(), nil
		}
		return domain.RtpCapabilities{}, fmt.Errorf("%w: already joined room %s", core.ErrInvalidState, room.Room().Name)
	case core.StateClosed:
		return domain.RtpCapabilities{}, fmt.Errorf("%w: session is closed", core.ErrInvalidState)
	}

	ctx, done := s.bind(ctx)
	defer done()
	room, err := s.o.Rooms.Join(ctx, name, s.sid)
	if err != nil {
		return domain.RtpCapabilities{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != core.StateConnected {
		s.o.Rooms.RemoveMember(name, s.sid)
		return domain.RtpCapabilities{}, fmt.Errorf("%w: session is %s", core.ErrInvalidState, s.state)
	}
	peer := domain.Peer{
		ID:                     s.sid,
		RoomName:               name,
		DisplayName:            displayName,
		CapabilitiesNegotiated: true,
	}
	if err := s.o.Topology.AddPeer(peer); err != nil {
		s.o.Rooms.RemoveMember(name, s.sid)
		return domain.RtpCapabilities{}, err
	}
	s.state = core.StateJoined
	s.room = room
	log.Info().Str("module", "orch").Str("sid", string(s.sid)).Str("room", string(name)).Msg("joined")
	return room.Router().RtpCapabilities(), nil
}

func (s *Session) CreateTransport(ctx context.Context, dir domain.Direction) (domain.TransportParams, error) {
	if !dir.Valid() {
		return domain.TransportParams{}, fmt.Errorf("%w: direction %q", core.ErrBadRequest, dir)
	}
	room, err := s.requireRoom()
	if err != nil {
		return domain.TransportParams{}, err
	}
	if dir == domain.DirectionSend && s.o.Topology.HasSendTransport(s.sid) {
		return domain.TransportParams{}, fmt.Errorf("%w: peer already has a send transport", core.ErrInvalidState)
	}

	ctx, done := s.bind(ctx)
	defer done()
	h, err := room.Router().CreateTransport(ctx, dir)
	if err != nil {
		return domain.TransportParams{}, core.WrapEngine("create transport", err)
	}
	meta := domain.Transport{
		ID:        h.ID(),
		Owner:     s.sid,
		RoomName:  room.Room().Name,
		Direction: dir,
	}
	if err := s.o.Topology.AddTransport(meta, h); err != nil {
		closeQuietly("transport", string(h.ID()), h.Close)
		return domain.TransportParams{}, err
	}
	go s.watchTransport(room, h)
	return h.Params(), nil
}

// watchTransport removes a transport the engine closed on its own, with
// everything built on it, and tells consumers of its producers.
func (s *Session) watchTransport(room core.RoomService, h core.TransportHandle) {
	select {
	case <-s.ctx.Done():
		return
	case <-h.Done():
	}

	s.mu.Lock()
	if s.state == core.StateClosed {
		s.mu.Unlock()
		return
	}
	r, err := s.o.Topology.RemoveTransport(s.sid, h.ID())
	s.mu.Unlock()
	if err != nil {
		// Already removed by closeTransport.
		return
	}
	log.Info().Str("module", "orch").Str("sid", string(s.sid)).Str("transport_id", string(h.ID())).Int("producers", len(r.Producers)).Msg("transport closed by engine")
	s.o.teardown(room, s.sid, r)
}

// ConnectTransport supplies the client's security parameters. A transport
// is connected at most once.
func (s *Session) ConnectTransport(ctx context.Context, id domain.TransportID, params domain.SecurityParams) error {
	if _, err := s.requireRoom(); err != nil {
		return err
	}
	tr, h, err := s.o.Topology.Transport(s.sid, id)
	if err != nil {
		return err
	}
	if tr.Connected {
		return fmt.Errorf("%w: transport %s", core.ErrAlreadyConnected, id)
	}
	if !params.Valid() {
		return fmt.Errorf("%w: incomplete security parameters", core.ErrBadRequest)
	}

	ctx, done := s.bind(ctx)
	defer done()
	if err := h.Connect(ctx, params); err != nil {
		return core.WrapEngine("connect transport", err)
	}
	if err := s.o.Topology.MarkConnected(id); err != nil {
		return err
	}

	s.mu.Lock()
	if s.state == core.StateJoined {
		s.state = core.StateActive
	}
	s.mu.Unlock()
	return nil
}

// Leave ends the session without dropping the connection.
func (s *Session) Leave() { s.Close() }

// Close tears down everything the peer owns. It is idempotent and never fails.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == core.StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = core.StateClosed
	room := s.room
	s.mu.Unlock()
	s.cancel()

	if room == nil {
		log.Info().Str("module", "orch").Str("sid", string(s.sid)).Msg("session closed before join")
		return
	}
	if r, ok := s.o.Topology.RemovePeer(s.sid); ok {
		s.o.teardown(room, s.sid, r)
	}
	s.o.Rooms.RemoveMember(room.Room().Name, s.sid)
	log.Info().Str("module", "orch").Str("sid", string(s.sid)).Str("room", string(room.Room().Name)).Msg("session closed")
}
