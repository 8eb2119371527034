package app

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dkeye/Stage/internal/core"
	"github.com/dkeye/Stage/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// RoomManager owns rooms and their routers. A room lives while it has
// members; the router of an emptied room is released to the engine.
type RoomManager struct {
	engine core.MediaEngine
	codecs []domain.RtpCodecCapability

	mu      sync.RWMutex
	rooms   map[domain.RoomName]core.RoomService
	flights singleflight.Group
}

func NewRoomManager(engine core.MediaEngine, codecs []domain.RtpCodecCapability) *RoomManager {
	return &RoomManager{
		engine: engine,
		codecs: codecs,
		rooms:  make(map[domain.RoomName]core.RoomService),
	}
}

// EnsureRoom returns the room called name, creating it and its router on
// first use. Concurrent first callers share one router creation.
func (m *RoomManager) EnsureRoom(ctx context.Context, name domain.RoomName) (core.RoomService, error) {
	m.mu.RLock()
	room, ok := m.rooms[name]
	m.mu.RUnlock()
	if ok {
		return room, nil
	}

	v, err, _ := m.flights.Do(string(name), func() (any, error) {
		m.mu.RLock()
		room, ok := m.rooms[name]
		m.mu.RUnlock()
		if ok {
			return room, nil
		}
		// Detached so that one canceled joiner does not fail the others.
		router, err := m.engine.CreateRouter(context.WithoutCancel(ctx), m.codecs)
		if err != nil {
			return nil, core.WrapEngine("create router", err)
		}
		room = core.NewRoomService(name, router)
		m.mu.Lock()
		m.rooms[name] = room
		m.mu.Unlock()
		log.Info().Str("module", "app.rooms").Str("room", string(name)).Str("router_id", router.ID()).Msg("room created")
		return room, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(core.RoomService), nil
}

// AddMember fails if room was destroyed after it was obtained.
func (m *RoomManager) AddMember(room core.RoomService, sid core.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.rooms[room.Room().Name]; !ok || cur != room {
		return fmt.Errorf("%w: room %s was destroyed", core.ErrNotFound, room.Room().Name)
	}
	room.AddMember(sid)
	return nil
}

// Join ensures the room and adds sid to it, retrying if the room is torn
// down in between.
func (m *RoomManager) Join(ctx context.Context, name domain.RoomName, sid core.SessionID) (core.RoomService, error) {
	for {
		room, err := m.EnsureRoom(ctx, name)
		if err != nil {
			return nil, err
		}
		if err := m.AddMember(room, sid); err == nil {
			return room, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// RemoveMember destroys the room when sid was its last member.
func (m *RoomManager) RemoveMember(name domain.RoomName, sid core.SessionID) {
	m.mu.Lock()
	room, ok := m.rooms[name]
	if !ok {
		m.mu.Unlock()
		return
	}
	if room.RemoveMember(sid) > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.rooms, name)
	m.mu.Unlock()

	m.closeRouter(room)
}

func (m *RoomManager) closeRouter(room core.RoomService) {
	if err := room.Router().Close(); err != nil {
		log.Error().Err(err).Str("module", "app.rooms").Str("room", string(room.Room().Name)).Msg("router close")
	}
	log.Info().Str("module", "app.rooms").Str("room", string(room.Room().Name)).Str("router_id", room.Router().ID()).Msg("room destroyed")
}

func (m *RoomManager) GetRoom(name domain.RoomName) (core.RoomService, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[name]
	return room, ok
}

func (m *RoomManager) List() []core.RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(m.rooms))
	for name, r := range m.rooms {
		out = append(out, core.RoomInfo{Name: name, RouterID: r.Router().ID(), MemberCount: r.MemberCount()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *RoomManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// CloseAll releases every router. Used on shutdown.
func (m *RoomManager) CloseAll() {
	m.mu.Lock()
	rooms := m.rooms
	m.rooms = make(map[domain.RoomName]core.RoomService)
	m.mu.Unlock()
	for _, room := range rooms {
		m.closeRouter(room)
	}
}
