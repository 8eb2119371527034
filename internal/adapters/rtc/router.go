package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Stage/internal/core"
	"github.com/dkeye/Stage/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var errRouterClosed = errors.New("router closed")

// Router is a pion API bound to one room's codec set.
type Router struct {
	id     string
	engine *Engine
	api    *webrtc.API
	caps   domain.RtpCapabilities

	mu         sync.Mutex
	closed     bool
	transports map[domain.TransportID]*Transport
}

var _ core.Router = (*Router)(nil)

func newRouter(e *Engine, id string, codecs []domain.RtpCodecCapability) (*Router, error) {
	caps := domain.RtpCapabilities{Codecs: domain.AssignPayloadTypes(codecs)}

	m := &webrtc.MediaEngine{}
	for _, c := range caps.Codecs {
		if !c.Kind.Valid() {
			return nil, fmt.Errorf("codec %s: invalid kind %q", c.MimeType, c.Kind)
		}
		err := m.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: codecCapability(c),
			PayloadType:        webrtc.PayloadType(c.PreferredPayloadType),
		}, codecType(c.Kind))
		if err != nil {
			return nil, fmt.Errorf("register codec %s: %w", c.MimeType, err)
		}
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	return &Router{
		id:     id,
		engine: e,
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(m),
			webrtc.WithSettingEngine(e.se),
			webrtc.WithInterceptorRegistry(ir),
		),
		caps:       caps,
		transports: make(map[domain.TransportID]*Transport),
	}, nil
}

func (r *Router) ID() string { return r.id }

func (r *Router) RtpCapabilities() domain.RtpCapabilities { return r.caps }

func (r *Router) CanConsume(p core.ProducerHandle, caps domain.RtpCapabilities) bool {
	params := p.RtpParameters()
	return r.caps.Supports(params) && caps.Supports(params)
}

// CreateTransport gathers local candidates before returning, so the
// parameters it exposes are complete.
func (r *Router) CreateTransport(ctx context.Context, dir domain.Direction) (core.TransportHandle, error) {
	if !dir.Valid() {
		return nil, fmt.Errorf("invalid direction %q", dir)
	}
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, errRouterClosed
	}

	t, err := newTransport(ctx, r, domain.TransportID(uuid.NewString()), dir)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = t.Close()
		return nil, errRouterClosed
	}
	r.transports[t.id] = t
	r.mu.Unlock()

	log.Debug().
		Str("module", "rtc").
		Str("router_id", r.id).
		Str("transport_id", string(t.id)).
		Str("direction", string(dir)).
		Int("candidates", len(t.params.IceCandidates)).
		Msg("transport created")
	return t, nil
}

func (r *Router) forgetTransport(id domain.TransportID) {
	r.mu.Lock()
	delete(r.transports, id)
	r.mu.Unlock()
}

func (r *Router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	transports := make([]*Transport, 0, len(r.transports))
	for _, t := range r.transports {
		transports = append(transports, t)
	}
	r.mu.Unlock()

	for _, t := range transports {
		_ = t.Close()
	}
	r.engine.forgetRouter(r.id)
	log.Info().Str("module", "rtc").Str("router_id", r.id).Msg("router closed")
	return nil
}
