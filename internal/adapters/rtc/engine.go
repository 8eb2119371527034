// Package rtc implements the media engine on top of pion's ORTC API.
// All transports share one UDP socket; the server side is ICE-lite.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Stage/internal/app/sfu"
	"github.com/dkeye/Stage/internal/core"
	"github.com/dkeye/Stage/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var errEngineClosed = errors.New("engine closed")

type Config struct {
	ListenIP string
	// AnnouncedIP replaces the host candidate address when the server sits
	// behind 1:1 NAT.
	AnnouncedIP string
	UDPPort     int
}

// Engine owns the UDP socket and the relays of every router.
type Engine struct {
	cfg    Config
	se     webrtc.SettingEngine
	conn   *watchedConn
	mux    ice.UDPMux
	relays *sfu.RelayManager

	ctx    context.Context
	cancel context.CancelFunc

	closing atomic.Bool
	died    chan error
	dieOnce sync.Once

	mu      sync.Mutex
	routers map[string]*Router
}

var _ core.MediaEngine = (*Engine)(nil)

func NewEngine(cfg Config) (*Engine, error) {
	ip := net.ParseIP(cfg.ListenIP)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("rtc: invalid listen ip %q", cfg.ListenIP)
	}
	udp, err := net.ListenUDP("udp4", &net.UDPAddr{IP: ip, Port: cfg.UDPPort})
	if err != nil {
		return nil, fmt.Errorf("rtc: listen udp: %w", err)
	}

	e := &Engine{
		cfg:     cfg,
		relays:  sfu.NewRelayManager(),
		died:    make(chan error, 1),
		routers: make(map[string]*Router),
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.conn = &watchedConn{PacketConn: udp, closing: &e.closing, onFail: e.die}

	lf := loggerFactory{}
	e.mux = webrtc.NewICEUDPMux(lf.NewLogger("udpmux"), e.conn)

	se := webrtc.SettingEngine{LoggerFactory: lf}
	se.SetLite(true)
	se.SetICEUDPMux(e.mux)
	se.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4})
	se.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)
	if ip.IsLoopback() {
		se.SetIncludeLoopbackCandidate(true)
	}
	if cfg.AnnouncedIP != "" {
		se.SetNAT1To1IPs([]string{cfg.AnnouncedIP}, webrtc.ICECandidateTypeHost)
	}
	e.se = se

	log.Info().
		Str("module", "rtc").
		Str("addr", udp.LocalAddr().String()).
		Str("announced_ip", cfg.AnnouncedIP).
		Msg("media engine listening")
	return e, nil
}

// Addr is the local address of the shared UDP socket.
func (e *Engine) Addr() net.Addr { return e.conn.LocalAddr() }

func (e *Engine) Died() <-chan error { return e.died }

func (e *Engine) die(err error) {
	e.dieOnce.Do(func() {
		log.Error().Err(err).Str("module", "rtc").Msg("media engine socket failed")
		e.died <- err
		close(e.died)
	})
}

func (e *Engine) CreateRouter(ctx context.Context, codecs []domain.RtpCodecCapability) (core.Router, error) {
	if e.closing.Load() {
		return nil, errEngineClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := newRouter(e, uuid.NewString(), codecs)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.routers[r.id] = r
	e.mu.Unlock()

	log.Info().Str("module", "rtc").Str("router_id", r.id).Msg("router created")
	return r, nil
}

func (e *Engine) forgetRouter(id string) {
	e.mu.Lock()
	delete(e.routers, id)
	e.mu.Unlock()
}

// Close tears down every router and the shared socket.
func (e *Engine) Close() error {
	if e.closing.Swap(true) {
		return nil
	}
	e.mu.Lock()
	routers := make([]*Router, 0, len(e.routers))
	for _, r := range e.routers {
		routers = append(routers, r)
	}
	e.mu.Unlock()

	for _, r := range routers {
		_ = r.Close()
	}
	e.cancel()

	err := e.mux.Close()
	if cerr := e.conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) && err == nil {
		err = cerr
	}
	log.Info().Str("module", "rtc").Msg("media engine closed")
	return err
}

// watchedConn reports read failures that happen while the engine is not
// shutting down.
type watchedConn struct {
	net.PacketConn
	closing *atomic.Bool
	onFail  func(error)
}

func (c *watchedConn) ReadFrom(p []byte) (int, net.Addr, error) {
	n, addr, err := c.PacketConn.ReadFrom(p)
	if err != nil && !c.closing.Load() {
		var ne net.Error
		if !errors.As(err, &ne) || !ne.Timeout() {
			c.onFail(err)
		}
	}
	return n, addr, err
}
