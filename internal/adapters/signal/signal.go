// Package signal is the WebSocket session server: one connection per peer,
// a read pump feeding a bounded request queue, a sequential dispatch worker
// and a write pump draining a bounded send buffer.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Stage/internal/app/orch"
	"github.com/dkeye/Stage/internal/core"
	"github.com/dkeye/Stage/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type Options struct {
	ReadLimit      int64
	PingPeriod     time.Duration
	SendBuffer     int
	QueueSize      int
	MessageRate    float64
	MessageBurst   int
	RequestTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 16
	}
	if o.MessageRate <= 0 {
		o.MessageRate = 50
	}
	if o.MessageBurst <= 0 {
		o.MessageBurst = 100
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
	return o
}

// Server owns the live signaling connections and implements core.Notifier.
type Server struct {
	Orch *orch.Orchestrator
	opts Options

	mu    sync.RWMutex
	conns map[core.SessionID]*WsSignalConn
}

var _ core.Notifier = (*Server)(nil)

func NewServer(opts Options) *Server {
	return &Server{
		opts:  opts.withDefaults(),
		conns: make(map[core.SessionID]*WsSignalConn),
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

var _ core.SignalConnection = (*WsSignalConn)(nil)

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// Notify queues n on every live connection in to. A full send buffer is
// reported back as dropped; absent connections are skipped.
func (s *Server) Notify(to []core.SessionID, n core.Notification) core.PublishResult {
	var res core.PublishResult
	frame, err := encodeNotification(n)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("method", n.Method).Msg("encode notification")
		return res
	}
	for _, sid := range to {
		c, ok := s.conn(sid)
		if !ok {
			continue
		}
		if err := c.TrySend(frame); err != nil {
			if errors.Is(err, ErrBackpressure) {
				res.Dropped = append(res.Dropped, sid)
			}
			continue
		}
		res.SendTo++
	}
	return res
}

func (s *Server) Kick(sid core.SessionID) {
	if c, ok := s.conn(sid); ok {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("kick")
		c.Close()
	}
}

// ConnCount is the number of registered connections.
func (s *Server) ConnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func (s *Server) conn(sid core.SessionID) (*WsSignalConn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conns[sid]
	return c, ok
}

func (s *Server) register(sid core.SessionID, c *WsSignalConn) {
	s.mu.Lock()
	s.conns[sid] = c
	s.mu.Unlock()
	metrics.Connections.Inc()
}

func (s *Server) unregister(sid core.SessionID) {
	s.mu.Lock()
	delete(s.conns, sid)
	s.mu.Unlock()
	metrics.Connections.Dec()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the connection until the
// socket closes. Every connection is a new peer.
func (s *Server) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(uuid.NewString())
	logger := log.With().
		Str("module", "signal").
		Str("sid", string(sid)).
		Str("client", c.GetString("client_token")).
		Logger()

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Msg("ws upgrade")
		return
	}
	logger.Info().Str("remote", c.ClientIP()).Msg("new WS connection")

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, s.opts.SendBuffer),
	}

	ctx, cancel := context.WithCancel(ctx)
	sess := s.Orch.NewSession(ctx, sid)
	s.register(sid, conn)

	hello, err := encodeNotification(core.Notification{
		Method: core.MethodConnectionSuccess,
		Data:   connectionSuccessData{PeerID: sid},
	})
	if err == nil {
		_ = conn.TrySend(hello)
	}

	queue := make(chan request, s.opts.QueueSize)
	go s.writePump(ctx, conn)
	go s.dispatch(ctx, sess, conn, queue)
	go s.readPump(ctx, cancel, sess, conn, queue)
}
