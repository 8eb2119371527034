package signal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Stage/internal/app/orch"
	"github.com/dkeye/Stage/internal/core"
	"github.com/dkeye/Stage/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (s *Server) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(s.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump write error")
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping error")
				c.Close()
				return
			}
		}
	}
}

// readPump owns the socket reads. When it returns the session is closed,
// which runs the disconnect cascade.
func (s *Server) readPump(ctx context.Context, cancel context.CancelFunc, sess *orch.Session, c *WsSignalConn, queue chan<- request) {
	sid := sess.ID()
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		close(queue)
		sess.Close()
		s.unregister(sid)
		c.Close()
		cancel()
	}()

	pongWait := s.opts.PingPeriod * 10 / 9
	c.conn.SetReadLimit(s.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := NewConnRateLimiter(s.opts.MessageRate, s.opts.MessageBurst)
	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		// Any client message counts as liveness.
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		req, err := parseRequest(data)
		if err != nil {
			s.reply(c, sid, req, nil, err)
			continue
		}
		ok, abusive := limiter.Allow()
		if abusive {
			log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("rate limit exceeded, dropping connection")
			return
		}
		if !ok {
			s.reply(c, sid, req, nil, fmt.Errorf("%w: slow down", core.ErrRateLimited))
			continue
		}
		select {
		case queue <- req:
		default:
			s.reply(c, sid, req, nil, fmt.Errorf("%w: too many pending requests", core.ErrRateLimited))
		}
	}
}

// dispatch runs requests of one connection in arrival order.
func (s *Server) dispatch(ctx context.Context, sess *orch.Session, c *WsSignalConn, queue <-chan request) {
	for req := range queue {
		s.serve(ctx, sess, c, req)
	}
}

func (s *Server) serve(ctx context.Context, sess *orch.Session, c *WsSignalConn, req request) {
	start := time.Now()
	rctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	data, err := s.route(rctx, sess, req)
	cancel()

	code := "OK"
	if err != nil {
		code = core.Code(err)
	}
	metrics.SignalRequests.WithLabelValues(req.Type, code).Inc()
	metrics.SignalRequestDuration.WithLabelValues(req.Type).Observe(time.Since(start).Seconds())

	s.reply(c, sess.ID(), req, data, err)
}

func (s *Server) route(ctx context.Context, sess *orch.Session, req request) (any, error) {
	switch req.Type {
	case msgJoinRoom:
		return s.handleJoin(ctx, sess, req)
	case msgLeave:
		return s.handleLeave(sess)
	case msgCreateTransport:
		return s.handleCreateTransport(ctx, sess, req)
	case msgConnectTransport:
		return s.handleConnectTransport(ctx, sess, req)
	case msgProduce:
		return s.handleProduce(ctx, sess, req)
	case msgListProducers:
		return s.handleListProducers(sess)
	case msgConsume:
		return s.handleConsume(ctx, sess, req)
	case msgResumeConsumer:
		return s.handleResumeConsumer(ctx, sess, req)
	case msgCloseProducer:
		return s.handleCloseProducer(sess, req)
	case msgCloseTransport:
		return s.handleCloseTransport(sess, req)
	case msgPing:
		return s.handlePing()
	default:
		return nil, fmt.Errorf("%w: unknown message type %q", core.ErrBadRequest, req.Type)
	}
}

func (s *Server) reply(c *WsSignalConn, sid core.SessionID, req request, data any, err error) {
	logger := log.With().Str("module", "signal").Str("sid", string(sid)).Str("type", req.Type).Uint64("id", req.ID).Logger()
	if err != nil {
		if orch.IsClientError(err) {
			logger.Info().Err(err).Msg("request rejected")
		} else {
			logger.Error().Err(err).Msg("request failed")
		}
	}

	frame, encErr := encodeResponse(req.ID, data, err)
	if encErr != nil {
		logger.Error().Err(encErr).Msg("encode response")
		frame, _ = encodeResponse(req.ID, nil, encErr)
	}
	if sendErr := c.TrySend(frame); sendErr != nil {
		if errors.Is(sendErr, ErrBackpressure) {
			logger.Warn().Msg("send buffer full, closing connection")
			c.Close()
		}
	}
}
