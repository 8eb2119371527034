package signal

import (
	"context"

	"github.com/dkeye/Stage/internal/app/orch"
	"github.com/rs/zerolog/log"
)

func (s *Server) handleJoin(ctx context.Context, sess *orch.Session, req request) (any, error) {
	p, err := decode[joinRoomRequest](req.Data)
	if err != nil {
		return nil, err
	}
	caps, err := sess.JoinRoom(ctx, p.RoomName, p.DisplayName)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "signal").Str("sid", string(sess.ID())).Str("room", string(p.RoomName)).Msg("join")
	return joinRoomResponse{RouterCapabilities: caps}, nil
}

// handleLeave ends the session; the socket stays open.
func (s *Server) handleLeave(sess *orch.Session) (any, error) {
	log.Info().Str("module", "signal").Str("sid", string(sess.ID())).Msg("leave")
	sess.Leave()
	return nil, nil
}
