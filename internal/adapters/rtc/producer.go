package rtc

import (
	"sync"
	"time"

	"github.com/dkeye/Stage/internal/core"
	"github.com/dkeye/Stage/internal/domain"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// keyFrameInterval bounds how often a producer is asked for a key frame.
const keyFrameInterval = 500 * time.Millisecond

type Producer struct {
	id        domain.ProducerID
	kind      domain.MediaKind
	params    domain.RtpParameters
	transport *Transport
	receiver  *webrtc.RTPReceiver
	logger    zerolog.Logger

	pli       *rate.Limiter
	closeOnce sync.Once
}

var _ core.ProducerHandle = (*Producer)(nil)

func newProducer(t *Transport, id domain.ProducerID, kind domain.MediaKind, params domain.RtpParameters, receiver *webrtc.RTPReceiver) *Producer {
	return &Producer{
		id:        id,
		kind:      kind,
		params:    params,
		transport: t,
		receiver:  receiver,
		logger:    t.logger.With().Str("producer_id", string(id)).Str("kind", string(kind)).Logger(),
		pli:       rate.NewLimiter(rate.Every(keyFrameInterval), 1),
	}
}

func (p *Producer) ID() domain.ProducerID { return p.id }

func (p *Producer) Kind() domain.MediaKind { return p.kind }

func (p *Producer) RtpParameters() domain.RtpParameters { return p.params }

// requestKeyFrame sends a PLI upstream. Audio producers ignore it.
func (p *Producer) requestKeyFrame() {
	if p.kind != domain.KindVideo || !p.pli.Allow() {
		return
	}
	if p.transport.ctx.Err() != nil || len(p.params.Encodings) == 0 {
		return
	}
	pkt := &rtcp.PictureLossIndication{MediaSSRC: p.params.Encodings[0].SSRC}
	if _, err := p.transport.dtls.WriteRTCP([]rtcp.Packet{pkt}); err != nil {
		p.logger.Debug().Err(err).Msg("PLI write failed")
	}
}

// readRTCP drains the receiver so interceptors keep running.
func (p *Producer) readRTCP() {
	for {
		if _, _, err := p.receiver.ReadRTCP(); err != nil {
			return
		}
	}
}

func (p *Producer) Close() error {
	p.closeOnce.Do(func() {
		p.transport.router.engine.relays.StopRelay(p.id)
		if err := p.receiver.Stop(); err != nil {
			p.logger.Debug().Err(err).Msg("receiver stop")
		}
		p.transport.forgetProducer(p.id)
		p.logger.Info().Msg("producer closed")
	})
	return nil
}
