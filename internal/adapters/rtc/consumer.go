package rtc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Stage/internal/core"
	"github.com/dkeye/Stage/internal/domain"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

type Consumer struct {
	id        domain.ConsumerID
	producer  *Producer
	params    domain.RtpParameters
	transport *Transport
	sender    *webrtc.RTPSender
	logger    zerolog.Logger

	paused    atomic.Bool
	closeOnce sync.Once
}

var _ core.ConsumerHandle = (*Consumer)(nil)

func newConsumer(t *Transport, id domain.ConsumerID, p *Producer, params domain.RtpParameters, sender *webrtc.RTPSender) *Consumer {
	c := &Consumer{
		id:        id,
		producer:  p,
		params:    params,
		transport: t,
		sender:    sender,
		logger: t.logger.With().
			Str("consumer_id", string(id)).
			Str("producer_id", string(p.id)).
			Logger(),
	}
	c.paused.Store(true)
	return c
}

func (c *Consumer) ID() domain.ConsumerID { return c.id }

func (c *Consumer) ProducerID() domain.ProducerID { return c.producer.id }

func (c *Consumer) Kind() domain.MediaKind { return c.producer.kind }

func (c *Consumer) RtpParameters() domain.RtpParameters { return c.params }

func (c *Consumer) Paused() bool { return c.paused.Load() }

// Resume starts forwarding. Video consumers ask the producer for a key
// frame so decoding can start immediately.
func (c *Consumer) Resume(ctx context.Context) error {
	if !c.paused.CompareAndSwap(true, false) {
		return nil
	}
	c.transport.router.engine.relays.SetSubscriberPaused(c.producer.id, c.id, false)
	c.producer.requestKeyFrame()
	c.logger.Debug().Msg("consumer resumed")
	return nil
}

// readRTCP forwards key frame requests from the receiving client upstream.
func (c *Consumer) readRTCP() {
	for {
		pkts, _, err := c.sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, pkt := range pkts {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				if !c.paused.Load() {
					c.producer.requestKeyFrame()
				}
			}
		}
	}
}

func (c *Consumer) Close() error {
	c.closeOnce.Do(func() {
		c.transport.router.engine.relays.MarkSubscriberDelete(c.producer.id, c.id)
		if err := c.sender.Stop(); err != nil {
			c.logger.Debug().Err(err).Msg("sender stop")
		}
		c.transport.forgetConsumer(c.id)
		c.logger.Info().Msg("consumer closed")
	})
	return nil
}
