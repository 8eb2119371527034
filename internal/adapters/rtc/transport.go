package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Stage/internal/core"
	"github.com/dkeye/Stage/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	errTransportClosed = errors.New("transport closed")
	errAlreadyStarted  = errors.New("transport already started")
	errWrongDirection  = errors.New("wrong transport direction")
	errForeignProducer = errors.New("producer belongs to another engine")
)

// Transport is one ICE+DTLS association with a client.
type Transport struct {
	id     domain.TransportID
	dir    domain.Direction
	router *Router
	params domain.TransportParams
	logger zerolog.Logger

	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport

	started atomic.Bool
	ready   chan struct{}
	failed  chan struct{}
	failErr error

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu        sync.Mutex
	producers map[domain.ProducerID]*Producer
	consumers map[domain.ConsumerID]*Consumer
}

var _ core.TransportHandle = (*Transport)(nil)

func newTransport(ctx context.Context, r *Router, id domain.TransportID, dir domain.Direction) (*Transport, error) {
	gatherer, err := r.api.NewICEGatherer(webrtc.ICEGatherOptions{})
	if err != nil {
		return nil, fmt.Errorf("ice gatherer: %w", err)
	}

	gathered := make(chan struct{})
	var once sync.Once
	gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			once.Do(func() { close(gathered) })
		}
	})
	if err := gatherer.Gather(); err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("gather: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		_ = gatherer.Close()
		return nil, ctx.Err()
	}

	iceParams, err := gatherer.GetLocalParameters()
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("ice parameters: %w", err)
	}
	candidates, err := gatherer.GetLocalCandidates()
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("ice candidates: %w", err)
	}

	iceTransport := r.api.NewICETransport(gatherer)
	dtls, err := r.api.NewDTLSTransport(iceTransport, nil)
	if err != nil {
		_ = iceTransport.Stop()
		_ = gatherer.Close()
		return nil, fmt.Errorf("dtls transport: %w", err)
	}
	dtlsParams, err := dtls.GetLocalParameters()
	if err != nil {
		_ = dtls.Stop()
		_ = iceTransport.Stop()
		_ = gatherer.Close()
		return nil, fmt.Errorf("dtls parameters: %w", err)
	}

	t := &Transport{
		id:     id,
		dir:    dir,
		router: r,
		params: domain.TransportParams{
			ID:             id,
			IceParameters:  toIceParameters(iceParams),
			IceCandidates:  toIceCandidates(candidates),
			DtlsParameters: toDtlsParameters(dtlsParams),
		},
		logger: log.With().
			Str("module", "rtc").
			Str("transport_id", string(id)).
			Str("direction", string(dir)).
			Logger(),
		gatherer:  gatherer,
		ice:       iceTransport,
		dtls:      dtls,
		ready:     make(chan struct{}),
		failed:    make(chan struct{}),
		producers: make(map[domain.ProducerID]*Producer),
		consumers: make(map[domain.ConsumerID]*Consumer),
	}
	t.ctx, t.cancel = context.WithCancel(r.engine.ctx)

	// A dead association closes the transport. Close must not run on the
	// callback goroutine.
	iceTransport.OnConnectionStateChange(func(s webrtc.ICETransportState) {
		t.logger.Debug().Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICETransportStateFailed || s == webrtc.ICETransportStateClosed {
			go t.Close()
		}
	})
	dtls.OnStateChange(func(s webrtc.DTLSTransportState) {
		t.logger.Debug().Str("dtls_state", s.String()).Msg("DTLS state")
		if s == webrtc.DTLSTransportStateFailed || s == webrtc.DTLSTransportStateClosed {
			go t.Close()
		}
	})
	return t, nil
}

func (t *Transport) ID() domain.TransportID { return t.id }

func (t *Transport) Params() domain.TransportParams { return t.params }

// Done is also closed when the engine shuts down.
func (t *Transport) Done() <-chan struct{} { return t.ctx.Done() }

// Connect starts ICE and DTLS in the background and returns once the
// remote parameters are accepted. Media operations wait for the handshake.
func (t *Transport) Connect(ctx context.Context, params domain.SecurityParams) error {
	if params.IceParameters == nil {
		return errors.New("missing ice parameters")
	}
	remoteDTLS, err := fromDtlsParameters(params.DtlsParameters)
	if err != nil {
		return err
	}
	if t.ctx.Err() != nil {
		return errTransportClosed
	}
	if !t.started.CompareAndSwap(false, true) {
		return errAlreadyStarted
	}
	go t.start(fromIceParameters(*params.IceParameters), remoteDTLS)
	return nil
}

func (t *Transport) start(remoteICE webrtc.ICEParameters, remoteDTLS webrtc.DTLSParameters) {
	role := webrtc.ICERoleControlled
	if err := t.ice.Start(t.gatherer, remoteICE, &role); err != nil {
		t.fail(fmt.Errorf("ice start: %w", err))
		return
	}
	if err := t.dtls.Start(remoteDTLS); err != nil {
		t.fail(fmt.Errorf("dtls start: %w", err))
		return
	}
	t.logger.Info().Msg("transport connected")
	close(t.ready)
}

func (t *Transport) fail(err error) {
	if t.ctx.Err() != nil {
		return
	}
	t.logger.Warn().Err(err).Msg("transport handshake failed")
	t.failErr = err
	close(t.failed)
	_ = t.Close()
}

func (t *Transport) waitReady(ctx context.Context) error {
	select {
	case <-t.ready:
		return nil
	case <-t.failed:
		return t.failErr
	case <-t.ctx.Done():
		return errTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) Produce(ctx context.Context, kind domain.MediaKind, params domain.RtpParameters) (core.ProducerHandle, error) {
	if t.dir != domain.DirectionSend {
		return nil, errWrongDirection
	}
	if err := params.Validate(kind); err != nil {
		return nil, err
	}
	codec := domain.MediaCodecsOf(params)[0]
	if _, ok := t.router.caps.Find(codec); !ok {
		return nil, fmt.Errorf("codec %s not supported by router", codec.MimeType)
	}
	if err := t.waitReady(ctx); err != nil {
		return nil, err
	}

	receiver, err := t.router.api.NewRTPReceiver(codecType(kind), t.dtls)
	if err != nil {
		return nil, fmt.Errorf("rtp receiver: %w", err)
	}
	err = receiver.Receive(webrtc.RTPReceiveParameters{
		Encodings: []webrtc.RTPDecodingParameters{{
			RTPCodingParameters: webrtc.RTPCodingParameters{
				SSRC:        webrtc.SSRC(params.Encodings[0].SSRC),
				PayloadType: webrtc.PayloadType(codec.PayloadType),
			},
		}},
	})
	if err != nil {
		_ = receiver.Stop()
		return nil, fmt.Errorf("receive: %w", err)
	}

	p := newProducer(t, domain.ProducerID(uuid.NewString()), kind, params, receiver)

	t.mu.Lock()
	if t.ctx.Err() != nil {
		t.mu.Unlock()
		_ = p.Close()
		return nil, errTransportClosed
	}
	t.producers[p.id] = p
	t.mu.Unlock()

	t.router.engine.relays.StartRelay(t.ctx, p.id, receiver.Track())
	go p.readRTCP()

	p.logger.Info().Str("codec", codec.MimeType).Uint32("ssrc", params.Encodings[0].SSRC).Msg("producer created")
	return p, nil
}

// Consume attaches a paused outgoing track to the relay of producer. The
// first producer codec the consumer supports is used.
func (t *Transport) Consume(ctx context.Context, producer core.ProducerHandle, caps domain.RtpCapabilities) (core.ConsumerHandle, error) {
	if t.dir != domain.DirectionRecv {
		return nil, errWrongDirection
	}
	if t.ctx.Err() != nil {
		return nil, errTransportClosed
	}
	p, ok := producer.(*Producer)
	if !ok || p.transport.router.engine != t.router.engine {
		return nil, errForeignProducer
	}

	var (
		routerCodec domain.RtpCodecCapability
		found       bool
	)
	for _, c := range domain.MediaCodecsOf(p.params) {
		if _, ok := caps.Find(c); !ok {
			continue
		}
		if routerCodec, found = t.router.caps.Find(c); found {
			break
		}
	}
	if !found {
		return nil, core.ErrIncompatibleCapabilities
	}

	id := domain.ConsumerID(uuid.NewString())
	track, err := webrtc.NewTrackLocalStaticRTP(codecCapability(routerCodec), string(id), string(p.id))
	if err != nil {
		return nil, fmt.Errorf("local track: %w", err)
	}
	sender, err := t.router.api.NewRTPSender(track, t.dtls)
	if err != nil {
		return nil, fmt.Errorf("rtp sender: %w", err)
	}
	sendParams := sender.GetParameters()
	if err := sender.Send(sendParams); err != nil {
		_ = sender.Stop()
		return nil, fmt.Errorf("send: %w", err)
	}

	rtpParams := domain.RtpParameters{
		Mid:    p.params.Mid,
		Codecs: []domain.RtpCodecParameters{codecParameters(routerCodec)},
	}
	for _, enc := range sendParams.Encodings {
		rtpParams.Encodings = append(rtpParams.Encodings, domain.RtpEncodingParameters{SSRC: uint32(enc.SSRC)})
	}

	c := newConsumer(t, id, p, rtpParams, sender)
	if !t.router.engine.relays.AddSubscriber(p.id, id, track, true) {
		_ = sender.Stop()
		return nil, fmt.Errorf("producer %s is not relaying", p.id)
	}

	t.mu.Lock()
	if t.ctx.Err() != nil {
		t.mu.Unlock()
		_ = c.Close()
		return nil, errTransportClosed
	}
	t.consumers[c.id] = c
	t.mu.Unlock()

	go c.readRTCP()

	c.logger.Info().Str("codec", routerCodec.MimeType).Msg("consumer created")
	return c, nil
}

func (t *Transport) forgetProducer(id domain.ProducerID) {
	t.mu.Lock()
	delete(t.producers, id)
	t.mu.Unlock()
}

func (t *Transport) forgetConsumer(id domain.ConsumerID) {
	t.mu.Lock()
	delete(t.consumers, id)
	t.mu.Unlock()
}

// Close closes every producer and consumer on the transport first.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.cancel()
		producers := make([]*Producer, 0, len(t.producers))
		for _, p := range t.producers {
			producers = append(producers, p)
		}
		consumers := make([]*Consumer, 0, len(t.consumers))
		for _, c := range t.consumers {
			consumers = append(consumers, c)
		}
		t.mu.Unlock()

		for _, c := range consumers {
			_ = c.Close()
		}
		for _, p := range producers {
			_ = p.Close()
		}
		if err := t.dtls.Stop(); err != nil {
			t.logger.Debug().Err(err).Msg("dtls stop")
		}
		if err := t.ice.Stop(); err != nil {
			t.logger.Debug().Err(err).Msg("ice stop")
		}
		if err := t.gatherer.Close(); err != nil {
			t.logger.Debug().Err(err).Msg("gatherer close")
		}
		t.router.forgetTransport(t.id)
		t.logger.Info().Msg("transport closed")
	})
	return nil
}
