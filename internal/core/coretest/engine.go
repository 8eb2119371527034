// Package coretest provides in-memory fakes of the core collaborators.
package coretest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Stage/internal/core"
	"github.com/dkeye/Stage/internal/domain"
)

var ErrInjected = errors.New("injected engine failure")

// Engine is a fake core.MediaEngine. Ids are sequential per kind.
type Engine struct {
	seq atomic.Int64

	RoutersCreated atomic.Int32
	RoutersClosed  atomic.Int32
	ConnectCalls   atomic.Int32
	ProduceCalls   atomic.Int32
	ConsumeCalls   atomic.Int32
	ResumeCalls    atomic.Int32

	// Fail* make the matching operation return ErrInjected.
	FailCreateTransport atomic.Bool
	FailProduce         atomic.Bool

	// RouterGate, when set, is waited on inside CreateRouter.
	RouterGate chan struct{}
	// ProduceGate and ConsumeGate, when set, are waited on regardless of
	// ctx, so the call completes after its caller may have given up.
	ProduceGate chan struct{}
	ConsumeGate chan struct{}

	mu        sync.Mutex
	routers   []*Router
	producers []*Producer
	consumers []*Consumer
	died      chan error
}

func NewEngine() *Engine {
	return &Engine{died: make(chan error, 1)}
}

func (e *Engine) next(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, e.seq.Add(1))
}

func (e *Engine) CreateRouter(ctx context.Context, codecs []domain.RtpCodecCapability) (core.Router, error) {
	if e.RouterGate != nil {
		select {
		case <-e.RouterGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r := &Router{
		engine: e,
		id:     e.next("router"),
		caps:   domain.RtpCapabilities{Codecs: domain.AssignPayloadTypes(codecs)},
	}
	e.RoutersCreated.Add(1)
	e.mu.Lock()
	e.routers = append(e.routers, r)
	e.mu.Unlock()
	return r, nil
}

// Kill simulates a fatal worker fault.
func (e *Engine) Kill(err error) {
	select {
	case e.died <- err:
	default:
	}
}

func (e *Engine) Died() <-chan error { return e.died }

func (e *Engine) Close() error { return nil }

// Routers returns every router ever created.
func (e *Engine) Routers() []*Router {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Router(nil), e.routers...)
}

// Producers returns every producer ever created.
func (e *Engine) Producers() []*Producer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Producer(nil), e.producers...)
}

// Consumers returns every consumer ever created.
func (e *Engine) Consumers() []*Consumer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Consumer(nil), e.consumers...)
}

type Router struct {
	engine *Engine
	id     string
	caps   domain.RtpCapabilities
	closed atomic.Bool
}

func (r *Router) ID() string { return r.id }

func (r *Router) Closed() bool { return r.closed.Load() }

func (r *Router) RtpCapabilities() domain.RtpCapabilities { return r.caps }

func (r *Router) CanConsume(p core.ProducerHandle, caps domain.RtpCapabilities) bool {
	params := p.RtpParameters()
	return r.caps.Supports(params) && caps.Supports(params)
}

func (r *Router) CreateTransport(ctx context.Context, dir domain.Direction) (core.TransportHandle, error) {
	if r.closed.Load() {
		return nil, errors.New("router closed")
	}
	if r.engine.FailCreateTransport.Load() {
		return nil, ErrInjected
	}
	id := domain.TransportID(r.engine.next("transport"))
	return &Transport{
		router: r,
		id:     id,
		dir:    dir,
		done:   make(chan struct{}),
		params: domain.TransportParams{
			ID:             id,
			IceParameters:  domain.IceParameters{UsernameFragment: "u" + string(id), Password: "p", IceLite: true},
			DtlsParameters: domain.DtlsParameters{Role: "auto", Fingerprints: []domain.DtlsFingerprint{{Algorithm: "sha-256", Value: "00"}}},
		},
	}, nil
}

func (r *Router) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	r.engine.RoutersClosed.Add(1)
	return nil
}

type Transport struct {
	router    *Router
	id        domain.TransportID
	dir       domain.Direction
	params    domain.TransportParams
	connected atomic.Bool
	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

func (t *Transport) ID() domain.TransportID { return t.id }

func (t *Transport) Done() <-chan struct{} { return t.done }

func (t *Transport) Params() domain.TransportParams { return t.params }

func (t *Transport) Closed() bool { return t.closed.Load() }

func (t *Transport) Connect(ctx context.Context, _ domain.SecurityParams) error {
	t.router.engine.ConnectCalls.Add(1)
	if t.closed.Load() {
		return errors.New("transport closed")
	}
	t.connected.Store(true)
	return nil
}

func (t *Transport) Produce(ctx context.Context, kind domain.MediaKind, params domain.RtpParameters) (core.ProducerHandle, error) {
	if t.closed.Load() {
		return nil, errors.New("transport closed")
	}
	e := t.router.engine
	e.ProduceCalls.Add(1)
	if e.ProduceGate != nil {
		<-e.ProduceGate
	}
	if e.FailProduce.Load() {
		return nil, ErrInjected
	}
	p := &Producer{id: domain.ProducerID(e.next("producer")), kind: kind, params: params}
	e.mu.Lock()
	e.producers = append(e.producers, p)
	e.mu.Unlock()
	return p, nil
}

func (t *Transport) Consume(ctx context.Context, p core.ProducerHandle, caps domain.RtpCapabilities) (core.ConsumerHandle, error) {
	if t.closed.Load() {
		return nil, errors.New("transport closed")
	}
	e := t.router.engine
	e.ConsumeCalls.Add(1)
	if e.ConsumeGate != nil {
		<-e.ConsumeGate
	}
	src := p.RtpParameters()
	params := domain.RtpParameters{Mid: src.Mid}
	for _, c := range domain.MediaCodecsOf(src) {
		if _, ok := caps.Find(c); ok {
			params.Codecs = append(params.Codecs, c)
		}
	}
	params.Encodings = []domain.RtpEncodingParameters{{SSRC: uint32(t.router.engine.seq.Add(1))}}
	c := &Consumer{
		engine:     t.router.engine,
		id:         domain.ConsumerID(t.router.engine.next("consumer")),
		producerID: p.ID(),
		kind:       p.Kind(),
		params:     params,
	}
	c.paused.Store(true)
	e.mu.Lock()
	e.consumers = append(e.consumers, c)
	e.mu.Unlock()
	return c, nil
}

// Close also stands in for the association dying on the engine side.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		close(t.done)
	})
	return nil
}

type Producer struct {
	id     domain.ProducerID
	kind   domain.MediaKind
	params domain.RtpParameters
	closed atomic.Bool
}

func (p *Producer) ID() domain.ProducerID               { return p.id }
func (p *Producer) Kind() domain.MediaKind              { return p.kind }
func (p *Producer) RtpParameters() domain.RtpParameters { return p.params }
func (p *Producer) Closed() bool                        { return p.closed.Load() }

func (p *Producer) Close() error {
	p.closed.Store(true)
	return nil
}

type Consumer struct {
	engine     *Engine
	id         domain.ConsumerID
	producerID domain.ProducerID
	kind       domain.MediaKind
	params     domain.RtpParameters
	paused     atomic.Bool
	closed     atomic.Bool
}

func (c *Consumer) ID() domain.ConsumerID               { return c.id }
func (c *Consumer) ProducerID() domain.ProducerID       { return c.producerID }
func (c *Consumer) Kind() domain.MediaKind              { return c.kind }
func (c *Consumer) RtpParameters() domain.RtpParameters { return c.params }
func (c *Consumer) Paused() bool                        { return c.paused.Load() }
func (c *Consumer) Closed() bool                        { return c.closed.Load() }

func (c *Consumer) Resume(ctx context.Context) error {
	c.engine.ResumeCalls.Add(1)
	c.paused.Store(false)
	return nil
}

func (c *Consumer) Close() error {
	c.closed.Store(true)
	return nil
}
