package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Stage/internal/core"
	"github.com/dkeye/Stage/internal/domain"
)

type ProduceResult struct {
	ProducerID  domain.ProducerID `json:"producerId"`
	OthersExist bool              `json:"othersExist"`
}

func (s *Session) Produce(ctx context.Context, transportID domain.TransportID, kind domain.MediaKind, params domain.RtpParameters) (ProduceResult, error) {
	room, err := s.requireRoom()
	if err != nil {
		return ProduceResult{}, err
	}
	if !kind.Valid() {
		return ProduceResult{}, fmt.Errorf("%w: kind %q", core.ErrBadRequest, kind)
	}
	if err := params.Validate(kind); err != nil {
		return ProduceResult{}, fmt.Errorf("%w: %v", core.ErrBadRequest, err)
	}
	tr, h, err := s.o.Topology.Transport(s.sid, transportID)
	if err != nil {
		return ProduceResult{}, err
	}
	if tr.Direction != domain.DirectionSend {
		return ProduceResult{}, fmt.Errorf("%w: transport %s is not a send transport", core.ErrInvalidState, transportID)
	}
	if !tr.Connected {
		return ProduceResult{}, fmt.Errorf("%w: transport %s is not connected", core.ErrInvalidState, transportID)
	}
	if !room.Router().RtpCapabilities().Supports(params) {
		return ProduceResult{}, fmt.Errorf("%w: router does not support the producer codecs", core.ErrIncompatibleCapabilities)
	}

	ctx, done := s.bind(ctx)
	defer done()
	ph, err := h.Produce(ctx, kind, params)
	if err != nil {
		return ProduceResult{}, core.WrapEngine("produce", err)
	}
	meta := domain.Producer{
		ID:          ph.ID(),
		Owner:       s.sid,
		RoomName:    room.Room().Name,
		TransportID: transportID,
		Kind:        kind,
	}
	if err := s.o.Topology.AddProducer(meta, ph); err != nil {
		closeQuietly("producer", string(ph.ID()), ph.Close)
		return ProduceResult{}, err
	}

	others := s.o.Topology.ProducersInRoomExcludingPeer(meta.RoomName, s.sid)
	s.announce(room, meta)
	return ProduceResult{ProducerID: meta.ID, OthersExist: len(others) > 0}, nil
}

// announce emits new-producer unless p was torn down after its commit.
// Holding the session lock orders it against Close and engine-side
// transport removal.
func (s *Session) announce(room core.RoomService, p domain.Producer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == core.StateClosed {
		return
	}
	if _, _, ok := s.o.Topology.Producer(p.ID); !ok {
		return
	}
	s.o.announceProducer(room, p)
}

func (s *Session) ListProducers() ([]domain.ProducerID, error) {
	room, err := s.requireRoom()
	if err != nil {
		return nil, err
	}
	return s.o.Topology.ProducersInRoomExcludingPeer(room.Room().Name, s.sid), nil
}

func (s *Session) Consume(ctx context.Context, transportID domain.TransportID, producerID domain.ProducerID, caps domain.RtpCapabilities) (domain.ConsumerParams, error) {
	room, err := s.requireRoom()
	if err != nil {
		return domain.ConsumerParams{}, err
	}
	tr, h, err := s.o.Topology.Transport(s.sid, transportID)
	if err != nil {
		return domain.ConsumerParams{}, err
	}
	if tr.Direction != domain.DirectionRecv {
		return domain.ConsumerParams{}, fmt.Errorf("%w: transport %s is not a receive transport", core.ErrInvalidState, transportID)
	}
	if !tr.Connected {
		return domain.ConsumerParams{}, fmt.Errorf("%w: transport %s is not connected", core.ErrInvalidState, transportID)
	}
	src, ph, ok := s.o.Topology.Producer(producerID)
	if !ok || src.RoomName != room.Room().Name {
		return domain.ConsumerParams{}, fmt.Errorf("%w: producer %s", core.ErrNotFound, producerID)
	}
	if !room.Router().CanConsume(ph, caps) {
		return domain.ConsumerParams{}, fmt.Errorf("%w: cannot consume producer %s", core.ErrIncompatibleCapabilities, producerID)
	}

	ctx, done := s.bind(ctx)
	defer done()
	ch, err := h.Consume(ctx, ph, caps)
	if err != nil {
		return domain.ConsumerParams{}, core.WrapEngine("consume", err)
	}
	meta := domain.Consumer{
		ID:               ch.ID(),
		Owner:            s.sid,
		RoomName:         room.Room().Name,
		TransportID:      transportID,
		SourceProducerID: producerID,
		Kind:             ch.Kind(),
		Paused:           true,
	}
	if err := s.o.Topology.AddConsumer(meta, ch); err != nil {
		closeQuietly("consumer", string(ch.ID()), ch.Close)
		return domain.ConsumerParams{}, err
	}
	return domain.ConsumerParams{
		ID:            meta.ID,
		ProducerID:    producerID,
		Kind:          meta.Kind,
		RtpParameters: ch.RtpParameters(),
		Paused:        true,
	}, nil
}

// ResumeConsumer is a no-op for a consumer that is already flowing.
func (s *Session) ResumeConsumer(ctx context.Context, id domain.ConsumerID) error {
	if _, err := s.requireRoom(); err != nil {
		return err
	}
	c, ch, err := s.o.Topology.Consumer(s.sid, id)
	if err != nil {
		return err
	}
	if !c.Paused {
		return nil
	}

	ctx, done := s.bind(ctx)
	defer done()
	if err := ch.Resume(ctx); err != nil {
		return core.WrapEngine("resume consumer", err)
	}
	return s.o.Topology.SetConsumerPaused(id, false)
}

func (s *Session) CloseProducer(id domain.ProducerID) error {
	room, err := s.requireRoom()
	if err != nil {
		return err
	}
	r, err := s.o.Topology.RemoveProducer(s.sid, id)
	if err != nil {
		return err
	}
	s.o.teardown(room, s.sid, r)
	return nil
}

func (s *Session) CloseTransport(id domain.TransportID) error {
	room, err := s.requireRoom()
	if err != nil {
		return err
	}
	r, err := s.o.Topology.RemoveTransport(s.sid, id)
	if err != nil {
		return err
	}
	s.o.teardown(room, s.sid, r)
	return nil
}

// IsClientError reports whether err was caused by the request rather than the server.
func IsClientError(err error) bool {
	return !errors.Is(err, core.ErrEngine) && core.Code(err) != "Internal"
}
