package signal

import (
	"context"

	"github.com/dkeye/Stage/internal/app/orch"
	"github.com/dkeye/Stage/internal/domain"
)

func (s *Server) handleCreateTransport(ctx context.Context, sess *orch.Session, req request) (any, error) {
	p, err := decode[createTransportRequest](req.Data)
	if err != nil {
		return nil, err
	}
	params, err := sess.CreateTransport(ctx, p.Direction)
	if err != nil {
		return nil, err
	}
	return createTransportResponse{TransportID: params.ID, ConnectionParams: params}, nil
}

func (s *Server) handleConnectTransport(ctx context.Context, sess *orch.Session, req request) (any, error) {
	p, err := decode[connectTransportRequest](req.Data)
	if err != nil {
		return nil, err
	}
	return nil, sess.ConnectTransport(ctx, p.TransportID, p.SecurityParams)
}

func (s *Server) handleProduce(ctx context.Context, sess *orch.Session, req request) (any, error) {
	p, err := decode[produceRequest](req.Data)
	if err != nil {
		return nil, err
	}
	res, err := sess.Produce(ctx, p.TransportID, p.Kind, p.MediaParams)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Server) handleListProducers(sess *orch.Session) (any, error) {
	ids, err := sess.ListProducers()
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []domain.ProducerID{}
	}
	return listProducersResponse{ProducerIDs: ids}, nil
}

func (s *Server) handleConsume(ctx context.Context, sess *orch.Session, req request) (any, error) {
	p, err := decode[consumeRequest](req.Data)
	if err != nil {
		return nil, err
	}
	params, err := sess.Consume(ctx, p.TransportID, p.SourceProducerID, p.LocalCapabilities)
	if err != nil {
		return nil, err
	}
	return consumeResponse{ConsumerParams: params}, nil
}

func (s *Server) handleResumeConsumer(ctx context.Context, sess *orch.Session, req request) (any, error) {
	p, err := decode[resumeConsumerRequest](req.Data)
	if err != nil {
		return nil, err
	}
	return nil, sess.ResumeConsumer(ctx, p.ConsumerID)
}

func (s *Server) handleCloseProducer(sess *orch.Session, req request) (any, error) {
	p, err := decode[closeProducerRequest](req.Data)
	if err != nil {
		return nil, err
	}
	return nil, sess.CloseProducer(p.ProducerID)
}

func (s *Server) handleCloseTransport(sess *orch.Session, req request) (any, error) {
	p, err := decode[closeTransportRequest](req.Data)
	if err != nil {
		return nil, err
	}
	return nil, sess.CloseTransport(p.TransportID)
}
