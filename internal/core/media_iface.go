package core

import (
	"context"

	"github.com/dkeye/Stage/internal/domain"
)

// MediaEngine is the native forwarding engine. Handles it returns are opaque
// to the core; relationships between them are tracked by the topology store.
type MediaEngine interface {
	CreateRouter(ctx context.Context, codecs []domain.RtpCodecCapability) (Router, error)
	// Died is closed (after delivering the cause) when the engine worker
	// can no longer make progress.
	Died() <-chan error
	Close() error
}

// Router is the per-room compatibility context. Shared read-only by peers.
type Router interface {
	ID() string
	RtpCapabilities() domain.RtpCapabilities
	CanConsume(producer ProducerHandle, caps domain.RtpCapabilities) bool
	CreateTransport(ctx context.Context, dir domain.Direction) (TransportHandle, error)
	Close() error
}

type TransportHandle interface {
	ID() domain.TransportID
	Params() domain.TransportParams
	Connect(ctx context.Context, params domain.SecurityParams) error
	Produce(ctx context.Context, kind domain.MediaKind, params domain.RtpParameters) (ProducerHandle, error)
	// Consume returns a paused consumer.
	Consume(ctx context.Context, producer ProducerHandle, caps domain.RtpCapabilities) (ConsumerHandle, error)
	// Done is closed once the transport is closed, by Close or because its
	// ICE/DTLS association ended.
	Done() <-chan struct{}
	Close() error
}

type ProducerHandle interface {
	ID() domain.ProducerID
	Kind() domain.MediaKind
	RtpParameters() domain.RtpParameters
	Close() error
}

type ConsumerHandle interface {
	ID() domain.ConsumerID
	ProducerID() domain.ProducerID
	Kind() domain.MediaKind
	RtpParameters() domain.RtpParameters
	Paused() bool
	Resume(ctx context.Context) error
	Close() error
}
