package core

// Frame is a raw encoded signaling message.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

const (
	MethodConnectionSuccess = "connection-success"
	MethodNewProducer       = "new-producer"
	MethodProducerClosed    = "producer-closed"
)

// Notification is a server-initiated message.
type Notification struct {
	Method string
	Data   any
}

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []SessionID
}

// Notifier delivers notifications to live connections. Delivery is
// best-effort per recipient and never blocks on a slow one.
type Notifier interface {
	Notify(to []SessionID, n Notification) PublishResult
	// Kick closes the connection of sid; its disconnect cleanup runs as usual.
	Kick(sid SessionID)
}
