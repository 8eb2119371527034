package domain

type (
	TransportID string
	ProducerID  string
	ConsumerID  string
)

type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

func (d Direction) Valid() bool {
	return d == DirectionSend || d == DirectionRecv
}

type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

func (k MediaKind) Valid() bool {
	return k == KindAudio || k == KindVideo
}

type Transport struct {
	ID        TransportID
	Owner     PeerID
	RoomName  RoomName
	Direction Direction
	Connected bool
}

type Producer struct {
	ID          ProducerID
	Owner       PeerID
	RoomName    RoomName
	TransportID TransportID
	Kind        MediaKind
}

// Consumer starts paused; the engine forwards nothing until it is resumed.
type Consumer struct {
	ID               ConsumerID
	Owner            PeerID
	RoomName         RoomName
	TransportID      TransportID
	SourceProducerID ProducerID
	Kind             MediaKind
	Paused           bool
}
