package orch

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/Stage/internal/app"
	"github.com/dkeye/Stage/internal/core"
	"github.com/dkeye/Stage/internal/core/coretest"
	"github.com/dkeye/Stage/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	eng   *coretest.Engine
	notes *coretest.Notifier
	o     *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	eng := coretest.NewEngine()
	notes := coretest.NewNotifier()
	return &harness{
		eng:   eng,
		notes: notes,
		o: &Orchestrator{
			Topology: app.NewTopology(),
			Rooms:    app.NewRoomManager(eng, domain.MediaCodecs),
			Policy:   app.SimplePolicy{},
			Notifier: notes,
		},
	}
}

func (h *harness) session(t *testing.T, sid core.SessionID) *Session {
	t.Helper()
	s := h.o.NewSession(context.Background(), sid)
	t.Cleanup(s.Close)
	return s
}

var (
	ctx = context.Background()

	security = domain.SecurityParams{
		IceParameters: &domain.IceParameters{UsernameFragment: "cu", Password: "cp"},
		DtlsParameters: domain.DtlsParameters{
			Role:         domain.DtlsRoleClient,
			Fingerprints: []domain.DtlsFingerprint{{Algorithm: "sha-256", Value: "AB:CD"}},
		},
	}

	opusParams = domain.RtpParameters{
		Codecs:    []domain.RtpCodecParameters{{MimeType: "audio/opus", PayloadType: 100, ClockRate: 48000, Channels: 2}},
		Encodings: []domain.RtpEncodingParameters{{SSRC: 1111}},
	}

	vp8Params = domain.RtpParameters{
		Codecs:    []domain.RtpCodecParameters{{MimeType: "video/VP8", PayloadType: 101, ClockRate: 90000}},
		Encodings: []domain.RtpEncodingParameters{{SSRC: 2222}},
	}
)

// transport creates and connects a transport of dir.
func transport(t *testing.T, s *Session, dir domain.Direction) domain.TransportID {
	t.Helper()
	params, err := s.CreateTransport(ctx, dir)
	require.NoError(t, err)
	require.NoError(t, s.ConnectTransport(ctx, params.ID, security))
	return params.ID
}

// publisher joins room and produces one audio track.
func publisher(t *testing.T, h *harness, sid core.SessionID, room domain.RoomName) (*Session, domain.ProducerID) {
	t.Helper()
	s := h.session(t, sid)
	_, err := s.JoinRoom(ctx, room, "")
	require.NoError(t, err)
	res, err := s.Produce(ctx, transport(t, s, domain.DirectionSend), domain.KindAudio, opusParams)
	require.NoError(t, err)
	return s, res.ProducerID
}

func TestTwoPeerScenario(t *testing.T) {
	h := newHarness(t)

	a := h.session(t, "a")
	caps, err := a.JoinRoom(ctx, "room", "Alice")
	require.NoError(t, err)
	require.Len(t, caps.Codecs, 2)
	assert.Equal(t, core.StateJoined, a.State())

	sendA := transport(t, a, domain.DirectionSend)
	assert.Equal(t, core.StateActive, a.State())
	resA, err := a.Produce(ctx, sendA, domain.KindAudio, opusParams)
	require.NoError(t, err)
	assert.False(t, resA.OthersExist)

	b := h.session(t, "b")
	capsB, err := b.JoinRoom(ctx, "room", "")
	require.NoError(t, err)
	assert.Equal(t, caps, capsB)

	ids, err := b.ListProducers()
	require.NoError(t, err)
	assert.Equal(t, []domain.ProducerID{resA.ProducerID}, ids)

	recvB := transport(t, b, domain.DirectionRecv)
	cp, err := b.Consume(ctx, recvB, resA.ProducerID, capsB)
	require.NoError(t, err)
	assert.True(t, cp.Paused)
	assert.Equal(t, resA.ProducerID, cp.ProducerID)
	assert.Equal(t, domain.KindAudio, cp.Kind)
	require.NotEmpty(t, cp.RtpParameters.Codecs)
	assert.Equal(t, opusParams.Codecs[0].MimeType, cp.RtpParameters.Codecs[0].MimeType)

	require.NoError(t, b.ResumeConsumer(ctx, cp.ID))
	c, _, err := h.o.Topology.Consumer("b", cp.ID)
	require.NoError(t, err)
	assert.False(t, c.Paused)

	resB, err := b.Produce(ctx, transport(t, b, domain.DirectionSend), domain.KindVideo, vp8Params)
	require.NoError(t, err)
	assert.True(t, resB.OthersExist)

	got := h.notes.For("a", core.MethodNewProducer)
	require.Len(t, got, 1)
	assert.Equal(t, resB.ProducerID, got[0].Data.(NewProducerData).ProducerID)
	assert.Equal(t, core.SessionID("b"), got[0].Data.(NewProducerData).PeerID)
	assert.Empty(t, h.notes.For("b", core.MethodNewProducer), "producers never announce to their owner")

	peer, ok := h.o.Topology.Peer("a")
	require.True(t, ok)
	assert.Equal(t, "Alice", peer.DisplayName)
	assert.True(t, peer.CapabilitiesNegotiated)
}

func TestConnectTwice(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, "a")
	_, err := s.JoinRoom(ctx, "room", "")
	require.NoError(t, err)

	id := transport(t, s, domain.DirectionSend)
	err = s.ConnectTransport(ctx, id, security)
	assert.ErrorIs(t, err, core.ErrAlreadyConnected)
	assert.Equal(t, int32(1), h.eng.ConnectCalls.Load())
}

func TestConnectRejectsIncompleteParams(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, "a")
	_, err := s.JoinRoom(ctx, "room", "")
	require.NoError(t, err)
	params, err := s.CreateTransport(ctx, domain.DirectionSend)
	require.NoError(t, err)

	err = s.ConnectTransport(ctx, params.ID, domain.SecurityParams{})
	assert.ErrorIs(t, err, core.ErrBadRequest)
	assert.Equal(t, int32(0), h.eng.ConnectCalls.Load())
}

func TestProduceBeforeConnect(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, "a")
	_, err := s.JoinRoom(ctx, "room", "")
	require.NoError(t, err)
	params, err := s.CreateTransport(ctx, domain.DirectionSend)
	require.NoError(t, err)

	_, err = s.Produce(ctx, params.ID, domain.KindAudio, opusParams)
	assert.ErrorIs(t, err, core.ErrInvalidState)
	assert.Equal(t, 0, h.o.Topology.Stats().Producers)
}

func TestRequestsBeforeJoin(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, "a")

	_, err := s.CreateTransport(ctx, domain.DirectionSend)
	assert.ErrorIs(t, err, core.ErrInvalidState)
	_, err = s.ListProducers()
	assert.ErrorIs(t, err, core.ErrInvalidState)
	assert.ErrorIs(t, s.ResumeConsumer(ctx, "c1"), core.ErrInvalidState)
}

func TestJoinRoomRules(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, "a")

	_, err := s.JoinRoom(ctx, "", "")
	assert.ErrorIs(t, err, core.ErrBadRequest)
	_, err = s.JoinRoom(ctx, "room", "this display name is definitely too long")
	assert.ErrorIs(t, err, core.ErrBadRequest)

	first, err := s.JoinRoom(ctx, "room", "")
	require.NoError(t, err)
	again, err := s.JoinRoom(ctx, "room", "")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	_, err = s.JoinRoom(ctx, "elsewhere", "")
	assert.ErrorIs(t, err, core.ErrInvalidState)
	assert.Equal(t, int32(1), h.eng.RoutersCreated.Load())
}

func TestSecondSendTransport(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, "a")
	_, err := s.JoinRoom(ctx, "room", "")
	require.NoError(t, err)
	transport(t, s, domain.DirectionSend)

	_, err = s.CreateTransport(ctx, domain.DirectionSend)
	assert.ErrorIs(t, err, core.ErrInvalidState)
	_, err = s.CreateTransport(ctx, "sideways")
	assert.ErrorIs(t, err, core.ErrBadRequest)
}

func TestOwnershipErrors(t *testing.T) {
	h := newHarness(t)
	_, pa := publisher(t, h, "a", "room")
	sendA := h.o.Topology.TransportsOfPeer("a")[0].ID

	b := h.session(t, "b")
	_, err := b.JoinRoom(ctx, "room", "")
	require.NoError(t, err)

	assert.ErrorIs(t, b.ConnectTransport(ctx, sendA, security), core.ErrNotAuthorized)
	assert.ErrorIs(t, b.ConnectTransport(ctx, "missing", security), core.ErrNotFound)
	assert.ErrorIs(t, b.CloseProducer(pa), core.ErrNotAuthorized)
	assert.ErrorIs(t, b.CloseTransport(sendA), core.ErrNotAuthorized)
	assert.ErrorIs(t, b.ResumeConsumer(ctx, "missing"), core.ErrNotFound)
}

func TestConsumeRules(t *testing.T) {
	h := newHarness(t)
	_, pa := publisher(t, h, "a", "room")
	_, pOther := publisher(t, h, "x", "other-room")

	b := h.session(t, "b")
	caps, err := b.JoinRoom(ctx, "room", "")
	require.NoError(t, err)
	params, err := b.CreateTransport(ctx, domain.DirectionRecv)
	require.NoError(t, err)

	_, err = b.Consume(ctx, params.ID, pa, caps)
	assert.ErrorIs(t, err, core.ErrInvalidState, "transport not connected")

	require.NoError(t, b.ConnectTransport(ctx, params.ID, security))

	_, err = b.Consume(ctx, params.ID, "missing", caps)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = b.Consume(ctx, params.ID, pOther, caps)
	assert.ErrorIs(t, err, core.ErrNotFound, "producers of other rooms are invisible")

	videoOnly := domain.RtpCapabilities{Codecs: []domain.RtpCodecCapability{caps.Codecs[1]}}
	_, err = b.Consume(ctx, params.ID, pa, videoOnly)
	assert.ErrorIs(t, err, core.ErrIncompatibleCapabilities)
	assert.Equal(t, 0, h.o.Topology.Stats().Consumers)
}

func TestResumeIsIdempotent(t *testing.T) {
	h := newHarness(t)
	_, pa := publisher(t, h, "a", "room")

	b := h.session(t, "b")
	caps, err := b.JoinRoom(ctx, "room", "")
	require.NoError(t, err)
	cp, err := b.Consume(ctx, transport(t, b, domain.DirectionRecv), pa, caps)
	require.NoError(t, err)

	require.NoError(t, b.ResumeConsumer(ctx, cp.ID))
	require.NoError(t, b.ResumeConsumer(ctx, cp.ID))
	assert.Equal(t, int32(1), h.eng.ResumeCalls.Load())
}

func TestDisconnectNotifiesOnlyConsumers(t *testing.T) {
	h := newHarness(t)
	a := h.session(t, "a")
	_, err := a.JoinRoom(ctx, "room", "")
	require.NoError(t, err)
	sendA := transport(t, a, domain.DirectionSend)
	p1, err := a.Produce(ctx, sendA, domain.KindAudio, opusParams)
	require.NoError(t, err)
	p2, err := a.Produce(ctx, sendA, domain.KindVideo, vp8Params)
	require.NoError(t, err)

	b := h.session(t, "b")
	caps, err := b.JoinRoom(ctx, "room", "")
	require.NoError(t, err)
	recvB := transport(t, b, domain.DirectionRecv)
	for _, id := range []domain.ProducerID{p1.ProducerID, p2.ProducerID} {
		_, err := b.Consume(ctx, recvB, id, caps)
		require.NoError(t, err)
	}

	c := h.session(t, "c")
	_, err = c.JoinRoom(ctx, "room", "")
	require.NoError(t, err)

	a.Close()
	assert.Equal(t, core.StateClosed, a.State())

	closed := h.notes.For("b", core.MethodProducerClosed)
	require.Len(t, closed, 2)
	assert.ElementsMatch(t,
		[]domain.ProducerID{p1.ProducerID, p2.ProducerID},
		[]domain.ProducerID{closed[0].Data.(ProducerClosedData).ProducerID, closed[1].Data.(ProducerClosedData).ProducerID},
	)
	assert.Empty(t, h.notes.For("c", core.MethodProducerClosed))
	assert.Empty(t, h.notes.For("a", core.MethodProducerClosed))

	stats := h.o.Topology.Stats()
	assert.Equal(t, 2, stats.Peers)
	assert.Equal(t, 0, stats.Producers)
	assert.Equal(t, 0, stats.Consumers)

	room, ok := h.o.Rooms.GetRoom("room")
	require.True(t, ok)
	assert.False(t, room.HasMember("a"))

	ids, err := b.ListProducers()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCloseReleasesHandles(t *testing.T) {
	h := newHarness(t)
	a, _ := publisher(t, h, "a", "room")
	_, h1, _ := h.o.Topology.Transport("a", h.o.Topology.TransportsOfPeer("a")[0].ID)
	tr := h1.(*coretest.Transport)

	a.Close()
	a.Close()
	assert.True(t, tr.Closed())
	assert.Equal(t, 0, h.o.Rooms.Count())
	assert.Equal(t, int32(1), h.eng.RoutersClosed.Load())
}

func TestCloseProducerNotifiesConsumers(t *testing.T) {
	h := newHarness(t)
	a, pa := publisher(t, h, "a", "room")

	b := h.session(t, "b")
	caps, err := b.JoinRoom(ctx, "room", "")
	require.NoError(t, err)
	_, err = b.Consume(ctx, transport(t, b, domain.DirectionRecv), pa, caps)
	require.NoError(t, err)

	require.NoError(t, a.CloseProducer(pa))
	require.Len(t, h.notes.For("b", core.MethodProducerClosed), 1)
	assert.ErrorIs(t, a.CloseProducer(pa), core.ErrNotFound)
	assert.Equal(t, 0, h.o.Topology.Stats().Consumers)
}

func TestCloseTransportCascades(t *testing.T) {
	h := newHarness(t)
	a, pa := publisher(t, h, "a", "room")
	sendA := h.o.Topology.TransportsOfPeer("a")[0].ID

	b := h.session(t, "b")
	caps, err := b.JoinRoom(ctx, "room", "")
	require.NoError(t, err)
	_, err = b.Consume(ctx, transport(t, b, domain.DirectionRecv), pa, caps)
	require.NoError(t, err)

	require.NoError(t, a.CloseTransport(sendA))
	assert.Len(t, h.notes.For("b", core.MethodProducerClosed), 1)
	assert.Equal(t, 0, h.o.Topology.Stats().Producers)

	_, err = a.CreateTransport(ctx, domain.DirectionSend)
	assert.NoError(t, err, "a new send transport is allowed once the old one is closed")
}

func TestEngineErrorKeepsSessionUsable(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, "a")
	_, err := s.JoinRoom(ctx, "room", "")
	require.NoError(t, err)

	h.eng.FailCreateTransport.Store(true)
	_, err = s.CreateTransport(ctx, domain.DirectionSend)
	assert.ErrorIs(t, err, core.ErrEngine)
	assert.ErrorIs(t, err, coretest.ErrInjected)
	assert.False(t, IsClientError(err))

	h.eng.FailCreateTransport.Store(false)
	id := transport(t, s, domain.DirectionSend)

	h.eng.FailProduce.Store(true)
	_, err = s.Produce(ctx, id, domain.KindAudio, opusParams)
	assert.ErrorIs(t, err, core.ErrEngine)
	assert.Equal(t, 0, h.o.Topology.Stats().Producers)

	h.eng.FailProduce.Store(false)
	_, err = s.Produce(ctx, id, domain.KindAudio, opusParams)
	assert.NoError(t, err)
}

func TestProduceValidation(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, "a")
	_, err := s.JoinRoom(ctx, "room", "")
	require.NoError(t, err)
	send := transport(t, s, domain.DirectionSend)
	recv := transport(t, s, domain.DirectionRecv)

	_, err = s.Produce(ctx, send, "smell", opusParams)
	assert.ErrorIs(t, err, core.ErrBadRequest)
	_, err = s.Produce(ctx, send, domain.KindVideo, opusParams)
	assert.ErrorIs(t, err, core.ErrBadRequest)
	_, err = s.Produce(ctx, recv, domain.KindAudio, opusParams)
	assert.ErrorIs(t, err, core.ErrInvalidState)

	h264 := domain.RtpParameters{
		Codecs:    []domain.RtpCodecParameters{{MimeType: "video/H264", PayloadType: 102, ClockRate: 90000}},
		Encodings: []domain.RtpEncodingParameters{{SSRC: 3}},
	}
	_, err = s.Produce(ctx, send, domain.KindVideo, h264)
	assert.ErrorIs(t, err, core.ErrIncompatibleCapabilities)

	mono := opusParams
	mono.Codecs = []domain.RtpCodecParameters{{MimeType: "audio/opus", PayloadType: 100, ClockRate: 48000}}
	_, err = s.Produce(ctx, send, domain.KindAudio, mono)
	assert.ErrorIs(t, err, core.ErrIncompatibleCapabilities)
	assert.Equal(t, 0, h.o.Topology.Stats().Producers)
}

func TestSlowMemberIsKicked(t *testing.T) {
	h := newHarness(t)
	b := h.session(t, "b")
	_, err := b.JoinRoom(ctx, "room", "")
	require.NoError(t, err)
	h.notes.Refuse["b"] = true

	publisher(t, h, "a", "room")
	assert.Equal(t, []core.SessionID{"b"}, h.notes.Kicked())
}

func TestLenientPolicyKeepsSlowMember(t *testing.T) {
	h := newHarness(t)
	h.o.Policy = app.LenientPolicy{}
	b := h.session(t, "b")
	_, err := b.JoinRoom(ctx, "room", "")
	require.NoError(t, err)
	h.notes.Refuse["b"] = true

	publisher(t, h, "a", "room")
	assert.Empty(t, h.notes.Kicked())
}

func TestJoinAfterClose(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, "a")
	s.Close()

	_, err := s.JoinRoom(ctx, "room", "")
	assert.ErrorIs(t, err, core.ErrInvalidState)
	assert.Equal(t, 0, h.o.Rooms.Count())
}

func TestCloseDuringJoin(t *testing.T) {
	h := newHarness(t)
	h.eng.RouterGate = make(chan struct{})
	s := h.session(t, "a")

	done := make(chan error, 1)
	go func() {
		_, err := s.JoinRoom(ctx, "room", "")
		done <- err
	}()
	s.Close()
	close(h.eng.RouterGate)

	assert.ErrorIs(t, <-done, core.ErrInvalidState)
	_, joined := h.o.Topology.Peer("a")
	assert.False(t, joined)
	assert.Equal(t, 0, h.o.Rooms.Count())
}

func TestLeaveEndsSession(t *testing.T) {
	h := newHarness(t)
	s, _ := publisher(t, h, "a", "room")

	s.Leave()
	assert.Equal(t, core.StateClosed, s.State())
	_, err := s.ListProducers()
	assert.ErrorIs(t, err, core.ErrInvalidState)
	assert.Equal(t, 0, h.o.Topology.Stats().Peers)
}

func TestEvictRoomAndStats(t *testing.T) {
	h := newHarness(t)
	publisher(t, h, "a", "room")
	b := h.session(t, "b")
	_, err := b.JoinRoom(ctx, "room", "")
	require.NoError(t, err)

	st := h.o.Stats()
	assert.Equal(t, 1, st.Rooms)
	assert.Equal(t, 2, st.Peers)
	assert.Equal(t, 1, st.Transports)
	assert.Equal(t, 1, st.Producers)

	assert.Equal(t, 2, h.o.EvictRoom("room"))
	assert.ElementsMatch(t, []core.SessionID{"a", "b"}, h.notes.Kicked())
	assert.Equal(t, 0, h.o.EvictRoom("missing"))
}

func TestEngineClosedTransportCascades(t *testing.T) {
	h := newHarness(t)
	a, pa := publisher(t, h, "a", "room")
	_, handle, err := h.o.Topology.Transport("a", h.o.Topology.TransportsOfPeer("a")[0].ID)
	require.NoError(t, err)

	b := h.session(t, "b")
	caps, err := b.JoinRoom(ctx, "room", "")
	require.NoError(t, err)
	_, err = b.Consume(ctx, transport(t, b, domain.DirectionRecv), pa, caps)
	require.NoError(t, err)

	require.NoError(t, handle.Close())

	require.Eventually(t, func() bool {
		return len(h.notes.For("b", core.MethodProducerClosed)) == 1
	}, 2*time.Second, 5*time.Millisecond)
	got := h.notes.For("b", core.MethodProducerClosed)[0].Data.(ProducerClosedData)
	assert.Equal(t, pa, got.ProducerID)

	assert.Empty(t, h.o.Topology.TransportsOfPeer("a"))
	assert.Equal(t, 0, h.o.Topology.Stats().Producers)
	assert.Equal(t, 0, h.o.Topology.Stats().Consumers)
	ids, err := b.ListProducers()
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = a.CreateTransport(ctx, domain.DirectionSend)
	assert.NoError(t, err, "the peer may open a new send transport")
}

func TestClosedTransportAfterCloseTransportIsQuiet(t *testing.T) {
	h := newHarness(t)
	a, pa := publisher(t, h, "a", "room")
	sendA := h.o.Topology.TransportsOfPeer("a")[0].ID

	b := h.session(t, "b")
	caps, err := b.JoinRoom(ctx, "room", "")
	require.NoError(t, err)
	_, err = b.Consume(ctx, transport(t, b, domain.DirectionRecv), pa, caps)
	require.NoError(t, err)

	require.NoError(t, a.CloseTransport(sendA))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, h.notes.For("b", core.MethodProducerClosed), 1)
}

func TestProduceCompletingAfterClose(t *testing.T) {
	h := newHarness(t)
	b := h.session(t, "b")
	_, err := b.JoinRoom(ctx, "room", "")
	require.NoError(t, err)

	a := h.session(t, "a")
	_, err = a.JoinRoom(ctx, "room", "")
	require.NoError(t, err)
	send := transport(t, a, domain.DirectionSend)

	h.eng.ProduceGate = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := a.Produce(ctx, send, domain.KindAudio, opusParams)
		done <- err
	}()
	require.Eventually(t, func() bool { return h.eng.ProduceCalls.Load() == 1 }, 2*time.Second, time.Millisecond)

	a.Close()
	close(h.eng.ProduceGate)

	assert.ErrorIs(t, <-done, core.ErrInvalidState)
	producers := h.eng.Producers()
	require.Len(t, producers, 1)
	assert.True(t, producers[0].Closed(), "orphan handle released")
	assert.Empty(t, h.notes.For("b", core.MethodNewProducer))
	assert.Equal(t, 0, h.o.Topology.Stats().Producers)
}

func TestConsumeCompletingAfterClose(t *testing.T) {
	h := newHarness(t)
	_, pa := publisher(t, h, "a", "room")

	b := h.session(t, "b")
	caps, err := b.JoinRoom(ctx, "room", "")
	require.NoError(t, err)
	recv := transport(t, b, domain.DirectionRecv)

	h.eng.ConsumeGate = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := b.Consume(ctx, recv, pa, caps)
		done <- err
	}()
	require.Eventually(t, func() bool { return h.eng.ConsumeCalls.Load() == 1 }, 2*time.Second, time.Millisecond)

	b.Close()
	close(h.eng.ConsumeGate)

	assert.ErrorIs(t, <-done, core.ErrInvalidState)
	consumers := h.eng.Consumers()
	require.Len(t, consumers, 1)
	assert.True(t, consumers[0].Closed(), "orphan handle released")
	assert.Equal(t, 0, h.o.Topology.Stats().Consumers)
	assert.Equal(t, 1, h.o.Topology.Stats().Producers)
}

func TestAnnounceSkipsGoneProducer(t *testing.T) {
	h := newHarness(t)
	b := h.session(t, "b")
	_, err := b.JoinRoom(ctx, "room", "")
	require.NoError(t, err)

	a, pa := publisher(t, h, "a", "room")
	require.Len(t, h.notes.For("b", core.MethodNewProducer), 1)
	meta := domain.Producer{ID: pa, Owner: "a", RoomName: "room", Kind: domain.KindAudio}
	room := a.room

	require.NoError(t, a.CloseProducer(pa))
	a.announce(room, meta)
	assert.Len(t, h.notes.For("b", core.MethodNewProducer), 1, "closed producer is not announced")

	_, pa2 := publisher(t, h, "c", "room")
	c2 := domain.Producer{ID: pa2, Owner: "c", RoomName: "room", Kind: domain.KindAudio}
	a.Close()
	a.announce(room, c2)
	assert.Len(t, h.notes.For("b", core.MethodNewProducer), 2, "closed session announces nothing")
}
