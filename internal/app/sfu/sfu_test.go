package sfu

import (
	"context"
	"testing"

	"github.com/dkeye/Stage/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localTrack(t *testing.T) *webrtc.TrackLocalStaticRTP {
	t.Helper()
	tr, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "stream",
	)
	require.NoError(t, err)
	return tr
}

func TestOutTrackStates(t *testing.T) {
	ot := NewOutTrack(localTrack(t), true)
	assert.Equal(t, TrackStateMuted, ot.GetState())

	ot.MarkOk()
	assert.Equal(t, TrackStateOk, ot.GetState())
	ot.MarkMuted()
	assert.Equal(t, TrackStateMuted, ot.GetState())

	ot.MarkDelete()
	ot.MarkOk()
	assert.Equal(t, TrackStateDelete, ot.GetState())
	ot.MarkMuted()
	assert.Equal(t, TrackStateDelete, ot.GetState())
	assert.Equal(t, "delete", ot.GetState().String())

	assert.Equal(t, TrackStateOk, NewOutTrack(localTrack(t), false).GetState())
}

func TestRelayForwardDropsDeleted(t *testing.T) {
	logger := zerolog.Nop()
	r := NewRelay("p1", nil, nil)

	live := NewOutTrack(localTrack(t), false)
	muted := NewOutTrack(localTrack(t), true)
	gone := NewOutTrack(localTrack(t), false)
	gone.MarkDelete()
	r.AddOutTrack("c1", live)
	r.AddOutTrack("c2", muted)
	r.AddOutTrack("c3", gone)

	r.forward(&rtp.Packet{Header: rtp.Header{Version: 2, PayloadType: 111, SSRC: 1}, Payload: []byte{1}}, &logger)

	assert.Equal(t, 2, r.outTrackCount())
	_, ok := r.outTrack("c3")
	assert.False(t, ok)
	assert.Equal(t, TrackStateOk, live.GetState())
	assert.Equal(t, uint64(1), live.Packets())
	assert.Equal(t, TrackStateMuted, muted.GetState())
	assert.Zero(t, muted.Packets())
}

func TestRelayManagerSubscribers(t *testing.T) {
	m := NewRelayManager()
	track := localTrack(t)

	assert.False(t, m.AddSubscriber("p1", "c1", track, true), "no relay yet")
	assert.False(t, m.SetSubscriberPaused("p1", "c1", false))

	ctx, cancel := context.WithCancel(context.Background())
	m.relays["p1"] = NewRelay("p1", nil, cancel)
	assert.True(t, m.hasRelay("p1"))

	require.True(t, m.AddSubscriber("p1", "c1", track, true))
	ot, ok := m.lookup("p1", "c1")
	require.True(t, ok)
	assert.Equal(t, TrackStateMuted, ot.GetState())

	assert.True(t, m.SetSubscriberPaused("p1", "c1", false))
	assert.Equal(t, TrackStateOk, ot.GetState())
	assert.False(t, m.SetSubscriberPaused("p1", "missing", false))

	m.MarkSubscriberDelete("p1", "c1")
	assert.Equal(t, TrackStateDelete, ot.GetState())

	require.True(t, m.AddSubscriber("p1", "c2", track, false))
	other, _ := m.lookup("p1", "c2")
	m.StopRelay("p1")
	assert.False(t, m.hasRelay("p1"))
	assert.Equal(t, TrackStateDelete, other.GetState())
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	m.StopRelay("p1")
}

func TestRelayLoopStopsOnCancel(t *testing.T) {
	logger := zerolog.Nop()
	r := NewRelay("p1", nil, nil)
	ot := NewOutTrack(localTrack(t), false)
	r.AddOutTrack(domain.ConsumerID("c1"), ot)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.run(ctx, &logger)
	assert.Equal(t, TrackStateDelete, ot.GetState())
}
