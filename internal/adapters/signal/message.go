package signal

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dkeye/Stage/internal/core"
	"github.com/dkeye/Stage/internal/domain"
)

const (
	typeResponse     = "response"
	typeNotification = "notification"
)

// Request types.
const (
	msgJoinRoom         = "joinRoom"
	msgCreateTransport  = "createTransport"
	msgConnectTransport = "connectTransport"
	msgProduce          = "produce"
	msgListProducers    = "listProducers"
	msgConsume          = "consume"
	msgResumeConsumer   = "resumeConsumer"
	msgCloseProducer    = "closeProducer"
	msgCloseTransport   = "closeTransport"
	msgLeave            = "leave"
	msgPing             = "ping"
)

type request struct {
	ID   uint64          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type response struct {
	ID    uint64     `json:"id"`
	Type  string     `json:"type"`
	OK    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

type notification struct {
	Type   string `json:"type"`
	Method string `json:"method"`
	Data   any    `json:"data,omitempty"`
}

type connectionSuccessData struct {
	PeerID core.SessionID `json:"peerId"`
}

type joinRoomRequest struct {
	RoomName    domain.RoomName `json:"roomName"`
	DisplayName string          `json:"displayName,omitempty"`
}

type joinRoomResponse struct {
	RouterCapabilities domain.RtpCapabilities `json:"routerCapabilities"`
}

type createTransportRequest struct {
	Direction domain.Direction `json:"direction"`
}

type createTransportResponse struct {
	TransportID      domain.TransportID     `json:"transportId"`
	ConnectionParams domain.TransportParams `json:"connectionParams"`
}

type connectTransportRequest struct {
	TransportID    domain.TransportID    `json:"transportId"`
	SecurityParams domain.SecurityParams `json:"securityParams"`
}

type produceRequest struct {
	TransportID domain.TransportID   `json:"transportId"`
	Kind        domain.MediaKind     `json:"kind"`
	MediaParams domain.RtpParameters `json:"mediaParams"`
}

type listProducersResponse struct {
	ProducerIDs []domain.ProducerID `json:"producerIds"`
}

type consumeRequest struct {
	TransportID       domain.TransportID     `json:"transportId"`
	SourceProducerID  domain.ProducerID      `json:"sourceProducerId"`
	LocalCapabilities domain.RtpCapabilities `json:"localCapabilities"`
}

type consumeResponse struct {
	ConsumerParams domain.ConsumerParams `json:"consumerParams"`
}

type resumeConsumerRequest struct {
	ConsumerID domain.ConsumerID `json:"consumerId"`
}

type closeProducerRequest struct {
	ProducerID domain.ProducerID `json:"producerId"`
}

type closeTransportRequest struct {
	TransportID domain.TransportID `json:"transportId"`
}

type pongResponse struct {
	Pong bool `json:"pong"`
}

func parseRequest(data []byte) (request, error) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("%w: %v", core.ErrBadRequest, err)
	}
	if req.Type == "" {
		return req, fmt.Errorf("%w: missing type", core.ErrBadRequest)
	}
	return req, nil
}

// decode unmarshals a request payload; an absent payload yields the zero value.
func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: %v", core.ErrBadRequest, err)
	}
	return v, nil
}

func encodeResponse(id uint64, data any, err error) (core.Frame, error) {
	resp := response{ID: id, Type: typeResponse, OK: err == nil, Data: data}
	if err != nil {
		resp.Data = nil
		code := core.Code(err)
		msg := err.Error()
		if code == "Internal" {
			msg = "internal error"
		}
		resp.Error = &errorBody{Code: code, Message: msg}
	}
	return json.Marshal(resp)
}

func encodeNotification(n core.Notification) (core.Frame, error) {
	return json.Marshal(notification{Type: typeNotification, Method: n.Method, Data: n.Data})
}
