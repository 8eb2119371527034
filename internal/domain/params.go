package domain

// IceParameters are the ICE credentials of one side of a transport.
type IceParameters struct {
	UsernameFragment string `json:"usernameFragment"`
	Password         string `json:"password"`
	IceLite          bool   `json:"iceLite,omitempty"`
}

type IceCandidate struct {
	Foundation string `json:"foundation"`
	Priority   uint32 `json:"priority"`
	Address    string `json:"address"`
	Protocol   string `json:"protocol"`
	Port       uint16 `json:"port"`
	Type       string `json:"type"`
}

type DtlsFingerprint struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

const (
	DtlsRoleAuto   = "auto"
	DtlsRoleClient = "client"
	DtlsRoleServer = "server"
)

type DtlsParameters struct {
	Role         string            `json:"role,omitempty"`
	Fingerprints []DtlsFingerprint `json:"fingerprints"`
}

// TransportParams is what a client needs to open its side of a transport.
type TransportParams struct {
	ID             TransportID    `json:"id"`
	IceParameters  IceParameters  `json:"iceParameters"`
	IceCandidates  []IceCandidate `json:"iceCandidates"`
	DtlsParameters DtlsParameters `json:"dtlsParameters"`
}

// SecurityParams is what a client supplies to connect a transport.
type SecurityParams struct {
	IceParameters  *IceParameters `json:"iceParameters,omitempty"`
	DtlsParameters DtlsParameters `json:"dtlsParameters"`
}

func (s SecurityParams) Valid() bool {
	if s.IceParameters == nil || s.IceParameters.UsernameFragment == "" || s.IceParameters.Password == "" {
		return false
	}
	switch s.DtlsParameters.Role {
	case "", DtlsRoleAuto, DtlsRoleClient, DtlsRoleServer:
	default:
		return false
	}
	return len(s.DtlsParameters.Fingerprints) > 0
}

type RtpCodecParameters struct {
	MimeType    string         `json:"mimeType"`
	PayloadType uint8          `json:"payloadType"`
	ClockRate   uint32         `json:"clockRate"`
	Channels    uint16         `json:"channels,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type RtpEncodingParameters struct {
	SSRC uint32 `json:"ssrc"`
}

// RtpParameters describe one media stream as sent by a producer or to a consumer.
type RtpParameters struct {
	Mid       string                  `json:"mid,omitempty"`
	Codecs    []RtpCodecParameters    `json:"codecs"`
	Encodings []RtpEncodingParameters `json:"encodings"`
}

// ConsumerParams is returned to the consuming client.
type ConsumerParams struct {
	ID            ConsumerID    `json:"id"`
	ProducerID    ProducerID    `json:"producerId"`
	Kind          MediaKind     `json:"kind"`
	RtpParameters RtpParameters `json:"rtpParameters"`
	Paused        bool          `json:"paused"`
}
