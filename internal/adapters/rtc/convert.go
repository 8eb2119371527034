package rtc

import (
	"fmt"
	"strings"

	"github.com/dkeye/Stage/internal/domain"
	"github.com/pion/webrtc/v4"
)

func codecType(kind domain.MediaKind) webrtc.RTPCodecType {
	if kind == domain.KindVideo {
		return webrtc.RTPCodecTypeVideo
	}
	return webrtc.RTPCodecTypeAudio
}

func codecCapability(c domain.RtpCodecCapability) webrtc.RTPCodecCapability {
	return webrtc.RTPCodecCapability{
		MimeType:    c.MimeType,
		ClockRate:   c.ClockRate,
		Channels:    c.Channels,
		SDPFmtpLine: domain.FmtpLine(c.Parameters),
	}
}

func codecParameters(c domain.RtpCodecCapability) domain.RtpCodecParameters {
	return domain.RtpCodecParameters{
		MimeType:    c.MimeType,
		PayloadType: c.PreferredPayloadType,
		ClockRate:   c.ClockRate,
		Channels:    c.Channels,
		Parameters:  c.Parameters,
	}
}

func toIceParameters(p webrtc.ICEParameters) domain.IceParameters {
	return domain.IceParameters{
		UsernameFragment: p.UsernameFragment,
		Password:         p.Password,
		IceLite:          p.ICELite,
	}
}

func fromIceParameters(p domain.IceParameters) webrtc.ICEParameters {
	return webrtc.ICEParameters{
		UsernameFragment: p.UsernameFragment,
		Password:         p.Password,
		ICELite:          p.IceLite,
	}
}

func toIceCandidates(in []webrtc.ICECandidate) []domain.IceCandidate {
	out := make([]domain.IceCandidate, 0, len(in))
	for _, c := range in {
		out = append(out, domain.IceCandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			Address:    c.Address,
			Protocol:   c.Protocol.String(),
			Port:       c.Port,
			Type:       c.Typ.String(),
		})
	}
	return out
}

func toDtlsParameters(p webrtc.DTLSParameters) domain.DtlsParameters {
	out := domain.DtlsParameters{
		Role:         p.Role.String(),
		Fingerprints: make([]domain.DtlsFingerprint, 0, len(p.Fingerprints)),
	}
	for _, f := range p.Fingerprints {
		out.Fingerprints = append(out.Fingerprints, domain.DtlsFingerprint{Algorithm: f.Algorithm, Value: f.Value})
	}
	return out
}

func fromDtlsParameters(p domain.DtlsParameters) (webrtc.DTLSParameters, error) {
	role, err := parseDtlsRole(p.Role)
	if err != nil {
		return webrtc.DTLSParameters{}, err
	}
	out := webrtc.DTLSParameters{
		Role:         role,
		Fingerprints: make([]webrtc.DTLSFingerprint, 0, len(p.Fingerprints)),
	}
	for _, f := range p.Fingerprints {
		out.Fingerprints = append(out.Fingerprints, webrtc.DTLSFingerprint{
			Algorithm: strings.ToLower(f.Algorithm),
			Value:     f.Value,
		})
	}
	return out, nil
}

func parseDtlsRole(s string) (webrtc.DTLSRole, error) {
	switch s {
	case "", domain.DtlsRoleAuto:
		return webrtc.DTLSRoleAuto, nil
	case domain.DtlsRoleClient:
		return webrtc.DTLSRoleClient, nil
	case domain.DtlsRoleServer:
		return webrtc.DTLSRoleServer, nil
	default:
		return webrtc.DTLSRoleAuto, fmt.Errorf("unknown dtls role %q", s)
	}
}
