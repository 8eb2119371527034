package domain

import (
	"fmt"
	"sort"
	"strings"
)

// RtpCodecCapability is one codec a router or a client supports.
type RtpCodecCapability struct {
	Kind                 MediaKind      `json:"kind"`
	MimeType             string         `json:"mimeType"`
	PreferredPayloadType uint8          `json:"preferredPayloadType,omitempty"`
	ClockRate            uint32         `json:"clockRate"`
	Channels             uint16         `json:"channels,omitempty"`
	Parameters           map[string]any `json:"parameters,omitempty"`
}

type RtpCapabilities struct {
	Codecs []RtpCodecCapability `json:"codecs"`
}

// MediaCodecs is the codec list every router is created with.
var MediaCodecs = []RtpCodecCapability{
	{
		Kind:      KindAudio,
		MimeType:  "audio/opus",
		ClockRate: 48000,
		Channels:  2,
	},
	{
		Kind:      KindVideo,
		MimeType:  "video/VP8",
		ClockRate: 90000,
		Parameters: map[string]any{
			"x-google-start-bitrate": 1000,
		},
	},
}

// firstDynamicPayloadType is where routers start assigning payload types.
const firstDynamicPayloadType = 100

// AssignPayloadTypes returns a copy of codecs with a preferred payload type
// set on every entry that lacks one.
func AssignPayloadTypes(codecs []RtpCodecCapability) []RtpCodecCapability {
	out := make([]RtpCodecCapability, len(codecs))
	used := make(map[uint8]bool, len(codecs))
	for _, c := range codecs {
		if c.PreferredPayloadType != 0 {
			used[c.PreferredPayloadType] = true
		}
	}
	next := uint8(firstDynamicPayloadType)
	for i, c := range codecs {
		if c.PreferredPayloadType == 0 {
			for used[next] {
				next++
			}
			c.PreferredPayloadType = next
			used[next] = true
		}
		out[i] = c
	}
	return out
}

// Matches reports whether c describes the same codec as p.
func (c RtpCodecCapability) Matches(p RtpCodecParameters) bool {
	if !strings.EqualFold(c.MimeType, p.MimeType) || c.ClockRate != p.ClockRate {
		return false
	}
	if strings.HasPrefix(strings.ToLower(c.MimeType), "video/") {
		return true
	}
	return channelsOf(c.Channels) == channelsOf(p.Channels)
}

func channelsOf(n uint16) uint16 {
	if n == 0 {
		return 1
	}
	return n
}

// Find returns the capability matching p.
func (rc RtpCapabilities) Find(p RtpCodecParameters) (RtpCodecCapability, bool) {
	for _, c := range rc.Codecs {
		if c.Matches(p) {
			return c, true
		}
	}
	return RtpCodecCapability{}, false
}

// Supports reports whether every media codec of params is present in rc.
func (rc RtpCapabilities) Supports(params RtpParameters) bool {
	media := MediaCodecsOf(params)
	if len(media) == 0 {
		return false
	}
	for _, c := range media {
		if _, ok := rc.Find(c); !ok {
			return false
		}
	}
	return true
}

// MediaCodecsOf drops retransmission/FEC pseudo codecs.
func MediaCodecsOf(params RtpParameters) []RtpCodecParameters {
	out := make([]RtpCodecParameters, 0, len(params.Codecs))
	for _, c := range params.Codecs {
		mt := strings.ToLower(c.MimeType)
		if strings.HasSuffix(mt, "/rtx") || strings.HasSuffix(mt, "/red") || strings.HasSuffix(mt, "/ulpfec") {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Validate checks producer parameters against kind.
func (params RtpParameters) Validate(kind MediaKind) error {
	media := MediaCodecsOf(params)
	if len(media) == 0 {
		return fmt.Errorf("no media codecs")
	}
	for _, c := range media {
		if !strings.HasPrefix(strings.ToLower(c.MimeType), string(kind)+"/") {
			return fmt.Errorf("codec %s does not match kind %s", c.MimeType, kind)
		}
	}
	if len(params.Encodings) == 0 {
		return fmt.Errorf("no encodings")
	}
	return nil
}

// FmtpLine renders codec parameters as an SDP fmtp value with sorted keys.
func FmtpLine(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return strings.Join(parts, ";")
}
