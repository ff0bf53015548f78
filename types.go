package ytresolve

import (
	"regexp"
	"strconv"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// VideoID is a validated platform video identifier.
type VideoID string

// ParseVideoID validates raw against the platform's 11-character id shape.
func ParseVideoID(raw string) (VideoID, error) {
	if !videoIDPattern.MatchString(raw) {
		return "", &ArgumentError{Field: "video_id", Reason: "must be 11 url-safe characters"}
	}
	return VideoID(raw), nil
}

// StreamingProtocol names the wire protocol a PO-token policy applies to.
// This is distinct from DescriptorSource below: a persona's PO-token policy
// is keyed by transport protocol, while a descriptor's source is keyed by
// delivery mode.
type StreamingProtocol string

const (
	ProtocolDirect StreamingProtocol = "direct"
	ProtocolDASH   StreamingProtocol = "dash"
	ProtocolHLS    StreamingProtocol = "hls"
)

// DescriptorSource is the delivery mode a StreamDescriptor was reported
// under: progressive (muxed single file), adaptive (DASH, separated
// audio/video), or hls (live segmented).
type DescriptorSource string

const (
	SourceProgressive DescriptorSource = "progressive"
	SourceAdaptive    DescriptorSource = "adaptive"
	SourceHLS         DescriptorSource = "hls"
)

// AudioTrack identifies one audio rendition of a multi-track adaptive or HLS
// stream: language, the platform's track id, and whether the platform marked
// it the default. Carried optionally on audio-bearing descriptors/variants.
type AudioTrack struct {
	Language  string
	ID        string
	IsDefault bool
}

// Fragment is one segment of a fragmented adaptive or HLS rendition, used
// when the upstream manifest enumerates explicit segment URLs rather than a
// single byte-range-addressable file.
type Fragment struct {
	URL    string
	Length int64
}

// PoTokenRequirement describes whether a persona needs a proof-of-origin
// token for a given protocol before its formats can be fetched.
type PoTokenRequirement struct {
	Required    bool
	Recommended bool
}

// ClientPersona is one synthetic client identity the controller can present
// to the player endpoint.
type ClientPersona struct {
	Name            string
	APIClientName   string
	ClientVersion   string
	APIKey          string
	UserAgent       string
	ContextClientID int
	Host            string
	Embedded        bool
	PoTokenPolicy   map[StreamingProtocol]PoTokenRequirement
}

// StreamKind tags which of the six rendition shapes a StreamInfo carries.
type StreamKind string

const (
	KindProgressive StreamKind = "progressive" // single file, audio+video muxed
	KindVideoOnly   StreamKind = "video_only"  // adaptive, video track only (direct or DASH)
	KindAudioOnly   StreamKind = "audio_only"  // adaptive, audio track only (direct or DASH)
	KindHLSMuxed    StreamKind = "hls_muxed"   // HLS master playlist variant, audio+video muxed
	KindHLSVideo    StreamKind = "hls_video"   // HLS master playlist variant, video track only
	KindHLSAudio    StreamKind = "hls_audio"   // HLS master playlist variant, audio track only
)

// StreamDescriptor is the raw, not-yet-normalized unit extracted from a
// player response or a DASH/HLS manifest: a URL that may still carry an
// unresolved `n` query parameter.
type StreamDescriptor struct {
	Itag          int
	URL           string
	MimeType      string
	Container     string
	Codecs        []string
	Bitrate       int
	Width         int
	Height        int
	FPS           int
	QualityLabel  string
	AudioChannels int
	ContentLength int64
	Source        DescriptorSource
	AudioOnly     bool
	VideoOnly     bool
	AudioTrack    *AudioTrack
	Fragments     []Fragment
}

// StreamInfo is one normalized, playable entry in a StreamManifest.
type StreamInfo struct {
	Kind          StreamKind
	Itag          int
	URL           string
	MimeType      string
	Codecs        []string
	Container     string
	Bitrate       int
	Width         int
	Height        int
	FPS           int
	Quality       string
	QualityLabel  string
	AudioChannels int
	ContentLength int64
	SourcePersona string
	AudioTrack    *AudioTrack
	Fragments     []Fragment
}

// dedupKey is the manifest uniqueness key: itag alone, except for audio
// streams carrying a distinguishing AudioTrack, where itag is combined with
// the track identity so that two audio renditions sharing an itag but
// differing language/track-id are kept distinct.
func (s StreamInfo) dedupKey() string {
	if s.AudioTrack != nil {
		return strconv.Itoa(s.Itag) + "|" + s.AudioTrack.ID + "|" + s.AudioTrack.Language
	}
	return strconv.Itoa(s.Itag)
}

// StreamManifest is the fully resolved, deduplicated result of get_manifest.
type StreamManifest struct {
	VideoID      VideoID
	Title        string
	IsLive       bool
	Streams      []StreamInfo
	HLSURL       string
	ResolvedFrom string // persona name that ultimately supplied the manifest
}
