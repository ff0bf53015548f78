// Package parse implements the watch-page scraper, the player-response
// JSON decoder, and the DASH/HLS manifest parsers.
package parse

import "strings"

// PlayerResponse is the subset of the Innertube /player JSON payload the
// resolver needs. Unknown fields are ignored.
type PlayerResponse struct {
	PlayabilityStatus PlayabilityStatus `json:"playabilityStatus"`
	StreamingData     StreamingData     `json:"streamingData"`
	VideoDetails      VideoDetails      `json:"videoDetails"`
}

// PreviewVideoID forwards PlayabilityStatus.PreviewVideoID for callers that
// only hold the top-level response.
func (r PlayerResponse) PreviewVideoID() string { return r.PlayabilityStatus.PreviewVideoID() }

type PlayabilityStatus struct {
	Status            string             `json:"status"`
	Reason            string             `json:"reason"`
	LiveStreamability *LiveStreamability `json:"liveStreamability"`
	ErrorScreen       *ErrorScreen       `json:"errorScreen"`
}

func (p PlayabilityStatus) IsOK() bool   { return p.Status == "OK" }
func (p PlayabilityStatus) IsLive() bool { return p.LiveStreamability != nil }

type LiveStreamability struct {
	LiveStreamabilityRenderer struct {
		VideoID string `json:"videoId"`
	} `json:"liveStreamabilityRenderer"`
}

// ErrorScreen carries the renderer the platform selects when playabilityStatus
// is not OK: either a plain error message, or (for paid content) an offer
// renderer pointing at a free preview/trailer video.
type ErrorScreen struct {
	PlayerErrorMessageRenderer            *PlayerErrorMessageRenderer `json:"playerErrorMessageRenderer"`
	PlayerLegacyDesktopYpcOfferRenderer   *YpcOfferRenderer           `json:"playerLegacyDesktopYpcOfferRenderer"`
	PlayerLegacyDesktopYpcTrailerRenderer *YpcOfferRenderer           `json:"playerLegacyDesktopYpcTrailerRenderer"`
}

type PlayerErrorMessageRenderer struct {
	Reason    LangText `json:"reason"`
	Subreason LangText `json:"subreason"`
}

// YpcOfferRenderer is the paid-content gate: it points at a preview video
// that plays in place of the purchased one.
type YpcOfferRenderer struct {
	PreviewVideo *PreviewVideoEndpoint `json:"previewVideo"`
}

type PreviewVideoEndpoint struct {
	VideoID string `json:"videoId"`
}

type LangText struct {
	SimpleText string    `json:"simpleText"`
	Runs       []TextRun `json:"runs"`
}

type TextRun struct {
	Text string `json:"text"`
}

// PreviewVideoID returns the gated preview video id, if the platform
// reported one.
func (p PlayabilityStatus) PreviewVideoID() string {
	if p.ErrorScreen == nil {
		return ""
	}
	if r := p.ErrorScreen.PlayerLegacyDesktopYpcOfferRenderer; r != nil && r.PreviewVideo != nil {
		return r.PreviewVideo.VideoID
	}
	if r := p.ErrorScreen.PlayerLegacyDesktopYpcTrailerRenderer; r != nil && r.PreviewVideo != nil {
		return r.PreviewVideo.VideoID
	}
	return ""
}

// Subreason returns the flattened subreason text from the error message
// renderer, used to enrich playability classification beyond the top-level
// reason string.
func (p PlayabilityStatus) SubreasonText() string {
	if p.ErrorScreen == nil || p.ErrorScreen.PlayerErrorMessageRenderer == nil {
		return ""
	}
	return langTextToString(p.ErrorScreen.PlayerErrorMessageRenderer.Subreason)
}

func langTextToString(v LangText) string {
	if v.SimpleText != "" {
		return v.SimpleText
	}
	parts := make([]string, 0, len(v.Runs))
	for _, r := range v.Runs {
		if r.Text != "" {
			parts = append(parts, r.Text)
		}
	}
	return strings.Join(parts, " ")
}

type StreamingData struct {
	Formats         []Format `json:"formats"`
	AdaptiveFormats []Format `json:"adaptiveFormats"`
	DashManifestURL string   `json:"dashManifestUrl"`
	HlsManifestURL  string   `json:"hlsManifestUrl"`
}

type Format struct {
	Itag            int         `json:"itag"`
	URL             string      `json:"url"`
	MimeType        string      `json:"mimeType"`
	Bitrate         int         `json:"bitrate"`
	Width           int         `json:"width"`
	Height          int         `json:"height"`
	FPS             int         `json:"fps"`
	QualityLabel    string      `json:"qualityLabel"`
	AudioChannels   int         `json:"audioChannels"`
	AudioTrack      *AudioTrack `json:"audioTrack"`
	ContentLength   string      `json:"contentLength"`
	SignatureCipher string      `json:"signatureCipher"`
}

// AudioTrack is the platform's multi-track audio descriptor, present on
// formats belonging to a video with dubbed/alternate audio tracks.
type AudioTrack struct {
	DisplayName    string `json:"displayName"`
	ID             string `json:"id"`
	AudioIsDefault bool   `json:"audioIsDefault"`
}

type VideoDetails struct {
	VideoID       string `json:"videoId"`
	Title         string `json:"title"`
	IsLiveContent bool   `json:"isLiveContent"`
}
