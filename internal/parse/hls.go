package parse

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mogiioin/hls-m3u8/m3u8"
)

// HLSVariant is a single media playlist entry resolved out of a master
// playlist.
type HLSVariant struct {
	URL       string
	Bandwidth int
	Width     int
	Height    int
	FPS       int
	Codecs    []string
	Container string
	Itag      int
	HasAudio  bool
	HasVideo  bool
}

// ParseHLSMasterPlaylist normalizes a decoded master playlist's variants.
// The controller decodes the raw bytes through the shared retrying
// transport and hands the result here, rather than this package owning its
// own HTTP fetch.
func ParseHLSMasterPlaylist(playlist *m3u8.MasterPlaylist, manifestURL string) ([]HLSVariant, error) {
	out := make([]HLSVariant, 0, len(playlist.Variants))
	for _, v := range playlist.Variants {
		if v.Iframe || v.URI == "" {
			continue
		}
		absURL := resolveM3U8RefURL(manifestURL, v.URI)
		width, height := parseM3U8Resolution(v.Resolution)
		codecs := splitCodecs(v.Codecs)
		mimeType := inferMimeFromCodecs(codecs)
		container, _ := mimeDetails(mimeType)
		audio, video := hasAudioVideo(mimeType, codecs)
		if width > 0 || height > 0 {
			video = true
		}

		out = append(out, HLSVariant{
			URL:       absURL,
			Bandwidth: int(v.Bandwidth),
			Width:     width,
			Height:    height,
			FPS:       int(v.FrameRate),
			Codecs:    codecs,
			Container: container,
			Itag:      inferItagFromURL(absURL),
			HasAudio:  audio,
			HasVideo:  video,
		})
	}
	return out, nil
}

func splitCodecs(raw string) []string {
	var out []string
	for _, c := range strings.Split(raw, ",") {
		c = strings.TrimSpace(c)
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func inferMimeFromCodecs(codecs []string) string {
	if len(codecs) == 0 {
		return ""
	}
	hasVideo := false
	for _, c := range codecs {
		lc := strings.ToLower(c)
		if strings.HasPrefix(lc, "avc1") || strings.HasPrefix(lc, "av01") || strings.HasPrefix(lc, "hev1") || strings.HasPrefix(lc, "hvc1") {
			hasVideo = true
		}
	}
	kind := "audio"
	if hasVideo {
		kind = "video"
	}
	return fmt.Sprintf(`%s/mp4; codecs="%s"`, kind, strings.Join(codecs, ","))
}

func parseM3U8Resolution(raw string) (width, height int) {
	parts := strings.SplitN(raw, "x", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errW != nil || errH != nil {
		return 0, 0
	}
	return w, h
}

func resolveM3U8RefURL(manifestURL, ref string) string {
	u, err := url.Parse(ref)
	if err == nil && u.IsAbs() {
		return u.String()
	}
	base, err := url.Parse(manifestURL)
	if err != nil {
		return ref
	}
	if out, err := base.Parse(ref); err == nil {
		return out.String()
	}
	return ref
}

// inferItagFromURL recovers a synthetic itag from a variant URL: first the
// `itag` query parameter, then a `.../itag/<N>/...` path-segment fallback
// for variant URLs that carry no query string at all.
func inferItagFromURL(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	if itag := u.Query().Get("itag"); itag != "" {
		if n, err := strconv.Atoi(itag); err == nil && n > 0 {
			return n
		}
	}
	parts := strings.Split(u.Path, "/")
	for i, p := range parts {
		if p == "itag" && i+1 < len(parts) {
			if n, err := strconv.Atoi(parts[i+1]); err == nil && n > 0 {
				return n
			}
		}
	}
	return 0
}
