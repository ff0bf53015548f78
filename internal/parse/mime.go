package parse

import (
	"mime"
	"strings"
)

// mimeDetails splits a MIME type such as `video/mp4; codecs="avc1.4d401f"`
// into a container and its codec list.
func mimeDetails(raw string) (container string, codecs []string) {
	mediaType, params, err := mime.ParseMediaType(raw)
	if err != nil {
		return "", nil
	}
	if parts := strings.SplitN(mediaType, "/", 2); len(parts) == 2 {
		container = strings.ToLower(parts[1])
	}
	if rawCodecs, ok := params["codecs"]; ok {
		for _, codec := range strings.Split(rawCodecs, ",") {
			codec = strings.TrimSpace(codec)
			if codec != "" {
				codecs = append(codecs, codec)
			}
		}
	}
	return container, codecs
}

// hasAudioVideo classifies a track by MIME type and codec list.
func hasAudioVideo(mimeType string, codecs []string) (audio, video bool) {
	lower := strings.ToLower(mimeType)
	if strings.HasPrefix(lower, "audio/") {
		audio = true
	}
	if strings.HasPrefix(lower, "video/") {
		video = true
	}
	for _, codec := range codecs {
		lc := strings.ToLower(codec)
		switch {
		case strings.HasPrefix(lc, "mp4a"), strings.HasPrefix(lc, "opus"), strings.HasPrefix(lc, "vorbis"), strings.HasPrefix(lc, "aac"):
			audio = true
		case strings.HasPrefix(lc, "avc1"), strings.HasPrefix(lc, "av01"), strings.HasPrefix(lc, "vp9"), strings.HasPrefix(lc, "vp8"),
			strings.HasPrefix(lc, "hev1"), strings.HasPrefix(lc, "hvc1"):
			video = true
		}
	}
	return audio, video
}

// MimeDetails exposes mimeDetails to callers outside this package, for
// normalizing a player response's Format.MimeType the same way DASH
// representations already are.
func MimeDetails(raw string) (container string, codecs []string) { return mimeDetails(raw) }

// HasAudioVideo exposes hasAudioVideo to callers outside this package.
func HasAudioVideo(mimeType string, codecs []string) (audio, video bool) {
	return hasAudioVideo(mimeType, codecs)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
