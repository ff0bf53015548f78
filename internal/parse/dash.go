package parse

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DASHRepresentation is a single adaptive Representation resolved out of a
// DASH MPD manifest, trimmed to the fields the normalizer needs.
type DASHRepresentation struct {
	ID              string
	URL             string
	MimeType        string
	Container       string
	Codecs          []string
	Bitrate         int
	Width           int
	Height          int
	FPS             int
	AudioSampleRate int
	HasAudio        bool
	HasVideo        bool
	Segments        []string // absolute URLs, present only for explicit SegmentList representations
}

type dashMPD struct {
	XMLName xml.Name     `xml:"MPD"`
	BaseURL string       `xml:"BaseURL"`
	Periods []dashPeriod `xml:"Period"`
}

type dashPeriod struct {
	AdaptationSets []dashAdaptationSet `xml:"AdaptationSet"`
}

type dashAdaptationSet struct {
	MimeType string               `xml:"mimeType,attr"`
	Codecs   string               `xml:"codecs,attr"`
	Rep      []dashRepresentation `xml:"Representation"`
}

type dashRepresentation struct {
	ID                string           `xml:"id,attr"`
	Bandwidth         int              `xml:"bandwidth,attr"`
	Width             int              `xml:"width,attr"`
	Height            int              `xml:"height,attr"`
	FrameRate         string           `xml:"frameRate,attr"`
	MimeType          string           `xml:"mimeType,attr"`
	Codecs            string           `xml:"codecs,attr"`
	AudioSamplingRate string           `xml:"audioSamplingRate,attr"`
	BaseURL           string           `xml:"BaseURL"`
	SegmentList       *dashSegmentList `xml:"SegmentList"`
}

type dashSegmentList struct {
	SegmentURLs []dashSegmentURL `xml:"SegmentURL"`
}

type dashSegmentURL struct {
	Media string `xml:"media,attr"`
}

// ParseDASHManifest parses a DASH MPD document into normalized
// representations.
func ParseDASHManifest(raw, manifestURL string) ([]DASHRepresentation, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var mpd dashMPD
	if err := xml.Unmarshal([]byte(raw), &mpd); err != nil {
		return nil, fmt.Errorf("parse: decoding dash mpd: %w", err)
	}

	out := make([]DASHRepresentation, 0, 16)
	base := strings.TrimSpace(mpd.BaseURL)
	for _, period := range mpd.Periods {
		for _, adp := range period.AdaptationSets {
			for _, rep := range adp.Rep {
				uri := strings.TrimSpace(rep.BaseURL)
				if uri == "" {
					continue
				}
				absURL := resolveManifestRefURL(manifestURL, base, uri)
				mimeType := firstNonEmpty(strings.TrimSpace(rep.MimeType), strings.TrimSpace(adp.MimeType))
				codecsRaw := firstNonEmpty(strings.TrimSpace(rep.Codecs), strings.TrimSpace(adp.Codecs))
				if mimeType != "" && codecsRaw != "" && !strings.Contains(mimeType, "codecs=") {
					mimeType = mimeType + `; codecs="` + codecsRaw + `"`
				}
				container, codecs := mimeDetails(mimeType)
				audio, video := hasAudioVideo(mimeType, codecs)
				if rep.Width > 0 || rep.Height > 0 {
					video = true
				}
				if rep.AudioSamplingRate != "" {
					audio = true
				}

				var segments []string
				if rep.SegmentList != nil {
					for _, s := range rep.SegmentList.SegmentURLs {
						media := strings.TrimSpace(s.Media)
						if media == "" {
							continue
						}
						segments = append(segments, resolveManifestRefURL(manifestURL, base, media))
					}
				}

				out = append(out, DASHRepresentation{
					ID:              rep.ID,
					URL:             absURL,
					MimeType:        mimeType,
					Container:       container,
					Codecs:          codecs,
					Bitrate:         rep.Bandwidth,
					Width:           rep.Width,
					Height:          rep.Height,
					FPS:             parseFrameRate(rep.FrameRate),
					AudioSampleRate: parseIntOrZero(rep.AudioSamplingRate),
					HasAudio:        audio,
					HasVideo:        video,
					Segments:        segments,
				})
			}
		}
	}
	return out, nil
}

func parseFrameRate(raw string) int {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}
	if strings.Contains(s, "/") {
		parts := strings.SplitN(s, "/", 2)
		if len(parts) != 2 {
			return 0
		}
		num, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		den, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err1 != nil || err2 != nil || den == 0 {
			return 0
		}
		return int(num / den)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(v)
}

func parseIntOrZero(raw string) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return v
}

func resolveManifestRefURL(manifestURL, manifestBase, ref string) string {
	candidates := []string{ref}
	if manifestBase != "" {
		candidates = append(candidates, manifestBase+ref)
	}
	for _, c := range candidates {
		u, err := url.Parse(c)
		if err == nil && u.IsAbs() {
			return u.String()
		}
	}
	base, err := url.Parse(manifestURL)
	if err != nil {
		return ref
	}
	if manifestBase != "" {
		if base2, err := base.Parse(manifestBase); err == nil {
			base = base2
		}
	}
	if out, err := base.Parse(ref); err == nil {
		return out.String()
	}
	return ref
}
