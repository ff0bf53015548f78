package parse

import "strings"

// Quality is a coarse resolution tier derived from a quality label or a
// pixel height.
type Quality int

const (
	QualityUnknown Quality = iota
	QualityLow
	QualityMedium
	QualityHigh
	QualityHD
	QualityFullHD
	Quality2K
	Quality4K
)

var qualityLabelOrder = []struct {
	prefix  string
	quality Quality
}{
	{"2160p", Quality4K},
	{"1440p", Quality2K},
	{"1080p", QualityFullHD},
	{"720p", QualityHD},
	{"480p", QualityHigh},
	{"360p", QualityMedium},
	{"240p", QualityLow},
	{"144p", QualityLow},
}

// QualityFromLabel classifies a qualityLabel value such as "1080p60" into
// a coarse tier.
func QualityFromLabel(label string) Quality {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return QualityUnknown
	}
	for _, entry := range qualityLabelOrder {
		if strings.HasPrefix(label, entry.prefix) {
			return entry.quality
		}
	}
	return QualityUnknown
}

// QualityFromHeight classifies a pixel height into the same tiers, used
// for DASH/HLS representations that carry height but no quality label.
func QualityFromHeight(height int) Quality {
	switch {
	case height >= 2160:
		return Quality4K
	case height >= 1440:
		return Quality2K
	case height >= 1080:
		return QualityFullHD
	case height >= 720:
		return QualityHD
	case height >= 480:
		return QualityHigh
	case height >= 360:
		return QualityMedium
	case height > 0:
		return QualityLow
	default:
		return QualityUnknown
	}
}

func (q Quality) String() string {
	switch q {
	case Quality4K:
		return "2160p"
	case Quality2K:
		return "1440p"
	case QualityFullHD:
		return "1080p"
	case QualityHD:
		return "720p"
	case QualityHigh:
		return "480p"
	case QualityMedium:
		return "360p"
	case QualityLow:
		return "144p"
	default:
		return "unknown"
	}
}
