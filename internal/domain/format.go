package domain

import "strings"

// Format describes a single downloadable stream variant of a video.
// Instances are produced fresh per request from the resolver's manifest,
// are immutable once constructed, and are never cached.
type Format struct {
	ID           string `json:"formatId"`
	QualityLabel string `json:"quality"`
	Container    string `json:"container"`
	HasVideo     bool   `json:"hasVideo"`
	HasAudio     bool   `json:"hasAudio"`
	VideoCodec   string `json:"videoCodec,omitempty"`
	AudioCodec   string `json:"audioCodec,omitempty"`
	Bitrate      int    `json:"bitrate,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	FileSize     int64  `json:"fileSize,omitempty"` // 0 when unknown
	URL          string `json:"-"`
}

// contentTypes maps container extensions to MIME types.
var contentTypes = map[string]string{
	"mp4":  "video/mp4",
	"m4v":  "video/mp4",
	"webm": "video/webm",
	"mkv":  "video/x-matroska",
	"flv":  "video/x-flv",
	"3gp":  "video/3gpp",
	"ts":   "video/mp2t",
	"m4a":  "audio/mp4",
	"mp3":  "audio/mpeg",
	"opus": "audio/opus",
	"ogg":  "audio/ogg",
	"wav":  "audio/wav",
}

// ContentType returns the MIME type for the format's container,
// falling back to application/octet-stream when unknown.
func (f Format) ContentType() string {
	if ct, ok := contentTypes[strings.ToLower(f.Container)]; ok {
		return ct
	}
	return "application/octet-stream"
}

// VideoInfo is the resolved metadata for a target URL. Formats are
// ordered by descending resolution (then bitrate) by the resolver.
type VideoInfo struct {
	ID        string   `json:"videoId"`
	Title     string   `json:"title"`
	Duration  float64  `json:"duration"`
	Thumbnail string   `json:"thumbnail,omitempty"`
	Author    string   `json:"author,omitempty"`
	Formats   []Format `json:"formats"`
}

// SelectFormat picks the format to stream for the given quality selector.
//
// With a selector: exact format-ID match first, then exact quality-label
// match, then the first format carrying both audio and video, then the
// first candidate overall. Without a selector the ID/label steps are
// skipped. Only formats with a usable source URL are candidates; an
// empty candidate set yields ErrNoDownloadableFormat.
func SelectFormat(formats []Format, selector string) (*Format, error) {
	candidates := make([]Format, 0, len(formats))
	for _, f := range formats {
		if f.URL != "" {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoDownloadableFormat
	}

	if selector != "" {
		for i := range candidates {
			if candidates[i].ID == selector {
				return &candidates[i], nil
			}
		}
		for i := range candidates {
			if candidates[i].QualityLabel == selector {
				return &candidates[i], nil
			}
		}
	}

	for i := range candidates {
		if candidates[i].HasAudio && candidates[i].HasVideo {
			return &candidates[i], nil
		}
	}

	return &candidates[0], nil
}
