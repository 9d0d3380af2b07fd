package audio

import (
	"path/filepath"
	"strings"
)

// Format describes how an attachment container is handled.
type Format struct {
	Codec       string
	Native      bool    // recognizable as-is, no transcoding
	BitrateKbps float64 // assumed bitrate for duration heuristics only
}

// Telegram voice notes arrive as Opus-in-Ogg, which the speech API accepts directly.
var formats = map[string]Format{
	"ogg": {Codec: "opus", Native: true, BitrateKbps: 64},
	"oga": {Codec: "opus", Native: true, BitrateKbps: 64},
	"mp4": {Codec: "aac", BitrateKbps: 96},
	"mp3": {Codec: "mp3", BitrateKbps: 128},
	"wav": {Codec: "pcm", BitrateKbps: 1411},
	"m4a": {Codec: "aac", BitrateKbps: 96},
}

const (
	unknown            = "unknown"
	defaultBitrateKbps = 96

	minEstimatedDuration = 0.1
	maxEstimatedDuration = 600.0
)

// DetectFormat classifies a file path by its extension.
// Unknown or missing extensions yield codec "unknown" and a non-native format.
func DetectFormat(path string) (container string, f Format) {
	container = strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if container == "" {
		return unknown, Format{Codec: unknown, BitrateKbps: defaultBitrateKbps}
	}
	f, ok := formats[container]
	if !ok {
		return container, Format{Codec: unknown, BitrateKbps: defaultBitrateKbps}
	}
	return container, f
}

// EstimateDuration guesses the duration in seconds from the byte size,
// clamped to [0.1, 600]. Sizes <= 0 return 0.
func EstimateDuration(byteSize int64, container string) float64 {
	if byteSize <= 0 {
		return 0
	}
	kbps := float64(defaultBitrateKbps)
	if f, ok := formats[container]; ok {
		kbps = f.BitrateKbps
	}
	secs := float64(byteSize) / (kbps * 1024 / 8)
	return max(minEstimatedDuration, min(secs, maxEstimatedDuration))
}
