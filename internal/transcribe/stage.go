package transcribe

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Extensions the transcription endpoint accepts. The upload is routed by
// file name, so sniffed types outside this set are sent as .wav.
var uploadExtensions = map[string]bool{
	".flac": true,
	".m4a":  true,
	".mp3":  true,
	".mp4":  true,
	".mpga": true,
	".oga":  true,
	".ogg":  true,
	".wav":  true,
	".webm": true,
}

const defaultUploadExt = ".wav"

// uploadExt picks a file extension for the payload by content sniffing.
func uploadExt(data []byte) string {
	ext := mimetype.Detect(data).Extension()
	if ext == ".ogx" || ext == ".opus" {
		ext = ".ogg"
	}
	if !uploadExtensions[ext] {
		return defaultUploadExt
	}
	return ext
}

// stageAudio writes the payload to a uniquely named temp file.
// Returns the path and a cleanup function that removes it.
func stageAudio(dir string, data []byte) (string, func(), error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "voicebot-stt-"+uuid.NewString()+uploadExt(data))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		os.Remove(path)
		return "", func() {}, fmt.Errorf("stage audio: %w", err)
	}
	return path, func() { os.Remove(path) }, nil
}
