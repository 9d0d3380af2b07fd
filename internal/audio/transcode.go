package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
)

// Normalizer converts a downloaded file into the container and sample rate
// the speech API handles best. It returns the output path and a cleanup func.
type Normalizer interface {
	Normalize(ctx context.Context, inputPath, container string, sampleRate int) (string, func(), error)
}

var (
	ffmpegOnce      sync.Once
	ffmpegAvailable bool
)

// CheckFFmpeg reports whether ffmpeg is in PATH. The lookup runs once.
func CheckFFmpeg() bool {
	ffmpegOnce.Do(func() {
		_, err := exec.LookPath("ffmpeg")
		ffmpegAvailable = err == nil
	})
	return ffmpegAvailable
}

// FFmpeg normalizes audio with the ffmpeg binary:
//   - drop any video stream (video notes)
//   - downmix to mono
//   - resample to the target rate
//
// If ffmpeg is unavailable it returns the input path with a no-op cleanup,
// so foreign formats are downloaded but not resampled.
type FFmpeg struct {
	TempDir string
}

func (f FFmpeg) Normalize(ctx context.Context, inputPath, container string, sampleRate int) (string, func(), error) {
	noop := func() {}

	if !CheckFFmpeg() {
		return inputPath, noop, nil
	}

	out, err := os.CreateTemp(f.TempDir, "voicebot-normalized-*."+container)
	if err != nil {
		return inputPath, noop, fmt.Errorf("create output file: %w", err)
	}
	outPath := out.Name()
	out.Close()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		outPath,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		os.Remove(outPath)
		return inputPath, noop, fmt.Errorf("ffmpeg normalize: %w: %s", err, output)
	}

	cleanup := func() {
		os.Remove(outPath)
	}
	return outPath, cleanup, nil
}
