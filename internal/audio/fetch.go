package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Fetcher downloads attachment content.
type Fetcher struct {
	src     Source
	norm    Normalizer // nil = pass-through
	tempDir string
	log     zerolog.Logger
}

// NewFetcher creates a Fetcher. norm may be nil to disable transcoding.
func NewFetcher(src Source, norm Normalizer, tempDir string, log zerolog.Logger) *Fetcher {
	return &Fetcher{src: src, norm: norm, tempDir: tempDir, log: log}
}

// file returns the download location for an attachment. Metadata from a
// successful inspection already carries it; otherwise the source is asked again.
func (f *Fetcher) file(ctx context.Context, meta Metadata) (File, error) {
	if meta.FilePath != "" {
		return File{ID: meta.ID, Path: meta.FilePath, Size: meta.ByteSize}, nil
	}
	file, err := f.src.Resolve(ctx, meta.ID)
	if err != nil {
		return File{}, &AcquisitionError{AttachmentID: meta.ID, Op: "resolve", Err: err}
	}
	if file.Path == "" {
		return File{}, &AcquisitionError{AttachmentID: meta.ID, Op: "resolve", Err: errors.New("attachment has no file path")}
	}
	return file, nil
}

// FetchNative downloads the attachment into memory with no transformation.
func (f *Fetcher) FetchNative(ctx context.Context, meta Metadata) ([]byte, error) {
	id := meta.ID
	file, err := f.file(ctx, meta)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if file.Size > 0 {
		buf.Grow(int(file.Size))
	}
	if _, err := f.src.Download(ctx, file.Path, &buf); err != nil {
		return nil, &AcquisitionError{AttachmentID: id, Op: "download", Err: err}
	}

	f.log.Debug().Str("attachment_id", id).Int("bytes", buf.Len()).Msg("downloaded")
	return buf.Bytes(), nil
}

// FetchAndNormalize downloads the attachment to a temporary file and converts
// it to container/sampleRate mono. Temporary files are removed on every exit path.
// If normalization fails the downloaded bytes are returned unchanged.
func (f *Fetcher) FetchAndNormalize(ctx context.Context, meta Metadata, container string, sampleRate int) ([]byte, error) {
	id := meta.ID
	file, err := f.file(ctx, meta)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(f.tempDir, "voicebot-src-*"+filepath.Ext(file.Path))
	if err != nil {
		return nil, &AcquisitionError{AttachmentID: id, Op: "download", Err: fmt.Errorf("create temp: %w", err)}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	_, err = f.src.Download(ctx, file.Path, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, &AcquisitionError{AttachmentID: id, Op: "download", Err: err}
	}

	readPath := tmpPath
	if f.norm != nil {
		out, cleanup, err := f.norm.Normalize(ctx, tmpPath, container, sampleRate)
		if err != nil {
			f.log.Warn().Err(err).Str("attachment_id", id).Msg("normalization failed, using original audio")
		} else {
			readPath = out
			defer cleanup()
		}
	}

	data, err := os.ReadFile(readPath)
	if err != nil {
		return nil, &AcquisitionError{AttachmentID: id, Op: "normalize", Err: err}
	}

	f.log.Debug().
		Str("attachment_id", id).
		Str("container", container).
		Int("sample_rate", sampleRate).
		Bool("transcoded", readPath != tmpPath).
		Int("bytes", len(data)).
		Msg("downloaded and normalized")
	return data, nil
}
