package audio

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Metadata is derived once per attachment and never persisted.
type Metadata struct {
	ID                string
	ByteSize          int64
	Container         string
	Codec             string
	NativeFastPath    bool
	EstimatedDuration float64 // seconds, coarse
	FilePath          string
}

// Inspector classifies attachments without downloading them.
type Inspector struct {
	src Source
	log zerolog.Logger
}

func NewInspector(src Source, log zerolog.Logger) *Inspector {
	return &Inspector{src: src, log: log}
}

// Inspect never fails: on lookup errors it returns metadata that routes the
// attachment to the slow path with an unknown codec and zero size.
func (in *Inspector) Inspect(ctx context.Context, id string) Metadata {
	f, err := in.src.Resolve(ctx, id)
	if err == nil {
		switch {
		case f.Path == "":
			err = errors.New("attachment has no file path")
		case f.Size <= 0:
			err = errors.New("attachment has no file size")
		}
	}
	if err != nil {
		in.log.Error().Err(err).Str("attachment_id", id).Msg("metadata lookup failed, using fallback metadata")
		return Metadata{ID: id, Container: unknown, Codec: unknown}
	}

	container, format := DetectFormat(f.Path)
	return Metadata{
		ID:                id,
		ByteSize:          f.Size,
		Container:         container,
		Codec:             format.Codec,
		NativeFastPath:    format.Native,
		EstimatedDuration: EstimateDuration(f.Size, container),
		FilePath:          f.Path,
	}
}
