package audio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/voicebot/internal/metrics"
)

// Defaults for the slow path and the payload cache.
const (
	DefaultTargetContainer  = "wav"
	DefaultTargetSampleRate = 16000
	DefaultCacheTTL         = time.Hour
)

type metadataInspector interface {
	Inspect(ctx context.Context, id string) Metadata
}

type fetcher interface {
	FetchNative(ctx context.Context, meta Metadata) ([]byte, error)
	FetchAndNormalize(ctx context.Context, meta Metadata, container string, sampleRate int) ([]byte, error)
}

// Cache is the byte cache used for acquired payloads. Implementations must
// swallow their own failures.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// AcquisitionOptions configures the acquisition service.
type AcquisitionOptions struct {
	Inspector        metadataInspector
	Fetcher          fetcher
	Cache            Cache // nil disables caching
	CacheTTL         time.Duration
	MaxFileSize      int64 // 0 = unlimited
	TargetContainer  string
	TargetSampleRate int
	Log              zerolog.Logger
}

// AcquisitionService turns an attachment reference into recognizable audio bytes,
// routing native formats around transcoding and caching the final bytes.
type AcquisitionService struct {
	opts AcquisitionOptions
	log  zerolog.Logger
}

func NewAcquisitionService(opts AcquisitionOptions) *AcquisitionService {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.TargetContainer == "" {
		opts.TargetContainer = DefaultTargetContainer
	}
	if opts.TargetSampleRate <= 0 {
		opts.TargetSampleRate = DefaultTargetSampleRate
	}
	return &AcquisitionService{opts: opts, log: opts.Log}
}

// Acquire returns the audio bytes for an attachment. Fetch failures are
// returned as *AcquisitionError; metadata and cache problems only degrade speed.
func (s *AcquisitionService) Acquire(ctx context.Context, id string) ([]byte, error) {
	start := time.Now()

	meta := s.opts.Inspector.Inspect(ctx, id)
	s.log.Info().
		Str("attachment_id", id).
		Str("container", meta.Container).
		Int64("bytes", meta.ByteSize).
		Float64("estimated_duration", meta.EstimatedDuration).
		Bool("native", meta.NativeFastPath).
		Msg("attachment inspected")

	if s.opts.Cache != nil {
		if data, ok := s.opts.Cache.Get(ctx, id); ok && len(data) > 0 {
			metrics.AcquisitionPathTotal.WithLabelValues("cache").Inc()
			s.log.Info().Str("attachment_id", id).Msg("cache hit")
			return data, nil
		}
	}

	if s.opts.MaxFileSize > 0 && meta.ByteSize > s.opts.MaxFileSize {
		return nil, &AcquisitionError{
			AttachmentID: id,
			Op:           "size",
			Err:          fmt.Errorf("file is %d bytes, limit is %d", meta.ByteSize, s.opts.MaxFileSize),
		}
	}

	var (
		data []byte
		err  error
	)
	if meta.NativeFastPath {
		metrics.AcquisitionPathTotal.WithLabelValues("fast").Inc()
		data, err = s.opts.Fetcher.FetchNative(ctx, meta)
	} else {
		metrics.AcquisitionPathTotal.WithLabelValues("slow").Inc()
		data, err = s.opts.Fetcher.FetchAndNormalize(ctx, meta, s.opts.TargetContainer, s.opts.TargetSampleRate)
	}
	if err != nil {
		var aerr *AcquisitionError
		if !errors.As(err, &aerr) {
			err = &AcquisitionError{AttachmentID: id, Op: "download", Err: err}
		}
		s.log.Error().Err(err).Str("attachment_id", id).Msg("audio acquisition failed")
		return nil, err
	}

	if s.opts.Cache != nil {
		s.opts.Cache.Set(ctx, id, data, s.opts.CacheTTL)
	}

	s.log.Info().
		Str("attachment_id", id).
		Int("bytes", len(data)).
		Dur("elapsed", time.Since(start)).
		Msg("audio acquired")
	return data, nil
}

// Ready reports whether the service has its collaborators.
func (s *AcquisitionService) Ready() bool {
	return s != nil && s.opts.Inspector != nil && s.opts.Fetcher != nil
}
