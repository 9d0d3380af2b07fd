// Package pipeline turns an attachment reference into text: acquire the
// audio, recognize it with the user's language hint, learn from the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/voicebot/internal/language"
	"github.com/snarg/voicebot/internal/metrics"
	"github.com/snarg/voicebot/internal/transcribe"
)

// Acquirer produces recognizable audio bytes for an attachment.
type Acquirer interface {
	Acquire(ctx context.Context, attachmentID string) ([]byte, error)
	Ready() bool
}

// Recognizer turns audio into text.
type Recognizer interface {
	Transcribe(ctx context.Context, audio []byte, opts transcribe.Options) (*transcribe.Result, error)
	Ready() bool
}

// LanguageStore holds per-user language preferences.
type LanguageStore interface {
	Hint(ctx context.Context, userID string) (string, bool)
	Update(ctx context.Context, userID, observed string, observation float64)
}

// Options configures a Pipeline. Languages and Recognition default to
// in-process instances when nil.
type Options struct {
	Acquirer    Acquirer
	Recognizer  Recognizer
	Languages   LanguageStore
	Recognition *metrics.Recognition
	Log         zerolog.Logger
}

// Request identifies one attachment to process.
type Request struct {
	AttachmentID string
	UserID       string
	ChatID       string // where failure notices go; empty disables them
}

// Detailed is the full outcome of a successful run.
type Detailed struct {
	RequestID       string  `json:"request_id"`
	Text            string  `json:"text"`
	Language        string  `json:"language"`
	Confidence      float64 `json:"confidence"`
	AudioBytes      int     `json:"audio_bytes"`
	AudioTime       float64 `json:"audio_time"`
	RecognitionTime float64 `json:"recognition_time"`
	TotalTime       float64 `json:"total_time"`
}

// Pipeline is safe for concurrent use; each call is an independent chain.
type Pipeline struct {
	acquirer    Acquirer
	recognizer  Recognizer
	languages   LanguageStore
	recognition *metrics.Recognition
	stats       stats
	log         zerolog.Logger
}

func New(opts Options) *Pipeline {
	log := opts.Log.With().Str("component", "pipeline").Logger()
	if opts.Languages == nil {
		opts.Languages = language.NewStore(nil, nil, 0, opts.Log)
	}
	if opts.Recognition == nil {
		opts.Recognition = metrics.NewRecognition()
	}
	return &Pipeline{
		acquirer:    opts.Acquirer,
		recognizer:  opts.Recognizer,
		languages:   opts.Languages,
		recognition: opts.Recognition,
		log:         log,
	}
}

// Process transcribes an attachment sent by userID. Failure notices, if
// any, are sent to userID's private chat. Errors are always *Error.
func (p *Pipeline) Process(ctx context.Context, attachmentID, userID string) (string, error) {
	d, err := p.ProcessDetailed(ctx, Request{AttachmentID: attachmentID, UserID: userID, ChatID: userID})
	if err != nil {
		return "", err
	}
	return d.Text, nil
}

// ProcessDetailed is Process with timings and the detected language.
func (p *Pipeline) ProcessDetailed(ctx context.Context, req Request) (d *Detailed, err error) {
	reqID := uuid.NewString()
	log := p.log.With().
		Str("request_id", reqID).
		Str("attachment_id", req.AttachmentID).
		Str("user_id", req.UserID).
		Logger()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("pipeline panicked")
			d, err = nil, p.fail(log, StageUnexpected, fmt.Errorf("panic: %v", r))
		}
	}()

	if p.acquirer == nil || p.recognizer == nil {
		return nil, p.fail(log, StageUnexpected, errors.New("pipeline not initialized"))
	}

	audioStart := time.Now()
	data, err := p.acquirer.Acquire(ctx, req.AttachmentID)
	audioTime := time.Since(audioStart).Seconds()
	metrics.PipelineStageDuration.WithLabelValues(string(StageAcquire)).Observe(audioTime)
	if err != nil {
		return nil, p.fail(log, StageAcquire, err)
	}

	hint, _ := p.languages.Hint(ctx, req.UserID)

	speechStart := time.Now()
	res, err := p.recognizer.Transcribe(ctx, data, transcribe.Options{
		LanguageHint: hint,
		NotifyChatID: req.ChatID,
	})
	speechTime := time.Since(speechStart).Seconds()
	metrics.PipelineStageDuration.WithLabelValues(string(StageRecognize)).Observe(speechTime)
	if err != nil {
		return nil, p.fail(log, StageRecognize, err)
	}

	if res.Language != "" && res.Language != "unknown" {
		p.languages.Update(ctx, req.UserID, res.Language, language.ObservationConfidence(res.Text))
	}

	total := time.Since(start).Seconds()
	p.stats.success(total, audioTime, speechTime)
	p.recognition.Record(req.UserID, total, res.Language)
	metrics.PipelineStageDuration.WithLabelValues("total").Observe(total)
	metrics.PipelineRequestsTotal.WithLabelValues("success", "complete").Inc()

	log.Info().
		Str("language", res.Language).
		Str("hint", hint).
		Int("audio_bytes", len(data)).
		Float64("audio_time", audioTime).
		Float64("recognition_time", speechTime).
		Float64("total_time", total).
		Msg("voice message processed")

	return &Detailed{
		RequestID:       reqID,
		Text:            res.Text,
		Language:        res.Language,
		Confidence:      res.Confidence,
		AudioBytes:      len(data),
		AudioTime:       audioTime,
		RecognitionTime: speechTime,
		TotalTime:       total,
	}, nil
}

func (p *Pipeline) fail(log zerolog.Logger, stage Stage, err error) *Error {
	p.stats.failure()
	metrics.PipelineRequestsTotal.WithLabelValues("error", string(stage)).Inc()

	perr := &Error{Stage: stage, Err: err}
	var rerr *transcribe.RecognitionError
	if errors.As(err, &rerr) {
		perr.AlreadyNotified = rerr.AlreadyNotified
	}
	log.Error().Err(err).Str("stage", string(stage)).Bool("already_notified", perr.AlreadyNotified).Msg("voice message failed")
	return perr
}

// PerformanceMetrics returns counters and mean stage timings since start.
func (p *Pipeline) PerformanceMetrics() PerformanceMetrics {
	return p.stats.snapshot()
}

// RecognitionSummary returns per-language and per-user usage.
func (p *Pipeline) RecognitionSummary() metrics.RecognitionSummary {
	return p.recognition.Summary()
}

// Totals implements metrics.PipelineStats.
func (p *Pipeline) Totals() (processed, succeeded, failed int64) {
	m := p.stats.snapshot()
	return m.TotalProcessed, m.SuccessCount, m.ErrorCount
}

// AverageTotalTime implements metrics.PipelineStats.
func (p *Pipeline) AverageTotalTime() float64 {
	return p.stats.snapshot().AverageTotalTime
}

// LogStats logs counters every interval until ctx is done.
func (p *Pipeline) LogStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastTotal int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := p.stats.snapshot()
			delta := m.TotalProcessed - lastTotal
			lastTotal = m.TotalProcessed
			if delta == 0 {
				continue
			}
			p.log.Info().
				Int64("total", m.TotalProcessed).
				Int64("last_interval", delta).
				Int64("errors", m.ErrorCount).
				Float64("avg_total_time", m.AverageTotalTime).
				Bool("target_met", m.PerformanceTargetMet).
				Msg("stats")
		}
	}
}
