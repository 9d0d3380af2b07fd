package transcribe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/snarg/voicebot/internal/metrics"
	"golang.org/x/time/rate"
)

// Defaults mirror the documented API limits.
const (
	DefaultMaxAttempts       = 3
	DefaultTimeout           = 30 * time.Second
	DefaultRequestsPerMinute = 50

	temperatureHinted   = 0.0
	temperatureUnhinted = 0.2

	retryDelay = time.Second
)

// FailureMessage is sent to the user once retries are exhausted.
const FailureMessage = "⚠️ Recognition failed. Please try again later."

// Notifier delivers a short message to a chat.
type Notifier interface {
	Notify(ctx context.Context, chatID, text string) error
}

// ClientOptions configures a Client.
type ClientOptions struct {
	Provider          Provider
	MaxAttempts       int
	Timeout           time.Duration // per attempt
	RequestsPerMinute int           // <= 0 disables the limiter
	PriorityLanguages []string      // hints outside this list are dropped
	Notifier          Notifier      // nil = never notify
	TempDir           string
	Log               zerolog.Logger
}

// Options are per-call settings.
type Options struct {
	LanguageHint string
	NotifyChatID string // empty = do not notify on failure
}

// Result is one successful recognition.
type Result struct {
	Text           string
	Language       string
	Confidence     float64
	ProcessingTime float64 // seconds
}

// RecognitionError is returned once the client gives up.
type RecognitionError struct {
	Attempts        int
	RateLimited     bool // last failure was a rate limit
	AlreadyNotified bool // the user has been told about the failure
	Err             error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognition failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// Client wraps a Provider with rate limiting, per-attempt timeouts and retries.
type Client struct {
	opts    ClientOptions
	limiter *rate.Limiter
	timer   backoff.Timer // nil = real timer
	log     zerolog.Logger
}

// NewClient creates a Client, filling unset options with defaults.
func NewClient(opts ClientOptions) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	langs := make([]string, 0, len(opts.PriorityLanguages))
	for _, l := range opts.PriorityLanguages {
		langs = append(langs, strings.ToLower(strings.TrimSpace(l)))
	}
	opts.PriorityLanguages = langs

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), opts.RequestsPerMinute)
	}

	return &Client{
		opts:    opts,
		limiter: limiter,
		log:     opts.Log.With().Str("component", "transcribe").Logger(),
	}
}

// Ready reports whether a provider is configured.
func (c *Client) Ready() bool {
	return c != nil && c.opts.Provider != nil
}

// Model returns the provider's model name.
func (c *Client) Model() string {
	if !c.Ready() {
		return ""
	}
	return c.opts.Provider.Model()
}

// Transcribe recognizes audio. Rate-limit failures back off exponentially,
// timeouts and other API errors retry after a fixed delay, and anything else
// fails immediately.
func (c *Client) Transcribe(ctx context.Context, audio []byte, opts Options) (*Result, error) {
	start := time.Now()
	if !c.Ready() {
		return nil, &RecognitionError{Err: errors.New("no transcription provider configured")}
	}
	if len(audio) == 0 {
		return nil, &RecognitionError{Err: errors.New("empty audio")}
	}

	path, cleanup, err := stageAudio(c.opts.TempDir, audio)
	if err != nil {
		return nil, &RecognitionError{Err: err}
	}
	defer cleanup()

	req := TranscribeOpts{Temperature: temperatureUnhinted}
	if hint := strings.ToLower(opts.LanguageHint); hint != "" && slices.Contains(c.opts.PriorityLanguages, hint) {
		req.Language = hint
		req.Temperature = temperatureHinted
	}

	var (
		resp     *Response
		attempts int
		bo       = &attemptBackOff{}
	)
	op := func() error {
		attempts++
		if err := c.limiter.Wait(ctx); err != nil {
			bo.last = kindCanceled
			return backoff.Permanent(fmt.Errorf("rate limiter: %w", err))
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		r, err := c.opts.Provider.Transcribe(attemptCtx, path, req)
		if err == nil {
			resp = r
			metrics.RecognitionAttemptsTotal.WithLabelValues("success").Inc()
			return nil
		}

		bo.last = classify(ctx, err)
		metrics.RecognitionAttemptsTotal.WithLabelValues(bo.last.String()).Inc()
		if !bo.last.retryable() {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		c.log.Warn().Err(err).
			Int("attempt", attempts).
			Int("max_attempts", c.opts.MaxAttempts).
			Str("reason", bo.last.String()).
			Dur("retry_in", next).
			Msg("transcription attempt failed")
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.opts.MaxAttempts-1)), ctx)
	if err := backoff.RetryNotifyWithTimer(op, policy, notify, c.timer); err != nil {
		rerr := &RecognitionError{
			Attempts:    attempts,
			RateLimited: bo.last == kindRateLimit,
			Err:         err,
		}
		c.log.Error().Err(err).Int("attempts", attempts).Msg("transcription failed")
		if bo.last.retryable() && ctx.Err() == nil {
			rerr.AlreadyNotified = c.notifyFailure(ctx, opts.NotifyChatID)
		}
		return nil, rerr
	}

	lang := normalizeLanguage(resp.Language)
	if lang == "" {
		lang = req.Language
	}
	if lang == "" {
		lang = "unknown"
	}

	result := &Result{
		Text:           strings.TrimSpace(resp.Text),
		Language:       lang,
		Confidence:     1.0,
		ProcessingTime: time.Since(start).Seconds(),
	}
	c.log.Info().
		Str("language", result.Language).
		Bool("hinted", req.Language != "").
		Int("attempts", attempts).
		Int("chars", len(result.Text)).
		Float64("processing_time", result.ProcessingTime).
		Msg("transcription complete")
	return result, nil
}

func (c *Client) notifyFailure(ctx context.Context, chatID string) bool {
	if c.opts.Notifier == nil || chatID == "" {
		return false
	}
	if err := c.opts.Notifier.Notify(ctx, chatID, FailureMessage); err != nil {
		c.log.Warn().Err(err).Str("chat_id", chatID).Msg("failure notification not delivered")
		return false
	}
	return true
}

type errorKind int

const (
	kindUnexpected errorKind = iota
	kindRateLimit
	kindTimeout
	kindAPI
	kindCanceled
)

func (k errorKind) String() string {
	switch k {
	case kindRateLimit:
		return "rate_limited"
	case kindTimeout:
		return "timeout"
	case kindAPI:
		return "api_error"
	case kindCanceled:
		return "canceled"
	default:
		return "unexpected"
	}
}

func (k errorKind) retryable() bool {
	return k == kindRateLimit || k == kindTimeout || k == kindAPI
}

// classify decides how a failed attempt is retried. ctx is the caller's
// context, not the per-attempt one.
func classify(ctx context.Context, err error) errorKind {
	if ctx.Err() != nil {
		return kindCanceled
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.RateLimited():
			return kindRateLimit
		case apiErr.Timeout:
			return kindTimeout
		default:
			return kindAPI
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return kindTimeout
	}
	return kindUnexpected
}

// attemptBackOff waits 2^n seconds before attempt n (0-based) after a rate
// limit, and a flat second after any other retryable failure.
type attemptBackOff struct {
	attempt int
	last    errorKind
}

func (b *attemptBackOff) Reset() { b.attempt = 0 }

func (b *attemptBackOff) NextBackOff() time.Duration {
	b.attempt++
	if b.last == kindRateLimit {
		return time.Duration(math.Pow(2, float64(b.attempt))) * time.Second
	}
	return retryDelay
}
