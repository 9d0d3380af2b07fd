package transcribe

import (
	"context"
	"fmt"
	"net/http"
)

// Provider is the interface for speech-to-text backends.
type Provider interface {
	Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error)
	Name() string  // "openai"
	Model() string // model identifier for logs
}

// TranscribeOpts are per-request options.
// Zero-value fields are omitted from the request.
type TranscribeOpts struct {
	Temperature float32
	Language    string // ISO-639-1; empty = auto-detect
}

// Response is the common transcription result from any provider.
type Response struct {
	Text     string
	Language string  // as reported by the API, may be a full name ("english")
	Duration float64 // audio duration in seconds, 0 if unknown
}

// APIError is a failure reported by, or on the way to, the speech API.
// The client retries these; anything else is treated as permanent.
type APIError struct {
	Provider   string
	StatusCode int  // 0 when no HTTP response was received
	Timeout    bool // the attempt ran out of time
	Err        error
}

func (e *APIError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s: timeout: %v", e.Provider, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// RateLimited reports whether the API asked us to slow down.
func (e *APIError) RateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }
