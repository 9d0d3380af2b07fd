package transcribe

import (
	"context"
	"errors"
	"net"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider calls an OpenAI-compatible /v1/audio/transcriptions endpoint.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a provider. baseURL may be empty for api.openai.com.
func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg), model: model}
}

func (p *OpenAIProvider) Name() string  { return "openai" }
func (p *OpenAIProvider) Model() string { return p.model }

// Transcribe uploads the file and requests verbose_json so the detected
// language comes back with the text.
func (p *OpenAIProvider) Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error) {
	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:       p.model,
		FilePath:    audioPath,
		Format:      openai.AudioResponseFormatVerboseJSON,
		Temperature: opts.Temperature,
		Language:    opts.Language,
	})
	if err != nil {
		return nil, p.wrapError(err)
	}
	return &Response{
		Text:     resp.Text,
		Language: resp.Language,
		Duration: resp.Duration,
	}, nil
}

func (p *OpenAIProvider) wrapError(err error) error {
	apiErr := &APIError{Provider: p.Name(), Err: err}

	var oaErr *openai.APIError
	var reqErr *openai.RequestError
	var netErr net.Error
	switch {
	case errors.As(err, &oaErr):
		apiErr.StatusCode = oaErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		apiErr.StatusCode = reqErr.HTTPStatusCode
	case errors.Is(err, context.DeadlineExceeded):
		apiErr.Timeout = true
	case errors.As(err, &netErr):
		apiErr.Timeout = netErr.Timeout()
	default:
		// Local failures (unreadable file, cancellation) are not API errors.
		return err
	}
	return apiErr
}
