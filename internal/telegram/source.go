// Package telegram adapts the Telegram Bot API to the speech pipeline: it
// resolves and downloads attachments, delivers notices and runs the update loop.
package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/snarg/voicebot/internal/audio"
)

// NewAPI connects to the Bot API. apiEndpoint may be empty for the public
// server; a self-hosted server lifts the 20 MB download limit.
func NewAPI(token, apiEndpoint string, client *http.Client) (*tgbotapi.BotAPI, error) {
	if apiEndpoint == "" {
		apiEndpoint = tgbotapi.APIEndpoint
	}
	if client == nil {
		client = &http.Client{}
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	return bot, nil
}

// Source implements audio.Source with getFile and the file download endpoint.
type Source struct {
	bot          *tgbotapi.BotAPI
	fileEndpoint string // printf pattern taking token and file path
}

// NewSource creates a Source. fileEndpoint may be empty for the public server.
func NewSource(bot *tgbotapi.BotAPI, fileEndpoint string) *Source {
	if fileEndpoint == "" {
		fileEndpoint = tgbotapi.FileEndpoint
	}
	return &Source{bot: bot, fileEndpoint: fileEndpoint}
}

var _ audio.Source = (*Source)(nil)

// Resolve looks up the file's server path and size without downloading it.
func (s *Source) Resolve(_ context.Context, id string) (audio.File, error) {
	f, err := s.bot.GetFile(tgbotapi.FileConfig{FileID: id})
	if err != nil {
		return audio.File{}, fmt.Errorf("getFile %s: %w", id, err)
	}
	return audio.File{ID: id, Path: f.FilePath, Size: int64(f.FileSize)}, nil
}

// Download streams the file at path into w.
func (s *Source) Download(ctx context.Context, path string, w io.Writer) (int64, error) {
	url := fmt.Sprintf(s.fileEndpoint, s.bot.Token, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.bot.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download %s: status %d", path, resp.StatusCode)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", path, err)
	}
	return n, nil
}
