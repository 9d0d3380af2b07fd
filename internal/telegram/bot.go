package telegram

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/voicebot/internal/pipeline"
)

const (
	// maxMessageRunes is Telegram's text message limit.
	maxMessageRunes = 4096

	replyFailed   = "❌ Could not process the voice message. Please try again."
	replyNoSpeech = "🤷 No speech was recognized in this message."
)

// Processor runs the speech pipeline for one attachment.
type Processor interface {
	ProcessDetailed(ctx context.Context, req pipeline.Request) (*pipeline.Detailed, error)
}

// BotOptions configures the update loop.
type BotOptions struct {
	API       *tgbotapi.BotAPI
	Processor Processor
	Workers   int // concurrent pipeline runs
	Log       zerolog.Logger
}

// Bot receives updates and replies to voice messages, video notes and audio
// files with their transcription.
type Bot struct {
	api  *tgbotapi.BotAPI
	proc Processor
	sem  chan struct{}
	wg   sync.WaitGroup
	log  zerolog.Logger
}

func NewBot(opts BotOptions) *Bot {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Bot{
		api:  opts.API,
		proc: opts.Processor,
		sem:  make(chan struct{}, opts.Workers),
		log:  opts.Log.With().Str("component", "telegram").Logger(),
	}
}

// Run long-polls for updates until ctx is cancelled, then waits for
// in-flight messages to finish.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	b.log.Info().Str("username", b.api.Self.UserName).Msg("telegram bot started")

	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.log.Info().Msg("telegram bot stopping")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			b.dispatch(ctx, update.Message)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, msg *tgbotapi.Message) {
	fileID, kind := attachment(msg)
	if fileID == "" {
		return
	}

	select {
	case b.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() { <-b.sem }()
		b.handle(ctx, msg, fileID, kind)
	}()
}

func (b *Bot) handle(ctx context.Context, msg *tgbotapi.Message, fileID, kind string) {
	chatID := msg.Chat.ID
	userID := chatID
	if msg.From != nil {
		userID = msg.From.ID
	}
	log := b.log.With().Int64("chat_id", chatID).Int64("user_id", userID).Str("kind", kind).Logger()

	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		log.Debug().Err(err).Msg("chat action failed")
	}

	res, err := b.proc.ProcessDetailed(ctx, pipeline.Request{
		AttachmentID: fileID,
		UserID:       strconv.FormatInt(userID, 10),
		ChatID:       strconv.FormatInt(chatID, 10),
	})
	if err != nil {
		if pipeline.AlreadyNotified(err) {
			return
		}
		if ctx.Err() != nil {
			// Shutting down; the user can resend once the bot is back.
			log.Info().Err(err).Msg("run interrupted by shutdown, no reply sent")
			return
		}
		b.reply(log, msg, replyFailed)
		return
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		text = replyNoSpeech
	}
	b.reply(log, msg, text)
}

func (b *Bot) reply(log zerolog.Logger, msg *tgbotapi.Message, text string) {
	for i, part := range splitMessage(text, maxMessageRunes) {
		m := tgbotapi.NewMessage(msg.Chat.ID, part)
		if i == 0 {
			m.ReplyToMessageID = msg.MessageID
		}
		if _, err := b.api.Send(m); err != nil {
			log.Warn().Err(err).Msg("reply failed")
			return
		}
	}
}

// attachment returns the file id of a transcribable attachment and its kind.
func attachment(msg *tgbotapi.Message) (fileID, kind string) {
	switch {
	case msg.Voice != nil:
		return msg.Voice.FileID, "voice"
	case msg.VideoNote != nil:
		return msg.VideoNote.FileID, "video_note"
	case msg.Audio != nil:
		return msg.Audio.FileID, "audio"
	case msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "audio/"):
		return msg.Document.FileID, "document"
	}
	return "", ""
}

// splitMessage cuts text into chunks of at most limit runes, preferring to
// break at a newline or space.
func splitMessage(text string, limit int) []string {
	var parts []string
	for utf8.RuneCountInString(text) > limit {
		cut := byteOffset(text, limit)
		if i := strings.LastIndexAny(text[:cut], "\n "); i > 0 {
			cut = i
		}
		parts = append(parts, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

// byteOffset returns the byte index of the n-th rune in s.
func byteOffset(s string, n int) int {
	i := 0
	for pos := range s {
		if i == n {
			return pos
		}
		i++
	}
	return len(s)
}
