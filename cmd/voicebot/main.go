package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/snarg/voicebot/internal/api"
	"github.com/snarg/voicebot/internal/audio"
	"github.com/snarg/voicebot/internal/cache"
	"github.com/snarg/voicebot/internal/config"
	"github.com/snarg/voicebot/internal/language"
	"github.com/snarg/voicebot/internal/metrics"
	"github.com/snarg/voicebot/internal/pipeline"
	"github.com/snarg/voicebot/internal/telegram"
	"github.com/snarg/voicebot/internal/transcribe"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	var showVersion bool
	flag.StringVar(&overrides.EnvFile, "env-file", "", "Path to .env file (default: .env)")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address (overrides HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.RedisURL, "redis-url", "", "Redis URL (overrides REDIS_URL)")
	flag.StringVar(&overrides.TempDir, "temp-dir", "", "Directory for temporary audio files (overrides TEMP_DIR)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if cfg.LogFormat == "console" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger().Level(level)
	} else {
		log = zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	}
	log.Info().Str("version", version).Msg("voicebot starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis is optional: both caches fall back to process memory.
	cacheLog := log.With().Str("component", "cache").Logger()
	var (
		redisPinger api.Pinger
		audioRedis  cache.Store
		langRedis   cache.Store
	)
	rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		cacheLog.Warn().Err(err).Msg("redis unavailable, using in-memory caches")
	} else {
		defer rdb.Close()
		audioRedis = cache.NewRedisStore(rdb, "audio_cache:")
		langStore := cache.NewRedisStore(rdb, language.KeyPrefix)
		langRedis = langStore
		redisPinger = langStore
		cacheLog.Info().Msg("redis connected")
	}
	audioCache := cache.NewTiered("audio", audioRedis, cache.NewMemoryStore(cache.DefaultFallbackEntries), log)
	languages := language.NewStore(langRedis, cache.NewMemoryStore(0), cfg.LanguageCacheTTL, log)

	// Telegram
	tgLog := log.With().Str("component", "telegram").Logger()
	bot, err := telegram.NewAPI(cfg.TelegramToken, cfg.TelegramAPIEndpoint, &http.Client{Timeout: 2 * time.Minute})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to telegram")
	}
	tgLog.Info().Str("username", bot.Self.UserName).Msg("telegram connected")
	source := telegram.NewSource(bot, cfg.TelegramFileEndpoint)

	// Audio acquisition
	audioLog := log.With().Str("component", "audio").Logger()
	var normalizer audio.Normalizer
	if cfg.TranscodeAudio {
		if !audio.CheckFFmpeg() {
			audioLog.Warn().Msg("ffmpeg not found in PATH, foreign formats will not be resampled")
		}
		normalizer = audio.FFmpeg{TempDir: cfg.TempDir}
	}
	sweeper := audio.NewTempSweeper(cfg.TempDir, 0, log)
	sweeper.Start()
	defer sweeper.Stop()
	acquirer := audio.NewAcquisitionService(audio.AcquisitionOptions{
		Inspector:   audio.NewInspector(source, audioLog),
		Fetcher:     audio.NewFetcher(source, normalizer, cfg.TempDir, audioLog),
		Cache:       audioCache,
		CacheTTL:    cfg.AudioCacheTTL,
		MaxFileSize: cfg.MaxFileSize,
		Log:         audioLog,
	})

	// Speech recognition
	recognizer := transcribe.NewClient(transcribe.ClientOptions{
		Provider:          transcribe.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.TranscribeModel),
		MaxAttempts:       cfg.TranscribeAttempts,
		Timeout:           cfg.TranscribeTimeout,
		RequestsPerMinute: cfg.TranscribeRateLimit,
		PriorityLanguages: cfg.PriorityLanguages,
		Notifier:          telegram.NewNotifier(bot),
		TempDir:           cfg.TempDir,
		Log:               log,
	})
	log.Info().
		Str("model", recognizer.Model()).
		Int("max_attempts", cfg.TranscribeAttempts).
		Int("rate_limit_rpm", cfg.TranscribeRateLimit).
		Strs("priority_languages", cfg.PriorityLanguages).
		Msg("speech recognition configured")

	// Pipeline
	recognition := metrics.NewRecognition()
	pipe := pipeline.New(pipeline.Options{
		Acquirer:    acquirer,
		Recognizer:  recognizer,
		Languages:   languages,
		Recognition: recognition,
		Log:         log,
	})
	prometheus.MustRegister(metrics.NewCollector(pipe, recognition))
	go pipe.LogStats(ctx, time.Minute)

	// HTTP Server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, pipe, redisPinger, version, startTime, httpLog)

	errCh := make(chan error, 2)
	go func() {
		errCh <- srv.Start()
	}()

	// Bot update loop
	tg := telegram.NewBot(telegram.BotOptions{
		API:       bot,
		Processor: pipe,
		Workers:   cfg.BotWorkers,
		Log:       log,
	})
	botDone := make(chan struct{})
	go func() {
		defer close(botDone)
		if err := tg.Run(ctx); err != nil {
			errCh <- fmt.Errorf("telegram: %w", err)
		}
	}()

	// Wait for shutdown signal or a component failure
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("component error")
		}
		stop()
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	select {
	case <-botDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("timed out waiting for in-flight messages")
	}

	log.Info().Msg("voicebot stopped")
}
