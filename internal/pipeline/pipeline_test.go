package pipeline

import (
	"context"
	"errors"
	"io"
	"math"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/snarg/voicebot/internal/audio"
	"github.com/snarg/voicebot/internal/cache"
	"github.com/snarg/voicebot/internal/language"
	"github.com/snarg/voicebot/internal/transcribe"
)

type memSource struct {
	files   map[string]audio.File
	content map[string]string
}

func (s *memSource) Resolve(_ context.Context, id string) (audio.File, error) {
	f, ok := s.files[id]
	if !ok {
		return audio.File{}, errors.New("file not found")
	}
	return f, nil
}

func (s *memSource) Download(_ context.Context, path string, w io.Writer) (int64, error) {
	n, err := io.WriteString(w, s.content[path])
	return int64(n), err
}

type fixedProvider struct {
	text, lang string
	seenLang   []string
}

func (p *fixedProvider) Transcribe(_ context.Context, _ string, opts transcribe.TranscribeOpts) (*transcribe.Response, error) {
	p.seenLang = append(p.seenLang, opts.Language)
	return &transcribe.Response{Text: p.text, Language: p.lang}, nil
}

func (p *fixedProvider) Name() string  { return "fixed" }
func (p *fixedProvider) Model() string { return "whisper-1" }

type fakeAcquirer struct {
	data  []byte
	err   error
	panic bool
}

func (a *fakeAcquirer) Acquire(context.Context, string) ([]byte, error) {
	if a.panic {
		panic("nil map write")
	}
	return a.data, a.err
}

func (a *fakeAcquirer) Ready() bool { return true }

type fakeRecognizer struct {
	res   *transcribe.Result
	err   error
	opts  []transcribe.Options
	ready bool
}

func (r *fakeRecognizer) Transcribe(_ context.Context, _ []byte, opts transcribe.Options) (*transcribe.Result, error) {
	r.opts = append(r.opts, opts)
	return r.res, r.err
}

func (r *fakeRecognizer) Ready() bool { return r.ready }

const sampleText = "Hello, this is a test voice message about the weekly plan."

func newEndToEnd(t *testing.T, p *fixedProvider) (*Pipeline, *language.Store) {
	t.Helper()
	log := zerolog.Nop()
	src := &memSource{
		files:   map[string]audio.File{"A1": {ID: "A1", Path: "voice/file_1.oga", Size: 500 * 1024}},
		content: map[string]string{"voice/file_1.oga": "OggS\x00\x02opus-payload"},
	}
	acq := audio.NewAcquisitionService(audio.AcquisitionOptions{
		Inspector: audio.NewInspector(src, log),
		Fetcher:   audio.NewFetcher(src, nil, t.TempDir(), log),
		Cache:     cache.NewTiered("audio", nil, cache.NewMemoryStore(cache.DefaultFallbackEntries), log),
		Log:       log,
	})
	client := transcribe.NewClient(transcribe.ClientOptions{
		Provider:          p,
		PriorityLanguages: []string{"ru", "en"},
		TempDir:           t.TempDir(),
		Log:               log,
	})
	langs := language.NewStore(nil, nil, 0, log)
	return New(Options{Acquirer: acq, Recognizer: client, Languages: langs, Log: log}), langs
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// pipelineError asserts err is a *Error and returns it.
func pipelineError(t *testing.T, err error) *Error {
	t.Helper()
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *pipeline.Error", err)
	}
	return perr
}

func TestProcess_EndToEnd(t *testing.T) {
	ctx := context.Background()
	p := &fixedProvider{text: sampleText, lang: "english"}
	pipe, langs := newEndToEnd(t, p)

	text, err := pipe.Process(ctx, "A1", "U1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if text != sampleText {
		t.Errorf("text = %q, want %q", text, sampleText)
	}

	pref, ok := langs.Get(ctx, "U1")
	if !ok {
		t.Fatal("preference should be created on first recognition")
	}
	if pref.Language != "en" {
		t.Errorf("language = %q, want en", pref.Language)
	}
	if want := 0.8 * language.ObservationConfidence(sampleText); !approx(pref.Confidence, want) {
		t.Errorf("confidence = %v, want %v", pref.Confidence, want)
	}

	m := pipe.PerformanceMetrics()
	if m.TotalProcessed != 1 || m.SuccessCount != 1 || m.ErrorCount != 0 {
		t.Errorf("totals = %d/%d/%d, want 1/1/0", m.TotalProcessed, m.SuccessCount, m.ErrorCount)
	}
	if m.SuccessRate != 1.0 {
		t.Errorf("SuccessRate = %v, want 1.0", m.SuccessRate)
	}

	summary := pipe.RecognitionSummary()
	if summary.TotalRequests != 1 {
		t.Errorf("TotalRequests = %d, want 1", summary.TotalRequests)
	}
	if summary.LanguageDistribution["en"] != 1 {
		t.Errorf("LanguageDistribution = %v", summary.LanguageDistribution)
	}
}

func TestProcess_HintUsedOnceConfident(t *testing.T) {
	ctx := context.Background()
	long := strings.Repeat("a", 150)
	p := &fixedProvider{text: long, lang: "english"}
	pipe, _ := newEndToEnd(t, p)

	for i := 0; i < 2; i++ {
		if _, err := pipe.Process(ctx, "A1", "U1"); err != nil {
			t.Fatalf("Process %d: %v", i, err)
		}
	}

	// First call has no preference; the second sees 0.8 > 0.7.
	if want := []string{"", "en"}; !slices.Equal(p.seenLang, want) {
		t.Errorf("hints = %q, want %q", p.seenLang, want)
	}
}

func TestProcess_AcquireFailure(t *testing.T) {
	acqErr := &audio.AcquisitionError{AttachmentID: "A1", Op: "download", Err: errors.New("404")}
	rec := &fakeRecognizer{ready: true}
	pipe := New(Options{Acquirer: &fakeAcquirer{err: acqErr}, Recognizer: rec, Log: zerolog.Nop()})

	_, err := pipe.Process(context.Background(), "A1", "U1")

	if perr := pipelineError(t, err); perr.Stage != StageAcquire {
		t.Errorf("Stage = %q, want %q", perr.Stage, StageAcquire)
	}
	if AlreadyNotified(err) {
		t.Error("acquisition failures are never notified")
	}

	var aerr *audio.AcquisitionError
	if !errors.As(err, &aerr) {
		t.Errorf("err = %v, want *audio.AcquisitionError in chain", err)
	}
	if len(rec.opts) != 0 {
		t.Error("recognizer must not run after acquisition failure")
	}

	m := pipe.PerformanceMetrics()
	if m.TotalProcessed != 1 || m.ErrorCount != 1 {
		t.Errorf("totals = %d processed, %d errors; want 1/1", m.TotalProcessed, m.ErrorCount)
	}
}

func TestProcess_RecognitionFailureForwardsNotifiedFlag(t *testing.T) {
	for _, notified := range []bool{true, false} {
		rec := &fakeRecognizer{ready: true, err: &transcribe.RecognitionError{Attempts: 3, AlreadyNotified: notified, Err: errors.New("429")}}
		pipe := New(Options{Acquirer: &fakeAcquirer{data: []byte("ogg")}, Recognizer: rec, Log: zerolog.Nop()})

		_, err := pipe.Process(context.Background(), "A1", "U1")

		perr := pipelineError(t, err)
		if perr.Stage != StageRecognize {
			t.Errorf("Stage = %q, want %q", perr.Stage, StageRecognize)
		}
		if perr.AlreadyNotified != notified || AlreadyNotified(err) != notified {
			t.Errorf("AlreadyNotified = %v, want %v", perr.AlreadyNotified, notified)
		}
		if len(rec.opts) != 1 || rec.opts[0].NotifyChatID != "U1" {
			t.Errorf("recognizer options = %+v, want one call notifying U1", rec.opts)
		}
	}
}

func TestProcessDetailed_ChatID(t *testing.T) {
	rec := &fakeRecognizer{ready: true, res: &transcribe.Result{Text: "hi", Language: "en", Confidence: 1}}
	pipe := New(Options{Acquirer: &fakeAcquirer{data: []byte("ogg")}, Recognizer: rec, Log: zerolog.Nop()})

	d, err := pipe.ProcessDetailed(context.Background(), Request{AttachmentID: "A1", UserID: "U1", ChatID: "-100"})
	if err != nil {
		t.Fatalf("ProcessDetailed: %v", err)
	}
	if d.Text != "hi" || d.Language != "en" || d.AudioBytes != 3 {
		t.Errorf("detailed = %+v", d)
	}
	if d.RequestID == "" {
		t.Error("missing request id")
	}
	if rec.opts[0].NotifyChatID != "-100" {
		t.Errorf("NotifyChatID = %q, want -100", rec.opts[0].NotifyChatID)
	}
}

func TestProcess_UnknownLanguageNotLearned(t *testing.T) {
	ctx := context.Background()
	langs := language.NewStore(nil, nil, 0, zerolog.Nop())
	rec := &fakeRecognizer{ready: true, res: &transcribe.Result{Text: "...", Language: "unknown"}}
	pipe := New(Options{Acquirer: &fakeAcquirer{data: []byte("x")}, Recognizer: rec, Languages: langs, Log: zerolog.Nop()})

	if _, err := pipe.Process(ctx, "A1", "U1"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, ok := langs.Get(ctx, "U1"); ok {
		t.Error("unknown language should not be learned")
	}
}

func TestProcess_PanicBecomesError(t *testing.T) {
	pipe := New(Options{Acquirer: &fakeAcquirer{panic: true}, Recognizer: &fakeRecognizer{ready: true}, Log: zerolog.Nop()})

	_, err := pipe.Process(context.Background(), "A1", "U1")

	if perr := pipelineError(t, err); perr.Stage != StageUnexpected {
		t.Errorf("Stage = %q, want %q", perr.Stage, StageUnexpected)
	}
	if n := pipe.PerformanceMetrics().ErrorCount; n != 1 {
		t.Errorf("ErrorCount = %d, want 1", n)
	}
}

func TestProcess_NotInitialized(t *testing.T) {
	pipe := New(Options{Log: zerolog.Nop()})
	_, err := pipe.Process(context.Background(), "A1", "U1")

	if perr := pipelineError(t, err); perr.Stage != StageUnexpected {
		t.Errorf("Stage = %q, want %q", perr.Stage, StageUnexpected)
	}
}

func TestProcess_Concurrent(t *testing.T) {
	rec := &fakeRecognizer{ready: true, res: &transcribe.Result{Text: "hi", Language: "en"}}
	pipe := New(Options{Acquirer: &fakeAcquirer{data: []byte("x")}, Recognizer: &syncRecognizer{r: rec}, Log: zerolog.Nop()})

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = pipe.Process(context.Background(), "A1", "U1")
		}()
	}
	wg.Wait()

	processed, succeeded, failed := pipe.Totals()
	if processed != 25 || succeeded != 25 || failed != 0 {
		t.Errorf("totals = %d/%d/%d, want 25/25/0", processed, succeeded, failed)
	}
}

// syncRecognizer serializes access to a fakeRecognizer's call log.
type syncRecognizer struct {
	mu sync.Mutex
	r  *fakeRecognizer
}

func (s *syncRecognizer) Transcribe(ctx context.Context, audio []byte, opts transcribe.Options) (*transcribe.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Transcribe(ctx, audio, opts)
}

func (s *syncRecognizer) Ready() bool { return s.r.Ready() }

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		pipe := New(Options{Acquirer: &fakeAcquirer{}, Recognizer: &fakeRecognizer{ready: true}, Log: zerolog.Nop()})
		h := pipe.HealthCheck()
		if h.Status != StatusHealthy {
			t.Errorf("Status = %q, want healthy", h.Status)
		}
		for _, name := range []string{"audio_processor", "speech_recognizer"} {
			if h.Components[name].Status != StatusHealthy {
				t.Errorf("%s = %q, want healthy", name, h.Components[name].Status)
			}
		}
	})

	t.Run("recognizer_not_ready", func(t *testing.T) {
		pipe := New(Options{Acquirer: &fakeAcquirer{}, Recognizer: &fakeRecognizer{}, Log: zerolog.Nop()})
		h := pipe.HealthCheck()
		if h.Status != StatusUnhealthy || h.Components["speech_recognizer"].Status != StatusUnhealthy {
			t.Errorf("health = %+v, want unhealthy recognizer", h)
		}
	})

	t.Run("nothing_wired", func(t *testing.T) {
		h := New(Options{Log: zerolog.Nop()}).HealthCheck()
		if h.Status != StatusUnhealthy {
			t.Errorf("Status = %q, want unhealthy", h.Status)
		}
		if len(h.Components) != 2 {
			t.Errorf("components = %d, want 2", len(h.Components))
		}
	})
}

func TestPerformanceMetrics(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		m := New(Options{Log: zerolog.Nop()}).PerformanceMetrics()
		if m != (PerformanceMetrics{}) {
			t.Errorf("metrics = %+v, want zero value", m)
		}
	})

	t.Run("averages_over_successes", func(t *testing.T) {
		var s stats
		s.success(1.0, 0.2, 0.7)
		s.success(3.0, 0.4, 2.3)
		s.failure()

		m := s.snapshot()
		if m.TotalProcessed != 3 || m.SuccessCount != 2 || m.ErrorCount != 1 {
			t.Errorf("totals = %d/%d/%d, want 3/2/1", m.TotalProcessed, m.SuccessCount, m.ErrorCount)
		}
		checks := []struct {
			name      string
			got, want float64
		}{
			{"SuccessRate", m.SuccessRate, 2.0 / 3.0},
			{"AverageTotalTime", m.AverageTotalTime, 2.0},
			{"AverageAudioTime", m.AverageAudioTime, 0.3},
			{"AverageSpeechTime", m.AverageSpeechTime, 1.5},
		}
		for _, c := range checks {
			if !approx(c.got, c.want) {
				t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
			}
		}
		if !m.PerformanceTargetMet {
			t.Error("2.0 s average should meet the target")
		}
	})

	t.Run("target_missed", func(t *testing.T) {
		var s stats
		s.success(2.5, 1, 1.5)
		if s.snapshot().PerformanceTargetMet {
			t.Error("2.5 s average should miss the target")
		}
	})
}
