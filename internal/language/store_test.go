package language

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/voicebot/internal/cache"
)

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func seed(t *testing.T, s cache.Store, userID, lang string, conf float64) {
	t.Helper()
	data, err := json.Marshal(Preference{UserID: userID, Language: lang, Confidence: conf})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set(context.Background(), userID, data, time.Hour); err != nil {
		t.Fatal(err)
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// mustGet returns the stored preference or stops the test.
func mustGet(t *testing.T, s *Store, userID string) Preference {
	t.Helper()
	p, ok := s.Get(context.Background(), userID)
	if !ok {
		t.Fatalf("no preference stored for %s", userID)
	}
	return p
}

func TestHint_Threshold(t *testing.T) {
	tests := []struct {
		name     string
		conf     float64
		wantHint bool
	}{
		{"at_threshold", 0.7, false},
		{"just_above", 0.70001, true},
		{"below", 0.3, false},
		{"full", 1.0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := cache.NewMemoryStore(0)
			seed(t, primary, "U1", "ru", tt.conf)
			s := NewStore(primary, nil, 0, zerolog.Nop())

			lang, ok := s.Hint(context.Background(), "U1")
			if ok != tt.wantHint {
				t.Fatalf("Hint ok = %v, want %v", ok, tt.wantHint)
			}
			want := ""
			if tt.wantHint {
				want = "ru"
			}
			if lang != want {
				t.Errorf("Hint = %q, want %q", lang, want)
			}
		})
	}
}

func TestHint_UnknownUser(t *testing.T) {
	s := NewStore(cache.NewMemoryStore(0), nil, 0, zerolog.Nop())
	if _, ok := s.Hint(context.Background(), "nobody"); ok {
		t.Error("unknown user should have no hint")
	}
}

func TestUpdate_Laws(t *testing.T) {
	ctx := context.Background()

	t.Run("new_user", func(t *testing.T) {
		s := NewStore(nil, nil, 0, zerolog.Nop())
		s.Update(ctx, "U1", "en", 0.5)

		p := mustGet(t, s, "U1")
		if p.Language != "en" || !approx(p.Confidence, 0.4) {
			t.Errorf("preference = %s/%v, want en/0.4", p.Language, p.Confidence)
		}
	})

	t.Run("reinforcement", func(t *testing.T) {
		primary := cache.NewMemoryStore(0)
		seed(t, primary, "U1", "en", 0.8)
		s := NewStore(primary, nil, 0, zerolog.Nop())

		s.Update(ctx, "U1", "en", 0.5)
		p := mustGet(t, s, "U1")
		if p.Language != "en" || !approx(p.Confidence, 0.77) {
			t.Errorf("preference = %s/%v, want en/0.77", p.Language, p.Confidence)
		}
	})

	t.Run("reinforcement_caps_at_one", func(t *testing.T) {
		primary := cache.NewMemoryStore(0)
		seed(t, primary, "U1", "en", 1.0)
		s := NewStore(primary, nil, 0, zerolog.Nop())

		s.Update(ctx, "U1", "en", 1.0)
		p := mustGet(t, s, "U1")
		if p.Confidence > 1.0 || !approx(p.Confidence, 1.0) {
			t.Errorf("confidence = %v, want 1.0", p.Confidence)
		}
	})

	t.Run("disagreement", func(t *testing.T) {
		primary := cache.NewMemoryStore(0)
		seed(t, primary, "U1", "en", 0.9)
		s := NewStore(primary, nil, 0, zerolog.Nop())

		s.Update(ctx, "U1", "ru", 0.6)
		p := mustGet(t, s, "U1")
		if p.Language != "ru" || !approx(p.Confidence, 0.3) {
			t.Errorf("preference = %s/%v, want ru/0.3", p.Language, p.Confidence)
		}

		if _, hinted := s.Hint(ctx, "U1"); hinted {
			t.Error("a language switch should not be hinted immediately")
		}
	})

	t.Run("empty_language_ignored", func(t *testing.T) {
		s := NewStore(nil, nil, 0, zerolog.Nop())
		s.Update(ctx, "U1", "", 1.0)
		if _, ok := s.Get(ctx, "U1"); ok {
			t.Error("empty language should not create a preference")
		}
	})
}

func TestUpdate_PersistsJSONWithTTL(t *testing.T) {
	ctx := context.Background()
	primary := cache.NewMemoryStore(0)
	s := NewStore(primary, nil, 0, zerolog.Nop())
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	s.Update(ctx, "U1", "en", 1.0)

	data, err := primary.Get(ctx, "U1")
	if err != nil {
		t.Fatalf("primary Get: %v", err)
	}
	var p Preference
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.UserID != "U1" || p.Language != "en" {
		t.Errorf("preference = %+v", p)
	}
	if !approx(p.Confidence, 0.8) {
		t.Errorf("confidence = %v, want 0.8", p.Confidence)
	}
	if !p.LastUpdated.Equal(fixed) {
		t.Errorf("LastUpdated = %v, want %v", p.LastUpdated, fixed)
	}
}

func TestStore_PrimaryFailureFallsBackToMemory(t *testing.T) {
	ctx := context.Background()
	s := NewStore(brokenStore{}, nil, 0, zerolog.Nop())

	s.Update(ctx, "U1", "ru", 1.0)
	lang, ok := s.Hint(ctx, "U1")
	if !ok || lang != "ru" {
		t.Fatalf("Hint = %q, %v; want ru, true", lang, ok)
	}

	s.Update(ctx, "U1", "ru", 1.0)
	if p := mustGet(t, s, "U1"); !approx(p.Confidence, 0.82) {
		t.Errorf("confidence = %v, want 0.82", p.Confidence)
	}
}

func TestStore_MalformedPrimaryEntryIgnored(t *testing.T) {
	ctx := context.Background()
	primary := cache.NewMemoryStore(0)
	if err := primary.Set(ctx, "U1", []byte("{not json"), time.Hour); err != nil {
		t.Fatal(err)
	}
	s := NewStore(primary, nil, 0, zerolog.Nop())

	if _, ok := s.Hint(ctx, "U1"); ok {
		t.Error("malformed entry should not produce a hint")
	}

	s.Update(ctx, "U1", "en", 1.0)
	if p := mustGet(t, s, "U1"); !approx(p.Confidence, 0.8) {
		t.Errorf("confidence = %v, want 0.8", p.Confidence)
	}
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	s := NewStore(cache.NewMemoryStore(0), nil, 0, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update(ctx, "U1", "en", 1.0)
		}()
	}
	wg.Wait()

	p := mustGet(t, s, "U1")
	if p.Language != "en" {
		t.Errorf("language = %q, want en", p.Language)
	}
	if p.Confidence > 1.0 || p.Confidence <= 0.8 {
		t.Errorf("confidence = %v, want in (0.8, 1]", p.Confidence)
	}
}

func TestObservationConfidence(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"empty", "", 0},
		{"ascii_half", strings.Repeat("a", 50), 0.5},
		{"cyrillic_counts_runes", strings.Repeat("я", 50), 0.5},
		{"capped", strings.Repeat("a", 250), 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ObservationConfidence(tt.text); !approx(got, tt.want) {
				t.Errorf("ObservationConfidence = %v, want %v", got, tt.want)
			}
		})
	}
}
