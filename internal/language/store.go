// Package language keeps a per-user guess of the spoken language, learned
// from past recognitions and used as a hint for the next one.
package language

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/snarg/voicebot/internal/cache"
)

const (
	// KeyPrefix namespaces preferences in the shared Redis instance.
	KeyPrefix = "user_lang:"

	// DefaultTTL is how long an unused preference survives.
	DefaultTTL = 30 * 24 * time.Hour

	// HintThreshold is the confidence a preference must exceed to be used.
	HintThreshold = 0.7
)

// Preference is the stored state for one user.
type Preference struct {
	UserID      string    `json:"user_id"`
	Language    string    `json:"language"`
	Confidence  float64   `json:"confidence"`
	LastUpdated time.Time `json:"last_updated"`
}

// Store reads and updates preferences. The primary store is optional; every
// update is also kept in the in-process map so a Redis outage loses nothing
// learned during this run.
type Store struct {
	primary  cache.Store // nil = memory only
	fallback *cache.MemoryStore
	ttl      time.Duration
	log      zerolog.Logger
	now      func() time.Time

	mu sync.Mutex // serializes read-modify-write in Update
}

// NewStore creates a preference store. A nil fallback gets an unbounded
// in-process map.
func NewStore(primary cache.Store, fallback *cache.MemoryStore, ttl time.Duration, log zerolog.Logger) *Store {
	if fallback == nil {
		fallback = cache.NewMemoryStore(0)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		primary:  primary,
		fallback: fallback,
		ttl:      ttl,
		log:      log.With().Str("component", "language").Logger(),
		now:      time.Now,
	}
}

// ObservationConfidence scores a transcript by length: 100 characters or
// more counts as a fully confident observation.
func ObservationConfidence(text string) float64 {
	return min(1.0, float64(utf8.RuneCountInString(text))/100)
}

// Hint returns the user's language if the stored confidence is above
// HintThreshold.
func (s *Store) Hint(ctx context.Context, userID string) (string, bool) {
	p, ok := s.load(ctx, userID)
	if !ok || p.Language == "" || p.Confidence <= HintThreshold {
		return "", false
	}
	return p.Language, true
}

// Get returns the stored preference, if any.
func (s *Store) Get(ctx context.Context, userID string) (Preference, bool) {
	return s.load(ctx, userID)
}

// Update folds one observation into the user's preference:
//
//	same language:      c' = min(1, 0.9c + 0.1o)
//	different language: c' = 0.5o, language switches
//	new user:           c' = 0.8o
func (s *Store) Update(ctx context.Context, userID, observed string, observation float64) {
	if observed == "" {
		return
	}
	observation = max(0, min(1, observation))

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.load(ctx, userID)
	switch {
	case !ok:
		p = Preference{UserID: userID, Language: observed, Confidence: 0.8 * observation}
	case p.Language == observed:
		p.Confidence = min(1.0, 0.9*p.Confidence+0.1*observation)
	default:
		p.Language = observed
		p.Confidence = 0.5 * observation
	}
	p.UserID = userID
	p.LastUpdated = s.now().UTC()

	s.save(ctx, p)
	s.log.Debug().
		Str("user_id", userID).
		Str("language", p.Language).
		Float64("confidence", p.Confidence).
		Msg("language preference updated")
}

func (s *Store) load(ctx context.Context, userID string) (Preference, bool) {
	if s.primary != nil {
		data, err := s.primary.Get(ctx, userID)
		switch {
		case err == nil:
			if p, ok := s.decode(userID, data); ok {
				return p, true
			}
		case errors.Is(err, cache.ErrMiss):
		default:
			s.log.Warn().Err(err).Str("user_id", userID).Msg("preference read failed, using in-process copy")
		}
	}

	data, err := s.fallback.Get(ctx, userID)
	if err != nil {
		return Preference{}, false
	}
	return s.decode(userID, data)
}

func (s *Store) decode(userID string, data []byte) (Preference, bool) {
	var p Preference
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("discarding malformed preference")
		return Preference{}, false
	}
	return p, true
}

func (s *Store) save(ctx context.Context, p Preference) {
	data, err := json.Marshal(p)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", p.UserID).Msg("marshal preference")
		return
	}
	if s.primary != nil {
		if err := s.primary.Set(ctx, p.UserID, data, s.ttl); err != nil {
			s.log.Warn().Err(err).Str("user_id", p.UserID).Msg("preference write failed")
		}
	}
	if err := s.fallback.Set(ctx, p.UserID, data, s.ttl); err != nil {
		s.log.Warn().Err(err).Str("user_id", p.UserID).Msg("in-process preference write failed")
	}
}
