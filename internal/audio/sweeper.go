package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TempPrefix starts the name of every temporary file the bot writes.
const TempPrefix = "voicebot-"

// DefaultSweepRetention is how old a temp file must be before the sweeper
// treats it as orphaned. No pipeline run holds a file this long.
const DefaultSweepRetention = 15 * time.Minute

// TempSweeper removes temporary audio files left behind by crashed or killed
// processes. Files are only removed once older than the retention window.
type TempSweeper struct {
	dir       string
	retention time.Duration
	interval  time.Duration
	log       zerolog.Logger
	now       func() time.Time
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewTempSweeper creates a sweeper for dir. An empty dir means os.TempDir().
func NewTempSweeper(dir string, retention time.Duration, log zerolog.Logger) *TempSweeper {
	if dir == "" {
		dir = os.TempDir()
	}
	if retention <= 0 {
		retention = DefaultSweepRetention
	}
	return &TempSweeper{
		dir:       dir,
		retention: retention,
		interval:  retention,
		log:       log.With().Str("component", "temp-sweeper").Logger(),
		now:       time.Now,
		stop:      make(chan struct{}),
	}
}

func (s *TempSweeper) Start() {
	go s.loop()
}

func (s *TempSweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *TempSweeper) loop() {
	// Clear leftovers from before a restart.
	s.Sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stop:
			return
		}
	}
}

// Sweep removes expired temp files once and returns how many were deleted.
func (s *TempSweeper) Sweep() int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Warn().Err(err).Str("dir", s.dir).Msg("temp dir unreadable")
		return 0
	}

	cutoff := s.now().Add(-s.retention)
	var removed int
	var freed int64
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), TempPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err == nil {
			removed++
			freed += info.Size()
		}
	}

	if removed > 0 {
		s.log.Info().
			Int("removed", removed).
			Str("freed", humanizeBytes(freed)).
			Msg("temp sweep complete")
	}
	return removed
}

func humanizeBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
	)
	switch {
	case b >= MB:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
