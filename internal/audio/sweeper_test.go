package audio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestTempSweeper(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-time.Hour)

	write := func(name string, mod time.Time) string {
		t.Helper()
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("data"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(p, mod, mod); err != nil {
			t.Fatal(err)
		}
		return p
	}

	staleSrc := write("voicebot-src-1.oga", old)
	staleSTT := write("voicebot-stt-abc.ogg", old)
	fresh := write("voicebot-normalized-2.wav", time.Now())
	foreign := write("other-app.tmp", old)
	if err := os.Mkdir(filepath.Join(dir, "voicebot-dir"), 0o755); err != nil {
		t.Fatal(err)
	}

	s := NewTempSweeper(dir, 15*time.Minute, zerolog.Nop())
	if n := s.Sweep(); n != 2 {
		t.Errorf("removed = %d, want 2", n)
	}

	for _, p := range []string{staleSrc, staleSTT} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should be removed", filepath.Base(p))
		}
	}
	for _, p := range []string{fresh, foreign, filepath.Join(dir, "voicebot-dir")} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s should be kept: %v", filepath.Base(p), err)
		}
	}

	if n := s.Sweep(); n != 0 {
		t.Errorf("second sweep removed %d, want 0", n)
	}
}

func TestTempSweeperMissingDir(t *testing.T) {
	s := NewTempSweeper(filepath.Join(t.TempDir(), "gone"), 0, zerolog.Nop())
	if n := s.Sweep(); n != 0 {
		t.Errorf("removed = %d, want 0", n)
	}
	if s.retention != DefaultSweepRetention {
		t.Errorf("retention = %v, want %v", s.retention, DefaultSweepRetention)
	}
}

func TestTempSweeperStartStop(t *testing.T) {
	s := NewTempSweeper(t.TempDir(), time.Hour, zerolog.Nop())
	s.Start()
	s.Stop()
	s.Stop()
}

func TestHumanizeBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{3 * 1024 * 1024, "3.0 MB"},
	}
	for _, tt := range tests {
		if got := humanizeBytes(tt.in); got != tt.want {
			t.Errorf("humanizeBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
