package pipeline

import "sync"

// PerformanceTarget is the end-to-end latency goal in seconds.
const PerformanceTarget = 2.0

// PerformanceMetrics is a snapshot of pipeline counters since start.
type PerformanceMetrics struct {
	TotalProcessed       int64   `json:"total_processed"`
	SuccessCount         int64   `json:"success_count"`
	ErrorCount           int64   `json:"error_count"`
	SuccessRate          float64 `json:"success_rate"`
	AverageTotalTime     float64 `json:"average_total_time"`
	AverageAudioTime     float64 `json:"average_audio_time"`
	AverageSpeechTime    float64 `json:"average_speech_time"`
	PerformanceTargetMet bool    `json:"performance_target_met"`
}

// stats accumulates timings of successful runs and counts of all runs.
type stats struct {
	mu         sync.Mutex
	processed  int64
	succeeded  int64
	failed     int64
	totalTime  float64
	audioTime  float64
	speechTime float64
}

func (s *stats) success(total, audio, speech float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	s.succeeded++
	s.totalTime += total
	s.audioTime += audio
	s.speechTime += speech
}

func (s *stats) failure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	s.failed++
}

func (s *stats) snapshot() PerformanceMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.processed == 0 {
		return PerformanceMetrics{}
	}
	n := float64(max(1, s.succeeded))
	m := PerformanceMetrics{
		TotalProcessed:    s.processed,
		SuccessCount:      s.succeeded,
		ErrorCount:        s.failed,
		SuccessRate:       float64(s.succeeded) / float64(s.processed),
		AverageTotalTime:  s.totalTime / n,
		AverageAudioTime:  s.audioTime / n,
		AverageSpeechTime: s.speechTime / n,
	}
	m.PerformanceTargetMet = m.AverageTotalTime <= PerformanceTarget
	return m
}
