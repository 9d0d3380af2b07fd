package metrics

import (
	"sort"
	"sync"
)

// topUsersLimit is how many users Summary reports.
const topUsersLimit = 5

// UserStats is the per-user usage tally.
type UserStats struct {
	UserID      string  `json:"user_id"`
	Requests    int64   `json:"requests"`
	TotalTime   float64 `json:"total_time"`
	AverageTime float64 `json:"average_time"`
}

// RecognitionSummary is a read-only snapshot of Recognition.
type RecognitionSummary struct {
	TotalRequests        int64            `json:"total_requests"`
	AverageTime          float64          `json:"average_time"`
	LanguageDistribution map[string]int64 `json:"language_distribution"`
	TopUsers             []UserStats      `json:"top_users"`
}

// Recognition accumulates recognition throughput, latency and per-user usage
// for the life of the process. It does no I/O and is safe for concurrent use.
type Recognition struct {
	mu        sync.Mutex
	total     int64
	totalTime float64
	languages map[string]int64
	users     map[string]*UserStats
}

func NewRecognition() *Recognition {
	return &Recognition{
		languages: make(map[string]int64),
		users:     make(map[string]*UserStats),
	}
}

// Record adds one recognition taking processingTime seconds.
func (r *Recognition) Record(userID string, processingTime float64, language string) {
	if language == "" {
		language = "unknown"
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.total++
	r.totalTime += processingTime
	r.languages[language]++

	u, ok := r.users[userID]
	if !ok {
		u = &UserStats{UserID: userID}
		r.users[userID] = u
	}
	u.Requests++
	u.TotalTime += processingTime
	u.AverageTime = u.TotalTime / float64(u.Requests)
}

// Summary returns totals, the language distribution and the five busiest users.
func (r *Recognition) Summary() RecognitionSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := RecognitionSummary{
		TotalRequests:        r.total,
		AverageTime:          r.totalTime / float64(max(1, r.total)),
		LanguageDistribution: make(map[string]int64, len(r.languages)),
	}
	for lang, n := range r.languages {
		s.LanguageDistribution[lang] = n
	}

	users := make([]UserStats, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Requests != users[j].Requests {
			return users[i].Requests > users[j].Requests
		}
		return users[i].UserID < users[j].UserID
	})
	if len(users) > topUsersLimit {
		users = users[:topUsersLimit]
	}
	s.TopUsers = users
	return s
}
