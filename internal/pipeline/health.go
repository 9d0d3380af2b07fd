package pipeline

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// ComponentHealth is the state of one collaborator.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Health is the pipeline's self-report.
type Health struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
}

// HealthCheck reports whether the collaborators are wired. It makes no
// network calls.
func (p *Pipeline) HealthCheck() Health {
	h := Health{
		Status: StatusHealthy,
		Components: map[string]ComponentHealth{
			"audio_processor":   componentHealth(p.acquirer != nil && p.acquirer.Ready()),
			"speech_recognizer": componentHealth(p.recognizer != nil && p.recognizer.Ready()),
		},
	}
	for _, c := range h.Components {
		if c.Status != StatusHealthy {
			h.Status = StatusUnhealthy
		}
	}
	return h
}

func componentHealth(ready bool) ComponentHealth {
	if ready {
		return ComponentHealth{Status: StatusHealthy, Message: "ready"}
	}
	return ComponentHealth{Status: StatusUnhealthy, Message: "not initialized"}
}
