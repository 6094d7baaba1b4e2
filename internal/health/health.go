// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ComponentHealth contains health details for one component.
type ComponentHealth struct {
	Name        string       `json:"name"`
	Status      SystemStatus `json:"status"`
	Pending     int          `json:"pending,omitempty"`
	InFlight    int          `json:"in_flight,omitempty"`
	DeadLetters int          `json:"dead_letters,omitempty"`
	Online      *bool        `json:"online,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Overall returns the worst status in the report.
func Overall(report map[string]ComponentHealth) SystemStatus {
	status := StatusHealthy
	for _, c := range report {
		if c.Status == StatusCritical {
			return StatusCritical
		}
		if c.Status == StatusDegraded {
			status = StatusDegraded
		}
	}
	return status
}
