package f

import (
	"context"
	"time"
)

const (
	StatusUp   = "UP"
	StatusDown = "DOWN"
)

type HealthCheckResponse struct {
	Whoami     string                          `json:"whoami"`
	Status     string                          `json:"status"`
	Components map[string]HealthCheckComponent `json:"components"`
}

type HealthCheckComponent struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type HealthCheck struct {
	service    string
	status     string
	components map[string]HealthCheckComponent
}

func NewHealthCheck(service string) HealthCheck {
	return HealthCheck{
		service:    service,
		status:     StatusUp,
		components: make(map[string]HealthCheckComponent),
	}
}

func (b *HealthCheck) Add(name string, tester func() error) {
	var message string
	status := StatusUp
	start := time.Now()
	if err := tester(); err != nil {
		status = StatusDown
		message = err.Error()
		b.status = StatusDown
	}
	b.components[name] = HealthCheckComponent{
		Message: message,
		Status:  status,
		Latency: time.Since(start).Round(time.Microsecond).String(),
	}
}

// Merge copies the components of another report under prefix.
func (b *HealthCheck) Merge(prefix string, other HealthCheckResponse) {
	for name, component := range other.Components {
		b.components[prefix+name] = component
		if component.Status == StatusDown {
			b.status = StatusDown
		}
	}
}

func (b *HealthCheck) AddPing(ctx context.Context, name string, ping func(ctx context.Context) error) {
	b.Add(name, func() error { return ping(ctx) })
}

func (b *HealthCheck) Build() HealthCheckResponse {
	return HealthCheckResponse{
		Whoami:     b.service,
		Status:     b.status,
		Components: b.components,
	}
}
