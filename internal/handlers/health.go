package handlers

import (
	"net/http"
	"sort"
	"strings"
	"time"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/services"
)

// HealthHandlers serves the /healthz liveness and /readyz readiness probes.
type HealthHandlers struct {
	system services.SystemService
	build  services.BuildInfo
	clock  func() time.Time
}

// HealthOption customises health handler construction.
type HealthOption func(*HealthHandlers)

// NewHealthHandlers constructs probe handlers. Without a system service the
// readiness probe reports liveness only.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

// WithHealthSystemService wires the system service used for readiness checks.
func WithHealthSystemService(system services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = system
	}
}

// WithHealthBuildInfo sets build metadata reported by the probes.
func WithHealthBuildInfo(build services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = build
	}
}

// WithHealthClock overrides the time source.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

type healthCheckPayload struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
	CheckedAt string `json:"checked_at,omitempty"`
}

type healthResponse struct {
	Status      string                        `json:"status"`
	Version     string                        `json:"version,omitempty"`
	CommitSHA   string                        `json:"commitSha,omitempty"`
	Environment string                        `json:"environment,omitempty"`
	Uptime      string                        `json:"uptime,omitempty"`
	Timestamp   string                        `json:"timestamp"`
	Checks      map[string]healthCheckPayload `json:"checks,omitempty"`
	Details     []string                      `json:"details"`
}

// Healthz reports process liveness and build metadata. It never consults
// downstream dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	writeJSONResponse(w, http.StatusOK, healthResponse{
		Status:      domain.HealthStatusOK,
		Version:     h.build.Version,
		CommitSHA:   h.build.CommitSHA,
		Environment: h.build.Environment,
		Uptime:      now.Sub(h.build.StartedAt).String(),
		Timestamp:   now.Format(time.RFC3339),
		Details:     []string{},
	})
}

// Readyz aggregates dependency checks through the system service. Any check
// that is not healthy degrades the response to 503.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()

	if h.system == nil {
		writeJSONResponse(w, http.StatusOK, healthResponse{
			Status:    domain.HealthStatusOK,
			Timestamp: now.Format(time.RFC3339),
			Details:   []string{},
		})
		return
	}

	report, err := h.system.HealthReport(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, healthResponse{
			Status:    domain.HealthStatusError,
			Timestamp: now.Format(time.RFC3339),
			Details:   []string{err.Error()},
		})
		return
	}

	response := healthResponse{
		Status:      report.Status,
		Version:     firstNonEmptyString(report.Version, h.build.Version),
		CommitSHA:   firstNonEmptyString(report.CommitSHA, h.build.CommitSHA),
		Environment: firstNonEmptyString(report.Environment, h.build.Environment),
		Timestamp:   now.Format(time.RFC3339),
		Details:     []string{},
	}
	if report.Uptime > 0 {
		response.Uptime = report.Uptime.String()
	}

	if len(report.Checks) > 0 {
		response.Checks = make(map[string]healthCheckPayload, len(report.Checks))
		names := make([]string, 0, len(report.Checks))
		for name := range report.Checks {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			check := report.Checks[name]
			response.Checks[name] = healthCheckPayload{
				Status:    check.Status,
				LatencyMS: check.Latency.Milliseconds(),
				Error:     check.Error,
				CheckedAt: formatTime(check.CheckedAt),
			}
			if check.Status != domain.HealthStatusOK && check.Status != "" {
				detail := name
				if strings.TrimSpace(check.Error) != "" {
					detail = name + ": " + check.Error
				}
				response.Details = append(response.Details, detail)
			}
		}
	}

	status := http.StatusOK
	if response.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, response)
}

func firstNonEmptyString(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
