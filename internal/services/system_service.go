package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/shopapp/api/internal/domain"
	"github.com/shopapp/api/internal/repositories"
)

var (
	errSystemHealthRequired = errors.New("system service: health repository is required")
	errSystemClockRequired  = errors.New("system service: clock is required")
)

// BuildInfo identifies the running binary in health reports.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
}

// SystemServiceDeps wires the probes and build metadata for readiness reporting.
type SystemServiceDeps struct {
	Health repositories.HealthRepository
	Build  BuildInfo
	Clock  func() time.Time
}

type systemService struct {
	health    repositories.HealthRepository
	build     BuildInfo
	now       func() time.Time
	startedAt time.Time
}

// NewSystemService constructs a SystemService enforcing dependency validation.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.Health == nil {
		return nil, errSystemHealthRequired
	}
	if deps.Clock == nil {
		return nil, errSystemClockRequired
	}

	now := func() time.Time { return deps.Clock().UTC() }
	return &systemService{
		health:    deps.Health,
		build:     deps.Build,
		now:       now,
		startedAt: now(),
	}, nil
}

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	if s == nil || s.health == nil {
		return SystemHealthReport{}, errSystemHealthRequired
	}

	report, err := s.health.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}

	now := s.now()
	report.Status = deriveStatus(report.Checks)
	report.Version = s.build.Version
	report.CommitSHA = s.build.CommitSHA
	report.Environment = s.build.Environment
	report.Uptime = now.Sub(s.startedAt)
	report.GeneratedAt = now
	return report, nil
}

// deriveStatus reduces the per-dependency checks to the overall verdict. Any
// errored check fails readiness; a degraded check keeps the service up but
// flags the report.
func deriveStatus(checks map[string]domain.SystemHealthCheck) domain.HealthStatus {
	status := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusError:
			return domain.HealthStatusError
		case domain.HealthStatusDegraded:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
