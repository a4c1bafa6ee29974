package service

import (
	"context"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// maxReportDays bounds one daily metrics query.
const maxReportDays = 366

// ReportService serves the daily rollups.
type ReportService struct {
	daily repository.DailyMetricRepository
}

// NewReportService creates the service.
func NewReportService(daily repository.DailyMetricRepository) *ReportService {
	return &ReportService{daily: daily}
}

// DailyMetrics returns rollups with from <= date <= to, oldest first.
func (s *ReportService) DailyMetrics(ctx context.Context, actor domain.Principal, from, to string) ([]domain.DailyMetric, error) {
	if actor.Role != domain.RoleManager {
		return nil, apperrors.NewForbidden("only managers can view daily metrics")
	}
	start, err := time.Parse(domain.DateKeyLayout, from)
	if err != nil {
		return nil, apperrors.NewValidationError("from must be YYYY-MM-DD", map[string]any{"from": from})
	}
	end, err := time.Parse(domain.DateKeyLayout, to)
	if err != nil {
		return nil, apperrors.NewValidationError("to must be YYYY-MM-DD", map[string]any{"to": to})
	}
	if end.Before(start) {
		return nil, apperrors.NewValidationError("from must not be after to", map[string]any{"from": from, "to": to})
	}
	if end.Sub(start) >= maxReportDays*24*time.Hour {
		return nil, apperrors.NewValidationError("range too large", map[string]any{"max_days": maxReportDays})
	}
	metrics, err := s.daily.ListRange(ctx, from, to)
	if err != nil {
		return nil, storeError("daily metric", from, err)
	}
	return metrics, nil
}
