package reports

import (
	"context"

	"hrflow/internal/domain/auth"
	"hrflow/internal/domain/kpi"
	"hrflow/internal/domain/leave"
)

type KPILister interface {
	List(ctx context.Context, actor auth.UserContext, filter kpi.Filter) (kpi.Page, error)
}

type LeaveLister interface {
	List(ctx context.Context, actor auth.UserContext, filter leave.Filter) (leave.Page, error)
}

// Dashboard holds the counters shown on the landing page. Every number is
// limited to what the actor may see.
type Dashboard struct {
	KPIDrafts       int `json:"kpiDrafts"`
	KPIPending      int `json:"kpiPending"`
	KPIApproved     int `json:"kpiApproved"`
	LeavePending    int `json:"leavePending"`
	LeaveAwaitingMe int `json:"leaveAwaitingMe"`
	LeaveApproved   int `json:"leaveApproved"`
	LeaveInProgress int `json:"leaveInProgress"`
}

type Service struct {
	KPI   KPILister
	Leave LeaveLister
}

func NewService(kpis KPILister, leaves LeaveLister) *Service {
	return &Service{KPI: kpis, Leave: leaves}
}

func (s *Service) Dashboard(ctx context.Context, actor auth.UserContext) (Dashboard, error) {
	var out Dashboard
	kpiCounts := []struct {
		dst    *int
		status kpi.Status
	}{
		{&out.KPIDrafts, kpi.StatusDraft},
		{&out.KPIPending, kpi.StatusPending},
		{&out.KPIApproved, kpi.StatusApproved},
	}
	for _, c := range kpiCounts {
		page, err := s.KPI.List(ctx, actor, kpi.Filter{Statuses: []kpi.Status{c.status}, Limit: 1})
		if err != nil {
			return Dashboard{}, err
		}
		*c.dst = page.Total
	}

	leaveCounts := []struct {
		dst    *int
		filter leave.Filter
	}{
		{&out.LeavePending, leave.Filter{Statuses: []leave.Status{leave.StatusPendingSupervisor, leave.StatusPendingHR, leave.StatusPendingAdmin}}},
		{&out.LeaveApproved, leave.Filter{Statuses: []leave.Status{leave.StatusApproved}}},
		{&out.LeaveInProgress, leave.Filter{Statuses: []leave.Status{leave.StatusInProgress}}},
	}
	if awaiting, ok := pendingStatus(actor.Role); ok {
		leaveCounts = append(leaveCounts, struct {
			dst    *int
			filter leave.Filter
		}{&out.LeaveAwaitingMe, leave.Filter{Statuses: []leave.Status{awaiting}}})
	}
	for _, c := range leaveCounts {
		c.filter.Limit = 1
		page, err := s.Leave.List(ctx, actor, c.filter)
		if err != nil {
			return Dashboard{}, err
		}
		*c.dst = page.Total
	}
	return out, nil
}

func pendingStatus(role auth.Role) (leave.Status, bool) {
	switch role {
	case auth.RoleSupervisor:
		return leave.StatusPendingSupervisor, true
	case auth.RoleHR:
		return leave.StatusPendingHR, true
	case auth.RoleAdmin:
		return leave.StatusPendingAdmin, true
	}
	return "", false
}
