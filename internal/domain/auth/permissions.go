package auth

import (
	"context"

	"hrflow/internal/domain/apperr"
)

type Action string

const (
	ActionKPIRead    Action = "kpi.read"
	ActionKPISave    Action = "kpi.save"
	ActionKPISubmit  Action = "kpi.submit"
	ActionKPIDecide  Action = "kpi.decide"
	ActionKPIDelete  Action = "kpi.delete"
	ActionKPILink    Action = "kpi.link"
	ActionKPIReadAll Action = "kpi.read_all"

	ActionLeaveRead              Action = "leave.read"
	ActionLeaveReadAll           Action = "leave.read_all"
	ActionLeaveCreate            Action = "leave.create"
	ActionLeaveCancel            Action = "leave.cancel"
	ActionLeaveSupervisorDecide  Action = "leave.supervisor_decide"
	ActionLeaveHRDecide          Action = "leave.hr_decide"
	ActionLeaveAdminDecide       Action = "leave.admin_decide"
	ActionLeaveBulkDecide        Action = "leave.bulk_decide"
	ActionLeaveEmergencyOverride Action = "leave.emergency_override"
	ActionLeaveEscalate          Action = "leave.escalate"
	ActionLeaveDirectApprove     Action = "leave.direct_approve"
	ActionLeaveLifecycle         Action = "leave.lifecycle"
	ActionLeaveBalanceAdjust     Action = "leave.balance_adjust"

	ActionAuditRead      Action = "audit.read"
	ActionRetentionSweep Action = "maintenance.retention"
)

// Record states referenced by the capability table. They mirror the kpi and
// leave status values; auth stays free of domain imports.
const (
	stateDraft             = "draft"
	stateRejected          = "rejected"
	statePending           = "pending"
	statePendingSupervisor = "pending_supervisor"
	statePendingHR         = "pending_hr"
	statePendingAdmin      = "pending_admin"
	stateApproved          = "approved"
	stateInProgress        = "in_progress"
)

var pendingLeaveStates = []string{statePendingSupervisor, statePendingHR, statePendingAdmin}

// Capability grants an action to a role. An empty States list allows any record state.
type Capability struct {
	Role   Role
	Action Action
	States []string
}

type Policy struct {
	grants map[Role]map[Action]map[string]struct{}
}

func NewPolicy(capabilities []Capability) *Policy {
	p := &Policy{grants: map[Role]map[Action]map[string]struct{}{}}
	for _, c := range capabilities {
		if p.grants[c.Role] == nil {
			p.grants[c.Role] = map[Action]map[string]struct{}{}
		}
		states := p.grants[c.Role][c.Action]
		if states == nil {
			states = map[string]struct{}{}
			p.grants[c.Role][c.Action] = states
		}
		if len(c.States) == 0 {
			states["*"] = struct{}{}
		}
		for _, s := range c.States {
			states[s] = struct{}{}
		}
	}
	return p
}

func ownerCapabilities(role Role) []Capability {
	return []Capability{
		{Role: role, Action: ActionKPIRead},
		{Role: role, Action: ActionKPISave, States: []string{stateDraft, stateRejected}},
		{Role: role, Action: ActionKPISubmit, States: []string{stateDraft, stateRejected}},
		{Role: role, Action: ActionKPIDelete, States: []string{stateDraft}},
		{Role: role, Action: ActionLeaveRead},
		{Role: role, Action: ActionLeaveCreate, States: []string{stateDraft}},
		{Role: role, Action: ActionLeaveCancel, States: append([]string{stateDraft}, pendingLeaveStates...)},
	}
}

// DefaultCapabilities is the built-in (Role, Action, RecordState) table.
func DefaultCapabilities() []Capability {
	var caps []Capability
	for _, role := range Roles {
		caps = append(caps, ownerCapabilities(role)...)
	}
	caps = append(caps,
		Capability{Role: RoleSupervisor, Action: ActionKPIDecide, States: []string{statePending}},
		Capability{Role: RoleSupervisor, Action: ActionLeaveSupervisorDecide, States: []string{statePendingSupervisor}},
		Capability{Role: RoleSupervisor, Action: ActionLeaveBulkDecide, States: []string{statePendingSupervisor}},

		Capability{Role: RoleProjectManager, Action: ActionKPILink, States: []string{stateApproved}},
		Capability{Role: RoleProjectManager, Action: ActionLeaveSupervisorDecide, States: []string{statePendingSupervisor}},

		Capability{Role: RoleHR, Action: ActionKPIReadAll},
		Capability{Role: RoleHR, Action: ActionKPIDecide, States: []string{statePending}},
		Capability{Role: RoleHR, Action: ActionKPILink, States: []string{stateApproved}},
		Capability{Role: RoleHR, Action: ActionLeaveReadAll},
		Capability{Role: RoleHR, Action: ActionLeaveHRDecide, States: []string{statePendingHR}},
		Capability{Role: RoleHR, Action: ActionLeaveSupervisorDecide, States: []string{statePendingSupervisor}},
		Capability{Role: RoleHR, Action: ActionLeaveBulkDecide, States: []string{statePendingHR}},
		Capability{Role: RoleHR, Action: ActionLeaveEmergencyOverride, States: pendingLeaveStates},
		Capability{Role: RoleHR, Action: ActionLeaveEscalate, States: pendingLeaveStates},
		Capability{Role: RoleHR, Action: ActionLeaveDirectApprove, States: pendingLeaveStates},
		Capability{Role: RoleHR, Action: ActionLeaveLifecycle, States: []string{stateApproved, stateInProgress}},
		Capability{Role: RoleHR, Action: ActionLeaveCancel, States: []string{stateApproved}},
		Capability{Role: RoleHR, Action: ActionLeaveBalanceAdjust},
		Capability{Role: RoleHR, Action: ActionAuditRead},

		Capability{Role: RoleAdmin, Action: ActionKPIReadAll},
		Capability{Role: RoleAdmin, Action: ActionKPIDecide, States: []string{statePending}},
		Capability{Role: RoleAdmin, Action: ActionLeaveReadAll},
		Capability{Role: RoleAdmin, Action: ActionLeaveAdminDecide, States: []string{statePendingAdmin}},
		Capability{Role: RoleAdmin, Action: ActionLeaveSupervisorDecide, States: []string{statePendingSupervisor}},
		Capability{Role: RoleAdmin, Action: ActionLeaveBulkDecide, States: []string{statePendingAdmin}},
		Capability{Role: RoleAdmin, Action: ActionAuditRead},
		Capability{Role: RoleAdmin, Action: ActionRetentionSweep},
	)
	return caps
}

func DefaultPolicy() *Policy {
	return NewPolicy(DefaultCapabilities())
}

// Allowed reports whether role may perform action on a record in state.
// An empty state asks whether the role holds the action in any state.
func (p *Policy) Allowed(role Role, action Action, state string) bool {
	if p == nil {
		return false
	}
	states, ok := p.grants[role][action]
	if !ok {
		return false
	}
	if state == "" {
		return true
	}
	if _, ok := states["*"]; ok {
		return true
	}
	_, ok = states[state]
	return ok
}

func (p *Policy) Authorize(user UserContext, action Action, state string) error {
	if p.Allowed(user.Role, action, state) {
		return nil
	}
	reason := ""
	if state != "" && p.Allowed(user.Role, action, "") {
		reason = "not permitted in status " + state
	}
	return &apperr.AuthorizationError{Role: string(user.Role), Action: string(action), Reason: reason}
}

// HasPermission lets the policy back the HTTP permission middleware.
func (p *Policy) HasPermission(_ context.Context, role Role, action Action) (bool, error) {
	return p.Allowed(role, action, ""), nil
}

// StatesFor lists the record states in which role may perform action.
func (p *Policy) StatesFor(role Role, action Action) []string {
	states := p.grants[role][action]
	out := make([]string, 0, len(states))
	for s := range states {
		if s != "*" {
			out = append(out, s)
		}
	}
	return out
}
