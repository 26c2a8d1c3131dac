package leave

import (
	"sort"

	"hrflow/internal/domain/auth"
)

type Category string

const (
	CategoryMedical      Category = "medical"
	CategoryVacation     Category = "vacation"
	CategoryPersonal     Category = "personal"
	CategoryFamily       Category = "family"
	CategoryEmergency    Category = "emergency"
	CategoryBereavement  Category = "bereavement"
	CategoryStudy        Category = "study"
	CategoryMaternity    Category = "maternity"
	CategoryPaternity    Category = "paternity"
	CategoryCompensatory Category = "compensatory"
	CategorySabbatical   Category = "sabbatical"
	CategoryUnpaid       Category = "unpaid"
)

func (c Category) Valid() bool {
	_, ok := categoryMeta[c]
	return ok
}

type Status string

const (
	StatusDraft             Status = "draft"
	StatusPendingSupervisor Status = "pending_supervisor"
	StatusPendingHR         Status = "pending_hr"
	StatusPendingAdmin      Status = "pending_admin"
	StatusApproved          Status = "approved"
	StatusInProgress        Status = "in_progress"
	StatusCompleted         Status = "completed"
	StatusRejected          Status = "rejected"
	StatusCancelled         Status = "cancelled"
)

// PendingStatuses is the pending family in chain order.
var PendingStatuses = []Status{StatusPendingSupervisor, StatusPendingHR, StatusPendingAdmin}

func (s Status) IsPending() bool {
	switch s {
	case StatusPendingSupervisor, StatusPendingHR, StatusPendingAdmin:
		return true
	default:
		return false
	}
}

func (s Status) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusCompleted, StatusRejected, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s Status) Valid() bool {
	_, ok := statusMeta[s]
	return ok
}

// PendingStatusFor maps a chain role to the status a request holds while that role decides.
func PendingStatusFor(role auth.Role) (Status, bool) {
	switch role {
	case auth.RoleSupervisor:
		return StatusPendingSupervisor, true
	case auth.RoleHR:
		return StatusPendingHR, true
	case auth.RoleAdmin:
		return StatusPendingAdmin, true
	default:
		return "", false
	}
}

func RoleForStatus(s Status) (auth.Role, bool) {
	switch s {
	case StatusPendingSupervisor:
		return auth.RoleSupervisor, true
	case StatusPendingHR:
		return auth.RoleHR, true
	case StatusPendingAdmin:
		return auth.RoleAdmin, true
	default:
		return "", false
	}
}

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	default:
		return false
	}
}

type Priority string

const (
	PriorityRoutine   Priority = "routine"
	PriorityImportant Priority = "important"
	PriorityUrgent    Priority = "urgent"
	PriorityCritical  Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityRoutine, PriorityImportant, PriorityUrgent, PriorityCritical:
		return true
	default:
		return false
	}
}

// PriorityFor derives the default priority from urgency.
func PriorityFor(u Urgency) Priority {
	switch u {
	case UrgencyCritical:
		return PriorityCritical
	case UrgencyHigh:
		return PriorityUrgent
	case UrgencyMedium:
		return PriorityImportant
	default:
		return PriorityRoutine
	}
}

type StepStatus string

const (
	StepWaiting   StepStatus = "waiting"
	StepPending   StepStatus = "pending"
	StepApproved  StepStatus = "approved"
	StepRejected  StepStatus = "rejected"
	StepBypassed  StepStatus = "bypassed"
	StepEscalated StepStatus = "escalated"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

type EscalationTarget string

const (
	EscalateNextLevel EscalationTarget = "next_level"
	EscalateAdmin     EscalationTarget = "admin"
)

const (
	ActionSubmit         = "submit"
	ActionApprove        = "approve"
	ActionReject         = "reject"
	ActionOverride       = "emergency_override"
	ActionEscalate       = "escalate"
	ActionDirectApproval = "direct_approval"
	ActionCancel         = "cancel"
	ActionStart          = "start"
	ActionComplete       = "complete"
)

var leaveTypes = map[string]Category{
	"sick_leave":         CategoryMedical,
	"medical_procedure":  CategoryMedical,
	"recovery_leave":     CategoryMedical,
	"chronic_condition":  CategoryMedical,
	"mental_health":      CategoryMedical,
	"emergency_medical":  CategoryMedical,
	"annual_leave":       CategoryVacation,
	"vacation":           CategoryVacation,
	"personal_leave":     CategoryPersonal,
	"sick_leave_family":  CategoryFamily,
	"family_event":       CategoryFamily,
	"emergency_leave":    CategoryEmergency,
	"bereavement_leave":  CategoryBereavement,
	"study_leave":        CategoryStudy,
	"exam_leave":         CategoryStudy,
	"maternity_leave":    CategoryMaternity,
	"paternity_leave":    CategoryPaternity,
	"compensatory_leave": CategoryCompensatory,
	"sabbatical":         CategorySabbatical,
	"unpaid_leave":       CategoryUnpaid,
}

// CategoryOf derives the category of a leave type.
func CategoryOf(leaveType string) (Category, bool) {
	c, ok := leaveTypes[leaveType]
	return c, ok
}

func LeaveTypes() []string {
	out := make([]string, 0, len(leaveTypes))
	for t := range leaveTypes {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
