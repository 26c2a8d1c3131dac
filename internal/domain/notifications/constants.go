package notifications

const (
	TypeKPISubmitted   = "kpi_submitted"
	TypeKPIApproved    = "kpi_approved"
	TypeKPIRejected    = "kpi_rejected"
	TypeLeaveSubmitted = "leave_submitted"
	TypeLeaveApproved  = "leave_approved"
	TypeLeaveRejected  = "leave_rejected"
	TypeLeaveCancelled = "leave_cancelled"
	TypeLeaveEscalated = "leave_escalated"
	TypeLeaveOverride  = "leave_emergency_override"
	TypeLeaveBypassed  = "leave_step_bypassed"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)
