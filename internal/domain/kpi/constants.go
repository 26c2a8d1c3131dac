package kpi

type Status string

const (
	StatusDraft    Status = "draft"
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Editable reports whether the owner may still change the set.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusRejected
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

type TargetType string

const (
	TargetTask      TargetType = "task"
	TargetMilestone TargetType = "milestone"
)

func (t TargetType) Valid() bool {
	return t == TargetTask || t == TargetMilestone
}

const (
	MinItems = 3
	MaxItems = 10

	MinRejectionComment = 20

	DefaultListLimit = 20
	MaxListLimit     = 100
)

const (
	ActionSave    = "save"
	ActionSubmit  = "submit"
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionDelete  = "delete"
	ActionLink    = "link"
)
