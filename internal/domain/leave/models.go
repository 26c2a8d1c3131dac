package leave

import (
	"time"

	"github.com/shopspring/decimal"

	"hrflow/internal/domain/apperr"
	"hrflow/internal/domain/auth"
	"hrflow/internal/domain/policy"
)

type MedicalInfo struct {
	Doctor   string `json:"doctor,omitempty"`
	Hospital string `json:"hospital,omitempty"`
	Symptoms string `json:"symptoms,omitempty"`
}

func (m *MedicalInfo) Empty() bool {
	return m == nil || (m.Doctor == "" && m.Hospital == "" && m.Symptoms == "")
}

type EmergencyContact struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship,omitempty"`
	Phone        string `json:"phone"`
}

type EvidenceKind string

const (
	EvidenceNone        EvidenceKind = "none"
	EvidencePending     EvidenceKind = "pending"
	EvidenceCertificate EvidenceKind = "certificate"
)

const (
	VerificationUnverified = "unverified"
	VerificationVerified   = "verified"
	VerificationRejected   = "rejected"
)

type Certificate struct {
	Provided           bool   `json:"provided"`
	FileRef            string `json:"fileRef,omitempty"`
	VerificationStatus string `json:"verificationStatus"`
}

// Evidence is a tagged variant. Certificate is set only for EvidenceCertificate.
type Evidence struct {
	Kind        EvidenceKind `json:"kind"`
	Certificate *Certificate `json:"certificate,omitempty"`
}

func NoEvidence() Evidence {
	return Evidence{Kind: EvidenceNone}
}

// PendingEvidence marks a certificate the employee promised to deliver later.
func PendingEvidence() Evidence {
	return Evidence{Kind: EvidencePending}
}

func CertificateEvidence(fileRef string) Evidence {
	return Evidence{Kind: EvidenceCertificate, Certificate: &Certificate{
		Provided:           true,
		FileRef:            fileRef,
		VerificationStatus: VerificationUnverified,
	}}
}

func (e Evidence) CertificateProvided() bool {
	return e.Kind == EvidenceCertificate && e.Certificate != nil && e.Certificate.Provided
}

type Attachment struct {
	ID          string                `json:"id"`
	Kind        policy.AttachmentKind `json:"kind"`
	FileName    string                `json:"fileName"`
	ContentType string                `json:"contentType"`
	Size        int64                 `json:"size"`
	FileRef     string                `json:"-"`
	UploadedAt  time.Time             `json:"uploadedAt"`
}

// Upload is an attachment received with a submission, before it is stored.
type Upload struct {
	Kind        policy.AttachmentKind
	FileName    string
	ContentType string
	Data        []byte
}

func (u Upload) Meta() policy.AttachmentMeta {
	return policy.AttachmentMeta{Kind: u.Kind, FileName: u.FileName, ContentType: u.ContentType, Size: int64(len(u.Data))}
}

type ChainStep struct {
	Level        int        `json:"level"`
	ApproverRole auth.Role  `json:"approverRole"`
	ApproverID   string     `json:"approverId,omitempty"`
	ApproverName string     `json:"approverName"`
	Department   string     `json:"department,omitempty"`
	Status       StepStatus `json:"status"`
	Comments     string     `json:"comments,omitempty"`
	ActedBy      string     `json:"actedBy,omitempty"`
	Rule         string     `json:"rule,omitempty"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	ActionDate   *time.Time `json:"actionDate,omitempty"`
}

func (s ChainStep) HoursPending(now time.Time) float64 {
	if s.Status != StepPending || s.StartedAt == nil {
		return 0
	}
	return policy.HoursPending(*s.StartedAt, now)
}

// DecisionRecord is one entry in the append-only decision log.
type DecisionRecord struct {
	Level      int       `json:"level,omitempty"`
	Role       auth.Role `json:"role"`
	ActorID    string    `json:"actorId"`
	ActorName  string    `json:"actorName,omitempty"`
	Action     string    `json:"action"`
	Comments   string    `json:"comments,omitempty"`
	Conditions string    `json:"conditions,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type StepDecision struct {
	Decision   Decision  `json:"decision"`
	ActorID    string    `json:"actorId"`
	ActorName  string    `json:"actorName,omitempty"`
	Comments   string    `json:"comments,omitempty"`
	Conditions string    `json:"conditions,omitempty"`
	DecidedAt  time.Time `json:"decidedAt"`
}

type HRReview struct {
	StepDecision
	MedicalCertificateRequired      bool   `json:"medicalCertificateRequired"`
	ReturnToWorkCertificateRequired bool   `json:"returnToWorkCertificateRequired"`
	ReviewNotes                     string `json:"reviewNotes,omitempty"`
}

type BalanceImpact struct {
	Category       Category         `json:"category"`
	Days           decimal.Decimal  `json:"days"`
	Tracked        bool             `json:"tracked"`
	Applied        bool             `json:"applied"`
	RemainingAfter *decimal.Decimal `json:"remainingAfter,omitempty"`
	AppliedAt      *time.Time       `json:"appliedAt,omitempty"`
	RefundedAt     *time.Time       `json:"refundedAt,omitempty"`
}

type LeaveRequest struct {
	ID                 string            `json:"id"`
	EmployeeID         string            `json:"employeeId"`
	EmployeeName       string            `json:"employeeName"`
	Department         string            `json:"department"`
	LeaveType          string            `json:"leaveType"`
	Category           Category          `json:"leaveCategory"`
	StartDate          time.Time         `json:"startDate"`
	EndDate            time.Time         `json:"endDate"`
	IsPartialDay       bool              `json:"isPartialDay"`
	TotalDays          decimal.Decimal   `json:"totalDays"`
	Urgency            Urgency           `json:"urgency"`
	Priority           Priority          `json:"priority"`
	Status             Status            `json:"status"`
	Reason             string            `json:"reason"`
	MedicalInfo        *MedicalInfo      `json:"medicalInfo,omitempty"`
	Evidence           Evidence          `json:"evidence"`
	EmergencyContact   *EmergencyContact `json:"emergencyContact,omitempty"`
	Attachments        []Attachment      `json:"attachments,omitempty"`
	ApprovalChain      []ChainStep       `json:"approvalChain"`
	ActiveLevel        int               `json:"activeLevel"`
	SupervisorDecision *StepDecision     `json:"supervisorDecision,omitempty"`
	HRReview           *HRReview         `json:"hrReview,omitempty"`
	AdminDecision      *StepDecision     `json:"adminDecision,omitempty"`
	Decisions          []DecisionRecord  `json:"decisions"`
	BalanceImpact      *BalanceImpact    `json:"leaveBalanceImpact,omitempty"`
	CancelReason       string            `json:"cancelReason,omitempty"`
	SubmittedAt        *time.Time        `json:"submittedAt,omitempty"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
	Version            int               `json:"version"`

	claimedDays *decimal.Decimal
}

// ActiveStep returns the step currently awaiting a decision.
func (r *LeaveRequest) ActiveStep() *ChainStep {
	if r.ActiveLevel <= 0 {
		return nil
	}
	for i := range r.ApprovalChain {
		if r.ApprovalChain[i].Level == r.ActiveLevel {
			return &r.ApprovalChain[i]
		}
	}
	return nil
}

// SupervisorID is the snapshotted supervisor approver, if any.
func (r *LeaveRequest) SupervisorID() string {
	for _, step := range r.ApprovalChain {
		if step.ApproverRole == auth.RoleSupervisor {
			return step.ApproverID
		}
	}
	return ""
}

// PendingRole is the role of the active step while the request is pending.
func (r *LeaveRequest) PendingRole() auth.Role {
	if !r.Status.IsPending() {
		return ""
	}
	if step := r.ActiveStep(); step != nil {
		return step.ApproverRole
	}
	return ""
}

// IsStuck reports whether the active step has waited longer than threshold.
func (r *LeaveRequest) IsStuck(now time.Time, threshold time.Duration) bool {
	if !r.Status.IsPending() {
		return false
	}
	step := r.ActiveStep()
	if step == nil || step.StartedAt == nil {
		return false
	}
	return policy.IsStuck(*step.StartedAt, now, threshold)
}

func (r *LeaveRequest) invalidState(op string) error {
	return &apperr.InvalidStateError{Entity: "leave_request", ID: r.ID, Current: string(r.Status), Op: op}
}

type Balance struct {
	EmployeeID    string          `json:"employeeId"`
	Category      Category        `json:"category"`
	RemainingDays decimal.Decimal `json:"remainingDays"`
	UsedDays      decimal.Decimal `json:"usedDays"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type BalanceAdjustment struct {
	ID         string          `json:"id"`
	EmployeeID string          `json:"employeeId"`
	Category   Category        `json:"category"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
	RequestID  string          `json:"requestId,omitempty"`
	CreatedBy  string          `json:"createdBy"`
	CreatedAt  time.Time       `json:"createdAt"`
}

type Filter struct {
	EmployeeID  string
	Statuses    []Status
	Categories  []Category
	Urgency     Urgency
	Department  string
	PendingRole auth.Role
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}

// Scope narrows a listing to what the caller may see. A zero Scope sees everything.
type Scope struct {
	OwnerID      string
	SupervisorID string
}

type Page struct {
	Items  []LeaveRequest `json:"items"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

type BulkItemResult struct {
	ID        string      `json:"id"`
	Success   bool        `json:"success"`
	Status    Status      `json:"status,omitempty"`
	ErrorKind apperr.Kind `json:"errorKind,omitempty"`
	Message   string      `json:"message,omitempty"`
}

type BulkResult struct {
	Results      []BulkItemResult `json:"results"`
	SuccessCount int              `json:"successCount"`
	FailedCount  int              `json:"failedCount"`
}
