package leave

import (
	"time"

	"github.com/shopspring/decimal"
)

type CertificateRequirement string

const (
	CertificateRequired    CertificateRequirement = "required"
	CertificateRecommended CertificateRequirement = "recommended"
	CertificateNotRequired CertificateRequirement = "not_required"
)

var (
	certificateRequiredTypes = map[string]bool{
		"sick_leave":        true,
		"medical_procedure": true,
		"recovery_leave":    true,
		"chronic_condition": true,
		"maternity_leave":   true,
	}
	certificateRecommendedTypes = map[string]bool{
		"sick_leave_family": true,
		"mental_health":     true,
		"emergency_medical": true,
	}
	directApprovalMaxDays = decimal.NewFromInt(3)
)

// MedicalCertificateRequirement decides whether a certificate must accompany the request.
func MedicalCertificateRequirement(leaveType string, totalDays decimal.Decimal) CertificateRequirement {
	if certificateRequiredTypes[leaveType] {
		if totalDays.GreaterThan(decimal.NewFromInt(1)) {
			return CertificateRequired
		}
		return CertificateRecommended
	}
	if certificateRecommendedTypes[leaveType] {
		return CertificateRecommended
	}
	return CertificateNotRequired
}

func IsEligibleForEmergencyOverride(urgency Urgency, category Category) bool {
	switch urgency {
	case UrgencyCritical, UrgencyHigh:
		return true
	}
	switch category {
	case CategoryMedical, CategoryEmergency, CategoryBereavement:
		return true
	}
	return false
}

func IsEligibleForDirectApproval(totalDays decimal.Decimal, category Category, certificateProvided bool) bool {
	if totalDays.GreaterThan(directApprovalMaxDays) {
		return false
	}
	switch category {
	case CategoryVacation, CategoryPersonal:
		return true
	case CategoryMedical:
		return certificateProvided
	default:
		return false
	}
}

// Eligibility summarizes which HR shortcuts apply to a request right now.
type Eligibility struct {
	ID                     string                 `json:"id"`
	Status                 Status                 `json:"status"`
	EmergencyOverride      bool                   `json:"emergencyOverride"`
	DirectApproval         bool                   `json:"directApproval"`
	Escalation             bool                   `json:"escalation"`
	Stuck                  bool                   `json:"stuck"`
	HoursPending           float64                `json:"hoursPending"`
	CertificateRequirement CertificateRequirement `json:"certificateRequirement"`
}

func EligibilityOf(req LeaveRequest, now time.Time, threshold time.Duration) Eligibility {
	pending := req.Status.IsPending()
	el := Eligibility{
		ID:                     req.ID,
		Status:                 req.Status,
		EmergencyOverride:      pending && IsEligibleForEmergencyOverride(req.Urgency, req.Category),
		DirectApproval:         pending && IsEligibleForDirectApproval(req.TotalDays, req.Category, req.Evidence.CertificateProvided()),
		Escalation:             pending,
		Stuck:                  req.IsStuck(now, threshold),
		CertificateRequirement: MedicalCertificateRequirement(req.LeaveType, req.TotalDays),
	}
	if step := req.ActiveStep(); step != nil && pending {
		el.HoursPending = step.HoursPending(now)
	}
	return el
}
