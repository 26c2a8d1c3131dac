package leave

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var allCategories = []Category{
	CategoryMedical, CategoryVacation, CategoryPersonal, CategoryFamily,
	CategoryEmergency, CategoryBereavement, CategoryStudy, CategoryMaternity,
	CategoryPaternity, CategoryCompensatory, CategorySabbatical, CategoryUnpaid,
}

var allUrgencies = []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical}

func TestMedicalCertificateRequirement(t *testing.T) {
	cases := []struct {
		leaveType string
		days      string
		want      CertificateRequirement
	}{
		{"sick_leave", "0.5", CertificateRecommended},
		{"sick_leave", "1", CertificateRecommended},
		{"sick_leave", "1.5", CertificateRequired},
		{"sick_leave", "2", CertificateRequired},
		{"medical_procedure", "3", CertificateRequired},
		{"maternity_leave", "90", CertificateRequired},
		{"sick_leave_family", "1", CertificateRecommended},
		{"sick_leave_family", "10", CertificateRecommended},
		{"mental_health", "4", CertificateRecommended},
		{"emergency_medical", "2", CertificateRecommended},
		{"annual_leave", "5", CertificateNotRequired},
		{"personal_leave", "1", CertificateNotRequired},
	}
	for _, tc := range cases {
		got := MedicalCertificateRequirement(tc.leaveType, decimal.RequireFromString(tc.days))
		assert.Equal(t, tc.want, got, "%s for %s days", tc.leaveType, tc.days)
	}
}

func TestEmergencyOverrideEligibility(t *testing.T) {
	for _, category := range allCategories {
		assert.True(t, IsEligibleForEmergencyOverride(UrgencyCritical, category), "critical %s", category)
		assert.True(t, IsEligibleForEmergencyOverride(UrgencyHigh, category), "high %s", category)
	}
	for _, urgency := range allUrgencies {
		assert.True(t, IsEligibleForEmergencyOverride(urgency, CategoryMedical), "%s medical", urgency)
		assert.True(t, IsEligibleForEmergencyOverride(urgency, CategoryEmergency), "%s emergency", urgency)
		assert.True(t, IsEligibleForEmergencyOverride(urgency, CategoryBereavement), "%s bereavement", urgency)
	}
	assert.False(t, IsEligibleForEmergencyOverride(UrgencyLow, CategoryVacation))
	assert.False(t, IsEligibleForEmergencyOverride(UrgencyMedium, CategoryStudy))
	assert.False(t, IsEligibleForEmergencyOverride(UrgencyLow, CategorySabbatical))
}

func TestDirectApprovalEligibility(t *testing.T) {
	cases := []struct {
		name        string
		days        string
		category    Category
		certificate bool
		want        bool
	}{
		{"vacation at the limit", "3", CategoryVacation, false, true},
		{"vacation over the limit", "3.5", CategoryVacation, false, false},
		{"personal half day", "0.5", CategoryPersonal, false, true},
		{"medical with certificate", "3", CategoryMedical, true, true},
		{"medical without certificate", "2", CategoryMedical, false, false},
		{"medical over the limit", "3.5", CategoryMedical, true, false},
		{"study never qualifies", "1", CategoryStudy, false, false},
		{"sabbatical never qualifies", "1", CategorySabbatical, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := IsEligibleForDirectApproval(decimal.RequireFromString(tc.days), tc.category, tc.certificate)
			assert.Equal(t, tc.want, got)
		})
	}
}
