package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrflow/internal/domain/apperr"
	"hrflow/internal/domain/auth"
)

func TestValidateWeights(t *testing.T) {
	tests := []struct {
		name    string
		weights []int
		wantErr bool
	}{
		{name: "exact total", weights: []int{40, 30, 30}},
		{name: "single item", weights: []int{100}},
		{name: "under total", weights: []int{40, 30, 20}, wantErr: true},
		{name: "over total", weights: []int{50, 30, 30}, wantErr: true},
		{name: "zero weight", weights: []int{0, 50, 50}, wantErr: true},
		{name: "over max", weights: []int{101, -1}, wantErr: true},
		{name: "empty", weights: nil, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWeights("items", tt.weights)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrValidation))
			var verr *apperr.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.NotEmpty(t, verr.Issues)
		})
	}
}

func TestIsStuck(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.False(t, IsStuck(now.Add(-23*time.Hour), now, 24*time.Hour))
	assert.False(t, IsStuck(now.Add(-24*time.Hour), now, 24*time.Hour), "exactly at threshold is not stuck")
	assert.True(t, IsStuck(now.Add(-25*time.Hour), now, 24*time.Hour))
	assert.True(t, IsStuck(now.Add(-3*time.Hour), now, 2*time.Hour))
	assert.True(t, IsStuck(now.Add(-30*time.Hour), now, 0), "zero threshold falls back to default")
	assert.False(t, IsStuck(time.Time{}, now, time.Hour))
	assert.InDelta(t, 5.0, HoursPending(now.Add(-5*time.Hour), now), 0.001)
}

func TestValidateAttachments(t *testing.T) {
	ok := []AttachmentMeta{
		{Kind: AttachmentMedicalCertificate, FileName: "note.pdf", ContentType: "application/pdf", Size: 1024},
		{Kind: AttachmentSupportingDocument, FileName: "scan.png", ContentType: "image/png", Size: 2048},
	}
	require.NoError(t, ValidateAttachments(ok))

	tooMany := []AttachmentMeta{
		{Kind: AttachmentMedicalCertificate, FileName: "a.pdf", ContentType: "application/pdf", Size: 1},
		{Kind: AttachmentMedicalCertificate, FileName: "b.pdf", ContentType: "application/pdf", Size: 1},
	}
	assertIssueOn(t, ValidateAttachments(tooMany), "medicalCertificate")

	docs := make([]AttachmentMeta, 4)
	for i := range docs {
		docs[i] = AttachmentMeta{Kind: AttachmentSupportingDocument, FileName: "d.jpg", ContentType: "image/jpeg", Size: 10}
	}
	assertIssueOn(t, ValidateAttachments(docs), "supportingDocuments")

	big := []AttachmentMeta{{Kind: AttachmentSupportingDocument, FileName: "huge.pdf", ContentType: "application/pdf", Size: MaxAttachmentBytes + 1}}
	assertIssueOn(t, ValidateAttachments(big), "supportingDocuments")

	wrongType := []AttachmentMeta{{Kind: AttachmentMedicalCertificate, FileName: "note.docx", ContentType: "application/msword", Size: 10}}
	assertIssueOn(t, ValidateAttachments(wrongType), "medicalCertificate")

	assert.True(t, AcceptedContentType("application/pdf; charset=binary"))
	assert.False(t, AcceptedContentType("text/plain"))
}

func assertIssueOn(t *testing.T, err error, field string) {
	t.Helper()
	var verr *apperr.ValidationError
	require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
	for _, issue := range verr.Issues {
		if issue.Field == field {
			return
		}
	}
	t.Fatalf("no issue on %s in %v", field, verr.Issues)
}

func TestLoadRulesReadsApprovalBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "org.yaml")
	content := `
employees: []
approval:
  rules:
    - name: short_vacation_supervisor_only
      when: "category == 'vacation' && totalDays <= 2"
      supervisor_final: true
    - name: admin_for_sabbatical
      when: "category == 'sabbatical'"
      append: [admin]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	specs, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.True(t, specs[0].SupervisorFinal)

	rules, err := CompileRules(specs)
	require.NoError(t, err)
	assert.Len(t, rules, 2)
}

func TestLoadRulesDefaults(t *testing.T) {
	specs, err := LoadRules("")
	require.NoError(t, err)
	assert.Equal(t, DefaultRuleSpecs(), specs)
}

func TestCompileRulesRejectsBadInput(t *testing.T) {
	_, err := CompileRules([]RuleSpec{{Name: "broken", When: "category ==", Append: []auth.Role{auth.RoleAdmin}}})
	assert.Error(t, err)

	_, err = CompileRules([]RuleSpec{{Name: "noop", When: "totalDays > 1"}})
	assert.Error(t, err)

	_, err = CompileRules([]RuleSpec{{Name: "role", When: "totalDays > 1", Append: []auth.Role{"wizard"}}})
	assert.Error(t, err)
}

func TestRuleMustReturnBool(t *testing.T) {
	rules, err := CompileRules([]RuleSpec{{Name: "numeric", When: "totalDays + 1", Append: []auth.Role{auth.RoleAdmin}}})
	require.NoError(t, err)
	_, err = rules[0].Matches(map[string]interface{}{"totalDays": 2.0})
	assert.ErrorIs(t, err, ErrRuleResult)
}

func days(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}
