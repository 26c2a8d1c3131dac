package org

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrflow/internal/domain/auth"
)

const sampleOrg = `
headOfBusinessId: e-ceo
departments:
  - name: Engineering
    headId: e-eng
    hrPartnerId: e-hr
employees:
  - id: e-ceo
    name: Morgan Blake
    email: morgan@example.com
    department: Executive
    role: admin
  - id: e-eng
    name: Priya Nair
    email: priya@example.com
    department: Engineering
    role: supervisor
  - id: e-hr
    name: Harper Quinn
    email: harper@example.com
    department: People
    role: hr
    password: Harper123!
  - id: e-1
    name: Ava  Patel
    email: Ava@Example.com
    department: Engineering
    supervisorId: e-lead
    balances:
      vacation: 12
      medical: 1
  - id: e-lead
    name: Leo Park
    email: leo@example.com
    department: Engineering
    role: manager
`

func writeOrg(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "org.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleOrg), 0o600))
	return path
}

func TestLoadFileBuildsDirectory(t *testing.T) {
	dir, err := LoadFile(writeOrg(t))
	require.NoError(t, err)

	emp, ok := dir.EmployeeByName("ava patel")
	require.True(t, ok)
	assert.Equal(t, "e-1", emp.ID)
	assert.Equal(t, auth.RoleEmployee, emp.Role)
	assert.Equal(t, 12.0, emp.Balances["vacation"])

	lead, ok := dir.Employee("e-lead")
	require.True(t, ok)
	assert.Equal(t, auth.RoleSupervisor, lead.Role)

	head, ok := dir.HeadOfBusiness()
	require.True(t, ok)
	assert.Equal(t, "e-ceo", head.ID)
}

func TestSupervisorFallsBackToDepartmentHead(t *testing.T) {
	dir, err := LoadFile(writeOrg(t))
	require.NoError(t, err)

	sup, ok := dir.Supervisor("e-1")
	require.True(t, ok)
	assert.Equal(t, "e-lead", sup.ID)

	sup, ok = dir.Supervisor("e-lead")
	require.True(t, ok)
	assert.Equal(t, "e-eng", sup.ID)

	_, ok = dir.Supervisor("e-eng")
	assert.False(t, ok, "department head has no supervisor of their own")
	assert.True(t, dir.IsSupervisorOf("e-lead", "e-1"))
	assert.False(t, dir.IsSupervisorOf("e-eng", "e-1"))

	reports := dir.Reports("e-eng")
	require.Len(t, reports, 1)
	assert.Equal(t, "e-lead", reports[0].ID)
	assert.Empty(t, dir.Reports("e-1"))
}

func TestCredentialByEmailHashesPlainPasswords(t *testing.T) {
	dir, err := LoadFile(writeOrg(t))
	require.NoError(t, err)

	cred, ok := dir.CredentialByEmail(context.Background(), "harper@example.com")
	require.True(t, ok)
	assert.NotEqual(t, "Harper123!", cred.PasswordHash)
	assert.NoError(t, auth.CheckPassword(cred.PasswordHash, "Harper123!"))
	assert.Equal(t, auth.RoleHR, cred.Role)

	_, ok = dir.CredentialByEmail(context.Background(), "ava@example.com")
	assert.True(t, ok, "emails are matched case-insensitively")
}

func TestAddRejectsDuplicatesAndUnknownRoles(t *testing.T) {
	dir := NewDirectory()
	require.NoError(t, dir.Add(Employee{ID: "e-1", Name: "A"}))
	assert.ErrorIs(t, dir.Add(Employee{ID: "e-1", Name: "B"}), ErrDuplicateEmployee)
	assert.ErrorIs(t, dir.Add(Employee{ID: "e-2", Role: "wizard"}), ErrUnknownRole)
	assert.Len(t, dir.ByRole(auth.RoleEmployee), 1)
}
