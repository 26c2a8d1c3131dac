package kpi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hrflow/internal/domain/auth"
	"hrflow/internal/domain/org"
	"hrflow/internal/platform/db"
	"hrflow/internal/platform/events"
)

var (
	employee   = auth.UserContext{UserID: "e-1", Name: "Ava Patel", Role: auth.RoleEmployee}
	colleague  = auth.UserContext{UserID: "e-2", Name: "Ben Cho", Role: auth.RoleEmployee}
	supervisor = auth.UserContext{UserID: "e-lead", Name: "Leo Park", Role: auth.RoleSupervisor}
	otherLead  = auth.UserContext{UserID: "e-sales", Name: "Sam Ortiz", Role: auth.RoleSupervisor}
	hr         = auth.UserContext{UserID: "e-hr", Name: "Harper Quinn", Role: auth.RoleHR}
	pm         = auth.UserContext{UserID: "e-pm", Name: "Jo Rivera", Role: auth.RoleProjectManager}
)

type fixture struct {
	svc   *Service
	store *SQLiteStore
	bus   *events.Bus
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, db.MigrateSQLite(context.Background(), conn))

	dir := org.NewDirectory()
	require.NoError(t, dir.Load(org.File{
		HeadOfBusinessID: "e-ceo",
		Departments: []org.Department{
			{Name: "Engineering", HeadID: "e-eng", HRPartnerID: "e-hr"},
			{Name: "Sales", HeadID: "e-sales"},
		},
		Employees: []org.Employee{
			{ID: "e-ceo", Name: "Morgan Blake", Department: "Executive", Role: auth.RoleAdmin},
			{ID: "e-eng", Name: "Priya Nair", Department: "Engineering", Role: auth.RoleSupervisor},
			{ID: "e-sales", Name: "Sam Ortiz", Department: "Sales", Role: auth.RoleSupervisor},
			{ID: "e-hr", Name: "Harper Quinn", Department: "People", Role: auth.RoleHR},
			{ID: "e-pm", Name: "Jo Rivera", Department: "Engineering", Role: auth.RoleProjectManager, SupervisorID: "e-eng"},
			{ID: "e-lead", Name: "Leo Park", Department: "Engineering", Role: auth.RoleSupervisor, SupervisorID: "e-eng"},
			{ID: "e-1", Name: "Ava Patel", Department: "Engineering", SupervisorID: "e-lead"},
			{ID: "e-2", Name: "Ben Cho", Department: "Sales"},
		},
	}))

	f := &fixture{
		store: NewSQLiteStore(conn),
		bus:   events.NewBus(&events.BusConfig{BufferSize: 64}),
		now:   time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.store, dir)
	f.svc.Events = f.bus
	f.svc.Now = func() time.Time { return f.now }
	return f
}

func items(weights ...int) []Item {
	out := make([]Item, len(weights))
	for i, w := range weights {
		out[i] = Item{
			Title:             "Objective " + string(rune('A'+i)),
			Description:       "Deliver the agreed outcome",
			Weight:            w,
			TargetValue:       "100%",
			MeasurableOutcome: "Signed off by stakeholders",
		}
	}
	return out
}

// submitted saves and submits a valid set for actor.
func (f *fixture) submitted(t *testing.T, actor auth.UserContext, quarter string) KPISet {
	t.Helper()
	ctx := context.Background()
	set, err := f.svc.SaveOrUpdate(ctx, actor, quarter, items(30, 30, 20, 20))
	require.NoError(t, err)
	set, err = f.svc.Submit(ctx, actor, set.ID)
	require.NoError(t, err)
	return set
}

func (f *fixture) approved(t *testing.T, quarter string) KPISet {
	t.Helper()
	set := f.submitted(t, employee, quarter)
	set, err := f.svc.ProcessApproval(context.Background(), supervisor, set.ID, DecisionApprove, "Looks good")
	require.NoError(t, err)
	return set
}
