package leave

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"hrflow/internal/domain/apperr"
	"hrflow/internal/domain/auth"
	"hrflow/internal/domain/org"
	"hrflow/internal/domain/policy"
	"hrflow/internal/platform/db"
	"hrflow/internal/platform/events"
)

var (
	employee   = auth.UserContext{UserID: "e-1", Name: "Ava Patel", Role: auth.RoleEmployee}
	colleague  = auth.UserContext{UserID: "e-2", Name: "Ben Cho", Role: auth.RoleEmployee}
	supervisor = auth.UserContext{UserID: "e-lead", Name: "Leo Park", Role: auth.RoleSupervisor}
	otherLead  = auth.UserContext{UserID: "e-sales", Name: "Sam Ortiz", Role: auth.RoleSupervisor}
	hr         = auth.UserContext{UserID: "e-hr", Name: "Harper Quinn", Role: auth.RoleHR}
	admin      = auth.UserContext{UserID: "e-ceo", Name: "Morgan Blake", Role: auth.RoleAdmin}
)

type memBlobs struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (m *memBlobs) Put(_ context.Context, key string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = map[string][]byte{}
	}
	m.files[key] = append([]byte(nil), data...)
	return key, nil
}

func (m *memBlobs) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[ref]
	if !ok {
		return nil, apperr.NotFound("blob", ref)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memBlobs) Delete(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, ref)
	return nil
}

func (m *memBlobs) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

type fixture struct {
	svc   *Service
	store *SQLiteStore
	dir   *org.Directory
	blobs *memBlobs
	bus   *events.Bus
	now   time.Time
}

func newFixture(t *testing.T, specs ...policy.RuleSpec) *fixture {
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
			{ID: "e-lead", Name: "Leo Park", Department: "Engineering", Role: auth.RoleSupervisor, SupervisorID: "e-eng"},
			{ID: "e-1", Name: "Ava Patel", Department: "Engineering", SupervisorID: "e-lead"},
			{ID: "e-2", Name: "Ben Cho", Department: "Sales"},
		},
	}))

	if len(specs) == 0 {
		specs = policy.DefaultRuleSpecs()
	}
	rules, err := policy.CompileRules(specs)
	require.NoError(t, err)

	f := &fixture{
		store: NewSQLiteStore(conn, nil),
		dir:   dir,
		blobs: &memBlobs{},
		bus:   events.NewBus(&events.BusConfig{BufferSize: 64}),
		now:   time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.store, policy.NewResolver(dir, rules), dir)
	f.svc.Blobs = f.blobs
	f.svc.Events = f.bus
	f.svc.Now = func() time.Time { return f.now }
	return f
}

func (f *fixture) seed(t *testing.T, employeeID string, category Category, days int64) {
	t.Helper()
	_, err := f.store.SeedBalance(context.Background(), Balance{
		EmployeeID:    employeeID,
		Category:      category,
		RemainingDays: decimal.NewFromInt(days),
		UsedDays:      decimal.Zero,
		UpdatedAt:     f.now,
	})
	require.NoError(t, err)
}

func (f *fixture) remaining(t *testing.T, employeeID string, category Category) decimal.Decimal {
	t.Helper()
	bal, err := f.store.Balance(context.Background(), employeeID, category)
	require.NoError(t, err)
	return bal.RemainingDays
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func date(day int) time.Time {
	return time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC)
}

func vacation(startDay, endDay int) SubmitInput {
	return SubmitInput{
		LeaveType: "annual_leave",
		StartDate: date(startDay),
		EndDate:   date(endDay),
		Urgency:   UrgencyMedium,
		Reason:    "family trip",
	}
}

func (f *fixture) submit(t *testing.T, actor auth.UserContext, in SubmitInput) LeaveRequest {
	t.Helper()
	req, err := f.svc.Submit(context.Background(), actor, in)
	require.NoError(t, err)
	return req
}

func approve(comments string) DecisionInput {
	return DecisionInput{Decision: DecisionApprove, Comments: comments}
}

func reject(comments string) DecisionInput {
	return DecisionInput{Decision: DecisionReject, Comments: comments}
}
