package leave

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"hrflow/internal/domain/apperr"
	"hrflow/internal/domain/auth"
	"hrflow/internal/domain/org"
	"hrflow/internal/domain/policy"
)

// deduct takes the request's days off its category balance. Untracked
// categories and already applied impacts are left alone.
func (s *Service) deduct(ctx context.Context, q Queries, req *LeaveRequest, actorID string, now time.Time) error {
	if req.BalanceImpact == nil {
		meta := CategoryInfo(req.Category)
		req.BalanceImpact = &BalanceImpact{Category: req.Category, Days: req.TotalDays, Tracked: meta.TracksBalance}
	}
	impact := req.BalanceImpact
	if !impact.Tracked || impact.Applied {
		return nil
	}
	bal, err := q.Balance(ctx, req.EmployeeID, req.Category)
	if err != nil {
		return err
	}
	if bal.RemainingDays.LessThan(impact.Days) {
		return apperr.NewInsufficientBalance(string(req.Category), bal.RemainingDays, impact.Days)
	}
	bal.RemainingDays = bal.RemainingDays.Sub(impact.Days)
	bal.UsedDays = bal.UsedDays.Add(impact.Days)
	bal.UpdatedAt = now
	if err := q.SaveBalance(ctx, bal); err != nil {
		return err
	}
	if err := q.RecordAdjustment(ctx, BalanceAdjustment{
		ID:         uuid.NewString(),
		EmployeeID: req.EmployeeID,
		Category:   req.Category,
		Amount:     impact.Days.Neg(),
		Reason:     "leave approved",
		RequestID:  req.ID,
		CreatedBy:  actorID,
		CreatedAt:  now,
	}); err != nil {
		return err
	}
	remaining := bal.RemainingDays
	applied := now
	impact.Applied = true
	impact.RemainingAfter = &remaining
	impact.AppliedAt = &applied
	return nil
}

// refund returns deducted days to the balance. It is a no-op unless a deduction was applied.
func (s *Service) refund(ctx context.Context, q Queries, req *LeaveRequest, actorID, reason string, now time.Time) error {
	impact := req.BalanceImpact
	if impact == nil || !impact.Applied || impact.RefundedAt != nil {
		return nil
	}
	bal, err := q.Balance(ctx, req.EmployeeID, impact.Category)
	if err != nil {
		return err
	}
	bal.RemainingDays = bal.RemainingDays.Add(impact.Days)
	bal.UsedDays = bal.UsedDays.Sub(impact.Days)
	if bal.UsedDays.IsNegative() {
		bal.UsedDays = decimal.Zero
	}
	bal.UpdatedAt = now
	if err := q.SaveBalance(ctx, bal); err != nil {
		return err
	}
	if reason == "" {
		reason = "leave cancelled"
	}
	if err := q.RecordAdjustment(ctx, BalanceAdjustment{
		ID:         uuid.NewString(),
		EmployeeID: req.EmployeeID,
		Category:   impact.Category,
		Amount:     impact.Days,
		Reason:     reason,
		RequestID:  req.ID,
		CreatedBy:  actorID,
		CreatedAt:  now,
	}); err != nil {
		return err
	}
	refunded := now
	remaining := bal.RemainingDays
	impact.Applied = false
	impact.RefundedAt = &refunded
	impact.RemainingAfter = &remaining
	return nil
}

// Balances lists every tracked category for employeeID. Categories without a
// stored row are reported with zero days.
func (s *Service) Balances(ctx context.Context, actor auth.UserContext, employeeID string) ([]Balance, error) {
	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" {
		employeeID = actor.UserID
	}
	if err := s.canSeeEmployee(actor, employeeID); err != nil {
		return nil, err
	}
	stored, err := s.Store.Balances(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	byCategory := make(map[Category]Balance, len(stored))
	for _, b := range stored {
		byCategory[b.Category] = b
	}
	out := make([]Balance, 0, len(categoryOrder))
	for _, c := range categoryOrder {
		if !CategoryInfo(c).TracksBalance {
			continue
		}
		b, ok := byCategory[c]
		if !ok {
			b = Balance{EmployeeID: employeeID, Category: c, RemainingDays: decimal.Zero, UsedDays: decimal.Zero}
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *Service) Adjustments(ctx context.Context, actor auth.UserContext, employeeID string) ([]BalanceAdjustment, error) {
	if employeeID == "" {
		employeeID = actor.UserID
	}
	if err := s.canSeeEmployee(actor, employeeID); err != nil {
		return nil, err
	}
	return s.Store.Adjustments(ctx, employeeID)
}

func (s *Service) canSeeEmployee(actor auth.UserContext, employeeID string) error {
	if employeeID == actor.UserID || s.Policy.Allowed(actor.Role, auth.ActionLeaveReadAll, "") {
		return nil
	}
	if actor.Role == auth.RoleSupervisor && s.Directory != nil && s.Directory.IsSupervisorOf(actor.UserID, employeeID) {
		return nil
	}
	return &apperr.AuthorizationError{Role: string(actor.Role), Action: string(auth.ActionLeaveRead), Reason: "not allowed to view this employee"}
}

// AdjustBalance applies a manual HR correction. Positive amounts credit days.
func (s *Service) AdjustBalance(ctx context.Context, actor auth.UserContext, employeeID string, category Category, amount decimal.Decimal, reason string) (out Balance, err error) {
	ctx, span := s.startSpan(ctx, "AdjustBalance", attribute.String("employee.id", employeeID), attribute.String("leave.category", string(category)))
	defer func() { endSpan(span, err) }()

	if err := s.Policy.Authorize(actor, auth.ActionLeaveBalanceAdjust, ""); err != nil {
		return Balance{}, err
	}
	verr := &apperr.ValidationError{}
	employeeID = strings.TrimSpace(employeeID)
	reason = strings.TrimSpace(reason)
	if employeeID == "" {
		verr.Add("employeeId", "is required")
	} else if s.Directory != nil {
		if _, ok := s.Directory.Employee(employeeID); !ok {
			verr.Add("employeeId", "unknown employee")
		}
	}
	if !category.Valid() {
		verr.Add("category", "unknown category")
	} else if !CategoryInfo(category).TracksBalance {
		verr.Add("category", "category does not track a balance")
	}
	if amount.IsZero() {
		verr.Add("amount", "must not be zero")
	}
	if reason == "" {
		verr.Add("reason", "is required")
	}
	if err := verr.OrNil(); err != nil {
		return Balance{}, err
	}

	now := s.now()
	err = s.Store.InTx(ctx, func(q Queries) error {
		bal, err := q.Balance(ctx, employeeID, category)
		if err != nil {
			return err
		}
		next := bal.RemainingDays.Add(amount)
		if next.IsNegative() {
			return apperr.NewInsufficientBalance(string(category), bal.RemainingDays, amount.Neg())
		}
		bal.RemainingDays = next
		bal.UpdatedAt = now
		if err := q.SaveBalance(ctx, bal); err != nil {
			return err
		}
		out = bal
		return q.RecordAdjustment(ctx, BalanceAdjustment{
			ID:         uuid.NewString(),
			EmployeeID: employeeID,
			Category:   category,
			Amount:     amount,
			Reason:     reason,
			CreatedBy:  actor.UserID,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return Balance{}, err
	}
	return out, nil
}

// SeedBalances writes the opening balances listed in the org directory.
// Existing rows are never overwritten.
func (s *Service) SeedBalances(ctx context.Context, employees []org.Employee) (int, error) {
	now := s.now()
	seeded := 0
	for _, emp := range employees {
		for name, days := range emp.Balances {
			category := Category(strings.ToLower(strings.TrimSpace(name)))
			if !category.Valid() {
				return seeded, fmt.Errorf("employee %s: unknown balance category %q", emp.ID, name)
			}
			ok, err := s.Store.SeedBalance(ctx, Balance{
				EmployeeID:    emp.ID,
				Category:      category,
				RemainingDays: decimal.NewFromFloat(days),
				UsedDays:      decimal.Zero,
				UpdatedAt:     now,
			})
			if err != nil {
				return seeded, err
			}
			if ok {
				seeded++
			}
		}
	}
	if seeded > 0 {
		zap.L().Info("leave balances seeded", zap.Int("rows", seeded))
	}
	return seeded, nil
}

// CheckResult is the outcome of a pre-submission check. Nothing is stored.
type CheckResult struct {
	LeaveType              string                 `json:"leaveType"`
	Category               Category               `json:"leaveCategory"`
	TotalDays              decimal.Decimal        `json:"totalDays"`
	CertificateRequirement CertificateRequirement `json:"certificateRequirement"`
	TracksBalance          bool                   `json:"tracksBalance"`
	RemainingDays          *decimal.Decimal       `json:"remainingDays,omitempty"`
	SufficientBalance      bool                   `json:"sufficientBalance"`
	Valid                  bool                   `json:"valid"`
	Issues                 []apperr.FieldIssue    `json:"issues,omitempty"`
}

// Check runs the submission rules against input without storing anything.
func (s *Service) Check(ctx context.Context, actor auth.UserContext, in SubmitInput) (CheckResult, error) {
	if err := s.Policy.Authorize(actor, auth.ActionLeaveCreate, string(StatusDraft)); err != nil {
		return CheckResult{}, err
	}
	req := s.newRequest(actor, s.now())
	applyInput(&req, in)

	res := CheckResult{
		LeaveType:         req.LeaveType,
		Category:          req.Category,
		TotalDays:         req.TotalDays,
		SufficientBalance: true,
	}
	verr := &apperr.ValidationError{}
	if err := validateSubmission(&req); err != nil {
		collectIssues(verr, err)
	}
	res.CertificateRequirement = MedicalCertificateRequirement(req.LeaveType, req.TotalDays)
	if res.CertificateRequirement == CertificateRequired && !hasCertificateAttachment(nil, in.Uploads) {
		verr.Add("medicalCertificate", "a medical certificate is required")
	}
	if err := validateAttachmentSet(nil, in.Uploads); err != nil {
		collectIssues(verr, err)
	}

	res.TracksBalance = req.Category.Valid() && CategoryInfo(req.Category).TracksBalance
	if res.TracksBalance {
		bal, err := s.Store.Balance(ctx, actor.UserID, req.Category)
		if err != nil {
			return CheckResult{}, err
		}
		remaining := bal.RemainingDays
		res.RemainingDays = &remaining
		res.SufficientBalance = !remaining.LessThan(req.TotalDays)
	}
	res.Issues = verr.Issues
	res.Valid = !verr.HasIssues() && res.SufficientBalance
	return res, nil
}

func collectIssues(dst *apperr.ValidationError, err error) {
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		dst.Issues = append(dst.Issues, ve.Issues...)
		return
	}
	dst.Add("request", err.Error())
}

type PreviewInput struct {
	EmployeeID string
	LeaveType  string
	StartDate  time.Time
	EndDate    time.Time
	Partial    bool
	TotalDays  *decimal.Decimal
	Urgency    Urgency
}

// ChainPreview is the chain a submission would snapshot right now.
type ChainPreview struct {
	EmployeeID string              `json:"employeeId"`
	LeaveType  string              `json:"leaveType"`
	Category   Category            `json:"leaveCategory"`
	TotalDays  decimal.Decimal     `json:"totalDays"`
	Chain      []policy.ChainEntry `json:"approvalChain"`
}

// PreviewChain resolves the approval chain for a hypothetical request.
func (s *Service) PreviewChain(ctx context.Context, actor auth.UserContext, in PreviewInput) (out ChainPreview, err error) {
	_, span := s.startSpan(ctx, "PreviewChain", attribute.String("leave.type", in.LeaveType))
	defer func() { endSpan(span, err) }()

	employeeID := strings.TrimSpace(in.EmployeeID)
	if employeeID == "" {
		employeeID = actor.UserID
	}
	if err := s.canSeeEmployee(actor, employeeID); err != nil {
		return ChainPreview{}, err
	}

	verr := &apperr.ValidationError{}
	leaveType := strings.TrimSpace(in.LeaveType)
	category, ok := CategoryOf(leaveType)
	if !ok {
		verr.Add("leaveType", "unknown leave type")
	}
	if in.Urgency != "" && !in.Urgency.Valid() {
		verr.Add("urgency", "must be low, medium, high or critical")
	}
	days := decimal.Zero
	switch {
	case in.TotalDays != nil:
		days = *in.TotalDays
		if !days.IsPositive() {
			verr.Add("totalDays", "must be positive")
		}
	case !in.StartDate.IsZero() && !in.EndDate.IsZero():
		d, err := CalculateTotalDays(DateOnly(in.StartDate), DateOnly(in.EndDate), in.Partial)
		if err != nil {
			verr.Add("endDate", err.Error())
		}
		days = d
	default:
		verr.Add("totalDays", "provide totalDays or startDate and endDate")
	}
	if err := verr.OrNil(); err != nil {
		return ChainPreview{}, err
	}

	input := policy.ChainInput{
		EmployeeID: employeeID,
		Category:   string(category),
		LeaveType:  leaveType,
		TotalDays:  days,
		Urgency:    string(in.Urgency),
	}
	if s.Directory != nil {
		if emp, ok := s.Directory.Employee(employeeID); ok {
			input.EmployeeName = emp.Name
			input.Department = emp.Department
		}
	}
	if s.Resolver == nil {
		return ChainPreview{}, fmt.Errorf("approval chain resolver not configured")
	}
	chain, err := s.Resolver.Resolve(input)
	if err != nil {
		return ChainPreview{}, fmt.Errorf("resolve approval chain: %w", err)
	}
	return ChainPreview{EmployeeID: employeeID, LeaveType: leaveType, Category: category, TotalDays: days, Chain: chain}, nil
}
