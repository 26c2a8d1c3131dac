package kpi

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"hrflow/internal/domain/apperr"
	"hrflow/internal/domain/auth"
	"hrflow/internal/domain/org"
	"hrflow/internal/platform/events"
	"hrflow/internal/requestctx"
)

// Directory is the organization data the KPI engine reads.
type Directory interface {
	Employee(id string) (org.Employee, bool)
	IsSupervisorOf(supervisorID, employeeID string) bool
	Reports(supervisorID string) []org.Employee
}

type Service struct {
	Store     StoreAPI
	Directory Directory
	Policy    *auth.Policy
	Events    events.Publisher
	Now       func() time.Time

	tracer trace.Tracer
}

func NewService(store StoreAPI, directory Directory) *Service {
	return &Service{
		Store:     store,
		Directory: directory,
		Policy:    auth.DefaultPolicy(),
		tracer:    otel.Tracer("hrflow/internal/domain/kpi"),
	}
}

// LinkInput describes a task or milestone to attach to an approved set.
type LinkInput struct {
	TargetType    TargetType
	TargetID      string
	Title         string
	Contributions []Contribution
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if s.tracer == nil {
		s.tracer = otel.Tracer("hrflow/internal/domain/kpi")
	}
	return s.tracer.Start(ctx, "kpi."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		if !apperr.IsClientError(err) {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}

// SaveOrUpdate creates the actor's set for quarter or replaces the items of
// the existing one. Weights need not add up until submission. Editing a
// rejected set turns it back into a draft and keeps the rejection reason
// visible until the next submission.
func (s *Service) SaveOrUpdate(ctx context.Context, actor auth.UserContext, quarter string, items []Item) (out KPISet, err error) {
	ctx, span := s.startSpan(ctx, "SaveOrUpdate", attribute.String("kpi.quarter", quarter))
	defer func() { endSpan(span, err) }()

	verr := &apperr.ValidationError{}
	q, qerr := ParseQuarter(quarter)
	if qerr != nil {
		verr.Add("quarter", qerr.Error())
	}
	items = normalizeItems(items)
	validateItems(verr, items)
	if err := verr.OrNil(); err != nil {
		return KPISet{}, err
	}

	now := s.now()
	var from Status
	err = s.Store.InTx(ctx, func(tx Queries) error {
		set, err := tx.ByQuarter(ctx, actor.UserID, q.String())
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			if err := s.Policy.Authorize(actor, auth.ActionKPISave, string(StatusDraft)); err != nil {
				return err
			}
			out = KPISet{
				ID:          uuid.NewString(),
				EmployeeID:  actor.UserID,
				Quarter:     q.String(),
				Items:       items,
				Status:      StatusDraft,
				TotalWeight: sum(items),
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			return tx.Insert(ctx, &out)
		case err != nil:
			return err
		}

		if !set.Status.Editable() {
			return set.invalidState("update")
		}
		if err := s.Policy.Authorize(actor, auth.ActionKPISave, string(set.Status)); err != nil {
			return err
		}
		from = set.Status
		expected := set.Version
		set.Items = items
		set.TotalWeight = sum(items)
		set.Status = StatusDraft
		set.UpdatedAt = now
		if err := tx.Update(ctx, &set, expected); err != nil {
			return err
		}
		out = set
		return nil
	})
	if err != nil {
		return KPISet{}, err
	}
	s.decorate(&out)
	s.publish(ctx, actor, out, from, ActionSave, "")
	return out, nil
}

// Submit sends a draft or rejected set for approval.
func (s *Service) Submit(ctx context.Context, actor auth.UserContext, id string) (out KPISet, err error) {
	ctx, span := s.startSpan(ctx, "Submit", attribute.String("kpi.id", id))
	defer func() { endSpan(span, err) }()

	return s.transition(ctx, actor, id, ActionSubmit, func(set *KPISet, now time.Time) error {
		if !set.Status.Editable() {
			return set.invalidState("submit")
		}
		if err := s.Policy.Authorize(actor, auth.ActionKPISubmit, string(set.Status)); err != nil {
			return err
		}
		if set.EmployeeID != actor.UserID {
			return ownerOnly(actor, auth.ActionKPISubmit)
		}
		if err := validateForSubmit(set); err != nil {
			return err
		}
		set.Status = StatusPending
		set.SubmittedAt = &now
		set.RejectionReason = nil
		set.DecidedBy = ""
		set.DecisionDate = nil
		set.DecisionComments = ""
		return nil
	})
}

// ProcessApproval approves or rejects a pending set. Rejections need a
// comment of at least MinRejectionComment characters.
func (s *Service) ProcessApproval(ctx context.Context, actor auth.UserContext, id string, decision Decision, comments string) (out KPISet, err error) {
	ctx, span := s.startSpan(ctx, "ProcessApproval", attribute.String("kpi.id", id), attribute.String("kpi.decision", string(decision)))
	defer func() { endSpan(span, err) }()

	comments = strings.TrimSpace(comments)
	op := ActionApprove
	if decision == DecisionReject {
		op = ActionReject
	}
	return s.transition(ctx, actor, id, op, func(set *KPISet, now time.Time) error {
		// State first: a repeated decision on a decided set is invalid_state
		// whatever its payload.
		if set.Status != StatusPending {
			return set.invalidState(op)
		}
		if err := validateDecision(decision, comments); err != nil {
			return err
		}
		if err := s.Policy.Authorize(actor, auth.ActionKPIDecide, string(set.Status)); err != nil {
			return err
		}
		if err := s.checkDecider(actor, set); err != nil {
			return err
		}
		set.DecidedBy = actor.UserID
		set.DecisionDate = &now
		set.DecisionComments = comments
		if decision == DecisionApprove {
			set.Status = StatusApproved
			return nil
		}
		set.Status = StatusRejected
		reason := comments
		set.RejectionReason = &reason
		return nil
	})
}

func (s *Service) checkDecider(actor auth.UserContext, set *KPISet) error {
	if set.EmployeeID == actor.UserID {
		return &apperr.AuthorizationError{Role: string(actor.Role), Action: string(auth.ActionKPIDecide), Reason: "cannot decide on your own KPI set"}
	}
	if actor.Role != auth.RoleSupervisor {
		return nil
	}
	if s.Directory == nil || !s.Directory.IsSupervisorOf(actor.UserID, set.EmployeeID) {
		return &apperr.AuthorizationError{Role: string(actor.Role), Action: string(auth.ActionKPIDecide), Reason: "not the employee's supervisor"}
	}
	return nil
}

// Delete removes a draft set owned by actor.
func (s *Service) Delete(ctx context.Context, actor auth.UserContext, id string) (err error) {
	ctx, span := s.startSpan(ctx, "Delete", attribute.String("kpi.id", id))
	defer func() { endSpan(span, err) }()

	var deleted KPISet
	err = s.Store.InTx(ctx, func(tx Queries) error {
		set, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if set.Status != StatusDraft {
			return set.invalidState("delete")
		}
		if err := s.Policy.Authorize(actor, auth.ActionKPIDelete, string(set.Status)); err != nil {
			return err
		}
		if set.EmployeeID != actor.UserID {
			return ownerOnly(actor, auth.ActionKPIDelete)
		}
		deleted = set
		return tx.Delete(ctx, id, set.Version)
	})
	if err != nil {
		return err
	}
	deleted.UpdatedAt = s.now()
	from := deleted.Status
	deleted.Status = ""
	s.publish(ctx, actor, deleted, from, ActionDelete, "")
	return nil
}

func (s *Service) Get(ctx context.Context, actor auth.UserContext, id string) (KPISet, error) {
	if err := s.Policy.Authorize(actor, auth.ActionKPIRead, ""); err != nil {
		return KPISet{}, err
	}
	set, err := s.Store.Get(ctx, id)
	if err != nil {
		return KPISet{}, err
	}
	if !s.canView(actor, set) {
		return KPISet{}, &apperr.AuthorizationError{Role: string(actor.Role), Action: string(auth.ActionKPIRead), Reason: "not allowed to view this KPI set"}
	}
	s.decorate(&set)
	return set, nil
}

// ApprovedForLinking returns the approved set of employeeID for quarter.
// Sets in any other status are reported as missing.
func (s *Service) ApprovedForLinking(ctx context.Context, actor auth.UserContext, employeeID, quarter string) (KPISet, error) {
	q, err := ParseQuarter(quarter)
	if err != nil {
		return KPISet{}, apperr.Validation("quarter", err.Error())
	}
	if employeeID == "" {
		employeeID = actor.UserID
	}
	set, err := s.Store.ByQuarter(ctx, employeeID, q.String())
	if err != nil {
		return KPISet{}, err
	}
	if set.Status != StatusApproved {
		return KPISet{}, apperr.NotFound("approved kpi_set", employeeID+"/"+q.String())
	}
	if !s.canView(actor, set) && !s.Policy.Allowed(actor.Role, auth.ActionKPILink, string(StatusApproved)) {
		return KPISet{}, &apperr.AuthorizationError{Role: string(actor.Role), Action: string(auth.ActionKPILink), Reason: "not allowed to view this KPI set"}
	}
	s.decorate(&set)
	return set, nil
}

// List returns one page of sets visible to actor.
func (s *Service) List(ctx context.Context, actor auth.UserContext, filter Filter) (Page, error) {
	if err := s.Policy.Authorize(actor, auth.ActionKPIRead, ""); err != nil {
		return Page{}, err
	}
	if filter.Quarter != "" {
		q, err := ParseQuarter(filter.Quarter)
		if err != nil {
			return Page{}, apperr.Validation("quarter", err.Error())
		}
		filter.Quarter = q.String()
	}
	for _, st := range filter.Statuses {
		if !st.Valid() {
			return Page{}, apperr.Validation("status", "unknown status "+string(st))
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	page, err := s.Store.List(ctx, filter, s.scopeFor(actor))
	if err != nil {
		return Page{}, err
	}
	for i := range page.Items {
		s.decorate(&page.Items[i])
	}
	return page, nil
}

func (s *Service) scopeFor(actor auth.UserContext) Scope {
	if s.Policy.Allowed(actor.Role, auth.ActionKPIReadAll, "") {
		return Scope{}
	}
	ids := []string{actor.UserID}
	if actor.Role == auth.RoleSupervisor && s.Directory != nil {
		for _, emp := range s.Directory.Reports(actor.UserID) {
			ids = append(ids, emp.ID)
		}
	}
	return Scope{EmployeeIDs: ids}
}

func (s *Service) canView(actor auth.UserContext, set KPISet) bool {
	if set.EmployeeID == actor.UserID {
		return true
	}
	if s.Policy.Allowed(actor.Role, auth.ActionKPIReadAll, "") {
		return true
	}
	return actor.Role == auth.RoleSupervisor && s.Directory != nil && s.Directory.IsSupervisorOf(actor.UserID, set.EmployeeID)
}

// Link attaches a task or milestone to the KPIs of an approved set.
func (s *Service) Link(ctx context.Context, actor auth.UserContext, setID string, in LinkInput) (out Link, err error) {
	ctx, span := s.startSpan(ctx, "Link", attribute.String("kpi.id", setID), attribute.String("kpi.target_type", string(in.TargetType)))
	defer func() { endSpan(span, err) }()

	set, err := s.Store.Get(ctx, setID)
	if err != nil {
		return Link{}, err
	}
	if set.Status != StatusApproved {
		return Link{}, set.invalidState("link")
	}
	if err := s.Policy.Authorize(actor, auth.ActionKPILink, string(set.Status)); err != nil {
		return Link{}, err
	}
	out = Link{
		ID:            uuid.NewString(),
		KPISetID:      set.ID,
		TargetType:    in.TargetType,
		TargetID:      strings.TrimSpace(in.TargetID),
		Title:         strings.TrimSpace(in.Title),
		Contributions: append([]Contribution(nil), in.Contributions...),
		CreatedBy:     actor.UserID,
		CreatedAt:     s.now(),
	}
	if err := validateLink(out, set); err != nil {
		return Link{}, err
	}
	if err := s.Store.InsertLink(ctx, out); err != nil {
		return Link{}, err
	}
	set.UpdatedAt = out.CreatedAt
	s.publish(ctx, actor, set, set.Status, ActionLink, out.TargetID)
	return out, nil
}

func (s *Service) ListLinks(ctx context.Context, actor auth.UserContext, setID string) ([]Link, error) {
	set, err := s.Store.Get(ctx, setID)
	if err != nil {
		return nil, err
	}
	if !s.canView(actor, set) && !s.Policy.Allowed(actor.Role, auth.ActionKPILink, "") {
		return nil, &apperr.AuthorizationError{Role: string(actor.Role), Action: string(auth.ActionKPIRead), Reason: "not allowed to view this KPI set"}
	}
	return s.Store.Links(ctx, setID)
}

// transition loads a set, applies fn and writes it back under the version
// check in one transaction, then publishes the change.
func (s *Service) transition(ctx context.Context, actor auth.UserContext, id, op string, fn func(set *KPISet, now time.Time) error) (KPISet, error) {
	now := s.now()
	var out KPISet
	var from Status
	err := s.Store.InTx(ctx, func(tx Queries) error {
		set, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		from = set.Status
		expected := set.Version
		if err := fn(&set, now); err != nil {
			return err
		}
		set.UpdatedAt = now
		if err := tx.Update(ctx, &set, expected); err != nil {
			return err
		}
		out = set
		return nil
	})
	if err != nil {
		return KPISet{}, err
	}
	s.decorate(&out)
	s.publish(ctx, actor, out, from, op, out.DecisionComments)
	return out, nil
}

func (s *Service) decorate(set *KPISet) {
	if s.Directory == nil || set.EmployeeName != "" {
		return
	}
	if emp, ok := s.Directory.Employee(set.EmployeeID); ok {
		set.EmployeeName = emp.Name
	}
}

func (s *Service) publish(ctx context.Context, actor auth.UserContext, set KPISet, from Status, op, comment string) {
	if s.Events == nil {
		return
	}
	evt := events.Event{
		Type:       "kpi." + op,
		Entity:     events.EntityKPISet,
		EntityID:   set.ID,
		EmployeeID: set.EmployeeID,
		ActorID:    actor.UserID,
		ActorRole:  string(actor.Role),
		From:       string(from),
		To:         string(set.Status),
		Comment:    comment,
		OccurredAt: set.UpdatedAt,
	}
	if err := s.Events.Publish(ctx, evt); err != nil {
		requestctx.Logger(ctx).Warn("kpi event publish failed", zap.String("id", set.ID), zap.String("type", evt.Type), zap.Error(err))
	}
}

func ownerOnly(actor auth.UserContext, action auth.Action) error {
	return &apperr.AuthorizationError{Role: string(actor.Role), Action: string(action), Reason: "only the owner may do this"}
}

func sum(items []Item) int {
	total := 0
	for _, item := range items {
		total += item.Weight
	}
	return total
}
