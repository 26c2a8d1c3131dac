package leave

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"hrflow/internal/domain/apperr"
	"hrflow/internal/domain/auth"
	"hrflow/internal/domain/org"
	"hrflow/internal/domain/policy"
	"hrflow/internal/platform/events"
	"hrflow/internal/requestctx"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
	MaxBulkSize      = 100

	minOverrideReason   = 20
	minEscalationReason = 10
)

// Directory is the organization data the leave engine reads.
type Directory interface {
	Employee(id string) (org.Employee, bool)
	IsSupervisorOf(supervisorID, employeeID string) bool
	HeadOfBusiness() (org.Employee, bool)
}

// BlobStore keeps uploaded attachment bytes outside the database.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Delete(ctx context.Context, ref string) error
}

type Service struct {
	Store          StoreAPI
	Resolver       *policy.Resolver
	Directory      Directory
	Policy         *auth.Policy
	Blobs          BlobStore
	Events         events.Publisher
	StuckThreshold time.Duration
	Now            func() time.Time

	tracer trace.Tracer
}

func NewService(store StoreAPI, resolver *policy.Resolver, directory Directory) *Service {
	return &Service{
		Store:          store,
		Resolver:       resolver,
		Directory:      directory,
		Policy:         auth.DefaultPolicy(),
		StuckThreshold: policy.DefaultStuckThreshold,
		tracer:         otel.Tracer("hrflow/internal/domain/leave"),
	}
}

type SubmitInput struct {
	LeaveType          string
	StartDate          time.Time
	EndDate            time.Time
	IsPartialDay       bool
	TotalDays          *decimal.Decimal
	Urgency            Urgency
	Priority           Priority
	Reason             string
	MedicalInfo        *MedicalInfo
	EmergencyContact   *EmergencyContact
	CertificatePending bool
	Uploads            []Upload
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) threshold() time.Duration {
	if s.StuckThreshold <= 0 {
		return policy.DefaultStuckThreshold
	}
	return s.StuckThreshold
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if s.tracer == nil {
		s.tracer = otel.Tracer("hrflow/internal/domain/leave")
	}
	return s.tracer.Start(ctx, "leave."+name, trace.WithAttributes(attrs...))
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

// Submit validates a new request and sends it into its approval chain.
func (s *Service) Submit(ctx context.Context, actor auth.UserContext, in SubmitInput) (out LeaveRequest, err error) {
	ctx, span := s.startSpan(ctx, "Submit", attribute.String("leave.type", in.LeaveType))
	defer func() { endSpan(span, err) }()

	if err := s.Policy.Authorize(actor, auth.ActionLeaveCreate, string(StatusDraft)); err != nil {
		return LeaveRequest{}, err
	}
	now := s.now()
	req := s.newRequest(actor, now)
	applyInput(&req, in)
	if err := validateAttachmentSet(req.Attachments, in.Uploads); err != nil {
		return LeaveRequest{}, err
	}

	err = s.Store.InTx(ctx, func(q Queries) error {
		if err := s.prepareSubmission(ctx, q, &req, in.Uploads, in.CertificatePending, now); err != nil {
			return err
		}
		if err := s.storeUploads(ctx, &req, in.Uploads, now); err != nil {
			return err
		}
		req.Evidence = evidenceFor(req.Attachments, in.CertificatePending)
		return q.Insert(ctx, &req)
	})
	if err != nil {
		s.discardUploads(ctx, req.Attachments)
		return LeaveRequest{}, err
	}
	s.publish(ctx, actor, req, StatusDraft, ActionSubmit, "", nil)
	return req, nil
}

// SaveDraft stores an incomplete request without routing it.
func (s *Service) SaveDraft(ctx context.Context, actor auth.UserContext, in SubmitInput) (out LeaveRequest, err error) {
	ctx, span := s.startSpan(ctx, "SaveDraft")
	defer func() { endSpan(span, err) }()

	if err := s.Policy.Authorize(actor, auth.ActionLeaveCreate, string(StatusDraft)); err != nil {
		return LeaveRequest{}, err
	}
	now := s.now()
	req := s.newRequest(actor, now)
	applyInput(&req, in)
	if err := validateDraft(&req); err != nil {
		return LeaveRequest{}, err
	}
	if err := validateAttachmentSet(req.Attachments, in.Uploads); err != nil {
		return LeaveRequest{}, err
	}
	if err := s.storeUploads(ctx, &req, in.Uploads, now); err != nil {
		s.discardUploads(ctx, req.Attachments)
		return LeaveRequest{}, err
	}
	req.Evidence = evidenceFor(req.Attachments, in.CertificatePending)
	if err := s.Store.Insert(ctx, &req); err != nil {
		s.discardUploads(ctx, req.Attachments)
		return LeaveRequest{}, err
	}
	return req, nil
}

// UpdateDraft replaces the editable fields of a draft. New uploads are appended.
func (s *Service) UpdateDraft(ctx context.Context, actor auth.UserContext, id string, in SubmitInput) (out LeaveRequest, err error) {
	ctx, span := s.startSpan(ctx, "UpdateDraft", attribute.String("leave.id", id))
	defer func() { endSpan(span, err) }()

	var stored []Attachment
	out, err = s.transition(ctx, actor, id, "", func(q Queries, req *LeaveRequest, now time.Time) error {
		if req.Status != StatusDraft {
			return req.invalidState("update")
		}
		if req.EmployeeID != actor.UserID {
			return ownerOnly(actor, auth.ActionLeaveCreate)
		}
		applyInput(req, in)
		if err := validateDraft(req); err != nil {
			return err
		}
		if err := validateAttachmentSet(req.Attachments, in.Uploads); err != nil {
			return err
		}
		before := len(req.Attachments)
		err := s.storeUploads(ctx, req, in.Uploads, now)
		stored = req.Attachments[before:]
		if err != nil {
			return err
		}
		req.Evidence = evidenceFor(req.Attachments, in.CertificatePending)
		return nil
	})
	if err != nil {
		s.discardUploads(ctx, stored)
	}
	return out, err
}

// SubmitDraft runs the full submission checks on a stored draft.
func (s *Service) SubmitDraft(ctx context.Context, actor auth.UserContext, id string) (out LeaveRequest, err error) {
	ctx, span := s.startSpan(ctx, "SubmitDraft", attribute.String("leave.id", id))
	defer func() { endSpan(span, err) }()

	return s.transition(ctx, actor, id, ActionSubmit, func(q Queries, req *LeaveRequest, now time.Time) error {
		if req.Status != StatusDraft {
			return req.invalidState("submit")
		}
		if req.EmployeeID != actor.UserID {
			return ownerOnly(actor, auth.ActionLeaveCreate)
		}
		pending := req.Evidence.Kind == EvidencePending
		return s.prepareSubmission(ctx, q, req, nil, pending, now)
	})
}

func (s *Service) Get(ctx context.Context, actor auth.UserContext, id string) (LeaveRequest, error) {
	req, err := s.Store.Get(ctx, id)
	if err != nil {
		return LeaveRequest{}, err
	}
	if !s.canView(actor, req) {
		return LeaveRequest{}, &apperr.AuthorizationError{Role: string(actor.Role), Action: string(auth.ActionLeaveRead), Reason: "not a participant of this request"}
	}
	return req, nil
}

// List returns one page of requests visible to actor.
func (s *Service) List(ctx context.Context, actor auth.UserContext, filter Filter) (Page, error) {
	if err := s.Policy.Authorize(actor, auth.ActionLeaveRead, ""); err != nil {
		return Page{}, err
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
	return s.Store.List(ctx, filter, s.scopeFor(actor))
}

func (s *Service) scopeFor(actor auth.UserContext) Scope {
	switch {
	case s.Policy.Allowed(actor.Role, auth.ActionLeaveReadAll, ""):
		return Scope{}
	case actor.Role == auth.RoleSupervisor:
		return Scope{OwnerID: actor.UserID, SupervisorID: actor.UserID}
	default:
		return Scope{OwnerID: actor.UserID}
	}
}

func (s *Service) canView(actor auth.UserContext, req LeaveRequest) bool {
	if req.EmployeeID == actor.UserID {
		return true
	}
	if s.Policy.Allowed(actor.Role, auth.ActionLeaveReadAll, "") {
		return true
	}
	if actor.Role != auth.RoleSupervisor {
		return false
	}
	if req.SupervisorID() == actor.UserID {
		return true
	}
	return s.Directory != nil && s.Directory.IsSupervisorOf(actor.UserID, req.EmployeeID)
}

// OpenAttachment streams a stored attachment of a request the actor can see.
func (s *Service) OpenAttachment(ctx context.Context, actor auth.UserContext, id, attachmentID string) (Attachment, io.ReadCloser, error) {
	req, err := s.Get(ctx, actor, id)
	if err != nil {
		return Attachment{}, nil, err
	}
	for _, att := range req.Attachments {
		if att.ID != attachmentID {
			continue
		}
		if s.Blobs == nil {
			return Attachment{}, nil, apperr.NotFound("attachment", attachmentID)
		}
		rc, err := s.Blobs.Open(ctx, att.FileRef)
		if err != nil {
			return Attachment{}, nil, err
		}
		return att, rc, nil
	}
	return Attachment{}, nil, apperr.NotFound("attachment", attachmentID)
}

func (s *Service) newRequest(actor auth.UserContext, now time.Time) LeaveRequest {
	req := LeaveRequest{
		ID:           uuid.NewString(),
		EmployeeID:   actor.UserID,
		EmployeeName: actor.Name,
		Status:       StatusDraft,
		Evidence:     NoEvidence(),
		Decisions:    []DecisionRecord{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if s.Directory != nil {
		if emp, ok := s.Directory.Employee(actor.UserID); ok {
			req.EmployeeName = emp.Name
			req.Department = emp.Department
		}
	}
	return req
}

func applyInput(req *LeaveRequest, in SubmitInput) {
	req.LeaveType = strings.TrimSpace(in.LeaveType)
	req.Category, _ = CategoryOf(req.LeaveType)
	req.StartDate = DateOnly(in.StartDate)
	req.EndDate = DateOnly(in.EndDate)
	if in.StartDate.IsZero() {
		req.StartDate = time.Time{}
	}
	if in.EndDate.IsZero() {
		req.EndDate = time.Time{}
	}
	req.IsPartialDay = in.IsPartialDay
	req.Urgency = in.Urgency
	if req.Urgency == "" {
		req.Urgency = UrgencyMedium
	}
	req.Priority = in.Priority
	if req.Priority == "" {
		req.Priority = PriorityFor(req.Urgency)
	}
	req.Reason = strings.TrimSpace(in.Reason)
	req.MedicalInfo = in.MedicalInfo
	if req.MedicalInfo.Empty() {
		req.MedicalInfo = nil
	}
	req.EmergencyContact = in.EmergencyContact
	req.TotalDays = decimal.Zero
	if !req.StartDate.IsZero() && !req.EndDate.IsZero() {
		if days, err := CalculateTotalDays(req.StartDate, req.EndDate, req.IsPartialDay); err == nil {
			req.TotalDays = days
		}
	}
	req.claimedDays = in.TotalDays
	req.BalanceImpact = nil
}

// prepareSubmission runs the ordered submission checks and routes the request.
func (s *Service) prepareSubmission(ctx context.Context, q Queries, req *LeaveRequest, uploads []Upload, certificatePending bool, now time.Time) error {
	if err := validateSubmission(req); err != nil {
		return err
	}

	hasCertificate := hasCertificateAttachment(req.Attachments, uploads)
	if MedicalCertificateRequirement(req.LeaveType, req.TotalDays) == CertificateRequired && !hasCertificate {
		return apperr.Validation("medicalCertificate", fmt.Sprintf("a medical certificate is required for %s of %s days", req.LeaveType, req.TotalDays))
	}
	if err := validateAttachmentSet(req.Attachments, uploads); err != nil {
		return err
	}

	meta := CategoryInfo(req.Category)
	req.BalanceImpact = &BalanceImpact{Category: req.Category, Days: req.TotalDays, Tracked: meta.TracksBalance}
	if meta.TracksBalance {
		bal, err := q.Balance(ctx, req.EmployeeID, req.Category)
		if err != nil {
			return err
		}
		if bal.RemainingDays.LessThan(req.TotalDays) {
			return apperr.NewInsufficientBalance(string(req.Category), bal.RemainingDays, req.TotalDays)
		}
	}

	if err := s.snapshotChain(req, now); err != nil {
		return err
	}
	if !hasCertificate && certificatePending {
		req.Evidence = PendingEvidence()
	}
	req.SubmittedAt = &now
	req.appendDecision(DecisionRecord{Role: auth.RoleEmployee, ActorID: req.EmployeeID, ActorName: req.EmployeeName, Action: ActionSubmit, CreatedAt: now})
	return nil
}

func (s *Service) snapshotChain(req *LeaveRequest, now time.Time) error {
	if s.Resolver == nil {
		return errors.New("approval chain resolver not configured")
	}
	entries, err := s.Resolver.Resolve(policy.ChainInput{
		EmployeeID:   req.EmployeeID,
		EmployeeName: req.EmployeeName,
		Department:   req.Department,
		Category:     string(req.Category),
		LeaveType:    req.LeaveType,
		TotalDays:    req.TotalDays,
		Urgency:      string(req.Urgency),
	})
	if err != nil {
		return fmt.Errorf("resolve approval chain: %w", err)
	}
	if len(entries) == 0 {
		return errors.New("approval chain is empty")
	}
	req.ApprovalChain = make([]ChainStep, 0, len(entries))
	for _, e := range entries {
		req.ApprovalChain = append(req.ApprovalChain, ChainStep{
			Level:        e.Level,
			ApproverRole: e.Role,
			ApproverID:   e.ApproverID,
			ApproverName: e.ApproverName,
			Department:   e.Department,
			Status:       StepWaiting,
			Rule:         e.Rule,
		})
	}
	return req.activate(0, now)
}

func (s *Service) storeUploads(ctx context.Context, req *LeaveRequest, uploads []Upload, now time.Time) error {
	if len(uploads) == 0 {
		return nil
	}
	if s.Blobs == nil {
		return errors.New("attachment storage not configured")
	}
	for _, up := range uploads {
		attID := uuid.NewString()
		key := fmt.Sprintf("leave/%s/%s-%s", req.ID, attID, up.FileName)
		ref, err := s.Blobs.Put(ctx, key, up.Data)
		if err != nil {
			return fmt.Errorf("store attachment: %w", err)
		}
		req.Attachments = append(req.Attachments, Attachment{
			ID:          attID,
			Kind:        up.Kind,
			FileName:    up.FileName,
			ContentType: up.ContentType,
			Size:        int64(len(up.Data)),
			FileRef:     ref,
			UploadedAt:  now,
		})
	}
	return nil
}

func (s *Service) discardUploads(ctx context.Context, atts []Attachment) {
	if s.Blobs == nil {
		return
	}
	for _, att := range atts {
		if err := s.Blobs.Delete(ctx, att.FileRef); err != nil {
			requestctx.Logger(ctx).Warn("discard attachment failed", zap.String("ref", att.FileRef), zap.Error(err))
		}
	}
}

// transition loads a request, applies fn and writes it back under the
// version check, all in one transaction. op names the published event; an
// empty op publishes nothing.
func (s *Service) transition(ctx context.Context, actor auth.UserContext, id, op string, fn func(q Queries, req *LeaveRequest, now time.Time) error) (LeaveRequest, error) {
	return s.transitionWith(ctx, actor, id, op, fn, nil)
}

// transitionWith is transition with a hook to annotate the published event.
func (s *Service) transitionWith(ctx context.Context, actor auth.UserContext, id, op string, fn func(q Queries, req *LeaveRequest, now time.Time) error, annotate func(evt *events.Event)) (LeaveRequest, error) {
	now := s.now()
	var out LeaveRequest
	var from Status
	comment := ""
	err := s.Store.InTx(ctx, func(q Queries) error {
		req, err := q.Get(ctx, id)
		if err != nil {
			return err
		}
		from = req.Status
		expected := req.Version
		decisions := len(req.Decisions)
		if err := fn(q, &req, now); err != nil {
			return err
		}
		if len(req.Decisions) > decisions {
			comment = req.Decisions[len(req.Decisions)-1].Comments
		}
		req.UpdatedAt = now
		if err := q.Update(ctx, &req, expected); err != nil {
			return err
		}
		out = req
		return nil
	})
	if err != nil {
		return LeaveRequest{}, err
	}
	if op != "" {
		s.publish(ctx, actor, out, from, op, comment, annotate)
	}
	return out, nil
}

func (s *Service) publish(ctx context.Context, actor auth.UserContext, req LeaveRequest, from Status, op, comment string, annotate func(evt *events.Event)) {
	if s.Events == nil {
		return
	}
	evt := events.Event{
		Type:       "leave." + op,
		Entity:     events.EntityLeaveRequest,
		EntityID:   req.ID,
		EmployeeID: req.EmployeeID,
		ActorID:    actor.UserID,
		ActorRole:  string(actor.Role),
		From:       string(from),
		To:         string(req.Status),
		Comment:    comment,
		OccurredAt: req.UpdatedAt,
	}
	if annotate != nil {
		annotate(&evt)
	}
	if err := s.Events.Publish(ctx, evt); err != nil {
		requestctx.Logger(ctx).Warn("leave event publish failed", zap.String("id", req.ID), zap.String("type", evt.Type), zap.Error(err))
	}
}

func ownerOnly(actor auth.UserContext, action auth.Action) error {
	return &apperr.AuthorizationError{Role: string(actor.Role), Action: string(action), Reason: "only the requester may do this"}
}

func (r *LeaveRequest) appendDecision(rec DecisionRecord) {
	r.Decisions = append(r.Decisions, rec)
}

// activate makes the step at idx the active one and derives the status from its role.
func (r *LeaveRequest) activate(idx int, now time.Time) error {
	if idx < 0 || idx >= len(r.ApprovalChain) {
		return fmt.Errorf("no approval step at index %d", idx)
	}
	step := &r.ApprovalChain[idx]
	status, ok := PendingStatusFor(step.ApproverRole)
	if !ok {
		return fmt.Errorf("role %s cannot hold an approval step", step.ApproverRole)
	}
	started := now
	step.Status = StepPending
	step.StartedAt = &started
	r.ActiveLevel = step.Level
	r.Status = status
	return nil
}

func (r *LeaveRequest) activeIndex() int {
	for i := range r.ApprovalChain {
		if r.ApprovalChain[i].Level == r.ActiveLevel {
			return i
		}
	}
	return -1
}

// nextWaiting finds the first waiting step after the active one.
func (r *LeaveRequest) nextWaiting() int {
	for i := r.activeIndex() + 1; i < len(r.ApprovalChain); i++ {
		if r.ApprovalChain[i].Status == StepWaiting {
			return i
		}
	}
	return -1
}

func (r *LeaveRequest) bypassOpenSteps(now time.Time, actorID, comment string) []ChainStep {
	var bypassed []ChainStep
	for i := range r.ApprovalChain {
		step := &r.ApprovalChain[i]
		if step.Status != StepWaiting && step.Status != StepPending {
			continue
		}
		at := now
		step.Status = StepBypassed
		step.ActionDate = &at
		step.ActedBy = actorID
		step.Comments = comment
		bypassed = append(bypassed, *step)
	}
	return bypassed
}

// BypassedSteps lists the steps an emergency path skipped.
func (r *LeaveRequest) BypassedSteps() []ChainStep {
	var out []ChainStep
	for _, step := range r.ApprovalChain {
		if step.Status == StepBypassed {
			out = append(out, step)
		}
	}
	return out
}

func hasCertificateAttachment(existing []Attachment, uploads []Upload) bool {
	for _, att := range existing {
		if att.Kind == policy.AttachmentMedicalCertificate {
			return true
		}
	}
	for _, up := range uploads {
		if up.Kind == policy.AttachmentMedicalCertificate {
			return true
		}
	}
	return false
}

func evidenceFor(atts []Attachment, pending bool) Evidence {
	for _, att := range atts {
		if att.Kind == policy.AttachmentMedicalCertificate {
			return CertificateEvidence(att.FileRef)
		}
	}
	if pending {
		return PendingEvidence()
	}
	return NoEvidence()
}

func validateAttachmentSet(existing []Attachment, uploads []Upload) error {
	metas := make([]policy.AttachmentMeta, 0, len(existing)+len(uploads))
	for _, att := range existing {
		metas = append(metas, policy.AttachmentMeta{Kind: att.Kind, FileName: att.FileName, ContentType: att.ContentType, Size: att.Size})
	}
	for _, up := range uploads {
		metas = append(metas, up.Meta())
	}
	return policy.ValidateAttachments(metas)
}
