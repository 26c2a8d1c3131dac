package leave

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"hrflow/internal/domain/apperr"
	"hrflow/internal/domain/auth"
	"hrflow/internal/platform/events"
)

// EmergencyOverride approves a pending request at once and bypasses every
// open step. With notifyBypassed the holders of those steps are told.
func (s *Service) EmergencyOverride(ctx context.Context, actor auth.UserContext, id, reason string, notifyBypassed bool) (out LeaveRequest, err error) {
	ctx, span := s.startSpan(ctx, "EmergencyOverride", attribute.String("leave.id", id))
	defer func() { endSpan(span, err) }()

	reason = strings.TrimSpace(reason)
	if len([]rune(reason)) < minOverrideReason {
		return LeaveRequest{}, apperr.Validation("reason", fmt.Sprintf("must be at least %d characters", minOverrideReason))
	}
	var bypassed []ChainStep
	return s.transitionWith(ctx, actor, id, ActionOverride, func(q Queries, req *LeaveRequest, now time.Time) error {
		if err := s.hrAction(actor, auth.ActionLeaveEmergencyOverride, req); err != nil {
			return err
		}
		if !IsEligibleForEmergencyOverride(req.Urgency, req.Category) {
			return &apperr.PolicyError{Rule: "emergency_override", Reason: fmt.Sprintf("urgency %s and category %s do not qualify", req.Urgency, req.Category)}
		}
		level := req.ActiveLevel
		bypassed = req.bypassOpenSteps(now, actor.UserID, "bypassed by emergency override")
		req.appendDecision(DecisionRecord{Level: level, Role: actor.Role, ActorID: actor.UserID, ActorName: actor.Name, Action: ActionOverride, Comments: reason, CreatedAt: now})
		return s.approve(ctx, q, req, actor.UserID, now)
	}, func(evt *events.Event) {
		if !notifyBypassed {
			return
		}
		for _, step := range bypassed {
			evt.Bypassed = append(evt.Bypassed, events.Approver{Role: string(step.ApproverRole), ID: step.ApproverID})
		}
	})
}

// DirectApproval approves a short, low-risk request without the remaining
// chain. skipNotifications keeps the transition out of everyone's inbox.
func (s *Service) DirectApproval(ctx context.Context, actor auth.UserContext, id, reason string, skipNotifications bool) (out LeaveRequest, err error) {
	ctx, span := s.startSpan(ctx, "DirectApproval", attribute.String("leave.id", id))
	defer func() { endSpan(span, err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return LeaveRequest{}, apperr.Validation("reason", "is required")
	}
	return s.transitionWith(ctx, actor, id, ActionDirectApproval, func(q Queries, req *LeaveRequest, now time.Time) error {
		if err := s.hrAction(actor, auth.ActionLeaveDirectApprove, req); err != nil {
			return err
		}
		if !IsEligibleForDirectApproval(req.TotalDays, req.Category, req.Evidence.CertificateProvided()) {
			return &apperr.PolicyError{Rule: "direct_approval", Reason: fmt.Sprintf("%s days of %s leave do not qualify", req.TotalDays, req.Category)}
		}
		level := req.ActiveLevel
		req.bypassOpenSteps(now, actor.UserID, "bypassed by direct approval")
		req.appendDecision(DecisionRecord{Level: level, Role: actor.Role, ActorID: actor.UserID, ActorName: actor.Name, Action: ActionDirectApproval, Comments: reason, CreatedAt: now})
		return s.approve(ctx, q, req, actor.UserID, now)
	}, func(evt *events.Event) {
		evt.Silent = skipNotifications
	})
}

// EscalateStuckRequest hands the active step to a different approver. The
// request stays in the pending family; its status follows the new step.
func (s *Service) EscalateStuckRequest(ctx context.Context, actor auth.UserContext, id, reason string, target EscalationTarget) (out LeaveRequest, err error) {
	ctx, span := s.startSpan(ctx, "EscalateStuckRequest", attribute.String("leave.id", id), attribute.String("escalate_to", string(target)))
	defer func() { endSpan(span, err) }()

	verr := &apperr.ValidationError{}
	reason = strings.TrimSpace(reason)
	if len([]rune(reason)) < minEscalationReason {
		verr.Add("reason", fmt.Sprintf("must be at least %d characters", minEscalationReason))
	}
	if target != EscalateNextLevel && target != EscalateAdmin {
		verr.Add("escalateTo", "must be next_level or admin")
	}
	if err := verr.OrNil(); err != nil {
		return LeaveRequest{}, err
	}

	return s.transition(ctx, actor, id, ActionEscalate, func(q Queries, req *LeaveRequest, now time.Time) error {
		if err := s.hrAction(actor, auth.ActionLeaveEscalate, req); err != nil {
			return err
		}
		idx := req.activeIndex()
		if idx < 0 {
			return req.invalidState("escalate")
		}
		current := req.ApprovalChain[idx]

		nextIdx := -1
		switch target {
		case EscalateNextLevel:
			nextIdx = req.nextWaiting()
			if nextIdx < 0 && current.ApproverRole == auth.RoleAdmin {
				return &apperr.PolicyError{Rule: "escalation", Reason: "no approval level above administration"}
			}
		case EscalateAdmin:
			if current.ApproverRole == auth.RoleAdmin {
				return &apperr.PolicyError{Rule: "escalation", Reason: "request is already with administration"}
			}
			for i := idx + 1; i < len(req.ApprovalChain); i++ {
				if req.ApprovalChain[i].Status == StepWaiting && req.ApprovalChain[i].ApproverRole == auth.RoleAdmin {
					nextIdx = i
					break
				}
			}
			end := len(req.ApprovalChain)
			if nextIdx >= 0 {
				end = nextIdx
			}
			for i := idx + 1; i < end; i++ {
				step := &req.ApprovalChain[i]
				if step.Status == StepWaiting {
					at := now
					step.Status = StepBypassed
					step.ActionDate = &at
					step.ActedBy = actor.UserID
					step.Comments = "bypassed by escalation to admin"
				}
			}
		}

		at := now
		active := &req.ApprovalChain[idx]
		active.Status = StepEscalated
		active.ActionDate = &at
		active.ActedBy = actor.UserID
		active.Comments = reason

		if nextIdx < 0 {
			nextIdx = s.appendAdminStep(req)
		}
		req.appendDecision(DecisionRecord{Level: current.Level, Role: actor.Role, ActorID: actor.UserID, ActorName: actor.Name, Action: ActionEscalate, Comments: reason, Conditions: string(target), CreatedAt: now})
		return req.activate(nextIdx, now)
	})
}

func (s *Service) appendAdminStep(req *LeaveRequest) int {
	step := ChainStep{
		Level:        len(req.ApprovalChain) + 1,
		ApproverRole: auth.RoleAdmin,
		ApproverName: "Administration",
		Department:   req.Department,
		Status:       StepWaiting,
		Rule:         "escalation",
	}
	if s.Directory != nil {
		if head, ok := s.Directory.HeadOfBusiness(); ok {
			step.ApproverID, step.ApproverName = head.ID, head.Name
		}
	}
	for _, existing := range req.ApprovalChain {
		if existing.Level >= step.Level {
			step.Level = existing.Level + 1
		}
	}
	req.ApprovalChain = append(req.ApprovalChain, step)
	return len(req.ApprovalChain) - 1
}

// hrAction gates the HR escape hatches: pending request, permitted role, not the requester.
func (s *Service) hrAction(actor auth.UserContext, action auth.Action, req *LeaveRequest) error {
	if !req.Status.IsPending() {
		return req.invalidState(strings.TrimPrefix(string(action), "leave."))
	}
	if err := s.Policy.Authorize(actor, action, string(req.Status)); err != nil {
		return err
	}
	if actor.UserID == req.EmployeeID {
		return &apperr.AuthorizationError{Role: string(actor.Role), Action: string(action), Reason: "cannot act on own request"}
	}
	return nil
}

type StuckRequest struct {
	LeaveRequest
	HoursPending float64 `json:"hoursPending"`
}

// Stuck lists pending requests whose active step has waited past the threshold, longest first.
func (s *Service) Stuck(ctx context.Context, actor auth.UserContext) ([]StuckRequest, error) {
	if err := s.Policy.Authorize(actor, auth.ActionLeaveEscalate, ""); err != nil {
		return nil, err
	}
	pending, err := s.Store.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := []StuckRequest{}
	for _, req := range pending {
		if !req.IsStuck(now, s.threshold()) {
			continue
		}
		hours := 0.0
		if step := req.ActiveStep(); step != nil {
			hours = step.HoursPending(now)
		}
		out = append(out, StuckRequest{LeaveRequest: req, HoursPending: hours})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].HoursPending > out[j].HoursPending })
	return out, nil
}

func (s *Service) Eligibility(ctx context.Context, actor auth.UserContext, id string) (Eligibility, error) {
	req, err := s.Get(ctx, actor, id)
	if err != nil {
		return Eligibility{}, err
	}
	return EligibilityOf(req, s.now(), s.threshold()), nil
}
