package leave

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"hrflow/internal/domain/apperr"
	"hrflow/internal/domain/auth"
)

// Cancel withdraws a request. The requester may cancel a draft or a pending
// request; HR may cancel an approved one, which refunds the deducted days.
func (s *Service) Cancel(ctx context.Context, actor auth.UserContext, id, reason string) (out LeaveRequest, err error) {
	ctx, span := s.startSpan(ctx, "Cancel", attribute.String("leave.id", id))
	defer func() { endSpan(span, err) }()

	reason = strings.TrimSpace(reason)
	return s.transition(ctx, actor, id, ActionCancel, func(q Queries, req *LeaveRequest, now time.Time) error {
		switch {
		case req.Status == StatusDraft || req.Status.IsPending():
			if req.EmployeeID != actor.UserID {
				return ownerOnly(actor, auth.ActionLeaveCancel)
			}
		case req.Status == StatusApproved:
			if actor.Role != auth.RoleHR {
				return &apperr.AuthorizationError{Role: string(actor.Role), Action: string(auth.ActionLeaveCancel), Reason: "only HR may cancel approved leave"}
			}
			if reason == "" {
				return apperr.Validation("reason", "is required to cancel approved leave")
			}
		default:
			return req.invalidState("cancel")
		}
		if err := s.Policy.Authorize(actor, auth.ActionLeaveCancel, string(req.Status)); err != nil {
			return err
		}

		if req.Status == StatusApproved {
			if err := s.refund(ctx, q, req, actor.UserID, "leave cancelled: "+reason, now); err != nil {
				return err
			}
		}
		level := req.ActiveLevel
		for i := range req.ApprovalChain {
			step := &req.ApprovalChain[i]
			if step.Status == StepWaiting || step.Status == StepPending {
				at := now
				step.Status = StepBypassed
				step.ActionDate = &at
				step.ActedBy = actor.UserID
				step.Comments = "request cancelled"
			}
		}
		req.Status = StatusCancelled
		req.ActiveLevel = 0
		req.CancelReason = reason
		req.appendDecision(DecisionRecord{Level: level, Role: actor.Role, ActorID: actor.UserID, ActorName: actor.Name, Action: ActionCancel, Comments: reason, CreatedAt: now})
		return nil
	})
}

// Start marks approved leave as taken once its first day has come.
func (s *Service) Start(ctx context.Context, actor auth.UserContext, id string) (out LeaveRequest, err error) {
	ctx, span := s.startSpan(ctx, "Start", attribute.String("leave.id", id))
	defer func() { endSpan(span, err) }()

	return s.transition(ctx, actor, id, ActionStart, func(q Queries, req *LeaveRequest, now time.Time) error {
		if req.Status != StatusApproved {
			return req.invalidState("start")
		}
		if err := s.Policy.Authorize(actor, auth.ActionLeaveLifecycle, string(req.Status)); err != nil {
			return err
		}
		if DateOnly(now).Before(req.StartDate) {
			return &apperr.PolicyError{Rule: "leave_start", Reason: "leave cannot start before " + formatDate(req.StartDate)}
		}
		req.Status = StatusInProgress
		req.appendDecision(DecisionRecord{Role: actor.Role, ActorID: actor.UserID, ActorName: actor.Name, Action: ActionStart, CreatedAt: now})
		return nil
	})
}

func (s *Service) Complete(ctx context.Context, actor auth.UserContext, id string) (out LeaveRequest, err error) {
	ctx, span := s.startSpan(ctx, "Complete", attribute.String("leave.id", id))
	defer func() { endSpan(span, err) }()

	return s.transition(ctx, actor, id, ActionComplete, func(q Queries, req *LeaveRequest, now time.Time) error {
		if req.Status != StatusInProgress {
			return req.invalidState("complete")
		}
		if err := s.Policy.Authorize(actor, auth.ActionLeaveLifecycle, string(req.Status)); err != nil {
			return err
		}
		req.Status = StatusCompleted
		req.appendDecision(DecisionRecord{Role: actor.Role, ActorID: actor.UserID, ActorName: actor.Name, Action: ActionComplete, CreatedAt: now})
		return nil
	})
}
