package leave

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"hrflow/internal/domain/apperr"
	"hrflow/internal/domain/auth"
)

type DecisionInput struct {
	Decision   Decision
	Comments   string
	Conditions string
}

type HRDecisionInput struct {
	DecisionInput
	MedicalCertificateRequired      bool
	ReturnToWorkCertificateRequired bool
	ReviewNotes                     string
}

func (s *Service) SupervisorDecision(ctx context.Context, actor auth.UserContext, id string, in DecisionInput) (out LeaveRequest, err error) {
	ctx, span := s.startSpan(ctx, "SupervisorDecision", attribute.String("leave.id", id), attribute.String("decision", string(in.Decision)))
	defer func() { endSpan(span, err) }()

	return s.decide(ctx, actor, id, auth.RoleSupervisor, auth.ActionLeaveSupervisorDecide, in, func(req *LeaveRequest, d StepDecision) {
		req.SupervisorDecision = &d
	})
}

func (s *Service) HRDecision(ctx context.Context, actor auth.UserContext, id string, in HRDecisionInput) (out LeaveRequest, err error) {
	ctx, span := s.startSpan(ctx, "HRDecision", attribute.String("leave.id", id), attribute.String("decision", string(in.Decision)))
	defer func() { endSpan(span, err) }()

	return s.decide(ctx, actor, id, auth.RoleHR, auth.ActionLeaveHRDecide, in.DecisionInput, func(req *LeaveRequest, d StepDecision) {
		req.HRReview = &HRReview{
			StepDecision:                    d,
			MedicalCertificateRequired:      in.MedicalCertificateRequired,
			ReturnToWorkCertificateRequired: in.ReturnToWorkCertificateRequired,
			ReviewNotes:                     strings.TrimSpace(in.ReviewNotes),
		}
	})
}

func (s *Service) AdminDecision(ctx context.Context, actor auth.UserContext, id string, in DecisionInput) (out LeaveRequest, err error) {
	ctx, span := s.startSpan(ctx, "AdminDecision", attribute.String("leave.id", id), attribute.String("decision", string(in.Decision)))
	defer func() { endSpan(span, err) }()

	return s.decide(ctx, actor, id, auth.RoleAdmin, auth.ActionLeaveAdminDecide, in, func(req *LeaveRequest, d StepDecision) {
		req.AdminDecision = &d
	})
}

// decide records a decision on the active step held by role. Approval moves
// to the next snapshotted step or, at the end of the chain, approves the
// request and deducts the balance.
func (s *Service) decide(ctx context.Context, actor auth.UserContext, id string, role auth.Role, action auth.Action, in DecisionInput, record func(req *LeaveRequest, d StepDecision)) (LeaveRequest, error) {
	expected, _ := PendingStatusFor(role)
	op := ActionApprove
	if in.Decision == DecisionReject {
		op = ActionReject
	}

	return s.transition(ctx, actor, id, op, func(q Queries, req *LeaveRequest, now time.Time) error {
		if req.Status != expected {
			return req.invalidState("decide")
		}
		if err := validateDecision(in); err != nil {
			return err
		}
		if err := s.Policy.Authorize(actor, action, string(req.Status)); err != nil {
			return err
		}
		step, err := checkApprover(actor, action, req)
		if err != nil {
			return err
		}

		comments := strings.TrimSpace(in.Comments)
		decidedAt := now
		record(req, StepDecision{
			Decision:   in.Decision,
			ActorID:    actor.UserID,
			ActorName:  actor.Name,
			Comments:   comments,
			Conditions: strings.TrimSpace(in.Conditions),
			DecidedAt:  now,
		})
		step.Comments = comments
		step.ActedBy = actor.UserID
		step.ActionDate = &decidedAt
		req.appendDecision(DecisionRecord{
			Level:      step.Level,
			Role:       role,
			ActorID:    actor.UserID,
			ActorName:  actor.Name,
			Action:     op,
			Comments:   comments,
			Conditions: strings.TrimSpace(in.Conditions),
			CreatedAt:  now,
		})

		if in.Decision == DecisionReject {
			step.Status = StepRejected
			req.Status = StatusRejected
			req.ActiveLevel = 0
			return nil
		}
		step.Status = StepApproved
		if next := req.nextWaiting(); next >= 0 {
			return req.activate(next, now)
		}
		return s.approve(ctx, q, req, actor.UserID, now)
	})
}

// checkApprover confirms actor may act on the active step.
func checkApprover(actor auth.UserContext, action auth.Action, req *LeaveRequest) (*ChainStep, error) {
	deny := func(reason string) error {
		return &apperr.AuthorizationError{Role: string(actor.Role), Action: string(action), Reason: reason}
	}
	if actor.UserID == req.EmployeeID {
		return nil, deny("approvers cannot decide their own request")
	}
	step := req.ActiveStep()
	if step == nil {
		return nil, req.invalidState("decide")
	}
	// A named approver decides by identity, whatever role they hold. Unnamed
	// steps are open to any holder of the step's role.
	if step.ApproverID != "" {
		if step.ApproverID != actor.UserID {
			return nil, deny("the active step is assigned to another approver")
		}
		return step, nil
	}
	if step.ApproverRole != actor.Role {
		return nil, deny(fmt.Sprintf("the active step belongs to %s", step.ApproverRole))
	}
	return step, nil
}

// approve finalizes the request. The balance is deducted in the caller's transaction.
func (s *Service) approve(ctx context.Context, q Queries, req *LeaveRequest, actorID string, now time.Time) error {
	if err := s.deduct(ctx, q, req, actorID, now); err != nil {
		return err
	}
	req.Status = StatusApproved
	req.ActiveLevel = 0
	return nil
}

// BulkDecide applies one decision to many requests. Each id is its own
// transaction and a failure is reported in the result without stopping the
// batch. Every input id gets a result, blank and repeated ones as failures.
func (s *Service) BulkDecide(ctx context.Context, actor auth.UserContext, ids []string, decision Decision, comments string) (out BulkResult, err error) {
	ctx, span := s.startSpan(ctx, "BulkDecide", attribute.Int("leave.count", len(ids)), attribute.String("decision", string(decision)))
	defer func() { endSpan(span, err) }()

	verr := &apperr.ValidationError{}
	if len(ids) == 0 {
		verr.Add("leaveIds", "at least one id is required")
	}
	if len(ids) > MaxBulkSize {
		verr.Add("leaveIds", fmt.Sprintf("at most %d ids per batch", MaxBulkSize))
	}
	in := DecisionInput{Decision: decision, Comments: comments}
	if err := validateDecision(in); err != nil {
		var ve *apperr.ValidationError
		if errors.As(err, &ve) {
			verr.Issues = append(verr.Issues, ve.Issues...)
		}
	}
	if err := verr.OrNil(); err != nil {
		return BulkResult{}, err
	}
	if err := s.Policy.Authorize(actor, auth.ActionLeaveBulkDecide, ""); err != nil {
		return BulkResult{}, err
	}

	out.Results = make([]BulkItemResult, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		var req LeaveRequest
		var itemErr error
		switch {
		case id == "":
			itemErr = apperr.Validation("leaveIds", "blank id")
		case seen[id]:
			itemErr = apperr.Validation("leaveIds", "duplicate id, decided once above")
		case actor.Role == auth.RoleSupervisor:
			req, itemErr = s.SupervisorDecision(ctx, actor, id, in)
		case actor.Role == auth.RoleHR:
			req, itemErr = s.HRDecision(ctx, actor, id, HRDecisionInput{DecisionInput: in})
		case actor.Role == auth.RoleAdmin:
			req, itemErr = s.AdminDecision(ctx, actor, id, in)
		default:
			itemErr = &apperr.AuthorizationError{Role: string(actor.Role), Action: string(auth.ActionLeaveBulkDecide)}
		}
		seen[id] = true

		item := BulkItemResult{ID: id}
		if itemErr != nil {
			item.ErrorKind = apperr.KindOf(itemErr)
			item.Message = itemErr.Error()
			out.FailedCount++
		} else {
			item.Success = true
			item.Status = req.Status
			out.SuccessCount++
		}
		out.Results = append(out.Results, item)
	}
	return out, nil
}
