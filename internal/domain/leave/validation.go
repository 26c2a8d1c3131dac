package leave

import (
	"errors"
	"fmt"
	"strings"

	"hrflow/internal/domain/apperr"
)

// validateDraft accepts incomplete input but rejects values that can never become valid.
func validateDraft(req *LeaveRequest) error {
	verr := &apperr.ValidationError{}
	if req.LeaveType != "" && !req.Category.Valid() {
		verr.Add("leaveType", fmt.Sprintf("unknown leave type %q", req.LeaveType))
	}
	checkDates(req, verr, false)
	checkEnums(req, verr)
	return verr.OrNil()
}

func validateSubmission(req *LeaveRequest) error {
	verr := &apperr.ValidationError{}
	switch {
	case req.LeaveType == "":
		verr.Add("leaveType", "is required")
	case !req.Category.Valid():
		verr.Add("leaveType", fmt.Sprintf("unknown leave type %q", req.LeaveType))
	}
	checkDates(req, verr, true)
	checkEnums(req, verr)
	if req.Reason == "" {
		verr.Add("reason", "is required")
	}
	if c := req.EmergencyContact; c != nil {
		if strings.TrimSpace(c.Name) == "" {
			verr.Add("emergencyContact.name", "is required")
		}
		if strings.TrimSpace(c.Phone) == "" {
			verr.Add("emergencyContact.phone", "is required")
		}
	}
	if req.claimedDays != nil && !verr.HasIssues() && !req.claimedDays.Equal(req.TotalDays) {
		verr.Add("totalDays", fmt.Sprintf("does not match the date range, expected %s", req.TotalDays))
	}
	return verr.OrNil()
}

func checkDates(req *LeaveRequest, verr *apperr.ValidationError, required bool) {
	if req.StartDate.IsZero() {
		if required {
			verr.Add("startDate", "is required")
		}
	}
	if req.EndDate.IsZero() {
		if required {
			verr.Add("endDate", "is required")
		}
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		if req.IsPartialDay && required {
			verr.Add("isPartialDay", "requires start and end dates")
		}
		return
	}
	if _, err := CalculateTotalDays(req.StartDate, req.EndDate, req.IsPartialDay); err != nil {
		switch {
		case errors.Is(err, ErrEndBeforeStart):
			verr.Add("endDate", "must not be before startDate")
		case errors.Is(err, ErrPartialDayRange):
			verr.Add("isPartialDay", "partial day requests must start and end on the same date")
		default:
			verr.Add("endDate", err.Error())
		}
	}
}

func checkEnums(req *LeaveRequest, verr *apperr.ValidationError) {
	if !req.Urgency.Valid() {
		verr.Add("urgency", "must be one of low, medium, high, critical")
	}
	if !req.Priority.Valid() {
		verr.Add("priority", "must be one of routine, important, urgent, critical")
	}
}

func validateDecision(in DecisionInput) error {
	verr := &apperr.ValidationError{}
	if !in.Decision.Valid() {
		verr.Add("decision", "must be approve or reject")
	}
	if in.Decision == DecisionReject && strings.TrimSpace(in.Comments) == "" {
		verr.Add("comments", "are required when rejecting")
	}
	return verr.OrNil()
}
