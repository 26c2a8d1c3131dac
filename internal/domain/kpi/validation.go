package kpi

import (
	"errors"
	"fmt"
	"strings"

	"hrflow/internal/domain/apperr"
	"hrflow/internal/domain/policy"
)

func invalidState(id string, current Status, op string) error {
	return &apperr.InvalidStateError{Entity: "kpi_set", ID: id, Current: string(current), Op: op}
}

func normalizeItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i, item := range items {
		out[i] = Item{
			Title:             strings.TrimSpace(item.Title),
			Description:       strings.TrimSpace(item.Description),
			Weight:            item.Weight,
			TargetValue:       strings.TrimSpace(item.TargetValue),
			MeasurableOutcome: strings.TrimSpace(item.MeasurableOutcome),
		}
	}
	return out
}

// validateItems checks the shape of every item. The weight total is only
// enforced on submission.
func validateItems(verr *apperr.ValidationError, items []Item) {
	if len(items) < MinItems || len(items) > MaxItems {
		verr.Add("kpis", fmt.Sprintf("must contain between %d and %d items, got %d", MinItems, MaxItems, len(items)))
	}
	for i, item := range items {
		prefix := fmt.Sprintf("kpis[%d]", i)
		if item.Title == "" {
			verr.Add(prefix+".title", "is required")
		}
		if item.Description == "" {
			verr.Add(prefix+".description", "is required")
		}
		if item.TargetValue == "" {
			verr.Add(prefix+".targetValue", "is required")
		}
		if item.MeasurableOutcome == "" {
			verr.Add(prefix+".measurableOutcome", "is required")
		}
		if item.Weight < policy.MinWeight || item.Weight > policy.MaxWeight {
			verr.Add(prefix+".weight", fmt.Sprintf("must be between %d and %d", policy.MinWeight, policy.MaxWeight))
		}
	}
}

func validateForSubmit(set *KPISet) error {
	verr := &apperr.ValidationError{}
	validateItems(verr, set.Items)
	if verr.HasIssues() {
		return verr
	}
	if err := policy.ValidateWeights("kpis.weight", set.weights()); err != nil {
		mergeIssues(verr, err)
	}
	return verr.OrNil()
}

func validateDecision(decision Decision, comments string) error {
	verr := &apperr.ValidationError{}
	if !decision.Valid() {
		verr.Add("decision", "must be approve or reject")
	}
	if decision == DecisionReject && len([]rune(comments)) < MinRejectionComment {
		verr.Add("comments", fmt.Sprintf("must be at least %d characters when rejecting", MinRejectionComment))
	}
	return verr.OrNil()
}

// validateLink checks the contributions of a link against the set it targets.
// Milestones and weighted tasks must split exactly 100 across their KPIs; a
// task may point at a single KPI without a weight.
func validateLink(link Link, set KPISet) error {
	verr := &apperr.ValidationError{}
	if !link.TargetType.Valid() {
		verr.Add("targetType", "must be task or milestone")
	}
	if link.TargetID == "" {
		verr.Add("targetId", "is required")
	}
	if len(link.Contributions) == 0 {
		verr.Add("contributions", "at least one KPI is required")
		return verr
	}

	seen := map[int]bool{}
	weighted := false
	weights := make([]int, len(link.Contributions))
	for i, c := range link.Contributions {
		field := fmt.Sprintf("contributions[%d].kpiIndex", i)
		switch {
		case c.KPIIndex < 0 || c.KPIIndex >= len(set.Items):
			verr.Add(field, fmt.Sprintf("must be between 0 and %d", len(set.Items)-1))
		case seen[c.KPIIndex]:
			verr.Add(field, "is listed twice")
		}
		seen[c.KPIIndex] = true
		if c.Weight != 0 {
			weighted = true
		}
		weights[i] = c.Weight
	}

	singleTask := link.TargetType == TargetTask && len(link.Contributions) == 1 && !weighted
	if !singleTask {
		if err := policy.ValidateWeights("contributions.weight", weights); err != nil {
			mergeIssues(verr, err)
		}
	}
	return verr.OrNil()
}

func mergeIssues(dst *apperr.ValidationError, err error) {
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		dst.Issues = append(dst.Issues, ve.Issues...)
		return
	}
	dst.Add("kpis", err.Error())
}
