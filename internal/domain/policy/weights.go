// Package policy holds the pure business rules shared by the KPI and leave
// engines: weight totals, stuck detection, attachment limits and approval
// chain resolution.
package policy

import (
	"fmt"

	"hrflow/internal/domain/apperr"
)

const (
	RequiredWeightTotal = 100
	MinWeight           = 1
	MaxWeight           = 100
)

// ValidateWeights checks that every weight is within 1..100 and that they sum to exactly 100.
// It serves KPI submission and KPI contribution links alike.
func ValidateWeights(field string, weights []int) error {
	verr := &apperr.ValidationError{}
	if len(weights) == 0 {
		verr.Add(field, "at least one weight is required")
		return verr
	}
	total := 0
	for i, w := range weights {
		if w < MinWeight || w > MaxWeight {
			verr.Add(fmt.Sprintf("%s[%d]", field, i), fmt.Sprintf("must be between %d and %d", MinWeight, MaxWeight))
		}
		total += w
	}
	if total != RequiredWeightTotal {
		verr.Add(field, fmt.Sprintf("must sum to %d, got %d", RequiredWeightTotal, total))
	}
	return verr.OrNil()
}

func SumWeights(weights []int) int {
	total := 0
	for _, w := range weights {
		total += w
	}
	return total
}
