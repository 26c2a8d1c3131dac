package kpi

import (
	"encoding/json"
	"fmt"
	"strings"
)

const setColumns = `id, employee_id, quarter, status, items, total_weight, rejection_reason, submitted_at,
    decided_by, decision_date, decision_comments, version, created_at, updated_at`

func encodeItems(items []Item) ([]byte, error) {
	if items == nil {
		items = []Item{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode kpi items: %w", err)
	}
	return raw, nil
}

func decodeItems(raw []byte) ([]Item, error) {
	items := []Item{}
	if len(raw) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode kpi items: %w", err)
	}
	return items, nil
}

func encodeContributions(cs []Contribution) ([]byte, error) {
	if cs == nil {
		cs = []Contribution{}
	}
	raw, err := json.Marshal(cs)
	if err != nil {
		return nil, fmt.Errorf("encode kpi contributions: %w", err)
	}
	return raw, nil
}

func decodeContributions(raw []byte) ([]Contribution, error) {
	cs := []Contribution{}
	if len(raw) == 0 {
		return cs, nil
	}
	if err := json.Unmarshal(raw, &cs); err != nil {
		return nil, fmt.Errorf("decode kpi contributions: %w", err)
	}
	return cs, nil
}

// whereClause renders filter and scope as SQL; ph renders the n-th placeholder.
func whereClause(filter Filter, scope Scope, ph func(n int) string) (string, []any) {
	var conds []string
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return ph(len(args))
	}

	if scope.EmployeeIDs != nil {
		if len(scope.EmployeeIDs) == 0 {
			conds = append(conds, "1 = 0")
		} else {
			marks := make([]string, len(scope.EmployeeIDs))
			for i, id := range scope.EmployeeIDs {
				marks[i] = next(id)
			}
			conds = append(conds, "employee_id IN ("+strings.Join(marks, ",")+")")
		}
	}
	if filter.EmployeeID != "" {
		conds = append(conds, "employee_id = "+next(filter.EmployeeID))
	}
	if filter.Quarter != "" {
		conds = append(conds, "quarter = "+next(filter.Quarter))
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			marks[i] = next(string(st))
		}
		conds = append(conds, "status IN ("+strings.Join(marks, ",")+")")
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
