package leave

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// encodeRecord splits a request into its JSON document and the sealed medical block.
func encodeRecord(req LeaveRequest, cipher Cipher) ([]byte, []byte, error) {
	var medical []byte
	if !req.MedicalInfo.Empty() {
		raw, err := json.Marshal(req.MedicalInfo)
		if err != nil {
			return nil, nil, fmt.Errorf("encode medical info: %w", err)
		}
		if cipher != nil {
			raw, err = cipher.Encrypt(raw)
			if err != nil {
				return nil, nil, fmt.Errorf("encrypt medical info: %w", err)
			}
		}
		medical = raw
	}
	req.MedicalInfo = nil
	doc, err := json.Marshal(req)
	if err != nil {
		return nil, nil, fmt.Errorf("encode leave request: %w", err)
	}
	if medical == nil {
		medical = []byte{}
	}
	return doc, medical, nil
}

func decodeRecord(doc, medical []byte, version int, cipher Cipher) (LeaveRequest, error) {
	var req LeaveRequest
	if err := json.Unmarshal(doc, &req); err != nil {
		return LeaveRequest{}, fmt.Errorf("decode leave request: %w", err)
	}
	req.Version = version
	if len(medical) > 0 {
		raw := medical
		if cipher != nil {
			plain, err := cipher.Decrypt(medical)
			if err != nil {
				return LeaveRequest{}, fmt.Errorf("decrypt medical info: %w", err)
			}
			raw = plain
		}
		var info MedicalInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			return LeaveRequest{}, fmt.Errorf("decode medical info: %w", err)
		}
		req.MedicalInfo = &info
	}
	return req, nil
}

func parseDays(value string) (decimal.Decimal, error) {
	if strings.TrimSpace(value) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(value)
}

// whereClause renders the filter and scope as SQL. ph renders the n-th
// placeholder and date converts a date bound to a driver argument.
func whereClause(filter Filter, scope Scope, ph func(n int) string, date func(time.Time) any) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, values ...any) {
		for _, v := range values {
			cond = strings.Replace(cond, "?", ph(len(args)+1), 1)
			args = append(args, v)
		}
		conds = append(conds, cond)
	}

	if scope.OwnerID != "" && scope.SupervisorID != "" {
		add("(employee_id = ? OR supervisor_id = ?)", scope.OwnerID, scope.SupervisorID)
	} else if scope.OwnerID != "" {
		add("employee_id = ?", scope.OwnerID)
	} else if scope.SupervisorID != "" {
		add("supervisor_id = ?", scope.SupervisorID)
	}

	if filter.EmployeeID != "" {
		add("employee_id = ?", filter.EmployeeID)
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		values := make([]any, len(filter.Statuses))
		for i, st := range filter.Statuses {
			marks[i] = "?"
			values[i] = string(st)
		}
		add("status IN ("+strings.Join(marks, ",")+")", values...)
	}
	if len(filter.Categories) > 0 {
		marks := make([]string, len(filter.Categories))
		values := make([]any, len(filter.Categories))
		for i, c := range filter.Categories {
			marks[i] = "?"
			values[i] = string(c)
		}
		add("category IN ("+strings.Join(marks, ",")+")", values...)
	}
	if filter.Urgency != "" {
		add("urgency = ?", string(filter.Urgency))
	}
	if filter.Department != "" {
		add("lower(department) = lower(?)", filter.Department)
	}
	if filter.PendingRole != "" {
		add("pending_role = ?", string(filter.PendingRole))
	}
	if filter.From != nil {
		add("end_date >= ?", date(DateOnly(*filter.From)))
	}
	if filter.To != nil {
		add("start_date <= ?", date(DateOnly(*filter.To)))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func pendingStatusArgs() []any {
	out := make([]any, len(PendingStatuses))
	for i, st := range PendingStatuses {
		out[i] = string(st)
	}
	return out
}

func formatDate(t time.Time) string {
	return DateOnly(t).Format(dateLayout)
}
