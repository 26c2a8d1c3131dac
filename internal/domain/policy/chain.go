package policy

import (
	"github.com/shopspring/decimal"

	"hrflow/internal/domain/auth"
	"hrflow/internal/domain/org"
)

// Directory is the slice of organizational data the resolver reads.
type Directory interface {
	Employee(id string) (org.Employee, bool)
	EmployeeByName(name string) (org.Employee, bool)
	Supervisor(employeeID string) (org.Employee, bool)
	Department(name string) (org.Department, bool)
	HeadOfBusiness() (org.Employee, bool)
	ByRole(role auth.Role) []org.Employee
}

type ChainInput struct {
	EmployeeID   string
	EmployeeName string
	Department   string
	Category     string
	LeaveType    string
	TotalDays    decimal.Decimal
	Urgency      string
}

// ChainEntry is one resolved approver. An empty ApproverID means any holder
// of Role may decide.
type ChainEntry struct {
	Level        int       `json:"level"`
	Role         auth.Role `json:"approverRole"`
	ApproverID   string    `json:"approverId,omitempty"`
	ApproverName string    `json:"approverName"`
	Department   string    `json:"department,omitempty"`
	Rule         string    `json:"rule,omitempty"`
}

type Resolver struct {
	dir   Directory
	rules []Rule
}

func NewResolver(dir Directory, rules []Rule) *Resolver {
	return &Resolver{dir: dir, rules: rules}
}

// Resolve computes the ordered approver list for a request. It reads the
// directory and the rules only and has no side effects.
func (r *Resolver) Resolve(in ChainInput) ([]ChainEntry, error) {
	emp, found := r.lookupEmployee(in)
	department := in.Department
	if department == "" && found {
		department = emp.Department
	}

	params := map[string]interface{}{
		"category":   in.Category,
		"leaveType":  in.LeaveType,
		"totalDays":  in.TotalDays.InexactFloat64(),
		"department": department,
		"urgency":    in.Urgency,
	}

	type slot struct {
		role auth.Role
		rule string
	}
	slots := []slot{{role: auth.RoleSupervisor}, {role: auth.RoleHR}}
	finalRule := ""
	for _, rule := range r.rules {
		matched, err := rule.Matches(params)
		if err != nil {
			return nil, err
		}
		if !matched {
			continue
		}
		if rule.SupervisorFinal && finalRule == "" {
			finalRule = rule.Name
		}
		for _, role := range rule.Append {
			role, _ = auth.ParseRole(string(role))
			present := false
			for _, s := range slots {
				if s.role == role {
					present = true
					break
				}
			}
			if !present {
				slots = append(slots, slot{role: role, rule: rule.Name})
			}
		}
	}
	if finalRule != "" {
		slots = []slot{{role: auth.RoleSupervisor, rule: finalRule}}
	}

	chain := make([]ChainEntry, 0, len(slots))
	for _, s := range slots {
		entry, ok := r.approverFor(s.role, emp, found, department)
		if !ok {
			continue
		}
		entry.Level = len(chain) + 1
		entry.Rule = s.rule
		chain = append(chain, entry)
	}
	return chain, nil
}

func (r *Resolver) lookupEmployee(in ChainInput) (org.Employee, bool) {
	if r.dir == nil {
		return org.Employee{}, false
	}
	if in.EmployeeID != "" {
		if emp, ok := r.dir.Employee(in.EmployeeID); ok {
			return emp, true
		}
	}
	if in.EmployeeName != "" {
		return r.dir.EmployeeByName(in.EmployeeName)
	}
	return org.Employee{}, false
}

// approverFor fills one chain slot. It reports false when the slot would fall
// to the requester and is left out.
func (r *Resolver) approverFor(role auth.Role, emp org.Employee, found bool, department string) (ChainEntry, bool) {
	entry := ChainEntry{Role: role, Department: department}
	switch role {
	case auth.RoleSupervisor:
		entry.ApproverName = "Supervisor"
		if r.dir == nil {
			return entry, true
		}
		if found {
			if sup, ok := r.dir.Supervisor(emp.ID); ok {
				entry.ApproverID, entry.ApproverName = sup.ID, sup.Name
				return entry, true
			}
			// Nobody above the requester in the department. The step is named
			// so that the requester's own reports cannot pick it up.
			if top, ok := r.topApprover(emp); ok {
				entry.ApproverID, entry.ApproverName = top.ID, top.Name
			}
			return entry, true
		}
		if dep, ok := r.dir.Department(department); ok && dep.HeadID != "" {
			if head, ok := r.dir.Employee(dep.HeadID); ok {
				entry.ApproverID, entry.ApproverName = head.ID, head.Name
			}
		}
	case auth.RoleHR:
		entry.ApproverName = "HR"
		if r.dir == nil {
			return entry, true
		}
		if dep, ok := r.dir.Department(department); ok && dep.HRPartnerID != "" {
			if partner, ok := r.dir.Employee(dep.HRPartnerID); ok {
				entry.ApproverName = partner.Name
			}
		}
	case auth.RoleAdmin:
		entry.ApproverName = "Administration"
		if r.dir == nil {
			return entry, true
		}
		if head, ok := r.dir.HeadOfBusiness(); ok {
			if found && head.ID == emp.ID {
				return entry, false
			}
			entry.ApproverID, entry.ApproverName = head.ID, head.Name
		}
	default:
		entry.ApproverName = string(role)
	}
	return entry, true
}

// topApprover stands in for the supervisor of someone with none: the head of
// business, or HR when the requester is the head of business.
func (r *Resolver) topApprover(emp org.Employee) (org.Employee, bool) {
	if head, ok := r.dir.HeadOfBusiness(); ok && head.ID != emp.ID {
		return head, true
	}
	if dep, ok := r.dir.Department(emp.Department); ok && dep.HRPartnerID != "" && dep.HRPartnerID != emp.ID {
		if partner, ok := r.dir.Employee(dep.HRPartnerID); ok {
			return partner, true
		}
	}
	for _, hr := range r.dir.ByRole(auth.RoleHR) {
		if hr.ID != emp.ID {
			return hr, true
		}
	}
	return org.Employee{}, false
}
