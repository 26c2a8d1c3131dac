package notifications

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"hrflow/internal/domain/auth"
	"hrflow/internal/domain/org"
	"hrflow/internal/platform/events"
)

// Directory is what the notifier needs to find the people behind a transition.
type Directory interface {
	Employee(id string) (org.Employee, bool)
	Supervisor(employeeID string) (org.Employee, bool)
	Department(name string) (org.Department, bool)
	HeadOfBusiness() (org.Employee, bool)
	ByRole(role auth.Role) []org.Employee
}

// Notifier turns transition events into inbox entries for the people who
// have to act next or who are affected by the outcome.
type Notifier struct {
	Service   *Service
	Directory Directory
}

type message struct {
	userID string
	ntype  string
	title  string
	body   string
}

// Handle is meant for events.Bus.Handle. Failures are logged.
func (n *Notifier) Handle(evt events.Event) {
	ctx := context.Background()
	for _, msg := range n.messages(evt) {
		if msg.userID == "" || msg.userID == evt.ActorID {
			continue
		}
		if err := n.Service.Create(ctx, msg.userID, msg.ntype, msg.title, msg.body); err != nil {
			zap.L().Warn("notification create failed",
				zap.String("event", evt.Type),
				zap.String("entity_id", evt.EntityID),
				zap.Error(err),
			)
		}
	}
}

func (n *Notifier) messages(evt events.Event) []message {
	if evt.Silent {
		return nil
	}
	owner := evt.EmployeeID
	name := n.name(owner)
	switch evt.Entity {
	case events.EntityKPISet:
		switch evt.Type {
		case "kpi.submit":
			sup, _ := n.Directory.Supervisor(owner)
			return []message{{sup.ID, TypeKPISubmitted, "KPI set awaiting approval", fmt.Sprintf("%s submitted a KPI set for review.", name)}}
		case "kpi.approve":
			return []message{{owner, TypeKPIApproved, "KPI set approved", withComment("Your KPI set was approved.", evt.Comment)}}
		case "kpi.reject":
			return []message{{owner, TypeKPIRejected, "KPI set rejected", withComment("Your KPI set was rejected.", evt.Comment)}}
		}
	case events.EntityLeaveRequest:
		switch evt.To {
		case "approved":
			if evt.From == "approved" {
				return nil
			}
			if evt.Type == "leave.emergency_override" {
				msgs := []message{{owner, TypeLeaveOverride, "Leave approved by HR", withComment("HR approved your leave request directly.", evt.Comment)}}
				return append(msgs, n.bypassedMessages(evt, name)...)
			}
			return []message{{owner, TypeLeaveApproved, "Leave approved", withComment("Your leave request was approved.", evt.Comment)}}
		case "rejected":
			return []message{{owner, TypeLeaveRejected, "Leave rejected", withComment("Your leave request was rejected.", evt.Comment)}}
		case "cancelled":
			return []message{{owner, TypeLeaveCancelled, "Leave cancelled", "Your leave request was cancelled."}}
		case "pending_supervisor", "pending_hr", "pending_admin":
			if evt.From == evt.To && evt.Type != "leave.escalate" {
				return nil
			}
			ntype := TypeLeaveSubmitted
			if evt.Type == "leave.escalate" {
				ntype = TypeLeaveEscalated
			}
			return []message{{n.approverFor(evt.To, owner), ntype, "Leave request awaiting approval", fmt.Sprintf("%s has a leave request waiting for you.", name)}}
		}
	}
	return nil
}

// bypassedMessages tells each skipped approver once that the request no longer waits on them.
func (n *Notifier) bypassedMessages(evt events.Event, name string) []message {
	var out []message
	seen := map[string]bool{}
	for _, step := range evt.Bypassed {
		id := step.ID
		if id == "" {
			id = n.approverFor("pending_"+step.Role, evt.EmployeeID)
		}
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, message{id, TypeLeaveBypassed, "Leave approval step bypassed", withComment(fmt.Sprintf("HR approved %s's leave request by emergency override; your approval is no longer needed.", name), evt.Comment)})
	}
	return out
}

func (n *Notifier) approverFor(status, employeeID string) string {
	switch status {
	case "pending_supervisor":
		sup, _ := n.Directory.Supervisor(employeeID)
		return sup.ID
	case "pending_hr":
		if emp, ok := n.Directory.Employee(employeeID); ok {
			if dep, ok := n.Directory.Department(emp.Department); ok && dep.HRPartnerID != "" {
				return dep.HRPartnerID
			}
		}
		if hr := n.Directory.ByRole(auth.RoleHR); len(hr) > 0 {
			return hr[0].ID
		}
	case "pending_admin":
		head, _ := n.Directory.HeadOfBusiness()
		return head.ID
	}
	return ""
}

func (n *Notifier) name(id string) string {
	if emp, ok := n.Directory.Employee(id); ok {
		return emp.Name
	}
	return id
}

func withComment(text, comment string) string {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return text
	}
	return text + " Comment: " + comment
}
