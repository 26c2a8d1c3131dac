package kpi

import "time"

type Item struct {
	Title             string `json:"title"`
	Description       string `json:"description"`
	Weight            int    `json:"weight"`
	TargetValue       string `json:"targetValue"`
	MeasurableOutcome string `json:"measurableOutcome"`
}

// KPISet is the quarterly objective list of one employee. At most one set
// exists per employee and quarter.
type KPISet struct {
	ID               string     `json:"id"`
	EmployeeID       string     `json:"employeeId"`
	EmployeeName     string     `json:"employeeName,omitempty"`
	Quarter          string     `json:"quarter"`
	Items            []Item     `json:"kpis"`
	Status           Status     `json:"approvalStatus"`
	TotalWeight      int        `json:"totalWeight"`
	RejectionReason  *string    `json:"rejectionReason"`
	SubmittedAt      *time.Time `json:"submittedAt,omitempty"`
	DecidedBy        string     `json:"decidedBy,omitempty"`
	DecisionDate     *time.Time `json:"decisionDate,omitempty"`
	DecisionComments string     `json:"decisionComments,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	Version          int        `json:"version"`
}

func (s *KPISet) weights() []int {
	out := make([]int, len(s.Items))
	for i, item := range s.Items {
		out[i] = item.Weight
	}
	return out
}

func (s *KPISet) invalidState(op string) error {
	return invalidState(s.ID, s.Status, op)
}

type Contribution struct {
	KPIIndex int `json:"kpiIndex"`
	Weight   int `json:"weight,omitempty"`
}

// Link ties a task or milestone to the KPIs of an approved set.
type Link struct {
	ID            string         `json:"id"`
	KPISetID      string         `json:"kpiSetId"`
	TargetType    TargetType     `json:"targetType"`
	TargetID      string         `json:"targetId"`
	Title         string         `json:"title,omitempty"`
	Contributions []Contribution `json:"contributions"`
	CreatedBy     string         `json:"createdBy"`
	CreatedAt     time.Time      `json:"createdAt"`
}

type Filter struct {
	EmployeeID string
	Quarter    string
	Statuses   []Status
	Limit      int
	Offset     int
}

// Scope narrows a listing to what the caller may see. A zero Scope sees everything.
type Scope struct {
	EmployeeIDs []string
}

type Page struct {
	Items  []KPISet `json:"items"`
	Total  int      `json:"total"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
}
