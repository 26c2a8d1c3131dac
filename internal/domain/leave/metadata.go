package leave

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeveritySuccess Severity = "success"
	SeverityNeutral Severity = "neutral"
)

type CategoryMeta struct {
	Category      Category `json:"category"`
	DisplayName   string   `json:"displayName"`
	Color         string   `json:"color"`
	Severity      Severity `json:"severity"`
	TracksBalance bool     `json:"tracksBalance"`
}

type StatusMeta struct {
	Status      Status   `json:"status"`
	DisplayName string   `json:"displayName"`
	Color       string   `json:"color"`
	Severity    Severity `json:"severity"`
	Pending     bool     `json:"pending"`
	Terminal    bool     `json:"terminal"`
}

type LeaveTypeMeta struct {
	LeaveType string   `json:"leaveType"`
	Category  Category `json:"category"`
}

type Metadata struct {
	Categories []CategoryMeta  `json:"categories"`
	Statuses   []StatusMeta    `json:"statuses"`
	LeaveTypes []LeaveTypeMeta `json:"leaveTypes"`
	Urgencies  []Urgency       `json:"urgencies"`
	Priorities []Priority      `json:"priorities"`
}

var categoryOrder = []Category{
	CategoryMedical, CategoryVacation, CategoryPersonal, CategoryFamily,
	CategoryEmergency, CategoryBereavement, CategoryStudy, CategoryMaternity,
	CategoryPaternity, CategoryCompensatory, CategorySabbatical, CategoryUnpaid,
}

var categoryMeta = map[Category]CategoryMeta{
	CategoryMedical:      {DisplayName: "Medical", Color: "red", Severity: SeverityError, TracksBalance: true},
	CategoryVacation:     {DisplayName: "Vacation", Color: "blue", Severity: SeverityInfo, TracksBalance: true},
	CategoryPersonal:     {DisplayName: "Personal", Color: "purple", Severity: SeverityInfo, TracksBalance: true},
	CategoryFamily:       {DisplayName: "Family", Color: "pink", Severity: SeverityWarning, TracksBalance: true},
	CategoryEmergency:    {DisplayName: "Emergency", Color: "orange", Severity: SeverityError, TracksBalance: true},
	CategoryBereavement:  {DisplayName: "Bereavement", Color: "gray", Severity: SeverityNeutral, TracksBalance: true},
	CategoryStudy:        {DisplayName: "Study", Color: "cyan", Severity: SeverityInfo, TracksBalance: true},
	CategoryMaternity:    {DisplayName: "Maternity", Color: "magenta", Severity: SeveritySuccess, TracksBalance: true},
	CategoryPaternity:    {DisplayName: "Paternity", Color: "geekblue", Severity: SeveritySuccess, TracksBalance: true},
	CategoryCompensatory: {DisplayName: "Compensatory", Color: "lime", Severity: SeverityInfo, TracksBalance: true},
	CategorySabbatical:   {DisplayName: "Sabbatical", Color: "gold", Severity: SeverityWarning, TracksBalance: true},
	CategoryUnpaid:       {DisplayName: "Unpaid", Color: "volcano", Severity: SeverityNeutral, TracksBalance: false},
}

var statusOrder = []Status{
	StatusDraft, StatusPendingSupervisor, StatusPendingHR, StatusPendingAdmin,
	StatusApproved, StatusInProgress, StatusCompleted, StatusRejected, StatusCancelled,
}

var statusMeta = map[Status]StatusMeta{
	StatusDraft:             {DisplayName: "Draft", Color: "default", Severity: SeverityNeutral},
	StatusPendingSupervisor: {DisplayName: "Pending Supervisor", Color: "orange", Severity: SeverityWarning},
	StatusPendingHR:         {DisplayName: "Pending HR", Color: "gold", Severity: SeverityWarning},
	StatusPendingAdmin:      {DisplayName: "Pending Admin", Color: "volcano", Severity: SeverityWarning},
	StatusApproved:          {DisplayName: "Approved", Color: "green", Severity: SeveritySuccess},
	StatusInProgress:        {DisplayName: "In Progress", Color: "blue", Severity: SeverityInfo},
	StatusCompleted:         {DisplayName: "Completed", Color: "cyan", Severity: SeveritySuccess},
	StatusRejected:          {DisplayName: "Rejected", Color: "red", Severity: SeverityError},
	StatusCancelled:         {DisplayName: "Cancelled", Color: "gray", Severity: SeverityNeutral},
}

// CategoryInfo returns the metadata row for c. Unknown categories track no balance.
func CategoryInfo(c Category) CategoryMeta {
	meta, ok := categoryMeta[c]
	if !ok {
		return CategoryMeta{Category: c, DisplayName: string(c), Color: "default", Severity: SeverityNeutral}
	}
	meta.Category = c
	return meta
}

func StatusInfo(s Status) StatusMeta {
	meta, ok := statusMeta[s]
	if !ok {
		return StatusMeta{Status: s, DisplayName: string(s), Color: "default", Severity: SeverityNeutral}
	}
	meta.Status = s
	meta.Pending = s.IsPending()
	meta.Terminal = s.IsTerminal()
	return meta
}

func AllMetadata() Metadata {
	md := Metadata{
		Urgencies:  []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical},
		Priorities: []Priority{PriorityRoutine, PriorityImportant, PriorityUrgent, PriorityCritical},
	}
	for _, c := range categoryOrder {
		md.Categories = append(md.Categories, CategoryInfo(c))
	}
	for _, s := range statusOrder {
		md.Statuses = append(md.Statuses, StatusInfo(s))
	}
	for _, t := range LeaveTypes() {
		md.LeaveTypes = append(md.LeaveTypes, LeaveTypeMeta{LeaveType: t, Category: leaveTypes[t]})
	}
	return md
}
