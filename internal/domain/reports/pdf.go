package reports

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"hrflow/internal/domain/apperr"
	"hrflow/internal/domain/kpi"
	"hrflow/internal/domain/leave"
)

const dateLayout = "2006-01-02"

type document struct {
	pdf *gofpdf.Fpdf
	tr  func(string) string
}

func newDocument(title string) *document {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetCreator("hrflow", true)
	pdf.AddPage()
	d := &document{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, d.tr(title))
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 11)
	return d
}

func (d *document) line(format string, args ...any) {
	d.pdf.Cell(0, 7, d.tr(fmt.Sprintf(format, args...)))
	d.pdf.Ln(7)
}

func (d *document) paragraph(text string) {
	d.pdf.MultiCell(0, 6, d.tr(text), "", "L", false)
	d.pdf.Ln(2)
}

func (d *document) heading(text string) {
	d.pdf.Ln(3)
	d.pdf.SetFont("Helvetica", "B", 12)
	d.pdf.Cell(0, 8, d.tr(text))
	d.pdf.Ln(8)
	d.pdf.SetFont("Helvetica", "", 11)
}

func (d *document) row(widths []float64, cells []string, header bool) {
	if header {
		d.pdf.SetFont("Helvetica", "B", 10)
	} else {
		d.pdf.SetFont("Helvetica", "", 10)
	}
	for i, cell := range cells {
		d.pdf.CellFormat(widths[i], 7, d.tr(truncate(cell, int(widths[i]/1.9))), "1", 0, "L", header, 0, "")
	}
	d.pdf.Ln(-1)
	d.pdf.SetFont("Helvetica", "", 11)
}

func (d *document) write(w io.Writer) error {
	if err := d.pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}

// WriteKPISetPDF renders a KPI set with its items and decision.
func WriteKPISetPDF(w io.Writer, set kpi.KPISet) error {
	d := newDocument("KPI set " + set.Quarter)
	name := set.EmployeeName
	if name == "" {
		name = set.EmployeeID
	}
	d.line("Employee: %s", name)
	d.line("Quarter: %s", set.Quarter)
	d.line("Status: %s", set.Status)
	d.line("Total weight: %d", set.TotalWeight)
	if set.SubmittedAt != nil {
		d.line("Submitted: %s", set.SubmittedAt.Format(dateLayout))
	}

	d.heading("Objectives")
	widths := []float64{60, 18, 40, 72}
	d.row(widths, []string{"Title", "Weight", "Target", "Measurable outcome"}, true)
	for _, item := range set.Items {
		d.row(widths, []string{item.Title, fmt.Sprintf("%d%%", item.Weight), item.TargetValue, item.MeasurableOutcome}, false)
	}

	if set.DecidedBy != "" {
		d.heading("Decision")
		decided := ""
		if set.DecisionDate != nil {
			decided = " on " + set.DecisionDate.Format(dateLayout)
		}
		d.line("Decided by %s%s", set.DecidedBy, decided)
		if set.DecisionComments != "" {
			d.paragraph("Comments: " + set.DecisionComments)
		}
	}
	if set.RejectionReason != nil {
		d.paragraph("Rejection reason: " + *set.RejectionReason)
	}
	return d.write(w)
}

// WriteLeaveApprovalLetter renders the confirmation for an approved request.
func WriteLeaveApprovalLetter(w io.Writer, req leave.LeaveRequest, issued time.Time) error {
	switch req.Status {
	case leave.StatusApproved, leave.StatusInProgress, leave.StatusCompleted:
	default:
		return &apperr.InvalidStateError{Entity: "leave_request", ID: req.ID, Current: string(req.Status), Op: "issue approval letter for"}
	}

	d := newDocument("Leave approval")
	d.line("Issued: %s", issued.UTC().Format(dateLayout))
	d.line("Reference: %s", req.ID)
	d.pdf.Ln(4)
	d.paragraph(fmt.Sprintf("Dear %s,", req.EmployeeName))
	d.paragraph(fmt.Sprintf("Your request for %s from %s to %s (%s days) has been approved.",
		leave.CategoryInfo(req.Category).DisplayName, req.StartDate.Format(dateLayout), req.EndDate.Format(dateLayout), req.TotalDays.String()))
	if req.Department != "" {
		d.line("Department: %s", req.Department)
	}

	d.heading("Approval chain")
	widths := []float64{15, 35, 50, 30, 60}
	d.row(widths, []string{"Level", "Role", "Approver", "Status", "Comments"}, true)
	for _, step := range req.ApprovalChain {
		d.row(widths, []string{fmt.Sprint(step.Level), string(step.ApproverRole), step.ApproverName, string(step.Status), step.Comments}, false)
	}
	for _, dec := range req.Decisions {
		switch dec.Action {
		case leave.ActionOverride:
			d.paragraph("Approved through an HR emergency override: " + dec.Comments)
		case leave.ActionDirectApproval:
			d.paragraph("Approved directly by HR: " + dec.Comments)
		}
	}
	return d.write(w)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max < 4 || len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
