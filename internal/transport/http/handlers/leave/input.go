package leavehandler

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"hrflow/internal/domain/leave"
	"hrflow/internal/domain/policy"
	"hrflow/internal/transport/http/shared"
)

const multipartMemoryBytes = 8 << 20

type submitRequest struct {
	LeaveType          string                  `json:"leaveType"`
	StartDate          string                  `json:"startDate"`
	EndDate            string                  `json:"endDate"`
	IsPartialDay       bool                    `json:"isPartialDay"`
	TotalDays          *decimal.Decimal        `json:"totalDays"`
	Urgency            leave.Urgency           `json:"urgency"`
	Priority           leave.Priority          `json:"priority"`
	Reason             string                  `json:"reason"`
	MedicalInfo        *leave.MedicalInfo      `json:"medicalInfo"`
	EmergencyContact   *leave.EmergencyContact `json:"emergencyContact"`
	CertificatePending bool                    `json:"certificatePending"`
}

func (p submitRequest) toInput(v *shared.Validator) leave.SubmitInput {
	in := leave.SubmitInput{
		LeaveType:          strings.TrimSpace(p.LeaveType),
		IsPartialDay:       p.IsPartialDay,
		TotalDays:          p.TotalDays,
		Urgency:            p.Urgency,
		Priority:           p.Priority,
		Reason:             p.Reason,
		MedicalInfo:        p.MedicalInfo,
		EmergencyContact:   p.EmergencyContact,
		CertificatePending: p.CertificatePending,
	}
	if start := v.OptionalDate("startDate", p.StartDate); start != nil {
		in.StartDate = *start
	}
	if end := v.OptionalDate("endDate", p.EndDate); end != nil {
		in.EndDate = *end
	}
	v.DateOrder("startDate", in.StartDate, "endDate", in.EndDate)
	return in
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// readSubmission accepts either a JSON body or a multipart form carrying the
// same fields plus medicalCertificate and supportingDocuments files.
func readSubmission(r *http.Request, v *shared.Validator) (leave.SubmitInput, error) {
	if !isMultipart(r) {
		var payload submitRequest
		if err := shared.DecodeJSON(r, &payload); err != nil {
			return leave.SubmitInput{}, err
		}
		return payload.toInput(v), nil
	}

	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		return leave.SubmitInput{}, err
	}
	form := r.MultipartForm
	payload := submitRequest{
		LeaveType: r.FormValue("leaveType"),
		StartDate: r.FormValue("startDate"),
		EndDate:   r.FormValue("endDate"),
		Urgency:   leave.Urgency(r.FormValue("urgency")),
		Priority:  leave.Priority(r.FormValue("priority")),
		Reason:    r.FormValue("reason"),
	}
	payload.IsPartialDay = v.Bool("isPartialDay", r.FormValue("isPartialDay"))
	payload.CertificatePending = v.Bool("certificatePending", r.FormValue("certificatePending"))
	payload.TotalDays = v.OptionalDecimal("totalDays", r.FormValue("totalDays"))
	if raw := strings.TrimSpace(r.FormValue("medicalInfo")); raw != "" {
		payload.MedicalInfo = &leave.MedicalInfo{}
		if err := json.Unmarshal([]byte(raw), payload.MedicalInfo); err != nil {
			v.Add("medicalInfo", "must be a JSON object")
		}
	} else if doctor, hospital, symptoms := r.FormValue("doctor"), r.FormValue("hospital"), r.FormValue("symptoms"); doctor+hospital+symptoms != "" {
		payload.MedicalInfo = &leave.MedicalInfo{Doctor: doctor, Hospital: hospital, Symptoms: symptoms}
	}
	if raw := strings.TrimSpace(r.FormValue("emergencyContact")); raw != "" {
		payload.EmergencyContact = &leave.EmergencyContact{}
		if err := json.Unmarshal([]byte(raw), payload.EmergencyContact); err != nil {
			v.Add("emergencyContact", "must be a JSON object")
		}
	}

	in := payload.toInput(v)
	in.Uploads = append(in.Uploads, readFiles(v, form, policy.AttachmentMedicalCertificate, "medicalCertificate")...)
	in.Uploads = append(in.Uploads, readFiles(v, form, policy.AttachmentSupportingDocument, "supportingDocuments", "supportingDocuments[]")...)
	return in, nil
}

func readFiles(v *shared.Validator, form *multipart.Form, kind policy.AttachmentKind, fields ...string) []leave.Upload {
	if form == nil {
		return nil
	}
	var out []leave.Upload
	for _, field := range fields {
		for i, header := range form.File[field] {
			upload, err := readFile(header, kind)
			if err != nil {
				v.Add(fmt.Sprintf("%s[%d]", field, i), err.Error())
				continue
			}
			out = append(out, upload)
		}
	}
	return out
}

func readFile(header *multipart.FileHeader, kind policy.AttachmentKind) (leave.Upload, error) {
	if header.Size > policy.MaxAttachmentBytes {
		return leave.Upload{}, fmt.Errorf("file exceeds %d MB", policy.MaxAttachmentBytes>>20)
	}
	file, err := header.Open()
	if err != nil {
		return leave.Upload{}, fmt.Errorf("could not read file")
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, policy.MaxAttachmentBytes+1))
	if err != nil {
		return leave.Upload{}, fmt.Errorf("could not read file")
	}
	// The declared type is ignored; evidence is accepted on what the bytes are.
	contentType := http.DetectContentType(data)
	if !policy.AcceptedContentType(contentType) {
		return leave.Upload{}, fmt.Errorf("content is not a PDF or image")
	}
	return leave.Upload{
		Kind:        kind,
		FileName:    filepath.Base(header.Filename),
		ContentType: contentType,
		Data:        data,
	}, nil
}

type decisionRequest struct {
	Decision   leave.Decision `json:"decision"`
	Comments   string         `json:"comments"`
	Conditions string         `json:"conditions"`
}

func (p decisionRequest) input() leave.DecisionInput {
	return leave.DecisionInput{Decision: p.Decision, Comments: p.Comments, Conditions: p.Conditions}
}

type hrDecisionRequest struct {
	decisionRequest
	MedicalCertificateRequired      bool   `json:"medicalCertificateRequired"`
	ReturnToWorkCertificateRequired bool   `json:"returnToWorkCertificateRequired"`
	ReviewNotes                     string `json:"reviewNotes"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type overrideRequest struct {
	Reason         string `json:"reason"`
	NotifyBypassed bool   `json:"notifyBypassed"`
}

type directApprovalRequest struct {
	Reason            string `json:"reason"`
	SkipNotifications bool   `json:"skipNotifications"`
}

type escalateRequest struct {
	Reason     string                 `json:"reason"`
	EscalateTo leave.EscalationTarget `json:"escalateTo"`
}

type bulkRequest struct {
	LeaveIDs []string `json:"leaveIds"`
	Comments string   `json:"comments"`
}

type previewRequest struct {
	EmployeeID   string           `json:"employeeId"`
	LeaveType    string           `json:"leaveType"`
	StartDate    string           `json:"startDate"`
	EndDate      string           `json:"endDate"`
	IsPartialDay bool             `json:"isPartialDay"`
	TotalDays    *decimal.Decimal `json:"totalDays"`
	Urgency      leave.Urgency    `json:"urgency"`
}

type adjustRequest struct {
	EmployeeID string          `json:"employeeId"`
	Category   leave.Category  `json:"category"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
}
