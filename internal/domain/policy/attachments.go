package policy

import (
	"fmt"
	"strings"

	"hrflow/internal/domain/apperr"
)

type AttachmentKind string

const (
	AttachmentMedicalCertificate AttachmentKind = "medical_certificate"
	AttachmentSupportingDocument AttachmentKind = "supporting_document"
)

const (
	MaxAttachmentBytes     int64 = 5 * 1024 * 1024
	MaxMedicalCertificates       = 1
	MaxSupportingDocuments       = 3
)

type AttachmentMeta struct {
	Kind        AttachmentKind
	FileName    string
	ContentType string
	Size        int64
}

// AcceptedContentType allows PDF and any image type.
func AcceptedContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	return ct == "application/pdf" || strings.HasPrefix(ct, "image/")
}

func ValidateAttachments(files []AttachmentMeta) error {
	verr := &apperr.ValidationError{}
	counts := map[AttachmentKind]int{}
	for _, f := range files {
		field := attachmentField(f.Kind)
		if field == "" {
			verr.Add("attachments", fmt.Sprintf("unknown attachment kind %q", f.Kind))
			continue
		}
		counts[f.Kind]++
		if !AcceptedContentType(f.ContentType) {
			verr.Add(field, fmt.Sprintf("%s must be a PDF or image", f.FileName))
		}
		if f.Size <= 0 {
			verr.Add(field, fmt.Sprintf("%s is empty", f.FileName))
		}
		if f.Size > MaxAttachmentBytes {
			verr.Add(field, fmt.Sprintf("%s exceeds the 5MB limit", f.FileName))
		}
	}
	if counts[AttachmentMedicalCertificate] > MaxMedicalCertificates {
		verr.Add("medicalCertificate", fmt.Sprintf("at most %d file allowed", MaxMedicalCertificates))
	}
	if counts[AttachmentSupportingDocument] > MaxSupportingDocuments {
		verr.Add("supportingDocuments", fmt.Sprintf("at most %d files allowed", MaxSupportingDocuments))
	}
	return verr.OrNil()
}

func attachmentField(kind AttachmentKind) string {
	switch kind {
	case AttachmentMedicalCertificate:
		return "medicalCertificate"
	case AttachmentSupportingDocument:
		return "supportingDocuments"
	default:
		return ""
	}
}
