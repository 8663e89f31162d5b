package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"barangay/api/internal/certificate"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeHTML = "text/html; charset=utf-8"
	mimeJSON = "application/json"
)

// Service turns drafts and reports into downloadable artifacts.
type Service struct {
	toPDF  func(ctx context.Context, html string) ([]byte, error)
	toDOCX func(ctx context.Context, html string) ([]byte, error)
	now    func() time.Time
}

// NewService creates a new export service
func NewService() *Service {
	return &Service{toPDF: htmlToPDF, toDOCX: htmlToDOCX, now: time.Now}
}

// CertificateFilename is "<type slug>-<request id>".
func CertificateFilename(draft certificate.Draft) string {
	return sanitizeFilename(draft.CertificateType.Slug() + " " + draft.RequestID)
}

// Certificate renders draft in the requested format.
func (s *Service) Certificate(ctx context.Context, draft certificate.Draft, format Format) (*Result, error) {
	name := CertificateFilename(draft)
	if format == FormatJSON {
		payload, err := json.MarshalIndent(draft, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode draft: %w", err)
		}
		return &Result{Data: payload, Filename: name + ".json", MimeType: mimeJSON}, nil
	}

	html, err := RenderCertificateHTML(draft)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	return s.fromHTML(ctx, html, name, format)
}

// Report renders a printable table. HTML reports open the print dialog on
// load.
func (s *Service) Report(ctx context.Context, report Report, format Format) (*Result, error) {
	generated := report.GeneratedAt
	if generated.IsZero() {
		generated = s.now()
	}
	html, err := RenderReportHTML(ReportData{
		Title:       report.Title,
		UnitName:    report.UnitName,
		GeneratedAt: generated,
		Columns:     report.Columns,
		Rows:        report.Rows,
		AutoPrint:   format == FormatHTML,
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	return s.fromHTML(ctx, html, sanitizeFilename(report.Title), format)
}

func (s *Service) fromHTML(ctx context.Context, html, name string, format Format) (*Result, error) {
	switch format {
	case FormatHTML:
		return &Result{Data: []byte(html), Filename: name + ".html", MimeType: mimeHTML}, nil
	case FormatPDF:
		data, err := s.toPDF(ctx, html)
		if err != nil {
			return nil, err
		}
		return &Result{Data: data, Filename: name + ".pdf", MimeType: mimePDF}, nil
	case FormatDOCX:
		data, err := s.toDOCX(ctx, html)
		if err != nil {
			return nil, err
		}
		return &Result{Data: data, Filename: name + ".docx", MimeType: mimeDOCX}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}
