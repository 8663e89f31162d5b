package export

import (
	"bytes"
	"embed"
	"encoding/base64"
	"html/template"
	"strconv"
	"strings"
	"time"

	"barangay/api/internal/certificate"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	certificateTemplate *template.Template
	reportTemplate      *template.Template
)

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}
	certificateTemplate = template.Must(template.New("certificate.html").Funcs(funcMap).ParseFS(templateFS, "templates/certificate.html"))
	reportTemplate = template.Must(template.New("report.html").Funcs(funcMap).ParseFS(templateFS, "templates/report.html"))
}

// CertificateLine is one body line with the extra word spacing that makes
// it span the content width.
type CertificateLine struct {
	Text  string
	Extra string
}

// CertificateData holds data for certificate template rendering
type CertificateData struct {
	RequestID    string
	Title        string
	Salutation   string
	FontSize     string
	ContentWidth string
	LogoURI      template.URL
	Letterhead   certificate.Letterhead
	Officials    certificate.OfficialsBlock
	Lines        []CertificateLine
	Signature    certificate.Signature
	Warnings     []string
}

func points(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func certificateData(draft certificate.Draft) CertificateData {
	para := draft.Body.Paragraph
	data := CertificateData{
		RequestID:    draft.RequestID,
		Title:        draft.Body.Title,
		Salutation:   draft.Body.Salutation,
		FontSize:     points(para.FontSize),
		ContentWidth: points(para.Width),
		Letterhead:   draft.Letterhead,
		Officials:    draft.Officials,
		Signature:    draft.Signature,
		Warnings:     draft.Warnings,
		Lines:        make([]CertificateLine, len(para.Lines)),
	}
	for i, line := range para.Lines {
		data.Lines[i] = CertificateLine{Text: line.Text(), Extra: points(para.ExtraSpacing(i))}
	}
	if logo := draft.Letterhead.Logo; logo != nil && len(logo.Data) > 0 {
		contentType := logo.ContentType
		if contentType == "" {
			contentType = "image/png"
		}
		data.LogoURI = template.URL("data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(logo.Data))
	}
	return data
}

// RenderCertificateHTML renders a draft as a standalone HTML page.
func RenderCertificateHTML(draft certificate.Draft) (string, error) {
	var buf bytes.Buffer
	if err := certificateTemplate.Execute(&buf, certificateData(draft)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ReportData holds data for report template rendering
type ReportData struct {
	Title       string
	UnitName    string
	GeneratedAt time.Time
	Columns     []string
	Rows        [][]string
	AutoPrint   bool
}

func RenderReportHTML(data ReportData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
