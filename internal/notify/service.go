// Package notify tells requesters by email when their request is accepted
// or declined.
package notify

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"barangay/api/internal/domain"
)

var ErrNotConfigured = errors.New("email not configured")

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service sends status notices over SMTP.
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// Notice is a rendered status email.
type Notice struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type noticeData struct {
	UnitName        string
	RequesterName   string
	CertificateType string
	Accepted        bool
	Purpose         string
	RequestDate     string
}

// StatusNotice renders the email for a request that has just been accepted
// or declined. ok is false when the request has no address or its status
// is not one we notify about.
func StatusNotice(req domain.Request, unitName string) (Notice, bool, error) {
	to := strings.TrimSpace(req.RequesterEmail)
	if to == "" {
		return Notice{}, false, nil
	}
	if req.Status != domain.StatusAccepted && req.Status != domain.StatusDeclined {
		return Notice{}, false, nil
	}

	data := noticeData{
		UnitName:        unitName,
		RequesterName:   req.RequesterName,
		CertificateType: string(req.CertificateType),
		Accepted:        req.Status == domain.StatusAccepted,
		Purpose:         req.Purpose,
		RequestDate:     req.RequestDate.Format("January 2, 2006"),
	}
	html, err := render(data)
	if err != nil {
		return Notice{}, false, fmt.Errorf("render notice: %w", err)
	}

	subject := fmt.Sprintf("Your %s request was declined", req.CertificateType)
	text := fmt.Sprintf("Hi %s,\r\n\r\nYour request for a %s filed on %s was declined. Please visit the %s office for details.\r\n",
		req.RequesterName, req.CertificateType, data.RequestDate, unitName)
	if data.Accepted {
		subject = fmt.Sprintf("Your %s is ready", req.CertificateType)
		text = fmt.Sprintf("Hi %s,\r\n\r\nYour %s filed on %s has been approved and is ready for pickup at the %s office.\r\n",
			req.RequesterName, req.CertificateType, data.RequestDate, unitName)
	}
	return Notice{To: to, Subject: subject, Text: text, HTML: html}, true, nil
}

// Send delivers a notice as a multipart/alternative message.
func (s *Service) Send(n Notice) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	return s.send(s.server, s.auth, s.config.From, []string{n.To}, s.message(n))
}

func (s *Service) message(n Notice) []byte {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	boundary := "boundary-barangay"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", n.To)
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", n.Subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n", n.Text)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n", n.HTML)
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	return msg.Bytes()
}

// NotifyStatus renders and sends the notice for req. It returns false when
// nothing was sent.
func (s *Service) NotifyStatus(req domain.Request, unitName string) (bool, error) {
	if !s.IsConfigured() {
		return false, nil
	}
	notice, ok, err := StatusNotice(req, unitName)
	if err != nil || !ok {
		return false, err
	}
	if err := s.Send(notice); err != nil {
		return false, fmt.Errorf("send notice to %s: %w", notice.To, err)
	}
	return true, nil
}

var noticeTemplate = template.Must(template.New("notice").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Georgia, 'Times New Roman', serif; line-height: 1.6; color: #222; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #1d4e89; padding-bottom: 10px; margin-bottom: 20px; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header"><h1>{{.UnitName}}</h1></div>
    <p>Hi {{.RequesterName}},</p>
    {{if .Accepted}}
    <p>Your <strong>{{.CertificateType}}</strong> filed on {{.RequestDate}} has been approved and is ready for pickup.</p>
    <p>Purpose: {{.Purpose}}</p>
    {{else}}
    <p>Your request for a <strong>{{.CertificateType}}</strong> filed on {{.RequestDate}} was declined. Please visit the barangay hall for details.</p>
    {{end}}
    <div class="footer"><p>This is an automated message from the {{.UnitName}} records office.</p></div>
</body>
</html>`))

func render(data noticeData) (string, error) {
	var buf bytes.Buffer
	if err := noticeTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
