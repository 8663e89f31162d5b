package notify

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"barangay/api/internal/domain"
)

func configured() Config {
	return Config{Host: "smtp.example.com", Port: "587", From: "records@example.com", FromName: "Records Office"}
}

func request(status domain.Status) domain.Request {
	return domain.Request{
		ID:              "r1",
		RequesterName:   "Maria Santos",
		RequesterEmail:  "maria@example.com",
		CertificateType: domain.CertificateIndigency,
		Purpose:         "scholarship",
		Status:          status,
		RequestDate:     time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC),
	}
}

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{name: "empty config", config: Config{}, expected: false},
		{name: "missing host", config: Config{Port: "587", From: "a@example.com"}, expected: false},
		{name: "missing from", config: Config{Host: "smtp.example.com", Port: "587"}, expected: false},
		{name: "fully configured", config: configured(), expected: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewService(tt.config).IsConfigured(); got != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestStatusNotice(t *testing.T) {
	notice, ok, err := StatusNotice(request(domain.StatusAccepted), "Barangay San Isidro")
	if err != nil || !ok {
		t.Fatalf("StatusNotice() = %v, %v", ok, err)
	}
	if notice.To != "maria@example.com" {
		t.Errorf("To = %q", notice.To)
	}
	if !strings.Contains(notice.Subject, "is ready") {
		t.Errorf("Subject = %q", notice.Subject)
	}
	if !strings.Contains(notice.HTML, "October 5, 2026") || !strings.Contains(notice.HTML, "approved") {
		t.Errorf("HTML missing details: %s", notice.HTML)
	}

	declined, ok, _ := StatusNotice(request(domain.StatusDeclined), "Barangay San Isidro")
	if !ok || !strings.Contains(declined.Subject, "declined") {
		t.Errorf("declined notice = %+v", declined)
	}

	if _, ok, _ := StatusNotice(request(domain.StatusProcessing), "x"); ok {
		t.Error("processing requests must not be notified")
	}
	noEmail := request(domain.StatusAccepted)
	noEmail.RequesterEmail = " "
	if _, ok, _ := StatusNotice(noEmail, "x"); ok {
		t.Error("requests without email must not be notified")
	}
}

func TestNotifyStatusSendsMultipart(t *testing.T) {
	svc := NewService(configured())
	var gotTo []string
	var gotMsg string
	svc.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		if addr != "smtp.example.com:587" || from != "records@example.com" {
			t.Errorf("addr=%q from=%q", addr, from)
		}
		gotTo = to
		gotMsg = string(msg)
		return nil
	}

	sent, err := svc.NotifyStatus(request(domain.StatusAccepted), "Barangay San Isidro")
	if err != nil || !sent {
		t.Fatalf("NotifyStatus() = %v, %v", sent, err)
	}
	if len(gotTo) != 1 || gotTo[0] != "maria@example.com" {
		t.Fatalf("to = %v", gotTo)
	}
	for _, want := range []string{"From: Records Office <records@example.com>", "multipart/alternative", "text/plain", "text/html", "--boundary-barangay--"} {
		if !strings.Contains(gotMsg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestNotifyStatusDisabledOrFailing(t *testing.T) {
	sent, err := NewService(Config{}).NotifyStatus(request(domain.StatusAccepted), "x")
	if sent || err != nil {
		t.Fatalf("unconfigured NotifyStatus() = %v, %v", sent, err)
	}
	if err := NewService(Config{}).Send(Notice{To: "a@example.com"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Send() error = %v", err)
	}

	svc := NewService(configured())
	svc.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("relay denied") }
	if _, err := svc.NotifyStatus(request(domain.StatusDeclined), "x"); err == nil {
		t.Fatal("expected send error")
	}
}
