// Package domain holds the closed, well-typed records the request
// lifecycle operates on, together with the error taxonomy shared by every
// layer that touches them.
package domain

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusAccepted   Status = "accepted"
	StatusDeclined   Status = "declined"
)

var statuses = []Status{StatusPending, StatusProcessing, StatusAccepted, StatusDeclined}

// Statuses lists every status a request can hold.
func Statuses() []Status {
	out := make([]Status, len(statuses))
	copy(out, statuses)
	return out
}

// ParseStatus accepts the stored spelling of a status in any letter case.
func ParseStatus(value string) (Status, error) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range statuses {
		if normalized == status {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown request status %q", value)
}

func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

// Label is the human form shown on screens and reports.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusProcessing:
		return "Processing"
	case StatusAccepted:
		return "Accepted"
	case StatusDeclined:
		return "Declined"
	default:
		return string(s)
	}
}

type CertificateType string

const (
	CertificateClearance CertificateType = "Barangay Clearance"
	CertificateIndigency CertificateType = "Certificate of Indigency"
	CertificateResidency CertificateType = "Certificate of Residency"
)

var certificateAliases = map[string]CertificateType{
	"barangay clearance":       CertificateClearance,
	"clearance":                CertificateClearance,
	"certificate of indigency": CertificateIndigency,
	"indigency":                CertificateIndigency,
	"certificate of residency": CertificateResidency,
	"residency":                CertificateResidency,
}

// CertificateTypes lists the supported certificate types in display order.
func CertificateTypes() []CertificateType {
	return []CertificateType{CertificateClearance, CertificateIndigency, CertificateResidency}
}

func ParseCertificateType(value string) (CertificateType, error) {
	key := strings.ToLower(strings.Join(strings.Fields(value), " "))
	if certType, ok := certificateAliases[key]; ok {
		return certType, nil
	}
	return "", fmt.Errorf("unknown certificate type %q", value)
}

// Slug is the short identifier used for filenames and URLs.
func (c CertificateType) Slug() string {
	switch c {
	case CertificateClearance:
		return "clearance"
	case CertificateIndigency:
		return "indigency"
	case CertificateResidency:
		return "residency"
	default:
		return "certificate"
	}
}

type Source string

const (
	SourceWalkIn Source = "walk_in"
	SourceOnline Source = "online"
)

// Stamp records who performed a transition and when. A transition either
// carries a full stamp or none at all.
type Stamp struct {
	By string    `json:"by"`
	At time.Time `json:"at"`
}

func NewStamp(by string, at time.Time) *Stamp {
	return &Stamp{By: by, At: at.UTC()}
}

type Request struct {
	ID              string          `json:"id"`
	RequesterName   string          `json:"requesterName"`
	RequesterEmail  string          `json:"requesterEmail,omitempty"`
	Age             int             `json:"age"`
	CivilStatus     string          `json:"civilStatus"`
	Address         string          `json:"address,omitempty"`
	Purpose         string          `json:"purpose"`
	CertificateType CertificateType `json:"certificateType"`
	UnitID          string          `json:"administrativeUnitId"`
	Status          Status          `json:"status"`
	Source          Source          `json:"source"`
	Version         int             `json:"version"`
	RequestDate     time.Time       `json:"requestDate"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	Processed       *Stamp          `json:"processed"`
	Accepted        *Stamp          `json:"accepted"`
	Declined        *Stamp          `json:"declined"`
	Restored        *Stamp          `json:"restored"`
}

// Clone returns a deep copy so stamp pointers are never shared between the
// stored record and a proposed transition result.
func (r Request) Clone() Request {
	out := r
	out.Processed = cloneStamp(r.Processed)
	out.Accepted = cloneStamp(r.Accepted)
	out.Declined = cloneStamp(r.Declined)
	out.Restored = cloneStamp(r.Restored)
	return out
}

func cloneStamp(s *Stamp) *Stamp {
	if s == nil {
		return nil
	}
	copied := *s
	return &copied
}

// Actor is whoever asks for a mutation. Role is one of the rbac roles.
type Actor struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	UnitID string `json:"unitId"`
}
