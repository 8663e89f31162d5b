package domain

import (
	"strings"
	"time"
)

type Official struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Position      string    `json:"position"`
	ContactNumber string    `json:"contactNumber,omitempty"`
	Email         string    `json:"email,omitempty"`
	TermStart     time.Time `json:"termStart"`
	TermEnd       time.Time `json:"termEnd"`
	UnitID        string    `json:"administrativeUnitId"`
}

// Validate checks the fields an administrator must supply.
func (o Official) Validate() error {
	fields := map[string]string{}
	if strings.TrimSpace(o.Name) == "" {
		fields["name"] = "name is required"
	}
	if strings.TrimSpace(o.Position) == "" {
		fields["position"] = "position is required"
	}
	if o.TermStart.IsZero() {
		fields["termStart"] = "term start is required"
	}
	if o.TermEnd.IsZero() {
		fields["termEnd"] = "term end is required"
	}
	if !o.TermStart.IsZero() && !o.TermEnd.IsZero() && o.TermEnd.Before(o.TermStart) {
		fields["termEnd"] = "term end must not be before term start"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Unit is the profile of an administrative unit printed on letterheads.
type Unit struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Municipality  string `json:"municipality"`
	Province      string `json:"province"`
	AddressLine   string `json:"addressLine"`
	ContactNumber string `json:"contactNumber"`
	Email         string `json:"email"`
	LogoObjectKey string `json:"logoObjectKey,omitempty"`
}
