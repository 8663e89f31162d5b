package store

import (
	"database/sql"
	"fmt"
	"time"

	"barangay/api/internal/domain"
)

// requestRow mirrors the requests table. Status and certificate type come
// back as free text and are only trusted after coerce succeeds.
type requestRow struct {
	ID              string
	UnitID          string
	RequesterName   string
	RequesterEmail  string
	Age             int
	CivilStatus     string
	Address         string
	Purpose         string
	CertificateType string
	Status          string
	Source          string
	Version         int
	RequestDate     time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ProcessedBy     sql.NullString
	ProcessedAt     sql.NullTime
	AcceptedBy      sql.NullString
	AcceptedAt      sql.NullTime
	DeclinedBy      sql.NullString
	DeclinedAt      sql.NullTime
	RestoredBy      sql.NullString
	RestoredAt      sql.NullTime
}

func (r requestRow) coerce() (domain.Request, error) {
	status, err := domain.ParseStatus(r.Status)
	if err != nil {
		return domain.Request{}, fmt.Errorf("%w: request %s: %v", ErrCorruptRecord, r.ID, err)
	}
	certType, err := domain.ParseCertificateType(r.CertificateType)
	if err != nil {
		return domain.Request{}, fmt.Errorf("%w: request %s: %v", ErrCorruptRecord, r.ID, err)
	}
	source := domain.Source(r.Source)
	if source != domain.SourceOnline {
		source = domain.SourceWalkIn
	}
	return domain.Request{
		ID:              r.ID,
		RequesterName:   r.RequesterName,
		RequesterEmail:  r.RequesterEmail,
		Age:             r.Age,
		CivilStatus:     r.CivilStatus,
		Address:         r.Address,
		Purpose:         r.Purpose,
		CertificateType: certType,
		UnitID:          r.UnitID,
		Status:          status,
		Source:          source,
		Version:         r.Version,
		RequestDate:     r.RequestDate,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		Processed:       stampFrom(r.ProcessedBy, r.ProcessedAt),
		Accepted:        stampFrom(r.AcceptedBy, r.AcceptedAt),
		Declined:        stampFrom(r.DeclinedBy, r.DeclinedAt),
		Restored:        stampFrom(r.RestoredBy, r.RestoredAt),
	}, nil
}

// stampFrom keeps the pair invariant: half a stamp is treated as none.
func stampFrom(by sql.NullString, at sql.NullTime) *domain.Stamp {
	if !by.Valid || !at.Valid {
		return nil
	}
	return &domain.Stamp{By: by.String, At: at.Time}
}

func stampBy(s *domain.Stamp) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: s.By, Valid: true}
}

func stampAt(s *domain.Stamp) sql.NullTime {
	if s == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: s.At, Valid: true}
}
