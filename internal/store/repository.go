package store

import (
	"context"
	"errors"

	"barangay/api/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrCorruptRecord = errors.New("corrupt record")
)

// RequestFilter is a conjunction of equality filters. Zero values match
// everything.
type RequestFilter struct {
	UnitID          string
	CertificateType domain.CertificateType
	Statuses        []domain.Status
}

func (f RequestFilter) Matches(req domain.Request) bool {
	if f.UnitID != "" && req.UnitID != f.UnitID {
		return false
	}
	if f.CertificateType != "" && req.CertificateType != f.CertificateType {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, status := range f.Statuses {
		if req.Status == status {
			return true
		}
	}
	return false
}

// Repository is the persistence contract shared by the Postgres and
// in-memory stores.
type Repository interface {
	ListRequests(ctx context.Context, filter RequestFilter) ([]domain.Request, error)
	GetRequest(ctx context.Context, id string) (domain.Request, error)
	InsertRequest(ctx context.Context, req domain.Request) error
	// UpdateRequest writes req only if the stored version still equals
	// expectedVersion; the stored version becomes expectedVersion+1.
	UpdateRequest(ctx context.Context, req domain.Request, expectedVersion int) error
	ListOfficials(ctx context.Context, unitID string) ([]domain.Official, error)
	InsertOfficial(ctx context.Context, official domain.Official) error
	GetUnit(ctx context.Context, unitID string) (domain.Unit, error)
	UpsertUnit(ctx context.Context, unit domain.Unit) error
	Ping(ctx context.Context) error
}
