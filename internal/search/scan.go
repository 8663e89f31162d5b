package search

import (
	"context"
	"fmt"
	"strings"

	"barangay/api/internal/domain"
	"barangay/api/internal/store"
)

// Lister is the slice of the repository ScanSearch needs.
type Lister interface {
	ListRequests(ctx context.Context, filter store.RequestFilter) ([]domain.Request, error)
}

// ScanSearch matches requests by case-insensitive substring over the
// listed records. It backs search when neither Meilisearch nor Postgres
// is configured.
type ScanSearch struct {
	lister Lister
}

func NewScanSearch(lister Lister) *ScanSearch {
	return &ScanSearch{lister: lister}
}

func (s *ScanSearch) Healthy() bool { return true }

func (s *ScanSearch) Search(ctx context.Context, q Query) ([]Result, int, error) {
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	if needle == "" {
		return nil, 0, nil
	}
	filter := store.RequestFilter{UnitID: q.UnitID, CertificateType: q.CertificateType}
	if q.Status != "" {
		filter.Statuses = []domain.Status{q.Status}
	}
	requests, err := s.lister.ListRequests(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("scan search: %w", err)
	}

	matched := make([]Result, 0)
	for _, req := range requests {
		if !containsFold(needle, req.RequesterName, req.Purpose, req.Address) {
			continue
		}
		matched = append(matched, RecordFromRequest(req).result(req.Purpose))
	}
	total := len(matched)

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	start := min(max(q.Offset, 0), total)
	end := min(start+limit, total)
	return matched[start:end], total, nil
}

func containsFold(needle string, fields ...string) bool {
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}
