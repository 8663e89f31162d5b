// Package search finds requests by requester name, purpose or address.
package search

import (
	"context"
	"time"

	"barangay/api/internal/domain"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID              string `json:"id"`
	UnitID          string `json:"administrativeUnitId"`
	RequesterName   string `json:"requesterName"`
	Purpose         string `json:"purpose"`
	CertificateType string `json:"certificateType"`
	Status          string `json:"status"`
	RequestDate     string `json:"requestDate"`
	Snippet         string `json:"snippet"`
}

// Query describes a search request. UnitID is always set by the caller;
// requests never leak across units.
type Query struct {
	Text            string
	UnitID          string
	CertificateType domain.CertificateType
	Status          domain.Status
	Limit           int
	Offset          int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Index is a searcher that requests can be pushed into.
type Index interface {
	Searcher
	IndexRequests(ctx context.Context, records []RequestRecord) error
}

// RequestRecord is the data we index for a request.
type RequestRecord struct {
	ID              string `json:"id"`
	UnitID          string `json:"unitId"`
	RequesterName   string `json:"requesterName"`
	Purpose         string `json:"purpose"`
	Address         string `json:"address"`
	CertificateType string `json:"certificateType"`
	Status          string `json:"status"`
	RequestDate     string `json:"requestDate"`
	RequestDateUnix int64  `json:"requestDateUnix"`
}

func RecordFromRequest(req domain.Request) RequestRecord {
	return RequestRecord{
		ID:              req.ID,
		UnitID:          req.UnitID,
		RequesterName:   req.RequesterName,
		Purpose:         req.Purpose,
		Address:         req.Address,
		CertificateType: string(req.CertificateType),
		Status:          string(req.Status),
		RequestDate:     req.RequestDate.Format(time.DateOnly),
		RequestDateUnix: req.RequestDate.Unix(),
	}
}

func (r RequestRecord) result(snippet string) Result {
	return Result{
		ID:              r.ID,
		UnitID:          r.UnitID,
		RequesterName:   r.RequesterName,
		Purpose:         r.Purpose,
		CertificateType: r.CertificateType,
		Status:          r.Status,
		RequestDate:     r.RequestDate,
		Snippet:         snippet,
	}
}
