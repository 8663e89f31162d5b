package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"barangay/api/internal/domain"
)

func seedRequest(t *testing.T, s *MemoryStore, id string, status domain.Status, day int) domain.Request {
	t.Helper()
	req := domain.Request{
		ID:              id,
		UnitID:          "u1",
		RequesterName:   "Maria Santos",
		CertificateType: domain.CertificateClearance,
		Status:          status,
		Version:         1,
		RequestDate:     time.Date(2026, 2, day, 0, 0, 0, 0, time.UTC),
	}
	if err := s.InsertRequest(context.Background(), req); err != nil {
		t.Fatalf("InsertRequest() error = %v", err)
	}
	return req
}

func TestMemoryUpdateRequestBumpsVersion(t *testing.T) {
	s := NewMemoryStore()
	req := seedRequest(t, s, "r1", domain.StatusPending, 1)

	next := req.Clone()
	next.Status = domain.StatusProcessing
	next.Processed = domain.NewStamp("admin", time.Now())
	if err := s.UpdateRequest(context.Background(), next, 1); err != nil {
		t.Fatalf("UpdateRequest() error = %v", err)
	}

	stored, err := s.GetRequest(context.Background(), "r1")
	if err != nil {
		t.Fatalf("GetRequest() error = %v", err)
	}
	if stored.Version != 2 || stored.Status != domain.StatusProcessing || stored.Processed == nil {
		t.Fatalf("unexpected stored request %+v", stored)
	}
}

func TestMemoryUpdateRequestRejectsStaleVersion(t *testing.T) {
	s := NewMemoryStore()
	req := seedRequest(t, s, "r1", domain.StatusPending, 1)
	req.Status = domain.StatusDeclined
	if err := s.UpdateRequest(context.Background(), req, 1); err != nil {
		t.Fatalf("first update: %v", err)
	}

	err := s.UpdateRequest(context.Background(), req, 1)
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("UpdateRequest() error = %v, want ConflictError", err)
	}
	if conflict.Actual != 2 {
		t.Fatalf("conflict actual = %d", conflict.Actual)
	}
}

func TestMemoryUpdateMissingRequest(t *testing.T) {
	s := NewMemoryStore()
	err := s.UpdateRequest(context.Background(), domain.Request{ID: "nope"}, 1)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateRequest() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryListRequestsNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	seedRequest(t, s, "old", domain.StatusPending, 1)
	seedRequest(t, s, "new", domain.StatusPending, 9)
	seedRequest(t, s, "done", domain.StatusAccepted, 5)

	items, err := s.ListRequests(context.Background(), RequestFilter{UnitID: "u1", Statuses: []domain.Status{domain.StatusPending}})
	if err != nil {
		t.Fatalf("ListRequests() error = %v", err)
	}
	if len(items) != 2 || items[0].ID != "new" || items[1].ID != "old" {
		t.Fatalf("unexpected order %+v", items)
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	seedRequest(t, s, "r1", domain.StatusPending, 1)

	got, _ := s.GetRequest(context.Background(), "r1")
	got.Status = domain.StatusAccepted

	again, _ := s.GetRequest(context.Background(), "r1")
	if again.Status != domain.StatusPending {
		t.Fatal("mutating a returned request changed the store")
	}
}

func TestMemoryOfficialsAndUnits(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if _, err := s.GetUnit(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetUnit() error = %v", err)
	}
	if err := s.UpsertUnit(ctx, domain.Unit{ID: "u1", Name: "San Roque"}); err != nil {
		t.Fatal(err)
	}
	unit, err := s.GetUnit(ctx, "u1")
	if err != nil || unit.Name != "San Roque" {
		t.Fatalf("GetUnit() = %+v, %v", unit, err)
	}

	start := time.Date(2023, 11, 30, 0, 0, 0, 0, time.UTC)
	_ = s.InsertOfficial(ctx, domain.Official{ID: "o1", UnitID: "u1", TermStart: start})
	_ = s.InsertOfficial(ctx, domain.Official{ID: "o2", UnitID: "u1", TermStart: start.AddDate(1, 0, 0)})
	_ = s.InsertOfficial(ctx, domain.Official{ID: "o3", UnitID: "u2", TermStart: start})

	officials, err := s.ListOfficials(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(officials) != 2 || officials[0].ID != "o2" {
		t.Fatalf("unexpected officials %+v", officials)
	}
}
