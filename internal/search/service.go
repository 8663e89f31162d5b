package search

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"barangay/api/internal/domain"
	"barangay/api/internal/store"
)

// Service is the facade that tries the index first and falls back to a
// database-backed searcher.
type Service struct {
	index    Index
	fallback Searcher
	logger   *slog.Logger
	pending  sync.WaitGroup
}

// NewService creates a search service. index may be nil if Meilisearch is
// not configured.
func NewService(index Index, fallback Searcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{index: index, fallback: fallback, logger: logger}
}

// Search tries the index if healthy, otherwise falls back.
func (s *Service) Search(ctx context.Context, q Query) Response {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return Response{Results: []Result{}, Query: q.Text}
	}
	if s.index != nil && s.index.Healthy() {
		results, total, err := s.index.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("search index error, falling back", "error", err)
	}
	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error("fallback search failed", "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexRequest indexes a request (fire-and-forget).
func (s *Service) IndexRequest(req domain.Request) {
	if s.index == nil || !s.index.Healthy() {
		return
	}
	record := RecordFromRequest(req)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.index.IndexRequests(context.Background(), []RequestRecord{record}); err != nil {
			s.logger.Warn("index request", "request_id", record.ID, "error", err)
		}
	}()
}

// Wait blocks until in-flight index writes have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// ReindexAll reads every request from the repository and pushes it to
// the index.
func (s *Service) ReindexAll(ctx context.Context, lister Lister) error {
	if s.index == nil || !s.index.Healthy() {
		return nil
	}
	requests, err := lister.ListRequests(ctx, store.RequestFilter{})
	if err != nil {
		return err
	}
	records := make([]RequestRecord, 0, len(requests))
	for _, req := range requests {
		records = append(records, RecordFromRequest(req))
	}
	if err := s.index.IndexRequests(ctx, records); err != nil {
		return err
	}
	s.logger.Info("reindexed requests", "count", len(records))
	return nil
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
