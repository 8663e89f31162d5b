// Package live is the document store adapter: single-record reads and
// writes plus push subscriptions that deliver a fresh snapshot of a unit's
// requests after every change.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"barangay/api/internal/domain"
	"barangay/api/internal/store"
)

type Filter = store.RequestFilter

type Hub struct {
	repo     store.Repository
	notifier Notifier
	logger   *slog.Logger
}

func NewHub(repo store.Repository, notifier Notifier, logger *slog.Logger) *Hub {
	if notifier == nil {
		notifier = NewLocalNotifier()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{repo: repo, notifier: notifier, logger: logger}
}

// unavailable wraps backend failures. Not-found, conflicts and validation
// errors are answers, not outages, and pass through unchanged.
func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) || domain.IsConflict(err) || domain.IsValidation(err) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &domain.StoreUnavailableError{Op: op, Err: err}
}

func (h *Hub) Get(ctx context.Context, id string) (domain.Request, error) {
	req, err := h.repo.GetRequest(ctx, id)
	return req, unavailable("get request", err)
}

func (h *Hub) Snapshot(ctx context.Context, filter Filter) ([]domain.Request, error) {
	items, err := h.repo.ListRequests(ctx, filter)
	return items, unavailable("list requests", err)
}

func (h *Hub) Create(ctx context.Context, req domain.Request) error {
	if err := h.repo.InsertRequest(ctx, req); err != nil {
		return unavailable("create request", err)
	}
	h.publish(ctx, Change{UnitID: req.UnitID, RequestID: req.ID, Kind: ChangeCreated, Version: req.Version})
	return nil
}

// Update writes req if the stored version still equals expectedVersion and
// returns the record as stored.
func (h *Hub) Update(ctx context.Context, req domain.Request, expectedVersion int) (domain.Request, error) {
	if err := h.repo.UpdateRequest(ctx, req, expectedVersion); err != nil {
		return domain.Request{}, unavailable("update request", err)
	}
	stored := req.Clone()
	stored.Version = expectedVersion + 1
	h.publish(ctx, Change{UnitID: req.UnitID, RequestID: req.ID, Kind: ChangeUpdated, Version: stored.Version})
	return stored, nil
}

func (h *Hub) publish(ctx context.Context, change Change) {
	change.At = time.Now().UTC()
	if err := h.notifier.Publish(context.WithoutCancel(ctx), change); err != nil {
		h.logger.Warn("publish change failed", "unit_id", change.UnitID, "request_id", change.RequestID, "error", err)
	}
}

// Subscription delivers the latest snapshot for its filter. Only the most
// recent snapshot is kept; a slow reader skips intermediate ones. C is
// closed once the subscription ends.
type Subscription struct {
	C <-chan []domain.Request

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Close releases the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

// Subscribe requires filter.UnitID. The first snapshot is queued before
// Subscribe returns.
func (h *Hub) Subscribe(ctx context.Context, filter Filter) (*Subscription, error) {
	if filter.UnitID == "" {
		return nil, errors.New("subscribe: unit id is required")
	}
	subCtx, cancel := context.WithCancel(ctx)
	changes, stop, err := h.notifier.Listen(subCtx, filter.UnitID)
	if err != nil {
		cancel()
		return nil, unavailable("subscribe", err)
	}

	first, err := h.Snapshot(subCtx, filter)
	if err != nil {
		stop()
		cancel()
		return nil, err
	}

	box := newMailbox[[]domain.Request]()
	box.offer(first)
	sub := &Subscription{C: box.ch, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		defer close(box.ch)
		defer stop()
		for {
			select {
			case <-subCtx.Done():
				return
			case <-changes:
				items, err := h.Snapshot(subCtx, filter)
				if err != nil {
					if subCtx.Err() != nil {
						return
					}
					// keep the last good snapshot; the next change retries
					h.logger.Warn("refresh snapshot failed", "filter", Describe(filter), "error", err)
					continue
				}
				box.offer(items)
			}
		}
	}()
	return sub, nil
}

// Describe is used in log lines.
func Describe(filter Filter) string {
	return fmt.Sprintf("unit=%s type=%s statuses=%v", filter.UnitID, filter.CertificateType, filter.Statuses)
}
