package partition

import (
	"sync"
	"time"

	"barangay/api/internal/domain"
)

type overlay struct {
	req     domain.Request
	expires time.Time
}

// Live holds the last snapshot applied for one (unit, certificate type)
// and any optimistic results not yet confirmed by a snapshot.
type Live struct {
	mu       sync.RWMutex
	unitID   string
	certType domain.CertificateType
	ttl      time.Duration
	now      func() time.Time

	snapshot []domain.Request
	overlays map[string]overlay
	views    Views
}

func NewLive(unitID string, certType domain.CertificateType, ttl time.Duration) *Live {
	return &Live{
		unitID:   unitID,
		certType: certType,
		ttl:      ttl,
		now:      time.Now,
		overlays: make(map[string]overlay),
		views:    Split(nil, certType),
	}
}

// Apply replaces the held snapshot and returns the views derived from it.
// Overlays are dropped once the snapshot carries their version or they
// expire.
func (l *Live) Apply(snapshot []domain.Request) Views {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.snapshot = make([]domain.Request, len(snapshot))
	for i, req := range snapshot {
		l.snapshot[i] = req.Clone()
	}
	l.reconcileLocked()
	return l.views
}

// Optimistic records a result the caller just persisted so readers see it
// before the next snapshot arrives.
func (l *Live) Optimistic(req domain.Request) Views {
	l.mu.Lock()
	defer l.mu.Unlock()

	if req.UnitID != l.unitID || (l.certType != "" && req.CertificateType != l.certType) {
		return l.views
	}
	l.overlays[req.ID] = overlay{req: req.Clone(), expires: l.now().Add(l.ttl)}
	l.reconcileLocked()
	return l.views
}

func (l *Live) Views() Views {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.views
}

// Pending reports how many overlays still wait for confirmation.
func (l *Live) Pending() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.overlays)
}

func (l *Live) reconcileLocked() {
	now := l.now()
	seen := make(map[string]bool, len(l.snapshot))
	merged := make([]domain.Request, 0, len(l.snapshot)+len(l.overlays))

	for _, req := range l.snapshot {
		seen[req.ID] = true
		o, ok := l.overlays[req.ID]
		switch {
		case !ok:
			merged = append(merged, req)
		case req.Version >= o.req.Version || now.After(o.expires):
			delete(l.overlays, req.ID)
			merged = append(merged, req)
		default:
			merged = append(merged, o.req)
		}
	}
	for id, o := range l.overlays {
		if seen[id] {
			continue
		}
		if now.After(o.expires) {
			delete(l.overlays, id)
			continue
		}
		merged = append(merged, o.req)
	}
	l.views = Split(merged, l.certType)
}

type boardKey struct {
	unitID   string
	certType domain.CertificateType
}

// Boards keeps one Live per (unit, certificate type) so a transition made
// through the API shows up on every open view of that unit.
type Boards struct {
	mu     sync.Mutex
	ttl    time.Duration
	boards map[boardKey]*Live
	refs   map[boardKey]int
}

func NewBoards(ttl time.Duration) *Boards {
	return &Boards{ttl: ttl, boards: make(map[boardKey]*Live), refs: make(map[boardKey]int)}
}

// Acquire returns the shared Live for the key. Call the release func when
// the view goes away.
func (b *Boards) Acquire(unitID string, certType domain.CertificateType) (*Live, func()) {
	key := boardKey{unitID: unitID, certType: certType}
	b.mu.Lock()
	defer b.mu.Unlock()

	live, ok := b.boards[key]
	if !ok {
		live = NewLive(unitID, certType, b.ttl)
		b.boards[key] = live
	}
	b.refs[key]++

	var once sync.Once
	return live, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.refs[key]--
			if b.refs[key] <= 0 {
				delete(b.refs, key)
				delete(b.boards, key)
			}
		})
	}
}

// Optimistic forwards req to every open board it belongs to.
func (b *Boards) Optimistic(req domain.Request) {
	b.mu.Lock()
	targets := make([]*Live, 0, 2)
	for key, live := range b.boards {
		if key.unitID == req.UnitID && (key.certType == "" || key.certType == req.CertificateType) {
			targets = append(targets, live)
		}
	}
	b.mu.Unlock()

	for _, live := range targets {
		live.Optimistic(req)
	}
}

func (b *Boards) Open() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.boards)
}
