package roster

import (
	"context"
	"fmt"
	"sort"
	"time"

	"barangay/api/internal/domain"
)

// Entry is one line of the resolved roster. Official is nil for vacancies.
type Entry struct {
	Position      string           `json:"position"`
	Name          string           `json:"name"`
	IsPlaceholder bool             `json:"isPlaceholder"`
	MatchedBy     string           `json:"matchedBy,omitempty"`
	Official      *domain.Official `json:"official,omitempty"`
}

// OfficialSource is the slice of the repository the resolver reads.
type OfficialSource interface {
	ListOfficials(ctx context.Context, unitID string) ([]domain.Official, error)
}

type Resolver struct {
	source    OfficialSource
	rules     []MatchRule
	positions []string
}

type Option func(*Resolver)

func WithRules(rules ...MatchRule) Option {
	return func(r *Resolver) { r.rules = rules }
}

func WithPositions(positions []string) Option {
	return func(r *Resolver) { r.positions = positions }
}

func NewResolver(source OfficialSource, opts ...Option) *Resolver {
	r := &Resolver{
		source:    source,
		rules:     DefaultRules(),
		positions: CanonicalPositions(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve loads the unit's officials and assigns them to the canonical
// positions as of the given date. The only error is a failed load.
func (r *Resolver) Resolve(ctx context.Context, unitID string, asOf time.Time) ([]Entry, error) {
	officials, err := r.source.ListOfficials(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("list officials for %s: %w", unitID, err)
	}
	return Assign(officials, asOf, r.positions, r.rules), nil
}

// IsActive reports whether the official's term has not ended before asOf.
// Both dates are compared at day granularity.
func IsActive(o domain.Official, asOf time.Time) bool {
	return !dateOnly(o.TermEnd).Before(dateOnly(asOf))
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Assign maps active officials onto positions, one entry per position in
// order. When several officials match a position the strongest rule wins,
// then the most recent term start, then the lowest id. One official may
// fill more than one position.
func Assign(officials []domain.Official, asOf time.Time, positions []string, rules []MatchRule) []Entry {
	active := make([]domain.Official, 0, len(officials))
	for _, o := range officials {
		if IsActive(o, asOf) {
			active = append(active, o)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if !active[i].TermStart.Equal(active[j].TermStart) {
			return active[i].TermStart.After(active[j].TermStart)
		}
		return active[i].ID < active[j].ID
	})

	entries := make([]Entry, 0, len(positions))
	for _, position := range positions {
		entries = append(entries, assignOne(position, active, rules))
	}
	return entries
}

// assignOne expects active already in tie-break order, so the first match
// of the strongest matching rule is the winner.
func assignOne(position string, active []domain.Official, rules []MatchRule) Entry {
	for _, rule := range rules {
		for i := range active {
			if rule.Match(position, active[i].Position) {
				official := active[i]
				return Entry{
					Position:  position,
					Name:      official.Name,
					MatchedBy: rule.Name(),
					Official:  &official,
				}
			}
		}
	}
	return Entry{Position: position, Name: VacantName, IsPlaceholder: true}
}

// Holder returns the entry for position, or a vacancy when the roster does
// not list it.
func Holder(entries []Entry, position string) Entry {
	for _, e := range entries {
		if (ExactRule{}).Match(e.Position, position) {
			return e
		}
	}
	return Entry{Position: position, Name: VacantName, IsPlaceholder: true}
}

// Unplaced lists active officials that hold no entry: either their title
// matched no position, or another official won the position they matched.
// They are left off the printed roster.
func Unplaced(officials []domain.Official, asOf time.Time, entries []Entry) []domain.Official {
	placed := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Official != nil {
			placed[e.Official.ID] = true
		}
	}
	out := make([]domain.Official, 0)
	for _, o := range officials {
		if IsActive(o, asOf) && !placed[o.ID] {
			out = append(out, o)
		}
	}
	return out
}
