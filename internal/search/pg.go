package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PgSearch implements Searcher using PostgreSQL full-text search as a
// fallback, with a prefix match on the requester name for partial input.
type PgSearch struct {
	db *sql.DB
}

func NewPgSearch(db *sql.DB) *PgSearch {
	return &PgSearch{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgSearch) Healthy() bool {
	return true
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (p *PgSearch) Search(ctx context.Context, q Query) ([]Result, int, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, 0, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('simple', $2)"
	where := []string{"r.unit_id = $1", fmt.Sprintf("(r.fts @@ %s OR r.requester_name ILIKE $3)", tsQuery)}
	args := []any{q.UnitID, text, "%" + escapeLike(text) + "%"}
	if q.CertificateType != "" {
		args = append(args, string(q.CertificateType))
		where = append(where, fmt.Sprintf("r.certificate_type = $%d", len(args)))
	}
	if q.Status != "" {
		args = append(args, string(q.Status))
		where = append(where, fmt.Sprintf("LOWER(r.status) = $%d", len(args)))
	}
	whereSQL := strings.Join(where, " AND ")

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM requests r WHERE "+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pg search count: %w", err)
	}

	dataSQL := fmt.Sprintf(`SELECT r.id, r.unit_id, r.requester_name, r.purpose, r.certificate_type, LOWER(r.status), r.request_date,
			ts_headline('simple', r.purpose, %s, 'MaxFragments=1,MaxWords=20') AS snippet
		FROM requests r
		WHERE %s
		ORDER BY ts_rank(r.fts, %s) DESC, r.request_date DESC, r.id
		LIMIT %d OFFSET %d`, tsQuery, whereSQL, tsQuery, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pg search query: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var r Result
		var requestDate time.Time
		if err := rows.Scan(&r.ID, &r.UnitID, &r.RequesterName, &r.Purpose, &r.CertificateType, &r.Status, &requestDate, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pg search scan: %w", err)
		}
		r.RequestDate = requestDate.Format(time.DateOnly)
		results = append(results, r)
	}
	return results, total, rows.Err()
}
