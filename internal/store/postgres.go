package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"barangay/api/internal/domain"
)

type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const requestColumns = `
	id, unit_id, requester_name, requester_email, age, civil_status, address, purpose,
	certificate_type, status, source, version, request_date, created_at, updated_at,
	processed_by, processed_at, accepted_by, accepted_at,
	declined_by, declined_at, restored_by, restored_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (requestRow, error) {
	var item requestRow
	err := row.Scan(
		&item.ID,
		&item.UnitID,
		&item.RequesterName,
		&item.RequesterEmail,
		&item.Age,
		&item.CivilStatus,
		&item.Address,
		&item.Purpose,
		&item.CertificateType,
		&item.Status,
		&item.Source,
		&item.Version,
		&item.RequestDate,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.ProcessedBy,
		&item.ProcessedAt,
		&item.AcceptedBy,
		&item.AcceptedAt,
		&item.DeclinedBy,
		&item.DeclinedAt,
		&item.RestoredBy,
		&item.RestoredAt,
	)
	return item, err
}

func (s *PostgresStore) ListRequests(ctx context.Context, filter RequestFilter) ([]domain.Request, error) {
	var (
		where []string
		args  []any
	)
	if filter.UnitID != "" {
		args = append(args, filter.UnitID)
		where = append(where, fmt.Sprintf("unit_id = $%d", len(args)))
	}
	if filter.CertificateType != "" {
		args = append(args, string(filter.CertificateType))
		where = append(where, fmt.Sprintf("certificate_type = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("LOWER(status) = ANY($%d)", len(args)))
	}

	query := "SELECT " + requestColumns + " FROM requests"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY request_date DESC, created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Request, 0)
	for rows.Next() {
		row, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		item, err := row.coerce()
		if err != nil {
			s.logger.Warn("skipping unreadable request", "request_id", row.ID, "error", err)
			continue
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetRequest(ctx context.Context, id string) (domain.Request, error) {
	row, err := scanRequest(s.db.QueryRowContext(ctx, "SELECT "+requestColumns+" FROM requests WHERE id=$1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Request{}, ErrNotFound
	}
	if err != nil {
		return domain.Request{}, fmt.Errorf("get request: %w", err)
	}
	return row.coerce()
}

func (s *PostgresStore) InsertRequest(ctx context.Context, req domain.Request) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO requests (
			id, unit_id, requester_name, requester_email, age, civil_status, address, purpose,
			certificate_type, status, source, version, request_date, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		req.ID, req.UnitID, req.RequesterName, req.RequesterEmail, req.Age, req.CivilStatus,
		req.Address, req.Purpose, string(req.CertificateType), string(req.Status), string(req.Source),
		req.Version, req.RequestDate, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateRequest(ctx context.Context, req domain.Request, expectedVersion int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE requests
		SET status=$3, version=$2 + 1, updated_at=$4,
			processed_by=$5, processed_at=$6,
			accepted_by=$7, accepted_at=$8,
			declined_by=$9, declined_at=$10,
			restored_by=$11, restored_at=$12
		WHERE id=$1 AND version=$2
	`,
		req.ID, expectedVersion, string(req.Status), req.UpdatedAt,
		stampBy(req.Processed), stampAt(req.Processed),
		stampBy(req.Accepted), stampAt(req.Accepted),
		stampBy(req.Declined), stampAt(req.Declined),
		stampBy(req.Restored), stampAt(req.Restored),
	)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update request rows: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var current int
	err = s.db.QueryRowContext(ctx, `SELECT version FROM requests WHERE id=$1`, req.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read request version: %w", err)
	}
	return &domain.ConflictError{RequestID: req.ID, Expected: expectedVersion, Actual: current}
}

func (s *PostgresStore) ListOfficials(ctx context.Context, unitID string) ([]domain.Official, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, unit_id, name, position, contact_number, email, term_start, term_end
		FROM officials
		WHERE unit_id=$1
		ORDER BY term_start DESC, id
	`, unitID)
	if err != nil {
		return nil, fmt.Errorf("list officials: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Official, 0)
	for rows.Next() {
		var item domain.Official
		if err := rows.Scan(&item.ID, &item.UnitID, &item.Name, &item.Position, &item.ContactNumber, &item.Email, &item.TermStart, &item.TermEnd); err != nil {
			return nil, fmt.Errorf("scan official: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate officials: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertOfficial(ctx context.Context, official domain.Official) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO officials (id, unit_id, name, position, contact_number, email, term_start, term_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, official.ID, official.UnitID, official.Name, official.Position, official.ContactNumber, official.Email, official.TermStart, official.TermEnd)
	if err != nil {
		return fmt.Errorf("insert official: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUnit(ctx context.Context, unitID string) (domain.Unit, error) {
	var item domain.Unit
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, municipality, province, address_line, contact_number, email, logo_object_key
		FROM units
		WHERE id=$1
	`, unitID).Scan(&item.ID, &item.Name, &item.Municipality, &item.Province, &item.AddressLine, &item.ContactNumber, &item.Email, &item.LogoObjectKey)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Unit{}, ErrNotFound
	}
	if err != nil {
		return domain.Unit{}, fmt.Errorf("get unit: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) UpsertUnit(ctx context.Context, unit domain.Unit) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO units (id, name, municipality, province, address_line, contact_number, email, logo_object_key, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name=EXCLUDED.name,
			municipality=EXCLUDED.municipality,
			province=EXCLUDED.province,
			address_line=EXCLUDED.address_line,
			contact_number=EXCLUDED.contact_number,
			email=EXCLUDED.email,
			logo_object_key=EXCLUDED.logo_object_key,
			updated_at=EXCLUDED.updated_at
	`, unit.ID, unit.Name, unit.Municipality, unit.Province, unit.AddressLine, unit.ContactNumber, unit.Email, unit.LogoObjectKey, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert unit: %w", err)
	}
	return nil
}
