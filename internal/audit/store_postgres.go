package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"inkdrop/internal/domain"
)

// PostgresStore persists audit entries in the audit_entries table.
//
//	CREATE TABLE audit_entries (
//	    id         uuid PRIMARY KEY,
//	    event_id   text NOT NULL,
//	    category   text NOT NULL,
//	    target     text NOT NULL DEFAULT '',
//	    result     text NOT NULL,
//	    reason     text NOT NULL DEFAULT '',
//	    request_id text NOT NULL DEFAULT '',
//	    created_at timestamptz NOT NULL
//	);
//	CREATE INDEX audit_entries_event_id_idx ON audit_entries (event_id);
//
// Insert-only: there is deliberately no update or delete path.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, entry domain.AuditEntry) error {
	query := `
		INSERT INTO audit_entries (id, event_id, category, target, result, reason, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.EventID, entry.Category, entry.Target,
		entry.Result, entry.Reason, entry.RequestID, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry for %s: %w", entry.EventID, err)
	}
	return nil
}

func (s *PostgresStore) ListByEventIDs(ctx context.Context, eventIDs []string) ([]domain.AuditEntry, error) {
	query := `
		SELECT id, event_id, category, target, result, reason, request_id, created_at
		FROM audit_entries
		WHERE event_id = ANY($1)
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(eventIDs))
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		var category, result string
		if err := rows.Scan(
			&entry.ID, &entry.EventID, &category, &entry.Target,
			&result, &entry.Reason, &entry.RequestID, &entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Category = domain.Category(category)
		entry.Result = domain.Outcome(result)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}
