package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

var ErrNotPending = errors.New("no pending record with that index")

// Record is one persisted test record.
type Record struct {
	SessionID   string     `json:"sessionID"`
	Index       int        `json:"index"`
	CreatedAt   time.Time  `json:"createdAt"`
	Status      string     `json:"status"`
	XDeviation  *float64   `json:"xDeviation,omitempty"`
	YDeviation  *float64   `json:"yDeviation,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type DB struct {
	*sql.DB
}

// NewDB opens (or creates) the record database at path.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer; sqlite serializes anyway.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS test_records (
			session_id        TEXT NOT NULL,
			idx               INTEGER NOT NULL,
			created_at        INTEGER NOT NULL,
			status            TEXT NOT NULL,
			x_deviation       DOUBLE,
			y_deviation       DOUBLE,
			completed_at      INTEGER,
			PRIMARY KEY (session_id, idx)
		);
	`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &DB{db}, nil
}

func (db *DB) Append(ctx context.Context, r Record) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO test_records (session_id, idx, created_at, status) VALUES (?, ?, ?, ?)`,
		r.SessionID, r.Index, r.CreatedAt.UnixNano(), StatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to insert record %d: %w", r.Index, err)
	}
	return nil
}

// Complete stores the result of a pending record.
func (db *DB) Complete(ctx context.Context, r Record) error {
	var completedAt int64
	if r.CompletedAt != nil {
		completedAt = r.CompletedAt.UnixNano()
	} else {
		completedAt = time.Now().UnixNano()
	}
	res, err := db.ExecContext(ctx,
		`UPDATE test_records
		SET status = ?, x_deviation = ?, y_deviation = ?, completed_at = ?
		WHERE session_id = ? AND idx = ? AND status = ?`,
		StatusCompleted, r.XDeviation, r.YDeviation, completedAt,
		r.SessionID, r.Index, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to complete record %d: %w", r.Index, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to complete record %d: %w", r.Index, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: session %s index %d", ErrNotPending, r.SessionID, r.Index)
	}
	return nil
}

// List returns the records of one session, or of every session when
// sessionID is empty, oldest first.
func (db *DB) List(ctx context.Context, sessionID string) ([]Record, error) {
	q := `SELECT session_id, idx, created_at, status, x_deviation, y_deviation, completed_at
		FROM test_records`
	var args []any
	if sessionID != "" {
		q += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	q += ` ORDER BY created_at, idx`

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r             Record
			createdAt     int64
			xDev, yDev    sql.NullFloat64
			completedAtNs sql.NullInt64
		)
		if err := rows.Scan(&r.SessionID, &r.Index, &createdAt, &r.Status, &xDev, &yDev, &completedAtNs); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.CreatedAt = time.Unix(0, createdAt)
		if xDev.Valid {
			r.XDeviation = &xDev.Float64
		}
		if yDev.Valid {
			r.YDeviation = &yDev.Float64
		}
		if completedAtNs.Valid {
			t := time.Unix(0, completedAtNs.Int64)
			r.CompletedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
