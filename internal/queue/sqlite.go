package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRepository persists the queue in an embedded SQLite database.
// This is the default persistence for the CLI.
type SQLiteRepository struct {
	path string
	conn *sql.DB
}

// createOperationsTableSQL defines the schema for the operations table.
// The payload column holds the kind-specific payload as a JSON document;
// addressing metadata is kept in dedicated columns.
const createOperationsTableSQL = `
CREATE TABLE IF NOT EXISTS operations (
    position INTEGER NOT NULL,
    id TEXT NOT NULL UNIQUE,
    kind TEXT NOT NULL,
    target_id TEXT,
    shelter_owner TEXT,
    payload TEXT NOT NULL,
    enqueued_at TEXT NOT NULL
);
`

// payloadDoc is the JSON shape stored in the payload column.
type payloadDoc struct {
	Create *CreatePayload `json:"create,omitempty"`
	Update *UpdatePayload `json:"update,omitempty"`
}

// NewSQLiteRepository creates or opens a SQLite database at the given path
// and initializes the schema.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer; limit to one connection to
	// prevent "database is locked" errors.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if _, err := conn.Exec(createOperationsTableSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create operations table: %w", err)
	}

	return &SQLiteRepository{path: path, conn: conn}, nil
}

// Close closes the database connection.
func (r *SQLiteRepository) Close() error {
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// Load reads the persisted queue in position order.
func (r *SQLiteRepository) Load() ([]Operation, error) {
	query := `
		SELECT id, kind, target_id, shelter_owner, payload, enqueued_at
		FROM operations
		ORDER BY position ASC
	`

	rows, err := r.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	var ops []Operation
	for rows.Next() {
		var op Operation
		var targetID, shelterOwner sql.NullString
		var payload, enqueuedAt string

		if err := rows.Scan(&op.ID, &op.Kind, &targetID, &shelterOwner, &payload, &enqueuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}

		op.TargetID = targetID.String
		op.ShelterOwner = shelterOwner.String

		var doc payloadDoc
		if err := json.Unmarshal([]byte(payload), &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload for operation %s: %w", op.ID, err)
		}
		op.Create = doc.Create
		op.Update = doc.Update

		ts, err := time.Parse(time.RFC3339Nano, enqueuedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse enqueued_at for operation %s: %w", op.ID, err)
		}
		op.EnqueuedAt = ts

		ops = append(ops, op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operation rows: %w", err)
	}

	return ops, nil
}

// Save replaces the persisted queue in a single transaction.
func (r *SQLiteRepository) Save(ops []Operation) error {
	tx, err := r.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM operations"); err != nil {
		return fmt.Errorf("failed to clear operations: %w", err)
	}

	query := `
		INSERT INTO operations (position, id, kind, target_id, shelter_owner, payload, enqueued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	for i, op := range ops {
		payload, err := json.Marshal(payloadDoc{Create: op.Create, Update: op.Update})
		if err != nil {
			return fmt.Errorf("failed to marshal payload for operation %s: %w", op.ID, err)
		}

		_, err = tx.Exec(query,
			i,
			op.ID,
			string(op.Kind),
			sql.NullString{String: op.TargetID, Valid: op.TargetID != ""},
			sql.NullString{String: op.ShelterOwner, Valid: op.ShelterOwner != ""},
			string(payload),
			op.EnqueuedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("failed to insert operation %s: %w", op.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
