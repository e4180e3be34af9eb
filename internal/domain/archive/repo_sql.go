package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteSchema creates the archive table on SQLite.
const SQLiteSchema = `CREATE TABLE IF NOT EXISTS archive_entry (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	patient_name TEXT NOT NULL DEFAULT '',
	exam_date    TEXT NOT NULL DEFAULT '',
	method       TEXT NOT NULL,
	conclusions  TEXT NOT NULL DEFAULT '',
	record       TEXT NOT NULL,
	archived_by  TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS archive_entry_created_idx ON archive_entry (created_at);`

// timeLayout keeps created_at sortable as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type repoSQL struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) an archive database file. Use
// ":memory:" for a throwaway store.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	return db, nil
}

// MigrateSQLite applies SQLiteSchema.
func MigrateSQLite(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, SQLiteSchema); err != nil {
		return fmt.Errorf("create archive schema: %w", err)
	}
	return nil
}

// NewRepoSQL returns a Repository on a database/sql handle using ? placeholders.
func NewRepoSQL(db *sql.DB) Repository {
	return &repoSQL{db: db, now: time.Now}
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *repoSQL) scanRow(row scanner) (*Entry, error) {
	var e Entry
	var id, raw, created string
	err := row.Scan(&id, &e.SessionID, &e.PatientName, &e.ExamDate, &e.Method,
		&e.Conclusions, &raw, &e.ArchivedBy, &created)
	if err != nil {
		return nil, err
	}
	if e.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse archive id %q: %w", id, err)
	}
	if e.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	if err := json.Unmarshal([]byte(raw), &e.Record); err != nil {
		return nil, fmt.Errorf("decode archived record %s: %w", id, err)
	}
	return &e, nil
}

func (r *repoSQL) Create(ctx context.Context, e *Entry) error {
	raw, err := json.Marshal(e.Record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	id := uuid.New()
	created := r.now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO archive_entry (id, session_id, patient_name, exam_date, method,
			conclusions, record, archived_by, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		id.String(), e.SessionID, e.PatientName, e.ExamDate, e.Method,
		e.Conclusions, string(raw), e.ArchivedBy, created.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert archive entry: %w", err)
	}
	e.ID = id
	e.CreatedAt = created
	return nil
}

func (r *repoSQL) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+entryCols+` FROM archive_entry WHERE id = ?`, id.String())
	e, err := r.scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func (r *repoSQL) List(ctx context.Context, q ListQuery) ([]*Entry, int, error) {
	where, args := "", []any{}
	if q.Patient != "" {
		where = ` WHERE lower(patient_name) LIKE ? ESCAPE '\'`
		args = append(args, q.patientPattern())
	}
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archive_entry`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count archive entries: %w", err)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entryCols+` FROM archive_entry`+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list archive entries: %w", err)
	}
	defer rows.Close()
	var items []*Entry
	for rows.Next() {
		e, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}
