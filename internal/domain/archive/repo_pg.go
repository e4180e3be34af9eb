package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns a Repository on the archive_entry table of a Postgres
// database. The table is created by the migrate command.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) scanRow(row pgx.Row) (*Entry, error) {
	var e Entry
	var raw []byte
	err := row.Scan(&e.ID, &e.SessionID, &e.PatientName, &e.ExamDate, &e.Method,
		&e.Conclusions, &raw, &e.ArchivedBy, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &e.Record); err != nil {
		return nil, fmt.Errorf("decode archived record %s: %w", e.ID, err)
	}
	return &e, nil
}

func (r *repoPG) Create(ctx context.Context, e *Entry) error {
	raw, err := json.Marshal(e.Record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	e.ID = uuid.New()
	return r.pool.QueryRow(ctx, `
		INSERT INTO archive_entry (id, session_id, patient_name, exam_date, method,
			conclusions, record, archived_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		e.ID, e.SessionID, e.PatientName, e.ExamDate, e.Method,
		e.Conclusions, raw, e.ArchivedBy).Scan(&e.CreatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	e, err := r.scanRow(r.pool.QueryRow(ctx, `SELECT `+entryCols+` FROM archive_entry WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func (r *repoPG) List(ctx context.Context, q ListQuery) ([]*Entry, int, error) {
	where, args := "", []any{}
	if q.Patient != "" {
		where = ` WHERE lower(patient_name) LIKE $1`
		args = append(args, q.patientPattern())
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM archive_entry`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count archive entries: %w", err)
	}
	n := len(args)
	rows, err := r.pool.Query(ctx,
		`SELECT `+entryCols+` FROM archive_entry`+where+
			fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, n+1, n+2),
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
