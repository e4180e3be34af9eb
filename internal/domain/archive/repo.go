package archive

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	List(ctx context.Context, q ListQuery) ([]*Entry, int, error)
}

// ListQuery selects a window of archive entries, newest first. Patient, when
// set, keeps entries whose patient name starts with it, ignoring case.
type ListQuery struct {
	Patient string
	Limit   int
	Offset  int
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// patientPattern returns the LIKE pattern matched against lower(patient_name).
func (q ListQuery) patientPattern() string {
	return likeEscaper.Replace(strings.ToLower(q.Patient)) + "%"
}

const entryCols = `id, session_id, patient_name, exam_date, method,
	conclusions, record, archived_by, created_at`
