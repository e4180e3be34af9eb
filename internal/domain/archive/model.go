// Package archive keeps snapshots of finished exam records. Archived entries
// are read-only; they are never loaded back into an editing session.
package archive

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ecodoppler/tsa/internal/domain/exam"
)

// ErrNotFound is returned when no entry has the requested id.
var ErrNotFound = errors.New("archive: entry not found")

// Entry is one archived report.
type Entry struct {
	ID          uuid.UUID        `json:"id"`
	SessionID   string           `json:"sessionId"`
	PatientName string           `json:"patientName"`
	ExamDate    string           `json:"examDate"`
	Method      string           `json:"measurementMethod"`
	Conclusions string           `json:"conclusions"`
	Record      *exam.ExamRecord `json:"record"`
	ArchivedBy  string           `json:"archivedBy,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}
