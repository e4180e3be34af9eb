package archive

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecodoppler/tsa/internal/domain/exam"
	"github.com/ecodoppler/tsa/internal/domain/report"
	"github.com/ecodoppler/tsa/internal/platform/auth"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Snapshot archives the current record of sess. The stored conclusions are
// the printed ones, so an empty field is archived as the fallback text.
func (s *Service) Snapshot(ctx context.Context, sess *exam.Session, archivedBy string) (*Entry, error) {
	rec := sess.Store.Current()
	doc := report.Render(rec)
	e := &Entry{
		SessionID:   sess.ID,
		PatientName: rec.PatientName,
		ExamDate:    rec.ExamDate,
		Method:      string(rec.MeasurementMethod),
		Conclusions: doc.Conclusions,
		Record:      rec,
		ArchivedBy:  archivedBy,
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("archive session %s: %w", sess.ID, err)
	}
	s.logger.Info().
		Str("session", sess.ID).
		Str("entry", e.ID.String()).
		Str("archived_by", archivedBy).
		Str("user_name", auth.UserNameFromContext(ctx)).
		Msg("report archived")
	return e, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, q ListQuery) ([]*Entry, int, error) {
	q.Patient = strings.TrimSpace(q.Patient)
	return s.repo.List(ctx, q)
}
