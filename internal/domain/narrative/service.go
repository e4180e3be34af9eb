package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ecodoppler/tsa/internal/domain/exam"
	"github.com/ecodoppler/tsa/internal/platform/inflight"
	"github.com/ecodoppler/tsa/internal/platform/websocket"
)

var (
	// ErrGenerationInProgress is returned when a session already has a
	// generation pending.
	ErrGenerationInProgress = errors.New("narrative: generation already in progress")
	// ErrEmptyNarrative is returned when the endpoint answers with no text.
	ErrEmptyNarrative = errors.New("narrative: empty response")
)

// FailureNotice is the message shown to the user when generation fails.
const FailureNotice = "Conclusions generation failed. Please try again."

// Service drafts conclusions for editing sessions. At most one generation
// runs per session.
type Service struct {
	gen       Generator
	guard     inflight.Guard
	publisher websocket.EventPublisher
	timeout   time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

// NewService wires a service. publisher may be nil.
func NewService(gen Generator, guard inflight.Guard, publisher websocket.EventPublisher, timeout time.Duration, logger zerolog.Logger) *Service {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		gen:       gen,
		guard:     guard,
		publisher: publisher,
		timeout:   timeout,
		now:       time.Now,
		logger:    logger,
	}
}

// Start begins generation for sess on a detached goroutine and returns once
// the in-flight flag is set. The call runs with its own timeout and survives
// the caller's context.
func (s *Service) Start(ctx context.Context, sess *exam.Session) error {
	if err := s.begin(ctx, sess); err != nil {
		return err
	}
	go func() {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		s.run(runCtx, sess)
	}()
	return nil
}

// Generate runs generation for sess synchronously and returns the outcome.
func (s *Service) Generate(ctx context.Context, sess *exam.Session) error {
	if err := s.begin(ctx, sess); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.run(ctx, sess)
}

func (s *Service) begin(ctx context.Context, sess *exam.Session) error {
	ok, err := s.guard.Acquire(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("acquire generation flag: %w", err)
	}
	if !ok {
		return ErrGenerationInProgress
	}
	sess.SetGeneration(exam.GenerationStatus{InProgress: true})
	s.publish(ctx, sess, exam.EventGenerationStarted, "")
	return nil
}

// run performs the call and applies the result. The in-flight flag and the
// session status are cleared on every path.
func (s *Service) run(ctx context.Context, sess *exam.Session) (err error) {
	log := s.logger.With().Str("session", sess.ID).Logger()
	start := s.now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("narrative: generation panicked: %v", r)
		}
		finished := s.now()
		status := exam.GenerationStatus{FinishedAt: &finished}
		eventType := exam.EventGenerationCompleted
		if err != nil {
			status.LastError = FailureNotice
			eventType = exam.EventGenerationFailed
			log.Error().Err(err).Dur("elapsed", finished.Sub(start)).Msg("conclusions generation failed")
		} else {
			log.Info().Dur("elapsed", finished.Sub(start)).Msg("conclusions generated")
		}
		sess.SetGeneration(status)
		if relErr := s.guard.Release(context.WithoutCancel(ctx), sess.ID); relErr != nil {
			log.Warn().Err(relErr).Msg("failed to release generation flag")
		}
		s.publish(ctx, sess, eventType, status.LastError)
	}()

	prompt, err := BuildPrompt(sess.Store.Current())
	if err != nil {
		return fmt.Errorf("build prompt: %w", err)
	}
	text, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return err
	}
	if text == "" {
		return ErrEmptyNarrative
	}
	sess.Store.ReplaceField(exam.SetConclusions(text))
	return nil
}

func (s *Service) publish(ctx context.Context, sess *exam.Session, eventType, notice string) {
	if s.publisher == nil {
		return
	}
	ev := websocket.Event{
		Type:      eventType,
		Topic:     exam.Topic(sess.ID),
		SessionID: sess.ID,
		Version:   sess.Store.Version(),
	}
	if notice != "" {
		ev.Data, _ = json.Marshal(map[string]string{"error": notice})
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Warn().Err(err).Str("session", sess.ID).Msg("failed to publish generation event")
	}
}
