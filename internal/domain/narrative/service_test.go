package narrative

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecodoppler/tsa/internal/domain/exam"
	"github.com/ecodoppler/tsa/internal/platform/inflight"
	"github.com/ecodoppler/tsa/internal/platform/websocket"
)

type stubGenerator struct {
	text    string
	err     error
	release chan struct{}
	prompts []string
	mu      sync.Mutex
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.text, g.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []websocket.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev websocket.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

func newSession(t *testing.T) *exam.Session {
	t.Helper()
	reg := exam.NewRegistry(time.Hour, func() time.Time { return today }, zerolog.Nop())
	return reg.Create()
}

func TestService_GenerateReplacesConclusions(t *testing.T) {
	sess := newSession(t)
	sess.Store.ReplaceField(exam.SetConclusions("old draft"))
	pub := &recordingPublisher{}
	gen := &stubGenerator{text: "Bilateral carotid atheromatosis without significant stenosis."}
	svc := NewService(gen, inflight.NewMemory(), pub, time.Second, zerolog.Nop())

	require.NoError(t, svc.Generate(context.Background(), sess))

	assert.Equal(t, "Bilateral carotid atheromatosis without significant stenosis.", sess.Store.Current().Conclusions)
	st := sess.Generation()
	assert.False(t, st.InProgress)
	assert.Empty(t, st.LastError)
	assert.NotNil(t, st.FinishedAt)
	assert.Equal(t, []string{exam.EventGenerationStarted, exam.EventGenerationCompleted}, pub.types())
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Measurement method: NASCET.")
}

func TestService_FailureLeavesRecordUnchanged(t *testing.T) {
	sess := newSession(t)
	sess.Store.ReplaceField(exam.SetPatientName("Rossi Mario"))
	before := sess.Store.Current()
	versionBefore := sess.Store.Version()

	pub := &recordingPublisher{}
	guard := inflight.NewMemory()
	svc := NewService(&stubGenerator{err: errors.New("upstream unavailable")}, guard, pub, time.Second, zerolog.Nop())

	err := svc.Generate(context.Background(), sess)
	require.Error(t, err)

	assert.Same(t, before, sess.Store.Current())
	assert.Equal(t, versionBefore, sess.Store.Version())
	st := sess.Generation()
	assert.False(t, st.InProgress)
	assert.Equal(t, FailureNotice, st.LastError)
	assert.Equal(t, []string{exam.EventGenerationStarted, exam.EventGenerationFailed}, pub.types())

	ok, err := guard.Acquire(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.True(t, ok, "flag must be cleared after failure")
}

func TestService_EmptyTextIsFailure(t *testing.T) {
	sess := newSession(t)
	sess.Store.ReplaceField(exam.SetConclusions("kept"))
	svc := NewService(&stubGenerator{text: ""}, inflight.NewMemory(), nil, time.Second, zerolog.Nop())

	err := svc.Generate(context.Background(), sess)
	assert.ErrorIs(t, err, ErrEmptyNarrative)
	assert.Equal(t, "kept", sess.Store.Current().Conclusions)
	assert.Equal(t, FailureNotice, sess.Generation().LastError)
}

func TestService_SecondRequestWhilePendingIsRejected(t *testing.T) {
	sess := newSession(t)
	gen := &stubGenerator{text: "done", release: make(chan struct{})}
	pub := &recordingPublisher{}
	svc := NewService(gen, inflight.NewMemory(), pub, 5*time.Second, zerolog.Nop())

	require.NoError(t, svc.Start(context.Background(), sess))
	assert.True(t, sess.Generation().InProgress)

	err := svc.Start(context.Background(), sess)
	assert.ErrorIs(t, err, ErrGenerationInProgress)

	close(gen.release)
	require.Eventually(t, func() bool { return !sess.Generation().InProgress }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "done", sess.Store.Current().Conclusions)

	require.NoError(t, svc.Start(context.Background(), sess), "a new request is accepted once the previous one finished")
}

func TestService_StartSurvivesCallerCancel(t *testing.T) {
	sess := newSession(t)
	gen := &stubGenerator{text: "late result", release: make(chan struct{})}
	svc := NewService(gen, inflight.NewMemory(), nil, 5*time.Second, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, svc.Start(ctx, sess))
	cancel()
	close(gen.release)

	require.Eventually(t, func() bool { return sess.Store.Current().Conclusions == "late result" }, 2*time.Second, 5*time.Millisecond)
}

func TestService_TimeoutClearsFlag(t *testing.T) {
	sess := newSession(t)
	gen := &stubGenerator{text: "never", release: make(chan struct{})}
	svc := NewService(gen, inflight.NewMemory(), nil, 20*time.Millisecond, zerolog.Nop())

	err := svc.Generate(context.Background(), sess)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, sess.Generation().InProgress)
	assert.Empty(t, sess.Store.Current().Conclusions)
}

func TestService_LateCompletionOnlyTouchesConclusions(t *testing.T) {
	sess := newSession(t)
	gen := &stubGenerator{text: "generated", release: make(chan struct{})}
	svc := NewService(gen, inflight.NewMemory(), nil, 5*time.Second, zerolog.Nop())

	require.NoError(t, svc.Start(context.Background(), sess))
	sess.Store.ReplaceField(exam.SetPatientName("Verdi Anna"))
	sess.Store.UpdateVesselField(exam.Right, exam.ACI, exam.EditStenosis(exam.Stenosis70To99))
	close(gen.release)

	require.Eventually(t, func() bool { return !sess.Generation().InProgress }, 2*time.Second, 5*time.Millisecond)
	rec := sess.Store.Current()
	assert.Equal(t, "generated", rec.Conclusions)
	assert.Equal(t, "Verdi Anna", rec.PatientName)
	assert.Equal(t, exam.Stenosis70To99, rec.Vessel(exam.Right, exam.ACI).Stenosis)
}
