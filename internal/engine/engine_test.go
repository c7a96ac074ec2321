package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/executor"
	"github.com/wardenhq/warden/internal/gate"
	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/internal/oracle"
	"github.com/wardenhq/warden/internal/outbox"
	"github.com/wardenhq/warden/internal/output"
	"github.com/wardenhq/warden/internal/policy"
)

// fakePlatform serves canned open changes and records mutations. Mutation
// slices are guarded because the engine evaluates in parallel.
type fakePlatform struct {
	mu      sync.Mutex
	open    []*models.ChangeRequest
	listErr error

	comments []string
	reviews  []string
	merged   []int
	closed   []int
}

func (f *fakePlatform) ListOpen(context.Context) ([]*models.ChangeRequest, error) {
	return f.open, f.listErr
}
func (f *fakePlatform) Diff(_ context.Context, number int) (string, error) {
	return f.find(number).Diff, nil
}
func (f *fakePlatform) ListFiles(_ context.Context, number int) ([]models.ChangedFile, error) {
	return f.find(number).Files, nil
}
func (f *fakePlatform) ListChecks(_ context.Context, ref string) ([]models.CheckResult, error) {
	for _, c := range f.open {
		if c.HeadSHA == ref {
			return c.Checks, nil
		}
	}
	return nil, nil
}
func (f *fakePlatform) ListComments(_ context.Context, number int) ([]models.Comment, error) {
	return f.find(number).Comments, nil
}

func (f *fakePlatform) PostComment(_ context.Context, _ int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, body)
	return nil
}

func (f *fakePlatform) RequestChanges(_ context.Context, _ int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviews = append(f.reviews, body)
	return nil
}

func (f *fakePlatform) Merge(_ context.Context, number int, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.merged = append(f.merged, number)
	return nil
}

func (f *fakePlatform) Close(_ context.Context, number int, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, number)
	return nil
}

func (f *fakePlatform) Repository() string { return "acme/widgets" }

func (f *fakePlatform) find(number int) *models.ChangeRequest {
	for _, c := range f.open {
		if c.Number == number {
			return c
		}
	}
	return &models.ChangeRequest{}
}

// fakeOracle returns a fixed review and counts consultations.
type fakeOracle struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (o *fakeOracle) Review(_ context.Context, _ oracle.Packet) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	return o.text, o.err
}

func (o *fakeOracle) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

type nopSender struct{}

func (nopSender) Send(context.Context, json.RawMessage) error { return nil }

func (nopSender) Enabled() bool { return true }

func testEngine(t *testing.T, p *fakePlatform, o oracle.Oracle, mutate func(*policy.Config)) *Engine {
	t.Helper()
	cfg := policy.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	queue := outbox.New(t.TempDir(), nopSender{}, outbox.Options{})
	ui := &output.UI{Out: &bytes.Buffer{}, ErrOut: &bytes.Buffer{}}
	exec := executor.New(p, nil, nil, cfg, false)
	g := gate.New(cfg, p, ui)
	return New(p, g, o, exec, queue, cfg, ui)
}

func cleanChange(number int) *models.ChangeRequest {
	return &models.ChangeRequest{
		Number:    number,
		Title:     "fix: handle nil config",
		Body:      "Fixes #12 with repro steps in the issue.",
		Branch:    fmt.Sprintf("warden/%d-nil-config", number),
		HeadSHA:   fmt.Sprintf("sha-%d", number),
		CreatedAt: time.Now().Add(-1 * time.Hour),
		Diff:      "diff --git a/main.go b/main.go\n+fixed\n",
		Files:     []models.ChangedFile{{Path: "main.go", Additions: 1}},
		Checks:    []models.CheckResult{{Name: "test", Completed: true, Passed: true}},
	}
}

func TestRun_GateShortCircuitsSkipOracle(t *testing.T) {
	c := cleanChange(1)
	c.Checks = []models.CheckResult{{Name: "test", Completed: true, Passed: false}}

	p := &fakePlatform{open: []*models.ChangeRequest{c}}
	o := &fakeOracle{text: "DECISION: MERGE"}
	e := testEngine(t, p, o, nil)

	s, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Evaluated)
	assert.Equal(t, 1, s.ChangesRequested)
	assert.Equal(t, 0, o.callCount(), "deterministic verdicts never consult the oracle")
	require.Len(t, p.reviews, 1)
	assert.Contains(t, p.reviews[0], models.FeedbackSignature)
}

func TestRun_OracleMergeVerdict(t *testing.T) {
	p := &fakePlatform{open: []*models.ChangeRequest{cleanChange(1)}}
	o := &fakeOracle{text: "DECISION: MERGE\nREASONING: focused fix\nVALUE_SCORE: 8"}
	e := testEngine(t, p, o, nil)

	s, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Merged)
	assert.Equal(t, 1, o.callCount())
	// auto_merge is off by default: the verdict lands as an approval comment.
	assert.Empty(t, p.merged)
	require.Len(t, p.comments, 1)
	assert.Contains(t, p.comments[0], models.ApprovalMarker)
}

func TestRun_VerboseLogsColoredVerdict(t *testing.T) {
	p := &fakePlatform{open: []*models.ChangeRequest{cleanChange(1)}}
	o := &fakeOracle{text: "DECISION: MERGE\nREASONING: focused fix\nVALUE_SCORE: 8"}
	e := testEngine(t, p, o, nil)
	e.ui.Verbose = true

	_, err := e.Run(context.Background())
	require.NoError(t, err)

	out := e.ui.Out.(*bytes.Buffer).String()
	assert.Contains(t, out, "oracle verdict")
	assert.Contains(t, out, output.ActionColor("merge"))
	assert.Contains(t, out, fmt.Sprintf("value %s", output.ScoreColor(8)))
}

func TestRun_OracleErrorIsInconclusive(t *testing.T) {
	p := &fakePlatform{open: []*models.ChangeRequest{cleanChange(1)}}
	o := &fakeOracle{err: errors.New("deadline exceeded")}
	e := testEngine(t, p, o, nil)

	s, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Evaluated)
	assert.Equal(t, 1, s.Inconclusive)
	assert.Empty(t, s.Errors, "an unavailable oracle is not an invocation error")
	assert.Empty(t, p.comments)
	assert.Empty(t, p.reviews)
	assert.Empty(t, p.closed)
	assert.Empty(t, p.merged)
}

func TestRun_NoOracleConfigured(t *testing.T) {
	p := &fakePlatform{open: []*models.ChangeRequest{cleanChange(1)}}
	e := testEngine(t, p, nil, nil)

	s, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Inconclusive)
	assert.Empty(t, p.comments)
}

func TestRun_StaleSweptBeforeEvaluation(t *testing.T) {
	stale := cleanChange(1)
	stale.CreatedAt = time.Now().Add(-10 * 24 * time.Hour)
	fresh := cleanChange(2)

	p := &fakePlatform{open: []*models.ChangeRequest{stale, fresh}}
	o := &fakeOracle{text: "DECISION: DEFER"}
	e := testEngine(t, p, o, nil)

	s, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, s.Open)
	assert.Equal(t, 1, s.StaleClosed)
	assert.Equal(t, 1, s.Evaluated, "swept changes are not re-evaluated")
	assert.Equal(t, []int{1}, p.closed)
	assert.Equal(t, 1, o.callCount())
}

func TestRun_ListOpenError(t *testing.T) {
	p := &fakePlatform{listErr: errors.New("api unavailable")}
	e := testEngine(t, p, nil, nil)

	_, err := e.Run(context.Background())
	assert.Error(t, err)
}

func TestRun_ParallelEvaluationCountsEveryChange(t *testing.T) {
	var open []*models.ChangeRequest
	for i := 1; i <= 12; i++ {
		open = append(open, cleanChange(i))
	}
	p := &fakePlatform{open: open}
	o := &fakeOracle{text: "DECISION: CLOSE\nREASONING: duplicated work"}
	e := testEngine(t, p, o, func(cfg *policy.Config) { cfg.MaxParallel = 3 })

	s, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, s.Evaluated)
	assert.Equal(t, 12, s.Closed)
	assert.Equal(t, 12, o.callCount())
	assert.Len(t, p.closed, 12)
}

func TestRun_DrainsOutboxFirst(t *testing.T) {
	p := &fakePlatform{}
	queue := outbox.New(t.TempDir(), nopSender{}, outbox.Options{})
	require.True(t, queue.Enqueue(json.RawMessage(`{"event":"merged"}`), 1))

	cfg := policy.Default()
	ui := &output.UI{Out: &bytes.Buffer{}, ErrOut: &bytes.Buffer{}}
	e := New(p, gate.New(cfg, p, nil), nil, executor.New(p, nil, nil, cfg, false), queue, cfg, ui)

	// The entry is not yet due, so the drain touches nothing but still runs.
	s, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, s.Drain.Processed)
	assert.Equal(t, 1, queue.QueueStatus().Size)
}
