package reservation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/likewindccc/seatgrab/internal/auth"
	"github.com/likewindccc/seatgrab/internal/browser"
	"github.com/likewindccc/seatgrab/internal/captcha"
	"github.com/likewindccc/seatgrab/internal/config"
	"github.com/likewindccc/seatgrab/internal/dates"
	"github.com/likewindccc/seatgrab/internal/models"
)

var testTarget = dates.Target{Year: 2026, Month: 9, Day: 2}

func testConfig() *config.Config {
	return &config.Config{
		Portal:    config.PortalConfig{Room: "研学中心学生工位"},
		Selectors: config.DefaultSelectors(),
	}
}

// fakeUI scripts the portal DOM per selector.
type fakeUI struct {
	browser.Driver

	clickErr map[string]error
	waitErr  map[string]error
	present  map[string]bool
	clicks   []string

	token         string
	pageHTML      string
	pageHTMLReads int
}

func newFakeUI() *fakeUI {
	return &fakeUI{
		clickErr: map[string]error{},
		waitErr:  map[string]error{},
		present:  map[string]bool{},
	}
}

func (f *fakeUI) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.clicks = append(f.clicks, selector)
	return f.clickErr[selector]
}

func (f *fakeUI) WaitVisible(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.waitErr[selector]
}

func (f *fakeUI) Exists(selector string) (bool, error) { return f.present[selector], nil }

func (f *fakeUI) Eval(ctx context.Context, script string) (any, error) { return f.token, nil }

func (f *fakeUI) PageHTML() (string, error) {
	f.pageHTMLReads++
	return f.pageHTML, nil
}

func (f *fakeUI) countClicks(selector string) int {
	n := 0
	for _, c := range f.clicks {
		if c == selector {
			n++
		}
	}
	return n
}

type stubLogin struct{ err error }

func (s stubLogin) Run(ctx context.Context, account models.Account) error { return s.err }

type solveResult struct {
	records []models.AttemptRecord
	err     error
}

// stubSolver replays scripted results, one per confirmation action.
type stubSolver struct {
	results []solveResult
	calls   int
}

func (s *stubSolver) Solve(ctx context.Context) ([]models.AttemptRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := s.results[s.calls]
	s.calls++
	return r.records, r.err
}

func mismatches(n int) []models.AttemptRecord {
	records := make([]models.AttemptRecord, n)
	for i := range records {
		records[i] = models.AttemptRecord{Index: i + 1, Outcome: models.AttemptMismatch}
	}
	return records
}

func solvedOn(attempt int) []models.AttemptRecord {
	records := mismatches(attempt - 1)
	return append(records, models.AttemptRecord{Index: attempt, Outcome: models.AttemptSuccess})
}

var testAccount = models.Account{Name: "acct", Seats: []int{158, 160, 162}}

func TestRunSucceedsOnFallbackSeat(t *testing.T) {
	cfg := testConfig()
	sel := cfg.Selectors
	ui := newFakeUI()
	// First two seats are not clickable, the portal grays them out.
	ui.clickErr[sel.SeatXPath(158)] = browser.ErrElementTimeout
	ui.clickErr[sel.SeatXPath(160)] = browser.ErrElementTimeout

	solver := &stubSolver{results: []solveResult{{records: solvedOn(3)}}}
	m := NewMachine(ui, stubLogin{}, solver, cfg, testTarget, nil, zap.NewNop())

	outcome := m.Run(context.Background(), testAccount)

	assert.Equal(t, models.OutcomeSuccess, outcome.Kind)
	assert.Equal(t, 162, outcome.Seat)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, []int{158, 160, 162}, outcome.SeatsTried)
	assert.Equal(t, 1, solver.calls)
	assert.Contains(t, outcome.Summary(), "162")
}

func TestRunExhaustsAllSeats(t *testing.T) {
	cfg := testConfig()
	ui := newFakeUI()
	solver := &stubSolver{results: []solveResult{
		{records: mismatches(4), err: captcha.ErrAttemptsExhausted},
		{records: mismatches(4), err: captcha.ErrAttemptsExhausted},
		{records: mismatches(4), err: captcha.ErrAttemptsExhausted},
	}}
	m := NewMachine(ui, stubLogin{}, solver, cfg, testTarget, nil, zap.NewNop())

	outcome := m.Run(context.Background(), testAccount)

	assert.Equal(t, models.OutcomeExhausted, outcome.Kind)
	assert.Equal(t, []int{158, 160, 162}, outcome.SeatsTried)
	assert.Equal(t, 12, outcome.Attempts)
	assert.Equal(t, 3, solver.calls)
}

func TestRunAuthFailureIsFatalWithoutAttempts(t *testing.T) {
	cfg := testConfig()
	ui := newFakeUI()
	solver := &stubSolver{}
	m := NewMachine(ui, stubLogin{err: auth.ErrAuthFailed}, solver, cfg, testTarget, nil, zap.NewNop())

	outcome := m.Run(context.Background(), testAccount)

	assert.Equal(t, models.OutcomeFatal, outcome.Kind)
	assert.Zero(t, outcome.Attempts)
	assert.Zero(t, solver.calls)
	assert.Empty(t, ui.clicks)
}

func TestRunDeadlineForcesTimedOut(t *testing.T) {
	cfg := testConfig()
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	m := NewMachine(newFakeUI(), stubLogin{}, &stubSolver{}, cfg, testTarget, nil, zap.NewNop())
	outcome := m.Run(ctx, testAccount)

	assert.Equal(t, models.OutcomeTimedOut, outcome.Kind)
}

func TestRunRetriesUIStepOnceThenFatal(t *testing.T) {
	cfg := testConfig()
	sel := cfg.Selectors
	ui := newFakeUI()
	ui.clickErr[sel.SeatSelectTab] = errors.New("page crashed")

	m := NewMachine(ui, stubLogin{}, &stubSolver{}, cfg, testTarget, nil, zap.NewNop())
	outcome := m.Run(context.Background(), testAccount)

	assert.Equal(t, models.OutcomeFatal, outcome.Kind)
	assert.Equal(t, 2, ui.countClicks(sel.SeatSelectTab))
}

func TestSeatsNeverRevisited(t *testing.T) {
	cfg := testConfig()
	sel := cfg.Selectors
	ui := newFakeUI()
	solver := &stubSolver{results: []solveResult{
		{records: mismatches(2), err: captcha.ErrAttemptsExhausted},
		{records: solvedOn(1)},
	}}
	m := NewMachine(ui, stubLogin{}, solver, cfg, testTarget, nil, zap.NewNop())

	outcome := m.Run(context.Background(), testAccount)
	require.Equal(t, models.OutcomeSuccess, outcome.Kind)
	assert.Equal(t, 160, outcome.Seat)

	// Each candidate is clicked at most once and in priority order.
	assert.Equal(t, 1, ui.countClicks(sel.SeatXPath(158)))
	assert.Equal(t, 1, ui.countClicks(sel.SeatXPath(160)))
	assert.Zero(t, ui.countClicks(sel.SeatXPath(162)))
}

func TestSeatUnavailableToastAdvances(t *testing.T) {
	cfg := testConfig()
	sel := cfg.Selectors
	ui := newFakeUI()
	ui.present[sel.SeatUnavailableToast] = true

	solver := &stubSolver{}
	m := NewMachine(ui, stubLogin{}, solver, cfg, testTarget, nil, zap.NewNop())
	outcome := m.Run(context.Background(), testAccount)

	// The toast fires for every seat, so the list exhausts without a
	// single captcha session.
	assert.Equal(t, models.OutcomeExhausted, outcome.Kind)
	assert.Zero(t, solver.calls)
}

func TestRunPropagatesDriverErrorFromSolve(t *testing.T) {
	cfg := testConfig()
	ui := newFakeUI()
	solver := &stubSolver{results: []solveResult{
		{records: mismatches(1), err: errors.New("browser gone")},
	}}
	m := NewMachine(ui, stubLogin{}, solver, cfg, testTarget, nil, zap.NewNop())

	outcome := m.Run(context.Background(), testAccount)
	assert.Equal(t, models.OutcomeFatal, outcome.Kind)
	assert.Equal(t, []int{158}, outcome.SeatsTried)
	assert.Equal(t, 1, outcome.Attempts)
}

func TestPreviewParsesSeatMapWhenNoToken(t *testing.T) {
	cfg := testConfig()
	ui := newFakeUI()
	ui.pageHTML = `<div>
		<div class="seat-item-wrap"><div class="word-wrap">158</div></div>
		<div class="seat-item-wrap disabled"><div class="word-wrap">160</div></div>
	</div>`

	solver := &stubSolver{results: []solveResult{{records: solvedOn(1)}}}
	m := NewMachine(ui, stubLogin{}, solver, cfg, testTarget, nil, zap.NewNop())

	outcome := m.Run(context.Background(), testAccount)
	require.Equal(t, models.OutcomeSuccess, outcome.Kind)

	// Without a session token the preview falls back to the rendered
	// seat map.
	assert.Equal(t, 1, ui.pageHTMLReads)
}

func TestPreviewQueriesSeatAPIWithSessionToken(t *testing.T) {
	var gotAuth, gotRoom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRoom = r.URL.Query().Get("roomId")
		_, _ = w.Write([]byte(`{"success":true,"data":{"seats":[{"seatNumber":158,"status":"available"}]}}`))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Portal.SeatQueryURL = srv.URL
	ui := newFakeUI()
	ui.token = "jwt-abc"

	solver := &stubSolver{results: []solveResult{{records: solvedOn(1)}}}
	m := NewMachine(ui, stubLogin{}, solver, cfg, testTarget, nil, zap.NewNop())

	outcome := m.Run(context.Background(), testAccount)
	require.Equal(t, models.OutcomeSuccess, outcome.Kind)

	// The JWT lifted from the browser session reaches the status API
	// and the seat map fallback stays untouched.
	assert.Equal(t, "Bearer jwt-abc", gotAuth)
	assert.Equal(t, cfg.Portal.Room, gotRoom)
	assert.Zero(t, ui.pageHTMLReads)
}
