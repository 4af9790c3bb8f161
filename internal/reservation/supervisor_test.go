package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/likewindccc/seatgrab/internal/config"
	"github.com/likewindccc/seatgrab/internal/models"
)

func supervisorConfig(accounts ...models.Account) *config.Config {
	return &config.Config{
		Accounts: accounts,
		Timeouts: config.TimeoutConfig{GlobalSec: 30, ElementWaitSec: 1, CaptchaSec: 10},
	}
}

// stubWorker returns a fixed outcome, optionally panicking or stalling
// until its deadline.
type stubWorker struct {
	outcome     models.Outcome
	panics      bool
	blockOnCtx  bool
	closed      bool
	sawDeadline bool
}

func (w *stubWorker) Run(ctx context.Context) models.Outcome {
	_, w.sawDeadline = ctx.Deadline()
	if w.panics {
		panic("worker exploded")
	}
	if w.blockOnCtx {
		<-ctx.Done()
		return models.Outcome{Account: w.outcome.Account, Kind: models.OutcomeTimedOut}
	}
	return w.outcome
}

func (w *stubWorker) Close() error {
	w.closed = true
	return nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	outcomes []models.Outcome
}

func (n *recordingNotifier) Notify(ctx context.Context, outcome models.Outcome) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outcomes = append(n.outcomes, outcome)
	return nil
}

func TestSupervisorRunsAllAccounts(t *testing.T) {
	cfg := supervisorConfig(
		models.Account{Name: "a1"},
		models.Account{Name: "a2"},
	)
	workers := map[string]*stubWorker{
		"a1": {outcome: models.Outcome{Account: "a1", Kind: models.OutcomeSuccess, Seat: 158}},
		"a2": {outcome: models.Outcome{Account: "a2", Kind: models.OutcomeExhausted}},
	}
	notifier := &recordingNotifier{}

	s := NewSupervisor(cfg, func(a models.Account) (Worker, error) {
		return workers[a.Name], nil
	}, notifier, zap.NewNop())

	report := s.Run(context.Background())

	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, models.OutcomeSuccess, report.Outcomes[0].Kind)
	assert.Equal(t, models.OutcomeExhausted, report.Outcomes[1].Kind)
	assert.Equal(t, 1, report.Successful())
	assert.Equal(t, 1, report.Failed())

	assert.True(t, workers["a1"].closed)
	assert.True(t, workers["a2"].closed)
	assert.True(t, workers["a1"].sawDeadline, "workers must run under a deadline")
	assert.Len(t, notifier.outcomes, 2)
}

func TestSupervisorIsolatesPanic(t *testing.T) {
	cfg := supervisorConfig(
		models.Account{Name: "boom"},
		models.Account{Name: "fine"},
	)
	workers := map[string]*stubWorker{
		"boom": {panics: true},
		"fine": {outcome: models.Outcome{Account: "fine", Kind: models.OutcomeSuccess, Seat: 160}},
	}

	s := NewSupervisor(cfg, func(a models.Account) (Worker, error) {
		return workers[a.Name], nil
	}, nil, zap.NewNop())

	report := s.Run(context.Background())

	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, models.OutcomeFatal, report.Outcomes[0].Kind)
	assert.Contains(t, report.Outcomes[0].Reason, "panic")
	assert.Equal(t, models.OutcomeSuccess, report.Outcomes[1].Kind)
}

func TestSupervisorFactoryFailureIsFatal(t *testing.T) {
	cfg := supervisorConfig(models.Account{Name: "a1"})

	s := NewSupervisor(cfg, func(a models.Account) (Worker, error) {
		return nil, errors.New("no browser binary")
	}, nil, zap.NewNop())

	report := s.Run(context.Background())
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, models.OutcomeFatal, report.Outcomes[0].Kind)
	assert.Contains(t, report.Outcomes[0].Reason, "no browser binary")
}

func TestSupervisorTimeoutIsolatedPerAccount(t *testing.T) {
	cfg := supervisorConfig(
		models.Account{Name: "stuck"},
		models.Account{Name: "quick"},
	)
	cfg.Timeouts.GlobalSec = 1
	workers := map[string]*stubWorker{
		"stuck": {outcome: models.Outcome{Account: "stuck"}, blockOnCtx: true},
		"quick": {outcome: models.Outcome{Account: "quick", Kind: models.OutcomeSuccess, Seat: 162}},
	}

	s := NewSupervisor(cfg, func(a models.Account) (Worker, error) {
		return workers[a.Name], nil
	}, nil, zap.NewNop())

	start := time.Now()
	report := s.Run(context.Background())

	assert.Equal(t, models.OutcomeTimedOut, report.Outcomes[0].Kind)
	assert.Equal(t, models.OutcomeSuccess, report.Outcomes[1].Kind)
	// The stuck account's deadline fires on its own; nothing waits for
	// the full combined budget.
	assert.Less(t, time.Since(start), 10*time.Second)
}
