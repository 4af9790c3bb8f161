package reservation

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/likewindccc/seatgrab/internal/config"
	"github.com/likewindccc/seatgrab/internal/models"
)

// staggerDelay spaces out account starts so parallel logins do not
// hammer the portal at the same instant.
const staggerDelay = 2 * time.Second

// Worker runs one account to a terminal outcome and owns its browser
// session.
type Worker interface {
	Run(ctx context.Context) models.Outcome
	Close() error
}

// WorkerFactory builds the worker for one account. Called inside the
// account's goroutine so browser startup cost is paid concurrently.
type WorkerFactory func(account models.Account) (Worker, error)

// OutcomeNotifier mirrors terminal outcomes to an external sink.
// Failures are logged and swallowed; notification must never change a
// reservation result.
type OutcomeNotifier interface {
	Notify(ctx context.Context, outcome models.Outcome) error
}

// Supervisor runs every configured account concurrently and in
// isolation: disjoint browser profiles, per-account deadlines, and no
// shared mutable state. One account crashing or timing out leaves the
// others untouched.
type Supervisor struct {
	cfg      *config.Config
	factory  WorkerFactory
	notifier OutcomeNotifier
	logger   *zap.Logger
}

// NewSupervisor wires a supervisor. notifier may be nil.
func NewSupervisor(cfg *config.Config, factory WorkerFactory, notifier OutcomeNotifier, logger *zap.Logger) *Supervisor {
	return &Supervisor{cfg: cfg, factory: factory, notifier: notifier, logger: logger}
}

// Run executes all accounts and blocks until every one reaches a
// terminal outcome. The returned report holds one outcome per account
// in configuration order.
func (s *Supervisor) Run(ctx context.Context) *models.RunReport {
	start := time.Now()
	outcomes := make([]models.Outcome, len(s.cfg.Accounts))

	var g errgroup.Group
	for i, account := range s.cfg.Accounts {
		i, account := i, account
		g.Go(func() error {
			outcomes[i] = s.runAccount(ctx, i, account)
			return nil
		})
	}
	_ = g.Wait()

	report := &models.RunReport{
		Outcomes:  outcomes,
		StartedAt: start,
		Elapsed:   time.Since(start),
	}

	for _, outcome := range report.Outcomes {
		s.notify(outcome)
	}

	s.logger.Info("run complete",
		zap.Int("accounts", len(outcomes)),
		zap.Int("successful", report.Successful()),
		zap.Int("failed", report.Failed()),
		zap.Duration("elapsed", report.Elapsed))
	return report
}

// runAccount isolates one account: staggered start, its own deadline,
// its own worker, and panic containment.
func (s *Supervisor) runAccount(ctx context.Context, index int, account models.Account) (outcome models.Outcome) {
	outcome = models.Outcome{Account: account.Name, Kind: models.OutcomeFatal}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("account worker panicked",
				zap.String("account", account.Name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			outcome = models.Outcome{
				Account: account.Name,
				Kind:    models.OutcomeFatal,
				Reason:  fmt.Sprintf("panic: %v", r),
			}
		}
	}()

	if index > 0 {
		select {
		case <-ctx.Done():
			outcome.Kind = models.OutcomeTimedOut
			outcome.Reason = "cancelled before start"
			return outcome
		case <-time.After(time.Duration(index) * staggerDelay):
		}
	}

	accountCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.Global())
	defer cancel()

	worker, err := s.factory(account)
	if err != nil {
		outcome.Reason = fmt.Sprintf("start worker: %v", err)
		return outcome
	}
	defer func() {
		if err := worker.Close(); err != nil {
			s.logger.Warn("close worker", zap.String("account", account.Name), zap.Error(err))
		}
	}()

	return worker.Run(accountCtx)
}

func (s *Supervisor) notify(outcome models.Outcome) {
	if s.notifier == nil {
		return
	}
	// Detached from the run context so outcomes still go out after a
	// cancelled run.
	notifyCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.notifier.Notify(notifyCtx, outcome); err != nil {
		s.logger.Warn("notification failed",
			zap.String("account", outcome.Account), zap.Error(err))
	}
}
