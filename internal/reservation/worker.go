package reservation

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/likewindccc/seatgrab/internal/auth"
	"github.com/likewindccc/seatgrab/internal/browser"
	"github.com/likewindccc/seatgrab/internal/captcha"
	"github.com/likewindccc/seatgrab/internal/config"
	"github.com/likewindccc/seatgrab/internal/dates"
	"github.com/likewindccc/seatgrab/internal/logging"
	"github.com/likewindccc/seatgrab/internal/models"
)

// SessionWorker is the production Worker: a real browser session plus
// the wired state machine for one account.
type SessionWorker struct {
	client  *browser.Client
	machine *Machine
	account models.Account
}

var _ Worker = (*SessionWorker)(nil)

// NewSessionWorker launches the account's browser and assembles the
// reservation pipeline around it.
func NewSessionWorker(cfg *config.Config, account models.Account, target dates.Target, logger *zap.Logger) (*SessionWorker, error) {
	accountLogger := logger.Named(account.Name)

	client, err := browser.Launch(browser.Options{
		Headless:    cfg.Browser.Headless,
		UserAgent:   cfg.Browser.UserAgent,
		ProfileDir:  account.ProfileDir,
		Window:      account.Window,
		WaitTimeout: cfg.Timeouts.ElementWait(),
	}, accountLogger)
	if err != nil {
		return nil, err
	}

	artifacts := logging.NewArtifacts(cfg.Paths.ErrorDir, accountLogger)
	login := auth.NewLogin(client, cfg.Portal.LoginURL, cfg.Selectors, accountLogger)
	recognizer := captcha.NewHTTPRecognizer(cfg.Captcha.RecognizerURL)
	planner := &captcha.Planner{Rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
	solver := captcha.NewSolver(client, recognizer, planner, cfg.Captcha, cfg.Selectors, accountLogger).
		WithArtifacts(artifacts, account.Name)
	machine := NewMachine(client, login, solver, cfg, target, artifacts, accountLogger)

	return &SessionWorker{client: client, machine: machine, account: account}, nil
}

// Run drives the account to a terminal outcome.
func (w *SessionWorker) Run(ctx context.Context) models.Outcome {
	return w.machine.Run(ctx, w.account)
}

// Close tears down the browser session.
func (w *SessionWorker) Close() error {
	return w.client.Close()
}

// DefaultFactory builds SessionWorkers for the supervisor.
func DefaultFactory(cfg *config.Config, target dates.Target, logger *zap.Logger) WorkerFactory {
	return func(account models.Account) (Worker, error) {
		return NewSessionWorker(cfg, account, target, logger)
	}
}
