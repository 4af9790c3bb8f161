// Package reservation holds the per-account reservation state machine,
// the seat candidate loop and the supervisor that runs accounts
// concurrently.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/likewindccc/seatgrab/internal/auth"
	"github.com/likewindccc/seatgrab/internal/browser"
	"github.com/likewindccc/seatgrab/internal/config"
	"github.com/likewindccc/seatgrab/internal/dates"
	"github.com/likewindccc/seatgrab/internal/logging"
	"github.com/likewindccc/seatgrab/internal/models"
)

// State is a stage of one account's reservation run.
type State string

const (
	StateInit            State = "init"
	StateLoggedIn        State = "logged-in"
	StateRoomSelected    State = "room-selected"
	StateDateSelected    State = "date-selected"
	StateSeatNegotiation State = "seat-negotiation"
	StateConfirmed       State = "confirmed"
)

// loginFlow authenticates one account.
type loginFlow interface {
	Run(ctx context.Context, account models.Account) error
}

// captchaSolver runs one slider solve session for a confirmation
// action.
type captchaSolver interface {
	Solve(ctx context.Context) ([]models.AttemptRecord, error)
}

// Machine drives one account from login to a terminal outcome. States
// advance strictly forward; the deadline carried by the run context is
// checked at every transition, and auth failures terminate without
// retry. Any other driver failure at a non-captcha step gets exactly
// one retry before it is fatal.
type Machine struct {
	driver    browser.Driver
	login     loginFlow
	solver    captchaSolver
	cfg       *config.Config
	target    dates.Target
	artifacts *logging.Artifacts
	logger    *zap.Logger

	state    State
	account  string
	attempts int
	tried    []int
}

// NewMachine wires a state machine for one account's session.
func NewMachine(driver browser.Driver, login loginFlow, solver captchaSolver, cfg *config.Config, target dates.Target, artifacts *logging.Artifacts, logger *zap.Logger) *Machine {
	return &Machine{
		driver:    driver,
		login:     login,
		solver:    solver,
		cfg:       cfg,
		target:    target,
		artifacts: artifacts,
		logger:    logger,
		state:     StateInit,
	}
}

// Run executes the account's reservation and always returns a terminal
// outcome. ctx must carry the account's global deadline.
func (m *Machine) Run(ctx context.Context, account models.Account) models.Outcome {
	start := time.Now()
	m.account = account.Name
	outcome := m.run(ctx, account)
	outcome.Account = account.Name
	outcome.Date = m.target.APIDate()
	outcome.Attempts = m.attempts
	outcome.SeatsTried = m.tried
	outcome.Elapsed = time.Since(start)

	m.logger.Info("run finished",
		zap.String("account", account.Name),
		zap.String("outcome", string(outcome.Kind)),
		zap.String("summary", outcome.Summary()))
	return outcome
}

func (m *Machine) run(ctx context.Context, account models.Account) models.Outcome {
	if err := m.transition(ctx, StateInit); err != nil {
		return m.terminal(err)
	}

	if err := m.login.Run(ctx, account); err != nil {
		if errors.Is(err, auth.ErrAuthFailed) {
			return models.Outcome{Kind: models.OutcomeFatal, Reason: err.Error()}
		}
		return m.terminal(fmt.Errorf("login: %w", err))
	}
	if err := m.transition(ctx, StateLoggedIn); err != nil {
		return m.terminal(err)
	}

	if err := m.step(ctx, "enter seat selection", m.enterSeatSelection); err != nil {
		return m.terminal(err)
	}
	if err := m.step(ctx, "select room", m.selectRoom); err != nil {
		return m.terminal(err)
	}
	if err := m.transition(ctx, StateRoomSelected); err != nil {
		return m.terminal(err)
	}

	if err := m.step(ctx, "select date", m.selectDate); err != nil {
		return m.terminal(err)
	}
	if err := m.transition(ctx, StateDateSelected); err != nil {
		return m.terminal(err)
	}

	if err := m.transition(ctx, StateSeatNegotiation); err != nil {
		return m.terminal(err)
	}
	m.previewAvailability(ctx)
	seat, err := m.negotiateSeats(ctx, account.Seats)
	if err != nil {
		if errors.Is(err, ErrExhausted) {
			return models.Outcome{Kind: models.OutcomeExhausted, Reason: err.Error()}
		}
		return m.terminal(err)
	}

	if err := m.transition(ctx, StateConfirmed); err != nil {
		return m.terminal(err)
	}
	return models.Outcome{Kind: models.OutcomeSuccess, Seat: seat}
}

// transition advances the machine, enforcing the deadline at every
// state change.
func (m *Machine) transition(ctx context.Context, to State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.state = to
	m.logger.Debug("state", zap.String("state", string(to)))
	return nil
}

// step runs a UI action with one bounded retry. Deadline and auth
// errors are never retried.
func (m *Machine) step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	m.logger.Warn("step failed, retrying once", zap.String("step", name), zap.Error(err))
	if err = fn(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// terminal maps an escaped error to its terminal outcome.
func (m *Machine) terminal(err error) models.Outcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.Outcome{Kind: models.OutcomeTimedOut, Reason: "global deadline reached"}
	}
	if m.artifacts != nil {
		m.artifacts.Capture(m.driver, m.account, "fatal_"+string(m.state))
	}
	return models.Outcome{Kind: models.OutcomeFatal, Reason: err.Error()}
}

func (m *Machine) enterSeatSelection(ctx context.Context) error {
	sel := m.cfg.Selectors
	if err := m.driver.Click(ctx, sel.SeatSelectTab); err != nil {
		return err
	}
	return m.driver.WaitVisible(ctx, sel.RoomList)
}

func (m *Machine) selectRoom(ctx context.Context) error {
	sel := m.cfg.Selectors
	if err := m.driver.Click(ctx, sel.RoomXPath(m.cfg.Portal.Room)); err != nil {
		return err
	}
	if err := m.driver.WaitVisible(ctx, sel.DatePicker); err != nil {
		return err
	}
	return m.driver.WaitVisible(ctx, sel.CalendarGrid)
}

func (m *Machine) selectDate(ctx context.Context) error {
	sel := m.cfg.Selectors
	if err := m.driver.Click(ctx, m.target.CalendarDayXPath()); err != nil {
		return fmt.Errorf("target date %s not bookable: %w", m.target, err)
	}
	if err := m.driver.Click(ctx, sel.ConfirmDateButton); err != nil {
		return err
	}
	if err := m.driver.WaitVisible(ctx, sel.SeatMap); err != nil {
		return err
	}
	return m.driver.WaitVisible(ctx, sel.SeatItem)
}
