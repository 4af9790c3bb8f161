// Package models holds the domain types shared across the reservation
// pipeline: accounts, per-drag attempt records and terminal outcomes.
package models

import (
	"fmt"
	"time"
)

// WindowRect places an account's browser window on screen so parallel
// sessions can run side by side.
type WindowRect struct {
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Account is one portal identity with its seat preference list.
// Immutable after config load; each account is owned exclusively by the
// worker that runs it.
type Account struct {
	Name       string     `yaml:"name"`
	Username   string     `yaml:"username"`
	Password   string     `yaml:"password"`
	Seats      []int      `yaml:"seats"`
	ProfileDir string     `yaml:"profile_dir"`
	Window     WindowRect `yaml:"window"`
}

// AttemptOutcome classifies a single slider drag execution.
type AttemptOutcome string

const (
	AttemptSuccess     AttemptOutcome = "success"
	AttemptMismatch    AttemptOutcome = "mismatch"
	AttemptDriverError AttemptOutcome = "driver-error"
)

// AttemptRecord captures one drag execution against a slider challenge.
// Exactly one record is produced per drag; estimation failures that
// never reach a drag do not produce records.
type AttemptRecord struct {
	Index      int            // 1-based attempt number within the solve session
	Recognized int            // raw recognizer output in source-image pixels
	Calibrated int            // distance actually dragged, after offset/scale/margin
	Outcome    AttemptOutcome
	Screenshot string // artifact path, set on verification failures
}

// OutcomeKind is the terminal state of one account's reservation run.
type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeExhausted OutcomeKind = "exhausted"
	OutcomeTimedOut  OutcomeKind = "timed-out"
	OutcomeFatal     OutcomeKind = "fatal"
)

// Outcome is the single terminal result of one account's run, consumed
// by the supervisor for logging and notification.
type Outcome struct {
	Account    string
	Kind       OutcomeKind
	Seat       int   // set when Kind == OutcomeSuccess
	SeatsTried []int // seats attempted, in order
	Attempts   int   // total slider drags across all seats
	Date       string
	Reason     string // failure detail for exhausted/timed-out/fatal
	Elapsed    time.Duration
}

// Succeeded reports whether the run ended with a confirmed seat.
func (o Outcome) Succeeded() bool { return o.Kind == OutcomeSuccess }

// Summary renders a one-line human-readable result.
func (o Outcome) Summary() string {
	switch o.Kind {
	case OutcomeSuccess:
		return fmt.Sprintf("seat %d reserved for %s (%d captcha attempts)", o.Seat, o.Date, o.Attempts)
	case OutcomeExhausted:
		return fmt.Sprintf("all candidate seats %v failed for %s", o.SeatsTried, o.Date)
	case OutcomeTimedOut:
		return fmt.Sprintf("deadline reached for %s: %s", o.Date, o.Reason)
	default:
		return fmt.Sprintf("fatal: %s", o.Reason)
	}
}

// RunReport aggregates the outcomes of all accounts in one run.
type RunReport struct {
	Outcomes  []Outcome
	StartedAt time.Time
	Elapsed   time.Duration
}

// Successful counts accounts that reserved a seat.
func (r *RunReport) Successful() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Succeeded() {
			n++
		}
	}
	return n
}

// Failed counts accounts that terminated without a seat.
func (r *RunReport) Failed() int { return len(r.Outcomes) - r.Successful() }
