// Package auth performs the portal login and lifts the session token
// for API access.
package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/likewindccc/seatgrab/internal/browser"
	"github.com/likewindccc/seatgrab/internal/config"
	"github.com/likewindccc/seatgrab/internal/models"
)

// ErrAuthFailed marks rejected credentials. Retrying cannot help, the
// account run must terminate.
var ErrAuthFailed = errors.New("authentication failed")

// tokenScript reads the session JWT the portal stores after login.
const tokenScript = `() => {
	return localStorage.getItem('token') || sessionStorage.getItem('token') || '';
}`

// Login signs the account into the portal and lands on the app home
// screen. The persistent profile may already hold a session; in that
// case the login form never appears and the flow skips straight to the
// app entry.
type Login struct {
	driver    browser.Driver
	loginURL  string
	selectors config.Selectors
	logger    *zap.Logger
}

// NewLogin wires a login flow.
func NewLogin(driver browser.Driver, loginURL string, selectors config.Selectors, logger *zap.Logger) *Login {
	return &Login{driver: driver, loginURL: loginURL, selectors: selectors, logger: logger}
}

// Run navigates to the portal and authenticates the account. It
// returns ErrAuthFailed when the login form rejects the credentials;
// any other failure is a driver problem.
func (l *Login) Run(ctx context.Context, account models.Account) error {
	if err := l.driver.Navigate(ctx, l.loginURL); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}

	onForm, err := l.driver.Exists(l.selectors.UsernameInput)
	if err != nil {
		return fmt.Errorf("probe login form: %w", err)
	}

	if onForm {
		if err := l.submitCredentials(ctx, account); err != nil {
			return err
		}
	} else {
		l.logger.Info("session restored from profile, skipping login form",
			zap.String("account", account.Name))
	}

	return l.enterApp(ctx, account)
}

func (l *Login) submitCredentials(ctx context.Context, account models.Account) error {
	if err := l.driver.Fill(ctx, l.selectors.UsernameInput, account.Username); err != nil {
		return fmt.Errorf("fill username: %w", err)
	}
	if err := l.driver.Fill(ctx, l.selectors.PasswordInput, account.Password); err != nil {
		return fmt.Errorf("fill password: %w", err)
	}
	if err := l.driver.Click(ctx, l.selectors.LoginButton); err != nil {
		return fmt.Errorf("click login: %w", err)
	}

	// The app entry replaces the form on success. A form still present
	// after the wait means the credentials were rejected.
	if err := l.driver.WaitVisible(ctx, l.selectors.AppEntryImage); err != nil {
		if errors.Is(err, browser.ErrElementTimeout) {
			if stillOnForm, probeErr := l.driver.Exists(l.selectors.UsernameInput); probeErr == nil && stillOnForm {
				return fmt.Errorf("%w: account %s", ErrAuthFailed, account.Name)
			}
		}
		return fmt.Errorf("wait for app entry: %w", err)
	}
	return nil
}

func (l *Login) enterApp(ctx context.Context, account models.Account) error {
	if visible, err := l.driver.Exists(l.selectors.AppEntryImage); err == nil && visible {
		if err := l.driver.Click(ctx, l.selectors.AppEntryImage); err != nil {
			return fmt.Errorf("open app: %w", err)
		}
	}
	if err := l.driver.WaitVisible(ctx, l.selectors.AppIcon); err != nil {
		return fmt.Errorf("wait for app home: %w", err)
	}

	l.dismissNotice(ctx)
	l.logger.Info("logged in", zap.String("account", account.Name))
	return nil
}

// dismissNotice closes the occasional announcement popup. Its absence
// is the normal case.
func (l *Login) dismissNotice(ctx context.Context) {
	present, err := l.driver.Exists(l.selectors.IKnowButton)
	if err != nil || !present {
		return
	}
	if err := l.driver.Click(ctx, l.selectors.IKnowButton); err != nil {
		l.logger.Debug("dismiss notice popup", zap.Error(err))
	}
}

// SessionToken reads the logged-in session's JWT for API use. Empty
// when the portal has not stored one.
func SessionToken(ctx context.Context, driver browser.Driver) (string, error) {
	value, err := driver.Eval(ctx, tokenScript)
	if err != nil {
		return "", fmt.Errorf("read session token: %w", err)
	}
	token, _ := value.(string)
	return token, nil
}
