package browser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/likewindccc/seatgrab/internal/models"
)

// Options configure one browser session. Each account gets its own
// persistent profile directory so cookies and local storage survive
// across runs and accounts never share state.
type Options struct {
	Headless    bool
	UserAgent   string
	ProfileDir  string
	Window      models.WindowRect
	WaitTimeout time.Duration
}

// Client is the playwright-backed Driver.
type Client struct {
	pw      *playwright.Playwright
	context playwright.BrowserContext
	page    playwright.Page
	opts    Options
	logger  *zap.Logger
}

var _ Driver = (*Client)(nil)

// Launch starts Chromium with a persistent profile and returns a ready
// client. Browsers must be installed beforehand:
// go run github.com/playwright-community/playwright-go/cmd/playwright@latest install chromium
func Launch(opts Options, logger *zap.Logger) (*Client, error) {
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 10 * time.Second
	}
	if err := os.MkdirAll(opts.ProfileDir, 0o755); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	args := []string{
		"--disable-blink-features=AutomationControlled",
		"--disable-dev-shm-usage",
		"--no-sandbox",
		"--disable-setuid-sandbox",
	}
	if opts.Window.Width > 0 && opts.Window.Height > 0 {
		args = append(args,
			fmt.Sprintf("--window-position=%d,%d", opts.Window.X, opts.Window.Y),
			fmt.Sprintf("--window-size=%d,%d", opts.Window.Width, opts.Window.Height),
		)
	}

	ctxOpts := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:  playwright.Bool(opts.Headless),
		UserAgent: playwright.String(opts.UserAgent),
		Args:      args,
	}
	if opts.Window.Width > 0 && opts.Window.Height > 0 {
		ctxOpts.Viewport = &playwright.Size{Width: opts.Window.Width, Height: opts.Window.Height}
	}

	browserCtx, err := pw.Chromium.LaunchPersistentContext(opts.ProfileDir, ctxOpts)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch persistent context: %w", err)
	}

	var page playwright.Page
	if pages := browserCtx.Pages(); len(pages) > 0 {
		page = pages[0]
	} else {
		page, err = browserCtx.NewPage()
		if err != nil {
			_ = browserCtx.Close()
			_ = pw.Stop()
			return nil, fmt.Errorf("create page: %w", err)
		}
	}

	waitMS := float64(opts.WaitTimeout.Milliseconds())
	page.SetDefaultTimeout(waitMS)
	page.SetDefaultNavigationTimeout(waitMS * 3)

	logger.Debug("browser launched",
		zap.String("profile", opts.ProfileDir),
		zap.Bool("headless", opts.Headless))

	return &Client{pw: pw, context: browserCtx, page: page, opts: opts, logger: logger}, nil
}

// Close tears down the context and the playwright driver.
func (c *Client) Close() error {
	var firstErr error
	if c.context != nil {
		if err := c.context.Close(); err != nil {
			firstErr = err
		}
	}
	if c.pw != nil {
		if err := c.pw.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// timeoutMS returns the wait budget in milliseconds, shrunk to the
// context deadline when that is sooner.
func (c *Client) timeoutMS(ctx context.Context) float64 {
	budget := c.opts.WaitTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < budget {
			budget = remaining
		}
	}
	if budget <= 0 {
		return 1
	}
	return float64(budget.Milliseconds())
}

func wrapTimeout(err error, selector string) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "Timeout") || strings.Contains(err.Error(), "timeout") {
		return fmt.Errorf("%w: %s", ErrElementTimeout, selector)
	}
	return err
}

func (c *Client) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(c.timeoutMS(ctx) * 3),
	})
	if err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (c *Client) WaitVisible(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := c.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(c.timeoutMS(ctx)),
	})
	return wrapTimeout(err, selector)
}

func (c *Client) WaitHidden(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := c.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateHidden,
		Timeout: playwright.Float(c.timeoutMS(ctx)),
	})
	return wrapTimeout(err, selector)
}

func (c *Client) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := c.page.Locator(selector).First().Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(c.timeoutMS(ctx)),
	})
	return wrapTimeout(err, selector)
}

func (c *Client) Fill(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := c.page.Locator(selector).First().Fill(value, playwright.LocatorFillOptions{
		Timeout: playwright.Float(c.timeoutMS(ctx)),
	})
	return wrapTimeout(err, selector)
}

func (c *Client) Exists(selector string) (bool, error) {
	count, err := c.page.Locator(selector).Count()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (c *Client) Text(ctx context.Context, selector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := c.page.Locator(selector).First().InnerText(playwright.LocatorInnerTextOptions{
		Timeout: playwright.Float(c.timeoutMS(ctx)),
	})
	if err != nil {
		return "", wrapTimeout(err, selector)
	}
	return text, nil
}

func (c *Client) Attribute(ctx context.Context, selector, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	value, err := c.page.Locator(selector).First().GetAttribute(name, playwright.LocatorGetAttributeOptions{
		Timeout: playwright.Float(c.timeoutMS(ctx)),
	})
	if err != nil {
		return "", wrapTimeout(err, selector)
	}
	return value, nil
}

func (c *Client) BoundingBox(ctx context.Context, selector string) (Rect, error) {
	if err := ctx.Err(); err != nil {
		return Rect{}, err
	}
	box, err := c.page.Locator(selector).First().BoundingBox()
	if err != nil {
		return Rect{}, wrapTimeout(err, selector)
	}
	if box == nil {
		return Rect{}, fmt.Errorf("%w: %s has no bounding box", ErrElementTimeout, selector)
	}
	return Rect{X: box.X, Y: box.Y, Width: box.Width, Height: box.Height}, nil
}

// Eval runs the expression in the page, bounded by the wait budget. A
// wedged page must not stall the account past its deadline, so the
// evaluation runs on its own goroutine and is abandoned on timeout.
func (c *Client) Eval(ctx context.Context, expression string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type result struct {
		value any
		err   error
	}
	done := make(chan result, 1)
	go func() {
		value, err := c.page.Evaluate(expression)
		done <- result{value: value, err: err}
	}()

	timer := time.NewTimer(time.Duration(c.timeoutMS(ctx)) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w: evaluate", ErrElementTimeout)
	case r := <-done:
		return r.value, r.err
	}
}

// Drag presses on the element's center and replays the step offsets
// with their delays, then releases. Pauses honor ctx cancellation.
func (c *Client) Drag(ctx context.Context, selector string, steps []PointerStep) error {
	box, err := c.BoundingBox(ctx, selector)
	if err != nil {
		return err
	}
	startX := box.X + box.Width/2
	startY := box.Y + box.Height/2

	mouse := c.page.Mouse()
	if err := mouse.Move(startX, startY); err != nil {
		return fmt.Errorf("move to drag origin: %w", err)
	}
	if err := mouse.Down(); err != nil {
		return fmt.Errorf("press pointer: %w", err)
	}

	for _, step := range steps {
		if step.Delay > 0 {
			select {
			case <-ctx.Done():
				_ = mouse.Up()
				return ctx.Err()
			case <-time.After(step.Delay):
			}
		}
		if err := mouse.Move(startX+step.DX, startY+step.DY, playwright.MouseMoveOptions{
			Steps: playwright.Int(1),
		}); err != nil {
			_ = mouse.Up()
			return fmt.Errorf("drag move: %w", err)
		}
	}

	if err := mouse.Up(); err != nil {
		return fmt.Errorf("release pointer: %w", err)
	}
	return nil
}

func (c *Client) Screenshot(path string) error {
	_, err := c.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	return err
}

func (c *Client) PageHTML() (string, error) {
	return c.page.Content()
}

func (c *Client) URL() string {
	return c.page.URL()
}
