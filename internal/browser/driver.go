// Package browser drives the portal UI through playwright. The Driver
// interface is what the reservation flow programs against; the
// playwright client is one implementation of it, and tests substitute
// their own.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrElementTimeout reports that an expected element never reached the
// requested state before the wait expired.
var ErrElementTimeout = errors.New("element wait timed out")

// Rect is an element's bounding box in page coordinates.
type Rect struct {
	X, Y, Width, Height float64
}

// PointerStep is one segment of a pointer drag: an offset from the
// drag origin and the pause taken before moving there.
type PointerStep struct {
	DX    float64
	DY    float64
	Delay time.Duration
}

// Driver is the browser capability surface the reservation flow needs.
// Every blocking call honors its context; a wait bounded by the
// configured element timeout returns ErrElementTimeout when it lapses.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string) error
	WaitHidden(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error

	// Exists reports whether the selector matches right now, without
	// waiting.
	Exists(selector string) (bool, error)
	Text(ctx context.Context, selector string) (string, error)
	Attribute(ctx context.Context, selector, name string) (string, error)
	BoundingBox(ctx context.Context, selector string) (Rect, error)
	Eval(ctx context.Context, expression string) (any, error)

	// Drag presses the pointer on the element's center and replays the
	// step sequence before releasing.
	Drag(ctx context.Context, selector string, steps []PointerStep) error

	Screenshot(path string) error
	PageHTML() (string, error)
	URL() string
}
