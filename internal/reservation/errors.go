package reservation

import "errors"

// ErrSeatUnavailable is the portal's signal that the chosen seat is
// already taken. The candidate loop advances past it.
var ErrSeatUnavailable = errors.New("seat unavailable")

// ErrExhausted reports that every candidate seat failed.
var ErrExhausted = errors.New("all candidate seats exhausted")
