package reservation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/likewindccc/seatgrab/internal/auth"
	"github.com/likewindccc/seatgrab/internal/browser"
	"github.com/likewindccc/seatgrab/internal/captcha"
	"github.com/likewindccc/seatgrab/internal/seatquery"
)

// previewAvailability logs which seats are open before negotiation
// starts. The seat status API is preferred, using the JWT the portal
// stored during login; when no token or API endpoint is available the
// rendered seat map is parsed instead. Purely informational: any
// failure here is logged and negotiation proceeds regardless.
func (m *Machine) previewAvailability(ctx context.Context) {
	if token, err := auth.SessionToken(ctx, m.driver); err == nil && token != "" && m.cfg.Portal.SeatQueryURL != "" {
		client := seatquery.NewClient(m.cfg.Portal.SeatQueryURL, token, m.logger)
		available, err := client.QueryAvailable(ctx, m.cfg.Portal.Room, m.target.APIDate())
		if err == nil {
			m.logger.Info("seat availability", zap.Ints("available", available))
			return
		}
		m.logger.Debug("seat status query failed, falling back to seat map", zap.Error(err))
	}

	html, err := m.driver.PageHTML()
	if err != nil {
		m.logger.Debug("seat map read failed", zap.Error(err))
		return
	}
	seats, err := seatquery.ParseSeatMap(html)
	if err != nil {
		m.logger.Debug("seat map parse failed", zap.Error(err))
		return
	}
	m.logger.Info("seat availability",
		zap.Ints("available", seatquery.AvailableNumbers(seats)))
}

// negotiateSeats walks the candidate list in strict priority order.
// The first seat whose confirmation survives the captcha wins and no
// later candidate is touched; a seat passed over is never revisited.
func (m *Machine) negotiateSeats(ctx context.Context, seats []int) (int, error) {
	for _, seat := range seats {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		m.tried = append(m.tried, seat)

		err := m.trySeat(ctx, seat)
		if err == nil {
			return seat, nil
		}
		if errors.Is(err, ErrSeatUnavailable) || errors.Is(err, captcha.ErrAttemptsExhausted) {
			m.logger.Info("seat failed, advancing to next candidate",
				zap.Int("seat", seat), zap.Error(err))
			continue
		}
		return 0, err
	}
	return 0, fmt.Errorf("%w: %v", ErrExhausted, seats)
}

// trySeat selects one seat and pushes its confirmation through the
// captcha. nil means the reservation is confirmed for this seat.
func (m *Machine) trySeat(ctx context.Context, seat int) error {
	sel := m.cfg.Selectors

	if err := m.driver.Click(ctx, sel.SeatXPath(seat)); err != nil {
		if errors.Is(err, browser.ErrElementTimeout) {
			return fmt.Errorf("%w: seat %d not clickable", ErrSeatUnavailable, seat)
		}
		return fmt.Errorf("click seat %d: %w", seat, err)
	}
	if taken, err := m.driver.Exists(sel.SeatUnavailableToast); err == nil && taken {
		return fmt.Errorf("%w: seat %d", ErrSeatUnavailable, seat)
	}

	if err := m.driver.Click(ctx, sel.ConfirmButton); err != nil {
		return fmt.Errorf("confirm seat %d: %w", seat, err)
	}

	records, err := m.solver.Solve(ctx)
	m.attempts += len(records)
	if err != nil {
		return err
	}

	return m.verifyConfirmation(ctx, seat)
}

// verifyConfirmation settles the post-captcha state. The portal may
// still reject a seat that got taken mid-flight; that reads as
// unavailable so the loop can move on.
func (m *Machine) verifyConfirmation(ctx context.Context, seat int) error {
	sel := m.cfg.Selectors

	// Some portal builds show a final confirm dialog after the slider.
	if present, err := m.driver.Exists(sel.SliderConfirm); err == nil && present {
		if err := m.driver.Click(ctx, sel.SliderConfirm); err != nil {
			m.logger.Debug("post-captcha confirm click failed", zap.Error(err))
		}
	}

	if taken, err := m.driver.Exists(sel.SeatUnavailableToast); err == nil && taken {
		return fmt.Errorf("%w: seat %d taken during confirmation", ErrSeatUnavailable, seat)
	}

	if found, err := m.driver.Exists(sel.SuccessMessage); err == nil && found {
		return nil
	}

	// The dismissed captcha popup is itself a success signal when no
	// explicit message renders.
	if popup, err := m.driver.Exists(sel.SliderPopup); err == nil && popup {
		return fmt.Errorf("%w: seat %d confirmation did not settle", ErrSeatUnavailable, seat)
	}
	return nil
}
