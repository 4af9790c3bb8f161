package captcha

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/likewindccc/seatgrab/internal/browser"
	"github.com/likewindccc/seatgrab/internal/config"
	"github.com/likewindccc/seatgrab/internal/logging"
	"github.com/likewindccc/seatgrab/internal/models"
)

// backgroundScript pulls the background image data URL out of the
// captcha widget.
const backgroundScript = `() => {
	const bgImg = document.getElementById('tianai-captcha-slider-bg-img');
	if (bgImg && bgImg.tagName === 'IMG') {
		return bgImg.src;
	}
	return null;
}`

// pieceScript pulls the slider piece: a dedicated img element when the
// widget renders one, otherwise the CSS background-image of the drag
// button.
const pieceScript = `() => {
	const pieceImg = document.getElementById('tianai-captcha-slider-move-img');
	if (pieceImg && pieceImg.tagName === 'IMG' && pieceImg.src) {
		return pieceImg.src;
	}
	const btn = document.getElementById('tianai-captcha-slider-move-btn');
	if (btn) {
		const bg = window.getComputedStyle(btn).backgroundImage;
		const match = bg.match(/url\(["']?(data:image\/[^;]+;base64,[^"')]+)["']?\)/);
		if (match) {
			return match[1];
		}
	}
	return null;
}`

// scaleScript measures how much the browser scales the background
// image. Recognized offsets are in natural-image coordinates and must
// be multiplied by displayed/natural before dragging.
const scaleScript = `() => {
	const bgImg = document.getElementById('tianai-captcha-slider-bg-img');
	if (!bgImg || bgImg.naturalWidth === 0) {
		return 0;
	}
	return bgImg.clientWidth / bgImg.naturalWidth;
}`

// verifyWait bounds the pause for the popup to dismiss after a drag.
const verifyWait = 2 * time.Second

// Solver runs the slide captcha loop: fetch challenge, recognize,
// calibrate, drag, verify, retry. Every retry works on a freshly
// fetched challenge since the widget rotates images after a failure.
type Solver struct {
	driver     browser.Driver
	recognizer Recognizer
	planner    *Planner
	cfg        config.CaptchaConfig
	selectors  config.Selectors
	logger     *zap.Logger

	artifacts *logging.Artifacts
	account   string
}

// WithArtifacts attaches a failure-screenshot sink. Each verification
// mismatch then records an artifact path.
func (s *Solver) WithArtifacts(a *logging.Artifacts, account string) *Solver {
	s.artifacts = a
	s.account = account
	return s
}

// NewSolver wires a solver. The planner's floor comes from the
// configured minimum distance.
func NewSolver(driver browser.Driver, recognizer Recognizer, planner *Planner, cfg config.CaptchaConfig, selectors config.Selectors, logger *zap.Logger) *Solver {
	planner.MinDistance = cfg.MinDistance
	return &Solver{
		driver:     driver,
		recognizer: recognizer,
		planner:    planner,
		cfg:        cfg,
		selectors:  selectors,
		logger:     logger,
	}
}

// Solve drives the captcha to completion. It returns the per-drag
// attempt records alongside the outcome: nil on success,
// ErrAttemptsExhausted when the ceiling is hit, the underlying error
// when the driver or the context fails. Recognition failures consume
// an attempt but produce no record since no drag happened.
func (s *Solver) Solve(ctx context.Context) ([]models.AttemptRecord, error) {
	if err := s.driver.WaitVisible(ctx, s.selectors.SliderPopup); err != nil {
		return nil, fmt.Errorf("captcha popup did not appear: %w", err)
	}

	var records []models.AttemptRecord
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return records, err
		}

		raw, calibrated, err := s.estimate(ctx)
		if err != nil {
			if errors.Is(err, ErrRecognition) || errors.Is(err, ErrDistanceTooShort) {
				s.logger.Debug("distance estimation failed, refetching challenge",
					zap.Int("attempt", attempt), zap.Error(err))
				s.pause(ctx, 500*time.Millisecond)
				continue
			}
			return records, err
		}

		plan, err := s.planner.Trajectory(calibrated)
		if err != nil {
			s.logger.Debug("trajectory rejected", zap.Int("attempt", attempt), zap.Error(err))
			s.pause(ctx, 500*time.Millisecond)
			continue
		}

		record := models.AttemptRecord{Index: attempt, Recognized: raw, Calibrated: calibrated}
		if err := s.driver.Drag(ctx, s.selectors.SliderButton, pointerSteps(plan)); err != nil {
			record.Outcome = models.AttemptDriverError
			records = append(records, record)
			return records, fmt.Errorf("drag slider: %w", err)
		}

		if s.verified(ctx) {
			record.Outcome = models.AttemptSuccess
			records = append(records, record)
			s.logger.Info("captcha solved",
				zap.Int("attempt", attempt),
				zap.Int("distance", calibrated))
			return records, nil
		}

		record.Outcome = models.AttemptMismatch
		if s.artifacts != nil {
			record.Screenshot = s.artifacts.Capture(s.driver, s.account, fmt.Sprintf("captcha_attempt%d", attempt))
		}
		records = append(records, record)
		s.logger.Debug("verification rejected, retrying",
			zap.Int("attempt", attempt), zap.Int("distance", calibrated))
		s.pause(ctx, 500*time.Millisecond)
	}

	return records, ErrAttemptsExhausted
}

// estimate fetches a fresh challenge and turns it into a calibrated
// drag distance in page pixels.
func (s *Solver) estimate(ctx context.Context) (raw, calibrated int, err error) {
	ch, err := s.fetchChallenge(ctx)
	if err != nil {
		return 0, 0, err
	}

	raw, err = s.recognizer.SlideOffset(ctx, ch)
	if err != nil {
		return 0, 0, err
	}

	ratio := s.scaleRatio(ctx)
	calibrated = int(math.Round(float64(raw)*ratio)) + s.cfg.DistanceOffset - s.cfg.SafeMargin
	if calibrated <= s.cfg.MinDistance {
		return raw, calibrated, fmt.Errorf("%w: %dpx after calibration", ErrDistanceTooShort, calibrated)
	}
	return raw, calibrated, nil
}

func (s *Solver) fetchChallenge(ctx context.Context) (Challenge, error) {
	bg, err := s.imageFromScript(ctx, backgroundScript)
	if err != nil {
		return Challenge{}, fmt.Errorf("%w: background: %v", ErrRecognition, err)
	}
	piece, err := s.imageFromScript(ctx, pieceScript)
	if err != nil {
		return Challenge{}, fmt.Errorf("%w: piece: %v", ErrRecognition, err)
	}
	return Challenge{Background: bg, Piece: piece}, nil
}

func (s *Solver) imageFromScript(ctx context.Context, script string) ([]byte, error) {
	value, err := s.driver.Eval(ctx, script)
	if err != nil {
		return nil, err
	}
	dataURL, ok := value.(string)
	if !ok || dataURL == "" {
		return nil, errors.New("image not present")
	}
	if idx := strings.Index(dataURL, "base64,"); idx >= 0 {
		dataURL = dataURL[idx+len("base64,"):]
	}
	raw, err := base64.StdEncoding.DecodeString(dataURL)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return raw, nil
}

// scaleRatio falls back to 1.0 when the measurement script cannot run;
// an unscaled drag is the best remaining guess.
func (s *Solver) scaleRatio(ctx context.Context) float64 {
	value, err := s.driver.Eval(ctx, scaleScript)
	if err != nil {
		s.logger.Debug("scale ratio measurement failed", zap.Error(err))
		return 1.0
	}
	ratio, ok := toFloat(value)
	if !ok || ratio <= 0 {
		return 1.0
	}
	return ratio
}

// verified waits briefly for the popup to dismiss after a drag.
func (s *Solver) verified(ctx context.Context) bool {
	wait, cancel := context.WithTimeout(ctx, verifyWait)
	defer cancel()
	return s.driver.WaitHidden(wait, s.selectors.SliderPopup) == nil
}

func (s *Solver) pause(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// pointerSteps converts a plan's incremental deltas into the absolute
// offsets the drag executor replays.
func pointerSteps(plan *Plan) []browser.PointerStep {
	steps := make([]browser.PointerStep, len(plan.Steps))
	x := 0
	for i, st := range plan.Steps {
		x += st.DX
		steps[i] = browser.PointerStep{DX: float64(x), DY: float64(st.DY), Delay: st.Delay}
	}
	return steps
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
