package captcha

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrDistanceTooShort marks a recognized distance below the valid
	// floor. Treated as a recognition failure: fetch a fresh challenge
	// instead of dragging.
	ErrDistanceTooShort = errors.New("recognized distance below valid floor")

	// ErrRecognition is a recoverable estimation failure.
	ErrRecognition = errors.New("slide distance recognition failed")

	// ErrAttemptsExhausted reports that the solve loop hit its attempt
	// ceiling without success.
	ErrAttemptsExhausted = errors.New("captcha attempts exhausted")
)

// Challenge is one slide puzzle: the full background with the gap and
// the cut-out piece the slider carries.
type Challenge struct {
	Background []byte
	Piece      []byte
}

// Recognizer estimates the horizontal gap offset in background-image
// pixel coordinates.
type Recognizer interface {
	SlideOffset(ctx context.Context, ch Challenge) (int, error)
}

// HTTPRecognizer calls a ddddocr-compatible HTTP service that exposes
// slide matching. Images travel base64-encoded in a JSON body.
type HTTPRecognizer struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPRecognizer builds a recognizer against baseURL.
func NewHTTPRecognizer(baseURL string) *HTTPRecognizer {
	return &HTTPRecognizer{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type slideMatchRequest struct {
	TargetImage     string `json:"target_img"`
	BackgroundImage string `json:"background_img"`
	SimpleTarget    bool   `json:"simple_target"`
}

type slideMatchResponse struct {
	Success bool   `json:"success"`
	Target  []int  `json:"target"`
	Msg     string `json:"msg"`
}

// SlideOffset posts the image pair and returns the gap's left edge X.
func (r *HTTPRecognizer) SlideOffset(ctx context.Context, ch Challenge) (int, error) {
	if len(ch.Background) == 0 || len(ch.Piece) == 0 {
		return 0, fmt.Errorf("%w: empty challenge image", ErrRecognition)
	}

	payload, err := json.Marshal(slideMatchRequest{
		TargetImage:     base64.StdEncoding.EncodeToString(ch.Piece),
		BackgroundImage: base64.StdEncoding.EncodeToString(ch.Background),
		SimpleTarget:    true,
	})
	if err != nil {
		return 0, fmt.Errorf("encode slide match request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/slide_match", bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build slide match request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRecognition, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("%w: read response: %v", ErrRecognition, err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: status %d", ErrRecognition, resp.StatusCode)
	}

	var result slideMatchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("%w: parse response: %v", ErrRecognition, err)
	}
	if !result.Success || len(result.Target) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrRecognition, result.Msg)
	}
	return result.Target[0], nil
}

// HealthCheck probes the recognizer service.
func (r *HTTPRecognizer) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+"/ping", nil)
	if err != nil {
		return err
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return fmt.Errorf("recognizer unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("recognizer unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
