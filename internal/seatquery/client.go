// Package seatquery reads seat availability, either through the
// portal's JSON API with a token lifted from the logged-in browser
// session, or by parsing the rendered seat map.
package seatquery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Client queries the seat status API. The JWT comes from the browser
// session after login; the API shares the portal's auth.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient builds a seat status client for baseURL using the given
// bearer token.
func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

type seatStatusResponse struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg"`
	Data    struct {
		Seats []struct {
			SeatNumber int    `json:"seatNumber"`
			Status     string `json:"status"`
		} `json:"seats"`
	} `json:"data"`
}

// QueryAvailable returns the available seat numbers for a room and
// date (YYYY-MM-DD).
func (c *Client) QueryAvailable(ctx context.Context, roomID, date string) ([]int, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse seat query url: %w", err)
	}
	q := u.Query()
	q.Set("roomId", roomID)
	q.Set("date", date)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build seat query request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("seat query request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read seat query response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("seat query status %d", resp.StatusCode)
	}

	var result seatStatusResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse seat query response: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("seat query rejected: %s", result.Msg)
	}

	var available []int
	for _, seat := range result.Data.Seats {
		if seat.Status == "available" {
			available = append(available, seat.SeatNumber)
		}
	}
	c.logger.Debug("seat availability fetched",
		zap.String("date", date),
		zap.Int("available", len(available)))
	return available, nil
}

// Available reports whether one specific seat is free.
func (c *Client) Available(ctx context.Context, roomID, date string, seat int) (bool, error) {
	seats, err := c.QueryAvailable(ctx, roomID, date)
	if err != nil {
		return false, err
	}
	for _, s := range seats {
		if s == seat {
			return true, nil
		}
	}
	return false, nil
}
