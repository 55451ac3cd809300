package rankctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the rankd HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a client with a request timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// JobResult is the acknowledgement of a submitted job.
type JobResult struct {
	Status    string `json:"status"`
	JobID     string `json:"job_id"`
	Coalesced bool   `json:"coalesced"`
}

// Entry is one ranked player.
type Entry struct {
	Rank     int     `json:"rank"`
	PlayerID int64   `json:"player_id"`
	Value    float64 `json:"value"`
}

// Page is a leaderboard slice.
type Page struct {
	Metric  string  `json:"metric"`
	Country string  `json:"country"`
	Offset  int     `json:"offset"`
	Total   int     `json:"total"`
	Entries []Entry `json:"entries"`
}

// Country aggregates one country's ranked players.
type Country struct {
	Country       string  `json:"country"`
	Players       int     `json:"players"`
	Performance   float64 `json:"performance"`
	AverageRating float64 `json:"average_rating"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type jobRequest struct {
	Kind     string `json:"kind"`
	PlayerID int64  `json:"player_id"`
	Mode     string `json:"mode,omitempty"`
	Country  string `json:"country,omitempty"`
}

// SubmitJob posts a job of kind for player.
func (c *Client) SubmitJob(ctx context.Context, kind string, playerID int64, mode string) (JobResult, error) {
	var out JobResult
	err := c.do(ctx, http.MethodPost, "/jobs", nil, jobRequest{Kind: kind, PlayerID: playerID, Mode: mode}, &out)
	return out, err
}

// Rank fetches the player's entry. Rank 0 means unranked.
func (c *Client) Rank(ctx context.Context, playerID int64, mode, metric, country string) (Entry, error) {
	q := url.Values{}
	setIf(q, "mode", mode)
	setIf(q, "metric", metric)
	setIf(q, "country", country)
	var out Entry
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/rank/%d", playerID), q, nil, &out)
	return out, err
}

// Top fetches a leaderboard page.
func (c *Client) Top(ctx context.Context, mode, metric, country string, offset, limit int) (Page, error) {
	q := url.Values{}
	setIf(q, "mode", mode)
	setIf(q, "metric", metric)
	setIf(q, "country", country)
	q.Set("offset", fmt.Sprint(offset))
	q.Set("limit", fmt.Sprint(limit))
	var out Page
	err := c.do(ctx, http.MethodGet, "/leaderboard", q, nil, &out)
	return out, err
}

// Countries fetches the country ranking.
func (c *Client) Countries(ctx context.Context, mode string) ([]Country, error) {
	q := url.Values{}
	setIf(q, "mode", mode)
	var out []Country
	err := c.do(ctx, http.MethodGet, "/countries", q, nil, &out)
	return out, err
}

func setIf(q url.Values, key, val string) {
	if val != "" {
		q.Set(key, val)
	}
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	target := c.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var e apiError
		if json.Unmarshal(data, &e) == nil && e.Code != "" {
			return fmt.Errorf("%w: %d %s: %s", ErrResponse, resp.StatusCode, e.Code, e.Message)
		}
		return fmt.Errorf("%w: %d", ErrResponse, resp.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrResponse, err)
	}
	return nil
}
