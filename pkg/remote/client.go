package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/halolaba/halolaba-client/pkg/models"
)

// Client is the HTTP implementation of Store.
//
// Routes: POST /rest/{table}, PATCH /rest/{table}/{id},
// DELETE /rest/{table}/{id}, GET /rest/{table}?{filters}&order=&limit=,
// GET /health.
type Client struct {
	serverURL string
	http      *http.Client
	retry     *RetryConfig
}

// NewClient creates a client for the row store at serverURL.
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		http:      &http.Client{Timeout: 15 * time.Second},
		retry:     DefaultRetryConfig(),
	}
}

func (c *Client) tableURL(table string) string {
	return fmt.Sprintf("%s/rest/%s", c.serverURL, url.PathEscape(table))
}

func (c *Client) rowURL(table, id string) string {
	return fmt.Sprintf("%s/rest/%s/%s", c.serverURL, url.PathEscape(table), url.PathEscape(id))
}

// InsertRow implements Store. Writes are single-attempt: a timed-out
// insert may have landed on the server, and the offline queue, not the
// transport layer, is the retry mechanism for writes.
func (c *Client) InsertRow(ctx context.Context, table string, row models.Row) (models.Row, error) {
	body, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tableURL(table), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, unreachable(err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var stored models.Row
	if err := json.NewDecoder(resp.Body).Decode(&stored); err != nil {
		return nil, fmt.Errorf("decode inserted row: %w", err)
	}
	return stored, nil
}

// UpdateRow implements Store.
func (c *Client) UpdateRow(ctx context.Context, table, id string, row models.Row) error {
	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.rowURL(table, id), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return unreachable(err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// DeleteRow implements Store.
func (c *Client) DeleteRow(ctx context.Context, table, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.rowURL(table, id), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return unreachable(err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// SelectRows implements Store. Selects are idempotent, so transient
// failures are retried with backoff before giving up.
func (c *Client) SelectRows(ctx context.Context, table string, q Query) ([]models.Row, error) {
	u, err := url.Parse(c.tableURL(table))
	if err != nil {
		return nil, err
	}
	vals := u.Query()
	for field, want := range q.Filter {
		vals.Set(field, want)
	}
	if q.OrderBy != "" {
		order := q.OrderBy
		if q.Descending {
			order += ".desc"
		}
		vals.Set("order", order)
	}
	if q.Limit > 0 {
		vals.Set("limit", strconv.Itoa(q.Limit))
	}
	u.RawQuery = vals.Encode()

	var rows []models.Row
	err = withRetry(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return unreachable(err)
		}
		defer resp.Body.Close()
		if err := checkStatus(resp); err != nil {
			return err
		}
		rows = nil
		return json.NewDecoder(resp.Body).Decode(&rows)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Ping implements Store.
func (c *Client) Ping(ctx context.Context) error {
	return withRetry(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/health", nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return unreachable(err)
		}
		defer resp.Body.Close()
		return checkStatus(resp)
	})
}

// checkStatus maps the response status onto the error taxonomy: 2xx is
// success, 5xx counts as unreachable (the server may recover), anything
// else is a definitive rejection.
func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: server returned %d", ErrUnreachable, resp.StatusCode)
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RejectedError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
}

func unreachable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}
