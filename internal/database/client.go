package database

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrUnauthorized  = errors.New("not authorized")
	ErrConflict      = errors.New("record conflict")
	ErrInvalidEntry  = errors.New("invalid entry")
	ErrUnavailable   = errors.New("data service unavailable")
	ErrRequestFailed = errors.New("data request failed")
)

// RequestError describes a failed data call. Kind is one of the sentinel
// errors above.
type RequestError struct {
	Op         string
	Table      string
	StatusCode int
	Kind       error
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: status=%d: %v", e.Op, e.Table, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

func (e *RequestError) Is(target error) bool { return e.Kind != nil && target == e.Kind }

// Filter is one column condition, encoded as column=op.value.
type Filter struct {
	Column string
	Op     string
	Value  string
}

func Eq(column, value string) Filter {
	return Filter{Column: column, Op: "eq", Value: value}
}

type Query struct {
	Filters []Filter
	Order   string
	Limit   int
}

func (q Query) values() url.Values {
	v := q.filterValues()
	v.Set("select", "*")
	if q.Order != "" {
		v.Set("order", q.Order)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// Client talks to the REST data endpoints under <base>/rest/v1. Authorization
// is left to the http.Client's transport.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid data url %q", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(parsed.String(), "/") + "/rest/v1/",
		httpClient: httpClient,
	}, nil
}

func (c *Client) Select(ctx context.Context, table string, q Query, out any) error {
	return c.do(ctx, "select", http.MethodGet, table, q.values(), nil, nil, out)
}

func (c *Client) Insert(ctx context.Context, table string, row, out any) error {
	return c.do(ctx, "insert", http.MethodPost, table, nil, []string{"return=representation"}, row, out)
}

// Upsert inserts row or replaces the existing row matching onConflict.
func (c *Client) Upsert(ctx context.Context, table, onConflict string, row, out any) error {
	q := url.Values{}
	if onConflict != "" {
		q.Set("on_conflict", onConflict)
	}
	return c.do(ctx, "upsert", http.MethodPost, table, q,
		[]string{"resolution=merge-duplicates", "return=representation"}, row, out)
}

func (c *Client) Update(ctx context.Context, table string, filters []Filter, patch, out any) error {
	return c.do(ctx, "update", http.MethodPatch, table, Query{Filters: filters}.filterValues(),
		[]string{"return=representation"}, patch, out)
}

func (c *Client) Delete(ctx context.Context, table string, filters []Filter, out any) error {
	return c.do(ctx, "delete", http.MethodDelete, table, Query{Filters: filters}.filterValues(),
		[]string{"return=representation"}, nil, out)
}

func (q Query) filterValues() url.Values {
	v := url.Values{}
	for _, f := range q.Filters {
		v.Add(f.Column, f.Op+"."+f.Value)
	}
	return v
}

func (c *Client) do(ctx context.Context, op, method, table string, query url.Values, prefer []string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return &RequestError{Op: op, Table: table, Kind: ErrInvalidEntry, Err: err}
		}
		body = bytes.NewReader(payload)
	}

	target := c.baseURL + url.PathEscape(table)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return &RequestError{Op: op, Table: table, Kind: ErrRequestFailed, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(prefer) > 0 {
		req.Header.Set("Prefer", strings.Join(prefer, ","))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RequestError{Op: op, Table: table, Kind: ErrUnavailable, Err: err}
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &RequestError{Op: op, Table: table, StatusCode: resp.StatusCode, Kind: ErrUnavailable, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(respBytes))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &RequestError{
			Op:         op,
			Table:      table,
			StatusCode: resp.StatusCode,
			Kind:       classifyStatus(resp.StatusCode),
			Err:        errors.New(msg),
		}
	}

	if out == nil || len(bytes.TrimSpace(respBytes)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBytes, out); err != nil {
		return &RequestError{Op: op, Table: table, StatusCode: resp.StatusCode, Kind: ErrRequestFailed,
			Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func classifyStatus(status int) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrInvalidEntry
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return ErrUnavailable
	default:
		return ErrRequestFailed
	}
}
