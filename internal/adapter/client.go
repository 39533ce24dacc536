// Package adapter talks to the hosted record API: a loosely-typed key/value
// service where every record is a map of {"field": {"value": ...}} entries
// grouped into numbered apps.
package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// DefaultPageSize is the number of records requested per list call.
const DefaultPageSize = 500

// Client is a thin JSON client for the record API.
type Client struct {
	baseURL  string
	token    string
	pageSize int
	client   *http.Client
}

// NewClient creates a client. A pageSize <= 0 uses DefaultPageSize.
func NewClient(baseURL, token string, pageSize int, client *http.Client) *Client {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Client{baseURL: baseURL, token: token, pageSize: pageSize, client: client}
}

type listResponse struct {
	Records []Record `json:"records"`
}

type createRequest struct {
	App     string   `json:"app"`
	Records []Record `json:"records"`
}

type createResponse struct {
	IDs []string `json:"ids"`
}

// RecordUpdate carries the fields to overwrite on one existing record.
type RecordUpdate struct {
	ID     string `json:"id"`
	Record Record `json:"record"`
}

type updateRequest struct {
	App     string         `json:"app"`
	Records []RecordUpdate `json:"records"`
}

type deleteRequest struct {
	App string   `json:"app"`
	IDs []string `json:"ids"`
}

// List returns every record of app matching query (empty = all), following
// offset pagination until a short page comes back.
func (c *Client) List(ctx context.Context, app, query string) ([]Record, error) {
	var all []Record
	for offset := 0; ; offset += c.pageSize {
		q := url.Values{}
		q.Set("app", app)
		if query != "" {
			q.Set("query", query)
		}
		q.Set("limit", strconv.Itoa(c.pageSize))
		q.Set("offset", strconv.Itoa(offset))

		var page listResponse
		if err := c.do(ctx, http.MethodGet, "/records?"+q.Encode(), nil, &page); err != nil {
			return nil, fmt.Errorf("list app %s at offset %d: %w", app, offset, err)
		}
		all = append(all, page.Records...)
		if len(page.Records) < c.pageSize {
			return all, nil
		}
	}
}

// Create inserts records into app and returns the assigned ids in order.
func (c *Client) Create(ctx context.Context, app string, records []Record) ([]string, error) {
	var resp createResponse
	if err := c.do(ctx, http.MethodPost, "/records", createRequest{App: app, Records: records}, &resp); err != nil {
		return nil, fmt.Errorf("create %d records in app %s: %w", len(records), app, err)
	}
	if len(resp.IDs) != len(records) {
		return nil, fmt.Errorf("create in app %s: got %d ids for %d records", app, len(resp.IDs), len(records))
	}
	return resp.IDs, nil
}

// Update overwrites the given fields of existing records.
func (c *Client) Update(ctx context.Context, app string, updates []RecordUpdate) error {
	if err := c.do(ctx, http.MethodPut, "/records", updateRequest{App: app, Records: updates}, nil); err != nil {
		return fmt.Errorf("update %d records in app %s: %w", len(updates), app, err)
	}
	return nil
}

// Delete removes records by id.
func (c *Client) Delete(ctx context.Context, app string, ids []string) error {
	if err := c.do(ctx, http.MethodDelete, "/records", deleteRequest{App: app, IDs: ids}, nil); err != nil {
		return fmt.Errorf("delete %d records in app %s: %w", len(ids), app, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Token", c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return newHTTPError(resp, snippet)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
