package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// ErrNotFound is returned when a mutation addressed a row that no longer
// exists on the remote side.
var ErrNotFound = errors.New("row not found")

// RequestError is a fetch or mutation rejected by the remote query surface.
// It is returned as a value and surfaced to the view layer, never thrown
// across the synchronizer boundary.
type RequestError struct {
	Op      string
	Table   string
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s: remote returned %d: %s", e.Op, e.Table, e.Status, e.Message)
}

// Filter scopes a query to rows whose column equals the given value.
type Filter struct {
	Column string
	Value  string
}

// Client issues single-table queries against the hosted REST query surface.
// All persistence and row-level authorization live on the remote side; the
// client only shuttles opaque rows.
type Client struct {
	baseURL string
	apiKey  string
	tokens  oauth2.TokenSource
	http    *http.Client
}

func NewClient(baseURL string, apiKey string, tokens oauth2.TokenSource) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		tokens:  tokens,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchAll returns every row of the table currently matching the filter.
func (c *Client) FetchAll(ctx context.Context, table string, filter Filter) ([]Row, error) {
	query := url.Values{"select": {"*"}}
	if filter.Column != "" {
		query.Set(filter.Column, "eq."+filter.Value)
	}
	body, err := c.do(ctx, "fetch", http.MethodGet, table, query, nil, "")
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(body)
	if err != nil {
		return nil, fmt.Errorf("could not decode %s rows: %w", table, err)
	}
	return rows, nil
}

// Insert stores a new row and returns the stored representation.
func (c *Client) Insert(ctx context.Context, table string, row Row) (Row, error) {
	payload, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("could not encode %s row: %w", table, err)
	}
	body, err := c.do(ctx, "insert", http.MethodPost, table, nil, payload, "return=representation")
	if err != nil {
		return nil, err
	}
	return decodeSingle(table, body)
}

// Update patches the row with the given id and returns the new representation.
func (c *Client) Update(ctx context.Context, table string, id string, patch Row) (Row, error) {
	payload, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("could not encode %s patch: %w", table, err)
	}
	query := url.Values{"id": {"eq." + id}}
	body, err := c.do(ctx, "update", http.MethodPatch, table, query, payload, "return=representation")
	if err != nil {
		return nil, err
	}
	return decodeSingle(table, body)
}

// Delete removes the row with the given id. Deleting an id that is already
// gone is not an error: the remote delete is idempotent.
func (c *Client) Delete(ctx context.Context, table string, id string) error {
	query := url.Values{"id": {"eq." + id}}
	_, err := c.do(ctx, "delete", http.MethodDelete, table, query, nil, "")
	return err
}

func (c *Client) do(ctx context.Context, op, method, table string, query url.Values, payload []byte, prefer string) ([]byte, error) {
	endpoint := c.baseURL + "/rest/v1/" + table
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("could not build %s request: %w", op, err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("could not obtain access token: %w", err)
		}
		token.SetAuthHeader(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", op, table, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reqErr := &RequestError{Op: op, Table: table, Status: resp.StatusCode, Message: remoteMessage(body)}
		log.Warn(reqErr)
		return nil, reqErr
	}
	return body, nil
}

func decodeRows(body []byte) ([]Row, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var rows []Row
	if err := dec.Decode(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// decodeSingle unwraps the single-element array the remote returns for
// representation-returning mutations.
func decodeSingle(table string, body []byte) (Row, error) {
	rows, err := decodeRows(body)
	if err != nil {
		return nil, fmt.Errorf("could not decode %s row: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

func remoteMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	return string(body)
}
