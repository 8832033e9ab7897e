package store

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

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Record is a single row exchanged with the store.
type Record map[string]any

// ID returns the record's surrogate id as assigned by the store.
func (r Record) ID() string {
	if v, ok := r["id"].(string); ok {
		return v
	}
	return ""
}

// Str returns a string field, or "" when absent or of another type.
func (r Record) Str(key string) string {
	v, _ := r[key].(string)
	return v
}

// Store is the remote persistence surface the import engine writes to.
// All master-data collections use Upsert with declared conflict columns
// (create if absent, merge if present); fact tables use Insert where a
// duplicate key is acceptable to ignore.
type Store interface {
	Ping(ctx context.Context) error
	Upsert(ctx context.Context, collection string, records []Record, conflictCols ...string) ([]Record, error)
	Insert(ctx context.Context, collection string, record Record) (Record, error)
	Query(ctx context.Context, collection string, filter map[string]string) ([]Record, error)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	ServiceKey string
	Timeout    time.Duration
	// RequestsPerSecond caps the client-side write rate; the hosted REST
	// tier throttles bursts. Zero disables the limiter.
	RequestsPerSecond float64
	Logger            *logrus.Logger
}

// Client talks to a PostgREST-style endpoint: one route per collection
// under /rest/v1, JSON bodies, Prefer headers steering conflict handling.
type Client struct {
	base    *url.URL
	key     string
	http    *http.Client
	limiter *rate.Limiter
	log     *logrus.Entry
}

func New(opts Options) (*Client, error) {
	base := strings.TrimSpace(opts.BaseURL)
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid store url: %q", base)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	log := opts.Logger
	if log == nil {
		log = logrus.New()
	}
	return &Client{
		base:    u,
		key:     strings.TrimSpace(opts.ServiceKey),
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
		log:     log.WithField("component", "store"),
	}, nil
}

// Ping verifies connectivity and credentials before a run begins.
func (c *Client) Ping(ctx context.Context) error {
	status, _, err := c.do(ctx, http.MethodGet, "/rest/v1/", nil, nil, "")
	if err != nil {
		return &TransportError{Op: "ping", Err: err}
	}
	if status < 200 || status >= 300 {
		return transportErr("ping", "", status, "")
	}
	return nil
}

// Upsert creates or merges records on the declared unique columns.
func (c *Client) Upsert(ctx context.Context, collection string, records []Record, conflictCols ...string) ([]Record, error) {
	if len(records) == 0 {
		return nil, nil
	}
	q := url.Values{}
	if len(conflictCols) > 0 {
		q.Set("on_conflict", strings.Join(conflictCols, ","))
	}
	prefer := "return=representation,resolution=merge-duplicates"
	status, body, err := c.do(ctx, http.MethodPost, "/rest/v1/"+collection+encodeQuery(q), records, nil, prefer)
	if err != nil {
		return nil, &TransportError{Op: "upsert", Collection: collection, Err: err}
	}
	if status < 200 || status >= 300 {
		return nil, transportErr("upsert", collection, status, body)
	}
	return decodeRecords(collection, "upsert", body)
}

// Insert posts one record; a unique-key collision surfaces as ConflictError
// so callers can treat it as already-present.
func (c *Client) Insert(ctx context.Context, collection string, record Record) (Record, error) {
	prefer := "return=representation"
	status, body, err := c.do(ctx, http.MethodPost, "/rest/v1/"+collection, []Record{record}, nil, prefer)
	if err != nil {
		return nil, &TransportError{Op: "insert", Collection: collection, Err: err}
	}
	if isConflictStatus(status) {
		return nil, &ConflictError{Collection: collection}
	}
	if status < 200 || status >= 300 {
		return nil, transportErr("insert", collection, status, body)
	}
	recs, err := decodeRecords(collection, "insert", body)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// Query fetches records matching equality filters.
func (c *Client) Query(ctx context.Context, collection string, filter map[string]string) ([]Record, error) {
	q := url.Values{}
	q.Set("select", "*")
	for col, val := range filter {
		q.Set(col, "eq."+val)
	}
	status, body, err := c.do(ctx, http.MethodGet, "/rest/v1/"+collection+encodeQuery(q), nil, nil, "")
	if err != nil {
		return nil, &TransportError{Op: "query", Collection: collection, Err: err}
	}
	if status < 200 || status >= 300 {
		return nil, transportErr("query", collection, status, body)
	}
	return decodeRecords(collection, "query", body)
}

func (c *Client) do(ctx context.Context, method, path string, reqBody any, _ url.Values, prefer string) (int, string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, "", err
		}
	}

	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/")
	full := u.String() + path

	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return 0, "", fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, full, body)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" {
		req.Header.Set("apikey", c.key)
		req.Header.Set("Authorization", "Bearer "+c.key)
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", err
	}
	c.log.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"status": resp.StatusCode,
	}).Debug("store request")
	return resp.StatusCode, string(respBody), nil
}

func decodeRecords(collection, op, body string) ([]Record, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, nil
	}
	var recs []Record
	if err := json.Unmarshal([]byte(body), &recs); err != nil {
		// single-object representation
		var rec Record
		if err2 := json.Unmarshal([]byte(body), &rec); err2 == nil {
			return []Record{rec}, nil
		}
		return nil, &TransportError{Op: op, Collection: collection, Err: fmt.Errorf("decode response: %w", err)}
	}
	return recs, nil
}

func encodeQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}
