// Package monday is a small GraphQL client for the project-management board
// API. It normalizes board and item responses into BoardItem values.
package monday

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/roomsync/internal/errors"
	"github.com/p-blackswan/roomsync/internal/metrics"
	"github.com/p-blackswan/roomsync/internal/retry"
)

// DefaultEndpoint is the public API endpoint.
const DefaultEndpoint = "https://api.monday.com/v2"

const serviceName = "monday"

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Authenticator applies authentication to requests.
type Authenticator interface {
	Apply(req *http.Request) error
}

// TokenAuth sends the API token verbatim in the Authorization header.
type TokenAuth struct {
	Token string
}

// Apply implements Authenticator.
func (a *TokenAuth) Apply(req *http.Request) error {
	if strings.TrimSpace(a.Token) == "" {
		return perrors.ErrMissingCredential
	}
	req.Header.Set("Authorization", a.Token)
	return nil
}

// FailureReporter is notified of every failed query after retries.
type FailureReporter func(operation string, err error)

// Client wraps the board API.
type Client struct {
	endpoint   string
	apiVersion string
	httpClient HTTPClient
	auth       Authenticator
	retry      retry.Config
	metrics    *metrics.Metrics
	onFailure  FailureReporter
	logger     zerolog.Logger
}

// NewClient creates a new board API client.
func NewClient(endpoint string, auth Authenticator, logger zerolog.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		auth:       auth,
		retry:      retry.DefaultConfig(),
		logger:     logger.With().Str("component", "monday").Logger(),
	}
	c.retry.OnRetry = func(attempt int, err error) {
		c.logger.Warn().Err(err).Int("attempt", attempt).Msg("retrying board API request")
	}
	return c
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(hc HTTPClient) {
	c.httpClient = hc
}

// SetRetry replaces the retry policy.
func (c *Client) SetRetry(cfg retry.Config) {
	c.retry = cfg
}

// SetAPIVersion pins the API-Version header.
func (c *Client) SetAPIVersion(v string) {
	c.apiVersion = v
}

// SetMetrics attaches a metrics collector.
func (c *Client) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// OnFailure registers the failure reporter.
func (c *Client) OnFailure(fn FailureReporter) {
	c.onFailure = fn
}

// Endpoint returns the configured endpoint.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// QueryBoard fetches up to PageSize items of a board with their column values.
// A board without items yields an empty slice and no error.
func (c *Client) QueryBoard(ctx context.Context, boardID string) ([]BoardItem, error) {
	var resp boardsResponse
	if err := c.query(ctx, "query_board", boardQuery, boardID, &resp); err != nil {
		return nil, c.fail("query_board", boardID, err)
	}
	if len(resp.Errors) > 0 {
		return nil, c.fail("query_board", boardID, perrors.NewAPIError(serviceName, http.StatusOK, resp.Errors[0].Message))
	}
	if resp.Data == nil || len(resp.Data.Boards) == 0 {
		return nil, c.fail("query_board", boardID, fmt.Errorf("board %s: %w", boardID, perrors.ErrNotFound))
	}

	board := resp.Data.Boards[0]
	titles := make(map[string]string, len(board.Columns))
	for _, col := range board.Columns {
		titles[col.ID] = col.Title
	}

	items := make([]BoardItem, 0, len(board.ItemsPage.Items))
	for _, it := range board.ItemsPage.Items {
		items = append(items, normalizeItem(it, titles))
	}

	c.logger.Debug().
		Str("board_id", board.ID).
		Str("board_name", board.Name).
		Int("items", len(items)).
		Msg("board retrieved")
	return items, nil
}

// QueryItem fetches a single item with its column values.
func (c *Client) QueryItem(ctx context.Context, itemID string) (*BoardItem, error) {
	var resp itemsResponse
	if err := c.query(ctx, "query_item", itemQuery, itemID, &resp); err != nil {
		return nil, c.fail("query_item", itemID, err)
	}
	if len(resp.Errors) > 0 {
		return nil, c.fail("query_item", itemID, perrors.NewAPIError(serviceName, http.StatusOK, resp.Errors[0].Message))
	}
	if resp.Data == nil || len(resp.Data.Items) == 0 {
		return nil, c.fail("query_item", itemID, fmt.Errorf("item %s: %w", itemID, perrors.ErrNotFound))
	}

	item := normalizeItem(resp.Data.Items[0], nil)
	c.logger.Debug().Str("item_id", item.ID).Str("item_name", item.Name).Msg("item retrieved")
	return &item, nil
}

// ListKits returns every item of the kits board as a selectable kit.
func (c *Client) ListKits(ctx context.Context, kitsBoardID string) ([]Kit, error) {
	items, err := c.QueryBoard(ctx, kitsBoardID)
	if err != nil {
		return nil, err
	}
	kits := make([]Kit, 0, len(items))
	for _, it := range items {
		kits = append(kits, Kit{ID: it.ID, Label: it.Name})
	}
	return kits, nil
}

// query runs one GraphQL document against a single id, with retries.
func (c *Client) query(ctx context.Context, op, document, id string, out interface{}) error {
	body, err := json.Marshal(graphQLRequest{
		Query:     document,
		Variables: map[string]interface{}{"ids": []string{id}},
	})
	if err != nil {
		return fmt.Errorf("encoding query: %w", err)
	}

	start := time.Now()
	err = retry.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.do(ctx, body, out)
	})
	c.metrics.ObserveRemote(op, statusLabel(err), time.Since(start).Seconds())
	return err
}

// do executes an authenticated API request and decodes the JSON response.
func (c *Client) do(ctx context.Context, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiVersion != "" {
		req.Header.Set("API-Version", c.apiVersion)
	}

	if err := c.auth.Apply(req); err != nil {
		return fmt.Errorf("applying auth: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("executing request: %w: %v", perrors.ErrTimeout, err)
		}
		return fmt.Errorf("executing request: %w: %v", perrors.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return perrors.NewAPIError(serviceName, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) fail(op, id string, err error) error {
	c.logger.Error().Err(err).Str("operation", op).Str("id", id).Msg("board API request failed")
	c.metrics.RecordError("monday", errorType(err))
	if c.onFailure != nil {
		c.onFailure(op, err)
	}
	return err
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return errorType(err)
}

func errorType(err error) string {
	var apiErr *perrors.APIError
	switch {
	case errors.Is(err, perrors.ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, perrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, perrors.ErrTimeout):
		return "timeout"
	case errors.As(err, &apiErr):
		if apiErr.StatusCode == http.StatusOK {
			return "api_error"
		}
		return fmt.Sprintf("http_%d", apiErr.StatusCode)
	default:
		return "transport"
	}
}
