// Package remote talks to the list server's JSON API on behalf of a device.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"budgetlist/internal/api"
	"budgetlist/internal/core"
	"budgetlist/internal/reconcile"
)

const (
	defaultTimeout = 15 * time.Second
	healthTimeout  = 2 * time.Second
	maxErrorBody   = 4 << 10
)

// ErrRateLimited is returned when the server throttles the device.
var ErrRateLimited = errors.New("rate limited by server")

type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithToken(token string) Option {
	return func(cl *Client) { cl.token = token }
}

// New returns a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", baseURL)
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// HasToken reports whether requests are authenticated.
func (c *Client) HasToken() bool { return c.token != "" }

// Online checks /healthz with a short timeout.
func (c *Client) Online(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil) == nil
}

func (c *Client) Register(ctx context.Context, email, password, name string) (*core.User, error) {
	var u core.User
	err := c.do(ctx, http.MethodPost, "/api/auth/register", api.RegisterRequest{Email: email, Password: password, Name: name}, &u)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp api.TokenResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", api.LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return "", err
	}
	c.token = resp.Token
	return resp.Token, nil
}

// ListLists returns the caller's server lists. The owner is implied by the
// token.
func (c *Client) ListLists(ctx context.Context, _ string) ([]core.List, error) {
	var views []api.ListView
	if err := c.do(ctx, http.MethodGet, "/api/lists", nil, &views); err != nil {
		return nil, err
	}
	lists := make([]core.List, 0, len(views))
	for _, v := range views {
		lists = append(lists, v.List())
	}
	return lists, nil
}

func (c *Client) GetList(ctx context.Context, listID string) (*core.Snapshot, error) {
	return c.snapshot(ctx, http.MethodGet, listPath(listID), nil)
}

func (c *Client) CreateList(ctx context.Context, in core.NewList) (*core.Snapshot, error) {
	budget := in.Budget
	return c.snapshot(ctx, http.MethodPost, "/api/lists", api.CreateListRequest{Name: in.Name, Budget: &budget})
}

func (c *Client) UpdateList(ctx context.Context, listID string, patch core.ListPatch) (*core.Snapshot, error) {
	return c.snapshot(ctx, http.MethodPatch, listPath(listID), api.UpdateListRequest{Name: patch.Name, Budget: patch.Budget})
}

func (c *Client) DeleteList(ctx context.Context, listID string) error {
	return c.do(ctx, http.MethodDelete, listPath(listID), nil, nil)
}

func (c *Client) AddItem(ctx context.Context, listID string, in core.NewItem) (*core.Item, error) {
	value := in.UnitValue
	return c.item(ctx, http.MethodPost, listPath(listID)+"/items", api.AddItemRequest{Name: in.Name, Quantity: in.Quantity, Value: &value})
}

func (c *Client) UpdateItem(ctx context.Context, listID, itemID string, patch core.ItemPatch) (*core.Item, error) {
	return c.item(ctx, http.MethodPatch, itemPath(listID, itemID), api.UpdateItemRequest{Name: patch.Name, Quantity: patch.Quantity, Value: patch.UnitValue})
}

func (c *Client) DeleteItem(ctx context.Context, listID, itemID string) error {
	return c.do(ctx, http.MethodDelete, itemPath(listID, itemID), nil, nil)
}

// Export fetches a rendered report in format ("html" or "md").
func (c *Client) Export(ctx context.Context, listID, format string) ([]byte, error) {
	var raw rawBody
	if err := c.do(ctx, http.MethodGet, listPath(listID)+"/export?format="+url.QueryEscape(format), nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) snapshot(ctx context.Context, method, path string, body any) (*core.Snapshot, error) {
	var v api.ListView
	if err := c.do(ctx, method, path, body, &v); err != nil {
		return nil, err
	}
	snap := core.Summarize(v.List())
	return &snap, nil
}

func (c *Client) item(ctx context.Context, method, path string, body any) (*core.Item, error) {
	var v api.ItemView
	if err := c.do(ctx, method, path, body, &v); err != nil {
		return nil, err
	}
	it := v.Item()
	return &it, nil
}

// rawBody receives a response body without JSON decoding.
type rawBody []byte

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	target, err := c.baseURL.Parse(c.baseURL.Path + path)
	if err != nil {
		return fmt.Errorf("build URL for %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %v", reconcile.ErrSourceUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	switch dst := out.(type) {
	case nil:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	case *rawBody:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: read response: %v", reconcile.ErrSourceUnavailable, err)
		}
		*dst = data
		return nil
	default:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
		return nil
	}
}

// decodeError turns an error response back into the matching core error.
func decodeError(resp *http.Response) error {
	var e api.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if json.Unmarshal(data, &e) != nil || e.Error == "" {
		e.Error = strings.TrimSpace(string(data))
		if e.Error == "" {
			e.Error = resp.Status
		}
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", core.ErrInvalidInput, e.Error)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", core.ErrUnauthorized, e.Error)
	case http.StatusNotFound:
		if strings.Contains(e.Error, core.ErrItemNotFound.Error()) {
			return core.ErrItemNotFound
		}
		return core.ErrListNotFound
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", core.ErrOverBudget, e.Error)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", core.ErrEmailTaken, e.Error)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: retry after %ss", ErrRateLimited, resp.Header.Get("Retry-After"))
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", reconcile.ErrSourceUnavailable, e.Error)
	default:
		return fmt.Errorf("server error %d: %s", resp.StatusCode, e.Error)
	}
}

func listPath(listID string) string {
	return "/api/lists/" + url.PathEscape(listID)
}

func itemPath(listID, itemID string) string {
	return listPath(listID) + "/items/" + url.PathEscape(itemID)
}
