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
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/tableside-sync/internal/orders"
	"github.com/angelmondragon/tableside-sync/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-sync/pkg/errors"
)

const responseBodyReadLimit int64 = 1024

var errBaseURLRequired = errors.New("order service base url is required")

// Reporter receives reachability signals from every call: a transport failure
// means unreachable, any HTTP response means reachable.
type Reporter interface {
	ReportSuccess()
	ReportFailure(err error)
}

// Client talks to the remote order service. orderId is the path key for
// every per-order call.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authToken  string
	reporter   Reporter
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAuthToken sends a bearer token on every request.
func WithAuthToken(token string) Option {
	return func(c *Client) {
		c.authToken = strings.TrimSpace(token)
	}
}

// WithTimeout sets the per-request ceiling on the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// WithReporter wires call outcomes into a connectivity observer.
func WithReporter(r Reporter) Option {
	return func(c *Client) {
		c.reporter = r
	}
}

// NewClient builds an order service client for baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}

	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// SetReporter attaches r after construction; the observer usually needs the
// client to exist first.
func (c *Client) SetReporter(r Reporter) {
	c.reporter = r
}

// Create posts a new order and returns the accepted document.
func (c *Client) Create(ctx context.Context, order orders.Order) (orders.Order, error) {
	var env OrderEnvelope
	if err := c.do(ctx, http.MethodPost, "/orders", ToWire(order), &env, "create order"); err != nil {
		return orders.Order{}, err
	}
	if env.Order.ID == "" {
		return orders.Order{}, pkgerrors.New(pkgerrors.CodeRemoteUnavailable, "create order: response missing _id")
	}
	return FromWire(env.Order), nil
}

// Fetch returns the service's current state of orderID.
func (c *Client) Fetch(ctx context.Context, orderID string) (orders.Order, error) {
	var w WireOrder
	if err := c.do(ctx, http.MethodGet, orderPath(orderID), nil, &w, "fetch order"); err != nil {
		return orders.Order{}, err
	}
	return FromWire(w), nil
}

// Replace sends the full document for order, replacing the service's copy.
func (c *Client) Replace(ctx context.Context, order orders.Order) (orders.Order, error) {
	var w WireOrder
	if err := c.do(ctx, http.MethodPut, orderPath(order.OrderID), ToWire(order), &w, "replace order"); err != nil {
		return orders.Order{}, err
	}
	return FromWire(w), nil
}

// Delete removes orderID on the service.
func (c *Client) Delete(ctx context.Context, orderID string) error {
	return c.do(ctx, http.MethodDelete, orderPath(orderID), nil, nil, "delete order")
}

// RemoveLine deletes a single line on the service.
func (c *Client) RemoveLine(ctx context.Context, orderID, lineID string) error {
	path := orderPath(orderID) + "/items/" + url.PathEscape(lineID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, "remove order line")
}

// FetchOpenByTable returns the open order for table, or a not-found error.
func (c *Client) FetchOpenByTable(ctx context.Context, table int) (orders.Order, error) {
	q := url.Values{}
	q.Set("tableNumber", strconv.Itoa(table))
	q.Set("status", string(enums.OrderStatusOpen))

	var list []WireOrder
	if err := c.do(ctx, http.MethodGet, "/orders?"+q.Encode(), nil, &list, "fetch open order"); err != nil {
		return orders.Order{}, err
	}
	if len(list) == 0 {
		return orders.Order{}, pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrNotFound, "fetch open order")
	}
	return FromWire(list[0]), nil
}

// Ping probes the service health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, "ping order service")
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, op string) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "order service client not configured")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op+": marshal request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op+": build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.reporter != nil && ctx.Err() == nil {
			c.reporter.ReportFailure(err)
		}
		return pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, err, op)
	}
	defer func() { _ = resp.Body.Close() }()
	if c.reporter != nil {
		c.reporter.ReportSuccess()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return classify(resp.StatusCode, string(msg), op)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, err, fmt.Sprintf("%s: decode response", op))
	}
	return nil
}

func orderPath(orderID string) string {
	return "/orders/" + url.PathEscape(orderID)
}
