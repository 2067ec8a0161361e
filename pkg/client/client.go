package client

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

	pkgerrors "github.com/fitlife/fitlife-sync/pkg/errors"
	"github.com/fitlife/fitlife-sync/pkg/offline/cachestrategy"
	"github.com/fitlife/fitlife-sync/pkg/offline/inbox"
	"github.com/fitlife/fitlife-sync/pkg/offline/push"
	"github.com/fitlife/fitlife-sync/pkg/utils"
)

// Client talks to the fitlife notification API. Pass an http.Client whose
// transport is the offline cache router to get offline behavior.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a new client for the API at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: utils.NewDefaultHTTPClient(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// VAPIDKeyResponse is the response of GET /vapid-public-key.
type VAPIDKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

// Subscription is the server's record of a push subscription.
type Subscription struct {
	ID         string           `json:"id"`
	Endpoint   string           `json:"endpoint"`
	IsActive   bool             `json:"isActive"`
	DeviceInfo *push.DeviceInfo `json:"deviceInfo,omitempty"`
}

// SubscribeResponse is the response of POST /push/subscribe.
type SubscribeResponse struct {
	Subscription Subscription `json:"subscription"`
	Created      bool         `json:"created"`
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

type markReadRequest struct {
	IDs []string `json:"ids"`
}

type updatedResponse struct {
	Updated int64 `json:"updated"`
}

type countResponse struct {
	Count int64 `json:"count"`
}

// HealthResponse is the response of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// GetVAPIDPublicKey fetches the server's application server key.
func (c *Client) GetVAPIDPublicKey(ctx context.Context) (string, error) {
	var resp VAPIDKeyResponse
	if _, err := c.do(ctx, http.MethodGet, "/vapid-public-key", nil, &resp); err != nil {
		return "", err
	}
	return resp.PublicKey, nil
}

// SubscribeDevice records a push subscription and returns the server record.
func (c *Client) SubscribeDevice(ctx context.Context, req push.SubscribeRequest) (*SubscribeResponse, error) {
	var resp SubscribeResponse
	if _, err := c.do(ctx, http.MethodPost, "/push/subscribe", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Subscribe implements push.Server.
func (c *Client) Subscribe(ctx context.Context, req push.SubscribeRequest) error {
	_, err := c.SubscribeDevice(ctx, req)
	return err
}

// Unsubscribe deactivates the subscription for endpoint.
func (c *Client) Unsubscribe(ctx context.Context, endpoint string) error {
	if endpoint == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "endpoint is required")
	}
	_, err := c.do(ctx, http.MethodPost, "/push/unsubscribe", unsubscribeRequest{Endpoint: endpoint}, nil)
	return err
}

// ListNotifications returns a page of the member's notifications.
func (c *Client) ListNotifications(ctx context.Context, page, limit int) (*inbox.Page, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/notifications"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp inbox.Page
	if _, err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MarkRead marks ids read. A request queued for replay reports zero
// updates.
func (c *Client) MarkRead(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "at least one notification id is required")
	}
	return c.update(ctx, "/notifications/mark-read", markReadRequest{IDs: ids})
}

// MarkAllRead marks every notification of the member read.
func (c *Client) MarkAllRead(ctx context.Context) (int64, error) {
	return c.update(ctx, "/notifications/mark-all-read", nil)
}

func (c *Client) update(ctx context.Context, path string, body any) (int64, error) {
	var resp updatedResponse
	status, err := c.do(ctx, http.MethodPost, path, body, &resp)
	if err != nil {
		return 0, err
	}
	if status == http.StatusAccepted {
		return 0, nil
	}
	return resp.Updated, nil
}

// UnreadCount returns the member's unread notification count. A count
// answered from the offline cache is reported as NETWORK_UNAVAILABLE so the
// caller counts its own read state instead.
func (c *Client) UnreadCount(ctx context.Context) (int64, error) {
	var resp countResponse
	_, header, err := c.send(ctx, http.MethodGet, "/notifications/unread-count", nil, &resp)
	if err != nil {
		return 0, err
	}
	if state := header.Get(cachestrategy.HeaderCache); state != "" {
		return 0, pkgerrors.Newf(pkgerrors.CodeNetworkUnavailable, "unread count served from cache (%s)", state)
	}
	return resp.Count, nil
}

// Health checks the server's health endpoint.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if _, err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do sends a JSON request and decodes a JSON response into out. A 202
// response is not decoded; it means the request was queued offline.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	status, _, err := c.send(ctx, method, path, body, out)
	return status, err
}

func (c *Client) send(ctx context.Context, method, path string, body, out any) (int, http.Header, error) {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return 0, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "failed to marshal request")
		}
		reader = bytes.NewReader(jsonData)
	}

	target := c.baseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "failed to create request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return 0, nil, typed
		}
		return 0, nil, utils.TransportError(err, method, target)
	}
	defer utils.SafeCloseResponse(resp)

	if err := c.checkResponse(resp, method, target); err != nil {
		return resp.StatusCode, resp.Header, err
	}
	if out == nil || resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, resp.Header, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, resp.Header, pkgerrors.Wrap(pkgerrors.CodeServerRejected, err, fmt.Sprintf("failed to decode %s %s response", method, path))
	}
	return resp.StatusCode, resp.Header, nil
}

func (c *Client) checkResponse(resp *http.Response, method, target string) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return pkgerrors.Newf(pkgerrors.CodeUnauthorized, "%s %s: authentication required", method, target)
	case http.StatusForbidden:
		return pkgerrors.Newf(pkgerrors.CodeForbidden, "%s %s: forbidden", method, target)
	}
	return utils.CheckHTTPResponse(resp, method, target)
}
