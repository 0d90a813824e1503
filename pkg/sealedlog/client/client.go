// Package client is a Go client for the sealed-log HTTP API.
package client

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

	"github.com/tendant/sealed-log/pkg/sealedlog"
	"github.com/tendant/sealed-log/pkg/sealedlog/api"
)

// Client talks to a sealed-log server
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithToken sets the bearer token sent on mutating calls
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a client for the API mounted at baseURL, e.g.
// "http://localhost:8080/api/v1".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response that maps to no sealedlog error.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sealed-log: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do sends req and decodes a JSON response into out when out is non-nil.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError turns an error response back into the matching sealedlog error.
func decodeError(resp *http.Response) error {
	var body api.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err != nil {
		body.Message = strings.TrimSpace(string(data))
	}

	switch body.Code {
	case api.CodeRejected:
		return &sealedlog.RejectedError{Reason: body.Reason}
	case api.CodeIndexOutOfBounds:
		return sealedlog.ErrIndexOutOfBounds
	case api.CodeUnauthorized:
		return sealedlog.ErrUnauthorized
	case api.CodeInvalidTarget:
		return sealedlog.ErrInvalidTarget
	case api.CodeIntegrity:
		return sealedlog.ErrIntegrity
	}
	return &APIError{StatusCode: resp.StatusCode, Code: body.Code, Message: body.Message}
}

// Submit appends payload to the caller's log for topic
func (c *Client) Submit(ctx context.Context, topic string, payload []byte) (*api.MessageResponse, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/messages", url.Values{"topic": {topic}}, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	var msg api.MessageResponse
	if err := c.do(req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Count returns the number of messages owner has stored under topic
func (c *Client) Count(ctx context.Context, owner sealedlog.Identity, topic string) (uint64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/messages", url.Values{"identity": {string(owner)}, "topic": {topic}}, nil)
	if err != nil {
		return 0, err
	}
	var resp api.CountResponse
	if err := c.do(req, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// Read returns the payload at index
func (c *Client) Read(ctx context.Context, owner sealedlog.Identity, topic string, index uint64) ([]byte, error) {
	path := "/messages/" + strconv.FormatUint(index, 10)
	req, err := c.newRequest(ctx, http.MethodGet, path, url.Values{"identity": {string(owner)}, "topic": {topic}}, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	return io.ReadAll(resp.Body)
}

// ListTopics lists the topics owner has written to
func (c *Client) ListTopics(ctx context.Context, owner sealedlog.Identity) ([]string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/topics", url.Values{"identity": {string(owner)}}, nil)
	if err != nil {
		return nil, err
	}
	var resp api.TopicsResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return resp.Topics, nil
}

// KeyRecord returns the current key record
func (c *Client) KeyRecord(ctx context.Context) (*api.KeyRecordResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/key", nil, nil)
	if err != nil {
		return nil, err
	}
	var resp api.KeyRecordResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) putJSON(ctx context.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPut, path, nil, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

// SetKeyMaterial replaces the key material. The token must belong to the administrator.
func (c *Client) SetKeyMaterial(ctx context.Context, keyMaterial string) error {
	return c.putJSON(ctx, "/key", api.SetKeyRequest{KeyMaterial: keyMaterial})
}

// TransferAdministrator hands the administrator role to newAdmin
func (c *Client) TransferAdministrator(ctx context.Context, newAdmin sealedlog.Identity) error {
	return c.putJSON(ctx, "/key/administrator", api.TransferRequest{Administrator: string(newAdmin)})
}

// Instance returns the server's deployment metadata
func (c *Client) Instance(ctx context.Context) (*sealedlog.InstanceInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/instance", nil, nil)
	if err != nil {
		return nil, err
	}
	var info sealedlog.InstanceInfo
	if err := c.do(req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Classify asks the server to evaluate payload without storing it. An empty
// profile uses the server's configured classifier.
func (c *Client) Classify(ctx context.Context, profile sealedlog.Profile, payload []byte) (*api.ClassifyResponse, error) {
	var query url.Values
	if profile != "" {
		query = url.Values{"profile": {string(profile)}}
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/classify", query, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	var resp api.ClassifyResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// IsNotFound reports whether err means the requested message does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sealedlog.ErrIndexOutOfBounds)
}
