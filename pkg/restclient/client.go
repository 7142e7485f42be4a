package restclient

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

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/ahmedsaleh747/go-creative-utils/pkg/common"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/logger"
)

var (
	// ErrUnauthenticated is returned when the gate has no credential to send.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrUnauthorized is returned when the server rejects the credential (401/403).
	ErrUnauthorized = errors.New("not authorized")
)

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, strings.TrimSpace(e.Body))
}

// AuthGate owns the bearer credential.
type AuthGate interface {
	// Token returns the current credential, if any.
	Token() (string, bool)
	// Expire forgets the credential and sends the user back to login.
	Expire()
}

// Notifier shows transient messages to the user.
type Notifier interface {
	Notify(kind, title, message string)
}

// Notification kinds.
const (
	NotifySuccess = "success"
	NotifyError   = "error"
	NotifyInfo    = "info"
)

// ActionDispatcher applies a server requested UI action. It returns true when no
// further action of the same response may run.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, action common.Action) bool
}

// Response is a successful call.
type Response struct {
	Status int
	Body   []byte
	// Stopped is set when a dispatched action ended processing (Refresh, Redirect).
	Stopped bool
}

// Decode unmarshals a JSON body into v.
func (r *Response) Decode(v interface{}) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("empty response body")
	}
	return json.Unmarshal(r.Body, v)
}

// Client is the HTTP transport of the table engine.
type Client struct {
	baseURL    string
	http       *http.Client
	gate       AuthGate
	notifier   Notifier
	dispatcher ActionDispatcher
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithNotifier(n Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

func WithDispatcher(d ActionDispatcher) Option {
	return func(c *Client) { c.dispatcher = d }
}

// New creates a client for the API at baseURL.
func New(baseURL string, gate AuthGate, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		http:     &http.Client{Timeout: 30 * time.Second},
		gate:     gate,
		notifier: LogNotifier{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dispatcher == nil {
		c.dispatcher = &DefaultDispatcher{Notifier: c.notifier}
	}
	return c
}

// Get issues a GET with the query appended to path.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		path += sep + query.Encode()
	}
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Do sends a request with the bearer credential and interprets the response:
// 401/403 expire the gate, 5xx notify, embedded actions are dispatched and an
// empty successful body is reported as a success notification.
func (c *Client) Do(ctx context.Context, method, path string, body interface{}) (*Response, error) {
	token, ok := c.gate.Token()
	if !ok || token == "" {
		logger.Warn("No credential for %s %s", method, path)
		c.gate.Expire()
		return nil, ErrUnauthenticated
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	requestID := uuid.New().String()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	logger.Debug("%s %s (request %s)", method, path, requestID)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response of %s %s: %w", method, path, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		logger.Warn("Credential rejected by %s %s with %d", method, path, resp.StatusCode)
		c.gate.Expire()
		return nil, fmt.Errorf("%w: %s %s", ErrUnauthorized, method, path)
	case resp.StatusCode >= 500:
		c.notifier.Notify(NotifyError, "Error!", "Something went wrong! "+http.StatusText(resp.StatusCode))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(data)}
	case resp.StatusCode >= 300:
		return nil, &StatusError{Code: resp.StatusCode, Body: string(data)}
	}

	out := &Response{Status: resp.StatusCode, Body: data}
	if len(bytes.TrimSpace(data)) == 0 {
		c.notifier.Notify(NotifySuccess, "Success!", "Request sent successfully!")
		return out, nil
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") || gjson.ValidBytes(data) {
		out.Stopped = c.dispatchEmbedded(ctx, data)
	}
	return out, nil
}

// dispatchEmbedded runs the action or actions carried by a JSON body.
func (c *Client) dispatchEmbedded(ctx context.Context, data []byte) bool {
	if !gjson.ValidBytes(data) {
		return false
	}

	if single := gjson.GetBytes(data, "action"); single.Exists() && single.Type == gjson.String {
		var action common.Action
		if err := json.Unmarshal(data, &action); err != nil {
			logger.Warn("Malformed action in response: %v", err)
			return false
		}
		return c.dispatcher.Dispatch(ctx, action)
	}

	list := gjson.GetBytes(data, "actions")
	if !list.IsArray() {
		return false
	}
	for _, raw := range list.Array() {
		var action common.Action
		if err := json.Unmarshal([]byte(raw.Raw), &action); err != nil {
			logger.Warn("Malformed action in response: %v", err)
			continue
		}
		if c.dispatcher.Dispatch(ctx, action) {
			return true
		}
	}
	return false
}
