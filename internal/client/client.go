// Package client implements the transport to the Glasser Study GraphQL API.
//
// The client handles all communication with the backend:
//   - POST <endpoint> - queries and mutations (GraphQL over HTTP)
//   - graphql-sse and graphql-transport-ws push subscriptions
//   - PUT <presigned url> - direct-to-storage profile image uploads
//
// Every call reads the session token at call time. Authorization failures
// invalidate the session through the TokenSource before the error is
// returned.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 10 * time.Second

// maxResponseSize limits response body reads to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Error classes. Match them with errors.Is.
var (
	ErrUnauthorized = errors.New("session is not valid")
	ErrBlocked      = errors.New("account is blocked")
	ErrNotFound     = errors.New("not found")
	ErrTransport    = errors.New("request failed")
)

// TokenSource supplies the session credential and is told when the backend
// rejects it. Invalidate receives the token the rejected call carried so a
// late rejection cannot clear a newer session.
type TokenSource interface {
	Token() string
	Invalidate(token string, cause error) bool
}

// Operation is a named GraphQL document.
type Operation struct {
	Name     string
	Document string
	// Public operations (login, sign-up) are sent without a session.
	Public bool
}

// GraphQLError is one entry of a GraphQL response's errors list.
type GraphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Code returns extensions.code, upper-cased, or "".
func (e GraphQLError) Code() string {
	code, _ := e.Extensions["code"].(string)
	return strings.ToUpper(code)
}

// Error is a failed GraphQL call.
type Error struct {
	StatusCode int
	Body       string
	Errors     []GraphQLError
	kind       error
}

func (e *Error) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("graphql error (status %d): %s", e.StatusCode, e.Errors[0].Message)
	}
	return fmt.Sprintf("graphql error (status %d): %s", e.StatusCode, e.Body)
}

// Unwrap returns the error class.
func (e *Error) Unwrap() error { return e.kind }

// IsAuth reports whether err means the session is gone.
func IsAuth(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrBlocked)
}

// Client is the GraphQL HTTP client.
type Client struct {
	endpoint   string
	httpClient *http.Client
	tokens     TokenSource
}

// New creates a client for endpoint. tokens may be nil for anonymous use.
func New(endpoint string, tokens TokenSource) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		tokens: tokens,
	}
}

// NewWithHTTPClient creates a client that sends requests through hc.
func NewWithHTTPClient(endpoint string, tokens TokenSource, hc *http.Client) *Client {
	c := New(endpoint, tokens)
	c.httpClient = hc
	return c
}

// Endpoint returns the GraphQL endpoint URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Token returns the current session token, or "".
func (c *Client) Token() string {
	if c.tokens == nil {
		return ""
	}
	return c.tokens.Token()
}

// request is the GraphQL-over-HTTP request body.
type request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// response is the GraphQL response envelope.
type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors,omitempty"`
}

// Do sends op with vars and decodes the response data into out. It issues at
// most one HTTP request and never retries.
func (c *Client) Do(ctx context.Context, op Operation, vars map[string]any, out any) error {
	token := c.Token()
	if !op.Public && token == "" {
		return fmt.Errorf("%s: %w: no session token", op.Name, ErrUnauthorized)
	}

	body, err := json.Marshal(request{Query: op.Document, OperationName: op.Name, Variables: vars})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	requestID := ulid.Make().String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/graphql-response+json, application/json")
	req.Header.Set("X-Request-ID", requestID)
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	glog.V(1).Infof("graphql: %s request=%s", op.Name, requestID)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: sending %s: %w", ErrTransport, op.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Read maxResponseSize+1 to detect oversized responses while still accepting
	// responses exactly at the limit.
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", ErrTransport, err)
	}
	if int64(len(respBody)) > maxResponseSize {
		return fmt.Errorf("%w: response exceeds maximum size of %d bytes", ErrTransport, maxResponseSize)
	}

	var envelope response
	decodeErr := json.Unmarshal(respBody, &envelope)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || len(envelope.Errors) > 0 {
		return c.fail(token, &Error{
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			Errors:     envelope.Errors,
			kind:       classify(resp.StatusCode, envelope.Errors),
		})
	}
	if decodeErr != nil {
		return fmt.Errorf("%w: decoding response: %w", ErrTransport, decodeErr)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decoding %s data: %w", op.Name, err)
	}
	return nil
}

// DoField sends op and decodes data[field] into out. A missing or null
// field is reported as ErrNotFound.
func (c *Client) DoField(ctx context.Context, op Operation, vars map[string]any, field string, out any) error {
	var data map[string]json.RawMessage
	if err := c.Do(ctx, op, vars, &data); err != nil {
		return err
	}
	return DecodeField(data, field, out)
}

// DecodeField decodes data[field] into out.
func DecodeField(data map[string]json.RawMessage, field string, out any) error {
	raw, ok := data[field]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("%s: %w", field, ErrNotFound)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding %s: %w", field, err)
	}
	return nil
}

func (c *Client) fail(token string, e *Error) error {
	if IsAuth(e) && c.tokens != nil && token != "" {
		c.tokens.Invalidate(token, e)
	}
	return e
}

// classify maps a failed response to an error class.
func classify(status int, gqlErrors []GraphQLError) error {
	for _, ge := range gqlErrors {
		msg := strings.ToLower(ge.Message)
		switch ge.Code() {
		case "USER_BLOCKED", "BLOCKED":
			return ErrBlocked
		case "FORBIDDEN":
			if strings.Contains(msg, "blocked") {
				return ErrBlocked
			}
			return ErrUnauthorized
		case "UNAUTHENTICATED", "UNAUTHORIZED":
			return ErrUnauthorized
		case "NOT_FOUND":
			return ErrNotFound
		}
		if strings.Contains(msg, "blocked") {
			return ErrBlocked
		}
		if strings.Contains(msg, "unauthorized") {
			return ErrUnauthorized
		}
		if strings.Contains(msg, "not found") {
			return ErrNotFound
		}
	}
	switch status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrBlocked
	case http.StatusNotFound:
		return ErrNotFound
	}
	return ErrTransport
}

// Upload PUTs body to a presigned storage URL. No session credential is
// attached; the URL itself authorizes the write.
func (c *Client) Upload(ctx context.Context, uploadURL, contentType string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: uploading: %w", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &Error{StatusCode: resp.StatusCode, Body: string(text), kind: ErrTransport}
	}
	return nil
}
