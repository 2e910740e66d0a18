// Package remote implements the backend contract over the registry's HTTP
// API: JSON requests carrying the apikey header and a bearer token, and a
// server-sent event stream for realtime changes.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/oficios-registry/internal/backend"
	"github.com/example/oficios-registry/internal/credentials"
	"github.com/example/oficios-registry/internal/slot"
)

// APIKeyHeader carries the project key on every request.
const APIKeyHeader = "apikey"

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its Timeout must be zero or the
// realtime streams are cut when it elapses.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithCredentials persists the session to file so it survives restarts.
func WithCredentials(file *credentials.File) Option {
	return func(c *Client) {
		c.creds = file
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the clock used to expire sessions.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// Client is the HTTP backend.Client.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	creds   *credentials.File
	logger  *slog.Logger
	now     func() time.Time
	state   *backend.SessionState
}

var (
	_ backend.Client   = (*Client)(nil)
	_ backend.Exporter = (*Client)(nil)
)

// New returns a client for the registry at baseURL.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{},
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state = backend.NewSessionState(c.creds, c.logger, c.now)
	return c
}

type credentialsRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

type yearRequest struct {
	Ano        int `json:"ano"`
	Quantidade int `json:"quantidade"`
}

type yearsResponse struct {
	Years []slot.Year `json:"years"`
}

type yearResponse struct {
	Year slot.Year `json:"year"`
}

type slotsResponse struct {
	Slots []slot.Slot `json:"slots"`
}

type slotResponse struct {
	Slot slot.Slot `json:"slot"`
}

type errorResponse struct {
	ErrorCode string            `json:"error_code"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors"`
}

// GetSession returns the active session or nil when signed out. A stored
// session the server no longer accepts is discarded.
func (c *Client) GetSession(ctx context.Context) (*backend.Session, error) {
	current := c.state.Current()
	if current == nil {
		return nil, nil
	}

	var user backend.User
	if err := c.do(ctx, http.MethodGet, "/auth/user", nil, nil, current, &user); err != nil {
		if errors.Is(err, backend.ErrNoSession) {
			c.state.Forget(ctx)
			return nil, nil
		}
		return nil, err
	}

	current.User = user
	return current, nil
}

// SignInWithPassword exchanges the credentials for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*backend.Session, error) {
	var session backend.Session
	if err := c.do(ctx, http.MethodPost, "/auth/token", nil, credentialsRequest{Email: email, Password: password}, nil, &session); err != nil {
		return nil, err
	}
	c.state.Remember(ctx, &session)
	return &session, nil
}

// SignUp registers an account. The session, when issued, becomes current.
func (c *Client) SignUp(ctx context.Context, email, password, redirectTo string) (backend.SignUpResult, error) {
	var result backend.SignUpResult
	body := credentialsRequest{Email: email, Password: password, RedirectTo: redirectTo}
	if err := c.do(ctx, http.MethodPost, "/auth/signup", nil, body, nil, &result); err != nil {
		return backend.SignUpResult{}, err
	}
	if result.Session != nil {
		c.state.Remember(ctx, result.Session)
	}
	return result, nil
}

// SignOut revokes the current session on the server and forgets it locally.
// Signing out without a session is a no-op.
func (c *Client) SignOut(ctx context.Context) error {
	current := c.state.Current()
	if current == nil {
		return nil
	}
	if err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, current, nil); err != nil {
		if !errors.Is(err, backend.ErrNoSession) {
			return err
		}
	}
	c.state.Forget(ctx)
	return nil
}

// OnAuthStateChange registers listener. It is called at once with
// INITIAL_SESSION and the current session, then on every change.
func (c *Client) OnAuthStateChange(listener backend.AuthListener) func() {
	return c.state.Subscribe(listener)
}

// ListYears returns the years of kind, newest first.
func (c *Client) ListYears(ctx context.Context, kind slot.Kind) ([]slot.Year, error) {
	var resp yearsResponse
	if err := c.authorized(ctx, http.MethodGet, kindPath(kind, "years"), nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Years, nil
}

// ProvisionYear creates a year with its slots in one server transaction.
func (c *Client) ProvisionYear(ctx context.Context, kind slot.Kind, ano, quantidade int) (slot.Year, error) {
	var resp yearResponse
	body := yearRequest{Ano: ano, Quantidade: quantidade}
	if err := c.authorized(ctx, http.MethodPost, kindPath(kind, "years"), nil, body, &resp); err != nil {
		return slot.Year{}, err
	}
	return resp.Year, nil
}

// ListSlots returns rows from..to of yearID ordered by numero.
func (c *Client) ListSlots(ctx context.Context, kind slot.Kind, yearID string, from, to int) ([]slot.Slot, error) {
	query := url.Values{}
	query.Set("from", strconv.Itoa(from))
	query.Set("to", strconv.Itoa(to))

	var resp slotsResponse
	if err := c.authorized(ctx, http.MethodGet, kindPath(kind, "years", yearID, "slots"), query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Slots, nil
}

// UpdateSlot writes patch to the slot id and returns the stored row.
func (c *Client) UpdateSlot(ctx context.Context, kind slot.Kind, id string, patch slot.Patch) (slot.Slot, error) {
	var resp slotResponse
	if err := c.authorized(ctx, http.MethodPatch, kindPath(kind, "slots", id), nil, patch, &resp); err != nil {
		return slot.Slot{}, err
	}
	return resp.Slot, nil
}

// ExportYear downloads the workbook of yearID.
func (c *Client) ExportYear(ctx context.Context, kind slot.Kind, yearID string) (backend.Workbook, error) {
	current := c.state.Current()
	if current == nil {
		return backend.Workbook{}, noSession()
	}

	resp, err := c.send(ctx, http.MethodGet, kindPath(kind, "years", yearID, "export"), nil, nil, current)
	if err != nil {
		return backend.Workbook{}, c.checkSession(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return backend.Workbook{}, fmt.Errorf("remote backend: read export: %w", err)
	}

	filename := fmt.Sprintf("%s.xlsx", kind.Name)
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		filename = params["filename"]
	}
	return backend.Workbook{Filename: filename, Data: data}, nil
}

// authorized performs a request that needs the current session. A rejected
// session is forgotten so listeners see the sign-out.
func (c *Client) authorized(ctx context.Context, method, path string, query url.Values, body, out any) error {
	current := c.state.Current()
	if current == nil {
		return noSession()
	}
	return c.checkSession(ctx, c.do(ctx, method, path, query, body, current, out))
}

func (c *Client) checkSession(ctx context.Context, err error) error {
	if errors.Is(err, backend.ErrNoSession) {
		c.state.Forget(ctx)
	}
	return err
}

// do sends one JSON request and decodes the response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, session *backend.Session, out any) error {
	resp, err := c.send(ctx, method, path, query, body, session)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("remote backend: decode %s %s: %w", method, path, err)
	}
	return nil
}

// send issues the request and turns any non-2xx response into a
// *backend.Error. The caller owns the body of a successful response.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body any, session *backend.Session) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, path, query, body, session)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote backend: %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any, session *backend.Session) (*http.Request, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("remote backend: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("remote backend: build %s %s: %w", method, path, err)
	}
	req.Header.Set(APIKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != nil {
		req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	}
	return req, nil
}

func kindPath(kind slot.Kind, segments ...string) string {
	escaped := make([]string, 0, len(segments)+2)
	escaped = append(escaped, "rest", url.PathEscape(kind.Name))
	for _, segment := range segments {
		escaped = append(escaped, url.PathEscape(segment))
	}
	return "/" + strings.Join(escaped, "/")
}

func noSession() error {
	return &backend.Error{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "Sessão inválida. Faça login novamente.", Kind: backend.ErrNoSession}
}

func decodeError(resp *http.Response) error {
	bErr := &backend.Error{Status: resp.StatusCode}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var body errorResponse
	if err := json.Unmarshal(data, &body); err == nil {
		bErr.Code = body.ErrorCode
		bErr.Message = body.Message
		bErr.Fields = body.Errors
	} else {
		bErr.Message = strings.TrimSpace(string(data))
	}
	if bErr.Message == "" {
		bErr.Message = http.StatusText(resp.StatusCode)
	}
	bErr.Kind = errorKind(bErr.Code, resp.StatusCode)
	return bErr
}

// errorKind maps the error_code of a response, or failing that its status,
// to the backend sentinel.
func errorKind(code string, status int) error {
	switch code {
	case "invalid_credentials":
		return backend.ErrInvalidCredentials
	case "user_already_exists":
		return backend.ErrUserExists
	case "unauthorized":
		return backend.ErrNoSession
	case "not_found":
		return backend.ErrNotFound
	case "conflict":
		return backend.ErrConflict
	case "validation_failed":
		return backend.ErrInvalidInput
	case "invalid_api_key", "over_request_rate_limit", "internal_error":
		return nil
	}

	switch status {
	case http.StatusUnauthorized:
		return backend.ErrNoSession
	case http.StatusNotFound:
		return backend.ErrNotFound
	case http.StatusConflict:
		return backend.ErrConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return backend.ErrInvalidInput
	}
	return nil
}
