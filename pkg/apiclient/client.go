// pkg/apiclient/client.go

// Package apiclient is a Go client for the translator API. It keeps the
// session tokens in an injected Session, refreshes an expired access token
// once per request and consumes both translation streams incrementally.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrUnauthorized means the session could not be refreshed and the user
	// has been logged out.
	ErrUnauthorized = errors.New("session expired, please log in again")

	// ErrIncompleteStream is returned when a translation stream ends
	// without its completion marker.
	ErrIncompleteStream = errors.New("translation stream ended before completion")

	// ErrUnsaved is returned with a complete result the server could not
	// store.
	ErrUnsaved = errors.New("translation completed but was not saved")

	ErrTranslationFailed = errors.New("translation failed")
)

const refreshCookie = "refreshToken"

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api returned status %d: %s", e.StatusCode, e.Message)
}

// Session stores the tokens of the signed-in user. Logout is called when
// the refresh token is rejected.
type Session interface {
	AccessToken() string
	SetAccessToken(token string)
	RefreshToken() string
	SetRefreshToken(token string)
	Logout()
}

type Client struct {
	base    *url.URL
	http    *http.Client
	session Session
}

type Option func(*Client)

// WithHTTPClient replaces the default client. Streams are bounded by the
// request context, so the client should not set a Timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL string, session Session, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	base.RawQuery = ""
	base.Fragment = ""
	if session == nil {
		session = &MemorySession{}
	}

	c := &Client{base: base, http: &http.Client{}, session: session}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type Job struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Format    string    `json:"format"`
	CreatedAt time.Time `json:"createdAt"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Upload struct {
	ObjectName    string `json:"objectName"`
	FileExtension string `json:"fileExtension"`
	Content       string `json:"content"`
}

// Signup creates an account and starts a session.
func (c *Client) Signup(ctx context.Context, email, password, name string) error {
	var out struct {
		AccessToken string `json:"accessToken"`
	}
	err := c.doJSON(ctx, request{
		method:    http.MethodPost,
		path:      "/api/auth/signup",
		body:      map[string]string{"email": email, "password": password, "name": name},
		noRefresh: true,
	}, &out)
	if err != nil {
		return err
	}
	c.session.SetAccessToken(out.AccessToken)
	return nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	var out struct {
		AccessToken string `json:"accessToken"`
		User        User   `json:"user"`
	}
	err := c.doJSON(ctx, request{
		method:    http.MethodPost,
		path:      "/api/auth/login",
		body:      map[string]string{"email": email, "password": password},
		noRefresh: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	c.session.SetAccessToken(out.AccessToken)
	return &out.User, nil
}

// Logout revokes the refresh token and clears the session.
func (c *Client) Logout(ctx context.Context) error {
	err := c.doJSON(ctx, request{method: http.MethodPost, path: "/api/auth/logout", noRefresh: true}, nil)
	c.session.SetAccessToken("")
	c.session.SetRefreshToken("")
	c.session.Logout()
	return err
}

// RefreshAccessToken exchanges the refresh token for a new access token.
func (c *Client) RefreshAccessToken(ctx context.Context) error {
	var out struct {
		AccessToken string `json:"accessToken"`
	}
	err := c.doJSON(ctx, request{method: http.MethodPost, path: "/api/refresh/accessToken", noRefresh: true}, &out)
	if err != nil {
		return err
	}
	if out.AccessToken == "" {
		return errors.New("refresh returned no access token")
	}
	c.session.SetAccessToken(out.AccessToken)
	return nil
}

func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.doJSON(ctx, request{method: http.MethodGet, path: "/api/users/me"}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Jobs lists the caller's translation jobs, newest first.
func (c *Client) Jobs(ctx context.Context) ([]Job, error) {
	var out struct {
		TranslationJobs []Job `json:"translationJobs"`
	}
	if err := c.doJSON(ctx, request{method: http.MethodGet, path: "/api/translate/translationJobs"}, &out); err != nil {
		return nil, err
	}
	return out.TranslationJobs, nil
}

// History returns the conversation of a job in order.
func (c *Client) History(ctx context.Context, jobID string) ([]Message, error) {
	var out struct {
		TranslationHistory []struct {
			Messages []Message `json:"messages"`
		} `json:"translationHistory"`
	}
	path := "/api/translate/translationHistory/" + url.PathEscape(jobID)
	if err := c.doJSON(ctx, request{method: http.MethodGet, path: path}, &out); err != nil {
		return nil, err
	}
	if len(out.TranslationHistory) == 0 {
		return nil, nil
	}
	return out.TranslationHistory[0].Messages, nil
}

// Download returns the latest output of a completed job.
func (c *Client) Download(ctx context.Context, jobID string) ([]byte, error) {
	path := "/api/translate/translationJobs/" + url.PathEscape(jobID) + "/download"
	resp, err := c.send(ctx, request{method: http.MethodGet, path: path})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, apiError(resp)
	}
	return io.ReadAll(resp.Body)
}

// Upload stores a .txt or .json document that a later translation can
// reference by its object name.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (*Upload, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out Upload
	err = c.doJSON(ctx, request{
		method:      http.MethodPost,
		path:        "/api/translate/upload",
		raw:         buf.Bytes(),
		contentType: mw.FormDataContentType(),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type request struct {
	method      string
	path        string
	body        any
	raw         []byte
	contentType string
	accept      string

	// noRefresh marks the session endpoints, which never trigger a
	// refresh themselves.
	noRefresh bool
}

func (c *Client) doJSON(ctx context.Context, r request, out any) error {
	resp, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return apiError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// send performs the request. A 403 triggers one refresh and one retry; if
// the refresh is rejected the session is logged out.
func (c *Client) send(ctx context.Context, r request) (*http.Response, error) {
	payload, contentType := r.raw, r.contentType
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return nil, err
		}
		payload, contentType = b, "application/json"
	}

	resp, err := c.attempt(ctx, r, payload, contentType)
	if err != nil || r.noRefresh || resp.StatusCode != http.StatusForbidden {
		return resp, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if err := c.RefreshAccessToken(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.session.SetAccessToken("")
		c.session.SetRefreshToken("")
		c.session.Logout()
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return c.attempt(ctx, r, payload, contentType)
}

func (c *Client) attempt(ctx context.Context, r request, payload []byte, contentType string) (*http.Response, error) {
	endpoint := c.base.ResolveReference(&url.URL{Path: strings.TrimSuffix(c.base.Path, "/") + r.path})

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, endpoint.String(), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	accept := r.accept
	if accept == "" {
		accept = "application/json"
	}
	req.Header.Set("Accept", accept)
	if token := c.session.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if refresh := c.session.RefreshToken(); refresh != "" {
		req.AddCookie(&http.Cookie{Name: refreshCookie, Value: refresh})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	c.absorb(resp)
	return resp, nil
}

// absorb copies rotated credentials from a response into the session.
func (c *Client) absorb(resp *http.Response) {
	if bearer := resp.Header.Get("Authorization"); bearer != "" {
		if token, ok := strings.CutPrefix(bearer, "Bearer "); ok && token != "" {
			c.session.SetAccessToken(token)
		}
	}
	for _, ck := range resp.Cookies() {
		if ck.Name != refreshCookie {
			continue
		}
		if ck.Value == "" || ck.MaxAge < 0 {
			c.session.SetRefreshToken("")
		} else {
			c.session.SetRefreshToken(ck.Value)
		}
	}
}

func apiError(resp *http.Response) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = body.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
