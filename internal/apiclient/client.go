// Package apiclient is a notesync.Repository backed by a remote ansuz server.
package apiclient

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

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/notesync"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/tree"
)

// DefaultTimeout bounds every request made by a Client.
const DefaultTimeout = 10 * time.Second

// Client talks to the /api repository routes.
type Client struct {
	base  string
	token string
	http  *http.Client
}

var _ notesync.Repository = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithToken sends "Authorization: Bearer token" on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a client for the server at baseURL (e.g. http://localhost:8080).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/") + "/api",
		http: &http.Client{Timeout: DefaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type apiError struct {
	Error string      `json:"error"`
	Kind  apperr.Kind `json:"kind"`
}

// kindForStatus is used when the server did not name the kind.
func kindForStatus(status int) apperr.Kind {
	switch status {
	case http.StatusNotFound:
		return apperr.KindNotFound
	case http.StatusBadRequest:
		return apperr.KindValidation
	case http.StatusUnprocessableEntity:
		return apperr.KindStorageRelocation
	case http.StatusConflict:
		return apperr.KindConflict
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusUnauthorized:
		return apperr.KindTransport
	default:
		return apperr.KindInternal
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("apiclient: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("apiclient: %s %s: %w", method, path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("apiclient: %s %s: %w", method, path, ctx.Err())
		}
		return fmt.Errorf("apiclient: %s %s: %w: %w", method, path, apperr.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var ae apiError
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&ae)
		kind := ae.Kind
		if kind == apperr.KindNone {
			kind = kindForStatus(resp.StatusCode)
		}
		msg := ae.Error
		if msg == "" {
			msg = resp.Status
		}
		if sentinel := kind.Sentinel(); sentinel != nil {
			return fmt.Errorf("apiclient: %s %s: %s: %w", method, path, msg, sentinel)
		}
		return fmt.Errorf("apiclient: %s %s: %s", method, path, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("apiclient: %s %s: truncated response: %w", method, path, apperr.ErrTransport)
		}
		return fmt.Errorf("apiclient: %s %s: decode response: %w", method, path, err)
	}
	return nil
}

func notePath(id models.NoteID) string {
	return "/notes/" + url.PathEscape(string(id))
}

// List returns every note in creation order.
func (c *Client) List(ctx context.Context) ([]models.Note, error) {
	var resp struct {
		Notes []models.Note `json:"notes"`
	}
	if err := c.do(ctx, http.MethodGet, "/notes", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Notes, nil
}

// Tree returns the forest as built by the server.
func (c *Client) Tree(ctx context.Context) ([]*tree.Node, error) {
	var resp struct {
		Roots []*tree.Node `json:"roots"`
	}
	if err := c.do(ctx, http.MethodGet, "/notes/tree", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Roots, nil
}

// Get returns one note.
func (c *Client) Get(ctx context.Context, id models.NoteID) (models.Note, error) {
	var n models.Note
	err := c.do(ctx, http.MethodGet, notePath(id), nil, &n)
	return n, err
}

// Create adds a note below parent (or as a root).
func (c *Client) Create(ctx context.Context, title, content string, parent *models.NoteID) (models.Note, error) {
	in := struct {
		Title    string         `json:"title"`
		Content  string         `json:"content"`
		ParentID *models.NoteID `json:"parent_id,omitempty"`
	}{title, content, parent}
	var n models.Note
	err := c.do(ctx, http.MethodPost, "/notes", in, &n)
	return n, err
}

// Update rewrites title and content of id.
func (c *Client) Update(ctx context.Context, id models.NoteID, title, content string) (models.Note, error) {
	in := struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}{title, content}
	var n models.Note
	err := c.do(ctx, http.MethodPut, notePath(id), in, &n)
	return n, err
}

// Delete removes id and its descendants.
func (c *Client) Delete(ctx context.Context, id models.NoteID) error {
	return c.do(ctx, http.MethodDelete, notePath(id), nil, nil)
}

// Search runs a server-side search.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]storage.SearchHit, error) {
	q := url.Values{"q": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Results []storage.SearchHit `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, "/search?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Count returns the number of notes the server reports.
func (c *Client) Count(ctx context.Context) (int, error) {
	var resp struct {
		NotesCount int `json:"notes_count"`
	}
	err := c.do(ctx, http.MethodGet, "/health", nil, &resp)
	return resp.NotesCount, err
}

// Settings returns the server's storage settings.
func (c *Client) Settings(ctx context.Context) (models.Settings, error) {
	var s models.Settings
	err := c.do(ctx, http.MethodGet, "/settings", nil, &s)
	return s, err
}

// UpdateSettings moves the server's storage.
func (c *Client) UpdateSettings(ctx context.Context, s models.Settings) (models.Settings, error) {
	var out models.Settings
	err := c.do(ctx, http.MethodPut, "/settings", s, &out)
	return out, err
}
