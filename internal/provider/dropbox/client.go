// Package dropbox implements the change-feed, download and upload
// capabilities on top of the Dropbox API v2.
package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/sethvargo/go-retry"

	"github.com/dtroode/mdpublish/internal/model"
)

const (
	defaultAPIURL     = "https://api.dropboxapi.com"
	defaultContentURL = "https://content.dropboxapi.com"
)

// Options configures clients created by a Factory.
type Options struct {
	APIURL     string
	ContentURL string
	HTTPClient *http.Client
	MaxRetries uint64
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

var _ model.ProviderFactory = (*Factory)(nil)

// Factory creates per-user clients sharing one HTTP client and retry policy.
type Factory struct {
	opts Options
}

// NewFactory fills in defaults for unset options.
func NewFactory(opts Options) *Factory {
	opts.APIURL = strings.TrimRight(strings.TrimSpace(opts.APIURL), "/")
	if opts.APIURL == "" {
		opts.APIURL = defaultAPIURL
	}
	opts.ContentURL = strings.TrimRight(strings.TrimSpace(opts.ContentURL), "/")
	if opts.ContentURL == "" {
		opts.ContentURL = defaultContentURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 200 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 5 * time.Second
	}
	return &Factory{opts: opts}
}

// ForCredential returns a client authorized with credential.
func (f *Factory) ForCredential(credential model.Credential) model.Provider {
	return &Client{token: string(credential), opts: f.opts}
}

var _ model.Provider = (*Client)(nil)

// Client talks to Dropbox on behalf of a single user.
type Client struct {
	token string
	opts  Options
}

type listFolderArg struct {
	Path           string `json:"path"`
	Recursive      bool   `json:"recursive"`
	IncludeDeleted bool   `json:"include_deleted"`
}

type listFolderContinueArg struct {
	Cursor string `json:"cursor"`
}

type listFolderResult struct {
	Entries []metadata `json:"entries"`
	Cursor  string     `json:"cursor"`
	HasMore bool       `json:"has_more"`
}

type metadata struct {
	Tag         string `json:".tag"`
	PathLower   string `json:"path_lower"`
	PathDisplay string `json:"path_display"`
	Rev         string `json:"rev"`
	Size        int64  `json:"size"`
}

type pathArg struct {
	Path string `json:"path"`
}

type uploadArg struct {
	Path       string `json:"path"`
	Mode       string `json:"mode"`
	Autorename bool   `json:"autorename"`
	Mute       bool   `json:"mute"`
}

type apiErrorBody struct {
	ErrorSummary string `json:"error_summary"`
}

// APIError is a non-2xx response from Dropbox. It unwraps to one of the
// model error sentinels when the status maps to one.
type APIError struct {
	Status     int
	Summary    string
	RetryAfter time.Duration
	kind       error
}

func (e *APIError) Error() string {
	if e.Summary != "" {
		return fmt.Sprintf("dropbox: status=%d summary=%s", e.Status, e.Summary)
	}
	return fmt.Sprintf("dropbox: status=%d", e.Status)
}

func (e *APIError) Unwrap() error {
	return e.kind
}

// ListDelta returns the next page of changes after cursor.
func (c *Client) ListDelta(ctx context.Context, cursor string, hasCursor bool) (model.Page, error) {
	var (
		endpoint string
		arg      any
	)
	if hasCursor {
		endpoint, arg = "/2/files/list_folder/continue", listFolderContinueArg{Cursor: cursor}
	} else {
		endpoint, arg = "/2/files/list_folder", listFolderArg{Path: "", Recursive: true, IncludeDeleted: true}
	}

	body, err := json.Marshal(arg)
	if err != nil {
		return model.Page{}, fmt.Errorf("failed to encode list folder arg: %w", err)
	}

	var result listFolderResult
	err = c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.APIURL+endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, func(r io.Reader) error {
		return json.NewDecoder(r).Decode(&result)
	})
	if err != nil {
		return model.Page{}, fmt.Errorf("failed to list changes: %w", err)
	}

	page := model.Page{
		Entries: make([]model.ChangeEntry, 0, len(result.Entries)),
		Cursor:  result.Cursor,
		HasMore: result.HasMore,
	}
	for _, m := range result.Entries {
		page.Entries = append(page.Entries, m.toEntry())
	}
	return page, nil
}

// Read downloads the full content of the file at path.
func (c *Client) Read(ctx context.Context, path string) ([]byte, error) {
	apiArg, err := headerJSON(pathArg{Path: path})
	if err != nil {
		return nil, err
	}

	var data []byte
	err = c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.ContentURL+"/2/files/download", nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Dropbox-API-Arg", apiArg)
		return req, nil
	}, func(r io.Reader) error {
		var readErr error
		data, readErr = io.ReadAll(r)
		return readErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", path, err)
	}
	return data, nil
}

// Write uploads data to path, replacing any existing file when overwrite is set.
func (c *Client) Write(ctx context.Context, path string, data []byte, overwrite bool) error {
	mode := "add"
	if overwrite {
		mode = "overwrite"
	}
	apiArg, err := headerJSON(uploadArg{Path: path, Mode: mode, Mute: true})
	if err != nil {
		return err
	}

	err = c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.ContentURL+"/2/files/upload", bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Dropbox-API-Arg", apiArg)
		req.Header.Set("Content-Type", "application/octet-stream")
		return req, nil
	}, func(r io.Reader) error {
		_, err := io.Copy(io.Discard, r)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", path, err)
	}
	return nil
}

// do sends the request built by newReq, retrying transient and rate-limited
// failures with exponential backoff, and hands a 2xx body to decode. A
// Retry-After from the server replaces the backoff delay when it is longer.
func (c *Client) do(ctx context.Context, newReq func(context.Context) (*http.Request, error), decode func(io.Reader) error) error {
	var retryAfter time.Duration
	backoff := withRetryAfter(
		retry.WithMaxRetries(c.opts.MaxRetries, retry.WithCappedDuration(c.opts.MaxDelay, retry.NewExponential(c.opts.BaseDelay))),
		&retryAfter,
	)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := newReq(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)

		resp, err := c.opts.HTTPClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retry.RetryableError(fmt.Errorf("%w: %w", model.ErrTransientNetwork, err))
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if err := decode(resp.Body); err != nil {
				return retry.RetryableError(fmt.Errorf("%w: failed to read response: %w", model.ErrTransientNetwork, err))
			}
			return nil
		}

		apiErr := newAPIError(resp)
		switch {
		case errors.Is(apiErr, model.ErrRateLimited):
			retryAfter = apiErr.RetryAfter
			return retry.RetryableError(apiErr)
		case errors.Is(apiErr, model.ErrTransientNetwork):
			return retry.RetryableError(apiErr)
		default:
			return apiErr
		}
	})
}

// withRetryAfter waits at least *hint before the next attempt and clears it.
// The retry budget of next still applies.
func withRetryAfter(next retry.Backoff, hint *time.Duration) retry.Backoff {
	return retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := next.Next()
		if stop {
			return 0, true
		}
		d, *hint = max(d, *hint), 0
		return d, false
	})
}

func newAPIError(resp *http.Response) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode, Summary: strings.TrimSpace(string(raw))}

	var body apiErrorBody
	if json.Unmarshal(raw, &body) == nil && body.ErrorSummary != "" {
		apiErr.Summary = body.ErrorSummary
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		apiErr.kind = model.ErrAuthExpired
	case resp.StatusCode == http.StatusTooManyRequests:
		apiErr.kind = model.ErrRateLimited
		apiErr.RetryAfter = parseRetryAfterSeconds(resp.Header.Get("Retry-After"))
	case resp.StatusCode >= 500:
		apiErr.kind = model.ErrTransientNetwork
	case resp.StatusCode == http.StatusConflict && strings.HasPrefix(apiErr.Summary, "reset"):
		apiErr.kind = model.ErrCursorReset
	case resp.StatusCode == http.StatusConflict && strings.Contains(apiErr.Summary, "not_found"):
		apiErr.kind = model.ErrNotFound
	}
	return apiErr
}

func (m metadata) toEntry() model.ChangeEntry {
	path := m.PathDisplay
	if path == "" {
		path = m.PathLower
	}
	entry := model.ChangeEntry{Path: path}
	switch m.Tag {
	case "file":
		entry.Metadata = &model.EntryMetadata{Rev: m.Rev, Size: m.Size}
	case "folder":
		entry.Metadata = &model.EntryMetadata{IsDir: true}
	}
	return entry
}

// headerJSON encodes v for the Dropbox-API-Arg header, which only accepts
// printable ASCII: DEL and every non-ASCII rune are written as \u escapes.
func headerJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode api arg: %w", err)
	}

	var b strings.Builder
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		raw = raw[size:]
		if r < 0x7F {
			b.WriteRune(r)
			continue
		}
		if r > 0xFFFF {
			r1, r2 := utf16.EncodeRune(r)
			fmt.Fprintf(&b, `\u%04x\u%04x`, r1, r2)
			continue
		}
		fmt.Fprintf(&b, `\u%04x`, r)
	}
	return b.String(), nil
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
