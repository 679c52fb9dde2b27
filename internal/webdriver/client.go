// Package webdriver is a small W3C WebDriver client, enough to script a
// browser through a local chromedriver.
package webdriver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
)

// elementKey is the W3C web element identifier.
const elementKey = "element-6066-11e4-a52e-4f735466cecf"

const (
	ByCSS     = "css selector"
	ByTag     = "tag name"
	ByXPath   = "xpath"
	ByLinkTxt = "link text"
)

type Options struct {
	// RetryMax bounds transport-level retries of a single command.
	RetryMax int
	Timeout  time.Duration
}

type Client struct {
	baseURL string
	http    *retryablehttp.Client
}

// Error is a WebDriver error response.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("webdriver %s (%d): %s", e.Code, e.Status, e.Message)
}

func New(baseURL string, opts Options) *Client {
	hc := retryablehttp.NewClient()
	hc.RetryMax = opts.RetryMax
	hc.RetryWaitMin = 100 * time.Millisecond
	hc.RetryWaitMax = time.Second
	hc.Logger = nil
	if opts.Timeout > 0 {
		hc.HTTPClient.Timeout = opts.Timeout
	}
	// WebDriver errors carry a JSON body worth keeping, so only retry on
	// connection failures.
	hc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return err != nil, nil
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
	}
}

// NewSession opens a browser session. An empty capabilities map requests a
// default chrome session.
func (c *Client) NewSession(ctx context.Context, capabilities map[string]any) (*Session, error) {
	if capabilities == nil {
		capabilities = ChromeCapabilities()
	}
	body := map[string]any{"capabilities": map[string]any{"alwaysMatch": capabilities}}
	res, err := c.do(ctx, http.MethodPost, "/session", body)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	id := res.Get("sessionId").String()
	if id == "" {
		return nil, fmt.Errorf("create session: response carries no session id")
	}
	return &Session{client: c, id: id}, nil
}

func ChromeCapabilities(args ...string) map[string]any {
	caps := map[string]any{"browserName": "chrome"}
	if len(args) > 0 {
		caps["goog:chromeOptions"] = map[string]any{"args": args}
	}
	return caps
}

// do sends one command and returns the "value" member of the response.
func (c *Client) do(ctx context.Context, method, path string, body any) (gjson.Result, error) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		payload = bytes.NewReader(data)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read %s %s: %w", method, path, err)
	}

	value := gjson.GetBytes(data, "value")
	if resp.StatusCode >= 400 || value.Get("error").Exists() {
		return gjson.Result{}, &Error{
			Status:  resp.StatusCode,
			Code:    value.Get("error").String(),
			Message: value.Get("message").String(),
		}
	}
	return value, nil
}
