package driver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
)

// Prober decides whether a freshly spawned driver accepts requests on port.
type Prober interface {
	Ready(ctx context.Context, port uint16) error
}

type ProbeFunc func(ctx context.Context, port uint16) error

func (f ProbeFunc) Ready(ctx context.Context, port uint16) error {
	return f(ctx, port)
}

// SkipProbe treats a started process as ready.
var SkipProbe = ProbeFunc(func(context.Context, uint16) error { return nil })

// HTTPProber polls the WebDriver GET /status endpoint until value.ready is true.
type HTTPProber struct {
	Host     string
	Interval time.Duration
	client   *retryablehttp.Client
}

func NewHTTPProber() *HTTPProber {
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.Logger = nil
	client.HTTPClient.Timeout = 2 * time.Second
	return &HTTPProber{
		Host:     "127.0.0.1",
		Interval: 100 * time.Millisecond,
		client:   client,
	}
}

func (p *HTTPProber) Ready(ctx context.Context, port uint16) error {
	url := fmt.Sprintf("http://%s:%d/status", p.Host, port)
	operation := func() error {
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status endpoint returned %d", resp.StatusCode)
		}
		if !gjson.GetBytes(body, "value.ready").Bool() {
			return fmt.Errorf("driver not ready: %s", gjson.GetBytes(body, "value.message").String())
		}
		return nil
	}
	b := backoff.WithContext(backoff.NewConstantBackOff(p.Interval), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("waiting for %s: %w", url, ctx.Err())
		}
		return err
	}
	return nil
}
