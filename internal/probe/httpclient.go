package probe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// maxBody caps how much of a vendor response is read into memory.
const maxBody = 4 << 20

// base carries what every variant needs to talk HTTP.
type base struct {
	name    string
	baseURL string
	client  *http.Client
	now     func() time.Time
}

func newBase(o Options, defaultURL string) base {
	c := o.Client
	if c == nil {
		timeout := o.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		c = &http.Client{Timeout: timeout}
	}
	u := strings.TrimRight(o.BaseURL, "/")
	if u == "" {
		u = defaultURL
	}
	now := o.Now
	if now == nil {
		now = time.Now
	}
	return base{name: o.Name, baseURL: u, client: c, now: now}
}

func (b *base) Name() string { return b.name }

type exchange struct {
	status int
	header http.Header
	body   []byte
}

func (e *exchange) text() string { return strings.TrimSpace(string(e.body)) }

// withQuery appends params to raw in a stable order.
func withQuery(raw string, params map[string]string) string {
	if len(params) == 0 {
		return raw
	}
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	return raw + "?" + q.Encode()
}

// do performs one HTTP call. A network failure or a non-2xx status yields an
// ErrTransport; in the latter case the exchange is still returned so the body
// can be recorded.
func (b *base) do(ctx context.Context, method, fullURL string, headers map[string]string, body []byte) (*exchange, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, rd)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}
	ex := &exchange{status: resp.StatusCode, header: resp.Header, body: data}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ex, fmt.Errorf("%w: HTTP %d", ErrTransport, resp.StatusCode)
	}
	return ex, nil
}
