package whttp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"syscall"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/worklogs/worklogs/internal/utils"
)

const (
	USER_AGENT      = "worklogs/1.0"
	DEFAULT_TIMEOUT = 30 * time.Second
)

type WHTTPHeader struct {
	Name  string
	Value string
}

type WHTTPReq struct {
	URL     string
	Method  string
	Headers []WHTTPHeader
	// Timeout overrides the client timeout for this request when > 0.
	Timeout time.Duration
}

type WHTTPRes struct {
	StatusCode int
	BodyString string
}

// Policy decides which failures are transient and how long to wait between
// attempts. Only idempotent requests are ever retried.
type Policy struct {
	MaxRetries    int
	BaseWait      time.Duration
	MaxWait       time.Duration
	RetryStatuses []int
}

// DefaultPolicy retries rate limiting and gateway/server errors three times,
// waiting 1s, 2s and 4s.
var DefaultPolicy = Policy{
	MaxRetries:    3,
	BaseWait:      1 * time.Second,
	MaxWait:       30 * time.Second,
	RetryStatuses: []int{http.StatusTooManyRequests, 500, 502, 503, 504},
}

// Backoff returns the wait before retry number attempt (0-based): BaseWait
// doubled per attempt, capped at MaxWait. A 429 carrying Retry-After waits
// for the advertised number of seconds instead.
func (p Policy) Backoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && s >= 0 {
			return p.cap(time.Duration(s) * time.Second)
		}
	}
	if attempt < 0 {
		attempt = 0
	}
	wait := p.BaseWait
	for i := 0; i < attempt; i++ {
		wait *= 2
		if p.MaxWait > 0 && wait >= p.MaxWait {
			break
		}
	}
	return p.cap(wait)
}

func (p Policy) cap(d time.Duration) time.Duration {
	if p.MaxWait > 0 && d > p.MaxWait {
		return p.MaxWait
	}
	return d
}

// ShouldRetry reports whether the outcome of an attempt is transient.
func (p Policy) ShouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return isTransientError(err)
	}
	if resp == nil {
		return false
	}
	for _, s := range p.RetryStatuses {
		if resp.StatusCode == s {
			return true
		}
	}
	return false
}

func isTransientError(err error) bool {
	if isTimeout(err) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// ClientOptions configures NewClient.
type ClientOptions struct {
	Policy  Policy
	Timeout time.Duration
	Proxy   string
	Log     utils.Logger
}

// Client sends requests, retrying idempotent ones according to its Policy.
type Client struct {
	rc     *retryablehttp.Client
	policy Policy
}

// NewClient builds a Client. A zero Policy means DefaultPolicy.
func NewClient(opts ClientOptions) (*Client, error) {
	policy := opts.Policy
	if policy.RetryStatuses == nil && policy.MaxRetries == 0 && policy.BaseWait == 0 {
		policy = DefaultPolicy
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DEFAULT_TIMEOUT
	}

	rc := retryablehttp.NewClient()
	rc.Logger = leveledLogger{log: utils.OrNop(opts.Log)}
	rc.RetryMax = policy.MaxRetries
	rc.RetryWaitMin = policy.BaseWait
	rc.RetryWaitMax = policy.MaxWait
	rc.HTTPClient.Timeout = timeout
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return policy.ShouldRetry(resp, err), nil
	}
	rc.Backoff = func(_, _ time.Duration, attemptNum int, resp *http.Response) time.Duration {
		return policy.Backoff(attemptNum, resp)
	}
	// Surface the last response or error as-is once retries are exhausted.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %v", err)
		}
		if tr, ok := rc.HTTPClient.Transport.(*http.Transport); ok {
			tr.Proxy = http.ProxyURL(proxyURL)
			tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
	}

	return &Client{rc: rc, policy: policy}, nil
}

// Policy returns the retry policy in use.
func (c *Client) Policy() Policy { return c.policy }

// Do sends req. GET, HEAD and OPTIONS go through the retrying client, any
// other method is sent exactly once.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if !isIdempotent(req.Method) {
		return c.rc.HTTPClient.Do(req)
	}
	rreq, err := retryablehttp.FromRequest(req)
	if err != nil {
		return nil, err
	}
	return c.rc.Do(rreq)
}

func isIdempotent(method string) bool {
	switch method {
	case "", http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// SendHTTPRequest sends wReq and reads the whole body.
func (c *Client) SendHTTPRequest(ctx context.Context, wReq *WHTTPReq) (*WHTTPRes, error) {
	if wReq.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wReq.Timeout)
		defer cancel()
	}

	method := wReq.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, wReq.URL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", USER_AGENT)
	for _, h := range wReq.Headers {
		req.Header.Set(h.Name, h.Value)
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &WHTTPRes{StatusCode: resp.StatusCode, BodyString: string(bodyBytes)}, nil
}

// leveledLogger routes retryablehttp's logging through a utils.Logger.
type leveledLogger struct {
	log utils.Logger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.log.Errorf("%s%s", msg, formatKV(kv)) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.log.Warnf("%s%s", msg, formatKV(kv)) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.log.Debugf("%s%s", msg, formatKV(kv)) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.log.Debugf("%s%s", msg, formatKV(kv)) }

func formatKV(kv []interface{}) string {
	var out string
	for i := 0; i+1 < len(kv); i += 2 {
		out += fmt.Sprintf(" %v=%v", kv[i], kv[i+1])
	}
	return out
}
