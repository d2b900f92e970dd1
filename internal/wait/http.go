package wait

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultHTTPMethod is used when no method is configured.
	DefaultHTTPMethod = "HEAD"
	// DefaultStatusRange accepts success and redirect codes.
	DefaultStatusRange = "200..399"

	httpPingTimeout = 500 * time.Millisecond
)

var statusRangeRe = regexp.MustCompile(`^\s*(\d+)\s*\.\.+\s*(\d+)\s*$`)

// ParseStatusRange parses "200..399" or a single code such as "204".
func ParseStatusRange(s string) (low, high int, err error) {
	if strings.TrimSpace(s) == "" {
		s = DefaultStatusRange
	}
	if m := statusRangeRe.FindStringSubmatch(s); m != nil {
		low, _ = strconv.Atoi(m[1])
		high, _ = strconv.Atoi(m[2])
		if low > high {
			return 0, 0, fmt.Errorf("invalid status range %q: lower bound exceeds upper bound", s)
		}
		return low, high, nil
	}
	code, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid status range %q", s)
	}
	return code, code, nil
}

// HTTPChecker issues one request per poll and is satisfied when the
// response code falls inside an inclusive range.
type HTTPChecker struct {
	url    string
	method string
	low    int
	high   int
	client *http.Client
}

// NewHTTPChecker builds an HTTP probe. Empty method and status select the
// defaults. allowAllHosts disables TLS certificate verification.
func NewHTTPChecker(url, method, status string, allowAllHosts bool) (*HTTPChecker, error) {
	low, high, err := ParseStatusRange(status)
	if err != nil {
		return nil, err
	}
	if method == "" {
		method = DefaultHTTPMethod
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if allowAllHosts {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &HTTPChecker{
		url:    url,
		method: strings.ToUpper(method),
		low:    low,
		high:   high,
		client: &http.Client{
			Timeout:   httpPingTimeout,
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// Check implements Checker. Connection failures are not errors; a 501
// means the method is unsupported and is reported as a ConfigError.
func (c *HTTPChecker) Check(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, c.method, c.url, nil)
	if err != nil {
		return false, &ConfigError{Message: fmt.Sprintf("invalid url %s: %v", c.url, err)}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, nil
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusNotImplemented {
		return false, &ConfigError{
			Message: fmt.Sprintf("invalid or unsupported HTTP method '%s' for checking %s", c.method, c.url),
		}
	}
	return resp.StatusCode >= c.low && resp.StatusCode <= c.high, nil
}

// Cleanup implements Checker.
func (c *HTTPChecker) Cleanup() {
	c.client.CloseIdleConnections()
}

// Label implements Checker.
func (c *HTTPChecker) Label() string {
	return "on url " + c.url
}
