package wait

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatusRange(t *testing.T) {
	tests := []struct {
		in        string
		low, high int
		wantErr   bool
	}{
		{in: "", low: 200, high: 399},
		{in: "200..399", low: 200, high: 399},
		{in: "200 ... 204", low: 200, high: 204},
		{in: "204", low: 204, high: 204},
		{in: "300..200", wantErr: true},
		{in: "ok", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			low, high, err := ParseStatusRange(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.low, low)
			assert.Equal(t, tt.high, high)
		})
	}
}

func TestHTTPChecker_StatusInRange(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusServiceUnavailable)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	c, err := NewHTTPChecker(srv.URL, "", "", false)
	require.NoError(t, err)
	defer c.Cleanup()

	ok, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	status.Store(http.StatusNoContent)
	ok, err = c.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "on url "+srv.URL, c.Label())
}

func TestHTTPChecker_DoesNotFollowRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	c, err := NewHTTPChecker(srv.URL, "GET", "302", false)
	require.NoError(t, err)
	defer c.Cleanup()

	ok, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHTTPChecker_NotImplementedIsConfigError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotImplemented)
	}))
	defer srv.Close()

	c, err := NewHTTPChecker(srv.URL, "options", "", false)
	require.NoError(t, err)
	defer c.Cleanup()

	_, err = c.Check(context.Background())
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Error(), "OPTIONS")
}

func TestHTTPChecker_UnreachableIsNotAnError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	c, err := NewHTTPChecker("http://"+addr, "", "", false)
	require.NoError(t, err)
	defer c.Cleanup()

	ok, err := c.Check(context.Background())
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestHTTPChecker_AllowAllHostsAcceptsSelfSigned(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	strict, err := NewHTTPChecker(srv.URL, "", "", false)
	require.NoError(t, err)
	defer strict.Cleanup()
	ok, err := strict.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	lax, err := NewHTTPChecker(srv.URL, "", "", true)
	require.NoError(t, err)
	defer lax.Cleanup()
	ok, err = lax.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTCPChecker_RemovesReachedAddresses(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closedAddr := closed.Addr().String()
	closed.Close()

	c := NewTCPChecker([]string{ln.Addr().String(), closedAddr})

	ok, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{closedAddr}, c.Pending())

	// Once the second port comes up the checker completes.
	again, err := net.Listen("tcp", closedAddr)
	if err != nil {
		t.Skipf("port %s was reused: %v", closedAddr, err)
	}
	defer again.Close()
	go func() {
		conn, err := again.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	ok, err = c.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, c.Label(), ln.Addr().String())

	c.Cleanup()
	assert.Empty(t, c.Pending())
}

func TestLogChecker_LineMatch(t *testing.T) {
	pr, pw := io.Pipe()
	c, err := NewLogChecker(`ready to accept connections`, func(ctx context.Context) (io.ReadCloser, error) {
		return pr, nil
	})
	require.NoError(t, err)

	ok, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	go func() {
		io.WriteString(pw, "starting\n")
		io.WriteString(pw, "database system is ready to accept connections\n")
	}()

	assert.Eventually(t, func() bool {
		ok, _ := c.Check(context.Background())
		return ok
	}, time.Second, 10*time.Millisecond)

	c.Cleanup()
	assert.Equal(t, "on log out 'ready to accept connections'", c.Label())
}

func TestLogChecker_MultilinePattern(t *testing.T) {
	logs := "booting\nphase one done\nmore output\nphase two done\n"
	c, err := NewLogChecker(`(?s)phase one done.*phase two done`, func(ctx context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(logs)), nil
	})
	require.NoError(t, err)
	defer c.Cleanup()

	_, err = c.Check(context.Background())
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		ok, _ := c.Check(context.Background())
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestLogChecker_MultilineWindowDropsOldOutput(t *testing.T) {
	open := func(logs string) LogOpener {
		return func(ctx context.Context) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(logs)), nil
		}
	}
	filler := strings.Repeat("noise noise noise\n", 8)

	far, err := NewLogChecker(`(?s)phase one done.*phase two done`, open("phase one done\n"+filler+"phase two done\n"))
	require.NoError(t, err)
	far.window = 64
	_, err = far.Check(context.Background())
	require.NoError(t, err)
	<-far.done
	ok, _ := far.Check(context.Background())
	assert.False(t, ok, "output older than the window is forgotten")
	far.Cleanup()

	near, err := NewLogChecker(`(?s)phase one done.*phase two done`, open(filler+"phase one done\nx\nphase two done\n"))
	require.NoError(t, err)
	near.window = 64
	_, err = near.Check(context.Background())
	require.NoError(t, err)
	<-near.done
	ok, _ = near.Check(context.Background())
	assert.True(t, ok)
	near.Cleanup()
}

func TestLogChecker_CleanupStopsFollowing(t *testing.T) {
	pr, _ := io.Pipe()
	c, err := NewLogChecker(`never`, func(ctx context.Context) (io.ReadCloser, error) {
		return pr, nil
	})
	require.NoError(t, err)

	_, err = c.Check(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		c.Cleanup()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Cleanup did not stop the log reader")
	}
}

func TestLogChecker_InvalidPattern(t *testing.T) {
	_, err := NewLogChecker(`(`, nil)
	assert.Error(t, err)
}

func TestHealthChecker(t *testing.T) {
	st := State{Running: true, HasHealthCheck: true, Health: "starting"}
	c := NewHealthChecker("curl -f localhost", func(ctx context.Context) (State, error) {
		return st, nil
	})

	ok, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	st.Health = HealthHealthy
	ok, err = c.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "on healthcheck 'curl -f localhost'", c.Label())
}

func TestHealthChecker_NoHealthCheckConfigured(t *testing.T) {
	c := NewHealthChecker("", func(ctx context.Context) (State, error) {
		return State{Running: true}, nil
	})

	_, err := c.Check(context.Background())
	var cerr *ConfigError
	assert.ErrorAs(t, err, &cerr)
}

func TestExitCodeChecker(t *testing.T) {
	zero, one := 0, 1
	st := State{Running: true}
	c := NewExitCodeChecker(0, func(ctx context.Context) (State, error) {
		return st, nil
	})

	ok, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	st = State{Running: false, ExitCode: &one}
	ok, _ = c.Check(context.Background())
	assert.False(t, ok)

	st = State{Running: false, ExitCode: &zero}
	ok, _ = c.Check(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "on exit code 0", c.Label())
}
