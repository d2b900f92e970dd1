package wait

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
)

// maxLogWindow bounds the output kept for (?s) patterns, matching the
// longest line the scanner accepts.
const maxLogWindow = 1024 * 1024

// LogOpener opens a following stream of container output.
type LogOpener func(ctx context.Context) (io.ReadCloser, error)

// LogChecker watches container output for a regular expression. Patterns
// starting with (?s) are matched against all output seen so far, so they
// may span lines, within the last maxLogWindow bytes; other patterns are
// matched line by line.
type LogChecker struct {
	pattern   string
	re        *regexp.Regexp
	multiline bool
	window    int
	open      LogOpener

	startOnce sync.Once
	startErr  error
	matched   atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewLogChecker compiles pattern and prepares a checker reading from open.
func NewLogChecker(pattern string, open LogOpener) (*LogChecker, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid log pattern %q: %w", pattern, err)
	}
	return &LogChecker{
		pattern:   pattern,
		re:        re,
		multiline: strings.HasPrefix(pattern, "(?s)"),
		window:    maxLogWindow,
		open:      open,
	}, nil
}

// Check implements Checker. The first call starts following the logs.
func (c *LogChecker) Check(ctx context.Context) (bool, error) {
	c.startOnce.Do(func() { c.startErr = c.start(ctx) })
	if c.startErr != nil {
		return false, c.startErr
	}
	return c.matched.Load(), nil
}

func (c *LogChecker) start(ctx context.Context) error {
	sctx, cancel := context.WithCancel(ctx)
	rc, err := c.open(sctx)
	if err != nil {
		cancel()
		return fmt.Errorf("follow logs: %w", err)
	}
	c.cancel = cancel
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		defer rc.Close()
		c.scan(rc)
	}()
	// Closing the stream unblocks the scanner when the wait ends.
	go func() {
		<-sctx.Done()
		rc.Close()
	}()
	return nil
}

func (c *LogChecker) scan(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLogWindow)

	var buf []byte
	for scanner.Scan() {
		line := scanner.Bytes()
		if c.multiline {
			buf = append(buf, line...)
			buf = append(buf, '\n')
			if over := len(buf) - c.window; over > 0 {
				buf = buf[:copy(buf, buf[over:])]
			}
			if c.re.Match(buf) {
				c.matched.Store(true)
				return
			}
			continue
		}
		if c.re.Match(line) {
			c.matched.Store(true)
			return
		}
	}
}

// Cleanup implements Checker. It stops following and waits for the reader.
func (c *LogChecker) Cleanup() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

// Label implements Checker.
func (c *LogChecker) Label() string {
	return "on log out '" + c.pattern + "'"
}
