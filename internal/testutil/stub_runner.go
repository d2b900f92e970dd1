// Package testutil holds test doubles shared across packages.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/RevCBH/berth/internal/container"
)

// StubRunner is a container.Runner that answers runtime invocations from
// canned responses keyed by the space-joined arguments.
type StubRunner struct {
	mu       sync.Mutex
	stubs    map[string][]stubResponse
	defaults map[string]stubResponse
	calls    []string
}

type stubResponse struct {
	out string
	err error
}

var _ container.Runner = (*StubRunner)(nil)

func NewStubRunner() *StubRunner {
	return &StubRunner{
		stubs:    make(map[string][]stubResponse),
		defaults: make(map[string]stubResponse),
	}
}

// Stub queues one response for args. Queued responses are consumed in
// order before any default applies.
func (s *StubRunner) Stub(args string, out string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stubs[args] = append(s.stubs[args], stubResponse{out: out, err: err})
}

// StubDefault answers args whenever no queued response is left.
func (s *StubRunner) StubDefault(args string, out string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults[args] = stubResponse{out: out, err: err}
}

// StubFailure queues a non-zero exit printing stderr.
func (s *StubRunner) StubFailure(args string, stderr string) {
	s.Stub(args, "", &container.CommandError{
		Args:   strings.Fields(args),
		Stderr: stderr,
		Err:    errors.New("exit status 1"),
	})
}

func (s *StubRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	key := strings.Join(args, " ")
	s.mu.Lock()
	s.calls = append(s.calls, key)
	queue := s.stubs[key]
	if len(queue) == 0 {
		if resp, ok := s.defaults[key]; ok {
			s.mu.Unlock()
			return []byte(resp.out), resp.err
		}
		s.mu.Unlock()
		return nil, fmt.Errorf("unexpected %s call: %s", name, key)
	}
	resp := queue[0]
	s.stubs[key] = queue[1:]
	s.mu.Unlock()
	return []byte(resp.out), resp.err
}

// CallsFor counts invocations with exactly args.
func (s *StubRunner) CallsFor(args ...string) int {
	key := strings.Join(args, " ")
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, call := range s.calls {
		if call == key {
			count++
		}
	}
	return count
}

// Calls returns every invocation in order.
func (s *StubRunner) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}
