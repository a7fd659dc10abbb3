// Package testing provides shared test doubles and fixture builders.
package testing

import (
	"context"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/kubeboot/kubeboot/internal/executor"
	"github.com/kubeboot/kubeboot/internal/inventory"
)

// MockRemote is a testify mock of the executor.Remote interface.
type MockRemote struct {
	mock.Mock
}

// Execute returns the scripted result for a command on a node.
func (m *MockRemote) Execute(ctx context.Context, node inventory.Node, cmd executor.Command) (executor.Result, error) {
	args := m.Called(ctx, node, cmd)
	return args.Get(0).(executor.Result), args.Error(1)
}

type scriptKey struct {
	node     string
	contains string
}

type behavior struct {
	Result executor.Result
	Err    error
}

type call struct {
	Node string
	Argv []string
}

// FakeRemote is a programmable in-memory executor. Outcomes are scripted
// per node and command fragment; anything unscripted succeeds with exit
// code 0. Every call is recorded so tests can assert on scheduling
// decisions.
type FakeRemote struct {
	mu        sync.Mutex
	behaviors map[scriptKey][]behavior
	calls     []call
}

// NewFakeRemote creates a fake executor where every command succeeds.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{behaviors: make(map[scriptKey][]behavior)}
}

// Script queues an outcome for commands on addr whose rendered argv
// contains the given fragment (empty fragment matches any command).
// Queued outcomes are consumed in order; once the queue is empty the last
// outcome repeats.
func (f *FakeRemote) Script(addr, contains string, res executor.Result, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := scriptKey{node: addr, contains: contains}
	f.behaviors[k] = append(f.behaviors[k], behavior{Result: res, Err: err})
}

// Execute implements executor.Remote.
func (f *FakeRemote) Execute(_ context.Context, node inventory.Node, cmd executor.Command) (executor.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, call{Node: node.Address, Argv: cmd.Argv})

	rendered := strings.Join(cmd.Argv, " ")
	for k, bs := range f.behaviors {
		if k.node != node.Address || len(bs) == 0 {
			continue
		}
		if k.contains != "" && !strings.Contains(rendered, k.contains) {
			continue
		}
		b := bs[0]
		if len(bs) > 1 {
			f.behaviors[k] = bs[1:]
		}
		return b.Result, b.Err
	}

	return executor.Result{}, nil
}

// Calls returns how many commands ran in total.
func (f *FakeRemote) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// CallsFor returns how many commands ran on the given node.
func (f *FakeRemote) CallsFor(addr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Node == addr {
			n++
		}
	}
	return n
}

// Rendered returns every executed command in order, rendered as
// "<node> <argv...>".
func (f *FakeRemote) Rendered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Node + " " + strings.Join(c.Argv, " ")
	}
	return out
}

// CallsMatching returns how many commands across all nodes contained the
// given fragment in their argv.
func (f *FakeRemote) CallsMatching(contains string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.Contains(strings.Join(c.Argv, " "), contains) {
			n++
		}
	}
	return n
}
