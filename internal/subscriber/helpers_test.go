package subscriber

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/statuslogger/internal/infrastructure/logging"
	"github.com/nerrad567/statuslogger/internal/infrastructure/mqtt"
	"github.com/nerrad567/statuslogger/internal/sink"
)

// syncBuffer is a bytes.Buffer that can be read while the run loop writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) lines() []string {
	s := strings.TrimSuffix(b.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// outputs captures everything the handler writes.
type outputs struct {
	messages syncBuffer
	errors   syncBuffer
	console  syncBuffer
}

type connectResult struct {
	code byte
	err  error
}

// fakeBroker is an in-memory Broker. Connect returns results in order and
// repeats the last one once the list is used up.
type fakeBroker struct {
	mu         sync.Mutex
	results    []connectResult
	connects   int
	subErr     error
	subscribed []string
	closed     bool

	events chan mqtt.Event
}

func newFakeBroker(results ...connectResult) *fakeBroker {
	if len(results) == 0 {
		results = []connectResult{{code: mqtt.CodeSuccess}}
	}
	return &fakeBroker{
		results: results,
		events:  make(chan mqtt.Event, 16),
	}
}

func (f *fakeBroker) Connect(ctx context.Context) (byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connects++
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r.code, r.err
}

func (f *fakeBroker) Subscribe(topic string, _ byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.subErr != nil {
		return f.subErr
	}
	f.subscribed = append(f.subscribed, topic)
	return nil
}

func (f *fakeBroker) Events() <-chan mqtt.Event {
	return f.events
}

func (f *fakeBroker) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeBroker) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeBroker) subscriptions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscribed...)
}

func (f *fakeBroker) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func testLogger() *logging.Logger {
	return logging.Discard()
}

// newTestService builds a Service over b with in-memory sinks.
func newTestService(t *testing.T, b *fakeBroker, policy ReconnectPolicy) (*Service, *outputs) {
	t.Helper()

	out := &outputs{}
	svc, err := New(Deps{
		Broker:     b,
		Messages:   sink.New(&out.messages, sink.Messages()...),
		Errors:     sink.New(&out.errors, sink.Errors()...),
		Console:    &out.console,
		Logger:     testLogger(),
		Policy:     policy,
		BrokerAddr: "localhost:1883",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return svc, out
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// runService starts svc.Run in the background. The returned function cancels
// the run and returns its result.
func runService(t *testing.T, svc *Service) (stop func() error, done <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run(ctx) }()

	t.Cleanup(cancel)
	return func() error {
		cancel()
		select {
		case err := <-errCh:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("Run() did not return after cancel")
			return nil
		}
	}, errCh
}
