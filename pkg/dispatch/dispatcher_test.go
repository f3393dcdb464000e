package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lunahq/orbiter/internal/observability"
	"github.com/lunahq/orbiter/pkg/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingInvoker captures invocation order and can block on demand.
type recordingInvoker struct {
	mu       sync.Mutex
	messages []string
	release  chan struct{}
	fail     map[string]error
}

func newRecordingInvoker() *recordingInvoker {
	return &recordingInvoker{fail: make(map[string]error)}
}

func (r *recordingInvoker) Invoke(ctx context.Context, sessionKey, message string, opts InvokeOptions) (string, error) {
	r.mu.Lock()
	r.messages = append(r.messages, message)
	release := r.release
	err := r.fail[message]
	r.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return "echo:" + message, nil
}

func (r *recordingInvoker) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.messages))
	copy(out, r.messages)
	return out
}

func TestDispatcherSerializesPerSession(t *testing.T) {
	invoker := newRecordingInvoker()
	release := make(chan struct{})
	invoker.release = release

	d := New(invoker, observability.GetAuditLogger())
	defer d.Close()

	const session = "group:support:chat:dm:alice"
	results := make(chan string, 3)
	errs := make(chan error, 3)

	submit := func(msg string) {
		go func() {
			text, err := d.Handle(context.Background(), session, msg, HandleOptions{})
			results <- text
			errs <- err
		}()
	}

	// Submission order is controlled by waiting for the dispatcher to
	// register each task before sending the next.
	submit("m1")
	require.Eventually(t, func() bool { return d.Busy(session) }, time.Second, 5*time.Millisecond)
	submit("m2")
	require.Eventually(t, func() bool { return d.QueueSize(session) == 1 }, time.Second, 5*time.Millisecond)
	submit("m3")
	require.Eventually(t, func() bool { return d.QueueSize(session) == 2 }, time.Second, 5*time.Millisecond)

	close(release)

	for i := 0; i < 3; i++ {
		require.NoError(t, <-errs)
		assert.Contains(t, <-results, "echo:")
	}

	assert.Equal(t, []string{"m1", "m2", "m3"}, invoker.recorded())
	assert.False(t, d.Busy(session))
	assert.Zero(t, d.QueueSize(session))
}

func TestDispatcherIsolatesSessions(t *testing.T) {
	invoker := newRecordingInvoker()
	d := New(invoker, observability.GetAuditLogger())
	defer d.Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session := fmt.Sprintf("group:g%d:main", i)
			text, err := d.Handle(context.Background(), session, "ping", HandleOptions{})
			assert.NoError(t, err)
			assert.Equal(t, "echo:ping", text)
		}(i)
	}
	wg.Wait()
}

func TestDispatcherFailureDoesNotPoisonChain(t *testing.T) {
	invoker := newRecordingInvoker()
	invoker.fail["boom"] = fmt.Errorf("agent exploded")

	d := New(invoker, observability.GetAuditLogger())
	defer d.Close()

	const session = "group:support:main"

	_, err := d.Handle(context.Background(), session, "boom", HandleOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent exploded")

	text, err := d.Handle(context.Background(), session, "after", HandleOptions{})
	require.NoError(t, err)
	assert.Equal(t, "echo:after", text)
}

func TestDispatcherSteer(t *testing.T) {
	t.Run("busy session receives interrupt and caller gets ack", func(t *testing.T) {
		got := make(chan string, 1)
		invoker := InvokerFunc(func(ctx context.Context, sessionKey, message string, opts InvokeOptions) (string, error) {
			if message == "long-run" {
				select {
				case interrupt := <-opts.Interrupts:
					got <- interrupt
				case <-time.After(2 * time.Second):
					return "", fmt.Errorf("no interrupt arrived")
				}
			}
			return "echo:" + message, nil
		})

		d := New(invoker, observability.GetAuditLogger())
		defer d.Close()

		const session = "group:support:chat:dm:alice"
		done := make(chan error, 1)
		go func() {
			_, err := d.Handle(context.Background(), session, "long-run", HandleOptions{})
			done <- err
		}()
		require.Eventually(t, func() bool { return d.Busy(session) }, time.Second, 5*time.Millisecond)

		text, err := d.Handle(context.Background(), session, "change course", HandleOptions{
			BusyPolicy: routing.BusySteer,
		})
		require.NoError(t, err)
		assert.Equal(t, SteerAck, text)

		assert.Equal(t, "change course", <-got)
		require.NoError(t, <-done)
	})

	t.Run("idle session degrades to queue", func(t *testing.T) {
		invoker := newRecordingInvoker()
		d := New(invoker, observability.GetAuditLogger())
		defer d.Close()

		text, err := d.Handle(context.Background(), "group:idle:main", "hello", HandleOptions{
			BusyPolicy: routing.BusySteer,
		})
		require.NoError(t, err)
		assert.Equal(t, "echo:hello", text)
	})
}

func TestDispatcherActiveSessions(t *testing.T) {
	invoker := newRecordingInvoker()
	release := make(chan struct{})
	invoker.release = release

	d := New(invoker, observability.GetAuditLogger())
	defer d.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = d.Handle(context.Background(), "group:a:main", "x", HandleOptions{})
	}()
	require.Eventually(t, func() bool { return d.Busy("group:a:main") }, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"group:a:main"}, d.ActiveSessions())

	close(release)
	<-done
	assert.Empty(t, d.ActiveSessions())
}
