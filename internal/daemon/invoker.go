package daemon

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/lunahq/orbiter/internal/config"
	"github.com/lunahq/orbiter/pkg/dispatch"
)

const defaultAgentTimeout = 300 * time.Second

// newExecInvoker adapts a configured command line into the agent capability.
// The message goes to the child's stdin as one line, steer interrupts follow
// as further lines, and the child's stdout is the response. The child is
// expected to exit after responding; the run context enforces the timeout.
func newExecInvoker(cfg config.AgentConfig) dispatch.Invoker {
	return dispatch.InvokerFunc(func(ctx context.Context, sessionKey, message string, opts dispatch.InvokeOptions) (string, error) {
		if len(cfg.Command) == 0 {
			return "", fmt.Errorf("agent command is not configured")
		}

		timeout := defaultAgentTimeout
		if cfg.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		}
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(runCtx, cfg.Command[0], cfg.Command[1:]...)
		cmd.Env = append(os.Environ(),
			"ORBITER_SESSION_KEY="+sessionKey,
			"ORBITER_CORRELATION_ID="+opts.CorrelationID,
		)

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return "", fmt.Errorf("failed to open agent stdin: %w", err)
		}

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Start(); err != nil {
			return "", fmt.Errorf("failed to start agent command: %w", err)
		}

		if _, err := fmt.Fprintln(stdin, message); err != nil {
			_ = cmd.Wait()
			return "", fmt.Errorf("failed to write agent prompt: %w", err)
		}

		// Forward steer messages as additional stdin lines until the child
		// exits. The child may consume or ignore them.
		done := make(chan struct{})
		go func() {
			defer stdin.Close()
			for {
				select {
				case <-done:
					return
				case <-runCtx.Done():
					return
				case interrupt, ok := <-opts.Interrupts:
					if !ok {
						return
					}
					if _, err := fmt.Fprintln(stdin, interrupt); err != nil {
						return
					}
				}
			}
		}()

		waitErr := cmd.Wait()
		close(done)

		if runCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("agent invocation timed out after %s", timeout)
		}
		if waitErr != nil {
			detail := strings.TrimSpace(stderr.String())
			if detail != "" {
				return "", fmt.Errorf("agent command failed: %w: %s", waitErr, detail)
			}
			return "", fmt.Errorf("agent command failed: %w", waitErr)
		}

		return strings.TrimSpace(stdout.String()), nil
	})
}
