package operator

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/docker/docker/api/types"

	"github.com/lapiml/stackctl/pkg/errdefs"
	"github.com/lapiml/stackctl/pkg/parser"
)

type probeFunc func(ctx context.Context) error

// waitHealthy blocks until one probe succeeds or retries consecutive
// failures exhaust the budget. Only the callers gating on this service are
// held up; the rest of the stack keeps going.
func (o *Operator) waitHealthy(ctx context.Context, service, containerID string, hc parser.HealthCheck) error {
	hc.Normalize()

	var probe probeFunc
	if hc.HTTP != "" {
		probe = httpProbe(hc.HTTP)
	} else {
		probe = o.execProbe(containerID, hc.Test)
	}

	err := pollProbe(ctx, probe, hc.Interval.Std(), hc.Timeout.Std(), hc.Retries)
	if err != nil {
		return errdefs.Newf(errdefs.KindServiceUnhealthy, "service %q: %w", service, err)
	}
	return nil
}

// pollProbe runs probe every interval with a per-attempt timeout. The first
// success wins; retries consecutive failures mean unhealthy.
func pollProbe(ctx context.Context, probe probeFunc, interval, timeout time.Duration, retries int) error {
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		err := probe(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("probe failed %d times: %w", retries, lastErr)
}

// httpProbe treats any 2xx response as ready.
func httpProbe(url string) probeFunc {
	client := &http.Client{}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("liveness endpoint returned %s", resp.Status)
		}
		return nil
	}
}

// execProbe runs the compose-style test command inside the container and
// succeeds on exit code zero.
func (o *Operator) execProbe(containerID string, test []string) probeFunc {
	cmd := probeCommand(test)
	return func(ctx context.Context) error {
		exec, err := o.client.ContainerExecCreate(ctx, containerID, types.ExecConfig{Cmd: cmd})
		if err != nil {
			return err
		}
		if err := o.client.ContainerExecStart(ctx, exec.ID, types.ExecStartCheck{}); err != nil {
			return err
		}
		for {
			inspect, err := o.client.ContainerExecInspect(ctx, exec.ID)
			if err != nil {
				return err
			}
			if !inspect.Running {
				if inspect.ExitCode != 0 {
					return fmt.Errorf("probe exited with code %d", inspect.ExitCode)
				}
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
		}
	}
}

func probeCommand(test []string) []string {
	if len(test) == 0 {
		return nil
	}
	switch test[0] {
	case "CMD":
		return test[1:]
	case "CMD-SHELL":
		return []string{"/bin/sh", "-c", strings.Join(test[1:], " ")}
	default:
		return test
	}
}
