package operator

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"
)

const defaultLogRescan = time.Second

// StreamLogs follows every container of the stack and copies its output to
// w, each line prefixed with the service name. The container map is
// re-scanned periodically so a restarted service's replacement container is
// picked up too. Blocks until ctx is cancelled.
func (o *Operator) StreamLogs(ctx context.Context, w io.Writer) error {
	return o.streamLogs(ctx, w, defaultLogRescan)
}

func (o *Operator) streamLogs(ctx context.Context, w io.Writer, rescan time.Duration) error {
	var out lockedWriter
	out.w = w

	var wg sync.WaitGroup
	seen := map[string]bool{}

	follow := func(service, id string) {
		defer wg.Done()
		reader, err := o.client.ContainerLogs(ctx, id, container.LogsOptions{
			ShowStdout: true,
			ShowStderr: true,
			Follow:     true,
		})
		if err != nil {
			o.log.Warn("log stream failed", zap.String("service", service), zap.Error(err))
			return
		}
		defer reader.Close()
		prefixed := &prefixWriter{out: &out, prefix: []byte(service + " | ")}
		_, _ = stdcopy.StdCopy(prefixed, prefixed, reader)
	}

	ticker := time.NewTicker(rescan)
	defer ticker.Stop()
	for {
		o.mu.Lock()
		for service, id := range o.containers {
			if seen[id] {
				continue
			}
			seen[id] = true
			wg.Add(1)
			go follow(service, id)
		}
		o.mu.Unlock()

		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// prefixWriter prepends its prefix to every line it forwards.
type prefixWriter struct {
	out    io.Writer
	prefix []byte
	rest   []byte
}

func (p *prefixWriter) Write(data []byte) (int, error) {
	p.rest = append(p.rest, data...)
	for {
		idx := bytes.IndexByte(p.rest, '\n')
		if idx < 0 {
			break
		}
		line := p.rest[:idx+1]
		if _, err := p.out.Write(append(append([]byte{}, p.prefix...), line...)); err != nil {
			return len(data), err
		}
		p.rest = p.rest[idx+1:]
	}
	return len(data), nil
}
