package operator

import (
	"context"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	dockerFilters "github.com/docker/docker/api/types/filters"
	"go.uber.org/zap"

	"github.com/lapiml/stackctl/pkg/parser"
)

type restartTrack struct {
	backoff   time.Duration
	lastStart time.Time
}

// Supervise watches engine events and recreates restart:always services
// that exit unexpectedly. Restarts back off exponentially up to the
// configured cap; the backoff resets once a container has stayed up long
// enough. Returns when ctx is cancelled.
func (o *Operator) Supervise(ctx context.Context) error {
	log := o.log.Named("supervise")

	filters := dockerFilters.NewArgs()
	filters.Add("type", "container")
	filters.Add("event", "die")
	filters.Add("label", StackLabel+"="+o.stack)

	eventsChan, errorsChan := o.client.Events(ctx, types.EventsOptions{Filters: filters})
	tracks := map[string]*restartTrack{}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errorsChan:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		case event := <-eventsChan:
			if event.Action != events.ActionDie {
				continue
			}
			service := event.Actor.Attributes[ServiceLabel]
			if service == "" || o.stopping.Load() {
				continue
			}
			svc, ok := o.config.Services[service]
			if !ok || svc.Restart != "always" {
				o.registry.Set(service, StateStopped, "container exited")
				continue
			}

			track := tracks[service]
			if track == nil {
				track = &restartTrack{}
				tracks[service] = track
			}
			if !track.lastStart.IsZero() && time.Since(track.lastStart) > o.opts.ResetAfter {
				track.backoff = 0
			}
			track.backoff = nextBackoff(track.backoff, o.opts.BackoffBase, o.opts.BackoffCap)

			o.registry.Set(service, StateRestarting, "unexpected exit")
			log.Warn("service exited, restarting",
				zap.String("service", service),
				zap.Duration("backoff", track.backoff))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(track.backoff):
			}
			if o.stopping.Load() {
				continue
			}

			track.lastStart = time.Now()
			if err := o.recreateService(ctx, service, svc); err != nil {
				log.Error("restart failed", zap.String("service", service), zap.Error(err))
			}
		}
	}
}

// recreateService replaces one service's container, re-entering Creating as
// the state machine requires for the always-restart loop.
func (o *Operator) recreateService(ctx context.Context, name string, svc parser.Service) error {
	o.mu.Lock()
	old, ok := o.containers[name]
	o.mu.Unlock()
	if ok {
		_ = o.client.ContainerRemove(ctx, old, container.RemoveOptions{Force: true})
	}

	networks, err := o.ensureNetworks(ctx)
	if err != nil {
		return err
	}
	return o.startService(ctx, name, svc, networks)
}
