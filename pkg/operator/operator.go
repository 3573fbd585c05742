package operator

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	dockerFilters "github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	dockerClient "github.com/docker/docker/client"
	"go.uber.org/zap"

	"github.com/lapiml/stackctl/pkg/errdefs"
	"github.com/lapiml/stackctl/pkg/graph"
	"github.com/lapiml/stackctl/pkg/parser"
)

// Operator drives one stack against the local engine. All mutable run state
// lives on the instance, so independent stacks can run side by side.
type Operator struct {
	client   engineAPI
	log      *zap.Logger
	registry *Registry
	opts     Options

	stack   string
	config  *parser.Config
	baseDir string

	// container IDs by service, for log streaming and supervision
	mu         sync.Mutex
	containers map[string]string

	stopping atomic.Bool
}

func NewOperator(log *zap.Logger, stack string, cfg *parser.Config, baseDir string, opts Options) (*Operator, error) {
	cli, err := dockerClient.NewClientWithOpts(dockerClient.FromEnv, dockerClient.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	return &Operator{
		client:     cli,
		log:        log.Named("operator"),
		registry:   NewRegistry(log, stack, opts.Journal),
		opts:       opts,
		stack:      stack,
		config:     cfg,
		baseDir:    baseDir,
		containers: map[string]string{},
	}, nil
}

// Registry exposes the per-stack state registry.
func (o *Operator) Registry() *Registry { return o.registry }

// Up brings the whole stack to its running state: validate, sequence,
// create the fabric, then start services as their dependencies come ready.
// Parser and sequencing failures happen before any engine call.
func (o *Operator) Up(ctx context.Context) error {
	if err := ValidatePorts(o.config.Services); err != nil {
		return err
	}

	deps := graph.Deps{}
	for name, svc := range o.config.Services {
		deps[name] = svc.DependsOn
	}
	order, err := graph.Order(deps)
	if err != nil {
		return err
	}

	for name := range o.config.Services {
		o.registry.Set(name, StateDefined, "descriptor loaded")
	}

	networks, err := o.ensureNetworks(ctx)
	if err != nil {
		return err
	}
	for name, vol := range o.config.Volumes {
		if err := o.ensureVolume(ctx, name, vol); err != nil {
			return err
		}
	}

	// every up cycle starts from fresh containers
	if err := o.removeStackContainers(ctx); err != nil {
		return err
	}

	gates := map[string]*startGate{}
	for name := range o.config.Services {
		gates[name] = newStartGate()
	}

	var wg sync.WaitGroup
	failures := map[string]error{}
	var failMu sync.Mutex

	for name, svc := range o.config.Services {
		wg.Add(1)
		go func(name string, svc parser.Service) {
			defer wg.Done()
			gate := gates[name]

			for _, dep := range svc.DependsOn {
				if err := gates[dep].wait(ctx); err != nil {
					err = errdefs.Newf(errdefs.KindServiceUnhealthy,
						"service %q: dependency %q did not become ready: %w", name, dep, err)
					o.registry.Set(name, StateStopped, err.Error())
					failMu.Lock()
					failures[name] = err
					failMu.Unlock()
					gate.fail(err)
					return
				}
			}

			if err := o.startService(ctx, name, svc, networks); err != nil {
				failMu.Lock()
				failures[name] = err
				failMu.Unlock()
				gate.fail(err)
				return
			}
			gate.open()
		}(name, svc)
	}
	wg.Wait()

	if len(failures) > 0 {
		for name, ferr := range failures {
			o.log.Error("service failed",
				zap.String("service", name),
				zap.String("kind", string(errdefs.KindOf(ferr))),
				zap.Error(ferr))
		}
		// report the first failure in startup order; the rest were logged
		for _, name := range order {
			if ferr, ok := failures[name]; ok {
				return ferr
			}
		}
	}

	o.log.Info("stack up", zap.String("stack", o.stack), zap.Int("services", len(order)))
	return nil
}

// startService walks one service through Creating and, when a probe is
// declared, HealthPending, ending in Running.
func (o *Operator) startService(ctx context.Context, name string, svc parser.Service, networks map[string]netRef) error {
	o.registry.Set(name, StateCreating, "starting")

	image, err := o.ensureImage(ctx, name, svc)
	if err != nil {
		return errdefs.Newf(errdefs.KindProcessStartFailure, "service %q: image: %w", name, err)
	}

	env, err := parser.MergedEnvironment(svc, o.baseDir)
	if err != nil {
		return errdefs.Newf(errdefs.KindProcessStartFailure, "service %q: %w", name, err)
	}
	binds, err := o.resolveBinds(svc)
	if err != nil {
		return errdefs.Newf(errdefs.KindProcessStartFailure, "service %q: volumes: %w", name, err)
	}

	attach := o.serviceNetworks(svc)
	primary, ok := networks[attach[0]]
	if !ok {
		return errdefs.Newf(errdefs.KindUnknownReference,
			"service %q joins unknown network %q", name, attach[0])
	}

	ccc, err := buildCreateConfig(o.stack, name, svc, image, env, binds, primary.id, primary.name, o.opts.EngineRestart)
	if err != nil {
		return err
	}

	containerName := svc.ContainerName
	if containerName == "" {
		containerName = o.stack + "_" + name
	}

	created, err := o.client.ContainerCreate(ctx, ccc.Cfg, ccc.HostCfg, ccc.NetworkCfg, nil, containerName)
	if err != nil {
		return errdefs.Newf(errdefs.KindProcessStartFailure, "service %q: create: %w", name, err)
	}

	// further declared networks are joined before the process starts
	for _, logical := range attach[1:] {
		ref, ok := networks[logical]
		if !ok {
			return errdefs.Newf(errdefs.KindUnknownReference,
				"service %q joins unknown network %q", name, logical)
		}
		err := o.client.NetworkConnect(ctx, ref.id, created.ID, &network.EndpointSettings{Aliases: []string{name}})
		if err != nil {
			return errdefs.Newf(errdefs.KindProcessStartFailure, "service %q: network %q: %w", name, logical, err)
		}
	}

	if err := o.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return errdefs.Newf(errdefs.KindProcessStartFailure, "service %q: start: %w", name, err)
	}

	o.mu.Lock()
	o.containers[name] = created.ID
	o.mu.Unlock()

	if svc.HealthCheck != nil {
		o.registry.Set(name, StateHealthPending, "probing")
		if err := o.waitHealthy(ctx, name, created.ID, *svc.HealthCheck); err != nil {
			o.registry.Set(name, StateUnhealthy, err.Error())
			return err
		}
		o.registry.Set(name, StateHealthy, "probe succeeded")
	}

	o.registry.Set(name, StateRunning, "started")
	return nil
}

// netRef is an ensured network: its engine ID and actual (stack-scoped) name.
type netRef struct {
	id   string
	name string
}

// ensureNetworks creates every declared network (or the implicit default)
// and returns them keyed by logical descriptor name.
func (o *Operator) ensureNetworks(ctx context.Context) (map[string]netRef, error) {
	logical := []string{"default"}
	if len(o.config.Networks) > 0 {
		logical = logical[:0]
		for n := range o.config.Networks {
			logical = append(logical, n)
		}
		sort.Strings(logical)
	}

	networks := make(map[string]netRef, len(logical))
	for _, n := range logical {
		id, err := o.ensureNetwork(ctx, n, o.config.Networks[n].Driver)
		if err != nil {
			return nil, err
		}
		networks[n] = netRef{id: id, name: o.stack + "_" + n}
	}
	return networks, nil
}

// serviceNetworks resolves which logical networks a service joins: its own
// list, or the stack's default fabric (the alphabetically-first declared
// network, "default" when none is declared).
func (o *Operator) serviceNetworks(svc parser.Service) []string {
	if len(svc.Networks) > 0 {
		return svc.Networks
	}
	if len(o.config.Networks) == 0 {
		return []string{"default"}
	}
	names := make([]string, 0, len(o.config.Networks))
	for n := range o.config.Networks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names[:1]
}

// Down stops and removes the stack's containers and network. Volumes stay.
func (o *Operator) Down(ctx context.Context) error {
	o.stopping.Store(true)
	if err := o.stopStackContainers(ctx, true); err != nil {
		return err
	}
	return o.removeNetworks(ctx)
}

// Stop terminates containers with the grace period but keeps the fabric, so
// the next up reuses it.
func (o *Operator) Stop(ctx context.Context) error {
	o.stopping.Store(true)
	return o.stopStackContainers(ctx, false)
}

func (o *Operator) stopStackContainers(ctx context.Context, remove bool) error {
	containers, err := o.listStackContainers(ctx)
	if err != nil {
		return err
	}
	grace := int(o.opts.GracePeriod.Seconds())
	for _, c := range containers {
		service := c.Labels[ServiceLabel]
		if err := o.client.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &grace}); err != nil {
			return err
		}
		if remove {
			if err := o.client.ContainerRemove(ctx, c.ID, container.RemoveOptions{}); err != nil {
				return err
			}
		}
		if service != "" {
			o.registry.Set(service, StateStopped, "stack stopped")
		}
	}
	return nil
}

func (o *Operator) removeStackContainers(ctx context.Context) error {
	containers, err := o.listStackContainers(ctx)
	if err != nil {
		return err
	}
	for _, c := range containers {
		err := o.client.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true})
		if err != nil {
			return err
		}
		o.log.Debug("removed stale container", zap.String("id", c.ID))
	}
	return nil
}

func (o *Operator) listStackContainers(ctx context.Context) ([]types.Container, error) {
	filters := dockerFilters.NewArgs()
	filters.Add("label", StackLabel+"="+o.stack)
	return o.client.ContainerList(ctx, container.ListOptions{All: true, Filters: filters})
}

// Ps reports the engine's view of the stack, one row per container.
func (o *Operator) Ps(ctx context.Context) ([]ContainerInfo, error) {
	containers, err := o.listStackContainers(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]ContainerInfo, 0, len(containers))
	for i := range containers {
		infos = append(infos, *NewContainerInfo(&containers[i]))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Service < infos[j].Service })
	return infos, nil
}

// startGate is closed (opened) once a service is ready for its dependents,
// or carries the error that prevented it.
type startGate struct {
	ch  chan struct{}
	err error
}

func newStartGate() *startGate {
	return &startGate{ch: make(chan struct{})}
}

func (g *startGate) open() { close(g.ch) }

func (g *startGate) fail(err error) {
	g.err = err
	close(g.ch)
}

func (g *startGate) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-g.ch:
		return g.err
	}
}
