package operator

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"

	"github.com/lapiml/stackctl/pkg/errdefs"
	"github.com/lapiml/stackctl/pkg/parser"
)

// fakeEngine satisfies engineAPI in memory so startup sequencing can be
// exercised without a daemon. Probe exit codes are settable per service;
// everything else succeeds.
type fakeEngine struct {
	mu        sync.Mutex
	services  map[string]string // container ID -> service label
	created   []string          // services in ContainerCreate order
	started   []string          // services in ContainerStart order
	networks  []string          // created network names
	volumes   []string          // created volume names
	connects  []string          // networkID for every NetworkConnect
	endpoints map[string][]string
	probeExit map[string]int    // service -> exec probe exit code
	logOutput map[string][]byte // container ID -> framed log stream
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		services:  map[string]string{},
		endpoints: map[string][]string{},
		probeExit: map[string]int{},
		logOutput: map[string][]byte{},
	}
}

func (f *fakeEngine) NetworkList(ctx context.Context, options types.NetworkListOptions) ([]types.NetworkResource, error) {
	return nil, nil
}

func (f *fakeEngine) NetworkCreate(ctx context.Context, name string, options types.NetworkCreate) (types.NetworkCreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.networks = append(f.networks, name)
	return types.NetworkCreateResponse{ID: "netid-" + name}, nil
}

func (f *fakeEngine) NetworkConnect(ctx context.Context, networkID, containerID string, config *network.EndpointSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, networkID)
	return nil
}

func (f *fakeEngine) NetworkRemove(ctx context.Context, networkID string) error { return nil }

func (f *fakeEngine) VolumeList(ctx context.Context, options volume.ListOptions) (volume.ListResponse, error) {
	return volume.ListResponse{}, nil
}

func (f *fakeEngine) VolumeCreate(ctx context.Context, options volume.CreateOptions) (volume.Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes = append(f.volumes, options.Name)
	return volume.Volume{Name: options.Name}, nil
}

func (f *fakeEngine) ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error) {
	return nil, nil
}

func (f *fakeEngine) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "ctr-" + containerName
	service := config.Labels[ServiceLabel]
	f.services[id] = service
	f.created = append(f.created, service)
	for name := range networkingConfig.EndpointsConfig {
		f.endpoints[service] = append(f.endpoints[service], name)
	}
	return container.CreateResponse{ID: id}, nil
}

func (f *fakeEngine) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, f.services[containerID])
	return nil
}

func (f *fakeEngine) ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error {
	return nil
}

func (f *fakeEngine) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	return nil
}

func (f *fakeEngine) ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	payload := f.logOutput[containerID]
	f.mu.Unlock()
	return io.NopCloser(bytes.NewReader(payload)), nil
}

func (f *fakeEngine) ContainerExecCreate(ctx context.Context, containerID string, config types.ExecConfig) (types.IDResponse, error) {
	return types.IDResponse{ID: containerID + "/exec"}, nil
}

func (f *fakeEngine) ContainerExecStart(ctx context.Context, execID string, config types.ExecStartCheck) error {
	return nil
}

func (f *fakeEngine) ContainerExecInspect(ctx context.Context, execID string) (types.ContainerExecInspect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := strings.TrimSuffix(execID, "/exec")
	return types.ContainerExecInspect{Running: false, ExitCode: f.probeExit[f.services[id]]}, nil
}

func (f *fakeEngine) ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error) {
	return []image.Summary{{}}, nil
}

func (f *fakeEngine) ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (f *fakeEngine) ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error) {
	return types.ImageBuildResponse{Body: io.NopCloser(strings.NewReader(""))}, nil
}

func (f *fakeEngine) Events(ctx context.Context, options types.EventsOptions) (<-chan events.Message, <-chan error) {
	return make(chan events.Message), make(chan error)
}

func (f *fakeEngine) createdServices() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

// newTestOperator wires an Operator onto the fake engine the way
// NewOperator does onto the real client.
func newTestOperator(t *testing.T, stack string, cfg *parser.Config, eng *fakeEngine, rec Recorder) *Operator {
	t.Helper()
	opts := Options{}.withDefaults()
	return &Operator{
		client:     eng,
		log:        zap.NewNop(),
		registry:   NewRegistry(zap.NewNop(), stack, rec),
		opts:       opts,
		stack:      stack,
		config:     cfg,
		baseDir:    t.TempDir(),
		containers: map[string]string{},
	}
}

func quickProbe(retries int) *parser.HealthCheck {
	return &parser.HealthCheck{
		Test:     parser.StringOrList{"CMD", "true"},
		Interval: parser.Duration(time.Millisecond),
		Timeout:  parser.Duration(time.Second),
		Retries:  retries,
	}
}

func indexOf(entries []string, want string) int {
	for i, e := range entries {
		if e == want {
			return i
		}
	}
	return -1
}

func TestUpGatesDependentOnHealth(t *testing.T) {
	cfg := &parser.Config{
		Services: map[string]parser.Service{
			"minio":  {Image: "minio/minio", HealthCheck: quickProbe(3)},
			"mlflow": {Image: "mlflow", DependsOn: parser.StringOrList{"minio"}},
		},
	}
	eng := newFakeEngine()
	rec := &captureRecorder{}
	op := newTestOperator(t, "mlops", cfg, eng, rec)

	if err := op.Up(context.Background()); err != nil {
		t.Fatalf("up: %v", err)
	}

	if got := op.registry.Get("minio"); got != StateRunning {
		t.Fatalf("minio = %s", got)
	}
	if got := op.registry.Get("mlflow"); got != StateRunning {
		t.Fatalf("mlflow = %s", got)
	}

	rec.mu.Lock()
	entries := append([]string(nil), rec.entries...)
	rec.mu.Unlock()
	healthy := indexOf(entries, "mlops/minio/healthy")
	creating := indexOf(entries, "mlops/mlflow/creating")
	if healthy < 0 || creating < 0 {
		t.Fatalf("transitions missing: %v", entries)
	}
	if healthy > creating {
		t.Fatalf("mlflow entered creating before minio was healthy: %v", entries)
	}
}

func TestUpUnhealthyDependencyNeverStartsDependent(t *testing.T) {
	cfg := &parser.Config{
		Services: map[string]parser.Service{
			"minio":  {Image: "minio/minio", HealthCheck: quickProbe(2)},
			"mlflow": {Image: "mlflow", DependsOn: parser.StringOrList{"minio"}},
		},
	}
	eng := newFakeEngine()
	eng.probeExit["minio"] = 1
	op := newTestOperator(t, "mlops", cfg, eng, nil)

	err := op.Up(context.Background())
	if !errdefs.IsKind(err, errdefs.KindServiceUnhealthy) {
		t.Fatalf("expected ServiceUnhealthy, got %v", err)
	}

	if got := eng.createdServices(); indexOf(got, "mlflow") >= 0 {
		t.Fatalf("mlflow was created despite its dependency failing: %v", got)
	}
	// partial startup is a valid reported end state
	if got := op.registry.Get("minio"); got != StateUnhealthy {
		t.Fatalf("minio = %s", got)
	}
	if got := op.registry.Get("mlflow"); got != StateStopped {
		t.Fatalf("mlflow = %s", got)
	}
}

func TestUpAttachesEveryDeclaredServiceNetwork(t *testing.T) {
	cfg := &parser.Config{
		Networks: map[string]parser.Network{
			"backend":  {},
			"frontend": {},
		},
		Services: map[string]parser.Service{
			"api": {Image: "api", Networks: []string{"backend", "frontend"}},
		},
	}
	eng := newFakeEngine()
	op := newTestOperator(t, "mlops", cfg, eng, nil)

	if err := op.Up(context.Background()); err != nil {
		t.Fatalf("up: %v", err)
	}

	eng.mu.Lock()
	endpoints := append([]string(nil), eng.endpoints["api"]...)
	connects := append([]string(nil), eng.connects...)
	eng.mu.Unlock()

	if len(endpoints) != 1 || endpoints[0] != "mlops_backend" {
		t.Fatalf("create-time endpoint = %v", endpoints)
	}
	if len(connects) != 1 || connects[0] != "netid-mlops_frontend" {
		t.Fatalf("remaining networks not connected: %v", connects)
	}
}

func TestUpUnknownServiceNetwork(t *testing.T) {
	cfg := &parser.Config{
		Services: map[string]parser.Service{
			"api": {Image: "api", Networks: []string{"ghost"}},
		},
	}
	eng := newFakeEngine()
	op := newTestOperator(t, "mlops", cfg, eng, nil)

	err := op.Up(context.Background())
	if !errdefs.IsKind(err, errdefs.KindUnknownReference) {
		t.Fatalf("expected UnknownReference, got %v", err)
	}
}
