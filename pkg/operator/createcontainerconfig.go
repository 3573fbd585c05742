package operator

import (
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/go-connections/nat"

	"github.com/lapiml/stackctl/pkg/errdefs"
	"github.com/lapiml/stackctl/pkg/parser"
)

type CreateContainerConfig struct {
	Cfg        *container.Config
	HostCfg    *container.HostConfig
	NetworkCfg *network.NetworkingConfig
}

func NewCreateContainerConfig(cfg *container.Config, hostCfg *container.HostConfig, networkCfg *network.NetworkingConfig) *CreateContainerConfig {
	return &CreateContainerConfig{Cfg: cfg, HostCfg: hostCfg, NetworkCfg: networkCfg}
}

// buildCreateConfig assembles the engine-side configuration for one service:
// image, command, merged environment, port bindings, bind mounts and the
// network endpoint that gives the container its service-name alias.
func buildCreateConfig(stack, service string, svc parser.Service, image string, env, binds []string, networkID, networkName string, engineRestart bool) (*CreateContainerConfig, error) {
	exposed, portMap, err := nat.ParsePortSpecs(svc.Ports)
	if err != nil {
		return nil, errdefs.Newf(errdefs.KindMalformedDescriptor,
			"service %q: ports: %w", service, err)
	}

	labels := stackLabels(stack, service)
	for k, v := range svc.Labels {
		labels[k] = v
	}

	cfg := &container.Config{
		Image:        image,
		Cmd:          []string(svc.Command),
		Env:          env,
		Labels:       labels,
		ExposedPorts: exposed,
	}

	// While the operator is attached it supervises restart:always itself and
	// the engine policy stays off. A detached stack has no supervisor, so
	// restart:always is handed to the engine instead.
	policy := container.RestartPolicy{Name: container.RestartPolicyDisabled}
	if engineRestart && svc.Restart == "always" {
		policy = container.RestartPolicy{Name: container.RestartPolicyAlways}
	}

	hostCfg := &container.HostConfig{
		Binds:         binds,
		PortBindings:  portMap,
		RestartPolicy: policy,
	}

	networkCfg := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			networkName: {
				NetworkID: networkID,
				Aliases:   []string{service},
			},
		},
	}

	return NewCreateContainerConfig(cfg, hostCfg, networkCfg), nil
}
