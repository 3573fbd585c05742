package operator

import (
	"sort"

	"github.com/docker/go-connections/nat"

	"github.com/lapiml/stackctl/pkg/errdefs"
	"github.com/lapiml/stackctl/pkg/parser"
)

type portClaim struct {
	service string
	hostIP  string
}

// wildcardIP reports whether a binding address covers every interface. An
// empty host IP and 0.0.0.0 are the same claim on the engine side.
func wildcardIP(ip string) bool {
	return ip == "" || ip == "0.0.0.0"
}

func conflicts(a, b string) bool {
	if wildcardIP(a) || wildcardIP(b) {
		return true
	}
	return a == b
}

// ValidatePorts rejects a descriptor in which two services claim the same
// host address before any container is created. A wildcard bind collides
// with any other bind of the same port; two distinct specific addresses do
// not. Services are visited in name order so the reported pair is stable.
func ValidatePorts(services map[string]parser.Service) error {
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)

	bound := map[string][]portClaim{}
	for _, name := range names {
		for _, spec := range services[name].Ports {
			mappings, err := nat.ParsePortSpec(spec)
			if err != nil {
				return errdefs.Newf(errdefs.KindMalformedDescriptor,
					"service %q: port %q: %w", name, spec, err)
			}
			for _, m := range mappings {
				if m.Binding.HostPort == "" {
					continue
				}
				for _, claim := range bound[m.Binding.HostPort] {
					if claim.service != name && conflicts(claim.hostIP, m.Binding.HostIP) {
						return errdefs.Newf(errdefs.KindPortConflict,
							"services %q and %q both bind host port %s",
							claim.service, name, m.Binding.HostPort)
					}
				}
				bound[m.Binding.HostPort] = append(bound[m.Binding.HostPort],
					portClaim{service: name, hostIP: m.Binding.HostIP})
			}
		}
	}
	return nil
}
