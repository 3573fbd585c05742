package operator

import (
	"fmt"
	"strings"

	"github.com/docker/docker/api/types"
)

// ContainerInfo is the per-service row reported by `ps`.
type ContainerInfo struct {
	ShortId string
	Name    string
	Service string
	Image   string
	State   string
	Status  string
	Ports   []string
}

func NewContainerInfo(container *types.Container) *ContainerInfo {
	shortId := container.ID
	if len(shortId) > 12 {
		shortId = shortId[:12]
	}
	name := ""
	if len(container.Names) > 0 {
		name = strings.TrimPrefix(container.Names[0], "/")
	}

	var ports []string
	for _, p := range container.Ports {
		if p.PublicPort == 0 {
			continue
		}
		ports = append(ports, fmt.Sprintf("%s:%d->%d/%s", p.IP, p.PublicPort, p.PrivatePort, p.Type))
	}

	return &ContainerInfo{
		ShortId: shortId,
		Name:    name,
		Service: container.Labels[ServiceLabel],
		Image:   container.Image,
		State:   container.State,
		Status:  container.Status,
		Ports:   ports,
	}
}

func (c ContainerInfo) String() string {
	return fmt.Sprintf("%-12s  %-24s  %-12s  %-10s  %s  %s",
		c.ShortId, c.Name, c.Service, c.State, c.Status, strings.Join(c.Ports, ", "))
}
