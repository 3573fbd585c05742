package operator

import (
	"context"

	"github.com/docker/docker/api/types"
	dockerFilters "github.com/docker/docker/api/types/filters"
	"go.uber.org/zap"
)

// ensureNetwork creates the stack network unless it already exists, so a
// second `up` never duplicates the fabric. Returns the network ID.
func (o *Operator) ensureNetwork(ctx context.Context, name, driver string) (string, error) {
	actual := o.stack + "_" + name

	filters := dockerFilters.NewArgs()
	filters.Add("name", actual)
	networks, err := o.client.NetworkList(ctx, types.NetworkListOptions{Filters: filters})
	if err != nil {
		return "", err
	}
	for _, n := range networks {
		if n.Name == actual {
			o.log.Debug("network exists", zap.String("network", actual))
			return n.ID, nil
		}
	}

	if driver == "" {
		driver = "bridge"
	}
	resp, err := o.client.NetworkCreate(ctx, actual, types.NetworkCreate{
		Driver: driver,
		Labels: stackLabels(o.stack, ""),
	})
	if err != nil {
		return "", err
	}
	o.log.Info("network created", zap.String("network", actual), zap.String("driver", driver))
	return resp.ID, nil
}

func (o *Operator) removeNetworks(ctx context.Context) error {
	filters := dockerFilters.NewArgs()
	filters.Add("label", StackLabel+"="+o.stack)
	networks, err := o.client.NetworkList(ctx, types.NetworkListOptions{Filters: filters})
	if err != nil {
		return err
	}
	for _, n := range networks {
		if err := o.client.NetworkRemove(ctx, n.ID); err != nil {
			return err
		}
		o.log.Info("network removed", zap.String("network", n.Name))
	}
	return nil
}
