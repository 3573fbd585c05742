package operator

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	dockerFilters "github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/volume"
	"go.uber.org/zap"

	"github.com/lapiml/stackctl/pkg/parser"
)

// ensureVolume creates a named volume unless it already exists. Volumes are
// namespaced by stack and deliberately survive `down`.
func (o *Operator) ensureVolume(ctx context.Context, name string, def parser.Volume) error {
	actual := o.stack + "_" + name

	filters := dockerFilters.NewArgs()
	filters.Add("name", actual)
	list, err := o.client.VolumeList(ctx, volume.ListOptions{Filters: filters})
	if err != nil {
		return err
	}
	for _, v := range list.Volumes {
		if v.Name == actual {
			return nil
		}
	}

	_, err = o.client.VolumeCreate(ctx, volume.CreateOptions{
		Name:       actual,
		Driver:     def.Driver,
		DriverOpts: def.DriverOpts,
		Labels:     stackLabels(o.stack, ""),
	})
	if err != nil {
		return err
	}
	o.log.Info("volume created", zap.String("volume", actual))
	return nil
}

// resolveBinds turns descriptor volume specs into engine bind strings.
// Host paths are resolved against the descriptor directory and created when
// absent; named volumes are rewritten to their stack-scoped names.
func (o *Operator) resolveBinds(svc parser.Service) ([]string, error) {
	var binds []string
	for _, spec := range svc.Volumes {
		src, rest, err := parser.SplitVolumeSpec(spec)
		if err != nil {
			return nil, err
		}
		if parser.IsHostPath(src) {
			if strings.HasPrefix(src, "~") {
				home, herr := os.UserHomeDir()
				if herr != nil {
					return nil, herr
				}
				src = filepath.Join(home, strings.TrimPrefix(src, "~"))
			}
			if !filepath.IsAbs(src) {
				src = filepath.Join(o.baseDir, src)
			}
			if err := os.MkdirAll(src, 0o755); err != nil {
				return nil, err
			}
		} else {
			src = o.stack + "_" + src
		}
		binds = append(binds, src+":"+rest)
	}
	return binds, nil
}
