package operator

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types"
	dockerFilters "github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"go.uber.org/zap"

	"github.com/lapiml/stackctl/pkg/parser"
)

// ensureImage makes the image for a service available locally and returns
// its reference: built from the declared context, or pulled when absent.
func (o *Operator) ensureImage(ctx context.Context, service string, svc parser.Service) (string, error) {
	if svc.Build != nil {
		tag := o.stack + "_" + service
		if err := o.buildImage(ctx, tag, svc.Build); err != nil {
			return "", err
		}
		return tag, nil
	}

	filters := dockerFilters.NewArgs()
	filters.Add("reference", svc.Image)
	images, err := o.client.ImageList(ctx, image.ListOptions{Filters: filters})
	if err != nil {
		return "", err
	}
	if len(images) > 0 {
		return svc.Image, nil
	}

	o.log.Info("pulling image", zap.String("service", service), zap.String("image", svc.Image))
	out, err := o.client.ImagePull(ctx, svc.Image, image.PullOptions{})
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(io.Discard, out); err != nil {
		return "", err
	}
	return svc.Image, nil
}

func (o *Operator) buildImage(ctx context.Context, tag string, build *parser.Build) error {
	contextDir := build.Context
	if !filepath.IsAbs(contextDir) {
		contextDir = filepath.Join(o.baseDir, contextDir)
	}
	dockerfile := build.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	buildCtx, err := tarDirectory(contextDir)
	if err != nil {
		return err
	}

	o.log.Info("building image", zap.String("tag", tag), zap.String("context", contextDir))
	resp, err := o.client.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: dockerfile,
		Remove:     true,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(io.Discard, resp.Body)
	return err
}

// tarDirectory streams a build context the way the engine API expects it:
// a tar of the directory with slash-separated relative names.
func tarDirectory(dir string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}
