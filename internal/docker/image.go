package docker

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/containerd/containerd/errdefs"
	"github.com/docker/docker/api/types/image"
)

type PullImageOptions struct {
	// Ref 镜像引用（name:tag、digest、或镜像 ID）。
	Ref string
	// Platform 可选平台（如 linux/amd64）。
	Platform string
}

// EnsureImage 本地不存在时拉取镜像，已存在则直接返回
func EnsureImage(ctx context.Context, opts PullImageOptions) error {
	cli, err := GetClient()
	if err != nil {
		return err
	}
	if _, err := cli.ImageInspect(ctx, opts.Ref); err == nil {
		return nil
	} else if !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to inspect image %s: %w", opts.Ref, err)
	}
	_, err = PullImage(ctx, opts)
	return err
}

func PullImage(ctx context.Context, opts PullImageOptions) (string, error) {
	cli, err := GetClient()
	if err != nil {
		return "", err
	}

	ref := strings.TrimSpace(opts.Ref)
	if ref == "" {
		return "", fmt.Errorf("image ref is required")
	}

	pullOpts := image.PullOptions{}
	if strings.TrimSpace(opts.Platform) != "" {
		pullOpts.Platform = strings.TrimSpace(opts.Platform)
	}

	reader, err := cli.ImagePull(ctx, ref, pullOpts)
	if err != nil {
		return "", fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer reader.Close()

	var b strings.Builder
	if _, err := io.Copy(&b, reader); err != nil {
		return "", fmt.Errorf("failed to read image pull output: %w", err)
	}

	return truncateTail(b.String(), 2000), nil
}
