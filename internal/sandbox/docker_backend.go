package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/felixgeelhaar/fortify/retry"
)

const (
	labelSandbox = "meteor.sandbox"
	labelKey     = "meteor.key"
	labelOwner   = "meteor.owner"
	workDir      = "/workspace"
	pidsLimit    = 64
	tmpfsSize    = "size=16m"
)

// DockerBackend runs sandboxes as locked-down docker containers labelled
// with the owning process name.
type DockerBackend struct {
	client *client.Client
	owner  string
}

var _ Backend = (*DockerBackend)(nil)

// NewDockerBackend connects to the docker daemon from the environment.
func NewDockerBackend(owner string) (*DockerBackend, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	ping := retry.New[types.Ping](retry.Config{
		MaxAttempts:   3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      4 * time.Second,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
	})
	if _, err := ping.Do(ctx, func(ctx context.Context) (types.Ping, error) {
		return cli.Ping(ctx)
	}); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker not reachable: %w", err)
	}

	return &DockerBackend{client: cli, owner: owner}, nil
}

// Create starts an idle container for key. The container only sleeps; the
// runner execs a new interpreter into it per grading call.
func (b *DockerBackend) Create(ctx context.Context, key string, cfg Config) (string, error) {
	if err := b.ensureImage(ctx, cfg.Image); err != nil {
		return "", err
	}

	pids := int64(pidsLimit)
	resp, err := b.client.ContainerCreate(ctx,
		&container.Config{
			Image:           cfg.Image,
			Cmd:             []string{"sh", "-c", "while true; do sleep 3600; done"},
			WorkingDir:      workDir,
			NetworkDisabled: cfg.NetworkOff,
			Labels: map[string]string{
				labelSandbox: "true",
				labelKey:     key,
				labelOwner:   b.owner,
			},
		},
		&container.HostConfig{
			CapDrop:     []string{"ALL"},
			SecurityOpt: []string{"no-new-privileges"},
			Tmpfs:       map[string]string{"/tmp": tmpfsSize},
			Resources: container.Resources{
				Memory:    int64(cfg.MemoryMB) << 20,
				NanoCPUs:  int64(cfg.CPULimit * 1e9),
				PidsLimit: &pids,
			},
		},
		nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}

	if err := b.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = b.client.ContainerRemove(context.WithoutCancel(ctx), resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("start container: %w", err)
	}
	return resp.ID, nil
}

// Copy writes files into the container's workspace.
func (b *DockerBackend) Copy(ctx context.Context, containerID string, files map[string]string) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(content)), ModTime: time.Now()}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("tar %s: %w", name, err)
		}
		if _, err := io.WriteString(tw, content); err != nil {
			return fmt.Errorf("tar %s: %w", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	return b.client.CopyToContainer(ctx, containerID, workDir, &buf, container.CopyToContainerOptions{})
}

// Exec runs spec.Cmd in the container and captures its demultiplexed
// output. Output past the cap is drained and dropped.
func (b *DockerBackend) Exec(ctx context.Context, containerID string, spec ExecSpec) (*ExecResult, error) {
	ctx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	created, err := b.client.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          spec.Cmd,
		WorkingDir:   workDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create exec: %w", err)
	}

	start := time.Now()
	attach, err := b.client.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("attach exec: %w", err)
	}
	defer attach.Close()

	limit := spec.MaxOutput
	if limit <= 0 {
		limit = DefaultMaxOutput
	}
	stdout := &boundedWriter{limit: limit}
	stderr := &boundedWriter{limit: limit}
	if _, err := stdcopy.StdCopy(stdout, stderr, attach.Reader); err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("read exec output: %w", err)
	}
	duration := time.Since(start)

	inspect, err := b.client.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return nil, fmt.Errorf("inspect exec: %w", err)
	}

	return &ExecResult{
		ExitCode:  inspect.ExitCode,
		Stdout:    stdout.buf.String(),
		Stderr:    stderr.buf.String(),
		Truncated: stdout.dropped || stderr.dropped,
		Duration:  duration,
	}, nil
}

// Destroy force-removes a container.
func (b *DockerBackend) Destroy(ctx context.Context, containerID string) error {
	err := b.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if client.IsErrNotFound(err) {
		return nil
	}
	return err
}

// Containers lists the containers created under this backend's owner.
func (b *DockerBackend) Containers(ctx context.Context) ([]string, error) {
	list, err := b.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(
			filters.Arg("label", labelSandbox+"=true"),
			filters.Arg("label", labelOwner+"="+b.owner),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	ids := make([]string, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// Close closes the docker client.
func (b *DockerBackend) Close() error {
	return b.client.Close()
}

func (b *DockerBackend) ensureImage(ctx context.Context, img string) error {
	if _, err := b.client.ImageInspect(ctx, img); err == nil {
		return nil
	}

	slog.Info("pulling sandbox image", "image", img)
	reader, err := b.client.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", img, err)
	}
	defer reader.Close()
	// the pull only completes once the progress stream is drained
	_, err = io.Copy(io.Discard, reader)
	return err
}

// boundedWriter keeps the first limit bytes and swallows the rest so the
// exec stream can still be drained to completion.
type boundedWriter struct {
	buf     bytes.Buffer
	limit   int
	dropped bool
}

func (w *boundedWriter) Write(p []byte) (int, error) {
	room := w.limit - w.buf.Len()
	if room < len(p) {
		w.dropped = true
		if room > 0 {
			w.buf.Write(p[:room])
		}
		return len(p), nil
	}
	return w.buf.Write(p)
}
