package agent

import (
	"context"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

// ContainerSpec describes the one container a build sandbox needs (spec
// §4.2's "Build sandbox contract").
type ContainerSpec struct {
	Image   string
	Name    string
	WorkDir string
	Cmd     []string
	Binds   []string
}

// Runner is the narrow Docker surface the executor depends on,
// generalizing the teacher's internal/client/docker.DockerClient down to
// exactly the calls a single build container needs. Implemented by
// *DockerRunner and, in tests, by a hand-written fake.
type Runner interface {
	Pull(ctx context.Context, image string) error
	Exists(ctx context.Context, name string) bool
	Create(ctx context.Context, spec ContainerSpec) (id string, err error)
	Start(ctx context.Context, id string) error
	Logs(ctx context.Context, id string, follow bool) (io.ReadCloser, error)
	Wait(ctx context.Context, id string) (exitCode int64, err error)
	Kill(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error
}

// DockerRunner is the Runner implementation, carrying over the teacher's
// internal/client/docker/base.go calls (ImagePull, ContainerCreate,
// ContainerStart, ContainerWait, ContainerLogs, ContainerRemove) almost
// verbatim, trimmed to what a build-only sandbox needs (no deployment
// container, no port bindings — building, not deploying, is this spec's
// job per its Non-goals).
type DockerRunner struct {
	client *client.Client
}

func NewDockerRunner() (*DockerRunner, error) {
	c, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &DockerRunner{client: c}, nil
}

func (r *DockerRunner) Close() error { return r.client.Close() }

func (r *DockerRunner) Pull(ctx context.Context, img string) error {
	reader, err := r.client.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	return err
}

func (r *DockerRunner) Exists(ctx context.Context, name string) bool {
	_, err := r.client.ContainerInspect(ctx, name)
	return err == nil
}

func (r *DockerRunner) Create(ctx context.Context, spec ContainerSpec) (string, error) {
	resp, err := r.client.ContainerCreate(ctx,
		&container.Config{
			Image:      spec.Image,
			WorkingDir: spec.WorkDir,
			Cmd:        spec.Cmd,
		},
		&container.HostConfig{
			Binds: spec.Binds,
		},
		nil, nil, spec.Name)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (r *DockerRunner) Start(ctx context.Context, id string) error {
	return r.client.ContainerStart(ctx, id, container.StartOptions{})
}

func (r *DockerRunner) Logs(ctx context.Context, id string, follow bool) (io.ReadCloser, error) {
	return r.client.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
	})
}

func (r *DockerRunner) Wait(ctx context.Context, id string) (int64, error) {
	statusCh, errCh := r.client.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return -1, err
	case status := <-statusCh:
		return status.StatusCode, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

func (r *DockerRunner) Kill(ctx context.Context, id string) error {
	return r.client.ContainerKill(ctx, id, "SIGKILL")
}

func (r *DockerRunner) Remove(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	err := r.client.ContainerRemove(ctx, id, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil && client.IsErrNotFound(err) {
		return nil
	}
	return err
}

// bindWorkspace is a convenience matching the teacher's
// fmt.Sprintf("%s:/app", tempDirPath) volume-bind idiom.
func bindWorkspace(hostPath, containerPath string) string {
	return hostPath + ":" + containerPath
}
