package lifecycle

import (
	"context"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
)

// containerEngine is the slice of the docker client this package depends
// on, narrowed for testability (grounded on bacalhau's pkg/docker.Client
// wrapper, which narrows the same SDK to the calls its domain needs).
type containerEngine interface {
	ContainerInspect(ctx context.Context, id string) (containerInspectResult, error)
	ContainerStart(ctx context.Context, id string) error
	ContainerStop(ctx context.Context, id string, timeout *time.Duration) error
	ContainerKill(ctx context.Context, id, signal string) error
}

type containerInspectResult struct {
	Exists  bool
	Running bool
}

// dockerEngine adapts github.com/docker/docker/client to containerEngine.
type dockerEngine struct {
	cli *dockerclient.Client
}

// newDockerEngine connects to the docker daemon using the environment's
// standard configuration (DOCKER_HOST, TLS, etc.).
func newDockerEngine() (*dockerEngine, error) {
	cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &dockerEngine{cli: cli}, nil
}

func (d *dockerEngine) ContainerInspect(ctx context.Context, id string) (containerInspectResult, error) {
	info, err := d.cli.ContainerInspect(ctx, id)
	if dockerclient.IsErrNotFound(err) {
		return containerInspectResult{}, nil
	}
	if err != nil {
		return containerInspectResult{}, err
	}
	running := info.State != nil && info.State.Running
	return containerInspectResult{Exists: true, Running: running}, nil
}

func (d *dockerEngine) ContainerStart(ctx context.Context, id string) error {
	return d.cli.ContainerStart(ctx, id, types.ContainerStartOptions{})
}

func (d *dockerEngine) ContainerStop(ctx context.Context, id string, timeout *time.Duration) error {
	opts := container.StopOptions{}
	if timeout != nil {
		seconds := int(timeout.Seconds())
		opts.Timeout = &seconds
	}
	return d.cli.ContainerStop(ctx, id, opts)
}

func (d *dockerEngine) ContainerKill(ctx context.Context, id, signal string) error {
	return d.cli.ContainerKill(ctx, id, signal)
}

// containerBackend drives containerized services through the docker
// engine (spec §4.3: "containerized: instruct the container engine to
// start the pre-existing container identified by container_id").
type containerBackend struct {
	engine containerEngine
}

func newContainerBackend(engine containerEngine) *containerBackend {
	return &containerBackend{engine: engine}
}

func (b *containerBackend) start(ctx context.Context, svc serviceRef) error {
	info, err := b.engine.ContainerInspect(ctx, svc.ContainerID)
	if err != nil {
		return err
	}
	if !info.Exists {
		return &ContainerMissingError{ContainerID: svc.ContainerID}
	}
	if info.Running {
		return nil
	}
	return b.engine.ContainerStart(ctx, svc.ContainerID)
}

// containerStopDeadline is the graceful-stop deadline before the engine
// escalates to a harsher signal (spec §4.3 stop procedure, containerized).
const containerStopDeadline = 30 * time.Second

func (b *containerBackend) stop(ctx context.Context, svc serviceRef, force bool) error {
	if force {
		return b.engine.ContainerKill(ctx, svc.ContainerID, "SIGKILL")
	}
	deadline := containerStopDeadline
	return b.engine.ContainerStop(ctx, svc.ContainerID, &deadline)
}
