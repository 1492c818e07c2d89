package runtime

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// DockerRuntime implements Runtime using the Docker API.
type DockerRuntime struct {
	cli *client.Client
}

// NewDockerRuntime creates a Docker-backed runtime using the environment's
// daemon settings (DOCKER_HOST etc.).
func NewDockerRuntime() (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &DockerRuntime{cli: cli}, nil
}

func (d *DockerRuntime) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return fmt.Errorf("ping docker daemon: %w", err)
	}
	return nil
}

func (d *DockerRuntime) PullImage(ctx context.Context, img string) error {
	reader, err := d.cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", img, err)
	}
	defer reader.Close()
	// Drain the pull output.
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

func (d *DockerRuntime) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	exposedPorts := nat.PortSet{}
	portBindings := nat.PortMap{}
	if spec.ContainerPort > 0 {
		cp := nat.Port(strconv.Itoa(spec.ContainerPort) + "/tcp")
		exposedPorts[cp] = struct{}{}
		if spec.Port > 0 {
			portBindings[cp] = []nat.PortBinding{
				{HostPort: strconv.Itoa(spec.Port)},
			}
		}
	}

	cfg := &container.Config{
		Image:        spec.Image,
		Env:          env,
		ExposedPorts: exposedPorts,
		Labels:       spec.Labels,
	}

	if spec.HealthCheck != nil {
		cfg.Healthcheck = &container.HealthConfig{
			Test:        spec.HealthCheck.Test,
			Interval:    spec.HealthCheck.Interval,
			Timeout:     spec.HealthCheck.Timeout,
			Retries:     spec.HealthCheck.Retries,
			StartPeriod: spec.HealthCheck.StartPeriod,
		}
	}

	hostConfig := &container.HostConfig{
		PortBindings: portBindings,
	}

	var networkConfig *network.NetworkingConfig
	if spec.Network != "" {
		networkConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				spec.Network: {},
			},
		}
	}

	resp, err := d.cli.ContainerCreate(ctx, cfg, hostConfig, networkConfig, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("create container %s: %w", spec.Name, err)
	}
	return resp.ID, nil
}

func (d *DockerRuntime) StartContainer(ctx context.Context, name string) error {
	if err := d.cli.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container %s: %w", name, err)
	}
	return nil
}

func (d *DockerRuntime) StopContainer(ctx context.Context, name string) error {
	if err := d.cli.ContainerStop(ctx, name, container.StopOptions{}); err != nil {
		return fmt.Errorf("stop container %s: %w", name, err)
	}
	return nil
}

func (d *DockerRuntime) RemoveContainer(ctx context.Context, name string) error {
	if err := d.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("remove container %s: %w", name, err)
	}
	return nil
}

func (d *DockerRuntime) InspectContainer(ctx context.Context, name string) (*ContainerStatus, error) {
	info, err := d.cli.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("inspect container %s: %w", name, err)
	}

	health := "none"
	if info.State.Health != nil {
		health = info.State.Health.Status
	}

	var labels map[string]string
	if info.Config != nil {
		labels = info.Config.Labels
	}

	return &ContainerStatus{
		ID:      info.ID,
		Name:    info.Name,
		State:   info.State.Status,
		Health:  health,
		Running: info.State.Running,
		Labels:  labels,
	}, nil
}

func (d *DockerRuntime) NetworkExists(ctx context.Context, name string) (bool, error) {
	_, err := d.cli.NetworkInspect(ctx, name, network.InspectOptions{})
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspect network %s: %w", name, err)
	}
	return true, nil
}

func (d *DockerRuntime) CreateNetwork(ctx context.Context, name string) error {
	_, err := d.cli.NetworkCreate(ctx, name, network.CreateOptions{Driver: "bridge"})
	if err != nil {
		return fmt.Errorf("create network %s: %w", name, err)
	}
	return nil
}

func (d *DockerRuntime) RemoveNetwork(ctx context.Context, name string) error {
	if err := d.cli.NetworkRemove(ctx, name); err != nil {
		return fmt.Errorf("remove network %s: %w", name, err)
	}
	return nil
}
