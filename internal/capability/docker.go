package capability

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"go.uber.org/zap"

	"github.com/phoenixops/incident-engine/internal/model"
)

// DockerRuntime executes restart_service and clear_cache actions against a
// local Docker engine. Container names come from the action parameters.
type DockerRuntime struct {
	logger *zap.Logger
	docker *client.Client
}

// NewDockerRuntime creates a Docker-backed capability handler.
func NewDockerRuntime(logger *zap.Logger) (*DockerRuntime, error) {
	docker, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	return &DockerRuntime{
		logger: logger.Named("docker-runtime"),
		docker: docker,
	}, nil
}

// Execute performs the action against the Docker engine. Failures are
// reported as unsuccessful results rather than errors so the executor records
// them per action.
func (d *DockerRuntime) Execute(ctx context.Context, action *model.ResolutionAction) (*Result, error) {
	switch action.Type {
	case model.ActionRestartService:
		return d.restartContainer(ctx, action)
	case model.ActionClearCache:
		return d.restartContainer(ctx, action)
	}
	return nil, fmt.Errorf("docker runtime cannot execute action type %s", action.Type)
}

func (d *DockerRuntime) restartContainer(ctx context.Context, action *model.ResolutionAction) (*Result, error) {
	name, _ := action.Parameters["service_name"].(string)
	if name == "" {
		name, _ = action.Parameters["container_name"].(string)
	}
	if name == "" {
		return &Result{Success: false, Message: "no service_name in action parameters"}, nil
	}

	timeout := 30
	if graceful, ok := action.Parameters["graceful_shutdown"].(bool); ok && !graceful {
		timeout = 0
	}

	d.logger.Info("Restarting container",
		zap.String("container", name),
		zap.Int("stop_timeout", timeout))

	if err := d.docker.ContainerRestart(ctx, name, container.StopOptions{Timeout: &timeout}); err != nil {
		return &Result{
			Success: false,
			Message: fmt.Sprintf("container restart failed: %v", err),
		}, nil
	}

	return &Result{
		Success: true,
		Message: fmt.Sprintf("Successfully restarted container %s", name),
		Details: map[string]interface{}{
			"container":    name,
			"restart_time": time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

// Close releases the underlying Docker client.
func (d *DockerRuntime) Close() error {
	return d.docker.Close()
}
