package ports

import (
	"context"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/pkg/errors"
)

const reapTimeout = 30 * time.Second

// DockerReaper removes stale containers publishing the benchmark port on the
// host. Leftover containers from a prior run keep the host port bound even
// though no host process shows up as the listener.
type DockerReaper struct {
	cli *client.Client
}

// NewDockerReaper connects to the docker daemon using environment defaults.
func NewDockerReaper() (*DockerReaper, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "connecting to docker daemon failed")
	}
	return &DockerReaper{cli: cli}, nil
}

// ReapPort force-removes every container publishing the given host port and
// returns their identifiers.
func (r *DockerReaper) ReapPort(port int) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), reapTimeout)
	defer cancel()

	portFilter := filters.NewArgs(filters.Arg("publish", strconv.Itoa(port)))
	containers, err := r.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: portFilter,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listing containers publishing port %d failed", port)
	}

	var removed []string
	for _, c := range containers {
		err := r.cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true})
		if err != nil {
			return removed, errors.Wrapf(err, "removing stale container %s failed", c.ID)
		}
		removed = append(removed, c.ID)
	}
	return removed, nil
}
