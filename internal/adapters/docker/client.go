package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"funcapp-deploy/internal/config"
	"funcapp-deploy/internal/core/funcapp"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog"
)

// Client runs one-off containers on a Docker Engine.
type Client struct {
	cli        *client.Client
	lg         zerolog.Logger
	authHeader string // base64 registry auth sent with image pulls
	stdout     io.Writer
	stderr     io.Writer
}

// New connects to the engine named by the DOCKER_* environment. Pulls carry
// registry credentials when both a user and a password are configured.
func New(cfg config.Config, lg zerolog.Logger) (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	c := newClient(cli, lg)

	if cfg.RegistryUser == "" || cfg.RegistryPass == "" {
		return c, nil
	}
	c.authHeader, err = registry.EncodeAuthConfig(registry.AuthConfig{
		Username:      cfg.RegistryUser,
		Password:      cfg.RegistryPass,
		ServerAddress: cfg.RegistryURL,
	})
	if err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("encode registry auth: %w", err)
	}
	c.lg.Info().Str("registry", cfg.RegistryURL).Msg("configured registry authentication")
	return c, nil
}

func newClient(cli *client.Client, lg zerolog.Logger) *Client {
	return &Client{
		cli:    cli,
		lg:     lg.With().Str("adapter", "docker").Logger(),
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

// RunContainer creates and starts the container described by spec, streams
// its output to the process stdout/stderr and waits for it to exit.
func (c *Client) RunContainer(ctx context.Context, spec funcapp.ContainerSpec) error {
	if err := c.ensureImage(ctx, spec.Image); err != nil {
		return err
	}

	if spec.Name != "" {
		// A container left behind under this name by a crashed run.
		_ = c.cli.ContainerRemove(ctx, spec.Name, container.RemoveOptions{Force: true})
	}

	resp, err := c.cli.ContainerCreate(ctx,
		&container.Config{
			Image:      spec.Image,
			Cmd:        spec.Cmd,
			WorkingDir: spec.WorkingDir,
		},
		&container.HostConfig{
			Binds:      spec.Binds,
			AutoRemove: spec.AutoRemove,
		},
		nil, nil, spec.Name,
	)
	if err != nil {
		return fmt.Errorf("docker create: %w", err)
	}
	lg := c.lg.With().Str("container_id", resp.ID).Str("image", spec.Image).Logger()

	// Registered before start so a fast exit is not missed.
	waitCh, errCh := c.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNextExit)

	if err := c.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		c.remove(resp.ID, lg)
		return fmt.Errorf("docker start: %w", err)
	}
	lg.Info().Msg("container started")

	c.streamLogs(ctx, resp.ID, lg)

	var runErr error
	select {
	case <-ctx.Done():
		c.remove(resp.ID, lg)
		return ctx.Err()
	case err := <-errCh:
		if ctx.Err() != nil {
			c.remove(resp.ID, lg)
			return ctx.Err()
		}
		runErr = fmt.Errorf("docker wait: %w", err)
	case res := <-waitCh:
		switch {
		case res.Error != nil:
			runErr = fmt.Errorf("docker wait: %s", res.Error.Message)
		case res.StatusCode != 0:
			runErr = fmt.Errorf("container exited with status %d", res.StatusCode)
		}
	}

	if !spec.AutoRemove {
		c.remove(resp.ID, lg)
	}
	if runErr != nil {
		return runErr
	}
	lg.Info().Msg("container finished")
	return nil
}

func (c *Client) streamLogs(ctx context.Context, containerID string, lg zerolog.Logger) {
	logs, err := c.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		lg.Warn().Err(err).Msg("could not attach to container logs")
		return
	}
	defer logs.Close()
	if _, err := stdcopy.StdCopy(c.stdout, c.stderr, logs); err != nil {
		lg.Debug().Err(err).Msg("container log stream ended")
	}
}

func (c *Client) remove(containerID string, lg zerolog.Logger) {
	err := c.cli.ContainerRemove(context.Background(), containerID, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil && !client.IsErrNotFound(err) {
		lg.Warn().Err(err).Msg("failed to remove container")
	}
}

// ensureImage pulls img unless the engine already has it. Pull progress goes
// to the debug log; an error reported inside the stream fails the pull.
func (c *Client) ensureImage(ctx context.Context, img string) error {
	_, err := c.cli.ImageInspect(ctx, img)
	if err == nil {
		return nil
	}
	if !client.IsErrNotFound(err) {
		return fmt.Errorf("image inspect: %w", err)
	}

	lg := c.lg.With().Str("image", img).Logger()
	lg.Info().Msg("pulling image from registry")
	rc, err := c.cli.ImagePull(ctx, img, image.PullOptions{RegistryAuth: c.authHeader})
	if err != nil {
		return fmt.Errorf("image pull: %w", err)
	}
	defer rc.Close()

	dec := json.NewDecoder(rc)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("image pull %s: read progress: %w", img, err)
		}
		if msg.Error != nil {
			return fmt.Errorf("image pull %s: %w", img, msg.Error)
		}
		if msg.Status != "" {
			lg.Debug().Str("layer", msg.ID).Str("status", msg.Status).Msg("pull progress")
		}
	}
	lg.Info().Msg("image pulled")
	return nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}
