// Package compose is the container control plane: it starts services and
// answers questions about their containers through the resolved compose
// tool and engine CLI.
package compose

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"stackctl/internal/execx"
	"stackctl/internal/toolchain"
)

// Client talks to one compose project.
type Client struct {
	Runner execx.Runner
	Tools  toolchain.ToolChain
	// Dir is the project directory; compose runs there.
	Dir string
	// Files are passed as -f flags in order. Empty means compose's default lookup.
	Files []string
	// Project is passed as -p when set.
	Project string
}

func (c *Client) composeCmd(args ...string) execx.Cmd {
	var full []string
	for _, f := range c.Files {
		full = append(full, "-f", f)
	}
	if c.Project != "" {
		full = append(full, "-p", c.Project)
	}
	cmd := c.Tools.ComposeCmd(append(full, args...)...)
	cmd.Dir = c.Dir
	return cmd
}

// UseToolChain switches the client to a newly resolved tool chain.
func (c *Client) UseToolChain(tc toolchain.ToolChain) { c.Tools = tc }

// Up starts services detached. No services means the whole project.
func (c *Client) Up(ctx context.Context, services ...string) error {
	return c.Runner.Run(ctx, c.composeCmd(append([]string{"up", "-d"}, services...)...))
}

// Down stops and removes the project's containers. Volumes are kept.
func (c *Client) Down(ctx context.Context) error {
	return c.Runner.Run(ctx, c.composeCmd("down"))
}

// ContainerID returns the id of the service's container, including stopped
// ones, or "" when none has been created yet.
func (c *Client) ContainerID(ctx context.Context, service string) (string, error) {
	out, err := c.Runner.Output(ctx, c.composeCmd("ps", "-a", "-q", service))
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(out), "\n") {
		if id := strings.TrimSpace(line); id != "" {
			return id, nil
		}
	}
	return "", nil
}

func (c *Client) inspect(ctx context.Context, format, id string) (string, error) {
	cmd := c.Tools.EngineCmd("inspect", "-f", format, id)
	out, err := c.Runner.Output(ctx, cmd)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// HealthStatus returns the declared health-check result (starting, healthy,
// unhealthy) or "" when the container declares no health check.
func (c *Client) HealthStatus(ctx context.Context, id string) (string, error) {
	return c.inspect(ctx, "{{if .State.Health}}{{.State.Health.Status}}{{end}}", id)
}

// LifecycleStatus returns the container state (created, running, exited, dead, ...).
func (c *Client) LifecycleStatus(ctx context.Context, id string) (string, error) {
	return c.inspect(ctx, "{{.State.Status}}", id)
}

// Logs returns the last tail lines of a service's output.
func (c *Client) Logs(ctx context.Context, service string, tail int) (string, error) {
	out, err := c.Runner.Output(ctx, c.composeCmd("logs", "--no-color", "--tail", strconv.Itoa(tail), service))
	return string(out), err
}

// FollowLogs streams a service's output to w until ctx is cancelled or the
// compose process exits.
func (c *Client) FollowLogs(ctx context.Context, service string, tail int, w io.Writer) error {
	cmd := c.composeCmd("logs", "-f", "--no-color", "--tail", strconv.Itoa(tail), service)
	cmd.Stdout = w
	cmd.Stderr = w
	return c.Runner.Run(ctx, cmd)
}

// Exec runs a command inside a running service container without a TTY.
func (c *Client) Exec(ctx context.Context, service string, args ...string) ([]byte, error) {
	out, err := c.Runner.Output(ctx, c.composeCmd(append([]string{"exec", "-T", service}, args...)...))
	if err != nil {
		return out, fmt.Errorf("exec in %s: %w", service, err)
	}
	return out, nil
}
