package docker

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"

	"github.com/trevnoctilla/toolprobe/pkg/logger"
)

const (
	serverPort   = "3000"
	readyTimeout = 60 * time.Second
	stopTimeout  = 10
)

var serverPortKey = nat.Port(serverPort + "/tcp")

// Launcher runs a playwright run-server container and exposes its websocket endpoint
type Launcher struct {
	client      *client.Client
	image       string
	version     string
	containerID string
	logger      *logger.Logger
}

// NewLauncher connects to the docker daemon at host. version is the
// playwright release the run-server must speak.
func NewLauncher(host, image, version string) (*Launcher, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return &Launcher{
		client:  cli,
		image:   image,
		version: version,
		logger:  logger.New().With("component", "launcher"),
	}, nil
}

// Start pulls the image when missing, starts the container and waits for
// the run-server port. It returns the endpoint to pass to the playwright driver.
func (l *Launcher) Start(ctx context.Context) (string, error) {
	if err := l.ensureImage(ctx); err != nil {
		return "", err
	}

	containerConfig := &container.Config{
		Image: l.image,
		Cmd: []string{
			"npx", "-y", "playwright@" + l.version,
			"run-server", "--port", serverPort, "--host", "0.0.0.0",
		},
		ExposedPorts: nat.PortSet{serverPortKey: struct{}{}},
		Labels:       map[string]string{"toolprobe.role": "browser"},
	}
	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			serverPortKey: []nat.PortBinding{{HostIP: "127.0.0.1"}},
		},
		IpcMode: "host",
	}

	name := "toolprobe-browser-" + uuid.New().String()[:8]
	resp, err := l.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	l.containerID = resp.ID

	if err := l.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		l.remove()
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	addr, err := l.hostAddr(ctx)
	if err != nil {
		l.remove()
		return "", err
	}
	if err := waitForPort(ctx, addr, readyTimeout); err != nil {
		l.remove()
		return "", err
	}

	endpoint := "ws://" + addr + "/"
	l.logger.Info("Playwright run-server %s ready at %s", name, endpoint)
	return endpoint, nil
}

// Stop stops and removes the container
func (l *Launcher) Stop(ctx context.Context) error {
	defer l.client.Close()
	if l.containerID == "" {
		return nil
	}
	timeout := stopTimeout
	if err := l.client.ContainerStop(ctx, l.containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		l.logger.Warn("Failed to stop browser container: %v", err)
	}
	err := l.client.ContainerRemove(ctx, l.containerID, types.ContainerRemoveOptions{Force: true})
	l.containerID = ""
	if err != nil {
		return fmt.Errorf("failed to remove browser container: %w", err)
	}
	return nil
}

func (l *Launcher) ensureImage(ctx context.Context) error {
	if _, _, err := l.client.ImageInspectWithRaw(ctx, l.image); err == nil {
		return nil
	}
	l.logger.Info("Pulling image %s", l.image)
	reader, err := l.client.ImagePull(ctx, l.image, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", l.image, err)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", l.image, err)
	}
	return nil
}

func (l *Launcher) hostAddr(ctx context.Context) (string, error) {
	info, err := l.client.ContainerInspect(ctx, l.containerID)
	if err != nil {
		return "", fmt.Errorf("failed to inspect container: %w", err)
	}
	if info.NetworkSettings == nil {
		return "", fmt.Errorf("container %s has no network settings", l.containerID)
	}
	bindings := info.NetworkSettings.Ports[serverPortKey]
	if len(bindings) == 0 || bindings[0].HostPort == "" {
		return "", fmt.Errorf("port %s is not published", serverPortKey)
	}
	host := bindings[0].HostIP
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, bindings[0].HostPort), nil
}

func (l *Launcher) remove() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := l.client.ContainerRemove(ctx, l.containerID, types.ContainerRemoveOptions{Force: true}); err != nil {
		l.logger.Warn("Failed to remove browser container %s: %v", l.containerID, err)
	}
	l.containerID = ""
}

// waitForPort dials addr until it accepts a connection
func waitForPort(ctx context.Context, addr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var dialer net.Dialer
	for {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("run-server at %s not ready after %v: %w", addr, timeout, err)
		case <-ticker.C:
		}
	}
}
