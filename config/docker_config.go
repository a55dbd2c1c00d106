package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/trevnoctilla/toolprobe/pkg/logger"
)

// DockerConfig addresses the daemon used to launch the browser server
type DockerConfig struct {
	Host string // Docker daemon socket/host
}

func (c *DockerConfig) initialize(log *logger.Logger) error {
	if host := v.GetString("docker.host"); host != "" {
		c.Host = host
		log.Info("Using Docker host: \"%s\"", c.Host)
		return nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get user home directory: %v", err)
	}

	for _, socket := range []string{
		filepath.Join(homeDir, ".docker", "run", "docker.sock"),
		"/var/run/docker.sock",
	} {
		if _, err := os.Stat(socket); err == nil {
			c.Host = fmt.Sprintf("unix://%s", socket)
			log.Info("Using Docker host: \"%s\"", c.Host)
			return nil
		}
	}

	return fmt.Errorf("no Docker socket found in ~/.docker/run/docker.sock or /var/run/docker.sock")
}
