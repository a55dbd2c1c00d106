package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/trevnoctilla/toolprobe/pkg/logger"
)

// ArtifactConfig locates the capture store
type ArtifactConfig struct {
	Dir string
}

func (c *ArtifactConfig) initialize(log *logger.Logger) error {
	if dir := v.GetString("artifact.dir"); dir != "" {
		c.Dir = dir
		log.Info("Using configured artifact directory: \"%s\"", c.Dir)
	} else if home := v.GetString("toolprobe.home"); home != "" {
		c.Dir = filepath.Join(home, "artifacts")
		log.Info("Using artifact directory from toolprobe.home: \"%s\"", c.Dir)
	} else {
		userHomeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %v", err)
		}
		c.Dir = filepath.Join(userHomeDir, ".toolprobe", "artifacts")
		log.Debug("Using default artifact directory: \"%s\"", c.Dir)
	}

	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %v", err)
	}
	return nil
}
