package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trevnoctilla/toolprobe/internal/target"
	"github.com/trevnoctilla/toolprobe/pkg/logger"
)

// ErrNotFound is returned for unknown artifact IDs
var ErrNotFound = errors.New("artifact not found")

const defaultMaxAge = 14 * 24 * time.Hour

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// ArtifactService stores diagnostic captures under one directory, one
// subdirectory per run
type ArtifactService struct {
	dir    string
	maxAge time.Duration
	log    *logger.Logger
}

// New creates the store, making dir if needed
func New(dir string, maxAge time.Duration) (*ArtifactService, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %v", err)
	}
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	log := logger.New().With("component", "artifact")
	log.Debug("Artifact service initialized with directory: %s", dir)
	return &ArtifactService{dir: dir, maxAge: maxAge, log: log}, nil
}

// SaveCapture writes the markdown and screenshot of c and returns the
// artifact ID of the markdown file; the screenshot shares its stem
func (s *ArtifactService) SaveCapture(ctx context.Context, runID, outcome string, c target.Capture) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	stem := uuid.New().String()[:8] + "-" + slug(outcome)
	runDir := filepath.Join(s.dir, slug(runID))
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", fmt.Errorf("creating run directory: %w", err)
	}

	md := fmt.Sprintf("# %s\n\nURL: %s\n\n%s\n", outcome, c.URL, c.Markdown)
	if err := os.WriteFile(filepath.Join(runDir, stem+".md"), []byte(md), 0644); err != nil {
		return "", fmt.Errorf("writing capture: %w", err)
	}
	if len(c.Screenshot) > 0 {
		if err := os.WriteFile(filepath.Join(runDir, stem+".png"), c.Screenshot, 0644); err != nil {
			return "", fmt.Errorf("writing screenshot: %w", err)
		}
	}
	return slug(runID) + "/" + stem + ".md", nil
}

// resolve maps an artifact ID to a path inside the store
func (s *ArtifactService) resolve(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("artifact id is required")
	}
	clean := filepath.Clean("/" + id)
	full := filepath.Join(s.dir, clean)
	if !strings.HasPrefix(full, filepath.Clean(s.dir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid artifact id: %s", id)
	}
	return full, nil
}

func slug(s string) string {
	out := strings.Trim(unsafeChars.ReplaceAllString(s, "-"), "-")
	if out == "" {
		return "artifact"
	}
	return out
}
