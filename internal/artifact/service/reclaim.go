package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	model "github.com/trevnoctilla/toolprobe/pkg/artifact"
)

// Reclaim removes artifacts older than the configured age and run
// directories left empty
func (s *ArtifactService) Reclaim(ctx context.Context) (*model.ReclaimResult, error) {
	cutoff := time.Now().Add(-s.maxAge)
	result := &model.ReclaimResult{Removed: []model.Stat{}}
	emptyDirs := make(map[string]bool)

	err := filepath.Walk(s.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Error accessing path %s: %v", path, err))
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == s.dir || info.IsDir() {
			return nil
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}

		runDir := filepath.Dir(path)
		stat := s.stat(filepath.Base(runDir), path, info)
		if err := os.Remove(path); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Error removing %s: %v", path, err))
			return nil
		}
		result.Removed = append(result.Removed, stat)
		emptyDirs[runDir] = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking artifact directory: %v", err)
	}

	for dir := range emptyDirs {
		if dir == s.dir {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Error checking directory %s: %v", dir, err))
			continue
		}
		if len(entries) == 0 {
			if err := os.Remove(dir); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("Error removing empty directory %s: %v", dir, err))
			}
		}
	}

	result.Success = len(result.Errors) == 0
	result.Message = fmt.Sprintf("Reclaimed %d artifacts", len(result.Removed))
	s.log.Info("%s", result.Message)
	return result, nil
}
