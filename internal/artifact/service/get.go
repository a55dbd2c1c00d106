package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	model "github.com/trevnoctilla/toolprobe/pkg/artifact"
)

// Content is an open artifact
type Content struct {
	Reader   io.ReadCloser
	MimeType string
	Size     int64
}

// Get opens an artifact by ID
func (s *ArtifactService) Get(ctx context.Context, id string) (*Content, error) {
	full, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("error getting artifact info: %v", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a run directory", ErrNotFound, id)
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("error opening artifact: %v", err)
	}
	return &Content{Reader: f, MimeType: s.mimeType(full), Size: info.Size()}, nil
}

// List returns the artifacts of one run, oldest first
func (s *ArtifactService) List(ctx context.Context, runID string) ([]model.Stat, error) {
	dir, err := s.resolve(slug(runID))
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []model.Stat{}, nil
		}
		return nil, err
	}
	stats := make([]model.Stat, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || info.IsDir() {
			continue
		}
		stats = append(stats, s.stat(slug(runID), filepath.Join(dir, e.Name()), info))
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].ModTime < stats[j].ModTime })
	return stats, nil
}

func (s *ArtifactService) stat(runID, full string, info os.FileInfo) model.Stat {
	return model.Stat{
		ID:      runID + "/" + info.Name(),
		RunID:   runID,
		Name:    strings.TrimSuffix(info.Name(), filepath.Ext(info.Name())),
		Size:    info.Size(),
		ModTime: info.ModTime().Format("2006-01-02T15:04:05Z07:00"),
		Mime:    s.mimeType(full),
	}
}

func (s *ArtifactService) mimeType(path string) string {
	if strings.HasSuffix(path, ".md") {
		return "text/markdown; charset=utf-8"
	}
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		s.log.Error("Error detecting MIME type: %v", err)
		return "application/octet-stream"
	}
	return mime.String()
}
