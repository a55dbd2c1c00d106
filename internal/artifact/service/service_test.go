package service_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trevnoctilla/toolprobe/internal/artifact/service"
	"github.com/trevnoctilla/toolprobe/internal/target"
)

func newService(t *testing.T) (*service.ArtifactService, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "artifacts")
	s, err := service.New(dir, time.Hour)
	require.NoError(t, err)
	return s, dir
}

func TestSaveAndGetCapture(t *testing.T) {
	s, dir := newService(t)
	ctx := context.Background()

	id, err := s.SaveCapture(ctx, "run-1", "Conversion webm q75 web", target.Capture{
		URL:        "http://tools.test/tools/video-converter",
		Markdown:   "Conversion failed: unsupported codec",
		Screenshot: []byte("\x89PNG\r\n\x1a\n"),
	})
	require.NoError(t, err)
	assert.Regexp(t, `^run-1/[0-9a-f]{8}-Conversion-webm-q75-web\.md$`, id)

	png := filepath.Join(dir, id[:len(id)-len(".md")]+".png")
	assert.FileExists(t, png)

	content, err := s.Get(ctx, id)
	require.NoError(t, err)
	defer content.Reader.Close()
	body, err := io.ReadAll(content.Reader)
	require.NoError(t, err)

	assert.Equal(t, "text/markdown; charset=utf-8", content.MimeType)
	assert.Equal(t, int64(len(body)), content.Size)
	assert.Contains(t, string(body), "# Conversion webm q75 web")
	assert.Contains(t, string(body), "URL: http://tools.test/tools/video-converter")
	assert.Contains(t, string(body), "unsupported codec")
}

func TestSaveCaptureWithoutScreenshot(t *testing.T) {
	s, dir := newService(t)

	id, err := s.SaveCapture(context.Background(), "run/../2", "Target", target.Capture{Markdown: "x"})
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, filepath.Dir(id)))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.NotContains(t, filepath.Dir(id), "/", "the run id becomes a single directory")
}

func TestGetRejectsTraversalAndUnknown(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "../../etc/passwd")
	assert.ErrorIs(t, err, service.ErrNotFound, "ids are confined to the store")

	_, err = s.Get(ctx, "run-1/missing.md")
	assert.ErrorIs(t, err, service.ErrNotFound)

	_, err = s.Get(ctx, "")
	assert.Error(t, err)
}

func TestList(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	stats, err := s.List(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, stats)

	_, err = s.SaveCapture(ctx, "run-1", "Target", target.Capture{Markdown: "a", Screenshot: []byte("png")})
	require.NoError(t, err)

	stats, err = s.List(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, stats, 2)
	for _, st := range stats {
		assert.Equal(t, "run-1", st.RunID)
		assert.Contains(t, st.Name, "-Target")
	}
}

func TestReclaim(t *testing.T) {
	s, dir := newService(t)
	ctx := context.Background()

	oldID, err := s.SaveCapture(ctx, "old-run", "Target", target.Capture{Markdown: "old"})
	require.NoError(t, err)
	newID, err := s.SaveCapture(ctx, "new-run", "Target", target.Capture{Markdown: "new"})
	require.NoError(t, err)

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, oldID), past, past))

	res, err := s.Reclaim(ctx)
	require.NoError(t, err)

	assert.True(t, res.Success)
	require.Len(t, res.Removed, 1)
	assert.Equal(t, oldID, res.Removed[0].ID)
	assert.NoDirExists(t, filepath.Join(dir, "old-run"))
	assert.FileExists(t, filepath.Join(dir, newID))
}
