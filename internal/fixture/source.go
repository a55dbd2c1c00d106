package fixture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/trevnoctilla/toolprobe/pkg/logger"
	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

const defaultMaxBytes = 200 << 20

// Source resolves a fixture spec to a local file, trying candidates in order
type Source struct {
	// BaseDir anchors relative candidate paths
	BaseDir string
	// TempDir receives downloaded fixtures
	TempDir  string
	Client   *http.Client
	MaxBytes int64
	log      *logger.Logger
}

// NewSource returns a source rooted at baseDir
func NewSource(baseDir, tempDir string) *Source {
	return &Source{
		BaseDir:  baseDir,
		TempDir:  tempDir,
		Client:   &http.Client{Timeout: 30 * time.Second},
		MaxBytes: defaultMaxBytes,
		log:      logger.New().With("component", "fixture"),
	}
}

// Fetch returns the first candidate that can be read and matches the
// accepted MIME prefix. When every candidate fails the error wraps
// probe.ErrFixtureUnavailable.
func (s *Source) Fetch(ctx context.Context, spec probe.FixtureSpec) (probe.FixtureFile, error) {
	var errs []error
	for _, candidate := range spec.Candidates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		f, err := s.fetchOne(ctx, candidate)
		if err == nil {
			err = checkAccept(f.MimeType, spec.Accept)
		}
		if err != nil {
			s.log.Debug("Fixture candidate %s rejected: %v", candidate, err)
			errs = append(errs, fmt.Errorf("%s: %w", candidate, err))
			continue
		}
		if spec.Name != "" {
			f.Name = spec.Name
		}
		s.log.Info("Using fixture %s (%s, %d bytes)", f.Source, f.MimeType, len(f.Data))
		return f, nil
	}
	return probe.FixtureFile{}, fmt.Errorf("%w: tried %d candidates: %w",
		probe.ErrFixtureUnavailable, len(spec.Candidates), errors.Join(errs...))
}

func (s *Source) fetchOne(ctx context.Context, candidate string) (probe.FixtureFile, error) {
	if u, err := url.Parse(candidate); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return s.download(ctx, u)
	}
	return s.readLocal(candidate)
}

func (s *Source) readLocal(candidate string) (probe.FixtureFile, error) {
	p := candidate
	if !filepath.IsAbs(p) && s.BaseDir != "" {
		p = filepath.Join(s.BaseDir, p)
	}
	info, err := os.Stat(p)
	if err != nil {
		return probe.FixtureFile{}, err
	}
	if info.IsDir() {
		return probe.FixtureFile{}, fmt.Errorf("is a directory")
	}
	if info.Size() > s.maxBytes() {
		return probe.FixtureFile{}, fmt.Errorf("file is %d bytes, limit %d", info.Size(), s.maxBytes())
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return probe.FixtureFile{}, err
	}
	if len(data) == 0 {
		return probe.FixtureFile{}, fmt.Errorf("file is empty")
	}
	return probe.FixtureFile{
		Name:     filepath.Base(p),
		MimeType: mimetype.Detect(data).String(),
		Path:     p,
		Source:   candidate,
		Data:     data,
	}, nil
}

func (s *Source) download(ctx context.Context, u *url.URL) (probe.FixtureFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return probe.FixtureFile{}, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return probe.FixtureFile{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return probe.FixtureFile{}, fmt.Errorf("unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes()+1))
	if err != nil {
		return probe.FixtureFile{}, err
	}
	if int64(len(data)) > s.maxBytes() {
		return probe.FixtureFile{}, fmt.Errorf("body exceeds %d bytes", s.maxBytes())
	}
	if len(data) == 0 {
		return probe.FixtureFile{}, fmt.Errorf("empty body")
	}

	mt := mimetype.Detect(data)
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = "fixture" + mt.Extension()
	}

	dir := s.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return probe.FixtureFile{}, err
	}
	tmp, err := os.CreateTemp(dir, "fixture-*-"+name)
	if err != nil {
		return probe.FixtureFile{}, err
	}
	defer tmp.Close()
	if _, err := tmp.Write(data); err != nil {
		return probe.FixtureFile{}, err
	}

	return probe.FixtureFile{
		Name:     name,
		MimeType: mt.String(),
		Path:     tmp.Name(),
		Source:   u.String(),
		Data:     data,
	}, nil
}

func (s *Source) maxBytes() int64 {
	if s.MaxBytes <= 0 {
		return defaultMaxBytes
	}
	return s.MaxBytes
}

func checkAccept(mimeType, accept string) error {
	if accept == "" {
		return nil
	}
	for _, a := range strings.Split(accept, ",") {
		if strings.HasPrefix(mimeType, strings.TrimSpace(a)) {
			return nil
		}
	}
	return fmt.Errorf("mime type %s does not match %s", mimeType, accept)
}
