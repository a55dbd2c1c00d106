package service

import (
	"runtime"
	"time"

	"github.com/trevnoctilla/toolprobe/internal/misc/model"
)

var (
	// Version is the version of the server, set with -ldflags
	Version = "dev"
	// BuildTime is the time when the server was built
	BuildTime = "unknown"
	// CommitID is the git commit ID of the server
	CommitID = "unknown"
)

// MiscService handles miscellaneous operations
type MiscService struct {
	driver string
	tools  int
}

// New creates a new MiscService describing the running driver and catalog
func New(driver string, tools int) *MiscService {
	return &MiscService{driver: driver, tools: tools}
}

func formatBuildTime() string {
	if BuildTime == "unknown" {
		return BuildTime
	}
	t, err := time.Parse(time.RFC3339, BuildTime)
	if err != nil {
		return BuildTime
	}
	return t.Format("Mon Jan 2 15:04:05 2006")
}

// GetVersion returns server version information
func (s *MiscService) GetVersion() *model.VersionInfo {
	return &model.VersionInfo{
		Version:       Version,
		APIVersion:    "v1",
		GoVersion:     runtime.Version(),
		GitCommit:     CommitID,
		BuildTime:     BuildTime,
		FormattedTime: formatBuildTime(),
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
		Driver:        s.driver,
		Tools:         s.tools,
	}
}
