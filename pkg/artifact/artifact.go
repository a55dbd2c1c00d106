package artifact

// Stat describes one stored artifact file
type Stat struct {
	ID      string `json:"id"`
	RunID   string `json:"runId"`
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	ModTime string `json:"modTime"`
	Mime    string `json:"mime"`
}

// ReclaimResult lists what a reclaim pass removed
type ReclaimResult struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Removed []Stat   `json:"removed"`
	Errors  []string `json:"errors,omitempty"`
}

// Error is the API error body for artifact requests
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
