package census

import "time"

type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	}
	return "unknown"
}

type Job struct {
	Path     string
	Priority Priority
}

type Stats struct {
	RunID       string    `json:"run_id"`
	Processed   int64     `json:"processed"`
	Failed      int64     `json:"failed"`
	Skipped     int64     `json:"skipped"`
	Unchanged   int64     `json:"unchanged"`
	InQueue     int64     `json:"in_queue"`
	IsRunning   bool      `json:"is_running"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
}

// Artifact names written to the export sink under <run id>/<graph name>/.
const (
	ArtifactGDM   = "gdm.json"
	ArtifactGCM   = "gcm.json"
	ArtifactTiles = "tiles.json"
)
