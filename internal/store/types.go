package store

import "time"

type GraphStatus string

const (
	StatusPending GraphStatus = "pending"
	StatusDone    GraphStatus = "done"
	StatusFailed  GraphStatus = "failed"
	StatusSkipped GraphStatus = "skipped"
)

type CountRecord struct {
	Key       string    `json:"key"`
	Task      string    `json:"task"`
	Size      int       `json:"size"`
	Nodes     int       `json:"nodes"`
	Edges     int       `json:"edges"`
	Output    string    `json:"output"`
	CreatedAt time.Time `json:"created_at"`
}

// GraphRecord is one census entry. GDM holds the JSON encoded labelled
// graphlet degree matrix and is empty unless Status is StatusDone.
type GraphRecord struct {
	Name         string      `json:"name"`
	Path         string      `json:"path"`
	ContentHash  string      `json:"content_hash"`
	Encoding     string      `json:"encoding"`
	Status       GraphStatus `json:"status"`
	ErrorMessage string      `json:"error_message,omitempty"`
	RunID        string      `json:"run_id,omitempty"`
	Size         int         `json:"size"`
	Nodes        int         `json:"nodes"`
	Edges        int         `json:"edges"`
	GDM          string      `json:"gdm,omitempty"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

type Stats struct {
	CachedCounts int `json:"cached_counts"`
	Graphs       int `json:"graphs"`
	Done         int `json:"done"`
	Failed       int `json:"failed"`
	Skipped      int `json:"skipped"`
	Pending      int `json:"pending"`
}
