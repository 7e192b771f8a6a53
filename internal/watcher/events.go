package watcher

import (
	"time"

	"github.com/fsnotify/fsnotify"
)

type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
	EventRename
)

func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	case EventRename:
		return "rename"
	}
	return "unknown"
}

type FileEvent struct {
	Path      string
	Type      EventType
	Timestamp time.Time
}

func eventType(op fsnotify.Op) (EventType, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return EventCreate, true
	case op.Has(fsnotify.Write):
		return EventModify, true
	case op.Has(fsnotify.Remove):
		return EventDelete, true
	case op.Has(fsnotify.Rename):
		return EventRename, true
	}
	return 0, false
}

// Census queue priorities, matching census.Priority.
const (
	PriorityLow = iota
	PriorityNormal
	PriorityHigh
)

// batchPriority maps the size of a flushed batch to a queue priority. Small
// batches go first.
func batchPriority(events []FileEvent) int {
	switch n := len(events); {
	case n > 10:
		return PriorityLow
	case n >= 3:
		return PriorityNormal
	}
	return PriorityHigh
}
