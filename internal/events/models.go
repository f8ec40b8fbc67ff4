package events

import (
	"fmt"

	"github.com/acme/catalog-console/internal/realtime"
)

// JobEvent is the data of a republished job event.
type JobEvent struct {
	JobID    string   `json:"job_id"`
	Progress *float64 `json:"progress,omitempty"`
	Status   string   `json:"status,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// NewJobEvent maps a realtime event received in the room of jobID to its
// CloudEvents kind and data.
func NewJobEvent(jobID string, e realtime.Event) (string, JobEvent, error) {
	je := JobEvent{JobID: jobID}
	switch e.Name {
	case realtime.EventProgressUpdate:
		var p realtime.ProgressUpdate
		if err := e.Decode(&p); err != nil {
			return "", je, err
		}
		je.Progress = &p.Progress
		je.Status = p.Status
		return ProgressMessageKind, je, nil
	case realtime.EventTaskComplete:
		var p realtime.TaskComplete
		if err := e.Decode(&p); err != nil {
			return "", je, err
		}
		je.Status = p.Status
		return CompleteMessageKind, je, nil
	case realtime.EventTaskFailed:
		var p realtime.TaskFailed
		if err := e.Decode(&p); err != nil {
			return "", je, err
		}
		je.Error = p.Error
		return FailedMessageKind, je, nil
	default:
		return "", je, fmt.Errorf("unknown job event %q", e.Name)
	}
}
