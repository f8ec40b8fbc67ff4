package realtime

import (
	"encoding/json"
	"errors"
)

// Event names of the job channel.
const (
	EventProgressUpdate = "progress_update"
	EventTaskComplete   = "task_complete"
	EventTaskFailed     = "task_failed"
	EventJoinRoom       = "join_room"
)

// Event is a server push as received on the connection.
type Event struct {
	Name string
	Args []json.RawMessage
}

// Decode unmarshals the first argument of the event into v.
func (e Event) Decode(v any) error {
	if len(e.Args) == 0 {
		return errors.New("event has no payload")
	}
	return json.Unmarshal(e.Args[0], v)
}

// ProgressUpdate reports the progress of a running job. JobID is only set by
// servers that include it; rooms already scope delivery.
type ProgressUpdate struct {
	JobID    string  `json:"job_id,omitempty"`
	Progress float64 `json:"progress"`
	Status   string  `json:"status"`
}

type TaskComplete struct {
	JobID  string `json:"job_id,omitempty"`
	Status string `json:"status"`
}

type TaskFailed struct {
	JobID string `json:"job_id,omitempty"`
	Error string `json:"error"`
}

type JoinRoom struct {
	JobID string `json:"job_id"`
}
