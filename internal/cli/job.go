package cli

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/acme/catalog-console/internal/realtime"
	"github.com/acme/catalog-console/pkg/metrics"
	"github.com/thoas/go-funk"
	"go.uber.org/zap"
)

var jobEvents = []string{
	realtime.EventProgressUpdate,
	realtime.EventTaskComplete,
	realtime.EventTaskFailed,
}

// followJob joins the room of jobID on rt and hands every job event to
// onEvent until the job completes or fails. The terminal event is returned.
// The outcome is counted under kind.
func followJob(ctx context.Context, rt *realtime.Client, kind, jobID string, onEvent func(realtime.Event) error) (realtime.Event, error) {
	events := make(chan realtime.Event, 16)
	stop := make(chan struct{})
	defer close(stop)

	for _, name := range jobEvents {
		off := rt.On(name, func(e realtime.Event) {
			select {
			case events <- e:
			case <-stop:
			}
		})
		defer off()
	}

	if err := rt.JoinRoom(ctx, jobID); err != nil {
		return realtime.Event{}, fmt.Errorf("joining room of job %s: %w", jobID, err)
	}
	zap.S().Named("cli").Debugw("following job", "job_id", jobID, "kind", kind)

	for {
		select {
		case <-ctx.Done():
			return realtime.Event{}, ctx.Err()
		case <-rt.Done():
			if err := rt.Err(); err != nil {
				return realtime.Event{}, fmt.Errorf("realtime connection lost: %w", err)
			}
			return realtime.Event{}, realtime.ErrClosed
		case e := <-events:
			if err := onEvent(e); err != nil {
				return e, err
			}
			switch e.Name {
			case realtime.EventTaskComplete:
				metrics.IncreaseJobOutcomesTotalMetric(kind, metrics.JobOutcomeComplete)
				return e, nil
			case realtime.EventTaskFailed:
				metrics.IncreaseJobOutcomesTotalMetric(kind, metrics.JobOutcomeFailed)
				return e, nil
			}
		}
	}
}

// printJob follows jobID and prints one line per event. A failed job is
// returned as an error.
func (o *GlobalOptions) printJob(ctx context.Context, rt *realtime.Client, kind, jobID string) error {
	o.printf("Job %s accepted\n", jobID)
	last, err := followJob(ctx, rt, kind, jobID, func(e realtime.Event) error {
		line, err := describeJobEvent(e)
		if err != nil {
			return err
		}
		o.printf("%s\n", line)
		return nil
	})
	if err != nil {
		return err
	}
	return jobError(jobID, last)
}

// describeJobEvent is the one-line text rendering of a job event.
func describeJobEvent(e realtime.Event) (string, error) {
	switch e.Name {
	case realtime.EventProgressUpdate:
		var p realtime.ProgressUpdate
		if err := e.Decode(&p); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %d%%", p.Status, int(math.Round(p.Progress))), nil
	case realtime.EventTaskComplete:
		var p realtime.TaskComplete
		if err := e.Decode(&p); err != nil {
			return "", err
		}
		return p.Status, nil
	case realtime.EventTaskFailed:
		var p realtime.TaskFailed
		if err := e.Decode(&p); err != nil {
			return "", err
		}
		return "Error: " + p.Error, nil
	default:
		return "", fmt.Errorf("unknown job event %q", e.Name)
	}
}

// jobError turns a task_failed event into an error; nil otherwise.
func jobError(jobID string, e realtime.Event) error {
	if e.Name != realtime.EventTaskFailed {
		return nil
	}
	var p realtime.TaskFailed
	if err := e.Decode(&p); err != nil {
		return fmt.Errorf("job %s failed", jobID)
	}
	return fmt.Errorf("job %s failed: %s", jobID, p.Error)
}

var legalJobKinds = []string{metrics.JobKindImport, metrics.JobKindBulkDelete}

func validateJobKind(kind string) error {
	if !funk.Contains(legalJobKinds, kind) {
		return fmt.Errorf("job kind must be one of %s", strings.Join(legalJobKinds, ", "))
	}
	return nil
}
