package console

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/acme/catalog-console/internal/importfile"
	"github.com/acme/catalog-console/internal/realtime"
	"go.uber.org/zap"
)

// UploadState is a snapshot of the upload panel.
type UploadState struct {
	File     string
	Progress float64
	Status   string
	Error    string
	JobID    string
}

// Busy reports whether a job is being processed; submit is disabled then.
func (s UploadState) Busy() bool {
	return s.JobID != ""
}

// ProgressText is the status followed by the rounded percentage while the job
// is between 0 and 100.
func (s UploadState) ProgressText() string {
	if s.Progress > 0 && s.Progress < 100 {
		return fmt.Sprintf("%s %d%%", s.Status, int(math.Round(s.Progress)))
	}
	return s.Status
}

type UploadPanel struct {
	api  API
	rt   Realtime
	opts options

	mu    sync.Mutex
	state UploadState
	// lastJob is the most recent job joined; its terminal events still apply
	// after the active job id is cleared.
	lastJob string
	offs    []func()
}

func NewUploadPanel(api API, rt Realtime, opts ...Option) *UploadPanel {
	return &UploadPanel{api: api, rt: rt, opts: newOptions(opts)}
}

// Attach registers the realtime handlers.
func (p *UploadPanel) Attach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.offs != nil {
		return
	}
	p.offs = []func(){
		p.rt.OnProgress(p.onProgress),
		p.rt.OnComplete(p.onComplete),
		p.rt.OnFailed(p.onFailed),
	}
}

// Detach removes the handlers registered by Attach.
func (p *UploadPanel) Detach() {
	p.mu.Lock()
	offs := p.offs
	p.offs = nil
	p.mu.Unlock()
	for _, off := range offs {
		off()
	}
}

func (p *UploadPanel) Snapshot() UploadState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *UploadPanel) update(fn func(s *UploadState)) {
	p.mu.Lock()
	fn(&p.state)
	p.mu.Unlock()
	p.opts.onChange()
}

// Select records the file to upload and resets progress, status and error.
func (p *UploadPanel) Select(path string) {
	p.update(func(s *UploadState) {
		s.File = path
		s.Progress = 0
		s.Status = ""
		s.Error = ""
	})
}

// Submit uploads the selected file and joins the room of the resulting job.
// It returns the job id.
func (p *UploadPanel) Submit(ctx context.Context) (string, error) {
	logger := zap.S().Named("upload_panel")

	var (
		file string
		err  error
	)
	p.update(func(s *UploadState) {
		switch {
		case s.File == "":
			s.Error = MsgSelectFile
			err = ErrNoFile
		case s.JobID != "":
			err = ErrUploadInFlight
		default:
			file = s.File
			s.Status = MsgUploading
		}
	})
	if err != nil {
		return "", err
	}

	f, err := importfile.Prepare(file)
	if err != nil {
		p.update(func(s *UploadState) {
			s.Error = err.Error()
			s.Status = ""
		})
		return "", err
	}

	job, err := p.api.Upload(ctx, f.Name, bytes.NewReader(f.Content))
	if err != nil {
		logger.Errorw("upload failed", "file", file, "error", err)
		p.update(func(s *UploadState) {
			s.Error = MsgUploadFailed
			s.Status = ""
		})
		return "", err
	}

	// the job id is held before joining so events that follow the join are
	// not dropped
	p.update(func(s *UploadState) {
		s.JobID = job.JobId
		s.Status = MsgProcessing
		p.lastJob = job.JobId
	})

	if err := p.rt.JoinRoom(ctx, job.JobId); err != nil {
		logger.Errorw("failed to join job room", "job_id", job.JobId, "error", err)
		p.update(func(s *UploadState) {
			s.JobID = ""
			s.Error = MsgUploadFailed
			s.Status = ""
			p.lastJob = ""
		})
		return "", err
	}

	logger.Debugw("import started", "job_id", job.JobId, "file", f.Name, "converted", f.Converted)
	return job.JobId, nil
}

func (p *UploadPanel) onProgress(e realtime.ProgressUpdate) {
	applied := false
	p.update(func(s *UploadState) {
		if !acceptsJob(s.JobID, e.JobID) {
			return
		}
		s.Progress = e.Progress
		s.Status = e.Status
		s.Error = ""
		applied = true
	})
	if !applied {
		zap.S().Named("upload_panel").Debugw("ignoring progress of another job", "job_id", e.JobID)
	}
}

// acceptsTerminal is acceptsJob extended to the last job, so a late terminal
// event overwrites the outcome shown. Callers hold p.mu.
func (p *UploadPanel) acceptsTerminal(s *UploadState, eventJobID string) bool {
	if s.JobID != "" {
		return acceptsJob(s.JobID, eventJobID)
	}
	return acceptsJob(p.lastJob, eventJobID)
}

func (p *UploadPanel) onComplete(e realtime.TaskComplete) {
	p.update(func(s *UploadState) {
		if !p.acceptsTerminal(s, e.JobID) {
			return
		}
		s.Status = e.Status
		s.Progress = 100
		s.JobID = ""
	})
}

func (p *UploadPanel) onFailed(e realtime.TaskFailed) {
	p.update(func(s *UploadState) {
		if !p.acceptsTerminal(s, e.JobID) {
			return
		}
		s.Error = "Error: " + e.Error
		s.Status = MsgUploadFailedStatus
		s.JobID = ""
	})
}
