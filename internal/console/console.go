// Package console holds the panels of the catalog console as state machines:
// the upload panel, the product list and the webhook manager. Panels own no
// business state; they mirror what the API and the realtime channel report.
//
// Realtime handlers run on the connection's dispatch goroutine while user
// actions run on the caller's goroutine. Every panel guards its state with a
// mutex so both can interleave.
package console

import (
	"context"
	"errors"
	"io"

	v1 "github.com/acme/catalog-console/api/v1"
	"github.com/acme/catalog-console/internal/realtime"
)

var (
	ErrNoFile         = errors.New("no file selected")
	ErrUploadInFlight = errors.New("an upload is already being processed")
	ErrURLRequired    = errors.New("webhook url is required")
	ErrNotConfirmed   = errors.New("action not confirmed")
)

// User-visible messages.
const (
	MsgSelectFile         = "Please select a file."
	MsgUploadFailed       = "File upload failed."
	MsgUploading          = "Uploading..."
	MsgProcessing         = "Processing... (0%)"
	MsgUploadFailedStatus = "Upload Failed"
	MsgDeleting           = "Deletion in progress..."
	MsgBulkDeleteFailed   = "Failed to start bulk delete."
	MsgConfirmDelete      = "Are you sure you want to delete this product?"
	MsgConfirmDeleteAll   = "Are you sure? This cannot be undone."
	MsgTesting            = "Testing..."
	MsgTestFailed         = "Test Failed"
)

// API is the part of the catalog REST client the panels use.
type API interface {
	Upload(ctx context.Context, filename string, r io.Reader) (*v1.JobAccepted, error)
	ListProducts(ctx context.Context, filter v1.ProductFilter, page, perPage int) (*v1.ProductPage, error)
	DeleteProduct(ctx context.Context, id int64) error
	DeleteAllProducts(ctx context.Context) (*v1.JobAccepted, error)
	ListWebhooks(ctx context.Context) ([]v1.Webhook, error)
	CreateWebhook(ctx context.Context, body v1.WebhookCreate) (*v1.Webhook, error)
	UpdateWebhook(ctx context.Context, id int64, body v1.WebhookUpdate) (*v1.Webhook, error)
	DeleteWebhook(ctx context.Context, id int64) error
	TestWebhook(ctx context.Context, id int64) (*v1.WebhookTestResult, error)
}

// Realtime is the shared job channel.
type Realtime interface {
	JoinRoom(ctx context.Context, jobID string) error
	OnProgress(h func(realtime.ProgressUpdate)) (off func())
	OnComplete(h func(realtime.TaskComplete)) (off func())
	OnFailed(h func(realtime.TaskFailed)) (off func())
}

// Confirmer asks the user to confirm a destructive action.
type Confirmer interface {
	Confirm(prompt string) bool
}

type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool {
	return f(prompt)
}

// AlwaysConfirm accepts every prompt.
var AlwaysConfirm Confirmer = ConfirmFunc(func(string) bool { return true })

type options struct {
	confirm  Confirmer
	perPage  int
	onChange func()
}

type Option func(o *options)

// WithConfirmer sets who answers confirmation prompts. The default declines.
func WithConfirmer(c Confirmer) Option {
	return func(o *options) {
		o.confirm = c
	}
}

// WithPerPage sets the product page size. Zero lets the server decide.
func WithPerPage(n int) Option {
	return func(o *options) {
		o.perPage = n
	}
}

// WithOnChange registers a hook called after every state change, outside the
// panel lock.
func WithOnChange(fn func()) Option {
	return func(o *options) {
		o.onChange = fn
	}
}

func newOptions(opts []Option) options {
	o := options{
		confirm:  ConfirmFunc(func(string) bool { return false }),
		onChange: func() {},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// acceptsJob reports whether an event carrying eventJobID belongs to the job
// the panel waits for. Servers that scope events by room omit the id.
func acceptsJob(active, eventJobID string) bool {
	if active == "" {
		return false
	}
	return eventJobID == "" || eventJobID == active
}
