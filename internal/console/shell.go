package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	v1 "github.com/acme/catalog-console/api/v1"
	"github.com/acme/catalog-console/internal/realtime"
	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"
)

const shellHelp = `Commands:
  upload <path>                 upload a CSV or XLSX product file
  products                      show the current product page
  filter sku|name <value>       filter products (no value clears)
  filter active true|false|all  filter by status
  page <n> | next | prev        move between pages
  delete <id>                   delete one product
  delete-all                    delete every product
  webhooks                      list webhooks
  webhook add <url>             subscribe a webhook
  webhook delete <id>           remove a webhook
  webhook test <id>             trigger a test delivery
  status                        show upload and bulk delete status
  help                          show this help
  quit                          leave the console
`

type ShellOption func(s *Shell)

// WithRefreshInterval refreshes the product page in the background every d,
// with a little jitter. Zero disables it.
func WithRefreshInterval(d time.Duration) ShellOption {
	return func(s *Shell) {
		s.refreshInterval = d
	}
}

// WithPanelOptions passes options to the panels built by the shell.
func WithPanelOptions(opts ...Option) ShellOption {
	return func(s *Shell) {
		s.panelOpts = append(s.panelOpts, opts...)
	}
}

// Shell is the interactive console: one line per command, realtime updates
// printed as they arrive. Confirmation prompts are answered on the same
// input.
type Shell struct {
	rt  Realtime
	in  *bufio.Scanner
	out io.Writer

	// lines is fed by a reader goroutine so waiting for input can be
	// abandoned when the run context is done.
	lines    chan string
	readErr  error
	readOnce sync.Once
	done     <-chan struct{}

	outMu           sync.Mutex
	refreshInterval time.Duration
	panelOpts       []Option

	Upload   *UploadPanel
	Products *ProductPanel
	Webhooks *WebhookPanel
}

func NewShell(api API, rt Realtime, in io.Reader, out io.Writer, opts ...ShellOption) *Shell {
	s := &Shell{rt: rt, in: bufio.NewScanner(in), out: out, lines: make(chan string)}
	for _, o := range opts {
		o(s)
	}

	panelOpts := append([]Option{WithConfirmer(ConfirmFunc(s.confirm))}, s.panelOpts...)
	s.Upload = NewUploadPanel(api, rt, panelOpts...)
	s.Products = NewProductPanel(api, rt, panelOpts...)
	s.Webhooks = NewWebhookPanel(api, panelOpts...)
	return s
}

func (s *Shell) printf(format string, args ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

func (s *Shell) render(fn func(w io.Writer)) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fn(s.out)
}

// readLine returns the next input line. ok is false at end of input or once
// done is closed; err is the read error or the reason for stopping.
func (s *Shell) readLine(done <-chan struct{}) (line string, ok bool, err error) {
	s.readOnce.Do(func() {
		go func() {
			defer close(s.lines)
			for s.in.Scan() {
				s.lines <- s.in.Text()
			}
			s.readErr = s.in.Err()
		}()
	})
	select {
	case <-done:
		return "", false, context.Canceled
	case line, ok := <-s.lines:
		if !ok {
			return "", false, s.readErr
		}
		return line, true, nil
	}
}

func (s *Shell) confirm(prompt string) bool {
	s.printf("%s [y/N]: ", prompt)
	line, ok, _ := s.readLine(s.done)
	if !ok {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// Run reads commands until quit, end of input or ctx is done. A read
// blocked on the input is abandoned when ctx is done; the reader goroutine
// exits once the input is closed.
func (s *Shell) Run(ctx context.Context) error {
	s.done = ctx.Done()
	s.Upload.Attach()
	s.Products.Attach(ctx)
	offs := []func(){
		s.rt.OnProgress(func(e realtime.ProgressUpdate) {
			s.printf("[job] %s\n", UploadState{Status: e.Status, Progress: e.Progress}.ProgressText())
		}),
		s.rt.OnComplete(func(e realtime.TaskComplete) {
			s.printf("[job] %s\n", e.Status)
		}),
		s.rt.OnFailed(func(e realtime.TaskFailed) {
			s.printf("[job] Error: %s\n", e.Error)
		}),
	}
	defer func() {
		for _, off := range offs {
			off()
		}
		s.Products.Detach()
		s.Upload.Detach()
	}()

	_ = s.Products.Refresh(ctx)
	_ = s.Webhooks.Refresh(ctx)

	if s.refreshInterval > 0 {
		refreshCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go s.autoRefresh(refreshCtx)
	}

	s.printf("Acme Inc. Product Importer. Type 'help' for commands.\n")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.printf("> ")
		line, ok, err := s.readLine(ctx.Done())
		if !ok {
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if quit := s.Exec(ctx, line); quit {
			return nil
		}
	}
}

func (s *Shell) autoRefresh(ctx context.Context) {
	ticker := jitterbug.New(s.refreshInterval, &jitterbug.Norm{Stdev: 30 * time.Millisecond, Mean: 0})
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		_ = s.Products.Refresh(ctx)
	}
}

// Exec runs one command line and reports whether the shell should exit.
func (s *Shell) Exec(ctx context.Context, line string) bool {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)
	logger := zap.S().Named("shell")
	logger.Debugw("command", "cmd", cmd)

	switch cmd {
	case "help":
		s.printf("%s", shellHelp)
	case "quit", "exit":
		return true
	case "upload":
		s.upload(ctx, rest)
	case "products":
		_ = s.Products.Refresh(ctx)
		s.showProducts()
	case "filter":
		s.filter(ctx, rest)
	case "page":
		n, err := strconv.Atoi(rest)
		if err != nil {
			s.printf("page needs a number\n")
			return false
		}
		_ = s.Products.GoToPage(ctx, n)
		s.showProducts()
	case "next":
		_ = s.Products.NextPage(ctx)
		s.showProducts()
	case "prev":
		_ = s.Products.PrevPage(ctx)
		s.showProducts()
	case "delete":
		id, ok := s.parseID(rest)
		if !ok {
			return false
		}
		if err := s.Products.Delete(ctx, id); err != nil {
			s.reportError(err)
			return false
		}
		s.showProducts()
	case "delete-all":
		if _, err := s.Products.DeleteAll(ctx); errors.Is(err, ErrNotConfirmed) {
			s.printf("Cancelled.\n")
			return false
		}
		s.showDeleteStatus()
	case "webhooks":
		_ = s.Webhooks.Refresh(ctx)
		s.showWebhooks()
	case "webhook":
		s.webhook(ctx, rest)
	case "status":
		s.render(func(w io.Writer) { RenderUpload(w, s.Upload.Snapshot()) })
		s.showDeleteStatus()
	default:
		s.printf("unknown command %q, type 'help' for the list\n", cmd)
	}
	return false
}

func (s *Shell) upload(ctx context.Context, path string) {
	if path != "" {
		s.Upload.Select(path)
	}
	jobID, err := s.Upload.Submit(ctx)
	switch {
	case errors.Is(err, ErrUploadInFlight):
		s.printf("Processing... wait for the current import to finish.\n")
	case err != nil:
		s.render(func(w io.Writer) { RenderUpload(w, s.Upload.Snapshot()) })
	default:
		s.printf("%s (job %s)\n", s.Upload.Snapshot().Status, jobID)
	}
}

func (s *Shell) filter(ctx context.Context, args string) {
	field, value, _ := strings.Cut(args, " ")
	value = strings.TrimSpace(value)
	switch field {
	case "sku":
		_ = s.Products.SetSkuFilter(ctx, value)
	case "name":
		_ = s.Products.SetNameFilter(ctx, value)
	case "active":
		active, ok := v1.ParseActiveFilter(value)
		if !ok {
			s.printf("active must be true, false or all\n")
			return
		}
		_ = s.Products.SetActiveFilter(ctx, active)
	default:
		s.printf("filter needs sku, name or active\n")
		return
	}
	s.showProducts()
}

func (s *Shell) webhook(ctx context.Context, args string) {
	sub, rest, _ := strings.Cut(args, " ")
	rest = strings.TrimSpace(rest)
	switch sub {
	case "add":
		if err := s.Webhooks.Add(ctx, rest); err != nil {
			s.reportError(err)
			return
		}
		s.showWebhooks()
	case "delete":
		id, ok := s.parseID(rest)
		if !ok {
			return
		}
		if err := s.Webhooks.Delete(ctx, id); err != nil {
			s.reportError(err)
			return
		}
		s.showWebhooks()
	case "test":
		id, ok := s.parseID(rest)
		if !ok {
			return
		}
		result, _ := s.Webhooks.Test(ctx, id)
		s.printf("%s\n", result)
	default:
		s.printf("webhook needs add, delete or test\n")
	}
}

func (s *Shell) parseID(arg string) (int64, bool) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		s.printf("invalid id %q\n", arg)
		return 0, false
	}
	return id, true
}

func (s *Shell) reportError(err error) {
	switch {
	case errors.Is(err, ErrNotConfirmed):
		s.printf("Cancelled.\n")
	case errors.Is(err, ErrURLRequired):
		s.printf("Enter a webhook URL.\n")
	default:
		s.printf("Error: %v\n", err)
	}
}

func (s *Shell) showProducts() {
	s.render(func(w io.Writer) { RenderProducts(w, s.Products.Snapshot()) })
}

func (s *Shell) showWebhooks() {
	s.render(func(w io.Writer) { RenderWebhooks(w, s.Webhooks.Snapshot()) })
}

func (s *Shell) showDeleteStatus() {
	st := s.Products.Snapshot()
	if st.DeleteStatus != "" {
		s.printf("%s\n", st.DeleteStatus)
	}
	if st.DeleteError != "" {
		s.printf("%s\n", st.DeleteError)
	}
}
