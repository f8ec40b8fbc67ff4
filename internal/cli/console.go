package cli

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/acme/catalog-console/internal/console"
	"github.com/acme/catalog-console/internal/events"
	"github.com/acme/catalog-console/internal/realtime"
	"github.com/acme/catalog-console/pkg/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type ConsoleOptions struct {
	GlobalOptions

	RefreshInterval time.Duration
	MetricsAddress  string
	RecordEvents    string

	in io.Reader
}

func DefaultConsoleOptions() *ConsoleOptions {
	return &ConsoleOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdConsole() *cobra.Command {
	o := DefaultConsoleOptions()
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Start the interactive catalog console.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *ConsoleOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.DurationVar(&o.RefreshInterval, "refresh-interval", o.RefreshInterval, "Refresh the product page in the background at this interval (0 disables)")
	fs.StringVar(&o.MetricsAddress, "metrics-address", o.MetricsAddress, "Serve prometheus metrics on this address, e.g. :8080")
	fs.StringVar(&o.RecordEvents, "record-events", o.RecordEvents, "Append every job event as a CloudEvent to this file")
}

func (o *ConsoleOptions) Complete(cmd *cobra.Command, args []string) error {
	if err := o.GlobalOptions.Complete(cmd, args); err != nil {
		return err
	}
	if !cmd.Flags().Changed("refresh-interval") {
		o.RefreshInterval = o.conf.Console.RefreshInterval
	}
	if !cmd.Flags().Changed("metrics-address") {
		o.MetricsAddress = o.conf.Console.MetricsAddress
	}
	o.in = cmd.InOrStdin()
	return nil
}

func (o *ConsoleOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if o.RefreshInterval < 0 {
		return fmt.Errorf("refresh-interval must not be negative")
	}
	return nil
}

func (o *ConsoleOptions) Run(ctx context.Context, args []string) error {
	c, err := o.Client()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	rt, err := realtime.Dial(ctx, c.Server())
	if err != nil {
		return fmt.Errorf("connecting to realtime channel: %w", err)
	}
	defer rt.Close()

	shell := console.NewShell(c, rt, o.in, o.writer(),
		console.WithRefreshInterval(o.RefreshInterval),
		console.WithPanelOptions(console.WithPerPage(o.PerPage())),
	)

	if o.RecordEvents != "" {
		stop, err := o.recordEvents(ctx, rt, shell)
		if err != nil {
			return err
		}
		defer stop()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if o.MetricsAddress != "" {
		listener, err := net.Listen("tcp", o.MetricsAddress)
		if err != nil {
			return fmt.Errorf("creating metrics listener: %w", err)
		}
		g.Go(func() error {
			return metrics.NewServer(o.MetricsAddress, listener).Run(gctx)
		})
	}
	g.Go(func() error {
		defer cancel()
		return shell.Run(gctx)
	})
	return g.Wait()
}

// recordEvents appends every job event received by rt to the record file.
// Events are attributed to the job the panels are following.
func (o *ConsoleOptions) recordEvents(ctx context.Context, rt *realtime.Client, shell *console.Shell) (func(), error) {
	f, err := os.OpenFile(o.RecordEvents, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening event record %s: %w", o.RecordEvents, err)
	}
	producer := events.NewEventProducer(events.NewStdoutWriter(f))

	var offs []func()
	for _, name := range jobEvents {
		offs = append(offs, rt.On(name, func(e realtime.Event) {
			jobID := activeJob(shell)
			if err := producer.WriteJobEvent(ctx, jobID, e); err != nil {
				zap.S().Named("cli").Warnw("failed to record event", "event", e.Name, "error", err)
			}
		}))
	}

	return func() {
		for _, off := range offs {
			off()
		}
		if err := producer.Close(); err != nil {
			zap.S().Named("cli").Warnw("failed to flush event record", "error", err)
		}
		_ = f.Close()
	}, nil
}

// activeJob is the job an incoming event belongs to: the upload in flight,
// else the bulk delete in flight.
func activeJob(shell *console.Shell) string {
	if id := shell.Upload.Snapshot().JobID; id != "" {
		return id
	}
	return shell.Products.Snapshot().DeleteJobID
}
