package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/acme/catalog-console/internal/events"
	"github.com/acme/catalog-console/internal/realtime"
	"github.com/acme/catalog-console/pkg/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thoas/go-funk"
	"go.uber.org/zap"
)

const (
	textFormat        = "text"
	cloudeventsFormat = "cloudevents"
)

var legalWatchOutputTypes = []string{textFormat, cloudeventsFormat}

type WatchOptions struct {
	GlobalOptions

	Output string
	Kind   string
}

func DefaultWatchOptions() *WatchOptions {
	return &WatchOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Output:        textFormat,
		Kind:          metrics.JobKindImport,
	}
}

func NewCmdWatch() *cobra.Command {
	o := DefaultWatchOptions()
	cmd := &cobra.Command{
		Use:     "watch JOB_ID",
		Short:   "Follow a job until it completes or fails.",
		Example: "watch 0b7c2d1e-5f0a-4c7e-9d2b-1a4b7e0f3c11 -o cloudevents",
		Args:    cobra.ExactArgs(1),
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

func (o *WatchOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalWatchOutputTypes, ", ")))
	fs.StringVar(&o.Kind, "kind", o.Kind, fmt.Sprintf("Kind of the job, used to label metrics. One of: (%s).", strings.Join(legalJobKinds, ", ")))
}

func (o *WatchOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if strings.TrimSpace(args[0]) == "" {
		return fmt.Errorf("job id must not be empty")
	}
	if !funk.Contains(legalWatchOutputTypes, o.Output) {
		return fmt.Errorf("output format must be one of %s", strings.Join(legalWatchOutputTypes, ", "))
	}
	return validateJobKind(o.Kind)
}

func (o *WatchOptions) Run(ctx context.Context, args []string) error {
	jobID := args[0]

	rt, err := realtime.Dial(ctx, o.ServerUrl)
	if err != nil {
		return fmt.Errorf("connecting to realtime channel: %w", err)
	}
	defer rt.Close()

	if o.Output == textFormat {
		return o.printJob(ctx, rt, o.Kind, jobID)
	}

	producer := events.NewEventProducer(events.NewStdoutWriter(o.writer()))
	last, err := followJob(ctx, rt, o.Kind, jobID, func(e realtime.Event) error {
		return producer.WriteJobEvent(ctx, jobID, e)
	})
	if cerr := producer.Close(); cerr != nil {
		zap.S().Named("cli").Warnw("failed to flush events", "error", cerr)
	}
	if err != nil {
		return err
	}
	return jobError(jobID, last)
}
