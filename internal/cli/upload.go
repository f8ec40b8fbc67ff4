package cli

import (
	"bytes"
	"context"
	"fmt"

	"github.com/acme/catalog-console/internal/importfile"
	"github.com/acme/catalog-console/internal/realtime"
	"github.com/acme/catalog-console/pkg/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thoas/go-funk"
)

type UploadOptions struct {
	GlobalOptions
	filePath string
	wait     bool
}

func DefaultUploadOptions() *UploadOptions {
	return &UploadOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdUpload() *cobra.Command {
	o := DefaultUploadOptions()
	cmd := &cobra.Command{
		Use:          "upload",
		Short:        "Upload a CSV or XLSX product file",
		Example:      "upload --file-path /path/to/products.csv --wait",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
	}
	o.Bind(cmd.Flags())

	if err := validateFlags(cmd, "file-path"); err != nil {
		panic(err)
	}

	return cmd
}

func validateFlags(cmd *cobra.Command, requiredFlags ...string) error {
	for _, flag := range requiredFlags {
		if err := cmd.MarkFlagRequired(flag); err != nil {
			return err
		}
	}

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if funk.Contains(requiredFlags, f.Name) {
			f.Usage = fmt.Sprintf("%s (required)", f.Usage)
		}
	})

	return nil
}

func (o *UploadOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVar(&o.filePath, "file-path", o.filePath, "Path to the CSV (.csv) or Excel (.xlsx) file to upload")
	fs.BoolVar(&o.wait, "wait", o.wait, "Follow the import until it completes or fails")
}

func (o *UploadOptions) Run(ctx context.Context, args []string) error {
	c, err := o.Client()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	f, err := importfile.Prepare(o.filePath)
	if err != nil {
		return err
	}

	var rt *realtime.Client
	if o.wait {
		rt, err = realtime.Dial(ctx, c.Server())
		if err != nil {
			return fmt.Errorf("connecting to realtime channel: %w", err)
		}
		defer rt.Close()
	}

	accepted, err := c.Upload(ctx, f.Name, bytes.NewReader(f.Content))
	if err != nil {
		return fmt.Errorf("error uploading %s: %w", o.filePath, err)
	}

	if !o.wait {
		o.printf("%s\n", accepted.JobId)
		return nil
	}

	return o.printJob(ctx, rt, metrics.JobKindImport, accepted.JobId)
}
