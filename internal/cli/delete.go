package cli

import (
	"context"
	"fmt"

	"github.com/acme/catalog-console/internal/client"
	"github.com/acme/catalog-console/internal/realtime"
	"github.com/acme/catalog-console/pkg/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type DeleteOptions struct {
	GlobalOptions

	Yes  bool
	Wait bool
}

func DefaultDeleteOptions() *DeleteOptions {
	return &DeleteOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdDelete() *cobra.Command {
	o := DefaultDeleteOptions()
	cmd := &cobra.Command{
		Use:     "delete (TYPE/ID | products)",
		Short:   "Delete a product, a webhook or every product.",
		Example: "delete product/12\ndelete products --yes --wait",
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

func (o *DeleteOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.BoolVarP(&o.Yes, "yes", "y", o.Yes, "Confirm deleting every product")
	fs.BoolVar(&o.Wait, "wait", o.Wait, "Follow the bulk delete until it completes or fails")
}

func (o *DeleteOptions) Complete(cmd *cobra.Command, args []string) error {
	if err := o.GlobalOptions.Complete(cmd, args); err != nil {
		return err
	}

	return nil
}

func (o *DeleteOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}

	kind, id, err := parseAndValidateKindId(args[0])
	if err != nil {
		return err
	}
	switch {
	case kind == WebhookKind && id == nil:
		return fmt.Errorf("deleting every webhook is not supported, use webhook/ID")
	case kind == ProductKind && id == nil && !o.Yes:
		return fmt.Errorf("refusing to delete every product without --yes")
	}
	return nil
}

func (o *DeleteOptions) Run(ctx context.Context, args []string) error {
	c, err := o.Client()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	kind, id, err := parseAndValidateKindId(args[0])
	if err != nil {
		return err
	}
	switch {
	case kind == ProductKind && id != nil:
		if err := c.DeleteProduct(ctx, *id); err != nil {
			return fmt.Errorf("deleting %s/%d: %w", kind, *id, err)
		}
		o.printf("%s/%d deleted\n", kind, *id)
	case kind == ProductKind:
		return o.deleteAllProducts(ctx, c)
	case kind == WebhookKind && id != nil:
		if err := c.DeleteWebhook(ctx, *id); err != nil {
			return fmt.Errorf("deleting %s/%d: %w", kind, *id, err)
		}
		o.printf("%s/%d deleted\n", kind, *id)
	default:
		return fmt.Errorf("unsupported resource kind: %s", kind)
	}

	return nil
}

func (o *DeleteOptions) deleteAllProducts(ctx context.Context, c *client.Client) error {
	var rt *realtime.Client
	if o.Wait {
		var err error
		rt, err = realtime.Dial(ctx, c.Server())
		if err != nil {
			return fmt.Errorf("connecting to realtime channel: %w", err)
		}
		defer rt.Close()
	}

	accepted, err := c.DeleteAllProducts(ctx)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", plural(ProductKind), err)
	}
	if !o.Wait {
		o.printf("%s\n", accepted.JobId)
		return nil
	}
	return o.printJob(ctx, rt, metrics.JobKindBulkDelete, accepted.JobId)
}
