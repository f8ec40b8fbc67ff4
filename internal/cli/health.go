package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type HealthOptions struct {
	GlobalOptions
}

func DefaultHealthOptions() *HealthOptions {
	return &HealthOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdHealth() *cobra.Command {
	o := DefaultHealthOptions()
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the catalog API is up.",
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

func (o *HealthOptions) Run(ctx context.Context, args []string) error {
	c, err := o.Client()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	health, err := c.Health(ctx)
	if err != nil {
		return fmt.Errorf("checking health of %s: %w", c.Server(), err)
	}
	o.printf("%s\n", health.Status)
	return nil
}
