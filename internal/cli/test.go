package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type TestOptions struct {
	GlobalOptions
}

func DefaultTestOptions() *TestOptions {
	return &TestOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdTest() *cobra.Command {
	o := DefaultTestOptions()
	cmd := &cobra.Command{
		Use:     "test webhook/ID",
		Short:   "Trigger a test delivery of a webhook.",
		Example: "test webhook/3",
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

func (o *TestOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
}

func (o *TestOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}

	kind, id, err := parseAndValidateKindId(args[0])
	if err != nil {
		return err
	}
	if kind != WebhookKind || id == nil {
		return fmt.Errorf("only webhook/ID can be tested")
	}
	return nil
}

func (o *TestOptions) Run(ctx context.Context, args []string) error {
	c, err := o.Client()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	_, id, err := parseAndValidateKindId(args[0])
	if err != nil {
		return err
	}

	result, err := c.TestWebhook(ctx, *id)
	if err != nil {
		return fmt.Errorf("testing %s/%d: %w", WebhookKind, *id, err)
	}

	if result.Message != "" {
		o.printf("%s\n", result.Message)
	}
	o.printf("Status: %d\n", result.DummyResponse.Status)
	if result.DummyResponse.Body != "" {
		o.printf("Body: %s\n", result.DummyResponse.Body)
	}
	return nil
}
