package cli

import (
	"context"
	"fmt"

	"github.com/acme/catalog-console/internal/client"
	"github.com/spf13/cobra"
)

type ConfigureOptions struct {
	GlobalOptions
}

func DefaultConfigureOptions() *ConfigureOptions {
	return &ConfigureOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdConfigure() *cobra.Command {
	o := DefaultConfigureOptions()
	cmd := &cobra.Command{
		Use:     "configure",
		Short:   "Save the server url and timeout to the client config file.",
		Example: "configure --server-url https://catalog.example.com --timeout 10s",
		Args:    cobra.NoArgs,
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

func (o *ConfigureOptions) Validate(args []string) error {
	if o.ConfigFilePath == "" {
		return fmt.Errorf("configure needs a --config path")
	}
	return o.GlobalOptions.Validate(args)
}

// Run writes the resolved options, so flags and environment end up in the
// file for later runs.
func (o *ConfigureOptions) Run(ctx context.Context, args []string) error {
	service := o.clientConfig().Service
	if service.Timeout.Duration == client.DefaultTimeout {
		service.Timeout = client.Duration{}
	}
	if err := client.WriteConfig(o.ConfigFilePath, service); err != nil {
		return fmt.Errorf("writing client config %s: %w", o.ConfigFilePath, err)
	}
	o.printf("Client configuration written to %s\n", o.ConfigFilePath)
	return nil
}
