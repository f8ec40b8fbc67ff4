package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/acme/catalog-console/internal/cli"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := NewCatalogCtlCommand()
	err := command.ExecuteContext(ctx)
	_ = zap.L().Sync()
	if err != nil {
		stop()
		os.Exit(1)
	}
}

func NewCatalogCtlCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalogctl [flags] [options]",
		Short: "catalogctl manages the product catalog: imports, products and webhooks.",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	cmd.AddCommand(cli.NewCmdUpload())
	cmd.AddCommand(cli.NewCmdGet())
	cmd.AddCommand(cli.NewCmdCreate())
	cmd.AddCommand(cli.NewCmdUpdate())
	cmd.AddCommand(cli.NewCmdDelete())
	cmd.AddCommand(cli.NewCmdTest())
	cmd.AddCommand(cli.NewCmdWatch())
	cmd.AddCommand(cli.NewCmdConsole())
	cmd.AddCommand(cli.NewCmdHealth())
	cmd.AddCommand(cli.NewCmdConfigure())
	cmd.AddCommand(cli.NewCmdVersion())

	return cmd
}
