package cli

import (
	"context"
	"fmt"

	v1 "github.com/acme/catalog-console/api/v1"
	"github.com/acme/catalog-console/internal/validator"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func NewCmdCreate() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a resource",
	}
	cmd.AddCommand(NewCmdCreateProduct())
	cmd.AddCommand(NewCmdCreateWebhook())
	return cmd
}

type CreateProductOptions struct {
	GlobalOptions

	Sku         string
	Name        string
	Description string
	Inactive    bool
}

func DefaultCreateProductOptions() *CreateProductOptions {
	return &CreateProductOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdCreateProduct() *cobra.Command {
	o := DefaultCreateProductOptions()
	cmd := &cobra.Command{
		Use:     "product",
		Short:   "Create a product",
		Example: "create product --sku abc-1 --name Widget --description 'A widget'",
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

func (o *CreateProductOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVar(&o.Sku, "sku", o.Sku, "SKU of the product (required)")
	fs.StringVar(&o.Name, "name", o.Name, "Name of the product (required)")
	fs.StringVar(&o.Description, "description", o.Description, "Description of the product")
	fs.BoolVar(&o.Inactive, "inactive", o.Inactive, "Create the product as inactive")
}

func (o *CreateProductOptions) body() v1.ProductCreate {
	active := !o.Inactive
	body := v1.ProductCreate{
		Sku:    o.Sku,
		Name:   o.Name,
		Active: &active,
	}
	if o.Description != "" {
		body.Description = &o.Description
	}
	return body
}

func (o *CreateProductOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	return validator.Default().Struct(o.body())
}

func (o *CreateProductOptions) Run(ctx context.Context, args []string) error {
	c, err := o.Client()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	product, err := c.CreateProduct(ctx, o.body())
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	o.printf("%d\n", product.Id)
	return nil
}

type CreateWebhookOptions struct {
	GlobalOptions

	Url       string
	EventType string
	Disabled  bool
}

func DefaultCreateWebhookOptions() *CreateWebhookOptions {
	return &CreateWebhookOptions{
		GlobalOptions: DefaultGlobalOptions(),
		EventType:     "product_update",
	}
}

func NewCmdCreateWebhook() *cobra.Command {
	o := DefaultCreateWebhookOptions()
	cmd := &cobra.Command{
		Use:     "webhook",
		Short:   "Subscribe a webhook",
		Example: "create webhook --url https://example.com/hook",
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

func (o *CreateWebhookOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVar(&o.Url, "url", o.Url, "URL the events are delivered to (required)")
	fs.StringVar(&o.EventType, "event-type", o.EventType, "Event the webhook subscribes to")
	fs.BoolVar(&o.Disabled, "disabled", o.Disabled, "Create the webhook disabled")
}

func (o *CreateWebhookOptions) body() v1.WebhookCreate {
	enabled := !o.Disabled
	return v1.WebhookCreate{
		Url:       o.Url,
		EventType: o.EventType,
		Enabled:   &enabled,
	}
}

func (o *CreateWebhookOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	return validator.Default().Struct(o.body())
}

func (o *CreateWebhookOptions) Run(ctx context.Context, args []string) error {
	c, err := o.Client()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	webhook, err := c.CreateWebhook(ctx, o.body())
	if err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}

	o.printf("%d\n", webhook.Id)
	return nil
}
