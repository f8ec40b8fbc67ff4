package cli

import (
	"context"
	"fmt"

	v1 "github.com/acme/catalog-console/api/v1"
	"github.com/acme/catalog-console/internal/validator"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// UpdateOptions only sends the fields whose flags were set.
type UpdateOptions struct {
	GlobalOptions

	Sku         string
	Name        string
	Description string
	Active      bool
	Url         string
	EventType   string
	Enabled     bool

	changed func(name string) bool
}

func DefaultUpdateOptions() *UpdateOptions {
	return &UpdateOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdUpdate() *cobra.Command {
	o := DefaultUpdateOptions()
	cmd := &cobra.Command{
		Use:     "update TYPE/ID",
		Short:   "Update a product or a webhook.",
		Example: "update product/4 --name 'New name' --active=false\nupdate webhook/2 --enabled=false",
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

func (o *UpdateOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVar(&o.Sku, "sku", o.Sku, "New SKU of the product")
	fs.StringVar(&o.Name, "name", o.Name, "New name of the product")
	fs.StringVar(&o.Description, "description", o.Description, "New description of the product")
	fs.BoolVar(&o.Active, "active", o.Active, "Whether the product is active")
	fs.StringVar(&o.Url, "url", o.Url, "New URL of the webhook")
	fs.StringVar(&o.EventType, "event-type", o.EventType, "New event type of the webhook")
	fs.BoolVar(&o.Enabled, "enabled", o.Enabled, "Whether the webhook is enabled")
}

func (o *UpdateOptions) Complete(cmd *cobra.Command, args []string) error {
	if err := o.GlobalOptions.Complete(cmd, args); err != nil {
		return err
	}
	o.changed = cmd.Flags().Changed
	return nil
}

func (o *UpdateOptions) productBody() v1.ProductUpdate {
	var body v1.ProductUpdate
	if o.changed("sku") {
		body.Sku = &o.Sku
	}
	if o.changed("name") {
		body.Name = &o.Name
	}
	if o.changed("description") {
		body.Description = &o.Description
	}
	if o.changed("active") {
		body.Active = &o.Active
	}
	return body
}

func (o *UpdateOptions) webhookBody() v1.WebhookUpdate {
	var body v1.WebhookUpdate
	if o.changed("url") {
		body.Url = &o.Url
	}
	if o.changed("event-type") {
		body.EventType = &o.EventType
	}
	if o.changed("enabled") {
		body.Enabled = &o.Enabled
	}
	return body
}

func (o *UpdateOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}

	kind, id, err := parseAndValidateKindId(args[0])
	if err != nil {
		return err
	}
	if id == nil {
		return fmt.Errorf("update needs TYPE/ID")
	}

	v := validator.Default()
	switch kind {
	case ProductKind:
		if o.productBody() == (v1.ProductUpdate{}) {
			return fmt.Errorf("nothing to update, set at least one of --sku, --name, --description, --active")
		}
		return v.Struct(o.productBody())
	case WebhookKind:
		if o.webhookBody() == (v1.WebhookUpdate{}) {
			return fmt.Errorf("nothing to update, set at least one of --url, --event-type, --enabled")
		}
		return v.Struct(o.webhookBody())
	}
	return nil
}

func (o *UpdateOptions) Run(ctx context.Context, args []string) error {
	c, err := o.Client()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	kind, id, err := parseAndValidateKindId(args[0])
	if err != nil {
		return err
	}
	switch kind {
	case ProductKind:
		p, err := c.UpdateProduct(ctx, *id, o.productBody())
		if err != nil {
			return fmt.Errorf("updating %s/%d: %w", kind, *id, err)
		}
		o.printf("%s/%d updated (%s, %s)\n", kind, p.Id, p.Sku, p.Name)
	case WebhookKind:
		w, err := c.UpdateWebhook(ctx, *id, o.webhookBody())
		if err != nil {
			return fmt.Errorf("updating %s/%d: %w", kind, *id, err)
		}
		o.printf("%s/%d updated (%s)\n", kind, w.Id, w.Url)
	default:
		return fmt.Errorf("unsupported resource kind: %s", kind)
	}
	return nil
}
