package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	v1 "github.com/acme/catalog-console/api/v1"
	"github.com/acme/catalog-console/internal/console"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thoas/go-funk"
	"sigs.k8s.io/yaml"
)

type GetOptions struct {
	GlobalOptions

	Output  string
	Sku     string
	Name    string
	Active  string
	Page    int
	PerPage int
}

func DefaultGetOptions() *GetOptions {
	return &GetOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Page:          1,
	}
}

func NewCmdGet() *cobra.Command {
	o := DefaultGetOptions()
	cmd := &cobra.Command{
		Use:     "get TYPE",
		Short:   "Display products or webhooks.",
		Example: "get products --sku abc --active true -o yaml",
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

func (o *GetOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
	fs.StringVar(&o.Sku, "sku", o.Sku, "Only products whose SKU contains this value")
	fs.StringVar(&o.Name, "name", o.Name, "Only products whose name contains this value")
	fs.StringVar(&o.Active, "active", o.Active, "Only active (true) or inactive (false) products")
	fs.IntVar(&o.Page, "page", o.Page, "Page of the product listing")
	fs.IntVar(&o.PerPage, "per-page", o.PerPage, "Products per page (defaults to CATALOG_PER_PAGE)")
}

func (o *GetOptions) Complete(cmd *cobra.Command, args []string) error {
	if err := o.GlobalOptions.Complete(cmd, args); err != nil {
		return err
	}
	if o.PerPage == 0 {
		o.PerPage = o.GlobalOptions.PerPage()
	}
	return nil
}

func (o *GetOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}

	_, id, err := parseAndValidateKindId(args[0])
	if err != nil {
		return err
	}
	if id != nil {
		return fmt.Errorf("get lists resources, it does not take an ID")
	}

	if len(o.Output) > 0 && !funk.Contains(legalOutputTypes, o.Output) {
		return fmt.Errorf("output format must be one of %s", strings.Join(legalOutputTypes, ", "))
	}
	if _, ok := v1.ParseActiveFilter(o.Active); !ok {
		return fmt.Errorf("active must be one of true, false, all")
	}
	if o.Page < 1 {
		return fmt.Errorf("page must be at least 1")
	}
	if o.PerPage < 1 {
		return fmt.Errorf("per-page must be at least 1")
	}

	return nil
}

func (o *GetOptions) Run(ctx context.Context, args []string) error {
	c, err := o.Client()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	kind, _, err := parseAndValidateKindId(args[0])
	if err != nil {
		return err
	}

	var response any
	switch kind {
	case ProductKind:
		active, _ := v1.ParseActiveFilter(o.Active)
		filter := v1.ProductFilter{Sku: o.Sku, Name: o.Name, Active: active}
		response, err = c.ListProducts(ctx, filter, o.Page, o.PerPage)
	case WebhookKind:
		response, err = c.ListWebhooks(ctx)
	default:
		return fmt.Errorf("unsupported resource kind: %s", kind)
	}
	if err != nil {
		return fmt.Errorf("listing %s: %w", plural(kind), err)
	}
	return o.processResponse(response)
}

func (o *GetOptions) processResponse(response any) error {
	switch o.Output {
	case jsonFormat:
		marshalled, err := json.Marshal(response)
		if err != nil {
			return fmt.Errorf("marshalling resource: %w", err)
		}
		o.printf("%s\n", string(marshalled))
		return nil
	case yamlFormat:
		marshalled, err := yaml.Marshal(response)
		if err != nil {
			return fmt.Errorf("marshalling resource: %w", err)
		}
		o.printf("%s", string(marshalled))
		return nil
	default:
		return o.printTable(response)
	}
}

func (o *GetOptions) printTable(response any) error {
	w := tabwriter.NewWriter(o.writer(), 0, 8, 1, '\t', 0)
	switch r := response.(type) {
	case *v1.ProductPage:
		console.PrintProductsTable(w, r.Products...)
		w.Flush()
		totalPages := max(r.TotalPages, 1)
		o.printf("Page %d of %d (%d products)\n", r.Page, totalPages, r.Total)
	case []v1.Webhook:
		console.PrintWebhooksTable(w, nil, r...)
		w.Flush()
	default:
		return fmt.Errorf("unknown resource type %T", response)
	}
	return nil
}
