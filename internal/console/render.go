package console

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	v1 "github.com/acme/catalog-console/api/v1"
)

const descriptionWidth = 50

// Description is the table rendering of a product description: the first 50
// characters followed by "...", or nothing.
func Description(d *string) string {
	if d == nil || *d == "" {
		return ""
	}
	r := []rune(*d)
	if len(r) > descriptionWidth {
		r = r[:descriptionWidth]
	}
	return string(r) + "..."
}

func ActiveLabel(active bool) string {
	if active {
		return "Active"
	}
	return "Inactive"
}

func RenderUpload(w io.Writer, s UploadState) {
	if s.Status != "" {
		fmt.Fprintln(w, s.ProgressText())
	}
	if s.Error != "" {
		fmt.Fprintln(w, s.Error)
	}
}

// RenderProducts prints the product table, the pagination footer and the
// bulk delete outcome.
func RenderProducts(w io.Writer, s ProductState) {
	tw := tabwriter.NewWriter(w, 0, 8, 1, '\t', 0)
	PrintProductsTable(tw, s.Products...)
	tw.Flush()
	fmt.Fprintf(w, "Page %d of %d\n", s.Page, s.TotalPages)
	if s.DeleteStatus != "" {
		fmt.Fprintln(w, s.DeleteStatus)
	}
	if s.DeleteError != "" {
		fmt.Fprintln(w, s.DeleteError)
	}
}

func PrintProductsTable(w *tabwriter.Writer, products ...v1.Product) {
	fmt.Fprintln(w, "SKU\tNAME\tDESCRIPTION\tSTATUS\tID")
	for _, p := range products {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", p.Sku, p.Name, Description(p.Description), ActiveLabel(p.Active), p.Id)
	}
}

func RenderWebhooks(w io.Writer, s WebhookState) {
	tw := tabwriter.NewWriter(w, 0, 8, 1, '\t', 0)
	PrintWebhooksTable(tw, s.TestResults, s.Webhooks...)
	tw.Flush()
}

func PrintWebhooksTable(w *tabwriter.Writer, results map[int64]string, webhooks ...v1.Webhook) {
	fmt.Fprintln(w, "ID\tURL\tEVENT\tENABLED\tTEST")
	for _, h := range webhooks {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", h.Id, h.Url, h.EventType, strconv.FormatBool(h.Enabled), results[h.Id])
	}
}
