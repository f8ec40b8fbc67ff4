package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	v1 "github.com/acme/catalog-console/api/v1"
	"github.com/acme/catalog-console/internal/apitest"
	"github.com/acme/catalog-console/internal/cli"
	"github.com/acme/catalog-console/internal/client"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

func ptr[T any](v T) *T {
	return &v
}

var _ = Describe("catalogctl commands", func() {
	var (
		ctx        context.Context
		server     *apitest.Server
		configPath string
	)

	// run executes cmd against the fake backend with a config file that does
	// not exist, so only the flags given here apply.
	run := func(cmd *cobra.Command, args ...string) (string, error) {
		out := new(bytes.Buffer)
		cmd.SetOut(out)
		cmd.SetErr(new(bytes.Buffer))
		cmd.SetArgs(append(args, "--config", configPath, "--env-file", "", "--server-url", server.URL))
		err := cmd.ExecuteContext(ctx)
		return out.String(), err
	}

	newServer := func(opts ...apitest.Option) {
		server = apitest.NewServer(append([]apitest.Option{
			apitest.WithProducts(
				v1.Product{Sku: "abc-1", Name: "Widget", Description: ptr("A small widget"), Active: true},
				v1.Product{Sku: "abc-2", Name: "Gadget", Active: false},
				v1.Product{Sku: "xyz-1", Name: "Widget XL", Active: true},
			),
			apitest.WithWebhooks(v1.Webhook{Url: "http://hooks.example.com/a", EventType: "product_update", Enabled: true}),
		}, opts...)...)
	}

	BeforeEach(func() {
		ctx = context.TODO()
		configPath = filepath.Join(GinkgoT().TempDir(), "client.yaml")
	})

	AfterEach(func() {
		if server != nil {
			server.Close()
			server = nil
		}
	})

	Context("global options", func() {
		BeforeEach(func() {
			newServer()
		})

		It("takes the server from the client file when no flag is set", func() {
			Expect(client.WriteConfig(configPath, client.Service{Server: server.URL})).To(Succeed())

			cmd := cli.NewCmdHealth()
			out := new(bytes.Buffer)
			cmd.SetOut(out)
			cmd.SetArgs([]string{"--config", configPath, "--env-file", ""})
			Expect(cmd.ExecuteContext(ctx)).To(Succeed())
			Expect(out.String()).To(Equal("healthy\n"))
		})

		It("prefers the environment over the client file", func() {
			Expect(client.WriteConfig(configPath, client.Service{Server: "http://unreachable.invalid:1"})).To(Succeed())
			GinkgoT().Setenv("CATALOG_API_URL", server.URL)

			cmd := cli.NewCmdHealth()
			out := new(bytes.Buffer)
			cmd.SetOut(out)
			cmd.SetArgs([]string{"--config", configPath, "--env-file", ""})
			Expect(cmd.ExecuteContext(ctx)).To(Succeed())
			Expect(out.String()).To(Equal("healthy\n"))
		})

		It("prefers the flag over the environment", func() {
			GinkgoT().Setenv("CATALOG_API_URL", "http://unreachable.invalid:1")

			out, err := run(cli.NewCmdHealth())
			Expect(err).To(BeNil())
			Expect(out).To(Equal("healthy\n"))
		})

		It("rejects an invalid server url", func() {
			cmd := cli.NewCmdHealth()
			cmd.SetOut(new(bytes.Buffer))
			cmd.SetErr(new(bytes.Buffer))
			cmd.SetArgs([]string{"--config", configPath, "--env-file", "", "--server-url", "ftp://example.com"})
			err := cmd.ExecuteContext(ctx)
			Expect(err).ToNot(BeNil())
			Expect(err.Error()).To(ContainSubstring("scheme must be http or https"))
		})

		It("rejects a broken client file", func() {
			Expect(os.WriteFile(configPath, []byte("service: [\n"), 0600)).To(Succeed())

			cmd := cli.NewCmdHealth()
			cmd.SetOut(new(bytes.Buffer))
			cmd.SetErr(new(bytes.Buffer))
			cmd.SetArgs([]string{"--config", configPath, "--env-file", ""})
			err := cmd.ExecuteContext(ctx)
			Expect(err).ToNot(BeNil())
			Expect(err.Error()).To(ContainSubstring("reading client config"))
		})

		It("validates responses in strict mode", func() {
			out, err := run(cli.NewCmdHealth(), "--strict")
			Expect(err).To(BeNil())
			Expect(out).To(Equal("healthy\n"))
		})
	})

	Context("get", func() {
		BeforeEach(func() {
			newServer()
		})

		It("prints the product page as a table", func() {
			out, err := run(cli.NewCmdGet(), "products")
			Expect(err).To(BeNil())
			Expect(out).To(ContainSubstring("SKU"))
			Expect(out).To(ContainSubstring("abc-1"))
			Expect(out).To(ContainSubstring("A small widget..."))
			Expect(out).To(ContainSubstring("Inactive"))
			Expect(out).To(ContainSubstring("Page 1 of 1 (3 products)"))
		})

		It("passes the filters to the API", func() {
			out, err := run(cli.NewCmdGet(), "products", "--name", "widget", "--active", "true", "-o", "json")
			Expect(err).To(BeNil())

			var page v1.ProductPage
			Expect(json.Unmarshal([]byte(out), &page)).To(Succeed())
			Expect(page.Total).To(Equal(2))
			for _, p := range page.Products {
				Expect(p.Active).To(BeTrue())
			}

			reqs := server.Requests()
			last := reqs[len(reqs)-1]
			Expect(last.Query.Get("name")).To(Equal("widget"))
			Expect(last.Query.Get("active")).To(Equal("true"))
			Expect(last.Query.Has("sku")).To(BeFalse())
		})

		It("paginates", func() {
			out, err := run(cli.NewCmdGet(), "products", "--page", "2", "--per-page", "2", "-o", "yaml")
			Expect(err).To(BeNil())

			var page v1.ProductPage
			Expect(yaml.Unmarshal([]byte(out), &page)).To(Succeed())
			Expect(page.Page).To(Equal(2))
			Expect(page.TotalPages).To(Equal(2))
			Expect(page.Products).To(HaveLen(1))
		})

		It("lists webhooks", func() {
			out, err := run(cli.NewCmdGet(), "webhooks")
			Expect(err).To(BeNil())
			Expect(out).To(ContainSubstring("http://hooks.example.com/a"))
			Expect(out).To(ContainSubstring("product_update"))
		})

		It("rejects bad arguments", func() {
			_, err := run(cli.NewCmdGet(), "sources")
			Expect(err).To(MatchError(ContainSubstring("invalid resource kind")))

			_, err = run(cli.NewCmdGet(), "products", "-o", "xml")
			Expect(err).To(MatchError(ContainSubstring("output format must be one of")))

			_, err = run(cli.NewCmdGet(), "product/1")
			Expect(err).To(MatchError(ContainSubstring("does not take an ID")))

			_, err = run(cli.NewCmdGet(), "products", "--active", "maybe")
			Expect(err).To(MatchError(ContainSubstring("active must be one of")))

			Expect(server.Count("GET", "/api/products")).To(BeZero())
		})
	})

	Context("create", func() {
		BeforeEach(func() {
			newServer()
		})

		It("creates a product and prints its id", func() {
			out, err := run(cli.NewCmdCreate(), "product", "--sku", "new-1", "--name", "New", "--description", "Fresh", "--inactive")
			Expect(err).To(BeNil())
			Expect(strings.TrimSpace(out)).To(Equal("4"))

			products := server.Products()
			Expect(products).To(HaveLen(4))
			Expect(products[3].Sku).To(Equal("new-1"))
			Expect(products[3].Active).To(BeFalse())
			Expect(*products[3].Description).To(Equal("Fresh"))
		})

		It("validates before calling the API", func() {
			_, err := run(cli.NewCmdCreate(), "product", "--sku", "new-1")
			Expect(err).To(MatchError(ContainSubstring("name is required")))
			Expect(server.Count("POST", "/api/products")).To(BeZero())
		})

		It("reports a duplicate sku", func() {
			_, err := run(cli.NewCmdCreate(), "product", "--sku", "abc-1", "--name", "Again")
			Expect(err).To(MatchError(ContainSubstring("A product with this SKU already exists.")))
		})

		It("creates a webhook", func() {
			out, err := run(cli.NewCmdCreate(), "webhook", "--url", "https://hooks.example.com/b", "--disabled")
			Expect(err).To(BeNil())
			Expect(strings.TrimSpace(out)).To(Equal("2"))

			hooks := server.Webhooks()
			Expect(hooks).To(HaveLen(2))
			Expect(hooks[1].Enabled).To(BeFalse())
			Expect(hooks[1].EventType).To(Equal("product_update"))
		})

		It("rejects a webhook url that is not http", func() {
			_, err := run(cli.NewCmdCreate(), "webhook", "--url", "not a url")
			Expect(err).To(MatchError(ContainSubstring("url must be an http(s) URL")))
			Expect(server.Count("POST", "/api/webhooks")).To(BeZero())
		})
	})

	Context("update", func() {
		BeforeEach(func() {
			newServer()
		})

		It("sends only the flags that were set", func() {
			out, err := run(cli.NewCmdUpdate(), "product/2", "--name", "Gizmo", "--active")
			Expect(err).To(BeNil())
			Expect(out).To(Equal("product/2 updated (abc-2, Gizmo)\n"))

			p := server.Products()[1]
			Expect(p.Name).To(Equal("Gizmo"))
			Expect(p.Active).To(BeTrue())
			Expect(p.Sku).To(Equal("abc-2"))
		})

		It("disables a webhook", func() {
			_, err := run(cli.NewCmdUpdate(), "webhook/1", "--enabled=false")
			Expect(err).To(BeNil())
			Expect(server.Webhooks()[0].Enabled).To(BeFalse())
		})

		It("needs something to update", func() {
			_, err := run(cli.NewCmdUpdate(), "product/2")
			Expect(err).To(MatchError(ContainSubstring("nothing to update")))
			Expect(server.Count("PUT", "/api/products/2")).To(BeZero())
		})

		It("reports a sku taken by another product", func() {
			_, err := run(cli.NewCmdUpdate(), "product/2", "--sku", "abc-1")
			Expect(err).ToNot(BeNil())
			Expect(client.IsConflict(err)).To(BeTrue())
		})
	})

	Context("delete", func() {
		BeforeEach(func() {
			newServer(apitest.WithAutoRun())
		})

		It("deletes a product", func() {
			out, err := run(cli.NewCmdDelete(), "product/2")
			Expect(err).To(BeNil())
			Expect(out).To(Equal("product/2 deleted\n"))
			Expect(server.Products()).To(HaveLen(2))
		})

		It("reports a missing product", func() {
			_, err := run(cli.NewCmdDelete(), "product/99")
			Expect(err).ToNot(BeNil())
			Expect(client.IsNotFound(err)).To(BeTrue())
		})

		It("deletes a webhook", func() {
			out, err := run(cli.NewCmdDelete(), "webhook/1")
			Expect(err).To(BeNil())
			Expect(out).To(Equal("webhook/1 deleted\n"))
			Expect(server.Webhooks()).To(BeEmpty())
		})

		It("refuses a bulk delete without --yes", func() {
			_, err := run(cli.NewCmdDelete(), "products")
			Expect(err).To(MatchError(ContainSubstring("without --yes")))
			Expect(server.Count("DELETE", "/api/products/delete-all")).To(BeZero())
		})

		It("starts a bulk delete and prints the job id", func() {
			out, err := run(cli.NewCmdDelete(), "products", "--yes")
			Expect(err).To(BeNil())
			Expect(server.Jobs()).To(ConsistOf(strings.TrimSpace(out)))
		})

		It("follows a bulk delete to completion", func() {
			out, err := run(cli.NewCmdDelete(), "products", "--yes", "--wait")
			Expect(err).To(BeNil())
			Expect(out).To(ContainSubstring("accepted"))
			Expect(out).To(HaveSuffix("Successfully deleted 3 products.\n"))
			Expect(server.Products()).To(BeEmpty())
		})
	})

	Context("test", func() {
		BeforeEach(func() {
			newServer()
		})

		It("prints the simulated delivery", func() {
			out, err := run(cli.NewCmdTest(), "webhook/1")
			Expect(err).To(BeNil())
			Expect(out).To(Equal("Test event triggered.\nStatus: 200\nBody: OK\n"))
		})

		It("only tests webhooks", func() {
			_, err := run(cli.NewCmdTest(), "product/1")
			Expect(err).To(MatchError(ContainSubstring("only webhook/ID")))
		})
	})

	Context("upload", func() {
		var dir string

		BeforeEach(func() {
			newServer(apitest.WithAutoRun())
			dir = GinkgoT().TempDir()
		})

		writeFile := func(name, content string) string {
			path := filepath.Join(dir, name)
			Expect(os.WriteFile(path, []byte(content), 0600)).To(Succeed())
			return path
		}

		It("prints the job id", func() {
			path := writeFile("products.csv", "sku,name\nnew-1,New\n")
			out, err := run(cli.NewCmdUpload(), "--file-path", path)
			Expect(err).To(BeNil())
			Expect(server.Jobs()).To(ConsistOf(strings.TrimSpace(out)))
		})

		It("follows the import to completion", func() {
			path := writeFile("products.csv", "sku,name,description\nnew-1,New,Fresh\nnew-2,Newer,\n")
			out, err := run(cli.NewCmdUpload(), "--file-path", path, "--wait")
			Expect(err).To(BeNil())
			Expect(out).To(ContainSubstring("Parsing CSV... 0%\n"))
			Expect(out).To(ContainSubstring("Importing... 100%\n"))
			Expect(out).To(HaveSuffix("Import successful! 2 records processed.\n"))
			Expect(server.Products()).To(HaveLen(5))
		})

		It("checks the header before uploading", func() {
			path := writeFile("products.csv", "name,description\nNew,Fresh\n")
			_, err := run(cli.NewCmdUpload(), "--file-path", path)
			Expect(err).To(MatchError(ContainSubstring("CSV is missing 'sku' column")))
			Expect(server.Count("POST", "/api/upload")).To(BeZero())
		})

		It("requires the file path", func() {
			_, err := run(cli.NewCmdUpload())
			Expect(err).To(MatchError(ContainSubstring("file-path")))
		})
	})

	Context("watch", func() {
		var c *client.Client

		BeforeEach(func() {
			newServer(apitest.WithAutoRun())
			var err error
			c, err = client.New(server.URL)
			Expect(err).To(BeNil())
		})

		It("prints the events of a job", func() {
			accepted, err := c.Upload(ctx, "products.csv", strings.NewReader("sku,name\nnew-1,New\n"))
			Expect(err).To(BeNil())

			out, err := run(cli.NewCmdWatch(), accepted.JobId, "--timeout", "5s")
			Expect(err).To(BeNil())
			Expect(out).To(Equal("Job " + accepted.JobId + " accepted\n" +
				"Parsing CSV... 0%\n" +
				"Importing... 100%\n" +
				"Import successful! 1 records processed.\n"))
		})

		It("fails when the job fails", func() {
			accepted, err := c.Upload(ctx, "products.csv", strings.NewReader("name\nNew\n"))
			Expect(err).To(BeNil())

			out, err := run(cli.NewCmdWatch(), accepted.JobId)
			Expect(err).To(MatchError(ContainSubstring("CSV is missing 'sku' column")))
			Expect(out).To(ContainSubstring("Error: CSV is missing 'sku' column"))
		})

		It("prints CloudEvents", func() {
			accepted, err := c.DeleteAllProducts(ctx)
			Expect(err).To(BeNil())

			out, err := run(cli.NewCmdWatch(), accepted.JobId, "-o", "cloudevents", "--kind", "bulk_delete")
			Expect(err).To(BeNil())

			lines := strings.Split(strings.TrimSpace(out), "\n")
			Expect(lines).To(HaveLen(1))

			var event map[string]any
			Expect(json.Unmarshal([]byte(lines[0]), &event)).To(Succeed())
			Expect(event["type"]).To(Equal("catalog.jobs.complete"))
			Expect(event["subject"]).To(Equal(accepted.JobId))
			Expect(event["data"]).To(HaveKeyWithValue("status", "Successfully deleted 3 products."))
		})

		It("rejects an unknown job kind", func() {
			_, err := run(cli.NewCmdWatch(), "some-id", "--kind", "export")
			Expect(err).To(MatchError(ContainSubstring("job kind must be one of")))
		})
	})

	Context("console", func() {
		BeforeEach(func() {
			newServer(apitest.WithAutoRun())
		})

		It("runs a scripted session and records job events", func() {
			record := filepath.Join(GinkgoT().TempDir(), "events.jsonl")

			cmd := cli.NewCmdConsole()
			cmd.SetIn(strings.NewReader("products\ndelete-all\ny\nquit\n"))
			out := new(bytes.Buffer)
			cmd.SetOut(out)
			cmd.SetArgs([]string{"--config", configPath, "--env-file", "", "--server-url", server.URL, "--record-events", record})
			Expect(cmd.ExecuteContext(ctx)).To(Succeed())

			Expect(out.String()).To(ContainSubstring("Acme Inc. Product Importer."))
			Expect(out.String()).To(ContainSubstring("abc-1"))
			Expect(server.Count("DELETE", "/api/products/delete-all")).To(Equal(1))

			Eventually(func() []v1.Product { return server.Products() }, 5*time.Second).Should(BeEmpty())
		})
	})

	Context("configure", func() {
		BeforeEach(func() {
			newServer()
		})

		It("writes the resolved server and timeout for later runs", func() {
			out, err := run(cli.NewCmdConfigure(), "--timeout", "5s")
			Expect(err).To(BeNil())
			Expect(out).To(Equal("Client configuration written to " + configPath + "\n"))

			cfg, err := client.ParseConfigFile(configPath)
			Expect(err).To(BeNil())
			Expect(cfg.Service.Server).To(Equal(server.URL))
			Expect(cfg.Service.Timeout.Duration).To(Equal(5 * time.Second))

			cmd := cli.NewCmdHealth()
			health := new(bytes.Buffer)
			cmd.SetOut(health)
			cmd.SetArgs([]string{"--config", configPath, "--env-file", ""})
			Expect(cmd.ExecuteContext(ctx)).To(Succeed())
			Expect(health.String()).To(Equal("healthy\n"))
		})

		It("writes nothing for an invalid server", func() {
			cmd := cli.NewCmdConfigure()
			cmd.SetOut(new(bytes.Buffer))
			cmd.SetErr(new(bytes.Buffer))
			cmd.SetArgs([]string{"--config", configPath, "--env-file", "", "--server-url", "ftp://example.com"})
			Expect(cmd.ExecuteContext(ctx)).To(MatchError(ContainSubstring("scheme must be http or https")))
			_, err := os.Stat(configPath)
			Expect(os.IsNotExist(err)).To(BeTrue())
		})
	})

	Context("version", func() {
		It("prints the version", func() {
			cmd := cli.NewCmdVersion()
			out := new(bytes.Buffer)
			cmd.SetOut(out)
			cmd.SetArgs([]string{})
			Expect(cmd.ExecuteContext(ctx)).To(Succeed())
			Expect(out.String()).To(HavePrefix("catalogctl Version: "))
		})
	})
})
